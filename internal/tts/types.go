// Package tts turns reply text into a stream of PCM chunks by running a
// speech token source through the sliding window decoder.
package tts

// AudioChunk represents a chunk of audio data ready for streaming
type AudioChunk struct {
	Data       []byte // Mono 16-bit little endian PCM
	SampleRate int    // Sample rate in Hz
	Channels   int    // Always 1
	Index      int    // Position within the utterance
	Final      bool   // Last chunk of the utterance
}

// Samples returns the number of PCM samples in the chunk
func (c *AudioChunk) Samples() int {
	return len(c.Data) / 2
}
