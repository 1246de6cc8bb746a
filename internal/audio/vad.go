package audio

import "time"

// VADConfig holds configuration for voice activity detection
type VADConfig struct {
	EnergyThreshold float64 // RMS energy threshold for speech detection
	SilenceFrames   int     // Consecutive silent frames that end an utterance
	FrameSize       int     // Samples per analysis frame
}

// DefaultVADConfig returns 20ms frames at 22050 Hz with a 200ms hangover
func DefaultVADConfig() *VADConfig {
	return &VADConfig{
		EnergyThreshold: 300.0,
		SilenceFrames:   10,
		FrameSize:       441,
	}
}

// ActivityKind says whether an utterance started or ended
type ActivityKind int

const (
	SpeechStarted ActivityKind = iota + 1
	SpeechEnded
)

func (k ActivityKind) String() string {
	switch k {
	case SpeechStarted:
		return "speech_started"
	case SpeechEnded:
		return "speech_ended"
	}
	return "unknown"
}

// ActivityEvent marks an utterance boundary at a sample offset in the
// stream fed so far
type ActivityEvent struct {
	Kind   ActivityKind
	Sample int
}

// At returns the event position as a stream time
func (e ActivityEvent) At(sampleRate int) time.Duration {
	return Duration(e.Sample, sampleRate)
}

// VADDetector finds utterance boundaries in a received PCM stream. It is
// fed arbitrarily sized chunks and analyses whole frames.
type VADDetector struct {
	config         *VADConfig
	pending        []int16
	consumed       int
	silenceCounter int
	isSpeaking     bool
}

// NewVADDetector creates a new VAD detector
func NewVADDetector(config *VADConfig) *VADDetector {
	if config == nil {
		config = DefaultVADConfig()
	}
	if config.FrameSize <= 0 {
		config.FrameSize = DefaultVADConfig().FrameSize
	}
	return &VADDetector{config: config}
}

// Feed analyses samples and returns the boundaries they complete.
// Leftover samples that do not fill a frame wait for the next call.
func (v *VADDetector) Feed(samples []int16) []ActivityEvent {
	v.pending = append(v.pending, samples...)

	var events []ActivityEvent
	size := v.config.FrameSize
	for len(v.pending) >= size {
		_, started, ended := v.ProcessFrame(v.pending[:size])
		switch {
		case started:
			events = append(events, ActivityEvent{Kind: SpeechStarted, Sample: v.consumed})
		case ended:
			// The utterance ended where the silence began
			at := v.consumed + size - v.config.SilenceFrames*size
			events = append(events, ActivityEvent{Kind: SpeechEnded, Sample: at})
		}
		v.consumed += size
		v.pending = v.pending[size:]
	}
	if len(v.pending) == 0 {
		v.pending = nil
	}
	return events
}

// Flush ends an open utterance at the end of the stream
func (v *VADDetector) Flush() []ActivityEvent {
	end := v.consumed + len(v.pending)
	v.pending = nil
	if !v.isSpeaking {
		return nil
	}
	v.isSpeaking = false
	v.silenceCounter = 0
	return []ActivityEvent{{Kind: SpeechEnded, Sample: end}}
}

// ProcessFrame analyses one frame.
// Returns: (isSpeaking, speechStarted, speechEnded)
func (v *VADDetector) ProcessFrame(samples []int16) (bool, bool, bool) {
	frameHasSpeech := CalculateRMS(samples) > v.config.EnergyThreshold

	var speechStarted, speechEnded bool
	if frameHasSpeech {
		v.silenceCounter = 0
		if !v.isSpeaking {
			speechStarted = true
			v.isSpeaking = true
		}
	} else {
		v.silenceCounter++
		if v.isSpeaking && v.silenceCounter >= v.config.SilenceFrames {
			speechEnded = true
			v.isSpeaking = false
			v.silenceCounter = 0
		}
	}
	return v.isSpeaking, speechStarted, speechEnded
}

// Reset clears all state
func (v *VADDetector) Reset() {
	v.pending = nil
	v.consumed = 0
	v.silenceCounter = 0
	v.isSpeaking = false
}

// IsSpeaking returns whether speech is currently detected
func (v *VADDetector) IsSpeaking() bool {
	return v.isSpeaking
}

// DetectSilence reports whether samples fall below the energy threshold
func DetectSilence(samples []int16, threshold float64) bool {
	return CalculateRMS(samples) < threshold
}
