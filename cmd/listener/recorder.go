package main

import (
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"

	"github.com/novalink/voice-stream/internal/audio"
)

// recorder appends received PCM16 chunks to a WAV file and reports
// utterance boundaries found in the stream
type recorder struct {
	file    *os.File
	enc     *wav.Encoder
	vad     *audio.VADDetector
	rate    int
	samples int
	logger  zerolog.Logger
}

func newRecorder(path string, sampleRate int, vad *audio.VADConfig, logger zerolog.Logger) (*recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return &recorder{
		file:   f,
		enc:    wav.NewEncoder(f, sampleRate, 16, 1, 1),
		vad:    audio.NewVADDetector(vad),
		rate:   sampleRate,
		logger: logger,
	}, nil
}

// Write appends one chunk and returns the activity it completed
func (r *recorder) Write(pcm []byte) ([]audio.ActivityEvent, error) {
	samples, err := audio.DecodePCM16(pcm)
	if err != nil {
		return nil, err
	}

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: r.rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := r.enc.Write(buf); err != nil {
		return nil, fmt.Errorf("write wav: %w", err)
	}
	r.samples += len(samples)
	return r.vad.Feed(samples), nil
}

// Duration returns the recorded length
func (r *recorder) Duration() string {
	return audio.Duration(r.samples, r.rate).String()
}

// Close finalises the WAV header and closes the file
func (r *recorder) Close() ([]audio.ActivityEvent, error) {
	events := r.vad.Flush()
	if err := r.enc.Close(); err != nil {
		r.file.Close()
		return events, fmt.Errorf("close wav encoder: %w", err)
	}
	return events, r.file.Close()
}
