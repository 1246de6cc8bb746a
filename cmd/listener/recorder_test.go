package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
	"github.com/rs/zerolog"

	"github.com/novalink/voice-stream/internal/audio"
)

func tone(n int, level int16) []int16 {
	out := make([]int16, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = level
		} else {
			out[i] = -level
		}
	}
	return out
}

func TestRecorder_WritesWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	cfg := audio.DefaultVADConfig()
	rec, err := newRecorder(path, 22050, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("newRecorder failed: %v", err)
	}

	loud := tone(cfg.FrameSize*4, 8000)
	quiet := make([]int16, cfg.FrameSize*(cfg.SilenceFrames+1))

	events, err := rec.Write(audio.Int16ToPCM16(loud))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if len(events) != 1 || events[0].Kind != audio.SpeechStarted {
		t.Errorf("Expected speech start, got %v", events)
	}
	events, _ = rec.Write(audio.Int16ToPCM16(quiet))
	if len(events) != 1 || events[0].Kind != audio.SpeechEnded {
		t.Errorf("Expected speech end, got %v", events)
	}

	if _, err := rec.Write([]byte{1}); err == nil {
		t.Error("Expected error for odd PCM length")
	}
	if _, err := rec.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("Failed to decode WAV: %v", err)
	}
	if buf.Format.SampleRate != 22050 || buf.Format.NumChannels != 1 {
		t.Errorf("Unexpected format %+v", buf.Format)
	}
	if want := len(loud) + len(quiet); len(buf.Data) != want {
		t.Errorf("Expected %d samples, got %d", want, len(buf.Data))
	}
	if buf.Data[0] != 8000 || buf.Data[1] != -8000 {
		t.Errorf("Unexpected leading samples %v", buf.Data[:2])
	}
}

func TestDominant(t *testing.T) {
	tests := []struct {
		payload map[string]float64
		want    string
	}{
		{map[string]float64{"Neutral": 0.2, "Happy": 1.0, "Surprise": 0.8}, "Happy"},
		{map[string]float64{"Neutral": 1.0, "Sad": 1.0}, "Neutral"},
		{map[string]float64{}, "Neutral"},
	}
	for _, tt := range tests {
		if got := dominant(tt.payload); got != tt.want {
			t.Errorf("Expected %s, got %s", tt.want, got)
		}
	}
}
