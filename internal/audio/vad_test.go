package audio

import (
	"testing"
	"time"
)

func testVADConfig() *VADConfig {
	return &VADConfig{
		EnergyThreshold: 500.0,
		SilenceFrames:   3,
		FrameSize:       100,
	}
}

func constant(n int, v int16) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = v
	}
	return samples
}

func TestVADDetector_ProcessFrame_Speech(t *testing.T) {
	vad := NewVADDetector(testVADConfig())
	loud := constant(100, 5000)

	for i := 0; i < 5; i++ {
		isSpeaking, speechStarted, _ := vad.ProcessFrame(loud)
		if !isSpeaking {
			t.Errorf("Expected speech detection on frame %d", i)
		}
		if speechStarted != (i == 0) {
			t.Errorf("Frame %d: expected speechStarted=%v", i, i == 0)
		}
	}
}

func TestVADDetector_ProcessFrame_SpeechToSilence(t *testing.T) {
	vad := NewVADDetector(testVADConfig())
	vad.ProcessFrame(constant(100, 5000))

	quiet := constant(100, 10)
	for i := 0; i < 2; i++ {
		if _, _, ended := vad.ProcessFrame(quiet); ended {
			t.Fatalf("Expected speech to continue through frame %d of silence", i)
		}
	}
	isSpeaking, _, ended := vad.ProcessFrame(quiet)
	if !ended || isSpeaking {
		t.Error("Expected speech to end after 3 silent frames")
	}
}

func TestVADDetector_Feed(t *testing.T) {
	vad := NewVADDetector(testVADConfig())

	var stream []int16
	stream = append(stream, constant(200, 0)...)    // frames 0-1 silent
	stream = append(stream, constant(300, 8000)...) // frames 2-4 speech
	stream = append(stream, constant(400, 0)...)    // frames 5-8 silent

	// Feed in uneven pieces
	var events []ActivityEvent
	for len(stream) > 0 {
		n := 70
		if n > len(stream) {
			n = len(stream)
		}
		events = append(events, vad.Feed(stream[:n])...)
		stream = stream[n:]
	}

	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %v", events)
	}
	if events[0].Kind != SpeechStarted || events[0].Sample != 200 {
		t.Errorf("Expected speech start at 200, got %+v", events[0])
	}
	if events[1].Kind != SpeechEnded || events[1].Sample != 500 {
		t.Errorf("Expected speech end at 500, got %+v", events[1])
	}
}

func TestVADDetector_Flush(t *testing.T) {
	vad := NewVADDetector(testVADConfig())
	vad.Feed(constant(150, 8000))

	events := vad.Flush()
	if len(events) != 1 || events[0].Kind != SpeechEnded || events[0].Sample != 150 {
		t.Errorf("Expected open utterance to end at 150, got %v", events)
	}
	if vad.IsSpeaking() {
		t.Error("Expected detector idle after flush")
	}
	if len(vad.Flush()) != 0 {
		t.Error("Expected second flush to report nothing")
	}
}

func TestVADDetector_Reset(t *testing.T) {
	vad := NewVADDetector(testVADConfig())
	vad.Feed(constant(150, 8000))
	vad.Reset()

	if vad.IsSpeaking() {
		t.Error("Expected not speaking after reset")
	}
	events := vad.Feed(constant(100, 8000))
	if len(events) != 1 || events[0].Sample != 0 {
		t.Errorf("Expected offsets to restart at 0, got %v", events)
	}
}

func TestActivityEvent_At(t *testing.T) {
	e := ActivityEvent{Kind: SpeechStarted, Sample: 22050}
	if e.At(22050) != time.Second {
		t.Errorf("Expected 1s, got %v", e.At(22050))
	}
	if SpeechEnded.String() != "speech_ended" {
		t.Errorf("Expected speech_ended, got %s", SpeechEnded)
	}
}

func TestDefaultVADConfig(t *testing.T) {
	config := DefaultVADConfig()
	if config.FrameSize != 441 {
		t.Errorf("Expected 20ms frames at 22050 Hz, got %d", config.FrameSize)
	}
	if NewVADDetector(&VADConfig{EnergyThreshold: 1}).config.FrameSize != 441 {
		t.Error("Expected zero frame size to fall back to default")
	}
}

func TestDetectSilence(t *testing.T) {
	if !DetectSilence(constant(10, 5), 100) {
		t.Error("Expected quiet samples to be silence")
	}
	if DetectSilence(constant(10, 5000), 100) {
		t.Error("Expected loud samples not to be silence")
	}
}
