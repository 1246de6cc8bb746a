package audio

import (
	"math"
	"testing"
	"time"
)

func TestEncodePCM16(t *testing.T) {
	data := EncodePCM16([]float32{0, 1, -1, 0.5})

	if len(data) != 8 {
		t.Fatalf("Expected 8 bytes, got %d", len(data))
	}
	samples, err := DecodePCM16(data)
	if err != nil {
		t.Fatalf("DecodePCM16 failed: %v", err)
	}
	expected := []int16{0, 32767, -32767, 16383}
	for i, want := range expected {
		if samples[i] != want {
			t.Errorf("Sample %d: expected %d, got %d", i, want, samples[i])
		}
	}
	// Little endian: 32767 = 0xFF 0x7F
	if data[2] != 0xFF || data[3] != 0x7F {
		t.Errorf("Expected little endian encoding, got % x", data[2:4])
	}
}

func TestFloatToInt16_Clips(t *testing.T) {
	tests := []struct {
		in   float32
		want int16
	}{
		{2.5, 32767},
		{-3, -32767},
		{0, 0},
	}
	for _, tt := range tests {
		if got := FloatToInt16(tt.in); got != tt.want {
			t.Errorf("FloatToInt16(%v): expected %d, got %d", tt.in, tt.want, got)
		}
	}
}

func TestDecodePCM16_OddLength(t *testing.T) {
	if _, err := DecodePCM16([]byte{1, 2, 3}); err == nil {
		t.Error("Expected error for odd length")
	}
}

func TestInt16ToPCM16(t *testing.T) {
	in := []int16{-32768, -1, 0, 1, 32767}
	out, err := DecodePCM16(Int16ToPCM16(in))
	if err != nil {
		t.Fatalf("DecodePCM16 failed: %v", err)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, in[i], out[i])
		}
	}
}

func TestResample(t *testing.T) {
	samples := make([]int16, 2205)
	for i := range samples {
		samples[i] = int16(i % 100)
	}

	out := Resample(samples, 22050, 24000)
	if len(out) != 2400 {
		t.Errorf("Expected 2400 samples, got %d", len(out))
	}

	same := Resample(samples, 22050, 22050)
	if len(same) != len(samples) {
		t.Error("Expected no change for equal rates")
	}
	if len(Resample(nil, 22050, 16000)) != 0 {
		t.Error("Expected empty output for empty input")
	}
}

func TestCalculateRMS(t *testing.T) {
	samples := []int16{1000, -1000, 1000, -1000}
	if rms := CalculateRMS(samples); math.Abs(rms-1000) > 0.001 {
		t.Errorf("Expected RMS 1000, got %f", rms)
	}
	if CalculateRMS(nil) != 0 {
		t.Error("Expected RMS 0 for empty samples")
	}
}

func TestDuration(t *testing.T) {
	if d := Duration(1764, 22050); d != 80*time.Millisecond {
		t.Errorf("Expected 80ms per frame, got %v", d)
	}
	if Duration(100, 0) != 0 {
		t.Error("Expected zero duration for invalid rate")
	}
}
