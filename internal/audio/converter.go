package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// BytesPerSample is the size of one mono PCM16 sample
const BytesPerSample = 2

// EncodePCM16 converts float samples in [-1, 1] to 16-bit signed
// little-endian PCM. Values outside the range are clipped.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(FloatToInt16(s)))
	}
	return out
}

// FloatToInt16 clips a float sample to [-1, 1] and scales it to int16
func FloatToInt16(s float32) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return int16(s * math.MaxInt16)
}

// DecodePCM16 converts 16-bit little-endian PCM bytes to samples
func DecodePCM16(pcmData []byte) ([]int16, error) {
	if len(pcmData)%BytesPerSample != 0 {
		return nil, fmt.Errorf("PCM data length must be even (16-bit samples), got %d", len(pcmData))
	}

	samples := make([]int16, len(pcmData)/BytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcmData[i*BytesPerSample:]))
	}
	return samples, nil
}

// Int16ToPCM16 serialises samples as 16-bit little-endian PCM
func Int16ToPCM16(samples []int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(s))
	}
	return out
}

// Resample performs linear interpolation resampling. Good enough for
// bridging codec and output rates that are close; not a band-limited
// resampler.
func Resample(samples []int16, inputRate, outputRate int) []int16 {
	if inputRate == outputRate || inputRate <= 0 || outputRate <= 0 || len(samples) == 0 {
		return samples
	}

	ratio := float64(outputRate) / float64(inputRate)
	outputLength := int(float64(len(samples)) * ratio)
	output := make([]int16, outputLength)

	for i := 0; i < outputLength; i++ {
		srcPos := float64(i) / ratio

		idx0 := int(srcPos)
		idx1 := idx0 + 1
		if idx1 >= len(samples) {
			idx1 = len(samples) - 1
		}

		fraction := srcPos - float64(idx0)
		output[i] = int16(float64(samples[idx0])*(1.0-fraction) + float64(samples[idx1])*fraction)
	}

	return output
}

// CalculateRMS calculates the root mean square of audio samples
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}

	return math.Sqrt(sum / float64(len(samples)))
}

// Duration returns how long n mono samples last at sampleRate
func Duration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(sampleRate)
}
