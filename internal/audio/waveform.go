package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// WaveformSampleCount is the number of samples extracted for note cards
const WaveformSampleCount = 200

// ExtractWaveform downsamples a 16-bit PCM WAV file into targetCount peak
// amplitudes normalized to [0, 1]. Non-WAV containers (m4a imports) are not
// decoded; callers treat an error as "no waveform".
func ExtractWaveform(path string, targetCount int) ([]float64, error) {
	if targetCount <= 0 {
		targetCount = WaveformSampleCount
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio file: %w", err)
	}

	samples, err := decodePCM16(data)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("no audio samples in %s", path)
	}

	if len(samples) <= targetCount {
		out := make([]float64, len(samples))
		for i, s := range samples {
			out[i] = math.Abs(float64(s)) / math.MaxInt16
		}
		return out, nil
	}

	out := make([]float64, targetCount)
	bucket := len(samples) / targetCount
	for i := 0; i < targetCount; i++ {
		start := i * bucket
		end := start + bucket
		if i == targetCount-1 {
			end = len(samples)
		}

		var peak float64
		for _, s := range samples[start:end] {
			if abs := math.Abs(float64(s)); abs > peak {
				peak = abs
			}
		}
		out[i] = peak / math.MaxInt16
	}

	return out, nil
}

// decodePCM16 walks the RIFF chunks of a WAV file and returns the 16-bit
// samples of the data chunk
func decodePCM16(data []byte) ([]int16, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a RIFF/WAVE file")
	}

	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8

		if chunkID == "data" {
			end := body + chunkSize
			if end > len(data) {
				end = len(data)
			}
			raw := data[body:end]

			samples := make([]int16, len(raw)/2)
			for i := range samples {
				samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
			}
			return samples, nil
		}

		// Chunks are word-aligned
		if chunkSize%2 == 1 {
			chunkSize++
		}
		offset = body + chunkSize
	}

	return nil, fmt.Errorf("no data chunk found")
}
