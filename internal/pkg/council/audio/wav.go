package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// The pipeline works on 16-bit mono PCM in a WAV container. Both synthesis
// adapters normalize provider output to this format, so merging is a plain
// sample concatenation and durations come from container metadata.

const wavHeaderSize = 44

var errNotWAV = errors.New("audio: not a PCM WAV payload")

// EncodeWAV wraps PCM-16 mono samples in a WAV container.
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, errors.New("audio: no samples to encode")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("audio: invalid sample rate %d", sampleRate)
	}

	dataSize := len(samples) * 2
	buf := make([]byte, wavHeaderSize+dataSize)

	le := binary.LittleEndian
	copy(buf[0:4], "RIFF")
	le.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	le.PutUint32(buf[16:20], 16) // PCM fmt chunk size
	le.PutUint16(buf[20:22], 1)  // PCM
	le.PutUint16(buf[22:24], 1)  // mono
	le.PutUint32(buf[24:28], uint32(sampleRate))
	le.PutUint32(buf[28:32], uint32(sampleRate*2)) // byte rate
	le.PutUint16(buf[32:34], 2)                    // block align
	le.PutUint16(buf[34:36], 16)                   // bits per sample
	copy(buf[36:40], "data")
	le.PutUint32(buf[40:44], uint32(dataSize))

	for i, s := range samples {
		le.PutUint16(buf[wavHeaderSize+i*2:], uint16(s))
	}
	return buf, nil
}

// DecodeWAV extracts PCM-16 mono samples and the sample rate.
func DecodeWAV(data []byte) ([]int16, int, error) {
	if err := validateWAV(data); err != nil {
		return nil, 0, err
	}
	le := binary.LittleEndian
	if le.Uint16(data[20:22]) != 1 {
		return nil, 0, errors.New("audio: only PCM encoding is supported")
	}
	if le.Uint16(data[22:24]) != 1 {
		return nil, 0, errors.New("audio: only mono audio is supported")
	}
	if le.Uint16(data[34:36]) != 16 {
		return nil, 0, errors.New("audio: only 16-bit samples are supported")
	}

	sampleRate := int(le.Uint32(data[24:28]))
	dataSize := int(le.Uint32(data[40:44]))
	if wavHeaderSize+dataSize > len(data) {
		dataSize = len(data) - wavHeaderSize
	}
	numSamples := dataSize / 2

	samples := make([]int16, numSamples)
	for i := range samples {
		samples[i] = int16(le.Uint16(data[wavHeaderSize+i*2:]))
	}
	return samples, sampleRate, nil
}

// Duration probes the container metadata for playback length in seconds.
// It never guesses from raw byte length.
func Duration(data []byte) (float64, error) {
	if err := validateWAV(data); err != nil {
		return 0, err
	}
	le := binary.LittleEndian
	sampleRate := le.Uint32(data[24:28])
	blockAlign := le.Uint16(data[32:34])
	dataSize := int(le.Uint32(data[40:44]))
	// Streamed provider output may carry a placeholder size field; the actual
	// payload bounds the duration.
	if wavHeaderSize+dataSize > len(data) {
		dataSize = len(data) - wavHeaderSize
	}
	if sampleRate == 0 || blockAlign == 0 {
		return 0, errNotWAV
	}
	frames := float64(dataSize) / float64(blockAlign)
	return frames / float64(sampleRate), nil
}

func validateWAV(data []byte) error {
	if len(data) < wavHeaderSize {
		return errNotWAV
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return errNotWAV
	}
	if string(data[12:16]) != "fmt " || string(data[36:40]) != "data" {
		return errNotWAV
	}
	return nil
}
