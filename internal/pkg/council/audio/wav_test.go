package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func sine(t *testing.T, seconds float64, sampleRate int) []int16 {
	t.Helper()
	n := int(seconds * float64(sampleRate))
	samples := make([]int16, n)
	for i := range samples {
		x := float64(i) / float64(sampleRate)
		samples[i] = int16(16383 * math.Sin(2*math.Pi*440*x))
	}
	return samples
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	samples := sine(t, 0.1, 16000)
	data, err := EncodeWAV(samples, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	if len(data) != wavHeaderSize+len(samples)*2 {
		t.Errorf("expected %d bytes, got %d", wavHeaderSize+len(samples)*2, len(data))
	}

	decoded, rate, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if rate != 16000 {
		t.Errorf("expected sample rate 16000, got %d", rate)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(decoded))
	}
	for i := range samples {
		if decoded[i] != samples[i] {
			t.Fatalf("sample %d differs: %d vs %d", i, decoded[i], samples[i])
		}
	}
}

func TestDurationFromHeader(t *testing.T) {
	data, err := EncodeWAV(sine(t, 0.25, 8000), 8000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	d, err := Duration(data)
	if err != nil {
		t.Fatalf("Duration failed: %v", err)
	}
	if math.Abs(d-0.25) > 1e-6 {
		t.Errorf("expected 0.25s, got %fs", d)
	}
}

func TestDurationClampsPlaceholderSizeField(t *testing.T) {
	data, err := EncodeWAV(sine(t, 0.5, 16000), 16000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	// Streaming encoders often write a placeholder data size they never patch.
	binary.LittleEndian.PutUint32(data[40:44], 0xFFFFFFF0)

	d, err := Duration(data)
	if err != nil {
		t.Fatalf("Duration failed: %v", err)
	}
	if math.Abs(d-0.5) > 1e-6 {
		t.Errorf("expected 0.5s from the actual payload, got %fs", d)
	}
}

func TestEncodeWAVRejectsBadInput(t *testing.T) {
	if _, err := EncodeWAV(nil, 16000); err == nil {
		t.Error("expected error for empty samples")
	}
	if _, err := EncodeWAV([]int16{1}, 0); err == nil {
		t.Error("expected error for zero sample rate")
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, _, err := DecodeWAV([]byte("not a wav")); err == nil {
		t.Error("expected error for short payload")
	}
	junk := make([]byte, 64)
	copy(junk, "RIFFxxxxJUNK")
	if _, _, err := DecodeWAV(junk); err == nil {
		t.Error("expected error for non-WAVE payload")
	}
	if _, err := Duration(junk); err == nil {
		t.Error("expected duration error for non-WAVE payload")
	}
}
