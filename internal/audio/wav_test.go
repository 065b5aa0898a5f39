// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func pcm16(samples ...int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	data := pcm16(0, 16384, -16384, 32767, -32768)
	wav := EncodeWAV(data, InternalSampleRate, 1)

	samples, sr, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if sr != InternalSampleRate {
		t.Errorf("expected sample rate %d, got %d", InternalSampleRate, sr)
	}
	if len(samples) != 5 {
		t.Fatalf("expected 5 samples, got %d", len(samples))
	}
	expected := []float32{0, 0.5, -0.5, 32767.0 / 32768.0, -1}
	for i, want := range expected {
		if math.Abs(float64(samples[i]-want)) > 1e-6 {
			t.Errorf("sample %d: expected %f, got %f", i, want, samples[i])
		}
	}
}

func TestDecodeStereoDownmix(t *testing.T) {
	// L=0.5, R=-0.5 should average to 0.
	data := pcm16(16384, -16384, 16384, 16384)
	wav := EncodeWAV(data, 16000, 2)

	samples, _, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(samples))
	}
	if samples[0] != 0 {
		t.Errorf("expected downmixed 0, got %f", samples[0])
	}
	if samples[1] != 0.5 {
		t.Errorf("expected downmixed 0.5, got %f", samples[1])
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, _, err := DecodeWAV([]byte("definitely not a wav file, nope")); err == nil {
		t.Error("expected error for non-RIFF payload")
	}
	if _, _, err := DecodeWAV(nil); err == nil {
		t.Error("expected error for empty payload")
	}
}

func TestDecodeStreamedSizeFields(t *testing.T) {
	// ffmpeg writing to pipe:1 cannot seek back to patch RIFF sizes; it
	// leaves 0xFFFFFFFF there. Decode must fall back to actual length.
	data := pcm16(1000, 2000, 3000)
	wav := EncodeWAV(data, 16000, 1)
	binary.LittleEndian.PutUint32(wav[4:8], 0xFFFFFFFF)
	binary.LittleEndian.PutUint32(wav[40:44], 0xFFFFFFFF)

	samples, _, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(samples) != 3 {
		t.Errorf("expected 3 samples, got %d", len(samples))
	}
}

func TestSilenceWAV(t *testing.T) {
	wav := SilenceWAV(0.5, 16000)
	samples, sr, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if sr != 16000 || len(samples) != 8000 {
		t.Errorf("expected 8000 samples at 16kHz, got %d at %d", len(samples), sr)
	}
	for _, s := range samples {
		if s != 0 {
			t.Fatal("expected pure silence")
		}
	}
}
