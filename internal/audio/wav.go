// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	// InternalSampleRate is the pipeline-wide PCM rate. The transcoder
	// resamples everything to this before VAD and ASR run.
	InternalSampleRate = 16000

	AudioBytesPerSample = 2  // LINEAR16 → 2 bytes per sample
	AudioBitsPerSample  = 16 // LINEAR16 → 16 bits per sample
	AudioPCMFormat      = 1  // WAV PCM format tag

	wavHeaderSize = 44
)

// EncodeWAV wraps raw little-endian PCM16 data in a RIFF/WAVE container.
func EncodeWAV(pcmData []byte, sampleRate, channels int) []byte {
	var buf bytes.Buffer
	bps := sampleRate * channels * AudioBytesPerSample

	buf.Write([]byte("RIFF"))
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcmData)))
	buf.Write([]byte("WAVE"))

	buf.Write([]byte("fmt "))
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(AudioPCMFormat))
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(bps))
	binary.Write(&buf, binary.LittleEndian, uint16(AudioBytesPerSample*channels))
	binary.Write(&buf, binary.LittleEndian, uint16(AudioBitsPerSample))

	// data chunk
	buf.Write([]byte("data"))
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcmData)))
	buf.Write(pcmData)

	return buf.Bytes()
}

// SilenceWAV returns a mono PCM16 WAV of the given duration filled with
// silence. Used as the TTS fallback on the legacy path.
func SilenceWAV(seconds float64, sampleRate int) []byte {
	frames := int(seconds * float64(sampleRate))
	return EncodeWAV(make([]byte, frames*AudioBytesPerSample), sampleRate, 1)
}

// DecodeWAV parses a PCM16 RIFF/WAVE payload into normalized float32 samples
// in [-1, 1]. Multi-channel audio is downmixed to mono by averaging.
func DecodeWAV(wav []byte) (samples []float32, sampleRate int, err error) {
	if len(wav) < wavHeaderSize {
		return nil, 0, fmt.Errorf("wav too short: %d bytes", len(wav))
	}
	if !bytes.Equal(wav[0:4], []byte("RIFF")) || !bytes.Equal(wav[8:12], []byte("WAVE")) {
		return nil, 0, fmt.Errorf("not a RIFF/WAVE payload")
	}

	var (
		channels      int
		bitsPerSample int
		data          []byte
	)

	// Walk chunks; ffmpeg emits fmt then data but other writers may add
	// LIST/fact chunks in between.
	pos := 12
	for pos+8 <= len(wav) {
		id := string(wav[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(wav[pos+4 : pos+8]))
		body := pos + 8
		if body+size > len(wav) {
			// Streaming writers (ffmpeg pipe:1) leave the size fields
			// unpatched; take whatever bytes are actually present.
			size = len(wav) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, fmt.Errorf("fmt chunk too short: %d", size)
			}
			format := int(binary.LittleEndian.Uint16(wav[body : body+2]))
			if format != AudioPCMFormat {
				return nil, 0, fmt.Errorf("unsupported wav format tag %d", format)
			}
			channels = int(binary.LittleEndian.Uint16(wav[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(wav[body+4 : body+8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(wav[body+14 : body+16]))
		case "data":
			data = wav[body : body+size]
		}
		if size%2 == 1 {
			size++ // chunks are word-aligned
		}
		pos = body + size
	}

	if sampleRate == 0 || channels == 0 {
		return nil, 0, fmt.Errorf("missing fmt chunk")
	}
	if bitsPerSample != AudioBitsPerSample {
		return nil, 0, fmt.Errorf("unsupported bit depth %d", bitsPerSample)
	}
	if len(data) == 0 {
		return nil, sampleRate, nil
	}

	frameBytes := channels * AudioBytesPerSample
	frames := len(data) / frameBytes
	samples = make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			off := i*frameBytes + c*AudioBytesPerSample
			v := int16(binary.LittleEndian.Uint16(data[off : off+2]))
			sum += float32(v) / 32768.0
		}
		samples[i] = sum / float32(channels)
	}
	return samples, sampleRate, nil
}

// Duration returns the buffer length in seconds.
func Duration(samples []float32, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(len(samples)) / float64(sampleRate)
}
