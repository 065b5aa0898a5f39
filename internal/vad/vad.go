// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_vad

import (
	"context"
	"fmt"
	"sync"

	"github.com/streamer45/silero-vad-go/speech"

	internal_audio "github.com/rapidaai/voice-agent/internal/audio"
	internal_type "github.com/rapidaai/voice-agent/internal/type"
	"github.com/rapidaai/voice-agent/pkg/commons"
)

// windowSize is the model's fixed analysis window at 16 kHz.
const windowSize = 512

// Gate runs Silero voice activity detection over whole PCM buffers. The
// underlying detector is stateful and configured at construction, so Gate
// keeps one detector per parameter set and serializes access to each.
type Gate struct {
	logger    commons.Logger
	modelPath string

	mu        sync.Mutex
	detectors map[internal_type.VADParams]*speech.Detector
}

var _ internal_type.SpeechSegmenter = (*Gate)(nil)

func NewGate(logger commons.Logger, modelPath string) *Gate {
	return &Gate{
		logger:    logger,
		modelPath: modelPath,
		detectors: make(map[internal_type.VADParams]*speech.Detector),
	}
}

func (g *Gate) detectorFor(params internal_type.VADParams) (*speech.Detector, error) {
	if d, ok := g.detectors[params]; ok {
		return d, nil
	}
	d, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:            g.modelPath,
		SampleRate:           internal_audio.InternalSampleRate,
		WindowSize:           windowSize,
		Threshold:            params.Threshold,
		MinSilenceDurationMs: params.MinSilenceMs,
		SpeechPadMs:          0,
	})
	if err != nil {
		return nil, fmt.Errorf("init silero detector: %w", err)
	}
	g.detectors[params] = d
	return d, nil
}

// Segments detects speech spans over the full buffer. The detector scans from
// the beginning every call; the session's own silence arithmetic is applied
// by the caller on top of the returned spans.
func (g *Gate) Segments(ctx context.Context, pcm []float32, sampleRate int, params internal_type.VADParams) ([]internal_type.SpeechSegment, error) {
	if sampleRate != internal_audio.InternalSampleRate {
		return nil, fmt.Errorf("unsupported sample rate %d, want %d", sampleRate, internal_audio.InternalSampleRate)
	}
	if len(pcm) < windowSize {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Pad to a whole number of analysis windows; the model rejects partial
	// final frames.
	if rem := len(pcm) % windowSize; rem != 0 {
		padded := make([]float32, len(pcm)+windowSize-rem)
		copy(padded, pcm)
		pcm = padded
	}
	duration := internal_audio.Duration(pcm, sampleRate)

	g.mu.Lock()
	defer g.mu.Unlock()

	d, err := g.detectorFor(params)
	if err != nil {
		return nil, err
	}
	if err := d.Reset(); err != nil {
		return nil, fmt.Errorf("reset detector: %w", err)
	}

	raw, err := d.Detect(pcm)
	if err != nil {
		return nil, fmt.Errorf("detect speech: %w", err)
	}

	minSpeech := float64(params.MinSpeechMs) / 1000.0
	segments := make([]internal_type.SpeechSegment, 0, len(raw))
	for _, s := range raw {
		end := s.SpeechEndAt
		if end <= 0 {
			// Speech still open at buffer end.
			end = duration
		}
		if end-s.SpeechStartAt < minSpeech {
			continue
		}
		segments = append(segments, internal_type.SpeechSegment{
			StartAt: s.SpeechStartAt,
			EndAt:   end,
		})
	}
	g.logger.Debugf("vad found %d segments over %.2fs", len(segments), duration)
	return segments, nil
}

// Close destroys all cached detectors.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for params, d := range g.detectors {
		if err := d.Destroy(); err != nil {
			g.logger.Warnf("destroy detector: %v", err)
		}
		delete(g.detectors, params)
	}
}
