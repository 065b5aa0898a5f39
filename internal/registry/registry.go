// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_registry

import (
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rapidaai/voice-agent/config"
	internal_asr "github.com/rapidaai/voice-agent/internal/asr"
	internal_llm "github.com/rapidaai/voice-agent/internal/llm"
	internal_transcode "github.com/rapidaai/voice-agent/internal/transcode"
	internal_tts "github.com/rapidaai/voice-agent/internal/tts"
	internal_type "github.com/rapidaai/voice-agent/internal/type"
	internal_vad "github.com/rapidaai/voice-agent/internal/vad"
	"github.com/rapidaai/voice-agent/pkg/commons"
)

// Registry lazily builds the heavyweight collaborators (ASR, VAD, TTS, LLM)
// once and hands out the same instance afterwards. A failed
// construction leaves the slot nil so a later call can retry.
type Registry struct {
	logger commons.Logger
	cfg    *config.AppConfig

	cudaOnce sync.Once
	cuda     bool

	asrMu sync.Mutex
	asr   *internal_asr.Whisper

	transcodeMu sync.Mutex
	transcode   *internal_transcode.Transcoder

	vadMu sync.Mutex
	vad   *internal_vad.Gate

	ttsMu sync.Mutex
	tts   *internal_tts.Piper

	llmMu sync.Mutex
	llm   *internal_llm.Client
}

func NewRegistry(logger commons.Logger, cfg *config.AppConfig) *Registry {
	return &Registry{logger: logger, cfg: cfg}
}

// UseCuda resolves the GPU choice once: an explicit true/false wins, "auto"
// probes for nvidia-smi on PATH.
func (r *Registry) UseCuda() bool {
	r.cudaOnce.Do(func() {
		switch strings.ToLower(r.cfg.UseCuda) {
		case "true", "1", "yes":
			r.cuda = true
		case "false", "0", "no":
			r.cuda = false
		default:
			if _, err := exec.LookPath("nvidia-smi"); err == nil {
				r.cuda = true
				r.logger.Info("CUDA detected: GPU acceleration enabled")
			} else {
				r.logger.Info("no GPU detected: using CPU")
			}
		}
	})
	return r.cuda
}

// ASR returns the shared whisper transcriber.
func (r *Registry) ASR() internal_type.Transcriber {
	r.asrMu.Lock()
	defer r.asrMu.Unlock()
	if r.asr == nil {
		r.asr = internal_asr.NewWhisper(r.logger, r.cfg.WhisperBin, r.cfg.WhisperModel, r.UseCuda())
	}
	return r.asr
}

// Transcoder returns the shared ffmpeg transcoder.
func (r *Registry) Transcoder() internal_type.Transcoder {
	r.transcodeMu.Lock()
	defer r.transcodeMu.Unlock()
	if r.transcode == nil {
		r.transcode = internal_transcode.NewTranscoder(r.logger, r.cfg.FfmpegBin)
	}
	return r.transcode
}

// VAD returns the shared speech segmenter.
func (r *Registry) VAD() internal_type.SpeechSegmenter {
	r.vadMu.Lock()
	defer r.vadMu.Unlock()
	if r.vad == nil {
		r.vad = internal_vad.NewGate(r.logger, r.cfg.SileroModel)
	}
	return r.vad
}

// TTS returns the shared synthesizer. Callers check Configured() before
// relying on audio output.
func (r *Registry) TTS() *internal_tts.Piper {
	r.ttsMu.Lock()
	defer r.ttsMu.Unlock()
	if r.tts == nil {
		r.tts = internal_tts.NewPiper(r.logger, r.cfg.PiperBin, r.cfg.PiperVoice, r.UseCuda())
	}
	return r.tts
}

// LLM returns the shared chat/embeddings client.
func (r *Registry) LLM() *internal_llm.Client {
	r.llmMu.Lock()
	defer r.llmMu.Unlock()
	if r.llm == nil {
		r.llm = internal_llm.NewClient(
			r.logger,
			r.cfg.TogetherApiKey,
			r.cfg.TogetherBaseUrl,
			r.cfg.TogetherModel,
			r.cfg.EmbeddingsModel,
			time.Duration(r.cfg.TogetherTimeout)*time.Second,
		)
	}
	return r.llm
}

// Close releases model resources.
func (r *Registry) Close() {
	r.vadMu.Lock()
	defer r.vadMu.Unlock()
	if r.vad != nil {
		r.vad.Close()
		r.vad = nil
	}
}
