// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_asr

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	internal_type "github.com/rapidaai/voice-agent/internal/type"
	"github.com/rapidaai/voice-agent/pkg/commons"
)

// Timeout bounds one whisper invocation. Model load dominates on first run;
// five minutes covers CPU-only hosts with the larger ggml models.
const Timeout = 300 * time.Second

// Whisper transcribes WAV audio by shelling out to whisper-cli. The binary
// writes a .txt sidecar next to the input file; that sidecar is the result.
type Whisper struct {
	logger    commons.Logger
	bin       string
	modelPath string
	useCuda   bool
}

var _ internal_type.Transcriber = (*Whisper)(nil)

func NewWhisper(logger commons.Logger, bin, modelPath string, useCuda bool) *Whisper {
	return &Whisper{
		logger:    logger,
		bin:       bin,
		modelPath: modelPath,
		useCuda:   useCuda,
	}
}

// TranscribeWAV writes wav to a temp file and transcribes it.
func (w *Whisper) TranscribeWAV(ctx context.Context, wav []byte) (string, error) {
	tmp, err := os.CreateTemp("", "asr-*.wav")
	if err != nil {
		return "", fmt.Errorf("create temp wav: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(wav); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write temp wav: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp wav: %w", err)
	}
	defer os.Remove(tmpPath + ".txt")
	return w.TranscribeFile(ctx, tmpPath)
}

// TranscribeFile transcribes the WAV at path. The .txt sidecar whisper-cli
// produces is left next to the input so callers can archive it.
func (w *Whisper) TranscribeFile(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	// -of takes the output basename; passing the input path yields a
	// "<input>.txt" sidecar.
	args := []string{
		"-m", w.modelPath,
		"-f", path,
		"-otxt",
		"-of", path,
	}
	if !w.useCuda {
		args = append(args, "-ng")
	}

	started := time.Now()
	cmd := exec.CommandContext(ctx, w.bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("whisper timed out after %s", Timeout)
		}
		tail := out
		if len(tail) > 500 {
			tail = tail[len(tail)-500:]
		}
		return "", fmt.Errorf("whisper failed: %w (output: %s)", err, tail)
	}

	text, err := os.ReadFile(path + ".txt")
	if err != nil {
		return "", fmt.Errorf("read transcript sidecar: %w", err)
	}
	transcript := strings.TrimSpace(string(text))
	w.logger.Debugw("transcription complete",
		"file", filepath.Base(path),
		"chars", len(transcript),
		"took", time.Since(started).String())
	return transcript, nil
}
