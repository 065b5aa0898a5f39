// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_tts

import (
	"bytes"
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

// Timeout bounds one synthesis run.
const Timeout = 120 * time.Second

// Piper renders text to speech via the piper binary, text on stdin and a WAV
// file as output.
type Piper struct {
	logger    commons.Logger
	bin       string
	voicePath string
	useCuda   bool
}

var _ internal_type.Synthesizer = (*Piper)(nil)

func NewPiper(logger commons.Logger, bin, voicePath string, useCuda bool) *Piper {
	return &Piper{
		logger:    logger,
		bin:       bin,
		voicePath: voicePath,
		useCuda:   useCuda,
	}
}

// Configured reports whether a voice model is set. Synthesis is optional:
// without a voice the reply pipeline skips audio and stays text-only.
func (p *Piper) Configured() bool {
	return p.voicePath != ""
}

// Synthesize renders text into a WAV file at outPath.
func (p *Piper) Synthesize(ctx context.Context, text, outPath string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("nothing to synthesize")
	}
	if !p.Configured() {
		return fmt.Errorf("no voice model configured")
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	args := []string{"--model", p.voicePath, "--output_file", outPath}
	if p.useCuda {
		args = append(args, "--cuda")
	}

	started := time.Now()
	cmd := exec.CommandContext(ctx, p.bin, args...)
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("piper timed out after %s", Timeout)
		}
		tail := stderr.Bytes()
		if len(tail) > 500 {
			tail = tail[len(tail)-500:]
		}
		return fmt.Errorf("piper failed: %w (stderr: %s)", err, tail)
	}

	info, err := os.Stat(outPath)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("piper produced no audio at %s", outPath)
	}
	p.logger.Debugw("synthesis complete",
		"file", filepath.Base(outPath),
		"bytes", info.Size(),
		"took", time.Since(started).String())
	return nil
}
