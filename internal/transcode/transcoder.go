// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_transcode

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	internal_type "github.com/rapidaai/voice-agent/internal/type"
	"github.com/rapidaai/voice-agent/pkg/commons"
)

const (
	// Timeout bounds a single ffmpeg invocation. A 5 s cap is generous for
	// the few hundred KB a segment accumulates between silence checks.
	Timeout = 5 * time.Second

	// MaxHeaderBytes bounds the captured container header. 8 KiB covers the
	// EBML header plus initial segment info browsers emit.
	MaxHeaderBytes = 8192
)

// ebmlMagic opens every webm/matroska stream (0x1A45DFA3).
var ebmlMagic = []byte{0x1A, 0x45, 0xDF, 0xA3}

// HasContainerHeader reports whether data begins with the EBML magic, i.e.
// is the start of a stand-alone decodable webm stream.
func HasContainerHeader(data []byte) bool {
	return bytes.HasPrefix(data, ebmlMagic)
}

// CaptureHeader returns the first MaxHeaderBytes of a chunk that begins with
// the container magic, or nil. Sessions keep this and prepend it to re-cut
// buffers: mid-stream fragments from MediaRecorder lack the initial segment
// header and are undecodable without it.
func CaptureHeader(data []byte) []byte {
	if !HasContainerHeader(data) {
		return nil
	}
	n := len(data)
	if n > MaxHeaderBytes {
		n = MaxHeaderBytes
	}
	header := make([]byte, n)
	copy(header, data[:n])
	return header
}

// Transcoder shells out to ffmpeg, reading the compressed container from
// stdin and writing 16 kHz mono PCM16 WAV to stdout. No files are touched.
type Transcoder struct {
	logger    commons.Logger
	ffmpegBin string
	inFormat  string
}

var _ internal_type.Transcoder = (*Transcoder)(nil)

func NewTranscoder(logger commons.Logger, ffmpegBin string) *Transcoder {
	return &Transcoder{
		logger:    logger,
		ffmpegBin: ffmpegBin,
		inFormat:  "webm",
	}
}

// Transcode converts compressed audio to WAV bytes. When header is non-nil
// and compressed does not already begin with it, header is prepended first.
func (t *Transcoder) Transcode(ctx context.Context, compressed, header []byte) ([]byte, error) {
	if len(compressed) == 0 {
		return nil, fmt.Errorf("empty compressed buffer")
	}

	input := compressed
	if len(header) > 0 && !bytes.HasPrefix(compressed, header) {
		input = make([]byte, 0, len(header)+len(compressed))
		input = append(input, header...)
		input = append(input, compressed...)
		t.logger.Debugw("prepended container header", "headerBytes", len(header), "totalBytes", len(input))
	}

	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	// -err_detect ignore_err keeps ffmpeg decoding partially-written
	// container fragments instead of bailing on the first bad element.
	cmd := exec.CommandContext(ctx, t.ffmpegBin,
		"-y",
		"-err_detect", "ignore_err",
		"-f", t.inFormat,
		"-i", "pipe:0",
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		"-f", "wav",
		"pipe:1",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("ffmpeg timed out after %s", Timeout)
		}
		tail := stderr.Bytes()
		if len(tail) > 500 {
			tail = tail[len(tail)-500:]
		}
		return nil, fmt.Errorf("ffmpeg failed: %w (stderr: %s)", err, tail)
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output")
	}
	return stdout.Bytes(), nil
}
