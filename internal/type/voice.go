// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_type

import "context"

// =============================================================================
// Conversation primitives
// =============================================================================

// Message is a single chat turn fed to or produced by the language model.
type Message struct {
	Role    string `json:"role"` // "system" | "user" | "assistant"
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// =============================================================================
// Turn pipeline states
// =============================================================================

// Per-chunk session states reported back to the client.
const (
	StateListening = "listening" // accumulating audio, no trailing silence yet
	StateRecording = "recording" // speech detected, silence window not reached
	StateSpeaking  = "speaking"  // half-duplex gate closed; input is dropped
)

// PushResult is the outcome of feeding one compressed audio chunk into a
// turn session.
type PushResult struct {
	OK           bool   `json:"ok"`
	Finalized    bool   `json:"finalized"`
	Transcript   string `json:"transcript,omitempty"`
	State        string `json:"state,omitempty"`
	Error        string `json:"error,omitempty"`
	SegmentIndex int    `json:"-"` // segment that was finalized (valid when Finalized)
}

// =============================================================================
// Voice activity detection
// =============================================================================

// SpeechSegment is one detected span of speech, in seconds from buffer start.
type SpeechSegment struct {
	StartAt float64 `json:"start"`
	EndAt   float64 `json:"end"`
}

// VADParams tunes segmentation per deployment (or per request on the
// offline-testing endpoints).
type VADParams struct {
	Threshold    float32
	MinSpeechMs  int
	MinSilenceMs int
}

// SpeechSegmenter detects speech spans over a mono float32 PCM buffer.
// Implementations keep no state between calls.
type SpeechSegmenter interface {
	Segments(ctx context.Context, pcm []float32, sampleRate int, params VADParams) ([]SpeechSegment, error)
}

// =============================================================================
// Media stages
// =============================================================================

// Transcoder converts a compressed browser container (webm/opus) into a
// 16 kHz mono signed 16-bit PCM WAV, entirely in memory. When header is
// non-nil and compressed does not already begin with it, the header is
// prepended so mid-stream fragments decode stand-alone.
type Transcoder interface {
	Transcode(ctx context.Context, compressed, header []byte) ([]byte, error)
}

// Transcriber converts WAV bytes to text.
type Transcriber interface {
	TranscribeWAV(ctx context.Context, wav []byte) (string, error)
	TranscribeFile(ctx context.Context, path string) (string, error)
}

// Synthesizer renders text to a WAV file at outPath.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, outPath string) error
}

// =============================================================================
// Language model & tools
// =============================================================================

// Completer produces a chat completion for the given messages. Implementations
// must tolerate long system prompts (>= 10 KiB).
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Embedder turns texts into embedding vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ScoredPassage is one knowledge-base hit.
type ScoredPassage struct {
	Content    string
	SourcePath string
	Filename   string
	Score      float64
}

// KnowledgeSearcher retrieves ranked passages for a query within a tenant.
type KnowledgeSearcher interface {
	Search(ctx context.Context, tenant, query string) ([]ScoredPassage, error)
}

// ExternalCaller invokes the configured developer API. It never returns an
// error: HTTP and network failures are folded into an {ok:false, error} map
// so the language model can render them.
type ExternalCaller interface {
	Call(ctx context.Context, method, path string, payload map[string]interface{}) map[string]interface{}
}

// =============================================================================
// Transport
// =============================================================================

// FrameSender delivers one JSON frame to the client. It reports false when
// the connection is gone; callers treat that as a terminating signal, not an
// error.
type FrameSender interface {
	SendFrame(v interface{}) bool
}
