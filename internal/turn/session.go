// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_turn

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	internal_audio "github.com/rapidaai/voice-agent/internal/audio"
	internal_transcode "github.com/rapidaai/voice-agent/internal/transcode"
	internal_type "github.com/rapidaai/voice-agent/internal/type"
	"github.com/rapidaai/voice-agent/pkg/commons"
)

const (
	// minChunksBeforeCheck avoids silence checks on the first chunk after a
	// segment advance, when the buffer holds almost nothing.
	minChunksBeforeCheck = 2

	// checkEveryChunks and checkInterval set the silence-check cadence.
	checkEveryChunks = 4
	checkInterval    = 500 * time.Millisecond

	// convertInterval and convertMinBytes throttle transcoder invocations.
	convertInterval = 300 * time.Millisecond
	convertMinBytes = 500

	// minNewAudio skips VAD until the decoded buffer has grown enough to
	// change the silence verdict.
	minNewAudio = 0.5

	// historyLimit caps the conversation window fed to the language model.
	historyLimit = 20
)

// Session is the per-connection turn state machine: it accumulates compressed
// audio, periodically transcodes and runs VAD, and finalizes a transcript once
// trailing silence exceeds the configured window.
//
// A session is driven by a single chunk worker; the mutex exists for the
// fields the reply pipeline and HTTP handlers also touch.
type Session struct {
	logger      commons.Logger
	transcoder  internal_type.Transcoder
	segmenter   internal_type.SpeechSegmenter
	transcriber internal_type.Transcriber

	SID string
	Dir string

	mu               sync.Mutex
	segmentIndex     int
	compressedBuffer []byte
	compressedHeader []byte
	pcmBytes         []byte
	pcmAudio         []float32
	chunkCount       int
	lastDurationS    float64
	lastConversionTS time.Time
	segmentStartTS   time.Time
	processingActive bool
	history          []internal_type.Message
	turnNumber       int
	transcript       string
	finalized        bool
	replyAudioPath   string

	// conversionMu serializes transcodes; contenders skip the cycle instead
	// of queueing behind a running ffmpeg.
	conversionMu sync.Mutex
}

func newSession(logger commons.Logger, sid, baseDir string,
	transcoder internal_type.Transcoder, segmenter internal_type.SpeechSegmenter, transcriber internal_type.Transcriber) *Session {
	dir := filepath.Join(baseDir, sid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Warnf("create session dir %s: %v", dir, err)
	}
	return &Session{
		logger:         logger,
		transcoder:     transcoder,
		segmenter:      segmenter,
		transcriber:    transcriber,
		SID:            sid,
		Dir:            dir,
		segmentStartTS: time.Now(),
	}
}

// ============================================================================
// Half-duplex gate
// ============================================================================

// ProcessingActive reports whether the session is in its speaking phase.
func (s *Session) ProcessingActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processingActive
}

// ClearProcessingFlag re-arms the session for new audio. Called when the
// client reports playback done, or when a reply attempt ends without audio.
func (s *Session) ClearProcessingFlag() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processingActive {
		s.processingActive = false
		s.logger.Debugf("session %s re-armed for input", s.SID)
	}
}

// ============================================================================
// Conversation state
// ============================================================================

// AppendHistory records a conversation turn, truncating head-first beyond
// the history cap.
func (s *Session) AppendHistory(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, internal_type.Message{Role: role, Content: content})
	if over := len(s.history) - historyLimit; over > 0 {
		s.history = append([]internal_type.Message(nil), s.history[over:]...)
	}
}

// TrailingHistory returns a copy of the last n conversation messages.
func (s *Session) TrailingHistory(n int) []internal_type.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := len(s.history) - n
	if start < 0 {
		start = 0
	}
	out := make([]internal_type.Message, len(s.history)-start)
	copy(out, s.history[start:])
	return out
}

// IncrementTurn bumps the turn counter and returns the new value.
func (s *Session) IncrementTurn() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turnNumber++
	return s.turnNumber
}

// TurnNumber returns the count of completed turns.
func (s *Session) TurnNumber() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnNumber
}

// SetReplyAudioPath records where the latest synthesized reply lives.
func (s *Session) SetReplyAudioPath(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replyAudioPath = path
}

// ReplyAudioPath returns the latest reply WAV path, or empty.
func (s *Session) ReplyAudioPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replyAudioPath
}

// ============================================================================
// Chunk ingestion
// ============================================================================

// PushChunk feeds one compressed audio chunk through the state machine and
// reports the session's audible state back to the client.
func (s *Session) PushChunk(ctx context.Context, data []byte, params internal_type.VADParams) internal_type.PushResult {
	s.mu.Lock()

	// Half-duplex: while the agent is speaking, input is dropped before it
	// can reach the buffer or the recognizer.
	if s.processingActive {
		s.mu.Unlock()
		return internal_type.PushResult{OK: true, State: internal_type.StateSpeaking}
	}

	s.appendChunkLocked(data)

	if s.chunkCount < minChunksBeforeCheck {
		s.mu.Unlock()
		return internal_type.PushResult{OK: true, State: internal_type.StateListening}
	}

	sinceLast := time.Since(s.segmentStartTS)
	if !s.lastConversionTS.IsZero() {
		sinceLast = time.Since(s.lastConversionTS)
	}
	if s.chunkCount%checkEveryChunks != 0 && sinceLast < checkInterval {
		s.mu.Unlock()
		return internal_type.PushResult{OK: true, State: internal_type.StateListening}
	}
	s.mu.Unlock()

	if !s.convertToPCM(ctx) {
		return internal_type.PushResult{OK: true, State: internal_type.StateListening}
	}

	s.mu.Lock()
	pcm := s.pcmAudio
	duration := internal_audio.Duration(pcm, internal_audio.InternalSampleRate)
	if duration-s.lastDurationS < minNewAudio {
		s.mu.Unlock()
		return internal_type.PushResult{OK: true, State: internal_type.StateListening}
	}
	s.lastDurationS = duration
	s.mu.Unlock()

	segs, err := s.segmenter.Segments(ctx, pcm, internal_audio.InternalSampleRate, params)
	if err != nil {
		s.logger.Warnf("session %s: vad failed: %v", s.SID, err)
		return internal_type.PushResult{OK: true, State: internal_type.StateListening}
	}
	if len(segs) == 0 {
		return internal_type.PushResult{OK: true, State: internal_type.StateListening}
	}

	lastEnd := 0.0
	for _, seg := range segs {
		if seg.EndAt > lastEnd {
			lastEnd = seg.EndAt
		}
	}
	silence := duration - lastEnd
	if silence < 0 {
		silence = 0
	}

	minSilence := float64(params.MinSilenceMs) / 1000.0
	if silence < minSilence {
		state := internal_type.StateListening
		if duration-lastEnd < minSilence {
			state = internal_type.StateRecording
		}
		return internal_type.PushResult{OK: true, State: state}
	}

	return s.finalize(ctx)
}

// appendChunkLocked archives the chunk and grows the in-memory buffer. The
// first chunk that opens with the container magic is kept as the header for
// every later segment of this session.
func (s *Session) appendChunkLocked(data []byte) {
	path := filepath.Join(s.Dir, fmt.Sprintf("segment_%d.webm", s.segmentIndex))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err == nil {
		if _, err := f.Write(data); err != nil {
			s.logger.Warnf("session %s: archive chunk: %v", s.SID, err)
		}
		f.Close()
	} else {
		s.logger.Warnf("session %s: open archive file: %v", s.SID, err)
	}

	if s.compressedHeader == nil {
		if header := internal_transcode.CaptureHeader(data); header != nil {
			s.compressedHeader = header
			s.logger.Debugf("session %s: captured container header (%d bytes)", s.SID, len(header))
		}
	}
	s.compressedBuffer = append(s.compressedBuffer, data...)
	s.chunkCount++
}

// convertToPCM runs the throttled transcode and refreshes pcmBytes/pcmAudio.
// Returns false when the cycle is skipped or the transcode fails; the caller
// keeps buffering either way.
func (s *Session) convertToPCM(ctx context.Context) bool {
	if !s.conversionMu.TryLock() {
		s.logger.Debugf("session %s: transcode in progress, skipping", s.SID)
		return false
	}
	defer s.conversionMu.Unlock()

	s.mu.Lock()
	if !s.lastConversionTS.IsZero() && time.Since(s.lastConversionTS) < convertInterval {
		s.mu.Unlock()
		return false
	}
	if len(s.compressedBuffer) < convertMinBytes {
		s.mu.Unlock()
		return false
	}
	compressed := append([]byte(nil), s.compressedBuffer...)
	header := s.compressedHeader
	segIndex := s.segmentIndex
	s.mu.Unlock()

	wav, err := s.transcoder.Transcode(ctx, compressed, header)
	if err != nil {
		s.logger.Warnf("session %s: transcode failed: %v", s.SID, err)
		return false
	}
	samples, sr, err := internal_audio.DecodeWAV(wav)
	if err != nil || sr != internal_audio.InternalSampleRate {
		s.logger.Warnf("session %s: decode wav failed (sr=%d): %v", s.SID, sr, err)
		return false
	}

	wavPath := filepath.Join(s.Dir, fmt.Sprintf("segment_%d.wav", segIndex))
	if err := os.WriteFile(wavPath, wav, 0o644); err != nil {
		s.logger.Warnf("session %s: archive wav: %v", s.SID, err)
	}

	s.mu.Lock()
	s.pcmBytes = wav
	s.pcmAudio = samples
	s.lastConversionTS = time.Now()
	s.mu.Unlock()
	return true
}

// finalize closes the gate, transcribes the segment, and advances. The gate
// is raised before transcription starts so that every chunk arriving during
// ASR and the reply that follows is dropped, not echoed back into the model.
func (s *Session) finalize(ctx context.Context) internal_type.PushResult {
	s.mu.Lock()
	s.processingActive = true
	wav := s.pcmBytes
	segIndex := s.segmentIndex
	s.mu.Unlock()

	var transcript string
	var asrErr error
	if len(wav) == 0 {
		asrErr = fmt.Errorf("no audio available")
	} else {
		transcript, asrErr = s.transcriber.TranscribeWAV(ctx, wav)
	}
	if asrErr != nil {
		s.logger.Errorf("session %s: transcription failed: %v", s.SID, asrErr)
	}

	s.mu.Lock()
	s.transcript = transcript
	s.finalized = true
	s.mu.Unlock()

	s.advanceSegment()

	res := internal_type.PushResult{
		OK:           true,
		Finalized:    true,
		Transcript:   transcript,
		State:        internal_type.StateSpeaking,
		SegmentIndex: segIndex,
	}
	if asrErr != nil {
		res.Error = "transcription failed"
	}
	s.logger.Infow("segment finalized",
		"session", s.SID,
		"segment", segIndex,
		"transcriptChars", len(transcript))
	return res
}

// advanceSegment archives the finished segment and resets per-segment state.
// The captured container header survives: later segments never re-send one.
func (s *Session) advanceSegment() {
	s.conversionMu.Lock()
	defer s.conversionMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.segmentIndex
	copyFile := func(src, dst string) {
		data, err := os.ReadFile(src)
		if err != nil {
			return
		}
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			s.logger.Warnf("session %s: archive %s: %v", s.SID, dst, err)
		}
	}
	webm := filepath.Join(s.Dir, fmt.Sprintf("segment_%d.webm", old))
	wav := filepath.Join(s.Dir, fmt.Sprintf("segment_%d.wav", old))
	copyFile(webm, filepath.Join(s.Dir, fmt.Sprintf("segment_%d_final.webm", old)))
	copyFile(wav, filepath.Join(s.Dir, fmt.Sprintf("segment_%d_final.wav", old)))
	if s.transcript != "" {
		path := filepath.Join(s.Dir, fmt.Sprintf("segment_%d_transcript.txt", old))
		if err := os.WriteFile(path, []byte(s.transcript), 0o644); err != nil {
			s.logger.Warnf("session %s: archive transcript: %v", s.SID, err)
		}
	}

	s.segmentIndex++
	s.compressedBuffer = nil
	s.pcmBytes = nil
	s.pcmAudio = nil
	s.chunkCount = 0
	s.lastDurationS = 0
	s.lastConversionTS = time.Time{}
	s.segmentStartTS = time.Now()
	s.transcript = ""
	s.finalized = false

	s.logger.Debugf("session %s: advanced segment %d -> %d", s.SID, old, s.segmentIndex)
}

// SegmentIndex returns the current segment number.
func (s *Session) SegmentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.segmentIndex
}
