// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_turn

import (
	"context"
	"sync"

	internal_type "github.com/rapidaai/voice-agent/internal/type"
	"github.com/rapidaai/voice-agent/pkg/commons"
)

// Manager is the session registry. Sessions are created when a signaling
// channel opens and deliberately outlive the connection so a client that
// drops and redials the same session id picks up its header and history.
type Manager struct {
	logger      commons.Logger
	baseDir     string
	transcoder  internal_type.Transcoder
	segmenter   internal_type.SpeechSegmenter
	transcriber internal_type.Transcriber

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(logger commons.Logger, baseDir string,
	transcoder internal_type.Transcoder, segmenter internal_type.SpeechSegmenter, transcriber internal_type.Transcriber) *Manager {
	return &Manager{
		logger:      logger,
		baseDir:     baseDir,
		transcoder:  transcoder,
		segmenter:   segmenter,
		transcriber: transcriber,
		sessions:    make(map[string]*Session),
	}
}

// Start returns the session for sid, creating it if needed.
func (m *Manager) Start(sid string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sid]; ok {
		return s
	}
	s := newSession(m.logger, sid, m.baseDir, m.transcoder, m.segmenter, m.transcriber)
	m.sessions[sid] = s
	m.logger.Infow("session started", "session", sid, "dir", s.Dir)
	return s
}

// Get returns the session for sid, or nil.
func (m *Manager) Get(sid string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[sid]
}

// PushChunk routes one chunk to its session.
func (m *Manager) PushChunk(ctx context.Context, sid string, data []byte, params internal_type.VADParams) internal_type.PushResult {
	s := m.Get(sid)
	if s == nil {
		return internal_type.PushResult{OK: false, Error: "invalid session"}
	}
	return s.PushChunk(ctx, data, params)
}

// ClearProcessingFlag re-arms the session for new audio.
func (m *Manager) ClearProcessingFlag(sid string) {
	if s := m.Get(sid); s != nil {
		s.ClearProcessingFlag()
	}
}

// Remove drops the session from the registry. Archival files stay on disk.
func (m *Manager) Remove(sid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sid)
}
