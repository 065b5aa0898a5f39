// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_script

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rapidaai/voice-agent/pkg/commons"
)

// ApiEndpoint describes one developer-API operation exposed to the model.
type ApiEndpoint struct {
	Method      string                 `json:"method"`
	Path        string                 `json:"path"`
	Description string                 `json:"description"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
}

// RagContext lists the documents the model may ground on. Entries are either
// plain filename strings or {filename, doc_id} objects from newer frontends.
type RagContext struct {
	Enabled     bool              `json:"enabled"`
	Documents   []json.RawMessage `json:"documents"`
	Description string            `json:"description"`
}

// DocumentNames normalizes both document entry shapes into display names.
func (r *RagContext) DocumentNames() []string {
	names := make([]string, 0, len(r.Documents))
	for _, raw := range r.Documents {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			names = append(names, s)
			continue
		}
		var obj struct {
			Filename string `json:"filename"`
			DocID    string `json:"doc_id"`
		}
		if err := json.Unmarshal(raw, &obj); err == nil {
			if obj.Filename != "" {
				names = append(names, obj.Filename)
			} else if obj.DocID != "" {
				names = append(names, obj.DocID)
			}
		}
	}
	return names
}

// ScriptConfig is the on-disk prompt configuration. All prompt sections are
// optional; empty ones fall back to built-in defaults at assembly time.
type ScriptConfig struct {
	RagContext      RagContext    `json:"rag_context"`
	ApiEndpoints    []ApiEndpoint `json:"api_endpoints"`
	IntroText       string        `json:"intro_text,omitempty"`
	GroundingRules  string        `json:"grounding_rules,omitempty"`
	KbInstructions  string        `json:"kb_instructions,omitempty"`
	ApiInstructions string        `json:"api_instructions,omitempty"`
}

type cacheEntry struct {
	mtime  time.Time
	config *ScriptConfig
}

// Loader reads ScriptConfig from disk, cached by (path, mtime) so edits are
// picked up on the next read without any file watching.
type Loader struct {
	logger commons.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

func NewLoader(logger commons.Logger) *Loader {
	return &Loader{
		logger: logger,
		cache:  make(map[string]cacheEntry),
	}
}

// Load returns the config at path. A missing file yields an empty config so
// the agent works before setup has run.
func (l *Loader) Load(path string) (*ScriptConfig, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return &ScriptConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat script config: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, ok := l.cache[path]; ok && entry.mtime.Equal(info.ModTime()) {
		return entry.config, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script config: %w", err)
	}
	var cfg ScriptConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse script config %s: %w", path, err)
	}
	l.cache[path] = cacheEntry{mtime: info.ModTime(), config: &cfg}
	l.logger.Debugw("script config loaded", "path", path, "endpoints", len(cfg.ApiEndpoints), "documents", len(cfg.RagContext.Documents))
	return &cfg, nil
}

// Invalidate drops the cached entry so the next Load re-reads the file even
// when the mtime resolution hides a rapid rewrite.
func (l *Loader) Invalidate(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.cache, path)
}
