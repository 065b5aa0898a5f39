// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_script

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rapidaai/voice-agent/pkg/commons"
)

func newTestAssembler(t *testing.T, configJSON, rawScript string) *Assembler {
	t.Helper()
	logger, err := commons.NewApplicationLogger()
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	dir := t.TempDir()
	configPath := filepath.Join(dir, "script.json")
	rawPath := filepath.Join(dir, "simpleScript.txt")
	if configJSON != "" {
		if err := os.WriteFile(configPath, []byte(configJSON), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
	}
	if rawScript != "" {
		if err := os.WriteFile(rawPath, []byte(rawScript), 0o644); err != nil {
			t.Fatalf("write raw script: %v", err)
		}
	}
	return NewAssembler(logger, NewLoader(logger), configPath, rawPath)
}

func TestSystemPromptDefaults(t *testing.T) {
	a := newTestAssembler(t, "", "Agent greeting script.")
	prompt, err := a.SystemPrompt()
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if !strings.HasPrefix(prompt, "You are a HUMAN assistant.") {
		t.Error("expected default intro")
	}
	for _, want := range []string{"Grounding Rules:", "[SEARCH_KB:", "[API_CALL:", "--RAW\nAgent greeting script."} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, "Documents available:") {
		t.Error("no documents configured, section should be absent")
	}
}

func TestSystemPromptSections(t *testing.T) {
	config := `{
		"rag_context": {"enabled": true, "documents": ["faq.pdf", {"filename": "policy.txt", "doc_id": "d1"}]},
		"api_endpoints": [
			{"method": "POST", "path": "/api/orders", "description": "Create order", "payload": {"item": "string"}},
			{"path": "/api/ping", "description": "Health check"}
		],
		"intro_text": "Custom intro."
	}`
	a := newTestAssembler(t, config, "raw body")
	prompt, err := a.SystemPrompt()
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if !strings.HasPrefix(prompt, "Custom intro.") {
		t.Error("expected custom intro to replace default")
	}
	for _, want := range []string{
		"Documents available:",
		"- faq.pdf",
		"- policy.txt",
		"API endpoints available:",
		"- POST /api/orders: Create order",
		"Payload schema:",
		`"item": "string"`,
		"- GET /api/ping: Health check", // method defaults to GET
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestLoaderMtimeCache(t *testing.T) {
	a := newTestAssembler(t, `{"intro_text": "v1"}`, "")
	p1, err := a.SystemPrompt()
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if !strings.HasPrefix(p1, "v1") {
		t.Fatal("expected first version")
	}

	// Rewrite with a bumped mtime; the next load must see the new content.
	if err := os.WriteFile(a.configPath, []byte(`{"intro_text": "v2"}`), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(a.configPath, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	p2, err := a.SystemPrompt()
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if !strings.HasPrefix(p2, "v2") {
		t.Error("expected mtime change to invalidate the cache")
	}

	// Explicit reload also invalidates.
	if _, err := a.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
}

func TestMissingConfigYieldsEmpty(t *testing.T) {
	a := newTestAssembler(t, "", "")
	cfg, err := a.Config()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.ApiEndpoints) != 0 || len(cfg.RagContext.Documents) != 0 {
		t.Error("expected empty config for missing file")
	}
}
