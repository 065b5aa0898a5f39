// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_reply

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	internal_script "github.com/rapidaai/voice-agent/internal/script"
	internal_turn "github.com/rapidaai/voice-agent/internal/turn"
	internal_type "github.com/rapidaai/voice-agent/internal/type"
	"github.com/rapidaai/voice-agent/pkg/commons"
)

// scriptedCompleter replays canned replies in order.
type scriptedCompleter struct {
	replies []string
	fail    bool
	calls   int
}

func (c *scriptedCompleter) Complete(_ context.Context, _ []internal_type.Message) (string, error) {
	if c.fail {
		return "", fmt.Errorf("model unavailable")
	}
	if c.calls >= len(c.replies) {
		return "", fmt.Errorf("unexpected extra completion call")
	}
	r := c.replies[c.calls]
	c.calls++
	return r, nil
}

type fakeSearcher struct {
	passages []internal_type.ScoredPassage
	query    string
}

func (f *fakeSearcher) Search(_ context.Context, _, query string) ([]internal_type.ScoredPassage, error) {
	f.query = query
	return f.passages, nil
}

type fakeCaller struct {
	method, path string
	payload      map[string]interface{}
}

func (f *fakeCaller) Call(_ context.Context, method, path string, payload map[string]interface{}) map[string]interface{} {
	f.method, f.path, f.payload = method, path, payload
	return map[string]interface{}{"ok": true, "status": 200}
}

type frameCollector struct {
	frames []map[string]interface{}
}

func (f *frameCollector) SendFrame(v interface{}) bool {
	f.frames = append(f.frames, v.(map[string]interface{}))
	return true
}

func newTestPipeline(t *testing.T, completer internal_type.Completer, searcher internal_type.KnowledgeSearcher, caller internal_type.ExternalCaller) (*Pipeline, *internal_turn.Session) {
	t.Helper()
	logger, err := commons.NewApplicationLogger()
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	dir := t.TempDir()
	assembler := internal_script.NewAssembler(logger, internal_script.NewLoader(logger),
		filepath.Join(dir, "script.json"), filepath.Join(dir, "simpleScript.txt"))
	p := NewPipeline(logger, assembler, completer, searcher, caller, nil, "default")
	m := internal_turn.NewManager(logger, t.TempDir(), nil, nil, nil)
	return p, m.Start("s1")
}

func TestPlainReply(t *testing.T) {
	completer := &scriptedCompleter{replies: []string{"<think>reasoning</think> Hello there!"}}
	p, session := newTestPipeline(t, completer, &fakeSearcher{}, &fakeCaller{})
	sender := &frameCollector{}

	p.Respond(context.Background(), sender, session, "hi", 0)

	if len(sender.frames) != 1 {
		t.Fatalf("expected one frame, got %d", len(sender.frames))
	}
	frame := sender.frames[0]
	if frame["type"] != "reply" || frame["reply"] != "Hello there!" {
		t.Errorf("unexpected reply frame: %v", frame)
	}
	if session.ProcessingActive() {
		t.Error("gate must be cleared when no audio follows")
	}
	hist := session.TrailingHistory(10)
	if len(hist) != 2 || hist[0].Content != "hi" || hist[1].Content != "Hello there!" {
		t.Errorf("unexpected history: %v", hist)
	}
	if session.TurnNumber() != 1 {
		t.Errorf("expected turn incremented, got %d", session.TurnNumber())
	}
}

func TestKBSearchDispatch(t *testing.T) {
	completer := &scriptedCompleter{replies: []string{
		"[SEARCH_KB: 'refund policy']",
		"According to our records, refunds are honored for 30 days.",
	}}
	searcher := &fakeSearcher{passages: []internal_type.ScoredPassage{
		{Content: strings.Repeat("policy text ", 30), SourcePath: "/docs/refunds.txt", Filename: "refunds.txt", Score: 0.87654},
	}}
	p, session := newTestPipeline(t, completer, searcher, &fakeCaller{})
	sender := &frameCollector{}

	p.Respond(context.Background(), sender, session, "what is the refund policy", 0)

	if searcher.query != "refund policy" {
		t.Errorf("expected reformulated query forwarded, got %q", searcher.query)
	}
	frame := sender.frames[0]
	reply := frame["reply"].(string)
	if strings.Contains(reply, "SEARCH_KB") {
		t.Error("tool tag must not leak into the final reply")
	}
	kb := frame["kb"].(map[string]interface{})
	if kb["query"] != "refund policy" {
		t.Errorf("unexpected kb query: %v", kb["query"])
	}
	sources := kb["sources"].([]map[string]interface{})
	if len(sources) != 1 {
		t.Fatalf("expected one source, got %d", len(sources))
	}
	if sources[0]["score"] != "0.8765" {
		t.Errorf("expected 4-decimal score, got %v", sources[0]["score"])
	}
	if preview := sources[0]["preview"].(string); len(preview) > 200 {
		t.Errorf("preview exceeds 200 chars: %d", len(preview))
	}
}

func TestAPICallDispatch(t *testing.T) {
	completer := &scriptedCompleter{replies: []string{
		"[API_CALL: 'GET /api/orders/42']",
		"Your order 42 is on its way!",
	}}
	caller := &fakeCaller{}
	p, session := newTestPipeline(t, completer, &fakeSearcher{}, caller)
	sender := &frameCollector{}

	p.Respond(context.Background(), sender, session, "where is my order", 0)

	if caller.method != "GET" || caller.path != "/orders/42" {
		t.Errorf("expected /api prefix stripped, got %s %s", caller.method, caller.path)
	}
	frame := sender.frames[0]
	if frame["reply"] != "Your order 42 is on its way!" {
		t.Errorf("unexpected reply: %v", frame["reply"])
	}
	api := frame["api"].(map[string]interface{})
	if api["path"] != "/orders/42" {
		t.Errorf("unexpected api info: %v", api)
	}
}

func TestModelFailureEmitsErrorAndRearms(t *testing.T) {
	completer := &scriptedCompleter{fail: true}
	p, session := newTestPipeline(t, completer, &fakeSearcher{}, &fakeCaller{})
	sender := &frameCollector{}

	p.Respond(context.Background(), sender, session, "hello", 0)

	if len(sender.frames) != 1 || sender.frames[0]["type"] != "error" {
		t.Fatalf("expected an error frame, got %v", sender.frames)
	}
	if session.ProcessingActive() {
		t.Error("gate must be cleared after a failed reply")
	}
}
