// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_script

import "testing"

func TestSanitizeReplyIdempotent(t *testing.T) {
	in := "<think>step one\nstep two</think>  Hello there"
	once := SanitizeReply(in)
	if once != "Hello there" {
		t.Errorf("expected reasoning stripped, got %q", once)
	}
	if SanitizeReply(once) != once {
		t.Error("sanitize is not idempotent")
	}
	if SanitizeReply("plain") != "plain" {
		t.Error("plain text should pass through")
	}
}

func TestParseSearchKBTag(t *testing.T) {
	q, ok := ParseSearchKBTag("ok [SEARCH_KB: 'refund policy']")
	if !ok || q != "refund policy" {
		t.Errorf("expected query extracted, got %q ok=%v", q, ok)
	}
	if _, ok := ParseSearchKBTag("no tag here"); ok {
		t.Error("expected no match")
	}
	// Multi-line queries are allowed.
	q, ok = ParseSearchKBTag("[SEARCH_KB: 'line one\nline two']")
	if !ok || q != "line one\nline two" {
		t.Errorf("expected multi-line query, got %q", q)
	}
}

func TestParseAPICallTag(t *testing.T) {
	call, ok := ParseAPICallTag(`[API_CALL: 'POST /x', {"a":1}]`)
	if !ok {
		t.Fatal("expected match")
	}
	if call.Method != "POST" || call.Path != "/x" {
		t.Errorf("expected POST /x, got %s %s", call.Method, call.Path)
	}
	if call.Payload["a"] != float64(1) {
		t.Errorf("expected payload a=1, got %v", call.Payload)
	}

	call, ok = ParseAPICallTag("[API_CALL: 'GET /api/orders/42']")
	if !ok {
		t.Fatal("expected match without payload")
	}
	if call.Method != "GET" || call.Path != "/api/orders/42" {
		t.Errorf("unexpected parse: %+v", call)
	}
	if len(call.Payload) != 0 {
		t.Errorf("expected empty payload, got %v", call.Payload)
	}

	// Malformed JSON degrades to an empty payload.
	call, ok = ParseAPICallTag(`[API_CALL: 'PUT /y', {"broken": }]`)
	if !ok {
		t.Fatal("expected match despite broken payload")
	}
	if len(call.Payload) != 0 {
		t.Errorf("expected empty payload for broken JSON, got %v", call.Payload)
	}

	if _, ok := ParseAPICallTag("nothing to see"); ok {
		t.Error("expected no match")
	}
	// Lowercase methods are not part of the protocol.
	if _, ok := ParseAPICallTag("[API_CALL: 'get /x']"); ok {
		t.Error("expected lowercase method to be rejected")
	}
}

func TestCleanTextForTTS(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"bold", "**bold** text", "bold text"},
		{"italic", "an *italic* word", "an italic word"},
		{"underscore bold", "__strong__ words", "strong words"},
		{"underscore italic", "_soft_ words", "soft words"},
		{"leading bullet", "* Your first name", "Your first name"},
		{"heading", "## Heading\nbody", "Heading body"},
		{"link", "[click here](http://example.com) now", "click here now"},
		{"inline code", "run `make` first", "run make first"},
		{"code fence", "before ```code block``` after", "before after"},
		{"whitespace collapse", "a\n\n\nb   c", "a b c"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		if got := CleanTextForTTS(tc.in); got != tc.want {
			t.Errorf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}
