// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_script

import (
	"encoding/json"
	"regexp"
	"strings"
)

// The model's tool protocol is sentinel strings in its output. The sanitized
// reply is one of: plain text, a KB search request, or an API call request.
var (
	thinkRe    = regexp.MustCompile(`<think>[\s\S]*?</think>\s*`)
	searchKbRe = regexp.MustCompile(`\[SEARCH_KB:\s*'([\s\S]*?)'\s*\]`)
	apiCallRe  = regexp.MustCompile(`\[API_CALL:\s*'([A-Z]+)\s+([^']+)'\s*(?:,\s*(\{[\s\S]*?\}))?\s*\]`)

	boldRe       = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicRe     = regexp.MustCompile(`\*([^*]+)\*`)
	underBoldRe  = regexp.MustCompile(`__([^_]+)__`)
	underItalRe  = regexp.MustCompile(`_([^_]+)_`)
	leadBulletRe = regexp.MustCompile(`(?m)^\s*\*\s+`)
	midBulletRe  = regexp.MustCompile(`\s*\*\s+`)
	headingRe    = regexp.MustCompile(`(?m)^#+\s+`)
	linkRe       = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	codeFenceRe  = regexp.MustCompile("```[^`]*```")
	inlineCodeRe = regexp.MustCompile("`([^`]+)`")
	newlinesRe   = regexp.MustCompile(`\n+`)
	spacesRe     = regexp.MustCompile(`\s+`)
)

// SanitizeReply removes <think>…</think> reasoning spans and trims. It is
// idempotent.
func SanitizeReply(text string) string {
	return strings.TrimSpace(thinkRe.ReplaceAllString(text, ""))
}

// ParseSearchKBTag extracts the query from a [SEARCH_KB: 'query'] tag.
func ParseSearchKBTag(text string) (query string, ok bool) {
	m := searchKbRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// APICall is a parsed [API_CALL: 'METHOD /path', {json}] tag.
type APICall struct {
	Method  string
	Path    string
	Payload map[string]interface{}
}

// ParseAPICallTag extracts an API call request. The JSON payload is optional;
// malformed JSON degrades to an empty payload rather than failing the call.
func ParseAPICallTag(text string) (*APICall, bool) {
	m := apiCallRe.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	call := &APICall{
		Method:  strings.TrimSpace(m[1]),
		Path:    strings.TrimSpace(m[2]),
		Payload: map[string]interface{}{},
	}
	if m[3] != "" {
		if err := json.Unmarshal([]byte(m[3]), &call.Payload); err != nil {
			call.Payload = map[string]interface{}{}
		}
	}
	return call, true
}

// CleanTextForTTS strips markdown the synthesizer would otherwise read aloud
// and collapses all whitespace to single spaces.
func CleanTextForTTS(text string) string {
	if text == "" {
		return text
	}
	text = boldRe.ReplaceAllString(text, "$1")
	text = italicRe.ReplaceAllString(text, "$1")
	text = underBoldRe.ReplaceAllString(text, "$1")
	text = underItalRe.ReplaceAllString(text, "$1")

	text = leadBulletRe.ReplaceAllString(text, "")
	text = midBulletRe.ReplaceAllString(text, " ")

	text = headingRe.ReplaceAllString(text, "")
	text = linkRe.ReplaceAllString(text, "$1")

	text = codeFenceRe.ReplaceAllString(text, "")
	text = inlineCodeRe.ReplaceAllString(text, "$1")

	text = newlinesRe.ReplaceAllString(text, " ")
	text = spacesRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
