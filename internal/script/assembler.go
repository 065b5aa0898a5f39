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
	"strings"

	"github.com/rapidaai/voice-agent/pkg/commons"
)

// Prompt section defaults, used when the script config leaves them blank.
const (
	defaultIntro = "You are a HUMAN assistant. Greet the user once, then proceed with concise, clear answers."

	defaultGrounding = "\nGrounding Rules:\n" +
		"- Only use information from the RAW SCRIPT and the listed documents.\n" +
		"- Do not invent facts; if not covered, respond: 'I don't have that information yet.' and ask a brief clarifying question.\n" +
		"- When you need the knowledge base, respond only with [SEARCH_KB: 'reformulated question'].\n" +
		"- After using the KB, answer briefly.\n" +
		"- No special formatting; keep responses under two short paragraphs.\n"

	defaultKbInstructions = "\nKnowledge Base Search Instructions:\n" +
		"- If the user's question is not covered by the script, respond only with: [SEARCH_KB: 'reformulated question']\n" +
		"- Example: [SEARCH_KB: 'refund policy']\n" +
		"- Do not include any other text with [SEARCH_KB]."

	defaultApiInstructions = "\nAPI Call Instructions:\n" +
		"- To use an API, respond only with: [API_CALL: 'METHOD /path', {payload}]\n" +
		"- Examples:\n" +
		"  [API_CALL: 'GET /api/ping']\n" +
		"- Do not include other text with [API_CALL]."

	rawDelimiter = "\n--RAW\n"
)

// Assembler composes the system prompt from the mtime-cached script config
// and the raw script text file.
type Assembler struct {
	logger        commons.Logger
	loader        *Loader
	configPath    string
	rawScriptPath string
}

func NewAssembler(logger commons.Logger, loader *Loader, configPath, rawScriptPath string) *Assembler {
	return &Assembler{
		logger:        logger,
		loader:        loader,
		configPath:    configPath,
		rawScriptPath: rawScriptPath,
	}
}

// Config returns the current script config (hot-reloaded by mtime).
func (a *Assembler) Config() (*ScriptConfig, error) {
	return a.loader.Load(a.configPath)
}

// Reload drops the cache and re-reads the config.
func (a *Assembler) Reload() (*ScriptConfig, error) {
	a.loader.Invalidate(a.configPath)
	return a.loader.Load(a.configPath)
}

// SystemPrompt builds the full system prompt: intro, document list, endpoint
// catalogue with payload schemas, grounding and tool instructions, then the
// raw script after a --RAW delimiter.
func (a *Assembler) SystemPrompt() (string, error) {
	cfg, err := a.Config()
	if err != nil {
		return "", err
	}

	raw, err := os.ReadFile(a.rawScriptPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("read raw script: %w", err)
		}
		a.logger.Warnf("raw script not found at %s", a.rawScriptPath)
	}

	var b strings.Builder
	intro := cfg.IntroText
	if intro == "" {
		intro = defaultIntro
	}
	b.WriteString(intro)
	b.WriteString(documentsSection(cfg))
	b.WriteString(endpointsSection(cfg))

	if cfg.GroundingRules != "" {
		b.WriteString(cfg.GroundingRules)
	} else {
		b.WriteString(defaultGrounding)
	}
	if cfg.KbInstructions != "" {
		b.WriteString(cfg.KbInstructions)
	} else {
		b.WriteString(defaultKbInstructions)
	}
	if cfg.ApiInstructions != "" {
		b.WriteString(cfg.ApiInstructions)
	} else {
		b.WriteString(defaultApiInstructions)
	}

	b.WriteString(rawDelimiter)
	b.Write(raw)
	return b.String(), nil
}

func documentsSection(cfg *ScriptConfig) string {
	names := cfg.RagContext.DocumentNames()
	if len(names) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nDocuments available:")
	for _, name := range names {
		b.WriteString("\n- ")
		b.WriteString(name)
	}
	return b.String()
}

func endpointsSection(cfg *ScriptConfig) string {
	if len(cfg.ApiEndpoints) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nAPI endpoints available:")
	for _, e := range cfg.ApiEndpoints {
		method := e.Method
		if method == "" {
			method = "GET"
		}
		b.WriteString(fmt.Sprintf("\n- %s %s: %s", method, e.Path, e.Description))
		if len(e.Payload) > 0 {
			schema, err := json.MarshalIndent(e.Payload, "", "  ")
			if err == nil {
				b.WriteString("\n  Payload schema:\n")
				b.Write(schema)
			}
		}
	}
	return b.String()
}
