// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package state_api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rapidaai/voice-agent/config"
	internal_script "github.com/rapidaai/voice-agent/internal/script"
	internal_type "github.com/rapidaai/voice-agent/internal/type"
	"github.com/rapidaai/voice-agent/pkg/commons"
	"github.com/rapidaai/voice-agent/pkg/utils"
)

const defaultTenant = "default"

// stateApi serves the text chat path and script introspection. It shares the
// prompt assembler and tool dispatch with the voice pipeline but carries no
// per-session state: the client sends its own history window.
type stateApi struct {
	cfg       *config.AppConfig
	logger    commons.Logger
	assembler *internal_script.Assembler
	completer internal_type.Completer
	searcher  internal_type.KnowledgeSearcher
	caller    internal_type.ExternalCaller
}

func NewStateApi(cfg *config.AppConfig, logger commons.Logger,
	assembler *internal_script.Assembler, completer internal_type.Completer,
	searcher internal_type.KnowledgeSearcher, caller internal_type.ExternalCaller) *stateApi {
	return &stateApi{
		cfg:       cfg,
		logger:    logger,
		assembler: assembler,
		completer: completer,
		searcher:  searcher,
		caller:    caller,
	}
}

// ScriptedChat answers one text turn against the scripted system prompt,
// resolving at most one tool tag.
//
// @Router /api/scripted_chat [post]
func (stApi *stateApi) ScriptedChat(c *gin.Context) {
	var payload struct {
		Content string                  `json:"content"`
		Turn    int                     `json:"turn"`
		History []internal_type.Message `json:"history"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "bad payload"})
		return
	}
	stApi.logger.Infof("scripted chat request, turn=%d", payload.Turn)

	system, err := stApi.assembler.SystemPrompt()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}

	messages := []internal_type.Message{{Role: internal_type.RoleSystem, Content: system}}
	history := payload.History
	if len(history) > 8 {
		history = history[len(history)-8:]
	}
	for _, h := range history {
		if (h.Role == internal_type.RoleUser || h.Role == internal_type.RoleAssistant) && h.Content != "" {
			messages = append(messages, h)
		}
	}
	messages = append(messages, internal_type.Message{Role: internal_type.RoleUser, Content: payload.Content})

	raw, err := stApi.completer.Complete(c.Request.Context(), messages)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	reply := internal_script.SanitizeReply(raw)

	if call, ok := internal_script.ParseAPICallTag(reply); ok {
		stApi.resolveAPICall(c, call)
		return
	}
	if query, ok := internal_script.ParseSearchKBTag(reply); ok {
		stApi.resolveKBSearch(c, query)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": reply})
}

func (stApi *stateApi) resolveAPICall(c *gin.Context, call *internal_script.APICall) {
	path := call.Path
	if strings.HasPrefix(path, "/api/") {
		path = path[len("/api"):]
	}
	stApi.logger.Infow("api call detected", "method", call.Method, "path", path)

	result := stApi.caller.Call(c.Request.Context(), call.Method, path, call.Payload)
	resultJSON, _ := json.Marshal(result)
	payloadJSON, _ := json.Marshal(call.Payload)

	format := fmt.Sprintf(
		"The API call was: %s %s. The API returned: %s. "+
			"Formulate a friendly, human response based on the API result.",
		call.Method, path, resultJSON)
	final, err := stApi.completer.Complete(c.Request.Context(), []internal_type.Message{
		{Role: internal_type.RoleSystem, Content: format},
		{Role: internal_type.RoleUser, Content: string(payloadJSON)},
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"reply": internal_script.SanitizeReply(final),
		"api":   gin.H{"method": call.Method, "path": path, "result": result},
	})
}

func (stApi *stateApi) resolveKBSearch(c *gin.Context, query string) {
	stApi.logger.Infow("kb search requested", "query", query)

	passages, err := stApi.searcher.Search(c.Request.Context(), defaultTenant, query)
	if err != nil {
		stApi.logger.Warnf("kb search failed: %v", err)
		passages = nil
	}
	var found strings.Builder
	for i, passage := range passages {
		if i > 0 {
			found.WriteString("\n")
		}
		found.WriteString(passage.Content)
	}

	format := fmt.Sprintf(
		"The user asked: '%s'. The knowledge base found: '%s'. "+
			"Formulate a friendly, human response based on the knowledge base information.",
		query, found.String())
	final, err := stApi.completer.Complete(c.Request.Context(), []internal_type.Message{
		{Role: internal_type.RoleSystem, Content: format},
		{Role: internal_type.RoleUser, Content: query},
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}

	sources := make([]gin.H, 0, len(passages))
	for _, passage := range passages {
		sources = append(sources, gin.H{
			"source_path": passage.SourcePath,
			"filename":    passage.Filename,
			"score":       fmt.Sprintf("%.4f", passage.Score),
			"preview":     utils.Truncate(passage.Content, 200),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"reply": internal_script.SanitizeReply(final),
		"kb":    gin.H{"query": query, "sources": sources},
	})
}

// State returns the (stateless) session snapshot.
//
// @Router /api/state [get]
func (stApi *stateApi) State(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{})
}

// History returns the full stored history; the text path keeps none.
//
// @Router /api/state/history [get]
func (stApi *stateApi) History(c *gin.Context) {
	c.JSON(http.StatusOK, []interface{}{})
}

// Script returns the current script config.
//
// @Router /api/state/script [get]
func (stApi *stateApi) Script(c *gin.Context) {
	cfg, err := stApi.assembler.Config()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// ReloadScript forces a config re-read.
//
// @Router /api/state/script/reload [post]
func (stApi *stateApi) ReloadScript(c *gin.Context) {
	cfg, err := stApi.assembler.Reload()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "script": cfg})
}

// Company returns the single supported tenant.
//
// @Router /api/state/company [get]
func (stApi *stateApi) Company(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"company_id": defaultTenant})
}
