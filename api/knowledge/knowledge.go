// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package knowledge_api

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rapidaai/voice-agent/config"
	internal_knowledge "github.com/rapidaai/voice-agent/internal/knowledge"
	internal_type "github.com/rapidaai/voice-agent/internal/type"
	"github.com/rapidaai/voice-agent/pkg/commons"
	"github.com/rapidaai/voice-agent/pkg/utils"
)

const defaultTenant = "default"

// knowledgeApi exposes direct knowledge-base access: bulk upload and a
// question endpoint that wraps retrieval in a persona-flavored completion.
type knowledgeApi struct {
	cfg       *config.AppConfig
	logger    commons.Logger
	store     *internal_knowledge.Store
	completer internal_type.Completer
}

func NewKnowledgeApi(cfg *config.AppConfig, logger commons.Logger,
	store *internal_knowledge.Store, completer internal_type.Completer) *knowledgeApi {
	return &knowledgeApi{cfg: cfg, logger: logger, store: store, completer: completer}
}

// Upload ingests documents into the default tenant's knowledge base.
//
// @Router /api/kb/upload [post]
func (kApi *knowledgeApi) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "bad multipart form"})
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "no files provided"})
		return
	}

	base := filepath.Join("storage", "company_"+defaultTenant, "raw")
	if err := os.MkdirAll(base, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}

	var saved []string
	var names []string
	for _, file := range files {
		if err := utils.ValidateUpload(file.Filename, file.Size); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
			return
		}
		name := utils.SanitizeFilename(file.Filename)
		path := filepath.Join(base, name)
		if err := c.SaveUploadedFile(file, path); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
			return
		}
		saved = append(saved, path)
		names = append(names, name)
	}

	chunks, err := kApi.store.Ingest(c.Request.Context(), defaultTenant, saved)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "documents": names, "chunks_added": chunks})
}

// Query retrieves passages and asks the model to answer in the configured
// persona and tone.
//
// @Router /api/kb/query [post]
func (kApi *knowledgeApi) Query(c *gin.Context) {
	var payload struct {
		Query   string `json:"query"`
		Persona string `json:"persona"`
		Tone    string `json:"tone"`
		OrgName string `json:"org_name"`
		About   string `json:"about_organization"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "bad payload"})
		return
	}

	passages, err := kApi.store.Search(c.Request.Context(), defaultTenant, payload.Query)
	if err != nil {
		kApi.logger.Warnf("kb query search failed: %v", err)
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
		"You are %s from %s. Use a %s voice. Organization about: %s. "+
			"The user asked: '%s'. The knowledge base found: '%s'. "+
			"Formulate a friendly response.",
		payload.Persona, payload.OrgName, payload.Tone, payload.About,
		payload.Query, found.String())
	reply, err := kApi.completer.Complete(c.Request.Context(), []internal_type.Message{
		{Role: internal_type.RoleSystem, Content: format},
		{Role: internal_type.RoleUser, Content: payload.Query},
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
		"reply": reply,
		"kb":    gin.H{"query": payload.Query, "sources": sources},
	})
}
