// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package setup_api

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rapidaai/voice-agent/config"
	internal_knowledge "github.com/rapidaai/voice-agent/internal/knowledge"
	internal_script "github.com/rapidaai/voice-agent/internal/script"
	"github.com/rapidaai/voice-agent/pkg/commons"
	"github.com/rapidaai/voice-agent/pkg/utils"
)

const defaultTenant = "default"

// setupApi persists the agent configuration: the raw conversation script,
// the document corpus, and the developer-API endpoint catalogue.
type setupApi struct {
	cfg    *config.AppConfig
	logger commons.Logger
	store  *internal_knowledge.Store
	loader *internal_script.Loader
}

func NewSetupApi(cfg *config.AppConfig, logger commons.Logger,
	store *internal_knowledge.Store, loader *internal_script.Loader) *setupApi {
	return &setupApi{cfg: cfg, logger: logger, store: store, loader: loader}
}

func (sApi *setupApi) loadConfigFile() map[string]interface{} {
	cfg := map[string]interface{}{
		"rag_context":   map[string]interface{}{"enabled": false, "documents": []interface{}{}, "description": ""},
		"api_endpoints": []interface{}{},
	}
	raw, err := os.ReadFile(sApi.cfg.ScriptConfigPath)
	if err != nil {
		return cfg
	}
	var loaded map[string]interface{}
	if err := json.Unmarshal(raw, &loaded); err != nil {
		sApi.logger.Warnf("script config unreadable, starting fresh: %v", err)
		return cfg
	}
	return loaded
}

func (sApi *setupApi) saveConfigFile(cfg map[string]interface{}) error {
	if err := os.MkdirAll(filepath.Dir(sApi.cfg.ScriptConfigPath), 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(sApi.cfg.ScriptConfigPath, raw, 0o644); err != nil {
		return err
	}
	sApi.loader.Invalidate(sApi.cfg.ScriptConfigPath)
	return nil
}

// SaveScript stores the raw script and merges any provided rag_context.
//
// @Router /api/setup/script [post]
func (sApi *setupApi) SaveScript(c *gin.Context) {
	var payload struct {
		Script    map[string]interface{} `json:"script"`
		RawScript string                 `json:"raw_script"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "bad payload"})
		return
	}
	if strings.TrimSpace(payload.RawScript) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "Raw script is required"})
		return
	}

	cfg := sApi.loadConfigFile()
	if rag, ok := payload.Script["rag_context"]; ok {
		cfg["rag_context"] = rag
	}
	if _, ok := cfg["api_endpoints"]; !ok {
		cfg["api_endpoints"] = []interface{}{}
	}
	if err := sApi.saveConfigFile(cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	if err := os.WriteFile(sApi.cfg.RawScriptPath, []byte(payload.RawScript), 0o644); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	sApi.logger.Info("script saved")
	c.JSON(http.StatusOK, gin.H{"ok": true, "message": "Script saved"})
}

// UploadFiles validates, stores, and ingests setup documents, then records
// their names in the script config.
//
// @Router /api/setup/files [post]
func (sApi *setupApi) UploadFiles(c *gin.Context) {
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

	chunks, err := sApi.store.Ingest(c.Request.Context(), defaultTenant, saved)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}

	cfg := sApi.loadConfigFile()
	rag, _ := cfg["rag_context"].(map[string]interface{})
	if rag == nil {
		rag = map[string]interface{}{"enabled": true, "documents": []interface{}{}, "description": ""}
	}
	docs, _ := rag["documents"].([]interface{})
	for _, n := range names {
		exists := false
		for _, d := range docs {
			if d == n {
				exists = true
				break
			}
		}
		if !exists {
			docs = append(docs, n)
		}
	}
	rag["documents"] = docs
	cfg["rag_context"] = rag
	if err := sApi.saveConfigFile(cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}

	sApi.logger.Infow("setup files ingested", "files", len(saved), "chunks", chunks)
	c.JSON(http.StatusOK, gin.H{"ok": true, "files": names, "chunks_added": chunks})
}

// SaveEndpoints replaces the developer-API endpoint catalogue.
//
// @Router /api/setup/endpoints [post]
func (sApi *setupApi) SaveEndpoints(c *gin.Context) {
	var payload struct {
		Endpoints []internal_script.ApiEndpoint `json:"endpoints"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "bad payload"})
		return
	}
	for _, ep := range payload.Endpoints {
		if err := utils.ValidateEndpointPath(ep.Path); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
			return
		}
	}

	cfg := sApi.loadConfigFile()
	cfg["api_endpoints"] = payload.Endpoints
	if err := sApi.saveConfigFile(cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	sApi.logger.Infof("saved %d api endpoints", len(payload.Endpoints))
	c.JSON(http.StatusOK, gin.H{"ok": true, "endpoints": len(payload.Endpoints)})
}

// Status reports whether setup has produced a script config yet.
//
// @Router /api/setup/status [get]
func (sApi *setupApi) Status(c *gin.Context) {
	_, err := os.Stat(sApi.cfg.ScriptConfigPath)
	c.JSON(http.StatusOK, gin.H{"configured": err == nil})
}

// RawScript returns the raw script text.
//
// @Router /api/setup/raw-script [get]
func (sApi *setupApi) RawScript(c *gin.Context) {
	raw, err := os.ReadFile(sApi.cfg.RawScriptPath)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Raw script not found"})
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", raw)
}
