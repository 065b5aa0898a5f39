// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package voice_api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/rapidaai/voice-agent/config"
	internal_registry "github.com/rapidaai/voice-agent/internal/registry"
	internal_turn "github.com/rapidaai/voice-agent/internal/turn"
	"github.com/rapidaai/voice-agent/pkg/commons"
)

// fakeBin writes an executable shell stub standing in for ffmpeg.
func fakeBin(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func newUploadHandler(t *testing.T, ffmpegBin string) (*gin.Engine, string) {
	t.Helper()
	logger, err := commons.NewApplicationLogger()
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	cfg := &config.AppConfig{FfmpegBin: ffmpegBin, UseCuda: "false"}
	registry := internal_registry.NewRegistry(logger, cfg)
	manager := internal_turn.NewManager(logger, t.TempDir(), nil, nil, nil)
	vApi := NewVoiceApi(cfg, logger, manager, registry, nil)

	const sid = "u1"
	manager.Start(sid)

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.POST("/upload", vApi.Upload)
	return engine, sid
}

func uploadRequest(t *testing.T, sid string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("audio", "clip.webm")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload?session_id="+sid, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestUploadConvertsToWav(t *testing.T) {
	engine, sid := newUploadHandler(t, fakeBin(t, "exec cat"))

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, uploadRequest(t, sid, []byte("compressed audio bytes")))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	path, _ := body["path"].(string)
	if !strings.HasSuffix(path, "input.wav") {
		t.Fatalf("expected converted wav path, got %q", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("converted file missing: %v", err)
	}
	if _, ok := body["converted"]; ok {
		t.Error("successful conversion must not carry the converted:false marker")
	}
}

func TestUploadKeepsOriginalOnConversionFailure(t *testing.T) {
	engine, sid := newUploadHandler(t, fakeBin(t, "echo 'decode error' >&2; exit 1"))

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, uploadRequest(t, sid, []byte("compressed audio bytes")))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	if body["converted"] != false {
		t.Errorf("expected converted:false, got %v", body["converted"])
	}
	path, _ := body["path"].(string)
	if !strings.HasSuffix(path, "input.webm") {
		t.Errorf("expected original input kept, got %q", path)
	}
}

func TestUploadRejectsUnknownSession(t *testing.T) {
	engine, _ := newUploadHandler(t, fakeBin(t, "exec cat"))

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, uploadRequest(t, "nope", []byte("x")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown session, got %d", rec.Code)
	}
}
