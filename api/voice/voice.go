// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package voice_api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rapidaai/voice-agent/config"
	internal_audio "github.com/rapidaai/voice-agent/internal/audio"
	internal_reply "github.com/rapidaai/voice-agent/internal/reply"
	internal_registry "github.com/rapidaai/voice-agent/internal/registry"
	internal_turn "github.com/rapidaai/voice-agent/internal/turn"
	internal_type "github.com/rapidaai/voice-agent/internal/type"
	"github.com/rapidaai/voice-agent/pkg/commons"
)

// voiceApi serves the request/response voice endpoints: whole-file upload,
// offline ASR/VAD probes, the chunked frames fallback, and reply audio
// download. The streaming path lives on the signaling channel.
type voiceApi struct {
	cfg      *config.AppConfig
	logger   commons.Logger
	manager  *internal_turn.Manager
	registry *internal_registry.Registry
	pipeline *internal_reply.Pipeline

	mu     sync.Mutex
	inputs map[string]string // session id -> uploaded input path
}

func NewVoiceApi(cfg *config.AppConfig, logger commons.Logger,
	manager *internal_turn.Manager, registry *internal_registry.Registry, pipeline *internal_reply.Pipeline) *voiceApi {
	return &voiceApi{
		cfg:      cfg,
		logger:   logger,
		manager:  manager,
		registry: registry,
		pipeline: pipeline,
		inputs:   make(map[string]string),
	}
}

func (vApi *voiceApi) vadParams() internal_type.VADParams {
	return internal_type.VADParams{
		Threshold:    vApi.cfg.VadThreshold,
		MinSpeechMs:  vApi.cfg.VadMinSpeechMs,
		MinSilenceMs: vApi.cfg.VadMinSilenceMs,
	}
}

// Start creates a fresh session.
//
// @Router /api/voice/start [post]
func (vApi *voiceApi) Start(c *gin.Context) {
	sid := uuid.NewString()
	s := vApi.manager.Start(sid)
	vApi.logger.Infow("voice session created", "session", sid, "dir", s.Dir)
	c.JSON(http.StatusOK, gin.H{"ok": true, "session_id": sid})
}

// Upload stores a whole recording for the session and converts it to the
// internal WAV format. A failed conversion keeps the original file so ASR
// can still try it.
//
// @Router /api/voice/upload [post]
func (vApi *voiceApi) Upload(c *gin.Context) {
	sid := c.Query("session_id")
	s := vApi.manager.Get(sid)
	if s == nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid session"})
		return
	}
	file, err := c.FormFile("audio")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "missing audio file"})
		return
	}

	ext := filepath.Ext(file.Filename)
	if ext == "" {
		ext = ".webm"
	}
	inPath := filepath.Join(s.Dir, "input"+ext)
	if err := c.SaveUploadedFile(file, inPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "failed to store upload"})
		return
	}

	raw, err := os.ReadFile(inPath)
	if err == nil {
		wav, terr := vApi.registry.Transcoder().Transcode(c.Request.Context(), raw, nil)
		if terr != nil {
			vApi.logger.Warnf("session %s: upload conversion failed: %v", sid, terr)
		} else {
			outPath := filepath.Join(s.Dir, "input.wav")
			if werr := os.WriteFile(outPath, wav, 0o644); werr != nil {
				vApi.logger.Warnf("session %s: store converted audio: %v", sid, werr)
			} else {
				vApi.setInput(sid, outPath)
				c.JSON(http.StatusOK, gin.H{"ok": true, "path": outPath})
				return
			}
		}
	}
	vApi.setInput(sid, inPath)
	c.JSON(http.StatusOK, gin.H{"ok": true, "path": inPath, "converted": false})
}

// Stop transcribes the uploaded input, runs the reply pipeline, and returns
// transcript plus reply. TTS failure degrades to a short silence WAV so the
// client player always has something to fetch.
//
// @Router /api/voice/stop [post]
func (vApi *voiceApi) Stop(c *gin.Context) {
	var payload struct {
		SessionID string `json:"session_id"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "bad payload"})
		return
	}
	s := vApi.manager.Get(payload.SessionID)
	input := vApi.getInput(payload.SessionID)
	if s == nil || input == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "no input"})
		return
	}

	transcript, err := vApi.registry.ASR().TranscribeFile(c.Request.Context(), input)
	if err != nil {
		vApi.logger.Errorf("session %s: transcription failed: %v", payload.SessionID, err)
		transcript = ""
	}

	sink := newFrameSink()
	vApi.pipeline.Respond(c.Request.Context(), sink, s, transcript, s.SegmentIndex())

	if s.ReplyAudioPath() == "" {
		outPath := filepath.Join(s.Dir, "reply.wav")
		if err := os.WriteFile(outPath, internal_audio.SilenceWAV(0.5, internal_audio.InternalSampleRate), 0o644); err == nil {
			s.SetReplyAudioPath(outPath)
			vApi.logger.Warnf("session %s: no synthesis, serving silence", payload.SessionID)
		}
	}
	s.ClearProcessingFlag()

	c.JSON(http.StatusOK, gin.H{
		"ok":         true,
		"session_id": payload.SessionID,
		"transcript": transcript,
		"reply":      sink.Reply(),
		"audio_path": s.ReplyAudioPath(),
	})
}

// Audio streams the latest reply WAV.
//
// @Router /api/voice/audio/:session_id [get]
func (vApi *voiceApi) Audio(c *gin.Context) {
	s := vApi.manager.Get(c.Param("session_id"))
	if s == nil || s.ReplyAudioPath() == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	path := s.ReplyAudioPath()
	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.Header("Content-Type", "audio/wav")
	c.File(path)
}

// ASR transcribes the uploaded input without replying.
//
// @Router /api/voice/asr [post]
func (vApi *voiceApi) ASR(c *gin.Context) {
	var payload struct {
		SessionID string `json:"session_id"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "bad payload"})
		return
	}
	input := vApi.getInput(payload.SessionID)
	if input == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "no input"})
		return
	}
	transcript, err := vApi.registry.ASR().TranscribeFile(c.Request.Context(), input)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "session_id": payload.SessionID, "transcript": transcript})
}

// VAD runs speech detection over the uploaded input with per-request
// thresholds. Offline tuning aid; the live path uses the in-memory buffer.
//
// @Router /api/voice/vad [post]
func (vApi *voiceApi) VAD(c *gin.Context) {
	var payload struct {
		SessionID    string  `json:"session_id"`
		Threshold    float32 `json:"threshold"`
		MinSpeechMs  int     `json:"min_speech_ms"`
		MinSilenceMs int     `json:"min_silence_ms"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "bad payload"})
		return
	}
	input := vApi.getInput(payload.SessionID)
	if input == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "no input"})
		return
	}
	wav, err := os.ReadFile(input)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "input file not found"})
		return
	}
	samples, sr, err := internal_audio.DecodeWAV(wav)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": fmt.Sprintf("decode: %v", err)})
		return
	}

	params := vApi.vadParams()
	if payload.Threshold > 0 {
		params.Threshold = payload.Threshold
	}
	if payload.MinSpeechMs > 0 {
		params.MinSpeechMs = payload.MinSpeechMs
	}
	if payload.MinSilenceMs > 0 {
		params.MinSilenceMs = payload.MinSilenceMs
	}
	segments, err := vApi.registry.VAD().Segments(c.Request.Context(), samples, sr, params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	if segments == nil {
		segments = []internal_type.SpeechSegment{}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "session_id": payload.SessionID, "segments": segments})
}

// Frames is the HTTP fallback for chunked streaming: one multipart chunk per
// request through the same state machine as the signaling channel.
//
// @Router /api/voice/frames [post]
func (vApi *voiceApi) Frames(c *gin.Context) {
	sid := c.Query("session_id")
	respond, _ := strconv.ParseBool(c.DefaultQuery("respond", "false"))

	file, err := c.FormFile("chunk")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "missing chunk"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "failed to read chunk"})
		return
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "failed to read chunk"})
		return
	}

	res := vApi.manager.PushChunk(c.Request.Context(), sid, data, vApi.vadParams())
	if !res.OK {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": res.Error})
		return
	}

	out := gin.H{"ok": true, "finalized": res.Finalized, "state": res.State}
	if res.Finalized {
		out["transcript"] = res.Transcript
		if respond && res.Transcript != "" {
			s := vApi.manager.Get(sid)
			sink := newFrameSink()
			vApi.pipeline.Respond(c.Request.Context(), sink, s, res.Transcript, res.SegmentIndex)
			out["reply"] = sink.Reply()
			if path := s.ReplyAudioPath(); path != "" {
				out["audio_path"] = path
			}
			s.ClearProcessingFlag()
		} else {
			vApi.manager.ClearProcessingFlag(sid)
		}
	}
	c.JSON(http.StatusOK, out)
}

func (vApi *voiceApi) setInput(sid, path string) {
	vApi.mu.Lock()
	defer vApi.mu.Unlock()
	vApi.inputs[sid] = path
}

func (vApi *voiceApi) getInput(sid string) string {
	vApi.mu.Lock()
	defer vApi.mu.Unlock()
	return vApi.inputs[sid]
}

// frameSink collects pipeline frames for the synchronous HTTP paths.
type frameSink struct {
	mu     sync.Mutex
	frames []map[string]interface{}
}

func newFrameSink() *frameSink {
	return &frameSink{}
}

func (f *frameSink) SendFrame(v interface{}) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if frame, ok := v.(map[string]interface{}); ok {
		f.frames = append(f.frames, frame)
	}
	return true
}

// Reply returns the reply text from the collected frames, if any.
func (f *frameSink) Reply() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, frame := range f.frames {
		if frame["type"] == "reply" {
			if text, ok := frame["reply"].(string); ok {
				return text
			}
		}
	}
	return ""
}
