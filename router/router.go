// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package routers

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	knowledgeApi "github.com/rapidaai/voice-agent/api/knowledge"
	setupApi "github.com/rapidaai/voice-agent/api/setup"
	stateApi "github.com/rapidaai/voice-agent/api/state"
	talkApi "github.com/rapidaai/voice-agent/api/talk"
	voiceApi "github.com/rapidaai/voice-agent/api/voice"
	"github.com/rapidaai/voice-agent/config"
	internal_knowledge "github.com/rapidaai/voice-agent/internal/knowledge"
	internal_registry "github.com/rapidaai/voice-agent/internal/registry"
	internal_reply "github.com/rapidaai/voice-agent/internal/reply"
	internal_script "github.com/rapidaai/voice-agent/internal/script"
	internal_signaling "github.com/rapidaai/voice-agent/internal/signaling"
	internal_turn "github.com/rapidaai/voice-agent/internal/turn"
	internal_type "github.com/rapidaai/voice-agent/internal/type"
	"github.com/rapidaai/voice-agent/pkg/commons"
)

// NewEngine builds the gin engine with recovery and permissive CORS; the
// browser client is served from a different origin during development.
func NewEngine(cfg *config.AppConfig, logger commons.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	logger.Infow("engine initialized", "service", cfg.Name, "version", cfg.Version)
	return engine
}

// TalkApiRoute mounts the realtime signaling channel.
func TalkApiRoute(cfg *config.AppConfig, engine *gin.Engine, logger commons.Logger, hub *internal_signaling.Hub) {
	tApi := talkApi.NewTalkApi(cfg, logger, hub)
	engine.POST("/api/voice/webrtc/start", tApi.WebRTCStart)
	engine.GET("/api/voice/webrtc/:session_id", tApi.WebRTCConnect)
}

// VoiceApiRoute mounts the request/response voice endpoints.
func VoiceApiRoute(cfg *config.AppConfig, engine *gin.Engine, logger commons.Logger,
	manager *internal_turn.Manager, registry *internal_registry.Registry, pipeline *internal_reply.Pipeline) {
	vApi := voiceApi.NewVoiceApi(cfg, logger, manager, registry, pipeline)
	apiv := engine.Group("/api/voice")
	{
		apiv.POST("/start", vApi.Start)
		apiv.POST("/upload", vApi.Upload)
		apiv.POST("/stop", vApi.Stop)
		apiv.GET("/audio/:session_id", vApi.Audio)
		apiv.POST("/asr", vApi.ASR)
		apiv.POST("/vad", vApi.VAD)
		apiv.POST("/frames", vApi.Frames)
	}
}

// SetupApiRoute mounts the configuration endpoints.
func SetupApiRoute(cfg *config.AppConfig, engine *gin.Engine, logger commons.Logger,
	store *internal_knowledge.Store, loader *internal_script.Loader) {
	sApi := setupApi.NewSetupApi(cfg, logger, store, loader)
	apis := engine.Group("/api/setup")
	{
		apis.POST("/script", sApi.SaveScript)
		apis.POST("/files", sApi.UploadFiles)
		apis.POST("/endpoints", sApi.SaveEndpoints)
		apis.GET("/status", sApi.Status)
		apis.GET("/raw-script", sApi.RawScript)
	}
}

// KnowledgeApiRoute mounts direct knowledge-base access.
func KnowledgeApiRoute(cfg *config.AppConfig, engine *gin.Engine, logger commons.Logger,
	store *internal_knowledge.Store, completer internal_type.Completer) {
	kApi := knowledgeApi.NewKnowledgeApi(cfg, logger, store, completer)
	apik := engine.Group("/api/kb")
	{
		apik.POST("/upload", kApi.Upload)
		apik.POST("/query", kApi.Query)
	}
}

// StateApiRoute mounts the text chat and script introspection endpoints.
func StateApiRoute(cfg *config.AppConfig, engine *gin.Engine, logger commons.Logger,
	assembler *internal_script.Assembler, completer internal_type.Completer,
	searcher internal_type.KnowledgeSearcher, caller internal_type.ExternalCaller) {
	stApi := stateApi.NewStateApi(cfg, logger, assembler, completer, searcher, caller)
	engine.POST("/api/scripted_chat", stApi.ScriptedChat)
	apist := engine.Group("/api/state")
	{
		apist.GET("", stApi.State)
		apist.GET("/history", stApi.History)
		apist.GET("/script", stApi.Script)
		apist.POST("/script/reload", stApi.ReloadScript)
		apist.GET("/company", stApi.Company)
		apist.POST("/company", stApi.Company)
	}
}
