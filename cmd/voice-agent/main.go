// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rapidaai/voice-agent/config"
	internal_external "github.com/rapidaai/voice-agent/internal/external"
	internal_knowledge "github.com/rapidaai/voice-agent/internal/knowledge"
	internal_registry "github.com/rapidaai/voice-agent/internal/registry"
	internal_reply "github.com/rapidaai/voice-agent/internal/reply"
	internal_script "github.com/rapidaai/voice-agent/internal/script"
	internal_signaling "github.com/rapidaai/voice-agent/internal/signaling"
	internal_turn "github.com/rapidaai/voice-agent/internal/turn"
	internal_type "github.com/rapidaai/voice-agent/internal/type"
	"github.com/rapidaai/voice-agent/pkg/commons"
	routers "github.com/rapidaai/voice-agent/router"
)

const defaultTenant = "default"

func main() {
	vConfig, err := config.InitConfig()
	if err != nil {
		log.Fatalf("config init failed: %v", err)
	}
	cfg, err := config.GetApplicationConfig(vConfig)
	if err != nil {
		log.Fatalf("config invalid: %v", err)
	}

	logger, err := commons.NewApplicationLogger(
		commons.Name(cfg.Name),
		commons.Level(cfg.LogLevel),
		commons.Path(cfg.LogPath),
	)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	registry := internal_registry.NewRegistry(logger, cfg)
	defer registry.Close()

	store, err := internal_knowledge.NewStore(logger, cfg.ChromaDir, registry.LLM(), internal_knowledge.StoreOptions{
		TopK:           cfg.KbTopK,
		ScoreMode:      cfg.KbScoreMode,
		ScoreThreshold: cfg.KbScoreThreshold,
	})
	if err != nil {
		logger.Errorf("knowledge store init failed: %v", err)
		os.Exit(1)
	}

	loader := internal_script.NewLoader(logger)
	assembler := internal_script.NewAssembler(logger, loader, cfg.ScriptConfigPath, cfg.RawScriptPath)
	caller := internal_external.NewClient(logger, cfg.ExternalBaseUrl())

	manager := internal_turn.NewManager(logger, cfg.VoiceStorageDir,
		registry.Transcoder(), registry.VAD(), registry.ASR())
	pipeline := internal_reply.NewPipeline(logger, assembler,
		registry.LLM(), store, caller, registry.TTS(), defaultTenant)

	vadParams := internal_type.VADParams{
		Threshold:    cfg.VadThreshold,
		MinSpeechMs:  cfg.VadMinSpeechMs,
		MinSilenceMs: cfg.VadMinSilenceMs,
	}
	hub := internal_signaling.NewHub(logger, manager, pipeline, vadParams)

	engine := routers.NewEngine(cfg, logger)
	routers.TalkApiRoute(cfg, engine, logger, hub)
	routers.VoiceApiRoute(cfg, engine, logger, manager, registry, pipeline)
	routers.SetupApiRoute(cfg, engine, logger, store, loader)
	routers.KnowledgeApiRoute(cfg, engine, logger, store, registry.LLM())
	routers.StateApiRoute(cfg, engine, logger, assembler, registry.LLM(), store, caller)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infow("voice agent listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Errorf("server exited: %v", err)
		os.Exit(1)
	}
	logger.Info("voice agent stopped")
}
