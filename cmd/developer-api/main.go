// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Developer API service: the mock company backend the voice agent's
// [API_CALL] tool talks to. Deployed separately from the agent itself.
package main

import (
	"encoding/json"
	"log"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const priceEach = 9.99

// Submission is one stored customer payload.
type Submission struct {
	ID          string `gorm:"primarykey" json:"id"`
	Data        string `json:"-"`
	SubmittedAt string `json:"submitted_at"`
}

func main() {
	dbPath := os.Getenv("DEVELOPER_API_DB")
	if dbPath == "" {
		dbPath = "data/developer-api.db"
	}
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&Submission{}); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.Default())

	engine.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":     "Developer API",
			"description": "Mock company endpoints for agent tool calls",
			"endpoints": gin.H{
				"health":   "/health",
				"ping":     "/ping",
				"version":  "/version",
				"echo":     "POST /echo",
				"auth":     "POST /auth/login",
				"orders":   "GET /orders/:order_id, POST /orders/preview",
				"customer": "POST /customer/submit, GET /customer/:submission_id",
			},
		})
	})

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"pong": true, "ts": time.Now().UTC().Format(time.RFC3339)})
	})

	engine.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"version": "1.0.0", "build": "dev", "service": "developer-api"})
	})

	engine.POST("/echo", func(c *gin.Context) {
		var payload map[string]interface{}
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "bad payload"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"echo": payload, "received_at": time.Now().UTC().Format(time.RFC3339)})
	})

	engine.POST("/auth/login", func(c *gin.Context) {
		var payload struct {
			Username string `json:"username"`
		}
		_ = c.ShouldBindJSON(&payload)
		if payload.Username == "" {
			payload.Username = "user"
		}
		c.JSON(http.StatusOK, gin.H{
			"token": "token-" + payload.Username + "-dummy",
			"user":  gin.H{"username": payload.Username},
		})
	})

	engine.GET("/orders/:order_id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"order_id": c.Param("order_id"),
			"status":   "processing",
			"items":    []string{"Widget A", "Widget B"},
			"total":    19.98,
		})
	})

	engine.POST("/orders/preview", func(c *gin.Context) {
		var payload struct {
			Items []string `json:"items"`
		}
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "items must be a list"})
			return
		}
		total := math.Round(priceEach*float64(len(payload.Items))*100) / 100
		c.JSON(http.StatusOK, gin.H{
			"ok":         true,
			"items":      payload.Items,
			"price_each": priceEach,
			"total":      total,
		})
	})

	engine.POST("/customer/submit", func(c *gin.Context) {
		var payload map[string]interface{}
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "bad payload"})
			return
		}
		raw, _ := json.Marshal(payload)
		sub := Submission{
			ID:          uuid.NewString(),
			Data:        string(raw),
			SubmittedAt: time.Now().UTC().Format(time.RFC3339),
		}
		if err := db.Create(&sub).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"ok":          true,
			"id":          sub.ID,
			"received":    payload,
			"received_at": sub.SubmittedAt,
		})
	})

	engine.GET("/customer/:submission_id", func(c *gin.Context) {
		var sub Submission
		if err := db.First(&sub, "id = ?", c.Param("submission_id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Submission not found"})
			return
		}
		var data map[string]interface{}
		_ = json.Unmarshal([]byte(sub.Data), &data)
		c.JSON(http.StatusOK, gin.H{
			"ok":           true,
			"id":           sub.ID,
			"data":         data,
			"submitted_at": sub.SubmittedAt,
		})
	})

	addr := os.Getenv("DEVELOPER_API_ADDR")
	if addr == "" {
		addr = "0.0.0.0:8001"
	}
	log.Printf("developer api listening on %s", addr)
	if err := engine.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
