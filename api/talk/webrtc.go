// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package talk_api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rapidaai/voice-agent/config"
	internal_signaling "github.com/rapidaai/voice-agent/internal/signaling"
	"github.com/rapidaai/voice-agent/pkg/commons"
)

var webrtcUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type talkApi struct {
	cfg    *config.AppConfig
	logger commons.Logger
	hub    *internal_signaling.Hub
}

func NewTalkApi(cfg *config.AppConfig, logger commons.Logger, hub *internal_signaling.Hub) *talkApi {
	return &talkApi{cfg: cfg, logger: logger, hub: hub}
}

// WebRTCStart allocates a session id ahead of the websocket connect so the
// client can show it before dialing.
//
// @Router /api/voice/webrtc/start [post]
func (tApi *talkApi) WebRTCStart(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "session_id": uuid.NewString()})
}

// WebRTCConnect upgrades the request to the signaling channel for one voice
// session. The socket carries JSON control frames and base64 audio chunks;
// there is no SDP/ICE negotiation.
//
// @Router /api/voice/webrtc/:session_id [get]
func (tApi *talkApi) WebRTCConnect(c *gin.Context) {
	sid := c.Param("session_id")
	if sid == "" || sid == "new" {
		sid = uuid.NewString()
	}

	ws, err := webrtcUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		tApi.logger.Errorf("websocket upgrade failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to upgrade to websocket"})
		return
	}
	defer ws.Close()

	tApi.hub.Serve(c.Request.Context(), sid, internal_signaling.NewConn(tApi.logger, ws))
}
