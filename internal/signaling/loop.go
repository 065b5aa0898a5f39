// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_signaling

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	internal_turn "github.com/rapidaai/voice-agent/internal/turn"
	internal_type "github.com/rapidaai/voice-agent/internal/type"
	"github.com/rapidaai/voice-agent/pkg/commons"
)

// chunkQueueSize bounds in-flight chunks per session. At the browser's
// ~300 ms chunk cadence this is over a minute of backlog.
const chunkQueueSize = 256

// SessionDriver is the slice of the turn manager the loop needs.
type SessionDriver interface {
	Start(sid string) *internal_turn.Session
	PushChunk(ctx context.Context, sid string, data []byte, params internal_type.VADParams) internal_type.PushResult
	ClearProcessingFlag(sid string)
}

// ReplyRunner runs the reply pipeline for a finalized transcript.
type ReplyRunner interface {
	Respond(ctx context.Context, sender internal_type.FrameSender, session *internal_turn.Session, transcript string, segIndex int)
}

// inboundFrame is the envelope for every client message.
type inboundFrame struct {
	Type    string `json:"type"`
	Data    string `json:"data,omitempty"`
	Respond bool   `json:"respond,omitempty"`
}

// Conn wraps one signaling websocket. All writers go through SendFrame so
// concurrent senders (reader loop, chunk worker, reply tasks) never
// interleave on the wire.
type Conn struct {
	logger commons.Logger
	ws     *websocket.Conn

	writeMu sync.Mutex
	closed  bool
}

var _ internal_type.FrameSender = (*Conn)(nil)

func NewConn(logger commons.Logger, ws *websocket.Conn) *Conn {
	return &Conn{logger: logger, ws: ws}
}

// SendFrame writes one JSON frame. A false return means the peer is gone and
// the caller should stop sending.
func (c *Conn) SendFrame(v interface{}) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return false
	}
	if err := c.ws.WriteJSON(v); err != nil {
		c.closed = true
		c.logger.Debugf("signaling send failed: %v", err)
		return false
	}
	return true
}

// Hub tracks live signaling connections by session id. The turn registry is
// separate: a session entry survives its connection for reconnects.
type Hub struct {
	logger commons.Logger
	driver SessionDriver
	runner ReplyRunner
	params internal_type.VADParams

	mu    sync.Mutex
	conns map[string]*Conn
}

func NewHub(logger commons.Logger, driver SessionDriver, runner ReplyRunner, params internal_type.VADParams) *Hub {
	return &Hub{
		logger: logger,
		driver: driver,
		runner: runner,
		params: params,
		conns:  make(map[string]*Conn),
	}
}

// ActiveCount reports how many signaling channels are open.
func (h *Hub) ActiveCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

type chunkJob struct {
	data    []byte
	respond bool
}

// Serve drives one signaling channel until the peer disconnects. It is the
// single reader of the transport; chunk processing happens on a dedicated
// worker goroutine so transcode and ASR never stall the read loop.
func (h *Hub) Serve(ctx context.Context, sid string, conn *Conn) {
	session := h.driver.Start(sid)

	h.mu.Lock()
	h.conns[sid] = conn
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.conns, sid)
		h.mu.Unlock()
		h.logger.Infow("signaling closed", "session", sid)
	}()

	jobs := make(chan chunkJob, chunkQueueSize)
	var workerWg sync.WaitGroup
	workerWg.Add(1)
	go func() {
		defer workerWg.Done()
		h.chunkWorker(ctx, sid, session, conn, jobs)
	}()
	defer workerWg.Wait()
	defer close(jobs)

	h.logger.Infow("signaling open", "session", sid)
	for {
		_, raw, err := conn.ws.ReadMessage()
		if err != nil {
			h.logger.Debugf("session %s: read ended: %v", sid, err)
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			h.logger.Warnf("session %s: bad frame json, ignoring: %v", sid, err)
			continue
		}

		switch frame.Type {
		case "offer":
			if !conn.SendFrame(map[string]interface{}{
				"type":       "answer",
				"session_id": sid,
				"status":     "ready",
			}) {
				return
			}

		case "audio_chunk":
			data, err := base64.StdEncoding.DecodeString(frame.Data)
			if err != nil {
				h.logger.Warnf("session %s: bad chunk base64, ignoring: %v", sid, err)
				continue
			}
			jobs <- chunkJob{data: data, respond: frame.Respond}

		case "ping":
			if !conn.SendFrame(map[string]interface{}{"type": "pong"}) {
				return
			}

		case "playback_complete":
			h.driver.ClearProcessingFlag(sid)
			h.logger.Debugf("session %s: playback complete, gate cleared", sid)

		default:
			h.logger.Debugf("session %s: ignoring frame type %q", sid, frame.Type)
		}
	}
}

// chunkWorker processes chunks strictly in arrival order and emits one
// processing_result per chunk. On finalization it either spawns the reply
// pipeline (gate stays up until playback) or re-arms immediately.
func (h *Hub) chunkWorker(ctx context.Context, sid string, session *internal_turn.Session, conn *Conn, jobs <-chan chunkJob) {
	for job := range jobs {
		res := h.driver.PushChunk(ctx, sid, job.data, h.params)

		frame := map[string]interface{}{
			"type":      "processing_result",
			"ok":        res.OK,
			"finalized": res.Finalized,
			"state":     res.State,
		}
		if res.Finalized {
			frame["transcript"] = res.Transcript
		}
		if res.Error != "" {
			frame["error"] = res.Error
		}
		// A failed send means the peer is gone; keep draining so the reader
		// can exit, but a finalized segment must still re-arm the session or
		// a reconnecting client is stuck in the speaking state.
		sent := conn.SendFrame(frame)

		if !res.Finalized {
			continue
		}
		if sent && job.respond && res.Transcript != "" {
			go h.runner.Respond(ctx, conn, session, res.Transcript, res.SegmentIndex)
		} else {
			h.driver.ClearProcessingFlag(sid)
		}
	}
}
