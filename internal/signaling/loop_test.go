// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_signaling

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	internal_turn "github.com/rapidaai/voice-agent/internal/turn"
	internal_type "github.com/rapidaai/voice-agent/internal/type"
	"github.com/rapidaai/voice-agent/pkg/commons"
)

// fakeDriver replays scripted push results and counts gate clears.
type fakeDriver struct {
	manager *internal_turn.Manager
	results chan internal_type.PushResult
	clears  int32
}

func (d *fakeDriver) Start(sid string) *internal_turn.Session {
	return d.manager.Start(sid)
}

func (d *fakeDriver) PushChunk(_ context.Context, _ string, _ []byte, _ internal_type.VADParams) internal_type.PushResult {
	select {
	case res := <-d.results:
		return res
	default:
		return internal_type.PushResult{OK: true, State: internal_type.StateListening}
	}
}

func (d *fakeDriver) ClearProcessingFlag(string) {
	atomic.AddInt32(&d.clears, 1)
}

// fakeRunner emits one reply frame per invocation.
type fakeRunner struct {
	calls int32
}

func (r *fakeRunner) Respond(_ context.Context, sender internal_type.FrameSender, _ *internal_turn.Session, transcript string, _ int) {
	atomic.AddInt32(&r.calls, 1)
	sender.SendFrame(map[string]interface{}{"type": "reply", "reply": "echo: " + transcript})
}

type testChannel struct {
	driver *fakeDriver
	runner *fakeRunner
	client *websocket.Conn
	hub    *Hub
}

func newTestChannel(t *testing.T) *testChannel {
	t.Helper()
	logger, err := commons.NewApplicationLogger()
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	driver := &fakeDriver{
		manager: internal_turn.NewManager(logger, t.TempDir(), nil, nil, nil),
		results: make(chan internal_type.PushResult, 16),
	}
	runner := &fakeRunner{}
	hub := NewHub(logger, driver, runner, internal_type.VADParams{Threshold: 0.3, MinSpeechMs: 100, MinSilenceMs: 800})

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer ws.Close()
		hub.Serve(r.Context(), "s1", NewConn(logger, ws))
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return &testChannel{driver: driver, runner: runner, client: client, hub: hub}
}

func (tc *testChannel) send(t *testing.T, frame map[string]interface{}) {
	t.Helper()
	if err := tc.client.WriteJSON(frame); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func (tc *testChannel) recv(t *testing.T) map[string]interface{} {
	t.Helper()
	tc.client.SetReadDeadline(time.Now().Add(5 * time.Second))
	var frame map[string]interface{}
	if err := tc.client.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func TestOfferAnswerAndPing(t *testing.T) {
	tc := newTestChannel(t)

	tc.send(t, map[string]interface{}{"type": "offer"})
	answer := tc.recv(t)
	if answer["type"] != "answer" || answer["status"] != "ready" || answer["session_id"] != "s1" {
		t.Errorf("unexpected answer: %v", answer)
	}

	tc.send(t, map[string]interface{}{"type": "ping"})
	if pong := tc.recv(t); pong["type"] != "pong" {
		t.Errorf("expected pong, got %v", pong)
	}
}

func TestAudioChunkFlow(t *testing.T) {
	tc := newTestChannel(t)
	payload := base64.StdEncoding.EncodeToString([]byte{0x01, 0x02})

	tc.driver.results <- internal_type.PushResult{OK: true, State: internal_type.StateListening}
	tc.send(t, map[string]interface{}{"type": "audio_chunk", "data": payload, "respond": true})
	res := tc.recv(t)
	if res["type"] != "processing_result" || res["finalized"] != false || res["state"] != "listening" {
		t.Fatalf("unexpected processing_result: %v", res)
	}

	// Finalization with respond=true: a reply frame follows, gate stays up.
	tc.driver.results <- internal_type.PushResult{
		OK: true, Finalized: true, Transcript: "hello", State: internal_type.StateSpeaking,
	}
	tc.send(t, map[string]interface{}{"type": "audio_chunk", "data": payload, "respond": true})
	res = tc.recv(t)
	if res["finalized"] != true || res["transcript"] != "hello" || res["state"] != "speaking" {
		t.Fatalf("unexpected finalized result: %v", res)
	}
	reply := tc.recv(t)
	if reply["type"] != "reply" || reply["reply"] != "echo: hello" {
		t.Fatalf("expected reply frame, got %v", reply)
	}
	if atomic.LoadInt32(&tc.driver.clears) != 0 {
		t.Error("gate must not be cleared while a reply is pending")
	}
}

func TestFinalizeWithoutRespondClearsGate(t *testing.T) {
	tc := newTestChannel(t)
	payload := base64.StdEncoding.EncodeToString([]byte{0x01})

	tc.driver.results <- internal_type.PushResult{
		OK: true, Finalized: true, Transcript: "hello", State: internal_type.StateSpeaking,
	}
	tc.send(t, map[string]interface{}{"type": "audio_chunk", "data": payload, "respond": false})
	tc.recv(t)

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&tc.driver.clears) == 0 {
		select {
		case <-deadline:
			t.Fatal("expected gate cleared when no reply requested")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if atomic.LoadInt32(&tc.runner.calls) != 0 {
		t.Error("reply runner must not run without respond=true")
	}
}

func TestFinalizedSendFailureStillClearsGate(t *testing.T) {
	logger, err := commons.NewApplicationLogger()
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	driver := &fakeDriver{
		manager: internal_turn.NewManager(logger, t.TempDir(), nil, nil, nil),
		results: make(chan internal_type.PushResult, 1),
	}
	runner := &fakeRunner{}
	hub := NewHub(logger, driver, runner, internal_type.VADParams{Threshold: 0.3, MinSpeechMs: 100, MinSilenceMs: 800})
	session := driver.manager.Start("s1")

	driver.results <- internal_type.PushResult{
		OK: true, Finalized: true, Transcript: "hello", State: internal_type.StateSpeaking,
	}

	// Peer already gone: every send fails. The finalized segment must still
	// re-arm the session so a reconnecting client is not stuck speaking.
	conn := &Conn{logger: logger, closed: true}
	jobs := make(chan chunkJob, 1)
	jobs <- chunkJob{data: []byte{0x01}, respond: true}
	close(jobs)
	hub.chunkWorker(context.Background(), "s1", session, conn, jobs)

	if got := atomic.LoadInt32(&driver.clears); got != 1 {
		t.Fatalf("expected gate cleared once after failed send, got %d", got)
	}
	if atomic.LoadInt32(&runner.calls) != 0 {
		t.Error("reply runner must not run for a disconnected peer")
	}
}

func TestPlaybackCompleteClearsGate(t *testing.T) {
	tc := newTestChannel(t)

	tc.send(t, map[string]interface{}{"type": "playback_complete"})
	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&tc.driver.clears) == 0 {
		select {
		case <-deadline:
			t.Fatal("expected playback_complete to clear the gate")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestMalformedFrameIgnored(t *testing.T) {
	tc := newTestChannel(t)

	if err := tc.client.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	// The loop must survive: a ping still gets a pong.
	tc.send(t, map[string]interface{}{"type": "ping"})
	if pong := tc.recv(t); pong["type"] != "pong" {
		t.Errorf("expected pong after malformed frame, got %v", pong)
	}
}

func TestDisconnectRemovesActiveConn(t *testing.T) {
	tc := newTestChannel(t)

	tc.send(t, map[string]interface{}{"type": "offer"})
	tc.recv(t)
	if tc.hub.ActiveCount() != 1 {
		t.Fatalf("expected one active conn, got %d", tc.hub.ActiveCount())
	}

	tc.client.Close()
	deadline := time.After(2 * time.Second)
	for tc.hub.ActiveCount() != 0 {
		select {
		case <-deadline:
			t.Fatal("expected conn removed after disconnect")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
