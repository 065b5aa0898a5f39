// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_external

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	internal_type "github.com/rapidaai/voice-agent/internal/type"
	"github.com/rapidaai/voice-agent/pkg/commons"
)

// Timeout bounds one developer-API call.
const Timeout = 30 * time.Second

// Client invokes the configured developer API on behalf of the language
// model. Failures never propagate as errors: they are folded into an
// {ok:false, error} map the model can narrate to the caller.
type Client struct {
	logger commons.Logger
	http   *resty.Client
}

var _ internal_type.ExternalCaller = (*Client)(nil)

func NewClient(logger commons.Logger, baseUrl string) *Client {
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseUrl, "/")).
		SetTimeout(Timeout).
		SetTransport(transport).
		SetHeader("Content-Type", "application/json")
	return &Client{logger: logger, http: client}
}

// Call performs method against path with an optional JSON payload.
func (c *Client) Call(ctx context.Context, method, path string, payload map[string]interface{}) map[string]interface{} {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	req := c.http.R().SetContext(ctx)
	if len(payload) > 0 {
		req.SetBody(payload)
	}

	started := time.Now()
	resp, err := req.Execute(strings.ToUpper(method), path)
	if err != nil {
		c.logger.Warnw("external call failed", "method", method, "path", path, "error", err.Error())
		return map[string]interface{}{"ok": false, "error": err.Error()}
	}

	c.logger.Debugw("external call done",
		"method", method,
		"path", path,
		"status", resp.StatusCode(),
		"took", time.Since(started).String())

	var body interface{}
	if len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), &body); err != nil {
			body = string(resp.Body())
		}
	}

	if resp.IsError() {
		return map[string]interface{}{
			"ok":     false,
			"status": resp.StatusCode(),
			"error":  http.StatusText(resp.StatusCode()),
			"body":   body,
		}
	}
	return map[string]interface{}{
		"ok":     true,
		"status": resp.StatusCode(),
		"body":   body,
	}
}
