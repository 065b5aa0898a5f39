// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	internal_type "github.com/rapidaai/voice-agent/internal/type"
	"github.com/rapidaai/voice-agent/pkg/commons"
)

const (
	maxAttempts    = 3
	initialBackoff = time.Second
)

// Client talks to an OpenAI-compatible endpoint (Together in production).
// Transient transport failures are retried with exponential backoff; API
// errors (auth, bad request, rate limit) surface immediately.
type Client struct {
	logger          commons.Logger
	client          openai.Client
	model           string
	embeddingsModel string
}

var (
	_ internal_type.Completer = (*Client)(nil)
	_ internal_type.Embedder  = (*Client)(nil)
)

func NewClient(logger commons.Logger, apiKey, baseUrl, model, embeddingsModel string, timeout time.Duration) *Client {
	return &Client{
		logger: logger,
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(baseUrl),
			option.WithRequestTimeout(timeout),
			option.WithMaxRetries(0), // retry policy lives here, not in the SDK
		),
		model:           model,
		embeddingsModel: embeddingsModel,
	}
}

// retryable reports whether err looks like a transient transport failure
// (connection refused/reset, DNS, timeout) rather than an API rejection.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// Complete runs a chat completion over messages.
func (c *Client) Complete(ctx context.Context, messages []internal_type.Message) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
	}
	for _, m := range messages {
		switch m.Role {
		case internal_type.RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		case internal_type.RoleAssistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		}
	}

	var lastErr error
	backoff := initialBackoff
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		started := time.Now()
		resp, err := c.client.Chat.Completions.New(ctx, params)
		if err == nil {
			if len(resp.Choices) == 0 {
				return "", fmt.Errorf("completion returned no choices")
			}
			c.logger.Debugw("completion done",
				"model", c.model,
				"messages", len(messages),
				"took", time.Since(started).String())
			return resp.Choices[0].Message.Content, nil
		}
		lastErr = err
		if !retryable(err) || attempt == maxAttempts {
			break
		}
		c.logger.Warnw("completion attempt failed, retrying",
			"attempt", attempt,
			"backoff", backoff.String(),
			"error", err.Error())
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		backoff *= 2
	}
	return "", fmt.Errorf("completion failed: %w", lastErr)
}

// Embed turns texts into embedding vectors, preserving input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: c.embeddingsModel,
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings request: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings returned %d vectors for %d inputs", len(resp.Data), len(texts))
	}
	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		vectors[d.Index] = vec
	}
	return vectors, nil
}
