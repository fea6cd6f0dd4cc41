// Package openai implements ports.Model against OpenAI-compatible
// chat-completions APIs (OpenAI, OpenRouter, local gateways).
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/epivigil/epivigil/pkg/domain"
	"github.com/epivigil/epivigil/pkg/ports"
)

const defaultBaseURL = "https://api.openai.com/v1/chat/completions"

// Client implements ports.Model.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// Option configures the Client.
type Option func(*Client)

// WithBaseURL points the client at a compatible endpoint. The
// /chat/completions suffix is appended when missing.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL == "" {
			return
		}
		if !strings.HasSuffix(baseURL, "/chat/completions") {
			baseURL = strings.TrimSuffix(baseURL, "/") + "/chat/completions"
		}
		c.baseURL = baseURL
	}
}

// WithHTTPClient overrides the transport, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for the given model.
func New(apiKey, model string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	if c.model == "" {
		c.model = "gpt-4o"
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Wire types for the chat-completions schema.

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	Tools       []wireTool    `json:"tools,omitempty"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters,omitempty"`
	} `json:"function"`
}

type wireResponse struct {
	Choices []struct {
		Message      wireMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete performs a non-streaming chat completion with tool binding.
func (c *Client) Complete(ctx context.Context, req ports.ModelRequest) (ports.ModelReply, error) {
	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return ports.ModelReply{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return ports.ModelReply{}, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return ports.ModelReply{}, fmt.Errorf("model request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return ports.ModelReply{}, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed wireResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return ports.ModelReply{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if parsed.Error != nil {
		return ports.ModelReply{}, fmt.Errorf("model error (%s): %s", parsed.Error.Type, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return ports.ModelReply{}, fmt.Errorf("model returned status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return ports.ModelReply{}, fmt.Errorf("model returned no choices")
	}

	return decodeReply(parsed.Choices[0].Message)
}

func (c *Client) buildRequest(req ports.ModelRequest) wireRequest {
	out := wireRequest{
		Model:       c.model,
		Temperature: req.Temperature,
	}

	for _, msg := range req.Messages {
		wm := wireMessage{Content: msg.Content}
		switch msg.Role {
		case domain.RoleSystem:
			wm.Role = "system"
		case domain.RoleHuman:
			wm.Role = "user"
		case domain.RoleAssistant:
			wm.Role = "assistant"
			for _, call := range msg.ToolCalls {
				args, _ := json.Marshal(call.Args)
				wc := wireToolCall{ID: call.ID, Type: "function"}
				wc.Function.Name = call.Name
				wc.Function.Arguments = string(args)
				wm.ToolCalls = append(wm.ToolCalls, wc)
			}
		case domain.RoleTool:
			wm.Role = "tool"
			wm.ToolCallID = msg.ToolCallID
		}
		out.Messages = append(out.Messages, wm)
	}

	for _, spec := range req.Tools {
		wt := wireTool{Type: "function"}
		wt.Function.Name = spec.Name
		wt.Function.Description = spec.Description
		wt.Function.Parameters = spec.Parameters
		out.Tools = append(out.Tools, wt)
	}
	return out
}

func decodeReply(msg wireMessage) (ports.ModelReply, error) {
	reply := ports.ModelReply{Content: msg.Content}
	for _, wc := range msg.ToolCalls {
		call := domain.ToolCall{ID: wc.ID, Name: wc.Function.Name}
		if wc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(wc.Function.Arguments), &call.Args); err != nil {
				return ports.ModelReply{}, fmt.Errorf("failed to decode tool arguments for %s: %w", wc.Function.Name, err)
			}
		}
		reply.ToolCalls = append(reply.ToolCalls, call)
	}
	return reply, nil
}
