package app

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ChatMessage is one entry in a model request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatOptions carries generation options for a single request.
type ChatOptions struct {
	Model       string
	Temperature float64
	TopP        float64
	NumCtx      int
	MaxTokens   int
}

// ChatClient is the model gateway. StreamChat delivers incremental fragments
// through onDelta as they arrive and returns the accumulated text.
type ChatClient interface {
	Chat(ctx context.Context, msgs []ChatMessage, opts ChatOptions) (string, error)
	StreamChat(ctx context.Context, msgs []ChatMessage, opts ChatOptions, onDelta func(string)) (string, error)
	Model() string
}

// OllamaClient talks to a local Ollama server. No network access beyond
// loopback is expected or required.
type OllamaClient struct {
	model      string
	baseURL    string
	httpClient *http.Client
}

func NewOllamaClient(model, baseURL string) *OllamaClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if !strings.HasSuffix(baseURL, "/api") {
		baseURL += "/api"
	}
	return &OllamaClient{
		model:   model,
		baseURL: baseURL,
		httpClient: &http.Client{
			// Local generation can be slow on big models; cancellation is the
			// caller's job via ctx.
			Timeout: 10 * time.Minute,
		},
	}
}

func (c *OllamaClient) Model() string {
	return c.model
}

func (c *OllamaClient) Chat(ctx context.Context, msgs []ChatMessage, opts ChatOptions) (string, error) {
	resp, err := c.doRequest(ctx, msgs, opts, false)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var payload ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}
	if payload.Error != "" {
		return "", fmt.Errorf("ollama error: %s", payload.Error)
	}
	return payload.Message.Content, nil
}

func (c *OllamaClient) StreamChat(ctx context.Context, msgs []ChatMessage, opts ChatOptions, onDelta func(string)) (string, error) {
	resp, err := c.doRequest(ctx, msgs, opts, true)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	var builder strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var chunk ollamaResponse
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			return builder.String(), fmt.Errorf("decode ollama stream chunk: %w", err)
		}
		if chunk.Error != "" {
			return builder.String(), fmt.Errorf("ollama error: %s", chunk.Error)
		}
		if chunk.Message.Content != "" {
			builder.WriteString(chunk.Message.Content)
			if onDelta != nil {
				onDelta(chunk.Message.Content)
			}
		}
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return builder.String(), fmt.Errorf("read ollama stream: %w", err)
	}
	return builder.String(), nil
}

func (c *OllamaClient) doRequest(ctx context.Context, msgs []ChatMessage, opts ChatOptions, stream bool) (*http.Response, error) {
	model := opts.Model
	if model == "" {
		model = c.model
	}
	request := ollamaRequest{
		Model:    model,
		Messages: msgs,
		Stream:   stream,
	}

	options := make(map[string]any)
	if opts.Temperature > 0 {
		options["temperature"] = opts.Temperature
	}
	if opts.TopP > 0 {
		options["top_p"] = opts.TopP
	}
	if opts.NumCtx > 0 {
		options["num_ctx"] = opts.NumCtx
	}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}
	if len(options) > 0 {
		request.Options = options
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}

	endpoint := c.baseURL + "/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, fmt.Errorf("ollama request failed: %s", strings.TrimSpace(string(raw)))
	}
	return resp, nil
}

type ollamaRequest struct {
	Model    string         `json:"model"`
	Messages []ChatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Model   string      `json:"model"`
	Message ChatMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error"`
}
