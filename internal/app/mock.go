package app

import (
	"context"
	"errors"
	"sync"
)

// MockChatClient replays a scripted queue of responses. Used by tests and by
// --mock runs where no Ollama server is available.
type MockChatClient struct {
	mu        sync.Mutex
	Responses []string
	Errs      []error
	Requests  [][]ChatMessage
	ModelName string
}

func NewMockChatClient(responses ...string) *MockChatClient {
	return &MockChatClient{Responses: responses, ModelName: "mock"}
}

func (c *MockChatClient) Model() string {
	if c.ModelName == "" {
		return "mock"
	}
	return c.ModelName
}

func (c *MockChatClient) Chat(ctx context.Context, msgs []ChatMessage, opts ChatOptions) (string, error) {
	return c.next(msgs)
}

func (c *MockChatClient) StreamChat(ctx context.Context, msgs []ChatMessage, opts ChatOptions, onDelta func(string)) (string, error) {
	out, err := c.next(msgs)
	if err != nil {
		return "", err
	}
	if onDelta != nil {
		// Deliver in two fragments so streaming callers see accumulation.
		half := len(out) / 2
		onDelta(out[:half])
		onDelta(out[half:])
	}
	return out, nil
}

func (c *MockChatClient) next(msgs []ChatMessage) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := make([]ChatMessage, len(msgs))
	copy(copied, msgs)
	c.Requests = append(c.Requests, copied)
	if len(c.Errs) > 0 {
		err := c.Errs[0]
		c.Errs = c.Errs[1:]
		if err != nil {
			return "", err
		}
	}
	if len(c.Responses) == 0 {
		return "", errors.New("mock: no scripted responses left")
	}
	out := c.Responses[0]
	c.Responses = c.Responses[1:]
	return out, nil
}
