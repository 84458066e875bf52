package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Hooks lets the caller observe a round as it happens. All fields optional.
type Hooks struct {
	OnToken      func(delta string)
	OnToolCall   func(call ToolCall)
	OnToolResult func(call ToolCall, result string)
	OnRound      func(n int)
}

// AgentLoop drives the tool-augmented conversation: send messages, stream the
// reply, extract operation requests, execute them in order, feed results back,
// repeat until the model answers without requests.
type AgentLoop struct {
	Client    ChatClient
	Registry  *Registry
	Logger    *Logger
	Options   ChatOptions
	MaxRounds int
}

func NewAgentLoop(client ChatClient, reg *Registry, logger *Logger, opts ChatOptions, maxRounds int) *AgentLoop {
	if maxRounds <= 0 {
		maxRounds = 25
	}
	return &AgentLoop{
		Client:    client,
		Registry:  reg,
		Logger:    logger,
		Options:   opts,
		MaxRounds: maxRounds,
	}
}

type loopState int

const (
	stateAwaitingModel loopState = iota
	stateExecuting
)

// Run executes the loop over msgs and returns the final answer plus every
// message produced along the way (assistant replies and tool results), in
// order. A gateway failure aborts the round and is returned as an error;
// capability failures never are.
func (l *AgentLoop) Run(ctx context.Context, msgs []ChatMessage, tc *ToolContext, hooks Hooks) (string, []ChatMessage, error) {
	if l.Client == nil {
		return "", nil, errors.New("agent: no model client")
	}

	msgs = InjectToolCatalog(msgs, l.Registry)

	var produced []ChatMessage
	var response string
	state := stateAwaitingModel

	for round := 0; round < l.MaxRounds; {
		switch state {
		case stateAwaitingModel:
			if hooks.OnRound != nil {
				hooks.OnRound(round)
			}
			var err error
			response, err = l.Client.StreamChat(ctx, msgs, l.Options, hooks.OnToken)
			if err != nil {
				l.Logger.Error("model request failed", map[string]interface{}{"error": err.Error()})
				return "", produced, fmt.Errorf("model request failed: %w", err)
			}
			state = stateExecuting

		case stateExecuting:
			calls := ExtractToolCalls(response, l.Registry)
			if len(calls) == 0 {
				// Terminal state: a reply with no requests is the answer.
				return response, produced, nil
			}

			assistant := ChatMessage{Role: "assistant", Content: response}
			msgs = append(msgs, assistant)
			produced = append(produced, assistant)

			for _, call := range calls {
				if hooks.OnToolCall != nil {
					hooks.OnToolCall(call)
				}
				result := l.Registry.Execute(ctx, call, tc)
				if hooks.OnToolResult != nil {
					hooks.OnToolResult(call, result)
				}
				l.Logger.Info("operation executed", map[string]interface{}{
					"name": call.Name,
					"size": len(result),
				})
				toolMsg := ChatMessage{
					Role:    "user",
					Content: fmt.Sprintf("Result of %s:\n%s", call.Name, strings.TrimSpace(result)),
				}
				msgs = append(msgs, toolMsg)
				produced = append(produced, toolMsg)
			}
			state = stateAwaitingModel
			round++
		}
	}

	// Round cap hit: return the last model text rather than looping forever.
	note := "\n\n[stopped: reached the maximum number of tool rounds]"
	return strings.TrimSpace(response) + note, produced, nil
}
