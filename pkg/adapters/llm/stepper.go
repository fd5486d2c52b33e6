// Package llm adapts langchaingo models to the agent stepper port.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/conductor/internal/logging"
	"github.com/aretw0/conductor/pkg/ports"
	"github.com/tmc/langchaingo/llms"
)

// ErrEmptyResponse is returned when the model produced no choices.
var ErrEmptyResponse = errors.New("model returned no choices")

// Stepper runs agent steps against langchaingo models. Requests carrying an
// agent id with a registered model use that model; everything else uses the
// default one.
type Stepper struct {
	model  llms.Model
	logger *slog.Logger

	mu     sync.RWMutex
	agents map[string]llms.Model
}

var _ ports.AgentStepper = (*Stepper)(nil)

// Option configures a Stepper.
type Option func(*Stepper)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Stepper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAgent routes requests for agentID to model.
func WithAgent(agentID string, model llms.Model) Option {
	return func(s *Stepper) {
		s.agents[agentID] = model
	}
}

// NewStepper creates a stepper with a default model.
func NewStepper(model llms.Model, opts ...Option) *Stepper {
	s := &Stepper{
		model:  model,
		logger: logging.NewNop(),
		agents: make(map[string]llms.Model),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterAgent routes requests for agentID to model.
func (s *Stepper) RegisterAgent(agentID string, model llms.Model) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[agentID] = model
}

func (s *Stepper) modelFor(agentID string) llms.Model {
	if agentID != "" {
		s.mu.RLock()
		m, ok := s.agents[agentID]
		s.mu.RUnlock()
		if ok {
			return m
		}
	}
	return s.model
}

// Step sends the resolved prompt, with the node's system prompt, and returns
// the text of the first choice.
func (s *Stepper) Step(ctx context.Context, req ports.AgentRequest) (string, error) {
	model := s.modelFor(req.AgentID)
	if model == nil {
		return "", errors.New("no language model configured")
	}

	var messages []llms.MessageContent
	if req.Config.SystemPrompt != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.Config.SystemPrompt))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Input))

	var options []llms.CallOption
	if req.Config.Model != "" {
		options = append(options, llms.WithModel(req.Config.Model))
	}
	if req.Config.Temperature != nil {
		options = append(options, llms.WithTemperature(*req.Config.Temperature))
	}
	if req.Config.MaxTokens > 0 {
		options = append(options, llms.WithMaxTokens(req.Config.MaxTokens))
	}

	var nodeID string
	if req.Node != nil {
		nodeID = req.Node.ID
	}
	start := time.Now()
	resp, err := model.GenerateContent(ctx, messages, options...)
	if err != nil {
		return "", fmt.Errorf("LLM call failed: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	choice := resp.Choices[0]
	s.logger.Debug("agent step finished",
		"run_id", req.RunID,
		"node_id", nodeID,
		"stop_reason", choice.StopReason,
		"duration", time.Since(start),
	)
	return strings.TrimSpace(choice.Content), nil
}

// Echo is a stepper that answers with the prompt it received. It needs no
// model and keeps collapsed step markers intact, so dry runs exercise the
// whole plan.
var Echo ports.AgentStepper = ports.AgentStepperFunc(func(_ context.Context, req ports.AgentRequest) (string, error) {
	return req.Input, nil
})
