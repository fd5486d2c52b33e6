package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/ports"
)

// Mask replaces every redacted match.
const Mask = "***"

type redactMiddleware struct {
	next     ports.RunStore
	patterns []*regexp.Regexp
}

// NewRedaction returns a middleware that masks text matching any of the
// patterns in node inputs, outputs, errors, edge values and the output log
// before a snapshot is stored. The caller's snapshot is left untouched.
func NewRedaction(patterns []string) (Middleware, error) {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("redact pattern %q: %w", p, err)
		}
		compiled[i] = re
	}
	return func(next ports.RunStore) ports.RunStore {
		return &redactMiddleware{next: next, patterns: compiled}
	}, nil
}

func (m *redactMiddleware) Save(ctx context.Context, s *domain.FlowRunState) error {
	masked := s.Clone()
	for _, ns := range masked.Nodes {
		ns.Input = m.mask(ns.Input)
		ns.Output = m.mask(ns.Output)
		ns.Error = m.mask(ns.Error)
	}
	for k, v := range masked.EdgeValues {
		masked.EdgeValues[k] = m.mask(v)
	}
	for i := range masked.OutputLog {
		masked.OutputLog[i].Output = m.mask(masked.OutputLog[i].Output)
	}
	return m.next.Save(ctx, masked)
}

func (m *redactMiddleware) mask(text string) string {
	for _, re := range m.patterns {
		text = re.ReplaceAllString(text, Mask)
	}
	return text
}

func (m *redactMiddleware) Load(ctx context.Context, runID string) (*domain.FlowRunState, error) {
	return m.next.Load(ctx, runID)
}

func (m *redactMiddleware) List(ctx context.Context, flowID string) ([]string, error) {
	return m.next.List(ctx, flowID)
}

func (m *redactMiddleware) Delete(ctx context.Context, runID string) error {
	return m.next.Delete(ctx, runID)
}
