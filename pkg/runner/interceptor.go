package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/ports"
)

// ErrDenied is returned for nodes an interceptor refused to run.
var ErrDenied = errors.New("execution denied")

// Interceptor decides whether a node may execute. A denial carries a reason;
// an error aborts the decision itself.
type Interceptor func(ctx context.Context, req ports.NodeRequest) (allowed bool, reason string, err error)

// Chain runs interceptors in order; the first denial wins.
func Chain(interceptors ...Interceptor) Interceptor {
	return func(ctx context.Context, req ports.NodeRequest) (bool, string, error) {
		for _, i := range interceptors {
			allowed, reason, err := i(ctx, req)
			if err != nil {
				return false, "", err
			}
			if !allowed {
				return false, reason, nil
			}
		}
		return true, "", nil
	}
}

// AutoApprove allows everything.
func AutoApprove() Interceptor {
	return func(context.Context, ports.NodeRequest) (bool, string, error) {
		return true, "", nil
	}
}

// DenyKinds refuses every node of the given kinds.
func DenyKinds(kinds ...domain.NodeKind) Interceptor {
	return func(_ context.Context, req ports.NodeRequest) (bool, string, error) {
		if req.Node != nil && hasKind(kinds, req.Node.Kind) {
			return false, fmt.Sprintf("%s nodes are disabled", req.Node.Kind), nil
		}
		return true, "", nil
	}
}

// Confirm asks before running nodes of the given kinds. Only "y" or "yes"
// approves.
func Confirm(p Prompter, kinds ...domain.NodeKind) Interceptor {
	return func(ctx context.Context, req ports.NodeRequest) (bool, string, error) {
		if req.Node == nil || !hasKind(kinds, req.Node.Kind) {
			return true, "", nil
		}
		answer, err := p.Prompt(ctx, fmt.Sprintf("Run %s node %q? [y/N] ", req.Node.Kind, req.Node.Label))
		if err != nil {
			return false, "", err
		}
		switch strings.ToLower(answer) {
		case "y", "yes":
			return true, "", nil
		}
		return false, "denied by user", nil
	}
}

// Guard wraps a node executor with an interceptor.
func Guard(next ports.NodeExecutor, i Interceptor) ports.NodeExecutor {
	return ports.NodeExecutorFunc(func(ctx context.Context, req ports.NodeRequest) (ports.NodeResult, error) {
		allowed, reason, err := i(ctx, req)
		if err != nil {
			return ports.NodeResult{}, err
		}
		if !allowed {
			return ports.NodeResult{}, fmt.Errorf("%w: %s", ErrDenied, reason)
		}
		return next.Execute(ctx, req)
	})
}

func hasKind(kinds []domain.NodeKind, k domain.NodeKind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}
