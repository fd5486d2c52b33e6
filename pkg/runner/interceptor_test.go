package runner_test

import (
	"context"
	"testing"

	"github.com/aretw0/conductor"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/nodes"
	"github.com/aretw0/conductor/pkg/ports"
	"github.com/aretw0/conductor/pkg/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardDeniesKinds(t *testing.T) {
	guarded := runner.Guard(nodes.New(), runner.Chain(runner.AutoApprove(), runner.DenyKinds(domain.KindData)))
	eng := conductor.New(conductor.WithNodeExecutor(guarded))

	state, err := eng.Run(context.Background(), pipeline(t), conductor.RunOptions{Input: "x"})
	require.NoError(t, err)
	assert.Equal(t, domain.RunError, state.Status)
	assert.Contains(t, state.Nodes["shape"].Error, "execution denied: data nodes are disabled")
	assert.Equal(t, domain.NodeSuccess, state.Nodes["start"].Status)
}

func TestConfirm(t *testing.T) {
	req := func(kind domain.NodeKind) ports.NodeRequest {
		return ports.NodeRequest{Node: &domain.FlowNode{ID: "n", Kind: kind, Label: "Fetch"}}
	}
	confirm := runner.Confirm(prompter("yes\nno\n"), domain.KindHTTP)

	ok, _, err := confirm(context.Background(), req(domain.KindData))
	require.NoError(t, err)
	assert.True(t, ok, "kinds outside the list pass without asking")

	ok, _, err = confirm(context.Background(), req(domain.KindHTTP))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, reason, err := confirm(context.Background(), req(domain.KindHTTP))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "denied by user", reason)

	_, _, err = confirm(context.Background(), req(domain.KindHTTP))
	assert.Error(t, err, "exhausted input")
}
