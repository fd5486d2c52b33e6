package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSession struct {
	mock.Mock
}

func (m *mockSession) CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := m.Called(req.Params.Name, req.Params.Arguments)
	res, _ := args.Get(0).(*mcp.CallToolResult)
	return res, args.Error(1)
}

func (m *mockSession) Close() error {
	return m.Called().Error(0)
}

func TestClientCallTool(t *testing.T) {
	sess := new(mockSession)
	toolArgs := map[string]any{"q": "go"}
	sess.On("CallTool", "search", toolArgs).Return(&mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent("one"), mcp.NewTextContent("two")},
	}, nil).Once()
	sess.On("CallTool", "broken", mock.Anything).Return(mcp.NewToolResultError("bad query"), nil).Once()
	sess.On("CallTool", "offline", mock.Anything).Return(nil, errors.New("pipe closed")).Once()
	sess.On("Close").Return(nil).Once()

	dials := 0
	c := NewClient(map[string]ServerConfig{"docs": {Command: "docs-server"}})
	c.dial = func(_ context.Context, name string, cfg ServerConfig) (toolSession, error) {
		dials++
		assert.Equal(t, "docs", name)
		assert.Equal(t, "docs-server", cfg.Command)
		return sess, nil
	}

	ctx := context.Background()
	out, err := c.CallTool(ctx, "docs", "search", toolArgs)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo", out)

	_, err = c.CallTool(ctx, "docs", "broken", nil)
	assert.ErrorContains(t, err, "docs/broken: bad query")

	_, err = c.CallTool(ctx, "docs", "offline", nil)
	assert.ErrorContains(t, err, "pipe closed")

	assert.Equal(t, 1, dials, "sessions are reused")
	require.NoError(t, c.Close())
	sess.AssertExpectations(t)
}

func TestClientUnknownServer(t *testing.T) {
	c := NewClient(nil)
	_, err := c.CallTool(context.Background(), "nope", "x", nil)
	assert.ErrorIs(t, err, ErrUnknownServer)
}

func TestClientDialFailure(t *testing.T) {
	c := NewClient(map[string]ServerConfig{"docs": {}})
	c.dial = func(context.Context, string, ServerConfig) (toolSession, error) {
		return nil, errors.New("exec: not found")
	}
	_, err := c.CallTool(context.Background(), "docs", "x", nil)
	assert.ErrorContains(t, err, "not found")
	assert.NoError(t, c.Close())
}
