package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/conductor"
	"github.com/aretw0/conductor/internal/logging"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// ErrUnknownServer is returned for servers missing from the client's config.
var ErrUnknownServer = errors.New("unknown mcp server")

// ServerConfig launches one MCP server as a subprocess speaking stdio.
type ServerConfig struct {
	Command string
	Args    []string
	Env     map[string]string
}

// toolSession is the part of an MCP client session the caller needs.
type toolSession interface {
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

type dialFunc func(ctx context.Context, name string, cfg ServerConfig) (toolSession, error)

// Client calls tools on configured MCP servers for mcp-tool nodes.
// Sessions are started on first use and kept until Close.
type Client struct {
	servers map[string]ServerConfig
	dial    dialFunc
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[string]toolSession
}

// ClientOption configures a Client.
type ClientOption func(*Client)

func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for the named servers.
func NewClient(servers map[string]ServerConfig, opts ...ClientOption) *Client {
	c := &Client{
		servers:  servers,
		dial:     dialStdio,
		logger:   logging.NewNop(),
		sessions: make(map[string]toolSession),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func dialStdio(ctx context.Context, name string, cfg ServerConfig) (toolSession, error) {
	env := make([]string, 0, len(cfg.Env))
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)

	c, err := client.NewStdioMCPClient(cfg.Command, env, cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("start mcp server %s: %w", name, err)
	}

	init := mcp.InitializeRequest{}
	init.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	init.Params.ClientInfo = mcp.Implementation{Name: "conductor", Version: strings.TrimSpace(conductor.Version)}
	if _, err := c.Initialize(ctx, init); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("initialize mcp server %s: %w", name, err)
	}
	return c, nil
}

func (c *Client) session(ctx context.Context, server string) (toolSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[server]; ok {
		return s, nil
	}
	cfg, ok := c.servers[server]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownServer, server)
	}
	s, err := c.dial(ctx, server, cfg)
	if err != nil {
		return nil, err
	}
	c.logger.Info("mcp server connected", "server", server, "command", cfg.Command)
	c.sessions[server] = s
	return s, nil
}

// CallTool invokes tool on server and joins the text content of the result.
// Results flagged as errors are returned as errors.
func (c *Client) CallTool(ctx context.Context, server, tool string, args map[string]any) (string, error) {
	s, err := c.session(ctx, server)
	if err != nil {
		return "", err
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args
	res, err := s.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("call %s/%s: %w", server, tool, err)
	}

	var parts []string
	for _, content := range res.Content {
		if text, ok := mcp.AsTextContent(content); ok {
			parts = append(parts, text.Text)
		}
	}
	out := strings.Join(parts, "\n")
	if res.IsError {
		return "", fmt.Errorf("%s/%s: %s", server, tool, out)
	}
	c.logger.Debug("mcp tool called", "server", server, "tool", tool, "bytes", len(out))
	return out, nil
}

// Close ends every session.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for name, s := range c.sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
		delete(c.sessions, name)
	}
	return errors.Join(errs...)
}
