package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/conductor"
	"github.com/aretw0/conductor/internal/logging"
	presentation "github.com/aretw0/conductor/internal/presentation/graph"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/graph"
	"github.com/aretw0/conductor/pkg/runner"
	"github.com/aretw0/conductor/pkg/schedule"
	"github.com/aretw0/conductor/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"
)

// Engine compiles and runs flows.
type Engine interface {
	Compile(g *domain.FlowGraph) (*domain.ExecutionStrategy, error)
	Run(ctx context.Context, g *domain.FlowGraph, opts conductor.RunOptions) (*domain.FlowRunState, error)
}

// RunResult is the structured answer of run_flow.
type RunResult struct {
	RunID   string            `json:"run_id" jsonschema_description:"Identifier of the run"`
	Status  domain.RunStatus  `json:"status" jsonschema_description:"Final run status: done or error"`
	Aborted bool              `json:"aborted"`
	Outputs map[string]string `json:"outputs" jsonschema_description:"Output of every node that succeeded, by node id"`
	Errors  map[string]string `json:"errors,omitempty" jsonschema_description:"Error of every node that failed, by node id"`
}

// CronInfo is the structured answer of describe_cron.
type CronInfo struct {
	Expression  string      `json:"expression"`
	Description string      `json:"description"`
	Next        []time.Time `json:"next"`
}

// Server exposes stored flows as MCP tools.
type Server struct {
	engine    Engine
	flows     *session.Manager
	logger    *slog.Logger
	now       func() time.Time
	mcpServer *server.MCPServer
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates an MCP server over the flows held by m.
func NewServer(engine Engine, m *session.Manager, opts ...Option) *Server {
	s := &Server{
		engine: engine,
		flows:  m,
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mcpServer = server.NewMCPServer("conductor-mcp", strings.TrimSpace(conductor.Version),
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server, for in-process clients.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves on stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves over SSE on addr until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sse := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sse.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sse.MessageHandler()))
	httpServer := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("mcp server listening (sse)", "address", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_flows",
		mcp.WithDescription("List stored flows, optionally restricted to a folder."),
		mcp.WithString("folder", mcp.Description("Folder to list (optional)")),
	), s.handleListFlows)

	s.mcpServer.AddTool(mcp.NewTool("get_flow",
		mcp.WithDescription("Get a flow document."),
		mcp.WithString("flow_id", mcp.Required(), mcp.Description("Flow identifier")),
		mcp.WithString("format", mcp.Description("json (default), yaml or mermaid"), mcp.Enum("json", "yaml", "mermaid")),
	), s.handleGetFlow)

	s.mcpServer.AddTool(mcp.NewTool("compile_flow",
		mcp.WithDescription("Compile a flow into its execution strategy: phases of units, in run order."),
		mcp.WithString("flow_id", mcp.Required(), mcp.Description("Flow identifier")),
	), s.handleCompileFlow)

	s.mcpServer.AddTool(mcp.NewTool("run_flow",
		mcp.WithDescription("Run a flow to completion and return every node's output."),
		mcp.WithString("flow_id", mcp.Required(), mcp.Description("Flow identifier")),
		mcp.WithString("input", mcp.Description("Run input, handed to trigger nodes")),
		mcp.WithOutputSchema[RunResult](),
	), mcp.NewStructuredToolHandler(s.handleRunFlow))

	s.mcpServer.AddTool(mcp.NewTool("describe_cron",
		mcp.WithDescription("Validate a 5-field cron expression, describe it in English and list its next fire times."),
		mcp.WithString("expression", mcp.Required(), mcp.Description("Cron expression, e.g. '0 9 * * 1-5'")),
		mcp.WithNumber("count", mcp.Description("How many fire times to list (default 3, max 20)")),
	), s.handleDescribeCron)
}

func (s *Server) handleListFlows(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.flows.List(ctx, req.GetString("folder", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list flows: %v", err)), nil
	}
	return jsonResult(list)
}

func (s *Server) handleGetFlow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("flow_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	g, err := s.flows.Load(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load flow: %v", err)), nil
	}

	switch req.GetString("format", "json") {
	case "mermaid":
		return mcp.NewToolResultText(presentation.GenerateMermaid(g, nil)), nil
	case "yaml":
		data, err := graph.Encode(g, graph.FormatYAML)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode flow: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	default:
		return jsonResult(g)
	}
}

func (s *Server) handleCompileFlow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("flow_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	g, err := s.flows.Load(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load flow: %v", err)), nil
	}
	strategy, err := s.engine.Compile(g)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(strategy)
}

func (s *Server) handleRunFlow(ctx context.Context, req mcp.CallToolRequest, args map[string]any) (RunResult, error) {
	id, _ := args["flow_id"].(string)
	if id == "" {
		return RunResult{}, errors.New("flow_id is required")
	}
	input, _ := args["input"].(string)
	clean, err := runner.SanitizeInput(input)
	if err != nil {
		s.logger.Warn("run input rejected", "err", err, "size", len(input))
		return RunResult{}, fmt.Errorf("input rejected: %w", err)
	}

	g, err := s.flows.Load(ctx, id)
	if err != nil {
		return RunResult{}, fmt.Errorf("load flow: %w", err)
	}
	state, err := s.engine.Run(ctx, g, conductor.RunOptions{Input: clean})
	if err != nil {
		return RunResult{}, fmt.Errorf("run flow: %w", err)
	}

	res := RunResult{
		RunID:   state.RunID,
		Status:  state.Status,
		Aborted: state.Aborted,
		Outputs: make(map[string]string),
	}
	for nodeID, ns := range state.Nodes {
		switch ns.Status {
		case domain.NodeSuccess:
			res.Outputs[nodeID] = ns.Output
		case domain.NodeError:
			if res.Errors == nil {
				res.Errors = make(map[string]string)
			}
			res.Errors[nodeID] = ns.Error
		}
	}
	s.logger.Info("flow run via mcp", "flow_id", id, "run_id", state.RunID, "status", state.Status)
	return res, nil
}

func (s *Server) handleDescribeCron(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	expr, err := req.RequireString("expression")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if strings.TrimSpace(expr) == "" {
		return mcp.NewToolResultError("expression is empty"), nil
	}
	if err := schedule.Validate(expr); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	count := int(req.GetFloat("count", 3))
	if count < 1 || count > 20 {
		count = 3
	}
	next, err := schedule.NextN(expr, s.now(), count)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(CronInfo{Expression: expr, Description: schedule.Describe(expr), Next: next})
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource("conductor://flows", "Stored flows",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		list, err := s.flows.List(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("list flows: %w", err)
		}
		data, err := json.Marshal(list)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "conductor://flows",
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
