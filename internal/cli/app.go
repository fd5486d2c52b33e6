package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aretw0/conductor"
	"github.com/aretw0/conductor/internal/config"
	"github.com/aretw0/conductor/pkg/adapters/file"
	"github.com/aretw0/conductor/pkg/adapters/llm"
	mcpadapter "github.com/aretw0/conductor/pkg/adapters/mcp"
	"github.com/aretw0/conductor/pkg/adapters/memory"
	redisadapter "github.com/aretw0/conductor/pkg/adapters/redis"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/graph"
	"github.com/aretw0/conductor/pkg/nodes"
	"github.com/aretw0/conductor/pkg/observability"
	"github.com/aretw0/conductor/pkg/persistence/middleware"
	"github.com/aretw0/conductor/pkg/ports"
	"github.com/aretw0/conductor/pkg/session"
	goredis "github.com/redis/go-redis/v9"
)

// App is the wired set of components a command works with.
type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Flows   ports.FlowStore
	Runs    ports.RunStore
	Locker  ports.DistributedLocker
	Metrics *observability.Metrics
	Nodes   *nodes.Executor
	Engine  *conductor.Engine

	mcp    *mcpadapter.Client
	closer []func() error
}

// BuildOption adjusts the wiring before components are created.
type BuildOption func(*buildConfig)

type buildConfig struct {
	executor func(*nodes.Executor) ports.NodeExecutor
	agent    func(llm.ProviderConfig) (ports.AgentStepper, error)
}

// WithExecutorWrapper wraps the default node executor, e.g. with a
// confirmation guard.
func WithExecutorWrapper(fn func(*nodes.Executor) ports.NodeExecutor) BuildOption {
	return func(b *buildConfig) {
		b.executor = fn
	}
}

// Build wires stores, the node executor, the agent backend and metrics
// from cfg.
func Build(cfg config.Config, logger *slog.Logger, opts ...BuildOption) (*App, error) {
	b := buildConfig{agent: newStepper}
	for _, opt := range opts {
		opt(&b)
	}

	app := &App{Config: cfg, Logger: logger}
	if err := app.openStores(); err != nil {
		return nil, err
	}
	if err := app.protectRuns(); err != nil {
		_ = app.Close()
		return nil, err
	}

	if cfg.Metrics.Enabled {
		app.Metrics = observability.NewMetrics(observability.WithProcessCollectors())
	}

	tools, err := nodes.LoadTools(toolsPath(cfg.Nodes))
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	nodeOpts := []nodes.Option{
		nodes.WithProcesses(tools),
		nodes.WithInlineCode(cfg.Nodes.InlineCode),
		nodes.WithLogger(logger),
	}
	if cfg.Nodes.BaseDir != "" {
		nodeOpts = append(nodeOpts, nodes.WithBaseDir(cfg.Nodes.BaseDir))
	}
	if len(cfg.MCP.Servers) > 0 {
		servers := make(map[string]mcpadapter.ServerConfig, len(cfg.MCP.Servers))
		for name, s := range cfg.MCP.Servers {
			servers[name] = mcpadapter.ServerConfig{Command: s.Command, Args: s.Args, Env: s.Env}
		}
		app.mcp = mcpadapter.NewClient(servers, mcpadapter.WithClientLogger(logger))
		app.closer = append(app.closer, app.mcp.Close)
		nodeOpts = append(nodeOpts, nodes.WithMCP(app.mcp))
	}
	app.Nodes = nodes.New(nodeOpts...)

	var executor ports.NodeExecutor = app.Nodes
	if b.executor != nil {
		executor = b.executor(app.Nodes)
	}

	agent, err := app.agent(b.agent)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	engineOpts := []conductor.Option{
		conductor.WithLogger(logger),
		conductor.WithAgentStepper(agent),
		conductor.WithNodeExecutor(executor),
		conductor.WithRunStore(app.Runs),
		conductor.WithUndoLimit(cfg.Editor.UndoLimit),
		conductor.WithDefaultMaxIterations(cfg.Engine.MaxIterations),
		conductor.WithConvergenceThreshold(cfg.Engine.ConvergenceThreshold),
	}
	if app.Metrics != nil {
		engineOpts = append(engineOpts, conductor.WithMetrics(app.Metrics))
	}
	app.Engine = conductor.New(engineOpts...)
	return app, nil
}

func (a *App) openStores() error {
	st := a.Config.Store
	switch st.Backend {
	case config.BackendFile:
		flows, err := file.NewFlowStore(filepath.Join(st.Dir, "flows"))
		if err != nil {
			return err
		}
		runs, err := file.NewRunStore(filepath.Join(st.Dir, "runs"))
		if err != nil {
			return err
		}
		a.Flows, a.Runs = flows, runs

	case config.BackendRedis:
		client := redisadapter.NewClient(st.Redis.Addr, st.Redis.Password, st.Redis.DB)
		if err := client.Ping(context.Background()).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("redis %s: %w", st.Redis.Addr, err)
		}
		a.useRedis(client)

	default:
		a.Flows, a.Runs = memory.NewFlowStore(), memory.NewRunStore()
	}
	a.Logger.Debug("stores opened", "backend", st.Backend)
	return nil
}

// protectRuns wraps the run store with redaction, then encryption.
func (a *App) protectRuns() error {
	rc := a.Config.Store.Runs
	var mws []middleware.Middleware
	if len(rc.Redact) > 0 {
		mw, err := middleware.NewRedaction(rc.Redact)
		if err != nil {
			return err
		}
		mws = append(mws, mw)
	}
	if rc.EncryptionKey != "" {
		active, err := middleware.DecodeKey(rc.EncryptionKey)
		if err != nil {
			return fmt.Errorf("store.runs.encryption_key: %w", err)
		}
		cfg := middleware.EncryptionConfig{ActiveKey: active}
		for i, k := range rc.FallbackKeys {
			key, err := middleware.DecodeKey(k)
			if err != nil {
				return fmt.Errorf("store.runs.fallback_keys[%d]: %w", i, err)
			}
			cfg.FallbackKeys = append(cfg.FallbackKeys, key)
		}
		mw, err := middleware.NewEncryption(cfg)
		if err != nil {
			return err
		}
		mws = append(mws, mw)
	}
	if len(mws) > 0 {
		a.Runs = middleware.Wrap(a.Runs, mws...)
		a.Logger.Debug("run store protected", "redact", len(rc.Redact), "encrypted", rc.EncryptionKey != "")
	}
	return nil
}

func (a *App) useRedis(client *goredis.Client) {
	st := a.Config.Store.Redis
	opts := []redisadapter.Option{redisadapter.WithPrefix(st.Prefix)}
	if st.TTL > 0 {
		opts = append(opts, redisadapter.WithTTL(st.TTL))
	}
	a.Flows = redisadapter.NewFlowStore(client, opts...)
	a.Runs = redisadapter.NewRunStore(client, opts...)
	a.Locker = redisadapter.NewLocker(client, st.Prefix)
	a.closer = append(a.closer, client.Close)
}

// newStepper returns nil when no provider is configured.
func newStepper(cfg llm.ProviderConfig) (ports.AgentStepper, error) {
	model, err := llm.NewModel(context.Background(), cfg)
	if err != nil || model == nil {
		return nil, err
	}
	return llm.NewStepper(model), nil
}

func (a *App) agent(factory func(llm.ProviderConfig) (ports.AgentStepper, error)) (ports.AgentStepper, error) {
	c := a.Config.LLM
	stepper, err := factory(llm.ProviderConfig{Provider: c.Provider, Model: c.Model, BaseURL: c.BaseURL, APIKeyEnv: c.APIKeyEnv})
	if err != nil {
		return nil, fmt.Errorf("llm provider %q: %w", c.Provider, err)
	}
	if stepper == nil {
		a.Logger.Debug("no llm provider configured, agents echo their prompt")
		return llm.Echo, nil
	}
	a.Logger.Debug("llm provider ready", "provider", c.Provider, "model", c.Model)
	return stepper, nil
}

// Sessions returns a flow manager over the app's store and locker.
func (a *App) Sessions() *session.Manager {
	opts := []session.Option{session.WithLogger(a.Logger)}
	if a.Locker != nil {
		opts = append(opts, session.WithLocker(a.Locker))
	}
	return session.NewManager(a.Flows, opts...)
}

// Close releases external connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closer) - 1; i >= 0; i-- {
		if err := a.closer[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closer = nil
	return errors.Join(errs...)
}

// toolsPath resolves the tools file against the base dir when relative.
func toolsPath(c config.NodesConfig) string {
	if c.ToolsFile == "" || filepath.IsAbs(c.ToolsFile) || c.BaseDir == "" {
		return c.ToolsFile
	}
	candidate := filepath.Join(c.BaseDir, c.ToolsFile)
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return c.ToolsFile
}

// LoadFlow reads a flow document from disk, or from the store when ref
// names no file.
func (a *App) LoadFlow(ctx context.Context, ref string) (*domain.FlowGraph, error) {
	if _, err := os.Stat(ref); err == nil {
		return graph.ReadFile(ref)
	}
	g, err := a.Flows.Load(ctx, ref)
	if err != nil {
		if errors.Is(err, domain.ErrFlowNotFound) {
			return nil, fmt.Errorf("%s: no such file or stored flow: %w", ref, err)
		}
		return nil, err
	}
	return g, nil
}
