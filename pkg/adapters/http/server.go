package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/conductor"
	"github.com/aretw0/conductor/internal/logging"
	presentation "github.com/aretw0/conductor/internal/presentation/graph"
	"github.com/aretw0/conductor/pkg/adapters/memory"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/graph"
	"github.com/aretw0/conductor/pkg/ports"
	"github.com/aretw0/conductor/pkg/runner"
	"github.com/aretw0/conductor/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// maxBodyBytes bounds flow documents and run requests.
const maxBodyBytes = 4 << 20

// Engine compiles and runs flows.
type Engine interface {
	Compile(g *domain.FlowGraph) (*domain.ExecutionStrategy, error)
	Run(ctx context.Context, g *domain.FlowGraph, opts conductor.RunOptions) (*domain.FlowRunState, error)
}

// Server exposes flows and runs over JSON.
type Server struct {
	engine  Engine
	flows   *session.Manager
	runs    ports.RunStore
	streams *StreamManager
	metrics http.Handler
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	active map[string]*activeRun
}

type activeRun struct {
	flowID    string
	ctrl      *conductor.Controller
	startedAt time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithRunStore reads and records finished runs in s. Defaults to an
// in-memory store.
func WithRunStore(s ports.RunStore) Option {
	return func(srv *Server) {
		srv.runs = s
	}
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(srv *Server) {
		srv.metrics = h
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(srv *Server) {
		srv.logger = logger
	}
}

// NewServer creates a server over the flows held by m.
func NewServer(engine Engine, m *session.Manager, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		engine: engine,
		flows:  m,
		logger: logging.NewNop(),
		ctx:    ctx,
		cancel: cancel,
		active: make(map[string]*activeRun),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.runs == nil {
		s.runs = memory.NewRunStore()
	}
	s.streams = NewStreamManager(s.logger)
	return s
}

// Handler returns the routed API with CORS enabled.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.health)
	r.Get("/info", s.info)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/flows", func(r chi.Router) {
		r.Get("/", s.listFlows)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getFlow)
			r.Put("/", s.putFlow)
			r.Delete("/", s.deleteFlow)
			r.Get("/strategy", s.strategy)
			r.Get("/mermaid", s.mermaid)
			r.Get("/runs", s.listRuns)
			r.Post("/runs", s.startRun)
		})
	})

	r.Route("/runs/{id}", func(r chi.Router) {
		r.Get("/", s.getRun)
		r.Get("/events", s.events)
		r.Post("/abort", s.steer((*conductor.Controller).Abort))
		r.Post("/pause", s.steer((*conductor.Controller).Pause))
		r.Post("/resume", s.steer((*conductor.Controller).Resume))
	})
	return enableCORS(r)
}

// Close aborts active runs and waits for them to be recorded.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	for _, run := range s.active {
		run.ctrl.Abort()
	}
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) info(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	active := len(s.active)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"app":         "conductor",
		"version":     strings.TrimSpace(conductor.Version),
		"active_runs": active,
	})
}

func (s *Server) listFlows(w http.ResponseWriter, r *http.Request) {
	list, err := s.flows.List(r.Context(), r.URL.Query().Get("folder"))
	if err != nil {
		s.fail(w, "list flows", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getFlow(w http.ResponseWriter, r *http.Request) {
	g, err := s.flows.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "load flow", err)
		return
	}
	if r.URL.Query().Get("format") == "yaml" {
		data, err := graph.Encode(g, graph.FormatYAML)
		if err != nil {
			s.fail(w, "encode flow", err)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(data)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) putFlow(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	format := graph.FormatJSON
	if ct := r.Header.Get("Content-Type"); strings.Contains(ct, "yaml") {
		format = graph.FormatYAML
	}
	g, err := graph.Decode(data, format)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid flow: %v", err), http.StatusBadRequest)
		return
	}
	g.ID = chi.URLParam(r, "id")
	if err := graph.Check(g); err != nil {
		http.Error(w, fmt.Sprintf("invalid flow: %v", err), http.StatusUnprocessableEntity)
		return
	}
	if err := s.flows.Save(r.Context(), g); err != nil {
		s.fail(w, "save flow", err)
		return
	}
	s.logger.Info("flow saved", "flow_id", g.ID, "nodes", len(g.Nodes))
	writeJSON(w, http.StatusOK, g.Summary())
}

func (s *Server) deleteFlow(w http.ResponseWriter, r *http.Request) {
	if err := s.flows.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, "delete flow", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) strategy(w http.ResponseWriter, r *http.Request) {
	g, err := s.flows.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "load flow", err)
		return
	}
	strategy, err := s.engine.Compile(g)
	if err != nil {
		s.fail(w, "compile flow", err)
		return
	}
	writeJSON(w, http.StatusOK, strategy)
}

// mermaid renders the flow; ?run=<id> paints that run's node statuses.
func (s *Server) mermaid(w http.ResponseWriter, r *http.Request) {
	g, err := s.flows.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "load flow", err)
		return
	}
	var overlay *presentation.Overlay
	if runID := r.URL.Query().Get("run"); runID != "" {
		state, err := s.runs.Load(r.Context(), runID)
		if err != nil {
			s.fail(w, "load run", err)
			return
		}
		overlay = presentation.OverlayFromRun(state)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, presentation.GenerateMermaid(g, overlay))
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	ids, err := s.runs.List(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "list runs", err)
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

type runRequest struct {
	Input       string   `json:"input"`
	RunID       string   `json:"run_id,omitempty"`
	Breakpoints []string `json:"breakpoints,omitempty"`
	SkipNodes   []string `json:"skip_nodes,omitempty"`
}

type runAccepted struct {
	RunID  string `json:"run_id"`
	FlowID string `json:"flow_id"`
	Status string `json:"status"`
}

// startRun launches a run in the background and answers 202 with its id.
// With ?wait=true it answers with the final state instead.
func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}
	input, err := runner.SanitizeInput(req.Input)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid input: %v", err), http.StatusBadRequest)
		s.logger.Warn("run input rejected", "err", err, "size", len(req.Input))
		return
	}

	g, err := s.flows.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "load flow", err)
		return
	}
	if _, err := s.engine.Compile(g); err != nil {
		s.fail(w, "compile flow", err)
		return
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	ctrl := conductor.NewController(req.Breakpoints...)

	s.mu.Lock()
	if _, busy := s.active[runID]; busy {
		s.mu.Unlock()
		http.Error(w, "run id already active", http.StatusConflict)
		return
	}
	s.active[runID] = &activeRun{flowID: g.ID, ctrl: ctrl, startedAt: time.Now()}
	s.mu.Unlock()

	cb := domain.Callbacks{OnEvent: func(_ context.Context, e domain.Event) {
		if data, err := json.Marshal(e); err == nil {
			s.streams.Broadcast(runID, string(data))
		}
	}}
	opts := conductor.RunOptions{RunID: runID, Input: input, SkipNodes: req.SkipNodes, Controller: ctrl, Callbacks: &cb}

	if r.URL.Query().Get("wait") == "true" {
		state, err := s.execute(r.Context(), g, opts)
		if err != nil {
			s.fail(w, "run flow", err)
			return
		}
		writeJSON(w, http.StatusOK, state)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.execute(s.ctx, g, opts); err != nil {
			s.logger.Error("background run failed", "run_id", runID, "flow_id", g.ID, "err", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, runAccepted{RunID: runID, FlowID: g.ID, Status: string(domain.RunRunning)})
}

// execute runs g, records the final state and closes its event streams.
func (s *Server) execute(ctx context.Context, g *domain.FlowGraph, opts conductor.RunOptions) (*domain.FlowRunState, error) {
	defer func() {
		s.mu.Lock()
		delete(s.active, opts.RunID)
		s.mu.Unlock()
		s.streams.CloseRun(opts.RunID)
	}()

	state, err := s.engine.Run(ctx, g, opts)
	if state != nil {
		if data, err := json.Marshal(runStateMessage{Type: "run-state", State: state}); err == nil {
			s.streams.Broadcast(opts.RunID, string(data))
		}
		if err := s.runs.Save(context.WithoutCancel(ctx), state); err != nil {
			s.logger.Error("failed to record run", "run_id", opts.RunID, "err", err)
		}
	}
	return state, err
}

type runStateMessage struct {
	Type  string               `json:"type"`
	State *domain.FlowRunState `json:"state"`
}

// getRun answers with the recorded state, or a running placeholder for
// runs still in flight.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	s.mu.Lock()
	run, ok := s.active[runID]
	s.mu.Unlock()
	if ok {
		status := domain.RunRunning
		if run.ctrl.Paused() {
			status = domain.RunPaused
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"run_id":     runID,
			"flow_id":    run.flowID,
			"status":     status,
			"started_at": run.startedAt,
		})
		return
	}

	state, err := s.runs.Load(r.Context(), runID)
	if err != nil {
		s.fail(w, "load run", err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) steer(fn func(*conductor.Controller)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID := chi.URLParam(r, "id")
		s.mu.Lock()
		run, ok := s.active[runID]
		s.mu.Unlock()
		if !ok {
			http.Error(w, "run not active", http.StatusNotFound)
			return
		}
		fn(run.ctrl)
		w.WriteHeader(http.StatusAccepted)
	}
}

// events streams a run's events as SSE. Finished runs get their final
// state and the stream ends.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	runID := chi.URLParam(r, "id")

	ch, unsubscribe := s.streams.Subscribe(runID)
	defer unsubscribe()

	s.mu.Lock()
	_, running := s.active[runID]
	s.mu.Unlock()

	var final *domain.FlowRunState
	if !running {
		state, err := s.runs.Load(r.Context(), runID)
		if err != nil {
			s.fail(w, "load run", err)
			return
		}
		final = state
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	if final != nil {
		if data, err := json.Marshal(runStateMessage{Type: "run-state", State: final}); err == nil {
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrFlowNotFound), errors.Is(err, domain.ErrRunNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrCompile):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrRunInProgress):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.logger.Error(op+" failed", "err", err)
	}
	http.Error(w, fmt.Sprintf("%s: %v", op, err), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
