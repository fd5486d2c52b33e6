// Package file stores flows and run snapshots as documents in a directory.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/graph"
)

// FlowStore implements ports.FlowStore with one document per flow.
// The format (JSON or YAML) is fixed per store; reads accept both.
type FlowStore struct {
	dir    string
	format graph.Format
	mu     sync.RWMutex
}

// Option configures a FlowStore.
type Option func(*FlowStore)

// WithFormat selects the document format for new writes (default JSON).
func WithFormat(f graph.Format) Option {
	return func(s *FlowStore) {
		s.format = f
	}
}

// NewFlowStore creates a store rooted at dir, creating it if needed.
func NewFlowStore(dir string, opts ...Option) (*FlowStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create flow dir: %w", err)
	}
	s := &FlowStore{dir: dir, format: graph.FormatJSON}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *FlowStore) ext() string {
	if s.format == graph.FormatYAML {
		return ".yaml"
	}
	return ".json"
}

// path resolves a flow id to its document, rejecting ids that escape dir.
func (s *FlowStore) path(id, ext string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("invalid flow id %q", id)
	}
	return filepath.Join(s.dir, id+ext), nil
}

// find returns the existing document for id in any supported format.
func (s *FlowStore) find(id string) (string, error) {
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		p, err := s.path(id, ext)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", domain.ErrFlowNotFound
}

// Save writes the flow atomically, replacing a document in another format.
func (s *FlowStore) Save(ctx context.Context, g *domain.FlowGraph) error {
	p, err := s.path(g.ID, s.ext())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, err := s.find(g.ID); err == nil && old != p {
		_ = os.Remove(old)
	}
	return graph.WriteFile(p, g)
}

// Load reads a flow.
func (s *FlowStore) Load(ctx context.Context, id string) (*domain.FlowGraph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := s.find(id)
	if err != nil {
		return nil, err
	}
	return graph.ReadFile(p)
}

// List reads every document in the directory.
func (s *FlowStore) List(ctx context.Context, folder string) ([]domain.FlowSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	out := []domain.FlowSummary{}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".json", ".yaml", ".yml":
		default:
			continue
		}
		g, err := graph.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return nil, err
		}
		if folder == "" || g.Folder == folder {
			out = append(out, g.Summary())
		}
	}
	domain.SortSummaries(out)
	return out, nil
}

// Delete removes a flow document.
func (s *FlowStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.find(id)
	if err != nil {
		return err
	}
	return os.Remove(p)
}

// RunStore implements ports.RunStore with one JSON document per run.
type RunStore struct {
	dir string
	mu  sync.RWMutex
}

// NewRunStore creates a run store rooted at dir.
func NewRunStore(dir string) (*RunStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}
	return &RunStore{dir: dir}, nil
}

func (s *RunStore) path(runID string) (string, error) {
	if runID == "" || strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return "", fmt.Errorf("invalid run id %q", runID)
	}
	return filepath.Join(s.dir, runID+".json"), nil
}

// Save writes the snapshot atomically.
func (s *RunStore) Save(ctx context.Context, run *domain.FlowRunState) error {
	p, err := s.path(run.RunID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run %s: %w", run.RunID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return graph.WriteAtomic(p, data)
}

// Load reads a snapshot.
func (s *RunStore) Load(ctx context.Context, runID string) (*domain.FlowRunState, error) {
	p, err := s.path(runID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return readRun(p)
}

func readRun(p string) (*domain.FlowRunState, error) {
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	var run domain.FlowRunState
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", filepath.Base(p), err)
	}
	return &run, nil
}

// List scans the directory for runs of a flow.
func (s *RunStore) List(ctx context.Context, flowID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	ids := []string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
			continue
		}
		run, err := readRun(filepath.Join(s.dir, name))
		if err != nil {
			return nil, err
		}
		if flowID == "" || run.FlowID == flowID {
			ids = append(ids, run.RunID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes a snapshot. Unknown runs are ignored.
func (s *RunStore) Delete(ctx context.Context, runID string) error {
	p, err := s.path(runID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
