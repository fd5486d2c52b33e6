package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/conductor/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Format selects the document encoding of an exported flow.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFor picks the format from a file extension. Unknown extensions are JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Export encodes g as an indented JSON document.
func Export(g *domain.FlowGraph) ([]byte, error) {
	return Encode(g, FormatJSON)
}

// Import decodes a JSON document produced by Export.
func Import(data []byte) (*domain.FlowGraph, error) {
	return Decode(data, FormatJSON)
}

// Encode writes g in the given format.
func Encode(g *domain.FlowGraph, f Format) ([]byte, error) {
	switch f {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(g); err != nil {
			return nil, fmt.Errorf("encode flow yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		data, err := json.MarshalIndent(g, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode flow json: %w", err)
		}
		return data, nil
	}
}

// Decode reads a flow document and fills in parts a hand-written document
// may omit (ports, node size, empty config sections).
func Decode(data []byte, f Format) (*domain.FlowGraph, error) {
	var g domain.FlowGraph
	switch f {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &g); err != nil {
			return nil, fmt.Errorf("decode flow yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &g); err != nil {
			return nil, fmt.Errorf("decode flow json: %w", err)
		}
	}
	if err := normalize(&g); err != nil {
		return nil, err
	}
	return &g, nil
}

func normalize(g *domain.FlowGraph) error {
	if g.Nodes == nil {
		g.Nodes = []*domain.FlowNode{}
	}
	if g.Edges == nil {
		g.Edges = []*domain.FlowEdge{}
	}
	for i, n := range g.Nodes {
		if n == nil {
			return fmt.Errorf("node %d is empty", i)
		}
		if !n.Kind.Valid() {
			return fmt.Errorf("node %s: unknown kind %q", n.ID, n.Kind)
		}
		in, out := domain.PortsFor(n.Kind)
		if n.Inputs == nil {
			n.Inputs = in
		}
		if n.Outputs == nil {
			n.Outputs = out
		}
		if n.Width == 0 && n.Height == 0 {
			n.Width, n.Height = DefaultSize(n.Kind)
		}
		if n.Status == "" {
			n.Status = domain.NodeIdle
		}
		fillSection(n)
	}
	for i, e := range g.Edges {
		if e == nil {
			return fmt.Errorf("edge %d is empty", i)
		}
		if e.Kind == "" {
			e.Kind = domain.EdgeForward
		}
	}
	return nil
}

// fillSection allocates the kind's config section when the document left it out.
func fillSection(n *domain.FlowNode) {
	def := domain.DefaultConfig(n.Kind)
	c := &n.Config
	switch n.Kind {
	case domain.KindTrigger:
		if c.Trigger == nil {
			c.Trigger = def.Trigger
		}
	case domain.KindAgent:
		if c.Agent == nil {
			c.Agent = def.Agent
		}
	case domain.KindTool:
		if c.Tool == nil {
			c.Tool = def.Tool
		}
	case domain.KindCondition:
		if c.Condition == nil {
			c.Condition = def.Condition
		}
	case domain.KindData:
		if c.Data == nil {
			c.Data = def.Data
		}
	case domain.KindCode:
		if c.Code == nil {
			c.Code = def.Code
		}
	case domain.KindHTTP:
		if c.HTTP == nil {
			c.HTTP = def.HTTP
		}
	case domain.KindMCPTool:
		if c.MCPTool == nil {
			c.MCPTool = def.MCPTool
		}
	case domain.KindLoop:
		if c.Loop == nil {
			c.Loop = def.Loop
		}
	case domain.KindError:
		if c.Error == nil {
			c.Error = def.Error
		}
	case domain.KindOutput:
		if c.Output == nil {
			c.Output = def.Output
		}
	}
}

// ReadFile loads a flow, choosing the format by extension.
func ReadFile(path string) (*domain.FlowGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	g, err := Decode(data, FormatFor(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// WriteFile stores a flow atomically, choosing the format by extension.
func WriteFile(path string, g *domain.FlowGraph) error {
	data, err := Encode(g, FormatFor(path))
	if err != nil {
		return err
	}
	return WriteAtomic(path, data)
}

// WriteAtomic writes data to a temp file in the same directory and renames it
// over path, so readers never see a partial document.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
