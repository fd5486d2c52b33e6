package nodes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProcessConfig declares an allow-listed external command usable as a tool.
type ProcessConfig struct {
	Name        string            `yaml:"name" json:"name"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Description string            `yaml:"description" json:"description"`
}

// ToolsFile is the layout of tools.yaml / tools.json.
type ToolsFile struct {
	Tools []ProcessConfig `yaml:"tools" json:"tools"`
}

// LoadTools reads a tools file (YAML, or JSON by extension). A missing file
// means no tools are configured.
func LoadTools(path string) (map[string]ProcessConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]ProcessConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read tools config: %w", err)
	}

	var cfg ToolsFile
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}

	tools := make(map[string]ProcessConfig, len(cfg.Tools))
	for _, t := range cfg.Tools {
		if t.Name == "" || t.Command == "" {
			continue
		}
		tools[t.Name] = t
	}
	return tools, nil
}

// interpreters maps code node languages to the command that runs a body.
var interpreters = map[string][]string{
	"sh":         {"sh", "-c"},
	"shell":      {"sh", "-c"},
	"bash":       {"bash", "-c"},
	"python":     {"python3", "-c"},
	"python3":    {"python3", "-c"},
	"javascript": {"node", "-e"},
	"js":         {"node", "-e"},
	"node":       {"node", "-e"},
}

// Interpreter returns the command line prefix for a code language.
func Interpreter(language string) ([]string, bool) {
	cmd, ok := interpreters[strings.ToLower(strings.TrimSpace(language))]
	return cmd, ok
}

// processRunner executes external commands. Node input goes to stdin and to
// CONDUCTOR_INPUT; arguments are passed as CONDUCTOR_ARG_<NAME> variables,
// never as command-line flags, so they cannot inject options.
type processRunner struct {
	baseDir string
}

func (p processRunner) run(ctx context.Context, command string, args []string, extraEnv map[string]string, input string, toolArgs map[string]any) (string, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = p.baseDir

	env := []string{"CONDUCTOR_INPUT=" + input}
	for k, v := range extraEnv {
		env = append(env, k+"="+v)
	}
	for k, v := range toolArgs {
		env = append(env, fmt.Sprintf("CONDUCTOR_ARG_%s=%s", envName(k), stringify(v)))
	}
	cmd.Env = append(cmd.Environ(), env...)
	cmd.Stdin = strings.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s failed: %w: %s", command, err, msg)
		}
		return "", fmt.Errorf("%s failed: %w", command, err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// envName upper-cases k and replaces anything but letters, digits and
// underscores.
func envName(k string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, k)
}
