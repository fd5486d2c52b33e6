// Package config loads the conductor configuration file and applies
// CONDUCTOR_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no explicit path is given.
const DefaultPath = "conductor.yaml"

// Store backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

type Config struct {
	Log     LogConfig     `yaml:"log"`
	HTTP    HTTPConfig    `yaml:"http"`
	Store   StoreConfig   `yaml:"store"`
	Editor  EditorConfig  `yaml:"editor"`
	Engine  EngineConfig  `yaml:"engine"`
	LLM     LLMConfig     `yaml:"llm"`
	Nodes   NodesConfig   `yaml:"nodes"`
	MCP     MCPConfig     `yaml:"mcp"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type StoreConfig struct {
	Backend string      `yaml:"backend"`
	Dir     string      `yaml:"dir"`
	Redis   RedisConfig `yaml:"redis"`
	Runs    RunsConfig  `yaml:"runs"`
}

// RunsConfig protects recorded run snapshots at rest.
type RunsConfig struct {
	// EncryptionKey is a base64 AES-256 key. Empty stores snapshots in clear.
	EncryptionKey string   `yaml:"encryption_key"`
	FallbackKeys  []string `yaml:"fallback_keys"`
	// Redact lists regular expressions masked in node text before storage.
	Redact []string `yaml:"redact"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

type EditorConfig struct {
	UndoLimit int `yaml:"undo_limit"`
}

type EngineConfig struct {
	MaxIterations        int     `yaml:"max_iterations"`
	ConvergenceThreshold float64 `yaml:"convergence_threshold"`
}

type LLMConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
}

type NodesConfig struct {
	// ToolsFile lists allow-listed external commands usable by tool nodes.
	ToolsFile  string `yaml:"tools_file"`
	InlineCode bool   `yaml:"inline_code"`
	BaseDir    string `yaml:"base_dir"`
}

// MCPConfig names the MCP servers mcp-tool nodes may call. Each server is a
// command speaking MCP over stdio.
type MCPConfig struct {
	Servers map[string]MCPServer `yaml:"servers"`
}

type MCPServer struct {
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Log:    LogConfig{Level: "info", Format: "text"},
		HTTP:   HTTPConfig{Addr: ":8080"},
		Store:  StoreConfig{Backend: BackendMemory, Dir: ".conductor", Redis: RedisConfig{Addr: "localhost:6379", Prefix: "conductor:"}},
		Editor: EditorConfig{UndoLimit: 50},
		Engine: EngineConfig{
			MaxIterations:        domain.DefaultMaxIterations,
			ConvergenceThreshold: domain.ConvergenceThreshold,
		},
		LLM:   LLMConfig{Provider: "echo"},
		Nodes: NodesConfig{ToolsFile: "tools.yaml"},
	}
}

// DotEnvFile holds CONDUCTOR_* overrides next to the config file. Variables
// set in the process environment take precedence over it.
const DotEnvFile = ".env"

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error; an empty path means DefaultPath.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	case !os.IsNotExist(err):
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	lookup, err := envLookup(filepath.Join(filepath.Dir(path), DotEnvFile))
	if err != nil {
		return cfg, err
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// envLookup consults the process environment, then the dotenv file if it
// exists. The process environment itself is never modified.
func envLookup(dotenv string) (lookupFunc, error) {
	vars, err := godotenv.Read(dotenv)
	if err != nil {
		if os.IsNotExist(err) {
			return os.LookupEnv, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(dotenv), err)
	}
	return func(name string) (string, bool) {
		if v, ok := os.LookupEnv(name); ok {
			return v, true
		}
		v, ok := vars[name]
		return v, ok
	}, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendFile, BackendRedis:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Engine.ConvergenceThreshold <= 0 || c.Engine.ConvergenceThreshold > 1 {
		return fmt.Errorf("convergence threshold %v out of range (0, 1]", c.Engine.ConvergenceThreshold)
	}
	if c.Engine.MaxIterations < 1 {
		return fmt.Errorf("max iterations must be positive, got %d", c.Engine.MaxIterations)
	}
	if c.Editor.UndoLimit < 1 {
		return fmt.Errorf("undo limit must be positive, got %d", c.Editor.UndoLimit)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup("CONDUCTOR_" + name); ok {
			*dst = v
		}
	}
	var errs []string
	num := func(name string, dst *int) {
		if v, ok := lookup("CONDUCTOR_" + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, "CONDUCTOR_"+name)
				return
			}
			*dst = n
		}
	}

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("HTTP_ADDR", &c.HTTP.Addr)
	str("STORE_BACKEND", &c.Store.Backend)
	str("STORE_DIR", &c.Store.Dir)
	str("REDIS_ADDR", &c.Store.Redis.Addr)
	str("REDIS_PASSWORD", &c.Store.Redis.Password)
	str("REDIS_PREFIX", &c.Store.Redis.Prefix)
	num("REDIS_DB", &c.Store.Redis.DB)
	num("UNDO_LIMIT", &c.Editor.UndoLimit)
	num("MAX_ITERATIONS", &c.Engine.MaxIterations)
	str("LLM_PROVIDER", &c.LLM.Provider)
	str("LLM_MODEL", &c.LLM.Model)
	str("LLM_BASE_URL", &c.LLM.BaseURL)
	str("LLM_API_KEY_ENV", &c.LLM.APIKeyEnv)
	str("TOOLS_FILE", &c.Nodes.ToolsFile)
	str("RUN_KEY", &c.Store.Runs.EncryptionKey)

	if v, ok := lookup("CONDUCTOR_REDIS_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, "CONDUCTOR_REDIS_TTL")
		} else {
			c.Store.Redis.TTL = d
		}
	}
	if v, ok := lookup("CONDUCTOR_CONVERGENCE_THRESHOLD"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, "CONDUCTOR_CONVERGENCE_THRESHOLD")
		} else {
			c.Engine.ConvergenceThreshold = f
		}
	}
	for name, dst := range map[string]*bool{
		"CONDUCTOR_METRICS":     &c.Metrics.Enabled,
		"CONDUCTOR_INLINE_CODE": &c.Nodes.InlineCode,
	} {
		if v, ok := lookup(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, name)
				continue
			}
			*dst = b
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment overrides: %s", strings.Join(errs, ", "))
	}
	return nil
}
