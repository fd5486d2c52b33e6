package nodes

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

type compileMode int

const (
	modeAny compileMode = iota
	modeBool
)

type programKey struct {
	source string
	mode   compileMode
}

// evaluator compiles expr-lang programs once and caches them by source.
type evaluator struct {
	programs sync.Map // programKey -> *vm.Program
}

// env builds the variables visible to expressions: the raw input, the input
// decoded as JSON when it is JSON, and the run and node identity.
func env(input, runID, nodeID string) map[string]any {
	vars := map[string]any{
		"input":   input,
		"json":    nil,
		"run_id":  runID,
		"node_id": nodeID,
	}
	trimmed := strings.TrimSpace(input)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			vars["json"] = v
		}
	}
	return vars
}

func (e *evaluator) compile(source string, mode compileMode, vars map[string]any) (*vm.Program, error) {
	key := programKey{source: source, mode: mode}
	if cached, ok := e.programs.Load(key); ok {
		return cached.(*vm.Program), nil
	}
	opts := []expr.Option{expr.Env(vars), expr.AllowUndefinedVariables()}
	if mode == modeBool {
		opts = append(opts, expr.AsBool())
	}
	program, err := expr.Compile(source, opts...)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", source, err)
	}
	e.programs.Store(key, program)
	return program, nil
}

// Eval runs an expression and returns its value.
func (e *evaluator) Eval(source string, vars map[string]any) (any, error) {
	program, err := e.compile(source, modeAny, vars)
	if err != nil {
		return nil, err
	}
	out, err := expr.Run(program, vars)
	if err != nil {
		return nil, fmt.Errorf("evaluate %q: %w", source, err)
	}
	return out, nil
}

// EvalBool runs a boolean expression.
func (e *evaluator) EvalBool(source string, vars map[string]any) (bool, error) {
	program, err := e.compile(source, modeBool, vars)
	if err != nil {
		return false, err
	}
	out, err := expr.Run(program, vars)
	if err != nil {
		return false, fmt.Errorf("evaluate %q: %w", source, err)
	}
	b, _ := out.(bool)
	return b, nil
}

// Interpolate replaces every {{ expression }} in raw with its value.
// Text without placeholders is returned unchanged.
func (e *evaluator) Interpolate(raw string, vars map[string]any) (string, error) {
	var sb strings.Builder
	rest := raw
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			sb.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			sb.WriteString(rest)
			break
		}
		sb.WriteString(rest[:start])
		source := strings.TrimSpace(rest[start+2 : start+end])
		v, err := e.Eval(source, vars)
		if err != nil {
			return "", err
		}
		sb.WriteString(stringify(v))
		rest = rest[start+end+2:]
	}
	return sb.String(), nil
}

// stringify renders a value as node output: strings as is, nil as empty,
// everything else as JSON.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
