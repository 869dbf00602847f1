// Package plan loads and executes multi-step automation plans. A plan
// is a JSON or YAML document listing bridge methods to call in order,
// with ${name} variable substitution and optional rollback of the
// project file when a step fails.
package plan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harnessgg/blenderbridge/pkg/protocol"
)

// Caller executes a single bridge method. *client.BridgeClient satisfies it.
type Caller interface {
	Call(ctx context.Context, method string, params map[string]any, timeout time.Duration) (map[string]any, error)
}

// Step is one bridge call with variables resolved and the plan project
// injected.
type Step struct {
	Method         string         `json:"method"`
	Params         map[string]any `json:"params"`
	TimeoutSeconds float64        `json:"timeout_seconds"`
}

// Document is a validated plan ready to execute.
type Document struct {
	Project string // empty when the plan names no project
	Steps   []Step
}

// StepResult records a completed step.
type StepResult struct {
	Index  int
	Method string
	Data   map[string]any
}

// Map renders the result in the wire shape used by run-plan output.
func (r StepResult) Map() map[string]any {
	return map[string]any{"index": r.Index, "ok": true, "method": r.Method, "data": r.Data}
}

// Outcome reports a plan that ran to completion.
type Outcome struct {
	Executed int
	Results  []StepResult
}

// StepError reports the step that stopped a run, the rollback result,
// and the steps that completed before the failure.
type StepError struct {
	Index             int
	Method            string
	Params            map[string]any
	Code              string
	Message           string
	RollbackAttempted bool
	RolledBack        bool
	RollbackError     string
	Results           []StepResult
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s) failed: %s", e.Index, e.Method, e.Message)
}

// Load reads a plan file, resolves variables, and validates every step.
// Files ending in .yaml or .yml parse as YAML, everything else as JSON.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, protocol.NewError(protocol.CodeNotFound, "Plan file not found: %s", path)
		}
		return nil, protocol.NewError(protocol.CodeError, "Could not read plan file: %v", err)
	}

	var root any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &root); err != nil {
			return nil, protocol.NewError(protocol.CodeInvalidInput, "Invalid YAML plan: %v", err)
		}
	default:
		if err := json.Unmarshal(data, &root); err != nil {
			return nil, protocol.NewError(protocol.CodeInvalidInput, "Invalid JSON plan: %v", err)
		}
	}

	raw, ok := root.(map[string]any)
	if !ok {
		return nil, protocol.NewError(protocol.CodeInvalidInput, "Plan must be a JSON object")
	}
	rawSteps, ok := raw["steps"].([]any)
	if !ok || len(rawSteps) == 0 {
		return nil, protocol.NewError(protocol.CodeInvalidInput, "Plan must include non-empty 'steps' array")
	}

	variables := map[string]any{}
	if vars, ok := raw["variables"].(map[string]any); ok {
		for k, v := range vars {
			variables[k] = v
		}
	}
	project := ""
	if p, ok := raw["project"]; ok && p != nil {
		project = formatValue(p)
		if _, exists := variables["project"]; !exists {
			variables["project"] = p
		}
	}

	doc := &Document{Project: project, Steps: make([]Step, 0, len(rawSteps))}
	for idx, item := range rawSteps {
		stepMap, ok := item.(map[string]any)
		if !ok {
			return nil, protocol.NewError(protocol.CodeInvalidInput, "Step %d must be an object", idx)
		}
		method, ok := stepMap["method"].(string)
		if !ok || strings.TrimSpace(method) == "" {
			return nil, protocol.NewError(protocol.CodeInvalidInput, "Step %d missing method", idx)
		}
		params := map[string]any{}
		if rawParams, present := stepMap["params"]; present {
			paramsMap, ok := rawParams.(map[string]any)
			if !ok {
				return nil, protocol.NewError(protocol.CodeInvalidInput, "Step %d params must be an object", idx)
			}
			for k, v := range paramsMap {
				params[k] = v
			}
		}
		resolved := ResolveVars(params, variables).(map[string]any)
		if _, set := resolved["project"]; !set && project != "" {
			resolved["project"] = project
		}
		timeout := 60.0
		if rawTimeout, present := stepMap["timeout_seconds"]; present {
			timeout, ok = toFloat(rawTimeout)
			if !ok {
				return nil, protocol.NewError(protocol.CodeInvalidInput, "Step %d has invalid timeout_seconds", idx)
			}
		}
		doc.Steps = append(doc.Steps, Step{Method: method, Params: resolved, TimeoutSeconds: timeout})
	}
	return doc, nil
}

// ResolveVars replaces ${name} markers in strings with variable values,
// recursing through lists and maps. Unknown markers are left alone.
func ResolveVars(value any, variables map[string]any) any {
	switch v := value.(type) {
	case string:
		out := v
		for _, name := range sortedKeys(variables) {
			out = strings.ReplaceAll(out, "${"+name+"}", formatValue(variables[name]))
		}
		return out
	case []any:
		resolved := make([]any, len(v))
		for i, item := range v {
			resolved[i] = ResolveVars(item, variables)
		}
		return resolved
	case map[string]any:
		resolved := make(map[string]any, len(v))
		for k, item := range v {
			resolved[k] = ResolveVars(item, variables)
		}
		return resolved
	default:
		return value
	}
}

// Runner executes plan steps against a bridge, snapshotting the project
// file beforehand so a failed run can restore it.
type Runner struct {
	caller         Caller
	RollbackOnFail bool
}

func NewRunner(caller Caller) *Runner {
	return &Runner{caller: caller, RollbackOnFail: true}
}

// Run executes the plan in order. On step failure it restores the
// project backup (when rollback is enabled) and returns a *StepError
// describing the failure; completed steps are reported either way.
func (r *Runner) Run(ctx context.Context, doc *Document) (*Outcome, error) {
	backup := ""
	if r.RollbackOnFail && doc.Project != "" {
		if _, err := os.Stat(doc.Project); err == nil {
			backup = fmt.Sprintf("%s.runplan.%d.bak", doc.Project, time.Now().Unix())
			if err := copyFile(doc.Project, backup); err != nil {
				return nil, protocol.NewError(protocol.CodeError, "Could not back up project: %v", err)
			}
		}
	}

	results := make([]StepResult, 0, len(doc.Steps))
	for idx, step := range doc.Steps {
		timeout := time.Duration(step.TimeoutSeconds * float64(time.Second))
		data, err := r.caller.Call(ctx, step.Method, step.Params, timeout)
		if err != nil {
			return nil, r.failed(doc, backup, idx, step, err, results)
		}
		results = append(results, StepResult{Index: idx, Method: step.Method, Data: data})
	}

	if backup != "" {
		os.Remove(backup)
	}
	return &Outcome{Executed: len(results), Results: results}, nil
}

func (r *Runner) failed(doc *Document, backup string, idx int, step Step, callErr error, results []StepResult) *StepError {
	rolledBack := false
	rollbackError := ""
	if r.RollbackOnFail && doc.Project != "" && backup != "" {
		if _, err := os.Stat(backup); err == nil {
			if err := copyFile(backup, doc.Project); err != nil {
				rollbackError = err.Error()
			} else {
				rolledBack = true
			}
		}
	}
	code := protocol.CodeError
	message := callErr.Error()
	if perr, ok := protocol.AsError(callErr); ok {
		code = perr.Code
		message = perr.Message
	}
	return &StepError{
		Index:             idx,
		Method:            step.Method,
		Params:            step.Params,
		Code:              code,
		Message:           message,
		RollbackAttempted: r.RollbackOnFail && doc.Project != "",
		RolledBack:        rolledBack,
		RollbackError:     rollbackError,
		Results:           results,
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case int:
		return strconv.Itoa(val)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, info.Mode().Perm())
}
