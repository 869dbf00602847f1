package plan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/harnessgg/blenderbridge/pkg/protocol"
)

func writePlan(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write plan: %v", err)
	}
	return path
}

func wantCode(t *testing.T, err error, code string) *protocol.Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %s, got nil", code)
	}
	perr, ok := protocol.AsError(err)
	if !ok {
		t.Fatalf("expected *protocol.Error, got %T: %v", err, err)
	}
	if perr.Code != code {
		t.Fatalf("expected code %s, got %s (%s)", code, perr.Code, perr.Message)
	}
	return perr
}

func TestLoadResolvesVariablesAndInjectsProject(t *testing.T) {
	path := writePlan(t, "plan.json", `{
		"project": "/scenes/hero.blend",
		"variables": {"name": "Hero", "energy": 750},
		"steps": [
			{"method": "scene.object.add", "params": {"name": "${name}", "note": "lit at ${energy}W"}},
			{"method": "render.still", "params": {"project": "/scenes/other.blend"}, "timeout_seconds": 900}
		]
	}`)

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Project != "/scenes/hero.blend" {
		t.Fatalf("unexpected project: %q", doc.Project)
	}
	if len(doc.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(doc.Steps))
	}

	first := doc.Steps[0]
	if first.Params["name"] != "Hero" {
		t.Fatalf("variable not substituted: %v", first.Params["name"])
	}
	if first.Params["note"] != "lit at 750W" {
		t.Fatalf("numeric variable not substituted: %v", first.Params["note"])
	}
	if first.Params["project"] != "/scenes/hero.blend" {
		t.Fatalf("plan project not injected: %v", first.Params["project"])
	}
	if first.TimeoutSeconds != 60 {
		t.Fatalf("expected default timeout 60, got %v", first.TimeoutSeconds)
	}

	second := doc.Steps[1]
	if second.Params["project"] != "/scenes/other.blend" {
		t.Fatalf("explicit step project overridden: %v", second.Params["project"])
	}
	if second.TimeoutSeconds != 900 {
		t.Fatalf("expected timeout 900, got %v", second.TimeoutSeconds)
	}
}

func TestLoadYAMLPlan(t *testing.T) {
	path := writePlan(t, "plan.yaml", strings.Join([]string{
		"project: /scenes/room.blend",
		"variables:",
		"  cam: ProductCam",
		"steps:",
		"  - method: scene.camera.add",
		"    params:",
		"      name: ${cam}",
		"  - method: scene.camera.set_active",
		"    params:",
		"      camera_name: ${cam}",
		"    timeout_seconds: 30",
	}, "\n"))

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Steps[0].Params["name"] != "ProductCam" {
		t.Fatalf("yaml variable not substituted: %v", doc.Steps[0].Params["name"])
	}
	if doc.Steps[0].Params["project"] != "/scenes/room.blend" {
		t.Fatalf("yaml project not injected: %v", doc.Steps[0].Params["project"])
	}
	if doc.Steps[1].TimeoutSeconds != 30 {
		t.Fatalf("yaml timeout not parsed: %v", doc.Steps[1].TimeoutSeconds)
	}
}

func TestLoadMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.json")
	_, err := Load(missing)
	perr := wantCode(t, err, protocol.CodeNotFound)
	if perr.Message != "Plan file not found: "+missing {
		t.Fatalf("unexpected message: %q", perr.Message)
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	path := writePlan(t, "plan.json", "{not json")
	_, err := Load(path)
	perr := wantCode(t, err, protocol.CodeInvalidInput)
	if !strings.HasPrefix(perr.Message, "Invalid JSON plan:") {
		t.Fatalf("unexpected message: %q", perr.Message)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writePlan(t, "plan.yml", "steps: [unclosed")
	_, err := Load(path)
	perr := wantCode(t, err, protocol.CodeInvalidInput)
	if !strings.HasPrefix(perr.Message, "Invalid YAML plan:") {
		t.Fatalf("unexpected message: %q", perr.Message)
	}
}

func TestLoadRootMustBeObject(t *testing.T) {
	path := writePlan(t, "plan.json", `[1, 2, 3]`)
	_, err := Load(path)
	perr := wantCode(t, err, protocol.CodeInvalidInput)
	if perr.Message != "Plan must be a JSON object" {
		t.Fatalf("unexpected message: %q", perr.Message)
	}
}

func TestLoadRequiresSteps(t *testing.T) {
	for _, content := range []string{`{}`, `{"steps": []}`, `{"steps": "scene.object.add"}`} {
		path := writePlan(t, "plan.json", content)
		_, err := Load(path)
		perr := wantCode(t, err, protocol.CodeInvalidInput)
		if perr.Message != "Plan must include non-empty 'steps' array" {
			t.Fatalf("unexpected message for %s: %q", content, perr.Message)
		}
	}
}

func TestLoadStepValidation(t *testing.T) {
	cases := []struct {
		content string
		message string
	}{
		{`{"steps": ["scene.object.add"]}`, "Step 0 must be an object"},
		{`{"steps": [{"method": "system.health"}, {"params": {}}]}`, "Step 1 missing method"},
		{`{"steps": [{"method": "  "}]}`, "Step 0 missing method"},
		{`{"steps": [{"method": "system.health", "params": [1]}]}`, "Step 0 params must be an object"},
		{`{"steps": [{"method": "system.health", "timeout_seconds": {"bad": true}}]}`, "Step 0 has invalid timeout_seconds"},
	}
	for _, tc := range cases {
		path := writePlan(t, "plan.json", tc.content)
		_, err := Load(path)
		perr := wantCode(t, err, protocol.CodeInvalidInput)
		if perr.Message != tc.message {
			t.Fatalf("unexpected message for %s: %q", tc.content, perr.Message)
		}
	}
}

func TestExplicitProjectVariableWins(t *testing.T) {
	path := writePlan(t, "plan.json", `{
		"project": "/scenes/real.blend",
		"variables": {"project": "/scenes/alias.blend"},
		"steps": [{"method": "project.inspect", "params": {"label": "${project}"}}]
	}`)

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	step := doc.Steps[0]
	if step.Params["label"] != "/scenes/alias.blend" {
		t.Fatalf("explicit variable should win substitution: %v", step.Params["label"])
	}
	if step.Params["project"] != "/scenes/real.blend" {
		t.Fatalf("injection should use the plan project: %v", step.Params["project"])
	}
}

type fakeCaller struct {
	calls   []string
	handler func(call int, method string, params map[string]any) (map[string]any, error)
}

func (f *fakeCaller) Call(ctx context.Context, method string, params map[string]any, timeout time.Duration) (map[string]any, error) {
	call := len(f.calls)
	f.calls = append(f.calls, method)
	return f.handler(call, method, params)
}

func writeProject(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scene.blend")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write project: %v", err)
	}
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func backupsFor(t *testing.T, project string) []string {
	t.Helper()
	matches, err := filepath.Glob(project + ".runplan.*.bak")
	if err != nil {
		t.Fatalf("glob backups: %v", err)
	}
	return matches
}

func TestRunnerExecutesAllSteps(t *testing.T) {
	project := writeProject(t, "v1")
	caller := &fakeCaller{handler: func(call int, method string, params map[string]any) (map[string]any, error) {
		return map[string]any{"step": call}, nil
	}}
	doc := &Document{Project: project, Steps: []Step{
		{Method: "scene.object.add", Params: map[string]any{"project": project}, TimeoutSeconds: 60},
		{Method: "render.still", Params: map[string]any{"project": project}, TimeoutSeconds: 600},
	}}

	outcome, err := NewRunner(caller).Run(context.Background(), doc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Executed != 2 {
		t.Fatalf("expected 2 executed, got %d", outcome.Executed)
	}
	if caller.calls[0] != "scene.object.add" || caller.calls[1] != "render.still" {
		t.Fatalf("unexpected call order: %v", caller.calls)
	}
	if got := outcome.Results[1].Map(); got["ok"] != true || got["method"] != "render.still" || got["index"] != 1 {
		t.Fatalf("unexpected result shape: %v", got)
	}
	if left := backupsFor(t, project); len(left) != 0 {
		t.Fatalf("backup not cleaned up: %v", left)
	}
}

func TestRunnerRollsBackOnFailure(t *testing.T) {
	project := writeProject(t, "v1")
	caller := &fakeCaller{handler: func(call int, method string, params map[string]any) (map[string]any, error) {
		if call == 0 {
			// Simulate the bridge mutating the project file.
			if err := os.WriteFile(project, []byte("v2"), 0o644); err != nil {
				t.Fatalf("mutate project: %v", err)
			}
			return map[string]any{"changed": true}, nil
		}
		return nil, protocol.NewError(protocol.CodeValidationFailed, "Scene validation failed")
	}}
	doc := &Document{Project: project, Steps: []Step{
		{Method: "scene.object.add", Params: map[string]any{}, TimeoutSeconds: 60},
		{Method: "project.validate", Params: map[string]any{}, TimeoutSeconds: 60},
	}}

	_, err := NewRunner(caller).Run(context.Background(), doc)
	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected *StepError, got %T: %v", err, err)
	}
	if stepErr.Index != 1 || stepErr.Method != "project.validate" {
		t.Fatalf("unexpected failed step: %+v", stepErr)
	}
	if stepErr.Code != protocol.CodeValidationFailed || stepErr.Message != "Scene validation failed" {
		t.Fatalf("unexpected error fields: %+v", stepErr)
	}
	if !stepErr.RollbackAttempted || !stepErr.RolledBack || stepErr.RollbackError != "" {
		t.Fatalf("expected successful rollback: %+v", stepErr)
	}
	if len(stepErr.Results) != 1 || stepErr.Results[0].Method != "scene.object.add" {
		t.Fatalf("expected one completed result: %+v", stepErr.Results)
	}
	if got := readFile(t, project); got != "v1" {
		t.Fatalf("project not restored, contains %q", got)
	}
}

func TestRunnerKeepsChangesWhenRollbackDisabled(t *testing.T) {
	project := writeProject(t, "v1")
	caller := &fakeCaller{handler: func(call int, method string, params map[string]any) (map[string]any, error) {
		if call == 0 {
			if err := os.WriteFile(project, []byte("v2"), 0o644); err != nil {
				t.Fatalf("mutate project: %v", err)
			}
			return map[string]any{}, nil
		}
		return nil, protocol.NewError(protocol.CodeError, "boom")
	}}
	doc := &Document{Project: project, Steps: []Step{
		{Method: "scene.object.add", Params: map[string]any{}, TimeoutSeconds: 60},
		{Method: "scene.object.add", Params: map[string]any{}, TimeoutSeconds: 60},
	}}

	runner := NewRunner(caller)
	runner.RollbackOnFail = false
	_, err := runner.Run(context.Background(), doc)
	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected *StepError, got %v", err)
	}
	if stepErr.RollbackAttempted || stepErr.RolledBack {
		t.Fatalf("rollback should be skipped: %+v", stepErr)
	}
	if got := readFile(t, project); got != "v2" {
		t.Fatalf("project should keep changes, contains %q", got)
	}
}

func TestRunnerReportsAttemptWithoutBackup(t *testing.T) {
	// Project named by the plan but absent on disk: rollback is
	// attempted per the flags yet nothing can be restored.
	project := filepath.Join(t.TempDir(), "ghost.blend")
	caller := &fakeCaller{handler: func(call int, method string, params map[string]any) (map[string]any, error) {
		return nil, protocol.NewError(protocol.CodeEngineExecFailed, "blender exploded")
	}}
	doc := &Document{Project: project, Steps: []Step{
		{Method: "project.new", Params: map[string]any{}, TimeoutSeconds: 60},
	}}

	_, err := NewRunner(caller).Run(context.Background(), doc)
	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected *StepError, got %v", err)
	}
	if !stepErr.RollbackAttempted {
		t.Fatalf("expected rollback attempt reported: %+v", stepErr)
	}
	if stepErr.RolledBack {
		t.Fatalf("nothing existed to roll back: %+v", stepErr)
	}
}

func TestRunnerWithoutProjectSkipsRollback(t *testing.T) {
	caller := &fakeCaller{handler: func(call int, method string, params map[string]any) (map[string]any, error) {
		return nil, errors.New("plain failure")
	}}
	doc := &Document{Steps: []Step{{Method: "system.health", Params: map[string]any{}, TimeoutSeconds: 60}}}

	_, err := NewRunner(caller).Run(context.Background(), doc)
	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected *StepError, got %v", err)
	}
	if stepErr.RollbackAttempted {
		t.Fatalf("no project, no rollback: %+v", stepErr)
	}
	if stepErr.Code != protocol.CodeError || stepErr.Message != "plain failure" {
		t.Fatalf("plain errors should map to ERROR: %+v", stepErr)
	}
}

func TestResolveVarsProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	ident := gen.RegexMatch(`[a-z][a-z0-9_]{0,8}`)

	properties.Property("substitutes every marker occurrence", prop.ForAll(
		func(name, value string, repeats int) bool {
			marker := "${" + name + "}"
			template := strings.Repeat("pre "+marker+" post ", repeats)
			got := ResolveVars(template, map[string]any{name: value}).(string)
			want := strings.ReplaceAll(template, marker, value)
			return got == want
		},
		ident, gen.AlphaString(), gen.IntRange(1, 5),
	))

	properties.Property("leaves strings without markers untouched", prop.ForAll(
		func(s string) bool {
			if strings.Contains(s, "${") {
				return true
			}
			return ResolveVars(s, map[string]any{"x": "y"}) == s
		},
		gen.AnyString(),
	))

	properties.Property("recurses through nested structures", prop.ForAll(
		func(name, value string) bool {
			vars := map[string]any{name: value}
			nested := map[string]any{
				"list": []any{"${" + name + "}", 42, true},
				"map":  map[string]any{"inner": "${" + name + "}"},
			}
			got := ResolveVars(nested, vars).(map[string]any)
			list := got["list"].([]any)
			inner := got["map"].(map[string]any)
			return list[0] == value && list[1] == 42 && list[2] == true && inner["inner"] == value
		},
		ident, gen.AlphaString(),
	))

	properties.TestingRun(t)
}
