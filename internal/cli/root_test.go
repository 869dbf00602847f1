package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harnessgg/blenderbridge/internal/client"
	"github.com/harnessgg/blenderbridge/pkg/protocol"
)

// captureOut redirects envelope output for one test.
func captureOut(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := out
	out = &buf
	t.Cleanup(func() { out = prev })
	return &buf
}

func decodeEnvelope(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var env map[string]any
	if err := json.Unmarshal(buf.Bytes(), &env); err != nil {
		t.Fatalf("output is not a single JSON envelope: %v\n%s", err, buf.String())
	}
	return env
}

func envelopeData(t *testing.T, env map[string]any) map[string]any {
	t.Helper()
	data, ok := env["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object, got %v", env["data"])
	}
	return data
}

func envelopeErrorDetail(t *testing.T, env map[string]any) map[string]any {
	t.Helper()
	detail, ok := env["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error object, got %v", env["error"])
	}
	return detail
}

func exitCodeOf(t *testing.T, err error) int {
	t.Helper()
	var ee exitError
	if !errors.As(err, &ee) {
		t.Fatalf("expected exitError, got %T: %v", err, err)
	}
	return ee.code
}

func TestPrintOKInjectsIdempotentAndWarnings(t *testing.T) {
	buf := captureOut(t)

	printOK("object.add", map[string]any{"changed": true})

	env := decodeEnvelope(t, buf)
	if env["ok"] != true || env["command"] != "object.add" {
		t.Fatalf("unexpected envelope: %v", env)
	}
	data := envelopeData(t, env)
	if data["idempotent"] != false {
		t.Fatalf("changed results must carry idempotent=false, got %v", data["idempotent"])
	}
	warnings, ok := data["warnings"].([]any)
	if !ok || len(warnings) != 0 {
		t.Fatalf("expected empty warnings list, got %v", data["warnings"])
	}
}

func TestPrintOKKeepsExplicitIdempotent(t *testing.T) {
	buf := captureOut(t)

	printOK("file.new", map[string]any{"changed": false, "idempotent": true})

	data := envelopeData(t, decodeEnvelope(t, buf))
	if data["idempotent"] != true {
		t.Fatalf("explicit idempotent flag must survive, got %v", data["idempotent"])
	}
}

func TestPrintOKReadOnlyResultSkipsIdempotent(t *testing.T) {
	buf := captureOut(t)

	printOK("object.list", map[string]any{"objects": []any{}})

	data := envelopeData(t, decodeEnvelope(t, buf))
	if _, present := data["idempotent"]; present {
		t.Fatal("results without a changed flag must not gain idempotent")
	}
	if _, present := data["warnings"]; !present {
		t.Fatal("every payload carries a warnings list")
	}
}

func TestFailDerivesRetryableFromCode(t *testing.T) {
	buf := captureOut(t)

	err := fail("bridge.start", protocol.CodeBridgeUnavailable, "Bridge process started but health check failed")
	if got := exitCodeOf(t, err); got != 8 {
		t.Fatalf("expected exit 8, got %d", got)
	}
	env := decodeEnvelope(t, buf)
	if env["ok"] != false {
		t.Fatalf("expected ok false, got %v", env["ok"])
	}
	detail := envelopeErrorDetail(t, env)
	if detail["code"] != protocol.CodeBridgeUnavailable || detail["retryable"] != true {
		t.Fatalf("unexpected error detail: %v", detail)
	}

	buf.Reset()
	err = fail("object.add", protocol.CodeNotFound, "File not found: /x.blend")
	if got := exitCodeOf(t, err); got != 3 {
		t.Fatalf("expected exit 3, got %d", got)
	}
	if detail := envelopeErrorDetail(t, decodeEnvelope(t, buf)); detail["retryable"] != false {
		t.Fatalf("NOT_FOUND must not be retryable: %v", detail)
	}
}

func TestFailErrMapsTypedAndPlainErrors(t *testing.T) {
	buf := captureOut(t)

	err := failErr("file.validate", protocol.NewError(protocol.CodeValidationFailed, "missing textures"))
	if got := exitCodeOf(t, err); got != 4 {
		t.Fatalf("expected exit 4, got %d", got)
	}
	if detail := envelopeErrorDetail(t, decodeEnvelope(t, buf)); detail["code"] != protocol.CodeValidationFailed {
		t.Fatalf("unexpected detail: %v", detail)
	}

	buf.Reset()
	err = failErr("file.validate", errors.New("boom"))
	if got := exitCodeOf(t, err); got != 1 {
		t.Fatalf("plain errors map to ERROR, got exit %d", got)
	}
	detail := envelopeErrorDetail(t, decodeEnvelope(t, buf))
	if detail["code"] != protocol.CodeError || detail["message"] != "boom" {
		t.Fatalf("unexpected detail: %v", detail)
	}
}

func TestJSONArg(t *testing.T) {
	buf := captureOut(t)

	v, err := jsonArg("object.add", "--location-json", "[1, 2, 3]")
	if err != nil {
		t.Fatal(err)
	}
	list, ok := v.([]any)
	if !ok || len(list) != 3 || list[0] != float64(1) {
		t.Fatalf("unexpected value: %v", v)
	}
	if buf.Len() != 0 {
		t.Fatalf("success must not print: %s", buf.String())
	}

	_, err = jsonArg("object.add", "--location-json", "[1, 2")
	if got := exitCodeOf(t, err); got != 2 {
		t.Fatalf("expected exit 2, got %d", got)
	}
	detail := envelopeErrorDetail(t, decodeEnvelope(t, buf))
	if detail["code"] != protocol.CodeInvalidInput {
		t.Fatalf("unexpected code: %v", detail["code"])
	}
	message, _ := detail["message"].(string)
	if !strings.HasPrefix(message, "Invalid JSON for --location-json:") {
		t.Fatalf("message should name the flag: %s", message)
	}
}

func TestOptJSONArgTreatsEmptyAsNull(t *testing.T) {
	v, err := optJSONArg("object.transform", "--location-json", "")
	if err != nil || v != nil {
		t.Fatalf("expected nil for unset flag, got %v (%v)", v, err)
	}
}

func TestNilIfEmpty(t *testing.T) {
	if nilIfEmpty("") != nil {
		t.Fatal("empty string should map to nil")
	}
	if nilIfEmpty("Camera") != "Camera" {
		t.Fatal("non-empty string should pass through")
	}
}

func TestFloatArg(t *testing.T) {
	buf := captureOut(t)

	v, err := floatArg("light.set-energy", "ENERGY", "750.5")
	if err != nil || v != 750.5 {
		t.Fatalf("expected 750.5, got %v (%v)", v, err)
	}

	_, err = floatArg("light.set-energy", "ENERGY", "watts")
	if got := exitCodeOf(t, err); got != 2 {
		t.Fatalf("expected exit 2, got %d", got)
	}
	detail := envelopeErrorDetail(t, decodeEnvelope(t, buf))
	if detail["message"] != `Invalid value for ENERGY: "watts"` {
		t.Fatalf("unexpected message: %v", detail["message"])
	}
}

func TestVersionCommand(t *testing.T) {
	buf := captureOut(t)

	root := NewRootCmd()
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(buf.String(), "{\n  \"ok\": true,\n  \"protocolVersion\": \"1.0\",\n  \"command\": \"version\"") {
		t.Fatalf("envelope fields out of order:\n%s", buf.String())
	}
	data := envelopeData(t, decodeEnvelope(t, buf))
	if data["harnessVersion"] != protocol.HarnessVersion {
		t.Fatalf("unexpected harnessVersion: %v", data["harnessVersion"])
	}
}

func TestActionsCommandAgainstBridge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(protocol.Response{
			OK:              true,
			ProtocolVersion: protocol.ProtocolVersion,
			ID:              "system.actions",
			Result:          map[string]any{"actions": []any{"system.health", "scene.object.add"}},
		})
	}))
	defer srv.Close()
	t.Setenv(client.EnvBridgeURL, srv.URL)
	t.Setenv("HARNESS_BLENDER_AUTH_SECRET", "")

	buf := captureOut(t)
	root := NewRootCmd()
	root.SetArgs([]string{"actions"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}

	env := decodeEnvelope(t, buf)
	if env["ok"] != true || env["command"] != "actions" {
		t.Fatalf("unexpected envelope: %v", env)
	}
	actions, ok := envelopeData(t, env)["actions"].([]any)
	if !ok || len(actions) != 2 {
		t.Fatalf("unexpected actions: %v", env["data"])
	}
}

func TestActionsCommandSurfacesBridgeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(protocol.Response{
			OK:              false,
			ProtocolVersion: protocol.ProtocolVersion,
			Error:           &protocol.ErrorDetail{Code: protocol.CodeUnauthorized, Message: "Missing authorization header"},
		})
	}))
	defer srv.Close()
	t.Setenv(client.EnvBridgeURL, srv.URL)
	t.Setenv("HARNESS_BLENDER_AUTH_SECRET", "")

	buf := captureOut(t)
	root := NewRootCmd()
	root.SetArgs([]string{"actions"})
	err := root.Execute()
	if got := exitCodeOf(t, err); got != 1 {
		t.Fatalf("UNAUTHORIZED maps to exit 1, got %d", got)
	}
	detail := envelopeErrorDetail(t, decodeEnvelope(t, buf))
	if detail["code"] != protocol.CodeUnauthorized || detail["retryable"] != false {
		t.Fatalf("unexpected detail: %v", detail)
	}
}

func TestActionsCommandUnreachableBridge(t *testing.T) {
	t.Setenv(client.EnvBridgeURL, "http://127.0.0.1:1")
	t.Setenv("HARNESS_BLENDER_AUTH_SECRET", "")

	buf := captureOut(t)
	root := NewRootCmd()
	root.SetArgs([]string{"actions"})
	err := root.Execute()
	if got := exitCodeOf(t, err); got != 8 {
		t.Fatalf("expected exit 8, got %d", got)
	}
	detail := envelopeErrorDetail(t, decodeEnvelope(t, buf))
	if detail["code"] != protocol.CodeBridgeUnavailable || detail["retryable"] != true {
		t.Fatalf("unexpected detail: %v", detail)
	}
}

func TestRunPlanDryRun(t *testing.T) {
	planPath := filepath.Join(t.TempDir(), "plan.json")
	planBody := `{
  "project": "/scenes/box.blend",
  "steps": [
    {"method": "scene.object.add", "params": {"primitive": "CUBE"}}
  ]
}`
	if err := os.WriteFile(planPath, []byte(planBody), 0o644); err != nil {
		t.Fatal(err)
	}

	buf := captureOut(t)
	root := NewRootCmd()
	root.SetArgs([]string{"run-plan", planPath, "--dry-run"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}

	data := envelopeData(t, decodeEnvelope(t, buf))
	if data["dryRun"] != true || data["changed"] != false {
		t.Fatalf("unexpected dry run data: %v", data)
	}
	steps, ok := data["steps"].([]any)
	if !ok || len(steps) != 1 {
		t.Fatalf("expected 1 step, got %v", data["steps"])
	}
	step, _ := steps[0].(map[string]any)
	if step["method"] != "scene.object.add" {
		t.Fatalf("unexpected step: %v", step)
	}
	if step["timeout_seconds"] != float64(60) {
		t.Fatalf("expected default timeout 60, got %v", step["timeout_seconds"])
	}
	params, _ := step["params"].(map[string]any)
	if params["project"] != "/scenes/box.blend" {
		t.Fatalf("plan project should flow into steps, got %v", params["project"])
	}
}

func TestRunPlanMissingFile(t *testing.T) {
	buf := captureOut(t)
	root := NewRootCmd()
	root.SetArgs([]string{"run-plan", "/no/such/plan.json"})
	err := root.Execute()
	if got := exitCodeOf(t, err); got != 3 {
		t.Fatalf("expected exit 3, got %d", got)
	}
	detail := envelopeErrorDetail(t, decodeEnvelope(t, buf))
	if detail["code"] != protocol.CodeNotFound {
		t.Fatalf("unexpected code: %v", detail["code"])
	}
	if detail["message"] != "Plan file not found: /no/such/plan.json" {
		t.Fatalf("unexpected message: %v", detail["message"])
	}
}
