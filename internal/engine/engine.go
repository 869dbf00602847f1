// Package engine locates and runs the Blender binary in background mode.
// Scripts are executed with `blender -b [file] --python script.py`; the
// script's parameters travel through the HARNESS_PARAMS environment
// variable and its result comes back as a single sentinel-prefixed JSON
// line on stdout.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/harnessgg/blenderbridge/internal/script"
	"github.com/harnessgg/blenderbridge/pkg/protocol"
)

// Engine invokes Blender. The zero value resolves the binary from PATH;
// an explicit binary (usually from HARNESS_BLENDER_BIN) takes precedence.
type Engine struct {
	binary string
}

func New(binary string) *Engine {
	return &Engine{binary: binary}
}

// ResolveBinary returns the Blender executable to use. An explicitly
// configured path must exist; otherwise PATH is consulted, and on Windows
// the default install locations are globbed newest-first.
func (e *Engine) ResolveBinary() (string, error) {
	if e.binary != "" {
		if _, err := os.Stat(e.binary); err != nil {
			return "", protocol.NewError(protocol.CodeEngineNotFound, "HARNESS_BLENDER_BIN does not exist: %s", e.binary)
		}
		return e.binary, nil
	}
	if path, err := exec.LookPath("blender"); err == nil {
		return path, nil
	}
	if runtime.GOOS == "windows" {
		matches, _ := filepath.Glob(`C:\Program Files\Blender Foundation\Blender*\blender.exe`)
		if len(matches) > 0 {
			sort.Sort(sort.Reverse(sort.StringSlice(matches)))
			return matches[0], nil
		}
	}
	return "", protocol.NewError(protocol.CodeEngineNotFound, "Could not find Blender binary. Set HARNESS_BLENDER_BIN.")
}

// Run executes body inside Blender and returns the decoded sentinel
// payload. blendFile may be empty for scripts that build their own scene.
// The payload is returned as-is even when it reports ok=false; callers
// decide how to surface script-level failures.
func (e *Engine) Run(ctx context.Context, body, blendFile string, params map[string]any, timeout time.Duration) (map[string]any, error) {
	binary, err := e.ResolveBinary()
	if err != nil {
		return nil, err
	}

	if params == nil {
		params = map[string]any{}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, protocol.NewError(protocol.CodeInvalidInput, "Parameters are not JSON-serializable: %v", err)
	}

	dir, err := os.MkdirTemp("", "harness-blender-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	scriptPath := filepath.Join(dir, "script.py")
	if err := os.WriteFile(scriptPath, []byte(script.Build(body)), 0o644); err != nil {
		return nil, err
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	args := []string{"-b"}
	if blendFile != "" {
		args = append(args, blendFile)
	}
	args = append(args, "--python", scriptPath)

	cmd := exec.CommandContext(runCtx, binary, args...)
	cmd.Env = append(os.Environ(), "HARNESS_PARAMS="+string(paramsJSON))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, protocol.NewError(protocol.CodeEngineTimeout, "Blender timed out after %gs", timeout.Seconds())
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	// The sentinel is extracted even on a non-zero exit: scripts trap
	// their own exceptions and a crashing Blender can still have printed
	// a usable payload first.
	if payload, found, perr := extractPayload(stdout.String()); found {
		if perr != nil {
			return nil, perr
		}
		return payload, nil
	}

	if runErr != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = strings.TrimSpace(stdout.String())
		}
		if detail == "" {
			detail = "unknown blender failure"
		}
		return nil, protocol.NewError(protocol.CodeEngineExecFailed, "%s", detail)
	}
	return nil, protocol.NewError(protocol.CodeEngineExecFailed, "Blender completed without result payload")
}

// Version reports the first line of `blender --version`.
func (e *Engine) Version(ctx context.Context) (string, error) {
	binary, err := e.ResolveBinary()
	if err != nil {
		return "", err
	}
	runCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(runCtx, binary, "--version").Output()
	if err != nil {
		return "", protocol.NewError(protocol.CodeEngineExecFailed, "Could not query blender version: %v", err)
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(line), nil
}

// extractPayload scans output from the last line backwards for the
// sentinel prefix. found reports whether any sentinel line exists; err is
// non-nil when the line exists but does not decode to a JSON object.
func extractPayload(output string) (payload map[string]any, found bool, err error) {
	lines := strings.Split(output, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, script.ResultPrefix) {
			continue
		}
		raw := line[len(script.ResultPrefix):]
		var decoded any
		if jsonErr := json.Unmarshal([]byte(raw), &decoded); jsonErr != nil {
			return nil, true, protocol.NewError(protocol.CodeEngineExecFailed, "Invalid JSON payload from blender: %v", jsonErr)
		}
		obj, ok := decoded.(map[string]any)
		if !ok {
			return nil, true, protocol.NewError(protocol.CodeEngineExecFailed, "Blender payload must be a JSON object")
		}
		return obj, true, nil
	}
	return nil, false, nil
}
