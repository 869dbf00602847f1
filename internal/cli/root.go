// Package cli implements the blenderbridge command line front end.
// Every command prints exactly one JSON envelope on stdout and exits
// with the status mapped from its error code, so scripts and agents can
// drive the harness without parsing human-oriented text.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/harnessgg/blenderbridge/internal/client"
	"github.com/harnessgg/blenderbridge/internal/config"
	"github.com/harnessgg/blenderbridge/internal/plan"
	"github.com/harnessgg/blenderbridge/pkg/protocol"
)

// out receives every envelope; tests swap it for a buffer.
var out io.Writer = os.Stdout

// exitError carries the process exit status chosen by a command that
// has already printed its envelope.
type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// Execute runs the CLI and exits the process. Usage mistakes cobra
// catches before a command runs are the only errors reported as plain
// text; everything else is an envelope printed by the command itself.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		var ee exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(protocol.ExitCode(protocol.CodeInvalidInput))
	}
}

// NewRootCmd assembles the full command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "blenderbridge",
		Short:         "Bridge-first CLI for Blender automation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newBridgeCmd(),
		newFileCmd(),
		newObjectCmd(),
		newCameraCmd(),
		newLightCmd(),
		newMaterialCmd(),
		newRenderCmd(),
		newVersionCmd(),
		newActionsCmd(),
		newDoctorCmd(),
		newRunPlanCmd(),
	)
	return root
}

type envelopeError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// envelope is the CLI wire format. Data and Error are mutually
// exclusive except for run-plan failures, which report partial results
// as data on a failed envelope.
type envelope struct {
	OK              bool           `json:"ok"`
	ProtocolVersion string         `json:"protocolVersion"`
	Command         string         `json:"command"`
	Data            map[string]any `json:"data,omitempty"`
	Error           *envelopeError `json:"error,omitempty"`
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(out, "{\"ok\": false, \"error\": {\"code\": %q, \"message\": %q}}\n", protocol.CodeError, err.Error())
		return
	}
	fmt.Fprintln(out, string(data))
}

// printOK prints a success envelope. Results that report a change also
// carry an idempotent flag, and every payload carries a warnings list.
func printOK(command string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	if _, ok := data["changed"]; ok {
		if _, ok := data["idempotent"]; !ok {
			data["idempotent"] = false
		}
	}
	if _, ok := data["warnings"]; !ok {
		data["warnings"] = []any{}
	}
	printJSON(envelope{OK: true, ProtocolVersion: protocol.ProtocolVersion, Command: command, Data: data})
}

// fail prints a failure envelope and returns the exit status mapped
// from code. Retryability follows the code taxonomy; bridge.status is
// the one caller that overrides it.
func fail(command, code, message string) error {
	return failWith(command, code, message, protocol.Retryable(code))
}

func failWith(command, code, message string, retryable bool) error {
	printJSON(envelope{
		ProtocolVersion: protocol.ProtocolVersion,
		Command:         command,
		Error:           &envelopeError{Code: code, Message: message, Retryable: retryable},
	})
	return exitError{code: protocol.ExitCode(code)}
}

// failErr maps any error, typed or not, to a printed failure envelope.
func failErr(command string, err error) error {
	if pe, ok := protocol.AsError(err); ok {
		return fail(command, pe.Code, pe.Message)
	}
	return fail(command, protocol.CodeError, err.Error())
}

// resolveClient picks the bridge address: environment first, then the
// url file written by `bridge start`, then the default.
func resolveClient() *client.BridgeClient {
	url := os.Getenv(client.EnvBridgeURL)
	if url == "" {
		if dir, err := config.StateDir(); err == nil {
			if data, err := os.ReadFile(filepath.Join(dir, "bridge.url")); err == nil {
				url = strings.TrimSpace(string(data))
			}
		}
	}
	c := client.NewBridgeClient(url)
	if secret := config.AuthSecret(); secret != "" {
		c.SetAuthSecret(secret)
	}
	return c
}

// callBridge performs one RPC and prints the failure envelope when the
// call does not succeed.
func callBridge(command, method string, params map[string]any, timeout time.Duration) (map[string]any, error) {
	data, err := resolveClient().Call(context.Background(), method, params, timeout)
	if err != nil {
		return nil, failErr(command, err)
	}
	return data, nil
}

// ensureBridgeReady front-loads the connectivity check so a mutating
// command reports BRIDGE_UNAVAILABLE before touching anything.
func ensureBridgeReady(command string) error {
	_, err := callBridge(command, "system.health", map[string]any{}, 20*time.Second)
	return err
}

// runQuery performs a read-only call and prints its envelope.
func runQuery(command, method string, params map[string]any, timeout time.Duration) error {
	data, err := callBridge(command, method, params, timeout)
	if err != nil {
		return err
	}
	printOK(command, data)
	return nil
}

// runChange is runQuery with the connectivity check in front, for
// commands that will mutate a file.
func runChange(command, method string, params map[string]any, timeout time.Duration) error {
	if err := ensureBridgeReady(command); err != nil {
		return err
	}
	return runQuery(command, method, params, timeout)
}

// jsonArg decodes a JSON-valued flag or positional argument; label is
// how the argument appears in help ("--location-json", "VALUE_JSON").
func jsonArg(command, label, raw string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fail(command, protocol.CodeInvalidInput, fmt.Sprintf("Invalid JSON for %s: %v", label, err))
	}
	return v, nil
}

// optJSONArg treats an unset flag as JSON null.
func optJSONArg(command, label, raw string) (any, error) {
	if raw == "" {
		return nil, nil
	}
	return jsonArg(command, label, raw)
}

// nilIfEmpty maps an unset optional string flag to JSON null.
func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// floatArg parses a numeric positional argument.
func floatArg(command, name, raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fail(command, protocol.CodeInvalidInput, fmt.Sprintf("Invalid value for %s: %q", name, raw))
	}
	return v, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Report the harness version without calling the bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printOK("version", map[string]any{"harnessVersion": protocol.HarnessVersion})
			return nil
		},
	}
}

func newActionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "actions",
		Short: "List every method the bridge can dispatch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery("actions", "system.actions", map[string]any{}, 30*time.Second)
		},
	}
}

func newDoctorCmd() *cobra.Command {
	var includeRender bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run bridge and engine diagnostics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ensureBridgeReady("doctor"); err != nil {
				return err
			}
			data, err := callBridge("doctor", "system.doctor", map[string]any{"include_render": includeRender}, 60*time.Second)
			if err != nil {
				return err
			}
			printOK("doctor", data)
			if healthy, _ := data["healthy"].(bool); !healthy {
				return exitError{code: protocol.ExitCode(protocol.CodeError)}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&includeRender, "include-render", true, "probe the render pipeline with a tiny test render")
	return cmd
}

func newRunPlanCmd() *cobra.Command {
	var (
		rollbackOnFail bool
		dryRun         bool
	)
	cmd := &cobra.Command{
		Use:   "run-plan PLAN_FILE",
		Short: "Execute a JSON or YAML plan of bridge calls",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := plan.Load(args[0])
			if err != nil {
				return failErr("run-plan", err)
			}
			if dryRun {
				steps := make([]map[string]any, 0, len(doc.Steps))
				for _, s := range doc.Steps {
					steps = append(steps, map[string]any{
						"method":          s.Method,
						"params":          s.Params,
						"timeout_seconds": s.TimeoutSeconds,
					})
				}
				printOK("run-plan", map[string]any{"dryRun": true, "steps": steps, "changed": false})
				return nil
			}
			if err := ensureBridgeReady("run-plan"); err != nil {
				return err
			}
			runner := plan.NewRunner(resolveClient())
			runner.RollbackOnFail = rollbackOnFail
			outcome, err := runner.Run(cmd.Context(), doc)
			if err != nil {
				var se *plan.StepError
				if errors.As(err, &se) {
					printJSON(envelope{ProtocolVersion: protocol.ProtocolVersion, Command: "run-plan", Data: planFailureData(se)})
					return exitError{code: protocol.ExitCode(se.Code)}
				}
				return failErr("run-plan", err)
			}
			printOK("run-plan", map[string]any{
				"executed": outcome.Executed,
				"results":  stepResults(outcome.Results),
				"changed":  true,
			})
			return nil
		},
	}
	cmd.Flags().BoolVar(&rollbackOnFail, "rollback-on-fail", true, "restore the project file when a step fails")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "resolve variables and print the steps without executing")
	return cmd
}

func stepResults(results []plan.StepResult) []map[string]any {
	items := make([]map[string]any, 0, len(results))
	for _, r := range results {
		items = append(items, r.Map())
	}
	return items
}

// planFailureData shapes a failed run as data rather than a bare error
// so callers still see the partial results and the rollback outcome.
func planFailureData(se *plan.StepError) map[string]any {
	var rollbackErr any
	if se.RollbackError != "" {
		rollbackErr = se.RollbackError
	}
	return map[string]any{
		"executed":          se.Index,
		"failedStep":        map[string]any{"index": se.Index, "method": se.Method, "params": se.Params},
		"error":             map[string]any{"code": se.Code, "message": se.Message},
		"rollbackAttempted": se.RollbackAttempted,
		"rolledBack":        se.RolledBack,
		"rollbackError":     rollbackErr,
		"results":           stepResults(se.Results),
	}
}
