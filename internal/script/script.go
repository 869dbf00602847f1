// Package script assembles the Python programs handed to the scene engine.
// Every script shares the same prologue and exception trap so that exactly
// one sentinel line reaches stdout regardless of what the body does.
package script

import "strings"

// ResultPrefix marks the single stdout line carrying the JSON payload.
// The invoker scans for it from the end of the output.
const ResultPrefix = "__HARNESS_JSON__"

const header = `
import json
import os
import traceback

RESULT_PREFIX = "__HARNESS_JSON__"
params = json.loads(os.getenv("HARNESS_PARAMS", "{}"))

def emit(payload):
    print(RESULT_PREFIX + json.dumps(payload, separators=(",", ":"), ensure_ascii=True))

try:
`

const footer = `
except Exception as exc:
    emit({"ok": False, "error": str(exc), "traceback": traceback.format_exc()})
`

// Build wraps body in the shared prologue and exception trap. The body is
// indented one level so it lands inside the try block; blank lines stay
// blank.
func Build(body string) string {
	lines := strings.Split(strings.Trim(body, "\n"), "\n")
	indented := make([]string, len(lines))
	for i, line := range lines {
		if line != "" {
			indented[i] = "    " + line
		}
	}
	return header + strings.Join(indented, "\n") + "\n" + footer
}
