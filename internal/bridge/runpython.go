package bridge

import (
	"context"
	"time"
)

const runPythonScript = `
import bpy
scope = {"bpy": bpy, "params": params.get("user_params", {})}
exec(params["code"], scope, scope)
if params.get("save_path"):
    bpy.ops.wm.save_as_mainfile(filepath=params["save_path"])
emit({"ok": True, "changed": True})
`

// runPython executes arbitrary user code inside the engine. When a
// project is given it is opened first and saved back afterwards.
func (b *Bridge) runPython(ctx context.Context, params map[string]any) (map[string]any, error) {
	var blendFile string
	var savePath any
	if truthy(params["project"]) {
		project, err := requireFile(stringify(params["project"]))
		if err != nil {
			return nil, err
		}
		blendFile = project
		savePath = project
	}
	code, err := requireString(params, "code")
	if err != nil {
		return nil, err
	}
	timeoutSeconds, err := optFloat(params, "timeout_seconds", 120)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"code":        code,
		"user_params": optAny(params, "user_params", map[string]any{}),
		"save_path":   savePath,
	}
	timeout := time.Duration(timeoutSeconds * float64(time.Second))
	return b.run(ctx, runPythonScript, blendFile, payload, timeout)
}
