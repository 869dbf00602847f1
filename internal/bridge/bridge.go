// Package bridge implements the RPC method registry. Each handler
// validates parameters, builds a Python body for the scene engine and
// shapes the result payload; a few methods (snapshots, job bookkeeping)
// run entirely on the harness side.
package bridge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/harnessgg/blenderbridge/internal/client"
	"github.com/harnessgg/blenderbridge/internal/engine"
	"github.com/harnessgg/blenderbridge/internal/jobs"
	"github.com/harnessgg/blenderbridge/internal/queue"
	"github.com/harnessgg/blenderbridge/internal/snapshot"
	"github.com/harnessgg/blenderbridge/pkg/protocol"
)

type handlerFunc func(ctx context.Context, params map[string]any) (map[string]any, error)

// Bridge dispatches RPC methods. queue and storage are optional; methods
// depending on them degrade to inline execution or a configuration error.
type Bridge struct {
	engine  *engine.Engine
	store   *snapshot.Store
	tracker *jobs.Tracker
	queue   *queue.Client
	storage *client.ObjectStore

	handlers map[string]handlerFunc
	methods  []string
}

func New(eng *engine.Engine, store *snapshot.Store, tracker *jobs.Tracker, q *queue.Client, storage *client.ObjectStore) *Bridge {
	b := &Bridge{
		engine:   eng,
		store:    store,
		tracker:  tracker,
		queue:    q,
		storage:  storage,
		handlers: make(map[string]handlerFunc),
	}

	b.register("system.health", b.systemHealth)
	b.register("system.version", b.systemVersion)
	b.register("system.actions", b.systemActions)
	b.register("system.capabilities", b.systemCapabilities)
	b.register("system.doctor", b.systemDoctor)

	b.register("project.new", b.projectNew)
	b.register("project.copy", b.projectCopy)
	b.register("project.inspect", b.projectInspect)
	b.register("project.validate", b.projectValidate)
	b.register("project.diff", b.projectDiff)
	b.register("project.snapshot", b.projectSnapshot)
	b.register("project.snapshots", b.projectSnapshots)
	b.register("project.undo", b.projectUndo)
	b.register("project.redo", b.projectRedo)

	b.register("scene.object.list", b.objectList)
	b.register("scene.object.add", b.objectAdd)
	b.register("scene.object.transform", b.objectTransform)
	b.register("scene.object.delete", b.objectDelete)
	b.register("scene.object.delete_all", b.objectDeleteAll)
	b.register("scene.object.material_list", b.objectMaterialList)
	b.register("scene.object.duplicate", b.objectDuplicate)
	b.register("scene.object.rename", b.objectRename)

	b.register("scene.camera.list", b.cameraList)
	b.register("scene.camera.add", b.cameraAdd)
	b.register("scene.camera.set_active", b.cameraSetActive)
	b.register("scene.camera.set_lens", b.cameraSetLens)
	b.register("scene.camera.rig_product_shot", b.cameraRigProductShot)

	b.register("scene.light.add", b.lightAdd)
	b.register("scene.light.list", b.lightList)
	b.register("scene.light.set_energy", b.lightSetEnergy)
	b.register("scene.light.set_color", b.lightSetColor)
	b.register("scene.light.rig_three_point", b.lightRigThreePoint)

	b.register("scene.material.list", b.materialList)
	b.register("scene.material.create", b.materialCreate)
	b.register("scene.material.assign", b.materialAssign)
	b.register("scene.material.assign_many", b.materialAssignMany)
	b.register("scene.material.set_base_color", b.materialSetBaseColor)
	b.register("scene.material.set_metallic", b.materialSetMetallic)
	b.register("scene.material.set_roughness", b.materialSetRoughness)
	b.register("scene.material.set_node_input", b.materialSetNodeInput)

	b.register("render.still", b.renderStill)
	b.register("render.animation", b.renderAnimation)
	b.register("render.status", b.renderStatus)
	b.register("render.cancel", b.renderCancel)
	b.register("render.publish", b.renderPublish)

	b.register("bridge.run_python", b.runPython)

	return b
}

func (b *Bridge) register(method string, fn handlerFunc) {
	b.handlers[method] = fn
	b.methods = append(b.methods, method)
}

// ActionMethods lists every registered method in registration order.
func (b *Bridge) ActionMethods() []string {
	out := make([]string, len(b.methods))
	copy(out, b.methods)
	return out
}

// Dispatch routes one RPC call.
func (b *Bridge) Dispatch(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
	handler, ok := b.handlers[method]
	if !ok {
		return nil, protocol.NewError(protocol.CodeInvalidInput, "Unknown method: %s", method)
	}
	if params == nil {
		params = map[string]any{}
	}
	return handler(ctx, params)
}

// run executes a script body and unwraps the script-level ok flag: a
// payload reporting ok=false becomes an ERROR carrying the script's own
// message.
func (b *Bridge) run(ctx context.Context, body, blendFile string, params map[string]any, timeout time.Duration) (map[string]any, error) {
	out, err := b.engine.Run(ctx, body, blendFile, params, timeout)
	if err != nil {
		return nil, err
	}
	if err := ResultError(out); err != nil {
		return nil, err
	}
	return out, nil
}

// ResultError converts a script payload reporting ok=false into an
// ERROR carrying the script's own message. The queue worker applies the
// same rule to payloads it receives directly from the engine.
func ResultError(out map[string]any) error {
	if ok, _ := out["ok"].(bool); !ok {
		msg := "Operation failed"
		if v, exists := out["error"]; exists {
			msg = fmt.Sprint(v)
		}
		return protocol.NewError(protocol.CodeError, "%s", msg)
	}
	return nil
}

func missingParam(key string) error {
	return protocol.NewError(protocol.CodeInvalidInput, "Missing required parameter: '%s'", key)
}

func invalidParam(key string) error {
	return protocol.NewError(protocol.CodeInvalidInput, "Invalid value for '%s'", key)
}

// requireFile checks that path exists, returning its cleaned form. The
// error keeps the caller's spelling.
func requireFile(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", protocol.NewError(protocol.CodeNotFound, "File not found: %s", path)
	}
	return filepath.Clean(path), nil
}

// targetPath picks the save destination: an explicit output wins over
// editing the project in place.
func targetPath(project string, output any) string {
	if truthy(output) {
		return filepath.Clean(stringify(output))
	}
	return project
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func requireString(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", missingParam(key)
	}
	return stringify(v), nil
}

// optString returns the stringified value when it is truthy, otherwise
// the fallback. This mirrors `params.get(key) or fallback`.
func optString(params map[string]any, key, fallback string) string {
	if v, ok := params[key]; ok && truthy(v) {
		return stringify(v)
	}
	return fallback
}

// optAny returns the raw value, or fallback when the key is absent.
func optAny(params map[string]any, key string, fallback any) any {
	if v, ok := params[key]; ok {
		return v
	}
	return fallback
}

func optBool(params map[string]any, key string, fallback bool) bool {
	v, ok := params[key]
	if !ok {
		return fallback
	}
	return truthy(v)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func requireFloat(params map[string]any, key string) (float64, error) {
	v, ok := params[key]
	if !ok {
		return 0, missingParam(key)
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, invalidParam(key)
	}
	return f, nil
}

func optFloat(params map[string]any, key string, fallback float64) (float64, error) {
	v, ok := params[key]
	if !ok {
		return fallback, nil
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, invalidParam(key)
	}
	return f, nil
}

func optInt(params map[string]any, key string, fallback int) (int, error) {
	f, err := optFloat(params, key, float64(fallback))
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

// parseHexColor converts #RRGGBB or #RRGGBBAA into RGBA floats in [0,1].
func parseHexColor(color string) ([]float64, error) {
	raw := strings.TrimLeft(strings.TrimSpace(color), "#")
	if len(raw) != 6 && len(raw) != 8 {
		return nil, protocol.NewError(protocol.CodeInvalidInput, "Color must be #RRGGBB or #RRGGBBAA")
	}
	vals := make([]float64, 0, 4)
	for i := 0; i < len(raw); i += 2 {
		n, err := strconv.ParseUint(raw[i:i+2], 16, 16)
		if err != nil {
			return nil, protocol.NewError(protocol.CodeInvalidInput, "Invalid hex color")
		}
		vals = append(vals, float64(n)/255.0)
	}
	if len(vals) == 3 {
		vals = append(vals, 1.0)
	}
	return vals, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := out.ReadFrom(in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
