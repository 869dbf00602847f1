package bridge

import (
	"context"
	"time"

	"github.com/harnessgg/blenderbridge/pkg/protocol"
)

func (b *Bridge) systemHealth(ctx context.Context, _ map[string]any) (map[string]any, error) {
	bv, err := b.engine.Version(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"ok": true, "blenderVersion": bv}, nil
}

func (b *Bridge) systemVersion(ctx context.Context, _ map[string]any) (map[string]any, error) {
	data := map[string]any{"harnessVersion": protocol.HarnessVersion}
	if bv, err := b.engine.Version(ctx); err == nil {
		data["blenderVersion"] = bv
	} else {
		data["blenderVersion"] = nil
	}
	return data, nil
}

func (b *Bridge) systemActions(_ context.Context, _ map[string]any) (map[string]any, error) {
	return map[string]any{"actions": b.ActionMethods()}, nil
}

func (b *Bridge) systemCapabilities(_ context.Context, _ map[string]any) (map[string]any, error) {
	return map[string]any{
		"actions":        b.ActionMethods(),
		"harnessVersion": protocol.HarnessVersion,
	}, nil
}

const doctorDiagScript = `
import bpy
engines = []
for engine in ("BLENDER_EEVEE", "BLENDER_WORKBENCH", "CYCLES"):
    try:
        bpy.context.scene.render.engine = engine
        engines.append(engine)
    except Exception:
        pass
cycles_devices = []
try:
    prefs = bpy.context.preferences.addons["cycles"].preferences
    for dev in prefs.devices:
        cycles_devices.append({"name": dev.name, "type": dev.type, "use": bool(dev.use)})
except Exception:
    cycles_devices = []
emit({"ok": True, "engines": engines, "cyclesDevices": cycles_devices, "versionString": bpy.app.version_string})
`

func (b *Bridge) systemDoctor(ctx context.Context, params map[string]any) (map[string]any, error) {
	includeRender := optBool(params, "include_render", true)
	checks := []map[string]any{}
	healthy := true

	if bv, err := b.engine.Version(ctx); err == nil {
		checks = append(checks, map[string]any{"name": "blender.binary", "ok": true, "value": bv})
	} else {
		healthy = false
		checks = append(checks, map[string]any{"name": "blender.binary", "ok": false, "error": errorMessage(err)})
	}

	if includeRender && healthy {
		diag, err := b.run(ctx, doctorDiagScript, "", map[string]any{}, 30*time.Second)
		if err != nil {
			if pe, ok := protocol.AsError(err); ok {
				healthy = false
				checks = append(checks, map[string]any{"name": "render.capability", "ok": false, "error": pe.Message})
			} else {
				return nil, err
			}
		} else {
			checks = append(checks, map[string]any{"name": "render.capability", "ok": true, "engines": optAny(diag, "engines", []any{})})
			checks = append(checks, map[string]any{"name": "render.device", "ok": true, "devices": optAny(diag, "cyclesDevices", []any{})})
		}
	}

	return map[string]any{"healthy": healthy, "checks": checks}, nil
}

func errorMessage(err error) string {
	if pe, ok := protocol.AsError(err); ok {
		return pe.Message
	}
	return err.Error()
}
