package bridge

import (
	"context"
	"strings"
	"time"
)

const lightAddScript = `
import bpy
bpy.ops.object.light_add(type=params["light_type"], location=params["location"])
obj = bpy.context.active_object
obj.name = params["name"]
obj.data.energy = float(params["energy"])
obj.data.color = params["color"][:3]
target = params["output"]
bpy.ops.wm.save_as_mainfile(filepath=target)
emit({
  "ok": True,
  "light": obj.name,
  "type": obj.data.type,
  "energy": obj.data.energy,
  "color": [obj.data.color[0], obj.data.color[1], obj.data.color[2]],
  "output": target,
  "changed": True
})
`

func (b *Bridge) lightAdd(ctx context.Context, params map[string]any) (map[string]any, error) {
	project, err := requireProject(params)
	if err != nil {
		return nil, err
	}
	color, err := parseHexColor(optString(params, "color", "#FFFFFF"))
	if err != nil {
		return nil, err
	}
	energy, err := optFloat(params, "energy", 1000.0)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"light_type": strings.ToUpper(optString(params, "light_type", "POINT")),
		"name":       optString(params, "name", "Light"),
		"energy":     energy,
		"location":   optAny(params, "location", []any{0.0, 0.0, 3.0}),
		"color":      color,
		"output":     targetPath(project, params["output"]),
	}
	return b.run(ctx, lightAddScript, project, payload, 60*time.Second)
}

const lightListScript = `
import bpy
lights = []
for obj in bpy.data.objects:
    if obj.type != "LIGHT":
        continue
    data = obj.data
    lights.append({
      "name": obj.name,
      "type": data.type,
      "energy": data.energy,
      "color": [data.color[0], data.color[1], data.color[2]],
      "location": [obj.location.x, obj.location.y, obj.location.z]
    })
emit({"ok": True, "lights": lights})
`

func (b *Bridge) lightList(ctx context.Context, params map[string]any) (map[string]any, error) {
	project, err := requireProject(params)
	if err != nil {
		return nil, err
	}
	return b.run(ctx, lightListScript, project, map[string]any{}, 60*time.Second)
}

const lightSetEnergyScript = `
import bpy
name = params["light_name"]
obj = bpy.data.objects.get(name)
if not obj or obj.type != "LIGHT":
    raise ValueError(f"Light not found: {name}")
obj.data.energy = float(params["energy"])
target = params["output"]
bpy.ops.wm.save_as_mainfile(filepath=target)
emit({"ok": True, "light": name, "energy": obj.data.energy, "output": target, "changed": True})
`

func (b *Bridge) lightSetEnergy(ctx context.Context, params map[string]any) (map[string]any, error) {
	project, err := requireProject(params)
	if err != nil {
		return nil, err
	}
	lightName, err := requireString(params, "light_name")
	if err != nil {
		return nil, err
	}
	energy, err := requireFloat(params, "energy")
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"light_name": lightName,
		"energy":     energy,
		"output":     targetPath(project, params["output"]),
	}
	return b.run(ctx, lightSetEnergyScript, project, payload, 60*time.Second)
}

const lightSetColorScript = `
import bpy
name = params["light_name"]
obj = bpy.data.objects.get(name)
if not obj or obj.type != "LIGHT":
    raise ValueError(f"Light not found: {name}")
obj.data.color = params["color"][:3]
target = params["output"]
bpy.ops.wm.save_as_mainfile(filepath=target)
emit({
  "ok": True,
  "light": name,
  "color": [obj.data.color[0], obj.data.color[1], obj.data.color[2]],
  "output": target,
  "changed": True
})
`

func (b *Bridge) lightSetColor(ctx context.Context, params map[string]any) (map[string]any, error) {
	project, err := requireProject(params)
	if err != nil {
		return nil, err
	}
	lightName, err := requireString(params, "light_name")
	if err != nil {
		return nil, err
	}
	colorRaw, err := requireString(params, "color")
	if err != nil {
		return nil, err
	}
	rgba, err := parseHexColor(colorRaw)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"light_name": lightName,
		"color":      rgba,
		"output":     targetPath(project, params["output"]),
	}
	return b.run(ctx, lightSetColorScript, project, payload, 60*time.Second)
}

const lightRigThreePointScript = `
import bpy
from mathutils import Vector
target = Vector((0.0, 0.0, 0.0))
if params.get("target_object"):
    t = bpy.data.objects.get(params["target_object"])
    if not t:
        raise ValueError(f"Target object not found: {params['target_object']}")
    target = t.matrix_world.translation
lights = []
specs = [
    ("KeyLight", (2.5, -2.8, 3.0), 1000.0),
    ("FillLight", (-2.5, -2.2, 1.8), 450.0),
    ("BackLight", (0.0, 2.8, 2.6), 700.0),
]
for name, loc, energy in specs:
    bpy.ops.object.light_add(type="AREA", location=(target.x + loc[0], target.y + loc[1], target.z + loc[2]))
    l = bpy.context.active_object
    l.name = name
    l.data.energy = energy
    direction = (target - l.matrix_world.translation).normalized()
    l.rotation_mode = "QUATERNION"
    l.rotation_quaternion = direction.to_track_quat("-Z", "Y")
    l.rotation_mode = "XYZ"
    lights.append(l.name)
bpy.ops.wm.save_as_mainfile(filepath=params["output"])
emit({"ok": True, "lights": lights, "targetObject": params.get("target_object"), "output": params["output"], "changed": True})
`

func (b *Bridge) lightRigThreePoint(ctx context.Context, params map[string]any) (map[string]any, error) {
	project, err := requireProject(params)
	if err != nil {
		return nil, err
	}
	var targetObject any
	if truthy(params["target_object"]) {
		targetObject = stringify(params["target_object"])
	}
	payload := map[string]any{
		"target_object": targetObject,
		"output":        targetPath(project, params["output"]),
	}
	return b.run(ctx, lightRigThreePointScript, project, payload, 60*time.Second)
}
