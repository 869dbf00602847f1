package bridge

import (
	"context"
	"strings"
	"time"

	"github.com/harnessgg/blenderbridge/pkg/protocol"
)

const objectListScript = `
import bpy
wanted = params.get("type")
objects = []
for obj in bpy.data.objects:
    if wanted and obj.type != wanted:
        continue
    objects.append({
      "name": obj.name,
      "type": obj.type,
      "parent": obj.parent.name if obj.parent else None,
      "location": [obj.location.x, obj.location.y, obj.location.z],
      "rotation_euler": [obj.rotation_euler.x, obj.rotation_euler.y, obj.rotation_euler.z],
      "scale": [obj.scale.x, obj.scale.y, obj.scale.z],
    })
emit({"ok": True, "objects": objects})
`

func (b *Bridge) objectList(ctx context.Context, params map[string]any) (map[string]any, error) {
	project, err := requireProject(params)
	if err != nil {
		return nil, err
	}
	return b.run(ctx, objectListScript, project, map[string]any{"type": params["type"]}, 60*time.Second)
}

var primitiveAliases = map[string]string{
	"UV_SPHERE": "SPHERE",
	"UV-SPHERE": "SPHERE",
	"UVSPHERE":  "SPHERE",
}

var validPrimitives = map[string]bool{
	"CUBE":     true,
	"SPHERE":   true,
	"CYLINDER": true,
	"PLANE":    true,
	"CONE":     true,
	"TORUS":    true,
}

const objectAddScript = `
import bpy
primitive = params["primitive"]
loc = params["location"]
rot = params["rotation"]
scale = params["scale"]
name = params.get("name")
target = params["output"]

if primitive == "CUBE":
    bpy.ops.mesh.primitive_cube_add(location=loc, rotation=rot)
elif primitive == "SPHERE":
    bpy.ops.mesh.primitive_uv_sphere_add(location=loc, rotation=rot)
elif primitive == "CYLINDER":
    bpy.ops.mesh.primitive_cylinder_add(location=loc, rotation=rot)
elif primitive == "PLANE":
    bpy.ops.mesh.primitive_plane_add(location=loc, rotation=rot)
elif primitive == "CONE":
    bpy.ops.mesh.primitive_cone_add(location=loc, rotation=rot)
elif primitive == "TORUS":
    bpy.ops.mesh.primitive_torus_add(location=loc, rotation=rot)
else:
    raise ValueError(f"Unsupported primitive: {primitive}")

obj = bpy.context.active_object
obj.scale = scale
if name:
    obj.name = name
bpy.ops.wm.save_as_mainfile(filepath=target)
emit({"ok": True, "object": obj.name, "output": target, "changed": True})
`

func (b *Bridge) objectAdd(ctx context.Context, params map[string]any) (map[string]any, error) {
	project, err := requireProject(params)
	if err != nil {
		return nil, err
	}
	primitiveRaw, err := requireString(params, "primitive")
	if err != nil {
		return nil, err
	}
	primitive := strings.ToUpper(primitiveRaw)
	if alias, ok := primitiveAliases[primitive]; ok {
		primitive = alias
	}
	if !validPrimitives[primitive] {
		message := "Unsupported primitive: " + primitive + ". Valid primitives: CONE, CUBE, CYLINDER, PLANE, SPHERE, TORUS."
		if strings.Contains(primitive, "SPHERE") {
			message += " Hint: Use SPHERE instead of UV_SPHERE."
		}
		return nil, protocol.NewError(protocol.CodeInvalidInput, "%s", message)
	}
	payload := map[string]any{
		"primitive": primitive,
		"name":      params["name"],
		"location":  optAny(params, "location", []any{0.0, 0.0, 0.0}),
		"rotation":  optAny(params, "rotation", []any{0.0, 0.0, 0.0}),
		"scale":     optAny(params, "scale", []any{1.0, 1.0, 1.0}),
		"output":    targetPath(project, params["output"]),
	}
	return b.run(ctx, objectAddScript, project, payload, 60*time.Second)
}

const objectTransformScript = `
import bpy
name = params["object_name"]
obj = bpy.data.objects.get(name)
if not obj:
    raise ValueError(f"Object not found: {name}")
if params.get("location") is not None:
    obj.location = params["location"]
if params.get("rotation") is not None:
    obj.rotation_euler = params["rotation"]
if params.get("scale") is not None:
    obj.scale = params["scale"]
target = params["output"]
bpy.ops.wm.save_as_mainfile(filepath=target)
emit({"ok": True, "object": obj.name, "output": target, "changed": True})
`

func (b *Bridge) objectTransform(ctx context.Context, params map[string]any) (map[string]any, error) {
	project, err := requireProject(params)
	if err != nil {
		return nil, err
	}
	objectName, err := requireString(params, "object_name")
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"object_name": objectName,
		"location":    params["location"],
		"rotation":    params["rotation"],
		"scale":       params["scale"],
		"output":      targetPath(project, params["output"]),
	}
	return b.run(ctx, objectTransformScript, project, payload, 60*time.Second)
}

const objectDeleteScript = `
import bpy
name = params["object_name"]
obj = bpy.data.objects.get(name)
if not obj:
    raise ValueError(f"Object not found: {name}")
bpy.data.objects.remove(obj, do_unlink=True)
target = params["output"]
bpy.ops.wm.save_as_mainfile(filepath=target)
emit({"ok": True, "deleted": name, "output": target, "changed": True})
`

func (b *Bridge) objectDelete(ctx context.Context, params map[string]any) (map[string]any, error) {
	project, err := requireProject(params)
	if err != nil {
		return nil, err
	}
	objectName, err := requireString(params, "object_name")
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"object_name": objectName,
		"output":      targetPath(project, params["output"]),
	}
	return b.run(ctx, objectDeleteScript, project, payload, 60*time.Second)
}

const objectDeleteAllScript = `
import bpy
count = len(bpy.data.objects)
for obj in list(bpy.data.objects):
    bpy.data.objects.remove(obj, do_unlink=True)
bpy.ops.wm.save_as_mainfile(filepath=params["output"])
emit({"ok": True, "deleted": count, "output": params["output"], "changed": True})
`

func (b *Bridge) objectDeleteAll(ctx context.Context, params map[string]any) (map[string]any, error) {
	project, err := requireProject(params)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{"output": targetPath(project, params["output"])}
	return b.run(ctx, objectDeleteAllScript, project, payload, 60*time.Second)
}

const objectMaterialListScript = `
import bpy
obj = bpy.data.objects.get(params["object_name"])
if not obj:
    raise ValueError(f"Object not found: {params['object_name']}")
if obj.type != "MESH":
    raise ValueError(f"Object is not a mesh: {obj.name}")
materials = []
for idx, slot in enumerate(obj.material_slots):
    mat = slot.material
    materials.append({
        "index": idx,
        "name": mat.name if mat else None
    })
emit({"ok": True, "object": obj.name, "materials": materials})
`

func (b *Bridge) objectMaterialList(ctx context.Context, params map[string]any) (map[string]any, error) {
	project, err := requireProject(params)
	if err != nil {
		return nil, err
	}
	objectName, err := requireString(params, "object_name")
	if err != nil {
		return nil, err
	}
	return b.run(ctx, objectMaterialListScript, project, map[string]any{"object_name": objectName}, 60*time.Second)
}

const objectDuplicateScript = `
import bpy
name = params["object_name"]
obj = bpy.data.objects.get(name)
if not obj:
    raise ValueError(f"Object not found: {name}")

dup = obj.copy()
if obj.data:
    dup.data = obj.data.copy()
bpy.context.collection.objects.link(dup)

new_name = params.get("new_name")
if new_name:
    dup.name = new_name

target = params["output"]
bpy.ops.wm.save_as_mainfile(filepath=target)
emit({"ok": True, "sourceObject": name, "object": dup.name, "output": target, "changed": True})
`

func (b *Bridge) objectDuplicate(ctx context.Context, params map[string]any) (map[string]any, error) {
	project, err := requireProject(params)
	if err != nil {
		return nil, err
	}
	objectName, err := requireString(params, "object_name")
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"object_name": objectName,
		"new_name":    params["new_name"],
		"output":      targetPath(project, params["output"]),
	}
	return b.run(ctx, objectDuplicateScript, project, payload, 60*time.Second)
}

const objectRenameScript = `
import bpy
old = params["object_name"]
new = params["new_name"]
obj = bpy.data.objects.get(old)
if not obj:
    raise ValueError(f"Object not found: {old}")
if bpy.data.objects.get(new):
    raise ValueError(f"Object already exists: {new}")
obj.name = new
target = params["output"]
bpy.ops.wm.save_as_mainfile(filepath=target)
emit({"ok": True, "oldName": old, "object": new, "output": target, "changed": True})
`

func (b *Bridge) objectRename(ctx context.Context, params map[string]any) (map[string]any, error) {
	project, err := requireProject(params)
	if err != nil {
		return nil, err
	}
	objectName, err := requireString(params, "object_name")
	if err != nil {
		return nil, err
	}
	newName, err := requireString(params, "new_name")
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"object_name": objectName,
		"new_name":    newName,
		"output":      targetPath(project, params["output"]),
	}
	return b.run(ctx, objectRenameScript, project, payload, 60*time.Second)
}
