package bridge

import (
	"context"
	"time"
)

const cameraListScript = `
import bpy
cams = []
active = bpy.context.scene.camera.name if bpy.context.scene and bpy.context.scene.camera else None
for obj in bpy.data.objects:
    if obj.type != "CAMERA":
        continue
    cam = obj.data
    cams.append({
      "name": obj.name,
      "lens": cam.lens,
      "clip_start": cam.clip_start,
      "clip_end": cam.clip_end,
      "use_dof": cam.dof.use_dof,
      "focus_distance": cam.dof.focus_distance,
      "aperture_fstop": cam.dof.aperture_fstop,
      "isActive": obj.name == active
    })
emit({"ok": True, "cameras": cams})
`

func (b *Bridge) cameraList(ctx context.Context, params map[string]any) (map[string]any, error) {
	project, err := requireProject(params)
	if err != nil {
		return nil, err
	}
	return b.run(ctx, cameraListScript, project, map[string]any{}, 60*time.Second)
}

const cameraAddScript = `
import bpy
bpy.ops.object.camera_add(location=params["location"], rotation=params["rotation"])
obj = bpy.context.active_object
obj.name = params["name"]
target = params["output"]
bpy.ops.wm.save_as_mainfile(filepath=target)
emit({"ok": True, "camera": obj.name, "output": target, "changed": True})
`

func (b *Bridge) cameraAdd(ctx context.Context, params map[string]any) (map[string]any, error) {
	project, err := requireProject(params)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"name":     optString(params, "name", "Camera"),
		"location": optAny(params, "location", []any{0.0, -3.0, 2.0}),
		"rotation": optAny(params, "rotation", []any{1.1, 0.0, 0.0}),
		"output":   targetPath(project, params["output"]),
	}
	return b.run(ctx, cameraAddScript, project, payload, 60*time.Second)
}

const cameraSetActiveScript = `
import bpy
name = params["camera_name"]
obj = bpy.data.objects.get(name)
if not obj or obj.type != "CAMERA":
    raise ValueError(f"Camera not found: {name}")
bpy.context.scene.camera = obj
target = params["output"]
bpy.ops.wm.save_as_mainfile(filepath=target)
emit({"ok": True, "activeCamera": name, "output": target, "changed": True})
`

func (b *Bridge) cameraSetActive(ctx context.Context, params map[string]any) (map[string]any, error) {
	project, err := requireProject(params)
	if err != nil {
		return nil, err
	}
	cameraName, err := requireString(params, "camera_name")
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"camera_name": cameraName,
		"output":      targetPath(project, params["output"]),
	}
	return b.run(ctx, cameraSetActiveScript, project, payload, 60*time.Second)
}

const cameraSetLensScript = `
import bpy
name = params["camera_name"]
obj = bpy.data.objects.get(name)
if not obj or obj.type != "CAMERA":
    raise ValueError(f"Camera not found: {name}")
obj.data.lens = float(params["lens"])
target = params["output"]
bpy.ops.wm.save_as_mainfile(filepath=target)
emit({"ok": True, "camera": name, "lens": obj.data.lens, "output": target, "changed": True})
`

func (b *Bridge) cameraSetLens(ctx context.Context, params map[string]any) (map[string]any, error) {
	project, err := requireProject(params)
	if err != nil {
		return nil, err
	}
	cameraName, err := requireString(params, "camera_name")
	if err != nil {
		return nil, err
	}
	lens, err := requireFloat(params, "lens")
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"camera_name": cameraName,
		"lens":        lens,
		"output":      targetPath(project, params["output"]),
	}
	return b.run(ctx, cameraSetLensScript, project, payload, 60*time.Second)
}

const cameraRigProductShotScript = `
import bpy
from mathutils import Vector
tgt = bpy.data.objects.get(params["target_object"])
if not tgt:
    raise ValueError(f"Target object not found: {params['target_object']}")
bpy.ops.object.camera_add()
cam = bpy.context.active_object
cam.name = params["camera_name"]
target = tgt.matrix_world.translation
cam.location = Vector((target.x, target.y - float(params["distance"]), target.z + float(params["height"])))
cam.data.lens = float(params["lens"])
direction = (target - cam.matrix_world.translation).normalized()
cam.rotation_mode = "QUATERNION"
cam.rotation_quaternion = direction.to_track_quat("-Z", "Y")
cam.rotation_mode = "XYZ"
bpy.context.scene.camera = cam
bpy.ops.wm.save_as_mainfile(filepath=params["output"])
emit({"ok": True, "camera": cam.name, "target": tgt.name, "distance": float(params["distance"]), "height": float(params["height"]), "lens": float(params["lens"]), "output": params["output"], "changed": True})
`

func (b *Bridge) cameraRigProductShot(ctx context.Context, params map[string]any) (map[string]any, error) {
	project, err := requireProject(params)
	if err != nil {
		return nil, err
	}
	targetObject, err := requireString(params, "target_object")
	if err != nil {
		return nil, err
	}
	distance, err := optFloat(params, "distance", 4.0)
	if err != nil {
		return nil, err
	}
	height, err := optFloat(params, "height", 1.2)
	if err != nil {
		return nil, err
	}
	lens, err := optFloat(params, "lens", 60.0)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"camera_name":   optString(params, "camera_name", "ProductCam"),
		"target_object": targetObject,
		"distance":      distance,
		"height":        height,
		"lens":          lens,
		"output":        targetPath(project, params["output"]),
	}
	return b.run(ctx, cameraRigProductShotScript, project, payload, 60*time.Second)
}
