package bridge

import (
	"context"
	"time"
)

const materialListScript = `
import bpy
materials = []
for mat in bpy.data.materials:
    entry = {
      "name": mat.name,
      "use_nodes": mat.use_nodes,
      "base_color": list(mat.diffuse_color),
      "metallic": None,
      "roughness": None,
    }
    if mat.use_nodes and mat.node_tree:
        bsdf = mat.node_tree.nodes.get("Principled BSDF")
        if bsdf:
            entry["base_color"] = list(bsdf.inputs["Base Color"].default_value)
            entry["metallic"] = bsdf.inputs["Metallic"].default_value
            entry["roughness"] = bsdf.inputs["Roughness"].default_value
    materials.append(entry)
emit({"ok": True, "materials": materials})
`

func (b *Bridge) materialList(ctx context.Context, params map[string]any) (map[string]any, error) {
	project, err := requireProject(params)
	if err != nil {
		return nil, err
	}
	return b.run(ctx, materialListScript, project, map[string]any{}, 60*time.Second)
}

const materialCreateScript = `
import bpy
name = params["name"]
mat = bpy.data.materials.get(name)
if not mat:
    mat = bpy.data.materials.new(name=name)
mat.use_fake_user = True
mat.use_nodes = True
bsdf = mat.node_tree.nodes.get("Principled BSDF")
if not bsdf:
    raise ValueError("Principled BSDF node missing")
bsdf.inputs["Base Color"].default_value = params["base_color"]
bsdf.inputs["Metallic"].default_value = float(params["metallic"])
bsdf.inputs["Roughness"].default_value = float(params["roughness"])
target = params["output"]
bpy.ops.wm.save_as_mainfile(filepath=target)
emit({"ok": True, "material": mat.name, "output": target, "changed": True})
`

func (b *Bridge) materialCreate(ctx context.Context, params map[string]any) (map[string]any, error) {
	project, err := requireProject(params)
	if err != nil {
		return nil, err
	}
	name, err := requireString(params, "name")
	if err != nil {
		return nil, err
	}
	baseColor, err := parseHexColor(optString(params, "base_color", "#FFFFFF"))
	if err != nil {
		return nil, err
	}
	metallic, err := optFloat(params, "metallic", 0.0)
	if err != nil {
		return nil, err
	}
	roughness, err := optFloat(params, "roughness", 0.5)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"name":       name,
		"base_color": baseColor,
		"metallic":   metallic,
		"roughness":  roughness,
		"output":     targetPath(project, params["output"]),
	}
	return b.run(ctx, materialCreateScript, project, payload, 60*time.Second)
}

const materialAssignScript = `
import bpy
obj = bpy.data.objects.get(params["object_name"])
if not obj:
    raise ValueError(f"Object not found: {params['object_name']}")
mat = bpy.data.materials.get(params["material_name"])
if not mat:
    raise ValueError(f"Material not found: {params['material_name']}")
if obj.type != "MESH":
    raise ValueError(f"Object is not a mesh: {obj.name}")
if len(obj.data.materials) == 0:
    obj.data.materials.append(mat)
else:
    obj.data.materials[0] = mat
target = params["output"]
bpy.ops.wm.save_as_mainfile(filepath=target)
emit({"ok": True, "object": obj.name, "material": mat.name, "output": target, "changed": True})
`

func (b *Bridge) materialAssign(ctx context.Context, params map[string]any) (map[string]any, error) {
	project, err := requireProject(params)
	if err != nil {
		return nil, err
	}
	objectName, err := requireString(params, "object_name")
	if err != nil {
		return nil, err
	}
	materialName, err := requireString(params, "material_name")
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"object_name":   objectName,
		"material_name": materialName,
		"output":        targetPath(project, params["output"]),
	}
	return b.run(ctx, materialAssignScript, project, payload, 60*time.Second)
}

const materialAssignManyScript = `
import bpy
mat = bpy.data.materials.get(params["material_name"])
if not mat:
    raise ValueError(f"Material not found: {params['material_name']}")
updated = []
for name in params["object_names"]:
    obj = bpy.data.objects.get(name)
    if not obj:
        raise ValueError(f"Object not found: {name}")
    if obj.type != "MESH":
        raise ValueError(f"Object is not a mesh: {obj.name}")
    if len(obj.data.materials) == 0:
        obj.data.materials.append(mat)
    else:
        obj.data.materials[0] = mat
    updated.append(obj.name)
bpy.ops.wm.save_as_mainfile(filepath=params["output"])
emit({"ok": True, "material": mat.name, "updated": updated, "output": params["output"], "changed": True})
`

func (b *Bridge) materialAssignMany(ctx context.Context, params map[string]any) (map[string]any, error) {
	project, err := requireProject(params)
	if err != nil {
		return nil, err
	}
	materialName, err := requireString(params, "material_name")
	if err != nil {
		return nil, err
	}
	names, _ := optAny(params, "object_names", []any{}).([]any)
	objectNames := make([]string, 0, len(names))
	for _, n := range names {
		objectNames = append(objectNames, stringify(n))
	}
	payload := map[string]any{
		"object_names":  objectNames,
		"material_name": materialName,
		"output":        targetPath(project, params["output"]),
	}
	return b.run(ctx, materialAssignManyScript, project, payload, 60*time.Second)
}

const materialSetValueScript = `
import bpy
name = params["material_name"]
mat = bpy.data.materials.get(name)
if not mat:
    raise ValueError(f"Material not found: {name}")
if params["key"] == "base_color":
    rgba = params["value"]
    if mat.use_nodes and mat.node_tree and mat.node_tree.nodes.get("Principled BSDF"):
        mat.node_tree.nodes["Principled BSDF"].inputs["Base Color"].default_value = rgba
    else:
        mat.diffuse_color = rgba
elif params["key"] == "metallic":
    if mat.use_nodes and mat.node_tree and mat.node_tree.nodes.get("Principled BSDF"):
        mat.node_tree.nodes["Principled BSDF"].inputs["Metallic"].default_value = float(params["value"])
elif params["key"] == "roughness":
    if mat.use_nodes and mat.node_tree and mat.node_tree.nodes.get("Principled BSDF"):
        mat.node_tree.nodes["Principled BSDF"].inputs["Roughness"].default_value = float(params["value"])
target = params["output"]
bpy.ops.wm.save_as_mainfile(filepath=target)
emit({"ok": True, "material": name, "key": params["key"], "value": params["value"], "output": target, "changed": True})
`

func (b *Bridge) materialSetValue(ctx context.Context, params map[string]any, key string, value any) (map[string]any, error) {
	project, err := requireProject(params)
	if err != nil {
		return nil, err
	}
	materialName, err := requireString(params, "material_name")
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"material_name": materialName,
		"value":         value,
		"key":           key,
		"output":        targetPath(project, params["output"]),
	}
	return b.run(ctx, materialSetValueScript, project, payload, 60*time.Second)
}

func (b *Bridge) materialSetBaseColor(ctx context.Context, params map[string]any) (map[string]any, error) {
	colorRaw, err := requireString(params, "color")
	if err != nil {
		return nil, err
	}
	rgba, err := parseHexColor(colorRaw)
	if err != nil {
		return nil, err
	}
	return b.materialSetValue(ctx, params, "base_color", rgba)
}

func (b *Bridge) materialSetMetallic(ctx context.Context, params map[string]any) (map[string]any, error) {
	metallic, err := requireFloat(params, "metallic")
	if err != nil {
		return nil, err
	}
	return b.materialSetValue(ctx, params, "metallic", metallic)
}

func (b *Bridge) materialSetRoughness(ctx context.Context, params map[string]any) (map[string]any, error) {
	roughness, err := requireFloat(params, "roughness")
	if err != nil {
		return nil, err
	}
	return b.materialSetValue(ctx, params, "roughness", roughness)
}

const materialSetNodeInputScript = `
import bpy
mat = bpy.data.materials.get(params["material_name"])
if not mat:
    raise ValueError(f"Material not found: {params['material_name']}")
if not mat.use_nodes or not mat.node_tree:
    raise ValueError("Material does not use nodes")
node = mat.node_tree.nodes.get(params["node_name"])
if not node:
    raise ValueError(f"Node not found: {params['node_name']}")
sock = node.inputs.get(params["input_name"])
if not sock:
    raise ValueError(f"Node input not found: {params['input_name']}")
sock.default_value = params["value"]
bpy.ops.wm.save_as_mainfile(filepath=params["output"])
emit({"ok": True, "material": mat.name, "node": node.name, "input": sock.name, "value": params["value"], "output": params["output"], "changed": True})
`

func (b *Bridge) materialSetNodeInput(ctx context.Context, params map[string]any) (map[string]any, error) {
	project, err := requireProject(params)
	if err != nil {
		return nil, err
	}
	materialName, err := requireString(params, "material_name")
	if err != nil {
		return nil, err
	}
	nodeName, err := requireString(params, "node_name")
	if err != nil {
		return nil, err
	}
	inputName, err := requireString(params, "input_name")
	if err != nil {
		return nil, err
	}
	value, ok := params["value"]
	if !ok {
		return nil, missingParam("value")
	}
	payload := map[string]any{
		"material_name": materialName,
		"node_name":     nodeName,
		"input_name":    inputName,
		"value":         value,
		"output":        targetPath(project, params["output"]),
	}
	return b.run(ctx, materialSetNodeInputScript, project, payload, 60*time.Second)
}
