package bridge

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"time"

	"github.com/harnessgg/blenderbridge/internal/snapshot"
	"github.com/harnessgg/blenderbridge/pkg/protocol"
)

const projectNewScript = `
import bpy
target = params["output"]
bpy.ops.wm.read_factory_settings(use_empty=True)
bpy.ops.wm.save_as_mainfile(filepath=target)
emit({"ok": True, "output": target, "changed": True})
`

func (b *Bridge) projectNew(ctx context.Context, params map[string]any) (map[string]any, error) {
	output, err := requireString(params, "output")
	if err != nil {
		return nil, err
	}
	output = filepath.Clean(output)
	overwrite := optBool(params, "overwrite", false)
	if _, err := os.Stat(output); err == nil && !overwrite {
		return nil, protocol.NewError(protocol.CodeInvalidInput, "Target exists: %s. Use overwrite=true.", output)
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return nil, err
	}
	return b.run(ctx, projectNewScript, "", map[string]any{"output": output}, 60*time.Second)
}

func (b *Bridge) projectCopy(ctx context.Context, params map[string]any) (map[string]any, error) {
	sourceRaw, err := requireString(params, "source")
	if err != nil {
		return nil, err
	}
	source, err := requireFile(sourceRaw)
	if err != nil {
		return nil, err
	}
	targetRaw, err := requireString(params, "target")
	if err != nil {
		return nil, err
	}
	target := filepath.Clean(targetRaw)
	overwrite := optBool(params, "overwrite", false)
	if _, err := os.Stat(target); err == nil && !overwrite {
		return nil, protocol.NewError(protocol.CodeInvalidInput, "Target exists: %s. Use overwrite=true.", target)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, err
	}
	if err := copyFile(source, target); err != nil {
		return nil, err
	}
	return map[string]any{"source": source, "target": target, "changed": true}, nil
}

const projectInspectScript = `
import bpy
objects = [{
  "name": obj.name,
  "type": obj.type
} for obj in bpy.data.objects]

emit({
  "ok": True,
  "project": bpy.data.filepath,
  "scene": bpy.context.scene.name if bpy.context.scene else None,
  "counts": {
    "objects": len(bpy.data.objects),
    "meshes": len(bpy.data.meshes),
    "materials": len(bpy.data.materials),
    "cameras": len(bpy.data.cameras),
    "lights": len(bpy.data.lights)
  },
  "objects": objects
})
`

func (b *Bridge) projectInspect(ctx context.Context, params map[string]any) (map[string]any, error) {
	project, err := requireProject(params)
	if err != nil {
		return nil, err
	}
	return b.run(ctx, projectInspectScript, project, map[string]any{}, 60*time.Second)
}

const projectValidateScript = `
import bpy
broken = []
for image in bpy.data.images:
    if image.source == "FILE" and image.filepath:
        abs_path = bpy.path.abspath(image.filepath)
        if not os.path.exists(abs_path):
            broken.append(abs_path)
emit({
  "ok": True,
  "isValid": len(broken) == 0,
  "missingExternalFiles": broken
})
`

func (b *Bridge) projectValidate(ctx context.Context, params map[string]any) (map[string]any, error) {
	project, err := requireProject(params)
	if err != nil {
		return nil, err
	}
	return b.run(ctx, projectValidateScript, project, map[string]any{}, 60*time.Second)
}

const projectSummaryScript = `
import bpy
objects = [{"name": obj.name, "type": obj.type} for obj in bpy.data.objects]
objects = sorted(objects, key=lambda x: x["name"])
materials = sorted([m.name for m in bpy.data.materials])
emit({
  "ok": True,
  "counts": {
    "objects": len(bpy.data.objects),
    "meshes": len(bpy.data.meshes),
    "materials": len(bpy.data.materials),
    "cameras": len(bpy.data.cameras),
    "lights": len(bpy.data.lights)
  },
  "objects": objects,
  "materials": materials
})
`

func (b *Bridge) projectSummary(ctx context.Context, project string) (map[string]any, error) {
	return b.run(ctx, projectSummaryScript, project, map[string]any{}, 60*time.Second)
}

func (b *Bridge) projectDiff(ctx context.Context, params map[string]any) (map[string]any, error) {
	sourceRaw, err := requireString(params, "source")
	if err != nil {
		return nil, err
	}
	source, err := requireFile(sourceRaw)
	if err != nil {
		return nil, err
	}
	targetRaw, err := requireString(params, "target")
	if err != nil {
		return nil, err
	}
	target, err := requireFile(targetRaw)
	if err != nil {
		return nil, err
	}

	sourceSummary, err := b.projectSummary(ctx, source)
	if err != nil {
		return nil, err
	}
	targetSummary, err := b.projectSummary(ctx, target)
	if err != nil {
		return nil, err
	}

	addedObjects, removedObjects := diffNames(objectNames(sourceSummary), objectNames(targetSummary))
	addedMaterials, removedMaterials := diffNames(materialNames(sourceSummary), materialNames(targetSummary))

	countsChanged := !reflect.DeepEqual(sourceSummary["counts"], targetSummary["counts"])
	changed := countsChanged ||
		len(addedObjects) > 0 || len(removedObjects) > 0 ||
		len(addedMaterials) > 0 || len(removedMaterials) > 0

	return map[string]any{
		"changed": changed,
		"source":  source,
		"target":  target,
		"counts": map[string]any{
			"source": sourceSummary["counts"],
			"target": targetSummary["counts"],
		},
		"objects": map[string]any{
			"added":   addedObjects,
			"removed": removedObjects,
		},
		"materials": map[string]any{
			"added":   addedMaterials,
			"removed": removedMaterials,
		},
	}, nil
}

func (b *Bridge) projectSnapshot(ctx context.Context, params map[string]any) (map[string]any, error) {
	project, err := requireProject(params)
	if err != nil {
		return nil, err
	}
	description, err := requireString(params, "description")
	if err != nil {
		return nil, err
	}
	created, err := b.store.Snapshot(project, description)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"snapshotId":  created.Entry.ID,
		"description": description,
		"snapshot":    created.Snapshot,
		"manifest":    created.Manifest,
		"changed":     false,
	}, nil
}

func (b *Bridge) projectSnapshots(ctx context.Context, params map[string]any) (map[string]any, error) {
	project, err := requireProject(params)
	if err != nil {
		return nil, err
	}
	entries, cursor, err := b.store.List(project)
	if err != nil {
		return nil, err
	}
	list := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		list = append(list, map[string]any{
			"id":          e.ID,
			"description": e.Description,
			"snapshot":    e.Snapshot,
			"createdAt":   e.CreatedAt,
		})
	}
	return map[string]any{"snapshots": list, "currentIndex": cursor}, nil
}

func (b *Bridge) projectUndo(ctx context.Context, params map[string]any) (map[string]any, error) {
	project, err := requireProject(params)
	if err != nil {
		return nil, err
	}
	snapshotID := optString(params, "snapshot_id", "")
	entry, err := b.store.Undo(project, snapshotID)
	if err != nil {
		return nil, err
	}
	return restoreResult(project, entry), nil
}

func (b *Bridge) projectRedo(ctx context.Context, params map[string]any) (map[string]any, error) {
	project, err := requireProject(params)
	if err != nil {
		return nil, err
	}
	entry, err := b.store.Redo(project)
	if err != nil {
		return nil, err
	}
	return restoreResult(project, entry), nil
}

func restoreResult(project string, entry snapshot.Entry) map[string]any {
	return map[string]any{
		"project":            project,
		"restoredSnapshotId": entry.ID,
		"description":        entry.Description,
		"changed":            true,
	}
}

// requireProject resolves the common "project" parameter to an existing
// scene file.
func requireProject(params map[string]any) (string, error) {
	raw, err := requireString(params, "project")
	if err != nil {
		return "", err
	}
	return requireFile(raw)
}

func objectNames(summary map[string]any) []string {
	objs, _ := summary["objects"].([]any)
	names := make([]string, 0, len(objs))
	for _, o := range objs {
		if m, ok := o.(map[string]any); ok {
			if name, ok := m["name"].(string); ok {
				names = append(names, name)
			}
		}
	}
	return names
}

func materialNames(summary map[string]any) []string {
	mats, _ := summary["materials"].([]any)
	names := make([]string, 0, len(mats))
	for _, m := range mats {
		if name, ok := m.(string); ok {
			names = append(names, name)
		}
	}
	return names
}

// diffNames returns (in target but not source, in source but not target)
// as sorted, de-duplicated sets.
func diffNames(source, target []string) (added, removed []string) {
	inSource := make(map[string]bool, len(source))
	for _, n := range source {
		inSource[n] = true
	}
	inTarget := make(map[string]bool, len(target))
	for _, n := range target {
		inTarget[n] = true
	}
	added = []string{}
	for n := range inTarget {
		if !inSource[n] {
			added = append(added, n)
		}
	}
	removed = []string{}
	for n := range inSource {
		if !inTarget[n] {
			removed = append(removed, n)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}
