package bridge

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harnessgg/blenderbridge/internal/jobs"
	"github.com/harnessgg/blenderbridge/internal/queue"
	"github.com/harnessgg/blenderbridge/pkg/protocol"
)

var engineAliases = map[string]string{
	"EEVEE":              "BLENDER_EEVEE",
	"BLENDER_EEVEE_NEXT": "BLENDER_EEVEE",
	"CYCLES":             "CYCLES",
	"BLENDER_WORKBENCH":  "BLENDER_WORKBENCH",
}

func resolveRenderEngine(params map[string]any) string {
	raw := strings.ToUpper(optString(params, "engine", "BLENDER_EEVEE"))
	if canonical, ok := engineAliases[raw]; ok {
		return canonical
	}
	return raw
}

const renderStillScript = `
import bpy
scene = bpy.context.scene
scene.render.engine = params["engine"]
scene.render.resolution_x = params["resolution_x"]
scene.render.resolution_y = params["resolution_y"]
if scene.render.engine == "CYCLES":
    scene.cycles.samples = params["samples"]

camera_name = params.get("camera")
if camera_name:
    cam = bpy.data.objects.get(camera_name)
    if not cam or cam.type != "CAMERA":
        raise ValueError(f"Camera not found: {camera_name}")
    scene.camera = cam
elif scene.camera is None:
    for obj in bpy.data.objects:
        if obj.type == "CAMERA":
            scene.camera = obj
            break
if scene.camera is None:
    raise ValueError("Cannot render still: no camera in scene")

scene.render.filepath = params["output_image"]
out_path = bpy.path.abspath(params["output_image"])
before_exists = os.path.exists(out_path)
before_mtime = os.path.getmtime(out_path) if before_exists else None
bpy.ops.render.render(write_still=True)
render_result = bpy.data.images.get("Render Result")
if render_result and not os.path.exists(out_path):
    render_result.save_render(filepath=out_path, scene=scene)
if not os.path.exists(out_path):
    raise ValueError(f"Render output missing: {out_path}")
after_mtime = os.path.getmtime(out_path)
changed = (not before_exists) or (before_mtime is not None and after_mtime > before_mtime)
emit({"ok": True, "outputImage": params["output_image"], "changed": bool(changed)})
`

func (b *Bridge) renderStill(ctx context.Context, params map[string]any) (map[string]any, error) {
	project, err := requireProject(params)
	if err != nil {
		return nil, err
	}
	outputImage, err := requireString(params, "output_image")
	if err != nil {
		return nil, err
	}
	samples, err := optInt(params, "samples", 64)
	if err != nil {
		return nil, err
	}
	resolutionX, err := optInt(params, "resolution_x", 1920)
	if err != nil {
		return nil, err
	}
	resolutionY, err := optInt(params, "resolution_y", 1080)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"output_image": filepath.Clean(outputImage),
		"engine":       resolveRenderEngine(params),
		"samples":      samples,
		"resolution_x": resolutionX,
		"resolution_y": resolutionY,
		"camera":       params["camera"],
	}
	return b.run(ctx, renderStillScript, project, payload, 600*time.Second)
}

// AnimationScript is the engine-side body for an animation render. The
// queue worker reuses it verbatim.
func AnimationScript() string {
	return renderAnimationScript
}

const renderAnimationScript = `
import bpy
scene = bpy.context.scene
scene.render.engine = params["engine"]
scene.frame_start = int(params["frame_start"])
scene.frame_end = int(params["frame_end"])
scene.render.fps = int(params["fps"])
scene.render.image_settings.file_format = params["format"]
if scene.camera is None:
    for obj in bpy.data.objects:
        if obj.type == "CAMERA":
            scene.camera = obj
            break
if scene.camera is None:
    raise ValueError("Cannot render animation: no camera in scene")
scene.render.filepath = params["output_dir"].rstrip("/\\") + "/"
bpy.ops.render.render(animation=True)
emit({
  "ok": True,
  "outputDir": params["output_dir"],
  "frameStart": scene.frame_start,
  "frameEnd": scene.frame_end,
  "format": scene.render.image_settings.file_format
})
`

// AnimationTimeout caps one animation render.
const AnimationTimeout = 1800 * time.Second

func (b *Bridge) renderAnimation(ctx context.Context, params map[string]any) (map[string]any, error) {
	project, err := requireProject(params)
	if err != nil {
		return nil, err
	}
	outputDirRaw, err := requireString(params, "output_dir")
	if err != nil {
		return nil, err
	}
	outputDir := filepath.Clean(outputDirRaw)
	frameStart, err := optInt(params, "frame_start", 1)
	if err != nil {
		return nil, err
	}
	frameEnd, err := optInt(params, "frame_end", 250)
	if err != nil {
		return nil, err
	}
	fps, err := optInt(params, "fps", 24)
	if err != nil {
		return nil, err
	}
	renderEngine := resolveRenderEngine(params)
	format := strings.ToUpper(optString(params, "format", "PNG"))
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, err
	}

	jobID := jobs.NewJobID()
	job := jobs.Job{
		ID:         jobID,
		Type:       "animation",
		Project:    project,
		OutputDir:  outputDir,
		FrameStart: frameStart,
		FrameEnd:   frameEnd,
	}

	// With a queue attached the render is handed to a worker process and
	// the call returns immediately.
	if b.queue != nil && optBool(params, "queue", false) {
		job.Status = jobs.StatusQueued
		job.StartedAt = time.Now().UTC().Format(time.RFC3339Nano)
		if err := b.queue.Jobs.Save(ctx, job); err != nil {
			return nil, err
		}
		task := queue.RenderTaskPayload{
			JobID:      jobID,
			Project:    project,
			OutputDir:  outputDir,
			Engine:     renderEngine,
			FrameStart: frameStart,
			FrameEnd:   frameEnd,
			FPS:        fps,
			Format:     format,
		}
		if err := b.queue.EnqueueRender(ctx, task); err != nil {
			return nil, err
		}
		return map[string]any{"jobId": jobID, "status": jobs.StatusQueued}, nil
	}

	b.tracker.Register(job)

	payload := map[string]any{
		"output_dir":  outputDir,
		"engine":      renderEngine,
		"frame_start": frameStart,
		"frame_end":   frameEnd,
		"fps":         fps,
		"format":      format,
	}
	result, err := b.run(ctx, renderAnimationScript, project, payload, AnimationTimeout)
	if err != nil {
		b.tracker.Fail(jobID, errorMessage(err))
		return nil, err
	}
	// Complete leaves a cancelled job untouched, so the reported status
	// reflects a cancel that won the race.
	final, err := b.tracker.Complete(jobID, result)
	if err != nil {
		return nil, err
	}
	return map[string]any{"jobId": jobID, "status": final.Status, "result": result}, nil
}

func (b *Bridge) renderStatus(ctx context.Context, params map[string]any) (map[string]any, error) {
	jobID, err := requireString(params, "job_id")
	if err != nil {
		return nil, err
	}
	job, err := b.tracker.Get(jobID)
	if err == nil {
		return job.Map(), nil
	}
	if b.queue != nil {
		if queued, qerr := b.queue.Jobs.Get(ctx, jobID); qerr == nil {
			return queued.Map(), nil
		}
	}
	return nil, err
}

func (b *Bridge) renderCancel(ctx context.Context, params map[string]any) (map[string]any, error) {
	jobID, err := requireString(params, "job_id")
	if err != nil {
		return nil, err
	}
	job, cancelled, err := b.tracker.Cancel(jobID)
	if err == nil {
		if cancelled {
			return map[string]any{"jobId": jobID, "status": jobs.StatusCancelled}, nil
		}
		return map[string]any{"jobId": jobID, "status": job.Status, "cancelled": false}, nil
	}
	if b.queue != nil {
		if queued, qerr := b.queue.Jobs.Get(ctx, jobID); qerr == nil {
			if jobs.Terminal(queued.Status) {
				return map[string]any{"jobId": jobID, "status": queued.Status, "cancelled": false}, nil
			}
			queued.Status = jobs.StatusCancelled
			queued.FinishedAt = time.Now().UTC().Format(time.RFC3339Nano)
			if err := b.queue.Jobs.Save(ctx, queued); err != nil {
				return nil, err
			}
			return map[string]any{"jobId": jobID, "status": jobs.StatusCancelled}, nil
		}
	}
	return nil, err
}

func (b *Bridge) renderPublish(ctx context.Context, params map[string]any) (map[string]any, error) {
	fileRaw, err := requireString(params, "file")
	if err != nil {
		return nil, err
	}
	file, err := requireFile(fileRaw)
	if err != nil {
		return nil, err
	}
	if b.storage == nil {
		return nil, protocol.NewError(protocol.CodeError, "Object storage is not configured")
	}
	key := optString(params, "key", filepath.Base(file))
	contentType := optString(params, "content_type", contentTypeFor(file))
	url, err := b.storage.UploadFile(ctx, key, file, contentType)
	if err != nil {
		return nil, protocol.NewError(protocol.CodeError, "Upload failed: %v", err)
	}
	return map[string]any{"bucket": b.storage.Bucket(), "key": key, "url": url}, nil
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".exr":
		return "image/x-exr"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	}
	return "application/octet-stream"
}
