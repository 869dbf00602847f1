package cli

import (
	"time"

	"github.com/spf13/cobra"
)

func newRenderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render commands",
	}
	cmd.AddCommand(
		newRenderStillCmd(),
		newRenderAnimationCmd(),
		newRenderStatusCmd(),
		newRenderCancelCmd(),
		newRenderPublishCmd(),
	)
	return cmd
}

func newRenderStillCmd() *cobra.Command {
	var (
		renderEngine string
		samples      int
		resolutionX  int
		resolutionY  int
		camera       string
	)
	cmd := &cobra.Command{
		Use:   "still PROJECT OUTPUT_IMAGE",
		Short: "Render a single frame",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChange("render.still", "render.still", map[string]any{
				"project":      args[0],
				"output_image": args[1],
				"engine":       renderEngine,
				"samples":      samples,
				"resolution_x": resolutionX,
				"resolution_y": resolutionY,
				"camera":       nilIfEmpty(camera),
			}, 600*time.Second)
		},
	}
	cmd.Flags().StringVar(&renderEngine, "engine", "BLENDER_EEVEE", "render engine (BLENDER_EEVEE, CYCLES)")
	cmd.Flags().IntVar(&samples, "samples", 64, "sample count")
	cmd.Flags().IntVar(&resolutionX, "resolution-x", 1920, "horizontal resolution")
	cmd.Flags().IntVar(&resolutionY, "resolution-y", 1080, "vertical resolution")
	cmd.Flags().StringVar(&camera, "camera", "", "render through this camera instead of the active one")
	return cmd
}

func newRenderAnimationCmd() *cobra.Command {
	var (
		renderEngine string
		frameStart   int
		frameEnd     int
		fps          int
		format       string
	)
	cmd := &cobra.Command{
		Use:   "animation PROJECT OUTPUT_DIR",
		Short: "Render a frame range",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChange("render.animation", "render.animation", map[string]any{
				"project":     args[0],
				"output_dir":  args[1],
				"engine":      renderEngine,
				"frame_start": frameStart,
				"frame_end":   frameEnd,
				"fps":         fps,
				"format":      format,
			}, 1800*time.Second)
		},
	}
	cmd.Flags().StringVar(&renderEngine, "engine", "BLENDER_EEVEE", "render engine (BLENDER_EEVEE, CYCLES)")
	cmd.Flags().IntVar(&frameStart, "frame-start", 1, "first frame")
	cmd.Flags().IntVar(&frameEnd, "frame-end", 250, "last frame")
	cmd.Flags().IntVar(&fps, "fps", 24, "frames per second")
	cmd.Flags().StringVar(&format, "format", "PNG", "output format (PNG, JPEG, FFMPEG)")
	return cmd
}

func newRenderStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status JOB_ID",
		Short: "Report the state of a queued render job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery("render.status", "render.status", map[string]any{"job_id": args[0]}, 30*time.Second)
		},
	}
}

func newRenderCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel JOB_ID",
		Short: "Cancel a queued render job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery("render.cancel", "render.cancel", map[string]any{"job_id": args[0]}, 30*time.Second)
		},
	}
}

func newRenderPublishCmd() *cobra.Command {
	var (
		key         string
		contentType string
	)
	cmd := &cobra.Command{
		Use:   "publish FILE",
		Short: "Upload a rendered file to object storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChange("render.publish", "render.publish", map[string]any{
				"file":         args[0],
				"key":          nilIfEmpty(key),
				"content_type": nilIfEmpty(contentType),
			}, 120*time.Second)
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "object key; defaults to the file name")
	cmd.Flags().StringVar(&contentType, "content-type", "", "MIME type; guessed from the extension by default")
	return cmd
}
