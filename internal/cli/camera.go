package cli

import (
	"time"

	"github.com/spf13/cobra"
)

func newCameraCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "camera",
		Short: "Camera commands",
	}
	cmd.AddCommand(
		newCameraListCmd(),
		newCameraAddCmd(),
		newCameraSetActiveCmd(),
		newCameraSetLensCmd(),
		newCameraRigProductShotCmd(),
	)
	return cmd
}

func newCameraListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list PROJECT",
		Short: "List the cameras in a scene",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery("camera.list", "scene.camera.list", map[string]any{"project": args[0]}, 60*time.Second)
		},
	}
}

func newCameraAddCmd() *cobra.Command {
	var (
		name         string
		locationJSON string
		rotationJSON string
		output       string
	)
	cmd := &cobra.Command{
		Use:   "add PROJECT",
		Short: "Add a camera to a scene",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			location, err := jsonArg("camera.add", "--location-json", locationJSON)
			if err != nil {
				return err
			}
			rotation, err := jsonArg("camera.add", "--rotation-json", rotationJSON)
			if err != nil {
				return err
			}
			return runChange("camera.add", "scene.camera.add", map[string]any{
				"project":  args[0],
				"name":     name,
				"location": location,
				"rotation": rotation,
				"output":   nilIfEmpty(output),
			}, 60*time.Second)
		},
	}
	cmd.Flags().StringVar(&name, "name", "Camera", "name for the new camera")
	cmd.Flags().StringVar(&locationJSON, "location-json", "[0,-3,2]", "location as a JSON array")
	cmd.Flags().StringVar(&rotationJSON, "rotation-json", "[1.1,0,0]", "rotation in radians as a JSON array")
	cmd.Flags().StringVar(&output, "output", "", "save to this path instead of editing in place")
	return cmd
}

func newCameraSetActiveCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "set-active PROJECT CAMERA_NAME",
		Short: "Make a camera the scene camera",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChange("camera.set-active", "scene.camera.set_active", map[string]any{
				"project":     args[0],
				"camera_name": args[1],
				"output":      nilIfEmpty(output),
			}, 60*time.Second)
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "save to this path instead of editing in place")
	return cmd
}

func newCameraSetLensCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "set-lens PROJECT CAMERA_NAME LENS",
		Short: "Set a camera's focal length in millimeters",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			lens, err := floatArg("camera.set-lens", "LENS", args[2])
			if err != nil {
				return err
			}
			return runChange("camera.set-lens", "scene.camera.set_lens", map[string]any{
				"project":     args[0],
				"camera_name": args[1],
				"lens":        lens,
				"output":      nilIfEmpty(output),
			}, 60*time.Second)
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "save to this path instead of editing in place")
	return cmd
}

func newCameraRigProductShotCmd() *cobra.Command {
	var (
		cameraName string
		distance   float64
		height     float64
		lens       float64
		output     string
	)
	cmd := &cobra.Command{
		Use:   "rig-product-shot PROJECT TARGET_OBJECT",
		Short: "Place an active camera aimed at an object",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChange("camera.rig-product-shot", "scene.camera.rig_product_shot", map[string]any{
				"project":       args[0],
				"target_object": args[1],
				"camera_name":   cameraName,
				"distance":      distance,
				"height":        height,
				"lens":          lens,
				"output":        nilIfEmpty(output),
			}, 60*time.Second)
		},
	}
	cmd.Flags().StringVar(&cameraName, "camera-name", "ProductCam", "name for the rig camera")
	cmd.Flags().Float64Var(&distance, "distance", 4.0, "distance from the target")
	cmd.Flags().Float64Var(&height, "height", 1.2, "camera height above the target")
	cmd.Flags().Float64Var(&lens, "lens", 60.0, "focal length in millimeters")
	cmd.Flags().StringVar(&output, "output", "", "save to this path instead of editing in place")
	return cmd
}
