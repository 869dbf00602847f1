package cli

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newObjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "object",
		Short: "Object commands",
	}
	cmd.AddCommand(
		newObjectListCmd(),
		newObjectAddCmd(),
		newObjectTransformCmd(),
		newObjectDeleteCmd(),
		newObjectDuplicateCmd(),
		newObjectRenameCmd(),
	)
	return cmd
}

func newObjectListCmd() *cobra.Command {
	var objType string
	cmd := &cobra.Command{
		Use:   "list PROJECT",
		Short: "List the objects in a scene",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter any
			if objType != "" {
				filter = strings.ToUpper(objType)
			}
			return runQuery("object.list", "scene.object.list", map[string]any{
				"project": args[0],
				"type":    filter,
			}, 60*time.Second)
		},
	}
	cmd.Flags().StringVar(&objType, "type", "", "only list objects of this type (MESH, CAMERA, LIGHT, ...)")
	return cmd
}

func newObjectAddCmd() *cobra.Command {
	var (
		name         string
		locationJSON string
		rotationJSON string
		scaleJSON    string
		output       string
	)
	cmd := &cobra.Command{
		Use:   "add PROJECT PRIMITIVE",
		Short: "Add a primitive object to a scene",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			location, err := jsonArg("object.add", "--location-json", locationJSON)
			if err != nil {
				return err
			}
			rotation, err := jsonArg("object.add", "--rotation-json", rotationJSON)
			if err != nil {
				return err
			}
			scale, err := jsonArg("object.add", "--scale-json", scaleJSON)
			if err != nil {
				return err
			}
			return runChange("object.add", "scene.object.add", map[string]any{
				"project":   args[0],
				"primitive": args[1],
				"name":      nilIfEmpty(name),
				"location":  location,
				"rotation":  rotation,
				"scale":     scale,
				"output":    nilIfEmpty(output),
			}, 60*time.Second)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name for the new object")
	cmd.Flags().StringVar(&locationJSON, "location-json", "[0,0,0]", "location as a JSON array")
	cmd.Flags().StringVar(&rotationJSON, "rotation-json", "[0,0,0]", "rotation in radians as a JSON array")
	cmd.Flags().StringVar(&scaleJSON, "scale-json", "[1,1,1]", "scale as a JSON array")
	cmd.Flags().StringVar(&output, "output", "", "save to this path instead of editing in place")
	return cmd
}

func newObjectTransformCmd() *cobra.Command {
	var (
		locationJSON string
		rotationJSON string
		scaleJSON    string
		output       string
	)
	cmd := &cobra.Command{
		Use:   "transform PROJECT OBJECT_NAME",
		Short: "Set the transform channels of an object",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			location, err := optJSONArg("object.transform", "--location-json", locationJSON)
			if err != nil {
				return err
			}
			rotation, err := optJSONArg("object.transform", "--rotation-json", rotationJSON)
			if err != nil {
				return err
			}
			scale, err := optJSONArg("object.transform", "--scale-json", scaleJSON)
			if err != nil {
				return err
			}
			return runChange("object.transform", "scene.object.transform", map[string]any{
				"project":     args[0],
				"object_name": args[1],
				"location":    location,
				"rotation":    rotation,
				"scale":       scale,
				"output":      nilIfEmpty(output),
			}, 60*time.Second)
		},
	}
	cmd.Flags().StringVar(&locationJSON, "location-json", "", "new location as a JSON array")
	cmd.Flags().StringVar(&rotationJSON, "rotation-json", "", "new rotation in radians as a JSON array")
	cmd.Flags().StringVar(&scaleJSON, "scale-json", "", "new scale as a JSON array")
	cmd.Flags().StringVar(&output, "output", "", "save to this path instead of editing in place")
	return cmd
}

func newObjectDeleteCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "delete PROJECT OBJECT_NAME",
		Short: "Remove an object from a scene",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChange("object.delete", "scene.object.delete", map[string]any{
				"project":     args[0],
				"object_name": args[1],
				"output":      nilIfEmpty(output),
			}, 60*time.Second)
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "save to this path instead of editing in place")
	return cmd
}

func newObjectDuplicateCmd() *cobra.Command {
	var (
		newName string
		output  string
	)
	cmd := &cobra.Command{
		Use:   "duplicate PROJECT OBJECT_NAME",
		Short: "Duplicate an object with its data",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChange("object.duplicate", "scene.object.duplicate", map[string]any{
				"project":     args[0],
				"object_name": args[1],
				"new_name":    nilIfEmpty(newName),
				"output":      nilIfEmpty(output),
			}, 60*time.Second)
		},
	}
	cmd.Flags().StringVar(&newName, "new-name", "", "name for the duplicate")
	cmd.Flags().StringVar(&output, "output", "", "save to this path instead of editing in place")
	return cmd
}

func newObjectRenameCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "rename PROJECT OBJECT_NAME NEW_NAME",
		Short: "Rename an object",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChange("object.rename", "scene.object.rename", map[string]any{
				"project":     args[0],
				"object_name": args[1],
				"new_name":    args[2],
				"output":      nilIfEmpty(output),
			}, 60*time.Second)
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "save to this path instead of editing in place")
	return cmd
}
