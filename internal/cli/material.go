package cli

import (
	"time"

	"github.com/spf13/cobra"
)

func newMaterialCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "material",
		Short: "Material commands",
	}
	cmd.AddCommand(
		newMaterialListCmd(),
		newMaterialCreateCmd(),
		newMaterialAssignCmd(),
		newMaterialAssignManyCmd(),
		newMaterialSetBaseColorCmd(),
		newMaterialSetMetallicCmd(),
		newMaterialSetRoughnessCmd(),
		newMaterialSetNodeInputCmd(),
	)
	return cmd
}

func newMaterialListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list PROJECT",
		Short: "List the materials in a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery("material.list", "scene.material.list", map[string]any{"project": args[0]}, 60*time.Second)
		},
	}
}

func newMaterialCreateCmd() *cobra.Command {
	var (
		baseColor string
		metallic  float64
		roughness float64
		output    string
	)
	cmd := &cobra.Command{
		Use:   "create PROJECT NAME",
		Short: "Create a principled material",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChange("material.create", "scene.material.create", map[string]any{
				"project":    args[0],
				"name":       args[1],
				"base_color": baseColor,
				"metallic":   metallic,
				"roughness":  roughness,
				"output":     nilIfEmpty(output),
			}, 60*time.Second)
		},
	}
	cmd.Flags().StringVar(&baseColor, "base-color", "#FFFFFF", "base color as #RRGGBB")
	cmd.Flags().Float64Var(&metallic, "metallic", 0.0, "metallic factor in [0,1]")
	cmd.Flags().Float64Var(&roughness, "roughness", 0.5, "roughness factor in [0,1]")
	cmd.Flags().StringVar(&output, "output", "", "save to this path instead of editing in place")
	return cmd
}

func newMaterialAssignCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "assign PROJECT OBJECT_NAME MATERIAL_NAME",
		Short: "Assign a material to an object",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChange("material.assign", "scene.material.assign", map[string]any{
				"project":       args[0],
				"object_name":   args[1],
				"material_name": args[2],
				"output":        nilIfEmpty(output),
			}, 60*time.Second)
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "save to this path instead of editing in place")
	return cmd
}

func newMaterialAssignManyCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "assign-many PROJECT MATERIAL_NAME OBJECT_NAME...",
		Short: "Assign one material to several objects",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			names := make([]any, 0, len(args)-2)
			for _, n := range args[2:] {
				names = append(names, n)
			}
			return runChange("material.assign-many", "scene.material.assign_many", map[string]any{
				"project":       args[0],
				"material_name": args[1],
				"object_names":  names,
				"output":        nilIfEmpty(output),
			}, 60*time.Second)
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "save to this path instead of editing in place")
	return cmd
}

func newMaterialSetBaseColorCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "set-base-color PROJECT MATERIAL_NAME COLOR",
		Short: "Set the base color of a material",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChange("material.set-base-color", "scene.material.set_base_color", map[string]any{
				"project":       args[0],
				"material_name": args[1],
				"color":         args[2],
				"output":        nilIfEmpty(output),
			}, 60*time.Second)
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "save to this path instead of editing in place")
	return cmd
}

func newMaterialSetMetallicCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "set-metallic PROJECT MATERIAL_NAME METALLIC",
		Short: "Set the metallic factor of a material",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			metallic, err := floatArg("material.set-metallic", "METALLIC", args[2])
			if err != nil {
				return err
			}
			return runChange("material.set-metallic", "scene.material.set_metallic", map[string]any{
				"project":       args[0],
				"material_name": args[1],
				"metallic":      metallic,
				"output":        nilIfEmpty(output),
			}, 60*time.Second)
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "save to this path instead of editing in place")
	return cmd
}

func newMaterialSetRoughnessCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "set-roughness PROJECT MATERIAL_NAME ROUGHNESS",
		Short: "Set the roughness factor of a material",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			roughness, err := floatArg("material.set-roughness", "ROUGHNESS", args[2])
			if err != nil {
				return err
			}
			return runChange("material.set-roughness", "scene.material.set_roughness", map[string]any{
				"project":       args[0],
				"material_name": args[1],
				"roughness":     roughness,
				"output":        nilIfEmpty(output),
			}, 60*time.Second)
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "save to this path instead of editing in place")
	return cmd
}

func newMaterialSetNodeInputCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "set-node-input PROJECT MATERIAL_NAME NODE_NAME INPUT_NAME VALUE_JSON",
		Short: "Set a shader node input to a JSON value",
		Args:  cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := jsonArg("material.set-node-input", "VALUE_JSON", args[4])
			if err != nil {
				return err
			}
			return runChange("material.set-node-input", "scene.material.set_node_input", map[string]any{
				"project":       args[0],
				"material_name": args[1],
				"node_name":     args[2],
				"input_name":    args[3],
				"value":         value,
				"output":        nilIfEmpty(output),
			}, 60*time.Second)
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "save to this path instead of editing in place")
	return cmd
}
