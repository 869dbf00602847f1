package cli

import (
	"time"

	"github.com/spf13/cobra"
)

func newLightCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "light",
		Short: "Light commands",
	}
	cmd.AddCommand(
		newLightAddCmd(),
		newLightListCmd(),
		newLightSetEnergyCmd(),
		newLightSetColorCmd(),
		newLightRigThreePointCmd(),
	)
	return cmd
}

func newLightAddCmd() *cobra.Command {
	var (
		name         string
		energy       float64
		color        string
		locationJSON string
		output       string
	)
	cmd := &cobra.Command{
		Use:   "add PROJECT LIGHT_TYPE",
		Short: "Add a light to a scene",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			location, err := jsonArg("light.add", "--location-json", locationJSON)
			if err != nil {
				return err
			}
			return runChange("light.add", "scene.light.add", map[string]any{
				"project":    args[0],
				"light_type": args[1],
				"name":       nilIfEmpty(name),
				"energy":     energy,
				"color":      color,
				"location":   location,
				"output":     nilIfEmpty(output),
			}, 60*time.Second)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name for the new light")
	cmd.Flags().Float64Var(&energy, "energy", 1000.0, "emission strength in watts")
	cmd.Flags().StringVar(&color, "color", "#FFFFFF", "light color as #RRGGBB")
	cmd.Flags().StringVar(&locationJSON, "location-json", "[0,0,3]", "location as a JSON array")
	cmd.Flags().StringVar(&output, "output", "", "save to this path instead of editing in place")
	return cmd
}

func newLightListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list PROJECT",
		Short: "List the lights in a scene",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery("light.list", "scene.light.list", map[string]any{"project": args[0]}, 60*time.Second)
		},
	}
}

func newLightSetEnergyCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "set-energy PROJECT LIGHT_NAME ENERGY",
		Short: "Set the emission strength of a light",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			energy, err := floatArg("light.set-energy", "ENERGY", args[2])
			if err != nil {
				return err
			}
			return runChange("light.set-energy", "scene.light.set_energy", map[string]any{
				"project":    args[0],
				"light_name": args[1],
				"energy":     energy,
				"output":     nilIfEmpty(output),
			}, 60*time.Second)
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "save to this path instead of editing in place")
	return cmd
}

func newLightSetColorCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "set-color PROJECT LIGHT_NAME COLOR",
		Short: "Set the color of a light",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChange("light.set-color", "scene.light.set_color", map[string]any{
				"project":    args[0],
				"light_name": args[1],
				"color":      args[2],
				"output":     nilIfEmpty(output),
			}, 60*time.Second)
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "save to this path instead of editing in place")
	return cmd
}

func newLightRigThreePointCmd() *cobra.Command {
	var (
		targetObject string
		output       string
	)
	cmd := &cobra.Command{
		Use:   "rig-three-point PROJECT",
		Short: "Add a key, fill, and rim light around a target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChange("light.rig-three-point", "scene.light.rig_three_point", map[string]any{
				"project":       args[0],
				"target_object": nilIfEmpty(targetObject),
				"output":        nilIfEmpty(output),
			}, 60*time.Second)
		},
	}
	cmd.Flags().StringVar(&targetObject, "target-object", "", "center the rig on this object")
	cmd.Flags().StringVar(&output, "output", "", "save to this path instead of editing in place")
	return cmd
}
