package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/harnessgg/blenderbridge/pkg/protocol"
)

func newFileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file",
		Short: "File and project commands",
	}
	cmd.AddCommand(
		newFileNewCmd(),
		newFileCopyCmd(),
		newFileInspectCmd(),
		newFileValidateCmd(),
		newFileDiffCmd(),
		newFileSnapshotCmd(),
		newFileSnapshotsCmd(),
		newFileUndoCmd(),
		newFileRedoCmd(),
	)
	return cmd
}

func newFileNewCmd() *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "new OUTPUT",
		Short: "Create a fresh default scene",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChange("file.new", "project.new", map[string]any{
				"output":    args[0],
				"overwrite": overwrite,
			}, 30*time.Second)
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace the target if it exists")
	return cmd
}

func newFileCopyCmd() *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "copy SOURCE TARGET",
		Short: "Copy a project file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChange("file.copy", "project.copy", map[string]any{
				"source":    args[0],
				"target":    args[1],
				"overwrite": overwrite,
			}, 30*time.Second)
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace the target if it exists")
	return cmd
}

func newFileInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect PROJECT",
		Short: "Summarize the contents of a project file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery("file.inspect", "project.inspect", map[string]any{"project": args[0]}, 60*time.Second)
		},
	}
}

func newFileValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate PROJECT",
		Short: "Check a project file for structural problems",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := callBridge("file.validate", "project.validate", map[string]any{"project": args[0]}, 60*time.Second)
			if err != nil {
				return err
			}
			printOK("file.validate", data)
			if valid, _ := data["isValid"].(bool); !valid {
				return exitError{code: protocol.ExitCode(protocol.CodeValidationFailed)}
			}
			return nil
		},
	}
}

func newFileDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff SOURCE TARGET",
		Short: "Compare the datablocks of two project files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery("file.diff", "project.diff", map[string]any{
				"source": args[0],
				"target": args[1],
			}, 120*time.Second)
		},
	}
}

func newFileSnapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot PROJECT DESCRIPTION",
		Short: "Record an undo point for a project file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChange("file.snapshot", "project.snapshot", map[string]any{
				"project":     args[0],
				"description": args[1],
			}, 30*time.Second)
		},
	}
}

func newFileSnapshotsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshots PROJECT",
		Short: "List the recorded undo points for a project file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery("file.snapshots", "project.snapshots", map[string]any{"project": args[0]}, 30*time.Second)
		},
	}
}

func newFileUndoCmd() *cobra.Command {
	var snapshotID string
	cmd := &cobra.Command{
		Use:   "undo PROJECT",
		Short: "Restore the previous snapshot of a project file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChange("file.undo", "project.undo", map[string]any{
				"project":     args[0],
				"snapshot_id": nilIfEmpty(snapshotID),
			}, 30*time.Second)
		},
	}
	cmd.Flags().StringVar(&snapshotID, "snapshot-id", "", "restore this snapshot instead of the previous one")
	return cmd
}

func newFileRedoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "redo PROJECT",
		Short: "Reapply the snapshot undone last",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChange("file.redo", "project.redo", map[string]any{"project": args[0]}, 30*time.Second)
		},
	}
}
