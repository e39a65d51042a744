package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"taskgraph/internal/app"
)

func importCmd(o *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Replace all tasks with an exported graph (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}
			return o.withApp(cmd, func(ctx context.Context, a *app.App) error {
				n, err := a.Import(ctx, data)
				if err != nil {
					return err
				}
				if o.json {
					return writeJSON(cmd.OutOrStdout(), map[string]int{"tasks": n})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d tasks\n", n)
				return nil
			})
		},
	}
}

func exportCmd(o *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "export [FILE]",
		Short: "Write the task graph as JSON to FILE or stdout",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(cmd, func(_ context.Context, a *app.App) error {
				data, err := a.Export()
				if err != nil {
					return err
				}
				if len(args) == 0 || args[0] == "-" {
					_, err = cmd.OutOrStdout().Write(data)
					return err
				}
				return os.WriteFile(args[0], data, 0o644)
			})
		},
	}
}

func historyCmd(o *rootOpts) *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent changes, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withApp(cmd, func(ctx context.Context, a *app.App) error {
				entries, err := a.History(ctx, n)
				if err != nil {
					return err
				}
				if o.json {
					return writeJSON(cmd.OutOrStdout(), entries)
				}
				renderHistory(cmd.OutOrStdout(), entries, o.clock())
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&n, "limit", "n", 20, "number of entries (0 for all)")
	return cmd
}
