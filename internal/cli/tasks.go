package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"taskgraph/internal/app"
	"taskgraph/internal/task"
	"taskgraph/internal/taskgraph"
	"taskgraph/pkg/graph"
)

func parseID(raw string) (graph.ID, error) {
	id, err := strconv.Atoi(raw)
	if err != nil || id < 0 {
		return graph.NoID, fmt.Errorf("invalid task id %q", raw)
	}
	return graph.ID(id), nil
}

// readRecord loads a task record from path ("-" for stdin) and validates it.
func readRecord(cmd *cobra.Command, path string) (task.Task, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(cmd.InOrStdin())
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return task.Task{}, err
	}
	return task.Parse(raw)
}

func (o *rootOpts) printView(cmd *cobra.Command, a *app.App, v taskgraph.View) error {
	if o.json {
		return writeJSON(cmd.OutOrStdout(), toJSON(v))
	}
	renderView(cmd.OutOrStdout(), v, o.clock(), a.Config().Scheduler.Location())
	return nil
}

func addCmd(o *rootOpts) *cobra.Command {
	var f taskFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a task",
		Example: `  taskgraph add -n "file taxes" --deadline 2026-04-15 --auto-fail
  taskgraph add -n "water plants" --deadline +2d --repeat 1w --progress done`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withApp(cmd, func(ctx context.Context, a *app.App) error {
				t := task.New("")
				if f.file != "" {
					rec, err := readRecord(cmd, f.file)
					if err != nil {
						return err
					}
					t = rec
				}
				if err := f.apply(cmd, &t, o.clock(), a.Config().Scheduler.Location()); err != nil {
					return err
				}
				deps, err := f.dependencies(cmd, nil)
				if err != nil {
					return err
				}
				id, err := a.Upsert(ctx, graph.NoID, t, deps)
				if err != nil {
					return err
				}
				v, err := a.Get(id)
				if err != nil {
					return err
				}
				return o.printView(cmd, a, v)
			})
		},
	}
	f.register(cmd)
	return cmd
}

func editCmd(o *rootOpts) *cobra.Command {
	var f taskFlags
	cmd := &cobra.Command{
		Use:     "edit ID",
		Short:   "Change a task; fields not given keep their value",
		Example: `  taskgraph edit 3 --progress started --deps 1,2`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return o.withApp(cmd, func(ctx context.Context, a *app.App) error {
				v, err := a.Get(id)
				if err != nil {
					return err
				}
				t := v.Task
				if f.file != "" {
					if t, err = readRecord(cmd, f.file); err != nil {
						return err
					}
				}
				if err := f.apply(cmd, &t, o.clock(), a.Config().Scheduler.Location()); err != nil {
					return err
				}
				deps, err := f.dependencies(cmd, v.Dependencies)
				if err != nil {
					return err
				}
				if _, err := a.Upsert(ctx, id, t, deps); err != nil {
					return err
				}
				if v, err = a.Get(id); err != nil {
					return err
				}
				return o.printView(cmd, a, v)
			})
		},
	}
	f.register(cmd)
	return cmd
}

func showCmd(o *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show a task with its dependencies and the tasks it could depend on",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return o.withApp(cmd, func(_ context.Context, a *app.App) error {
				v, err := a.Get(id)
				if err != nil {
					return err
				}
				return o.printView(cmd, a, v)
			})
		},
	}
}

func listCmd(o *rootOpts) *cobra.Command {
	var state string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withApp(cmd, func(_ context.Context, a *app.App) error {
				var views []taskgraph.View
				if state == "" {
					views = a.List()
				} else {
					p, err := task.ParseComputedProgress(state)
					if err != nil {
						return err
					}
					views = a.ByProgress(p)
				}
				return o.printList(cmd, views)
			})
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "only tasks in this computed state (Blocked, NotYet, Todo, Started, Done, Failed)")
	return cmd
}

func (o *rootOpts) printList(cmd *cobra.Command, views []taskgraph.View) error {
	if o.json {
		return writeJSON(cmd.OutOrStdout(), toJSONList(views))
	}
	renderList(cmd.OutOrStdout(), views, o.clock())
	return nil
}

func rmCmd(o *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:     "rm ID...",
		Aliases: []string{"delete"},
		Short:   "Delete tasks",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]graph.ID, len(args))
			for i, raw := range args {
				id, err := parseID(raw)
				if err != nil {
					return err
				}
				ids[i] = id
			}
			return o.withApp(cmd, func(ctx context.Context, a *app.App) error {
				for _, id := range ids {
					if err := a.Delete(ctx, id); err != nil {
						return err
					}
					if !o.json {
						fmt.Fprintf(cmd.OutOrStdout(), "deleted #%d\n", id)
					}
				}
				if o.json {
					return writeJSON(cmd.OutOrStdout(), map[string]any{"deleted": ids})
				}
				return nil
			})
		},
	}
}

func agendaCmd(o *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "agenda",
		Short: "List actionable tasks in the order to do them",
		Long: `List Todo and Started tasks so that no task comes before one it depends on.
Among tasks free to go next, those due within agenda.close_to_deadline come
first, then higher priority, then the earlier deadline.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withApp(cmd, func(ctx context.Context, a *app.App) error {
				// pick up birthlines and deadlines passed since the last save
				if err := a.Recompute(ctx, "agenda"); err != nil {
					return err
				}
				return o.printList(cmd, a.Agenda())
			})
		},
	}
}
