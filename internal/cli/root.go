// Package cli is the taskgraph command line.
package cli

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"

	"taskgraph/internal/app"
)

type rootOpts struct {
	config  string
	json    bool
	verbose bool
	now     func() time.Time
}

// openApp opens the task graph for a one-shot command. Logs below warn are
// hidden unless --verbose.
func (o *rootOpts) openApp(cmd *cobra.Command, extra ...app.Option) (*app.App, error) {
	opts := []app.Option{app.WithLogOutput(cmd.ErrOrStderr())}
	if !o.verbose {
		opts = append(opts, app.WithLogLevel("warn"))
	}
	if o.now != nil {
		opts = append(opts, app.WithClock(o.now))
	}
	return app.New(cmd.Context(), o.config, append(opts, extra...)...)
}

func (o *rootOpts) clock() time.Time {
	if o.now != nil {
		return o.now()
	}
	return time.Now()
}

// withApp runs fn against an opened app and closes it afterwards.
func (o *rootOpts) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	a, err := o.openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&rootOpts{})
}

func newRootCmd(o *rootOpts) *cobra.Command {
	root := &cobra.Command{
		Use:   "taskgraph",
		Short: "Dependency-aware task scheduler",
		Long: `taskgraph keeps tasks in a dependency graph. Deadlines and priorities flow
from each task to the tasks it depends on, progress is derived from the
dependencies, and recurring tasks spawn their next instance once done.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&o.config, "config", "c", "taskgraph.yaml", "config file (.yaml, .json or .toml)")
	root.PersistentFlags().BoolVar(&o.json, "json", false, "machine-readable JSON output")
	root.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false, "log at the configured level")

	root.AddCommand(
		addCmd(o),
		editCmd(o),
		showCmd(o),
		listCmd(o),
		rmCmd(o),
		agendaCmd(o),
		importCmd(o),
		exportCmd(o),
		historyCmd(o),
		serveCmd(o),
	)
	return root
}

// Execute runs the command line with args, returning the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		renderError(stderr, err)
		return 1
	}
	return 0
}
