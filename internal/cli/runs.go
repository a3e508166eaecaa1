package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/meltshop/internal/config"
	"github.com/roach88/meltshop/internal/store"
)

// RunView is one plant run as printed by the runs command.
type RunView struct {
	ID         string     `json:"id"`
	Plant      string     `json:"plant"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	var database string

	cmd := &cobra.Command{
		Use:           "runs",
		Short:         "List recorded plant runs",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listRuns(rootOpts, database, cmd)
		},
	}

	cmd.Flags().StringVar(&database, "db", "", "path to SQLite metrics database (default $MELTSHOP_DB)")
	return cmd
}

func listRuns(opts *RootOptions, database string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	if database == "" {
		env, err := config.LoadEnv()
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid environment", err)
		}
		database = env.Database
	}

	st, err := store.Open(database)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	runs, err := st.ReadRuns(cmd.Context())
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read runs", err)
	}

	views := make([]RunView, 0, len(runs))
	for _, r := range runs {
		v := RunView{ID: r.ID, Plant: r.Plant, StartedAt: r.StartedAt}
		if !r.FinishedAt.IsZero() {
			at := r.FinishedAt
			v.FinishedAt = &at
		}
		views = append(views, v)
	}

	if opts.Format == "json" {
		return formatter.Success(views)
	}
	if len(views) == 0 {
		fmt.Fprintln(formatter.Writer, "No runs recorded.")
		return nil
	}
	for _, v := range views {
		end := "running"
		if v.FinishedAt != nil {
			end = v.FinishedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(formatter.Writer, "%s  %-16s %s  %s\n", v.ID, v.Plant, v.StartedAt.Format(time.RFC3339), end)
	}
	return nil
}
