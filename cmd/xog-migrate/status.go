package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/Sternrassler/xog-migrate/pkg/journal"
	"github.com/Sternrassler/xog-migrate/pkg/logging"
	"github.com/spf13/cobra"
)

func newStatusCmd(a *app) *cobra.Command {
	var showPages bool

	cmd := &cobra.Command{
		Use:   "status RUN_ID",
		Short: "Show the journal of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.RedisURL == "" {
				return errors.New("status requires XOGM_REDIS_URL")
			}
			ctx := cmd.Context()
			runID := args[0]

			rdb, err := newRedis(a.cfg.RedisURL)
			if err != nil {
				return err
			}
			defer rdb.Close()

			j := journal.New(rdb, runID, a.cfg.Journal(), logging.NewLogger(logging.ComponentJournal))
			state, err := j.State(ctx)
			if errors.Is(err, journal.ErrNotFound) {
				return fmt.Errorf("run %s: %w", runID, err)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run:      %s\n", state.RunID)
			fmt.Fprintf(out, "status:   %s\n", state.Status)
			fmt.Fprintf(out, "read:     %d\n", state.PagesRead)
			fmt.Fprintf(out, "written:  %d\n", state.PagesWritten)
			fmt.Fprintf(out, "failed:   %d\n", state.PagesFailed)
			fmt.Fprintf(out, "pending:  %d\n", state.Pending())
			if !state.StartedAt.IsZero() {
				fmt.Fprintf(out, "started:  %s\n", state.StartedAt.Format("2006-01-02 15:04:05"))
			}
			if state.Done() {
				fmt.Fprintf(out, "duration: %s\n", state.FinishedAt.Sub(state.StartedAt).Round(time.Millisecond))
			}
			if state.Error != "" {
				fmt.Fprintf(out, "error:    %s\n", state.Error)
			}

			if !showPages {
				return nil
			}

			entries, err := j.Entries(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "\nBUNDLE\tOBJECT TYPE\tPAGE\tSKIP\tSTAGE\tERROR")
			for _, e := range entries {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\t%s\n", e.Bundle, e.ObjectType, e.Index, e.Skip, e.Stage, e.Error)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&showPages, "pages", false, "list every journaled page")

	return cmd
}
