package cmds

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/opsdash/pkg/history"
	"github.com/go-go-golems/opsdash/pkg/pipeline"
	"github.com/go-go-golems/opsdash/pkg/view"
)

func newRunsCmd() *cobra.Command {
	var status string
	var since time.Duration
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List past pipeline runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			hist, err := history.New(historyPath(opts))
			if err != nil {
				return errors.Wrap(err, "open history db")
			}
			defer func() { _ = hist.Close() }()

			listOpts := history.ListOptions{Status: pipeline.RunStatus(status), Limit: limit}
			if since > 0 {
				listOpts.Since = time.Now().Add(-since)
			}
			runs, err := hist.ListRuns(listOpts)
			if err != nil {
				return err
			}

			if asJSON {
				b, err := json.MarshalIndent(runs, "", "  ")
				if err != nil {
					return errors.Wrap(err, "marshal runs")
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(b))
				return nil
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "%-6s %-8s %-10s %-10s %-14s %s\n",
				"RUN", "ID", "STATUS", "DURATION", "BY", "STARTED")
			for _, r := range runs {
				_, _ = fmt.Fprintf(out, "#%-5d %-8s %-10s %-10s %-14s %s\n",
					r.Num, r.ID, r.Status, view.FormatDuration(r.Duration),
					r.TriggeredBy, r.StartedAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Only runs with this outcome (success|degraded|failed)")
	cmd.Flags().DurationVar(&since, "since", 0, "Only runs started within this window (e.g. 72h)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of runs to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}
