package cmds

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/opsdash/pkg/history"
	"github.com/go-go-golems/opsdash/pkg/view"
)

func newPropagationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "propagation",
		Short: "Per-service push-to-healthy latency averaged over run history",
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

			latencies, err := hist.PropagationByService()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "%-30s %8s %10s\n", "SERVICE", "SAMPLES", "AVG")
			for _, l := range latencies {
				avg := time.Duration(l.AvgSecs * float64(time.Second))
				_, _ = fmt.Fprintf(out, "%-30s %8d %10s\n",
					l.Service, l.Samples, view.FormatDuration(avg))
			}
			return nil
		},
	}
	return cmd
}
