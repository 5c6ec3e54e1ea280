package cmds

import (
	"context"
	stderrors "errors"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/opsdash/pkg/config"
	"github.com/go-go-golems/opsdash/pkg/history"
	"github.com/go-go-golems/opsdash/pkg/notify"
	"github.com/go-go-golems/opsdash/pkg/pipeline"
	"github.com/go-go-golems/opsdash/pkg/sim"
	"github.com/go-go-golems/opsdash/pkg/tui"
	"github.com/go-go-golems/opsdash/pkg/tui/models"
)

func newTuiCmd() *cobra.Command {
	var altScreen bool
	var demo bool
	var demoDegraded bool
	var demoDelay time.Duration
	var operator string

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Interactive deployment pipeline dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			cfg := opts.Cfg

			if operator == "" {
				operator = os.Getenv("USER")
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			bus, err := tui.NewInMemoryBus()
			if err != nil {
				return err
			}

			hist, err := history.New(historyPath(opts))
			if err != nil {
				return errors.Wrap(err, "open history db")
			}
			defer func() { _ = hist.Close() }()

			store := pipeline.NewStore()
			ctl := pipeline.NewController(store, tui.BusSink{Bus: bus}, pipeline.Options{
				RetryMax:     cfg.RetryMax,
				SettleGrace:  cfg.SettleGrace.Std(),
				SkipJenkins:  cfg.SkipJenkins,
				Market:       cfg.Market,
				SlackChannel: cfg.Slack.Channel,
				OnFinalized: func(r *pipeline.Run) {
					if err := hist.SaveRun(r); err != nil {
						log.Error().Err(err).Str("run_id", r.ID).Msg("persist run failed")
					}
				},
			})

			snap := tui.Snapshotter{Controller: ctl, Store: store, RetryMax: cfg.RetryMax}
			tui.RegisterEventIngest(bus, ctl, snap)
			tui.RegisterActionHandler(bus, ctl, snap)

			notifier := notify.NewSlackNotifier(cfg.Slack.WebhookURL, cfg.Slack.Channel,
				config.ParseEmailMap(cfg.EmailsRaw), notify.Oncall{
					Shift:      cfg.Roster.Shift,
					Name:       cfg.Roster.Oncall,
					Escalation: cfg.Roster.Escalation,
				})
			tui.RegisterSlackConsumer(bus, notifier.Send)

			if demo {
				sim.Register(ctx, bus, sim.Options{
					StepDelay: demoDelay,
					Degraded:  demoDegraded,
				})
			}

			model := models.NewRootModel(bus.Publisher, cfg.Services, cfg.SkipJenkins, operator)
			programOptions := []tea.ProgramOption{
				tea.WithInput(cmd.InOrStdin()),
				tea.WithOutput(cmd.OutOrStdout()),
			}
			if altScreen {
				programOptions = append(programOptions, tea.WithAltScreen())
			}
			program := tea.NewProgram(model, programOptions...)
			tui.RegisterUIForwarder(bus, program)

			eg, egCtx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				err := bus.Run(egCtx)
				if stderrors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
			eg.Go(func() error {
				_, err := program.Run()
				cancel()
				if stderrors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})

			if err := eg.Wait(); err != nil {
				return errors.Wrap(err, "tui")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&altScreen, "alt-screen", true, "Use the terminal alternate screen buffer")
	cmd.Flags().BoolVar(&demo, "demo", false, "Run against simulated collaborators instead of real infrastructure")
	cmd.Flags().BoolVar(&demoDegraded, "demo-degraded", false, "Make the simulated deploy step misbehave")
	cmd.Flags().DurationVar(&demoDelay, "demo-delay", 350*time.Millisecond, "Base delay between simulated events")
	cmd.Flags().StringVar(&operator, "operator", "", "Operator name recorded on runs (defaults to $USER)")
	return cmd
}
