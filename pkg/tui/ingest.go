package tui

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/opsdash/pkg/logline"
	"github.com/go-go-golems/opsdash/pkg/pipeline"
)

// RegisterEventIngest consumes collaborator events and feeds them to
// the controller, then pushes refreshed UI state. Rejected events
// (stale run, illegal transition) are logged and dropped; the handler
// never returns an error for them since that would only redeliver.
func RegisterEventIngest(bus *Bus, ctl *pipeline.Controller, snap Snapshotter) {
	bus.AddConsumer("opsdash-event-ingest", TopicPipelineEvents, func(env Envelope) error {
		switch env.Type {
		case DomainTypeLogRaw:
			var raw RawLog
			if err := env.Decode(&raw); err != nil {
				return err
			}
			ingestEvent(ctl, logline.Parse(raw.RunID, raw.Line, time.Now()))

		case DomainTypeProposals:
			var batch ProposalBatch
			if err := env.Decode(&batch); err != nil {
				return err
			}
			if !ctl.IsLive(batch.RunID) {
				log.Debug().Str("run_id", batch.RunID).Msg("proposals for non-live run dropped")
				break
			}
			ctl.RegisterProposals(batch.Actions)

		case DomainTypeActionResult:
			var res ActionResult
			if err := env.Decode(&res); err != nil {
				return err
			}
			if err := ctl.ResolveAction(res.ActionID, res.OK, res.Result); err != nil {
				log.Debug().Err(err).Str("action_id", res.ActionID).Msg("action result dropped")
			}

		default:
			ev, err := DecodeEvent(env)
			if err != nil {
				log.Warn().Err(err).Str("type", env.Type).Msg("undecodable event dropped")
				break
			}
			ingestEvent(ctl, ev)
		}

		return snap.PublishState(bus)
	})
}

func ingestEvent(ctl *pipeline.Controller, ev pipeline.Event) {
	if err := ctl.HandleEvent(ev); err != nil {
		log.Debug().Err(err).Str("run_id", ev.EventRunID()).Msg("event rejected")
	}
}
