package tui

import (
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/opsdash/pkg/pipeline"
)

// RegisterSlackConsumer delivers notify commands to the given sender.
// The sender is typically notify.SlackNotifier.Send; delivery failures
// are logged, never redelivered.
func RegisterSlackConsumer(bus *Bus, send func(pipeline.SlackPayload) error) {
	bus.AddConsumer("opsdash-slack-notify", TopicCommands, func(env Envelope) error {
		if env.Type != CmdTypeSlackNotify {
			return nil
		}

		var cmd SlackCommand
		if err := env.Decode(&cmd); err != nil {
			log.Warn().Err(err).Msg("bad slack command payload")
			return nil
		}

		go func() {
			if err := send(cmd.Payload); err != nil {
				log.Warn().Err(err).Str("kind", cmd.Payload.Kind).Msg("slack delivery failed")
			}
		}()
		return nil
	})
}
