package tui

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	gochannel "github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Bus is the in-process message fabric connecting the event ingest,
// the controller and the TUI. Collaborator adapters publish domain
// envelopes on it; the dashboard publishes commands back. All traffic
// is Envelope-framed JSON.
type Bus struct {
	Router     *message.Router
	Publisher  message.Publisher
	Subscriber message.Subscriber

	runOnce sync.Once
}

func NewInMemoryBus() (*Bus, error) {
	logger := watermill.NopLogger{}
	pubsub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 1024}, logger)

	r, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, errors.Wrap(err, "new watermill router")
	}
	return &Bus{
		Router:     r,
		Publisher:  pubsub,
		Subscriber: pubsub,
	}, nil
}

// AddConsumer registers a handler receiving decoded envelopes from
// topic. Messages are always acked: a malformed frame is logged and
// dropped rather than redelivered, since redelivery would only fail
// the same way and wedge the topic.
func (b *Bus) AddConsumer(name, topic string, fn func(Envelope) error) {
	b.Router.AddConsumerHandler(name, topic, b.Subscriber, func(msg *message.Message) error {
		defer msg.Ack()

		env, err := decodeEnvelope(msg.Payload)
		if err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("malformed envelope dropped")
			return nil
		}
		return fn(env)
	})
}

// Publish wraps payload in an Envelope and publishes it on topic.
func (b *Bus) Publish(topic, typ string, payload any) error {
	env, err := NewEnvelope(typ, payload)
	if err != nil {
		return err
	}
	bts, err := env.MarshalJSONBytes()
	if err != nil {
		return err
	}
	if err := b.Publisher.Publish(topic, message.NewMessage(watermill.NewUUID(), bts)); err != nil {
		return errors.Wrapf(err, "publish %s to %s", typ, topic)
	}
	return nil
}

func (b *Bus) Run(ctx context.Context) error {
	var runErr error
	b.runOnce.Do(func() {
		go func() {
			<-ctx.Done()
			_ = b.Router.Close()
		}()
		runErr = b.Router.Run(ctx)
	})
	return runErr
}
