package tui

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/opsdash/pkg/pipeline"
)

func TestEnvelopeRoundtrip(t *testing.T) {
	env, err := NewEnvelope(DomainTypeStep, pipeline.StepEvent{
		RunID: "r1", Step: pipeline.StepMerge, Status: pipeline.StepSuccess,
	})
	require.NoError(t, err)

	b, err := env.MarshalJSONBytes()
	require.NoError(t, err)

	var back Envelope
	require.NoError(t, json.Unmarshal(b, &back))
	require.Equal(t, DomainTypeStep, back.Type)

	ev, err := DecodeEvent(back)
	require.NoError(t, err)
	step, ok := ev.(pipeline.StepEvent)
	require.True(t, ok)
	require.Equal(t, "r1", step.RunID)
	require.Equal(t, pipeline.StepSuccess, step.Status)
}

func TestEnvelopeRejectsEmptyType(t *testing.T) {
	_, err := NewEnvelope("", nil)
	require.Error(t, err)
}

func TestEventTypeCoversDecodeEvent(t *testing.T) {
	events := []pipeline.Event{
		pipeline.StepEvent{RunID: "r1"},
		pipeline.MergeStatusEvent{RunID: "r1"},
		pipeline.BuildStatusEvent{RunID: "r1"},
		pipeline.GitopsStatusEvent{RunID: "r1"},
		pipeline.JenkinsJobEvent{RunID: "r1"},
		pipeline.HealthUpdate{RunID: "r1", Service: "api"},
		pipeline.LogLine{RunID: "r1", Text: "hello"},
		pipeline.ForecastAlert{RunID: "r1", Service: "api"},
	}
	for _, ev := range events {
		typ, err := EventType(ev)
		require.NoError(t, err)

		env, err := NewEnvelope(typ, ev)
		require.NoError(t, err)
		decoded, err := DecodeEvent(env)
		require.NoError(t, err)
		require.Equal(t, "r1", decoded.EventRunID())
	}
}

func TestDecodeEventUnknownType(t *testing.T) {
	_, err := DecodeEvent(Envelope{Type: "nope"})
	require.Error(t, err)
}

func TestBusSinkPublishesCommandEnvelopes(t *testing.T) {
	bus, err := NewInMemoryBus()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := bus.Subscriber.Subscribe(ctx, TopicCommands)
	require.NoError(t, err)

	sink := BusSink{Bus: bus}
	sink.StartMerge("r1", []string{"api", "worker"})

	select {
	case msg := <-msgs:
		msg.Ack()
		var env Envelope
		require.NoError(t, json.Unmarshal(msg.Payload, &env))
		require.Equal(t, CmdTypeMergeStart, env.Type)

		var cmd RunCommand
		require.NoError(t, json.Unmarshal(env.Payload, &cmd))
		require.Equal(t, "r1", cmd.RunID)
		require.Equal(t, []string{"api", "worker"}, cmd.Services)
	case <-time.After(2 * time.Second):
		t.Fatal("no command published")
	}
}

func TestApplyActionDrivesController(t *testing.T) {
	store := pipeline.NewStore()
	ctl := pipeline.NewController(store, pipeline.NopSink{}, pipeline.Options{})

	require.NoError(t, applyAction(ctl, ActionRequest{
		Kind: ActionStart, Services: []string{"api"}, TriggeredBy: "ops",
	}))
	require.Equal(t, pipeline.PhaseRunning, ctl.Phase())

	require.NoError(t, applyAction(ctl, ActionRequest{Kind: ActionAbort}))
	require.Equal(t, pipeline.PhaseIdle, ctl.Phase())

	err := applyAction(ctl, ActionRequest{Kind: "bogus"})
	require.Error(t, err)
}

func TestIngestPublishesSnapshots(t *testing.T) {
	bus, err := NewInMemoryBus()
	require.NoError(t, err)

	store := pipeline.NewStore()
	ctl := pipeline.NewController(store, pipeline.NopSink{}, pipeline.Options{})
	snap := Snapshotter{Controller: ctl, Store: store, RetryMax: 3}

	RegisterEventIngest(bus, ctl, snap)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	uiMsgs, err := bus.Subscriber.Subscribe(ctx, TopicUIMessages)
	require.NoError(t, err)

	go func() { _ = bus.Run(ctx) }()
	select {
	case <-bus.Router.Running():
	case <-time.After(2 * time.Second):
		t.Fatal("router did not start")
	}

	runID, err := ctl.Start([]string{"api"}, false, "ops")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(TopicPipelineEvents, DomainTypeStep, pipeline.StepEvent{
		RunID: runID, Step: pipeline.StepMerge, Status: pipeline.StepSuccess, At: time.Now(),
	}))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-uiMsgs:
			msg.Ack()
			var env Envelope
			require.NoError(t, json.Unmarshal(msg.Payload, &env))
			if env.Type != UITypeRunSnapshot {
				continue
			}
			var got RunSnapshot
			require.NoError(t, json.Unmarshal(env.Payload, &got))
			require.NotNil(t, got.Run)
			if got.Run.Steps[pipeline.StepMerge] == pipeline.StepSuccess {
				require.True(t, got.Live)
				require.Equal(t, 3, got.RetryMax)
				return
			}
		case <-deadline:
			t.Fatal("no snapshot with merged step observed")
		}
	}
}

func TestActionHandlerPublishesNoticeOnRejection(t *testing.T) {
	bus, err := NewInMemoryBus()
	require.NoError(t, err)

	store := pipeline.NewStore()
	ctl := pipeline.NewController(store, pipeline.NopSink{}, pipeline.Options{})
	snap := Snapshotter{Controller: ctl, Store: store, RetryMax: 3}

	RegisterActionHandler(bus, ctl, snap)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	uiMsgs, err := bus.Subscriber.Subscribe(ctx, TopicUIMessages)
	require.NoError(t, err)

	go func() { _ = bus.Run(ctx) }()
	select {
	case <-bus.Router.Running():
	case <-time.After(2 * time.Second):
		t.Fatal("router did not start")
	}

	// Retry with no paused run is rejected and becomes a notice.
	require.NoError(t, PublishAction(bus.Publisher, ActionRequest{Kind: ActionRetry}))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-uiMsgs:
			msg.Ack()
			var env Envelope
			require.NoError(t, json.Unmarshal(msg.Payload, &env))
			if env.Type != UITypeEventAppend {
				continue
			}
			var notice NoticeMsg
			require.NoError(t, json.Unmarshal(env.Payload, &notice))
			require.NotEmpty(t, notice.Text)
			return
		case <-deadline:
			t.Fatal("no rejection notice observed")
		}
	}
}
