package tui

import (
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/opsdash/pkg/pipeline"
)

// ActionKind is an operator command entered through the TUI.
type ActionKind string

const (
	ActionStart         ActionKind = "start"
	ActionRetry         ActionKind = "retry"
	ActionForceProceed  ActionKind = "force_proceed"
	ActionRollback      ActionKind = "rollback"
	ActionAbort         ActionKind = "abort"
	ActionSelectRun     ActionKind = "select_run"
	ActionHardSync      ActionKind = "hard_sync"
	ActionApproveAction ActionKind = "action_approve"
	ActionSkipAction    ActionKind = "action_skip"
)

// ActionRequest is one operator command on its way to the controller.
type ActionRequest struct {
	Kind        ActionKind `json:"kind"`
	At          time.Time  `json:"at"`
	RunID       string     `json:"run_id,omitempty"`
	Services    []string   `json:"services,omitempty"`
	SkipJenkins bool       `json:"skip_jenkins,omitempty"`
	TriggeredBy string     `json:"triggered_by,omitempty"`
	Service     string     `json:"service,omitempty"`
	ActionID    string     `json:"action_id,omitempty"`
}

// PublishAction puts an operator request on the actions topic. The TUI
// models call this from tea commands.
func PublishAction(pub message.Publisher, req ActionRequest) error {
	if pub == nil {
		return errors.New("missing publisher")
	}
	if req.Kind == "" {
		return errors.New("missing action kind")
	}
	if req.At.IsZero() {
		req.At = time.Now()
	}

	env, err := NewEnvelope(UITypeActionRequest, req)
	if err != nil {
		return err
	}
	b, err := env.MarshalJSONBytes()
	if err != nil {
		return err
	}
	return pub.Publish(TopicUIActions, message.NewMessage(watermill.NewUUID(), b))
}

// RegisterActionHandler consumes operator requests and applies them to
// the controller. Rejections (illegal phase, exhausted retries) are
// pushed back to the UI as notice lines instead of failing the
// handler.
func RegisterActionHandler(bus *Bus, ctl *pipeline.Controller, snap Snapshotter) {
	bus.AddConsumer("opsdash-action-handler", TopicUIActions, func(env Envelope) error {
		if env.Type != UITypeActionRequest {
			return nil
		}
		var req ActionRequest
		if err := env.Decode(&req); err != nil {
			return err
		}

		if err := applyAction(ctl, req); err != nil {
			log.Warn().Err(err).Str("kind", string(req.Kind)).Msg("operator action rejected")
			notice := NoticeMsg{At: time.Now(), Text: err.Error()}
			if pubErr := bus.Publish(TopicUIMessages, UITypeEventAppend, notice); pubErr != nil {
				return pubErr
			}
		}
		return snap.PublishState(bus)
	})
}

func applyAction(ctl *pipeline.Controller, req ActionRequest) error {
	switch req.Kind {
	case ActionStart:
		_, err := ctl.Start(req.Services, req.SkipJenkins, req.TriggeredBy)
		return err
	case ActionRetry:
		return ctl.Retry()
	case ActionForceProceed:
		return ctl.ForceProceed()
	case ActionRollback:
		return ctl.Rollback()
	case ActionAbort:
		return ctl.Abort()
	case ActionSelectRun:
		return ctl.SelectRun(req.RunID)
	case ActionHardSync:
		ctl.HardSync(req.Service)
		return nil
	case ActionApproveAction:
		return ctl.ApproveAction(req.ActionID)
	case ActionSkipAction:
		return ctl.SkipAction(req.ActionID)
	}
	return errors.Errorf("unknown action kind %q", req.Kind)
}
