package tui

import (
	"github.com/go-go-golems/opsdash/pkg/pipeline"
)

// RunSnapshot is the full UI-facing state: the viewed run plus the
// controller's live-machine status. The TUI is a pure renderer of
// these; it never touches the controller's internals.
type RunSnapshot struct {
	Run       *pipeline.Run             `json:"run,omitempty"`
	Live      bool                      `json:"live"`
	Phase     pipeline.Phase            `json:"phase"`
	Pause     pipeline.PauseState       `json:"pause"`
	Retries   int                       `json:"retries"`
	RetryMax  int                       `json:"retry_max"`
	Proposals []pipeline.ProposedAction `json:"proposals,omitempty"`
}

// Snapshotter builds snapshots from the controller and store.
type Snapshotter struct {
	Controller *pipeline.Controller
	Store      *pipeline.Store
	RetryMax   int
}

func (s Snapshotter) Snapshot() RunSnapshot {
	snap := RunSnapshot{
		Phase:    s.Controller.Phase(),
		Pause:    s.Controller.Pause(),
		Retries:  s.Controller.Retries(),
		RetryMax: s.RetryMax,
	}
	if r, err := s.Controller.Viewed(); err == nil {
		snap.Run = r
		snap.Live = s.Controller.IsLive(r.ID)
	}
	if snap.Live || snap.Phase == pipeline.PhasePaused {
		snap.Proposals = s.Controller.Proposals()
	}
	return snap
}

// PublishState pushes a fresh snapshot and runs list onto the UI
// topic. Called after every ingested event and operator action.
func (s Snapshotter) PublishState(bus *Bus) error {
	if err := bus.Publish(TopicUIMessages, UITypeRunSnapshot, s.Snapshot()); err != nil {
		return err
	}
	return bus.Publish(TopicUIMessages, UITypeRunsList, s.Store.List())
}
