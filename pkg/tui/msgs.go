package tui

import (
	"time"

	"github.com/go-go-golems/opsdash/pkg/pipeline"
)

// RunSnapshotMsg delivers refreshed run state to the TUI.
type RunSnapshotMsg struct {
	Snapshot RunSnapshot
}

// RunsListMsg delivers the run history list.
type RunsListMsg struct {
	Runs []pipeline.RunSummary
}

// NoticeMsg is a transient operator-facing notice (e.g. a rejected
// command), shown in the log view.
type NoticeMsg struct {
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}
