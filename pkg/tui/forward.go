package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// RegisterUIForwarder bridges the UI topic into the running bubbletea
// program.
func RegisterUIForwarder(bus *Bus, p *tea.Program) {
	bus.AddConsumer("opsdash-ui-forward", TopicUIMessages, func(env Envelope) error {
		switch env.Type {
		case UITypeRunSnapshot:
			var snap RunSnapshot
			if err := env.Decode(&snap); err != nil {
				return err
			}
			p.Send(RunSnapshotMsg{Snapshot: snap})
		case UITypeRunsList:
			var runs RunsListMsg
			if err := env.Decode(&runs.Runs); err != nil {
				return err
			}
			p.Send(runs)
		case UITypeEventAppend:
			var notice NoticeMsg
			if err := env.Decode(&notice); err != nil {
				return err
			}
			p.Send(notice)
		}
		return nil
	})
}
