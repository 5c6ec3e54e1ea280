package models

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/go-go-golems/opsdash/pkg/pipeline"
	"github.com/go-go-golems/opsdash/pkg/tui"
	"github.com/go-go-golems/opsdash/pkg/tui/styles"
	"github.com/go-go-golems/opsdash/pkg/tui/widgets"
	"github.com/go-go-golems/opsdash/pkg/view"
)

// RunsModel lists run history and lets the operator switch the viewed
// run. Selecting a past run is read-only replay; commands keep acting
// on the live run.
type RunsModel struct {
	width  int
	height int

	pub    message.Publisher
	runs   []pipeline.RunSummary
	cursor int
}

func NewRunsModel(pub message.Publisher) RunsModel {
	return RunsModel{pub: pub}
}

func (m RunsModel) WithSize(width, height int) RunsModel {
	m.width, m.height = width, height
	return m
}

func (m RunsModel) WithRuns(runs []pipeline.RunSummary) RunsModel {
	m.runs = runs
	if len(runs) > 0 && m.cursor >= len(runs) {
		m.cursor = len(runs) - 1
	}
	return m
}

func (m RunsModel) Update(msg tea.Msg) (RunsModel, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.runs)-1 {
			m.cursor++
		}
	case "enter":
		if m.cursor < len(m.runs) {
			pub := m.pub
			runID := m.runs[m.cursor].ID
			return m, func() tea.Msg {
				_ = tui.PublishAction(pub, tui.ActionRequest{
					Kind:  tui.ActionSelectRun,
					RunID: runID,
				})
				return nil
			}
		}
	}
	return m, nil
}

func (m RunsModel) View() string {
	theme := styles.DefaultTheme()
	if len(m.runs) == 0 {
		return widgets.NewBox("Runs").
			WithContent(theme.TitleMuted.Render("(no runs yet)")).
			WithSize(m.width, 0).
			Render()
	}

	cols := []widgets.TableColumn{
		{Header: "run", Width: 6},
		{Header: "status", Width: 10},
		{Header: "duration", Width: 10},
		{Header: "by", Width: 12},
		{Header: "started", Width: 16},
	}
	rows := make([]widgets.TableRow, 0, len(m.runs))
	for _, r := range m.runs {
		rows = append(rows, widgets.TableRow{
			Icon: styles.RunIcon(string(r.Status)),
			Cells: []string{
				fmt.Sprintf("#%d", r.Num),
				string(r.Status),
				view.FormatDuration(r.Duration),
				r.TriggeredBy,
				r.StartedAt.Format("Jan 2 15:04"),
			},
		})
	}

	table := widgets.NewTable(cols).WithRows(rows).WithCursor(m.cursor).WithSize(m.width-2, 0)
	return widgets.NewBox(fmt.Sprintf("Runs (%d)", len(m.runs))).
		WithTitleRight("[enter] view  [↑/↓] select").
		WithContent(table.Render()).
		WithSize(m.width, 0).
		Render()
}
