package models

import (
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/go-go-golems/opsdash/pkg/pipeline"
	"github.com/go-go-golems/opsdash/pkg/tui"
	"github.com/go-go-golems/opsdash/pkg/tui/styles"
	"github.com/go-go-golems/opsdash/pkg/tui/widgets"
)

type ViewID string

const (
	ViewPipeline ViewID = "pipeline"
	ViewRuns     ViewID = "runs"
	ViewLogs     ViewID = "logs"
)

// RootModel owns the tab bar and routes bus messages to the child
// views. It is the tea.Model handed to tea.NewProgram.
type RootModel struct {
	width  int
	height int

	active ViewID
	snap   tui.RunSnapshot

	pipeline PipelineModel
	runs     RunsModel
	logs     LogsModel
}

func NewRootModel(pub message.Publisher, services []string, skipJenkins bool, operator string) RootModel {
	return RootModel{
		active:   ViewPipeline,
		pipeline: NewPipelineModel(pub, services, skipJenkins, operator),
		runs:     NewRunsModel(pub),
		logs:     NewLogsModel(),
	}
}

func (m RootModel) Init() tea.Cmd { return nil }

func (m RootModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch v := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = v.Width, v.Height
		contentHeight := m.height - 3
		m.pipeline = m.pipeline.WithSize(m.width, contentHeight)
		m.runs = m.runs.WithSize(m.width, contentHeight)
		m.logs = m.logs.WithSize(m.width, contentHeight)
		return m, nil

	case tea.KeyMsg:
		// The log filter input eats plain keys while active.
		if m.active == ViewLogs && m.logs.searching {
			var cmd tea.Cmd
			m.logs, cmd = m.logs.Update(v)
			return m, cmd
		}

		switch v.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "tab":
			m.active = nextView(m.active)
			return m, nil
		case "1":
			m.active = ViewPipeline
			return m, nil
		case "2":
			m.active = ViewRuns
			return m, nil
		case "3":
			m.active = ViewLogs
			return m, nil
		}

		var cmd tea.Cmd
		switch m.active {
		case ViewRuns:
			m.runs, cmd = m.runs.Update(v)
		case ViewLogs:
			m.logs, cmd = m.logs.Update(v)
		default:
			m.pipeline, cmd = m.pipeline.Update(v)
		}
		return m, cmd

	case tui.RunSnapshotMsg:
		m.snap = v.Snapshot
		m.pipeline = m.pipeline.WithSnapshot(v.Snapshot)
		if v.Snapshot.Run != nil {
			m.logs = m.logs.WithLogs(v.Snapshot.Run.Logs)
		}
		return m, nil

	case tui.RunsListMsg:
		m.runs = m.runs.WithRuns(v.Runs)
		return m, nil

	case tui.NoticeMsg:
		m.logs = m.logs.AppendNotice(v)
		return m, nil
	}

	return m, nil
}

func (m RootModel) View() string {
	var b strings.Builder
	b.WriteString(m.viewHeader())
	b.WriteString("\n")

	switch m.active {
	case ViewRuns:
		b.WriteString(m.runs.View())
	case ViewLogs:
		b.WriteString(m.logs.View())
	default:
		b.WriteString(m.pipeline.View())
	}
	b.WriteString("\n")
	b.WriteString(m.viewFooter())
	return b.String()
}

func (m RootModel) viewFooter() string {
	var kb []widgets.Keybind
	switch m.active {
	case ViewRuns:
		kb = []widgets.Keybind{
			{Key: "enter", Label: "view run"},
			{Key: "↑/↓", Label: "select"},
		}
	case ViewLogs:
		kb = []widgets.Keybind{
			{Key: "/", Label: "filter"},
			{Key: "c", Label: "clear notices"},
			{Key: "↑/↓", Label: "scroll"},
		}
	default:
		if m.snap.Pause.Paused {
			kb = []widgets.Keybind{
				{Key: "r", Label: "retry"},
				{Key: "f", Label: "force proceed"},
				{Key: "b", Label: "rollback"},
				{Key: "x", Label: "abort"},
			}
		} else if m.snap.Live {
			kb = []widgets.Keybind{
				{Key: "x", Label: "abort"},
			}
		} else {
			kb = []widgets.Keybind{
				{Key: "space", Label: "toggle"},
				{Key: "s", Label: "start"},
				{Key: "y", Label: "hard-sync"},
			}
		}
	}
	return widgets.NewFooter(kb).WithWidth(m.width).Render()
}

func (m RootModel) viewHeader() string {
	header := widgets.NewHeader("opsdash").
		WithKeybinds([]widgets.Keybind{
			{Key: "1", Label: tabLabel(ViewPipeline, m.active)},
			{Key: "2", Label: tabLabel(ViewRuns, m.active)},
			{Key: "3", Label: tabLabel(ViewLogs, m.active)},
			{Key: "tab", Label: "next"},
			{Key: "q", Label: "quit"},
		}).
		WithWidth(m.width)

	if m.snap.Run != nil {
		icon := styles.RunIcon(string(m.snap.Run.Status))
		header = header.WithStatus(icon, string(m.snap.Run.Status), m.snap.Run.Status == pipeline.RunSuccess || m.snap.Live)
		if m.snap.Live {
			header = header.WithElapsed(time.Since(m.snap.Run.StartedAt))
		}
	}
	return header.Render()
}

func nextView(v ViewID) ViewID {
	switch v {
	case ViewPipeline:
		return ViewRuns
	case ViewRuns:
		return ViewLogs
	default:
		return ViewPipeline
	}
}

func tabLabel(v, active ViewID) string {
	if v == active {
		return strings.ToUpper(string(v))
	}
	return string(v)
}
