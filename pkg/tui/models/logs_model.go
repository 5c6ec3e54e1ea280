package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/go-go-golems/opsdash/pkg/pipeline"
	"github.com/go-go-golems/opsdash/pkg/tui"
	"github.com/go-go-golems/opsdash/pkg/tui/styles"
	"github.com/go-go-golems/opsdash/pkg/tui/widgets"
)

// LogsModel shows the viewed run's collaborator log lines plus local
// notices (rejected commands, bus errors) in one scrollable stream.
type LogsModel struct {
	logs    []pipeline.LogLine
	notices []tui.NoticeMsg

	width  int
	height int

	searching bool
	search    textinput.Model
	filter    string

	vp viewport.Model
}

func NewLogsModel() LogsModel {
	search := textinput.New()
	search.Placeholder = "filter…"
	search.Prompt = "/ "
	search.CharLimit = 200

	m := LogsModel{search: search}
	m.vp = viewport.New(0, 0)
	return m
}

func (m LogsModel) WithSize(width, height int) LogsModel {
	m.width, m.height = width, height
	m = m.resizeViewport()
	return m
}

// WithLogs replaces the log lines with the ones from the latest run
// snapshot. The run record already caps and deduplicates lines, so no
// local trimming happens here.
func (m LogsModel) WithLogs(logs []pipeline.LogLine) LogsModel {
	m.logs = logs
	m = m.refreshViewportContent(true)
	return m
}

func (m LogsModel) AppendNotice(n tui.NoticeMsg) LogsModel {
	m.notices = append(m.notices, n)
	if len(m.notices) > 50 {
		m.notices = append([]tui.NoticeMsg{}, m.notices[len(m.notices)-50:]...)
	}
	m = m.refreshViewportContent(true)
	return m
}

func (m LogsModel) Update(msg tea.Msg) (LogsModel, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	if m.searching {
		switch key.String() {
		case "esc":
			m.searching = false
			m.search.Blur()
			return m, nil
		case "enter":
			m.filter = strings.TrimSpace(m.search.Value())
			m.searching = false
			m.search.Blur()
			m = m.refreshViewportContent(true)
			return m, nil
		}

		var cmd tea.Cmd
		m.search, cmd = m.search.Update(key)
		return m, cmd
	}

	switch key.String() {
	case "/":
		m.searching = true
		m.search.SetValue(m.filter)
		m.search.CursorEnd()
		m.search.Focus()
		return m, nil
	case "ctrl+l":
		m.filter = ""
		m.search.SetValue("")
		m = m.refreshViewportContent(true)
		return m, nil
	case "c":
		m.notices = nil
		m = m.refreshViewportContent(true)
		return m, nil
	}

	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(key)
	return m, cmd
}

func (m LogsModel) View() string {
	theme := styles.DefaultTheme()

	var sections []string

	titleRight := "[/] filter  [c] clear notices  [↑/↓] scroll"
	if m.filter != "" {
		titleRight = fmt.Sprintf("filter=%q  %s", m.filter, titleRight)
	}

	if m.searching {
		sections = append(sections, m.search.View())
	}

	total := len(m.logs) + len(m.notices)
	if total == 0 {
		emptyBox := widgets.NewBox("Logs").
			WithTitleRight(titleRight).
			WithContent(theme.TitleMuted.Render("(no log lines yet)")).
			WithSize(m.width, 5)
		sections = append(sections, emptyBox.Render())
	} else {
		logsBox := widgets.NewBox(fmt.Sprintf("Logs (%d)", total)).
			WithTitleRight(titleRight).
			WithContent(m.vp.View()).
			WithSize(m.width, m.vp.Height+3)
		sections = append(sections, logsBox.Render())
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m LogsModel) resizeViewport() LogsModel {
	usableHeight := m.height - 4
	if usableHeight < 3 {
		usableHeight = 3
	}
	if m.width > 0 {
		m.vp.Width = m.width
	}
	m.vp.Height = usableHeight
	m.vp.HighPerformanceRendering = false
	m = m.refreshViewportContent(false)
	return m
}

func (m LogsModel) refreshViewportContent(gotoBottom bool) LogsModel {
	theme := styles.DefaultTheme()

	lines := make([]string, 0, len(m.logs)+len(m.notices))
	for _, l := range m.logs {
		if m.filter != "" && !strings.Contains(l.Text, m.filter) {
			continue
		}
		lines = append(lines, renderLogLine(theme, l))
	}
	for _, n := range m.notices {
		if m.filter != "" && !strings.Contains(n.Text, m.filter) {
			continue
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Center,
			theme.StepSkipped.Render(styles.IconWarning),
			" ",
			theme.TitleMuted.Render(n.At.Format("15:04:05")),
			"  ",
			theme.StepSkipped.Render(n.Text),
		))
	}

	if len(lines) == 0 {
		m.vp.SetContent("")
		return m
	}
	m.vp.SetContent(strings.Join(lines, "\n") + "\n")
	if gotoBottom {
		m.vp.GotoBottom()
	}
	return m
}

func renderLogLine(theme styles.Theme, l pipeline.LogLine) string {
	ts := l.At
	if ts.IsZero() {
		ts = time.Now()
	}

	style := theme.TitleMuted
	switch l.Level {
	case "e", "c":
		style = theme.StepFailed
	case "w":
		style = theme.StepSkipped
	case "s", "h":
		style = theme.StepSuccess
	}

	text := l.Text
	if l.RepeatCount > 1 {
		text = fmt.Sprintf("%s (x%d)", text, l.RepeatCount)
	}

	return lipgloss.JoinHorizontal(lipgloss.Center,
		style.Render(styles.LogLevelIcon(l.Level)),
		" ",
		theme.TitleMuted.Render(ts.Format("15:04:05")),
		" ",
		theme.TitleMuted.Render(fmt.Sprintf("[%s]", l.Step)),
		"  ",
		style.Render(text),
	)
}
