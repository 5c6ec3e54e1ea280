package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/go-go-golems/opsdash/pkg/pipeline"
	"github.com/go-go-golems/opsdash/pkg/tui"
	"github.com/go-go-golems/opsdash/pkg/tui/styles"
	"github.com/go-go-golems/opsdash/pkg/tui/widgets"
	"github.com/go-go-golems/opsdash/pkg/view"
)

// PipelineModel is the main dashboard view: step badges, pause
// controls, proposals and the health grid for the viewed run. While
// idle it shows the service picker.
type PipelineModel struct {
	width  int
	height int

	pub      message.Publisher
	operator string

	snap tui.RunSnapshot

	// service picker (idle only)
	services    []string
	picked      map[string]bool
	pickCursor  int
	skipJenkins bool

	proposalCursor int
}

func NewPipelineModel(pub message.Publisher, services []string, skipJenkins bool, operator string) PipelineModel {
	picked := make(map[string]bool, len(services))
	for _, s := range services {
		picked[s] = true
	}
	return PipelineModel{
		pub:         pub,
		operator:    operator,
		services:    services,
		picked:      picked,
		skipJenkins: skipJenkins,
	}
}

func (m PipelineModel) WithSize(width, height int) PipelineModel {
	m.width, m.height = width, height
	return m
}

func (m PipelineModel) WithSnapshot(snap tui.RunSnapshot) PipelineModel {
	m.snap = snap
	if n := len(snap.Proposals); n > 0 && m.proposalCursor >= n {
		m.proposalCursor = n - 1
	}
	return m
}

func (m PipelineModel) action(req tui.ActionRequest) tea.Cmd {
	pub := m.pub
	return func() tea.Msg {
		_ = tui.PublishAction(pub, req)
		return nil
	}
}

func (m PipelineModel) Update(msg tea.Msg) (PipelineModel, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	if m.snap.Phase == pipeline.PhaseIdle {
		return m.updatePicker(key)
	}

	switch key.String() {
	case "r":
		return m, m.action(tui.ActionRequest{Kind: tui.ActionRetry})
	case "f":
		return m, m.action(tui.ActionRequest{Kind: tui.ActionForceProceed})
	case "b":
		return m, m.action(tui.ActionRequest{Kind: tui.ActionRollback})
	case "x":
		return m, m.action(tui.ActionRequest{Kind: tui.ActionAbort})
	case "up", "k":
		if m.proposalCursor > 0 {
			m.proposalCursor--
		}
		return m, nil
	case "down", "j":
		if m.proposalCursor < len(m.snap.Proposals)-1 {
			m.proposalCursor++
		}
		return m, nil
	case "a":
		if p := m.cursorProposal(); p != nil {
			return m, m.action(tui.ActionRequest{Kind: tui.ActionApproveAction, ActionID: p.ID})
		}
		return m, nil
	case "s":
		if p := m.cursorProposal(); p != nil {
			return m, m.action(tui.ActionRequest{Kind: tui.ActionSkipAction, ActionID: p.ID})
		}
		return m, nil
	}
	return m, nil
}

func (m PipelineModel) updatePicker(key tea.KeyMsg) (PipelineModel, tea.Cmd) {
	switch key.String() {
	case "up", "k":
		if m.pickCursor > 0 {
			m.pickCursor--
		}
	case "down", "j":
		if m.pickCursor < len(m.services)-1 {
			m.pickCursor++
		}
	case " ":
		if m.pickCursor < len(m.services) {
			svc := m.services[m.pickCursor]
			m.picked[svc] = !m.picked[svc]
		}
	case "A":
		all := !m.allPicked()
		for _, svc := range m.services {
			m.picked[svc] = all
		}
	case "J":
		m.skipJenkins = !m.skipJenkins
	case "s", "enter":
		var selected []string
		for _, svc := range m.services {
			if m.picked[svc] {
				selected = append(selected, svc)
			}
		}
		return m, m.action(tui.ActionRequest{
			Kind:        tui.ActionStart,
			Services:    selected,
			SkipJenkins: m.skipJenkins,
			TriggeredBy: m.operator,
		})
	case "y":
		if m.pickCursor < len(m.services) {
			return m, m.action(tui.ActionRequest{
				Kind:    tui.ActionHardSync,
				Service: m.services[m.pickCursor],
			})
		}
	}
	return m, nil
}

func (m PipelineModel) cursorProposal() *pipeline.ProposedAction {
	if m.proposalCursor < 0 || m.proposalCursor >= len(m.snap.Proposals) {
		return nil
	}
	return &m.snap.Proposals[m.proposalCursor]
}

func (m PipelineModel) allPicked() bool {
	for _, svc := range m.services {
		if !m.picked[svc] {
			return false
		}
	}
	return len(m.services) > 0
}

func (m PipelineModel) View() string {
	if m.snap.Run == nil {
		return m.viewPicker()
	}

	var sections []string
	sections = append(sections, m.viewSteps())
	if m.snap.Pause.Paused {
		sections = append(sections, m.viewPause())
	}
	if len(m.snap.Proposals) > 0 {
		sections = append(sections, m.viewProposals())
	}
	sections = append(sections, m.viewHealth())
	if len(m.snap.Run.Forecasts) > 0 {
		sections = append(sections, m.viewForecasts())
	}
	if m.snap.Phase == pipeline.PhaseIdle {
		sections = append(sections, m.viewStats(), m.viewPickerHint())
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m PipelineModel) viewPicker() string {
	theme := styles.DefaultTheme()

	var b strings.Builder
	for i, svc := range m.services {
		cursor := "  "
		if i == m.pickCursor {
			cursor = theme.KeybindKey.Render("> ")
		}
		mark := "[ ]"
		if m.picked[svc] {
			mark = "[x]"
		}
		line := fmt.Sprintf("%s%s %s", cursor, mark, svc)
		if i == m.pickCursor {
			line = theme.Selected.Render(line)
		}
		b.WriteString(line + "\n")
	}
	jenkins := "QA jobs: on"
	if m.skipJenkins {
		jenkins = "QA jobs: skipped"
	}
	b.WriteString("\n" + theme.TitleMuted.Render(jenkins))

	box := widgets.NewBox("Select services").
		WithTitleRight("[space] toggle  [A] all  [J] qa  [y] hard-sync  [s] start").
		WithContent(b.String()).
		WithSize(m.width, 0)
	return box.Render()
}

func (m PipelineModel) viewPickerHint() string {
	theme := styles.DefaultTheme()
	return theme.TitleMuted.Render("  [s] start new run")
}

func (m PipelineModel) viewSteps() string {
	theme := styles.DefaultTheme()
	badges := view.StepBadges(m.snap.Run, time.Now())

	parts := make([]string, 0, len(badges))
	for _, b := range badges {
		style := theme.StepPending
		switch b.Status {
		case pipeline.StepRunning:
			style = theme.StepRunning
		case pipeline.StepSuccess:
			style = theme.StepSuccess
		case pipeline.StepFailed, pipeline.StepInterrupted:
			style = theme.StepFailed
		case pipeline.StepSkipped, pipeline.StepDegraded:
			style = theme.StepSkipped
		}
		text := fmt.Sprintf("%s %s", styles.StepIcon(string(b.Status)), b.Label)
		if b.Elapsed > 0 {
			text += " " + view.FormatDuration(b.Elapsed)
		}
		parts = append(parts, style.Render(text))
	}
	row := strings.Join(parts, theme.TitleMuted.Render("  →  "))

	box := widgets.NewBox(view.RunTitle(m.snap.Run)).
		WithTitleRight(string(m.snap.Phase)).
		WithContent(row).
		WithSize(m.width, 0)
	return box.Render()
}

func (m PipelineModel) viewPause() string {
	theme := styles.DefaultTheme()
	banner := view.PauseBanner(m.snap.Pause, m.snap.Retries, m.snap.RetryMax)
	keys := "[r] retry  [f] force proceed  [x] abort"
	if m.snap.Pause.Step == pipeline.StepDeploy {
		keys = "[r] retry  [f] force proceed  [b] rollback  [x] abort"
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		theme.PauseBanner.Width(m.width).Render(banner),
		theme.TitleMuted.Render("  "+keys),
	)
}

func (m PipelineModel) viewProposals() string {
	theme := styles.DefaultTheme()

	var lines []string
	for i, p := range m.snap.Proposals {
		cursor := "  "
		if i == m.proposalCursor {
			cursor = theme.KeybindKey.Render("> ")
		}
		status := string(p.Status)
		style := theme.TitleMuted
		switch p.Status {
		case pipeline.ActionDone:
			style = theme.StepSuccess
		case pipeline.ActionFailed:
			style = theme.StepFailed
		case pipeline.ActionExecuting, pipeline.ActionAutoExecuting:
			style = theme.StepRunning
		}
		line := fmt.Sprintf("%s%-14s %-20s %3d%%  %s", cursor, p.Kind, p.Target, p.Confidence, style.Render(status))
		if p.Reason != "" {
			line += theme.TitleMuted.Render("  — " + p.Reason)
		}
		lines = append(lines, line)
	}

	box := widgets.NewBox(fmt.Sprintf("Proposed actions (%d)", len(m.snap.Proposals))).
		WithTitleRight("[a] approve  [s] skip  [↑/↓] select").
		WithContent(strings.Join(lines, "\n")).
		WithSize(m.width, 0)
	return box.Render()
}

func (m PipelineModel) viewHealth() string {
	theme := styles.DefaultTheme()
	rows := view.HealthGrid(m.snap.Run)
	if len(rows) == 0 {
		return widgets.NewBox("Service health").
			WithContent(theme.TitleMuted.Render("(no health data yet)")).
			WithSize(m.width, 0).
			Render()
	}

	cols := []widgets.TableColumn{
		{Header: "service", Width: 24},
		{Header: "health", Width: 14},
		{Header: "sync", Width: 11},
		{Header: "tag", Width: 16},
		{Header: "hpa", Width: 10},
	}
	tableRows := make([]widgets.TableRow, 0, len(rows))
	for _, r := range rows {
		hpa := ""
		if r.HPA != nil {
			hpa = fmt.Sprintf("%d/%d (max %d)", r.HPA.Current, r.HPA.Desired, r.HPA.Max)
		}
		tableRows = append(tableRows, widgets.HealthRow(
			styles.HealthIcon(string(r.Health)),
			r.Service, string(r.Health), string(r.Sync), r.Tag, hpa, false))
	}

	summary := make([]string, 0, 4)
	for _, c := range view.HealthSummary(m.snap.Run.HealthMap) {
		summary = append(summary, fmt.Sprintf("%d %s", c.Count, c.State))
	}

	content := widgets.NewTable(cols).WithRows(tableRows).WithCursor(-1).WithSize(m.width-2, 0).Render()
	if total := len(m.snap.Run.Services); total > 0 {
		healthy := 0
		for _, svc := range m.snap.Run.Services {
			if m.snap.Run.HealthMap[svc] == pipeline.HealthHealthy {
				healthy++
			}
		}
		bar := widgets.NewProgressBar(healthy, total).
			WithWidth(m.width - 20).
			WithStyle(theme.HealthOK).
			Render()
		content = lipgloss.JoinVertical(lipgloss.Left, content, bar)
	}

	box := widgets.NewBox("Service health").
		WithTitleRight(strings.Join(summary, " · ")).
		WithContent(content).
		WithSize(m.width, 0)
	return box.Render()
}

func (m PipelineModel) viewForecasts() string {
	theme := styles.DefaultTheme()

	var lines []string
	for _, f := range view.Forecasts(m.snap.Run) {
		style := theme.TitleMuted
		switch f.RiskLevel {
		case "critical", "high":
			style = theme.StepFailed
		case "medium":
			style = theme.StepSkipped
		}
		line := fmt.Sprintf("%-24s %s %s  now %.0f%% → 30m %.0f%%",
			f.Service, style.Render(f.RiskLevel), f.Trend, f.Current, f.Predicted30m)
		if f.Message != "" {
			line += theme.TitleMuted.Render("  — " + f.Message)
		}
		lines = append(lines, line)
	}

	box := widgets.NewBox("Capacity forecasts").
		WithContent(strings.Join(lines, "\n")).
		WithSize(m.width, 0)
	return box.Render()
}

func (m PipelineModel) viewStats() string {
	theme := styles.DefaultTheme()
	r := m.snap.Run

	var lines []string
	for _, e := range view.Timeline(r, time.Now()) {
		lines = append(lines, fmt.Sprintf("%s %-28s %s  %s",
			styles.StepIcon(string(e.Status)), e.Label,
			e.Start.Format("15:04:05"), view.FormatDuration(e.Duration)))
	}
	if sum := view.SummarizePropagation(r.PropagationStats); sum.Count > 0 || sum.NeverHealthy > 0 {
		line := fmt.Sprintf("Push→healthy: avg %s  min %s  max %s (%d services)",
			view.MTTRDisplay(sum.AvgSecs), view.MTTRDisplay(sum.MinSecs),
			view.MTTRDisplay(sum.MaxSecs), sum.Count)
		if sum.NeverHealthy > 0 {
			line += theme.StepFailed.Render(fmt.Sprintf("  %d never healthy", sum.NeverHealthy))
		}
		lines = append(lines, line)
	}
	lines = append(lines, fmt.Sprintf("MTTR: %s   Retries: %d", view.MTTRDisplay(r.MTTRSecs), r.Retries))

	box := widgets.NewBox("Run statistics").
		WithContent(strings.Join(lines, "\n")).
		WithSize(m.width, 0)
	return box.Render()
}
