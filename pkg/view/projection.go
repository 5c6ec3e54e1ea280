// Package view holds the pure projection helpers that turn raw run
// records into display values. Nothing here touches the state machine
// or the terminal; the TUI models call these and render the results.
package view

import (
	"fmt"
	"sort"
	"time"

	"github.com/go-go-golems/opsdash/pkg/pipeline"
)

// StepBadge is a single cell of the pipeline step row.
type StepBadge struct {
	Step    pipeline.Step
	Label   string
	Status  pipeline.StepStatus
	Icon    string
	Elapsed time.Duration
}

// stepIcons maps step status to the badge glyph.
var stepIcons = map[pipeline.StepStatus]string{
	pipeline.StepPending:     "○",
	pipeline.StepRunning:     "◐",
	pipeline.StepSuccess:     "●",
	pipeline.StepFailed:      "✕",
	pipeline.StepSkipped:     "⏭",
	pipeline.StepDegraded:    "◍",
	pipeline.StepInterrupted: "■",
}

// StepBadges projects the run's step map onto the fixed pipeline
// order. For a running step the elapsed time is live; for terminal
// steps it is the recorded duration.
func StepBadges(r *pipeline.Run, now time.Time) []StepBadge {
	out := make([]StepBadge, 0, len(pipeline.Definitions))
	for _, d := range pipeline.Definitions {
		st := r.Steps[d.ID]
		b := StepBadge{Step: d.ID, Label: d.Label, Status: st, Icon: stepIcons[st]}
		if t, ok := r.StepTimes[d.ID]; ok {
			switch {
			case st == pipeline.StepRunning:
				b.Elapsed = now.Sub(t.Start)
			default:
				b.Elapsed = t.Duration
			}
		}
		out = append(out, b)
	}
	return out
}

// TimelineEntry is one row of the run timeline: a step that actually
// started, with its start time and duration.
type TimelineEntry struct {
	Step     pipeline.Step
	Label    string
	Start    time.Time
	Duration time.Duration
	Status   pipeline.StepStatus
}

// Timeline lists the steps that recorded a start, in pipeline order.
// Steps never reached are omitted; a still-running step reports its
// elapsed time against now.
func Timeline(r *pipeline.Run, now time.Time) []TimelineEntry {
	var out []TimelineEntry
	for _, d := range pipeline.Definitions {
		t, ok := r.StepTimes[d.ID]
		if !ok || t.Start.IsZero() {
			continue
		}
		e := TimelineEntry{
			Step:     d.ID,
			Label:    d.Label,
			Start:    t.Start,
			Duration: t.Duration,
			Status:   r.Steps[d.ID],
		}
		if e.Status == pipeline.StepRunning {
			e.Duration = now.Sub(t.Start)
		}
		out = append(out, e)
	}
	return out
}

// HealthCount is one row of the health summary footer.
type HealthCount struct {
	State pipeline.HealthState
	Count int
}

// healthOrder fixes the display order of the summary; worst first.
var healthOrder = []pipeline.HealthState{
	pipeline.HealthDegraded,
	pipeline.HealthMissing,
	pipeline.HealthSuspended,
	pipeline.HealthUnknown,
	pipeline.HealthProgressing,
	pipeline.HealthHealthy,
}

// HealthSummary counts services per health state, worst states first.
// States with zero services are omitted.
func HealthSummary(hm map[string]pipeline.HealthState) []HealthCount {
	counts := map[pipeline.HealthState]int{}
	for _, h := range hm {
		counts[h]++
	}
	var out []HealthCount
	for _, st := range healthOrder {
		if n := counts[st]; n > 0 {
			out = append(out, HealthCount{State: st, Count: n})
		}
	}
	return out
}

// GridRow is one service row of the health grid, sorted for stable
// rendering.
type GridRow struct {
	Service string
	Health  pipeline.HealthState
	Sync    pipeline.SyncState
	Tag     string
	HPA     *pipeline.HPAStatus
}

// HealthGrid builds sorted grid rows from the run's latest health map
// plus the per-service detail carried on the most recent updates.
func HealthGrid(r *pipeline.Run) []GridRow {
	rows := make([]GridRow, 0, len(r.HealthMap))
	for svc, h := range r.HealthMap {
		row := GridRow{Service: svc, Health: h}
		if d, ok := r.HealthDetails[svc]; ok {
			row.Sync = d.Sync
			row.Tag = d.Tag
			row.HPA = d.HPA
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Service < rows[j].Service })
	return rows
}

// PropagationSummary aggregates push-to-healthy latencies. Services
// that never went healthy (negative marker) are excluded from the
// averages but counted.
type PropagationSummary struct {
	Count        int
	NeverHealthy int
	AvgSecs      float64
	MinSecs      float64
	MaxSecs      float64
}

func SummarizePropagation(stats []pipeline.PropagationStat) PropagationSummary {
	var s PropagationSummary
	for _, st := range stats {
		if st.PushToHealthySecs < 0 {
			s.NeverHealthy++
			continue
		}
		if s.Count == 0 || st.PushToHealthySecs < s.MinSecs {
			s.MinSecs = st.PushToHealthySecs
		}
		if st.PushToHealthySecs > s.MaxSecs {
			s.MaxSecs = st.PushToHealthySecs
		}
		s.AvgSecs += st.PushToHealthySecs
		s.Count++
	}
	if s.Count > 0 {
		s.AvgSecs /= float64(s.Count)
	}
	return s
}

// riskRank orders forecast risk levels, worst first.
var riskRank = map[string]int{
	"critical": 0,
	"high":     1,
	"medium":   2,
	"low":      3,
}

// Forecasts sorts the run's capacity forecasts worst risk first, ties
// by service name.
func Forecasts(r *pipeline.Run) []pipeline.ForecastAlert {
	out := append([]pipeline.ForecastAlert{}, r.Forecasts...)
	sort.Slice(out, func(i, j int) bool {
		ri, rj := rankRisk(out[i].RiskLevel), rankRisk(out[j].RiskLevel)
		if ri != rj {
			return ri < rj
		}
		return out[i].Service < out[j].Service
	})
	return out
}

func rankRisk(level string) int {
	if r, ok := riskRank[level]; ok {
		return r
	}
	return len(riskRank)
}

// MTTRDisplay renders the mean-time-to-recovery figure. Zero means no
// degradation happened during the run.
func MTTRDisplay(secs float64) string {
	if secs <= 0 {
		return "—"
	}
	return FormatDuration(time.Duration(secs * float64(time.Second)))
}

// FormatDuration renders a duration the way the dashboard shows all
// elapsed times: 42s, 3m12s, 1h04m.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%02dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm%02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// RunTitle renders the header line for a run: number, status and the
// operator who triggered it, when known.
func RunTitle(r *pipeline.Run) string {
	title := fmt.Sprintf("Run #%d — %s", r.Num, r.Status)
	if r.TriggeredBy != "" {
		title += " · " + r.TriggeredBy
	}
	return title
}

// PauseBanner renders the operator prompt shown while the pipeline is
// paused, including the retry budget usage.
func PauseBanner(p pipeline.PauseState, retries, retryMax int) string {
	if !p.Paused {
		return ""
	}
	banner := fmt.Sprintf("⏸ PAUSED on %s — retry %d/%d", pipeline.Label(p.Step), retries, retryMax)
	switch p.Code {
	case pipeline.CodeCollaboratorFailure:
		banner = fmt.Sprintf("⏸ PAUSED on %s (step failure) — retry %d/%d",
			pipeline.Label(p.Step), retries, retryMax)
	case pipeline.CodeRetryExhausted:
		banner = fmt.Sprintf("⏸ PAUSED on %s (evaluations exhausted) — retry %d/%d",
			pipeline.Label(p.Step), retries, retryMax)
	}
	if p.WatchCount > 0 {
		banner += fmt.Sprintf(" · %d health checks while paused", p.WatchCount)
	}
	if p.Error != "" {
		banner += "\n" + p.Error
	}
	return banner
}
