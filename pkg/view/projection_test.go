package view

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/opsdash/pkg/pipeline"
)

func makeRun(t *testing.T) (*pipeline.Store, *pipeline.Run) {
	t.Helper()
	s := pipeline.NewStore()
	r := s.NewRun([]string{"api", "web"}, "alice", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	return s, r
}

func TestStepBadgesFollowPipelineOrder(t *testing.T) {
	s, r := makeRun(t)
	start := r.StartedAt
	require.NoError(t, s.Append(pipeline.StepEvent{RunID: r.ID, Step: pipeline.StepMerge,
		Status: pipeline.StepRunning, At: start}))
	require.NoError(t, s.Append(pipeline.StepEvent{RunID: r.ID, Step: pipeline.StepMerge,
		Status: pipeline.StepSuccess, At: start.Add(40 * time.Second)}))
	require.NoError(t, s.Append(pipeline.StepEvent{RunID: r.ID, Step: pipeline.StepBuild,
		Status: pipeline.StepRunning, At: start.Add(40 * time.Second)}))

	got, err := s.Get(r.ID)
	require.NoError(t, err)
	badges := StepBadges(got, start.Add(70*time.Second))
	require.Len(t, badges, 5)

	require.Equal(t, pipeline.StepMerge, badges[0].Step)
	require.Equal(t, "●", badges[0].Icon)
	require.Equal(t, 40*time.Second, badges[0].Elapsed)

	require.Equal(t, pipeline.StepBuild, badges[1].Step)
	require.Equal(t, "◐", badges[1].Icon)
	require.Equal(t, 30*time.Second, badges[1].Elapsed)

	require.Equal(t, "○", badges[2].Icon)
	require.Zero(t, badges[2].Elapsed)
}

func TestTimelineSkipsUnreachedSteps(t *testing.T) {
	s, r := makeRun(t)
	start := r.StartedAt
	require.NoError(t, s.Append(pipeline.StepEvent{RunID: r.ID, Step: pipeline.StepMerge,
		Status: pipeline.StepRunning, At: start}))
	require.NoError(t, s.Append(pipeline.StepEvent{RunID: r.ID, Step: pipeline.StepMerge,
		Status: pipeline.StepSuccess, At: start.Add(40 * time.Second)}))
	require.NoError(t, s.Append(pipeline.StepEvent{RunID: r.ID, Step: pipeline.StepBuild,
		Status: pipeline.StepRunning, At: start.Add(40 * time.Second)}))

	got, err := s.Get(r.ID)
	require.NoError(t, err)
	entries := Timeline(got, start.Add(70*time.Second))
	require.Len(t, entries, 2)

	require.Equal(t, pipeline.StepMerge, entries[0].Step)
	require.Equal(t, start, entries[0].Start)
	require.Equal(t, 40*time.Second, entries[0].Duration)
	require.Equal(t, pipeline.StepSuccess, entries[0].Status)

	// The running step reports live elapsed time.
	require.Equal(t, pipeline.StepBuild, entries[1].Step)
	require.Equal(t, 30*time.Second, entries[1].Duration)
	require.Equal(t, pipeline.StepRunning, entries[1].Status)
}

func TestTimelineEmptyForFreshRun(t *testing.T) {
	_, r := makeRun(t)
	require.Empty(t, Timeline(r, r.StartedAt))
}

func TestHealthSummaryWorstFirst(t *testing.T) {
	sum := HealthSummary(map[string]pipeline.HealthState{
		"api":    pipeline.HealthHealthy,
		"web":    pipeline.HealthHealthy,
		"worker": pipeline.HealthDegraded,
		"cron":   pipeline.HealthProgressing,
	})
	require.Len(t, sum, 3)
	require.Equal(t, pipeline.HealthDegraded, sum[0].State)
	require.Equal(t, 1, sum[0].Count)
	require.Equal(t, pipeline.HealthProgressing, sum[1].State)
	require.Equal(t, pipeline.HealthHealthy, sum[2].State)
	require.Equal(t, 2, sum[2].Count)
}

func TestHealthGridSortedWithDetail(t *testing.T) {
	s, r := makeRun(t)
	at := r.StartedAt
	require.NoError(t, s.Append(pipeline.HealthUpdate{RunID: r.ID, At: at, Service: "web",
		Health: pipeline.HealthHealthy, Sync: pipeline.SyncSynced, Tag: "v2",
		HPA: &pipeline.HPAStatus{Current: 3, Desired: 3, Max: 6}}))
	require.NoError(t, s.Append(pipeline.HealthUpdate{RunID: r.ID, At: at, Service: "api",
		Health: pipeline.HealthDegraded, Sync: pipeline.SyncOutOfSync, Tag: "v1"}))

	got, err := s.Get(r.ID)
	require.NoError(t, err)
	rows := HealthGrid(got)
	require.Len(t, rows, 2)
	require.Equal(t, "api", rows[0].Service)
	require.Equal(t, pipeline.SyncOutOfSync, rows[0].Sync)
	require.Equal(t, "web", rows[1].Service)
	require.Equal(t, "v2", rows[1].Tag)
	require.NotNil(t, rows[1].HPA)
	require.Equal(t, 3, rows[1].HPA.Current)
}

func TestSummarizePropagation(t *testing.T) {
	sum := SummarizePropagation([]pipeline.PropagationStat{
		{Service: "api", PushToHealthySecs: 30, Status: "healthy"},
		{Service: "web", PushToHealthySecs: 90, Status: "healthy"},
		{Service: "worker", PushToHealthySecs: -1, Status: "Degraded"},
	})
	require.Equal(t, 2, sum.Count)
	require.Equal(t, 1, sum.NeverHealthy)
	require.Equal(t, 60.0, sum.AvgSecs)
	require.Equal(t, 30.0, sum.MinSecs)
	require.Equal(t, 90.0, sum.MaxSecs)
}

func TestSummarizePropagationEmpty(t *testing.T) {
	sum := SummarizePropagation(nil)
	require.Zero(t, sum.Count)
	require.Zero(t, sum.AvgSecs)
}

func TestMTTRDisplay(t *testing.T) {
	require.Equal(t, "—", MTTRDisplay(0))
	require.Equal(t, "42s", MTTRDisplay(42))
	require.Equal(t, "3m12s", MTTRDisplay(192))
}

func TestFormatDuration(t *testing.T) {
	require.Equal(t, "0s", FormatDuration(0))
	require.Equal(t, "42s", FormatDuration(42*time.Second))
	require.Equal(t, "3m12s", FormatDuration(3*time.Minute+12*time.Second))
	require.Equal(t, "1h04m", FormatDuration(time.Hour+4*time.Minute))
	require.Equal(t, "0s", FormatDuration(-time.Second))
}

func TestPauseBanner(t *testing.T) {
	require.Empty(t, PauseBanner(pipeline.PauseState{}, 0, 3))

	p := pipeline.PauseState{Paused: true, Step: pipeline.StepDeploy,
		Code:  pipeline.CodeRetryExhausted,
		Error: "2 app(s) not healthy: api, web", WatchCount: 5}
	banner := PauseBanner(p, 3, 3)
	require.Contains(t, banner, "retry 3/3")
	require.Contains(t, banner, "Deploy Sync & Notify")
	require.Contains(t, banner, "evaluations exhausted")
	require.Contains(t, banner, "5 health checks")
	require.Contains(t, banner, "api, web")

	p = pipeline.PauseState{Paused: true, Step: pipeline.StepMerge,
		Code: pipeline.CodeCollaboratorFailure, Error: "api: conflict"}
	require.Contains(t, PauseBanner(p, 1, 3), "step failure")
}

func TestForecastsWorstRiskFirst(t *testing.T) {
	s, r := makeRun(t)
	at := r.StartedAt
	require.NoError(t, s.Append(pipeline.ForecastAlert{RunID: r.ID, At: at,
		Service: "web", RiskLevel: "medium", Trend: "rising"}))
	require.NoError(t, s.Append(pipeline.ForecastAlert{RunID: r.ID, At: at,
		Service: "api", RiskLevel: "critical", Trend: "rising"}))
	require.NoError(t, s.Append(pipeline.ForecastAlert{RunID: r.ID, At: at,
		Service: "cron", RiskLevel: "medium", Trend: "stable"}))

	got, err := s.Get(r.ID)
	require.NoError(t, err)
	fc := Forecasts(got)
	require.Len(t, fc, 3)
	require.Equal(t, "api", fc[0].Service)
	// Equal risk sorts by service name.
	require.Equal(t, "cron", fc[1].Service)
	require.Equal(t, "web", fc[2].Service)
}
