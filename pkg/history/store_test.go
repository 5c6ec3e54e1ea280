package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/opsdash/pkg/pipeline"
)

func finalizedRun(t *testing.T, services []string, outcome pipeline.RunStatus) *pipeline.Run {
	t.Helper()
	s := pipeline.NewStore()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	r := s.NewRun(services, "alice", start)
	require.NoError(t, s.Append(pipeline.StepEvent{RunID: r.ID, Step: pipeline.StepMerge,
		Status: pipeline.StepRunning, At: start}))
	require.NoError(t, s.Append(pipeline.StepEvent{RunID: r.ID, Step: pipeline.StepMerge,
		Status: pipeline.StepSuccess, At: start.Add(time.Minute)}))
	require.NoError(t, s.RecordStats(r.ID, []pipeline.PropagationStat{
		{Service: services[0], PushToHealthySecs: 42, Status: "healthy"},
	}, 0, 1))
	require.NoError(t, s.Finalize(r.ID, outcome, start.Add(5*time.Minute)))
	got, err := s.Get(r.ID)
	require.NoError(t, err)
	return got
}

func TestSaveAndGetRun(t *testing.T) {
	store, err := New(":memory:")
	require.NoError(t, err)
	defer store.Close()

	r := finalizedRun(t, []string{"api", "web"}, pipeline.RunSuccess)
	require.NoError(t, store.SaveRun(r))

	got, err := store.GetRun(r.ID)
	require.NoError(t, err)
	require.Equal(t, r.ID, got.ID)
	require.Equal(t, pipeline.RunSuccess, got.Status)
	require.Equal(t, "alice", got.TriggeredBy)
	require.Equal(t, pipeline.StepSuccess, got.Steps[pipeline.StepMerge])
	require.Len(t, got.PropagationStats, 1)
	require.Equal(t, 1, got.Retries)
}

func TestSaveRunRejectsLiveRun(t *testing.T) {
	store, err := New(":memory:")
	require.NoError(t, err)
	defer store.Close()

	s := pipeline.NewStore()
	r := s.NewRun([]string{"api"}, "", time.Now())
	live, err := s.Get(r.ID)
	require.NoError(t, err)
	require.Error(t, store.SaveRun(live))
}

func TestSaveRunTwiceOverwrites(t *testing.T) {
	store, err := New(":memory:")
	require.NoError(t, err)
	defer store.Close()

	r := finalizedRun(t, []string{"api"}, pipeline.RunDegraded)
	require.NoError(t, store.SaveRun(r))
	require.NoError(t, store.SaveRun(r))

	list, err := store.ListRuns(ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 1)

	lat, err := store.PropagationByService()
	require.NoError(t, err)
	require.Len(t, lat, 1)
	require.Equal(t, 1, lat[0].Samples)
}

func TestListRunsFilters(t *testing.T) {
	store, err := New(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ok := finalizedRun(t, []string{"api"}, pipeline.RunSuccess)
	bad := finalizedRun(t, []string{"web"}, pipeline.RunFailed)
	bad.ID, bad.Num = "r2", 2
	require.NoError(t, store.SaveRun(ok))
	require.NoError(t, store.SaveRun(bad))

	all, err := store.ListRuns(ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	// Most recent first.
	require.Equal(t, "r2", all[0].ID)

	failed, err := store.ListRuns(ListOptions{Status: pipeline.RunFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, "r2", failed[0].ID)

	limited, err := store.ListRuns(ListOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestPropagationByServiceExcludesNeverHealthy(t *testing.T) {
	store, err := New(":memory:")
	require.NoError(t, err)
	defer store.Close()

	r := finalizedRun(t, []string{"api"}, pipeline.RunDegraded)
	r.PropagationStats = append(r.PropagationStats,
		pipeline.PropagationStat{Service: "web", PushToHealthySecs: -1, Status: "Degraded"})
	require.NoError(t, store.SaveRun(r))

	lat, err := store.PropagationByService()
	require.NoError(t, err)
	require.Len(t, lat, 1)
	require.Equal(t, "api", lat[0].Service)
	require.Equal(t, 42.0, lat[0].AvgSecs)
}
