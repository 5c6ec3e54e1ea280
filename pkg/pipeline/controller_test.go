package pipeline

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// recordSink captures every command the controller emits.
type recordSink struct {
	mu     sync.Mutex
	calls  []string
	slacks []SlackPayload
}

func (s *recordSink) record(format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, fmt.Sprintf(format, args...))
}

func (s *recordSink) StartMerge(runID string, svcs []string)        { s.record("merge:%s", runID) }
func (s *recordSink) StartBuild(runID string, svcs []string)        { s.record("build:%s", runID) }
func (s *recordSink) StartGitopsUpdate(runID string, svcs []string) { s.record("gitops:%s", runID) }
func (s *recordSink) StartDeploySync(runID string, svcs []string)   { s.record("deploy:%s", runID) }
func (s *recordSink) TriggerJenkinsQA(runID string, svcs []string)  { s.record("jenkins:%s", runID) }
func (s *recordSink) RollbackDeploy(runID string, svcs []string) {
	s.record("rollback:%s:%v", runID, svcs)
}
func (s *recordSink) HardSyncService(market, name string) { s.record("hardsync:%s/%s", market, name) }
func (s *recordSink) CancelStep(runID string, step Step)  { s.record("cancel:%s:%s", runID, step) }
func (s *recordSink) DispatchAction(id string)            { s.record("dispatch:%s", id) }
func (s *recordSink) NotifySlack(channel string, p SlackPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "slack:"+p.Kind)
	s.slacks = append(s.slacks, p)
}

func (s *recordSink) count(call string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (s *recordSink) has(call string) bool { return s.count(call) > 0 }

// testClock is a manually-advanced clock.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestController(t *testing.T) (*Controller, *Store, *recordSink, *testClock) {
	t.Helper()
	store := NewStore()
	sink := &recordSink{}
	clock := newTestClock()
	ctl := NewController(store, sink, Options{
		RetryMax: 3,
		Market:   "de",
		Clock:    clock.Now,
	})
	return ctl, store, sink, clock
}

func stepOK(t *testing.T, ctl *Controller, runID string, step Step, clock *testClock) {
	t.Helper()
	clock.Advance(5 * time.Second)
	require.NoError(t, ctl.HandleEvent(StepEvent{
		RunID: runID, Step: step, Status: StepSuccess, At: clock.Now(),
	}))
}

// driveToDeploy moves a fresh run through merge, build and gitops.
func driveToDeploy(t *testing.T, ctl *Controller, clock *testClock, services []string) string {
	t.Helper()
	runID, err := ctl.Start(services, false, "tester")
	require.NoError(t, err)
	for _, svc := range services {
		require.NoError(t, ctl.HandleEvent(GitopsStatusEvent{
			RunID: runID, At: clock.Now(),
			Status: GitopsStatus{Name: svc, Status: "success", Phase: "pushed", Tag: "v2"},
		}))
	}
	stepOK(t, ctl, runID, StepMerge, clock)
	stepOK(t, ctl, runID, StepBuild, clock)
	stepOK(t, ctl, runID, StepGitops, clock)
	return runID
}

func health(runID, svc string, h HealthState, tag string, at time.Time) HealthUpdate {
	return HealthUpdate{RunID: runID, At: at, Service: svc, Health: h, Tag: tag, Sync: SyncSynced}
}

func TestHappyPath(t *testing.T) {
	ctl, store, sink, clock := newTestController(t)

	runID := driveToDeploy(t, ctl, clock, []string{"api", "web"})
	require.True(t, sink.has("merge:"+runID))
	require.True(t, sink.has("build:"+runID))
	require.True(t, sink.has("gitops:"+runID))
	require.True(t, sink.has("deploy:"+runID))

	clock.Advance(30 * time.Second)
	require.NoError(t, ctl.HandleEvent(health(runID, "api", HealthHealthy, "v2", clock.Now())))
	// One healthy service alone does not finish the deploy.
	require.Equal(t, PhaseRunning, ctl.Phase())
	require.False(t, sink.has("jenkins:"+runID))

	clock.Advance(15 * time.Second)
	require.NoError(t, ctl.HandleEvent(health(runID, "web", HealthHealthy, "v2", clock.Now())))
	require.True(t, sink.has("jenkins:"+runID))

	stepOK(t, ctl, runID, StepJenkins, clock)

	require.Equal(t, PhaseIdle, ctl.Phase())
	r, err := store.Get(runID)
	require.NoError(t, err)
	require.Equal(t, RunSuccess, r.Status)
	require.Equal(t, StepSuccess, r.Steps[StepDeploy])
	require.True(t, sink.has("slack:summary"))

	// Push-to-healthy latencies were recorded for both services.
	require.Len(t, r.PropagationStats, 2)
	for _, p := range r.PropagationStats {
		require.Greater(t, p.PushToHealthySecs, 0.0)
		require.Equal(t, "healthy", p.Status)
	}
	require.Zero(t, r.MTTRSecs)
}

func TestTagMismatchKeepsServiceProgressing(t *testing.T) {
	ctl, store, sink, clock := newTestController(t)

	runID := driveToDeploy(t, ctl, clock, []string{"api"})

	// Reported Healthy, but still running the old image.
	require.NoError(t, ctl.HandleEvent(health(runID, "api", HealthHealthy, "v1", clock.Now())))
	require.Equal(t, PhaseRunning, ctl.Phase())
	require.False(t, sink.has("jenkins:"+runID))

	r, err := store.Get(runID)
	require.NoError(t, err)
	require.Equal(t, HealthProgressing, r.HealthMap["api"])

	// The right tag arrives: deploy completes.
	require.NoError(t, ctl.HandleEvent(health(runID, "api", HealthHealthy, "v2", clock.Now())))
	require.True(t, sink.has("jenkins:"+runID))
}

func TestDeployEvaluationsExhaustedPausesRun(t *testing.T) {
	ctl, store, sink, clock := newTestController(t)

	runID := driveToDeploy(t, ctl, clock, []string{"api"})

	for i := 1; i <= 2; i++ {
		clock.Advance(20 * time.Second)
		require.NoError(t, ctl.HandleEvent(health(runID, "api", HealthDegraded, "v2", clock.Now())))
		require.Equal(t, PhaseRunning, ctl.Phase())
		require.Equal(t, i, ctl.Retries())
	}
	// Each failed evaluation re-issued the sync.
	require.Equal(t, 3, sink.count("deploy:"+runID))

	clock.Advance(20 * time.Second)
	require.NoError(t, ctl.HandleEvent(health(runID, "api", HealthDegraded, "v2", clock.Now())))

	require.Equal(t, PhasePaused, ctl.Phase())
	require.Equal(t, 3, ctl.Retries())
	pause := ctl.Pause()
	require.True(t, pause.Paused)
	require.Equal(t, StepDeploy, pause.Step)
	require.Equal(t, CodeRetryExhausted, pause.Code)
	require.Contains(t, pause.Error, "api")
	require.True(t, sink.has("slack:degraded"))

	r, err := store.Get(runID)
	require.NoError(t, err)
	require.Equal(t, StepFailed, r.Steps[StepDeploy])

	// Retry budget is shared with the automatic evaluations.
	err = ctl.Retry()
	require.ErrorIs(t, err, ErrRetryExhausted)
	require.Equal(t, PhasePaused, ctl.Phase())
}

func TestForceProceedMarksDeployDegraded(t *testing.T) {
	ctl, store, sink, clock := newTestController(t)

	runID := driveToDeploy(t, ctl, clock, []string{"api"})
	for i := 0; i < 3; i++ {
		clock.Advance(20 * time.Second)
		require.NoError(t, ctl.HandleEvent(health(runID, "api", HealthDegraded, "v2", clock.Now())))
	}
	require.Equal(t, PhasePaused, ctl.Phase())

	require.NoError(t, ctl.ForceProceed())
	require.Equal(t, PhaseRunning, ctl.Phase())
	require.True(t, sink.has("jenkins:"+runID))

	stepOK(t, ctl, runID, StepJenkins, clock)

	r, err := store.Get(runID)
	require.NoError(t, err)
	require.Equal(t, StepDegraded, r.Steps[StepDeploy])
	require.Equal(t, RunDegraded, r.Status)
	// Degraded-from-push services carry a negative latency marker.
	require.Len(t, r.PropagationStats, 1)
	require.Negative(t, r.PropagationStats[0].PushToHealthySecs)
	// Degradation began and never recovered: MTTR runs to finalize.
	require.Greater(t, r.MTTRSecs, 0.0)
}

func TestForceProceedSkipsNonDeployStep(t *testing.T) {
	ctl, store, sink, clock := newTestController(t)

	runID, err := ctl.Start([]string{"api"}, false, "")
	require.NoError(t, err)
	require.NoError(t, ctl.HandleEvent(MergeStatusEvent{RunID: runID, At: clock.Now(),
		Status: MergeStatus{Name: "api", Status: "failed", Message: "conflict in values.yaml"}}))
	require.NoError(t, ctl.HandleEvent(StepEvent{RunID: runID, Step: StepMerge,
		Status: StepFailed, At: clock.Now()}))

	require.Equal(t, PhasePaused, ctl.Phase())
	require.Equal(t, CodeCollaboratorFailure, ctl.Pause().Code)
	require.Contains(t, ctl.Pause().Error, "conflict in values.yaml")

	require.NoError(t, ctl.ForceProceed())
	require.True(t, sink.has("build:"+runID))

	r, err := store.Get(runID)
	require.NoError(t, err)
	require.Equal(t, StepSkipped, r.Steps[StepMerge])
	require.Equal(t, StepRunning, r.Steps[StepBuild])
}

func TestRetryReRunsPausedStep(t *testing.T) {
	ctl, store, sink, clock := newTestController(t)

	runID, err := ctl.Start([]string{"api"}, false, "")
	require.NoError(t, err)
	require.NoError(t, ctl.HandleEvent(StepEvent{RunID: runID, Step: StepMerge,
		Status: StepFailed, At: clock.Now()}))
	require.Equal(t, PhasePaused, ctl.Phase())

	require.NoError(t, ctl.Retry())
	require.Equal(t, PhaseRunning, ctl.Phase())
	require.Equal(t, 1, ctl.Retries())
	require.Equal(t, 2, sink.count("merge:"+runID))

	r, err := store.Get(runID)
	require.NoError(t, err)
	require.Equal(t, StepRunning, r.Steps[StepMerge])

	// Retry while running is rejected.
	require.ErrorIs(t, ctl.Retry(), ErrInvalidTransition)
}

func TestRollbackOnlyWhilePausedOnDeploy(t *testing.T) {
	ctl, _, sink, clock := newTestController(t)

	runID, err := ctl.Start([]string{"api"}, false, "")
	require.NoError(t, err)
	require.NoError(t, ctl.HandleEvent(StepEvent{RunID: runID, Step: StepMerge,
		Status: StepFailed, At: clock.Now()}))

	// Paused, but not on deploy.
	require.ErrorIs(t, ctl.Rollback(), ErrInvalidTransition)
	require.NoError(t, ctl.ForceProceed())

	stepOK(t, ctl, runID, StepBuild, clock)
	require.NoError(t, ctl.HandleEvent(GitopsStatusEvent{RunID: runID, At: clock.Now(),
		Status: GitopsStatus{Name: "api", Status: "success", Phase: "pushed", Tag: "v2"}}))
	stepOK(t, ctl, runID, StepGitops, clock)
	for i := 0; i < 3; i++ {
		clock.Advance(20 * time.Second)
		require.NoError(t, ctl.HandleEvent(health(runID, "api", HealthDegraded, "v2", clock.Now())))
	}
	require.Equal(t, PhasePaused, ctl.Phase())

	require.NoError(t, ctl.Rollback())
	require.True(t, sink.has(fmt.Sprintf("rollback:%s:%v", runID, []string{"api"})))
	require.True(t, sink.has("slack:rollback"))
	// The run stays paused until the health stream recovers.
	require.Equal(t, PhasePaused, ctl.Phase())
}

func TestPausedDeployAutoResumesOnRecovery(t *testing.T) {
	ctl, store, sink, clock := newTestController(t)

	runID := driveToDeploy(t, ctl, clock, []string{"api"})
	for i := 0; i < 3; i++ {
		clock.Advance(20 * time.Second)
		require.NoError(t, ctl.HandleEvent(health(runID, "api", HealthDegraded, "v2", clock.Now())))
	}
	require.Equal(t, PhasePaused, ctl.Phase())

	// Still degraded: watch counter ticks, pause holds.
	clock.Advance(time.Minute)
	require.NoError(t, ctl.HandleEvent(health(runID, "api", HealthDegraded, "v2", clock.Now())))
	require.Equal(t, 1, ctl.Pause().WatchCount)
	require.Equal(t, PhasePaused, ctl.Phase())

	// Recovery (e.g. after a rollback) resumes the run.
	clock.Advance(time.Minute)
	require.NoError(t, ctl.HandleEvent(health(runID, "api", HealthHealthy, "v2", clock.Now())))
	require.Equal(t, PhaseRunning, ctl.Phase())
	require.True(t, sink.has("jenkins:"+runID))

	stepOK(t, ctl, runID, StepJenkins, clock)
	r, err := store.Get(runID)
	require.NoError(t, err)
	require.Equal(t, StepSuccess, r.Steps[StepDeploy])
	require.Equal(t, RunSuccess, r.Status)
	// Degradation happened and recovered: MTTR covers the window.
	require.Greater(t, r.MTTRSecs, 0.0)
}

func TestAbortInterruptsRunningStep(t *testing.T) {
	ctl, store, sink, clock := newTestController(t)

	runID, err := ctl.Start([]string{"api"}, false, "carol")
	require.NoError(t, err)
	stepOK(t, ctl, runID, StepMerge, clock)

	require.NoError(t, ctl.Abort())
	require.Equal(t, PhaseIdle, ctl.Phase())
	require.True(t, sink.has("cancel:"+runID+":"+string(StepBuild)))
	require.True(t, sink.has("slack:aborted"))

	r, err := store.Get(runID)
	require.NoError(t, err)
	require.Equal(t, RunFailed, r.Status)
	require.Equal(t, StepInterrupted, r.Steps[StepBuild])
	// Untouched steps stay pending so an abort reads differently from a skip.
	require.Equal(t, StepPending, r.Steps[StepGitops])
	require.Equal(t, StepPending, r.Steps[StepDeploy])

	// Late events from the aborted run are dropped, not applied.
	err = ctl.HandleEvent(StepEvent{RunID: runID, Step: StepBuild, Status: StepSuccess, At: clock.Now()})
	require.ErrorIs(t, err, ErrUnknownRun)
	r2, err := store.Get(runID)
	require.NoError(t, err)
	require.Equal(t, StepInterrupted, r2.Steps[StepBuild])
}

func TestAbortWithoutRunRejected(t *testing.T) {
	ctl, _, _, _ := newTestController(t)
	require.ErrorIs(t, ctl.Abort(), ErrInvalidTransition)
}

func TestStartGuards(t *testing.T) {
	ctl, _, _, _ := newTestController(t)

	_, err := ctl.Start(nil, false, "")
	require.ErrorIs(t, err, ErrEmptySelection)

	_, err = ctl.Start([]string{"api"}, false, "")
	require.NoError(t, err)
	_, err = ctl.Start([]string{"web"}, false, "")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSkipJenkinsFlag(t *testing.T) {
	ctl, store, sink, clock := newTestController(t)

	runID, err := ctl.Start([]string{"api"}, true, "")
	require.NoError(t, err)
	require.NoError(t, ctl.HandleEvent(GitopsStatusEvent{RunID: runID, At: clock.Now(),
		Status: GitopsStatus{Name: "api", Status: "success", Phase: "pushed", Tag: "v2"}}))
	stepOK(t, ctl, runID, StepMerge, clock)
	stepOK(t, ctl, runID, StepBuild, clock)
	stepOK(t, ctl, runID, StepGitops, clock)
	require.NoError(t, ctl.HandleEvent(health(runID, "api", HealthHealthy, "v2", clock.Now())))

	require.False(t, sink.has("jenkins:"+runID))
	require.Equal(t, PhaseIdle, ctl.Phase())

	r, err := store.Get(runID)
	require.NoError(t, err)
	require.Equal(t, StepSkipped, r.Steps[StepJenkins])
	require.Equal(t, RunSuccess, r.Status)
}

func TestHealthEventBeforeDeployIsDropped(t *testing.T) {
	ctl, store, _, clock := newTestController(t)

	runID, err := ctl.Start([]string{"api"}, false, "")
	require.NoError(t, err)

	// Merge is running; a stray health event must not touch the grid.
	require.NoError(t, ctl.HandleEvent(health(runID, "api", HealthDegraded, "v1", clock.Now())))
	r, err := store.Get(runID)
	require.NoError(t, err)
	require.Empty(t, r.HealthMap)
	require.Equal(t, PhaseRunning, ctl.Phase())
}

func TestSelectRunDoesNotRedirectCommands(t *testing.T) {
	ctl, store, sink, clock := newTestController(t)

	// Finish one run.
	first := driveToDeploy(t, ctl, clock, []string{"api"})
	require.NoError(t, ctl.HandleEvent(health(first, "api", HealthHealthy, "v2", clock.Now())))
	stepOK(t, ctl, first, StepJenkins, clock)
	require.Equal(t, PhaseIdle, ctl.Phase())

	// Start a second and view the first.
	second, err := ctl.Start([]string{"web"}, false, "")
	require.NoError(t, err)
	require.NoError(t, ctl.SelectRun(first))
	viewed, err := ctl.Viewed()
	require.NoError(t, err)
	require.Equal(t, first, viewed.ID)
	require.False(t, ctl.IsLive(first))
	require.True(t, ctl.IsLive(second))

	// Operator commands keep acting on the live run.
	require.NoError(t, ctl.HandleEvent(StepEvent{RunID: second, Step: StepMerge,
		Status: StepFailed, At: clock.Now()}))
	require.NoError(t, ctl.Retry())
	require.Equal(t, 2, sink.count("merge:"+second))

	f, err := store.Get(first)
	require.NoError(t, err)
	require.Equal(t, RunSuccess, f.Status)

	require.ErrorIs(t, ctl.SelectRun("r99"), ErrUnknownRun)
}

func TestHardSync(t *testing.T) {
	ctl, _, sink, _ := newTestController(t)
	ctl.HardSync("api")
	require.True(t, sink.has("hardsync:de/api"))
}

func TestProposalLifecycle(t *testing.T) {
	ctl, _, sink, clock := newTestController(t)

	runID, err := ctl.Start([]string{"api"}, false, "")
	require.NoError(t, err)
	require.NoError(t, ctl.HandleEvent(StepEvent{RunID: runID, Step: StepMerge,
		Status: StepFailed, At: clock.Now()}))

	ctl.RegisterProposals([]ProposedAction{
		{ID: "a1", Kind: ActionRetryMerge, Target: "api", Confidence: 90},
		{ID: "a2", Kind: ActionRestartPods, Target: "api", Confidence: 95},
		{ID: "a3", Kind: ActionClearCache, Target: "api", Confidence: 40},
	})

	props := ctl.Proposals()
	require.Len(t, props, 3)

	// High confidence + safe kind auto-executes.
	require.Equal(t, ActionAutoExecuting, props[0].Status)
	require.True(t, sink.has("dispatch:a1"))
	// restart_pods is never safe, regardless of confidence.
	require.Equal(t, ActionProposed, props[1].Status)
	require.False(t, sink.has("dispatch:a2"))
	// Low confidence waits for approval.
	require.Equal(t, ActionProposed, props[2].Status)

	require.NoError(t, ctl.ApproveAction("a3"))
	require.True(t, sink.has("dispatch:a3"))
	require.ErrorIs(t, ctl.ApproveAction("a3"), ErrInvalidTransition)

	require.NoError(t, ctl.SkipAction("a2"))
	require.ErrorIs(t, ctl.SkipAction("a2"), ErrInvalidTransition)

	require.NoError(t, ctl.ResolveAction("a1", true, "synced"))
	require.NoError(t, ctl.ResolveAction("a3", false, "cache locked"))
	props = ctl.Proposals()
	require.Equal(t, ActionDone, props[0].Status)
	require.Equal(t, ActionSkipped, props[1].Status)
	require.Equal(t, ActionFailed, props[2].Status)
	require.Equal(t, "cache locked", props[2].Result)

	// A fresh pause clears the proposal set.
	require.NoError(t, ctl.Retry())
	require.NoError(t, ctl.HandleEvent(StepEvent{RunID: runID, Step: StepMerge,
		Status: StepFailed, At: clock.Now()}))
	require.Empty(t, ctl.Proposals())
}

func TestSettleGraceDefersEvaluation(t *testing.T) {
	store := NewStore()
	sink := &recordSink{}
	clock := newTestClock()
	ctl := NewController(store, sink, Options{
		RetryMax:    3,
		SettleGrace: 30 * time.Second,
		Clock:       clock.Now,
	})

	runID := driveToDeploy(t, ctl, clock, []string{"api"})

	// Settled but inside the grace window: no evaluation yet.
	require.NoError(t, ctl.HandleEvent(health(runID, "api", HealthDegraded, "v2", clock.Now())))
	require.Zero(t, ctl.Retries())

	clock.Advance(10 * time.Second)
	require.NoError(t, ctl.HandleEvent(health(runID, "api", HealthDegraded, "v2", clock.Now())))
	require.Zero(t, ctl.Retries())

	// Grace elapsed: the settled state counts against the budget.
	clock.Advance(25 * time.Second)
	require.NoError(t, ctl.HandleEvent(health(runID, "api", HealthDegraded, "v2", clock.Now())))
	require.Equal(t, 1, ctl.Retries())
	require.Equal(t, 2, sink.count("deploy:"+runID))

	// Progress resets the settle timer.
	require.NoError(t, ctl.HandleEvent(health(runID, "api", HealthProgressing, "v2", clock.Now())))
	clock.Advance(time.Minute)
	require.NoError(t, ctl.HandleEvent(health(runID, "api", HealthDegraded, "v2", clock.Now())))
	require.Equal(t, 1, ctl.Retries())
}

func TestFinalizedRunIsImmutable(t *testing.T) {
	ctl, store, _, clock := newTestController(t)

	runID := driveToDeploy(t, ctl, clock, []string{"api"})
	require.NoError(t, ctl.HandleEvent(health(runID, "api", HealthHealthy, "v2", clock.Now())))
	stepOK(t, ctl, runID, StepJenkins, clock)

	before, err := store.Get(runID)
	require.NoError(t, err)

	err = ctl.HandleEvent(LogLine{RunID: runID, At: clock.Now(), Level: "i", Text: "late"})
	require.ErrorIs(t, err, ErrUnknownRun)
	err = ctl.HandleEvent(health(runID, "api", HealthDegraded, "v2", clock.Now()))
	require.ErrorIs(t, err, ErrUnknownRun)

	after, err := store.Get(runID)
	require.NoError(t, err)
	require.Equal(t, before.Status, after.Status)
	require.Len(t, after.Logs, len(before.Logs))
}
