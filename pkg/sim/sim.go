// Package sim plays the external collaborators for demo sessions. It
// consumes the dashboard's command topic and answers with plausible
// event sequences on the event topic, so the TUI can be exercised
// without a git remote, a CI server or a cluster.
package sim

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/opsdash/pkg/pipeline"
	"github.com/go-go-golems/opsdash/pkg/tui"
)

// Options tunes the simulated collaborators.
type Options struct {
	// StepDelay is the base latency between emitted events.
	StepDelay time.Duration
	// Degraded makes the deploy step misbehave: one service stays
	// degraded through the automatic retry budget so the pause,
	// proposal and recovery flows can be demonstrated.
	Degraded bool
	// Seed fixes the jitter source. Zero seeds from the clock.
	Seed int64
}

type stepKey struct {
	runID string
	step  pipeline.Step
}

type stepHandle struct {
	cancel context.CancelFunc
}

// Simulator is the demo stand-in for every collaborator at once.
type Simulator struct {
	bus  *tui.Bus
	ctx  context.Context
	opts Options

	mu        sync.Mutex
	rng       *rand.Rand
	running   map[stepKey]*stepHandle
	syncCount map[string]int
}

func Register(ctx context.Context, bus *tui.Bus, opts Options) *Simulator {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.StepDelay <= 0 {
		opts.StepDelay = 350 * time.Millisecond
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := &Simulator{
		bus:       bus,
		ctx:       ctx,
		opts:      opts,
		rng:       rand.New(rand.NewSource(seed)),
		running:   map[stepKey]*stepHandle{},
		syncCount: map[string]int{},
	}

	bus.AddConsumer("opsdash-sim", tui.TopicCommands, func(env tui.Envelope) error {
		s.dispatch(env)
		return nil
	})
	return s
}

func (s *Simulator) dispatch(env tui.Envelope) {
	switch env.Type {
	case tui.CmdTypeMergeStart:
		var cmd tui.RunCommand
		if decode(env, &cmd) {
			s.spawn(cmd.RunID, pipeline.StepMerge, func(ctx context.Context) { s.runMerge(ctx, cmd) })
		}
	case tui.CmdTypeBuildStart:
		var cmd tui.RunCommand
		if decode(env, &cmd) {
			s.spawn(cmd.RunID, pipeline.StepBuild, func(ctx context.Context) { s.runBuild(ctx, cmd) })
		}
	case tui.CmdTypeGitopsStart:
		var cmd tui.RunCommand
		if decode(env, &cmd) {
			s.spawn(cmd.RunID, pipeline.StepGitops, func(ctx context.Context) { s.runGitops(ctx, cmd) })
		}
	case tui.CmdTypeDeploySync:
		var cmd tui.RunCommand
		if decode(env, &cmd) {
			s.spawn(cmd.RunID, pipeline.StepDeploy, func(ctx context.Context) { s.runDeploy(ctx, cmd) })
		}
	case tui.CmdTypeJenkinsTrigger:
		var cmd tui.RunCommand
		if decode(env, &cmd) {
			s.spawn(cmd.RunID, pipeline.StepJenkins, func(ctx context.Context) { s.runJenkins(ctx, cmd) })
		}
	case tui.CmdTypeDeployRollback:
		var cmd tui.RunCommand
		if decode(env, &cmd) {
			go s.runRollback(s.ctx, cmd)
		}
	case tui.CmdTypeServiceHardSync:
		var cmd tui.HardSyncCommand
		if decode(env, &cmd) {
			log.Info().Str("service", cmd.Service).Str("market", cmd.Market).Msg("sim: hard sync")
		}
	case tui.CmdTypeStepCancel:
		var cmd tui.CancelCommand
		if decode(env, &cmd) {
			s.cancel(cmd.RunID, cmd.Step)
		}
	case tui.CmdTypeActionDispatch:
		var cmd tui.DispatchCommand
		if decode(env, &cmd) {
			go s.runAction(s.ctx, cmd.ActionID)
		}
	}
}

func decode(env tui.Envelope, dst any) bool {
	if err := env.Decode(dst); err != nil {
		log.Warn().Err(err).Msg("sim: bad command payload")
		return false
	}
	return true
}

// spawn runs one step sequence in its own goroutine, replacing any
// sequence already running for the same run and step. The replace case
// is the automatic deploy re-sync.
func (s *Simulator) spawn(runID string, step pipeline.Step, fn func(context.Context)) {
	key := stepKey{runID: runID, step: step}
	ctx, cancel := context.WithCancel(s.ctx)
	h := &stepHandle{cancel: cancel}

	s.mu.Lock()
	if prev := s.running[key]; prev != nil {
		prev.cancel()
	}
	s.running[key] = h
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			if s.running[key] == h {
				delete(s.running, key)
			}
			s.mu.Unlock()
			cancel()
		}()
		fn(ctx)
	}()
}

func (s *Simulator) cancel(runID string, step pipeline.Step) {
	key := stepKey{runID: runID, step: step}
	s.mu.Lock()
	h := s.running[key]
	delete(s.running, key)
	s.mu.Unlock()
	if h != nil {
		h.cancel()
	}
}

func (s *Simulator) sleep(ctx context.Context) bool {
	jitter := time.Duration(s.jitterMs()) * time.Millisecond
	select {
	case <-ctx.Done():
		return false
	case <-time.After(s.opts.StepDelay + jitter):
		return true
	}
}

func (s *Simulator) jitterMs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(200)
}

func (s *Simulator) publish(typ string, payload any) {
	if err := s.bus.Publish(tui.TopicPipelineEvents, typ, payload); err != nil {
		log.Warn().Err(err).Str("type", typ).Msg("sim: publish failed")
	}
}

func (s *Simulator) logf(runID string, line string, args ...any) {
	s.publish(tui.DomainTypeLogRaw, tui.RawLog{RunID: runID, Line: fmt.Sprintf(line, args...)})
}

func (s *Simulator) stepDone(runID string, step pipeline.Step, status pipeline.StepStatus) {
	s.publish(tui.DomainTypeStep, pipeline.StepEvent{
		RunID: runID, Step: step, Status: status, At: time.Now(),
	})
}

func (s *Simulator) runMerge(ctx context.Context, cmd tui.RunCommand) {
	for i, svc := range cmd.Services {
		s.publish(tui.DomainTypeMergeStatus, pipeline.MergeStatusEvent{
			RunID: cmd.RunID, At: time.Now(),
			Status: pipeline.MergeStatus{Name: svc, Status: "running", Branch: "pre-release"},
		})
		if !s.sleep(ctx) {
			return
		}
		status, msg := "success", "merged master into pre-release"
		if i == 0 {
			status, msg = "no-op", "already up to date"
		}
		sha := fmt.Sprintf("%08x", s.jitterMs()*104729+i)
		s.publish(tui.DomainTypeMergeStatus, pipeline.MergeStatusEvent{
			RunID: cmd.RunID, At: time.Now(),
			Status: pipeline.MergeStatus{Name: svc, Status: status, Branch: "pre-release", SHA: sha, Message: msg},
		})
		s.logf(cmd.RunID, "[merge] s %s: %s (%s)", svc, msg, sha)
	}
	s.stepDone(cmd.RunID, pipeline.StepMerge, pipeline.StepSuccess)
}

func (s *Simulator) runBuild(ctx context.Context, cmd tui.RunCommand) {
	for _, svc := range cmd.Services {
		s.publish(tui.DomainTypeBuildStatus, pipeline.BuildStatusEvent{
			RunID: cmd.RunID, At: time.Now(),
			Status: pipeline.BuildStatus{Name: svc, Status: "running", Phase: "checking"},
		})
		if !s.sleep(ctx) {
			return
		}
		s.publish(tui.DomainTypeBuildStatus, pipeline.BuildStatusEvent{
			RunID: cmd.RunID, At: time.Now(),
			Status: pipeline.BuildStatus{
				Name: svc, Status: "success", Phase: "exists",
				Tag: s.tagFor(cmd.RunID),
				Stages: []pipeline.Stage{
					{Name: "registry check", Status: "success", DurationMs: 412},
				},
			},
		})
		s.logf(cmd.RunID, "[build] s %s: image present in registry", svc)
	}
	s.stepDone(cmd.RunID, pipeline.StepBuild, pipeline.StepSuccess)
}

func (s *Simulator) runGitops(ctx context.Context, cmd tui.RunCommand) {
	tag := s.tagFor(cmd.RunID)
	for _, svc := range cmd.Services {
		s.publish(tui.DomainTypeGitopsStatus, pipeline.GitopsStatusEvent{
			RunID: cmd.RunID, At: time.Now(),
			Status: pipeline.GitopsStatus{Name: svc, Status: "running", Phase: "updated", Tag: tag, OldTag: "v1"},
		})
		if !s.sleep(ctx) {
			return
		}
		s.publish(tui.DomainTypeGitopsStatus, pipeline.GitopsStatusEvent{
			RunID: cmd.RunID, At: time.Now(),
			Status: pipeline.GitopsStatus{Name: svc, Status: "success", Phase: "pushed", Tag: tag, OldTag: "v1"},
		})
		s.logf(cmd.RunID, "[gitops] s %s: image tag %s pushed", svc, tag)
	}
	s.stepDone(cmd.RunID, pipeline.StepGitops, pipeline.StepSuccess)
}

// runDeploy emits the watch stream. In degraded mode the first service
// keeps reporting Degraded until the operator's retry (the fourth sync
// for that run), which exercises pause, proposals and recovery.
func (s *Simulator) runDeploy(ctx context.Context, cmd tui.RunCommand) {
	s.mu.Lock()
	s.syncCount[cmd.RunID]++
	attempt := s.syncCount[cmd.RunID]
	s.mu.Unlock()

	tag := s.tagFor(cmd.RunID)
	for _, svc := range cmd.Services {
		if !s.sleep(ctx) {
			return
		}
		s.health(cmd.RunID, svc, pipeline.HealthProgressing, tag)
	}

	misbehaving := ""
	if s.opts.Degraded && attempt <= 3 && len(cmd.Services) > 0 {
		misbehaving = cmd.Services[0]
	}

	for _, svc := range cmd.Services {
		if !s.sleep(ctx) {
			return
		}
		if svc == misbehaving {
			s.health(cmd.RunID, svc, pipeline.HealthDegraded, tag)
			s.logf(cmd.RunID, "[deploy] e %s: pods crash-looping on %s", svc, tag)
			continue
		}
		s.health(cmd.RunID, svc, pipeline.HealthHealthy, tag)
	}

	if misbehaving != "" && attempt == 3 {
		// Third strike pauses the run; offer remediations.
		s.publish(tui.DomainTypeProposals, tui.ProposalBatch{
			RunID: cmd.RunID,
			Actions: []pipeline.ProposedAction{
				{ID: fmt.Sprintf("%s-hs-%d", cmd.RunID, attempt), Kind: pipeline.ActionHardSync,
					Target: misbehaving, Confidence: 85, Reason: "sync drift detected"},
				{ID: fmt.Sprintf("%s-rp-%d", cmd.RunID, attempt), Kind: pipeline.ActionRestartPods,
					Target: misbehaving, Confidence: 90, Reason: "crash loop, restart may clear state"},
			},
		})
	}
}

func (s *Simulator) runJenkins(ctx context.Context, cmd tui.RunCommand) {
	jobs := []string{"smoke-tests", "integration-tests"}
	for i, job := range jobs {
		s.publish(tui.DomainTypeJenkinsJob, pipeline.JenkinsJobEvent{
			RunID: cmd.RunID, At: time.Now(),
			Job: pipeline.JenkinsJob{Name: job, Status: "running", Phase: "queued", BuildNum: 100 + i},
		})
		if !s.sleep(ctx) {
			return
		}
		s.publish(tui.DomainTypeJenkinsJob, pipeline.JenkinsJobEvent{
			RunID: cmd.RunID, At: time.Now(),
			Job: pipeline.JenkinsJob{
				Name: job, Status: "success", Phase: "executing", BuildNum: 100 + i,
				ExecDuration: int64(2000 + 500*i),
				Stages: []pipeline.Stage{
					{Name: "checkout", Status: "success", DurationMs: 300},
					{Name: "test", Status: "success", DurationMs: int64(1500 + 400*i)},
				},
			},
		})
		s.logf(cmd.RunID, "[qa] s %s #%d passed", job, 100+i)
	}
	s.stepDone(cmd.RunID, pipeline.StepJenkins, pipeline.StepSuccess)
}

func (s *Simulator) runRollback(ctx context.Context, cmd tui.RunCommand) {
	for _, svc := range cmd.Services {
		if !s.sleep(ctx) {
			return
		}
		s.logf(cmd.RunID, "[deploy] w %s: rolled back to v1", svc)
		s.health(cmd.RunID, svc, pipeline.HealthHealthy, "v1")
	}
}

// runAction acknowledges a dispatched remediation, then lets the next
// deploy attempt succeed by bumping the sync counter past the
// misbehaving window.
func (s *Simulator) runAction(ctx context.Context, actionID string) {
	if !s.sleep(ctx) {
		return
	}
	s.mu.Lock()
	for runID := range s.syncCount {
		if s.syncCount[runID] <= 3 {
			s.syncCount[runID] = 3
		}
	}
	s.mu.Unlock()
	s.publish(tui.DomainTypeActionResult, tui.ActionResult{
		ActionID: actionID, OK: true, Result: "completed",
	})
}

func (s *Simulator) health(runID, svc string, h pipeline.HealthState, tag string) {
	hpa := &pipeline.HPAStatus{Current: 2, Max: 6, Desired: 2}
	sync := pipeline.SyncSynced
	if h == pipeline.HealthProgressing {
		sync = pipeline.SyncOutOfSync
	}
	s.publish(tui.DomainTypeHealth, pipeline.HealthUpdate{
		RunID: runID, At: time.Now(), Service: svc,
		Health: h, Sync: sync, Tag: tag, HPA: hpa,
	})
}

// tagFor derives a stable fake image tag from the run id so every step
// of one run agrees on it.
func (s *Simulator) tagFor(runID string) string {
	return "v2-" + runID
}
