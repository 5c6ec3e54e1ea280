package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Phase is the controller's coarse state. Terminal runs return the
// controller to Idle; their classification lives on the Run record.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseRunning Phase = "running"
	PhasePaused  Phase = "paused"
)

// PauseState describes an operator-visible halt of the live run. Code
// distinguishes a collaborator-reported step failure from an exhausted
// deploy evaluation budget.
type PauseState struct {
	Paused     bool   `json:"paused"`
	Step       Step   `json:"step,omitempty"`
	Code       string `json:"code,omitempty"`
	Error      string `json:"error,omitempty"`
	WatchCount int    `json:"watch_count"`
}

// Options tunes the controller. Zero values get sensible defaults
// except SettleGrace, where zero means "evaluate immediately".
type Options struct {
	RetryMax     int
	SettleGrace  time.Duration
	SkipJenkins  bool
	Market       string
	SlackChannel string
	Clock        func() time.Time

	// OnFinalized is called with the frozen record after a run ends,
	// outside any command path the operator is waiting on.
	OnFinalized func(*Run)
}

// Controller is the state machine for the live run. It is the single
// writer: every transition, operator command and ingested event is
// serialized through its mutex. Readers see snapshots only.
type Controller struct {
	mu    sync.Mutex
	store *Store
	sink  CommandSink
	opts  Options
	now   func() time.Time

	phase       Phase
	liveID      string
	viewedID    string
	services    []string
	skipJenkins bool
	retries     int
	pause       PauseState
	proposals   []ProposedAction

	expectedTags map[string]string
	pushedAt     map[string]time.Time
	healthyAt    map[string]time.Time
	degradedAt   time.Time
	recoveredAt  time.Time
	settledSince time.Time
}

func NewController(store *Store, sink CommandSink, opts Options) *Controller {
	if opts.RetryMax <= 0 {
		opts.RetryMax = 3
	}
	if sink == nil {
		sink = NopSink{}
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Controller{
		store: store,
		sink:  sink,
		opts:  opts,
		now:   now,
		phase: PhaseIdle,
	}
}

// Start creates a new run and kicks off the merge step. Only valid
// from Idle; an empty service selection is rejected at the boundary.
func (c *Controller) Start(services []string, skipJenkins bool, triggeredBy string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseIdle {
		return "", &StateError{Code: CodeInvalidTransition, RunID: c.liveID,
			Message: "a run is already " + string(c.phase)}
	}
	if len(services) == 0 {
		return "", &StateError{Code: CodeEmptySelection, Message: "no services selected"}
	}

	at := c.now()
	r := c.store.NewRun(services, triggeredBy, at)
	c.liveID = r.ID
	c.viewedID = r.ID
	c.services = append([]string{}, services...)
	c.skipJenkins = skipJenkins || c.opts.SkipJenkins
	c.retries = 0
	c.pause = PauseState{}
	c.proposals = nil
	c.expectedTags = map[string]string{}
	c.pushedAt = map[string]time.Time{}
	c.healthyAt = map[string]time.Time{}
	c.degradedAt = time.Time{}
	c.recoveredAt = time.Time{}
	c.settledSince = time.Time{}
	c.phase = PhaseRunning

	c.logLine(StepMerge, "h", fmt.Sprintf("─── Run #%d — %d service(s) ───", r.Num, len(services)))
	c.applyStep(StepMerge, StepRunning)
	c.sink.StartMerge(r.ID, services)
	log.Info().Str("run_id", r.ID).Strs("services", services).
		Bool("skip_jenkins", c.skipJenkins).Msg("pipeline started")
	return r.ID, nil
}

// HandleEvent ingests one upstream event. Events for non-live runs are
// dropped; illegal step transitions are rejected without mutating any
// record. Never panics, never crashes the dashboard.
func (c *Controller) HandleEvent(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e := ev.(type) {
	case HealthUpdate:
		return c.onHealth(e)
	default:
		if err := c.store.Append(ev); err != nil {
			return err
		}
	}

	switch e := ev.(type) {
	case StepEvent:
		if e.Status.Terminal() && c.phase == PhaseRunning {
			c.onStepTerminal(e.Step, e.Status)
		}
	case GitopsStatusEvent:
		if e.Status.Phase == "pushed" && e.Status.Tag != "" {
			at := e.At
			if at.IsZero() {
				at = c.now()
			}
			c.expectedTags[e.Status.Name] = e.Status.Tag
			c.pushedAt[e.Status.Name] = at
		}
	}
	return nil
}

func (c *Controller) onStepTerminal(step Step, status StepStatus) {
	switch status {
	case StepSuccess:
		c.advanceFrom(step)
	case StepFailed:
		c.pauseOn(step, CodeCollaboratorFailure, c.buildStepError(step))
	}
}

// onHealth processes one health-stream event. Health updates only make
// sense while the deploy step is active (or paused on deploy); anything
// earlier is a cross-source ordering artifact and is dropped with an
// anomaly rather than applied to a step that is not running yet.
func (c *Controller) onHealth(e HealthUpdate) error {
	if c.liveID == "" || e.RunID != c.liveID {
		return c.store.Append(e) // counts and rejects as unknown run
	}
	r, err := c.store.Get(c.liveID)
	if err != nil {
		return err
	}
	deployStatus := r.Steps[StepDeploy]
	pausedOnDeploy := c.pause.Paused && c.pause.Step == StepDeploy
	if deployStatus != StepRunning && !pausedOnDeploy {
		log.Warn().Str("run_id", e.RunID).Str("service", e.Service).
			Str("health", string(e.Health)).Msg("health event before deploy is running, dropped")
		return nil
	}

	at := e.At
	if at.IsZero() {
		at = c.now()
	}
	e.Health = ResolveHealth(e.Health, c.expectedTags[e.Service], e.Tag)
	if err := c.store.Append(e); err != nil {
		return err
	}

	if e.Health == HealthHealthy {
		if _, seen := c.healthyAt[e.Service]; !seen {
			c.healthyAt[e.Service] = at
			if pushed, ok := c.pushedAt[e.Service]; ok {
				c.logLine(StepDeploy, "s", fmt.Sprintf("  %s → Healthy [%ds from push]",
					e.Service, int(at.Sub(pushed).Seconds())))
			}
		}
	} else if e.Health != HealthProgressing && c.degradedAt.IsZero() {
		c.degradedAt = at
		c.logLine(StepDeploy, "w", fmt.Sprintf("  degraded detected: %s → %s", e.Service, e.Health))
	}

	hm := r.HealthMap
	hm[e.Service] = e.Health

	if pausedOnDeploy {
		c.pause.WatchCount++
		if c.allHealthy(hm) {
			c.markRecovered(at)
			c.logLine(StepDeploy, "s", "  ✓ all apps healthy — resuming")
			c.clearPause()
			c.overrideStep(StepDeploy, StepSuccess)
			c.phase = PhaseRunning
			c.advanceFrom(StepDeploy)
		}
		return nil
	}

	if c.allHealthy(hm) {
		c.markRecovered(at)
		c.settledSince = time.Time{}
		c.logLine(StepDeploy, "s", fmt.Sprintf("  ✓ all %d apps healthy", len(c.services)))
		c.applyStep(StepDeploy, StepSuccess)
		c.advanceFrom(StepDeploy)
		return nil
	}

	// Settled detection: nothing progressing, not everything healthy.
	// One settled observation that outlives the grace window counts as
	// a failed deploy evaluation against the shared retry budget.
	progressing := 0
	for _, svc := range c.services {
		if hm[svc] == HealthProgressing || hm[svc] == "" {
			progressing++
		}
	}
	if progressing > 0 {
		c.settledSince = time.Time{}
		return nil
	}
	if c.settledSince.IsZero() {
		c.settledSince = at
	}
	if at.Sub(c.settledSince) < c.opts.SettleGrace {
		return nil
	}
	c.settledSince = time.Time{}
	c.retries++
	if c.retries < c.opts.RetryMax {
		c.logLine(StepDeploy, "w", fmt.Sprintf("  ⚠ unhealthy evaluation %d/%d — re-syncing",
			c.retries, c.opts.RetryMax))
		c.sink.StartDeploySync(c.liveID, c.services)
		return nil
	}

	// Retry budget exhausted: fail the deploy step and pause for the
	// operator, even though no collaborator sent an explicit failure.
	degraded := c.degradedList(hm)
	c.logLine(StepDeploy, "e", fmt.Sprintf("  ✕ all %d evaluations exhausted — %d degraded: %s",
		c.opts.RetryMax, len(degraded), strings.Join(degraded, ", ")))
	c.applyStep(StepDeploy, StepFailed)
	c.pauseOn(StepDeploy, CodeRetryExhausted, fmt.Sprintf("%d app(s) not healthy: %s",
		len(degraded), strings.Join(degraded, ", ")))
	c.sink.NotifySlack(c.opts.SlackChannel, c.slackPayload("degraded"))
	return nil
}

// Retry re-runs the paused step. Bounded by the shared retry budget;
// once the cap is hit the operator must force-proceed or abort.
func (c *Controller) Retry() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhasePaused {
		return &StateError{Code: CodeInvalidTransition, RunID: c.liveID,
			Message: "retry while " + string(c.phase)}
	}
	if c.retries >= c.opts.RetryMax {
		return &StateError{Code: CodeRetryExhausted, RunID: c.liveID, Step: c.pause.Step,
			Message: fmt.Sprintf("retry budget %d exhausted", c.opts.RetryMax)}
	}
	c.retries++
	step := c.pause.Step
	c.clearPause()
	c.phase = PhaseRunning
	c.logLine(step, "i", fmt.Sprintf("  ↻ retrying %s (%d/%d)...", Label(step), c.retries, c.opts.RetryMax))
	c.overrideStep(step, StepRunning)
	c.emitCommand(step)
	return nil
}

// ForceProceed skips past the paused step without re-invoking its
// command. A deploy pause leaves the step degraded rather than
// skipped: the services are live, just not healthy.
func (c *Controller) ForceProceed() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhasePaused {
		return &StateError{Code: CodeInvalidTransition, RunID: c.liveID,
			Message: "force-proceed while " + string(c.phase)}
	}
	step := c.pause.Step
	status := StepSkipped
	if step == StepDeploy {
		status = StepDegraded
	}
	c.clearPause()
	c.phase = PhaseRunning
	c.logLine(step, "w", fmt.Sprintf("  ⏩ force proceeding past %s", Label(step)))
	c.overrideStep(step, status)
	c.advanceFrom(step)
	return nil
}

// Rollback asks the deployment collaborator to roll degraded services
// back to their previous image. Only valid while paused on deploy; the
// run stays paused until the health stream reports recovery.
func (c *Controller) Rollback() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhasePaused || c.pause.Step != StepDeploy {
		return &StateError{Code: CodeInvalidTransition, RunID: c.liveID,
			Message: "rollback is only valid while paused on deploy"}
	}
	r, err := c.store.Get(c.liveID)
	if err != nil {
		return err
	}
	degraded := c.degradedList(r.HealthMap)
	c.logLine(StepDeploy, "i", fmt.Sprintf("  ↺ rollback requested — %s", strings.Join(degraded, ", ")))
	c.sink.RollbackDeploy(c.liveID, degraded)
	c.sink.NotifySlack(c.opts.SlackChannel, c.slackPayload("rollback"))
	return nil
}

// Abort finalizes the live run as failed immediately. The in-flight
// step becomes interrupted; untouched steps stay pending so operator
// termination reads differently from a normal skip. Effective even if
// the in-flight command never reports back.
func (c *Controller) Abort() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase == PhaseIdle {
		return &StateError{Code: CodeInvalidTransition, Message: "no live run"}
	}
	r, err := c.store.Get(c.liveID)
	if err != nil {
		return err
	}
	if step, ok := r.CurrentStep(); ok {
		c.applyStep(step, StepInterrupted)
		c.sink.CancelStep(c.liveID, step)
		c.logLine(step, "e", "  ✘ pipeline aborted")
	} else {
		c.logLine(c.pause.Step, "e", "  ✘ pipeline aborted")
	}
	c.sink.NotifySlack(c.opts.SlackChannel, c.slackPayload("aborted"))
	c.finalizeLive(true)
	return nil
}

// SelectRun switches the viewed run without touching the live state
// machine. Operator commands keep acting on the live run only.
func (c *Controller) SelectRun(runID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.store.Get(runID); err != nil {
		return err
	}
	c.viewedID = runID
	return nil
}

// HardSync issues an out-of-band resync for a single service,
// independent of any run.
func (c *Controller) HardSync(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink.HardSyncService(c.opts.Market, name)
}

// Viewed returns a snapshot of the currently viewed run.
func (c *Controller) Viewed() (*Run, error) {
	c.mu.Lock()
	id := c.viewedID
	c.mu.Unlock()
	if id == "" {
		return nil, unknownRun("")
	}
	return c.store.Get(id)
}

// IsLive reports whether runID is the run the controller is driving.
func (c *Controller) IsLive(runID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liveID != "" && runID == c.liveID
}

func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Controller) Pause() PauseState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pause
}

func (c *Controller) Retries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retries
}

// ── internals (callers hold c.mu) ──

func (c *Controller) advanceFrom(step Step) {
	next, ok := Next(step)
	for ok && next == StepJenkins && c.skipJenkins {
		c.logLine(next, "w", "  ⏭ QA jobs skipped by flag")
		c.overrideStep(next, StepSkipped)
		next, ok = Next(next)
	}
	if !ok {
		c.finalizeLive(false)
		return
	}
	c.logLine(next, "h", fmt.Sprintf("─── %s ───", Label(next)))
	c.applyStep(next, StepRunning)
	c.emitCommand(next)
}

func (c *Controller) emitCommand(step Step) {
	switch step {
	case StepMerge:
		c.sink.StartMerge(c.liveID, c.services)
	case StepBuild:
		c.sink.StartBuild(c.liveID, c.services)
	case StepGitops:
		c.sink.StartGitopsUpdate(c.liveID, c.services)
	case StepDeploy:
		// Every selected service starts Progressing; the watch stream
		// takes it from there.
		c.settledSince = time.Time{}
		for _, svc := range c.services {
			_ = c.store.Append(HealthUpdate{
				RunID: c.liveID, At: c.now(), Service: svc,
				Health: HealthProgressing, Sync: SyncOutOfSync,
			})
		}
		c.sink.StartDeploySync(c.liveID, c.services)
	case StepJenkins:
		c.sink.TriggerJenkinsQA(c.liveID, c.services)
	}
}

func (c *Controller) pauseOn(step Step, code, errText string) {
	c.phase = PhasePaused
	c.pause = PauseState{
		Paused: true,
		Step:   step,
		Code:   code,
		Error: fmt.Sprintf("%s failed: %s\nRetry to re-run the step, Force Proceed to skip it, or Abort.",
			Label(step), errText),
	}
	c.proposals = nil
	c.logLine(step, "w", fmt.Sprintf("  ⏸ pipeline paused — %s failed, waiting for operator", Label(step)))
	log.Warn().Str("run_id", c.liveID).Str("step", string(step)).Str("code", code).
		Str("error", errText).Msg("pipeline paused")
}

func (c *Controller) clearPause() {
	c.pause = PauseState{}
}

func (c *Controller) finalizeLive(aborted bool) {
	runID := c.liveID
	r, err := c.store.Get(runID)
	if err != nil {
		return
	}

	var outcome RunStatus
	switch {
	case aborted:
		outcome = RunFailed
	case c.allStepsSuccessOrSkipped(r):
		outcome = RunSuccess
	default:
		outcome = RunDegraded
	}

	at := c.now()
	c.emitSummaryLogs(r, outcome, at)

	prop := c.propagationStats(r.HealthMap)
	mttr := 0.0
	if !c.degradedAt.IsZero() {
		end := c.recoveredAt
		if end.IsZero() {
			end = at
		}
		mttr = end.Sub(c.degradedAt).Seconds()
	}
	_ = c.store.RecordStats(runID, prop, mttr, c.retries)
	if err := c.store.Finalize(runID, outcome, at); err != nil {
		log.Error().Err(err).Str("run_id", runID).Msg("finalize failed")
	}
	if !aborted {
		c.sink.NotifySlack(c.opts.SlackChannel, c.slackPayload("summary"))
	}
	if c.opts.OnFinalized != nil {
		if final, err := c.store.Get(runID); err == nil {
			go c.opts.OnFinalized(final)
		}
	}

	c.phase = PhaseIdle
	c.liveID = ""
	c.clearPause()
}

func (c *Controller) emitSummaryLogs(r *Run, outcome RunStatus, at time.Time) {
	last := StepJenkins
	for i := len(Definitions) - 1; i >= 0; i-- {
		if r.Steps[Definitions[i].ID].Terminal() {
			last = Definitions[i].ID
			break
		}
	}
	c.logLine(last, "h", fmt.Sprintf("─── Run #%d Complete — %s (%s) ───",
		r.Num, strings.ToUpper(string(outcome)), at.Sub(r.StartedAt).Round(time.Second)))
	for _, d := range Definitions {
		t, ok := r.StepTimes[d.ID]
		if !ok {
			continue
		}
		icon, kind := "—", "i"
		switch r.Steps[d.ID] {
		case StepSuccess:
			icon, kind = "✓", "s"
		case StepFailed, StepInterrupted:
			icon, kind = "✕", "e"
		case StepSkipped, StepDegraded:
			icon, kind = "⏭", "w"
		}
		c.logLine(last, kind, fmt.Sprintf("  %s %-30s %8s", icon, d.Label, t.Duration.Round(time.Second)))
	}
}

func (c *Controller) propagationStats(hm map[string]HealthState) []PropagationStat {
	var out []PropagationStat
	for _, svc := range c.services {
		pushed, ok := c.pushedAt[svc]
		if !ok {
			continue
		}
		if healthy, ok := c.healthyAt[svc]; ok {
			out = append(out, PropagationStat{
				Service:           svc,
				PushToHealthySecs: healthy.Sub(pushed).Seconds(),
				Status:            "healthy",
			})
			continue
		}
		st := hm[svc]
		if st == "" {
			st = HealthUnknown
		}
		out = append(out, PropagationStat{Service: svc, PushToHealthySecs: -1, Status: string(st)})
	}
	return out
}

func (c *Controller) allStepsSuccessOrSkipped(r *Run) bool {
	for _, d := range Definitions {
		switch r.Steps[d.ID] {
		case StepSuccess, StepSkipped:
		default:
			return false
		}
	}
	return true
}

func (c *Controller) allHealthy(hm map[string]HealthState) bool {
	for _, svc := range c.services {
		if hm[svc] != HealthHealthy {
			return false
		}
	}
	return true
}

func (c *Controller) markRecovered(at time.Time) {
	if !c.degradedAt.IsZero() && c.recoveredAt.IsZero() {
		c.recoveredAt = at
	}
}

func (c *Controller) degradedList(hm map[string]HealthState) []string {
	var out []string
	for _, svc := range c.services {
		if hm[svc] != HealthHealthy {
			out = append(out, svc)
		}
	}
	sort.Strings(out)
	return out
}

func (c *Controller) buildStepError(step Step) string {
	r, err := c.store.Get(c.liveID)
	if err != nil {
		return "step failed"
	}
	var msgs []string
	switch step {
	case StepMerge:
		for _, m := range r.MergeStatuses {
			if m.Status == "failed" {
				msgs = append(msgs, m.Name+": "+orUnknown(m.Message))
			}
		}
	case StepBuild:
		for _, b := range r.BuildStatuses {
			if b.Status == "failed" {
				msgs = append(msgs, b.Name+": "+orUnknown(b.Message))
			}
		}
	case StepGitops:
		for _, g := range r.GitopsStatuses {
			if g.Status == "failed" {
				msgs = append(msgs, g.Name+": "+orUnknown(g.Message))
			}
		}
	case StepDeploy:
		degraded := c.degradedList(r.HealthMap)
		if len(degraded) > 0 {
			return fmt.Sprintf("%d app(s) not healthy: %s", len(degraded), strings.Join(degraded, ", "))
		}
		return "deploy health check failed"
	case StepJenkins:
		for _, j := range r.JenkinsJobs {
			if j.Status == "failed" {
				msgs = append(msgs, j.Name)
			}
		}
		if len(msgs) > 0 {
			return "job(s) failed: " + strings.Join(msgs, ", ")
		}
		return "jenkins job error"
	}
	if len(msgs) > 0 {
		return strings.Join(msgs, "; ")
	}
	return "step failed"
}

func (c *Controller) slackPayload(kind string) SlackPayload {
	p := SlackPayload{Kind: kind, RunID: c.liveID, Services: append([]string{}, c.services...),
		Retries: c.retries, PauseError: c.pause.Error}
	if r, err := c.store.Get(c.liveID); err == nil {
		p.RunNum = r.Num
		p.Status = r.Status
		p.TriggeredBy = r.TriggeredBy
		p.HealthMap = r.HealthMap
		p.Duration = c.now().Sub(r.StartedAt).Round(time.Second).String()
	}
	return p
}

func (c *Controller) applyStep(step Step, status StepStatus) {
	if err := c.store.Append(StepEvent{RunID: c.liveID, Step: step, Status: status, At: c.now()}); err != nil {
		log.Warn().Err(err).Str("step", string(step)).Msg("step transition rejected")
	}
}

func (c *Controller) overrideStep(step Step, status StepStatus) {
	if err := c.store.OverrideStep(c.liveID, step, status, c.now()); err != nil {
		log.Warn().Err(err).Str("step", string(step)).Msg("step override rejected")
	}
}

func (c *Controller) logLine(step Step, level, text string) {
	_ = c.store.Append(LogLine{RunID: c.liveID, Step: step, At: c.now(), Level: level, Text: text})
}

func orUnknown(msg string) string {
	if msg == "" {
		return "unknown error"
	}
	return msg
}
