package pipeline

import (
	"time"
)

// MaxLogLines caps a run's log buffer so a chatty upstream cannot grow
// a record without bound.
const MaxLogLines = 500

// StepTiming records when a step started and how long it took.
type StepTiming struct {
	Start    time.Time     `json:"start"`
	Duration time.Duration `json:"duration"`
	Status   StepStatus    `json:"status"`
}

// PropagationStat is one service's image push-to-healthy latency. A
// negative duration means the service never became healthy; Status then
// holds its last observed health.
type PropagationStat struct {
	Service           string  `json:"service"`
	PushToHealthySecs float64 `json:"push_to_healthy_secs"`
	Status            string  `json:"status"`
}

// Run is one pipeline execution. The Store owns every Run; once
// finalized a Run is frozen and safe for concurrent reads.
type Run struct {
	Num         int           `json:"num"`
	ID          string        `json:"id"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	Status      RunStatus     `json:"status"`
	Retries     int           `json:"retries"`
	TriggeredBy string        `json:"triggered_by,omitempty"`
	Services    []string      `json:"services"`

	Steps     map[Step]StepStatus `json:"steps"`
	StepTimes map[Step]StepTiming `json:"step_times"`

	HealthMap     map[string]HealthState  `json:"health_map"`
	HealthDetails map[string]HealthUpdate `json:"health_details,omitempty"`

	MergeStatuses  []MergeStatus   `json:"merge_statuses,omitempty"`
	BuildStatuses  []BuildStatus   `json:"build_statuses,omitempty"`
	GitopsStatuses []GitopsStatus  `json:"gitops_statuses,omitempty"`
	JenkinsJobs    []JenkinsJob    `json:"jenkins_jobs,omitempty"`
	Forecasts      []ForecastAlert `json:"forecasts,omitempty"`

	PropagationStats []PropagationStat `json:"propagation_stats,omitempty"`
	MTTRSecs         float64           `json:"mttr_secs,omitempty"`

	Logs []LogLine `json:"logs,omitempty"`

	frozen bool
}

func newRun(num int, id string, services []string, triggeredBy string, at time.Time) *Run {
	steps := make(map[Step]StepStatus, len(Definitions))
	for _, d := range Definitions {
		steps[d.ID] = StepPending
	}
	return &Run{
		Num:           num,
		ID:            id,
		StartedAt:     at,
		Status:        RunRunning,
		TriggeredBy:   triggeredBy,
		Services:      append([]string{}, services...),
		Steps:         steps,
		StepTimes:     map[Step]StepTiming{},
		HealthMap:     map[string]HealthState{},
		HealthDetails: map[string]HealthUpdate{},
	}
}

// Frozen reports whether the run has been finalized.
func (r *Run) Frozen() bool { return r.frozen }

// CurrentStep returns the step currently running, if any.
func (r *Run) CurrentStep() (Step, bool) {
	for _, id := range Order() {
		if r.Steps[id] == StepRunning {
			return id, true
		}
	}
	return "", false
}

// apply routes one event into the aggregate. Callers hold the store
// lock; a frozen run never reaches here.
func (r *Run) apply(ev Event) error {
	switch e := ev.(type) {
	case StepEvent:
		return r.applyStep(e)
	case MergeStatusEvent:
		if err := r.detailWritable(StepMerge); err != nil {
			return err
		}
		r.MergeStatuses = upsertMerge(r.MergeStatuses, e.Status)
	case BuildStatusEvent:
		if err := r.detailWritable(StepBuild); err != nil {
			return err
		}
		r.BuildStatuses = upsertBuild(r.BuildStatuses, e.Status)
	case GitopsStatusEvent:
		if err := r.detailWritable(StepGitops); err != nil {
			return err
		}
		r.GitopsStatuses = upsertGitops(r.GitopsStatuses, e.Status)
	case JenkinsJobEvent:
		if err := r.detailWritable(StepJenkins); err != nil {
			return err
		}
		r.JenkinsJobs = upsertJenkins(r.JenkinsJobs, e.Job)
	case HealthUpdate:
		r.HealthMap[e.Service] = e.Health
		r.HealthDetails[e.Service] = e
	case ForecastAlert:
		r.Forecasts = upsertForecast(r.Forecasts, e)
	case LogLine:
		r.appendLog(e)
	}
	return nil
}

func (r *Run) applyStep(e StepEvent) error {
	if !Known(e.Step) {
		return &StateError{Code: CodeInvalidTransition, RunID: r.ID, Step: e.Step, Message: "unknown step"}
	}
	from := r.Steps[e.Step]
	if !CanTransition(from, e.Status) {
		return invalidTransition(r.ID, e.Step, from, e.Status)
	}
	if from == e.Status {
		return nil
	}
	r.Steps[e.Step] = e.Status

	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	switch {
	case e.Status == StepRunning:
		r.StepTimes[e.Step] = StepTiming{Start: at, Status: StepRunning}
	case e.Status.Terminal():
		t := r.StepTimes[e.Step]
		if !t.Start.IsZero() {
			t.Duration = at.Sub(t.Start)
		}
		t.Status = e.Status
		r.StepTimes[e.Step] = t
	}
	return nil
}

// detailWritable rejects detail-record updates for a step whose status
// is already terminal: those records are immutable from then on.
func (r *Run) detailWritable(step Step) error {
	if st := r.Steps[step]; st.Terminal() {
		return &StateError{
			Code:    CodeInvalidTransition,
			RunID:   r.ID,
			Step:    step,
			Message: "detail update after step " + string(st),
		}
	}
	return nil
}

func (r *Run) appendLog(l LogLine) {
	if n := len(r.Logs); n > 0 {
		last := &r.Logs[n-1]
		if last.Text == l.Text && last.Step == l.Step && last.Level == l.Level {
			if last.RepeatCount == 0 {
				last.RepeatCount = 1
			}
			last.RepeatCount++
			return
		}
	}
	r.Logs = append(r.Logs, l)
	if len(r.Logs) > MaxLogLines {
		r.Logs = r.Logs[len(r.Logs)-MaxLogLines:]
	}
}

// Snapshot returns a deep copy safe to hand to readers while the run is
// still being mutated. Frozen runs are returned as-is.
func (r *Run) Snapshot() *Run {
	if r.frozen {
		return r
	}
	cp := *r
	cp.Services = append([]string{}, r.Services...)
	cp.Steps = make(map[Step]StepStatus, len(r.Steps))
	for k, v := range r.Steps {
		cp.Steps[k] = v
	}
	cp.StepTimes = make(map[Step]StepTiming, len(r.StepTimes))
	for k, v := range r.StepTimes {
		cp.StepTimes[k] = v
	}
	cp.HealthMap = make(map[string]HealthState, len(r.HealthMap))
	for k, v := range r.HealthMap {
		cp.HealthMap[k] = v
	}
	cp.HealthDetails = make(map[string]HealthUpdate, len(r.HealthDetails))
	for k, v := range r.HealthDetails {
		cp.HealthDetails[k] = v
	}
	cp.MergeStatuses = append([]MergeStatus{}, r.MergeStatuses...)
	cp.BuildStatuses = append([]BuildStatus{}, r.BuildStatuses...)
	cp.GitopsStatuses = append([]GitopsStatus{}, r.GitopsStatuses...)
	cp.JenkinsJobs = append([]JenkinsJob{}, r.JenkinsJobs...)
	cp.Forecasts = append([]ForecastAlert{}, r.Forecasts...)
	cp.PropagationStats = append([]PropagationStat{}, r.PropagationStats...)
	cp.Logs = append([]LogLine{}, r.Logs...)
	return &cp
}

func upsertMerge(list []MergeStatus, s MergeStatus) []MergeStatus {
	for i := range list {
		if list[i].Name == s.Name {
			list[i] = s
			return list
		}
	}
	return append(list, s)
}

func upsertBuild(list []BuildStatus, s BuildStatus) []BuildStatus {
	for i := range list {
		if list[i].Name == s.Name {
			list[i] = s
			return list
		}
	}
	return append(list, s)
}

func upsertGitops(list []GitopsStatus, s GitopsStatus) []GitopsStatus {
	for i := range list {
		if list[i].Name == s.Name {
			list[i] = s
			return list
		}
	}
	return append(list, s)
}

func upsertJenkins(list []JenkinsJob, j JenkinsJob) []JenkinsJob {
	for i := range list {
		if list[i].Name == j.Name {
			list[i] = j
			return list
		}
	}
	return append(list, j)
}

func upsertForecast(list []ForecastAlert, f ForecastAlert) []ForecastAlert {
	for i := range list {
		if list[i].Service == f.Service {
			list[i] = f
			return list
		}
	}
	return append(list, f)
}
