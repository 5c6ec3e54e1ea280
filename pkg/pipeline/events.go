package pipeline

import "time"

// Event is implemented by every record the controller ingests from an
// upstream. Events are addressed to a run; anything addressed to a run
// that is not live is dropped.
type Event interface {
	EventRunID() string
}

// StepEvent reports a step status change.
type StepEvent struct {
	RunID  string     `json:"run_id"`
	Step   Step       `json:"step"`
	Status StepStatus `json:"status"`
	At     time.Time  `json:"at"`
}

func (e StepEvent) EventRunID() string { return e.RunID }

// Stage is one named stage inside a CI build or QA job.
type Stage struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// MergeStatus is the per-service detail record for the merge step.
type MergeStatus struct {
	Name        string `json:"name"`
	Status      string `json:"status"` // running|success|no-op|failed
	Branch      string `json:"branch,omitempty"`
	SHA         string `json:"sha,omitempty"`
	MasterSHA   string `json:"master_sha,omitempty"`
	TargetSHA   string `json:"target_sha,omitempty"`
	ECRTag      string `json:"ecr_tag,omitempty"`
	DeployedTag string `json:"deployed_tag,omitempty"`
	Message     string `json:"message,omitempty"`
}

// MergeStatusEvent updates one service's merge detail record.
type MergeStatusEvent struct {
	RunID  string      `json:"run_id"`
	At     time.Time   `json:"at"`
	Status MergeStatus `json:"status"`
}

func (e MergeStatusEvent) EventRunID() string { return e.RunID }

// BuildStatus is the per-service detail record for the build step.
type BuildStatus struct {
	Name       string  `json:"name"`
	Status     string  `json:"status"`
	Phase      string  `json:"phase"` // checking|building|monitoring|exists|jenkins_built|missing_noop
	Tag        string  `json:"tag,omitempty"`
	JenkinsURL string  `json:"jenkins_url,omitempty"`
	Stages     []Stage `json:"stages,omitempty"`
	Message    string  `json:"message,omitempty"`
}

// BuildStatusEvent updates one service's build detail record.
type BuildStatusEvent struct {
	RunID  string      `json:"run_id"`
	At     time.Time   `json:"at"`
	Status BuildStatus `json:"status"`
}

func (e BuildStatusEvent) EventRunID() string { return e.RunID }

// GitopsStatus is the per-service detail record for the gitops step.
type GitopsStatus struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Phase   string `json:"phase"` // unchanged|updated|pushed
	Tag     string `json:"tag,omitempty"`
	OldTag  string `json:"old_tag,omitempty"`
	Message string `json:"message,omitempty"`
}

// GitopsStatusEvent updates one service's gitops detail record.
type GitopsStatusEvent struct {
	RunID  string       `json:"run_id"`
	At     time.Time    `json:"at"`
	Status GitopsStatus `json:"status"`
}

func (e GitopsStatusEvent) EventRunID() string { return e.RunID }

// JenkinsJob is the detail record for one QA job.
type JenkinsJob struct {
	Name          string  `json:"name"`
	Status        string  `json:"status"` // running|in_progress|success|failed
	Phase         string  `json:"phase"`  // queued|executing
	BuildNum      int     `json:"build_num,omitempty"`
	URL           string  `json:"url,omitempty"`
	Stages        []Stage `json:"stages,omitempty"`
	QueueDuration int64   `json:"queue_duration_ms,omitempty"`
	ExecDuration  int64   `json:"exec_duration_ms,omitempty"`
}

// JenkinsJobEvent updates one QA job record.
type JenkinsJobEvent struct {
	RunID string     `json:"run_id"`
	At    time.Time  `json:"at"`
	Job   JenkinsJob `json:"job"`
}

func (e JenkinsJobEvent) EventRunID() string { return e.RunID }

// HPAStatus carries horizontal autoscaler replica counts.
type HPAStatus struct {
	Current int `json:"cur"`
	Max     int `json:"max"`
	Desired int `json:"des"`
}

// HealthUpdate reports one service's health from the deployment
// controller's watch stream.
type HealthUpdate struct {
	RunID   string      `json:"run_id"`
	At      time.Time   `json:"at"`
	Service string      `json:"service"`
	Health  HealthState `json:"health"`
	Sync    SyncState   `json:"sync"`
	Tag     string      `json:"tag,omitempty"`
	HPA     *HPAStatus  `json:"hpa,omitempty"`
}

func (e HealthUpdate) EventRunID() string { return e.RunID }

// LogLine is one timestamped dashboard log entry tagged by step and
// level. Levels: i info, s success, w warn, e error, h header,
// c command, d debug.
type LogLine struct {
	RunID       string    `json:"run_id"`
	Step        Step      `json:"step"`
	At          time.Time `json:"at"`
	Level       string    `json:"level"`
	Text        string    `json:"text"`
	RepeatCount int       `json:"repeat_count,omitempty"`
}

func (e LogLine) EventRunID() string { return e.RunID }

// ForecastAlert is a predictive risk alert for one service.
type ForecastAlert struct {
	RunID        string    `json:"run_id"`
	At           time.Time `json:"at"`
	Service      string    `json:"service"`
	Trend        string    `json:"trend"`      // rising|falling|stable
	RiskLevel    string    `json:"risk_level"` // low|medium|high|critical
	Current      float64   `json:"current"`
	Predicted30m float64   `json:"predicted_30m"`
	Message      string    `json:"message,omitempty"`
}

func (e ForecastAlert) EventRunID() string { return e.RunID }
