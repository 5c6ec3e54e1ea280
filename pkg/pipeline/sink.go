package pipeline

// SlackPayload is the notification content handed to the slack command
// sink. Formatting (blocks, mentions, roster lookup) happens in the
// notifier, not here.
type SlackPayload struct {
	Kind        string                 `json:"kind"` // summary|degraded|aborted|rollback
	RunID       string                 `json:"run_id"`
	RunNum      int                    `json:"run_num"`
	Status      RunStatus              `json:"status,omitempty"`
	Services    []string               `json:"services,omitempty"`
	HealthMap   map[string]HealthState `json:"health_map,omitempty"`
	PauseError  string                 `json:"pause_error,omitempty"`
	TriggeredBy string                 `json:"triggered_by,omitempty"`
	Retries     int                    `json:"retries,omitempty"`
	Duration    string                 `json:"duration,omitempty"`
}

// CommandSink receives the commands the controller emits toward the
// external collaborators. Every call is fire-and-forget: the sink must
// not block, and its results come back later as events. A collaborator
// failure is never returned here; it surfaces as a step failed event.
type CommandSink interface {
	StartMerge(runID string, services []string)
	StartBuild(runID string, services []string)
	StartGitopsUpdate(runID string, services []string)
	StartDeploySync(runID string, services []string)
	TriggerJenkinsQA(runID string, services []string)
	RollbackDeploy(runID string, services []string)
	HardSyncService(market, name string)
	CancelStep(runID string, step Step)
	DispatchAction(actionID string)
	NotifySlack(channel string, payload SlackPayload)
}

// NopSink discards every command. Useful as a default and in tests
// that only exercise state transitions.
type NopSink struct{}

var _ CommandSink = NopSink{}

func (NopSink) StartMerge(string, []string)        {}
func (NopSink) StartBuild(string, []string)        {}
func (NopSink) StartGitopsUpdate(string, []string) {}
func (NopSink) StartDeploySync(string, []string)   {}
func (NopSink) TriggerJenkinsQA(string, []string)  {}
func (NopSink) RollbackDeploy(string, []string)    {}
func (NopSink) HardSyncService(string, string)     {}
func (NopSink) CancelStep(string, Step)            {}
func (NopSink) DispatchAction(string)              {}
func (NopSink) NotifySlack(string, SlackPayload)   {}
