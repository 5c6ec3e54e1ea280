package tui

import (
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/opsdash/pkg/pipeline"
)

// RunCommand is the wire payload for run-scoped commands.
type RunCommand struct {
	RunID    string   `json:"run_id"`
	Services []string `json:"services,omitempty"`
}

// HardSyncCommand targets a single service outside any run.
type HardSyncCommand struct {
	Market  string `json:"market,omitempty"`
	Service string `json:"service"`
}

// CancelCommand cancels the in-flight step of a run.
type CancelCommand struct {
	RunID string        `json:"run_id"`
	Step  pipeline.Step `json:"step"`
}

// DispatchCommand asks the diagnostics collaborator to execute an
// approved remediation action.
type DispatchCommand struct {
	ActionID string `json:"action_id"`
}

// SlackCommand carries a notification toward the notifier consumer.
type SlackCommand struct {
	Channel string                `json:"channel,omitempty"`
	Payload pipeline.SlackPayload `json:"payload"`
}

// BusSink implements the controller's command sink by publishing
// command envelopes on the bus. Collaborator adapters (or the demo
// simulator) consume them; a publish failure only logs, matching the
// fire-and-forget contract.
type BusSink struct {
	Bus *Bus
}

var _ pipeline.CommandSink = BusSink{}

func (s BusSink) publish(typ string, payload any) {
	if err := s.Bus.Publish(TopicCommands, typ, payload); err != nil {
		log.Warn().Err(err).Str("type", typ).Msg("command publish failed")
	}
}

func (s BusSink) StartMerge(runID string, services []string) {
	s.publish(CmdTypeMergeStart, RunCommand{RunID: runID, Services: services})
}

func (s BusSink) StartBuild(runID string, services []string) {
	s.publish(CmdTypeBuildStart, RunCommand{RunID: runID, Services: services})
}

func (s BusSink) StartGitopsUpdate(runID string, services []string) {
	s.publish(CmdTypeGitopsStart, RunCommand{RunID: runID, Services: services})
}

func (s BusSink) StartDeploySync(runID string, services []string) {
	s.publish(CmdTypeDeploySync, RunCommand{RunID: runID, Services: services})
}

func (s BusSink) TriggerJenkinsQA(runID string, services []string) {
	s.publish(CmdTypeJenkinsTrigger, RunCommand{RunID: runID, Services: services})
}

func (s BusSink) RollbackDeploy(runID string, services []string) {
	s.publish(CmdTypeDeployRollback, RunCommand{RunID: runID, Services: services})
}

func (s BusSink) HardSyncService(market, name string) {
	s.publish(CmdTypeServiceHardSync, HardSyncCommand{Market: market, Service: name})
}

func (s BusSink) CancelStep(runID string, step pipeline.Step) {
	s.publish(CmdTypeStepCancel, CancelCommand{RunID: runID, Step: step})
}

func (s BusSink) DispatchAction(actionID string) {
	s.publish(CmdTypeActionDispatch, DispatchCommand{ActionID: actionID})
}

func (s BusSink) NotifySlack(channel string, payload pipeline.SlackPayload) {
	s.publish(CmdTypeSlackNotify, SlackCommand{Channel: channel, Payload: payload})
}
