package tui

import (
	"github.com/pkg/errors"

	"github.com/go-go-golems/opsdash/pkg/pipeline"
)

// RawLog is the wire payload for unstructured collaborator output; the
// ingest parses it into a structured log line.
type RawLog struct {
	RunID string `json:"run_id"`
	Line  string `json:"line"`
}

// ProposalBatch is the wire payload for diagnostics proposals.
type ProposalBatch struct {
	RunID   string                    `json:"run_id"`
	Actions []pipeline.ProposedAction `json:"actions"`
}

// ActionResult reports the outcome of a dispatched remediation action.
type ActionResult struct {
	ActionID string `json:"action_id"`
	OK       bool   `json:"ok"`
	Result   string `json:"result,omitempty"`
}

// DecodeEvent turns a domain envelope into the typed pipeline event it
// carries. Proposal and action-result envelopes are not pipeline
// events; the ingest handles those separately.
func DecodeEvent(env Envelope) (pipeline.Event, error) {
	switch env.Type {
	case DomainTypeStep:
		var e pipeline.StepEvent
		return e, env.Decode(&e)
	case DomainTypeMergeStatus:
		var e pipeline.MergeStatusEvent
		return e, env.Decode(&e)
	case DomainTypeBuildStatus:
		var e pipeline.BuildStatusEvent
		return e, env.Decode(&e)
	case DomainTypeGitopsStatus:
		var e pipeline.GitopsStatusEvent
		return e, env.Decode(&e)
	case DomainTypeJenkinsJob:
		var e pipeline.JenkinsJobEvent
		return e, env.Decode(&e)
	case DomainTypeHealth:
		var e pipeline.HealthUpdate
		return e, env.Decode(&e)
	case DomainTypeLog:
		var e pipeline.LogLine
		return e, env.Decode(&e)
	case DomainTypeForecast:
		var e pipeline.ForecastAlert
		return e, env.Decode(&e)
	}
	return nil, errors.Errorf("unknown domain event type %q", env.Type)
}

// EventType returns the envelope type tag for a pipeline event.
func EventType(ev pipeline.Event) (string, error) {
	switch ev.(type) {
	case pipeline.StepEvent:
		return DomainTypeStep, nil
	case pipeline.MergeStatusEvent:
		return DomainTypeMergeStatus, nil
	case pipeline.BuildStatusEvent:
		return DomainTypeBuildStatus, nil
	case pipeline.GitopsStatusEvent:
		return DomainTypeGitopsStatus, nil
	case pipeline.JenkinsJobEvent:
		return DomainTypeJenkinsJob, nil
	case pipeline.HealthUpdate:
		return DomainTypeHealth, nil
	case pipeline.LogLine:
		return DomainTypeLog, nil
	case pipeline.ForecastAlert:
		return DomainTypeForecast, nil
	}
	return "", errors.Errorf("unmapped event type %T", ev)
}
