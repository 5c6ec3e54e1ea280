package pipeline

// StepStatus is the status of a single step within a run.
type StepStatus string

const (
	StepPending     StepStatus = "pending"
	StepRunning     StepStatus = "running"
	StepSuccess     StepStatus = "success"
	StepFailed      StepStatus = "failed"
	StepSkipped     StepStatus = "skipped"
	StepDegraded    StepStatus = "degraded"
	StepInterrupted StepStatus = "interrupted"
)

// Terminal reports whether the status is final for its step.
func (s StepStatus) Terminal() bool {
	switch s {
	case StepSuccess, StepFailed, StepSkipped, StepDegraded, StepInterrupted:
		return true
	}
	return false
}

// CanTransition reports whether a step may move from one status to
// another. Legal edges: pending->running, running->any terminal.
// Setting the same status twice is not a transition and is allowed
// so upstreams may repeat themselves without tripping the guard.
func CanTransition(from, to StepStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case StepPending:
		return to == StepRunning
	case StepRunning:
		return to.Terminal()
	}
	return false
}

// RunStatus is the top-level classification of a run.
type RunStatus string

const (
	RunRunning  RunStatus = "running"
	RunSuccess  RunStatus = "success"
	RunDegraded RunStatus = "degraded"
	RunFailed   RunStatus = "failed"
)

// Terminal reports whether the run status is final.
func (s RunStatus) Terminal() bool {
	return s == RunSuccess || s == RunDegraded || s == RunFailed
}

// HealthState is the per-service health reported by the deployment
// controller.
type HealthState string

const (
	HealthHealthy     HealthState = "Healthy"
	HealthDegraded    HealthState = "Degraded"
	HealthProgressing HealthState = "Progressing"
	HealthSuspended   HealthState = "Suspended"
	HealthMissing     HealthState = "Missing"
	HealthUnknown     HealthState = "Unknown"
)

// SyncState is the GitOps sync status of a service.
type SyncState string

const (
	SyncSynced    SyncState = "Synced"
	SyncOutOfSync SyncState = "OutOfSync"
)

// ResolveHealth computes the effective health of a service. A tag
// mismatch overrides whatever the deployment controller reports: until
// the service runs the image the gitops step pushed, it is still
// Progressing no matter how healthy the old image looks. An empty
// reported state resolves to Progressing.
func ResolveHealth(reported HealthState, expectedTag, currentTag string) HealthState {
	if expectedTag != "" && currentTag != "" && expectedTag != currentTag {
		return HealthProgressing
	}
	if reported == "" {
		return HealthProgressing
	}
	return reported
}
