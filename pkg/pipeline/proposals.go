package pipeline

// ActionKind is a remediation action the diagnostics collaborator may
// propose after a failure.
type ActionKind string

const (
	ActionHardSync      ActionKind = "hard_sync"
	ActionRestartPods   ActionKind = "restart_pods"
	ActionRetryMerge    ActionKind = "retry_merge"
	ActionRetryBuild    ActionKind = "retry_build"
	ActionRollbackImage ActionKind = "rollback_image"
	ActionClearCache    ActionKind = "clear_cache"
)

// ActionStatus is the lifecycle state of a proposed action.
type ActionStatus string

const (
	ActionProposed      ActionStatus = "proposed"
	ActionExecuting     ActionStatus = "executing"
	ActionAutoExecuting ActionStatus = "auto_executing"
	ActionDone          ActionStatus = "done"
	ActionFailed        ActionStatus = "failed"
	ActionSkipped       ActionStatus = "skipped"
)

// AutoExecuteConfidence is the confidence threshold at or above which a
// safe action is dispatched without waiting for operator approval.
const AutoExecuteConfidence = 80

// autoExecutable lists the action kinds safe to run unattended. They
// are idempotent or reversible; restart_pods is deliberately absent.
var autoExecutable = map[ActionKind]bool{
	ActionHardSync:      true,
	ActionRetryMerge:    true,
	ActionRetryBuild:    true,
	ActionClearCache:    true,
	ActionRollbackImage: true,
}

// ProposedAction is one remediation proposal tracked through its
// lifecycle. The decision logic lives in the external diagnostics
// collaborator; the controller only tracks state.
type ProposedAction struct {
	ID         string       `json:"id"`
	Kind       ActionKind   `json:"kind"`
	Target     string       `json:"target"`
	Reason     string       `json:"reason"`
	Confidence int          `json:"confidence"`
	Status     ActionStatus `json:"status"`
	Result     string       `json:"result,omitempty"`
}

// RegisterProposals adds new proposals for the current pause. Additive:
// proposals from the same pause accumulate; a new pause event clears
// the set. High-confidence safe actions are dispatched immediately.
func (c *Controller) RegisterProposals(list []ProposedAction) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range list {
		if p.Status == "" {
			p.Status = ActionProposed
		}
		if p.Status == ActionProposed &&
			p.Confidence >= AutoExecuteConfidence && autoExecutable[p.Kind] {
			p.Status = ActionAutoExecuting
			c.sink.DispatchAction(p.ID)
		}
		c.proposals = append(c.proposals, p)
	}
}

// ApproveAction dispatches a proposed action. Only valid while the
// action is still proposed.
func (c *Controller) ApproveAction(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.findProposal(id)
	if p == nil {
		return &StateError{Code: CodeUnknownRun, Message: "no such action " + id}
	}
	if p.Status != ActionProposed {
		return &StateError{Code: CodeInvalidTransition,
			Message: "approve on action in state " + string(p.Status)}
	}
	p.Status = ActionExecuting
	c.sink.DispatchAction(id)
	return nil
}

// SkipAction marks a proposed action skipped. Terminal.
func (c *Controller) SkipAction(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.findProposal(id)
	if p == nil {
		return &StateError{Code: CodeUnknownRun, Message: "no such action " + id}
	}
	if p.Status != ActionProposed {
		return &StateError{Code: CodeInvalidTransition,
			Message: "skip on action in state " + string(p.Status)}
	}
	p.Status = ActionSkipped
	return nil
}

// ResolveAction records the outcome of an executing action, reported
// back by the collaborator that ran it.
func (c *Controller) ResolveAction(id string, ok bool, result string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.findProposal(id)
	if p == nil {
		return &StateError{Code: CodeUnknownRun, Message: "no such action " + id}
	}
	if p.Status != ActionExecuting && p.Status != ActionAutoExecuting {
		return &StateError{Code: CodeInvalidTransition,
			Message: "resolve on action in state " + string(p.Status)}
	}
	if ok {
		p.Status = ActionDone
	} else {
		p.Status = ActionFailed
	}
	p.Result = result
	return nil
}

// Proposals returns a copy of the current proposal set.
func (c *Controller) Proposals() []ProposedAction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ProposedAction{}, c.proposals...)
}

func (c *Controller) findProposal(id string) *ProposedAction {
	for i := range c.proposals {
		if c.proposals[i].ID == id {
			return &c.proposals[i]
		}
	}
	return nil
}
