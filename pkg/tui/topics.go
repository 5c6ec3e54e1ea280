package tui

const (
	// Collaborators publish pipeline events here.
	TopicPipelineEvents = "opsdash.pipeline.events"
	// The dashboard publishes outbound commands here.
	TopicCommands = "opsdash.pipeline.commands"

	TopicUIMessages = "opsdash.ui.msgs"
	TopicUIActions  = "opsdash.ui.actions"
)

// Domain event envelope types carried on TopicPipelineEvents.
const (
	DomainTypeStep         = "pipeline.step"
	DomainTypeMergeStatus  = "pipeline.merge.status"
	DomainTypeBuildStatus  = "pipeline.build.status"
	DomainTypeGitopsStatus = "pipeline.gitops.status"
	DomainTypeJenkinsJob   = "pipeline.jenkins.job"
	DomainTypeHealth       = "pipeline.health"
	DomainTypeLog          = "pipeline.log"
	DomainTypeLogRaw       = "pipeline.log.raw"
	DomainTypeForecast     = "pipeline.forecast"
	DomainTypeProposals    = "pipeline.proposals"
	DomainTypeActionResult = "pipeline.action.result"
)

// Command envelope types carried on TopicCommands.
const (
	CmdTypeMergeStart      = "cmd.merge.start"
	CmdTypeBuildStart      = "cmd.build.start"
	CmdTypeGitopsStart     = "cmd.gitops.start"
	CmdTypeDeploySync      = "cmd.deploy.sync"
	CmdTypeJenkinsTrigger  = "cmd.jenkins.trigger"
	CmdTypeDeployRollback  = "cmd.deploy.rollback"
	CmdTypeServiceHardSync = "cmd.service.hardsync"
	CmdTypeStepCancel      = "cmd.step.cancel"
	CmdTypeActionDispatch  = "cmd.action.dispatch"
	CmdTypeSlackNotify     = "cmd.slack.notify"
)

// UI envelope types carried on TopicUIMessages.
const (
	UITypeRunSnapshot   = "tui.run.snapshot"
	UITypeRunsList      = "tui.runs.list"
	UITypeEventAppend   = "tui.event.append"
	UITypeActionRequest = "tui.action.request"
)
