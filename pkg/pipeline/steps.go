package pipeline

// Step identifies one stage of the fixed five-step pipeline.
type Step string

const (
	StepMerge   Step = "merge"
	StepBuild   Step = "build"
	StepGitops  Step = "gitops"
	StepDeploy  Step = "deploy"
	StepJenkins Step = "jenkins"
)

// StepDef carries display metadata for a step.
type StepDef struct {
	ID    Step
	Label string
	Desc  string
}

// Definitions lists the steps in execution order.
var Definitions = []StepDef{
	{ID: StepMerge, Label: "Git Merge", Desc: "master -> pre-release branch"},
	{ID: StepBuild, Label: "Image Check", Desc: "registry verify + CI monitor if missing"},
	{ID: StepGitops, Label: "Staging GitOps Update", Desc: "update image tags in YAML repo"},
	{ID: StepDeploy, Label: "Deploy Sync & Notify", Desc: "deployment controller watch + alert"},
	{ID: StepJenkins, Label: "Trigger QA Jobs", Desc: "smoke + integration"},
}

// Order returns the step ids in execution order.
func Order() []Step {
	out := make([]Step, len(Definitions))
	for i, d := range Definitions {
		out[i] = d.ID
	}
	return out
}

// Label returns the display label for a step, falling back to its id.
func Label(s Step) string {
	for _, d := range Definitions {
		if d.ID == s {
			return d.Label
		}
	}
	return string(s)
}

// Next returns the step following s, or false if s is the last step
// or unknown.
func Next(s Step) (Step, bool) {
	order := Order()
	for i, id := range order {
		if id == s && i+1 < len(order) {
			return order[i+1], true
		}
	}
	return "", false
}

// Known reports whether s is one of the five pipeline steps.
func Known(s Step) bool {
	for _, d := range Definitions {
		if d.ID == s {
			return true
		}
	}
	return false
}
