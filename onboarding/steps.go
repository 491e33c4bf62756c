package onboarding

// StepID identifies an onboarding step independently of its position.
type StepID string

const (
	StepWelcome    StepID = "welcome"
	StepFeatures   StepID = "features"
	StepSetup      StepID = "setup"
	StepCompletion StepID = "completion"
)

// Step is one screen of the onboarding flow. Completed is only filled in
// by Flow.Steps.
type Step struct {
	ID          StepID `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Optional    bool   `json:"isOptional"`
	Completed   bool   `json:"isCompleted"`
}

// steps is the fixed, ordered step table. Order is significant.
var steps = [...]Step{
	{
		ID:          StepWelcome,
		Title:       "Welcome to PostCraft",
		Description: "Plan, publish and measure your social posts from one place.",
	},
	{
		ID:          StepFeatures,
		Title:       "Explore the features",
		Description: "Campaigns, scheduling and analytics at a glance.",
		Optional:    true,
	},
	{
		ID:          StepSetup,
		Title:       "Set up your workspace",
		Description: "Tell us about your team so we can tailor the dashboard.",
	},
	{
		ID:          StepCompletion,
		Title:       "You're all set",
		Description: "Your workspace is ready.",
	},
}

// LastStepIndex is the index of the completion step.
const LastStepIndex = len(steps) - 1

// Steps returns a copy of the step table in order.
func Steps() []Step {
	out := make([]Step, len(steps))
	copy(out, steps[:])
	return out
}

// StepAt returns the step at index i.
func StepAt(i int) (Step, bool) {
	if i < 0 || i >= len(steps) {
		return Step{}, false
	}
	return steps[i], true
}

// StepByID returns the step with the given id and its index.
func StepByID(id StepID) (Step, int, bool) {
	for i, s := range steps {
		if s.ID == id {
			return s, i, true
		}
	}
	return Step{}, -1, false
}
