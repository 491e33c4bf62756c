package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/postcraft-hq/postcraft/onboarding"
)

// renderer prints the body of one step screen.
type renderer func(w io.Writer, st onboarding.State)

var stepRenderers = map[onboarding.StepID]renderer{
	onboarding.StepWelcome: func(w io.Writer, _ onboarding.State) {
		fmt.Fprintln(w, "  Run `postcraft onboarding next` to take the tour, or `skip` to leave.")
	},
	onboarding.StepFeatures: func(w io.Writer, _ onboarding.State) {
		for _, f := range []string{
			"Campaigns: group posts around a launch or theme",
			"Scheduling: queue posts across every connected network",
			"Analytics: reach and engagement per post and campaign",
		} {
			fmt.Fprintln(w, "  -", f)
		}
	},
	onboarding.StepSetup: func(w io.Writer, st onboarding.State) {
		p := st.UserPreferences
		fmt.Fprintf(w, "  industry:      %s\n", orUnset(p.Industry))
		fmt.Fprintf(w, "  team-size:     %s\n", orUnset(p.TeamSize))
		fmt.Fprintf(w, "  goals:         %s\n", listOrUnset(p.PrimaryGoals))
		theme := "(unset)"
		if p.Theme != nil {
			theme = string(*p.Theme)
		}
		fmt.Fprintf(w, "  theme:         %s\n", theme)
		notifications := "(unset)"
		if n := p.NotificationPreferences; n != nil {
			notifications = fmt.Sprintf("email=%t push=%t marketing=%t", n.Email, n.Push, n.Marketing)
		}
		fmt.Fprintf(w, "  notifications: %s\n", notifications)
		fmt.Fprintln(w, "  Change with `postcraft onboarding set-pref <key> <value>`.")
	},
	onboarding.StepCompletion: func(w io.Writer, st onboarding.State) {
		fmt.Fprintf(w, "  %d of %d steps completed. Run `next` or `complete` to finish.\n",
			len(st.CompletedSteps), onboarding.LastStepIndex+1)
	},
}

func renderState(w io.Writer, flow *onboarding.Flow) {
	st := flow.State()
	switch {
	case st.IsCompleted:
		fmt.Fprintln(w, "Status: completed")
	case st.HasSkipped:
		fmt.Fprintln(w, "Status: skipped")
	case st.IsActive:
		fmt.Fprintln(w, "Status: active")
	default:
		fmt.Fprintln(w, "Status: not started")
	}
	if st.RemoteSyncPending != "" {
		fmt.Fprintf(w, "Pending sync: %s\n", st.RemoteSyncPending)
	}

	for i, s := range flow.Steps() {
		cursor := " "
		if i == st.CurrentStepIndex {
			cursor = ">"
		}
		mark := " "
		if s.Completed {
			mark = "x"
		}
		optional := ""
		if s.Optional {
			optional = " (optional)"
		}
		fmt.Fprintf(w, "%s [%s] %d. %s%s\n", cursor, mark, i, s.Title, optional)
	}

	if !st.IsActive {
		return
	}
	step := flow.CurrentStep()
	fmt.Fprintf(w, "\n%s\n%s\n", step.Title, step.Description)
	if r, ok := stepRenderers[step.ID]; ok {
		r(w, st)
	}
}

func orUnset(s *string) string {
	if s == nil {
		return "(unset)"
	}
	return *s
}

func listOrUnset(l []string) string {
	if len(l) == 0 {
		return "(unset)"
	}
	return strings.Join(l, ", ")
}
