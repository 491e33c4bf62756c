package onboarding

import "slices"

// Theme is the dashboard colour scheme preference.
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// Valid reports whether t is one of the known themes.
func (t Theme) Valid() bool {
	switch t {
	case ThemeLight, ThemeDark, ThemeSystem:
		return true
	}
	return false
}

// NotificationPreferences is replaced as a whole by Preferences.Merge.
type NotificationPreferences struct {
	Email     bool `json:"email"`
	Push      bool `json:"push"`
	Marketing bool `json:"marketing"`
}

// Preferences are the answers collected during onboarding. A nil field is
// unset.
type Preferences struct {
	Industry                *string                  `json:"industry,omitempty"`
	TeamSize                *string                  `json:"teamSize,omitempty"`
	PrimaryGoals            []string                 `json:"primaryGoals,omitempty"`
	NotificationPreferences *NotificationPreferences `json:"notificationPreferences,omitempty"`
	Theme                   *Theme                   `json:"theme,omitempty"`
}

// Merge returns p with every field set in partial replacing the same
// top-level field of p. Nested values are never merged: a partial
// NotificationPreferences or PrimaryGoals replaces the old one entirely.
func (p Preferences) Merge(partial Preferences) Preferences {
	out := p.clone()
	if partial.Industry != nil {
		out.Industry = ptr(*partial.Industry)
	}
	if partial.TeamSize != nil {
		out.TeamSize = ptr(*partial.TeamSize)
	}
	if partial.PrimaryGoals != nil {
		out.PrimaryGoals = dedupe(partial.PrimaryGoals)
	}
	if partial.NotificationPreferences != nil {
		out.NotificationPreferences = ptr(*partial.NotificationPreferences)
	}
	if partial.Theme != nil {
		out.Theme = ptr(*partial.Theme)
	}
	return out
}

// IsZero reports whether no preference is set.
func (p Preferences) IsZero() bool {
	return p.Industry == nil && p.TeamSize == nil && p.PrimaryGoals == nil &&
		p.NotificationPreferences == nil && p.Theme == nil
}

func (p Preferences) clone() Preferences {
	out := p
	if p.Industry != nil {
		out.Industry = ptr(*p.Industry)
	}
	if p.TeamSize != nil {
		out.TeamSize = ptr(*p.TeamSize)
	}
	if p.PrimaryGoals != nil {
		out.PrimaryGoals = slices.Clone(p.PrimaryGoals)
	}
	if p.NotificationPreferences != nil {
		out.NotificationPreferences = ptr(*p.NotificationPreferences)
	}
	if p.Theme != nil {
		out.Theme = ptr(*p.Theme)
	}
	return out
}

// dedupe keeps the first occurrence of each goal; primary goals are a set.
func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

func ptr[T any](v T) *T { return &v }

// Outcome is a terminal onboarding action.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeSkipped   Outcome = "skipped"
)

// State is the persisted onboarding session for one user.
type State struct {
	IsCompleted     bool        `json:"isCompleted"`
	CompletedSteps  []StepID    `json:"completedSteps"`
	UserPreferences Preferences `json:"userPreferences"`
	HasSkipped      bool        `json:"hasSkipped"`

	CurrentStepIndex int  `json:"currentStepIndex"`
	IsActive         bool `json:"isActive"`
	// RemoteSyncPending names the terminal action whose remote
	// notification has not been delivered yet.
	RemoteSyncPending Outcome `json:"remoteSyncPending,omitempty"`
}

// NewState returns the initial state: inactive, at the first step, with
// nothing completed.
func NewState() State {
	return State{CompletedSteps: []StepID{}}
}

// StepCompleted reports whether id has been marked complete.
func (s State) StepCompleted(id StepID) bool {
	return slices.Contains(s.CompletedSteps, id)
}

// Terminal reports whether the user has completed or skipped onboarding.
func (s State) Terminal() bool {
	return s.IsCompleted || s.HasSkipped
}

func (s State) clone() State {
	out := s
	out.CompletedSteps = slices.Clone(s.CompletedSteps)
	if out.CompletedSteps == nil {
		out.CompletedSteps = []StepID{}
	}
	out.UserPreferences = s.UserPreferences.clone()
	return out
}

// normalize clamps a loaded state back into range.
func (s State) normalize() State {
	if s.CurrentStepIndex < 0 || s.CurrentStepIndex > LastStepIndex {
		s.CurrentStepIndex = 0
	}
	if s.CompletedSteps == nil {
		s.CompletedSteps = []StepID{}
	}
	return s
}
