// Package onboarding implements the new-user onboarding flow: a fixed
// sequence of steps with free navigation, accumulated preferences and two
// terminal actions, complete and skip, that are mirrored to the server.
//
// Local state is authoritative. Remote delivery of the terminal actions is
// best effort: it never blocks the flow from reaching its terminal state,
// and its outcome is reported as a SyncResult so callers can retry.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"
)

// DefaultRemoteTimeout bounds each remote call.
const DefaultRemoteTimeout = 5 * time.Second

var (
	// ErrRemote wraps every remote delivery failure.
	ErrRemote = errors.New("onboarding remote sync failed")
	// ErrNothingToSync is returned by RetrySync when no terminal action
	// is awaiting delivery.
	ErrNothingToSync = errors.New("no onboarding sync pending")
)

// SyncResult reports the local terminal outcome and whether the remote
// notification was delivered. Err is nil on delivery.
type SyncResult struct {
	Outcome Outcome
	Err     error
}

// Synced reports whether the remote side acknowledged the outcome.
func (r SyncResult) Synced() bool { return r.Err == nil }

// Option configures a Flow.
type Option func(*Flow)

// WithLogger sets the logger; the default is slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(f *Flow) { f.logger = l }
}

// WithRemoteTimeout overrides DefaultRemoteTimeout. Non-positive values
// keep the default.
func WithRemoteTimeout(d time.Duration) Option {
	return func(f *Flow) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithCloseFunc is called when Previous is invoked on the first step.
func WithCloseFunc(fn func()) Option {
	return func(f *Flow) { f.onClose = fn }
}

// Flow drives one user's onboarding session. Every transition is saved to
// the Store immediately. A Flow is not safe for concurrent use.
type Flow struct {
	userKey string
	store   Store
	remote  Remote
	logger  *slog.Logger
	timeout time.Duration
	onClose func()

	state State
}

// NewFlow loads the user's saved state, or starts from NewState. A nil
// remote makes the flow local-only; terminal actions then always report
// as synced.
func NewFlow(userKey string, store Store, remote Remote, opts ...Option) *Flow {
	f := &Flow{
		userKey: userKey,
		store:   store,
		remote:  remote,
		logger:  slog.Default(),
		timeout: DefaultRemoteTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With("component", "onboarding", "user", userKey)

	if st, ok := store.Load(userKey); ok {
		f.state = st
	} else {
		f.state = NewState()
	}
	return f
}

// State returns a copy of the current state.
func (f *Flow) State() State { return f.state.clone() }

// CurrentStep returns the step at the current index.
func (f *Flow) CurrentStep() Step {
	s, _ := StepAt(f.state.CurrentStepIndex)
	s.Completed = f.state.StepCompleted(s.ID)
	return s
}

// Steps returns the step table with completion flags filled in.
func (f *Flow) Steps() []Step {
	out := Steps()
	for i := range out {
		out[i].Completed = f.state.StepCompleted(out[i].ID)
	}
	return out
}

// Start activates the flow at the first step. It is always allowed, even
// after completion or skip.
func (f *Flow) Start() {
	f.state.CurrentStepIndex = 0
	f.state.IsActive = true
	f.save()
}

// AutoStart starts the flow only if ShouldAutoPresent passes, and reports
// whether it did.
func (f *Flow) AutoStart(session Session, now time.Time) bool {
	if f.state.IsActive || !ShouldAutoPresent(session, f.state, now) {
		return false
	}
	f.Start()
	return true
}

// Next advances one step. On the last step it completes the flow instead
// and returns the completion result with true.
func (f *Flow) Next(ctx context.Context) (SyncResult, bool) {
	if f.state.CurrentStepIndex < LastStepIndex {
		f.state.CurrentStepIndex++
		f.save()
		return SyncResult{}, false
	}
	return f.Complete(ctx), true
}

// Previous goes back one step. On the first step it calls the close
// callback, if any.
func (f *Flow) Previous() {
	if f.state.CurrentStepIndex > 0 {
		f.state.CurrentStepIndex--
		f.save()
		return
	}
	if f.onClose != nil {
		f.onClose()
	}
}

// GoToStep jumps to index i. Out-of-range indexes are ignored; the return
// value reports whether the jump happened.
func (f *Flow) GoToStep(i int) bool {
	if i < 0 || i > LastStepIndex {
		return false
	}
	f.state.CurrentStepIndex = i
	f.save()
	return true
}

// CompleteStep marks id complete. Repeating it has no further effect.
func (f *Flow) CompleteStep(id StepID) {
	if f.state.StepCompleted(id) {
		return
	}
	f.state.CompletedSteps = append(f.state.CompletedSteps, id)
	f.save()
}

// UpdatePreferences shallow-merges partial into the saved preferences.
func (f *Flow) UpdatePreferences(partial Preferences) {
	f.state.UserPreferences = f.state.UserPreferences.Merge(partial)
	f.save()
}

// Complete sends the preferences and completed steps to the remote and
// marks the flow completed whatever the remote says.
func (f *Flow) Complete(ctx context.Context) SyncResult {
	err := f.sync(ctx, OutcomeCompleted)
	f.state.IsCompleted = true
	f.state.IsActive = false
	f.finish(OutcomeCompleted, err)
	return SyncResult{Outcome: OutcomeCompleted, Err: err}
}

// Skip notifies the remote and marks the flow skipped whatever the
// remote says.
func (f *Flow) Skip(ctx context.Context) SyncResult {
	err := f.sync(ctx, OutcomeSkipped)
	f.state.HasSkipped = true
	f.state.IsActive = false
	f.finish(OutcomeSkipped, err)
	return SyncResult{Outcome: OutcomeSkipped, Err: err}
}

// RetrySync re-sends the terminal action whose delivery previously failed.
func (f *Flow) RetrySync(ctx context.Context) SyncResult {
	pending := f.state.RemoteSyncPending
	if pending == "" {
		return SyncResult{Err: ErrNothingToSync}
	}
	err := f.sync(ctx, pending)
	f.finish(pending, err)
	return SyncResult{Outcome: pending, Err: err}
}

// Reset returns to a fresh, active flow. Intended for support and testing.
func (f *Flow) Reset() {
	f.state = NewState()
	f.state.IsActive = true
	f.save()
}

func (f *Flow) sync(ctx context.Context, outcome Outcome) error {
	if f.remote == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var err error
	switch outcome {
	case OutcomeCompleted:
		err = f.remote.Complete(ctx, CompletionRequest{
			Preferences:    f.state.UserPreferences.clone(),
			CompletedSteps: slices.Clone(f.state.CompletedSteps),
		})
	case OutcomeSkipped:
		err = f.remote.Skip(ctx)
	default:
		err = fmt.Errorf("unknown outcome %q", outcome)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrRemote, outcome, err)
	}
	return nil
}

func (f *Flow) finish(outcome Outcome, err error) {
	if err != nil {
		f.logger.Warn("onboarding sync failed, continuing with local state",
			"outcome", string(outcome), "error", err)
		f.state.RemoteSyncPending = outcome
	} else {
		f.state.RemoteSyncPending = ""
	}
	f.save()
}

func (f *Flow) save() {
	f.store.Save(f.userKey, f.state)
}
