package onboarding

import "time"

// AutoPresentWindow is how long after sign-up onboarding is offered
// automatically.
const AutoPresentWindow = 24 * time.Hour

// User is the identity provider's view of the signed-in user.
type User struct {
	ID                  string
	CreatedAt           time.Time
	OnboardingCompleted bool
}

// Session is the client's identity state. User is nil when signed out.
type Session struct {
	Loaded bool
	User   *User
}

// Authenticated reports whether a user is signed in.
func (s Session) Authenticated() bool {
	return s.Loaded && s.User != nil
}

// ShouldShow reports whether onboarding is still outstanding for the
// session's user.
func ShouldShow(session Session, st State) bool {
	if !session.Authenticated() {
		return false
	}
	return !st.Terminal() && !session.User.OnboardingCompleted
}

// ShouldAutoPresent is ShouldShow restricted to accounts younger than
// AutoPresentWindow.
func ShouldAutoPresent(session Session, st State, now time.Time) bool {
	if !ShouldShow(session, st) {
		return false
	}
	return now.Sub(session.User.CreatedAt) < AutoPresentWindow
}
