package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/postcraft-hq/postcraft/onboarding"
)

const accountNamespace = "accounts"

// accountRecord is the server-side view of a user. It is created the
// first time the user is seen.
type accountRecord struct {
	UserID              string                 `json:"user_id"`
	CreatedAt           time.Time              `json:"created_at"`
	OnboardingCompleted bool                   `json:"onboarding_completed"`
	OnboardingSkipped   bool                   `json:"onboarding_skipped"`
	OnboardingAt        *time.Time             `json:"onboarding_at,omitempty"`
	Preferences         onboarding.Preferences `json:"preferences"`
	CompletedSteps      []onboarding.StepID    `json:"completed_steps,omitempty"`
}

// session adapts the record to the onboarding gate.
func (rec *accountRecord) session() onboarding.Session {
	return onboarding.Session{
		Loaded: true,
		User: &onboarding.User{
			ID:                  rec.UserID,
			CreatedAt:           rec.CreatedAt,
			OnboardingCompleted: rec.OnboardingCompleted,
		},
	}
}

var errSkipWrite = errors.New("no change")

// loadOrCreateAccount returns the user's record, registering it first if
// this is the first request from the user.
func (a *API) loadOrCreateAccount(userID string) (*accountRecord, error) {
	var rec accountRecord
	err := a.repo.Update(accountNamespace, userID, func(current []byte) ([]byte, error) {
		if current != nil {
			if err := json.Unmarshal(current, &rec); err != nil {
				return nil, fmt.Errorf("decode account %s: %w", userID, err)
			}
			return nil, errSkipWrite
		}
		rec = accountRecord{UserID: userID, CreatedAt: a.now().UTC()}
		return json.Marshal(rec)
	})
	if err != nil && !errors.Is(err, errSkipWrite) {
		return nil, err
	}
	return &rec, nil
}

// updateAccount applies fn to the user's record atomically, creating the
// record first if needed.
func (a *API) updateAccount(userID string, fn func(*accountRecord)) (*accountRecord, error) {
	var rec accountRecord
	err := a.repo.Update(accountNamespace, userID, func(current []byte) ([]byte, error) {
		if current != nil {
			if err := json.Unmarshal(current, &rec); err != nil {
				return nil, fmt.Errorf("decode account %s: %w", userID, err)
			}
		} else {
			rec = accountRecord{UserID: userID, CreatedAt: a.now().UTC()}
		}
		fn(&rec)
		return json.Marshal(rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
