package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/mail"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/postcraft-hq/postcraft/guard"
	"github.com/postcraft-hq/postcraft/internal/util"
	"github.com/postcraft-hq/postcraft/internal/uuid"
	"github.com/postcraft-hq/postcraft/onboarding"
)

const (
	maxSmallBodySize  = 16 << 10
	maxPreferenceLen  = 100
	maxPrimaryGoals   = 10
	maxContactName    = 200
	maxContactMessage = 5000
	maxCompletedSteps = 16
	contactNamespace  = "contact"
)

// GetCSRFToken handles GET /csrf.
func (a *API) GetCSRFToken(w http.ResponseWriter, r *http.Request) {
	if a.tokens == nil {
		writeInternalError(w, "csrf tokens are not configured", nil)
		return
	}
	token, err := a.tokens.Generate()
	if err != nil {
		writeInternalError(w, "failed to generate csrf token", err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, CSRFTokenResponse{Token: token})
}

// GetOnboarding handles GET /onboarding.
func (a *API) GetOnboarding(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	rec, err := a.loadOrCreateAccount(userID)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OnboardingStatusResponse{
		UserID:              rec.UserID,
		CreatedAt:           rec.CreatedAt,
		OnboardingCompleted: rec.OnboardingCompleted,
		OnboardingSkipped:   rec.OnboardingSkipped,
		ShouldAutoPresent:   onboarding.ShouldAutoPresent(rec.session(), onboarding.NewState(), a.now()),
	})
}

// CompleteOnboarding handles POST /onboarding/complete.
func (a *API) CompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	req, ok := decodeJSON[CompleteOnboardingRequest](w, r, maxSmallBodySize)
	if !ok {
		return
	}
	prefs, msg := normalizePreferences(req.Preferences)
	if msg != "" {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, msg)
		return
	}
	steps, msg := validateSteps(req.CompletedSteps)
	if msg != "" {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, msg)
		return
	}

	now := a.now().UTC()
	if _, err := a.updateAccount(userID, func(rec *accountRecord) {
		rec.OnboardingCompleted = true
		rec.OnboardingAt = &now
		rec.Preferences = rec.Preferences.Merge(prefs)
		rec.CompletedSteps = steps
	}); err != nil {
		mapError(w, err)
		return
	}

	a.audit.logUser(AuditOnboardingCompleted, r, userID,
		slog.Int("completed_steps", len(steps)))
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// SkipOnboarding handles POST /onboarding/skip. A skipped user is also
// marked completed so onboarding is never auto-presented again.
func (a *API) SkipOnboarding(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	now := a.now().UTC()
	if _, err := a.updateAccount(userID, func(rec *accountRecord) {
		rec.OnboardingSkipped = true
		rec.OnboardingCompleted = true
		rec.OnboardingAt = &now
	}); err != nil {
		mapError(w, err)
		return
	}

	a.audit.logUser(AuditOnboardingSkipped, r, userID)
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// contactMessage is a stored contact form submission.
type contactMessage struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Message    string    `json:"message"`
	UserID     string    `json:"user_id,omitempty"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// SubmitContact handles POST /contact.
func (a *API) SubmitContact(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[ContactRequest](w, r, maxSmallBodySize)
	if !ok {
		return
	}

	name := util.NormalizeText(req.Name)
	message := util.NormalizeText(req.Message)
	switch {
	case name == "":
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "name is required")
		return
	case utf8.RuneCountInString(name) > maxContactName:
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "name is too long")
		return
	case message == "":
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "message is required")
		return
	case utf8.RuneCountInString(message) > maxContactMessage:
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "message is too long")
		return
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(req.Email))
	if err != nil || addr.Name != "" {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "a valid email is required")
		return
	}

	msg := contactMessage{
		ID:         uuid.New(),
		Name:       name,
		Email:      addr.Address,
		Message:    message,
		UserID:     strings.TrimSpace(r.Header.Get(guard.UserIDHeader)),
		RemoteAddr: r.RemoteAddr,
		CreatedAt:  a.now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		writeInternalError(w, "failed to encode message", err)
		return
	}
	if err := a.repo.Put(contactNamespace, msg.ID, data); err != nil {
		writeInternalError(w, "failed to store message", err)
		return
	}

	a.audit.log(AuditContactSubmitted, r, slog.String("message_id", msg.ID))
	writeJSON(w, http.StatusCreated, ContactResponse{ID: msg.ID})
}

// normalizePreferences NFC-normalizes free-text preferences and validates
// them. A non-empty message describes the first problem found.
func normalizePreferences(p onboarding.Preferences) (onboarding.Preferences, string) {
	text := func(field string, v *string) (*string, string) {
		if v == nil {
			return nil, ""
		}
		s := util.NormalizeText(*v)
		if utf8.RuneCountInString(s) > maxPreferenceLen {
			return nil, field + " is too long"
		}
		return &s, ""
	}

	var msg string
	if p.Industry, msg = text("industry", p.Industry); msg != "" {
		return p, msg
	}
	if p.TeamSize, msg = text("teamSize", p.TeamSize); msg != "" {
		return p, msg
	}
	if p.Theme != nil && !p.Theme.Valid() {
		return p, "theme must be one of light, dark, system"
	}
	if p.PrimaryGoals != nil {
		if len(p.PrimaryGoals) > maxPrimaryGoals {
			return p, "too many primary goals"
		}
		goals := make([]string, 0, len(p.PrimaryGoals))
		for _, g := range p.PrimaryGoals {
			g = util.NormalizeText(g)
			if g == "" || utf8.RuneCountInString(g) > maxPreferenceLen {
				return p, "invalid primary goal"
			}
			goals = append(goals, g)
		}
		p.PrimaryGoals = goals
	}
	return p, ""
}

func validateSteps(ids []onboarding.StepID) ([]onboarding.StepID, string) {
	if len(ids) > maxCompletedSteps {
		return nil, "too many completed steps"
	}
	out := make([]onboarding.StepID, 0, len(ids))
	for _, id := range ids {
		if _, _, ok := onboarding.StepByID(id); !ok {
			return nil, "unknown step " + string(id)
		}
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out, ""
}
