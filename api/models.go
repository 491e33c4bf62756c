package api

import (
	"time"

	"github.com/postcraft-hq/postcraft/onboarding"
)

// CSRFTokenResponse is returned from GET /csrf.
type CSRFTokenResponse struct {
	Token string `json:"token"`
}

// OnboardingStatusResponse is returned from GET /onboarding.
type OnboardingStatusResponse struct {
	UserID              string    `json:"userId"`
	CreatedAt           time.Time `json:"createdAt"`
	OnboardingCompleted bool      `json:"onboardingCompleted"`
	OnboardingSkipped   bool      `json:"onboardingSkipped"`
	ShouldAutoPresent   bool      `json:"shouldAutoPresent"`
}

// CompleteOnboardingRequest is the JSON body for POST /onboarding/complete.
type CompleteOnboardingRequest = onboarding.CompletionRequest

// SuccessResponse acknowledges a mutation with no other result.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// ContactRequest is the JSON body for POST /contact.
type ContactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// ContactResponse is returned from POST /contact.
type ContactResponse struct {
	ID string `json:"id"`
}

// ErrorResponse is returned for all error cases.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
