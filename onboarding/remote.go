package onboarding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// CompletionRequest is the body sent to the completion endpoint.
type CompletionRequest struct {
	Preferences    Preferences `json:"preferences"`
	CompletedSteps []StepID    `json:"completedSteps"`
}

// Remote receives the terminal onboarding actions. Implementations must
// honour ctx cancellation.
type Remote interface {
	Complete(ctx context.Context, req CompletionRequest) error
	Skip(ctx context.Context) error
}

const (
	csrfPath     = "/api/v1/csrf"
	statusPath   = "/api/v1/onboarding"
	completePath = "/api/v1/onboarding/complete"
	skipPath     = "/api/v1/onboarding/skip"

	userIDHeader = "X-User-ID"
	csrfHeader   = "X-CSRF-Token"
)

// HTTPRemote talks to a postcraft server. Each call fetches a fresh CSRF
// token and POSTs with one retry on 5xx.
type HTTPRemote struct {
	baseURL    string
	userID     string
	client     *http.Client
	retryDelay time.Duration
}

var _ Remote = (*HTTPRemote)(nil)

// NewHTTPRemote creates a Remote for the server at baseURL acting as
// userID. A nil client selects a client with a 10s timeout.
func NewHTTPRemote(baseURL, userID string, client *http.Client) *HTTPRemote {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPRemote{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userID:     userID,
		client:     client,
		retryDelay: time.Second,
	}
}

func (r *HTTPRemote) Complete(ctx context.Context, req CompletionRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode completion: %w", err)
	}
	return r.post(ctx, completePath, body)
}

func (r *HTTPRemote) Skip(ctx context.Context) error {
	return r.post(ctx, skipPath, nil)
}

// CloseIdleConnections releases pooled connections.
func (r *HTTPRemote) CloseIdleConnections() {
	r.client.CloseIdleConnections()
}

// FetchUser returns the server's record of the user, for use with
// ShouldAutoPresent.
func (r *HTTPRemote) FetchUser(ctx context.Context) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+statusPath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(userIDHeader, r.userID)
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch user: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch user: status %d", resp.StatusCode)
	}
	var out struct {
		UserID              string    `json:"userId"`
		CreatedAt           time.Time `json:"createdAt"`
		OnboardingCompleted bool      `json:"onboardingCompleted"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &User{ID: out.UserID, CreatedAt: out.CreatedAt, OnboardingCompleted: out.OnboardingCompleted}, nil
}

func (r *HTTPRemote) csrfToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+csrfPath, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set(userIDHeader, r.userID)
	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch csrf token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch csrf token: status %d", resp.StatusCode)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode csrf token: %w", err)
	}
	if out.Token == "" {
		return "", fmt.Errorf("fetch csrf token: empty token")
	}
	return out.Token, nil
}

func (r *HTTPRemote) post(ctx context.Context, path string, body []byte) error {
	token, err := r.csrfToken(ctx)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.retryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set(userIDHeader, r.userID)
		req.Header.Set(csrfHeader, token)

		resp, err := r.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("POST %s: %w", path, err)
			if ctx.Err() != nil {
				return lastErr
			}
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("POST %s: status %d", path, resp.StatusCode)
			continue
		default:
			return fmt.Errorf("POST %s: status %d", path, resp.StatusCode)
		}
	}
	return lastErr
}
