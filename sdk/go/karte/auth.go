package karte

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// tokenManager handles JWT token acquisition and refresh against the
// signin endpoint. It is safe for concurrent use.
type tokenManager struct {
	baseURL  string
	email    string
	password string
	client   *http.Client
	margin   time.Duration

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func newTokenManager(baseURL, email, password string, client *http.Client) *tokenManager {
	return &tokenManager{
		baseURL:  baseURL,
		email:    email,
		password: password,
		client:   client,
		margin:   30 * time.Second,
	}
}

func (tm *tokenManager) getToken(ctx context.Context) (string, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.token != "" && time.Now().Before(tm.expiresAt.Add(-tm.margin)) {
		return tm.token, nil
	}

	if err := tm.refresh(ctx); err != nil {
		return "", err
	}
	return tm.token, nil
}

// seed installs a token obtained outside the signin flow, such as the one
// returned by signup.
func (tm *tokenManager) seed(token string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.token = token
	tm.expiresAt = tokenExpiry(token)
}

type signinBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signinEnvelope struct {
	Data struct {
		AccessToken string `json:"access_token"`
	} `json:"data"`
}

func (tm *tokenManager) refresh(ctx context.Context) error {
	body, err := json.Marshal(signinBody{Email: tm.email, Password: tm.password})
	if err != nil {
		return fmt.Errorf("karte: marshal signin request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tm.baseURL+"/v1/auth/signin", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("karte: create signin request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := tm.client.Do(req)
	if err != nil {
		return fmt.Errorf("karte: signin request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("karte: signin failed with status %d", resp.StatusCode)
	}

	var envelope signinEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("karte: decode signin response: %w", err)
	}
	if envelope.Data.AccessToken == "" {
		return fmt.Errorf("karte: signin response carried no token")
	}

	tm.token = envelope.Data.AccessToken
	tm.expiresAt = tokenExpiry(envelope.Data.AccessToken)
	return nil
}

// fallbackTokenLifetime is assumed when a token carries no readable exp
// claim.
const fallbackTokenLifetime = 15 * time.Minute

// tokenExpiry reads the exp claim from a JWT without verifying it. The
// server remains the authority on validity; the client only needs a
// refresh deadline.
func tokenExpiry(token string) time.Time {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return time.Now().Add(fallbackTokenLifetime)
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return time.Now().Add(fallbackTokenLifetime)
	}
	var claims struct {
		Exp int64 `json:"exp"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil || claims.Exp == 0 {
		return time.Now().Add(fallbackTokenLifetime)
	}
	return time.Unix(claims.Exp, 0)
}
