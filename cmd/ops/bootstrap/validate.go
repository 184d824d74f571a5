package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"net/url"
	"os"
	"strings"
	"time"
)

// ValidationResult holds the outcome of a validation check.
type ValidationResult struct {
	Valid   bool
	Message string
}

// HTTPClient is the interface used by validators that make outbound HTTP calls.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Validator holds the dependencies of the input checks.
type Validator struct {
	httpClient    HTTPClient
	resendBaseURL string
	readFile      func(name string) ([]byte, error)
}

// NewValidator creates a Validator with a 10-second HTTP client.
func NewValidator() *Validator {
	return NewValidatorWithDeps(&http.Client{Timeout: 10 * time.Second}, "https://api.resend.com", os.ReadFile)
}

// NewValidatorWithDeps creates a Validator with injected dependencies.
func NewValidatorWithDeps(httpClient HTTPClient, resendBaseURL string, readFile func(string) ([]byte, error)) *Validator {
	return &Validator{
		httpClient:    httpClient,
		resendBaseURL: strings.TrimSuffix(resendBaseURL, "/"),
		readFile:      readFile,
	}
}

// validateTimeout bounds each active probe.
const validateTimeout = 15 * time.Second

// serviceAccount lists the fields the identity client needs.
type serviceAccount struct {
	Type        string `json:"type"`
	ProjectID   string `json:"project_id"`
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

// ValidateServiceAccountFile checks that path holds a Firebase service
// account JSON key.
func (v *Validator) ValidateServiceAccountFile(_ context.Context, path string) ValidationResult {
	raw, err := v.readFile(strings.TrimSpace(path))
	if err != nil {
		return ValidationResult{Message: fmt.Sprintf("cannot read file: %v", err)}
	}

	var sa serviceAccount
	if err := json.Unmarshal(raw, &sa); err != nil {
		return ValidationResult{Message: fmt.Sprintf("file is not valid JSON: %v", err)}
	}
	if sa.Type != "service_account" {
		return ValidationResult{Message: fmt.Sprintf("expected type \"service_account\", got %q", sa.Type)}
	}

	var missing []string
	if sa.ProjectID == "" {
		missing = append(missing, "project_id")
	}
	if sa.ClientEmail == "" {
		missing = append(missing, "client_email")
	}
	if !strings.Contains(sa.PrivateKey, "PRIVATE KEY") {
		missing = append(missing, "private_key")
	}
	if len(missing) > 0 {
		return ValidationResult{Message: "service account is missing " + strings.Join(missing, ", ")}
	}

	return ValidationResult{
		Valid:   true,
		Message: fmt.Sprintf("service account for project %s", sa.ProjectID),
	}
}

// LoadServiceAccount reads the key file and compacts it to a single line so
// it fits an SSM parameter and a .env entry.
func (v *Validator) LoadServiceAccount(path string) (string, error) {
	raw, err := v.readFile(strings.TrimSpace(path))
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", fmt.Errorf("compacting service account JSON: %w", err)
	}
	return buf.String(), nil
}

// ValidateResendKey checks the "re_" prefix and probes GET /domains.
//
// Sending-only keys are rejected by /domains with a restricted_api_key
// error; that response still proves the key exists and is accepted.
func (v *Validator) ValidateResendKey(ctx context.Context, key string) ValidationResult {
	key = strings.TrimSpace(key)
	if !strings.HasPrefix(key, "re_") {
		return ValidationResult{Message: "Resend API key should start with 're_'"}
	}

	probeCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, v.resendBaseURL+"/domains", nil)
	if err != nil {
		return ValidationResult{Message: fmt.Sprintf("failed to create request: %v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("User-Agent", "MeteoNotify-Bootstrap/1.0")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return ValidationResult{Message: fmt.Sprintf("Resend API probe failed: %v", err)}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode == http.StatusOK:
		return ValidationResult{Valid: true, Message: "Resend API key verified (full access)"}
	case resp.StatusCode == http.StatusUnauthorized && bytes.Contains(body, []byte("restricted_api_key")):
		return ValidationResult{Valid: true, Message: "Resend API key verified (sending access)"}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ValidationResult{Message: fmt.Sprintf("Resend API returned HTTP %d: key is invalid", resp.StatusCode)}
	default:
		return ValidationResult{Message: fmt.Sprintf("Resend API returned HTTP %d: %s", resp.StatusCode, truncateBody(body, 200))}
	}
}

// ValidateEmail checks that input is a bare email address.
func (v *Validator) ValidateEmail(_ context.Context, input string) ValidationResult {
	addr, err := mail.ParseAddress(input)
	if err != nil || addr.Name != "" || addr.Address != input {
		return ValidationResult{Message: fmt.Sprintf("%q is not a bare email address", input)}
	}
	return ValidationResult{Valid: true, Message: "email address accepted"}
}

// ValidateURL checks that input is an absolute http(s) URL.
func (v *Validator) ValidateURL(_ context.Context, input string) ValidationResult {
	u, err := url.Parse(input)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ValidationResult{Message: fmt.Sprintf("%q is not an absolute http(s) URL", input)}
	}
	return ValidationResult{Valid: true, Message: "URL accepted"}
}

// truncateBody returns the first n bytes of body as a string.
func truncateBody(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
