package external

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"meteonotify/internal/types"

	"github.com/resend/resend-go/v2"
)

// ResendClientConfig holds the configuration for creating a ResendClient.
type ResendClientConfig struct {
	APIKey  string
	BaseURL string // Override for testing; defaults to the SDK's endpoint
	Logger  *slog.Logger
}

// ResendClient implements EmailProvider with the Resend SDK. The SDK's HTTP
// client is supplied by the caller so requests pass through a
// BreakerTransport.
type ResendClient struct {
	client *resend.Client
	logger *slog.Logger
}

// NewResendClient creates a new ResendClient. A nil httpClient falls back to
// NewHTTPClient("resend", ...) with a 10 second timeout.
func NewResendClient(httpClient *http.Client, cfg ResendClientConfig) (*ResendClient, error) {
	if httpClient == nil {
		httpClient = NewHTTPClient("resend", defaultEmailTimeout, userAgent)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := resend.NewCustomClient(httpClient, cfg.APIKey)
	if cfg.BaseURL != "" {
		// The SDK resolves "emails" relative to BaseURL, which needs a
		// trailing slash to keep any path prefix.
		u, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parse resend base url: %w", err)
		}
		client.BaseURL = u
	}

	return &ResendClient{
		client: client,
		logger: logger,
	}, nil
}

// Send transmits one email through Resend's /emails endpoint. Every address
// in input.To and input.Bcc is part of the same API call.
//
// Error mapping:
//   - Breaker open / network failure -> the BreakerTransport AppError
//   - Any rejected request -> ErrCodeUpstreamEmailProvider
func (r *ResendClient) Send(ctx context.Context, input types.SendInput) (string, error) {
	params := &resend.SendEmailRequest{
		From:    input.From.String(),
		To:      input.To,
		Bcc:     input.Bcc,
		Subject: input.Subject,
		Html:    input.HTML,
	}
	if input.ReferenceID != "" {
		params.Tags = []resend.Tag{{Name: "reference_id", Value: input.ReferenceID}}
	}

	sent, err := r.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) {
			return "", appErr
		}
		return "", types.NewAppError(
			types.ErrCodeUpstreamEmailProvider,
			"resend rejected send request",
			err,
		)
	}

	r.logger.DebugContext(ctx, "resend accepted message",
		"message_id", sent.Id,
		"recipients", input.Recipients(),
	)
	return sent.Id, nil
}

// Compile-time assertion that ResendClient satisfies EmailProvider.
var _ EmailProvider = (*ResendClient)(nil)
