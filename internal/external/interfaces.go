package external

import (
	"context"

	"meteonotify/internal/types"
)

// ---------------------------------------------------------------------------
// Email Integration (Resend, AWS SES, SMTP)
// ---------------------------------------------------------------------------

// EmailProvider abstracts interactions with the email delivery service.
// Implementations transmit pre-rendered HTML content to every address in
// SendInput.To and SendInput.Bcc as a single provider transaction.
type EmailProvider interface {
	// Send transmits an email with pre-rendered content.
	// Returns the provider's message ID for tracking and correlation; the ID
	// is empty for transports that do not assign one.
	Send(ctx context.Context, input types.SendInput) (providerMsgID string, err error)
}

// ---------------------------------------------------------------------------
// Identity Integration (Firebase Authentication)
// ---------------------------------------------------------------------------

// Directory abstracts the identity provider's user directory.
type Directory interface {
	// ListUsers returns a single page of at most DirectoryPageSize accounts.
	// Accounts beyond the first page are not returned.
	ListUsers(ctx context.Context) ([]types.DirectoryUser, error)

	// GetUser looks up one account by its identifier. A missing account
	// yields an AppError with code ErrCodeNotFoundUser.
	GetUser(ctx context.Context, uid string) (*types.DirectoryUser, error)
}

// DirectoryPageSize is the maximum number of accounts returned by one
// ListUsers call. The identity provider caps a page at this size.
const DirectoryPageSize = 1000

// DirectoryFactory builds a Directory from a JSON service account credential.
type DirectoryFactory func(ctx context.Context, serviceAccountJSON []byte) (Directory, error)
