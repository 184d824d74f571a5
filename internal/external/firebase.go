package external

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	htransport "google.golang.org/api/transport/http"

	"meteonotify/internal/types"
)

// firebaseAuth is the subset of *auth.Client used by FirebaseDirectory.
type firebaseAuth interface {
	Users(ctx context.Context, nextPageToken string) *auth.UserIterator
	GetUser(ctx context.Context, uid string) (*auth.UserRecord, error)
}

// FirebaseDirectory implements Directory on top of the Firebase Admin SDK's
// Authentication client.
type FirebaseDirectory struct {
	auth   firebaseAuth
	logger *slog.Logger

	// listPage fetches the first page of accounts. Replaced in tests because
	// auth.UserIterator cannot be constructed outside the SDK.
	listPage func(ctx context.Context) ([]*auth.ExportedUserRecord, error)
}

// firebaseScopes are the OAuth2 scopes the Admin SDK requests by default.
var firebaseScopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/firebase",
	"https://www.googleapis.com/auth/identitytoolkit",
	"https://www.googleapis.com/auth/userinfo.email",
}

// NewFirebaseDirectory initializes a Firebase app from a service account
// credential and returns a Directory bound to its Authentication client.
// Outbound calls go through an authenticated BreakerTransport bounded by
// timeout.
func NewFirebaseDirectory(ctx context.Context, serviceAccountJSON []byte, timeout time.Duration, logger *slog.Logger) (*FirebaseDirectory, error) {
	credsOpt := option.WithCredentialsJSON(serviceAccountJSON)

	rt, err := htransport.NewTransport(ctx,
		NewBreakerTransport("firebase", nil, userAgent),
		credsOpt,
		option.WithScopes(firebaseScopes...),
	)
	if err != nil {
		return nil, fmt.Errorf("build firebase transport: %w", err)
	}
	httpClient := &http.Client{Transport: rt, Timeout: timeout}

	app, err := firebase.NewApp(ctx, nil, credsOpt, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}

	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase auth client: %w", err)
	}

	return newFirebaseDirectoryWithAuth(client, logger), nil
}

func newFirebaseDirectoryWithAuth(a firebaseAuth, logger *slog.Logger) *FirebaseDirectory {
	if logger == nil {
		logger = slog.Default()
	}
	d := &FirebaseDirectory{auth: a, logger: logger}
	d.listPage = d.firstPage
	return d
}

// firstPage performs one list call of DirectoryPageSize accounts.
func (d *FirebaseDirectory) firstPage(ctx context.Context) ([]*auth.ExportedUserRecord, error) {
	pager := iterator.NewPager(d.auth.Users(ctx, ""), DirectoryPageSize, "")
	var page []*auth.ExportedUserRecord
	if _, err := pager.NextPage(&page); err != nil {
		return nil, err
	}
	return page, nil
}

// ListUsers returns the first page of directory accounts. Accounts without an
// email are included with an empty Email.
func (d *FirebaseDirectory) ListUsers(ctx context.Context) ([]types.DirectoryUser, error) {
	page, err := d.listPage(ctx)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamIdentity,
			"failed to list directory users",
			err,
		)
	}

	users := make([]types.DirectoryUser, 0, len(page))
	for _, rec := range page {
		if rec == nil || rec.UserRecord == nil || rec.UserInfo == nil {
			continue
		}
		users = append(users, types.DirectoryUser{UID: rec.UID, Email: rec.Email})
	}

	if len(page) == DirectoryPageSize {
		d.logger.WarnContext(ctx, "directory listing truncated to first page",
			"page_size", DirectoryPageSize,
		)
	}
	return users, nil
}

// GetUser looks up a single account by uid.
func (d *FirebaseDirectory) GetUser(ctx context.Context, uid string) (*types.DirectoryUser, error) {
	rec, err := d.auth.GetUser(ctx, uid)
	if err != nil {
		if auth.IsUserNotFound(err) {
			return nil, types.NewAppError(
				types.ErrCodeNotFoundUser,
				fmt.Sprintf("no directory user with uid %q", uid),
				err,
			)
		}
		return nil, types.NewAppError(
			types.ErrCodeUpstreamIdentity,
			"failed to look up directory user",
			err,
		)
	}
	if rec == nil || rec.UserInfo == nil {
		return nil, types.NewAppError(
			types.ErrCodeNotFoundUser,
			fmt.Sprintf("no directory user with uid %q", uid),
			nil,
		)
	}

	return &types.DirectoryUser{UID: rec.UID, Email: rec.Email}, nil
}

// Compile-time assertion that FirebaseDirectory satisfies Directory.
var _ Directory = (*FirebaseDirectory)(nil)
