package notify

import (
	"context"
	"log/slog"

	"meteonotify/internal/external"
	"meteonotify/internal/types"
)

// DefaultBroadcastSentinel is the recipientId value that requests delivery
// to every directory user.
const DefaultBroadcastSentinel = "all"

// Resolver turns an optional recipient selector into the set of addresses
// a notification is delivered to.
type Resolver struct {
	sentinel         string
	selectionEnabled bool
	logger           *slog.Logger
}

// NewResolver creates a Resolver. When selectionEnabled is false every
// request is treated as a broadcast and selectors are ignored.
func NewResolver(sentinel string, selectionEnabled bool, logger *slog.Logger) *Resolver {
	if sentinel == "" {
		sentinel = DefaultBroadcastSentinel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		sentinel:         sentinel,
		selectionEnabled: selectionEnabled,
		logger:           logger,
	}
}

// IsBroadcast reports whether selector addresses the whole directory.
func (r *Resolver) IsBroadcast(selector string) bool {
	return !r.selectionEnabled || selector == "" || selector == r.sentinel
}

// Resolve returns the recipients for selector, possibly empty.
//
// A broadcast lists the directory; a listing failure is returned to the
// caller. A single-user lookup never fails the request: an unknown user, a
// lookup error or a user without an email all yield an empty set.
func (r *Resolver) Resolve(ctx context.Context, dir external.Directory, selector string) (types.RecipientSet, error) {
	if r.IsBroadcast(selector) {
		return r.resolveAll(ctx, dir)
	}
	return r.resolveOne(ctx, dir, selector), nil
}

func (r *Resolver) resolveAll(ctx context.Context, dir external.Directory) (types.RecipientSet, error) {
	users, err := dir.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(users))
	recipients := make(types.RecipientSet, 0, len(users))
	skipped := 0
	for _, u := range users {
		if u.Email == "" {
			skipped++
			continue
		}
		if _, dup := seen[u.Email]; dup {
			continue
		}
		seen[u.Email] = struct{}{}
		recipients = append(recipients, u.Email)
	}

	r.logger.InfoContext(ctx, "directory listed",
		"users", len(users),
		"recipients", len(recipients),
		"without_email", skipped,
	)
	return recipients, nil
}

func (r *Resolver) resolveOne(ctx context.Context, dir external.Directory, uid string) types.RecipientSet {
	user, err := dir.GetUser(ctx, uid)
	if err != nil {
		r.logger.WarnContext(ctx, "recipient lookup failed",
			"recipient_id", uid,
			"error", err.Error(),
		)
		return types.RecipientSet{}
	}
	if user == nil || user.Email == "" {
		r.logger.WarnContext(ctx, "recipient has no email on file", "recipient_id", uid)
		return types.RecipientSet{}
	}
	return types.RecipientSet{user.Email}
}
