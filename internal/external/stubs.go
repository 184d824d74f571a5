package external

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"meteonotify/internal/types"
)

// ---------------------------------------------------------------------------
// Stub Implementations
//
// Stubs allow the service to boot in local/test mode without real vendor
// credentials. They log every call and return predictable values.
// ---------------------------------------------------------------------------

// StubEmailProvider implements EmailProvider by logging calls and returning
// a fake message ID. Used when EMAIL_PROVIDER=stub, IsTestMode is true or
// APP_ENV=local.
type StubEmailProvider struct {
	logger *slog.Logger
}

// NewStubEmailProvider creates a new StubEmailProvider.
func NewStubEmailProvider(logger *slog.Logger) *StubEmailProvider {
	return &StubEmailProvider{logger: logger}
}

func (s *StubEmailProvider) Send(ctx context.Context, input types.SendInput) (string, error) {
	s.logger.InfoContext(ctx, "stub: Send email called",
		"to", types.RedactEmails(input.To),
		"bcc_count", len(input.Bcc),
		"subject", input.Subject,
		"from", input.From.Address,
	)
	return fmt.Sprintf("msg_stub_%s", uuid.NewString()), nil
}

// StubDirectory implements Directory over a fixed list of accounts. UIDs are
// "stub-user-<n>" in list order, starting at 1.
type StubDirectory struct {
	users  []types.DirectoryUser
	logger *slog.Logger
}

// NewStubDirectory creates a StubDirectory holding one account per email.
func NewStubDirectory(logger *slog.Logger, emails ...string) *StubDirectory {
	users := make([]types.DirectoryUser, len(emails))
	for i, e := range emails {
		users[i] = types.DirectoryUser{UID: fmt.Sprintf("stub-user-%d", i+1), Email: e}
	}
	return &StubDirectory{users: users, logger: logger}
}

func (s *StubDirectory) ListUsers(ctx context.Context) ([]types.DirectoryUser, error) {
	s.logger.InfoContext(ctx, "stub: ListUsers called", "count", len(s.users))
	out := make([]types.DirectoryUser, len(s.users))
	copy(out, s.users)
	return out, nil
}

func (s *StubDirectory) GetUser(ctx context.Context, uid string) (*types.DirectoryUser, error) {
	s.logger.InfoContext(ctx, "stub: GetUser called", "uid", uid)
	for _, u := range s.users {
		if u.UID == uid {
			found := u
			return &found, nil
		}
	}
	return nil, types.NewAppError(
		types.ErrCodeNotFoundUser,
		fmt.Sprintf("no directory user with uid %q", uid),
		nil,
	)
}

// ---------------------------------------------------------------------------
// Interface Compliance
// ---------------------------------------------------------------------------

var _ EmailProvider = (*StubEmailProvider)(nil)
var _ Directory = (*StubDirectory)(nil)
