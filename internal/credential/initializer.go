package credential

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"meteonotify/internal/external"
	"meteonotify/internal/types"
)

// keyPrefixLen is how much of a malformed credential is logged.
const keyPrefixLen = 20

// serviceAccount holds the non-secret fields logged after a successful parse.
type serviceAccount struct {
	Type        string `json:"type"`
	ProjectID   string `json:"project_id"`
	ClientEmail string `json:"client_email"`
}

// Initializer turns the raw service account credential into a State exactly
// once per process. Later calls return the first result regardless of their
// arguments.
type Initializer struct {
	factory external.DirectoryFactory
	logger  *slog.Logger

	once  sync.Once
	state *State
}

// NewInitializer creates an Initializer that builds directories with factory.
func NewInitializer(factory external.DirectoryFactory, logger *slog.Logger) *Initializer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Initializer{factory: factory, logger: logger}
}

// Init resolves the credential. It never returns nil and never fails: every
// problem is captured in the returned State and logged.
func (i *Initializer) Init(ctx context.Context, key types.SecretString) *State {
	i.once.Do(func() {
		i.state = i.initialize(ctx, key)
	})
	return i.state
}

func (i *Initializer) initialize(ctx context.Context, key types.SecretString) *State {
	if key.IsEmpty() {
		i.logger.ErrorContext(ctx, "FIREBASE_SERVICE_ACCOUNT_KEY is not set; identity directory unavailable")
		return Failed(ReasonMissing)
	}

	raw := []byte(key.Unmask())

	var sa serviceAccount
	if err := json.Unmarshal(raw, &sa); err != nil {
		i.logger.ErrorContext(ctx, "CRITICAL: Failed to parse FIREBASE_SERVICE_ACCOUNT_KEY",
			"error", err,
			"key_prefix", key.Prefix(keyPrefixLen),
		)
		return Failed(ReasonCorrupt)
	}

	dir, err := i.factory(ctx, raw)
	if err != nil {
		i.logger.ErrorContext(ctx, "failed to initialize identity directory client",
			"error", err,
			"project_id", sa.ProjectID,
		)
		return Failed(ReasonClientFailure)
	}

	i.logger.InfoContext(ctx, "identity directory initialized",
		"project_id", sa.ProjectID,
		"client_email", types.RedactEmail(sa.ClientEmail),
	)
	return Ready(dir)
}
