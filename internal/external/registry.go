package external

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"meteonotify/internal/config"
)

const (
	userAgent           = "MeteoNotify/1.0"
	defaultEmailTimeout = 10 * time.Second
)

// ---------------------------------------------------------------------------
// Client Registry
//
// Central factory that instantiates vendor clients based on configuration.
// In test/local mode the email provider is a stub that logs instead of
// sending. The identity directory is not built here: it depends on the
// service account credential, whose absence is a runtime state handled by
// package credential. The registry only supplies the DirectoryFactory.
// ---------------------------------------------------------------------------

// ClientRegistry holds the external service clients used by the dispatcher.
type ClientRegistry struct {
	Email     EmailProvider
	Directory DirectoryFactory
}

// NewClientRegistry initializes external service clients. awsCfg is only
// consulted when EMAIL_PROVIDER=ses.
func NewClientRegistry(cfg *config.Config, awsCfg aws.Config, logger *slog.Logger) (*ClientRegistry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	email, err := newEmailProvider(cfg, awsCfg, logger)
	if err != nil {
		return nil, err
	}

	return &ClientRegistry{
		Email:     email,
		Directory: NewFirebaseDirectoryFactory(cfg.Email.HTTPTimeout, logger.With("client", "firebase")),
	}, nil
}

// newEmailProvider selects the EmailProvider named by EMAIL_PROVIDER.
func newEmailProvider(cfg *config.Config, awsCfg aws.Config, logger *slog.Logger) (EmailProvider, error) {
	useStubs := cfg.IsTestMode || cfg.IsLocal() || cfg.Email.Provider == "stub"
	if useStubs {
		logger.Info("initializing email provider in STUB mode",
			"is_test_mode", cfg.IsTestMode,
			"environment", cfg.Environment,
		)
		return NewStubEmailProvider(logger.With("mode", "stub")), nil
	}

	logger.Info("initializing email provider",
		"provider", cfg.Email.Provider,
		"environment", cfg.Environment,
	)

	timeout := cfg.Email.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultEmailTimeout
	}

	switch cfg.Email.Provider {
	case "resend":
		if cfg.Email.ResendAPIKey.IsEmpty() {
			return nil, fmt.Errorf("RESEND_API_KEY is required when EMAIL_PROVIDER=resend")
		}
		client, err := NewResendClient(NewHTTPClient("resend", timeout, userAgent), ResendClientConfig{
			APIKey:  cfg.Email.ResendAPIKey.Unmask(),
			BaseURL: cfg.Email.ResendBaseURL,
			Logger:  logger.With("client", "resend"),
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	case "ses":
		return NewSESClient(awsCfg, SESClientConfig{
			ConfigSetName: cfg.Email.SESConfigurationSet,
			Logger:        logger.With("client", "ses"),
		}), nil
	case "smtp":
		return NewSMTPClient(SMTPClientConfig{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.SMTPUsername,
			Password: cfg.Email.SMTPPassword.Unmask(),
			TLSMode:  cfg.Email.SMTPTLSMode,
			Timeout:  timeout,
			Logger:   logger.With("client", "smtp"),
		}), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Email.Provider)
	}
}

// NewFirebaseDirectoryFactory returns a DirectoryFactory that builds a
// FirebaseDirectory whose HTTP calls are bounded by timeout.
func NewFirebaseDirectoryFactory(timeout time.Duration, logger *slog.Logger) DirectoryFactory {
	return func(ctx context.Context, serviceAccountJSON []byte) (Directory, error) {
		return NewFirebaseDirectory(ctx, serviceAccountJSON, timeout, logger)
	}
}
