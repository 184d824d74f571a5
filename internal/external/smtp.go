package external

import (
	"context"
	"crypto/tls"
	"log/slog"
	"time"

	mail "github.com/go-mail/mail"

	"meteonotify/internal/types"
)

// SMTPClientConfig holds the configuration for creating an SMTPClient.
type SMTPClientConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	TLSMode  string // "auto" | "starttls" | "ssl" | "none"
	Timeout  time.Duration
	Logger   *slog.Logger
}

// mailDialer is the subset of *mail.Dialer used by SMTPClient.
type mailDialer interface {
	DialAndSend(m ...*mail.Message) error
}

// SMTPClient implements EmailProvider over a plain SMTP relay. SMTP assigns
// no message id, so Send always returns an empty one.
type SMTPClient struct {
	dialer mailDialer
	logger *slog.Logger
}

// NewSMTPClient creates an SMTPClient from cfg.
func NewSMTPClient(cfg SMTPClientConfig) *SMTPClient {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: cfg.Host}
	if cfg.Timeout > 0 {
		d.Timeout = cfg.Timeout
	}

	switch cfg.TLSMode {
	case "ssl":
		d.SSL = true
	case "starttls":
		d.StartTLSPolicy = mail.MandatoryStartTLS
	case "none":
		d.StartTLSPolicy = mail.NoStartTLS
	default:
		// "auto": STARTTLS when the server offers it.
	}

	return newSMTPClientWithDialer(d, cfg.Logger)
}

func newSMTPClientWithDialer(d mailDialer, logger *slog.Logger) *SMTPClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPClient{dialer: d, logger: logger}
}

// Send delivers one message to every address in input.To and input.Bcc over a
// single SMTP session.
func (s *SMTPClient) Send(ctx context.Context, input types.SendInput) (string, error) {
	// The dialer has no context support; honour cancellation up front.
	if err := ctx.Err(); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamEmailProvider, "smtp send cancelled", err)
	}

	m := buildSMTPMessage(input)
	if err := s.dialer.DialAndSend(m); err != nil {
		return "", types.NewAppError(
			types.ErrCodeUpstreamEmailProvider,
			"smtp send failed",
			err,
		)
	}

	s.logger.DebugContext(ctx, "smtp relay accepted message",
		"recipients", input.Recipients(),
	)
	return "", nil
}

// buildSMTPMessage maps a SendInput onto a single-part HTML message.
func buildSMTPMessage(input types.SendInput) *mail.Message {
	m := mail.NewMessage()
	m.SetAddressHeader("From", input.From.Address, input.From.Name)
	if len(input.To) > 0 {
		m.SetHeader("To", input.To...)
	}
	if len(input.Bcc) > 0 {
		m.SetHeader("Bcc", input.Bcc...)
	}
	m.SetHeader("Subject", input.Subject)
	if input.ReferenceID != "" {
		m.SetHeader("X-Reference-ID", input.ReferenceID)
	}
	m.SetBody("text/html", input.HTML)
	return m
}

// Compile-time assertion that SMTPClient satisfies EmailProvider.
var _ EmailProvider = (*SMTPClient)(nil)
