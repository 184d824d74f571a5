package external

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"meteonotify/internal/types"
)

// SESAPI defines the subset of the SES v2 client used by SESClient.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESClientConfig configures an SESClient.
type SESClientConfig struct {
	// ConfigSetName is SES_CONFIGURATION_SET; empty sends without one.
	ConfigSetName string
	Logger        *slog.Logger
}

// SESClient sends through AWS SES v2 with the function's IAM role.
type SESClient struct {
	api           SESAPI
	configSetName string
	logger        *slog.Logger
}

// NewSESClient creates a new SESClient from an AWS config. The SDK retryer
// is limited to a single attempt so each dispatch maps to one SES call.
func NewSESClient(awsCfg aws.Config, cfg SESClientConfig) *SESClient {
	api := sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
		o.RetryMaxAttempts = 1
	})
	return NewSESClientWithAPI(api, cfg)
}

// NewSESClientWithAPI creates an SESClient with a pre-configured SESAPI.
func NewSESClientWithAPI(api SESAPI, cfg SESClientConfig) *SESClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &SESClient{
		api:           api,
		configSetName: cfg.ConfigSetName,
		logger:        logger,
	}
}

// Send submits one SendEmail call. input.To and input.Bcc map onto the SES
// destination lists, so bcc dispatch stays a single call.
func (s *SESClient) Send(ctx context.Context, input types.SendInput) (string, error) {
	result, err := s.api.SendEmail(ctx, s.buildInput(input))
	if err != nil {
		return "", mapSESError(err)
	}

	msgID := aws.ToString(result.MessageId)
	s.logger.DebugContext(ctx, "ses accepted message",
		"message_id", msgID,
		"recipients", input.Recipients(),
	)
	return msgID, nil
}

func (s *SESClient) buildInput(input types.SendInput) *sesv2.SendEmailInput {
	utf8 := func(v string) *sestypes.Content {
		return &sestypes.Content{Data: aws.String(v), Charset: aws.String("UTF-8")}
	}

	out := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(input.From.String()),
		Destination: &sestypes.Destination{
			ToAddresses:  input.To,
			BccAddresses: input.Bcc,
		},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: utf8(input.Subject),
				Body:    &sestypes.Body{Html: utf8(input.HTML)},
			},
		},
	}
	if s.configSetName != "" {
		out.ConfigurationSetName = aws.String(s.configSetName)
	}
	if input.ReferenceID != "" {
		out.EmailTags = []sestypes.MessageTag{{Name: aws.String("reference_id"), Value: aws.String(input.ReferenceID)}}
	}
	return out
}

// mapSESError classifies SES failures. The SDK error stays wrapped so the
// response details carry the provider's own text.
func mapSESError(err error) error {
	var (
		rejected   *sestypes.MessageRejected
		unverified *sestypes.MailFromDomainNotVerifiedException
		throttled  *sestypes.TooManyRequestsException
		paused     *sestypes.SendingPausedException
	)

	switch {
	case errors.As(err, &rejected), errors.As(err, &unverified):
		return types.NewAppError(types.ErrCodeEmailBlocked, "ses rejected message", err)
	case errors.As(err, &throttled):
		return types.NewAppError(types.ErrCodeUpstreamRateLimited, "ses rate limit exceeded", err)
	case errors.As(err, &paused):
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "ses account sending paused", err)
	default:
		return types.NewAppError(types.ErrCodeUpstreamEmailProvider, "ses send failed", err)
	}
}

// Compile-time assertion that SESClient satisfies EmailProvider.
var _ EmailProvider = (*SESClient)(nil)
