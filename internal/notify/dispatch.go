package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"meteonotify/internal/external"
	"meteonotify/internal/types"
)

// DispatcherConfig selects the delivery strategy and sender identity.
type DispatcherConfig struct {
	Mode types.DispatchMode
	From types.SenderIdentity

	// PlaceholderTo is the visible "to" address in bcc mode. Empty means the
	// sender address.
	PlaceholderTo string
}

// Dispatcher submits a rendered message to the email provider.
type Dispatcher struct {
	provider external.EmailProvider
	cfg      DispatcherConfig
	metrics  Metrics
	logger   *slog.Logger

	newReferenceID func() string
}

// NewDispatcher creates a Dispatcher. An unknown mode falls back to
// DispatchTo.
func NewDispatcher(provider external.EmailProvider, cfg DispatcherConfig, metrics Metrics, logger *slog.Logger) *Dispatcher {
	if !cfg.Mode.Valid() {
		cfg.Mode = types.DispatchTo
	}
	if cfg.PlaceholderTo == "" {
		cfg.PlaceholderTo = cfg.From.Address
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		provider:       provider,
		cfg:            cfg,
		metrics:        metrics,
		logger:         logger,
		newReferenceID: uuid.NewString,
	}
}

// Mode returns the configured delivery strategy.
func (d *Dispatcher) Mode() types.DispatchMode {
	return d.cfg.Mode
}

// Dispatch delivers msg to recipients and returns one outcome per provider
// call. The returned error is non-nil if any call failed, even when others
// were accepted.
func (d *Dispatcher) Dispatch(ctx context.Context, recipients types.RecipientSet, msg types.NotificationMessage) ([]types.SendOutcome, error) {
	start := time.Now()
	refID := d.newReferenceID()

	var (
		outcomes []types.SendOutcome
		err      error
	)
	switch d.cfg.Mode {
	case types.DispatchFanout:
		outcomes, err = d.fanout(ctx, refID, recipients, msg)
	case types.DispatchBcc:
		outcome := d.send(ctx, types.SendInput{
			To:          []string{d.cfg.PlaceholderTo},
			Bcc:         recipients,
			ReferenceID: refID,
		}, msg)
		outcomes, err = []types.SendOutcome{outcome}, outcome.Err
	default:
		outcome := d.send(ctx, types.SendInput{
			To:          recipients,
			ReferenceID: refID,
		}, msg)
		outcomes, err = []types.SendOutcome{outcome}, outcome.Err
	}

	elapsed := time.Since(start)
	result := MetricSuccess
	if err != nil {
		result = MetricFailed
	}
	d.metrics.RecordDispatch(ctx, d.cfg.Mode, result, len(recipients))
	d.metrics.RecordLatency(ctx, d.cfg.Mode, elapsed)

	d.logger.InfoContext(ctx, "dispatch completed",
		"mode", string(d.cfg.Mode),
		"reference_id", refID,
		"recipients", len(recipients),
		"provider_calls", len(outcomes),
		"result", string(result),
		"duration_ms", elapsed.Milliseconds(),
	)
	return outcomes, err
}

// fanout issues one provider call per recipient concurrently and waits for
// all of them. Failures do not cancel the remaining sends.
func (d *Dispatcher) fanout(ctx context.Context, refID string, recipients types.RecipientSet, msg types.NotificationMessage) ([]types.SendOutcome, error) {
	outcomes := make([]types.SendOutcome, len(recipients))

	var g errgroup.Group
	for i, rcpt := range recipients {
		g.Go(func() error {
			outcomes[i] = d.send(ctx, types.SendInput{
				To:          []string{rcpt},
				ReferenceID: fmt.Sprintf("%s-%d", refID, i),
			}, msg)
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, o := range outcomes {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	if len(errs) == 0 {
		return outcomes, nil
	}

	for _, o := range outcomes {
		if o.Err != nil {
			d.logger.WarnContext(ctx, "fanout send failed",
				"recipient", types.RedactEmails(o.Recipients),
				"error", o.Err.Error(),
			)
		}
	}

	return outcomes, types.NewAppErrorWithDetails(
		types.ErrCodeUpstreamEmailProvider,
		fmt.Sprintf("%d of %d sends failed", len(errs), len(outcomes)),
		errors.Join(errs...),
		map[string]any{
			"failed": len(errs),
			"sent":   len(outcomes) - len(errs),
		},
	)
}

func (d *Dispatcher) send(ctx context.Context, input types.SendInput, msg types.NotificationMessage) types.SendOutcome {
	input.From = d.cfg.From
	input.Subject = msg.Subject
	input.HTML = msg.HTMLBody

	// The bcc placeholder is not a recipient.
	addrs := input.To
	if len(input.Bcc) > 0 {
		addrs = input.Bcc
	}

	msgID, err := d.provider.Send(ctx, input)
	return types.SendOutcome{
		Recipients:        addrs,
		ProviderMessageID: msgID,
		Err:               err,
	}
}
