package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"meteonotify/internal/types"
)

// Metric names and dimensions.
const (
	MetricNotificationsDispatched = "NotificationsDispatched"
	MetricRecipientsResolved      = "RecipientsResolved"
	MetricDispatchLatency         = "DispatchLatency"

	DimMode      = "Mode"
	DimResult    = "Result"
	DimSelection = "Selection"
)

// MetricResult is the Result dimension value of a dispatch.
type MetricResult string

const (
	MetricSuccess MetricResult = "success"
	MetricFailed  MetricResult = "failed"
)

// Metrics records notification telemetry. Implementations must not fail the
// request: emission errors are logged and swallowed.
type Metrics interface {
	RecordRecipients(ctx context.Context, broadcast bool, count int)
	RecordDispatch(ctx context.Context, mode types.DispatchMode, result MetricResult, recipients int)
	RecordLatency(ctx context.Context, mode types.DispatchMode, d time.Duration)
}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

var _ Metrics = (*CloudWatchMetrics)(nil)

// CloudWatchMetrics publishes notification metrics to AWS CloudWatch.
//
// Metrics emitted:
//   - NotificationsDispatched: Dims {Mode, Result}, value is the recipient count
//   - RecipientsResolved: Dims {Selection}, value is the resolved set size
//   - DispatchLatency: Dims {Mode}, milliseconds spent in the provider
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchMetrics creates a CloudWatchMetrics publishing to namespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordRecipients emits RecipientsResolved with the Selection dimension set
// to "broadcast" or "single".
func (m *CloudWatchMetrics) RecordRecipients(ctx context.Context, broadcast bool, count int) {
	selection := "single"
	if broadcast {
		selection = "broadcast"
	}

	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(MetricRecipientsResolved),
		Value:      aws.Float64(float64(count)),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(DimSelection), Value: aws.String(selection)},
		},
	})
}

// RecordDispatch emits NotificationsDispatched with Mode and Result dimensions.
func (m *CloudWatchMetrics) RecordDispatch(ctx context.Context, mode types.DispatchMode, result MetricResult, recipients int) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(MetricNotificationsDispatched),
		Value:      aws.Float64(float64(recipients)),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(DimMode), Value: aws.String(string(mode))},
			{Name: aws.String(DimResult), Value: aws.String(string(result))},
		},
	})
}

// RecordLatency emits DispatchLatency in milliseconds with the Mode dimension.
func (m *CloudWatchMetrics) RecordLatency(ctx context.Context, mode types.DispatchMode, d time.Duration) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(MetricDispatchLatency),
		Value:      aws.Float64(float64(d.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(DimMode), Value: aws.String(string(mode))},
		},
	})
}

func (m *CloudWatchMetrics) put(ctx context.Context, datum cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to record metric",
			"error", err.Error(),
			"metric", aws.ToString(datum.MetricName),
		)
	}
}

// NoopMetrics discards every metric. Used when METRICS_ENABLED is false.
type NoopMetrics struct{}

func (NoopMetrics) RecordRecipients(context.Context, bool, int) {}
func (NoopMetrics) RecordDispatch(context.Context, types.DispatchMode, MetricResult, int) {}
func (NoopMetrics) RecordLatency(context.Context, types.DispatchMode, time.Duration) {}
