package notify

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meteonotify/internal/types"
)

var testSender = types.SenderIdentity{Name: "METEO Burkina", Address: "onboarding@resend.dev"}

var testMessage = types.NotificationMessage{Subject: "Nouveau bulletin publié par METEO Burkina", HTMLBody: "<p>x</p>"}

func newTestDispatcher(provider *fakeProvider, mode types.DispatchMode, metrics Metrics) *Dispatcher {
	d := NewDispatcher(provider, DispatcherConfig{Mode: mode, From: testSender}, metrics, testLogger())
	d.newReferenceID = func() string { return "ref" }
	return d
}

func TestDispatcher_ToMode(t *testing.T) {
	provider := &fakeProvider{}
	d := newTestDispatcher(provider, types.DispatchTo, nil)

	outcomes, err := d.Dispatch(context.Background(), types.RecipientSet{"a@x.com", "b@x.com"}, testMessage)
	require.NoError(t, err)

	sent := provider.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, sent[0].To)
	assert.Empty(t, sent[0].Bcc)
	assert.Equal(t, testSender, sent[0].From)
	assert.Equal(t, testMessage.Subject, sent[0].Subject)
	assert.Equal(t, testMessage.HTMLBody, sent[0].HTML)
	assert.Equal(t, "ref", sent[0].ReferenceID)

	require.Len(t, outcomes, 1)
	assert.Equal(t, "msg_ref", outcomes[0].ProviderMessageID)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, outcomes[0].Recipients)
}

func TestDispatcher_ToModeFailsAtomically(t *testing.T) {
	providerErr := types.NewAppError(types.ErrCodeUpstreamEmailProvider, "resend rejected send request", errors.New("invalid from"))
	provider := &fakeProvider{err: providerErr}
	d := newTestDispatcher(provider, types.DispatchTo, nil)

	outcomes, err := d.Dispatch(context.Background(), types.RecipientSet{"a@x.com", "b@x.com"}, testMessage)

	assert.ErrorIs(t, err, providerErr)
	require.Len(t, outcomes, 1)
	assert.Len(t, provider.sent(), 1)
}

func TestDispatcher_BccModeUsesPlaceholder(t *testing.T) {
	provider := &fakeProvider{}
	d := NewDispatcher(provider, DispatcherConfig{
		Mode:          types.DispatchBcc,
		From:          testSender,
		PlaceholderTo: "noreply@meteoburkina.bf",
	}, nil, testLogger())

	outcomes, err := d.Dispatch(context.Background(), types.RecipientSet{"a@x.com", "b@x.com"}, testMessage)
	require.NoError(t, err)

	sent := provider.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"noreply@meteoburkina.bf"}, sent[0].To)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, sent[0].Bcc)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, outcomes[0].Recipients)
}

func TestDispatcher_BccModeDefaultsPlaceholderToSender(t *testing.T) {
	provider := &fakeProvider{}
	d := newTestDispatcher(provider, types.DispatchBcc, nil)

	_, err := d.Dispatch(context.Background(), types.RecipientSet{"a@x.com"}, testMessage)
	require.NoError(t, err)

	assert.Equal(t, []string{testSender.Address}, provider.sent()[0].To)
}

func TestDispatcher_FanoutAllSucceed(t *testing.T) {
	provider := &fakeProvider{}
	d := newTestDispatcher(provider, types.DispatchFanout, nil)

	recipients := types.RecipientSet{"a@x.com", "b@x.com", "c@x.com"}
	outcomes, err := d.Dispatch(context.Background(), recipients, testMessage)
	require.NoError(t, err)

	sent := provider.sent()
	require.Len(t, sent, 3)

	var to []string
	for _, in := range sent {
		require.Len(t, in.To, 1)
		to = append(to, in.To[0])
	}
	sort.Strings(to)
	assert.Equal(t, []string{"a@x.com", "b@x.com", "c@x.com"}, to)

	require.Len(t, outcomes, 3)
	for i, o := range outcomes {
		assert.Equal(t, []string{recipients[i]}, o.Recipients)
		assert.NoError(t, o.Err)
		assert.NotEmpty(t, o.ProviderMessageID)
	}
}

func TestDispatcher_FanoutPartialFailureIsReportedAsFailure(t *testing.T) {
	bounce := errors.New("mailbox unavailable")
	provider := &fakeProvider{failFor: map[string]error{"b@x.com": bounce}}
	metrics := &recordingMetrics{}
	d := newTestDispatcher(provider, types.DispatchFanout, metrics)

	outcomes, err := d.Dispatch(context.Background(), types.RecipientSet{"a@x.com", "b@x.com", "c@x.com"}, testMessage)

	require.Error(t, err)
	assert.ErrorIs(t, err, bounce)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamEmailProvider, appErr.Code)
	assert.Equal(t, 1, appErr.Details["failed"])
	assert.Equal(t, 2, appErr.Details["sent"])

	// Every recipient was attempted; one failure does not cancel the others.
	assert.Len(t, provider.sent(), 3)
	require.Len(t, outcomes, 3)
	assert.NoError(t, outcomes[0].Err)
	assert.ErrorIs(t, outcomes[1].Err, bounce)
	assert.NoError(t, outcomes[2].Err)

	assert.Equal(t, []MetricResult{MetricFailed}, metrics.dispatches)
}

func TestDispatcher_RecordsMetrics(t *testing.T) {
	metrics := &recordingMetrics{}
	d := newTestDispatcher(&fakeProvider{}, types.DispatchTo, metrics)

	_, err := d.Dispatch(context.Background(), types.RecipientSet{"a@x.com"}, testMessage)
	require.NoError(t, err)

	assert.Equal(t, []MetricResult{MetricSuccess}, metrics.dispatches)
	assert.Equal(t, []types.DispatchMode{types.DispatchTo}, metrics.modes)
	assert.Equal(t, 1, metrics.latencies)
}

func TestNewDispatcher_UnknownModeFallsBackToTo(t *testing.T) {
	d := NewDispatcher(&fakeProvider{}, DispatcherConfig{Mode: "carrier-pigeon", From: testSender}, nil, nil)
	assert.Equal(t, types.DispatchTo, d.Mode())
}
