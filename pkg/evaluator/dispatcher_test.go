package evaluator_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ogulcanaydogan/pitchwatch/pkg/alerts"
	"github.com/ogulcanaydogan/pitchwatch/pkg/evaluator"
	"github.com/ogulcanaydogan/pitchwatch/pkg/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func breachingCostRule(channels ...string) model.AlertRule {
	return model.AlertRule{
		ID:                "rule-1",
		Name:              "monthly cost",
		MetricType:        model.MetricCost,
		ThresholdValue:    1_000_000,
		ThresholdOperator: model.OpGreaterThan,
		Enabled:           true,
		Channels:          channels,
	}
}

func TestDispatcher_ConfiguredAndMissingChannels(t *testing.T) {
	store := newTestStore(t)
	slackHook := newEndpoint(t, http.StatusOK)

	registry := alerts.NewRegistry()
	require.NoError(t, registry.Register(alerts.NewSlackNotifier(slackHook.URL, "", time.Second)))

	d := evaluator.NewDispatcher(store, registry, nil, testLogger())
	d.Dispatch(context.Background(), breachingCostRule("slack", "discord"), evaluator.Snapshot{Value: 1_500_000, Message: "over"})

	rows := historyByChannel(t, store)
	require.Len(t, rows, 2)
	assert.Equal(t, model.StatusSent, rows["slack"].Status)
	assert.NotNil(t, rows["slack"].SentAt)
	assert.Equal(t, model.StatusPending, rows["discord"].Status)
	assert.Nil(t, rows["discord"].SentAt)
	assert.Equal(t, int32(1), slackHook.hits.Load())
}

func TestDispatcher_FailureDoesNotBlockLaterChannels(t *testing.T) {
	store := newTestStore(t)
	slackHook := newEndpoint(t, http.StatusInternalServerError)
	webhook := newEndpoint(t, http.StatusOK)

	registry := alerts.NewRegistry()
	require.NoError(t, registry.Register(alerts.NewSlackNotifier(slackHook.URL, "", time.Second)))
	require.NoError(t, registry.Register(alerts.NewWebhookNotifier(webhook.URL, "", time.Second)))

	d := evaluator.NewDispatcher(store, registry, nil, testLogger())
	d.Dispatch(context.Background(), breachingCostRule("slack", "discord", "webhook"), evaluator.Snapshot{Value: 1_500_000, Message: "over"})

	rows := historyByChannel(t, store)
	require.Len(t, rows, 3)
	assert.Equal(t, model.StatusFailed, rows["slack"].Status)
	assert.NotEmpty(t, rows["slack"].ErrorMessage)
	assert.Equal(t, model.StatusPending, rows["discord"].Status)
	assert.Equal(t, model.StatusSent, rows["webhook"].Status)

	for _, h := range rows {
		assert.Equal(t, "rule-1", h.RuleID)
		assert.Equal(t, model.MetricCost, h.MetricType)
		assert.Equal(t, 1_500_000.0, h.MetricValue)
		assert.Equal(t, 1_000_000.0, h.ThresholdValue)
		assert.Equal(t, "over", h.Message)
	}
}

func TestDispatcher_UnconfiguredEmailAndUnknownChannel(t *testing.T) {
	store := newTestStore(t)

	d := evaluator.NewDispatcher(store, alerts.NewRegistry(), nil, testLogger())
	d.Dispatch(context.Background(), breachingCostRule("email", "pager"), evaluator.Snapshot{Value: 2, Message: "m"})

	rows := historyByChannel(t, store)
	require.Len(t, rows, 2)
	assert.Equal(t, model.StatusPending, rows["email"].Status)
	assert.Equal(t, model.StatusPending, rows["pager"].Status)
}

// flakySink fails history inserts for one channel.
type flakySink struct {
	evaluator.HistorySink
	failChannel string
}

func (f *flakySink) InsertHistory(ctx context.Context, h *model.AlertHistory) (string, error) {
	if h.Channel == f.failChannel {
		return "", errors.New("disk full")
	}
	return f.HistorySink.InsertHistory(ctx, h)
}

func TestDispatcher_InsertFailureAbortsOnlyThatChannel(t *testing.T) {
	store := newTestStore(t)
	slackHook := newEndpoint(t, http.StatusOK)
	webhook := newEndpoint(t, http.StatusOK)

	registry := alerts.NewRegistry()
	require.NoError(t, registry.Register(alerts.NewSlackNotifier(slackHook.URL, "", time.Second)))
	require.NoError(t, registry.Register(alerts.NewWebhookNotifier(webhook.URL, "", time.Second)))

	d := evaluator.NewDispatcher(&flakySink{HistorySink: store, failChannel: "slack"}, registry, nil, testLogger())
	d.Dispatch(context.Background(), breachingCostRule("slack", "webhook"), evaluator.Snapshot{Value: 2, Message: "m"})

	assert.Zero(t, slackHook.hits.Load(), "no delivery without a history row")
	assert.Equal(t, int32(1), webhook.hits.Load())

	rows := historyByChannel(t, store)
	require.Len(t, rows, 1)
	assert.Equal(t, model.StatusSent, rows["webhook"].Status)
}

func TestDispatcher_Metrics(t *testing.T) {
	store := newTestStore(t)
	webhook := newEndpoint(t, http.StatusOK)

	registry := alerts.NewRegistry()
	require.NoError(t, registry.Register(alerts.NewWebhookNotifier(webhook.URL, "", time.Second)))

	reg := prometheus.NewRegistry()
	d := evaluator.NewDispatcher(store, registry, evaluator.NewMetrics(reg), testLogger())
	d.Dispatch(context.Background(), breachingCostRule("webhook", "discord"), evaluator.Snapshot{Value: 2, Message: "m"})

	expected := `
# HELP pitchwatch_deliveries_total Notification attempts by channel and outcome.
# TYPE pitchwatch_deliveries_total counter
pitchwatch_deliveries_total{channel="discord",status="pending"} 1
pitchwatch_deliveries_total{channel="webhook",status="sent"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "pitchwatch_deliveries_total"))
}

func TestDispatcher_CancelledContextStillRecordsFailure(t *testing.T) {
	store := newTestStore(t)
	webhook := newEndpoint(t, http.StatusOK)

	registry := alerts.NewRegistry()
	require.NoError(t, registry.Register(alerts.NewWebhookNotifier(webhook.URL, "", time.Second)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := evaluator.NewDispatcher(store, registry, nil, testLogger())
	d.Dispatch(ctx, breachingCostRule("webhook", "slack"), evaluator.Snapshot{Value: 2, Message: "m"})

	rows := historyByChannel(t, store)
	require.Len(t, rows, 2)
	assert.Equal(t, model.StatusFailed, rows["webhook"].Status)
	assert.Contains(t, rows["webhook"].ErrorMessage, "context canceled")
	assert.Equal(t, model.StatusPending, rows["slack"].Status)
}
