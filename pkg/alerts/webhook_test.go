package alerts_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ogulcanaydogan/pitchwatch/pkg/alerts"
	"github.com/ogulcanaydogan/pitchwatch/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func costAlert() alerts.Alert {
	return alerts.Alert{
		RuleID:         "rule-1",
		RuleName:       "monthly cost",
		MetricType:     model.MetricCost,
		MetricValue:    1_500_000,
		ThresholdValue: 1_000_000,
		Operator:       model.OpGreaterThan,
		Message:        "월간 비용이 1,500,000원으로 임계값(1,000,000원)을 초과했습니다.",
		TriggeredAt:    time.Now(),
	}
}

func TestWebhookNotifier_Name(t *testing.T) {
	n := alerts.NewWebhookNotifier("https://example.com/webhook", "", 0)
	assert.Equal(t, "webhook", n.Name())

	d := alerts.NewDiscordNotifier("https://discord.com/api/webhooks/1/abc", 0)
	assert.Equal(t, "discord", d.Name())
}

func TestWebhookNotifier_Send(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "pitchwatch/1.0", r.Header.Get("User-Agent"))
		assert.Equal(t, http.MethodPost, r.Method)

		err := json.NewDecoder(r.Body).Decode(&received)
		require.NoError(t, err)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := alerts.NewWebhookNotifier(server.URL, "", time.Second)
	err := n.Send(context.Background(), costAlert())
	require.NoError(t, err)

	assert.Equal(t, costAlert().Message, received["text"])
	assert.Equal(t, "cost", received["metricType"])
	assert.InDelta(t, 1_500_000, received["metricValue"], 0.001)
	assert.InDelta(t, 1_000_000, received["thresholdValue"], 0.001)
}

func TestWebhookNotifier_Send_WithHMAC(t *testing.T) {
	var signature string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signature = r.Header.Get("X-Signature-256")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n := alerts.NewWebhookNotifier(server.URL, "test-secret", time.Second)
	err := n.Send(context.Background(), costAlert())
	require.NoError(t, err)
	assert.Contains(t, signature, "sha256=")
}

func TestWebhookNotifier_Send_NoHMAC(t *testing.T) {
	var hasSignature bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hasSignature = r.Header.Get("X-Signature-256") != ""
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := alerts.NewDiscordNotifier(server.URL, time.Second)
	err := n.Send(context.Background(), costAlert())
	require.NoError(t, err)
	assert.False(t, hasSignature)
}

func TestWebhookNotifier_Send_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	n := alerts.NewWebhookNotifier(server.URL, "", time.Second)
	err := n.Send(context.Background(), costAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestWebhookNotifier_Send_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	url := server.URL
	server.Close()

	n := alerts.NewWebhookNotifier(url, "", time.Second)
	err := n.Send(context.Background(), costAlert())
	assert.Error(t, err)
}
