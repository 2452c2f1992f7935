package alerts_test

import (
	"testing"

	"github.com/ogulcanaydogan/pitchwatch/pkg/alerts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := alerts.NewRegistry()
	require.NoError(t, r.Register(alerts.NewWebhookNotifier("https://example.com/hook", "", 0)))
	require.NoError(t, r.Register(alerts.NewSlackNotifier("https://hooks.slack.com/x", "", 0)))

	n, ok := r.Get("webhook")
	require.True(t, ok)
	assert.Equal(t, "webhook", n.Name())

	_, ok = r.Get("discord")
	assert.False(t, ok)

	assert.Equal(t, []string{"slack", "webhook"}, r.List())
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	r := alerts.NewRegistry()
	require.NoError(t, r.Register(alerts.NewWebhookNotifier("https://example.com/a", "", 0)))

	err := r.Register(alerts.NewWebhookNotifier("https://example.com/b", "", 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistry_NilGet(t *testing.T) {
	var r *alerts.Registry
	_, ok := r.Get("webhook")
	assert.False(t, ok)
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://hooks.slack.com/services/T/B/X", false},
		{"http://localhost:9000/hook", false},
		{"ftp://example.com/hook", true},
		{"hooks.slack.com/services", true},
		{"https://", true},
		{"://bad", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := alerts.ValidateURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
