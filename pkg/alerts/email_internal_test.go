package alerts

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/ogulcanaydogan/pitchwatch/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmailConfig_Configured(t *testing.T) {
	assert.False(t, EmailConfig{}.Configured())
	assert.False(t, EmailConfig{Host: "smtp.example.com", From: "a@example.com"}.Configured())
	assert.True(t, EmailConfig{Host: "smtp.example.com", From: "a@example.com", To: []string{"ops@example.com"}}.Configured())
}

func TestEmailNotifier_BuildMessage(t *testing.T) {
	n := NewEmailNotifier(EmailConfig{
		Host: "smtp.example.com",
		Port: 587,
		From: "alerts@example.com",
		To:   []string{"ops@example.com", "admin@example.com"},
	})
	assert.Equal(t, "email", n.Name())

	msg := n.buildMessage(Alert{
		RuleName:       "slow pages",
		MetricType:     model.MetricPageLoadTime,
		MetricValue:    3210.5,
		ThresholdValue: 3000,
		Operator:       model.OpGreaterThan,
		Message:        "page load too slow",
		TriggeredAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})

	assert.Equal(t, []string{"alerts@example.com"}, msg.GetHeader("From"))
	assert.Equal(t, []string{"ops@example.com", "admin@example.com"}, msg.GetHeader("To"))
	assert.Equal(t, []string{"[pitchwatch] page_load_time alert"}, msg.GetHeader("Subject"))

	var buf bytes.Buffer
	_, err := msg.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "page load too slow")
	assert.Contains(t, buf.String(), "3210.50")
}

func TestEmailNotifier_Send_CancelledContext(t *testing.T) {
	n := NewEmailNotifier(EmailConfig{Host: "127.0.0.1", Port: 1, From: "a@example.com", To: []string{"b@example.com"}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := n.Send(ctx, Alert{Message: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
