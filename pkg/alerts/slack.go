package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/slack-go/slack"
)

// SlackNotifier sends alerts to a Slack incoming webhook.
type SlackNotifier struct {
	webhookURL string
	channel    string
	client     *http.Client
}

// NewSlackNotifier creates a Slack webhook notifier. An empty channel keeps
// the webhook's default channel.
func NewSlackNotifier(webhookURL, channel string, timeout time.Duration) *SlackNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SlackNotifier{
		webhookURL: webhookURL,
		channel:    channel,
		client:     &http.Client{Timeout: timeout},
	}
}

func (s *SlackNotifier) Name() string { return "slack" }

func (s *SlackNotifier) Send(ctx context.Context, alert Alert) error {
	msg := &slack.WebhookMessage{
		Channel: s.channel,
		Text:    alert.Message,
		Attachments: []slack.Attachment{
			{
				Color:  "#ff0000",
				Title:  fmt.Sprintf("pitchwatch: %s", alert.MetricType),
				Fields: attachmentFields(alert),
				Footer: "pitchwatch",
				Ts:     json.Number(strconv.FormatInt(time.Now().Unix(), 10)),
			},
		},
	}

	if err := slack.PostWebhookCustomHTTPContext(ctx, s.webhookURL, s.client, msg); err != nil {
		return fmt.Errorf("send slack alert: %w", err)
	}
	return nil
}

// attachmentFields carries the same figures as the webhook payload, keyed
// by the same names.
func attachmentFields(alert Alert) []slack.AttachmentField {
	p := newPayload(alert)
	var fields []slack.AttachmentField
	if alert.RuleName != "" {
		fields = append(fields, slack.AttachmentField{Title: "rule", Value: alert.RuleName, Short: true})
	}
	fields = append(fields,
		slack.AttachmentField{Title: "metricType", Value: string(p.MetricType), Short: true},
		slack.AttachmentField{Title: "metricValue", Value: strconv.FormatFloat(p.MetricValue, 'f', -1, 64), Short: true},
		slack.AttachmentField{Title: "thresholdValue", Value: strconv.FormatFloat(p.ThresholdValue, 'f', -1, 64), Short: true},
	)
	if alert.Operator != "" {
		fields = append(fields, slack.AttachmentField{Title: "operator", Value: string(alert.Operator), Short: true})
	}
	return fields
}
