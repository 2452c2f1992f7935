package alerts

import (
	"context"
	"time"

	"github.com/ogulcanaydogan/pitchwatch/pkg/model"
)

// Alert is one triggered rule, as handed to a channel.
type Alert struct {
	RuleID         string           `json:"rule_id"`
	RuleName       string           `json:"rule_name"`
	MetricType     model.MetricType `json:"metric_type"`
	MetricValue    float64          `json:"metric_value"`
	ThresholdValue float64          `json:"threshold_value"`
	Operator       model.Operator   `json:"operator"`
	Message        string           `json:"message"`
	TriggeredAt    time.Time        `json:"triggered_at"`
}

// Notifier sends alerts to external systems.
type Notifier interface {
	// Name returns the channel this notifier serves.
	Name() string

	// Send delivers an alert. Implementations must be safe for concurrent use.
	Send(ctx context.Context, alert Alert) error
}

// payload is the JSON body posted to webhook-style channels.
type payload struct {
	Text           string           `json:"text"`
	MetricType     model.MetricType `json:"metricType"`
	MetricValue    float64          `json:"metricValue"`
	ThresholdValue float64          `json:"thresholdValue"`
}

func newPayload(alert Alert) payload {
	return payload{
		Text:           alert.Message,
		MetricType:     alert.MetricType,
		MetricValue:    alert.MetricValue,
		ThresholdValue: alert.ThresholdValue,
	}
}
