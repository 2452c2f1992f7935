package evaluator

import (
	"context"
	"log/slog"
	"time"

	"github.com/ogulcanaydogan/pitchwatch/pkg/alerts"
	"github.com/ogulcanaydogan/pitchwatch/pkg/model"
)

// HistorySink records notification attempts.
type HistorySink interface {
	InsertHistory(ctx context.Context, h *model.AlertHistory) (string, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id, errMsg string) error
}

// ChannelRegistry resolves a channel name to its configured notifier.
type ChannelRegistry interface {
	Get(channel string) (alerts.Notifier, bool)
}

// Dispatcher fans a triggered rule out to its channels, one history row per
// channel.
type Dispatcher struct {
	sink     HistorySink
	channels ChannelRegistry
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// bookkeepingTimeout bounds history and trigger writes that run after the
// pass context may already be done.
const bookkeepingTimeout = 5 * time.Second

// detached returns a context that keeps ctx's values but not its deadline or
// cancellation, so a delivery outcome is still recorded when the pass ends.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
}

// NewDispatcher creates a Dispatcher recording attempts in sink.
func NewDispatcher(sink HistorySink, channels ChannelRegistry, metrics *Metrics, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		sink:     sink,
		channels: channels,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Dispatch sends the snapshot for rule to every channel in order. A failure
// on one channel never affects the others.
func (d *Dispatcher) Dispatch(ctx context.Context, rule model.AlertRule, snap Snapshot) {
	alert := alerts.Alert{
		RuleID:         rule.ID,
		RuleName:       rule.Name,
		MetricType:     rule.MetricType,
		MetricValue:    snap.Value,
		ThresholdValue: rule.ThresholdValue,
		Operator:       rule.ThresholdOperator,
		Message:        snap.Message,
		TriggeredAt:    d.now(),
	}
	for _, channel := range rule.Channels {
		d.SendAlert(ctx, alert, channel)
	}
}

// SendAlert records a pending history row for channel and attempts delivery.
// The row moves to sent or failed only when a delivery was attempted.
func (d *Dispatcher) SendAlert(ctx context.Context, alert alerts.Alert, channel string) {
	log := d.logger.With("rule", alert.RuleID, "channel", channel)

	insertCtx, cancel := detached(ctx)
	id, err := d.sink.InsertHistory(insertCtx, &model.AlertHistory{
		RuleID:         alert.RuleID,
		MetricType:     alert.MetricType,
		MetricValue:    alert.MetricValue,
		ThresholdValue: alert.ThresholdValue,
		Message:        alert.Message,
		Channel:        channel,
		Status:         model.StatusPending,
	})
	cancel()
	if err != nil {
		log.Error("record alert history failed", "error", err)
		d.metrics.delivery(channel, "history_error")
		return
	}

	notifier, ok := d.channels.Get(channel)
	if !ok {
		if channel == model.ChannelEmail {
			log.Info("email channel not configured, alert left pending", "history", id, "message", alert.Message)
		} else {
			log.Debug("channel not configured, alert left pending", "history", id)
		}
		d.metrics.delivery(channel, string(model.StatusPending))
		return
	}

	sendErr := notifier.Send(ctx, alert)

	writeCtx, cancel := detached(ctx)
	defer cancel()

	if sendErr != nil {
		log.Error("send alert failed", "history", id, "error", sendErr)
		d.metrics.delivery(channel, string(model.StatusFailed))
		if err := d.sink.MarkFailed(writeCtx, id, sendErr.Error()); err != nil {
			log.Error("mark alert failed", "history", id, "error", err)
		}
		return
	}

	d.metrics.delivery(channel, string(model.StatusSent))
	if err := d.sink.MarkSent(writeCtx, id, d.now()); err != nil {
		log.Error("mark alert sent", "history", id, "error", err)
	}
}
