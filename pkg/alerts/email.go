package alerts

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/gomail.v2"
)

// EmailConfig holds SMTP delivery settings.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// Configured reports whether enough settings exist to send mail.
func (c EmailConfig) Configured() bool {
	return c.Host != "" && c.From != "" && len(c.To) > 0
}

// EmailNotifier delivers alerts over SMTP.
type EmailNotifier struct {
	cfg    EmailConfig
	dialer *gomail.Dialer
}

// NewEmailNotifier creates an SMTP notifier.
func NewEmailNotifier(cfg EmailConfig) *EmailNotifier {
	return &EmailNotifier{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (e *EmailNotifier) Name() string { return "email" }

// Send dials the SMTP server once per alert. gomail has no context support,
// so cancellation is only honoured before dialing.
func (e *EmailNotifier) Send(ctx context.Context, alert Alert) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("send email alert: %w", err)
	}
	if err := e.dialer.DialAndSend(e.buildMessage(alert)); err != nil {
		return fmt.Errorf("send email alert: %w", err)
	}
	return nil
}

func (e *EmailNotifier) buildMessage(alert Alert) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", e.cfg.From)
	m.SetHeader("To", e.cfg.To...)
	m.SetHeader("Subject", fmt.Sprintf("[pitchwatch] %s alert", alert.MetricType))

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", alert.Message)
	if alert.RuleName != "" {
		fmt.Fprintf(&b, "Rule:          %s\n", alert.RuleName)
	}
	fmt.Fprintf(&b, "Metric:        %s\n", alert.MetricType)
	fmt.Fprintf(&b, "Current Value: %s\n", strconv.FormatFloat(alert.MetricValue, 'f', 2, 64))
	fmt.Fprintf(&b, "Threshold:     %s %s\n", alert.Operator, strconv.FormatFloat(alert.ThresholdValue, 'f', 2, 64))
	if !alert.TriggeredAt.IsZero() {
		fmt.Fprintf(&b, "Time:          %s\n", alert.TriggeredAt.Format("2006-01-02 15:04:05 MST"))
	}
	m.SetBody("text/plain", b.String())
	return m
}
