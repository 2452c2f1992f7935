// Package evaluator checks enabled alert rules against current analytics
// metrics and dispatches notifications for every rule whose threshold is
// breached.
package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/ogulcanaydogan/pitchwatch/pkg/lock"
	"github.com/ogulcanaydogan/pitchwatch/pkg/model"
	"golang.org/x/sync/errgroup"
)

// FailureMessage is the only error text a failed pass reports to callers.
const FailureMessage = "알림 체크 중 오류가 발생했습니다."

const passLockKey = "pitchwatch:evaluator:pass"

// RuleStore supplies the rules to evaluate and records when they fire.
type RuleStore interface {
	ListEnabledRules(ctx context.Context) ([]model.AlertRule, error)
	MarkRuleTriggered(ctx context.Context, id string, at time.Time) error
}

// Options tunes a pass.
type Options struct {
	// Concurrency bounds how many rules are evaluated at once. Values below
	// one mean sequential evaluation in store order.
	Concurrency int

	// PassTimeout caps the duration of one pass. Zero means no limit.
	PassTimeout time.Duration

	// LockTTL bounds how long a crashed pass can hold the pass lock.
	LockTTL time.Duration
}

// Evaluator runs evaluation passes.
type Evaluator struct {
	rules      RuleStore
	resolver   *Resolver
	dispatcher *Dispatcher
	locker     lock.Locker
	metrics    *Metrics
	logger     *slog.Logger
	opts       Options
	now        func() time.Time
}

// New creates an Evaluator. A nil locker disables the overlapping-pass guard.
func New(rules RuleStore, resolver *Resolver, dispatcher *Dispatcher, locker lock.Locker, metrics *Metrics, logger *slog.Logger, opts Options) *Evaluator {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 5 * time.Minute
		if opts.PassTimeout > 0 {
			opts.LockTTL = opts.PassTimeout + 30*time.Second
		}
	}
	return &Evaluator{
		rules:      rules,
		resolver:   resolver,
		dispatcher: dispatcher,
		locker:     locker,
		metrics:    metrics,
		logger:     logger,
		opts:       opts,
		now:        time.Now,
	}
}

// RunPass evaluates every enabled rule once. Per-rule and per-channel
// problems are logged and absorbed; only a store, lock or unexpected failure
// makes the pass unsuccessful.
func (e *Evaluator) RunPass(ctx context.Context) (result model.PassResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("evaluation pass panicked", "panic", r, "stack", string(debug.Stack()))
			result = failed()
		}
		e.metrics.pass(resultLabel(result), time.Since(start))
	}()

	if e.opts.PassTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.PassTimeout)
		defer cancel()
	}

	if e.locker != nil {
		unlock, ok, err := e.locker.TryLock(ctx, passLockKey, e.opts.LockTTL)
		if err != nil {
			e.logger.Error("acquire pass lock", "error", err)
			return failed()
		}
		if !ok {
			e.logger.Info("another evaluation pass is running, skipping")
			return model.PassResult{Success: true, Skipped: true}
		}
		defer unlock()
	}

	e.logger.Info("evaluation pass started")

	rules, err := e.rules.ListEnabledRules(ctx)
	if err != nil {
		e.logger.Error("list enabled rules", "error", err)
		return failed()
	}
	if len(rules) == 0 {
		e.logger.Info("no enabled rules")
		return model.PassResult{Success: true}
	}

	var triggered atomic.Int64
	var g errgroup.Group
	g.SetLimit(e.opts.Concurrency)
	for _, rule := range rules {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("rule evaluation panicked", "rule", rule.ID, "panic", r, "stack", string(debug.Stack()))
					err = fmt.Errorf("rule %s panicked: %v", rule.ID, r)
				}
			}()
			if e.evaluateRule(ctx, rule) {
				triggered.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return failed()
	}

	count := int(triggered.Load())
	e.logger.Info("evaluation pass complete", "rules", len(rules), "alerts_triggered", count)
	return model.PassResult{Success: true, AlertsTriggered: count}
}

// evaluateRule reports whether the rule fired.
func (e *Evaluator) evaluateRule(ctx context.Context, rule model.AlertRule) bool {
	now := e.now()
	if rule.InCooldown(now) {
		e.logger.Debug("rule in cooldown", "rule", rule.ID)
		e.metrics.ruleSkipped("cooldown")
		return false
	}

	snap, ok := e.resolver.Resolve(ctx, rule)
	if !ok {
		e.metrics.ruleSkipped("no_data")
		return false
	}

	if !EvaluateThreshold(snap.Value, rule.ThresholdValue, rule.ThresholdOperator) {
		return false
	}

	e.logger.Warn("alert threshold breached",
		"rule", rule.ID,
		"metric", rule.MetricType,
		"value", snap.Value,
		"operator", rule.ThresholdOperator,
		"threshold", rule.ThresholdValue,
	)

	e.dispatcher.Dispatch(ctx, rule, snap)

	writeCtx, cancel := detached(ctx)
	defer cancel()
	if err := e.rules.MarkRuleTriggered(writeCtx, rule.ID, now); err != nil {
		e.logger.Error("mark rule triggered", "rule", rule.ID, "error", err)
	}
	e.metrics.ruleTriggered()
	return true
}

func failed() model.PassResult {
	return model.PassResult{Success: false, Error: FailureMessage}
}

func resultLabel(r model.PassResult) string {
	switch {
	case r.Skipped:
		return "skipped"
	case r.Success:
		return "success"
	default:
		return "failure"
	}
}
