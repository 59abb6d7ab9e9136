package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/noa10/mataresit-sub018/pkg/errors"
)

// Evaluator applies threshold and consecutive-breach logic to the latest
// metric sample for each rule. It keeps a per-rule streak of breaching
// evaluations; the streak resets on any non-breaching evaluation.
type Evaluator struct {
	source        MetricSource
	sourceTimeout time.Duration
	logger        *logrus.Logger

	mu      sync.Mutex
	streaks map[string]int
}

// NewEvaluator creates an evaluator reading from source. sourceTimeout bounds
// each metric read.
func NewEvaluator(source MetricSource, sourceTimeout time.Duration, logger *logrus.Logger) *Evaluator {
	if sourceTimeout <= 0 {
		sourceTimeout = 2 * time.Second
	}
	return &Evaluator{
		source:        source,
		sourceTimeout: sourceTimeout,
		logger:        logger,
		streaks:       make(map[string]int),
	}
}

// Evaluate computes the transition for one rule. hasLive indicates whether the
// rule currently has a non-resolved instance, which turns a non-breaching
// evaluation into a Clear.
//
// Stale or unreachable metric data fails open: the transition is None and the
// returned error wraps ErrDataUnavailable so the caller can record a
// data-availability failure instead of an alert.
func (e *Evaluator) Evaluate(ctx context.Context, rule *AlertRule, hasLive bool, now time.Time) (Transition, error) {
	readCtx, cancel := context.WithTimeout(ctx, e.sourceTimeout)
	defer cancel()

	value, observedAt, err := e.source.Latest(readCtx, rule.Metric)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"rule_id": rule.ID,
			"metric":  rule.Metric,
		}).WithError(err).Warn("Metric source unavailable, skipping evaluation")
		return Transition{Kind: TransitionNone}, errors.Wrapf(errors.ErrDataUnavailable, "metric %s: %v", rule.Metric, err)
	}

	if now.Sub(observedAt) > rule.Window {
		e.logger.WithFields(logrus.Fields{
			"rule_id":     rule.ID,
			"metric":      rule.Metric,
			"observed_at": observedAt,
			"window":      rule.Window.String(),
		}).Warn("Metric sample older than evaluation window, skipping evaluation")
		return Transition{Kind: TransitionNone}, errors.Wrapf(errors.ErrDataUnavailable, "metric %s sample is stale", rule.Metric)
	}

	breaching := rule.Operator.Compare(value, rule.Threshold)

	e.mu.Lock()
	defer e.mu.Unlock()

	if !breaching {
		e.streaks[rule.ID] = 0
		if hasLive {
			return Transition{Kind: TransitionClear, Value: value}, nil
		}
		return Transition{Kind: TransitionNone, Value: value}, nil
	}

	e.streaks[rule.ID]++
	if e.streaks[rule.ID] >= rule.ConsecutiveFailures {
		return Transition{Kind: TransitionTrigger, Value: value}, nil
	}

	return Transition{Kind: TransitionNone, Value: value}, nil
}

// Streak returns the current consecutive-breach count for a rule.
func (e *Evaluator) Streak(ruleID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.streaks[ruleID]
}

// Forget drops evaluator state for a deleted rule.
func (e *Evaluator) Forget(ruleID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.streaks, ruleID)
}
