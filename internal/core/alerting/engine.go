package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/noa10/mataresit-sub018/internal/core/metrics"
)

// EngineConfig tunes the evaluation scheduler.
type EngineConfig struct {
	EvaluationInterval       time.Duration // base tick; rules run when their own frequency elapses
	MaxConcurrentEvaluations int
	AlertRetention           time.Duration // resolved instances older than this are purged
}

// Engine drives the evaluation pipeline: evaluator output gated by
// suppression, applied by the instance manager, fanned out by the dispatcher,
// escalated by the escalation engine, and observed by the health monitor.
//
// Rules are evaluated concurrently under a worker semaphore, but never
// concurrently with themselves: an in-flight map guarantees evaluations of
// the same rule do not overlap.
type Engine struct {
	cfg         EngineConfig
	rules       RuleStore
	evaluator   *Evaluator
	suppression *SuppressionManager
	instances   *InstanceManager
	dispatcher  *Dispatcher
	escalation  *EscalationEngine
	health      *HealthMonitor
	collector   metrics.Collector
	logger      *logrus.Logger

	cron     *cron.Cron
	stopChan chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	inflight map[string]bool
	sem      chan struct{}
}

// NewEngine wires the pipeline together. collector may be nil.
func NewEngine(
	cfg EngineConfig,
	rules RuleStore,
	evaluator *Evaluator,
	suppression *SuppressionManager,
	instances *InstanceManager,
	dispatcher *Dispatcher,
	escalation *EscalationEngine,
	health *HealthMonitor,
	collector metrics.Collector,
	logger *logrus.Logger,
) *Engine {
	if cfg.EvaluationInterval <= 0 {
		cfg.EvaluationInterval = 10 * time.Second
	}
	if cfg.MaxConcurrentEvaluations <= 0 {
		cfg.MaxConcurrentEvaluations = 10
	}
	if cfg.AlertRetention <= 0 {
		cfg.AlertRetention = 7 * 24 * time.Hour
	}

	e := &Engine{
		cfg:         cfg,
		rules:       rules,
		evaluator:   evaluator,
		suppression: suppression,
		instances:   instances,
		dispatcher:  dispatcher,
		escalation:  escalation,
		health:      health,
		collector:   collector,
		logger:      logger,
		cron:        cron.New(),
		stopChan:    make(chan struct{}),
		inflight:    make(map[string]bool),
		sem:         make(chan struct{}, cfg.MaxConcurrentEvaluations),
	}

	instances.SetCanceller(escalation)
	health.SetBreakerSource(dispatcher.BreakerSnapshots)
	dispatcher.SetCollector(collector)

	return e
}

// Start restores live instances, begins the evaluation loop, and schedules
// the retention sweep.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.instances.Restore(ctx); err != nil {
		return err
	}

	if _, err := e.cron.AddFunc("@hourly", func() {
		e.purgeOldAlerts(context.Background())
	}); err != nil {
		return err
	}
	e.cron.Start()

	go e.evaluationLoop(ctx)

	e.logger.WithFields(logrus.Fields{
		"interval":        e.cfg.EvaluationInterval.String(),
		"max_concurrent":  e.cfg.MaxConcurrentEvaluations,
		"alert_retention": e.cfg.AlertRetention.String(),
	}).Info("Alerting engine started")

	return nil
}

// Stop halts the evaluation loop and housekeeping. Pending escalation timers
// stay armed; the version check makes any late firing after shutdown-restart
// harmless.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopChan)
		cronCtx := e.cron.Stop()
		select {
		case <-cronCtx.Done():
		case <-time.After(5 * time.Second):
			e.logger.Warn("Timeout waiting for housekeeping jobs to finish")
		}
		e.logger.Info("Alerting engine stopped")
	})
}

// ForgetRule drops per-rule evaluation state: the consecutive-breach streak
// and the rate-limit quota. Called when a rule is deleted so a later rule
// with the same id starts clean.
func (e *Engine) ForgetRule(ruleID string) {
	e.evaluator.Forget(ruleID)
	e.suppression.Forget(ruleID)
}

// evaluationLoop ticks at the base interval and evaluates every rule whose
// own frequency has elapsed.
func (e *Engine) evaluationLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.EvaluationInterval)
	defer ticker.Stop()

	// Evaluate immediately on startup rather than waiting a full tick.
	e.runCycle(ctx, time.Now().UTC())

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopChan:
			return
		case now := <-ticker.C:
			e.runCycle(ctx, now.UTC())
		}
	}
}

// runCycle evaluates all due rules concurrently.
func (e *Engine) runCycle(ctx context.Context, now time.Time) {
	rules, err := e.rules.ListActive(ctx)
	if err != nil {
		e.logger.WithError(err).Error("Failed to load active rules")
		e.health.SetSystemFailure(true)
		return
	}
	e.health.SetSystemFailure(false)

	var wg sync.WaitGroup
	for _, rule := range rules {
		if now.Sub(rule.LastEvaluatedAt) < rule.Frequency {
			continue
		}
		if !e.beginEvaluation(rule.ID) {
			continue
		}

		e.sem <- struct{}{}
		wg.Add(1)
		go func(rule *AlertRule) {
			defer func() {
				<-e.sem
				e.endEvaluation(rule.ID)
				wg.Done()
			}()
			e.evaluateRule(ctx, rule, now)
		}(rule)
	}
	wg.Wait()

	if e.collector != nil {
		e.collector.SetActiveAlerts(float64(e.liveCount(ctx)))
	}
}

// evaluateRule runs one rule through the full pipeline.
func (e *Engine) evaluateRule(ctx context.Context, rule *AlertRule, now time.Time) {
	transition, err := e.evaluator.Evaluate(ctx, rule, e.instances.HasLive(rule.ID), now)
	if err != nil {
		// Data unavailability is an evaluation failure, not an alert.
		e.health.RecordEvaluation(rule.ID, false)
		e.recordEvaluationMetric("data_unavailable")
		e.touch(ctx, rule, now)
		return
	}
	e.health.RecordEvaluation(rule.ID, true)
	e.recordEvaluationMetric(transition.Kind.String())

	switch transition.Kind {
	case TransitionTrigger:
		e.handleTrigger(ctx, rule, transition.Value, now)
	case TransitionClear:
		// Clear is never suppressed.
		if inst, cleared, err := e.instances.Clear(ctx, rule.ID, now); err != nil {
			e.logger.WithError(err).WithField("rule_id", rule.ID).Error("Failed to auto-resolve alert")
		} else if cleared {
			e.recordTransitionMetric(inst.Severity, "resolved")
		}
	}

	e.touch(ctx, rule, now)
}

// handleTrigger applies the suppression gate, then creates the instance and
// kicks off dispatch and escalation. Dispatch is fire-and-forget: escalation
// timers arm without waiting for delivery confirmation.
func (e *Engine) handleTrigger(ctx context.Context, rule *AlertRule, value float64, now time.Time) {
	if rec := e.suppression.IsSuppressed(ctx, rule, now); rec != nil {
		count := e.instances.RecordSuppressedTrigger(rule.ID)
		e.health.RecordSuppressed(rule.ID, rec.Reason)
		e.logger.WithFields(logrus.Fields{
			"rule_id":          rule.ID,
			"reason":           string(rec.Reason),
			"until":            rec.Until,
			"suppressed_count": count,
		}).Info("Trigger suppressed")
		return
	}

	inst, created, err := e.instances.Trigger(ctx, rule, value, now)
	if err != nil {
		e.logger.WithError(err).WithField("rule_id", rule.ID).Error("Failed to create alert instance")
		return
	}
	if !created {
		return
	}

	e.suppression.RecordDispatch(rule.ID, now)
	e.recordTransitionMetric(inst.Severity, "triggered")

	go e.dispatcher.Dispatch(context.WithoutCancel(ctx), inst, rule, rule.ChannelIDs, -1)
	e.escalation.Arm(ctx, inst, rule)
}

// beginEvaluation marks a rule in flight; overlapping evaluations of the same
// rule could double-trigger.
func (e *Engine) beginEvaluation(ruleID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.inflight[ruleID] {
		return false
	}
	e.inflight[ruleID] = true
	return true
}

func (e *Engine) endEvaluation(ruleID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, ruleID)
}

func (e *Engine) touch(ctx context.Context, rule *AlertRule, now time.Time) {
	rule.LastEvaluatedAt = now
	if err := e.rules.TouchEvaluated(ctx, rule.ID, now); err != nil {
		e.logger.WithError(err).WithField("rule_id", rule.ID).Warn("Failed to record evaluation time")
	}
}

func (e *Engine) purgeOldAlerts(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-e.cfg.AlertRetention)
	removed, err := e.instances.PurgeResolvedBefore(ctx, cutoff)
	if err != nil {
		e.logger.WithError(err).Error("Failed to purge old alerts")
		return
	}
	if removed > 0 {
		e.logger.WithField("count", removed).Info("Purged old resolved alerts")
	}
}

func (e *Engine) liveCount(ctx context.Context) int {
	live, err := e.instances.store.ListLive(ctx)
	if err != nil {
		return 0
	}
	return len(live)
}

func (e *Engine) recordEvaluationMetric(outcome string) {
	if e.collector != nil {
		e.collector.RecordEvaluation(outcome)
	}
}

func (e *Engine) recordTransitionMetric(severity Severity, event string) {
	if e.collector != nil {
		e.collector.RecordTransition(string(severity), event)
	}
}
