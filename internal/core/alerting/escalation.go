package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/noa10/mataresit-sub018/pkg/errors"
)

// InstanceAdvancer validates and applies escalation-cursor advances. The
// instance manager implements it; the version check there is the correctness
// backstop for timer/cancellation races.
type InstanceAdvancer interface {
	AdvanceEscalation(ctx context.Context, instanceID string, level int, expectedVersion int64) (*AlertInstance, error)
}

// EscalationDispatch sends escalation notifications. The dispatcher
// implements it.
type EscalationDispatch interface {
	Dispatch(ctx context.Context, inst *AlertInstance, rule *AlertRule, channelIDs []string, level int) []DeliveryResult
}

// armedEscalation tracks the pending timers for one alert instance.
type armedEscalation struct {
	rule            *AlertRule
	policy          *EscalationPolicy
	expectedVersion int64
	timers          []*time.Timer
	cancelled       bool
}

// EscalationEngine arms one cancellable timer per policy level at trigger
// time and fires each level only while the instance is still active.
// Acknowledgment and resolution cancel eagerly through Cancel; firings that
// race past cancellation are rejected by the manager's version check.
type EscalationEngine struct {
	policies PolicyStore
	advancer InstanceAdvancer
	dispatch EscalationDispatch
	logger   *logrus.Logger

	mu    sync.Mutex
	armed map[string]*armedEscalation
}

// NewEscalationEngine creates an escalation engine.
func NewEscalationEngine(policies PolicyStore, advancer InstanceAdvancer, dispatch EscalationDispatch, logger *logrus.Logger) *EscalationEngine {
	return &EscalationEngine{
		policies: policies,
		advancer: advancer,
		dispatch: dispatch,
		logger:   logger,
		armed:    make(map[string]*armedEscalation),
	}
}

// Arm schedules all levels of the rule's escalation policy for a freshly
// triggered instance. A rule without a policy arms nothing. Re-triggering a
// rule after resolution creates a new instance, so timers always start fresh
// from level 0.
func (e *EscalationEngine) Arm(ctx context.Context, inst *AlertInstance, rule *AlertRule) {
	if rule.EscalationPolicyID == "" {
		return
	}

	policy, err := e.policies.Get(ctx, rule.EscalationPolicyID)
	if err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"alert_id":  inst.ID,
			"policy_id": rule.EscalationPolicyID,
		}).Error("Failed to load escalation policy, alert will not escalate")
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	armed := &armedEscalation{
		rule:            rule,
		policy:          policy,
		expectedVersion: inst.Version,
	}

	for i, level := range policy.Levels {
		levelIdx := i
		// Fire times are relative to trigger; arming happens at trigger
		// time so the delay maps directly.
		delay := level.Delay
		if elapsed := time.Since(inst.TriggeredAt); elapsed > 0 && elapsed < delay {
			delay -= elapsed
		}
		armed.timers = append(armed.timers, time.AfterFunc(delay, func() {
			e.fire(inst.ID, levelIdx)
		}))
	}

	e.armed[inst.ID] = armed

	e.logger.WithFields(logrus.Fields{
		"alert_id":  inst.ID,
		"policy_id": policy.ID,
		"levels":    len(policy.Levels),
	}).Debug("Escalation timers armed")
}

// Cancel stops all pending timers for an instance. Safe to call for instances
// that were never armed.
func (e *EscalationEngine) Cancel(instanceID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	armed, ok := e.armed[instanceID]
	if !ok {
		return
	}

	armed.cancelled = true
	for _, t := range armed.timers {
		t.Stop()
	}
	delete(e.armed, instanceID)

	e.logger.WithField("alert_id", instanceID).Debug("Escalation timers cancelled")
}

// Pending reports how many instances currently have armed timers.
func (e *EscalationEngine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.armed)
}

// fire runs when a level's timer elapses. The advance through the manager is
// what decides whether the firing is still current; a timer that lost the
// race to an acknowledgment is a no-op.
func (e *EscalationEngine) fire(instanceID string, level int) {
	e.mu.Lock()
	armed, ok := e.armed[instanceID]
	if !ok || armed.cancelled {
		e.mu.Unlock()
		return
	}
	rule := armed.rule
	policy := armed.policy
	expected := armed.expectedVersion
	e.mu.Unlock()

	ctx := context.Background()
	inst, err := e.advancer.AdvanceEscalation(ctx, instanceID, level, expected)
	if err != nil {
		if errors.IsInvalidTransition(err) {
			e.logger.WithFields(logrus.Fields{
				"alert_id": instanceID,
				"level":    level,
			}).Debug("Escalation firing discarded")
		} else {
			e.logger.WithError(err).WithFields(logrus.Fields{
				"alert_id": instanceID,
				"level":    level,
			}).Error("Escalation advance failed")
		}
		return
	}

	// Later levels must observe this advance.
	e.mu.Lock()
	if armed, ok := e.armed[instanceID]; ok && !armed.cancelled {
		armed.expectedVersion = inst.Version
	}
	e.mu.Unlock()

	e.dispatch.Dispatch(ctx, inst, rule, policy.Levels[level].ChannelIDs, level)
}
