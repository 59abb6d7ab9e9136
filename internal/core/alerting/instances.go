package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/noa10/mataresit-sub018/pkg/errors"
)

// EscalationCanceller cancels any pending escalation timers for an instance.
// The escalation engine implements this; the manager calls it synchronously
// on acknowledge, resolve and auto-clear.
type EscalationCanceller interface {
	Cancel(instanceID string)
}

// InstanceManager owns the alert instance lifecycle. It is the single writer
// of instance state: evaluator transitions, human acknowledgments and
// escalation cursor advances all serialize on its mutex, which is what keeps
// a rule from ever holding two live instances.
type InstanceManager struct {
	store  InstanceStore
	logger *logrus.Logger

	mu         sync.Mutex
	liveByRule map[string]*AlertInstance
	byID       map[string]*AlertInstance
	suppressed map[string]int64

	canceller EscalationCanceller
	publisher EventPublisher
}

// NewInstanceManager creates an instance manager backed by store.
func NewInstanceManager(store InstanceStore, logger *logrus.Logger) *InstanceManager {
	return &InstanceManager{
		store:      store,
		logger:     logger,
		liveByRule: make(map[string]*AlertInstance),
		byID:       make(map[string]*AlertInstance),
		suppressed: make(map[string]int64),
	}
}

// SetCanceller wires the escalation engine in after construction; the two
// components reference each other.
func (m *InstanceManager) SetCanceller(c EscalationCanceller) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.canceller = c
}

// SetPublisher wires the live-event publisher.
func (m *InstanceManager) SetPublisher(p EventPublisher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publisher = p
}

// Restore loads live instances from the store on startup so a restart does
// not lose open alerts.
func (m *InstanceManager) Restore(ctx context.Context) error {
	live, err := m.store.ListLive(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inst := range live {
		m.liveByRule[inst.RuleID] = inst
		m.byID[inst.ID] = inst
	}

	if len(live) > 0 {
		m.logger.WithField("count", len(live)).Info("Restored live alert instances")
	}
	return nil
}

// HasLive reports whether the rule currently has a non-resolved instance.
func (m *InstanceManager) HasLive(ruleID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.liveByRule[ruleID]
	return ok
}

// Trigger creates a new active instance for the rule, unless one is already
// live; repeated triggers while an instance is open are idempotent no-ops.
// The returned bool reports whether an instance was created.
func (m *InstanceManager) Trigger(ctx context.Context, rule *AlertRule, value float64, now time.Time) (*AlertInstance, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.liveByRule[rule.ID]; ok {
		return existing.Clone(), false, nil
	}

	inst := &AlertInstance{
		ID:               uuid.New().String(),
		RuleID:           rule.ID,
		RuleName:         rule.Name,
		State:            StateActive,
		Severity:         rule.Severity,
		Value:            value,
		Version:          1,
		TriggeredAt:      now,
		EscalationCursor: -1,
	}

	if err := m.store.Insert(ctx, inst); err != nil {
		return nil, false, err
	}
	m.appendEvent(ctx, &AlertEvent{
		InstanceID: inst.ID,
		Type:       EventTriggered,
		Actor:      "system",
		Value:      value,
		Timestamp:  now,
	})

	m.liveByRule[rule.ID] = inst
	m.byID[inst.ID] = inst

	m.logger.WithFields(logrus.Fields{
		"alert_id": inst.ID,
		"rule_id":  rule.ID,
		"severity": string(inst.Severity),
		"value":    value,
	}).Warn("Alert triggered")

	m.publish("alert.triggered", inst)
	return inst.Clone(), true, nil
}

// Clear auto-resolves the rule's live instance, if any. Clear transitions are
// never suppressed; a rule must always be able to resolve itself.
func (m *InstanceManager) Clear(ctx context.Context, ruleID string, now time.Time) (*AlertInstance, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.liveByRule[ruleID]
	if !ok {
		return nil, false, nil
	}

	if err := m.resolveLocked(ctx, inst, "system", "condition no longer met", now); err != nil {
		return nil, false, err
	}

	m.logger.WithFields(logrus.Fields{
		"alert_id": inst.ID,
		"rule_id":  ruleID,
	}).Info("Alert auto-resolved")

	return inst.Clone(), true, nil
}

// Acknowledge moves an active instance to acknowledged and cancels pending
// escalation. Only the active state may be acknowledged.
func (m *InstanceManager) Acknowledge(ctx context.Context, id, actor, note string) (*AlertInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, err := m.lookupLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst.State != StateActive {
		return nil, errors.Wrapf(errors.ErrInvalidTransition, "cannot acknowledge alert in state %q", inst.State)
	}

	now := time.Now().UTC()
	inst.State = StateAcknowledged
	inst.AcknowledgedBy = actor
	inst.AcknowledgedAt = &now
	inst.AcknowledgeNote = note
	inst.Version++

	if err := m.store.Update(ctx, inst); err != nil {
		return nil, err
	}
	m.appendEvent(ctx, &AlertEvent{
		InstanceID: inst.ID,
		Type:       EventAcknowledged,
		Actor:      actor,
		Note:       note,
		Timestamp:  now,
	})

	if m.canceller != nil {
		m.canceller.Cancel(inst.ID)
	}

	m.logger.WithFields(logrus.Fields{
		"alert_id": inst.ID,
		"actor":    actor,
	}).Info("Alert acknowledged")

	m.publish("alert.acknowledged", inst)
	return inst.Clone(), nil
}

// Resolve moves an active or acknowledged instance to resolved and cancels
// all pending escalation.
func (m *InstanceManager) Resolve(ctx context.Context, id, actor, note string) (*AlertInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, err := m.lookupLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst.State == StateResolved {
		return nil, errors.Wrapf(errors.ErrInvalidTransition, "alert is already resolved")
	}

	if err := m.resolveLocked(ctx, inst, actor, note, time.Now().UTC()); err != nil {
		return nil, err
	}

	m.logger.WithFields(logrus.Fields{
		"alert_id": inst.ID,
		"actor":    actor,
	}).Info("Alert resolved")

	return inst.Clone(), nil
}

// resolveLocked applies the resolved transition. Must be called with m.mu held.
func (m *InstanceManager) resolveLocked(ctx context.Context, inst *AlertInstance, actor, note string, now time.Time) error {
	inst.State = StateResolved
	inst.ResolvedBy = actor
	inst.ResolvedAt = &now
	inst.ResolveNote = note
	inst.Version++

	if err := m.store.Update(ctx, inst); err != nil {
		return err
	}
	m.appendEvent(ctx, &AlertEvent{
		InstanceID: inst.ID,
		Type:       EventResolved,
		Actor:      actor,
		Note:       note,
		Timestamp:  now,
	})

	delete(m.liveByRule, inst.RuleID)
	delete(m.byID, inst.ID)

	if m.canceller != nil {
		m.canceller.Cancel(inst.ID)
	}

	m.publish("alert.resolved", inst)
	return nil
}

// AdvanceEscalation validates a firing escalation timer against the current
// instance state and version, and advances the escalation cursor when the
// firing is still current. A stale firing, one armed before an acknowledge,
// resolve or earlier escalation it did not observe, is rejected with
// ErrInvalidTransition.
func (m *InstanceManager) AdvanceEscalation(ctx context.Context, instanceID string, level int, expectedVersion int64) (*AlertInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.byID[instanceID]
	if !ok {
		return nil, errors.Wrapf(errors.ErrInvalidTransition, "alert %s is no longer live", instanceID)
	}
	if inst.State != StateActive {
		return nil, errors.Wrapf(errors.ErrInvalidTransition, "alert %s is %s", instanceID, inst.State)
	}
	if inst.Version != expectedVersion {
		return nil, errors.Wrapf(errors.ErrInvalidTransition, "stale escalation firing: version %d, current %d", expectedVersion, inst.Version)
	}
	if level <= inst.EscalationCursor {
		return nil, errors.Wrapf(errors.ErrInvalidTransition, "escalation level %d already fired", level)
	}

	now := time.Now().UTC()
	inst.EscalationCursor = level
	inst.Version++

	if err := m.store.Update(ctx, inst); err != nil {
		return nil, err
	}
	m.appendEvent(ctx, &AlertEvent{
		InstanceID: inst.ID,
		Type:       EventEscalated,
		Actor:      "system",
		Level:      level,
		Timestamp:  now,
	})

	m.logger.WithFields(logrus.Fields{
		"alert_id": inst.ID,
		"rule_id":  inst.RuleID,
		"level":    level,
	}).Warn("Alert escalated")

	m.publish("alert.escalated", inst)
	return inst.Clone(), nil
}

// RecordSuppressedTrigger counts a trigger that suppression held back.
func (m *InstanceManager) RecordSuppressedTrigger(ruleID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suppressed[ruleID]++
	return m.suppressed[ruleID]
}

// SuppressedCounts returns the per-rule suppressed-trigger totals.
func (m *InstanceManager) SuppressedCounts() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]int64, len(m.suppressed))
	for k, v := range m.suppressed {
		out[k] = v
	}
	return out
}

// Get returns one instance by id.
func (m *InstanceManager) Get(ctx context.Context, id string) (*AlertInstance, error) {
	m.mu.Lock()
	if inst, ok := m.byID[id]; ok {
		defer m.mu.Unlock()
		return inst.Clone(), nil
	}
	m.mu.Unlock()

	return m.store.Get(ctx, id)
}

// List returns instances matching the filter, newest first.
func (m *InstanceManager) List(ctx context.Context, filter InstanceFilter) ([]*AlertInstance, error) {
	return m.store.List(ctx, filter)
}

// History returns the audit events for one instance.
func (m *InstanceManager) History(ctx context.Context, instanceID string) ([]*AlertEvent, error) {
	return m.store.ListEvents(ctx, instanceID)
}

// PurgeResolvedBefore removes resolved instances older than cutoff.
func (m *InstanceManager) PurgeResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return m.store.PurgeResolvedBefore(ctx, cutoff)
}

// lookupLocked finds a live instance in memory, falling back to the store for
// resolved ones so callers get InvalidTransition rather than NotFound.
func (m *InstanceManager) lookupLocked(ctx context.Context, id string) (*AlertInstance, error) {
	if inst, ok := m.byID[id]; ok {
		return inst, nil
	}

	inst, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return inst, nil
}

func (m *InstanceManager) appendEvent(ctx context.Context, event *AlertEvent) {
	if err := m.store.AppendEvent(ctx, event); err != nil {
		m.logger.WithError(err).WithField("alert_id", event.InstanceID).Error("Failed to persist alert event")
	}
}

func (m *InstanceManager) publish(event string, inst *AlertInstance) {
	if m.publisher != nil {
		m.publisher.PublishAlertEvent(event, inst.Clone())
	}
}
