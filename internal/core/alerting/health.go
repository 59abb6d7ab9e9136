package alerting

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/noa10/mataresit-sub018/pkg/errors"
)

// HealthStatus is the derived condition of the alerting subsystem.
type HealthStatus string

const (
	StatusHealthy  HealthStatus = "healthy"
	StatusDegraded HealthStatus = "degraded"
	StatusFailed   HealthStatus = "failed"
)

// ChannelHealth aggregates delivery outcomes for one channel.
type ChannelHealth struct {
	Success     int64 `json:"success"`
	Failure     int64 `json:"failure"`
	CircuitOpen int64 `json:"circuit_open"`
}

// RuleHealth aggregates evaluation outcomes for one rule.
type RuleHealth struct {
	Success    int64 `json:"success"`
	Failure    int64 `json:"failure"`
	Suppressed int64 `json:"suppressed"`
}

// ChannelSnapshot combines counters with the live breaker state.
type ChannelSnapshot struct {
	ChannelHealth
	CircuitState string `json:"circuit_state"`
}

// DashboardSnapshot is the read-only view exposed to observers. It never
// feeds back into engine decisions.
type DashboardSnapshot struct {
	Status      HealthStatus               `json:"status"`
	GeneratedAt time.Time                  `json:"generated_at"`
	Channels    map[string]ChannelSnapshot `json:"channels"`
	Rules       map[string]RuleHealth      `json:"rules"`
	ErrorRate   float64                    `json:"error_rate"`
}

// HealthMonitorConfig tunes the status thresholds.
type HealthMonitorConfig struct {
	DegradedErrorRate float64 // overall error rate above which status is degraded
}

// HealthMonitor observes evaluator and dispatcher outcomes. Failed status is
// reserved for systemic conditions (storage unreachable); per-rule or
// per-channel trouble only degrades.
type HealthMonitor struct {
	cfg    HealthMonitorConfig
	logger *logrus.Logger

	mu        sync.RWMutex
	channels  map[string]*ChannelHealth
	rules     map[string]*RuleHealth
	systemic  bool
	breakerFn func() map[string]errors.BreakerSnapshot
}

// NewHealthMonitor creates a health monitor.
func NewHealthMonitor(cfg HealthMonitorConfig, logger *logrus.Logger) *HealthMonitor {
	if cfg.DegradedErrorRate <= 0 {
		cfg.DegradedErrorRate = 0.1
	}
	return &HealthMonitor{
		cfg:      cfg,
		logger:   logger,
		channels: make(map[string]*ChannelHealth),
		rules:    make(map[string]*RuleHealth),
	}
}

// SetBreakerSource wires the dispatcher's breaker snapshots into the
// dashboard view.
func (h *HealthMonitor) SetBreakerSource(fn func() map[string]errors.BreakerSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.breakerFn = fn
}

// RecordDelivery counts a delivery outcome for a channel.
func (h *HealthMonitor) RecordDelivery(channelID string, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := h.channel(channelID)
	if ok {
		ch.Success++
	} else {
		ch.Failure++
	}
}

// RecordCircuitOpen counts a delivery skipped by an open breaker.
func (h *HealthMonitor) RecordCircuitOpen(channelID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.channel(channelID).CircuitOpen++
}

// RecordEvaluation counts an evaluation outcome for a rule.
func (h *HealthMonitor) RecordEvaluation(ruleID string, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r := h.rule(ruleID)
	if ok {
		r.Success++
	} else {
		r.Failure++
	}
}

// RecordSuppressed counts a suppressed trigger for a rule.
func (h *HealthMonitor) RecordSuppressed(ruleID string, reason SuppressionReason) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rule(ruleID).Suppressed++
}

// SetSystemFailure flags a systemic condition, forcing failed status until
// cleared.
func (h *HealthMonitor) SetSystemFailure(failed bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if failed && !h.systemic {
		h.logger.Error("Alerting subsystem entering failed state")
	}
	h.systemic = failed
}

// Dashboard returns the read-only health snapshot.
func (h *HealthMonitor) Dashboard() *DashboardSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	snap := &DashboardSnapshot{
		GeneratedAt: time.Now().UTC(),
		Channels:    make(map[string]ChannelSnapshot, len(h.channels)),
		Rules:       make(map[string]RuleHealth, len(h.rules)),
	}

	var breakers map[string]errors.BreakerSnapshot
	if h.breakerFn != nil {
		breakers = h.breakerFn()
	}

	var success, failure int64
	for id, ch := range h.channels {
		cs := ChannelSnapshot{ChannelHealth: *ch, CircuitState: "closed"}
		if b, ok := breakers[id]; ok {
			cs.CircuitState = b.State
		}
		snap.Channels[id] = cs
		success += ch.Success
		failure += ch.Failure
	}
	for id, r := range h.rules {
		snap.Rules[id] = *r
		success += r.Success
		failure += r.Failure
	}

	if total := success + failure; total > 0 {
		snap.ErrorRate = float64(failure) / float64(total)
	}

	switch {
	case h.systemic:
		snap.Status = StatusFailed
	case snap.ErrorRate >= h.cfg.DegradedErrorRate:
		snap.Status = StatusDegraded
	default:
		snap.Status = StatusHealthy
	}

	return snap
}

// channel must be called with h.mu held.
func (h *HealthMonitor) channel(id string) *ChannelHealth {
	ch, ok := h.channels[id]
	if !ok {
		ch = &ChannelHealth{}
		h.channels[id] = ch
	}
	return ch
}

// rule must be called with h.mu held.
func (h *HealthMonitor) rule(id string) *RuleHealth {
	r, ok := h.rules[id]
	if !ok {
		r = &RuleHealth{}
		h.rules[id] = r
	}
	return r
}
