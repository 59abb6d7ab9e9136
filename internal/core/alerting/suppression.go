package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// rateLimitWindow is the span of the per-rule dispatch quota.
const rateLimitWindow = time.Hour

// ruleQuota tracks dispatches for one rule inside the current window.
type ruleQuota struct {
	windowStart  time.Time
	count        int
	lastDispatch time.Time
}

// SuppressionManager decides whether a rule is allowed to raise an alert
// right now. Maintenance windows are checked first, then the hourly dispatch
// cap, then the cooldown since the most recent dispatch. The cap and the
// cooldown are independent gates; both must pass. Clear transitions never
// consult suppression.
type SuppressionManager struct {
	windows MaintenanceStore
	logger  *logrus.Logger

	mu     sync.Mutex
	quotas map[string]*ruleQuota
}

// NewSuppressionManager creates a suppression manager.
func NewSuppressionManager(windows MaintenanceStore, logger *logrus.Logger) *SuppressionManager {
	return &SuppressionManager{
		windows: windows,
		logger:  logger,
		quotas:  make(map[string]*ruleQuota),
	}
}

// IsSuppressed returns a suppression record when the rule must not notify
// now, or nil when it may. A failure to read maintenance windows fails open:
// an alert storm is preferable to silently losing alerts.
func (s *SuppressionManager) IsSuppressed(ctx context.Context, rule *AlertRule, now time.Time) *SuppressionRecord {
	windows, err := s.windows.ListActive(ctx, now)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load maintenance windows, not suppressing")
	} else {
		for _, w := range windows {
			if w.Covers(rule.ID, now) {
				return &SuppressionRecord{
					RuleID: rule.ID,
					Reason: ReasonMaintenanceWindow,
					Until:  w.EndsAt,
				}
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quotas[rule.ID]
	if !ok {
		return nil
	}

	if rule.RateLimit.Cooldown > 0 && now.Sub(q.lastDispatch) < rule.RateLimit.Cooldown {
		return &SuppressionRecord{
			RuleID: rule.ID,
			Reason: ReasonRateLimit,
			Until:  q.lastDispatch.Add(rule.RateLimit.Cooldown),
		}
	}

	if rule.RateLimit.MaxPerWindow > 0 {
		if now.Sub(q.windowStart) >= rateLimitWindow {
			// Window elapsed, quota resets on next dispatch.
			return nil
		}
		if q.count >= rule.RateLimit.MaxPerWindow {
			return &SuppressionRecord{
				RuleID: rule.ID,
				Reason: ReasonRateLimit,
				Until:  q.windowStart.Add(rateLimitWindow),
			}
		}
	}

	return nil
}

// RecordDispatch counts a dispatched alert against the rule's quota. The
// window is fixed, anchored at the first dispatch inside it.
func (s *SuppressionManager) RecordDispatch(ruleID string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quotas[ruleID]
	if !ok || now.Sub(q.windowStart) >= rateLimitWindow {
		q = &ruleQuota{windowStart: now}
		s.quotas[ruleID] = q
	}

	q.count++
	q.lastDispatch = now
}

// Forget drops quota state for a deleted rule.
func (s *SuppressionManager) Forget(ruleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.quotas, ruleID)
}
