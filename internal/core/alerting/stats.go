package alerting

import (
	"context"
	"time"
)

// Statistics summarizes alert activity over a range.
type Statistics struct {
	Total                 int                   `json:"total"`
	BySeverity            map[Severity]int      `json:"by_severity"`
	ByState               map[InstanceState]int `json:"by_state"`
	MeanTimeToAcknowledge time.Duration         `json:"mean_time_to_acknowledge"`
	MeanTimeToResolve     time.Duration         `json:"mean_time_to_resolve"`
}

// Statistics computes counts and mean response times for the rule (or all
// rules when ruleID is empty) over the past rangeDays days.
func (m *InstanceManager) Statistics(ctx context.Context, ruleID string, rangeDays int) (*Statistics, error) {
	if rangeDays <= 0 {
		rangeDays = 7
	}

	instances, err := m.store.List(ctx, InstanceFilter{
		RuleID: ruleID,
		Since:  time.Now().UTC().AddDate(0, 0, -rangeDays),
	})
	if err != nil {
		return nil, err
	}

	return computeStatistics(instances), nil
}

func computeStatistics(instances []*AlertInstance) *Statistics {
	stats := &Statistics{
		BySeverity: make(map[Severity]int),
		ByState:    make(map[InstanceState]int),
	}

	var ackTotal, resolveTotal time.Duration
	var ackCount, resolveCount int

	for _, inst := range instances {
		stats.Total++
		stats.BySeverity[inst.Severity]++
		stats.ByState[inst.State]++

		if inst.AcknowledgedAt != nil {
			ackTotal += inst.AcknowledgedAt.Sub(inst.TriggeredAt)
			ackCount++
		}
		if inst.ResolvedAt != nil {
			resolveTotal += inst.ResolvedAt.Sub(inst.TriggeredAt)
			resolveCount++
		}
	}

	if ackCount > 0 {
		stats.MeanTimeToAcknowledge = ackTotal / time.Duration(ackCount)
	}
	if resolveCount > 0 {
		stats.MeanTimeToResolve = resolveTotal / time.Duration(resolveCount)
	}

	return stats
}
