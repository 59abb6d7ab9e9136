package websocket

import (
	"github.com/noa10/mataresit-sub018/internal/core/alerting"
)

// AlertPublisher pushes alert lifecycle events to connected clients. It
// implements alerting.EventPublisher.
type AlertPublisher struct {
	hub *Hub
}

// NewAlertPublisher creates a publisher backed by the hub.
func NewAlertPublisher(hub *Hub) *AlertPublisher {
	return &AlertPublisher{hub: hub}
}

// PublishAlertEvent broadcasts one lifecycle event. It never blocks the
// caller; slow consumers drop messages instead.
func (p *AlertPublisher) PublishAlertEvent(event string, inst *alerting.AlertInstance) {
	data := map[string]interface{}{
		"alert_id":          inst.ID,
		"rule_id":           inst.RuleID,
		"rule_name":         inst.RuleName,
		"state":             string(inst.State),
		"severity":          string(inst.Severity),
		"value":             inst.Value,
		"version":           inst.Version,
		"triggered_at":      inst.TriggeredAt,
		"escalation_cursor": inst.EscalationCursor,
	}
	if inst.AcknowledgedAt != nil {
		data["acknowledged_at"] = *inst.AcknowledgedAt
		data["acknowledged_by"] = inst.AcknowledgedBy
	}
	if inst.ResolvedAt != nil {
		data["resolved_at"] = *inst.ResolvedAt
		data["resolved_by"] = inst.ResolvedBy
	}

	p.hub.BroadcastToAll(Message{Type: event, Data: data})
}

// PublishHealthSnapshot broadcasts the current health snapshot to dashboard
// clients.
func (p *AlertPublisher) PublishHealthSnapshot(snapshot *alerting.DashboardSnapshot) {
	p.hub.BroadcastToAll(Message{
		Type: MessageTypeHealthSnapshot,
		Data: map[string]interface{}{
			"status":       string(snapshot.Status),
			"error_rate":   snapshot.ErrorRate,
			"channels":     snapshot.Channels,
			"rules":        snapshot.Rules,
			"generated_at": snapshot.GeneratedAt,
		},
	})
}
