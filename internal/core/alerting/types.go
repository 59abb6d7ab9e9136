package alerting

import (
	"context"
	"time"

	"github.com/noa10/mataresit-sub018/pkg/errors"
)

// Severity of a rule and the instances it raises.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

// Operator compares a metric value against a rule threshold.
type Operator string

const (
	OpGreaterThan    Operator = "gt"
	OpGreaterOrEqual Operator = "gte"
	OpLessThan       Operator = "lt"
	OpLessOrEqual    Operator = "lte"
	OpEqual          Operator = "eq"
	OpNotEqual       Operator = "neq"
)

// Compare reports whether value breaches threshold under the operator.
func (op Operator) Compare(value, threshold float64) bool {
	switch op {
	case OpGreaterThan:
		return value > threshold
	case OpGreaterOrEqual:
		return value >= threshold
	case OpLessThan:
		return value < threshold
	case OpLessOrEqual:
		return value <= threshold
	case OpEqual:
		return value == threshold
	case OpNotEqual:
		return value != threshold
	}
	return false
}

func (op Operator) Valid() bool {
	switch op {
	case OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual, OpEqual, OpNotEqual:
		return true
	}
	return false
}

// InstanceState is the lifecycle state of an alert instance.
type InstanceState string

const (
	StateActive       InstanceState = "active"
	StateAcknowledged InstanceState = "acknowledged"
	StateResolved     InstanceState = "resolved"
)

// ChannelType identifies a delivery mechanism.
type ChannelType string

const (
	ChannelEmail   ChannelType = "email"
	ChannelWebhook ChannelType = "webhook"
)

func (t ChannelType) Valid() bool {
	switch t {
	case ChannelEmail, ChannelWebhook:
		return true
	}
	return false
}

// TransitionKind is the outcome of one rule evaluation.
type TransitionKind int

const (
	TransitionNone TransitionKind = iota
	TransitionTrigger
	TransitionClear
)

func (k TransitionKind) String() string {
	switch k {
	case TransitionTrigger:
		return "trigger"
	case TransitionClear:
		return "clear"
	default:
		return "none"
	}
}

// Transition is produced by the evaluator and consumed by the instance manager.
type Transition struct {
	Kind  TransitionKind
	Value float64
}

// RateLimitConfig caps how often a single rule may dispatch.
// MaxPerWindow 0 disables the hourly cap; Cooldown 0 disables the cooldown.
// The two gates are independent and both must pass.
type RateLimitConfig struct {
	MaxPerWindow int           `json:"max_per_window" yaml:"max_per_window"`
	Cooldown     time.Duration `json:"cooldown" yaml:"cooldown"`
}

// AlertRule is a validated, strongly-typed rule definition. The engine never
// mutates rules except for the LastEvaluatedAt bookkeeping field.
type AlertRule struct {
	ID                  string          `json:"id" yaml:"id"`
	Name                string          `json:"name" yaml:"name"`
	Metric              string          `json:"metric" yaml:"metric"`
	Operator            Operator        `json:"operator" yaml:"operator"`
	Threshold           float64         `json:"threshold" yaml:"threshold"`
	Window              time.Duration   `json:"window" yaml:"window"`
	Frequency           time.Duration   `json:"frequency" yaml:"frequency"`
	ConsecutiveFailures int             `json:"consecutive_failures" yaml:"consecutive_failures"`
	Severity            Severity        `json:"severity" yaml:"severity"`
	ChannelIDs          []string        `json:"channel_ids" yaml:"channel_ids"`
	EscalationPolicyID  string          `json:"escalation_policy_id,omitempty" yaml:"escalation_policy_id"`
	RateLimit           RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
	Active              bool            `json:"active" yaml:"active"`
	LastEvaluatedAt     time.Time       `json:"last_evaluated_at" yaml:"-"`
	CreatedAt           time.Time       `json:"created_at" yaml:"-"`
	UpdatedAt           time.Time       `json:"updated_at" yaml:"-"`
}

// Validate rejects invalid rule combinations at the save boundary, before the
// rule ever reaches the evaluator.
func (r *AlertRule) Validate() error {
	if r.Name == "" {
		return errors.Wrapf(errors.ErrValidation, "rule name is required")
	}
	if r.Metric == "" {
		return errors.Wrapf(errors.ErrValidation, "rule %s: metric is required", r.Name)
	}
	if !r.Operator.Valid() {
		return errors.Wrapf(errors.ErrValidation, "rule %s: unknown operator %q", r.Name, r.Operator)
	}
	if !r.Severity.Valid() {
		return errors.Wrapf(errors.ErrValidation, "rule %s: unknown severity %q", r.Name, r.Severity)
	}
	if r.Window <= 0 || r.Frequency <= 0 {
		return errors.Wrapf(errors.ErrValidation, "rule %s: window and frequency must be positive", r.Name)
	}
	if r.Frequency > r.Window {
		return errors.Wrapf(errors.ErrValidation, "rule %s: frequency %s exceeds window %s", r.Name, r.Frequency, r.Window)
	}
	if r.ConsecutiveFailures < 1 {
		return errors.Wrapf(errors.ErrValidation, "rule %s: consecutive_failures must be at least 1", r.Name)
	}
	if r.RateLimit.MaxPerWindow < 0 || r.RateLimit.Cooldown < 0 {
		return errors.Wrapf(errors.ErrValidation, "rule %s: rate limit values must not be negative", r.Name)
	}
	return nil
}

// AlertInstance is one breach episode of a rule, tracked through its
// lifecycle. Version increases monotonically on every transition and is the
// backstop for stale escalation firings.
type AlertInstance struct {
	ID               string        `json:"id"`
	RuleID           string        `json:"rule_id"`
	RuleName         string        `json:"rule_name"`
	State            InstanceState `json:"state"`
	Severity         Severity      `json:"severity"`
	Value            float64       `json:"value"`
	Version          int64         `json:"version"`
	TriggeredAt      time.Time     `json:"triggered_at"`
	AcknowledgedBy   string        `json:"acknowledged_by,omitempty"`
	AcknowledgedAt   *time.Time    `json:"acknowledged_at,omitempty"`
	AcknowledgeNote  string        `json:"acknowledge_note,omitempty"`
	ResolvedBy       string        `json:"resolved_by,omitempty"`
	ResolvedAt       *time.Time    `json:"resolved_at,omitempty"`
	ResolveNote      string        `json:"resolve_note,omitempty"`
	EscalationCursor int           `json:"escalation_cursor"` // -1 when no level has fired
}

// Live reports whether the instance still occupies its rule's single live slot.
func (a *AlertInstance) Live() bool {
	return a.State == StateActive || a.State == StateAcknowledged
}

// Clone returns a copy safe to hand outside the manager's lock.
func (a *AlertInstance) Clone() *AlertInstance {
	c := *a
	if a.AcknowledgedAt != nil {
		t := *a.AcknowledgedAt
		c.AcknowledgedAt = &t
	}
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}

// EventType classifies alert audit events.
type EventType string

const (
	EventTriggered    EventType = "triggered"
	EventAcknowledged EventType = "acknowledged"
	EventResolved     EventType = "resolved"
	EventEscalated    EventType = "escalated"
)

// AlertEvent is one entry in an instance's audit history.
type AlertEvent struct {
	ID         int64     `json:"id"`
	InstanceID string    `json:"instance_id"`
	Type       EventType `json:"type"`
	Actor      string    `json:"actor,omitempty"`
	Note       string    `json:"note,omitempty"`
	Value      float64   `json:"value,omitempty"`
	Level      int       `json:"level,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NotificationChannel is a delivery target. Config stays opaque to the engine;
// circuit-breaker state for the channel lives in the dispatcher.
type NotificationChannel struct {
	ID        string            `json:"id" yaml:"id"`
	Name      string            `json:"name" yaml:"name"`
	Type      ChannelType       `json:"type" yaml:"type"`
	Config    map[string]string `json:"config" yaml:"config"`
	Enabled   bool              `json:"enabled" yaml:"enabled"`
	CreatedAt time.Time         `json:"created_at" yaml:"-"`
	UpdatedAt time.Time         `json:"updated_at" yaml:"-"`
}

// Validate rejects malformed channels at the save boundary.
func (c *NotificationChannel) Validate() error {
	if c.Name == "" {
		return errors.Wrapf(errors.ErrValidation, "channel name is required")
	}
	if !c.Type.Valid() {
		return errors.Wrapf(errors.ErrValidation, "channel %s: unknown type %q", c.Name, c.Type)
	}
	return nil
}

// EscalationLevel is one step of an escalation policy.
type EscalationLevel struct {
	Delay      time.Duration `json:"delay" yaml:"delay"`
	ChannelIDs []string      `json:"channel_ids" yaml:"channel_ids"`
}

// EscalationPolicy is an ordered list of levels with strictly increasing
// delays from trigger time. Level 0 may fire immediately.
type EscalationPolicy struct {
	ID        string            `json:"id" yaml:"id"`
	Name      string            `json:"name" yaml:"name"`
	Levels    []EscalationLevel `json:"levels" yaml:"levels"`
	CreatedAt time.Time         `json:"created_at" yaml:"-"`
	UpdatedAt time.Time         `json:"updated_at" yaml:"-"`
}

// Validate enforces the strictly-increasing delay invariant.
func (p *EscalationPolicy) Validate() error {
	if p.Name == "" {
		return errors.Wrapf(errors.ErrValidation, "escalation policy name is required")
	}
	if len(p.Levels) == 0 {
		return errors.Wrapf(errors.ErrValidation, "policy %s: at least one level is required", p.Name)
	}
	for i, level := range p.Levels {
		if level.Delay < 0 {
			return errors.Wrapf(errors.ErrValidation, "policy %s: level %d delay must not be negative", p.Name, i)
		}
		if i > 0 && level.Delay <= p.Levels[i-1].Delay {
			return errors.Wrapf(errors.ErrValidation, "policy %s: level delays must be strictly increasing", p.Name)
		}
		if len(level.ChannelIDs) == 0 {
			return errors.Wrapf(errors.ErrValidation, "policy %s: level %d has no channels", p.Name, i)
		}
	}
	return nil
}

// Maintenance window scopes.
const (
	ScopeAll   = "all"
	ScopeRules = "rules"
)

// MaintenanceWindow suppresses alerting for some or all rules during
// [StartsAt, EndsAt). Read-only to the engine.
type MaintenanceWindow struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	StartsAt  time.Time `json:"starts_at" yaml:"starts_at"`
	EndsAt    time.Time `json:"ends_at" yaml:"ends_at"`
	Scope     string    `json:"scope" yaml:"scope"`
	RuleIDs   []string  `json:"rule_ids,omitempty" yaml:"rule_ids"`
	Active    bool      `json:"active" yaml:"active"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
}

// Validate rejects malformed windows at the save boundary.
func (w *MaintenanceWindow) Validate() error {
	if !w.EndsAt.After(w.StartsAt) {
		return errors.Wrapf(errors.ErrValidation, "maintenance window %s: end must be after start", w.Name)
	}
	if w.Scope != ScopeAll && w.Scope != ScopeRules {
		return errors.Wrapf(errors.ErrValidation, "maintenance window %s: unknown scope %q", w.Name, w.Scope)
	}
	if w.Scope == ScopeRules && len(w.RuleIDs) == 0 {
		return errors.Wrapf(errors.ErrValidation, "maintenance window %s: rule scope requires rule ids", w.Name)
	}
	return nil
}

// Covers reports whether the window suppresses the rule at the given time.
func (w *MaintenanceWindow) Covers(ruleID string, now time.Time) bool {
	if !w.Active || now.Before(w.StartsAt) || !now.Before(w.EndsAt) {
		return false
	}
	if w.Scope == ScopeAll {
		return true
	}
	for _, id := range w.RuleIDs {
		if id == ruleID {
			return true
		}
	}
	return false
}

// SuppressionReason explains why a trigger was held back.
type SuppressionReason string

const (
	ReasonMaintenanceWindow SuppressionReason = "maintenance_window"
	ReasonRateLimit         SuppressionReason = "rate_limit"
)

// SuppressionRecord is the per-cycle decision produced by the suppression
// manager. It is not persisted beyond the decision.
type SuppressionRecord struct {
	RuleID string            `json:"rule_id"`
	Reason SuppressionReason `json:"reason"`
	Until  time.Time         `json:"until"`
}

// InstanceFilter narrows List queries.
type InstanceFilter struct {
	State    InstanceState
	Severity Severity
	RuleID   string
	Since    time.Time
}

// MetricSource supplies the latest value for a named metric. Implementations
// are external collaborators; a reading older than the rule's window counts
// as unavailable.
type MetricSource interface {
	Latest(ctx context.Context, metric string) (value float64, observedAt time.Time, err error)
}

// RuleStore persists rule definitions.
type RuleStore interface {
	ListActive(ctx context.Context) ([]*AlertRule, error)
	List(ctx context.Context) ([]*AlertRule, error)
	Get(ctx context.Context, id string) (*AlertRule, error)
	Create(ctx context.Context, rule *AlertRule) error
	Update(ctx context.Context, rule *AlertRule) error
	Delete(ctx context.Context, id string) error
	TouchEvaluated(ctx context.Context, id string, at time.Time) error
}

// InstanceStore persists alert instances and their audit events.
type InstanceStore interface {
	Insert(ctx context.Context, inst *AlertInstance) error
	Update(ctx context.Context, inst *AlertInstance) error
	Get(ctx context.Context, id string) (*AlertInstance, error)
	List(ctx context.Context, filter InstanceFilter) ([]*AlertInstance, error)
	ListLive(ctx context.Context) ([]*AlertInstance, error)
	AppendEvent(ctx context.Context, event *AlertEvent) error
	ListEvents(ctx context.Context, instanceID string) ([]*AlertEvent, error)
	PurgeResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ChannelStore persists notification channels.
type ChannelStore interface {
	Get(ctx context.Context, id string) (*NotificationChannel, error)
	List(ctx context.Context) ([]*NotificationChannel, error)
	Create(ctx context.Context, ch *NotificationChannel) error
	Update(ctx context.Context, ch *NotificationChannel) error
	Delete(ctx context.Context, id string) error
}

// PolicyStore persists escalation policies.
type PolicyStore interface {
	Get(ctx context.Context, id string) (*EscalationPolicy, error)
	List(ctx context.Context) ([]*EscalationPolicy, error)
	Create(ctx context.Context, p *EscalationPolicy) error
	Update(ctx context.Context, p *EscalationPolicy) error
	Delete(ctx context.Context, id string) error
}

// MaintenanceStore persists maintenance windows.
type MaintenanceStore interface {
	ListActive(ctx context.Context, now time.Time) ([]*MaintenanceWindow, error)
	List(ctx context.Context) ([]*MaintenanceWindow, error)
	Get(ctx context.Context, id string) (*MaintenanceWindow, error)
	Create(ctx context.Context, w *MaintenanceWindow) error
	Update(ctx context.Context, w *MaintenanceWindow) error
	Delete(ctx context.Context, id string) error
}

// EventPublisher pushes lifecycle events to live observers (the websocket
// hub). Implementations must not block.
type EventPublisher interface {
	PublishAlertEvent(event string, inst *AlertInstance)
}
