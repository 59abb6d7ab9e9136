package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/noa10/mataresit-sub018/pkg/errors"
)

// Channel carries the delivery target for one send. The Config map is opaque
// to the engine; each sender reads the keys it needs.
type Channel struct {
	ID     string
	Name   string
	Type   string
	Config map[string]string
}

// Message is a rendered alert notification.
type Message struct {
	Subject         string    `json:"subject"`
	Body            string    `json:"body"`
	AlertID         string    `json:"alert_id"`
	RuleID          string    `json:"rule_id"`
	RuleName        string    `json:"rule_name"`
	Metric          string    `json:"metric"`
	Severity        string    `json:"severity"`
	Value           float64   `json:"value"`
	TriggeredAt     time.Time `json:"triggered_at"`
	EscalationLevel int       `json:"escalation_level"`
}

// Sender delivers a message over one channel type.
type Sender interface {
	Send(ctx context.Context, ch Channel, msg *Message) error
}

// Registry routes sends to the sender registered for the channel's type.
type Registry struct {
	senders map[string]Sender
	logger  *logrus.Logger
	mu      sync.RWMutex
}

// NewRegistry creates a registry with the built-in email and webhook senders.
func NewRegistry(logger *logrus.Logger, httpTimeout time.Duration) *Registry {
	r := &Registry{
		senders: make(map[string]Sender),
		logger:  logger,
	}
	r.Register("email", NewEmailSender(logger))
	r.Register("webhook", NewWebhookSender(logger, httpTimeout))
	return r
}

// Register installs a sender for a channel type, replacing any previous one.
func (r *Registry) Register(channelType string, sender Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[channelType] = sender
}

// Send delivers msg over ch using the sender for its type.
func (r *Registry) Send(ctx context.Context, ch Channel, msg *Message) error {
	r.mu.RLock()
	sender, ok := r.senders[ch.Type]
	r.mu.RUnlock()

	if !ok {
		return errors.Wrapf(errors.ErrDeliveryFailure, "no sender for channel type %q", ch.Type)
	}

	if err := sender.Send(ctx, ch, msg); err != nil {
		return fmt.Errorf("channel %s: %w", ch.ID, err)
	}
	return nil
}
