package alerting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/noa10/mataresit-sub018/internal/core/metrics"
	"github.com/noa10/mataresit-sub018/internal/core/notify"
	"github.com/noa10/mataresit-sub018/pkg/errors"
)

// DeliveryStatus is the outcome of one channel delivery.
type DeliveryStatus string

const (
	DeliveryDelivered   DeliveryStatus = "delivered"
	DeliveryFailed      DeliveryStatus = "failed"
	DeliveryCircuitOpen DeliveryStatus = "circuit_open"
)

// DeliveryResult records the outcome of dispatching one alert to one channel.
type DeliveryResult struct {
	ChannelID string         `json:"channel_id"`
	Status    DeliveryStatus `json:"status"`
	Attempts  int            `json:"attempts"`
	Error     string         `json:"error,omitempty"`
	Duration  time.Duration  `json:"duration"`
}

// DeliveryRecorder receives every delivery outcome; the health monitor
// implements it.
type DeliveryRecorder interface {
	RecordDelivery(channelID string, ok bool)
	RecordCircuitOpen(channelID string)
}

// Transport sends a rendered message over a channel. *notify.Registry is the
// production implementation.
type Transport interface {
	Send(ctx context.Context, ch notify.Channel, msg *notify.Message) error
}

// DispatcherConfig tunes retries, timeouts and circuit breaking.
type DispatcherConfig struct {
	SendTimeout     time.Duration // covers one channel's attempts including backoff
	Retry           *errors.RetryPolicy
	BreakerFailures int
	BreakerCoolDown time.Duration
}

// Dispatcher fans an alert out to its channels. Each channel has its own
// circuit breaker and retry budget, so one broken channel never blocks or
// fails delivery on the others.
type Dispatcher struct {
	channels  ChannelStore
	transport Transport
	recorder  DeliveryRecorder
	retry     *errors.RetryExecutor
	policy    *errors.RetryPolicy
	cfg       DispatcherConfig
	logger    *logrus.Logger
	collector metrics.Collector

	mu       sync.Mutex
	breakers map[string]*errors.CircuitBreaker
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(channels ChannelStore, transport Transport, recorder DeliveryRecorder, cfg DispatcherConfig, logger *logrus.Logger) *Dispatcher {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.Retry == nil {
		cfg.Retry = errors.DefaultRetryPolicy()
	}
	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCoolDown <= 0 {
		cfg.BreakerCoolDown = 30 * time.Second
	}

	return &Dispatcher{
		channels:  channels,
		transport: transport,
		recorder:  recorder,
		retry:     errors.NewRetryExecutor(cfg.Retry, logger),
		policy:    cfg.Retry,
		cfg:       cfg,
		logger:    logger,
		breakers:  make(map[string]*errors.CircuitBreaker),
	}
}

// SetCollector wires the metrics collector for delivery counters and circuit
// state gauges. Must be called before dispatching begins; nil is valid.
func (d *Dispatcher) SetCollector(c metrics.Collector) {
	d.collector = c
}

// Dispatch sends the alert to every channel id concurrently and returns the
// per-channel results. Escalation scheduling never waits on this.
func (d *Dispatcher) Dispatch(ctx context.Context, inst *AlertInstance, rule *AlertRule, channelIDs []string, level int) []DeliveryResult {
	results := make([]DeliveryResult, len(channelIDs))
	msg := renderMessage(rule, inst, level)

	var wg sync.WaitGroup
	for i, channelID := range channelIDs {
		wg.Add(1)
		go func(i int, channelID string) {
			defer wg.Done()
			results[i] = d.deliver(ctx, channelID, msg)
		}(i, channelID)
	}
	wg.Wait()

	return results
}

// deliver sends one message to one channel under its breaker and retry policy.
func (d *Dispatcher) deliver(ctx context.Context, channelID string, msg *notify.Message) DeliveryResult {
	start := time.Now()
	result := DeliveryResult{ChannelID: channelID}

	ch, err := d.channels.Get(ctx, channelID)
	if err != nil {
		result.Status = DeliveryFailed
		result.Error = fmt.Sprintf("load channel: %v", err)
		result.Duration = time.Since(start)
		d.record(channelID, false)
		return result
	}
	if !ch.Enabled {
		result.Status = DeliveryCircuitOpen
		result.Error = "channel disabled"
		result.Duration = time.Since(start)
		d.recordDeliveryMetric(ch.Type, DeliveryCircuitOpen)
		return result
	}

	breaker := d.breaker(channelID)
	if !breaker.Allow() {
		d.logger.WithFields(logrus.Fields{
			"channel_id": channelID,
			"alert_id":   msg.AlertID,
		}).Warn("Channel circuit open, skipping delivery")

		result.Status = DeliveryCircuitOpen
		result.Error = errors.ErrCircuitOpen.Message
		result.Duration = time.Since(start)
		if d.recorder != nil {
			d.recorder.RecordCircuitOpen(channelID)
		}
		d.recordDeliveryMetric(ch.Type, DeliveryCircuitOpen)
		return result
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()

	attempts := 0
	err = d.retry.Execute(sendCtx, "notify "+channelID, func(ctx context.Context) error {
		attempts++
		return d.transport.Send(ctx, notify.Channel{
			ID:     ch.ID,
			Name:   ch.Name,
			Type:   string(ch.Type),
			Config: ch.Config,
		}, msg)
	})

	result.Attempts = attempts
	result.Duration = time.Since(start)

	if err != nil {
		breaker.RecordFailure()
		d.record(channelID, false)
		d.recordDeliveryMetric(ch.Type, DeliveryFailed)

		result.Status = DeliveryFailed
		result.Error = err.Error()
		d.logger.WithFields(logrus.Fields{
			"channel_id": channelID,
			"alert_id":   msg.AlertID,
			"attempts":   attempts,
		}).WithError(err).Error("Notification delivery failed")
		return result
	}

	breaker.RecordSuccess()
	d.record(channelID, true)
	d.recordDeliveryMetric(ch.Type, DeliveryDelivered)
	result.Status = DeliveryDelivered
	return result
}

// TestSend pushes a synthetic message through one channel, exercising the
// same breaker and retry path as real dispatches.
func (d *Dispatcher) TestSend(ctx context.Context, channelID string) DeliveryResult {
	msg := &notify.Message{
		Subject:         "Test notification",
		Body:            "This is a test notification. Delivery to this channel is working.",
		Severity:        "info",
		TriggeredAt:     time.Now().UTC(),
		EscalationLevel: -1,
	}
	return d.deliver(ctx, channelID, msg)
}

// breaker returns the channel's circuit breaker, creating it on first use.
func (d *Dispatcher) breaker(channelID string) *errors.CircuitBreaker {
	d.mu.Lock()
	defer d.mu.Unlock()

	cb, ok := d.breakers[channelID]
	if !ok {
		cb = errors.NewCircuitBreaker(errors.CircuitBreakerConfig{
			Name:        channelID,
			MaxFailures: d.cfg.BreakerFailures,
			CoolDown:    d.cfg.BreakerCoolDown,
			Logger:      d.logger,
			OnStateChange: func(name string, from, to errors.CircuitBreakerState) {
				if d.collector != nil {
					d.collector.SetCircuitState(name, to.String())
				}
			},
		})
		d.breakers[channelID] = cb
		if d.collector != nil {
			d.collector.SetCircuitState(channelID, errors.StateClosed.String())
		}
	}
	return cb
}

// BreakerSnapshots exposes per-channel breaker state for the dashboard.
func (d *Dispatcher) BreakerSnapshots() map[string]errors.BreakerSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string]errors.BreakerSnapshot, len(d.breakers))
	for id, cb := range d.breakers {
		out[id] = cb.Snapshot()
	}
	return out
}

func (d *Dispatcher) record(channelID string, ok bool) {
	if d.recorder != nil {
		d.recorder.RecordDelivery(channelID, ok)
	}
}

func (d *Dispatcher) recordDeliveryMetric(channelType ChannelType, status DeliveryStatus) {
	if d.collector != nil {
		d.collector.RecordDelivery(string(channelType), string(status))
	}
}

// renderMessage builds the notification payload for an alert. Level -1 marks
// the initial (non-escalated) dispatch.
func renderMessage(rule *AlertRule, inst *AlertInstance, level int) *notify.Message {
	subject := fmt.Sprintf("[%s] %s", inst.Severity, rule.Name)
	if level >= 0 {
		subject = fmt.Sprintf("[%s] %s (escalation level %d)", inst.Severity, rule.Name, level)
	}

	body := fmt.Sprintf("Metric %s is %g (threshold %s %g), triggered at %s.",
		rule.Metric, inst.Value, rule.Operator, rule.Threshold,
		inst.TriggeredAt.UTC().Format(time.RFC3339))

	return &notify.Message{
		Subject:         subject,
		Body:            body,
		AlertID:         inst.ID,
		RuleID:          rule.ID,
		RuleName:        rule.Name,
		Metric:          rule.Metric,
		Severity:        string(inst.Severity),
		Value:           inst.Value,
		TriggeredAt:     inst.TriggeredAt,
		EscalationLevel: level,
	}
}
