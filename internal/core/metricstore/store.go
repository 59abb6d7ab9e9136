package metricstore

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/noa10/mataresit-sub018/pkg/errors"
)

// Sample is one observation of a named metric.
type Sample struct {
	Metric     string    `json:"metric"`
	Value      float64   `json:"value"`
	ObservedAt time.Time `json:"observed_at"`
}

// Store keeps the latest sample per metric. External collectors push samples
// over the ingest endpoint; the rule evaluator reads them back. Staleness is
// judged by the reader against its own window, so the store keeps whatever
// was pushed last.
type Store struct {
	logger *logrus.Logger

	mu     sync.RWMutex
	latest map[string]Sample
}

// New creates an empty metric store.
func New(logger *logrus.Logger) *Store {
	return &Store{
		logger: logger,
		latest: make(map[string]Sample),
	}
}

// Record stores a sample, replacing any earlier one for the same metric.
// Samples older than the one already held are ignored.
func (s *Store) Record(sample Sample) error {
	if sample.Metric == "" {
		return errors.Wrapf(errors.ErrValidation, "sample metric name is required")
	}
	if sample.ObservedAt.IsZero() {
		sample.ObservedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.latest[sample.Metric]; ok && sample.ObservedAt.Before(current.ObservedAt) {
		s.logger.WithFields(logrus.Fields{
			"metric":      sample.Metric,
			"observed_at": sample.ObservedAt,
		}).Debug("Ignoring out-of-order metric sample")
		return nil
	}

	s.latest[sample.Metric] = sample
	return nil
}

// Latest returns the newest sample for the metric. It implements the metric
// source the evaluator reads from.
func (s *Store) Latest(ctx context.Context, metric string) (float64, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sample, ok := s.latest[metric]
	if !ok {
		return 0, time.Time{}, errors.Wrapf(errors.ErrDataUnavailable, "no sample recorded for metric %s", metric)
	}
	return sample.Value, sample.ObservedAt, nil
}

// Snapshot returns all held samples, for the dashboard.
func (s *Store) Snapshot() []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Sample, 0, len(s.latest))
	for _, sample := range s.latest {
		out = append(out, sample)
	}
	return out
}
