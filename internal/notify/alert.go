// Package notify registers platform alerts for medication rules and
// fans fired alerts out to delivery sinks.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Alert is one reminder as handed to delivery sinks. MedicationID is
// the back-reference used for cancellation and triage; sinks must not
// mutate dose state from it.
type Alert struct {
	MedicationID string    `json:"medicationId"`
	Title        string    `json:"title"`
	Body         string    `json:"body"`
	FiredAt      time.Time `json:"firedAt"`
}

// Sink delivers a fired alert to one channel.
type Sink interface {
	Deliver(ctx context.Context, alert Alert) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, alert Alert) error

func (f SinkFunc) Deliver(ctx context.Context, alert Alert) error {
	return f(ctx, alert)
}

// LogSink writes alerts to the application log. It is the fallback
// channel and never fails.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Deliver(_ context.Context, alert Alert) error {
	s.logger.Info("Reminder",
		zap.String("medication_id", alert.MedicationID),
		zap.String("title", alert.Title),
		zap.String("body", alert.Body),
	)
	return nil
}

// MultiSink delivers to every sink; one failing channel does not stop
// the others.
type MultiSink struct {
	sinks  []Sink
	logger *zap.Logger
}

func NewMultiSink(logger *zap.Logger, sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks, logger: logger}
}

// Add registers another delivery channel.
func (m *MultiSink) Add(sink Sink) {
	m.sinks = append(m.sinks, sink)
}

func (m *MultiSink) Deliver(ctx context.Context, alert Alert) error {
	for _, s := range m.sinks {
		if err := s.Deliver(ctx, alert); err != nil {
			m.logger.Warn("Alert delivery failed on one channel",
				zap.String("medication_id", alert.MedicationID),
				zap.Error(err),
			)
		}
	}
	return nil
}
