// Package audit hands completed cycle records to the durable logs.
// Sinks do not retry; a failure is reported to the caller and nothing is rolled back.
package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/smartplant/plantcare/internal/model/messages"
	"go.uber.org/zap"
)

// Sink appends one record.
type Sink interface {
	Append(ctx context.Context, rec messages.CycleRecord) error
}

// Named labels a sink in errors and logs.
type Named struct {
	Name string
	Sink Sink
}

// Multi appends to every sink and joins the failures.
type Multi struct {
	sinks []Named
}

var _ Sink = (*Multi)(nil)

func NewMulti(sinks ...Named) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Len() int { return len(m.sinks) }

func (m *Multi) Append(ctx context.Context, rec messages.CycleRecord) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Sink.Append(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Log writes the record to the structured log.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log {
	if log == nil {
		log = zap.NewNop()
	}
	return &Log{log: log.Named("audit")}
}

func (l *Log) Append(_ context.Context, rec messages.CycleRecord) error {
	l.log.Info("cycle record",
		zap.String("cycle_id", rec.CycleID),
		zap.String("timestamp", rec.Timestamp.Format(messages.TimestampLayout)),
		zap.Float64("temperature", rec.Temperature),
		zap.Float64("humidity", rec.Humidity),
		zap.String("light", rec.Light),
		zap.String("soil", rec.SoilSummary),
		zap.String("image", rec.ImageReference),
		zap.String("disease", rec.Disease),
		zap.Float64("confidence", rec.Confidence),
		zap.String("actions", rec.ActionsTaken),
		zap.String("plant", rec.Plant),
	)
	l.log.Debug("cycle row", zap.Any("row", rec.Row()))
	return nil
}
