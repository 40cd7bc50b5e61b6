// Package recorder persists the prediction lifecycle event stream as audit
// rows, off the request path.
package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"pipewatch/pkg/bus"
	"pipewatch/services/prediction"
)

// Event is one recorded prediction lifecycle entry.
type Event struct {
	ID        int64             `gorm:"primaryKey"`
	Kind      string            `gorm:"not null"`
	Token     string            ``
	Payload   datatypes.JSONMap `gorm:"type:jsonb"`
	RawOutput []byte            `gorm:"type:bytea"`
	CreatedAt time.Time         `gorm:"not null;autoCreateTime"`
}

// TableName keeps the recorder on the migration-owned table.
func (Event) TableName() string { return "prediction_events" }

// Recorder subscribes to the prediction subjects and writes one audit row per
// event. Recording failures are logged and NAKed for redelivery; they never
// affect the API request that produced the event.
type Recorder struct {
	orm    *gorm.DB
	bus    *bus.Bus
	logger zerolog.Logger

	subsMu sync.Mutex
	subs   []io.Closer
}

// New creates a recorder bound to the provided dependencies.
func New(orm *gorm.DB, b *bus.Bus, logger zerolog.Logger) (*Recorder, error) {
	if orm == nil {
		return nil, errors.New("orm is required")
	}
	if b == nil {
		return nil, errors.New("bus is required")
	}
	return &Recorder{orm: orm, bus: b, logger: logger}, nil
}

// Start registers durable subscriptions and begins recording.
func (rec *Recorder) Start(ctx context.Context) error {
	if rec == nil {
		return errors.New("nil recorder")
	}

	specs := []struct {
		subject string
		durable string
		kind    string
	}{
		{prediction.SubjectValidated, "recorder-validated", "prediction.validated"},
		{prediction.SubjectExecuted, "recorder-executed", "prediction.executed"},
		{prediction.SubjectModelRegistered, "recorder-models", "model.registered"},
	}

	for _, spec := range specs {
		kind := spec.kind
		closer, err := rec.bus.Subscribe(ctx, spec.subject, spec.durable, func(ctx context.Context, data []byte) error {
			return rec.record(ctx, kind, data)
		})
		if err != nil {
			rec.Close()
			return err
		}
		rec.subsMu.Lock()
		rec.subs = append(rec.subs, closer)
		rec.subsMu.Unlock()
	}

	return nil
}

// Close tears down active subscriptions.
func (rec *Recorder) Close() error {
	if rec == nil {
		return nil
	}

	rec.subsMu.Lock()
	defer rec.subsMu.Unlock()

	var firstErr error
	for _, sub := range rec.subs {
		if sub == nil {
			continue
		}
		if err := sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	rec.subs = nil
	return firstErr
}

func (rec *Recorder) record(ctx context.Context, kind string, data []byte) error {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		// A malformed event will never parse on redelivery either; log and
		// drop it instead of poisoning the consumer.
		rec.logger.Error().Err(err).Str("kind", kind).Msg("discard malformed event")
		return nil
	}

	event := Event{
		Kind:    kind,
		Payload: datatypes.JSONMap(payload),
	}
	if token, ok := payload["token"].(string); ok {
		event.Token = token
	}

	// Executed events carry the full model stdout; archive it compressed and
	// keep the payload itself lean.
	if rawOutput, ok := payload["raw_output"].(string); ok && rawOutput != "" {
		compressed, err := gzipBytes([]byte(rawOutput))
		if err != nil {
			return err
		}
		event.RawOutput = compressed
		delete(event.Payload, "raw_output")
	}

	if err := rec.orm.WithContext(ctx).Create(&event).Error; err != nil {
		rec.logger.Error().Err(err).Str("kind", kind).Msg("record prediction event")
		return err
	}
	return nil
}
