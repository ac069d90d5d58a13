package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"permledger/models"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) error { return nil })

// LogSink writes events to a zap logger.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("events")}
}

func (s *LogSink) Emit(_ context.Context, e Event) error {
	fields := []zap.Field{
		zap.String("event_id", e.ID),
		zap.String("kind", string(e.Kind)),
		zap.Uint64("height", e.Height),
		zap.String("principal", e.Principal.String()),
		zap.Any("fields", e.Fields),
	}
	if e.PermissionID != nil {
		fields = append(fields, zap.Uint64("permission_id", *e.PermissionID))
	}
	s.logger.Info("Ledger event", fields...)
	return nil
}

// AuditSink persists events to the audit_events table.
type AuditSink struct {
	db *gorm.DB
}

func NewAuditSink(db *gorm.DB) *AuditSink {
	return &AuditSink{db: db}
}

func (s *AuditSink) Emit(ctx context.Context, e Event) error {
	fieldsJSON, err := json.Marshal(e.Fields)
	if err != nil {
		return fmt.Errorf("encoding event fields: %w", err)
	}
	record := models.AuditEvent{
		ID:           e.ID,
		Kind:         string(e.Kind),
		Height:       e.Height,
		PermissionID: e.PermissionID,
		Principal:    e.Principal,
		Fields:       datatypes.JSON(fieldsJSON),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("storing audit event %s: %w", e.ID, err)
	}
	return nil
}

// Fanout delivers each event to every sink and joins their errors.
type Fanout []Sink

func (f Fanout) Emit(ctx context.Context, e Event) error {
	var errs []error
	for _, sink := range f {
		if err := sink.Emit(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
