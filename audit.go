package goSession

import (
	"context"
	"io"

	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"github.com/rs/zerolog"
)

// Audit event types.
const (
	AuditSessionCreated       = "session_created"
	AuditSessionEvicted       = "session_evicted"
	AuditSessionRefreshed     = "session_refreshed"
	AuditSessionRejected      = "session_rejected"
	AuditSessionDestroyed     = "session_destroyed"
	AuditSessionsDestroyedAll = "sessions_destroyed_all"
	AuditSessionsSwept        = "sessions_swept"
)

// NoOpSink drops audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink delivers audit events to a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// LoggerSink writes audit events through a zerolog logger.
type LoggerSink = internalaudit.LoggerSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

func NewLoggerSink(logger zerolog.Logger) *LoggerSink {
	return internalaudit.NewLoggerSink(logger)
}

func (m *Manager) emitAudit(ctx context.Context, event AuditEvent) {
	if m == nil || m.audit == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = m.now().UTC()
	}
	m.audit.Emit(ctx, event)
}

// AuditDropped reports audit events lost to a full buffer.
func (m *Manager) AuditDropped() uint64 {
	if m == nil {
		return 0
	}
	return m.audit.Dropped()
}
