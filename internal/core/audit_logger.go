package core

import (
	"context"
	"sync"
)

// LoggerAuditRecorder writes audit entries to a Logger at info level.
type LoggerAuditRecorder struct {
	logger Logger
}

// NewLoggerAuditRecorder returns a recorder writing to logger.
func NewLoggerAuditRecorder(logger Logger) *LoggerAuditRecorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &LoggerAuditRecorder{logger: logger}
}

// Record implements AuditRecorder.
func (r *LoggerAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	args := []any{
		"audit_id", entry.ID,
		"operation", entry.Operation,
		"entity", entry.Entity,
		"key", entry.EntityKey,
		"status", entry.Status,
		"occurred_at", entry.OccurredAt,
	}
	if entry.Error != "" {
		args = append(args, "error", entry.Error)
	}
	if entry.Warnings > 0 {
		args = append(args, "warnings", entry.Warnings)
	}
	r.logger.Info("audit", args...)
}

// MemoryAuditLog keeps audit entries in memory, newest last.
type MemoryAuditLog struct {
	mu      sync.Mutex
	limit   int
	entries []AuditEntry
}

// NewMemoryAuditLog retains at most limit entries; limit <= 0 keeps all.
func NewMemoryAuditLog(limit int) *MemoryAuditLog {
	return &MemoryAuditLog{limit: limit}
}

// Record implements AuditRecorder.
func (l *MemoryAuditLog) Record(_ context.Context, entry AuditEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	if l.limit > 0 && len(l.entries) > l.limit {
		l.entries = append([]AuditEntry(nil), l.entries[len(l.entries)-l.limit:]...)
	}
}

// Entries returns a copy of the retained entries.
func (l *MemoryAuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// MultiAuditRecorder fans entries out to several recorders.
type MultiAuditRecorder []AuditRecorder

// Record implements AuditRecorder.
func (m MultiAuditRecorder) Record(ctx context.Context, entry AuditEntry) {
	for _, r := range m {
		if r != nil {
			r.Record(ctx, entry)
		}
	}
}
