package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type AuditEntry struct {
	Action string
	UserID uuid.UUID
	Data   map[string]any
}

type AuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

func (a *AuditLog) LogEvent(ctx context.Context, action string, userID uuid.UUID, data map[string]any) error {
	a.mu.Lock()
	a.entries = append(a.entries, AuditEntry{Action: action, UserID: userID, Data: data})
	a.mu.Unlock()
	return nil
}

func (a *AuditLog) Entries() []AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]AuditEntry(nil), a.entries...)
}
