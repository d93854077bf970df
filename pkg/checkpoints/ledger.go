// Package checkpoints marks restore points in the conversation log and
// rolls the log back to them. A checkpoint stores only an anchor index
// into the log, never a copy of the messages, so checkpoints are cheap
// no matter how long the conversation grows.
package checkpoints

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/B2Gdevs/novel-spark-engine-sub000/internal/logger"
	"github.com/B2Gdevs/novel-spark-engine-sub000/internal/store"
)

// Ledger records conversation checkpoints in creation order.
type Ledger struct {
	st *store.ProjectStore

	mu      sync.RWMutex
	entries []*store.ChatCheckpoint
	byID    map[string]*store.ChatCheckpoint
}

// NewLedger creates an empty checkpoint ledger over the store's log.
func NewLedger(st *store.ProjectStore) *Ledger {
	return &Ledger{
		st:   st,
		byID: make(map[string]*store.ChatCheckpoint),
	}
}

// Create records a checkpoint anchored at the last message currently in
// the log. An empty log anchors at -1, which restores to an empty log.
func (l *Ledger) Create(label string) *store.ChatCheckpoint {
	cp := &store.ChatCheckpoint{
		ID:        uuid.NewString(),
		Label:     label,
		Anchor:    l.st.LogLength() - 1,
		CreatedAt: time.Now().UnixMilli(),
	}
	l.mu.Lock()
	l.entries = append(l.entries, cp)
	l.byID[cp.ID] = cp
	l.mu.Unlock()
	logger.Debug("checkpoints: created %s at anchor %d", cp.ID, cp.Anchor)
	return cp
}

// Get returns the checkpoint with the given id, or nil.
func (l *Ledger) Get(id string) *store.ChatCheckpoint {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.byID[id]
}

// List returns the checkpoints in creation order.
func (l *Ledger) List() []*store.ChatCheckpoint {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*store.ChatCheckpoint(nil), l.entries...)
}

// Restore truncates the conversation log so the checkpoint's anchor is
// the last message again. A checkpoint whose anchor is at or past the
// current end of the log is a no-op that still succeeds; restoring never
// appends messages. Returns false only for an unknown checkpoint.
func (l *Ledger) Restore(id string) bool {
	cp := l.Get(id)
	if cp == nil {
		return false
	}
	if cp.Anchor+1 >= l.st.LogLength() {
		return true
	}
	l.st.TruncateLog(cp.Anchor + 1)
	logger.Debug("checkpoints: restored %s, log truncated to %d", cp.ID, cp.Anchor+1)
	return true
}

// Remove deletes a checkpoint. The log is untouched.
func (l *Ledger) Remove(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.byID[id]; !ok {
		return false
	}
	delete(l.byID, id)
	for i, cp := range l.entries {
		if cp.ID == id {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			break
		}
	}
	return true
}
