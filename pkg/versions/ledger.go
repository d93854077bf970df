// Package versions keeps the append-only version history of every
// entity and serves restores from it. A version is captured on every
// create and update; deletions are never versioned, so history for a
// deleted entity stays queryable.
package versions

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/B2Gdevs/novel-spark-engine-sub000/internal/logger"
	"github.com/B2Gdevs/novel-spark-engine-sub000/internal/relay"
	"github.com/B2Gdevs/novel-spark-engine-sub000/internal/store"
)

// Ledger records entity versions in capture order and answers history
// queries newest-first. Snapshots are deep copies; nothing in the ledger
// aliases the live graph.
type Ledger struct {
	st     *store.ProjectStore
	mirror *relay.Supervisor

	mu       sync.RWMutex
	entries  []*store.EntityVersion
	byID     map[string]*store.EntityVersion
	byEntity map[entityKey][]*store.EntityVersion
}

type entityKey struct {
	kind store.EntityKind
	id   string
}

// NewLedger creates an empty ledger. mirror may be nil for local-only
// sessions.
func NewLedger(st *store.ProjectStore, mirror *relay.Supervisor) *Ledger {
	return &Ledger{
		st:       st,
		mirror:   mirror,
		byID:     make(map[string]*store.EntityVersion),
		byEntity: make(map[entityKey][]*store.EntityVersion),
	}
}

// Capture appends a version holding the given snapshot and mirrors it in
// the background. The snapshot must already be a clone; the ledger takes
// ownership of it. Returns the new version's id.
func (l *Ledger) Capture(kind store.EntityKind, entityID string, snapshot store.Entity, bookID, messageID, description string) string {
	v := &store.EntityVersion{
		ID:          uuid.NewString(),
		EntityKind:  kind,
		EntityID:    entityID,
		BookID:      bookID,
		Snapshot:    snapshot,
		MessageID:   messageID,
		Description: description,
		CreatedAt:   time.Now().UnixMilli(),
	}
	l.mu.Lock()
	l.append(v)
	l.mu.Unlock()
	l.mirror.MirrorVersion(v)
	logger.Debug("versions: captured %s for %s/%s", v.ID, kind, entityID)
	return v.ID
}

func (l *Ledger) append(v *store.EntityVersion) {
	l.entries = append(l.entries, v)
	l.byID[v.ID] = v
	k := entityKey{kind: v.EntityKind, id: v.EntityID}
	l.byEntity[k] = append(l.byEntity[k], v)
}

// Get returns the version with the given id, or nil.
func (l *Ledger) Get(id string) *store.EntityVersion {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.byID[id]
}

// List returns an entity's versions newest-first by capture time.
// Versions captured in the same millisecond keep their capture order
// relative to each other, so the listing is deterministic. The backing
// sequence is not guaranteed to be time-ordered: hydration can append a
// remote version that predates local captures.
func (l *Ledger) List(kind store.EntityKind, entityID string) []*store.EntityVersion {
	l.mu.RLock()
	defer l.mu.RUnlock()

	history := l.byEntity[entityKey{kind: kind, id: entityID}]
	out := make([]*store.EntityVersion, len(history))
	for i, v := range history {
		out[len(history)-1-i] = v
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt > out[j].CreatedAt
	})
	return out
}

// Count returns how many versions exist for an entity.
func (l *Ledger) Count(kind store.EntityKind, entityID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byEntity[entityKey{kind: kind, id: entityID}])
}

// Restore overwrites the live entity with the version's snapshot. The
// book is resolved from the version itself, so restore works even when
// the session has moved to another book. The live creation timestamp is
// preserved; the update timestamp moves to now. The restore itself is
// not captured as a new version, but the restored state is mirrored.
// Returns false for an unknown version or when the entity no longer
// exists in the version's book.
func (l *Ledger) Restore(versionID string) bool {
	v := l.Get(versionID)
	if v == nil {
		return false
	}
	live, _ := l.st.FindEntity(v.EntityKind, v.EntityID, v.BookID)
	if live == nil {
		return false
	}

	restored := v.Snapshot.Clone()
	restored.SetCreated(live.Created())
	restored.SetUpdated(time.Now().UnixMilli())
	if !l.st.ReplaceEntity(v.BookID, restored) {
		return false
	}
	l.mirror.MirrorEntity(restored.Clone(), v.BookID)
	logger.Debug("versions: restored %s/%s to %s", v.EntityKind, v.EntityID, versionID)
	return true
}

// Hydrate bulk-loads versions pulled from the relay, oldest-first.
// Versions already known are skipped, so hydration after local captures
// never duplicates history.
func (l *Ledger) Hydrate(entries []*store.EntityVersion) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	added := 0
	for _, v := range entries {
		if v == nil || v.ID == "" || v.Snapshot == nil {
			continue
		}
		if _, exists := l.byID[v.ID]; exists {
			continue
		}
		l.append(v)
		added++
	}
	return added
}
