package store

import (
	"sync"
)

// ProjectStore is the authoritative in-memory representation of all books
// and the conversation log. Reads are free for any caller; mutation
// methods are reserved for the gateway and the two ledgers. The lock
// exists for the background hydration and mirror paths, not for local
// writers (single-writer session model).
type ProjectStore struct {
	mu        sync.RWMutex
	books     []*Book // insertion order, stable for search determinism
	byID      map[string]*Book
	currentID string
	log       []*ChatMessage
}

// NewProjectStore creates an empty store.
func NewProjectStore() *ProjectStore {
	return &ProjectStore{
		byID: make(map[string]*Book),
	}
}

// =============================================================================
// Books
// =============================================================================

// AddBook registers a book. Nil collections are normalized to empty.
func (s *ProjectStore) AddBook(b *Book) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b.Normalize()
	if _, exists := s.byID[b.ID]; exists {
		return
	}
	s.books = append(s.books, b)
	s.byID[b.ID] = b
}

// Book returns the book with the given id, deleted or not, or nil.
func (s *ProjectStore) Book(id string) *Book {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[id]
}

// Books returns all non-deleted books in insertion order.
func (s *ProjectStore) Books() []*Book {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Book, 0, len(s.books))
	for _, b := range s.books {
		if !b.Deleted {
			out = append(out, b)
		}
	}
	return out
}

// DeletedBooks returns soft-deleted books (the trash listing).
func (s *ProjectStore) DeletedBooks() []*Book {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Book
	for _, b := range s.books {
		if b.Deleted {
			out = append(out, b)
		}
	}
	return out
}

// CurrentBook returns the book the current pointer names, or nil. A
// soft-deleted book is never current.
func (s *ProjectStore) CurrentBook() *Book {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b := s.byID[s.currentID]
	if b == nil || b.Deleted {
		return nil
	}
	return b
}

// SetCurrentBook points the session at a book. Returns false if the book
// does not exist or is in the trash.
func (s *ProjectStore) SetCurrentBook(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.byID[id]
	if b == nil || b.Deleted {
		return false
	}
	s.currentID = id
	return true
}

// ClearCurrentBook drops the current pointer.
func (s *ProjectStore) ClearCurrentBook() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentID = ""
}

// SoftDeleteBook flags a book as deleted and clears the current pointer
// if it was current. The book stays queryable via DeletedBooks.
func (s *ProjectStore) SoftDeleteBook(id string, now int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.byID[id]
	if b == nil || b.Deleted {
		return false
	}
	b.Deleted = true
	b.DeletedAt = now
	b.UpdatedAt = now
	if s.currentID == id {
		s.currentID = ""
	}
	return true
}

// RestoreBook clears the deletion flag so the book reappears in the
// normal listing.
func (s *ProjectStore) RestoreBook(id string, now int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.byID[id]
	if b == nil || !b.Deleted {
		return false
	}
	b.Deleted = false
	b.DeletedAt = 0
	b.UpdatedAt = now
	return true
}

// PurgeDeleted drops soft-deleted books whose deletion timestamp is older
// than the retention window. Returns the purged book IDs.
func (s *ProjectStore) PurgeDeleted(retentionMillis, now int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged []string
	kept := s.books[:0]
	for _, b := range s.books {
		if b.Deleted && now-b.DeletedAt > retentionMillis {
			delete(s.byID, b.ID)
			purged = append(purged, b.ID)
			continue
		}
		kept = append(kept, b)
	}
	s.books = kept
	return purged
}

// =============================================================================
// Entities
// =============================================================================

// FindEntity resolves an entity. With a bookID it looks only there. With
// an empty bookID it checks the current book first, then falls back to
// scanning all books; the fallback is O(books) and serves read APIs only,
// never the mutation path.
func (s *ProjectStore) FindEntity(kind EntityKind, id, bookID string) (Entity, *Book) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if bookID != "" {
		b := s.byID[bookID]
		if b == nil {
			return nil, nil
		}
		if e := b.FindEntity(kind, id); e != nil {
			return e, b
		}
		return nil, nil
	}

	if cur := s.byID[s.currentID]; cur != nil && !cur.Deleted {
		if e := cur.FindEntity(kind, id); e != nil {
			return e, cur
		}
	}
	for _, b := range s.books {
		if e := b.FindEntity(kind, id); e != nil {
			return e, b
		}
	}
	return nil, nil
}

// AppendEntity adds an entity to the named book's matching collection.
// Gateway use only.
func (s *ProjectStore) AppendEntity(bookID string, e Entity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.byID[bookID]
	if b == nil {
		return false
	}
	return b.appendEntity(e)
}

// UpdateEntity runs fn against the live entity under the store lock.
// Returns false when the entity is absent from the book. Gateway use only.
func (s *ProjectStore) UpdateEntity(bookID string, kind EntityKind, id string, fn func(Entity)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.byID[bookID]
	if b == nil {
		return false
	}
	e := b.FindEntity(kind, id)
	if e == nil {
		return false
	}
	fn(e)
	return true
}

// RemoveEntity hard-deletes an entity. Gateway use only.
func (s *ProjectStore) RemoveEntity(bookID string, kind EntityKind, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.byID[bookID]
	if b == nil {
		return false
	}
	return b.removeEntity(kind, id)
}

// ReplaceEntity overwrites the stored entity in place. Version-ledger
// restore use only.
func (s *ProjectStore) ReplaceEntity(bookID string, e Entity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.byID[bookID]
	if b == nil {
		return false
	}
	return b.replaceEntity(e)
}

// =============================================================================
// Conversation log
// =============================================================================

// AppendMessage appends to the conversation log. Gateway use only.
func (s *ProjectStore) AppendMessage(m *ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, m)
}

// Messages returns a copy of the conversation log.
func (s *ProjectStore) Messages() []*ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*ChatMessage(nil), s.log...)
}

// LogLength returns the number of messages in the conversation log.
func (s *ProjectStore) LogLength() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.log)
}

// TruncateLog keeps the first n messages and discards the rest.
// Checkpoint-ledger restore use only.
func (s *ProjectStore) TruncateLog(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n < 0 {
		n = 0
	}
	if n < len(s.log) {
		s.log = s.log[:n]
	}
}

// MessagesForEntity returns the log messages linked to an entity, in
// order. Used to mirror per-entity chat history to the relay.
func (s *ProjectStore) MessagesForEntity(kind EntityKind, id string) []*ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*ChatMessage
	for _, m := range s.log {
		if m.Entity != nil && m.Entity.Kind == kind && m.Entity.ID == id {
			out = append(out, m)
		}
	}
	return out
}

// =============================================================================
// Hydration
// =============================================================================

// Hydrate bulk-loads books pulled from the relay. Books already present
// locally are left untouched so a late hydration never clobbers local
// edits. Returns the number of books added.
func (s *ProjectStore) Hydrate(books []*Book) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, b := range books {
		if b == nil || b.ID == "" {
			continue
		}
		if _, exists := s.byID[b.ID]; exists {
			continue
		}
		b.Normalize()
		s.books = append(s.books, b)
		s.byID[b.ID] = b
		added++
	}
	return added
}
