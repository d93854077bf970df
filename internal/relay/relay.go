// Package relay is the boundary to the durable remote copy of the store.
// Local mutations are authoritative; the relay mirrors them best-effort in
// the background and hydrates the store at startup. Mirror failures are
// reported and logged, never propagated back into the mutation path.
package relay

import (
	"context"
	"sync"
	"time"

	"github.com/B2Gdevs/novel-spark-engine-sub000/internal/logger"
	"github.com/B2Gdevs/novel-spark-engine-sub000/internal/store"
)

// Relay persists books, entities, versions and per-entity chat history to
// a remote store, and loads them back on startup. Implementations must be
// safe for concurrent use: the supervisor calls Persist* from independent
// goroutines.
type Relay interface {
	PersistBook(ctx context.Context, b *store.Book) error
	PersistEntity(ctx context.Context, e store.Entity, bookID string) error
	PersistVersion(ctx context.Context, v *store.EntityVersion) error
	PersistEntityChat(ctx context.Context, kind store.EntityKind, entityID, bookID string, history []*store.ChatMessage) error
	DeleteEntity(ctx context.Context, kind store.EntityKind, id, bookID string) error
	DeleteBook(ctx context.Context, id string) error

	// LoadBooks may return books with partial or empty entity collections;
	// the store tolerates that on hydration.
	LoadBooks(ctx context.Context) ([]*store.Book, error)
	LoadVersions(ctx context.Context, bookID string) ([]*store.EntityVersion, error)

	Close() error
}

// Result reports the outcome of one background mirror attempt.
type Result struct {
	Op   string
	Kind store.EntityKind
	ID   string
	Err  error
}

// Notify delivers a short human-readable notification to the user.
type Notify func(msg string)

const mirrorTimeout = 10 * time.Second

// Supervisor fans mutations out to the relay as independent goroutines
// and drains their results for logging and notification only. A nil
// supervisor (or one with a nil relay) is valid and mirrors nothing,
// which keeps local-only sessions on the same code path.
type Supervisor struct {
	relay   Relay
	notify  Notify
	results chan Result
	wg      sync.WaitGroup
	closed  chan struct{}

	mu   sync.Mutex
	shut bool
}

// NewSupervisor starts the result-draining loop. notify may be nil.
func NewSupervisor(r Relay, notify Notify) *Supervisor {
	s := &Supervisor{
		relay:   r,
		notify:  notify,
		results: make(chan Result, 64),
		closed:  make(chan struct{}),
	}
	go s.drain()
	return s
}

func (s *Supervisor) drain() {
	defer close(s.closed)
	for res := range s.results {
		if res.Err == nil {
			logger.Debug("relay: %s %s/%s ok", res.Op, res.Kind, res.ID)
			continue
		}
		logger.Warn("relay: %s %s/%s failed: %v", res.Op, res.Kind, res.ID, res.Err)
		if s.notify != nil {
			s.notify("sync failed for " + res.Op + "; changes are saved locally")
		}
	}
}

// enabled reports whether mirror attempts should run at all.
func (s *Supervisor) enabled() bool {
	return s != nil && s.relay != nil
}

func (s *Supervisor) run(op string, kind store.EntityKind, id string, fn func(ctx context.Context) error) {
	if !s.enabled() {
		return
	}
	// a mirror requested after Close is dropped, same as a disabled one;
	// the Add must happen under the lock so Close's Wait cannot race it
	s.mu.Lock()
	if s.shut {
		s.mu.Unlock()
		logger.Debug("relay: dropping %s %s/%s after shutdown", op, kind, id)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		s.results <- Result{Op: op, Kind: kind, ID: id, Err: fn(ctx)}
	}()
}

// MirrorBook mirrors a book row. The caller passes a stable copy.
func (s *Supervisor) MirrorBook(b *store.Book) {
	s.run("persist-book", "", b.ID, func(ctx context.Context) error {
		return s.relay.PersistBook(ctx, b)
	})
}

// MirrorEntity mirrors an entity. The caller passes a clone so the
// goroutine never races the live graph.
func (s *Supervisor) MirrorEntity(e store.Entity, bookID string) {
	s.run("persist-entity", e.Kind(), e.EntityID(), func(ctx context.Context) error {
		return s.relay.PersistEntity(ctx, e, bookID)
	})
}

// MirrorVersion mirrors a version ledger entry.
func (s *Supervisor) MirrorVersion(v *store.EntityVersion) {
	s.run("persist-version", v.EntityKind, v.EntityID, func(ctx context.Context) error {
		return s.relay.PersistVersion(ctx, v)
	})
}

// MirrorEntityChat mirrors the chat history linked to one entity.
func (s *Supervisor) MirrorEntityChat(kind store.EntityKind, entityID, bookID string, history []*store.ChatMessage) {
	s.run("persist-chat", kind, entityID, func(ctx context.Context) error {
		return s.relay.PersistEntityChat(ctx, kind, entityID, bookID, history)
	})
}

// MirrorDeleteEntity mirrors a hard entity deletion.
func (s *Supervisor) MirrorDeleteEntity(kind store.EntityKind, id, bookID string) {
	s.run("delete-entity", kind, id, func(ctx context.Context) error {
		return s.relay.DeleteEntity(ctx, kind, id, bookID)
	})
}

// MirrorDeleteBook mirrors a purged book.
func (s *Supervisor) MirrorDeleteBook(id string) {
	s.run("delete-book", "", id, func(ctx context.Context) error {
		return s.relay.DeleteBook(ctx, id)
	})
}

// Hydrate pulls books and versions from the relay into the store and
// ledger, fail-soft: on error the local collections are left intact.
// versionSink receives loaded versions oldest-first.
func (s *Supervisor) Hydrate(ctx context.Context, st *store.ProjectStore, versionSink func([]*store.EntityVersion)) {
	if !s.enabled() {
		return
	}
	books, err := s.relay.LoadBooks(ctx)
	if err != nil {
		logger.Warn("relay: hydration failed, keeping local state: %v", err)
		if s.notify != nil {
			s.notify("could not load remote library; working from local copy")
		}
		return
	}
	added := st.Hydrate(books)
	logger.Info("relay: hydrated %d book(s)", added)

	if versionSink == nil {
		return
	}
	for _, b := range books {
		versions, err := s.relay.LoadVersions(ctx, b.ID)
		if err != nil {
			logger.Warn("relay: loading versions for book %s failed: %v", b.ID, err)
			continue
		}
		versionSink(versions)
	}
}

// Wait blocks until in-flight mirror attempts finish. Test helper.
func (s *Supervisor) Wait() {
	if s == nil {
		return
	}
	s.wg.Wait()
}

// Close stops accepting mirrors, waits for in-flight ones, stops the
// drain loop and closes the underlying relay. Safe to call twice.
func (s *Supervisor) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.shut {
		s.mu.Unlock()
		return nil
	}
	s.shut = true
	s.mu.Unlock()

	s.wg.Wait()
	close(s.results)
	<-s.closed
	if s.relay != nil {
		return s.relay.Close()
	}
	return nil
}
