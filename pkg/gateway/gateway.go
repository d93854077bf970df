// Package gateway is the sole entry point for entity mutations and
// conversation appends. Every create and update captures a version and
// mirrors to the relay in the background; the local write is
// authoritative and never waits on the mirror.
package gateway

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/B2Gdevs/novel-spark-engine-sub000/internal/logger"
	"github.com/B2Gdevs/novel-spark-engine-sub000/internal/relay"
	"github.com/B2Gdevs/novel-spark-engine-sub000/internal/store"
	"github.com/B2Gdevs/novel-spark-engine-sub000/pkg/versions"
)

// ErrNoCurrentBook is returned by Create when no book is selected.
var ErrNoCurrentBook = errors.New("no current book selected")

// ErrEntityRejected is returned by Create when the store cannot append
// the new entity: the current book vanished between the selection check
// and the append, or the entity value is not one of the known kinds.
var ErrEntityRejected = errors.New("entity could not be added to the current book")

// MentionDetector finds entity references in message text. Optional;
// a nil detector means messages carry no mentions.
type MentionDetector interface {
	Detect(text string) []store.EntityRef
}

// Gateway owns the mutation path. All writes to the store's entity
// collections and conversation log go through here or through the two
// ledgers' restore operations, nothing else.
type Gateway struct {
	st     *store.ProjectStore
	ledger *versions.Ledger
	mirror *relay.Supervisor
	detect MentionDetector
}

// New wires a gateway. mirror and detect may be nil.
func New(st *store.ProjectStore, ledger *versions.Ledger, mirror *relay.Supervisor, detect MentionDetector) *Gateway {
	return &Gateway{st: st, ledger: ledger, mirror: mirror, detect: detect}
}

// =============================================================================
// Entity mutations
// =============================================================================

// Create adds a new entity to the current book, captures its first
// version and mirrors both. messageID optionally links the version to
// the conversation message that caused it. Returns the new entity id.
func (g *Gateway) Create(e store.Entity, messageID string) (string, error) {
	cur := g.st.CurrentBook()
	if cur == nil {
		return "", ErrNoCurrentBook
	}

	now := time.Now().UnixMilli()
	e.SetID(uuid.NewString())
	e.SetCreated(now)
	e.SetUpdated(now)
	if !g.st.AppendEntity(cur.ID, e) {
		return "", ErrEntityRejected
	}

	g.ledger.Capture(e.Kind(), e.EntityID(), e.Clone(), cur.ID, messageID, "created")
	g.mirror.MirrorEntity(e.Clone(), cur.ID)
	logger.Debug("gateway: created %s/%s in book %s", e.Kind(), e.EntityID(), cur.ID)
	return e.EntityID(), nil
}

// Update merges a patch into the live entity, refreshes its update
// timestamp and captures the merged state. A missing current book or a
// missing entity is a silent no-op; the local-first session tolerates
// stale references instead of failing the caller.
func (g *Gateway) Update(kind store.EntityKind, id string, p store.Patch, messageID string) {
	cur := g.st.CurrentBook()
	if cur == nil {
		return
	}
	if p == nil || p.Kind() != kind {
		return
	}

	var snapshot store.Entity
	ok := g.st.UpdateEntity(cur.ID, kind, id, func(e store.Entity) {
		if !p.Apply(e) {
			return
		}
		e.SetUpdated(time.Now().UnixMilli())
		snapshot = e.Clone()
	})
	if !ok || snapshot == nil {
		return
	}

	g.ledger.Capture(kind, id, snapshot, cur.ID, messageID, "updated")
	g.mirror.MirrorEntity(snapshot.Clone(), cur.ID)
}

// Delete removes the entity from the current book. Deletions are not
// versioned; the history that exists stays queryable. The removal is
// mirrored so the remote copy converges.
func (g *Gateway) Delete(kind store.EntityKind, id string) {
	cur := g.st.CurrentBook()
	if cur == nil {
		return
	}
	if !g.st.RemoveEntity(cur.ID, kind, id) {
		return
	}
	g.mirror.MirrorDeleteEntity(kind, id, cur.ID)
	logger.Debug("gateway: deleted %s/%s from book %s", kind, id, cur.ID)
}

// RestoreVersion rolls the live entity back to a captured version and
// tags the action in the conversation log when messageID is set.
func (g *Gateway) RestoreVersion(versionID string) bool {
	return g.ledger.Restore(versionID)
}

// GetEntityInfo is the read-through lookup the chat layer builds
// assistant context from. An empty bookID searches the current book
// first, then all books.
func (g *Gateway) GetEntityInfo(kind store.EntityKind, id, bookID string) (store.Entity, *store.Book) {
	return g.st.FindEntity(kind, id, bookID)
}

// =============================================================================
// Conversation log
// =============================================================================

// AppendMessage appends one turn to the conversation log. Mentions are
// detected from the text; entity links an audit action to the entity it
// concerns, and when present the entity's chat history is mirrored.
func (g *Gateway) AppendMessage(role store.MessageRole, content string, entity *store.EntityRef, action store.EntityAction) *store.ChatMessage {
	m := &store.ChatMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Entity:    entity,
		Action:    action,
		CreatedAt: time.Now().UnixMilli(),
	}
	if g.detect != nil {
		m.Mentions = g.detect.Detect(content)
	}
	g.st.AppendMessage(m)

	if entity != nil {
		_, b := g.st.FindEntity(entity.Kind, entity.ID, "")
		bookID := ""
		if b != nil {
			bookID = b.ID
		}
		history := g.st.MessagesForEntity(entity.Kind, entity.ID)
		g.mirror.MirrorEntityChat(entity.Kind, entity.ID, bookID, history)
	}
	return m
}

// =============================================================================
// Books
// =============================================================================

// CreateBook adds a book, makes it current and mirrors it.
func (g *Gateway) CreateBook(title, description, genre string) *store.Book {
	now := time.Now().UnixMilli()
	b := &store.Book{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		Genre:       genre,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	g.st.AddBook(b)
	g.st.SetCurrentBook(b.ID)
	g.mirror.MirrorBook(cloneBookHeader(b))
	return b
}

// SoftDeleteBook moves a book to the trash. The entity data stays; only
// the listing and the current pointer change.
func (g *Gateway) SoftDeleteBook(id string) bool {
	now := time.Now().UnixMilli()
	if !g.st.SoftDeleteBook(id, now) {
		return false
	}
	if b := g.st.Book(id); b != nil {
		g.mirror.MirrorBook(cloneBookHeader(b))
	}
	return true
}

// RestoreBook pulls a book back out of the trash.
func (g *Gateway) RestoreBook(id string) bool {
	now := time.Now().UnixMilli()
	if !g.st.RestoreBook(id, now) {
		return false
	}
	if b := g.st.Book(id); b != nil {
		g.mirror.MirrorBook(cloneBookHeader(b))
	}
	return true
}

// PurgeDeleted permanently drops trashed books older than the retention
// window and mirrors each removal. Returns the purged ids.
func (g *Gateway) PurgeDeleted(retention time.Duration) []string {
	now := time.Now().UnixMilli()
	purged := g.st.PurgeDeleted(retention.Milliseconds(), now)
	for _, id := range purged {
		g.mirror.MirrorDeleteBook(id)
	}
	if len(purged) > 0 {
		logger.Info("gateway: purged %d book(s) from trash", len(purged))
	}
	return purged
}

// cloneBookHeader copies the book row fields without the entity
// collections, which mirror separately.
func cloneBookHeader(b *store.Book) *store.Book {
	c := &store.Book{
		ID:          b.ID,
		Title:       b.Title,
		Description: b.Description,
		Genre:       b.Genre,
		Summary:     b.Summary,
		Deleted:     b.Deleted,
		DeletedAt:   b.DeletedAt,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
	c.Normalize()
	return c
}
