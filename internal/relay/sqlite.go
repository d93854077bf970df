package relay

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/B2Gdevs/novel-spark-engine-sub000/internal/logger"
	"github.com/B2Gdevs/novel-spark-engine-sub000/internal/store"
)

// SQLiteRelay persists the library to a local SQLite database. One table
// per entity kind with kind-specific columns; list fields are stored as
// JSON text. Version snapshots stay opaque (version_data blob).
type SQLiteRelay struct {
	mu sync.RWMutex
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS books (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT,
    genre TEXT,
    summary TEXT,
    is_deleted INTEGER DEFAULT 0,
    deleted_at INTEGER,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS characters (
    id TEXT PRIMARY KEY,
    book_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    role TEXT,
    traits TEXT,
    secrets TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_characters_book ON characters(book_id);

CREATE TABLE IF NOT EXISTS scenes (
    id TEXT PRIMARY KEY,
    book_id TEXT NOT NULL,
    title TEXT NOT NULL,
    content TEXT,
    location TEXT,
    character_ids TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scenes_book ON scenes(book_id);

CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    book_id TEXT NOT NULL,
    title TEXT NOT NULL,
    description TEXT,
    event_date TEXT,
    consequences TEXT,
    character_ids TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_book ON events(book_id);

CREATE TABLE IF NOT EXISTS places (
    id TEXT PRIMARY KEY,
    book_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_places_book ON places(book_id);

CREATE TABLE IF NOT EXISTS pages (
    id TEXT PRIMARY KEY,
    book_id TEXT NOT NULL,
    title TEXT NOT NULL,
    content TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pages_book ON pages(book_id);

CREATE TABLE IF NOT EXISTS notes (
    id TEXT PRIMARY KEY,
    book_id TEXT NOT NULL,
    title TEXT NOT NULL,
    content TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notes_book ON notes(book_id);

CREATE TABLE IF NOT EXISTS entity_versions (
    id TEXT PRIMARY KEY,
    entity_id TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    version_data TEXT NOT NULL,
    book_id TEXT NOT NULL,
    message_id TEXT,
    description TEXT,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_versions_entity ON entity_versions(entity_type, entity_id);
CREATE INDEX IF NOT EXISTS idx_versions_book ON entity_versions(book_id);

CREATE TABLE IF NOT EXISTS entity_chats (
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    book_id TEXT NOT NULL,
    chat_history TEXT NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (entity_type, entity_id)
);
`

// NewSQLiteRelay opens (or creates) the database at dsn. Use ":memory:"
// for tests.
func NewSQLiteRelay(dsn string) (*SQLiteRelay, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("relay: open database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("relay: create schema: %w", err)
	}
	return &SQLiteRelay{db: db}, nil
}

// Close closes the database connection.
func (r *SQLiteRelay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// PersistBook upserts a book row.
func (r *SQLiteRelay) PersistBook(ctx context.Context, b *store.Book) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO books (id, title, description, genre, summary, is_deleted, deleted_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			genre = excluded.genre,
			summary = excluded.summary,
			is_deleted = excluded.is_deleted,
			deleted_at = excluded.deleted_at,
			updated_at = excluded.updated_at
	`, b.ID, b.Title, b.Description, b.Genre, b.Summary,
		boolToInt(b.Deleted), b.DeletedAt, b.CreatedAt, b.UpdatedAt)
	return err
}

// PersistEntity upserts the entity into its kind's table.
func (r *SQLiteRelay) PersistEntity(ctx context.Context, e store.Entity, bookID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch v := e.(type) {
	case *store.Character:
		traits, _ := json.Marshal(v.Traits)
		secrets, _ := json.Marshal(v.Secrets)
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO characters (id, book_id, name, description, role, traits, secrets, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				book_id = excluded.book_id,
				name = excluded.name,
				description = excluded.description,
				role = excluded.role,
				traits = excluded.traits,
				secrets = excluded.secrets,
				updated_at = excluded.updated_at
		`, v.ID, bookID, v.Name, v.Description, v.Role, string(traits), string(secrets), v.CreatedAt, v.UpdatedAt)
		return err
	case *store.Scene:
		charIDs, _ := json.Marshal(v.CharacterIDs)
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO scenes (id, book_id, title, content, location, character_ids, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				book_id = excluded.book_id,
				title = excluded.title,
				content = excluded.content,
				location = excluded.location,
				character_ids = excluded.character_ids,
				updated_at = excluded.updated_at
		`, v.ID, bookID, v.Title, v.Content, v.Location, string(charIDs), v.CreatedAt, v.UpdatedAt)
		return err
	case *store.Event:
		charIDs, _ := json.Marshal(v.CharacterIDs)
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO events (id, book_id, title, description, event_date, consequences, character_ids, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				book_id = excluded.book_id,
				title = excluded.title,
				description = excluded.description,
				event_date = excluded.event_date,
				consequences = excluded.consequences,
				character_ids = excluded.character_ids,
				updated_at = excluded.updated_at
		`, v.ID, bookID, v.Title, v.Description, v.Date, v.Consequences, string(charIDs), v.CreatedAt, v.UpdatedAt)
		return err
	case *store.Place:
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO places (id, book_id, name, description, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				book_id = excluded.book_id,
				name = excluded.name,
				description = excluded.description,
				updated_at = excluded.updated_at
		`, v.ID, bookID, v.Name, v.Description, v.CreatedAt, v.UpdatedAt)
		return err
	case *store.Page:
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO pages (id, book_id, title, content, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				book_id = excluded.book_id,
				title = excluded.title,
				content = excluded.content,
				updated_at = excluded.updated_at
		`, v.ID, bookID, v.Title, v.Content, v.CreatedAt, v.UpdatedAt)
		return err
	case *store.Note:
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO notes (id, book_id, title, content, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				book_id = excluded.book_id,
				title = excluded.title,
				content = excluded.content,
				updated_at = excluded.updated_at
		`, v.ID, bookID, v.Title, v.Content, v.CreatedAt, v.UpdatedAt)
		return err
	default:
		return fmt.Errorf("relay: unsupported entity type %T", e)
	}
}

// PersistVersion appends a version row. The snapshot stays an opaque
// JSON blob so schema changes in one kind never break old history.
func (r *SQLiteRelay) PersistVersion(ctx context.Context, v *store.EntityVersion) error {
	data, err := store.MarshalSnapshot(v.Snapshot)
	if err != nil {
		return fmt.Errorf("relay: encode snapshot: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO entity_versions (id, entity_id, entity_type, version_data, book_id, message_id, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, v.ID, v.EntityID, string(v.EntityKind), string(data), v.BookID, v.MessageID, v.Description, v.CreatedAt)
	return err
}

// PersistEntityChat replaces the chat history row for one entity.
func (r *SQLiteRelay) PersistEntityChat(ctx context.Context, kind store.EntityKind, entityID, bookID string, history []*store.ChatMessage) error {
	blob, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("relay: encode chat history: %w", err)
	}

	var updatedAt int64
	if n := len(history); n > 0 {
		updatedAt = history[n-1].CreatedAt
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO entity_chats (entity_type, entity_id, book_id, chat_history, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(entity_type, entity_id) DO UPDATE SET
			book_id = excluded.book_id,
			chat_history = excluded.chat_history,
			updated_at = excluded.updated_at
	`, string(kind), entityID, bookID, string(blob), updatedAt)
	return err
}

// DeleteEntity removes the entity row. Versions are kept; history
// outlives the live row.
func (r *SQLiteRelay) DeleteEntity(ctx context.Context, kind store.EntityKind, id, bookID string) error {
	table, ok := kindTable(kind)
	if !ok {
		return fmt.Errorf("relay: unknown entity kind %q", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ? AND book_id = ?", id, bookID)
	return err
}

// DeleteBook removes a purged book and everything it owns, including
// version history.
func (r *SQLiteRelay) DeleteBook(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, table := range []string{"characters", "scenes", "events", "places", "pages", "notes", "entity_versions", "entity_chats"} {
		if _, err := r.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE book_id = ?", id); err != nil {
			return err
		}
	}
	_, err := r.db.ExecContext(ctx, "DELETE FROM books WHERE id = ?", id)
	return err
}

func kindTable(kind store.EntityKind) (string, bool) {
	switch kind {
	case store.KindCharacter:
		return "characters", true
	case store.KindScene:
		return "scenes", true
	case store.KindEvent:
		return "events", true
	case store.KindPlace:
		return "places", true
	case store.KindPage:
		return "pages", true
	case store.KindNote:
		return "notes", true
	default:
		return "", false
	}
}

// =============================================================================
// Hydration
// =============================================================================

// LoadBooks loads every book with its entity collections.
func (r *SQLiteRelay) LoadBooks(ctx context.Context) ([]*store.Book, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, description, genre, summary, is_deleted, deleted_at, created_at, updated_at
		FROM books ORDER BY rowid
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []*store.Book
	for rows.Next() {
		var b store.Book
		var isDeleted int
		var deletedAt sql.NullInt64
		var description, genre, summary sql.NullString
		if err := rows.Scan(&b.ID, &b.Title, &description, &genre, &summary,
			&isDeleted, &deletedAt, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		b.Description = description.String
		b.Genre = genre.String
		b.Summary = summary.String
		b.Deleted = isDeleted != 0
		b.DeletedAt = deletedAt.Int64
		b.Normalize()
		books = append(books, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, b := range books {
		if err := r.loadEntities(ctx, b); err != nil {
			return nil, err
		}
	}
	return books, nil
}

func (r *SQLiteRelay) loadEntities(ctx context.Context, b *store.Book) error {
	if err := r.loadCharacters(ctx, b); err != nil {
		return err
	}
	if err := r.loadScenes(ctx, b); err != nil {
		return err
	}
	if err := r.loadEvents(ctx, b); err != nil {
		return err
	}
	if err := r.loadPlaces(ctx, b); err != nil {
		return err
	}
	// Page order is insertion order; rowid reproduces it exactly, even
	// for rows created in the same millisecond.
	if err := r.loadPages(ctx, b); err != nil {
		return err
	}
	return r.loadNotes(ctx, b)
}

func (r *SQLiteRelay) loadCharacters(ctx context.Context, b *store.Book) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, role, traits, secrets, created_at, updated_at
		FROM characters WHERE book_id = ? ORDER BY rowid
	`, b.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var c store.Character
		var description, role, traits, secrets sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &description, &role, &traits, &secrets, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return err
		}
		c.Description = description.String
		c.Role = role.String
		unmarshalList(traits.String, &c.Traits)
		unmarshalList(secrets.String, &c.Secrets)
		b.Characters = append(b.Characters, &c)
	}
	return rows.Err()
}

func (r *SQLiteRelay) loadScenes(ctx context.Context, b *store.Book) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, content, location, character_ids, created_at, updated_at
		FROM scenes WHERE book_id = ? ORDER BY rowid
	`, b.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var s store.Scene
		var content, location, charIDs sql.NullString
		if err := rows.Scan(&s.ID, &s.Title, &content, &location, &charIDs, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return err
		}
		s.Content = content.String
		s.Location = location.String
		unmarshalList(charIDs.String, &s.CharacterIDs)
		b.Scenes = append(b.Scenes, &s)
	}
	return rows.Err()
}

func (r *SQLiteRelay) loadEvents(ctx context.Context, b *store.Book) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, description, event_date, consequences, character_ids, created_at, updated_at
		FROM events WHERE book_id = ? ORDER BY rowid
	`, b.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var e store.Event
		var description, date, consequences, charIDs sql.NullString
		if err := rows.Scan(&e.ID, &e.Title, &description, &date, &consequences, &charIDs, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return err
		}
		e.Description = description.String
		e.Date = date.String
		e.Consequences = consequences.String
		unmarshalList(charIDs.String, &e.CharacterIDs)
		b.Events = append(b.Events, &e)
	}
	return rows.Err()
}

func (r *SQLiteRelay) loadPlaces(ctx context.Context, b *store.Book) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM places WHERE book_id = ? ORDER BY rowid
	`, b.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var p store.Place
		var description sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return err
		}
		p.Description = description.String
		b.Places = append(b.Places, &p)
	}
	return rows.Err()
}

func (r *SQLiteRelay) loadPages(ctx context.Context, b *store.Book) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, content, created_at, updated_at
		FROM pages WHERE book_id = ? ORDER BY rowid
	`, b.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var p store.Page
		var content sql.NullString
		if err := rows.Scan(&p.ID, &p.Title, &content, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return err
		}
		p.Content = content.String
		b.Pages = append(b.Pages, &p)
	}
	return rows.Err()
}

func (r *SQLiteRelay) loadNotes(ctx context.Context, b *store.Book) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, content, created_at, updated_at
		FROM notes WHERE book_id = ? ORDER BY rowid
	`, b.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var n store.Note
		var content sql.NullString
		if err := rows.Scan(&n.ID, &n.Title, &content, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return err
		}
		n.Content = content.String
		b.Notes = append(b.Notes, &n)
	}
	return rows.Err()
}

// LoadVersions loads the version history for one book, oldest-first.
// Rows whose snapshot no longer decodes are skipped with a warning
// instead of aborting hydration.
func (r *SQLiteRelay) LoadVersions(ctx context.Context, bookID string) ([]*store.EntityVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, entity_id, entity_type, version_data, book_id, message_id, description, created_at
		FROM entity_versions WHERE book_id = ? ORDER BY rowid
	`, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []*store.EntityVersion
	for rows.Next() {
		var v store.EntityVersion
		var entityType, data string
		var messageID, description sql.NullString
		if err := rows.Scan(&v.ID, &v.EntityID, &entityType, &data, &v.BookID, &messageID, &description, &v.CreatedAt); err != nil {
			return nil, err
		}
		v.EntityKind = store.EntityKind(entityType)
		v.MessageID = messageID.String
		v.Description = description.String

		snap, err := store.UnmarshalSnapshot(v.EntityKind, []byte(data))
		if err != nil {
			logger.Warn("relay: skipping corrupt version %s: %v", v.ID, err)
			continue
		}
		v.Snapshot = snap
		versions = append(versions, &v)
	}
	return versions, rows.Err()
}

func unmarshalList(s string, dst *[]string) {
	if s == "" {
		return
	}
	if err := json.Unmarshal([]byte(s), dst); err != nil {
		*dst = nil
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Compile-time interface check
var _ Relay = (*SQLiteRelay)(nil)
