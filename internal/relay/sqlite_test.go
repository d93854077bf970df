package relay

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/B2Gdevs/novel-spark-engine-sub000/internal/store"
)

func newSQLiteFixture(t *testing.T) *SQLiteRelay {
	t.Helper()
	r, err := NewSQLiteRelay(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestSQLiteBookRoundTrip(t *testing.T) {
	r := newSQLiteFixture(t)
	ctx := context.Background()

	b := &store.Book{
		ID: "b1", Title: "Ashfall", Genre: "fantasy",
		CreatedAt: 100, UpdatedAt: 100,
	}
	require.NoError(t, r.PersistBook(ctx, b))

	// upsert updates in place
	b.Title = "Ashfall, Revised"
	b.UpdatedAt = 200
	require.NoError(t, r.PersistBook(ctx, b))

	books, err := r.LoadBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 1)
	got := books[0]
	assert.Equal(t, "Ashfall, Revised", got.Title)
	assert.Equal(t, int64(200), got.UpdatedAt)
	assert.NotNil(t, got.Characters, "loaded books must have non-nil collections")
}

func TestSQLiteEntityRoundTrip(t *testing.T) {
	r := newSQLiteFixture(t)
	ctx := context.Background()

	require.NoError(t, r.PersistBook(ctx, &store.Book{ID: "b1", Title: "Ashfall", CreatedAt: 1, UpdatedAt: 1}))

	c := &store.Character{Name: "Kaelin Dusk", Role: "smuggler", Traits: []string{"wry", "loyal"}}
	c.ID = "c1"
	c.CreatedAt = 10
	c.UpdatedAt = 10
	require.NoError(t, r.PersistEntity(ctx, c, "b1"))

	s := &store.Scene{Title: "Harbor Escape", Location: "Duskhaven", CharacterIDs: []string{"c1"}}
	s.ID = "s1"
	s.CreatedAt = 20
	s.UpdatedAt = 20
	require.NoError(t, r.PersistEntity(ctx, s, "b1"))

	books, err := r.LoadBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 1)

	require.Len(t, books[0].Characters, 1)
	gotC := books[0].Characters[0]
	assert.Equal(t, "Kaelin Dusk", gotC.Name)
	assert.Equal(t, []string{"wry", "loyal"}, gotC.Traits)

	require.Len(t, books[0].Scenes, 1)
	assert.Equal(t, []string{"c1"}, books[0].Scenes[0].CharacterIDs)
}

func TestSQLitePageOrderSurvivesRoundTrip(t *testing.T) {
	r := newSQLiteFixture(t)
	ctx := context.Background()

	require.NoError(t, r.PersistBook(ctx, &store.Book{ID: "b1", Title: "Ashfall", CreatedAt: 1, UpdatedAt: 1}))

	// same-millisecond stamps and ids that sort against insertion order;
	// only true insertion order may decide the loaded sequence
	ids := []string{"zz-first", "mm-second", "aa-third"}
	for i, id := range ids {
		p := &store.Page{Title: fmt.Sprintf("Chapter %d", i+1)}
		p.ID = id
		p.CreatedAt = 500
		p.UpdatedAt = 500
		require.NoError(t, r.PersistEntity(ctx, p, "b1"))
	}

	books, err := r.LoadBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books[0].Pages, 3)
	for i, id := range ids {
		assert.Equal(t, id, books[0].Pages[i].ID)
	}
}

func TestSQLiteDeleteEntity(t *testing.T) {
	r := newSQLiteFixture(t)
	ctx := context.Background()

	require.NoError(t, r.PersistBook(ctx, &store.Book{ID: "b1", Title: "Ashfall", CreatedAt: 1, UpdatedAt: 1}))
	c := &store.Character{Name: "Kaelin"}
	c.ID = "c1"
	require.NoError(t, r.PersistEntity(ctx, c, "b1"))
	require.NoError(t, r.DeleteEntity(ctx, store.KindCharacter, "c1", "b1"))

	books, err := r.LoadBooks(ctx)
	require.NoError(t, err)
	assert.Empty(t, books[0].Characters)
}

func TestSQLiteVersionRoundTrip(t *testing.T) {
	r := newSQLiteFixture(t)
	ctx := context.Background()

	snap := &store.Character{Name: "Kaelin Dusk", Role: "smuggler"}
	snap.ID = "c1"
	v := &store.EntityVersion{
		ID: "v1", EntityKind: store.KindCharacter, EntityID: "c1",
		BookID: "b1", Snapshot: snap, Description: "created", CreatedAt: 50,
	}
	require.NoError(t, r.PersistVersion(ctx, v))
	// idempotent: version rows are immutable
	require.NoError(t, r.PersistVersion(ctx, v))

	got, err := r.LoadVersions(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "v1", got[0].ID)
	assert.Equal(t, "created", got[0].Description)

	back, ok := got[0].Snapshot.(*store.Character)
	require.True(t, ok)
	assert.Equal(t, "smuggler", back.Role)
}

func TestSQLiteLoadVersionsSkipsCorruptRows(t *testing.T) {
	r := newSQLiteFixture(t)
	ctx := context.Background()

	snap := &store.Character{Name: "Kaelin"}
	snap.ID = "c1"
	require.NoError(t, r.PersistVersion(ctx, &store.EntityVersion{
		ID: "v1", EntityKind: store.KindCharacter, EntityID: "c1",
		BookID: "b1", Snapshot: snap, CreatedAt: 1,
	}))

	_, err := r.db.Exec(`
		INSERT INTO entity_versions (id, entity_id, entity_type, version_data, book_id, created_at)
		VALUES ('v2', 'c1', 'character', 'not json', 'b1', 2)
	`)
	require.NoError(t, err)

	got, err := r.LoadVersions(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, got, 1, "corrupt rows are skipped, not fatal")
	assert.Equal(t, "v1", got[0].ID)
}

func TestSQLiteEntityChatRoundTrip(t *testing.T) {
	r := newSQLiteFixture(t)
	ctx := context.Background()

	history := []*store.ChatMessage{
		{ID: "m1", Role: store.RoleUser, Content: "rewrite Kaelin", CreatedAt: 10},
		{ID: "m2", Role: store.RoleAssistant, Content: "done", CreatedAt: 20},
	}
	require.NoError(t, r.PersistEntityChat(ctx, store.KindCharacter, "c1", "b1", history))

	var blob string
	var updatedAt int64
	err := r.db.QueryRow(`
		SELECT chat_history, updated_at FROM entity_chats
		WHERE entity_type = 'character' AND entity_id = 'c1'
	`).Scan(&blob, &updatedAt)
	require.NoError(t, err)
	assert.Equal(t, int64(20), updatedAt)
	assert.Contains(t, blob, "rewrite Kaelin")
}

func TestSQLiteDeleteBookCascades(t *testing.T) {
	r := newSQLiteFixture(t)
	ctx := context.Background()

	require.NoError(t, r.PersistBook(ctx, &store.Book{ID: "b1", Title: "Ashfall", CreatedAt: 1, UpdatedAt: 1}))
	c := &store.Character{Name: "Kaelin"}
	c.ID = "c1"
	require.NoError(t, r.PersistEntity(ctx, c, "b1"))
	require.NoError(t, r.PersistVersion(ctx, &store.EntityVersion{
		ID: "v1", EntityKind: store.KindCharacter, EntityID: "c1",
		BookID: "b1", Snapshot: c, CreatedAt: 1,
	}))

	require.NoError(t, r.DeleteBook(ctx, "b1"))

	books, err := r.LoadBooks(ctx)
	require.NoError(t, err)
	assert.Empty(t, books)

	vs, err := r.LoadVersions(ctx, "b1")
	require.NoError(t, err)
	assert.Empty(t, vs, "purging a book drops its version history too")
}
