package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/B2Gdevs/novel-spark-engine-sub000/internal/logger"
	"github.com/B2Gdevs/novel-spark-engine-sub000/internal/store"
)

// MongoRelay persists the library to MongoDB. Books and entities live in
// their own collections keyed by entity id; version snapshots and chat
// histories are stored as JSON strings so they stay opaque to the schema.
type MongoRelay struct {
	client *mongo.Client
	db     *mongo.Database
}

const (
	colBooks    = "books"
	colEntities = "entities"
	colVersions = "entity_versions"
	colChats    = "entity_chats"
)

// NewMongoRelay connects and pings the server before returning.
func NewMongoRelay(ctx context.Context, uri, dbName string) (*MongoRelay, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("relay: connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("relay: ping mongodb: %w", err)
	}
	logger.Info("relay: connected to mongodb database %s", dbName)
	return &MongoRelay{client: client, db: client.Database(dbName)}, nil
}

// Close disconnects the client.
func (r *MongoRelay) Close() error {
	return r.client.Disconnect(context.Background())
}

func (r *MongoRelay) upsert(ctx context.Context, col string, id string, doc any) error {
	_, err := r.db.Collection(col).ReplaceOne(ctx,
		bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	return err
}

type bookDoc struct {
	ID          string `bson:"_id"`
	Title       string `bson:"title"`
	Description string `bson:"description,omitempty"`
	Genre       string `bson:"genre,omitempty"`
	Summary     string `bson:"summary,omitempty"`
	Deleted     bool   `bson:"is_deleted"`
	DeletedAt   int64  `bson:"deleted_at,omitempty"`
	CreatedAt   int64  `bson:"created_at"`
	UpdatedAt   int64  `bson:"updated_at"`
}

// entityDoc carries the snapshot as a JSON string. Decoding goes through
// the same codec as version snapshots.
type entityDoc struct {
	ID        string `bson:"_id"`
	BookID    string `bson:"book_id"`
	Kind      string `bson:"entity_type"`
	Data      string `bson:"data"`
	CreatedAt int64  `bson:"created_at"`
	UpdatedAt int64  `bson:"updated_at"`
}

type versionDoc struct {
	ID          string `bson:"_id"`
	EntityID    string `bson:"entity_id"`
	Kind        string `bson:"entity_type"`
	Data        string `bson:"version_data"`
	BookID      string `bson:"book_id"`
	MessageID   string `bson:"message_id,omitempty"`
	Description string `bson:"description,omitempty"`
	CreatedAt   int64  `bson:"created_at"`
}

type chatDoc struct {
	ID        string `bson:"_id"` // kind + "/" + entity id
	Kind      string `bson:"entity_type"`
	EntityID  string `bson:"entity_id"`
	BookID    string `bson:"book_id"`
	History   string `bson:"chat_history"`
	UpdatedAt int64  `bson:"updated_at"`
}

// PersistBook upserts a book document without its entity collections.
func (r *MongoRelay) PersistBook(ctx context.Context, b *store.Book) error {
	return r.upsert(ctx, colBooks, b.ID, bookDoc{
		ID:          b.ID,
		Title:       b.Title,
		Description: b.Description,
		Genre:       b.Genre,
		Summary:     b.Summary,
		Deleted:     b.Deleted,
		DeletedAt:   b.DeletedAt,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	})
}

// PersistEntity upserts one entity document.
func (r *MongoRelay) PersistEntity(ctx context.Context, e store.Entity, bookID string) error {
	data, err := store.MarshalSnapshot(e)
	if err != nil {
		return fmt.Errorf("relay: encode entity: %w", err)
	}
	return r.upsert(ctx, colEntities, e.EntityID(), entityDoc{
		ID:        e.EntityID(),
		BookID:    bookID,
		Kind:      string(e.Kind()),
		Data:      string(data),
		CreatedAt: e.Created(),
		UpdatedAt: e.Updated(),
	})
}

// PersistVersion appends one immutable version document.
func (r *MongoRelay) PersistVersion(ctx context.Context, v *store.EntityVersion) error {
	data, err := store.MarshalSnapshot(v.Snapshot)
	if err != nil {
		return fmt.Errorf("relay: encode snapshot: %w", err)
	}
	return r.upsert(ctx, colVersions, v.ID, versionDoc{
		ID:          v.ID,
		EntityID:    v.EntityID,
		Kind:        string(v.EntityKind),
		Data:        string(data),
		BookID:      v.BookID,
		MessageID:   v.MessageID,
		Description: v.Description,
		CreatedAt:   v.CreatedAt,
	})
}

// PersistEntityChat replaces the chat history document for one entity.
func (r *MongoRelay) PersistEntityChat(ctx context.Context, kind store.EntityKind, entityID, bookID string, history []*store.ChatMessage) error {
	blob, err := marshalHistory(history)
	if err != nil {
		return err
	}
	var updatedAt int64
	if n := len(history); n > 0 {
		updatedAt = history[n-1].CreatedAt
	}
	id := string(kind) + "/" + entityID
	return r.upsert(ctx, colChats, id, chatDoc{
		ID:        id,
		Kind:      string(kind),
		EntityID:  entityID,
		BookID:    bookID,
		History:   string(blob),
		UpdatedAt: updatedAt,
	})
}

// DeleteEntity removes the entity document. Versions are kept.
func (r *MongoRelay) DeleteEntity(ctx context.Context, kind store.EntityKind, id, bookID string) error {
	_, err := r.db.Collection(colEntities).DeleteOne(ctx,
		bson.M{"_id": id, "entity_type": string(kind)})
	return err
}

// DeleteBook removes a purged book and everything it owns.
func (r *MongoRelay) DeleteBook(ctx context.Context, id string) error {
	for _, col := range []string{colEntities, colVersions, colChats} {
		if _, err := r.db.Collection(col).DeleteMany(ctx, bson.M{"book_id": id}); err != nil {
			return err
		}
	}
	_, err := r.db.Collection(colBooks).DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// LoadBooks loads every book and refills its entity collections from the
// entities collection. Entity documents that no longer decode are skipped
// with a warning.
func (r *MongoRelay) LoadBooks(ctx context.Context) ([]*store.Book, error) {
	findOpts := options.Find().SetSort(bson.M{"created_at": 1})
	cur, err := r.db.Collection(colBooks).Find(ctx, bson.M{}, findOpts)
	if err != nil {
		return nil, err
	}
	var docs []bookDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	byID := make(map[string]*store.Book, len(docs))
	books := make([]*store.Book, 0, len(docs))
	for _, d := range docs {
		b := &store.Book{
			ID:          d.ID,
			Title:       d.Title,
			Description: d.Description,
			Genre:       d.Genre,
			Summary:     d.Summary,
			Deleted:     d.Deleted,
			DeletedAt:   d.DeletedAt,
			CreatedAt:   d.CreatedAt,
			UpdatedAt:   d.UpdatedAt,
		}
		b.Normalize()
		byID[b.ID] = b
		books = append(books, b)
	}

	// collection order reproduces insertion order; see the SQLite backend
	entOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err = r.db.Collection(colEntities).Find(ctx, bson.M{}, entOpts)
	if err != nil {
		return nil, err
	}
	var ents []entityDoc
	if err := cur.All(ctx, &ents); err != nil {
		return nil, err
	}
	for _, d := range ents {
		b := byID[d.BookID]
		if b == nil {
			continue
		}
		e, err := store.UnmarshalSnapshot(store.EntityKind(d.Kind), []byte(d.Data))
		if err != nil {
			logger.Warn("relay: skipping corrupt entity %s: %v", d.ID, err)
			continue
		}
		b.AttachEntity(e)
	}
	return books, nil
}

// LoadVersions loads the version history for one book, oldest-first.
func (r *MongoRelay) LoadVersions(ctx context.Context, bookID string) ([]*store.EntityVersion, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.db.Collection(colVersions).Find(ctx, bson.M{"book_id": bookID}, findOpts)
	if err != nil {
		return nil, err
	}
	var docs []versionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	var versions []*store.EntityVersion
	for _, d := range docs {
		snap, err := store.UnmarshalSnapshot(store.EntityKind(d.Kind), []byte(d.Data))
		if err != nil {
			logger.Warn("relay: skipping corrupt version %s: %v", d.ID, err)
			continue
		}
		versions = append(versions, &store.EntityVersion{
			ID:          d.ID,
			EntityKind:  store.EntityKind(d.Kind),
			EntityID:    d.EntityID,
			BookID:      d.BookID,
			Snapshot:    snap,
			MessageID:   d.MessageID,
			Description: d.Description,
			CreatedAt:   d.CreatedAt,
		})
	}
	return versions, nil
}

func marshalHistory(history []*store.ChatMessage) ([]byte, error) {
	blob, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("relay: encode chat history: %w", err)
	}
	return blob, nil
}

var _ Relay = (*MongoRelay)(nil)
