// Package store holds the in-memory aggregate model for NovelSpark:
// books, their entity collections, the conversation log, version snapshots
// and chat checkpoints. It is the single source of truth for reads; all
// writes go through the mutation gateway and the two ledgers.
package store

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EntityKind identifies one of the six entity collections a book owns.
type EntityKind string

const (
	KindCharacter EntityKind = "character"
	KindScene     EntityKind = "scene"
	KindEvent     EntityKind = "event"
	KindPlace     EntityKind = "place"
	KindPage      EntityKind = "page"
	KindNote      EntityKind = "note"
)

// AllKinds returns every entity kind in a fixed order.
func AllKinds() []EntityKind {
	return []EntityKind{KindCharacter, KindScene, KindEvent, KindPlace, KindPage, KindNote}
}

// ParseKind parses a kind string (case-insensitive).
func ParseKind(s string) (EntityKind, bool) {
	switch strings.ToLower(s) {
	case "character":
		return KindCharacter, true
	case "scene":
		return KindScene, true
	case "event":
		return KindEvent, true
	case "place":
		return KindPlace, true
	case "page":
		return KindPage, true
	case "note":
		return KindNote, true
	default:
		return "", false
	}
}

// EntityMeta carries the fields shared by every entity kind.
type EntityMeta struct {
	ID        string `json:"id" bson:"id"`
	CreatedAt int64  `json:"createdAt" bson:"created_at"` // unix millis
	UpdatedAt int64  `json:"updatedAt" bson:"updated_at"`
}

// EntityID returns the entity identifier.
func (m *EntityMeta) EntityID() string { return m.ID }

// SetID assigns the entity identifier.
func (m *EntityMeta) SetID(id string) { m.ID = id }

// Created returns the creation timestamp in unix millis.
func (m *EntityMeta) Created() int64 { return m.CreatedAt }

// Updated returns the last-update timestamp in unix millis.
func (m *EntityMeta) Updated() int64 { return m.UpdatedAt }

// SetCreated sets the creation timestamp.
func (m *EntityMeta) SetCreated(t int64) { m.CreatedAt = t }

// SetUpdated sets the last-update timestamp.
func (m *EntityMeta) SetUpdated(t int64) { m.UpdatedAt = t }

// Entity is the common surface of the six entity kinds. Snapshots in the
// version ledger store cloned Entity values, so Clone must deep-copy any
// slice fields.
type Entity interface {
	EntityID() string
	SetID(id string)
	Created() int64
	Updated() int64
	SetCreated(t int64)
	SetUpdated(t int64)

	Kind() EntityKind
	// DisplayName is the primary human-readable name ("name" or "title"
	// depending on kind). Used by mention search.
	DisplayName() string
	// ShortDescription is secondary display text for search candidates.
	ShortDescription() string
	Clone() Entity
}

// Character is a person in the story. Other entities reference characters
// by ID only; a character may be deleted while stale references remain.
type Character struct {
	EntityMeta  `bson:",inline"`
	Name        string   `json:"name" bson:"name"`
	Description string   `json:"description,omitempty" bson:"description"`
	Role        string   `json:"role,omitempty" bson:"role"`
	Traits      []string `json:"traits,omitempty" bson:"traits"`
	Secrets     []string `json:"secrets,omitempty" bson:"secrets"`
}

func (c *Character) Kind() EntityKind         { return KindCharacter }
func (c *Character) DisplayName() string      { return c.Name }
func (c *Character) ShortDescription() string { return c.Description }

func (c *Character) Clone() Entity {
	cp := *c
	cp.Traits = append([]string(nil), c.Traits...)
	cp.Secrets = append([]string(nil), c.Secrets...)
	return &cp
}

// Scene is a unit of narrative with prose content.
type Scene struct {
	EntityMeta   `bson:",inline"`
	Title        string   `json:"title" bson:"title"`
	Content      string   `json:"content,omitempty" bson:"content"`
	Location     string   `json:"location,omitempty" bson:"location"`
	CharacterIDs []string `json:"characterIds,omitempty" bson:"character_ids"`
}

func (s *Scene) Kind() EntityKind         { return KindScene }
func (s *Scene) DisplayName() string      { return s.Title }
func (s *Scene) ShortDescription() string { return s.Location }

func (s *Scene) Clone() Entity {
	cp := *s
	cp.CharacterIDs = append([]string(nil), s.CharacterIDs...)
	return &cp
}

// Event is a plot point with a story date and downstream consequences.
type Event struct {
	EntityMeta   `bson:",inline"`
	Title        string   `json:"title" bson:"title"`
	Description  string   `json:"description,omitempty" bson:"description"`
	Date         string   `json:"date,omitempty" bson:"date"`
	Consequences string   `json:"consequences,omitempty" bson:"consequences"`
	CharacterIDs []string `json:"characterIds,omitempty" bson:"character_ids"`
}

func (e *Event) Kind() EntityKind         { return KindEvent }
func (e *Event) DisplayName() string      { return e.Title }
func (e *Event) ShortDescription() string { return e.Description }

func (e *Event) Clone() Entity {
	cp := *e
	cp.CharacterIDs = append([]string(nil), e.CharacterIDs...)
	return &cp
}

// Place is a location in the story world.
type Place struct {
	EntityMeta  `bson:",inline"`
	Name        string `json:"name" bson:"name"`
	Description string `json:"description,omitempty" bson:"description"`
}

func (p *Place) Kind() EntityKind         { return KindPlace }
func (p *Place) DisplayName() string      { return p.Name }
func (p *Place) ShortDescription() string { return p.Description }

func (p *Place) Clone() Entity {
	cp := *p
	return &cp
}

// Page is manuscript prose. Slice order inside a book is the displayed
// page order, so pages are only ever appended or removed, never sorted.
type Page struct {
	EntityMeta `bson:",inline"`
	Title      string `json:"title" bson:"title"`
	Content    string `json:"content,omitempty" bson:"content"`
}

func (p *Page) Kind() EntityKind         { return KindPage }
func (p *Page) DisplayName() string      { return p.Title }
func (p *Page) ShortDescription() string { return "" }

func (p *Page) Clone() Entity {
	cp := *p
	return &cp
}

// Note is free-form writer material attached to a book.
type Note struct {
	EntityMeta `bson:",inline"`
	Title      string `json:"title" bson:"title"`
	Content    string `json:"content,omitempty" bson:"content"`
}

func (n *Note) Kind() EntityKind         { return KindNote }
func (n *Note) DisplayName() string      { return n.Title }
func (n *Note) ShortDescription() string { return "" }

func (n *Note) Clone() Entity {
	cp := *n
	return &cp
}

// NewEntity returns an empty entity of the given kind.
func NewEntity(kind EntityKind) (Entity, error) {
	switch kind {
	case KindCharacter:
		return &Character{}, nil
	case KindScene:
		return &Scene{}, nil
	case KindEvent:
		return &Event{}, nil
	case KindPlace:
		return &Place{}, nil
	case KindPage:
		return &Page{}, nil
	case KindNote:
		return &Note{}, nil
	default:
		return nil, fmt.Errorf("store: unknown entity kind %q", kind)
	}
}

// MarshalSnapshot serializes an entity snapshot to the opaque blob format
// used by the relay's version_data column.
func MarshalSnapshot(e Entity) ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalSnapshot decodes an opaque snapshot blob back into the typed
// entity for the given kind.
func UnmarshalSnapshot(kind EntityKind, data []byte) (Entity, error) {
	e, err := NewEntity(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, e); err != nil {
		return nil, fmt.Errorf("store: decode %s snapshot: %w", kind, err)
	}
	return e, nil
}

// EntityVersion is an immutable point-in-time snapshot of an entity,
// appended by the version ledger on every create and update.
type EntityVersion struct {
	ID          string     `json:"id"`
	EntityKind  EntityKind `json:"entityKind"`
	EntityID    string     `json:"entityId"`
	BookID      string     `json:"bookId"`
	Snapshot    Entity     `json:"-"` // typed union, serialized via MarshalSnapshot
	MessageID   string     `json:"messageId,omitempty"`
	Description string     `json:"description,omitempty"`
	CreatedAt   int64      `json:"createdAt"`
}

// ChatCheckpoint marks a restore point in the conversation log. Anchor is
// the index of the last message at capture time, not a copy of the log.
type ChatCheckpoint struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Anchor    int    `json:"anchor"`
	CreatedAt int64  `json:"createdAt"`
}

// MessageRole is the speaker of a conversation message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// EntityAction tags a message with the entity operation it produced,
// for audit display in the chat.
type EntityAction string

const (
	ActionCreate  EntityAction = "create"
	ActionUpdate  EntityAction = "update"
	ActionRestore EntityAction = "restore"
)

// EntityRef points at an entity without embedding it.
type EntityRef struct {
	Kind EntityKind `json:"kind" bson:"kind"`
	ID   string     `json:"id" bson:"id"`
	Name string     `json:"name,omitempty" bson:"name"`
}

// ChatMessage is one turn in the conversation log.
type ChatMessage struct {
	ID        string       `json:"id" bson:"id"`
	Role      MessageRole  `json:"role" bson:"role"`
	Content   string       `json:"content" bson:"content"`
	Entity    *EntityRef   `json:"entity,omitempty" bson:"entity,omitempty"` // "this message is about X"
	Mentions  []EntityRef  `json:"mentions,omitempty" bson:"mentions,omitempty"`
	Action    EntityAction `json:"action,omitempty" bson:"action,omitempty"`
	CreatedAt int64        `json:"createdAt" bson:"created_at"`
}

// Book is the aggregate root. Entity collections are always non-nil;
// hydration and construction normalize absent collections to empty slices.
type Book struct {
	ID          string `json:"id" bson:"id"`
	Title       string `json:"title" bson:"title"`
	Description string `json:"description,omitempty" bson:"description"`
	Genre       string `json:"genre,omitempty" bson:"genre"`
	Summary     string `json:"summary,omitempty" bson:"summary"`
	Deleted     bool   `json:"deleted,omitempty" bson:"is_deleted"`
	DeletedAt   int64  `json:"deletedAt,omitempty" bson:"deleted_at"`
	CreatedAt   int64  `json:"createdAt" bson:"created_at"`
	UpdatedAt   int64  `json:"updatedAt" bson:"updated_at"`

	Characters []*Character `json:"characters" bson:"characters"`
	Scenes     []*Scene     `json:"scenes" bson:"scenes"`
	Events     []*Event     `json:"events" bson:"events"`
	Places     []*Place     `json:"places" bson:"places"`
	Pages      []*Page      `json:"pages" bson:"pages"`
	Notes      []*Note      `json:"notes" bson:"notes"`
}

// Normalize replaces nil entity collections with empty slices so callers
// never need presence checks.
func (b *Book) Normalize() {
	if b.Characters == nil {
		b.Characters = []*Character{}
	}
	if b.Scenes == nil {
		b.Scenes = []*Scene{}
	}
	if b.Events == nil {
		b.Events = []*Event{}
	}
	if b.Places == nil {
		b.Places = []*Place{}
	}
	if b.Pages == nil {
		b.Pages = []*Page{}
	}
	if b.Notes == nil {
		b.Notes = []*Note{}
	}
}

// Entities returns the book's collection for a kind as the Entity
// interface. The returned slice is a fresh header; elements are live.
func (b *Book) Entities(kind EntityKind) []Entity {
	switch kind {
	case KindCharacter:
		out := make([]Entity, len(b.Characters))
		for i, e := range b.Characters {
			out[i] = e
		}
		return out
	case KindScene:
		out := make([]Entity, len(b.Scenes))
		for i, e := range b.Scenes {
			out[i] = e
		}
		return out
	case KindEvent:
		out := make([]Entity, len(b.Events))
		for i, e := range b.Events {
			out[i] = e
		}
		return out
	case KindPlace:
		out := make([]Entity, len(b.Places))
		for i, e := range b.Places {
			out[i] = e
		}
		return out
	case KindPage:
		out := make([]Entity, len(b.Pages))
		for i, e := range b.Pages {
			out[i] = e
		}
		return out
	case KindNote:
		out := make([]Entity, len(b.Notes))
		for i, e := range b.Notes {
			out[i] = e
		}
		return out
	default:
		return nil
	}
}

// FindEntity returns the live entity with the given kind and id, or nil.
func (b *Book) FindEntity(kind EntityKind, id string) Entity {
	for _, e := range b.Entities(kind) {
		if e.EntityID() == id {
			return e
		}
	}
	return nil
}

// AttachEntity adds an entity to the collection matching its kind.
// Relay hydration use only; live mutations go through the ProjectStore.
func (b *Book) AttachEntity(e Entity) bool {
	return b.appendEntity(e)
}

// appendEntity adds an entity to the collection matching its kind.
func (b *Book) appendEntity(e Entity) bool {
	switch v := e.(type) {
	case *Character:
		b.Characters = append(b.Characters, v)
	case *Scene:
		b.Scenes = append(b.Scenes, v)
	case *Event:
		b.Events = append(b.Events, v)
	case *Place:
		b.Places = append(b.Places, v)
	case *Page:
		b.Pages = append(b.Pages, v)
	case *Note:
		b.Notes = append(b.Notes, v)
	default:
		return false
	}
	return true
}

// removeEntity hard-deletes an entity from its collection, keeping slice
// order (pages rely on it).
func (b *Book) removeEntity(kind EntityKind, id string) bool {
	switch kind {
	case KindCharacter:
		for i, e := range b.Characters {
			if e.ID == id {
				b.Characters = append(b.Characters[:i], b.Characters[i+1:]...)
				return true
			}
		}
	case KindScene:
		for i, e := range b.Scenes {
			if e.ID == id {
				b.Scenes = append(b.Scenes[:i], b.Scenes[i+1:]...)
				return true
			}
		}
	case KindEvent:
		for i, e := range b.Events {
			if e.ID == id {
				b.Events = append(b.Events[:i], b.Events[i+1:]...)
				return true
			}
		}
	case KindPlace:
		for i, e := range b.Places {
			if e.ID == id {
				b.Places = append(b.Places[:i], b.Places[i+1:]...)
				return true
			}
		}
	case KindPage:
		for i, e := range b.Pages {
			if e.ID == id {
				b.Pages = append(b.Pages[:i], b.Pages[i+1:]...)
				return true
			}
		}
	case KindNote:
		for i, e := range b.Notes {
			if e.ID == id {
				b.Notes = append(b.Notes[:i], b.Notes[i+1:]...)
				return true
			}
		}
	}
	return false
}

// replaceEntity swaps the stored entity with the same kind and id for the
// given value, preserving its position in the collection.
func (b *Book) replaceEntity(e Entity) bool {
	id := e.EntityID()
	switch v := e.(type) {
	case *Character:
		for i, cur := range b.Characters {
			if cur.ID == id {
				b.Characters[i] = v
				return true
			}
		}
	case *Scene:
		for i, cur := range b.Scenes {
			if cur.ID == id {
				b.Scenes[i] = v
				return true
			}
		}
	case *Event:
		for i, cur := range b.Events {
			if cur.ID == id {
				b.Events[i] = v
				return true
			}
		}
	case *Place:
		for i, cur := range b.Places {
			if cur.ID == id {
				b.Places[i] = v
				return true
			}
		}
	case *Page:
		for i, cur := range b.Pages {
			if cur.ID == id {
				b.Pages[i] = v
				return true
			}
		}
	case *Note:
		for i, cur := range b.Notes {
			if cur.ID == id {
				b.Notes[i] = v
				return true
			}
		}
	}
	return false
}
