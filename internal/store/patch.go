package store

// Patch is a shallow field merge for one entity kind. Nil pointer fields
// are left untouched; set fields overwrite. The gateway applies patches
// under the store lock and refreshes the update timestamp afterwards.
type Patch interface {
	Kind() EntityKind
	// Apply merges the patch into e. Returns false when e is not the
	// patch's kind.
	Apply(e Entity) bool
}

// CharacterPatch updates a Character.
type CharacterPatch struct {
	Name        *string
	Description *string
	Role        *string
	Traits      *[]string
	Secrets     *[]string
}

func (p CharacterPatch) Kind() EntityKind { return KindCharacter }

func (p CharacterPatch) Apply(e Entity) bool {
	c, ok := e.(*Character)
	if !ok {
		return false
	}
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.Role != nil {
		c.Role = *p.Role
	}
	if p.Traits != nil {
		c.Traits = append([]string(nil), *p.Traits...)
	}
	if p.Secrets != nil {
		c.Secrets = append([]string(nil), *p.Secrets...)
	}
	return true
}

// ScenePatch updates a Scene.
type ScenePatch struct {
	Title        *string
	Content      *string
	Location     *string
	CharacterIDs *[]string
}

func (p ScenePatch) Kind() EntityKind { return KindScene }

func (p ScenePatch) Apply(e Entity) bool {
	s, ok := e.(*Scene)
	if !ok {
		return false
	}
	if p.Title != nil {
		s.Title = *p.Title
	}
	if p.Content != nil {
		s.Content = *p.Content
	}
	if p.Location != nil {
		s.Location = *p.Location
	}
	if p.CharacterIDs != nil {
		s.CharacterIDs = append([]string(nil), *p.CharacterIDs...)
	}
	return true
}

// EventPatch updates an Event.
type EventPatch struct {
	Title        *string
	Description  *string
	Date         *string
	Consequences *string
	CharacterIDs *[]string
}

func (p EventPatch) Kind() EntityKind { return KindEvent }

func (p EventPatch) Apply(e Entity) bool {
	ev, ok := e.(*Event)
	if !ok {
		return false
	}
	if p.Title != nil {
		ev.Title = *p.Title
	}
	if p.Description != nil {
		ev.Description = *p.Description
	}
	if p.Date != nil {
		ev.Date = *p.Date
	}
	if p.Consequences != nil {
		ev.Consequences = *p.Consequences
	}
	if p.CharacterIDs != nil {
		ev.CharacterIDs = append([]string(nil), *p.CharacterIDs...)
	}
	return true
}

// PlacePatch updates a Place.
type PlacePatch struct {
	Name        *string
	Description *string
}

func (p PlacePatch) Kind() EntityKind { return KindPlace }

func (p PlacePatch) Apply(e Entity) bool {
	pl, ok := e.(*Place)
	if !ok {
		return false
	}
	if p.Name != nil {
		pl.Name = *p.Name
	}
	if p.Description != nil {
		pl.Description = *p.Description
	}
	return true
}

// PagePatch updates a Page.
type PagePatch struct {
	Title   *string
	Content *string
}

func (p PagePatch) Kind() EntityKind { return KindPage }

func (p PagePatch) Apply(e Entity) bool {
	pg, ok := e.(*Page)
	if !ok {
		return false
	}
	if p.Title != nil {
		pg.Title = *p.Title
	}
	if p.Content != nil {
		pg.Content = *p.Content
	}
	return true
}

// NotePatch updates a Note.
type NotePatch struct {
	Title   *string
	Content *string
}

func (p NotePatch) Kind() EntityKind { return KindNote }

func (p NotePatch) Apply(e Entity) bool {
	n, ok := e.(*Note)
	if !ok {
		return false
	}
	if p.Title != nil {
		n.Title = *p.Title
	}
	if p.Content != nil {
		n.Content = *p.Content
	}
	return true
}

// Str is a convenience for building patches with string literals.
func Str(s string) *string { return &s }

// Strs is a convenience for building patches with string-slice literals.
func Strs(s ...string) *[]string { return &s }
