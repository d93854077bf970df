// Package mentions resolves entity references in free text. The
// resolver answers ranked type-ahead searches and parses @kind/name
// tokens; the scanner finds unmarked entity names in prose.
package mentions

import (
	"regexp"
	"sort"
	"strings"

	"github.com/B2Gdevs/novel-spark-engine-sub000/internal/store"
)

// MaxResults caps a single search. Callers must not assume the list is
// complete.
const MaxResults = 10

// Candidate is one ranked search hit. BookID and BookTitle let callers
// disambiguate cross-book references when includeAllBooks is set.
type Candidate struct {
	Kind        store.EntityKind `json:"kind"`
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	BookID      string           `json:"bookId"`
	BookTitle   string           `json:"bookTitle"`
}

// Ref converts a candidate to an entity reference.
func (c Candidate) Ref() store.EntityRef {
	return store.EntityRef{Kind: c.Kind, ID: c.ID, Name: c.Name}
}

// Resolver searches entity names across the store. Read-only; it never
// mutates the store.
type Resolver struct {
	st *store.ProjectStore
}

// NewResolver creates a resolver over the store.
func NewResolver(st *store.ProjectStore) *Resolver {
	return &Resolver{st: st}
}

// match ranks. Lower is better.
const (
	rankExact  = 0
	rankPrefix = 1
	rankFuzzy  = 2
)

// Search returns ranked candidates whose names match partial. Matching
// is case-insensitive: direct substring containment first, then an
// ordered-subsequence scan (every rune of partial, in order, without
// backtracking). Exact matches rank above prefix matches, prefix above
// the rest; alphabetical order breaks ties, so identical inputs always
// produce the identical list.
//
// With includeAllBooks false only the current book is searched; with it
// true every non-deleted book is, and candidates carry their owning
// book. An empty kinds filter searches every kind.
func (r *Resolver) Search(partial string, kinds []store.EntityKind, includeAllBooks bool) []Candidate {
	needle := strings.ToLower(strings.TrimSpace(partial))
	if needle == "" {
		return nil
	}
	if len(kinds) == 0 {
		kinds = store.AllKinds()
	}

	var books []*store.Book
	if includeAllBooks {
		books = r.st.Books()
	} else if cur := r.st.CurrentBook(); cur != nil {
		books = []*store.Book{cur}
	}

	type scored struct {
		cand Candidate
		rank int
	}
	var hits []scored
	for _, b := range books {
		for _, kind := range kinds {
			for _, e := range b.Entities(kind) {
				name := e.DisplayName()
				rank, ok := matchRank(needle, name)
				if !ok {
					continue
				}
				hits = append(hits, scored{
					cand: Candidate{
						Kind:        kind,
						ID:          e.EntityID(),
						Name:        name,
						Description: e.ShortDescription(),
						BookID:      b.ID,
						BookTitle:   b.Title,
					},
					rank: rank,
				})
			}
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].rank != hits[j].rank {
			return hits[i].rank < hits[j].rank
		}
		return strings.ToLower(hits[i].cand.Name) < strings.ToLower(hits[j].cand.Name)
	})

	if len(hits) > MaxResults {
		hits = hits[:MaxResults]
	}
	out := make([]Candidate, len(hits))
	for i, h := range hits {
		out[i] = h.cand
	}
	return out
}

func matchRank(needle, name string) (int, bool) {
	lower := strings.ToLower(name)
	switch {
	case lower == needle:
		return rankExact, true
	case strings.HasPrefix(lower, needle):
		return rankPrefix, true
	case strings.Contains(lower, needle):
		return rankFuzzy, true
	case subsequenceMatch(needle, lower):
		return rankFuzzy, true
	default:
		return 0, false
	}
}

// subsequenceMatch reports whether every rune of needle appears in
// haystack in order, scanning left to right without backtracking.
func subsequenceMatch(needle, haystack string) bool {
	hs := []rune(haystack)
	i := 0
	for _, r := range needle {
		found := false
		for i < len(hs) {
			if hs[i] == r {
				found = true
				i++
				break
			}
			i++
		}
		if !found {
			return false
		}
	}
	return true
}

// =============================================================================
// Token parsing
// =============================================================================

// Token is one parsed @-mention. Book is empty for the two-segment form.
type Token struct {
	Raw  string // full token text including the @
	Book string
	Kind store.EntityKind
	Name string
}

// Segments are single words: letters, digits, apostrophes and hyphens.
// Multi-word names resolve through the fuzzy search, so "@character/Kaelin"
// finds "Kaelin Dusk" without the token having to span the space.
var tokenPattern = regexp.MustCompile(`@([\p{L}\p{N}][\p{L}\p{N}'-]*(?:/[\p{L}\p{N}][\p{L}\p{N}'-]*){1,2})`)

// FindTokens extracts well-formed @[book/]kind/name tokens from text.
// Malformed tokens (unknown kind, wrong segment count) are dropped so
// the caller leaves them verbatim in the message.
func FindTokens(text string) []Token {
	var out []Token
	for _, m := range tokenPattern.FindAllStringSubmatch(text, -1) {
		t, ok := parseToken(m[0], m[1])
		if !ok {
			continue
		}
		out = append(out, t)
	}
	return out
}

func parseToken(raw, body string) (Token, bool) {
	segs := strings.Split(body, "/")
	switch len(segs) {
	case 2:
		kind, ok := store.ParseKind(segs[0])
		if !ok || segs[1] == "" {
			return Token{}, false
		}
		return Token{Raw: raw, Kind: kind, Name: segs[1]}, true
	case 3:
		kind, ok := store.ParseKind(segs[1])
		if !ok || segs[0] == "" || segs[2] == "" {
			return Token{}, false
		}
		return Token{Raw: raw, Book: segs[0], Kind: kind, Name: segs[2]}, true
	default:
		return Token{}, false
	}
}

// ResolveToken resolves one parsed token to candidates. The book-scoped
// form searches all books and keeps only candidates from the named book;
// when no candidate survives that filter it falls back to an unscoped
// search across all kinds and books rather than failing.
func (r *Resolver) ResolveToken(t Token) []Candidate {
	if t.Book == "" {
		return r.Search(t.Name, []store.EntityKind{t.Kind}, false)
	}

	all := r.Search(t.Name, []store.EntityKind{t.Kind}, true)
	var scoped []Candidate
	for _, c := range all {
		if strings.EqualFold(c.BookTitle, t.Book) {
			scoped = append(scoped, c)
		}
	}
	if len(scoped) > 0 {
		return scoped
	}
	return r.Search(t.Name, nil, true)
}

// ResolveMessageMentions finds every token in text and resolves each to
// its best candidate. The text itself is never modified. Duplicate
// references are collapsed.
func (r *Resolver) ResolveMessageMentions(text string) []store.EntityRef {
	var refs []store.EntityRef
	seen := make(map[string]bool)
	for _, t := range FindTokens(text) {
		cands := r.ResolveToken(t)
		if len(cands) == 0 {
			continue
		}
		best := cands[0]
		key := string(best.Kind) + "/" + best.ID
		if seen[key] {
			continue
		}
		seen[key] = true
		refs = append(refs, best.Ref())
	}
	return refs
}
