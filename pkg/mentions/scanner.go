package mentions

import (
	"strings"
	"unicode"

	"github.com/coregx/ahocorasick"
	"github.com/orsinium-labs/stopwords"

	"github.com/B2Gdevs/novel-spark-engine-sub000/internal/logger"
	"github.com/B2Gdevs/novel-spark-engine-sub000/internal/store"
)

// Scanner detects unmarked entity names in prose with a single
// Aho-Corasick automaton compiled from the library's display names.
// Rebuild after entity creates and renames; scanning is O(len(text)).
type Scanner struct {
	ac       *ahocorasick.Automaton
	patterns []string
	refs     [][]store.EntityRef // pattern index -> entities sharing the name
	checker  *stopwords.Stopwords
}

// NewScanner compiles an automaton over every entity in the given books.
// Names that canonicalize to nothing but stopwords are excluded so prose
// like "the note" never matches a note titled "The".
func NewScanner(books []*store.Book) (*Scanner, error) {
	s := &Scanner{checker: stopwords.MustGet("en")}

	index := make(map[string]int)
	for _, b := range books {
		for _, kind := range store.AllKinds() {
			for _, e := range b.Entities(kind) {
				key := canonicalize(e.DisplayName())
				if key == "" || s.allStopwords(key) {
					continue
				}
				ref := store.EntityRef{Kind: kind, ID: e.EntityID(), Name: e.DisplayName()}
				if idx, ok := index[key]; ok {
					s.refs[idx] = append(s.refs[idx], ref)
					continue
				}
				index[key] = len(s.patterns)
				s.patterns = append(s.patterns, key)
				s.refs = append(s.refs, []store.EntityRef{ref})
			}
		}
	}

	if len(s.patterns) == 0 {
		return s, nil
	}

	// LeftmostLongest prefers "Kaelin Dusk" over a bare "Kaelin".
	ac, err := ahocorasick.NewBuilder().
		AddStrings(s.patterns).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil, err
	}
	s.ac = ac
	logger.Debug("mentions: scanner compiled %d pattern(s)", len(s.patterns))
	return s, nil
}

// Scan returns the entities whose names occur in text, deduplicated, in
// first-occurrence order. Matches must start and end on word boundaries
// in the canonicalized text.
func (s *Scanner) Scan(text string) []store.EntityRef {
	if s == nil || s.ac == nil || text == "" {
		return nil
	}

	haystack := canonicalize(text)
	seen := make(map[string]bool)
	var out []store.EntityRef
	for _, m := range s.ac.FindAllOverlapping([]byte(haystack)) {
		if !wordBounded(haystack, m.Start, m.End) {
			continue
		}
		for _, ref := range s.refs[m.PatternID] {
			key := string(ref.Kind) + "/" + ref.ID
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, ref)
		}
	}
	return out
}

func (s *Scanner) allStopwords(key string) bool {
	if s.checker == nil {
		return false
	}
	for _, w := range strings.Fields(key) {
		if !s.checker.Contains(w) {
			return false
		}
	}
	return true
}

// canonicalize lowercases and collapses separator runs to single
// spaces. Patterns and scanned text go through the same function, so a
// name matches regardless of casing or punctuation around it.
func canonicalize(s string) string {
	var out strings.Builder
	out.Grow(len(s))

	lastWasSpace := true
	for _, ch := range s {
		c := unicode.ToLower(ch)
		if c == '’' || c == '‘' {
			c = '\''
		}
		if unicode.IsLetter(c) || unicode.IsDigit(c) || c == '\'' || c == '-' {
			out.WriteRune(c)
			lastWasSpace = false
			continue
		}
		if !lastWasSpace {
			out.WriteRune(' ')
			lastWasSpace = true
		}
	}
	return strings.TrimRight(out.String(), " ")
}

func wordBounded(s string, start, end int) bool {
	if start > 0 && s[start-1] != ' ' {
		return false
	}
	if end < len(s) && s[end] != ' ' {
		return false
	}
	return true
}
