package mentions

import (
	"github.com/B2Gdevs/novel-spark-engine-sub000/internal/logger"
	"github.com/B2Gdevs/novel-spark-engine-sub000/internal/store"
)

// Detector combines token resolution and prose scanning for message
// processing: explicit @kind/name tokens first, then unmarked name
// occurrences. Duplicates collapse to the first hit.
type Detector struct {
	st  *store.ProjectStore
	res *Resolver
}

// NewDetector creates a detector over the store.
func NewDetector(st *store.ProjectStore) *Detector {
	return &Detector{st: st, res: NewResolver(st)}
}

// Detect returns the entities referenced by text. The automaton is
// compiled per call; entity sets in a writing project are small enough
// that this stays well under a millisecond.
func (d *Detector) Detect(text string) []store.EntityRef {
	refs := d.res.ResolveMessageMentions(text)
	seen := make(map[string]bool, len(refs))
	for _, r := range refs {
		seen[string(r.Kind)+"/"+r.ID] = true
	}

	sc, err := NewScanner(d.st.Books())
	if err != nil {
		logger.Warn("mentions: scanner build failed: %v", err)
		return refs
	}
	for _, r := range sc.Scan(text) {
		key := string(r.Kind) + "/" + r.ID
		if seen[key] {
			continue
		}
		seen[key] = true
		refs = append(refs, r)
	}
	return refs
}
