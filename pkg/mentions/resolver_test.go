package mentions

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/B2Gdevs/novel-spark-engine-sub000/internal/store"
)

func addCharacter(st *store.ProjectStore, bookID, id, name string) {
	c := &store.Character{Name: name, Description: "a " + name}
	c.ID = id
	st.AppendEntity(bookID, c)
}

func libraryFixture(t *testing.T) *store.ProjectStore {
	t.Helper()
	st := store.NewProjectStore()
	st.AddBook(&store.Book{ID: "b1", Title: "Ashfall"})
	st.AddBook(&store.Book{ID: "b2", Title: "Tidewater"})
	st.SetCurrentBook("b1")

	addCharacter(st, "b1", "c1", "Kaelin Dusk")
	addCharacter(st, "b1", "c2", "Mira Stonebridge")
	addCharacter(st, "b2", "c3", "Kaelin Dusk")
	addCharacter(st, "b2", "c4", "Torv Ashen")

	p := &store.Place{Name: "Duskhaven"}
	p.ID = "p1"
	st.AppendEntity("b1", p)
	return st
}

func TestSearchSubsequenceMatch(t *testing.T) {
	res := NewResolver(libraryFixture(t))

	got := res.Search("kd", []store.EntityKind{store.KindCharacter}, false)
	require.Len(t, got, 1)
	assert.Equal(t, "Kaelin Dusk", got[0].Name)

	// "kd" is not an ordered subsequence of "Mira Stonebridge"
	for _, c := range got {
		assert.NotEqual(t, "Mira Stonebridge", c.Name)
	}
}

func TestSearchRanking(t *testing.T) {
	st := store.NewProjectStore()
	st.AddBook(&store.Book{ID: "b1", Title: "Ashfall"})
	st.SetCurrentBook("b1")
	addCharacter(st, "b1", "c1", "Mirabel")
	addCharacter(st, "b1", "c2", "Mira")
	addCharacter(st, "b1", "c3", "Amira")

	got := NewResolver(st).Search("mira", []store.EntityKind{store.KindCharacter}, false)
	require.Len(t, got, 3)
	assert.Equal(t, "Mira", got[0].Name, "exact match ranks first")
	assert.Equal(t, "Mirabel", got[1].Name, "prefix match ranks second")
	assert.Equal(t, "Amira", got[2].Name, "substring match ranks last")
}

func TestSearchScope(t *testing.T) {
	res := NewResolver(libraryFixture(t))

	local := res.Search("kaelin", []store.EntityKind{store.KindCharacter}, false)
	require.Len(t, local, 1)
	assert.Equal(t, "b1", local[0].BookID)

	all := res.Search("kaelin", []store.EntityKind{store.KindCharacter}, true)
	require.Len(t, all, 2)
	titles := []string{all[0].BookTitle, all[1].BookTitle}
	assert.Contains(t, titles, "Ashfall")
	assert.Contains(t, titles, "Tidewater")

	// a character that lives only in a non-current book is invisible to a
	// current-book search but found with includeAllBooks, tagged with its
	// owning book
	assert.Empty(t, res.Search("torv", []store.EntityKind{store.KindCharacter}, false))
	cross := res.Search("torv", []store.EntityKind{store.KindCharacter}, true)
	require.Len(t, cross, 1)
	assert.Equal(t, "b2", cross[0].BookID)
	assert.Equal(t, "Tidewater", cross[0].BookTitle)
}

func TestSearchNoCurrentBook(t *testing.T) {
	st := libraryFixture(t)
	st.ClearCurrentBook()
	res := NewResolver(st)

	assert.Empty(t, res.Search("kaelin", nil, false))
	assert.NotEmpty(t, res.Search("kaelin", nil, true))
}

func TestSearchKindFilterAndCap(t *testing.T) {
	st := store.NewProjectStore()
	st.AddBook(&store.Book{ID: "b1", Title: "Ashfall"})
	st.SetCurrentBook("b1")
	for i := 0; i < 15; i++ {
		addCharacter(st, "b1", fmt.Sprintf("c%d", i), fmt.Sprintf("Guard %02d", i))
	}
	res := NewResolver(st)

	got := res.Search("guard", []store.EntityKind{store.KindCharacter}, false)
	assert.Len(t, got, MaxResults)

	// deterministic: alphabetical within the same rank
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1].Name, got[i].Name)
	}

	assert.Empty(t, res.Search("guard", []store.EntityKind{store.KindPlace}, false))
}

func TestFindTokens(t *testing.T) {
	text := "Ask @character/Kaelin about @Tidewater/character/Kaelin and @widget/nothing."
	tokens := FindTokens(text)
	require.Len(t, tokens, 2, "malformed kind should be dropped, left verbatim")

	assert.Equal(t, store.KindCharacter, tokens[0].Kind)
	assert.Equal(t, "", tokens[0].Book)
	assert.Equal(t, "Kaelin", tokens[0].Name)

	assert.Equal(t, "Tidewater", tokens[1].Book)
	assert.Equal(t, store.KindCharacter, tokens[1].Kind)
	assert.Equal(t, "Kaelin", tokens[1].Name)
}

func TestResolveTokenBookScoped(t *testing.T) {
	res := NewResolver(libraryFixture(t))

	got := res.ResolveToken(Token{Book: "tidewater", Kind: store.KindCharacter, Name: "Kaelin"})
	require.NotEmpty(t, got)
	for _, c := range got {
		assert.Equal(t, "Tidewater", c.BookTitle, "book filter is case-insensitive")
	}
}

func TestResolveTokenBookFallback(t *testing.T) {
	res := NewResolver(libraryFixture(t))

	// unknown book title falls back to an unscoped search instead of failing
	got := res.ResolveToken(Token{Book: "No Such Book", Kind: store.KindCharacter, Name: "Duskhaven"})
	require.NotEmpty(t, got)
	assert.Equal(t, store.KindPlace, got[0].Kind)
}

func TestResolveMessageMentions(t *testing.T) {
	res := NewResolver(libraryFixture(t))

	refs := res.ResolveMessageMentions("Bring @character/Mira to @place/Duskhaven")
	require.Len(t, refs, 2)
	assert.Equal(t, "Mira Stonebridge", refs[0].Name)
	assert.Equal(t, "Duskhaven", refs[1].Name)
}
