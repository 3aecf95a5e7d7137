package dict_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/starforth/starforth/internal/cell"
	"github.com/starforth/starforth/internal/dict"
)

func defineWord(t *testing.T, d *dict.Dictionary, name string) *dict.Entry {
	t.Helper()
	e, err := d.Define(name, dict.Body{}, d.Here())
	require.NoError(t, err)
	d.SetHere(d.Here() + 1)
	return e
}

func TestDefineAndLookup(t *testing.T) {
	d := dict.New(0)
	defineWord(t, d, "DUP")
	e := defineWord(t, d, "SWAP")

	require.Equal(t, e, d.Latest())
	got := d.Lookup("SWAP")
	require.NotNil(t, got)
	require.Equal(t, "SWAP", got.Name)
}

func TestLookupPrefersNewestDefinition(t *testing.T) {
	d := dict.New(0)
	first := defineWord(t, d, "FOO")
	second := defineWord(t, d, "FOO")

	got := d.Lookup("FOO")
	require.Same(t, second, got, "lookup must find the most recently defined shadowing entry")
	require.NotSame(t, first, got)
}

func TestWordIDsAreStableAndRecycled(t *testing.T) {
	d := dict.New(0)
	a := defineWord(t, d, "A")
	b := defineWord(t, d, "B")
	require.NotEqual(t, a.WordID, b.WordID)

	require.NoError(t, d.Forget("B"))
	c := defineWord(t, d, "C")
	require.Equal(t, b.WordID, c.WordID, "Forget must recycle the freed word-id for the next definition")
}

func TestByIDResolvesAndGoesStaleAfterForget(t *testing.T) {
	d := dict.New(0)
	a := defineWord(t, d, "A")
	require.Same(t, a, d.ByID(a.WordID))

	require.NoError(t, d.Forget("A"))
	require.Nil(t, d.ByID(a.WordID), "a forgotten word's id must no longer resolve")
}

func TestForgetUnknownWord(t *testing.T) {
	d := dict.New(0)
	defineWord(t, d, "A")
	require.ErrorIs(t, d.Forget("NOPE"), dict.ErrUnknownWord)
}

func TestForgetCannotCrossFence(t *testing.T) {
	d := dict.New(0)
	defineWord(t, d, "CORE-WORD")
	d.EstablishFence()
	defineWord(t, d, "USER-WORD")

	require.NoError(t, d.Forget("USER-WORD"), "forgetting above the fence is fine")
	require.ErrorIs(t, d.Forget("CORE-WORD"), dict.ErrFenceViolation, "forgetting at or below the fence must be refused")
}

func TestHiddenAndSmudgedAreUnsearchable(t *testing.T) {
	d := dict.New(0)
	e := defineWord(t, d, "WORD")
	require.True(t, e.Searchable())

	e.SetSmudged(true)
	require.False(t, e.Searchable())
	require.Nil(t, d.Lookup("WORD"), "a smudged entry must not be found by Lookup")

	e.SetSmudged(false)
	e.SetHidden(true)
	require.False(t, e.Searchable())
	require.Nil(t, d.Lookup("WORD"))
}

func TestLongNameIsTruncated(t *testing.T) {
	d := dict.New(0)
	long := ""
	for i := 0; i < dict.MaxNameLen+10; i++ {
		long += "x"
	}
	e, err := d.Define(long, dict.Body{}, 0)
	require.NoError(t, err)
	require.Len(t, e.Name, dict.MaxNameLen)
}

func TestDump(t *testing.T) {
	d := dict.New(0)
	defineWord(t, d, "A")
	defineWord(t, d, "B")

	dump := d.Dump()
	require.Len(t, dump, 2)
	require.Equal(t, "B", dump[0].Name, "Dump walks from latest back to oldest")
	require.Equal(t, "A", dump[1].Name)
}

func TestWordOf(t *testing.T) {
	d := dict.New(0)
	defineWord(t, d, "A") // occupies offset 0
	name, off := d.WordOf(cell.Addr(0))
	require.Equal(t, "A", name)
	require.Equal(t, cell.Addr(0), off)
}
