package mem_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/starforth/starforth/internal/mem"
)

func TestBytesStoreLoadRoundTrip(t *testing.T) {
	var b mem.Bytes
	b.PageSize = 16

	want := []byte("forth")
	require.NoError(t, b.Store(10, want))

	got := make([]byte, len(want))
	require.NoError(t, b.Load(10, got))
	require.Equal(t, want, got)
}

func TestBytesLoadZeroFillsUntouchedRegion(t *testing.T) {
	var b mem.Bytes
	b.PageSize = 16
	require.NoError(t, b.Store(0, []byte{1, 2, 3}))

	got := make([]byte, 8)
	require.NoError(t, b.Load(0, got))
	require.Equal(t, []byte{1, 2, 3, 0, 0, 0, 0, 0}, got,
		"bytes never stored to must read back as zero, not garbage")
}

func TestBytesStoreAcrossPageBoundary(t *testing.T) {
	var b mem.Bytes
	b.PageSize = 4

	// spans three 4-byte pages: [0,4) [4,8) [8,12)
	buf := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	require.NoError(t, b.Store(0, buf))

	got := make([]byte, len(buf))
	require.NoError(t, b.Load(0, got))
	require.Equal(t, buf, got)
}

func TestBytesStoreOutOfOrderPagesStillRoundTrip(t *testing.T) {
	var b mem.Bytes
	b.PageSize = 4

	// touch a high address first, then backfill a lower one, exercising
	// PagedCore's insert-in-the-middle path in allocPage.
	require.NoError(t, b.Store(100, []byte{0xaa}))
	require.NoError(t, b.Store(0, []byte{0xbb}))

	got := make([]byte, 1)
	require.NoError(t, b.Load(0, got))
	require.Equal(t, []byte{0xbb}, got)
	require.NoError(t, b.Load(100, got))
	require.Equal(t, []byte{0xaa}, got)
}

func TestBytesLimitRejectsOverflow(t *testing.T) {
	var b mem.Bytes
	b.PageSize = 16
	b.Limit = 32

	require.NoError(t, b.Store(0, make([]byte, 32)))
	err := b.Store(0, make([]byte, 33))
	require.Error(t, err)

	var limErr mem.LimitError
	require.ErrorAs(t, err, &limErr)
	require.Equal(t, "stor", limErr.Op)
}

func TestBytesSizeTracksHighestPage(t *testing.T) {
	var b mem.Bytes
	b.PageSize = 16

	require.Equal(t, uint(0), b.Size())
	require.NoError(t, b.Store(20, []byte{1}))
	require.Equal(t, uint(32), b.Size(), "Size rounds up to the containing page's end")
}
