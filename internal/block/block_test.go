package block_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/starforth/starforth/internal/block"
)

func TestBlockZeroReserved(t *testing.T) {
	s := block.New()
	_, err := s.GetBuffer(0)
	require.ErrorIs(t, err, block.ErrReservedBlock)

	err = s.Update(0, []byte("x"))
	require.ErrorIs(t, err, block.ErrReservedBlock)
}

func TestGetBufferUntouchedIsZeroFilled(t *testing.T) {
	s := block.New()
	buf, err := s.GetBuffer(1)
	require.NoError(t, err)
	require.Len(t, buf, block.Size)
	for i, b := range buf {
		require.Zerof(t, b, "untouched block must read as all-zero at offset %d", i)
	}
}

func TestUpdateThenGetBufferRoundTrip(t *testing.T) {
	s := block.New()
	payload := make([]byte, block.Size)
	copy(payload, "10 20 + .")

	require.NoError(t, s.Update(1, payload))
	got, err := s.GetBuffer(1)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestUpdatePadsShortBuffer(t *testing.T) {
	s := block.New()
	require.NoError(t, s.Update(2, []byte("short")))

	got, err := s.GetBuffer(2)
	require.NoError(t, err)
	require.Len(t, got, block.Size)
	require.Equal(t, []byte("short"), got[:5])
	for _, b := range got[5:] {
		require.Zero(t, b)
	}
}

func TestBlocksAreIndependent(t *testing.T) {
	s := block.New()
	require.NoError(t, s.Update(1, []byte("one")))
	require.NoError(t, s.Update(2, []byte("two")))

	got1, _ := s.GetBuffer(1)
	got2, _ := s.GetBuffer(2)
	require.Equal(t, byte('o'), got1[0])
	require.Equal(t, byte('t'), got2[0])
}

func TestFlushIsNoop(t *testing.T) {
	s := block.New()
	require.NoError(t, s.Flush())
}
