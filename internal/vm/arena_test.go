package vm_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/starforth/starforth/internal/cell"
	"github.com/starforth/starforth/internal/vm"
)

func TestNewArenaTooSmall(t *testing.T) {
	_, err := vm.NewArena(10)
	require.ErrorIs(t, err, vm.ErrArenaTooSmall)
}

func TestNewArenaPartitionsInOrder(t *testing.T) {
	a, err := vm.NewArena(vm.DefaultSize)
	require.NoError(t, err)

	require.Equal(t, cell.Addr(0), a.DictStart)
	require.Equal(t, a.DictEnd, a.BlockStart)
	require.Equal(t, a.BlockEnd, a.UserStart)
	require.Equal(t, a.UserEnd, a.LogStart)
	require.Equal(t, a.Size(), a.LogEnd)
	require.True(t, a.DictEnd < a.BlockEnd)
	require.True(t, a.BlockEnd < a.UserEnd)
	require.True(t, a.UserEnd < a.LogEnd)
}

func TestLoadStoreCellRoundTrip(t *testing.T) {
	a, err := vm.NewArena(4096)
	require.NoError(t, err)

	require.NoError(t, a.StoreCell(0, 123456789))
	got, err := a.LoadCell(0)
	require.NoError(t, err)
	require.Equal(t, cell.Cell(123456789), got)
}

func TestLoadStoreU8RoundTrip(t *testing.T) {
	a, err := vm.NewArena(4096)
	require.NoError(t, err)

	require.NoError(t, a.StoreU8(10, 0xAB))
	got, err := a.LoadU8(10)
	require.NoError(t, err)
	require.Equal(t, byte(0xAB), got)
}

func TestOutOfBoundsAccessErrors(t *testing.T) {
	a, err := vm.NewArena(4096)
	require.NoError(t, err)

	_, err = a.LoadU8(a.Size())
	require.Error(t, err)
	require.ErrorIs(t, err, vm.KindAddressOutOfBounds)

	err = a.StoreCell(a.Size()-1, 1)
	require.ErrorIs(t, err, vm.KindAddressOutOfBounds, "a cell write crossing the end of the arena must be rejected")
}

func TestLoadStoreBytesRoundTrip(t *testing.T) {
	a, err := vm.NewArena(4096)
	require.NoError(t, err)

	payload := []byte("hello, starforth")
	require.NoError(t, a.StoreBytes(100, payload))
	got, err := a.LoadBytes(100, len(payload))
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestAlign(t *testing.T) {
	require.Equal(t, cell.Addr(0), vm.Align(0))
	require.Equal(t, cell.Addr(8), vm.Align(1))
	require.Equal(t, cell.Addr(8), vm.Align(8))
	require.Equal(t, cell.Addr(16), vm.Align(9))
}

func TestErrorKindKindness(t *testing.T) {
	err := vm.Error{Kind: vm.KindStackUnderflow, Word: "DUP"}
	require.ErrorIs(t, err, vm.KindStackUnderflow)
	require.False(t, errors.Is(err, vm.KindStackOverflow))
	require.Equal(t, "DUP: stack underflow", err.Error())
}
