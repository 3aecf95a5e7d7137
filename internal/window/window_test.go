package window_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/starforth/starforth/internal/window"
)

func TestNewClampsInitialWidth(t *testing.T) {
	w := window.New(4, 10)
	require.Equal(t, 4, w.Capacity())
	require.Equal(t, 4, w.EffectiveWidth(), "initial width greater than capacity must clamp to capacity")
}

func TestRecordAndWritePos(t *testing.T) {
	w := window.New(4, 4)
	w.Record(1)
	w.Record(2)
	require.Equal(t, uint64(2), w.WritePos())
}

func TestCopyIntoRecentTail(t *testing.T) {
	w := window.New(4, 4)
	for _, id := range []uint32{1, 2, 3, 4, 5} {
		w.Record(id)
	}
	// capacity 4, 5 writes: buffer now holds {5,2,3,4} physically, logical
	// recent order is 2,3,4,5.
	got := w.CopyInto(nil)
	require.Equal(t, []uint32{2, 3, 4, 5}, got)
}

func TestCopyIntoRespectsEffectiveWidth(t *testing.T) {
	w := window.New(8, 8)
	for _, id := range []uint32{1, 2, 3, 4} {
		w.Record(id)
	}
	w.SetEffectiveWidth(2)
	got := w.CopyInto(nil)
	require.Equal(t, []uint32{3, 4}, got, "CopyInto must only return the effective-width most recent entries")
}

func TestSetEffectiveWidthClamps(t *testing.T) {
	w := window.New(4, 4)
	w.SetEffectiveWidth(0)
	require.Equal(t, 1, w.EffectiveWidth(), "width is clamped to at least 1")
	w.SetEffectiveWidth(100)
	require.Equal(t, 4, w.EffectiveWidth(), "width is clamped to capacity")
}

func TestPublisherReadBeforePublish(t *testing.T) {
	p := window.NewPublisher()
	_, ok := p.Read()
	require.False(t, ok, "no snapshot has been published yet")
}

func TestPublisherPublishAndRead(t *testing.T) {
	p := window.NewPublisher()
	snap := window.Snapshot{PublishedTick: 7, WindowWidth: 3}
	p.Publish(snap)

	got, ok := p.Read()
	require.True(t, ok)
	require.Equal(t, snap, got)

	snap2 := window.Snapshot{PublishedTick: 8, WindowWidth: 5}
	p.Publish(snap2)
	got2, ok := p.Read()
	require.True(t, ok)
	require.Equal(t, snap2, got2)
}
