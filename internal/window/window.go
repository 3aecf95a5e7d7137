// Package window implements the rolling window of truth: a circular buffer
// of word-ids advanced by the interpreter, plus the double-buffered
// snapshot mechanism the heartbeat uses to publish a consistent, lock-free
// view to readers.
package window

import "sync/atomic"

// Window is the live circular buffer the interpreter writes into on every
// invocation. Capacity never changes after construction; only the
// *effective* sampled width does.
type Window struct {
	buf      []uint32 // word-ids
	writePos uint64   // monotonically advancing write cursor

	// effectiveWidth is the portion of buf the heartbeat samples for
	// statistics; clamped to [minWidth, cap(buf)] by the heartbeat. Accessed
	// both by the writer-side Record (read-only) and the heartbeat
	// (read/write), hence atomic rather than plain int.
	effectiveWidth int64
}

// New returns a Window with the given fixed capacity and initial effective
// width.
func New(capacity, initialWidth int) *Window {
	if initialWidth > capacity {
		initialWidth = capacity
	}
	w := &Window{buf: make([]uint32, capacity)}
	atomic.StoreInt64(&w.effectiveWidth, int64(initialWidth))
	return w
}

// Capacity returns the buffer's fixed capacity.
func (w *Window) Capacity() int { return len(w.buf) }

// EffectiveWidth returns the portion of the buffer currently sampled.
func (w *Window) EffectiveWidth() int { return int(atomic.LoadInt64(&w.effectiveWidth)) }

// SetEffectiveWidth is called only by the heartbeat's window-tuning step.
func (w *Window) SetEffectiveWidth(n int) {
	if n < 1 {
		n = 1
	}
	if n > len(w.buf) {
		n = len(w.buf)
	}
	atomic.StoreInt64(&w.effectiveWidth, int64(n))
}

// Record advances the write cursor and stores id, overwriting the oldest
// entry once the buffer wraps. Called once per executed word; never blocks
// on the heartbeat. Readers always read the published slot; they never
// block the writer.
func (w *Window) Record(id uint32) {
	pos := atomic.AddUint64(&w.writePos, 1) - 1
	w.buf[pos%uint64(len(w.buf))] = id
}

// WritePos returns the monotonic write cursor, for the heartbeat's snapshot
// bookkeeping.
func (w *Window) WritePos() uint64 { return atomic.LoadUint64(&w.writePos) }

// CopyInto copies the live buffer's current effective-width tail (the most
// recently recorded EffectiveWidth() entries) into dst, resizing dst as
// needed. Called only by the heartbeat during snapshot capture — the only
// reader ever allowed to touch buf directly.
func (w *Window) CopyInto(dst []uint32) []uint32 {
	width := w.EffectiveWidth()
	if cap(dst) < width {
		dst = make([]uint32, width)
	}
	dst = dst[:width]
	pos := w.WritePos()
	cap64 := uint64(len(w.buf))
	for i := 0; i < width; i++ {
		// walk backwards from the most recent write
		var idx uint64
		if pos == 0 {
			idx = 0
		} else {
			idx = (pos - 1 - uint64(i) + cap64*2) % cap64
		}
		dst[width-1-i] = w.buf[idx]
	}
	return dst
}

// Snapshot is a published, read-only view of window state plus heartbeat
// counters.
type Snapshot struct {
	PublishedTick uint64
	PublishedNs   int64
	WindowWidth   int
	DecaySlopeQ48 uint64 // fixedpoint.Q48_16, kept as uint64 to avoid an import cycle
	HotWordCount  int
	StaleWordCount int
	TotalHeat     uint64
	WordIDs       []uint32 // the captured window contents for this cycle
}

// Publisher double-buffers Snapshot values: the heartbeat is the only
// writer, any number of goroutines may read concurrently and lock-free.
type Publisher struct {
	slots   [2]Snapshot
	active  int32 // atomic index of the published slot
	hasPub  int32 // 0 until the first publish
}

// NewPublisher returns a Publisher with no snapshot yet published.
func NewPublisher() *Publisher { return &Publisher{} }

// Read returns the most recently published snapshot. ok is false if nothing
// has been published yet.
func (p *Publisher) Read() (Snapshot, bool) {
	if atomic.LoadInt32(&p.hasPub) == 0 {
		return Snapshot{}, false
	}
	idx := atomic.LoadInt32(&p.active)
	return p.slots[idx], true
}

// Publish writes snap into the inactive slot and atomically swaps the
// published index. Only the heartbeat calls this.
func (p *Publisher) Publish(snap Snapshot) {
	idx := atomic.LoadInt32(&p.active)
	next := 1 - idx
	p.slots[next] = snap
	atomic.StoreInt32(&p.active, next)
	atomic.StoreInt32(&p.hasPub, 1)
}
