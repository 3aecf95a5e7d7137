// Package heartbeat implements the time-driven dispatcher and inference
// engine: the only potentially concurrent actor in the core. It runs ANOVA
// early-exit, window-width tuning, decay-slope inference, and hot-words-
// cache reorganization, publishing read-only snapshots that the rest of the
// core consumes lock-free.
package heartbeat

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starforth/starforth/internal/dict"
	"github.com/starforth/starforth/internal/fixedpoint"
	"github.com/starforth/starforth/internal/hotcache"
	"github.com/starforth/starforth/internal/logx"
	"github.com/starforth/starforth/internal/window"
	"golang.org/x/sync/errgroup"
)

// Defaults for the configuration knobs below.
const (
	DefaultTickInterval     = 1 * time.Millisecond
	DefaultTicksPerCheck    = 256
	DefaultInitialDecaySlope = 1 // heat units per second; truncates to 0 per ns, so New uses the smallest Q48.16 slope
	DefaultMinWindow        = 32
	DefaultDemoteBelow      = 10 // heat units
)

// Sampler is the read-only view into dictionary state the heartbeat needs:
// resolving word-ids captured by the rolling window, and an id->entry index
// for speculative O(1) lookup.
type Sampler interface {
	ByID(id uint32) *dict.Entry
}

// Config carries the build-time knobs the heartbeat is constructed
// with; the *effective* window size and decay slope are runtime knobs it
// mutates afterward.
type Config struct {
	TickInterval  time.Duration
	TicksPerCheck int
	MinWindow     int
	DemoteBelow   fixedpoint.Q48_16
}

// DefaultConfig returns the package defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval:  DefaultTickInterval,
		TicksPerCheck: DefaultTicksPerCheck,
		MinWindow:     DefaultMinWindow,
		DemoteBelow:   fixedpoint.FromUint(DefaultDemoteBelow),
	}
}

// Heartbeat is the dispatcher. It can be driven synchronously via Tick (the
// interpreter calls it after every word; it runs a check every
// TicksPerCheck calls) or asynchronously via
// Start (a background worker on a fixed interval) — the two are mutually
// exclusive embodiments of the same cycle logic.
type Heartbeat struct {
	logx.Mixin

	cfg Config

	window  *window.Window
	cache   *hotcache.Cache
	sampler Sampler
	metrics *PipelineMetrics

	pub *window.Publisher

	tuningLock  sync.Mutex
	decaySlope  uint64 // fixedpoint.Q48_16, atomic
	effAccuracy fixedpoint.Q48_16
	widthStep   int
	maxWindow   int

	tickCount    uint64
	lastCheckNs  int64
	tickNum      uint64
	varianceHist [3]fixedpoint.Q48_16
	heatHist     []heatSample
	pinStreak    map[uint32]int // word-id -> consecutive hot cycles, for FROZEN promotion

	halted int32

	group  *errgroup.Group
	cancel context.CancelFunc
}

type heatSample struct {
	ns        int64
	totalHeat uint64
}

// New constructs a Heartbeat over the given window/cache/sampler, with the
// window's current effective width taken as the initial and maximum window,
// clamped to [min_window, initial_window].
func New(cfg Config, w *window.Window, c *hotcache.Cache, sampler Sampler, metrics *PipelineMetrics) *Heartbeat {
	h := &Heartbeat{
		cfg:       cfg,
		window:    w,
		cache:     c,
		sampler:   sampler,
		metrics:   metrics,
		maxWindow: w.EffectiveWidth(),
		widthStep: max1(w.EffectiveWidth() / 4),
		pinStreak: make(map[uint32]int),
	}
	h.pub = window.NewPublisher()
	atomic.StoreUint64(&h.decaySlope, DefaultInitialDecaySlope<<16/uint64(time.Second))
	if atomic.LoadUint64(&h.decaySlope) == 0 {
		atomic.StoreUint64(&h.decaySlope, 1)
	}
	return h
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// DecaySlope returns the current decay slope (heat per nanosecond, Q48.16),
// read lock-free on the hot path.
func (h *Heartbeat) DecaySlope() fixedpoint.Q48_16 {
	return fixedpoint.Q48_16(atomic.LoadUint64(&h.decaySlope))
}

// SetDecaySlope overrides the current decay slope (the decay-rate initial
// value configuration knob), used once at construction time by callers that
// don't want New's default: the smallest nonzero Q48.16 slope (raw 1, i.e.
// 2^-16 heat per nanosecond, about 15,259 heat units per second).
func (h *Heartbeat) SetDecaySlope(slope fixedpoint.Q48_16) {
	atomic.StoreUint64(&h.decaySlope, uint64(slope))
}

// Snapshot returns the most recently published observability snapshot.
func (h *Heartbeat) Snapshot() (window.Snapshot, bool) { return h.pub.Read() }

// Tick drives the synchronous embodiment: call on every word execution.
// Runs at most one cycle every TicksPerCheck calls, and only once
// TickInterval has elapsed since the last cycle.
func (h *Heartbeat) Tick(nowNs int64) {
	n := atomic.AddUint64(&h.tickCount, 1)
	if n%uint64(max1(h.cfg.TicksPerCheck)) != 0 {
		return
	}
	if h.lastCheckNs != 0 && time.Duration(nowNs-h.lastCheckNs) < h.cfg.TickInterval {
		return
	}
	h.lastCheckNs = nowNs
	h.Cycle(nowNs)
}

// Start launches the asynchronous embodiment: a background worker on a
// fixed interval, isolated via errgroup so a panic inside a cycle surfaces
// as an error from Stop rather than crashing the process (mirrors the
// goroutine-panic-recovery pattern, generalized to a long-lived worker
// instead of a one-shot call).
func (h *Heartbeat) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	g, gctx := errgroup.WithContext(ctx)
	h.group = g
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = panicToErr(r)
			}
		}()
		ticker := time.NewTicker(h.cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if atomic.LoadInt32(&h.halted) != 0 {
					return nil
				}
				h.Cycle(time.Now().UnixNano())
			}
		}
	})
}

// Stop signals the async worker to exit at the top of its next cycle and
// waits for it.
func (h *Heartbeat) Stop() error {
	atomic.StoreInt32(&h.halted, 1)
	if h.cancel != nil {
		h.cancel()
	}
	if h.group != nil {
		return h.group.Wait()
	}
	return nil
}

func panicToErr(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return errString{r}
}

type errString struct{ v interface{} }

func (e errString) Error() string { return formatPanic(e.v) }
