package starforth

import (
	"io"
	"time"

	"github.com/starforth/starforth/internal/vm"
)

// config carries the build-time knobs New assembles the collaborators from:
// arena size, stack depth, window/cache sizing, and the heartbeat's tick
// interval/check frequency/initial decay rate.
type config struct {
	arenaSize      uint
	stackDepth     int
	windowCapacity int
	cacheSlots     int
	minWindow      int

	tickInterval      time.Duration
	ticksPerCheck     int
	initialDecaySlope uint64
	syncHeartbeat     bool

	clock  func() int64
	logfn  func(mess string, args ...interface{})
	output io.Writer

	sources []io.Reader
}

// Defaults: a 5 MiB arena, 1024-deep stacks, a 1024-entry rolling window, a
// 256-slot hot-words cache, and the heartbeat's own defaults.
func defaultConfig() config {
	return config{
		arenaSize:      vm.DefaultSize,
		stackDepth:     1024,
		windowCapacity: 1024,
		cacheSlots:     256,
		tickInterval:   time.Millisecond,
		ticksPerCheck:  256,
		clock:          func() int64 { return time.Now().UnixNano() },
	}
}

// Option configures a VM built by New, following the functional-options
// pattern: each Option mutates a config value consumed once at
// construction.
type Option interface{ apply(*config) }

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

// WithArenaSize overrides the arena's total byte size.
func WithArenaSize(n uint) Option {
	return optionFunc(func(c *config) { c.arenaSize = n })
}

// WithStackDepth overrides the fixed depth of both the data and return
// stacks.
func WithStackDepth(depth int) Option {
	return optionFunc(func(c *config) { c.stackDepth = depth })
}

// WithWindowCapacity overrides the rolling window's fixed buffer capacity
// and initial effective width.
func WithWindowCapacity(n int) Option {
	return optionFunc(func(c *config) { c.windowCapacity = n })
}

// WithCacheSlots overrides the hot-words cache's slot count.
func WithCacheSlots(n int) Option {
	return optionFunc(func(c *config) { c.cacheSlots = n })
}

// WithMinWindow overrides the heartbeat's minimum window width floor.
func WithMinWindow(n int) Option {
	return optionFunc(func(c *config) { c.minWindow = n })
}

// WithTickInterval overrides the heartbeat's minimum wall-clock spacing
// between cycles.
func WithTickInterval(d time.Duration) Option {
	return optionFunc(func(c *config) { c.tickInterval = d })
}

// WithTicksPerCheck overrides how many synchronous Tick calls must elapse
// before a cycle is even considered.
func WithTicksPerCheck(n int) Option {
	return optionFunc(func(c *config) { c.ticksPerCheck = n })
}

// WithInitialDecaySlope overrides the initial decay rate, in heat units per
// second, before the inference engine has made its own estimate. The rate is
// converted to a Q48.16 heat-per-nanosecond slope by truncation, so rates
// below 15,259 units per second become a zero slope, which disables decay.
func WithInitialDecaySlope(unitsPerSecond uint64) Option {
	return optionFunc(func(c *config) { c.initialDecaySlope = unitsPerSecond })
}

// WithSyncHeartbeat selects the synchronous embodiment (Heart.Tick called
// inline by Interpret) instead of the default of leaving the heartbeat
// undriven until the caller explicitly calls StartHeartbeat. The two are
// mutually exclusive embodiments of the same cycle logic.
func WithSyncHeartbeat() Option {
	return optionFunc(func(c *config) { c.syncHeartbeat = true })
}

// WithClock overrides the wall-clock source used for heat timestamps and
// heartbeat cycles, for deterministic tests.
func WithClock(now func() int64) Option {
	return optionFunc(func(c *config) { c.clock = now })
}

// WithLogf installs a trace function on both the interpreter and the
// heartbeat's logx.Mixin.
func WithLogf(logfn func(mess string, args ...interface{})) Option {
	return optionFunc(func(c *config) { c.logfn = logfn })
}

// WithOutput sets the writer EMIT writes through.
func WithOutput(w io.Writer) Option {
	return optionFunc(func(c *config) { c.output = w })
}

// WithSource queues r as an input source behind the standard vocabulary
// kernel; New only queues it, and it runs on the first VM.Interpret call: a
// named startup script,
// not the interactive/REPL source which callers push afterward via
// VM.PushSource.
func WithSource(r io.Reader) Option {
	return optionFunc(func(c *config) { c.sources = append(c.sources, r) })
}
