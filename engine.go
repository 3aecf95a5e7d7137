// Package starforth wires the collaborators built under internal/ into the
// embeddable VM surface: the arena, the
// two stacks, the dictionary, the rolling window, the hot-words cache, the
// heartbeat, and the inner/outer interpreter, bootstrapped with the
// primitive catalog and the standard vocabulary kernel. It cannot live under
// internal/vm (internal/interp already imports that package for Arena and
// the error taxonomy), so it sits at the module root rather than under
// internal/, since it is an importable library with cmd/starforth as the
// thin CLI consumer.
package starforth

import (
	"context"
	"io"
	"time"

	"github.com/starforth/starforth/internal/block"
	"github.com/starforth/starforth/internal/boot"
	"github.com/starforth/starforth/internal/cell"
	"github.com/starforth/starforth/internal/dict"
	"github.com/starforth/starforth/internal/fixedpoint"
	"github.com/starforth/starforth/internal/heartbeat"
	"github.com/starforth/starforth/internal/hotcache"
	"github.com/starforth/starforth/internal/interp"
	"github.com/starforth/starforth/internal/panicerr"
	"github.com/starforth/starforth/internal/srcqueue"
	"github.com/starforth/starforth/internal/stackmach"
	"github.com/starforth/starforth/internal/vm"
	"github.com/starforth/starforth/internal/window"
)

// VM is the embeddable engine. Every exported method corresponds to one
// entry of the embedding API.
type VM struct {
	Arena  *vm.Arena
	Data   *stackmach.Stack
	Return *stackmach.Stack
	Dict   *dict.Dictionary
	Window *window.Window
	Cache  *hotcache.Cache
	Metrics *heartbeat.PipelineMetrics
	Heart  *heartbeat.Heartbeat
	Machine *interp.Machine
	Blocks *block.Store

	clock    func() int64
	closers  []io.Closer
	syncTick bool
}

// New builds a fully bootstrapped VM: allocates the arena, constructs the
// stack/dictionary/window/cache/heartbeat collaborators per opts, registers
// the primitive catalog, runs the embedded kernel source through the outer
// interpreter, then establishes the dictionary fence so FORGET can never
// reach back into the bootstrap layer.
func New(opts ...Option) (*VM, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt.apply(&cfg)
	}

	arena, err := vm.NewArena(cfg.arenaSize)
	if err != nil {
		return nil, err
	}

	v := &VM{
		Arena:   arena,
		Data:    stackmach.New(cfg.stackDepth),
		Return:  stackmach.New(cfg.stackDepth),
		Dict:    dict.New(arena.DictStart),
		Window:  window.New(cfg.windowCapacity, cfg.windowCapacity),
		Cache:   hotcache.New(cfg.cacheSlots),
		Metrics: &heartbeat.PipelineMetrics{},
		clock:   cfg.clock,
	}

	hcfg := heartbeat.DefaultConfig()
	hcfg.TickInterval = cfg.tickInterval
	hcfg.TicksPerCheck = cfg.ticksPerCheck
	if cfg.minWindow > 0 {
		hcfg.MinWindow = cfg.minWindow
	}
	v.Heart = heartbeat.New(hcfg, v.Window, v.Cache, v.Dict, v.Metrics)
	if cfg.initialDecaySlope != 0 {
		v.Heart.SetDecaySlope(fixedpoint.FromUint(cfg.initialDecaySlope).Div(fixedpoint.FromUint(uint64(time.Second))))
	}
	v.syncTick = cfg.syncHeartbeat

	v.Machine = interp.New(v.Arena, v.Data, v.Return, v.Dict, v.Window, v.Cache, v.Metrics, v.Heart, v.clock)
	v.Machine.Input = &srcqueue.Queue{}
	v.Blocks = block.New()
	v.Machine.SetBlocks(v.Blocks)
	if cfg.logfn != nil {
		v.Machine.LogFn = cfg.logfn
		v.Heart.LogFn = cfg.logfn
	}
	if cfg.output != nil {
		v.Machine.SetOutput(cfg.output)
	}

	if err := interp.Bootstrap(v.Machine); err != nil {
		return nil, err
	}
	v.Machine.Input.Push(readerFromWriterTo(boot.Kernel))
	if err := v.Machine.Interpret(); err != nil {
		return nil, err
	}
	v.Dict.EstablishFence()

	for _, src := range cfg.sources {
		v.Machine.Input.Push(src)
	}
	return v, nil
}

// Interpret runs the outer interpreter over whatever input is currently
// queued, recovering any panic escaping the interpreter loop into an error
// the same way a panicking primitive or a corrupted arena must still
// surface as an error, never as an unrecovered panic.
func (v *VM) Interpret(ctx context.Context) error {
	err := panicerr.Recover("starforth", func() error {
		if v.syncTick {
			return v.interpretTicking()
		}
		return v.Machine.Interpret()
	})
	switch {
	case panicerr.IsPanic(err):
		v.Machine.Logf("!", "recovered panic: %v\n%s", err, panicerr.PanicStack(err))
	case panicerr.IsExit(err):
		v.Machine.Logf("!", "recovered early exit: %v", err)
	}
	return err
}

// interpretTicking drives the outer interpreter one word at a time so the
// synchronous heartbeat embodiment (Heart.Tick) runs inline with
// interpretation instead of on a background goroutine: the interpreter
// calls the heartbeat check itself every N word executions. Mirrors
// Machine.Interpret's own error-path unwind (reset compile mode, clear the
// return stack, discard the rest of the input line) since this loop bypasses
// Machine.Interpret entirely to get the per-word Tick call in.
func (v *VM) interpretTicking() error {
	for {
		token, err := v.Machine.Word()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := v.Machine.InterpretWord(token); err != nil {
			v.Machine.Compiling = false
			v.Return.Clear()
			v.Machine.Input.DiscardLine()
			return err
		}
		v.Heart.Tick(v.clock())
	}
}

// readerFromWriterTo adapts an io.WriterTo (the boot kernel) into an
// io.Reader the source queue can consume via a pipe-goroutine.
func readerFromWriterTo(wto io.WriterTo) io.Reader {
	r, w := io.Pipe()
	go func() {
		_, err := wto.WriteTo(w)
		w.CloseWithError(err)
	}()
	if nom, ok := wto.(interface{ Name() string }); ok {
		return namedReader{r, nom.Name()}
	}
	return r
}

type namedReader struct {
	*io.PipeReader
	name string
}

func (nr namedReader) Name() string { return nr.name }

// PushSource queues r as the next input source, named for diagnostics by
// its Name method if it has one. Interactive sessions push the
// terminal as a live source this same way.
func (v *VM) PushSource(r io.Reader) { v.Machine.Input.Push(r) }

// StartHeartbeat launches the asynchronous heartbeat embodiment as a
// background worker. Mutually exclusive with the
// synchronous WithSyncHeartbeat option; calling both is a caller error left
// unvalidated: the two are alternative embodiments of the same cycle logic,
// not a runtime-selectable mode.
func (v *VM) StartHeartbeat(ctx context.Context) { v.Heart.Start(ctx) }

// StopHeartbeat stops the asynchronous worker started by StartHeartbeat.
func (v *VM) StopHeartbeat() error { return v.Heart.Stop() }

// Snapshot returns the most recently published rolling-window/heat
// observability snapshot.
func (v *VM) Snapshot() (window.Snapshot, bool) { return v.Heart.Snapshot() }

// FindWord resolves a name against the dictionary directly, bypassing the
// hot-words cache: a diagnostic/embedding entry point, not a hot-path
// lookup.
func (v *VM) FindWord(name string) *dict.Entry { return v.Dict.Lookup(name) }

// Push/Pop/RPush/RPop expose the data and return stacks directly, for host
// code driving the VM programmatically rather than through source text.
func (v *VM) Push(c cell.Cell) error    { return v.Data.Push(c) }
func (v *VM) Pop() (cell.Cell, error)   { return v.Data.Pop() }
func (v *VM) RPush(c cell.Cell) error   { return v.Return.Push(c) }
func (v *VM) RPop() (cell.Cell, error)  { return v.Return.Pop() }

// LoadCell/StoreCell/LoadU8/StoreU8 expose direct arena access.
func (v *VM) LoadCell(addr cell.Addr) (cell.Cell, error)  { return v.Arena.LoadCell(addr) }
func (v *VM) StoreCell(addr cell.Addr, c cell.Cell) error { return v.Arena.StoreCell(addr, c) }
func (v *VM) LoadU8(addr cell.Addr) (byte, error)         { return v.Arena.LoadU8(addr) }
func (v *VM) StoreU8(addr cell.Addr, b byte) error        { return v.Arena.StoreU8(addr, b) }

// Cleanup releases anything opened on the VM's behalf by an option, in
// reverse acquisition order.
func (v *VM) Cleanup() (err error) {
	if herr := v.Heart.Stop(); err == nil {
		err = herr
	}
	for i := len(v.closers) - 1; i >= 0; i-- {
		if cerr := v.closers[i].Close(); err == nil {
			err = cerr
		}
	}
	return err
}
