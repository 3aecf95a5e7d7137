// Command starforth is the CLI front end for the embeddable engine: it
// parses flags, builds a VM, and either loads a script non-interactively or
// drops into the liner-backed REPL, using a getopt/liner combination for a
// line-oriented interactive session.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	getopt "github.com/pborman/getopt/v2"

	"github.com/starforth/starforth"
	"github.com/starforth/starforth/internal/interp"
	"github.com/starforth/starforth/internal/repl"
)

func main() {
	var (
		arenaSize = getopt.Uint64Long("arena", 0, starforthDefaultArena, "Arena size in bytes")
		tickMs    = getopt.Uint64Long("tick-ms", 0, 1, "Heartbeat tick interval, in milliseconds")
		syncHB    = getopt.BoolLong("sync-heartbeat", 's', "Drive the heartbeat synchronously instead of as a background worker")
		trace     = getopt.BoolLong("trace", 't', "Enable step/cycle trace logging to stderr")
		dump      = getopt.BoolLong("dump", 'd', "Dump the dictionary to stderr after running any script arguments")
		help      = getopt.BoolLong("help", 'h', "Help")
	)
	getopt.Parse()

	if *help {
		getopt.Usage()
		os.Exit(0)
	}

	opts := []starforth.Option{
		starforth.WithArenaSize(uint(*arenaSize)),
		starforth.WithTickInterval(time.Duration(*tickMs) * time.Millisecond),
		starforth.WithOutput(os.Stdout),
	}
	if *syncHB {
		opts = append(opts, starforth.WithSyncHeartbeat())
	}
	if *trace {
		opts = append(opts, starforth.WithLogf(func(mess string, args ...interface{}) {
			fmt.Fprintf(os.Stderr, mess+"\n", args...)
		}))
	}

	vm, err := starforth.New(opts...)
	if err != nil {
		fmt.Fprintln(os.Stderr, "starforth: init: "+err.Error())
		os.Exit(1)
	}
	defer vm.Cleanup()

	if !*syncHB {
		vm.StartHeartbeat(context.Background())
	}

	args := getopt.Args()
	if len(args) > 0 {
		runScripts(vm, args)
		if *dump {
			dumpDict(vm)
		}
		return
	}

	if err := repl.Run(context.Background(), vm, "starforth> ", nil); err != nil {
		fmt.Fprintln(os.Stderr, "starforth: "+err.Error())
		os.Exit(1)
	}
	if *dump {
		dumpDict(vm)
	}
}

func dumpDict(vm *starforth.VM) {
	for _, e := range vm.Dict.Dump() {
		fmt.Fprintf(os.Stderr, "%6d %-31s @%d heat=%d\n", e.WordID, e.Name, e.SelfAddr, e.Heat.Heat.ToUint())
	}
}

// starforthDefaultArena mirrors vm.DefaultSize without importing
// internal/vm from main (the CLI only talks to the root package).
const starforthDefaultArena = 5 * 1024 * 1024

func runScripts(vm *starforth.VM, paths []string) {
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "starforth: "+err.Error())
			os.Exit(1)
		}
		vm.PushSource(f)
		if err := vm.Interpret(context.Background()); err != nil {
			f.Close()
			if errors.Is(err, interp.ErrBye) {
				return
			}
			fmt.Fprintln(os.Stderr, "starforth: "+path+": "+err.Error())
			os.Exit(1)
		}
		f.Close()
	}
}
