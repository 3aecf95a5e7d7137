// Package repl implements the interactive line-editing front end: a prompt
// loop that reads one line at a time, feeds it to the VM as a named source,
// and reports interpretation errors without killing the session the way a
// file load failure would.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/peterh/liner"

	"github.com/starforth/starforth/internal/interp"
)

// Engine is the minimal surface the REPL drives; satisfied by *starforth.VM.
type Engine interface {
	PushSource(r io.Reader)
	Interpret(ctx context.Context) error
}

// namedLine adapts one entered line into a named, repeatable input source
// the VM's source queue can consume, named for diagnostics.
type namedLine struct {
	*strings.Reader
	n int
}

func (nl namedLine) Name() string { return fmt.Sprintf("<repl:%d>", nl.n) }

// Run drives prompt/read/interpret until BYE (Interpret returning an error
// that wraps interp.ErrBye) or the user aborts the session (Ctrl-D/Ctrl-C).
func Run(ctx context.Context, eng Engine, prompt string, historyWords func(partial string) []string) error {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	if historyWords != nil {
		line.SetCompleter(historyWords)
	}

	n := 0
	for {
		text, err := line.Prompt(prompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || err == io.EOF {
				return nil
			}
			return err
		}
		line.AppendHistory(text)
		n++
		eng.PushSource(namedLine{strings.NewReader(text + "\n"), n})
		if err := eng.Interpret(ctx); err != nil {
			if errors.Is(err, errBye) {
				return nil
			}
			fmt.Printf("error: %v\n", err)
		}
	}
}

// errBye is returned by the BYE primitive to end an interactive session
// without treating it as an interpretation failure.
var errBye = interp.ErrBye
