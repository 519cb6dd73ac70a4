package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"

	"subforge/internal/pipeline"
)

// progressPrinter renders pipeline progress. On a terminal it rewrites one
// line in place; otherwise it prints one line per stage change.
type progressPrinter struct {
	out         io.Writer
	interactive bool

	mu        sync.Mutex
	lastStage pipeline.Stage
	width     int
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out, interactive: isTerminal(out)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// OnProgress implements pipeline.Observer.
func (p *progressPrinter) OnProgress(ev pipeline.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	line := formatProgress(ev)
	if p.interactive {
		pad := ""
		if n := p.width - len(line); n > 0 {
			pad = strings.Repeat(" ", n)
		}
		fmt.Fprintf(p.out, "\r%s%s", line, pad)
		p.width = len(line)
		if ev.Stage.Terminal() {
			fmt.Fprintln(p.out)
			p.width = 0
		}
		return
	}
	if ev.Stage == p.lastStage {
		return
	}
	p.lastStage = ev.Stage
	fmt.Fprintln(p.out, line)
}

func formatProgress(ev pipeline.Progress) string {
	line := fmt.Sprintf("[%3.0f%%] %s", ev.Percent, ev.Stage)
	if ev.Message != "" {
		line += ": " + ev.Message
	}
	if ev.ErrorKind != "" {
		line += " (" + ev.ErrorKind + ")"
	}
	return line
}
