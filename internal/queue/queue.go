// Package queue processes per-pane input queue files.
//
// A queue file is the one place an external writer and the mirror
// touch the same bytes, so the contract is narrow: producers append
// newline-terminated lines; the processor dispatches every complete
// line in file order and rewrites the file to the unconsumed
// remainder. The rewrite re-reads the file and trims exactly the
// consumed byte count, so bytes appended after the first read survive
// to the next cycle. No lock is taken; atomic replace is the only
// mechanism.
package queue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/timvw/pane-mirror/internal/directive"
	"github.com/timvw/pane-mirror/internal/fsutil"
	"github.com/timvw/pane-mirror/internal/mux"
	"github.com/timvw/pane-mirror/internal/snapshot"
)

// Key names dispatched for the zero-argument directives.
const (
	keyEnter  = "Enter"
	keyEscape = "Escape"
	keyClear  = "C-u"
	keyCancel = "C-c"
)

// Processor drains pane queue files by transmitting their lines.
type Processor struct {
	mux mux.Multiplexer
}

// NewProcessor creates a Processor transmitting through m.
func NewProcessor(m mux.Multiplexer) *Processor {
	return &Processor{mux: m}
}

// Result reports what one Process call did.
type Result struct {
	// Lines is the number of complete lines dispatched.
	Lines int
	// Consumed is the number of leading bytes trimmed from the file.
	Consumed int
	// Remainder is the byte count left in the file after the rewrite
	// (or untouched, when nothing was consumed).
	Remainder int
}

// Process reads the pane's queue file, dispatches its complete lines in
// order, and rewrites the file to the unconsumed remainder.
//
// A missing file is an empty queue. A file holding no complete line is
// left byte-for-byte untouched — no transmission, no write. When a
// dispatch fails the processor stops, trims only the successfully
// dispatched prefix, and returns the dispatch error; the failed line
// stays at the front of the queue for the next cycle.
func (p *Processor) Process(ctx context.Context, paneDir, target string) (Result, error) {
	path := filepath.Join(paneDir, snapshot.QueueFileName)

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{}, nil
		}
		return Result{}, fmt.Errorf("reading queue %s: %w", path, err)
	}

	lines, fragment := split(raw)
	if len(lines) == 0 {
		return Result{Remainder: len(fragment)}, nil
	}

	var res Result
	var dispatchErr error
	for _, line := range lines {
		if err := p.dispatch(ctx, target, directive.Parse(line)); err != nil {
			dispatchErr = err
			break
		}
		res.Lines++
		res.Consumed += len(line) + 1
	}

	if res.Consumed > 0 {
		remainder, err := trim(path, res.Consumed)
		if err != nil {
			return res, err
		}
		res.Remainder = remainder
	} else {
		res.Remainder = len(raw)
	}

	return res, dispatchErr
}

// dispatch transmits one parsed directive to the pane. Literal command
// text is followed by the Enter activation keystroke.
func (p *Processor) dispatch(ctx context.Context, target string, d directive.Directive) error {
	switch d.Kind {
	case directive.KindText:
		if err := p.mux.SendText(ctx, target, d.Text); err != nil {
			return err
		}
		return p.mux.SendKey(ctx, target, keyEnter)
	case directive.KindLiteral:
		return p.mux.SendText(ctx, target, d.Text)
	case directive.KindKey:
		return p.mux.SendKey(ctx, target, d.Key)
	case directive.KindEnter:
		return p.mux.SendKey(ctx, target, keyEnter)
	case directive.KindEscape:
		return p.mux.SendKey(ctx, target, keyEscape)
	case directive.KindClear:
		return p.mux.SendKey(ctx, target, keyClear)
	case directive.KindCancel:
		return p.mux.SendKey(ctx, target, keyCancel)
	default:
		return fmt.Errorf("unhandled directive kind %v", d.Kind)
	}
}

// split separates raw into complete newline-terminated lines (without
// their terminators) and the trailing unterminated fragment. Bytes are
// taken as-is; there is no CR handling.
func split(raw []byte) (lines []string, fragment []byte) {
	start := 0
	for i, b := range raw {
		if b == '\n' {
			lines = append(lines, string(raw[start:i]))
			start = i + 1
		}
	}
	return lines, raw[start:]
}

// trim re-reads the queue file and rewrites it with consumed leading
// bytes removed. The re-read picks up bytes appended since processing
// began, so they are preserved rather than discarded. Returns the
// remainder's byte count.
func trim(path string, consumed int) (int, error) {
	current, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("re-reading queue %s: %w", path, err)
	}
	var remainder []byte
	if consumed < len(current) {
		remainder = current[consumed:]
	}
	if err := fsutil.WriteFileAtomic(path, remainder, 0o644); err != nil {
		return 0, fmt.Errorf("rewriting queue %s: %w", path, err)
	}
	return len(remainder), nil
}

// Append adds one line to a pane's queue file through the producer
// path: append-create, single write, line terminator included. This is
// what the send command and the status TUI use to enqueue input.
func Append(paneDir, line string) error {
	path := filepath.Join(paneDir, snapshot.QueueFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening queue %s: %w", path, err)
	}
	if _, err := f.Write([]byte(line + "\n")); err != nil {
		f.Close()
		return fmt.Errorf("appending to queue %s: %w", path, err)
	}
	return f.Close()
}
