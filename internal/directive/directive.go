// Package directive classifies input-queue lines.
//
// The queue protocol is consumer-owned: a line starting with '/' and a
// recognized directive name requests a named action; every other line
// is literal command text. Parse is a total function — there is no
// error case, and no line is ever dropped. An unrecognized directive
// degrades to literal text including its leading slash, so a legitimate
// command that happens to start with '/' still reaches the pane.
package directive

import "strings"

// Kind identifies what a queue line asks for.
type Kind int

const (
	// KindText is literal command text, transmitted followed by Enter.
	KindText Kind = iota
	// KindLiteral transmits its payload verbatim with no activation
	// keystroke.
	KindLiteral
	// KindKey transmits one named key from the multiplexer's key
	// vocabulary.
	KindKey
	// KindEnter transmits Enter alone.
	KindEnter
	// KindEscape transmits Escape alone.
	KindEscape
	// KindClear transmits the kill-line-to-start keystroke.
	KindClear
	// KindCancel transmits the interrupt keystroke.
	KindCancel
)

// String returns the kind's protocol name.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindLiteral:
		return "literal"
	case KindKey:
		return "key"
	case KindEnter:
		return "enter"
	case KindEscape:
		return "escape"
	case KindClear:
		return "clear"
	case KindCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Directive is one classified queue line.
type Directive struct {
	Kind Kind
	// Text is the payload for KindText and KindLiteral.
	Text string
	// Key is the key name for KindKey.
	Key string
}

// Parse classifies one complete queue line. It is total: every input
// maps to exactly one directive, with literal text as the fallback.
func Parse(line string) Directive {
	if !strings.HasPrefix(line, "/") {
		return Directive{Kind: KindText, Text: line}
	}

	switch line {
	case "/enter":
		return Directive{Kind: KindEnter}
	case "/escape":
		return Directive{Kind: KindEscape}
	case "/clear":
		return Directive{Kind: KindClear}
	case "/cancel":
		return Directive{Kind: KindCancel}
	case "/literal":
		return Directive{Kind: KindLiteral}
	}

	if rest, ok := strings.CutPrefix(line, "/literal "); ok {
		return Directive{Kind: KindLiteral, Text: rest}
	}
	if rest, ok := strings.CutPrefix(line, "/key "); ok {
		key := strings.TrimSpace(rest)
		if key != "" && !strings.ContainsAny(key, " \t") {
			return Directive{Kind: KindKey, Key: key}
		}
	}

	// Unrecognized directive name or malformed arguments: literal text,
	// leading slash included.
	return Directive{Kind: KindText, Text: line}
}
