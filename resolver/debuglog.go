package resolver

import (
	"fmt"
	"io"
)

// DebugLogger is the resolver's ambient logging surface, mirrored on the
// teacher's resolverQuery.debugLogs (internal/resolver/resolver.go): silent
// by default, structured indentation when turned on. No third-party
// structured-logging library appears anywhere in the pack for a leaf
// library of this shape, so this stays a small io.Writer-backed interface
// (see DESIGN.md).
type DebugLogger interface {
	Log(format string, args ...any)
	IncreaseIndent()
	DecreaseIndent()
}

// noopLogger is the default: every call is free.
type noopLogger struct{}

func (noopLogger) Log(string, ...any) {}
func (noopLogger) IncreaseIndent()    {}
func (noopLogger) DecreaseIndent()    {}

// WriterLogger writes indented notes to w, for callers who want to see the
// resolver's reasoning (esbuild's "--log-level=debug" equivalent).
type WriterLogger struct {
	W      io.Writer
	indent int
}

func NewWriterLogger(w io.Writer) *WriterLogger { return &WriterLogger{W: w} }

func (l *WriterLogger) Log(format string, args ...any) {
	prefix := ""
	for i := 0; i < l.indent; i++ {
		prefix += "  "
	}
	fmt.Fprintf(l.W, "%s%s\n", prefix, fmt.Sprintf(format, args...))
}

func (l *WriterLogger) IncreaseIndent() { l.indent++ }
func (l *WriterLogger) DecreaseIndent() {
	if l.indent > 0 {
		l.indent--
	}
}
