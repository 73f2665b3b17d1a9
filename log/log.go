// Package log is a small structured-logging facade used across xil, xil/loader,
// xil/vmrt and xil/native so that none of those packages need to
// depend on a concrete logging library directly. It mirrors the thin
// Logger/Helper split the teacher's own `github.com/saferwall/pe/log`
// facade is called through at every use site in file.go (NewStdLogger,
// NewHelper, NewFilter, FilterLevel) — that package's source isn't part of
// this corpus, and no example repo here pulls in a third-party logging
// library, so the same shape is reimplemented directly over the standard
// library's log package rather than grounding it on a dependency no example
// actually uses.
package log

import (
	"fmt"
	"io"
	stdlog "log"
)

// Level is a log severity.
type Level int

// Severity levels, lowest to highest.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Logger is the minimal sink every component logs through.
type Logger interface {
	Log(level Level, msg string)
}

type stdLogger struct {
	l *stdlog.Logger
}

// NewStdLogger builds a Logger that writes timestamped, level-tagged lines
// to w.
func NewStdLogger(w io.Writer) Logger {
	return &stdLogger{l: stdlog.New(w, "", stdlog.LstdFlags)}
}

func (s *stdLogger) Log(level Level, msg string) {
	s.l.Printf("%s %s", fmt.Sprintf("[%-5s]", level), msg)
}

// filter drops records below a minimum level before they reach the
// underlying Logger.
type filter struct {
	next Logger
	min  Level
}

// FilterOption configures a filtering Logger built by NewFilter.
type FilterOption func(*filter)

// FilterLevel sets the minimum level that passes the filter.
func FilterLevel(min Level) FilterOption {
	return func(f *filter) { f.min = min }
}

// NewFilter wraps next so that records below the configured level are dropped.
func NewFilter(next Logger, opts ...FilterOption) Logger {
	f := &filter{next: next, min: LevelDebug}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *filter) Log(level Level, msg string) {
	if level < f.min {
		return
	}
	f.next.Log(level, msg)
}

// Helper adds printf-style convenience methods on top of a Logger.
type Helper struct {
	l Logger
}

// NewHelper wraps l.
func NewHelper(l Logger) *Helper {
	return &Helper{l: l}
}

// Debugf logs at LevelDebug.
func (h *Helper) Debugf(format string, args ...interface{}) { h.logf(LevelDebug, format, args...) }

// Infof logs at LevelInfo.
func (h *Helper) Infof(format string, args ...interface{}) { h.logf(LevelInfo, format, args...) }

// Warnf logs at LevelWarn.
func (h *Helper) Warnf(format string, args ...interface{}) { h.logf(LevelWarn, format, args...) }

// Errorf logs at LevelError.
func (h *Helper) Errorf(format string, args ...interface{}) { h.logf(LevelError, format, args...) }

func (h *Helper) logf(level Level, format string, args ...interface{}) {
	if h == nil || h.l == nil {
		return
	}
	h.l.Log(level, sprintf(format, args...))
}
