package slog

import (
	"context"
	"fmt"
	stdslog "log/slog"
	"os"
	"strings"

	"github.com/unkn0wn-root/tresor"
)

var _ tresor.Logger = Logger{}

type Logger struct{ L *stdslog.Logger }

// New returns a stderr slog logger. format is "json" or "text".
func New(level, format string) (Logger, error) {
	var lvl stdslog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return Logger{}, fmt.Errorf("slog: level %q: %w", level, err)
	}
	opts := &stdslog.HandlerOptions{Level: lvl}
	var h stdslog.Handler
	if format == "json" {
		h = stdslog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = stdslog.NewTextHandler(os.Stderr, opts)
	}
	return Logger{L: stdslog.New(h)}, nil
}

func (s Logger) Debug(msg string, f tresor.Fields) {
	s.L.LogAttrs(context.Background(), stdslog.LevelDebug, msg, attrs(f)...)
}
func (s Logger) Info(msg string, f tresor.Fields) {
	s.L.LogAttrs(context.Background(), stdslog.LevelInfo, msg, attrs(f)...)
}
func (s Logger) Warn(msg string, f tresor.Fields) {
	s.L.LogAttrs(context.Background(), stdslog.LevelWarn, msg, attrs(f)...)
}
func (s Logger) Error(msg string, f tresor.Fields) {
	s.L.LogAttrs(context.Background(), stdslog.LevelError, msg, attrs(f)...)
}

func attrs(f tresor.Fields) []stdslog.Attr {
	if len(f) == 0 {
		return nil
	}
	out := make([]stdslog.Attr, 0, len(f))
	for k, v := range f {
		out = append(out, stdslog.Any(k, v))
	}
	return out
}
