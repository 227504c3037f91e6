package zap

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/unkn0wn-root/tresor"
)

func TestFieldsReachCore(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := ZapLogger{L: zap.New(core)}
	l.Info("cache warmed", tresor.Fields{"entries": 3})
	l.Debug("no fields", nil)

	all := logs.All()
	if len(all) != 2 {
		t.Fatalf("entries: %d", len(all))
	}
	if got := all[0].ContextMap()["entries"]; got != int64(3) {
		t.Fatalf("field: %#v", got)
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	if _, err := New("loud", "json"); err == nil {
		t.Fatalf("expected level error")
	}
	if _, err := New("info", "xml"); err == nil {
		t.Fatalf("expected format error")
	}
	if _, err := New("debug", "console"); err != nil {
		t.Fatalf("console: %v", err)
	}
}
