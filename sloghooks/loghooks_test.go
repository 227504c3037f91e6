package sloghooks

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func newBuf() (*bytes.Buffer, *slog.Logger) {
	var buf bytes.Buffer
	return &buf, slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestSelfHealSampling(t *testing.T) {
	buf, l := newBuf()
	h := New(l, Options{SelfHealEvery: 3})
	for i := 0; i < 9; i++ {
		h.SelfHeal("entry:ns:tag", "corrupt")
	}
	if n := strings.Count(buf.String(), "tresor.self_heal"); n != 3 {
		t.Fatalf("sampled lines: %d", n)
	}
}

func TestKeysAreRedacted(t *testing.T) {
	buf, l := newBuf()
	h := New(l, Options{})
	h.ProviderSetRejected("entry:ns:secret-tag")
	if strings.Contains(buf.String(), "secret-tag") {
		t.Fatalf("raw key leaked: %s", buf.String())
	}

	buf.Reset()
	h = New(l, Options{Redact: func(string) string { return "X" }})
	h.ReadThrough("entry:ns:k", true)
	if !strings.Contains(buf.String(), "key=X") {
		t.Fatalf("custom redactor ignored: %s", buf.String())
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	h := New(nil, Options{})
	h.SelfHeal("k", "corrupt")
	h.PersistFailed("upsert_entry", errors.New("x"))
	h.WarmCompleted(1, 0)
	h.GenError("bump", 1, errors.New("x"))
}
