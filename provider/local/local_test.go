package local

import (
	"context"
	"testing"
)

func TestLocalSetGetDel(t *testing.T) {
	ctx := context.Background()
	p := New()
	if _, ok, _ := p.Get(ctx, "a"); ok {
		t.Fatalf("expected miss")
	}
	if ok, err := p.Set(ctx, "a", []byte("x"), 1, 0); !ok || err != nil {
		t.Fatalf("Set: ok=%v err=%v", ok, err)
	}
	if b, ok, _ := p.Get(ctx, "a"); !ok || string(b) != "x" {
		t.Fatalf("Get: %q %v", b, ok)
	}
	_ = p.Del(ctx, "a")
	if _, ok, _ := p.Get(ctx, "a"); ok {
		t.Fatalf("expected miss after Del")
	}
	if p.Lossy() {
		t.Fatalf("local provider must not be lossy")
	}
}

func TestLocalResetByPrefix(t *testing.T) {
	ctx := context.Background()
	p := New()
	_, _ = p.Set(ctx, "entry:ns:a", []byte("1"), 1, 0)
	_, _ = p.Set(ctx, "entry:ns:b", []byte("2"), 1, 0)
	_, _ = p.Set(ctx, "other", []byte("3"), 1, 0)

	if err := p.Reset(ctx, "entry:ns:"); err != nil {
		t.Fatal(err)
	}
	if p.Len() != 1 {
		t.Fatalf("Len after prefix reset: %d", p.Len())
	}
	if err := p.Reset(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if p.Len() != 0 {
		t.Fatalf("Len after full reset: %d", p.Len())
	}
}
