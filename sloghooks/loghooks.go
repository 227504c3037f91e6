package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/tresor"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery    uint64
	ReadThroughEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr    atomic.Uint64
	readThroughCtr atomic.Uint64
}

var _ tresor.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("tresor.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) ProviderSetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("tresor.provider_set_rejected",
		"key", h.redact(storageKey))
}

func (h *Hooks) ReadThrough(storageKey string, found bool) {
	if h.l == nil || !sample(h.opts.ReadThroughEvery, &h.readThroughCtr) {
		return
	}
	h.l.Debug("tresor.read_through",
		"key", h.redact(storageKey),
		"found", found)
}

func (h *Hooks) GenError(op string, count int, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("tresor.gen_error",
		"op", op,
		"count", count,
		"err", err)
}

func (h *Hooks) WarmCompleted(entries int, took time.Duration) {
	if h.l == nil {
		return
	}
	h.l.Info("tresor.warm_completed",
		"entries", entries,
		"took", took)
}

func (h *Hooks) PersistFailed(op string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("tresor.persist_failed",
		"op", op,
		"err", err)
}
