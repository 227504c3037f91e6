package tresor

import "time"

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths.
type Hooks interface {
	// A cached frame was deleted on read.
	// reason ∈ {"corrupt", "gen_mismatch", "value_decode"}
	SelfHeal(storageKey, reason string)

	// Provider returned ok=false on Set (backpressure/eviction).
	ProviderSetRejected(storageKey string)

	// A miss was resolved through the loader. found=false means the tag was never written.
	ReadThrough(storageKey string, found bool)

	// GenStore errors. op ∈ {"snapshot", "snapshot_many", "bump"};
	// count is the number of keys involved.
	GenError(op string, count int, err error)

	// The cache was (re)loaded from the persistent store.
	WarmCompleted(entries int, took time.Duration)

	// A persistent write failed; the cache was left untouched.
	PersistFailed(op string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) SelfHeal(string, string)          {}
func (NopHooks) ProviderSetRejected(string)       {}
func (NopHooks) ReadThrough(string, bool)         {}
func (NopHooks) GenError(string, int, error)      {}
func (NopHooks) WarmCompleted(int, time.Duration) {}
func (NopHooks) PersistFailed(string, error)      {}

// MultiHooks fans every event out to each hook in order.
type MultiHooks []Hooks

var _ Hooks = MultiHooks(nil)

func (m MultiHooks) SelfHeal(k, r string) {
	for _, h := range m {
		h.SelfHeal(k, r)
	}
}

func (m MultiHooks) ProviderSetRejected(k string) {
	for _, h := range m {
		h.ProviderSetRejected(k)
	}
}

func (m MultiHooks) ReadThrough(k string, found bool) {
	for _, h := range m {
		h.ReadThrough(k, found)
	}
}

func (m MultiHooks) GenError(op string, n int, err error) {
	for _, h := range m {
		h.GenError(op, n, err)
	}
}

func (m MultiHooks) WarmCompleted(n int, took time.Duration) {
	for _, h := range m {
		h.WarmCompleted(n, took)
	}
}

func (m MultiHooks) PersistFailed(op string, err error) {
	for _, h := range m {
		h.PersistFailed(op, err)
	}
}
