// Package local is the default, authoritative in-process provider.
// It never evicts, so the cache can answer misses without a loader.
package local

import (
	"context"
	"strings"
	"sync"
	"time"

	pr "github.com/unkn0wn-root/tresor/provider"
)

type Provider struct {
	mu sync.RWMutex
	m  map[string][]byte
}

var _ pr.Provider = (*Provider)(nil)

func New() *Provider {
	return &Provider{m: make(map[string][]byte)}
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.RLock()
	b, ok := p.m[key]
	p.mu.RUnlock()
	return b, ok, nil
}

// Set ignores cost and ttl; entries live until Del or Reset.
func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, _ time.Duration) (bool, error) {
	p.mu.Lock()
	p.m[key] = value
	p.mu.Unlock()
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.m, key)
	p.mu.Unlock()
	return nil
}

func (p *Provider) Reset(_ context.Context, prefix string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if prefix == "" {
		p.m = make(map[string][]byte)
		return nil
	}
	for k := range p.m {
		if strings.HasPrefix(k, prefix) {
			delete(p.m, k)
		}
	}
	return nil
}

func (p *Provider) Lossy() bool { return false }

// Len returns the number of stored keys.
func (p *Provider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.m)
}

func (p *Provider) Close(context.Context) error { return nil }
