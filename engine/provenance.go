package engine

import (
	"sync"
	"time"

	"github.com/gobridge/retrigger/dispatch"
	"github.com/gobridge/retrigger/trigger"
)

// Provenance remembers commands issued by triggers for a short window so
// that the synthetic messages they produce are never evaluated again.
// Records are keyed by the invocation nonce only; a message without a
// nonce always came from a person.
type Provenance struct {
	mu     sync.Mutex
	window time.Duration
	now    func() time.Time
	nonces map[string]time.Time
}

// NewProvenance keeps records for window.
func NewProvenance(window time.Duration, now func() time.Time) *Provenance {
	if now == nil {
		now = time.Now
	}
	return &Provenance{
		window: window,
		now:    now,
		nonces: make(map[string]time.Time),
	}
}

// Record notes an invocation. Invocations without a nonce are ignored.
func (p *Provenance) Record(inv dispatch.Invocation) {
	if inv.Nonce == "" {
		return
	}
	exp := p.now().Add(p.window)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nonces[inv.Nonce] = exp
}

// Synthetic reports whether m carries the nonce of a recorded invocation.
func (p *Provenance) Synthetic(m *trigger.Message) bool {
	if m.Nonce == "" {
		return false
	}
	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()
	exp, ok := p.nonces[m.Nonce]
	return ok && now.Before(exp)
}

// Prune forgets expired records and reports how many were dropped.
func (p *Provenance) Prune() int {
	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for k, exp := range p.nonces {
		if !now.Before(exp) {
			delete(p.nonces, k)
			n++
		}
	}
	return n
}
