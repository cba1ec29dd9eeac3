package handlers

import (
	"sync"
	"time"
)

// PendingTopics remembers which actors were asked for a topic and have not answered yet.
// An actor has at most one pending request; arming again replaces the previous one.
type PendingTopics struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	expires map[int64]time.Time
}

// NewPendingTopics creates an empty store whose requests expire after ttl.
func NewPendingTopics(ttl time.Duration) *PendingTopics {
	return &PendingTopics{
		ttl:     ttl,
		now:     time.Now,
		expires: make(map[int64]time.Time),
	}
}

// Arm starts waiting for a topic from actorID. It reports whether a live request was replaced.
func (p *PendingTopics) Arm(actorID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	exp, ok := p.expires[actorID]
	p.expires[actorID] = now.Add(p.ttl)
	return ok && now.Before(exp)
}

// Consume ends the pending request of actorID and reports whether it was still live.
func (p *PendingTopics) Consume(actorID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	exp, ok := p.expires[actorID]
	if !ok {
		return false
	}
	delete(p.expires, actorID)
	return p.now().Before(exp)
}

// Prune drops expired requests.
func (p *PendingTopics) Prune() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for id, exp := range p.expires {
		if !now.Before(exp) {
			delete(p.expires, id)
		}
	}
}

// Len returns the number of stored requests, expired or not.
func (p *PendingTopics) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.expires)
}
