package handlers

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestPending(ttl time.Duration) (*PendingTopics, *time.Time) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	p := NewPendingTopics(ttl)
	p.now = func() time.Time { return now }
	return p, &now
}

func TestPendingTopics_ArmConsume(t *testing.T) {
	p, _ := newTestPending(time.Minute)

	assert.False(t, p.Consume(1), "nothing armed yet")
	assert.False(t, p.Arm(1))
	assert.True(t, p.Consume(1))
	assert.False(t, p.Consume(1), "consumed only once")
}

func TestPendingTopics_RearmOverwrites(t *testing.T) {
	p, now := newTestPending(time.Minute)

	p.Arm(1)
	*now = now.Add(50 * time.Second)
	assert.True(t, p.Arm(1), "second request replaces the live one")

	// The deadline restarts from the second request.
	*now = now.Add(50 * time.Second)
	assert.True(t, p.Consume(1))
	assert.Equal(t, 0, p.Len())
}

func TestPendingTopics_Expiry(t *testing.T) {
	p, now := newTestPending(time.Minute)

	p.Arm(1)
	p.Arm(2)
	*now = now.Add(2 * time.Minute)
	assert.False(t, p.Arm(2), "expired request does not count as replaced")
	assert.False(t, p.Consume(1))

	p.Arm(3)
	*now = now.Add(2 * time.Minute)
	p.Prune()
	assert.Equal(t, 0, p.Len())
}

func TestPendingTopics_ActorsAreIndependent(t *testing.T) {
	p := NewPendingTopics(time.Minute)

	var wg sync.WaitGroup
	for i := int64(1); i <= 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			p.Arm(id)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, p.Len())
	assert.True(t, p.Consume(7))
	assert.Equal(t, 49, p.Len())
}
