package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fullStore rejects writes with ErrStoreFull while full is set
type fullStore struct {
	*MemoryStore
	full bool
}

func (f *fullStore) Set(ctx context.Context, key string, value []byte) error {
	if f.full {
		return ErrStoreFull
	}
	return f.MemoryStore.Set(ctx, key, value)
}

// brokenStore fails every operation
type brokenStore struct{}

var errBroken = errors.New("store unavailable")

func (brokenStore) Get(context.Context, string) ([]byte, bool, error)   { return nil, false, errBroken }
func (brokenStore) Set(context.Context, string, []byte) error           { return errBroken }
func (brokenStore) Delete(context.Context, string) error                { return errBroken }
func (brokenStore) Keys(context.Context, string) ([]string, error)      { return nil, errBroken }
func (brokenStore) RemoveByPrefix(context.Context, string) (int, error) { return 0, errBroken }

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newTestCache(store Store) (*ResultCache, *testClock) {
	clock := &testClock{now: time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)}
	return NewResultCache(store, Options{Now: clock.Now}, zap.NewNop()), clock
}

func TestResultCache_Key(t *testing.T) {
	c, _ := newTestCache(NewMemoryStore(0))
	assert.Equal(t, "ai_insights_at_risk_members_org-1", c.Key("at_risk_members", "org-1"))

	custom := NewResultCache(NewMemoryStore(0), Options{Prefix: "x_"}, nil)
	assert.Equal(t, "x_weekly_digest_org-2", custom.Key("weekly_digest", "org-2"))
}

func TestResultCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(NewMemoryStore(0))
	key := c.Key("donation_insights", "org-1")

	c.Set(ctx, key, payload{Name: "giving", Count: 3})

	var got payload
	require.True(t, c.Load(ctx, key, &got))
	assert.Equal(t, payload{Name: "giving", Count: 3}, got)

	raw, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.JSONEq(t, `{"name":"giving","count":3}`, string(raw))

	// overwrite
	c.Set(ctx, key, payload{Name: "giving", Count: 4})
	require.True(t, c.Load(ctx, key, &got))
	assert.Equal(t, 4, got.Count)
}

func TestResultCache_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	c, clock := newTestCache(store)
	key := c.Key("at_risk_members", "org-1")

	c.Set(ctx, key, []string{"m1"})

	clock.Advance(DefaultTTL - time.Millisecond)
	_, ok := c.Get(ctx, key)
	assert.True(t, ok)

	clock.Advance(time.Millisecond)
	_, ok = c.Get(ctx, key)
	assert.False(t, ok)

	// the expired entry is removed from the store
	_, present, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, present)
}

func TestResultCache_CorruptEntry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	c, _ := newTestCache(store)
	key := c.Key("dashboard_insights", "org-1")

	require.NoError(t, store.Set(ctx, key, []byte("not json")))

	_, ok := c.Get(ctx, key)
	assert.False(t, ok)

	_, present, _ := store.Get(ctx, key)
	assert.False(t, present)
}

func TestResultCache_LoadShapeMismatch(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(NewMemoryStore(0))
	key := c.Key("attendance_predictions", "org-1")

	c.Set(ctx, key, "a string")

	var got payload
	assert.False(t, c.Load(ctx, key, &got))
	_, ok := c.Get(ctx, key)
	assert.False(t, ok)
}

func TestResultCache_EvictsOldestWhenFull(t *testing.T) {
	ctx := context.Background()
	store := &fullStore{MemoryStore: NewMemoryStore(0)}
	c, clock := newTestCache(store)

	for i := 0; i < 55; i++ {
		c.Set(ctx, c.Key("kind", fmt.Sprintf("org-%02d", i)), i)
		clock.Advance(time.Second)
	}

	store.full = true
	c.Set(ctx, c.Key("kind", "new"), "rejected")

	keys, err := store.Keys(ctx, c.Prefix())
	require.NoError(t, err)
	assert.Len(t, keys, 35)

	// the 20 oldest are gone, the rest survive, and the write is not retried
	for i := 0; i < 20; i++ {
		_, ok := c.Get(ctx, c.Key("kind", fmt.Sprintf("org-%02d", i)))
		assert.False(t, ok, i)
	}
	for i := 20; i < 55; i++ {
		_, ok := c.Get(ctx, c.Key("kind", fmt.Sprintf("org-%02d", i)))
		assert.True(t, ok, i)
	}
	_, ok := c.Get(ctx, c.Key("kind", "new"))
	assert.False(t, ok)
}

func TestResultCache_NoEvictionBelowHighWaterMark(t *testing.T) {
	ctx := context.Background()
	store := &fullStore{MemoryStore: NewMemoryStore(0)}
	c, _ := newTestCache(store)

	for i := 0; i < 50; i++ {
		c.Set(ctx, c.Key("kind", fmt.Sprint(i)), i)
	}

	store.full = true
	c.Set(ctx, c.Key("kind", "new"), "rejected")

	keys, _ := store.Keys(ctx, c.Prefix())
	assert.Len(t, keys, 50)
}

func TestResultCache_MemoryCapacity(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(64)
	c, _ := newTestCache(store)

	c.Set(ctx, c.Key("kind", "big"), "this payload is far too large for a sixty four byte store")

	_, ok := c.Get(ctx, c.Key("kind", "big"))
	assert.False(t, ok)
}

func TestResultCache_Clear(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	c, _ := newTestCache(store)

	c.Set(ctx, c.Key("at_risk_members", "org-1"), 1)
	c.Set(ctx, c.Key("at_risk_members", "org-2"), 2)
	c.Set(ctx, c.Key("weekly_digest", "org-1"), 3)
	require.NoError(t, store.Set(ctx, "other_namespace", []byte(`{}`)))

	assert.Equal(t, 2, c.Clear(ctx, c.Prefix()+"at_risk_members"))
	assert.Equal(t, 1, c.Clear(ctx, ""))

	_, present, _ := store.Get(ctx, "other_namespace")
	assert.True(t, present)
}

func TestResultCache_ClearOrganization(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(NewMemoryStore(0))

	c.Set(ctx, c.Key("at_risk_members", "org1"), 1)
	c.Set(ctx, c.Key("donation_insights", "org1"), 2)
	c.Set(ctx, c.Key("donation_insights", "org11"), 3)
	c.Set(ctx, c.Key("at_risk_members", "org2"), 4)

	assert.Equal(t, 2, c.ClearOrganization(ctx, "org1", "at_risk_members", "donation_insights"))

	_, ok := c.Get(ctx, c.Key("donation_insights", "org11"))
	assert.True(t, ok)
	_, ok = c.Get(ctx, c.Key("at_risk_members", "org2"))
	assert.True(t, ok)
}

func TestResultCache_ClearOrganization_SuffixIDs(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(NewMemoryStore(0))

	c.Set(ctx, c.Key("at_risk_members", "1"), 1)
	c.Set(ctx, c.Key("at_risk_members", "org_1"), 2)
	c.Set(ctx, c.Key("weekly_digest", "org_1"), 3)

	assert.Equal(t, 1, c.ClearOrganization(ctx, "1", "at_risk_members", "weekly_digest"))

	_, ok := c.Get(ctx, c.Key("at_risk_members", "1"))
	assert.False(t, ok)
	_, ok = c.Get(ctx, c.Key("at_risk_members", "org_1"))
	assert.True(t, ok)
	_, ok = c.Get(ctx, c.Key("weekly_digest", "org_1"))
	assert.True(t, ok)
}

func TestResultCache_Stats(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	c, _ := newTestCache(store)

	assert.Equal(t, Stats{}, c.Stats(ctx))

	c.Set(ctx, c.Key("a", "org"), 1)
	c.Set(ctx, c.Key("b", "org"), "two")

	stats := c.Stats(ctx)
	assert.Equal(t, 2, stats.Count)

	var expected int64
	for _, key := range []string{c.Key("a", "org"), c.Key("b", "org")} {
		raw, _, _ := store.Get(ctx, key)
		expected += int64(len(raw))
	}
	assert.Equal(t, expected, stats.TotalBytes)
}

func TestResultCache_BrokenStoreDegradesToMiss(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(brokenStore{})

	assert.NotPanics(t, func() { c.Set(ctx, "k", 1) })
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Clear(ctx, ""))
	assert.Equal(t, 0, c.ClearOrganization(ctx, "org", "at_risk_members"))
	assert.Equal(t, Stats{}, c.Stats(ctx))
}

func TestResultCache_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(NewMemoryStore(0))
	key := c.Key("dashboard_insights", "org-1")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			c.Set(ctx, key, payload{Count: n})
		}(i)
		go func() {
			defer wg.Done()
			var p payload
			c.Load(ctx, key, &p)
		}()
	}
	wg.Wait()

	var p payload
	assert.True(t, c.Load(ctx, key, &p))
}
