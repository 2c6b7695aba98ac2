package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shpitdev/impressum-resolver/internal/provider/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu     sync.Mutex
	data   map[string]string
	ttls   map[string]time.Duration
	getErr error
}

func newMemStore() *memStore {
	return &memStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

type countingMapper struct {
	calls atomic.Int32
	links []string
	err   error
	gate  chan struct{}
}

func (c *countingMapper) Map(_ context.Context, _ string) ([]string, error) {
	c.calls.Add(1)
	if c.gate != nil {
		<-c.gate
	}
	return c.links, c.err
}

type countingScraper struct {
	calls   atomic.Int32
	content string
}

func (c *countingScraper) Scrape(_ context.Context, _ string) (string, error) {
	c.calls.Add(1)
	return c.content, nil
}

func TestMapper_CachesSuccess(t *testing.T) {
	store := newMemStore()
	next := &countingMapper{links: []string{"https://acme.test/impressum"}}
	m := cache.NewLayer(store, time.Hour, nil).Mapper(next)

	for i := 0; i < 3; i++ {
		links, err := m.Map(context.Background(), "https://acme.test/")
		require.NoError(t, err)
		assert.Equal(t, []string{"https://acme.test/impressum"}, links)
	}
	assert.Equal(t, int32(1), next.calls.Load())
	assert.Equal(t, time.Hour, store.ttls["map:https://acme.test"])
}

func TestMapper_DoesNotCacheFailures(t *testing.T) {
	store := newMemStore()
	next := &countingMapper{err: errors.New("success=false")}
	m := cache.NewLayer(store, time.Hour, nil).Mapper(next)

	for i := 0; i < 2; i++ {
		_, err := m.Map(context.Background(), "https://broken.test")
		require.Error(t, err)
	}
	assert.Equal(t, int32(2), next.calls.Load())
	assert.Empty(t, store.data)
}

func TestMapper_CollapsesConcurrentCalls(t *testing.T) {
	next := &countingMapper{links: []string{"https://acme.test/impressum"}, gate: make(chan struct{})}
	m := cache.NewLayer(newMemStore(), time.Hour, nil).Mapper(next)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			links, err := m.Map(context.Background(), "https://acme.test")
			assert.NoError(t, err)
			assert.Len(t, links, 1)
		}()
	}
	// Give the goroutines time to join the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(next.gate)
	wg.Wait()
	assert.LessOrEqual(t, next.calls.Load(), int32(5))
	assert.GreaterOrEqual(t, next.calls.Load(), int32(1))
}

func TestScraper_CachesNonEmptyContent(t *testing.T) {
	store := newMemStore()
	next := &countingScraper{content: "# Impressum"}
	s := cache.NewLayer(store, 0, nil).Scraper(next)

	for i := 0; i < 2; i++ {
		got, err := s.Scrape(context.Background(), "https://acme.test/impressum")
		require.NoError(t, err)
		assert.Equal(t, "# Impressum", got)
	}
	assert.Equal(t, int32(1), next.calls.Load())
	assert.Equal(t, 24*time.Hour, store.ttls["scrape:https://acme.test/impressum"])

	empty := &countingScraper{content: "  "}
	s = cache.NewLayer(store, 0, nil).Scraper(empty)
	_, _ = s.Scrape(context.Background(), "https://empty.test/impressum")
	_, _ = s.Scrape(context.Background(), "https://empty.test/impressum")
	assert.Equal(t, int32(2), empty.calls.Load(), "empty content must not be cached")
}

func TestStoreErrorsFallThrough(t *testing.T) {
	store := newMemStore()
	store.getErr = errors.New("connection refused")
	next := &countingScraper{content: "# Impressum"}
	s := cache.NewLayer(store, time.Hour, nil).Scraper(next)

	got, err := s.Scrape(context.Background(), "https://acme.test/impressum")
	require.NoError(t, err)
	assert.Equal(t, "# Impressum", got)
}
