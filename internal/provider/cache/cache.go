// Package cache puts a shared response cache in front of the site mapper and
// page scraper, so repeated runs over the same companies do not pay for the
// same crawl twice. Concurrent identical calls are collapsed into one.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Store is a string key-value store with expiry.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// RedisStore is a Store backed by Redis.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore connects to addr and checks the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int, prefix string) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &RedisStore{rdb: rdb, prefix: prefix}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.rdb.Set(ctx, s.prefix+key, value, ttl).Err()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

type siteMapper interface {
	Map(ctx context.Context, siteRoot string) ([]string, error)
}

type pageScraper interface {
	Scrape(ctx context.Context, pageURL string) (string, error)
}

// Layer holds the store, TTL and in-flight call group shared by the wrappers.
type Layer struct {
	store Store
	ttl   time.Duration
	log   *zap.Logger
	group singleflight.Group
}

func NewLayer(store Store, ttl time.Duration, log *zap.Logger) *Layer {
	if log == nil {
		log = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Layer{store: store, ttl: ttl, log: log}
}

// Mapper caches successful link sets.
func (l *Layer) Mapper(next siteMapper) *Mapper {
	return &Mapper{layer: l, next: next}
}

// Scraper caches non-empty page content.
func (l *Layer) Scraper(next pageScraper) *Scraper {
	return &Scraper{layer: l, next: next}
}

type Mapper struct {
	layer *Layer
	next  siteMapper
}

func (m *Mapper) Map(ctx context.Context, siteRoot string) ([]string, error) {
	key := "map:" + strings.TrimSuffix(siteRoot, "/")
	if raw, ok := m.layer.lookup(ctx, key); ok {
		var links []string
		if err := json.Unmarshal([]byte(raw), &links); err == nil {
			return links, nil
		}
	}
	v, err, _ := m.layer.group.Do(key, func() (any, error) {
		links, err := m.next.Map(ctx, siteRoot)
		if err != nil {
			return nil, err
		}
		if b, err := json.Marshal(links); err == nil {
			m.layer.save(ctx, key, string(b))
		}
		return links, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

type Scraper struct {
	layer *Layer
	next  pageScraper
}

func (s *Scraper) Scrape(ctx context.Context, pageURL string) (string, error) {
	key := "scrape:" + pageURL
	if raw, ok := s.layer.lookup(ctx, key); ok {
		return raw, nil
	}
	v, err, _ := s.layer.group.Do(key, func() (any, error) {
		content, err := s.next.Scrape(ctx, pageURL)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(content) != "" {
			s.layer.save(ctx, key, content)
		}
		return content, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// lookup treats store errors as misses.
func (l *Layer) lookup(ctx context.Context, key string) (string, bool) {
	v, ok, err := l.store.Get(ctx, key)
	if err != nil {
		l.log.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return v, ok
}

func (l *Layer) save(ctx context.Context, key, value string) {
	if err := l.store.Set(ctx, key, value, l.ttl); err != nil {
		l.log.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}
