package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL matches how long a page analysis stays fresh.
const DefaultCacheTTL = 24 * time.Hour

const cacheKeyPrefix = "result:"

// Store persists reports between requests.
type Store interface {
	Get(ctx context.Context, key string) (*Report, bool, error)
	Set(ctx context.Context, key string, report *Report, ttl time.Duration) error
}

// RedisStore keeps reports as JSON strings in redis.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Report, bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, false, err
	}
	return &report, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, report *Report, ttl time.Duration) error {
	data, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

// MemoryStore is an in-process Store for single instance deployments.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	report  *Report
	expires time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Report, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !s.now().Before(e.expires) {
		delete(s.entries, key)
		return nil, false, nil
	}
	return cloneReport(e.report), true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, report *Report, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	// Drop expired entries while we hold the lock anyway.
	for k, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, k)
		}
	}
	s.entries[key] = memoryEntry{report: cloneReport(report), expires: now.Add(ttl)}
	return nil
}

// DefaultSharedTimeout bounds an analysis shared by concurrent callers.
const DefaultSharedTimeout = 60 * time.Second

// CachedService serves reports from a Store and analyzes only on a miss.
// Concurrent requests for the same URL share a single analysis.
//
// Only reports for reachable pages are stored; failures and unreachable
// pages are analyzed again on the next request.
type CachedService struct {
	next     Service
	store    Store
	ttl      time.Duration
	observer Observer
	group    singleflight.Group

	// Timeout bounds the shared analysis, which runs detached from every
	// caller's cancellation. Zero means DefaultSharedTimeout.
	Timeout time.Duration
}

func NewCachedService(next Service, store Store, ttl time.Duration, obs Observer) *CachedService {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if obs == nil {
		obs = NopObserver{}
	}
	return &CachedService{next: next, store: store, ttl: ttl, observer: obs}
}

// Analyze returns the cached report for req.URL or analyzes it. A caller
// that gives up gets ErrCanceled; callers sharing its analysis do not.
func (c *CachedService) Analyze(ctx context.Context, req Request) (*Report, error) {
	key, err := CacheKey(req.URL)
	if err != nil {
		// Let the analyzer produce the validation error.
		return c.next.Analyze(ctx, req)
	}

	cached, hit, err := c.store.Get(ctx, key)
	c.observer.CacheLookup(ctx, key, hit, err)
	if hit {
		cached.URL = req.URL
		return cached, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		return c.analyzeShared(ctx, key, req)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		report := cloneReport(res.Val.(*Report))
		report.URL = req.URL
		return report, nil
	}
}

// analyzeShared runs one analysis on behalf of every caller waiting on key.
// It keeps ctx's values (request id) but not its cancellation.
func (c *CachedService) analyzeShared(ctx context.Context, key string, req Request) (*Report, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultSharedTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	report, err := c.next.Analyze(ctx, req)
	if err != nil {
		return nil, err
	}
	if report.Reachable {
		c.observer.CacheStored(ctx, key, c.store.Set(ctx, key, report, c.ttl))
	}
	return report, nil
}

// CacheKey normalizes a target URL so trivially different spellings share
// a cache entry: scheme and host are lowercased, the fragment is dropped and
// an empty path becomes "/".
func CacheKey(raw string) (string, error) {
	u, err := ParseTarget(raw)
	if err != nil {
		return "", err
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return cacheKeyPrefix + u.String(), nil
}

func cloneReport(r *Report) *Report {
	if r == nil {
		return nil
	}
	out := *r
	out.Headings = maps.Clone(r.Headings)
	return &out
}
