package geo

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/kilianp07/erbalance/core/logger"
	"github.com/kilianp07/erbalance/core/model"
)

// ErrNotFound is returned when an address yields no result.
var ErrNotFound = errors.New("geo: address not found")

// Resolver turns a free text address into coordinates.
type Resolver interface {
	Resolve(ctx context.Context, address string) (model.Coordinates, error)
}

// Cache persists resolved addresses across restarts.
type Cache interface {
	Lookup(ctx context.Context, key string) (model.Coordinates, bool, error)
	Save(ctx context.Context, key string, c model.Coordinates) error
}

// NormalizeQuery lower-cases and collapses whitespace so equivalent queries
// share a cache entry.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// CachingResolver memoises an upstream resolver in memory and, optionally,
// in a persistent Cache.
type CachingResolver struct {
	upstream Resolver
	store    Cache
	timeout  time.Duration
	log      logger.Logger

	mu  sync.RWMutex
	mem map[string]model.Coordinates
}

// NewCachingResolver wraps upstream. store may be nil.
func NewCachingResolver(upstream Resolver, store Cache, timeout time.Duration, log logger.Logger) *CachingResolver {
	return &CachingResolver{
		upstream: upstream,
		store:    store,
		timeout:  timeout,
		log:      log,
		mem:      make(map[string]model.Coordinates),
	}
}

// Resolve implements Resolver.
func (r *CachingResolver) Resolve(ctx context.Context, address string) (model.Coordinates, error) {
	key := NormalizeQuery(address)
	if key == "" {
		return model.Coordinates{}, ErrNotFound
	}
	r.mu.RLock()
	c, ok := r.mem[key]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}
	if r.store != nil {
		if c, ok, err := r.store.Lookup(ctx, key); err == nil && ok {
			r.remember(key, c)
			return c, nil
		} else if err != nil && r.log != nil {
			r.log.Warnf("geocode cache lookup failed: %v", err)
		}
	}
	if r.upstream == nil {
		return model.Coordinates{}, ErrNotFound
	}
	cctx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	c, err := r.upstream.Resolve(cctx, address)
	if err != nil {
		return model.Coordinates{}, err
	}
	r.remember(key, c)
	if r.store != nil {
		if err := r.store.Save(ctx, key, c); err != nil && r.log != nil {
			r.log.Warnf("geocode cache save failed: %v", err)
		}
	}
	return c, nil
}

func (r *CachingResolver) remember(key string, c model.Coordinates) {
	r.mu.Lock()
	r.mem[key] = c
	r.mu.Unlock()
}

// Static resolves from a fixed table, keyed by normalized query.
type Static map[string]model.Coordinates

// Resolve implements Resolver.
func (s Static) Resolve(_ context.Context, address string) (model.Coordinates, error) {
	if c, ok := s[NormalizeQuery(address)]; ok {
		return c, nil
	}
	return model.Coordinates{}, ErrNotFound
}
