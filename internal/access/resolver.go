package access

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// PermissionFetcher loads the permission set of the token's owner.
type PermissionFetcher interface {
	Permissions(ctx context.Context, token string) ([]string, error)
}

// ResolverConfig tunes permission caching.
type ResolverConfig struct {
	CacheSize     int
	TTL           time.Duration
	LoadingBudget time.Duration
	FetchTimeout  time.Duration
}

// Resolver caches permission sets per token and collapses concurrent
// fetches for the same token.
type Resolver struct {
	fetcher PermissionFetcher
	cache   *expirable.LRU[string, []string]
	group   singleflight.Group
	budget  time.Duration
	timeout time.Duration
}

// NewResolver builds a Resolver. Zero config fields take defaults.
func NewResolver(fetcher PermissionFetcher, cfg ResolverConfig) *Resolver {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1024
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Minute
	}
	if cfg.LoadingBudget <= 0 {
		cfg.LoadingBudget = 2 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	return &Resolver{
		fetcher: fetcher,
		cache:   expirable.NewLRU[string, []string](cfg.CacheSize, nil, cfg.TTL),
		budget:  cfg.LoadingBudget,
		timeout: cfg.FetchTimeout,
	}
}

// Resolve returns the token's permissions. When the fetch outlasts the
// loading budget it reports loading=true and leaves the fetch running so
// the next call finds the result in the cache.
func (r *Resolver) Resolve(ctx context.Context, token string) (perms []string, loading bool, err error) {
	if perms, ok := r.cache.Get(token); ok {
		return perms, false, nil
	}

	ch := r.group.DoChan(token, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		perms, err := r.fetcher.Permissions(fetchCtx, token)
		if err != nil {
			return nil, err
		}
		if perms == nil {
			perms = []string{}
		}
		r.cache.Add(token, perms)
		return perms, nil
	})

	timer := time.NewTimer(r.budget)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.([]string), false, nil
	case <-timer.C:
		return nil, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Forget drops a cached permission set, e.g. after an upstream 401.
func (r *Resolver) Forget(token string) {
	r.cache.Remove(token)
}
