package service

import (
	"context"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// PermissionLister reads the granted permission names of a role.
type PermissionLister interface {
	PermissionNames(ctx context.Context, roleName string) ([]string, error)
}

// PermissionCache answers permission checks from an in-process copy of the
// role matrix. Entries live for ttl; concurrent misses for one role share
// a single query. A matrix change is visible to checks after Invalidate or
// Flush, or at most ttl later without them.
type PermissionCache struct {
	src   PermissionLister
	ttl   time.Duration
	c     *gocache.Cache
	sf    singleflight.Group
	epoch atomic.Uint64
}

// NewPermissionCache wraps src with a cache whose entries expire after ttl.
func NewPermissionCache(src PermissionLister, ttl time.Duration) *PermissionCache {
	return &PermissionCache{src: src, ttl: ttl, c: gocache.New(ttl, time.Minute)}
}

type permSet map[string]struct{}

// HasPermission satisfies the authorization gate's checker contract.
func (p *PermissionCache) HasPermission(ctx context.Context, roleName, perm string) (bool, error) {
	set, err := p.load(ctx, roleName)
	if err != nil {
		return false, err
	}
	_, ok := set[perm]
	return ok, nil
}

func (p *PermissionCache) load(ctx context.Context, roleName string) (permSet, error) {
	if v, ok := p.c.Get(roleName); ok {
		permissionCacheLookups.WithLabelValues("hit").Inc()
		return v.(permSet), nil
	}
	permissionCacheLookups.WithLabelValues("miss").Inc()

	epoch := p.epoch.Load()
	v, err, _ := p.sf.Do(roleName, func() (any, error) {
		names, err := p.src.PermissionNames(ctx, roleName)
		if err != nil {
			return nil, err
		}
		set := make(permSet, len(names))
		for _, n := range names {
			set[n] = struct{}{}
		}
		// An invalidation that raced with this load wins.
		if p.epoch.Load() == epoch {
			p.c.Set(roleName, set, p.ttl)
		}
		return set, nil
	})
	if err != nil {
		permissionCacheLookups.WithLabelValues("error").Inc()
		return nil, err
	}
	return v.(permSet), nil
}

// Invalidate drops the cached permissions of one role.
func (p *PermissionCache) Invalidate(roleName string) {
	p.epoch.Add(1)
	p.c.Delete(roleName)
}

// Flush drops every cached role.
func (p *PermissionCache) Flush() {
	p.epoch.Add(1)
	p.c.Flush()
}
