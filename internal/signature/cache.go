package signature

import (
	"context"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/funcsim-mcp/pkg/types"
)

// DefaultCacheSize is used when a non-positive cache size is requested
const DefaultCacheSize = 10000

// CachedProvider memoizes Compute results with LRU eviction. Signatures are
// immutable so cached values are shared without copying.
type CachedProvider struct {
	next  Provider
	cache *lru.Cache[string, types.Signature]
}

// NewCachedProvider wraps next with a cache of at most size signatures
func NewCachedProvider(next Provider, size int) *CachedProvider {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, types.Signature](size)
	if err != nil {
		// Should never happen with positive size, but fallback to default
		cache, _ = lru.New[string, types.Signature](DefaultCacheSize)
	}
	return &CachedProvider{next: next, cache: cache}
}

// Compute returns a cached signature or asks the wrapped provider.
// Failures are not cached.
func (c *CachedProvider) Compute(ctx context.Context, fn types.FunctionRef) (types.Signature, error) {
	key := cacheKey(fn)
	if sig, ok := c.cache.Get(key); ok {
		return sig, nil
	}

	sig, err := c.next.Compute(ctx, fn)
	if err != nil {
		return types.Signature{}, err
	}
	c.cache.Add(key, sig)
	return sig, nil
}

// cacheKey spells out every identity field. FunctionRef.Key falls back from
// path to id to name, which would let different programs share a slot.
func cacheKey(fn types.FunctionRef) string {
	p := fn.Program
	return strings.Join([]string{p.Path, p.ID, p.Name, fn.Name, fn.Address}, "\x00")
}

// Functions is passed through uncached
func (c *CachedProvider) Functions(ctx context.Context, program types.ProgramRef) ([]types.FunctionRef, error) {
	return c.next.Functions(ctx, program)
}

// Size returns the number of cached signatures
func (c *CachedProvider) Size() int {
	return c.cache.Len()
}

// Purge empties the cache, e.g. after the underlying catalog changed
func (c *CachedProvider) Purge() {
	c.cache.Purge()
}
