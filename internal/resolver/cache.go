package resolver

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// CacheOptions controls the answer cache placed in front of a resolver.
type CacheOptions struct {
	Size int
	// Lazy serves an expired answer at once and refreshes it in background.
	Lazy bool
}

// TryEnableCache wraps in with an lru answer cache keyed by host. It returns
// in unchanged when the cache is disabled.
func TryEnableCache(in IHostResolver, opt CacheOptions) IHostResolver {
	if in == nil || opt.Size <= 0 {
		return in
	}
	c, err := lru.New[string, *cacheEntry](opt.Size)
	if err != nil {
		logutil.GetLogger(context.Background()).Error("init resolver cache failed, skip", zap.Error(err))
		return in
	}
	return &cacheResolver{
		next:     in,
		cfg:      opt,
		cache:    c,
		inflight: make(map[string]struct{}),
	}
}

type cacheResolver struct {
	next     IHostResolver
	cfg      CacheOptions
	cache    *lru.Cache[string, *cacheEntry]
	mu       sync.Mutex
	inflight map[string]struct{}
}

type cacheEntry struct {
	ips    []net.IP
	expire time.Time
}

func (c *cacheResolver) String() string {
	return fmt.Sprintf("cache(%s)", c.next.String())
}

func (c *cacheResolver) Resolve(ctx context.Context, host string) (*Answer, error) {
	key := strings.ToLower(strings.TrimSuffix(host, "."))
	ans, expired, found := c.get(key)
	if found {
		if !expired {
			return ans, nil
		}
		if c.cfg.Lazy {
			c.scheduleRefresh(key)
			return ans, nil
		}
		c.cache.Remove(key)
	}
	res, err := c.next.Resolve(ctx, host)
	if err != nil {
		return nil, err
	}
	c.store(key, res)
	return res, nil
}

func (c *cacheResolver) get(key string) (*Answer, bool, bool) {
	entry, ok := c.cache.Get(key)
	if !ok || entry == nil {
		return nil, false, false
	}
	remaining := time.Until(entry.expire)
	if remaining < 0 {
		remaining = 0
	}
	ips := make([]net.IP, len(entry.ips))
	copy(ips, entry.ips)
	return &Answer{IPs: ips, TTL: remaining.Truncate(time.Second)}, remaining == 0, true
}

func (c *cacheResolver) store(key string, ans *Answer) {
	if ans == nil || ans.TTL <= 0 || len(ans.IPs) == 0 {
		return
	}
	ips := make([]net.IP, len(ans.IPs))
	copy(ips, ans.IPs)
	c.cache.Add(key, &cacheEntry{ips: ips, expire: time.Now().Add(ans.TTL)})
}

func (c *cacheResolver) scheduleRefresh(key string) {
	c.mu.Lock()
	if _, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		return
	}
	c.inflight[key] = struct{}{}
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			delete(c.inflight, key)
			c.mu.Unlock()
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ans, err := c.next.Resolve(ctx, key)
		if err != nil {
			logutil.GetLogger(ctx).Error("lazy cache update but refresh failed", zap.Error(err), zap.String("host", key))
			return
		}
		logutil.GetLogger(ctx).Debug("lazy cache update succ", zap.String("host", key))
		c.store(key, ans)
	}()
}
