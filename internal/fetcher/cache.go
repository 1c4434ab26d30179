package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// CacheOptions controls the page cache placed in front of a fetcher.
type CacheOptions struct {
	Size    int           // in-memory entries, 0 disables the lru layer
	TTL     time.Duration // 0 keeps entries until evicted
	Persist bool          // keep fetched bodies in a badger store under Dir
	Dir     string
}

// ICachedFetcher is a fetcher holding resources that must be released.
type ICachedFetcher interface {
	IFetcher
	Close() error
}

// TryEnableCache wraps in with an lru cache and, when Persist is set, a
// badger store behind it. Failed fetches are never cached.
func TryEnableCache(in IFetcher, opt CacheOptions) (ICachedFetcher, error) {
	c := &cacheFetcher{next: in, ttl: opt.TTL}
	if opt.Size > 0 {
		mem, err := lru.New[string, *cacheEntry](opt.Size)
		if err != nil {
			return nil, fmt.Errorf("init lru cache failed, err:%w", err)
		}
		c.mem = mem
	}
	if opt.Persist {
		if opt.Dir == "" {
			return nil, fmt.Errorf("persist cache requires a directory")
		}
		db, err := badger.Open(badger.DefaultOptions(opt.Dir).WithLogger(nil))
		if err != nil {
			return nil, fmt.Errorf("open badger failed, dir:%s, err:%w", opt.Dir, err)
		}
		c.db = db
	}
	return c, nil
}

type cacheEntry struct {
	body   []byte
	expire time.Time
}

type cacheFetcher struct {
	next IFetcher
	ttl  time.Duration
	mem  *lru.Cache[string, *cacheEntry]
	db   *badger.DB
}

func (c *cacheFetcher) String() string {
	return fmt.Sprintf("cache(%s)", c.next.String())
}

func (c *cacheFetcher) Fetch(ctx context.Context, link string) ([]byte, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("url", link))
	if body, ok := c.memGet(link); ok {
		logger.Debug("page cache hit", zap.String("layer", "memory"))
		return body, nil
	}
	body, ok, err := c.dbGet(link)
	if err != nil {
		logger.Error("read persist cache failed, fallback to fetch", zap.Error(err))
	}
	if ok {
		logger.Debug("page cache hit", zap.String("layer", "persist"))
		c.memPut(link, body)
		return body, nil
	}
	body, err = c.next.Fetch(ctx, link)
	if err != nil {
		return nil, err
	}
	c.memPut(link, body)
	if err := c.dbPut(link, body); err != nil {
		logger.Error("write persist cache failed", zap.Error(err))
	}
	return body, nil
}

func (c *cacheFetcher) memGet(key string) ([]byte, bool) {
	if c.mem == nil {
		return nil, false
	}
	entry, ok := c.mem.Get(key)
	if !ok {
		return nil, false
	}
	if !entry.expire.IsZero() && time.Now().After(entry.expire) {
		c.mem.Remove(key)
		return nil, false
	}
	return entry.body, true
}

func (c *cacheFetcher) memPut(key string, body []byte) {
	if c.mem == nil {
		return
	}
	entry := &cacheEntry{body: body}
	if c.ttl > 0 {
		entry.expire = time.Now().Add(c.ttl)
	}
	c.mem.Add(key, entry)
}

func (c *cacheFetcher) dbGet(key string) ([]byte, bool, error) {
	if c.db == nil {
		return nil, false, nil
	}
	var body []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		body, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return body, true, nil
}

func (c *cacheFetcher) dbPut(key string, body []byte) error {
	if c.db == nil {
		return nil
	}
	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), body)
		if c.ttl > 0 {
			e = e.WithTTL(c.ttl)
		}
		return txn.SetEntry(e)
	})
}

func (c *cacheFetcher) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}
