package tools

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultCacheTTL is how long a cached tool result stays valid.
const DefaultCacheTTL = 60 * time.Second

// DefaultCacheMaxEntries bounds the cache before LRU eviction.
const DefaultCacheMaxEntries = 512

// Fingerprint computes the stable cache key for a tool invocation: nulls
// dropped, object keys sorted, whitespace in string values collapsed, and
// the tool's optional normalizer applied first.
func Fingerprint(tool string, args map[string]any, normalizer func(map[string]any) map[string]any) string {
	if normalizer != nil {
		args = normalizer(args)
	}
	h := sha256.New()
	h.Write([]byte(tool))
	h.Write([]byte{0})
	writeCanonical(h, canonicalize(args))
	return hex.EncodeToString(h.Sum(nil))
}

func canonicalize(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			if val == nil {
				continue
			}
			out[k] = canonicalize(val)
		}
		return out
	case []any:
		out := make([]any, 0, len(x))
		for _, item := range x {
			out = append(out, canonicalize(item))
		}
		return out
	case string:
		return strings.Join(strings.Fields(x), " ")
	default:
		return v
	}
}

func writeCanonical(w interface{ Write([]byte) (int, error) }, v any) {
	switch x := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		w.Write([]byte{'{'})
		for _, k := range keys {
			fmt.Fprintf(w, "%q:", k)
			writeCanonical(w, x[k])
			w.Write([]byte{','})
		}
		w.Write([]byte{'}'})
	case []any:
		w.Write([]byte{'['})
		for _, item := range x {
			writeCanonical(w, item)
			w.Write([]byte{','})
		}
		w.Write([]byte{']'})
	default:
		b, _ := json.Marshal(x)
		w.Write(b)
	}
}

type cacheEntry struct {
	key        string
	result     *Result
	insertedAt time.Time
}

// resultCache is a TTL + LRU cache keyed by invocation fingerprint.
type resultCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]*list.Element
	order      *list.List // front = most recently used
}

func newResultCache(ttl time.Duration, maxEntries int) *resultCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultCacheMaxEntries
	}
	return &resultCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
	}
}

func (c *resultCache) get(key string, now time.Time) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if now.Sub(entry.insertedAt) > c.ttl {
		c.order.Remove(el)
		delete(c.entries, key)
		return nil, false
	}
	c.order.MoveToFront(el)
	return entry.result, true
}

func (c *resultCache) put(key string, result *Result, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).result = result
		el.Value.(*cacheEntry).insertedAt = now
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&cacheEntry{key: key, result: result, insertedAt: now})
	c.entries[key] = el
	for c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

func (c *resultCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}
