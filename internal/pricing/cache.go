package pricing

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shopspring/decimal"

	"github.com/attova/subledger/internal/ledger"
)

const (
	defaultCacheSize = 4096
	// Historical prices are immutable once fetched; the TTL exists only to
	// bound process memory, not because values go stale.
	defaultCacheTTL = 24 * time.Hour
)

type cacheKey struct {
	Token  ledger.Token
	Source string
	Date   string
	Hour   int
}

// Cache stores resolved historical prices keyed by token, source, date and
// hour so that events clustered in the same hour share one provider call.
// Safe for concurrent use.
type Cache struct {
	entries *lru.LRU[cacheKey, decimal.Decimal]
}

// NewCache creates a price cache. Zero size or TTL select the defaults.
func NewCache(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cache{entries: lru.NewLRU[cacheKey, decimal.Decimal](size, nil, ttl)}
}

func keyFor(token ledger.Token, source string, at time.Time) cacheKey {
	utc := at.UTC()
	return cacheKey{
		Token:  token,
		Source: source,
		Date:   utc.Format("2006-01-02"),
		Hour:   utc.Hour(),
	}
}

func (c *Cache) get(key cacheKey) (decimal.Decimal, bool) {
	return c.entries.Get(key)
}

func (c *Cache) put(key cacheKey, price decimal.Decimal) {
	c.entries.Add(key, price)
}
