package slip

import (
	"strconv"
	"sync"

	"github.com/Spok95/slip-bot/internal/labapi"
)

// ExtractionCache remembers extraction options per product id. Ids may be
// namespaced snapshot ids; Lookup falls back to the base product id.
type ExtractionCache struct {
	mu   sync.RWMutex
	byID map[string][]labapi.Extraction
}

func NewExtractionCache() *ExtractionCache {
	return &ExtractionCache{byID: map[string][]labapi.Extraction{}}
}

func (c *ExtractionCache) Put(id string, ex []labapi.Extraction) {
	if len(ex) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[id] = append([]labapi.Extraction(nil), ex...)
}

// PutProduct caches by plain product id, as the detail loader does.
func (c *ExtractionCache) PutProduct(productID int64, ex []labapi.Extraction) {
	c.Put(strconv.FormatInt(productID, 10), ex)
}

// Lookup returns the options cached under id or, failing that, under its
// base id. A base hit is copied under id so the next lookup is direct.
func (c *ExtractionCache) Lookup(id string) ([]labapi.Extraction, bool) {
	c.mu.RLock()
	ex, ok := c.byID[id]
	c.mu.RUnlock()
	if ok {
		return ex, true
	}
	base := BaseProductID(id)
	if base == id {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ex, ok = c.byID[base]
	if !ok {
		return nil, false
	}
	c.byID[id] = ex
	return ex, true
}
