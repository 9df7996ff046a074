package exclusion

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/ignite/order-reconciler/internal/domain"
)

// Source provides the banned-customer list.
type Source interface {
	// ListID returns the identifier of the configured list.
	ListID(ctx context.Context) (string, error)
	// Load returns the normalized list for listID.
	Load(ctx context.Context, listID string) (domain.BannedList, error)
}

// Cache holds the banned list for the lifetime of its owner. Concurrent
// first calls share a single load; an Invalidate during a load discards
// that load's result.
type Cache struct {
	src   Source
	group singleflight.Group

	mu     sync.Mutex
	gen    uint64
	loaded bool
	listID string
	list   domain.BannedList
}

// NewCache creates a cache over src. A nil src yields an empty list.
func NewCache(src Source) *Cache {
	return &Cache{src: src}
}

type loadedList struct {
	id   string
	list domain.BannedList
}

// Get returns the cached list, loading it on first use.
func (c *Cache) Get(ctx context.Context) (domain.BannedList, error) {
	c.mu.Lock()
	if c.loaded {
		list := c.list
		c.mu.Unlock()
		return list, nil
	}
	gen := c.gen
	c.mu.Unlock()

	v, err, _ := c.group.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		c.mu.Lock()
		if c.loaded && c.gen == gen {
			res := loadedList{id: c.listID, list: c.list}
			c.mu.Unlock()
			return res, nil
		}
		c.mu.Unlock()
		return c.load(ctx)
	})
	if err != nil {
		return domain.BannedList{}, err
	}
	res := v.(loadedList)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen && !c.loaded {
		c.list, c.listID, c.loaded = res.list, res.id, true
	}
	return res.list, nil
}

func (c *Cache) load(ctx context.Context) (loadedList, error) {
	if c.src == nil {
		return loadedList{list: domain.NewBannedList()}, nil
	}
	id, err := c.src.ListID(ctx)
	if err != nil {
		return loadedList{}, fmt.Errorf("banned list id: %w", err)
	}
	list, err := c.src.Load(ctx, id)
	if err != nil {
		return loadedList{}, fmt.Errorf("load banned list %q: %w", id, err)
	}
	empty := domain.NewBannedList()
	if list.ExactEmails == nil {
		list.ExactEmails = empty.ExactEmails
	}
	if list.BannedDomains == nil {
		list.BannedDomains = empty.BannedDomains
	}
	return loadedList{id: id, list: list}, nil
}

// ListID returns the identifier of the loaded list, or "" before the first Get.
func (c *Cache) ListID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listID
}

// Invalidate forces the next Get to reload from the source.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.loaded = false
	c.listID = ""
	c.list = domain.BannedList{}
}
