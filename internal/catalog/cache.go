package catalog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Store — хранилище закешированных товаров с ограниченным временем жизни.
type Store interface {
	Get(ctx context.Context, id string) (*Product, bool, error)
	Set(ctx context.Context, p *Product) error
}

// Cache — каталог с кешем поверх источника.
// Одновременные промахи по одному товару склеиваются в один запрос к источнику.
// Запрос к источнику не зависит от отмены контекста отдельного вызывающего,
// каждый вызывающий ждёт результат в пределах своего контекста.
type Cache struct {
	log    *slog.Logger
	source Catalog
	store  Store
	group  singleflight.Group
}

func NewCache(log *slog.Logger, source Catalog, store Store) *Cache {
	return &Cache{log: log, source: source, store: store}
}

func (c *Cache) GetProduct(ctx context.Context, id string) (*Product, error) {
	const op = "catalog.Cache.GetProduct"
	log := c.log.With(slog.String("op", op), slog.String("product_id", id))

	p, ok, err := c.store.Get(ctx, id)
	if err != nil {
		// кеш недоступен, идём в источник
		log.Warn("cache read failed", slog.Any("error", err))
	} else if ok {
		return p, nil
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(id, func() (any, error) {
		p, err := c.source.GetProduct(fetchCtx, id)
		if err != nil {
			return nil, err
		}
		if err := c.store.Set(fetchCtx, p); err != nil {
			log.Warn("cache write failed", slog.Any("error", err))
		}
		return p, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		cp := *res.Val.(*Product)
		return &cp, nil
	}
}

type memoryEntry struct {
	product   Product
	expiresAt time.Time
}

// MemoryStore держит товары в памяти процесса.
// Просроченные записи вычищаются лениво при обращении, не чаще раза в sweepEvery.
type MemoryStore struct {
	mu         sync.Mutex
	items      map[string]memoryEntry
	ttl        time.Duration
	sweepEvery time.Duration
	lastSweep  time.Time
	now        func() time.Time
}

func NewMemoryStore(ttl, sweepEvery time.Duration) *MemoryStore {
	return &MemoryStore{
		items:      make(map[string]memoryEntry),
		ttl:        ttl,
		sweepEvery: sweepEvery,
		now:        time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Product, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)

	e, ok := s.items[id]
	if !ok {
		return nil, false, nil
	}
	if !now.Before(e.expiresAt) {
		delete(s.items, id)
		return nil, false, nil
	}
	p := e.product
	return &p, true, nil
}

func (s *MemoryStore) Set(_ context.Context, p *Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)
	s.items[p.ID] = memoryEntry{product: *p, expiresAt: now.Add(s.ttl)}
	return nil
}

// Len возвращает число записей, включая ещё не вычищенные просроченные.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *MemoryStore) sweepLocked(now time.Time) {
	if now.Sub(s.lastSweep) < s.sweepEvery {
		return
	}
	s.lastSweep = now
	for id, e := range s.items {
		if !now.Before(e.expiresAt) {
			delete(s.items, id)
		}
	}
}
