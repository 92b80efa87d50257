package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-pos/internal/invoicing"
)

// Service loads reference data through the cache.
type Service struct {
	source Source
	cache  *Cache
	logger *slog.Logger
	now    func() time.Time
	group  singleflight.Group
}

// NewService wires a catalog service. cache may be nil.
func NewService(source Source, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, cache: cache, logger: logger, now: time.Now}
}

// Load returns the reference data of the entry screen for kind. Concurrent loads of the
// same kind share one round trip.
func (s *Service) Load(ctx context.Context, kind invoicing.Kind) (*Snapshot, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	resultChan := s.group.DoChan(string(kind), func() (interface{}, error) {
		return s.load(ctx, kind)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	}
}

func (s *Service) load(ctx context.Context, kind invoicing.Kind) (*Snapshot, error) {
	snap := &Snapshot{Kind: kind}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		part, loader := "customers", s.source.Customers
		if kind == invoicing.KindPurchase {
			part, loader = "suppliers", s.source.Suppliers
		}
		var parties []invoicing.Counterparty
		if err := s.fetch(ctx, part, &parties, func(ctx context.Context) (any, error) { return loader(ctx) }); err != nil {
			return err
		}
		snap.Data.Counterparties = parties
		return nil
	})

	g.Go(func() error {
		var products []invoicing.Product
		if err := s.fetch(ctx, "products", &products, func(ctx context.Context) (any, error) { return s.source.Products(ctx) }); err != nil {
			return err
		}
		snap.Data.Products = products
		return nil
	})

	g.Go(func() error {
		var warehouses []invoicing.Warehouse
		if err := s.fetch(ctx, "warehouses", &warehouses, func(ctx context.Context) (any, error) { return s.source.Warehouses(ctx) }); err != nil {
			return err
		}
		snap.Data.Warehouses = warehouses
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("catalog: load %s: %w", kind, err)
	}
	snap.LoadedAt = s.now()
	return snap, nil
}

func (s *Service) fetch(ctx context.Context, part string, dest any, loader func(context.Context) (any, error)) error {
	key, err := s.cache.BuildKey(ctx, part)
	if err != nil {
		// Redis being down degrades to direct source reads.
		s.logger.Warn("catalog cache unavailable", slog.String("part", part), slog.Any("error", err))
		var uncached *Cache
		return uncached.FetchJSON(ctx, part, dest, loader)
	}
	return s.cache.FetchJSON(ctx, key, dest, loader)
}

// Invalidate bumps the cache version so the next load reads the source again.
func (s *Service) Invalidate(ctx context.Context) error {
	ver, err := s.cache.Bump(ctx)
	if err != nil {
		return fmt.Errorf("catalog: bump cache: %w", err)
	}
	s.logger.Debug("catalog cache bumped", slog.Int64("version", ver))
	return nil
}

// Check loads every part once and validates it as a fixture.
func (s *Service) Check(ctx context.Context) (Fixture, error) {
	var f Fixture
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { f.Customers, err = s.source.Customers(ctx); return })
	g.Go(func() (err error) { f.Suppliers, err = s.source.Suppliers(ctx); return })
	g.Go(func() (err error) { f.Products, err = s.source.Products(ctx); return })
	g.Go(func() (err error) { f.Warehouses, err = s.source.Warehouses(ctx); return })
	if err := g.Wait(); err != nil {
		return Fixture{}, err
	}
	return f, f.Validate()
}
