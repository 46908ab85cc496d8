package license

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"killswitch/internal/metrics"
	"killswitch/internal/store"
)

// Snapshot is an immutable, point-in-time copy of all services and licenses.
// The two slices are mutually consistent as of one rebuild instant. A
// snapshot is never mutated after publication, only replaced wholesale.
type Snapshot struct {
	Services []store.Service
	Licenses []store.License
	BuiltAt  time.Time
}

// FindServiceByClient returns the service with the given client identifier,
// or nil.
func (s *Snapshot) FindServiceByClient(client string) *store.Service {
	for i := range s.Services {
		if s.Services[i].Client == client {
			return &s.Services[i]
		}
	}
	return nil
}

// FindLicenseByKey returns the license with the given key, or nil.
func (s *Snapshot) FindLicenseByKey(key string) *store.License {
	for i := range s.Licenses {
		if s.Licenses[i].Key == key {
			return &s.Licenses[i]
		}
	}
	return nil
}

// ServiceSource and LicenseSource are the store reads a rebuild needs.
type ServiceSource interface {
	List(ctx context.Context) ([]store.Service, error)
}

type LicenseSource interface {
	List(ctx context.Context) ([]store.License, error)
}

// Cache holds the current snapshot behind an atomic reference. Readers always
// dereference one fully-formed snapshot end to end and need no locks; the
// pointer swap is the sole synchronization primitive.
type Cache struct {
	services ServiceSource
	licenses LicenseSource
	current  atomic.Pointer[Snapshot]
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewCache creates a cache publishing an empty snapshot, so Current never
// returns nil. Callers must Rebuild before serving real traffic.
func NewCache(services ServiceSource, licenses LicenseSource, m *metrics.Metrics, logger *slog.Logger) *Cache {
	c := &Cache{
		services: services,
		licenses: licenses,
		metrics:  m,
		logger:   logger.With(slog.String("component", "snapshot_cache")),
	}
	c.current.Store(&Snapshot{BuiltAt: time.Now()})
	return c
}

// Current returns the currently published snapshot.
func (c *Cache) Current() *Snapshot {
	return c.current.Load()
}

// Rebuild reads all services and all licenses from the store, constructs a
// fresh snapshot and atomically publishes it. On any store failure the
// previous snapshot stays published untouched and the error is returned for
// the caller to retry; a failed rebuild never leaves a nil or partial
// snapshot behind.
func (c *Cache) Rebuild(ctx context.Context) error {
	services, err := c.services.List(ctx)
	if err != nil {
		c.countRebuild("error")
		return fmt.Errorf("rebuild snapshot: list services: %w", err)
	}

	licenses, err := c.licenses.List(ctx)
	if err != nil {
		c.countRebuild("error")
		return fmt.Errorf("rebuild snapshot: list licenses: %w", err)
	}

	snap := &Snapshot{
		Services: services,
		Licenses: licenses,
		BuiltAt:  time.Now(),
	}
	c.current.Store(snap)

	c.countRebuild("success")
	if c.metrics != nil {
		c.metrics.SnapshotSize.WithLabelValues("services").Set(float64(len(services)))
		c.metrics.SnapshotSize.WithLabelValues("licenses").Set(float64(len(licenses)))
	}

	c.logger.Debug("snapshot rebuilt",
		slog.Int("services", len(services)),
		slog.Int("licenses", len(licenses)))
	return nil
}

func (c *Cache) countRebuild(result string) {
	if c.metrics != nil {
		c.metrics.SnapshotRebuilds.WithLabelValues(result).Inc()
	}
}
