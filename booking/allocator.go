/*
allocator.go - Automated annual entitlement allocation

PURPOSE:
  Periodically walks every property and grants each membership its
  annual entitlement for the two modeled year buckets: fraction count
  times the property's nights-per-fraction rate. Keeps next-year buckets
  funded ahead of bookings and rolls the window forward at year end
  without manual intervention.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Grants carry a deterministic idempotency key per (membership, year),
    so every tick is safe to re-run: buckets already funded are skipped
    at the schema level
  - Properties with a zero nights-per-fraction rate are skipped; their
    grants are managed manually

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether the allocator is active (default: true)

USAGE:
  alloc := booking.NewAllocator(store, logger)
  alloc.Start()
  // ... later
  alloc.Stop()

SEE ALSO:
  - engine/ledger.go: AllocationTransaction idempotency key
  - api/scenarios.go: Seeds rates the allocator then maintains
*/
package booking

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/coown/staybook/engine"
)

// Allocator funds membership year buckets on a schedule.
type Allocator struct {
	Store         engine.Store
	CheckInterval time.Duration
	Enabled       bool

	log    *zap.Logger
	now    engine.Clock
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewAllocator(store engine.Store, log *zap.Logger) *Allocator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Allocator{
		Store:         store,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		log:           log,
		now:           engine.Today,
		stop:          make(chan struct{}),
	}
}

// Start begins the background allocation loop.
func (a *Allocator) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.Enabled {
		a.log.Info("allocator disabled, not starting")
		return
	}

	a.ticker = time.NewTicker(a.CheckInterval)
	a.wg.Add(1)
	go a.run()

	a.log.Info("allocator started", zap.Duration("check_interval", a.CheckInterval))
}

// Stop halts the loop and waits for an in-flight pass to finish.
func (a *Allocator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ticker != nil {
		a.ticker.Stop()
		close(a.stop)
		a.wg.Wait()
		a.log.Info("allocator stopped")
	}
}

func (a *Allocator) run() {
	defer a.wg.Done()

	// Run immediately on start
	a.allocate(context.Background())

	for {
		select {
		case <-a.ticker.C:
			a.allocate(context.Background())
		case <-a.stop:
			return
		}
	}
}

// RunNow triggers an immediate pass (for testing/admin).
func (a *Allocator) RunNow(ctx context.Context) error {
	return a.allocate(ctx)
}

// allocate funds the current and next year bucket of every membership
// whose property has an allocation rate. Already-funded buckets are
// rejected by the ledger's idempotency key and counted as skipped.
func (a *Allocator) allocate(ctx context.Context) error {
	today := a.now()
	years := []int{today.Year(), today.Year() + 1}

	properties, err := a.Store.ListProperties(ctx)
	if err != nil {
		a.log.Error("allocator failed to list properties", zap.Error(err))
		return err
	}

	granted, skipped := 0, 0
	for _, rules := range properties {
		if rules.NightsPerFraction <= 0 {
			continue
		}
		members, err := a.Store.ListMemberships(ctx, rules.PropertyID)
		if err != nil {
			a.log.Error("allocator failed to list memberships",
				zap.String("property_id", string(rules.PropertyID)), zap.Error(err))
			continue
		}
		for _, member := range members {
			key := engine.MembershipKey{PropertyID: member.PropertyID, UserID: member.UserID}
			nights := rules.NightsPerFraction * member.FractionCount
			for _, year := range years {
				tx := engine.AllocationTransaction(key, year, nights)
				switch err := a.Store.AppendTransaction(ctx, tx); {
				case err == nil:
					granted++
				case errors.Is(err, engine.ErrDuplicateIdempotencyKey):
					skipped++
				default:
					a.log.Error("allocator failed to append grant",
						zap.String("membership", key.String()),
						zap.Int("year", year), zap.Error(err))
				}
			}
		}
	}

	if granted > 0 {
		a.log.Info("allocation pass completed",
			zap.Int("granted", granted), zap.Int("skipped", skipped))
	}
	return nil
}
