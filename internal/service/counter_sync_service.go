package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/exam-market-api/internal/models"
)

type pendingStore interface {
	Members(ctx context.Context, itemType models.ItemType) ([]string, error)
	Clear(ctx context.Context, itemType models.ItemType) error
}

type countReader interface {
	CountByItemIDs(ctx context.Context, itemType models.ItemType, itemIDs []string) ([]models.ItemCount, error)
}

type countWriter interface {
	UpdateRegistrationCount(ctx context.Context, itemType models.ItemType, id string, count int) error
}

// CounterSyncService reconciles the cached registration_count columns with
// the registration ledgers. The ledger is authoritative; the cached column
// only serves reads and sorting.
type CounterSyncService struct {
	pending  pendingStore
	counts   countReader
	catalog  countWriter
	metrics  *MetricsService
	interval time.Duration
	logger   *zap.Logger
}

// NewCounterSyncService wires the reconciler.
func NewCounterSyncService(pending pendingStore, counts countReader, catalog countWriter, metrics *MetricsService, interval time.Duration, logger *zap.Logger) *CounterSyncService {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CounterSyncService{
		pending:  pending,
		counts:   counts,
		catalog:  catalog,
		metrics:  metrics,
		interval: interval,
		logger:   logger,
	}
}

// Run executes reconciliation passes on a fixed interval until the context
// is cancelled.
func (s *CounterSyncService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("count reconciler started", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("count reconciler stopped")
			return
		case <-ticker.C:
			start := time.Now()
			updated, err := s.Sync(ctx)
			s.metrics.ObserveCountSync(time.Since(start), updated, err)
			if err != nil {
				s.logger.Error("count reconciliation failed", zap.Error(err))
			}
		}
	}
}

// Sync reconciles both item types and returns the number of items whose
// cached count was rewritten.
func (s *CounterSyncService) Sync(ctx context.Context) (int, error) {
	var total int
	for _, itemType := range []models.ItemType{models.ItemTypeTest, models.ItemTypeCourse} {
		n, err := s.syncType(ctx, itemType)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// syncType drains the pending set for one item type. The set is cleared only
// after every count has been written; a failed pass leaves the IDs queued for
// the next one.
func (s *CounterSyncService) syncType(ctx context.Context, itemType models.ItemType) (int, error) {
	ids, err := s.pending.Members(ctx, itemType)
	if err != nil {
		return 0, fmt.Errorf("load pending %s ids: %w", itemType, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	counts, err := s.counts.CountByItemIDs(ctx, itemType, ids)
	if err != nil {
		return 0, fmt.Errorf("aggregate %s counts: %w", itemType, err)
	}

	byID := make(map[string]int, len(counts))
	for _, c := range counts {
		byID[c.ItemID] = c.Count
	}

	// IDs absent from the aggregate had all their registrations removed and
	// must be reset to zero, not skipped.
	var updated int
	for _, id := range ids {
		if err := s.catalog.UpdateRegistrationCount(ctx, itemType, id, byID[id]); err != nil {
			return updated, fmt.Errorf("write %s count: %w", itemType, err)
		}
		updated++
	}

	if err := s.pending.Clear(ctx, itemType); err != nil {
		return updated, fmt.Errorf("clear pending %s ids: %w", itemType, err)
	}

	s.logger.Info("registration counts reconciled",
		zap.String("item_type", string(itemType)),
		zap.Int("items", updated))

	return updated, nil
}
