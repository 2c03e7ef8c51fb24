package recon

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/meridian-erp/meridian-erp/internal/documents"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// DocumentSource is the document-side aggregate reader.
type DocumentSource interface {
	SourceTotals(ctx context.Context, module ledger.SourceModule, period shared.Period) ([]documents.SourceTotal, error)
	LinkedPairs(ctx context.Context, period shared.Period) ([]documents.LinkedPair, error)
	SetReconciled(ctx context.Context, module ledger.SourceModule, period shared.Period, at time.Time) error
}

// Service coordinates on-demand reconciliation and snapshot processing.
// Reports are cached in Redis and deduplicated with singleflight, so a
// burst of identical requests computes once.
type Service struct {
	repo      Repository
	docs      DocumentSource
	cache     *redis.Client
	now       func() time.Time
	group     singleflight.Group
	tolerance decimal.Decimal
	cacheTTL  time.Duration
}

// NewService builds the service. The cache client may be nil.
func NewService(repo Repository, docs DocumentSource, cache *redis.Client) *Service {
	return &Service{
		repo:      repo,
		docs:      docs,
		cache:     cache,
		now:       time.Now,
		tolerance: ledger.Tolerance,
		cacheTTL:  10 * time.Minute,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithCacheTTL overrides how long cached reports live.
func (s *Service) WithCacheTTL(ttl time.Duration) {
	if ttl > 0 {
		s.cacheTTL = ttl
	}
}

// Reconcile compares one module's document totals against the ledger for
// one period. A fully matched report stamps the period's documents as
// reconciled. Optional dimension value ids narrow the returned lines; the
// full report is always the one computed, cached and used for stamping.
func (s *Service) Reconcile(ctx context.Context, module ledger.SourceModule, period shared.Period, dims ...int64) (Report, error) {
	if !module.Valid() {
		return Report{}, ErrUnknownModule
	}
	if period.Year == 0 {
		return Report{}, shared.ErrInvalidPeriod
	}

	key := fmt.Sprintf("recon:report:%s:%s", module, period)
	if cached, ok := s.cachedReport(ctx, key); ok {
		return FilterReport(cached, dims), nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		report, err := s.compute(ctx, module, period)
		if err != nil {
			return nil, err
		}
		s.storeReport(ctx, key, report)
		return report, nil
	})
	if err != nil {
		return Report{}, err
	}
	return FilterReport(v.(Report), dims), nil
}

func (s *Service) compute(ctx context.Context, module ledger.SourceModule, period shared.Period) (Report, error) {
	source, err := s.docs.SourceTotals(ctx, module, period)
	if err != nil {
		return Report{}, err
	}
	gl, err := s.repo.GLTotalsByDimension(ctx, module, AnchorRole(module), period)
	if err != nil {
		return Report{}, err
	}
	report := ComputeReconciliation(module, period, source, gl, s.tolerance, s.now())
	if report.Matched && len(report.Lines) > 0 {
		if err := s.docs.SetReconciled(ctx, module, period, report.GeneratedAt); err != nil {
			return Report{}, err
		}
	}
	return report, nil
}

// GrossMargins reports margin per revenue dimension for one period.
func (s *Service) GrossMargins(ctx context.Context, period shared.Period) ([]MarginRow, error) {
	if period.Year == 0 {
		return nil, shared.ErrInvalidPeriod
	}
	pairs, err := s.docs.LinkedPairs(ctx, period)
	if err != nil {
		return nil, err
	}
	return ComputeMargins(pairs), nil
}

// TriggerSnapshot inserts a pending snapshot for async processing.
func (s *Service) TriggerSnapshot(ctx context.Context, req SnapshotRequest) (Snapshot, error) {
	if err := req.Validate(); err != nil {
		return Snapshot{}, err
	}
	return s.repo.InsertSnapshot(ctx, req)
}

// ListSnapshots fetches the latest snapshots.
func (s *Service) ListSnapshots(ctx context.Context, limit int) ([]Snapshot, error) {
	return s.repo.ListSnapshots(ctx, limit)
}

// GetSnapshot returns one snapshot with its payload.
func (s *Service) GetSnapshot(ctx context.Context, id int64) (Snapshot, error) {
	return s.repo.GetSnapshot(ctx, id)
}

// ProcessSnapshot computes the report for a pending snapshot and freezes
// it as the snapshot payload. Called from the worker.
func (s *Service) ProcessSnapshot(ctx context.Context, snapshotID int64) error {
	snap, err := s.repo.GetSnapshot(ctx, snapshotID)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateStatus(ctx, snap.ID, SnapshotInProgress); err != nil {
		return err
	}
	report, err := s.compute(ctx, snap.Module, snap.Period)
	if err != nil {
		_ = s.repo.SavePayload(ctx, snap.ID, nil, err.Error())
		_ = s.repo.UpdateStatus(ctx, snap.ID, SnapshotFailed)
		return err
	}
	if err := s.repo.SavePayload(ctx, snap.ID, &report, ""); err != nil {
		_ = s.repo.UpdateStatus(ctx, snap.ID, SnapshotFailed)
		return err
	}
	return s.repo.UpdateStatus(ctx, snap.ID, SnapshotReady)
}

func (s *Service) cachedReport(ctx context.Context, key string) (Report, bool) {
	if s.cache == nil {
		return Report{}, false
	}
	raw, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		return Report{}, false
	}
	var report Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return Report{}, false
	}
	return report, true
}

func (s *Service) storeReport(ctx context.Context, key string, report Report) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(report)
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, key, raw, s.cacheTTL).Err()
}
