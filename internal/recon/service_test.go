package recon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/meridian-erp/meridian-erp/internal/documents"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type stubRepo struct {
	gl        []GLTotal
	glCalls   int
	snapshots map[int64]*Snapshot
	nextID    int64
	statuses  []SnapshotStatus
}

func newStubRepo() *stubRepo {
	return &stubRepo{snapshots: map[int64]*Snapshot{}}
}

func (s *stubRepo) GLTotalsByDimension(ctx context.Context, module ledger.SourceModule, role ledger.AccountRole, period shared.Period) ([]GLTotal, error) {
	s.glCalls++
	return s.gl, nil
}

func (s *stubRepo) InsertSnapshot(ctx context.Context, req SnapshotRequest) (Snapshot, error) {
	s.nextID++
	snap := Snapshot{ID: s.nextID, Module: req.Module, Period: req.Period, Status: SnapshotPending, TriggeredBy: req.ActorID}
	s.snapshots[snap.ID] = &snap
	return snap, nil
}

func (s *stubRepo) GetSnapshot(ctx context.Context, id int64) (Snapshot, error) {
	snap, ok := s.snapshots[id]
	if !ok {
		return Snapshot{}, ErrSnapshotNotFound
	}
	return *snap, nil
}

func (s *stubRepo) ListSnapshots(ctx context.Context, limit int) ([]Snapshot, error) {
	out := make([]Snapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		out = append(out, *snap)
	}
	return out, nil
}

func (s *stubRepo) UpdateStatus(ctx context.Context, id int64, status SnapshotStatus) error {
	snap, ok := s.snapshots[id]
	if !ok {
		return ErrSnapshotNotFound
	}
	snap.Status = status
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *stubRepo) SavePayload(ctx context.Context, id int64, report *Report, errMsg string) error {
	snap, ok := s.snapshots[id]
	if !ok {
		return ErrSnapshotNotFound
	}
	snap.Payload = report
	snap.Error = errMsg
	return nil
}

type stubDocs struct {
	totals     []documents.SourceTotal
	totalsErr  error
	pairs      []documents.LinkedPair
	reconciled []string
}

func (s *stubDocs) SourceTotals(ctx context.Context, module ledger.SourceModule, period shared.Period) ([]documents.SourceTotal, error) {
	if s.totalsErr != nil {
		return nil, s.totalsErr
	}
	return s.totals, nil
}

func (s *stubDocs) LinkedPairs(ctx context.Context, period shared.Period) ([]documents.LinkedPair, error) {
	return s.pairs, nil
}

func (s *stubDocs) SetReconciled(ctx context.Context, module ledger.SourceModule, period shared.Period, at time.Time) error {
	s.reconciled = append(s.reconciled, string(module)+":"+period.String())
	return nil
}

func TestReconcileMarksMatchedPeriod(t *testing.T) {
	repo := newStubRepo()
	repo.gl = []GLTotal{{DimensionValueID: 11, Total: dec("100.00"), Entries: 1}}
	docs := &stubDocs{totals: []documents.SourceTotal{{DimensionValueID: 11, Total: dec("100.00"), Count: 1}}}
	svc := NewService(repo, docs, nil)
	svc.WithNow(func() time.Time { return testNow })

	report, err := svc.Reconcile(context.Background(), ledger.ModuleSales, testPeriod)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !report.Matched {
		t.Fatalf("expected matched report")
	}
	if len(docs.reconciled) != 1 || docs.reconciled[0] != "SALES:2026-03" {
		t.Fatalf("matched report must stamp documents, got %v", docs.reconciled)
	}
}

func TestReconcileMismatchedPeriodNotStamped(t *testing.T) {
	repo := newStubRepo()
	repo.gl = []GLTotal{{DimensionValueID: 11, Total: dec("90.00"), Entries: 1}}
	docs := &stubDocs{totals: []documents.SourceTotal{{DimensionValueID: 11, Total: dec("100.00"), Count: 1}}}
	svc := NewService(repo, docs, nil)

	report, err := svc.Reconcile(context.Background(), ledger.ModuleSales, testPeriod)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if report.Matched {
		t.Fatalf("expected mismatch")
	}
	if len(docs.reconciled) != 0 {
		t.Fatalf("mismatched report must not stamp documents")
	}
}

func TestReconcileRejectsBadInput(t *testing.T) {
	svc := NewService(newStubRepo(), &stubDocs{}, nil)
	if _, err := svc.Reconcile(context.Background(), "INVOICES", testPeriod); !errors.Is(err, ErrUnknownModule) {
		t.Fatalf("expected ErrUnknownModule, got %v", err)
	}
	if _, err := svc.Reconcile(context.Background(), ledger.ModuleSales, shared.Period{}); !errors.Is(err, shared.ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestReconcileUsesCache(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()

	repo := newStubRepo()
	repo.gl = []GLTotal{{DimensionValueID: 11, Total: dec("100.00"), Entries: 1}}
	docs := &stubDocs{totals: []documents.SourceTotal{{DimensionValueID: 11, Total: dec("100.00"), Count: 1}}}
	svc := NewService(repo, docs, client)

	if _, err := svc.Reconcile(context.Background(), ledger.ModuleSales, testPeriod); err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}
	report, err := svc.Reconcile(context.Background(), ledger.ModuleSales, testPeriod)
	if err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}
	if repo.glCalls != 1 {
		t.Fatalf("second call must hit the cache, computed %d times", repo.glCalls)
	}
	if !report.Matched || len(report.Lines) != 1 {
		t.Fatalf("cached report must round-trip: %+v", report)
	}
}

func TestProcessSnapshotFreezesReport(t *testing.T) {
	repo := newStubRepo()
	repo.gl = []GLTotal{{DimensionValueID: 11, Total: dec("100.00"), Entries: 1}}
	docs := &stubDocs{totals: []documents.SourceTotal{{DimensionValueID: 11, Total: dec("100.00"), Count: 1}}}
	svc := NewService(repo, docs, nil)

	snap, err := svc.TriggerSnapshot(context.Background(), SnapshotRequest{Module: ledger.ModuleSales, Period: testPeriod, ActorID: 7})
	if err != nil {
		t.Fatalf("TriggerSnapshot: %v", err)
	}
	if snap.Status != SnapshotPending {
		t.Fatalf("expected pending snapshot, got %s", snap.Status)
	}
	if err := svc.ProcessSnapshot(context.Background(), snap.ID); err != nil {
		t.Fatalf("ProcessSnapshot: %v", err)
	}
	stored, _ := repo.GetSnapshot(context.Background(), snap.ID)
	if stored.Status != SnapshotReady {
		t.Fatalf("expected READY, got %s", stored.Status)
	}
	if stored.Payload == nil || !stored.Payload.Matched {
		t.Fatalf("payload must hold the frozen report: %+v", stored.Payload)
	}
}

func TestProcessSnapshotFailure(t *testing.T) {
	repo := newStubRepo()
	docs := &stubDocs{totalsErr: errors.New("source unavailable")}
	svc := NewService(repo, docs, nil)

	snap, err := svc.TriggerSnapshot(context.Background(), SnapshotRequest{Module: ledger.ModuleSales, Period: testPeriod, ActorID: 7})
	if err != nil {
		t.Fatalf("TriggerSnapshot: %v", err)
	}
	if err := svc.ProcessSnapshot(context.Background(), snap.ID); err == nil {
		t.Fatalf("expected processing error")
	}
	stored, _ := repo.GetSnapshot(context.Background(), snap.ID)
	if stored.Status != SnapshotFailed {
		t.Fatalf("expected FAILED, got %s", stored.Status)
	}
	if stored.Error == "" {
		t.Fatalf("failure must record the error message")
	}
}

func TestTriggerSnapshotValidation(t *testing.T) {
	svc := NewService(newStubRepo(), &stubDocs{}, nil)
	if _, err := svc.TriggerSnapshot(context.Background(), SnapshotRequest{Module: "NOPE", Period: testPeriod, ActorID: 7}); !errors.Is(err, ErrUnknownModule) {
		t.Fatalf("expected ErrUnknownModule, got %v", err)
	}
	if _, err := svc.TriggerSnapshot(context.Background(), SnapshotRequest{Module: ledger.ModuleSales, ActorID: 7}); !errors.Is(err, shared.ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}
