package journals

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
)

type memoryRepo struct {
	entries map[int64]ledger.Entry
	links   map[string]int64
	nextID  int64
	nextNum int64
	lineSeq int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{entries: make(map[int64]ledger.Entry), links: make(map[string]int64)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) List(ctx context.Context, module ledger.SourceModule, limit int) ([]ledger.Entry, error) {
	var out []ledger.Entry
	for _, e := range r.entries {
		if module == "" || e.SourceModule == module {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetWithLines(ctx context.Context, entryID int64) (ledger.Entry, error) {
	e, ok := r.entries[entryID]
	if !ok {
		return ledger.Entry{}, ledger.ErrEntryNotFound
	}
	return e, nil
}

func (t *memoryTx) InsertEntry(ctx context.Context, in ledger.PostingInput) (ledger.Entry, error) {
	t.repo.nextID++
	t.repo.nextNum++
	entry := ledger.Entry{
		ID:           t.repo.nextID,
		Number:       t.repo.nextNum,
		Date:         in.Date,
		SourceModule: in.SourceModule,
		SourceRef:    in.SourceRef,
		Reference:    in.Reference,
		Memo:         in.Memo,
		BranchID:     in.BranchID,
		CreatedBy:    in.CreatedBy,
	}
	t.repo.entries[entry.ID] = entry
	return entry, nil
}

func (t *memoryTx) InsertLines(ctx context.Context, entryID int64, lines []ledger.LineInput) ([]int64, error) {
	entry := t.repo.entries[entryID]
	ids := make([]int64, 0, len(lines))
	for _, in := range lines {
		t.repo.lineSeq++
		ids = append(ids, t.repo.lineSeq)
		line := ledger.Line{
			ID:          t.repo.lineSeq,
			EntryID:     entryID,
			AccountID:   in.AccountID,
			Role:        in.Role,
			Debit:       in.Debit,
			Credit:      in.Credit,
			Description: in.Description,
		}
		for _, d := range in.Dimensions {
			line.Dimensions = append(line.Dimensions, ledger.DimensionAssignment{
				LineID:           line.ID,
				DimensionValueID: d.DimensionValueID,
				AllocationPct:    d.AllocationPct,
				IsPrimary:        d.IsPrimary,
			})
		}
		entry.Lines = append(entry.Lines, line)
	}
	t.repo.entries[entryID] = entry
	return ids, nil
}

func (t *memoryTx) LinkSource(ctx context.Context, module ledger.SourceModule, ref uuid.UUID, entryID int64) error {
	key := string(module) + ":" + ref.String()
	if _, ok := t.repo.links[key]; ok {
		return ledger.ErrSourceConflict
	}
	t.repo.links[key] = entryID
	return nil
}

func (t *memoryTx) GetSourceLink(ctx context.Context, module ledger.SourceModule, ref uuid.UUID) (int64, error) {
	id, ok := t.repo.links[string(module)+":"+ref.String()]
	if !ok {
		return 0, ledger.ErrEntryNotFound
	}
	return id, nil
}

func (t *memoryTx) GetEntryWithLines(ctx context.Context, entryID int64) (ledger.Entry, error) {
	return t.repo.GetWithLines(ctx, entryID)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func balancedInput(ref uuid.UUID) ledger.PostingInput {
	return ledger.PostingInput{
		Date:         time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC),
		SourceModule: ledger.ModuleSales,
		SourceRef:    ref,
		Reference:    "INV-2026-001",
		Memo:         "Sales invoice INV-2026-001",
		CreatedBy:    7,
		Lines: []ledger.LineInput{
			{AccountID: 1, Role: ledger.RoleAccountsReceivable, Debit: dec("1250.00")},
			{AccountID: 2, Role: ledger.RoleRevenue, Credit: dec("1000.00")},
			{AccountID: 3, Role: ledger.RoleOutputVAT, Credit: dec("250.00")},
		},
	}
}

func TestPostBalancedEntry(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	entry, err := svc.Post(context.Background(), balancedInput(uuid.New()))
	require.NoError(t, err)
	require.NotZero(t, entry.Number)
	require.Len(t, entry.Lines, 3)
	require.Len(t, repo.links, 1)
}

func TestPostUnbalancedEntryRejected(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	input := balancedInput(uuid.New())
	input.Lines[0].Debit = dec("1300.00")

	_, err := svc.Post(context.Background(), input)
	require.ErrorIs(t, err, ledger.ErrUnbalanced)
}

func TestPostDuplicateSourceRefRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ref := uuid.New()

	_, err := svc.Post(context.Background(), balancedInput(ref))
	require.NoError(t, err)

	_, err = svc.Post(context.Background(), balancedInput(ref))
	require.ErrorIs(t, err, ledger.ErrSourceAlreadyLinked)
	require.Len(t, repo.entries, 2) // the memory repo does not roll back
	require.Len(t, repo.links, 1)
}

func TestReverseSwapsSides(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	entry, err := svc.Post(context.Background(), balancedInput(uuid.New()))
	require.NoError(t, err)

	reversal, err := svc.Reverse(context.Background(), ledger.ReverseInput{EntryID: entry.ID, ActorID: 9})
	require.NoError(t, err)
	require.NotEqual(t, entry.ID, reversal.ID)
	require.Len(t, reversal.Lines, 3)
	require.True(t, reversal.Lines[0].Credit.Equal(dec("1250.00")))
	require.True(t, reversal.Lines[0].Debit.IsZero())
	require.True(t, reversal.Lines[1].Debit.Equal(dec("1000.00")))
	require.Equal(t, ledger.RoleAccountsReceivable, reversal.Lines[0].Role)
	require.Equal(t, ledger.RoleRevenue, reversal.Lines[1].Role)
	require.Contains(t, reversal.Memo, "Reversal of JE")
}

func TestReverseKeepsDimensionAssignments(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	input := balancedInput(uuid.New())
	input.Lines[1].Dimensions = []ledger.AssignmentInput{
		{DimensionValueID: 11, AllocationPct: ledger.HundredPercent, IsPrimary: true},
	}
	entry, err := svc.Post(context.Background(), input)
	require.NoError(t, err)

	reversal, err := svc.Reverse(context.Background(), ledger.ReverseInput{EntryID: entry.ID, ActorID: 9})
	require.NoError(t, err)
	stored := repo.entries[reversal.ID]
	require.Len(t, stored.Lines[1].Dimensions, 1)
	require.Equal(t, int64(11), stored.Lines[1].Dimensions[0].DimensionValueID)
	require.True(t, stored.Lines[1].Dimensions[0].IsPrimary)
}

func TestReverseMissingEntry(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	_, err := svc.Reverse(context.Background(), ledger.ReverseInput{EntryID: 404, ActorID: 9})
	require.ErrorIs(t, err, ledger.ErrEntryNotFound)
}
