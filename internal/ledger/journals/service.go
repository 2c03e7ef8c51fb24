package journals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates posting and reversing journal entries.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Post validates and persists a new journal entry. The entry, its lines,
// dimension assignments and the source link commit as one transaction.
func (s *Service) Post(ctx context.Context, input ledger.PostingInput) (ledger.Entry, error) {
	if err := input.Validate(); err != nil {
		return ledger.Entry{}, err
	}
	var entry ledger.Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := tx.InsertEntry(ctx, input)
		if err != nil {
			return err
		}
		lineIDs, err := tx.InsertLines(ctx, inserted.ID, input.Lines)
		if err != nil {
			return err
		}
		if err := tx.LinkSource(ctx, input.SourceModule, input.SourceRef, inserted.ID); err != nil {
			if errors.Is(err, ledger.ErrSourceConflict) {
				return ledger.ErrSourceAlreadyLinked
			}
			return err
		}
		inserted.Lines = toLines(inserted.ID, lineIDs, input.Lines)
		entry = inserted
		return nil
	})
	if err != nil {
		return ledger.Entry{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.CreatedBy,
			Action:   "journal.post",
			Entity:   "journal_entry",
			EntityID: fmt.Sprintf("%d", entry.ID),
			Meta: map[string]any{
				"number":        entry.Number,
				"source_module": string(input.SourceModule),
				"source_ref":    input.SourceRef.String(),
			},
			At: s.now(),
		})
	}
	return entry, nil
}

// Reverse creates a mirror-image entry for an existing one. The ledger is
// append-only, so corrections always go through a reversal.
func (s *Service) Reverse(ctx context.Context, input ledger.ReverseInput) (ledger.Entry, error) {
	if input.EntryID == 0 {
		return ledger.Entry{}, errors.New("journals: entry id required")
	}
	var reversal ledger.Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetEntryWithLines(ctx, input.EntryID)
		if err != nil {
			return err
		}
		date := original.Date
		if input.Date != nil {
			date = *input.Date
		}
		posting := ledger.PostingInput{
			Date:         date,
			SourceModule: original.SourceModule,
			SourceRef:    uuid.New(),
			Reference:    original.Reference,
			Memo:         defaultReversalMemo(input.Memo, original.Number),
			BranchID:     original.BranchID,
			CreatedBy:    input.ActorID,
			Lines:        reverseLines(original.Lines),
		}
		inserted, err := tx.InsertEntry(ctx, posting)
		if err != nil {
			return err
		}
		lineIDs, err := tx.InsertLines(ctx, inserted.ID, posting.Lines)
		if err != nil {
			return err
		}
		if err := tx.LinkSource(ctx, posting.SourceModule, posting.SourceRef, inserted.ID); err != nil {
			return err
		}
		inserted.Lines = toLines(inserted.ID, lineIDs, posting.Lines)
		reversal = inserted
		return nil
	})
	if err != nil {
		return ledger.Entry{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "journal.reverse",
			Entity:   "journal_entry",
			EntityID: fmt.Sprintf("%d", input.EntryID),
			Meta: map[string]any{
				"reversal_id":     reversal.ID,
				"reversal_number": reversal.Number,
			},
			At: s.now(),
		})
	}
	return reversal, nil
}

// List returns recent entries, newest first.
func (s *Service) List(ctx context.Context, module ledger.SourceModule, limit int) ([]ledger.Entry, error) {
	return s.repo.List(ctx, module, limit)
}

// Get fetches one entry with its lines and assignments.
func (s *Service) Get(ctx context.Context, entryID int64) (ledger.Entry, error) {
	return s.repo.GetWithLines(ctx, entryID)
}

func reverseLines(lines []ledger.Line) []ledger.LineInput {
	out := make([]ledger.LineInput, 0, len(lines))
	for _, line := range lines {
		dims := make([]ledger.AssignmentInput, 0, len(line.Dimensions))
		for _, d := range line.Dimensions {
			dims = append(dims, ledger.AssignmentInput{
				DimensionValueID: d.DimensionValueID,
				AllocationPct:    d.AllocationPct,
				IsPrimary:        d.IsPrimary,
			})
		}
		out = append(out, ledger.LineInput{
			AccountID:   line.AccountID,
			Role:        line.Role,
			Debit:       line.Credit,
			Credit:      line.Debit,
			Description: line.Description,
			Dimensions:  dims,
		})
	}
	return out
}

func toLines(entryID int64, ids []int64, lines []ledger.LineInput) []ledger.Line {
	out := make([]ledger.Line, 0, len(lines))
	for i, line := range lines {
		l := ledger.Line{
			EntryID:     entryID,
			AccountID:   line.AccountID,
			Role:        line.Role,
			Debit:       line.Debit,
			Credit:      line.Credit,
			Description: line.Description,
		}
		if i < len(ids) {
			l.ID = ids[i]
		}
		for _, d := range line.Dimensions {
			l.Dimensions = append(l.Dimensions, ledger.DimensionAssignment{
				LineID:           l.ID,
				DimensionValueID: d.DimensionValueID,
				AllocationPct:    d.AllocationPct,
				IsPrimary:        d.IsPrimary,
			})
		}
		out = append(out, l)
	}
	return out
}

func defaultReversalMemo(memo string, number int64) string {
	if memo != "" {
		return memo
	}
	return fmt.Sprintf("Reversal of JE %d", number)
}
