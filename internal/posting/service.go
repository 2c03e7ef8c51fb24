package posting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/documents"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository provides document access and the posting transaction scope.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	GetDocument(ctx context.Context, id uuid.UUID) (documents.Document, error)
	MarkError(ctx context.Context, id uuid.UUID) error
}

// TxRepository bundles every read and write the posting transaction needs.
// The document lock, the journal writes and the status flip must share one
// transaction, so the queries live here rather than on the owning packages.
type TxRepository interface {
	GetDocumentForUpdate(ctx context.Context, id uuid.UUID) (documents.Document, error)
	Mappings(ctx context.Context, module ledger.SourceModule) (map[ledger.AccountRole]int64, error)
	AccountsByID(ctx context.Context, ids []int64) (map[int64]ledger.Account, error)
	DimensionValues(ctx context.Context, ids []int64) (map[int64]ledger.DimensionValue, error)
	RequiredDimensions(ctx context.Context) ([]ledger.Dimension, error)
	GetSourceLink(ctx context.Context, module ledger.SourceModule, ref uuid.UUID) (int64, error)
	InsertEntry(ctx context.Context, in ledger.PostingInput) (ledger.Entry, error)
	InsertLines(ctx context.Context, entryID int64, lines []ledger.LineInput) ([]int64, error)
	LinkSource(ctx context.Context, module ledger.SourceModule, ref uuid.UUID, entryID int64) error
	SaveDocumentPosting(ctx context.Context, id uuid.UUID, entryID int64, lineIDs []int64, userID int64, at time.Time) (bool, error)
}

// AuditPort records posting events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Result reports a successful posting.
type Result struct {
	EntryID              int64
	EntryNumber          int64
	LineIDs              []int64
	HasDimensionVariance bool
}

// Service turns source documents into balanced journal entries.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Post books the document into the general ledger. The whole operation is
// one transaction: the document row is locked, the entry and its lines are
// inserted, the source link claims the idempotency key, and the document
// flips to posted. Posting the same document twice returns
// AlreadyPostedError with the original journal ids and writes nothing.
func (s *Service) Post(ctx context.Context, docID uuid.UUID, userID int64) (Result, error) {
	var res Result
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetDocumentForUpdate(ctx, docID)
		if err != nil {
			if errors.Is(err, documents.ErrDocumentNotFound) {
				return ErrDocumentNotFound
			}
			return err
		}
		if doc.PostingStatus == ledger.PostingStatusPosted {
			return alreadyPosted(doc)
		}

		build, err := BuildLegs(doc)
		if err != nil {
			return err
		}
		lines, err := s.resolveLines(ctx, tx, doc, build.Legs)
		if err != nil {
			return err
		}

		module := doc.Kind.Module()
		input := ledger.PostingInput{
			Date:         doc.Date,
			SourceModule: module,
			SourceRef:    doc.ID,
			Reference:    doc.Reference,
			Memo:         memoFor(doc),
			BranchID:     doc.BranchID,
			CreatedBy:    userID,
			Lines:        lines,
		}
		if err := input.Validate(); err != nil {
			return err
		}

		if linked, err := tx.GetSourceLink(ctx, module, doc.ID); err == nil {
			return &AlreadyPostedError{EntryID: linked}
		} else if !errors.Is(err, ledger.ErrEntryNotFound) {
			return err
		}

		entry, err := tx.InsertEntry(ctx, input)
		if err != nil {
			return err
		}
		lineIDs, err := tx.InsertLines(ctx, entry.ID, input.Lines)
		if err != nil {
			return err
		}
		if err := tx.LinkSource(ctx, module, doc.ID, entry.ID); err != nil {
			return err
		}
		claimed, err := tx.SaveDocumentPosting(ctx, doc.ID, entry.ID, lineIDs, userID, s.now())
		if err != nil {
			return err
		}
		if !claimed {
			return alreadyPosted(doc)
		}

		res = Result{
			EntryID:              entry.ID,
			EntryNumber:          entry.Number,
			LineIDs:              lineIDs,
			HasDimensionVariance: build.HasDimensionVariance,
		}
		return nil
	})
	if err != nil {
		s.markFailed(ctx, docID, err)
		return Result{}, wrapFailure(err)
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  userID,
			Action:   "document.post",
			Entity:   "source_document",
			EntityID: docID.String(),
			Meta: map[string]any{
				"entry_id":           res.EntryID,
				"line_count":         len(res.LineIDs),
				"dimension_variance": res.HasDimensionVariance,
			},
			At: s.now(),
		})
	}
	return res, nil
}

// GetDocument exposes the document with its posting state for API reads.
func (s *Service) GetDocument(ctx context.Context, id uuid.UUID) (documents.Document, error) {
	doc, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		if errors.Is(err, documents.ErrDocumentNotFound) {
			return documents.Document{}, ErrDocumentNotFound
		}
		return documents.Document{}, err
	}
	return doc, nil
}

// resolveLines maps legs to concrete accounts and validated dimension
// assignments. Overrides on the document win over the module mapping.
func (s *Service) resolveLines(ctx context.Context, tx TxRepository, doc documents.Document, legs []Leg) ([]ledger.LineInput, error) {
	mappings, err := tx.Mappings(ctx, doc.Kind.Module())
	if err != nil {
		return nil, err
	}

	accountIDs := make([]int64, 0, len(legs))
	seen := make(map[int64]bool, len(legs))
	lines := make([]ledger.LineInput, 0, len(legs))
	for _, leg := range legs {
		accountID, ok := doc.AccountOverrides[leg.Role]
		if !ok {
			accountID, ok = mappings[leg.Role]
		}
		if !ok || accountID == 0 {
			return nil, &MissingGLAccountError{Role: leg.Role}
		}
		if !seen[accountID] {
			seen[accountID] = true
			accountIDs = append(accountIDs, accountID)
		}
		line := ledger.LineInput{
			AccountID:   accountID,
			Role:        leg.Role,
			Description: doc.Reference,
			Dimensions:  leg.Assignments,
		}
		if leg.Side == ledger.SideDebit {
			line.Debit = leg.Amount
		} else {
			line.Credit = leg.Amount
		}
		lines = append(lines, line)
	}

	accounts, err := tx.AccountsByID(ctx, accountIDs)
	if err != nil {
		return nil, err
	}
	for _, line := range lines {
		acct, ok := accounts[line.AccountID]
		if !ok || !acct.IsActive {
			return nil, &MissingGLAccountError{Role: line.Role}
		}
	}

	if err := s.checkDimensions(ctx, tx, accounts, lines); err != nil {
		return nil, err
	}
	return lines, nil
}

// checkDimensions verifies every referenced dimension value exists and is
// active, and that lines on dimension-requiring accounts cover every
// required dimension.
func (s *Service) checkDimensions(ctx context.Context, tx TxRepository, accounts map[int64]ledger.Account, lines []ledger.LineInput) error {
	valueIDs := make([]int64, 0, 4)
	seen := make(map[int64]bool)
	for _, line := range lines {
		for _, d := range line.Dimensions {
			if !seen[d.DimensionValueID] {
				seen[d.DimensionValueID] = true
				valueIDs = append(valueIDs, d.DimensionValueID)
			}
		}
	}

	values := map[int64]ledger.DimensionValue{}
	if len(valueIDs) > 0 {
		var err error
		values, err = tx.DimensionValues(ctx, valueIDs)
		if err != nil {
			return err
		}
		for _, id := range valueIDs {
			v, ok := values[id]
			if !ok {
				return &InvalidDimensionError{DimensionValueID: id, Reason: "dimension value not found"}
			}
			if !v.IsActive {
				return &InvalidDimensionError{DimensionValueID: id, Reason: "dimension value inactive"}
			}
		}
	}

	required, err := tx.RequiredDimensions(ctx)
	if err != nil {
		return err
	}
	if len(required) == 0 {
		return nil
	}
	for _, line := range lines {
		if !accounts[line.AccountID].RequiresDimensions {
			continue
		}
		covered := make(map[int64]bool, len(line.Dimensions))
		for _, d := range line.Dimensions {
			covered[values[d.DimensionValueID].DimensionID] = true
		}
		for _, dim := range required {
			if !covered[dim.ID] {
				return &InvalidDimensionError{Reason: fmt.Sprintf("required dimension %s has no assignment on %s line", dim.Code, line.Role)}
			}
		}
	}
	return nil
}

// markFailed flips the document to error for retryable business failures.
// Missing documents and idempotency returns leave the row untouched.
func (s *Service) markFailed(ctx context.Context, docID uuid.UUID, err error) {
	switch KindOf(err) {
	case KindDocumentNotFound, KindAlreadyPosted:
		return
	}
	_ = s.repo.MarkError(ctx, docID)
}

func wrapFailure(err error) error {
	if KindOf(err) != KindPostingFailed {
		return err
	}
	var failed *PostingFailedError
	if errors.As(err, &failed) {
		return err
	}
	return &PostingFailedError{Err: err}
}

func alreadyPosted(doc documents.Document) error {
	e := &AlreadyPostedError{LineIDs: doc.LineIDs}
	if doc.EntryID != nil {
		e.EntryID = *doc.EntryID
	}
	return e
}

func memoFor(doc documents.Document) string {
	switch doc.Kind {
	case documents.KindSalesInvoice:
		return fmt.Sprintf("Sales invoice %s", doc.Reference)
	case documents.KindPurchaseInvoice:
		return fmt.Sprintf("Purchase invoice %s", doc.Reference)
	case documents.KindProductionOrder:
		return fmt.Sprintf("Production order %s", doc.Reference)
	case documents.KindBankTransaction:
		return fmt.Sprintf("Bank transaction %s", doc.Reference)
	case documents.KindVATSettlement:
		return fmt.Sprintf("VAT settlement %s", doc.Reference)
	}
	return doc.Reference
}
