package recon

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// LineStatus classifies one dimension row of a reconciliation report.
type LineStatus string

const (
	// LineMatched means source and ledger totals agree within tolerance.
	LineMatched LineStatus = "MATCHED"
	// LineMismatch means both sides exist but disagree beyond tolerance.
	LineMismatch LineStatus = "MISMATCH"
	// LineMissingGL means documents exist with no ledger counterpart.
	LineMissingGL LineStatus = "MISSING_GL"
	// LineMissingSource means ledger amounts exist with no documents.
	LineMissingSource LineStatus = "MISSING_SOURCE"
)

// GLTotal is the ledger side of the comparison: the anchor-role amount
// grouped by the primary dimension assignment.
type GLTotal struct {
	DimensionValueID int64
	Total            decimal.Decimal
	Entries          int
}

// DimensionLine compares one dimension value across both sides.
type DimensionLine struct {
	DimensionValueID int64           `json:"dimension_value_id"`
	SourceTotal      decimal.Decimal `json:"source_total"`
	GLTotal          decimal.Decimal `json:"gl_total"`
	Variance         decimal.Decimal `json:"variance"`
	Documents        int             `json:"documents"`
	Entries          int             `json:"entries"`
	Status           LineStatus      `json:"status"`
}

// Report is a full reconciliation of one module for one period.
type Report struct {
	Module      ledger.SourceModule `json:"module"`
	Period      string              `json:"period"`
	AnchorRole  ledger.AccountRole  `json:"anchor_role"`
	Lines       []DimensionLine     `json:"lines"`
	SourceTotal decimal.Decimal     `json:"source_total"`
	GLTotal     decimal.Decimal     `json:"gl_total"`
	Variance    decimal.Decimal     `json:"variance"`
	Matched     bool                `json:"matched"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// MarginRow reports gross margin per revenue dimension, joining posted
// sales invoices to the production orders that made the sold goods.
type MarginRow struct {
	DimensionValueID int64           `json:"dimension_value_id"`
	Revenue          decimal.Decimal `json:"revenue"`
	COGS             decimal.Decimal `json:"cogs"`
	Margin           decimal.Decimal `json:"margin"`
	MarginPct        decimal.Decimal `json:"margin_pct"`
	Invoices         int             `json:"invoices"`
	// DimensionMismatch flags rows where at least one invoice booked its
	// cost against a different dimension than its revenue.
	DimensionMismatch bool `json:"dimension_mismatch"`
}

// SnapshotStatus enumerates async job lifecycle values.
type SnapshotStatus string

const (
	SnapshotPending    SnapshotStatus = "PENDING"
	SnapshotInProgress SnapshotStatus = "IN_PROGRESS"
	SnapshotReady      SnapshotStatus = "READY"
	SnapshotFailed     SnapshotStatus = "FAILED"
)

// Snapshot stores metadata plus the frozen report for one calculation.
type Snapshot struct {
	ID          int64
	Module      ledger.SourceModule
	Period      shared.Period
	Status      SnapshotStatus
	TriggeredBy int64
	Error       string
	Payload     *Report
	GeneratedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SnapshotRequest configures a trigger for reconciliation computation.
type SnapshotRequest struct {
	Module  ledger.SourceModule
	Period  shared.Period
	ActorID int64
}

// Validate ensures the request is complete.
func (r SnapshotRequest) Validate() error {
	if !r.Module.Valid() {
		return ErrUnknownModule
	}
	if r.Period.Year == 0 {
		return shared.ErrInvalidPeriod
	}
	if r.ActorID == 0 {
		return errors.New("recon: actor required")
	}
	return nil
}

var (
	// ErrUnknownModule indicates an unsupported source module.
	ErrUnknownModule = errors.New("recon: unknown source module")
	// ErrSnapshotNotFound indicates a missing snapshot.
	ErrSnapshotNotFound = errors.New("recon: snapshot not found")
)

// AnchorRole returns the journal line role whose amounts must equal the
// module's document totals: the receivable for sales, the payable for
// purchases and manufacturing, the bank leg for banking and VAT.
func AnchorRole(module ledger.SourceModule) ledger.AccountRole {
	switch module {
	case ledger.ModuleSales:
		return ledger.RoleAccountsReceivable
	case ledger.ModulePurchases, ledger.ModuleManufacturing:
		return ledger.RoleAccountsPayable
	case ledger.ModuleBanking, ledger.ModuleVAT:
		return ledger.RoleBank
	}
	return ""
}
