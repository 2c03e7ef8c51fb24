package documents

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
)

// Kind discriminates the source document types the posting engine accepts.
type Kind string

const (
	KindSalesInvoice    Kind = "SALES_INVOICE"
	KindPurchaseInvoice Kind = "PURCHASE_INVOICE"
	KindProductionOrder Kind = "PRODUCTION_ORDER"
	KindBankTransaction Kind = "BANK_TRANSACTION"
	KindVATSettlement   Kind = "VAT_SETTLEMENT"
)

// Module maps a document kind to the ledger source module tag.
func (k Kind) Module() ledger.SourceModule {
	switch k {
	case KindSalesInvoice:
		return ledger.ModuleSales
	case KindPurchaseInvoice:
		return ledger.ModulePurchases
	case KindProductionOrder:
		return ledger.ModuleManufacturing
	case KindBankTransaction:
		return ledger.ModuleBanking
	case KindVATSettlement:
		return ledger.ModuleVAT
	}
	return ""
}

// Direction distinguishes bank money movement.
type Direction string

const (
	DirectionDeposit    Direction = "DEPOSIT"
	DirectionWithdrawal Direction = "WITHDRAWAL"
)

// Split expresses a percentage allocation of a document's primary cost
// across several values of one dimension.
type Split struct {
	DimensionValueID int64
	Pct              decimal.Decimal
}

// CostOrigin links a sales invoice to the production order that made the
// sold goods. Its dimensions drive the COGS legs; a difference against the
// invoice's own dimensions is recorded as a variance, not rejected.
type CostOrigin struct {
	ProductionOrderID uuid.UUID
	Amount            decimal.Decimal
	CostCenterID      *int64
	ProjectID         *int64
	DepartmentID      *int64
}

// Document is the posting contract every source module exposes: an
// authoritative total, optional per-leg account overrides, optional
// dimensions, and a mutable posting status.
type Document struct {
	ID        uuid.UUID
	Kind      Kind
	Reference string
	Date      time.Time
	BranchID  *int64

	// Total is the authoritative gross amount, already computed by the
	// owning module. The engine never recomputes it from parts.
	Total decimal.Decimal
	// Net is the revenue, expense or material portion of Total.
	Net decimal.Decimal
	// Tax is the VAT portion of Total; zero means the VAT leg is omitted.
	Tax decimal.Decimal
	// Labor is the labor portion of a production order's cost.
	Labor decimal.Decimal
	// OutputVAT and InputVAT carry the settlement positions of a VAT
	// period document; Total holds the absolute net position.
	OutputVAT decimal.Decimal
	InputVAT  decimal.Decimal

	Direction Direction

	// AccountOverrides holds explicit per-leg account choices set on the
	// document; absent roles fall back to the configured mapping.
	AccountOverrides map[ledger.AccountRole]int64

	CostCenterID *int64
	ProjectID    *int64
	DepartmentID *int64
	Splits       []Split
	CostOrigin   *CostOrigin

	PostingStatus ledger.PostingStatus
	PostedBy      *int64
	PostedAt      *time.Time
	EntryID       *int64
	LineIDs       []int64
	ReconciledAt  *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PrimaryDimension returns the dimension value id reconciliation groups by:
// cost center first, then project, then department. Zero means unassigned.
func (d Document) PrimaryDimension() int64 {
	switch {
	case d.CostCenterID != nil:
		return *d.CostCenterID
	case d.ProjectID != nil:
		return *d.ProjectID
	case d.DepartmentID != nil:
		return *d.DepartmentID
	}
	return 0
}

// DimensionIDs lists the dimension values set on the document, cost center
// first so it becomes the primary assignment.
func (d Document) DimensionIDs() []int64 {
	var out []int64
	for _, id := range []*int64{d.CostCenterID, d.ProjectID, d.DepartmentID} {
		if id != nil {
			out = append(out, *id)
		}
	}
	return out
}

// PrimaryDimension of the cost origin, mirroring Document.PrimaryDimension.
func (o CostOrigin) PrimaryDimension() int64 {
	switch {
	case o.CostCenterID != nil:
		return *o.CostCenterID
	case o.ProjectID != nil:
		return *o.ProjectID
	case o.DepartmentID != nil:
		return *o.DepartmentID
	}
	return 0
}

// DimensionIDs lists the cost origin's dimension values, primary first.
func (o CostOrigin) DimensionIDs() []int64 {
	var out []int64
	for _, id := range []*int64{o.CostCenterID, o.ProjectID, o.DepartmentID} {
		if id != nil {
			out = append(out, *id)
		}
	}
	return out
}
