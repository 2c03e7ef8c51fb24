package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset        AccountType = "ASSET"
	AccountTypeLiability    AccountType = "LIABILITY"
	AccountTypeEquity       AccountType = "EQUITY"
	AccountTypeRevenue      AccountType = "REVENUE"
	AccountTypeExpense      AccountType = "EXPENSE"
	AccountTypeCostOfSales  AccountType = "COST_OF_SALES"
	AccountTypeOtherIncome  AccountType = "OTHER_INCOME"
	AccountTypeOtherExpense AccountType = "OTHER_EXPENSE"
	AccountTypeFinanceCost  AccountType = "FINANCE_COST"
	AccountTypeTax          AccountType = "TAX"
)

// Side identifies the debit or credit column.
type Side string

const (
	SideDebit  Side = "DEBIT"
	SideCredit Side = "CREDIT"
)

// NormalSide derives the side on which balances of this type increase.
func (t AccountType) NormalSide() Side {
	switch t {
	case AccountTypeAsset, AccountTypeExpense, AccountTypeCostOfSales, AccountTypeOtherExpense, AccountTypeFinanceCost:
		return SideDebit
	default:
		return SideCredit
	}
}

// Valid reports whether the type is a known CoA category.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue,
		AccountTypeExpense, AccountTypeCostOfSales, AccountTypeOtherIncome,
		AccountTypeOtherExpense, AccountTypeFinanceCost, AccountTypeTax:
		return true
	}
	return false
}

// SourceModule tags the business module a journal entry originated from.
type SourceModule string

const (
	ModuleSales         SourceModule = "SALES"
	ModulePurchases     SourceModule = "PURCHASES"
	ModuleManufacturing SourceModule = "MANUFACTURING"
	ModuleBanking       SourceModule = "BANKING"
	ModuleVAT           SourceModule = "VAT"
)

// AllModules lists every source module, in posting order.
func AllModules() []SourceModule {
	return []SourceModule{ModuleSales, ModulePurchases, ModuleManufacturing, ModuleBanking, ModuleVAT}
}

// Valid reports whether the module tag is known.
func (m SourceModule) Valid() bool {
	switch m {
	case ModuleSales, ModulePurchases, ModuleManufacturing, ModuleBanking, ModuleVAT:
		return true
	}
	return false
}

// PostingStatus tracks whether a source document has hit the ledger.
type PostingStatus string

const (
	PostingStatusDraft  PostingStatus = "draft"
	PostingStatusPosted PostingStatus = "posted"
	PostingStatusError  PostingStatus = "error"
)

// AccountRole names the leg of a business transaction an account serves.
// Mappings resolve a role to a default account when the document carries no
// explicit override.
type AccountRole string

const (
	RoleAccountsReceivable AccountRole = "AR"
	RoleRevenue            AccountRole = "REVENUE"
	RoleOutputVAT          AccountRole = "OUTPUT_VAT"
	RoleInputVAT           AccountRole = "INPUT_VAT"
	RoleAccountsPayable    AccountRole = "AP"
	RoleExpense            AccountRole = "EXPENSE"
	RoleBank               AccountRole = "BANK"
	RoleInventory          AccountRole = "INVENTORY"
	RoleCOGS               AccountRole = "COGS"
	RoleWIP                AccountRole = "WIP"
	RoleLabor              AccountRole = "LABOR"
	RoleVATPayable         AccountRole = "VAT_PAYABLE"
	RoleVATReceivable      AccountRole = "VAT_RECEIVABLE"
)

// Tolerance is the rounding tolerance applied to balance and allocation
// checks, one currency minor unit.
var Tolerance = decimal.New(1, -2)

// HundredPercent is the required allocation sum per line.
var HundredPercent = decimal.NewFromInt(100)

// Account models a chart of accounts node.
type Account struct {
	ID        int64
	Code      string
	Name      string
	Type      AccountType
	ParentID  *int64
	IFRSClass string
	// RequiresDimensions forces every journal line against this account to
	// carry an assignment for each dimension marked required.
	RequiresDimensions bool
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Dimension is an analytical axis such as cost center or project.
type Dimension struct {
	ID                int64
	Code              string
	Name              string
	Scope             string
	Required          bool
	SupportsHierarchy bool
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// DimensionValue is one permitted value of a dimension.
type DimensionValue struct {
	ID          int64
	DimensionID int64
	Code        string
	Name        string
	ParentID    *int64
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AccountMapping resolves a (module, role) pair to a default ledger account.
type AccountMapping struct {
	Module    SourceModule
	Role      AccountRole
	AccountID int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Entry is an accounting transaction header grouping balanced lines.
type Entry struct {
	ID           int64
	Number       int64
	Date         time.Time
	SourceModule SourceModule
	SourceRef    uuid.UUID
	Reference    string
	Memo         string
	BranchID     *int64
	TotalDebit   decimal.Decimal
	TotalCredit  decimal.Decimal
	CreatedBy    int64
	PostedAt     time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Lines        []Line
}

// Line is one debit or credit row of an entry. Role records which leg of the
// originating business transaction the line served; reconciliation anchors
// on it when matching ledger amounts back to document totals.
type Line struct {
	ID          int64
	EntryID     int64
	AccountID   int64
	Role        AccountRole
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
	Dimensions  []DimensionAssignment
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Amount returns the non-zero side of the line.
func (l Line) Amount() decimal.Decimal {
	if l.Debit.IsPositive() {
		return l.Debit
	}
	return l.Credit
}

// DimensionAssignment tags a line with a dimension value, optionally split
// by percentage across several values of the same dimension.
type DimensionAssignment struct {
	ID               int64
	LineID           int64
	DimensionValueID int64
	AllocationPct    decimal.Decimal
	IsPrimary        bool
}

// AssignmentInput describes one dimension tag for a line being posted.
type AssignmentInput struct {
	DimensionValueID int64
	AllocationPct    decimal.Decimal
	IsPrimary        bool
}

// LineInput describes a journal line for a posting request.
type LineInput struct {
	AccountID   int64
	Role        AccountRole
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
	Dimensions  []AssignmentInput
}

// PostingInput groups the fields required to create a journal entry.
type PostingInput struct {
	Date         time.Time
	SourceModule SourceModule
	SourceRef    uuid.UUID
	Reference    string
	Memo         string
	BranchID     *int64
	CreatedBy    int64
	Lines        []LineInput
}

// ReverseInput wraps parameters for reversal.
type ReverseInput struct {
	EntryID int64
	ActorID int64
	Memo    string
	Date    *time.Time
}

var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = errors.New("ledger: journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("ledger: journal requires at least two lines")
	// ErrAllocationMismatch indicates dimension splits not summing to 100%.
	ErrAllocationMismatch = errors.New("ledger: dimension allocations must sum to 100%")
	// ErrEntryNotFound indicates missing entry.
	ErrEntryNotFound = errors.New("ledger: journal entry not found")
	// ErrSourceAlreadyLinked indicates idempotency conflict.
	ErrSourceAlreadyLinked = errors.New("ledger: source already linked")
	// ErrSourceConflict indicates the source link row already exists.
	ErrSourceConflict = errors.New("ledger: source link conflict")
	// ErrAccountNotFound indicates missing CoA node.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrAccountInUse indicates the account is referenced by journal lines.
	ErrAccountInUse = errors.New("ledger: account referenced by journal lines")
	// ErrDimensionNotFound indicates missing dimension or value.
	ErrDimensionNotFound = errors.New("ledger: dimension value not found")
	// ErrDimensionInactive indicates the dimension or value is deactivated.
	ErrDimensionInactive = errors.New("ledger: dimension value inactive")
	// ErrDimensionValueInUse indicates the value is referenced by assignments.
	ErrDimensionValueInUse = errors.New("ledger: dimension value referenced by assignments")
	// ErrDimensionMismatch indicates parent from another dimension.
	ErrDimensionMismatch = errors.New("ledger: parent belongs to a different dimension")
	// ErrHierarchyCycle indicates a parent assignment would create a cycle.
	ErrHierarchyCycle = errors.New("ledger: hierarchy cycle detected")
	// ErrCodeTaken indicates a duplicate code.
	ErrCodeTaken = errors.New("ledger: code already in use")
	// ErrMappingNotFound indicates account mapping missing.
	ErrMappingNotFound = errors.New("ledger: account mapping not found")
)

// Validate ensures posting input meets the ledger invariants: at least two
// lines, each line strictly debit xor credit, debits equal to credits within
// Tolerance, and per-line dimension allocations summing to 100%.
func (in PostingInput) Validate() error {
	if !in.SourceModule.Valid() {
		return fmt.Errorf("ledger: unknown source module %q", in.SourceModule)
	}
	if in.SourceRef == uuid.Nil {
		return errors.New("ledger: source ref required")
	}
	if in.Date.IsZero() {
		return errors.New("ledger: date required")
	}
	if len(in.Lines) < 2 {
		return ErrTooFewLines
	}
	debit, credit := decimal.Zero, decimal.Zero
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return fmt.Errorf("ledger: line %d missing account", idx)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("ledger: line %d negative amount", idx)
		}
		if line.Debit.IsPositive() == line.Credit.IsPositive() {
			return fmt.Errorf("ledger: line %d must be exactly one of debit or credit", idx)
		}
		if err := validateAllocations(idx, line.Dimensions); err != nil {
			return err
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if debit.Sub(credit).Abs().GreaterThan(Tolerance) {
		return fmt.Errorf("%w: debit %s credit %s", ErrUnbalanced, debit, credit)
	}
	return nil
}

func validateAllocations(idx int, dims []AssignmentInput) error {
	if len(dims) == 0 {
		return nil
	}
	sum := decimal.Zero
	for _, d := range dims {
		if d.DimensionValueID == 0 {
			return fmt.Errorf("ledger: line %d assignment missing dimension value", idx)
		}
		if d.AllocationPct.IsNegative() {
			return fmt.Errorf("ledger: line %d negative allocation", idx)
		}
		sum = sum.Add(d.AllocationPct)
	}
	if sum.Sub(HundredPercent).Abs().GreaterThan(Tolerance) {
		return fmt.Errorf("%w: line %d sums to %s%%", ErrAllocationMismatch, idx, sum)
	}
	return nil
}
