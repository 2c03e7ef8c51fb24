package posting

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/documents"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
)

// Leg is one side of the journal entry derived from a source document. The
// account is resolved later, from the document's overrides or the module
// defaults, so the builder stays pure.
type Leg struct {
	Role        ledger.AccountRole
	Side        ledger.Side
	Amount      decimal.Decimal
	Assignments []ledger.AssignmentInput
}

// BuildResult is the outcome of translating one document into legs.
type BuildResult struct {
	Legs []Leg
	// HasDimensionVariance is set when a sales invoice books revenue and
	// cost of sales against different primary dimensions.
	HasDimensionVariance bool
}

// BuildLegs derives the journal legs for a document. It is deterministic and
// touches no storage; amounts come straight from the document and balance
// checks happen when the entry is validated.
func BuildLegs(doc documents.Document) (BuildResult, error) {
	if !doc.Total.IsPositive() && doc.Kind != documents.KindVATSettlement {
		return BuildResult{}, &PostingFailedError{Err: fmt.Errorf("document %d has non-positive total", doc.ID)}
	}

	docDims, err := documentAssignments(doc)
	if err != nil {
		return BuildResult{}, err
	}

	var res BuildResult
	switch doc.Kind {
	case documents.KindSalesInvoice:
		res, err = buildSalesLegs(doc, docDims)
	case documents.KindPurchaseInvoice:
		res, err = buildPurchaseLegs(doc, docDims)
	case documents.KindProductionOrder:
		res, err = buildProductionLegs(doc, docDims)
	case documents.KindBankTransaction:
		res, err = buildBankLegs(doc, docDims)
	case documents.KindVATSettlement:
		res, err = buildSettlementLegs(doc, docDims)
	default:
		return BuildResult{}, &PostingFailedError{Err: fmt.Errorf("unknown document kind %q", doc.Kind)}
	}
	if err != nil {
		return BuildResult{}, err
	}
	res.Legs = balanceLegs(res.Legs)
	return res, nil
}

// balanceLegs evens out a sub-tolerance rounding gap between the two sides by
// adding the residual cent to the last leg of the short side, so the stored
// entry always balances exactly. Gaps beyond the tolerance are left alone and
// rejected by entry validation.
func balanceLegs(legs []Leg) []Leg {
	debits, credits := decimal.Zero, decimal.Zero
	for _, l := range legs {
		if l.Side == ledger.SideDebit {
			debits = debits.Add(l.Amount)
		} else {
			credits = credits.Add(l.Amount)
		}
	}
	residual := debits.Sub(credits)
	if residual.IsZero() || residual.Abs().GreaterThan(ledger.Tolerance) {
		return legs
	}
	short := ledger.SideCredit
	if residual.IsNegative() {
		short = ledger.SideDebit
	}
	for i := len(legs) - 1; i >= 0; i-- {
		if legs[i].Side == short {
			legs[i].Amount = legs[i].Amount.Add(residual.Abs())
			break
		}
	}
	return legs
}

func buildSalesLegs(doc documents.Document, dims []ledger.AssignmentInput) (BuildResult, error) {
	legs := []Leg{
		{Role: ledger.RoleAccountsReceivable, Side: ledger.SideDebit, Amount: doc.Total, Assignments: dims},
		{Role: ledger.RoleRevenue, Side: ledger.SideCredit, Amount: doc.Net, Assignments: dims},
	}
	if doc.Tax.IsPositive() {
		legs = append(legs, Leg{Role: ledger.RoleOutputVAT, Side: ledger.SideCredit, Amount: doc.Tax, Assignments: dims})
	}

	res := BuildResult{Legs: legs}
	if doc.CostOrigin != nil && doc.CostOrigin.Amount.IsPositive() {
		costDims := originAssignments(*doc.CostOrigin)
		res.Legs = append(res.Legs,
			Leg{Role: ledger.RoleCOGS, Side: ledger.SideDebit, Amount: doc.CostOrigin.Amount, Assignments: costDims},
			Leg{Role: ledger.RoleInventory, Side: ledger.SideCredit, Amount: doc.CostOrigin.Amount, Assignments: costDims},
		)
		res.HasDimensionVariance = doc.CostOrigin.PrimaryDimension() != doc.PrimaryDimension()
	}
	return res, nil
}

func buildPurchaseLegs(doc documents.Document, dims []ledger.AssignmentInput) (BuildResult, error) {
	legs := []Leg{
		{Role: ledger.RoleExpense, Side: ledger.SideDebit, Amount: doc.Net, Assignments: dims},
	}
	if doc.Tax.IsPositive() {
		legs = append(legs, Leg{Role: ledger.RoleInputVAT, Side: ledger.SideDebit, Amount: doc.Tax, Assignments: dims})
	}
	legs = append(legs, Leg{Role: ledger.RoleAccountsPayable, Side: ledger.SideCredit, Amount: doc.Total, Assignments: dims})
	return BuildResult{Legs: legs}, nil
}

func buildProductionLegs(doc documents.Document, dims []ledger.AssignmentInput) (BuildResult, error) {
	material := doc.Total.Sub(doc.Labor)
	legs := make([]Leg, 0, 3)
	if material.IsPositive() {
		legs = append(legs, Leg{Role: ledger.RoleWIP, Side: ledger.SideDebit, Amount: material, Assignments: dims})
	}
	if doc.Labor.IsPositive() {
		legs = append(legs, Leg{Role: ledger.RoleLabor, Side: ledger.SideDebit, Amount: doc.Labor, Assignments: dims})
	}
	legs = append(legs, Leg{Role: ledger.RoleAccountsPayable, Side: ledger.SideCredit, Amount: doc.Total, Assignments: dims})
	return BuildResult{Legs: legs}, nil
}

func buildBankLegs(doc documents.Document, dims []ledger.AssignmentInput) (BuildResult, error) {
	switch doc.Direction {
	case documents.DirectionDeposit:
		return BuildResult{Legs: []Leg{
			{Role: ledger.RoleBank, Side: ledger.SideDebit, Amount: doc.Total, Assignments: dims},
			{Role: ledger.RoleAccountsReceivable, Side: ledger.SideCredit, Amount: doc.Total, Assignments: dims},
		}}, nil
	case documents.DirectionWithdrawal:
		return BuildResult{Legs: []Leg{
			{Role: ledger.RoleExpense, Side: ledger.SideDebit, Amount: doc.Total, Assignments: dims},
			{Role: ledger.RoleBank, Side: ledger.SideCredit, Amount: doc.Total, Assignments: dims},
		}}, nil
	default:
		return BuildResult{}, &PostingFailedError{Err: fmt.Errorf("bank transaction %d has no direction", doc.ID)}
	}
}

// buildSettlementLegs books the VAT position against the bank. A positive
// net (output over input) is a payment, a negative net a refund.
func buildSettlementLegs(doc documents.Document, dims []ledger.AssignmentInput) (BuildResult, error) {
	net := doc.OutputVAT.Sub(doc.InputVAT)
	if net.IsZero() {
		return BuildResult{}, &PostingFailedError{Err: fmt.Errorf("vat settlement %d nets to zero", doc.ID)}
	}
	if net.IsPositive() {
		return BuildResult{Legs: []Leg{
			{Role: ledger.RoleVATPayable, Side: ledger.SideDebit, Amount: net, Assignments: dims},
			{Role: ledger.RoleBank, Side: ledger.SideCredit, Amount: net, Assignments: dims},
		}}, nil
	}
	refund := net.Neg()
	return BuildResult{Legs: []Leg{
		{Role: ledger.RoleBank, Side: ledger.SideDebit, Amount: refund, Assignments: dims},
		{Role: ledger.RoleVATReceivable, Side: ledger.SideCredit, Amount: refund, Assignments: dims},
	}}, nil
}

// documentAssignments translates a document's dimension fields into line
// assignments. Splits replace the single cost center; any sub-tolerance
// rounding gap in the percentages is absorbed by the last split.
func documentAssignments(doc documents.Document) ([]ledger.AssignmentInput, error) {
	var out []ledger.AssignmentInput

	if len(doc.Splits) > 0 {
		splits, err := normalizeSplits(doc.Splits)
		if err != nil {
			return nil, err
		}
		for i, s := range splits {
			out = append(out, ledger.AssignmentInput{
				DimensionValueID: s.DimensionValueID,
				AllocationPct:    s.Pct,
				IsPrimary:        i == 0,
			})
		}
	} else if doc.CostCenterID != nil {
		out = append(out, ledger.AssignmentInput{
			DimensionValueID: *doc.CostCenterID,
			AllocationPct:    ledger.HundredPercent,
			IsPrimary:        true,
		})
	}

	if doc.ProjectID != nil {
		out = append(out, ledger.AssignmentInput{
			DimensionValueID: *doc.ProjectID,
			AllocationPct:    ledger.HundredPercent,
			IsPrimary:        len(out) == 0,
		})
	}
	if doc.DepartmentID != nil {
		out = append(out, ledger.AssignmentInput{
			DimensionValueID: *doc.DepartmentID,
			AllocationPct:    ledger.HundredPercent,
			IsPrimary:        len(out) == 0,
		})
	}
	return out, nil
}

func originAssignments(o documents.CostOrigin) []ledger.AssignmentInput {
	var out []ledger.AssignmentInput
	for _, id := range []*int64{o.CostCenterID, o.ProjectID, o.DepartmentID} {
		if id == nil {
			continue
		}
		out = append(out, ledger.AssignmentInput{
			DimensionValueID: *id,
			AllocationPct:    ledger.HundredPercent,
			IsPrimary:        len(out) == 0,
		})
	}
	return out
}

func normalizeSplits(splits []documents.Split) ([]documents.Split, error) {
	sum := decimal.Zero
	for _, s := range splits {
		if !s.Pct.IsPositive() {
			return nil, ledger.ErrAllocationMismatch
		}
		sum = sum.Add(s.Pct)
	}
	gap := ledger.HundredPercent.Sub(sum)
	if gap.Abs().GreaterThan(ledger.Tolerance) {
		return nil, ledger.ErrAllocationMismatch
	}
	if gap.IsZero() {
		return splits, nil
	}
	out := make([]documents.Split, len(splits))
	copy(out, splits)
	last := &out[len(out)-1]
	last.Pct = last.Pct.Add(gap)
	if !last.Pct.IsPositive() {
		return nil, ledger.ErrAllocationMismatch
	}
	return out, nil
}
