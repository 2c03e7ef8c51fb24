package posting

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/documents"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func i64(v int64) *int64 { return &v }

func TestBuildLegsSalesInvoice(t *testing.T) {
	doc := documents.Document{
		Kind:         documents.KindSalesInvoice,
		Total:        dec("1250.00"),
		Net:          dec("1000.00"),
		Tax:          dec("250.00"),
		CostCenterID: i64(11),
	}
	res, err := BuildLegs(doc)
	if err != nil {
		t.Fatalf("BuildLegs: %v", err)
	}
	if len(res.Legs) != 3 {
		t.Fatalf("expected 3 legs, got %d", len(res.Legs))
	}
	ar := res.Legs[0]
	if ar.Role != ledger.RoleAccountsReceivable || ar.Side != ledger.SideDebit || !ar.Amount.Equal(dec("1250.00")) {
		t.Fatalf("unexpected AR leg: %+v", ar)
	}
	if res.Legs[1].Role != ledger.RoleRevenue || !res.Legs[1].Amount.Equal(dec("1000.00")) {
		t.Fatalf("unexpected revenue leg: %+v", res.Legs[1])
	}
	if res.Legs[2].Role != ledger.RoleOutputVAT || res.Legs[2].Side != ledger.SideCredit {
		t.Fatalf("unexpected VAT leg: %+v", res.Legs[2])
	}
	if !ar.Assignments[0].IsPrimary || ar.Assignments[0].DimensionValueID != 11 {
		t.Fatalf("unexpected assignment: %+v", ar.Assignments)
	}
}

func TestBuildLegsSalesWithoutTaxOmitsVATLeg(t *testing.T) {
	doc := documents.Document{
		Kind:  documents.KindSalesInvoice,
		Total: dec("500.00"),
		Net:   dec("500.00"),
	}
	res, err := BuildLegs(doc)
	if err != nil {
		t.Fatalf("BuildLegs: %v", err)
	}
	if len(res.Legs) != 2 {
		t.Fatalf("expected 2 legs, got %d", len(res.Legs))
	}
}

func TestBuildLegsSalesWithCostOrigin(t *testing.T) {
	doc := documents.Document{
		Kind:         documents.KindSalesInvoice,
		Total:        dec("1250.00"),
		Net:          dec("1000.00"),
		Tax:          dec("250.00"),
		CostCenterID: i64(11),
		CostOrigin: &documents.CostOrigin{
			Amount:       dec("600.00"),
			CostCenterID: i64(22),
		},
	}
	res, err := BuildLegs(doc)
	if err != nil {
		t.Fatalf("BuildLegs: %v", err)
	}
	if len(res.Legs) != 5 {
		t.Fatalf("expected 5 legs, got %d", len(res.Legs))
	}
	cogs, inv := res.Legs[3], res.Legs[4]
	if cogs.Role != ledger.RoleCOGS || cogs.Side != ledger.SideDebit || !cogs.Amount.Equal(dec("600.00")) {
		t.Fatalf("unexpected COGS leg: %+v", cogs)
	}
	if inv.Role != ledger.RoleInventory || inv.Side != ledger.SideCredit {
		t.Fatalf("unexpected inventory leg: %+v", inv)
	}
	if cogs.Assignments[0].DimensionValueID != 22 {
		t.Fatalf("COGS leg must carry the cost origin dimension, got %+v", cogs.Assignments)
	}
	if !res.HasDimensionVariance {
		t.Fatalf("expected dimension variance when revenue and cost dimensions differ")
	}
}

func TestBuildLegsSalesSameDimensionNoVariance(t *testing.T) {
	doc := documents.Document{
		Kind:         documents.KindSalesInvoice,
		Total:        dec("100.00"),
		Net:          dec("100.00"),
		CostCenterID: i64(11),
		CostOrigin: &documents.CostOrigin{
			Amount:       dec("40.00"),
			CostCenterID: i64(11),
		},
	}
	res, err := BuildLegs(doc)
	if err != nil {
		t.Fatalf("BuildLegs: %v", err)
	}
	if res.HasDimensionVariance {
		t.Fatalf("did not expect dimension variance")
	}
}

func TestBuildLegsPurchaseInvoice(t *testing.T) {
	doc := documents.Document{
		Kind:      documents.KindPurchaseInvoice,
		Total:     dec("236.00"),
		Net:       dec("200.00"),
		Tax:       dec("36.00"),
		ProjectID: i64(7),
	}
	res, err := BuildLegs(doc)
	if err != nil {
		t.Fatalf("BuildLegs: %v", err)
	}
	if len(res.Legs) != 3 {
		t.Fatalf("expected 3 legs, got %d", len(res.Legs))
	}
	if res.Legs[0].Role != ledger.RoleExpense || res.Legs[0].Side != ledger.SideDebit {
		t.Fatalf("unexpected expense leg: %+v", res.Legs[0])
	}
	if res.Legs[1].Role != ledger.RoleInputVAT || res.Legs[1].Side != ledger.SideDebit {
		t.Fatalf("unexpected input VAT leg: %+v", res.Legs[1])
	}
	ap := res.Legs[2]
	if ap.Role != ledger.RoleAccountsPayable || ap.Side != ledger.SideCredit || !ap.Amount.Equal(dec("236.00")) {
		t.Fatalf("unexpected AP leg: %+v", ap)
	}
}

func TestBuildLegsProductionOrder(t *testing.T) {
	doc := documents.Document{
		Kind:         documents.KindProductionOrder,
		Total:        dec("900.00"),
		Labor:        dec("300.00"),
		CostCenterID: i64(5),
	}
	res, err := BuildLegs(doc)
	if err != nil {
		t.Fatalf("BuildLegs: %v", err)
	}
	if len(res.Legs) != 3 {
		t.Fatalf("expected 3 legs, got %d", len(res.Legs))
	}
	if res.Legs[0].Role != ledger.RoleWIP || !res.Legs[0].Amount.Equal(dec("600.00")) {
		t.Fatalf("unexpected WIP leg: %+v", res.Legs[0])
	}
	if res.Legs[1].Role != ledger.RoleLabor || !res.Legs[1].Amount.Equal(dec("300.00")) {
		t.Fatalf("unexpected labor leg: %+v", res.Legs[1])
	}
	if res.Legs[2].Role != ledger.RoleAccountsPayable || !res.Legs[2].Amount.Equal(dec("900.00")) {
		t.Fatalf("unexpected AP leg: %+v", res.Legs[2])
	}
}

func TestBuildLegsBankDirections(t *testing.T) {
	deposit := documents.Document{
		Kind:      documents.KindBankTransaction,
		Direction: documents.DirectionDeposit,
		Total:     dec("150.00"),
	}
	res, err := BuildLegs(deposit)
	if err != nil {
		t.Fatalf("BuildLegs deposit: %v", err)
	}
	if res.Legs[0].Role != ledger.RoleBank || res.Legs[0].Side != ledger.SideDebit {
		t.Fatalf("deposit must debit bank: %+v", res.Legs[0])
	}
	if res.Legs[1].Role != ledger.RoleAccountsReceivable || res.Legs[1].Side != ledger.SideCredit {
		t.Fatalf("deposit must credit AR: %+v", res.Legs[1])
	}

	withdrawal := deposit
	withdrawal.Direction = documents.DirectionWithdrawal
	res, err = BuildLegs(withdrawal)
	if err != nil {
		t.Fatalf("BuildLegs withdrawal: %v", err)
	}
	if res.Legs[0].Role != ledger.RoleExpense || res.Legs[0].Side != ledger.SideDebit {
		t.Fatalf("withdrawal must debit expense: %+v", res.Legs[0])
	}
	if res.Legs[1].Role != ledger.RoleBank || res.Legs[1].Side != ledger.SideCredit {
		t.Fatalf("withdrawal must credit bank: %+v", res.Legs[1])
	}
}

func TestBuildLegsVATSettlement(t *testing.T) {
	payment := documents.Document{
		Kind:      documents.KindVATSettlement,
		OutputVAT: dec("500.00"),
		InputVAT:  dec("320.00"),
		Total:     dec("180.00"),
	}
	res, err := BuildLegs(payment)
	if err != nil {
		t.Fatalf("BuildLegs payment: %v", err)
	}
	if res.Legs[0].Role != ledger.RoleVATPayable || !res.Legs[0].Amount.Equal(dec("180.00")) {
		t.Fatalf("unexpected payable leg: %+v", res.Legs[0])
	}
	if res.Legs[1].Role != ledger.RoleBank || res.Legs[1].Side != ledger.SideCredit {
		t.Fatalf("payment must credit bank: %+v", res.Legs[1])
	}

	refund := payment
	refund.OutputVAT = dec("320.00")
	refund.InputVAT = dec("500.00")
	res, err = BuildLegs(refund)
	if err != nil {
		t.Fatalf("BuildLegs refund: %v", err)
	}
	if res.Legs[0].Role != ledger.RoleBank || res.Legs[0].Side != ledger.SideDebit || !res.Legs[0].Amount.Equal(dec("180.00")) {
		t.Fatalf("refund must debit bank: %+v", res.Legs[0])
	}
	if res.Legs[1].Role != ledger.RoleVATReceivable {
		t.Fatalf("unexpected receivable leg: %+v", res.Legs[1])
	}
}

func TestBuildLegsAbsorbsResidualCent(t *testing.T) {
	doc := documents.Document{
		Kind:  documents.KindSalesInvoice,
		Total: dec("1000.00"),
		Net:   dec("877.18"),
		Tax:   dec("122.81"),
	}
	res, err := BuildLegs(doc)
	if err != nil {
		t.Fatalf("BuildLegs: %v", err)
	}
	vat := res.Legs[2]
	if !vat.Amount.Equal(dec("122.82")) {
		t.Fatalf("last credit leg must absorb the residual cent, got %s", vat.Amount)
	}
	debits, credits := decimal.Zero, decimal.Zero
	for _, l := range res.Legs {
		if l.Side == ledger.SideDebit {
			debits = debits.Add(l.Amount)
		} else {
			credits = credits.Add(l.Amount)
		}
	}
	if !debits.Equal(credits) {
		t.Fatalf("legs must balance exactly, debits %s credits %s", debits, credits)
	}
}

func TestBuildLegsResidualOnDebitSide(t *testing.T) {
	doc := documents.Document{
		Kind:  documents.KindPurchaseInvoice,
		Total: dec("236.00"),
		Net:   dec("199.99"),
		Tax:   dec("36.00"),
	}
	res, err := BuildLegs(doc)
	if err != nil {
		t.Fatalf("BuildLegs: %v", err)
	}
	if !res.Legs[1].Amount.Equal(dec("36.01")) {
		t.Fatalf("last debit leg must absorb the residual cent, got %s", res.Legs[1].Amount)
	}
	if !res.Legs[2].Amount.Equal(dec("236.00")) {
		t.Fatalf("AP leg must stay at the document total, got %s", res.Legs[2].Amount)
	}
}

func TestBuildLegsLeavesLargeGapForValidation(t *testing.T) {
	doc := documents.Document{
		Kind:  documents.KindSalesInvoice,
		Total: dec("1000.00"),
		Net:   dec("900.00"),
		Tax:   dec("50.00"),
	}
	res, err := BuildLegs(doc)
	if err != nil {
		t.Fatalf("BuildLegs: %v", err)
	}
	if !res.Legs[2].Amount.Equal(dec("50.00")) {
		t.Fatalf("gaps beyond a cent must not be patched, got %s", res.Legs[2].Amount)
	}
}

func TestBuildLegsSplitsAbsorbRoundingGap(t *testing.T) {
	doc := documents.Document{
		Kind:  documents.KindPurchaseInvoice,
		Total: dec("100.00"),
		Net:   dec("100.00"),
		Splits: []documents.Split{
			{DimensionValueID: 1, Pct: dec("33.33")},
			{DimensionValueID: 2, Pct: dec("33.33")},
			{DimensionValueID: 3, Pct: dec("33.33")},
		},
	}
	res, err := BuildLegs(doc)
	if err != nil {
		t.Fatalf("BuildLegs: %v", err)
	}
	dims := res.Legs[0].Assignments
	if len(dims) != 3 {
		t.Fatalf("expected 3 assignments, got %d", len(dims))
	}
	if !dims[2].AllocationPct.Equal(dec("33.34")) {
		t.Fatalf("last split must absorb the gap, got %s", dims[2].AllocationPct)
	}
	if !dims[0].IsPrimary || dims[1].IsPrimary {
		t.Fatalf("first split must be primary: %+v", dims)
	}
}

func TestBuildLegsSplitsBeyondToleranceRejected(t *testing.T) {
	doc := documents.Document{
		Kind:  documents.KindPurchaseInvoice,
		Total: dec("100.00"),
		Net:   dec("100.00"),
		Splits: []documents.Split{
			{DimensionValueID: 1, Pct: dec("60.00")},
			{DimensionValueID: 2, Pct: dec("30.00")},
		},
	}
	if _, err := BuildLegs(doc); !errors.Is(err, ledger.ErrAllocationMismatch) {
		t.Fatalf("expected allocation mismatch, got %v", err)
	}
}
