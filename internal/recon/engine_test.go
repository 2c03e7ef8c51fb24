package recon

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/documents"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

var (
	testPeriod = shared.Period{Year: 2026, Month: 3}
	testNow    = time.Date(2026, 4, 1, 2, 0, 0, 0, time.UTC)
)

func TestComputeReconciliationMatched(t *testing.T) {
	source := []documents.SourceTotal{
		{DimensionValueID: 11, Total: dec("1250.00"), Count: 2},
		{DimensionValueID: 22, Total: dec("500.00"), Count: 1},
	}
	gl := []GLTotal{
		{DimensionValueID: 11, Total: dec("1250.00"), Entries: 2},
		{DimensionValueID: 22, Total: dec("500.00"), Entries: 1},
	}
	report := ComputeReconciliation(ledger.ModuleSales, testPeriod, source, gl, ledger.Tolerance, testNow)
	if !report.Matched {
		t.Fatalf("expected matched report: %+v", report)
	}
	if len(report.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(report.Lines))
	}
	if report.AnchorRole != ledger.RoleAccountsReceivable {
		t.Fatalf("sales must anchor on AR, got %s", report.AnchorRole)
	}
	if !report.Variance.IsZero() {
		t.Fatalf("expected zero variance, got %s", report.Variance)
	}
}

func TestComputeReconciliationWithinTolerance(t *testing.T) {
	source := []documents.SourceTotal{{DimensionValueID: 11, Total: dec("100.00"), Count: 1}}
	gl := []GLTotal{{DimensionValueID: 11, Total: dec("100.01"), Entries: 1}}
	report := ComputeReconciliation(ledger.ModuleSales, testPeriod, source, gl, ledger.Tolerance, testNow)
	if report.Lines[0].Status != LineMatched {
		t.Fatalf("one-cent gap must match, got %s", report.Lines[0].Status)
	}
}

func TestComputeReconciliationMismatch(t *testing.T) {
	source := []documents.SourceTotal{{DimensionValueID: 11, Total: dec("100.00"), Count: 1}}
	gl := []GLTotal{{DimensionValueID: 11, Total: dec("90.00"), Entries: 1}}
	report := ComputeReconciliation(ledger.ModulePurchases, testPeriod, source, gl, ledger.Tolerance, testNow)
	if report.Matched {
		t.Fatalf("expected mismatch")
	}
	line := report.Lines[0]
	if line.Status != LineMismatch || !line.Variance.Equal(dec("10.00")) {
		t.Fatalf("unexpected line: %+v", line)
	}
}

func TestComputeReconciliationMissingSides(t *testing.T) {
	source := []documents.SourceTotal{{DimensionValueID: 11, Total: dec("100.00"), Count: 1}}
	gl := []GLTotal{{DimensionValueID: 22, Total: dec("80.00"), Entries: 1}}
	report := ComputeReconciliation(ledger.ModuleBanking, testPeriod, source, gl, ledger.Tolerance, testNow)
	if len(report.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(report.Lines))
	}
	if report.Lines[0].Status != LineMissingGL {
		t.Fatalf("dimension 11 must be MISSING_GL, got %s", report.Lines[0].Status)
	}
	if report.Lines[1].Status != LineMissingSource {
		t.Fatalf("dimension 22 must be MISSING_SOURCE, got %s", report.Lines[1].Status)
	}
}

func TestComputeReconciliationEmpty(t *testing.T) {
	report := ComputeReconciliation(ledger.ModuleVAT, testPeriod, nil, nil, ledger.Tolerance, testNow)
	if !report.Matched || len(report.Lines) != 0 {
		t.Fatalf("empty period must report matched with no lines: %+v", report)
	}
}

func TestComputeMargins(t *testing.T) {
	pairs := []documents.LinkedPair{
		{InvoiceID: uuid.New(), Revenue: dec("1000.00"), COGS: dec("600.00"), RevenueDimension: 11, CostDimension: 11},
		{InvoiceID: uuid.New(), Revenue: dec("500.00"), COGS: dec("200.00"), RevenueDimension: 11, CostDimension: 11},
		{InvoiceID: uuid.New(), Revenue: dec("400.00"), COGS: dec("150.00"), RevenueDimension: 22, CostDimension: 33},
	}
	rows := ComputeMargins(pairs)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	first := rows[0]
	if first.DimensionValueID != 11 || !first.Margin.Equal(dec("700.00")) || first.Invoices != 2 {
		t.Fatalf("unexpected first row: %+v", first)
	}
	if !first.MarginPct.Equal(dec("46.67")) {
		t.Fatalf("expected 46.67%%, got %s", first.MarginPct)
	}
	if first.DimensionMismatch {
		t.Fatalf("aligned dimensions must not be flagged")
	}
	if !rows[1].DimensionMismatch {
		t.Fatalf("cross-dimension pair must be flagged")
	}
}

func TestComputeMarginsZeroRevenue(t *testing.T) {
	rows := ComputeMargins([]documents.LinkedPair{
		{InvoiceID: uuid.New(), Revenue: decimal.Zero, COGS: dec("50.00"), RevenueDimension: 1, CostDimension: 1},
	})
	if !rows[0].MarginPct.IsZero() {
		t.Fatalf("zero revenue must yield zero margin pct, got %s", rows[0].MarginPct)
	}
}

func TestFilterReport(t *testing.T) {
	source := []documents.SourceTotal{
		{DimensionValueID: 11, Total: dec("1250.00"), Count: 2},
		{DimensionValueID: 22, Total: dec("500.00"), Count: 1},
	}
	gl := []GLTotal{
		{DimensionValueID: 11, Total: dec("1250.00"), Entries: 2},
		{DimensionValueID: 22, Total: dec("490.00"), Entries: 1},
	}
	full := ComputeReconciliation(ledger.ModuleSales, testPeriod, source, gl, ledger.Tolerance, testNow)
	if full.Matched {
		t.Fatalf("fixture must carry a mismatch: %+v", full)
	}

	filtered := FilterReport(full, []int64{11})
	if len(filtered.Lines) != 1 || filtered.Lines[0].DimensionValueID != 11 {
		t.Fatalf("expected only dimension 11, got %+v", filtered.Lines)
	}
	if !filtered.Matched {
		t.Fatalf("matched line alone must yield a matched report")
	}
	if !filtered.SourceTotal.Equal(dec("1250.00")) || !filtered.Variance.IsZero() {
		t.Fatalf("totals must cover surviving lines only: %+v", filtered)
	}

	if got := FilterReport(full, nil); len(got.Lines) != 2 {
		t.Fatalf("empty filter must return the full report")
	}
}
