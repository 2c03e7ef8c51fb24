package recon

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/documents"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// ComputeReconciliation compares document totals against ledger totals per
// dimension value. Both inputs are already aggregated; the function only
// joins, classifies and sums.
func ComputeReconciliation(module ledger.SourceModule, period shared.Period, source []documents.SourceTotal, gl []GLTotal, tolerance decimal.Decimal, at time.Time) Report {
	sourceByDim := make(map[int64]documents.SourceTotal, len(source))
	for _, s := range source {
		sourceByDim[s.DimensionValueID] = s
	}
	glByDim := make(map[int64]GLTotal, len(gl))
	for _, g := range gl {
		glByDim[g.DimensionValueID] = g
	}

	dims := make([]int64, 0, len(sourceByDim)+len(glByDim))
	for id := range sourceByDim {
		dims = append(dims, id)
	}
	for id := range glByDim {
		if _, ok := sourceByDim[id]; !ok {
			dims = append(dims, id)
		}
	}
	sort.Slice(dims, func(i, j int) bool { return dims[i] < dims[j] })

	report := Report{
		Module:      module,
		Period:      period.String(),
		AnchorRole:  AnchorRole(module),
		Matched:     true,
		GeneratedAt: at,
	}
	for _, id := range dims {
		s, hasSource := sourceByDim[id]
		g, hasGL := glByDim[id]
		line := DimensionLine{
			DimensionValueID: id,
			SourceTotal:      s.Total,
			GLTotal:          g.Total,
			Variance:         s.Total.Sub(g.Total),
			Documents:        s.Count,
			Entries:          g.Entries,
		}
		switch {
		case hasSource && !hasGL:
			line.Status = LineMissingGL
		case hasGL && !hasSource:
			line.Status = LineMissingSource
		case line.Variance.Abs().GreaterThan(tolerance):
			line.Status = LineMismatch
		default:
			line.Status = LineMatched
		}
		if line.Status != LineMatched {
			report.Matched = false
		}
		report.SourceTotal = report.SourceTotal.Add(line.SourceTotal)
		report.GLTotal = report.GLTotal.Add(line.GLTotal)
		report.Lines = append(report.Lines, line)
	}
	report.Variance = report.SourceTotal.Sub(report.GLTotal)
	return report
}

// FilterReport narrows a report to the requested dimension values and
// recomputes the totals over the surviving lines. An empty filter returns
// the report unchanged.
func FilterReport(r Report, dims []int64) Report {
	if len(dims) == 0 {
		return r
	}
	keep := make(map[int64]bool, len(dims))
	for _, id := range dims {
		keep[id] = true
	}
	out := Report{
		Module:      r.Module,
		Period:      r.Period,
		AnchorRole:  r.AnchorRole,
		Matched:     true,
		GeneratedAt: r.GeneratedAt,
	}
	for _, line := range r.Lines {
		if !keep[line.DimensionValueID] {
			continue
		}
		if line.Status != LineMatched {
			out.Matched = false
		}
		out.SourceTotal = out.SourceTotal.Add(line.SourceTotal)
		out.GLTotal = out.GLTotal.Add(line.GLTotal)
		out.Lines = append(out.Lines, line)
	}
	out.Variance = out.SourceTotal.Sub(out.GLTotal)
	return out
}

// ComputeMargins aggregates gross margin per revenue dimension from posted
// invoice/production-order pairs. A row is flagged when any of its invoices
// booked cost against a different dimension than revenue.
func ComputeMargins(pairs []documents.LinkedPair) []MarginRow {
	byDim := make(map[int64]*MarginRow)
	for _, pair := range pairs {
		row, ok := byDim[pair.RevenueDimension]
		if !ok {
			row = &MarginRow{DimensionValueID: pair.RevenueDimension}
			byDim[pair.RevenueDimension] = row
		}
		row.Revenue = row.Revenue.Add(pair.Revenue)
		row.COGS = row.COGS.Add(pair.COGS)
		row.Invoices++
		if pair.CostDimension != pair.RevenueDimension {
			row.DimensionMismatch = true
		}
	}

	out := make([]MarginRow, 0, len(byDim))
	for _, row := range byDim {
		row.Margin = row.Revenue.Sub(row.COGS)
		if row.Revenue.IsPositive() {
			row.MarginPct = row.Margin.Div(row.Revenue).Mul(ledger.HundredPercent).Round(2)
		}
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DimensionValueID < out[j].DimensionValueID })
	return out
}
