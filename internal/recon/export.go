package recon

import "strconv"

// ExportRows formats a report into CSV-ready strings.
func ExportRows(report Report) [][]string {
	out := make([][]string, 0, len(report.Lines)+2)
	out = append(out, []string{"Dimension", "Source Total", "GL Total", "Variance", "Documents", "Entries", "Status"})
	for _, line := range report.Lines {
		out = append(out, []string{
			strconv.FormatInt(line.DimensionValueID, 10),
			line.SourceTotal.StringFixed(2),
			line.GLTotal.StringFixed(2),
			line.Variance.StringFixed(2),
			strconv.Itoa(line.Documents),
			strconv.Itoa(line.Entries),
			string(line.Status),
		})
	}
	out = append(out, []string{
		"TOTAL",
		report.SourceTotal.StringFixed(2),
		report.GLTotal.StringFixed(2),
		report.Variance.StringFixed(2),
		"", "",
		status(report.Matched),
	})
	return out
}

func status(matched bool) string {
	if matched {
		return string(LineMatched)
	}
	return string(LineMismatch)
}
