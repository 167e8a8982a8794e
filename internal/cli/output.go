package cli

import (
	"io"
	"sort"
	"strconv"

	"github.com/fmtools/fmsys/pkg/report"
	"github.com/olekukonko/tablewriter"
)

func newTable(out io.Writer, header ...string) *tablewriter.Table {
	t := tablewriter.NewWriter(out)
	t.SetHeader(header)
	t.SetBorder(false)
	t.SetAutoWrapText(false)
	t.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	return t
}

// renderSummary prints one row per domain with its finding counts
func renderSummary(out io.Writer, findings []report.Finding) {
	counts := map[string]map[report.Severity]int{}
	for _, f := range findings {
		if counts[f.Domain] == nil {
			counts[f.Domain] = map[report.Severity]int{}
		}
		counts[f.Domain][f.Severity]++
	}
	domains := make([]string, 0, len(counts))
	for d := range counts {
		domains = append(domains, d)
	}
	sort.Strings(domains)

	t := newTable(out, "Domain", "Errors", "Warnings", "Notices")
	for _, d := range domains {
		c := counts[d]
		t.Append([]string{
			d,
			strconv.Itoa(c[report.Error] + c[report.Fatal]),
			strconv.Itoa(c[report.Warning]),
			strconv.Itoa(c[report.Notice]),
		})
	}
	t.Render()
}
