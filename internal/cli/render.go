package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Sternrassler/callrail-extractor/pkg/catalog"
	"github.com/Sternrassler/callrail-extractor/pkg/extract"
	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"
)

var (
	colorGreen = lipgloss.Color("#10b981")
	colorRed   = lipgloss.Color("#ef4444")
	colorGray  = lipgloss.Color("#6b7280")
	colorWhite = lipgloss.Color("#f8fafc")
)

var (
	styleTitle  = lipgloss.NewStyle().Bold(true).Foreground(colorWhite)
	styleHeader = lipgloss.NewStyle().Bold(true).Foreground(colorGray).Padding(0, 1)
	styleCell   = lipgloss.NewStyle().Padding(0, 1)
	styleDim    = lipgloss.NewStyle().Foreground(colorGray)
	styleOK     = lipgloss.NewStyle().Bold(true).Foreground(colorGreen).Padding(0, 1)
	styleFailed = lipgloss.NewStyle().Bold(true).Foreground(colorRed).Padding(0, 1)
)

// Summary table columns with their own styling.
const (
	colStatus = 0
	colOutput = 5
)

// renderSummary draws the per-endpoint outcome table followed by the totals.
func renderSummary(s *extract.RunSummary) string {
	t := ltable.New().
		Headers("STATUS", "ENDPOINT", "RECORDS", "ERRORS", "TIME", "OUTPUT").
		BorderStyle(lipgloss.NewStyle().Foreground(colorGray)).
		BorderColumn(false)

	statuses := make([]bool, 0, len(s.Order))
	for _, name := range s.Order {
		r := s.Results[name]
		status := "SUCCESS"
		if !r.Success {
			status = "FAILED"
		}
		output := r.OutputPath
		if output == "" && r.Error != "" {
			output = r.Error
		}
		statuses = append(statuses, r.Success)
		t = t.Row(
			status,
			name,
			strconv.Itoa(r.RecordsProcessed),
			strconv.Itoa(r.ErrorCount),
			fmt.Sprintf("%.2fs", r.Elapsed.Seconds()),
			output,
		)
	}

	t = t.StyleFunc(func(row, col int) lipgloss.Style {
		if row == ltable.HeaderRow {
			return styleHeader
		}
		if col == colStatus && row >= 0 && row < len(statuses) {
			if statuses[row] {
				return styleOK
			}
			return styleFailed
		}
		if col == colOutput {
			return styleCell.Foreground(colorGray)
		}
		return styleCell
	})

	totals := fmt.Sprintf("%d endpoints, %d succeeded, %d failed, %d records, %d errors in %.2fs",
		s.TotalEndpoints, s.SuccessfulEndpoints, s.FailedEndpoints,
		s.TotalRecords, s.TotalErrors, s.Elapsed.Seconds())

	return lipgloss.JoinVertical(lipgloss.Left,
		styleTitle.Render("Download summary"),
		t.String(),
		styleDim.Render(totals),
	) + "\n"
}

// renderEndpointList prints every endpoint with its path.
func renderEndpointList(reg *catalog.Registry) string {
	t := ltable.New().
		Headers("ENDPOINT", "PATH", "PAGINATION").
		BorderStyle(lipgloss.NewStyle().Foreground(colorGray)).
		BorderColumn(false).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == ltable.HeaderRow {
				return styleHeader
			}
			return styleCell
		})
	for _, name := range reg.Names() {
		ep, _ := reg.Describe(name)
		t = t.Row(name, ep.Path, string(ep.Pagination))
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		styleTitle.Render("Available endpoints"),
		t.String(),
	) + "\n"
}

// renderEndpointInfo prints the details of one endpoint.
func renderEndpointInfo(info catalog.Info) string {
	var b strings.Builder
	row := func(label, value string) {
		fmt.Fprintf(&b, "%s %s\n", styleDim.Render(fmt.Sprintf("%-22s", label+":")), value)
	}
	b.WriteString(styleTitle.Render("Endpoint: "+info.Name) + "\n")
	row("Path", info.Path)
	row("Requires account id", strconv.FormatBool(info.NeedsAccount))
	row("Pagination", string(info.Pagination))
	row("Max per page", strconv.Itoa(info.MaxPerPage))
	row("Total fields", strconv.Itoa(info.TotalFields))
	row("Fields", strings.Join(info.Fields, ", "))
	return b.String()
}
