package interfaces

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"guardduty-billing/internal/observability/metrics"
	"guardduty-billing/internal/platform/civil"
	"guardduty-billing/internal/platform/fault"
	settlement "guardduty-billing/internal/settlement/domain"
)

// Export formats.
const (
	FormatPDF  = "pdf"
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
)

// ErrUnsupportedFormat is returned for an unknown export format.
var ErrUnsupportedFormat = fault.New(fault.ErrValidation, "settlement export: unsupported format")

var contentTypes = map[string]string{
	FormatPDF:  "application/pdf",
	FormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	FormatCSV:  "text/csv",
}

// ContentType returns the MIME type of format.
func ContentType(format string) string {
	return contentTypes[format]
}

// Export renders s in format.
func Export(s *settlement.Settlement, format string) (data []byte, err error) {
	format = strings.ToLower(strings.TrimSpace(format))
	began := time.Now()
	defer func() { metrics.ObserveSettlementExport(format, metrics.Result(err), time.Since(began)) }()

	switch format {
	case FormatPDF:
		return BuildSettlementPDF(s)
	case FormatXLSX:
		return BuildSettlementXLSX(s)
	case FormatCSV:
		return BuildSettlementCSV(s)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// BuildSettlementPDF renders a minimal PDF for a settlement.
func BuildSettlementPDF(s *settlement.Settlement) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Guard Duty Settlement")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Period: %s", s.Period))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Status: %s", s.Status))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s by %s", s.GeneratedAt.Format(time.RFC3339), s.GeneratedBy))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total Minutes: %d", s.TotalMinutes))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total Amount: %s", s.TotalAmount.StringFixed(2)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(40, 6, "User", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Incidents", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Minutes", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Amount", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Aggregated", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, d := range s.Details {
		pdf.CellFormat(40, 6, d.UserID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, strconv.Itoa(d.IncidentCount), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, strconv.Itoa(d.TotalMinutes), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, d.TotalAmount.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, d.AggregationDate.Format(civil.DateLayout), "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildSettlementXLSX renders a summary sheet and a details sheet.
func BuildSettlementXLSX(s *settlement.Settlement) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	detailsSheet := "details"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(detailsSheet); err != nil {
		return nil, err
	}

	total, _ := s.TotalAmount.Float64()
	_ = f.SetCellValue(summarySheet, "A1", "Guard Duty Settlement")
	_ = f.SetCellValue(summarySheet, "A3", "Period")
	_ = f.SetCellValue(summarySheet, "B3", string(s.Period))
	_ = f.SetCellValue(summarySheet, "A4", "Status")
	_ = f.SetCellValue(summarySheet, "B4", string(s.Status))
	_ = f.SetCellValue(summarySheet, "A5", "Generated")
	_ = f.SetCellValue(summarySheet, "B5", s.GeneratedAt.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A6", "Generated By")
	_ = f.SetCellValue(summarySheet, "B6", s.GeneratedBy)
	_ = f.SetCellValue(summarySheet, "A7", "Total Minutes")
	_ = f.SetCellValue(summarySheet, "B7", s.TotalMinutes)
	_ = f.SetCellValue(summarySheet, "A8", "Total Amount")
	_ = f.SetCellValue(summarySheet, "B8", total)

	for col, header := range []string{"User", "Guard", "Incidents", "Minutes", "Amount", "Aggregated"} {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		_ = f.SetCellValue(detailsSheet, cell, header)
	}
	for i, d := range s.Details {
		row := i + 2
		amount, _ := d.TotalAmount.Float64()
		_ = f.SetCellValue(detailsSheet, fmt.Sprintf("A%d", row), d.UserID)
		_ = f.SetCellValue(detailsSheet, fmt.Sprintf("B%d", row), d.GuardID)
		_ = f.SetCellValue(detailsSheet, fmt.Sprintf("C%d", row), d.IncidentCount)
		_ = f.SetCellValue(detailsSheet, fmt.Sprintf("D%d", row), d.TotalMinutes)
		_ = f.SetCellValue(detailsSheet, fmt.Sprintf("E%d", row), amount)
		_ = f.SetCellValue(detailsSheet, fmt.Sprintf("F%d", row), d.AggregationDate.Format(civil.DateLayout))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildSettlementCSV renders one row per detail.
func BuildSettlementCSV(s *settlement.Settlement) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	_ = writer.Write([]string{"period", "user_id", "guard_id", "incident_count", "total_minutes", "total_amount", "aggregation_date"})
	for _, d := range s.Details {
		_ = writer.Write([]string{
			string(s.Period),
			d.UserID,
			d.GuardID,
			strconv.Itoa(d.IncidentCount),
			strconv.Itoa(d.TotalMinutes),
			d.TotalAmount.StringFixed(2),
			d.AggregationDate.Format(civil.DateLayout),
		})
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
