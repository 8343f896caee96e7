package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const pageWidth = 190.0

// PDFExporter renders datasets into a basic tabular PDF.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF document with the dataset title, summary block and table body.
func (e *PDFExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	widths, err := columnWidths(data)
	if err != nil {
		return nil, err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(true, 15)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	if data.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(data.Title), "", 1, "C", false, 0, "")
		pdf.Ln(3)
	}

	if len(data.Summary) > 0 {
		for _, field := range data.Summary {
			pdf.SetFont("Arial", "B", 9)
			pdf.CellFormat(40, 6, tr(field.Label), "", 0, "", false, 0, "")
			pdf.SetFont("Arial", "", 9)
			pdf.CellFormat(0, 6, tr(field.Value), "", 1, "", false, 0, "")
		}
		pdf.Ln(4)
	}

	pdf.SetFont("Arial", "B", 10)
	for i, header := range data.Headers {
		pdf.CellFormat(widths[i], 8, tr(header), "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	for _, row := range data.Rows {
		if len(row) != len(data.Headers) {
			return nil, fmt.Errorf("pdf row has %d fields, want %d", len(row), len(data.Headers))
		}
		// Long cells such as log lines wrap, so the row height follows the tallest cell.
		lines := 1
		for i, value := range row {
			if n := len(pdf.SplitLines([]byte(tr(value)), widths[i]-2)); n > lines {
				lines = n
			}
		}
		height := float64(lines) * 5
		x, y := pdf.GetXY()
		if y+height > 282 {
			pdf.AddPage()
			x, y = pdf.GetXY()
		}
		for i, value := range row {
			pdf.Rect(x, y, widths[i], height, "D")
			pdf.SetXY(x+1, y)
			pdf.MultiCell(widths[i]-2, 5, tr(value), "", "L", false)
			x += widths[i]
			pdf.SetXY(x, y)
		}
		pdf.SetXY(10, y+height)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func columnWidths(data Dataset) ([]float64, error) {
	n := len(data.Headers)
	widths := make([]float64, n)
	if len(data.Widths) == 0 {
		for i := range widths {
			widths[i] = pageWidth / float64(n)
		}
		return widths, nil
	}
	if len(data.Widths) != n {
		return nil, fmt.Errorf("pdf has %d widths for %d headers", len(data.Widths), n)
	}
	var total float64
	for _, w := range data.Widths {
		total += w
	}
	if total <= 0 {
		return nil, fmt.Errorf("pdf column widths must be positive")
	}
	for i, w := range data.Widths {
		widths[i] = pageWidth * w / total
	}
	return widths, nil
}
