package infra

// pdf.go — session closing report generation using go-pdf/fpdf.
// Produces an A5 summary for the back office: opening float, totals per
// movement kind, theoretical balance, counted amount, and variance.
// The output file is saved to storagePath/session_{id}.pdf.

import (
	"fmt"
	"os"
	"path/filepath"

	"settlepos/internal/model"

	"github.com/go-pdf/fpdf"
)

// GenerateSessionReportPDF writes the closing report for a closed session.
// storagePath is created if needed. Returns the absolute file path.
func GenerateSessionReportPDF(s *model.CashSession, storagePath string) (string, error) {
	if err := os.MkdirAll(storagePath, 0755); err != nil {
		return "", fmt.Errorf("pdf: create storage dir: %w", err)
	}

	fileName := fmt.Sprintf("session_%s.pdf", s.ID)
	filePath := filepath.Join(storagePath, fileName)

	pdf := fpdf.New("P", "mm", "A5", "")
	pdf.SetMargins(12, 12, 12)
	pdf.AddPage()

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 24

	// ── Header ───────────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(contentW, 8, "Cash Session Report", "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(contentW, 5, fmt.Sprintf("Session %s", s.ID), "", 1, "C", false, 0, "")
	pdf.CellFormat(contentW, 5, fmt.Sprintf("Location %s — operator %s", s.LocationID, s.OperatorID), "", 1, "C", false, 0, "")
	pdf.Ln(3)

	pdf.Line(12, pdf.GetY(), pageW-12, pdf.GetY())
	pdf.Ln(3)

	// ── Period ───────────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(contentW, 5, "Opened:  "+s.OpenedAt.Format("02/01/2006 15:04"), "", 1, "L", false, 0, "")
	if s.ClosedAt != nil {
		pdf.CellFormat(contentW, 5, "Closed:  "+s.ClosedAt.Format("02/01/2006 15:04"), "", 1, "L", false, 0, "")
	}
	pdf.Ln(3)

	// ── Totals table ─────────────────────────────────────────────────────────
	col1 := contentW * 0.62
	col2 := contentW * 0.38

	row := func(label string, amount model.Amount, bold bool) {
		style := ""
		if bold {
			style = "B"
		}
		pdf.SetFont("Helvetica", style, 9)
		pdf.CellFormat(col1, 6, label, "", 0, "L", false, 0, "")
		pdf.CellFormat(col2, 6, "$"+model.FromMinorUnits(amount).StringFixed(2), "", 1, "R", false, 0, "")
	}

	row("Opening float", s.OpeningFloat, false)
	row("Manual income", s.TotalByKind(model.MovementIncome), false)
	row("Cash sales", s.TotalByKind(model.MovementSale), false)
	row("Manual expenses", s.TotalByKind(model.MovementExpense), false)
	row("Non-cash sales (pending clearance)", s.TotalByKind(model.MovementPendingSale), false)

	pdf.Ln(2)
	pdf.Line(12, pdf.GetY(), pageW-12, pdf.GetY())
	pdf.Ln(2)

	row("Theoretical balance", s.TheoreticalBalance(), true)
	row("Recognized total", s.RecognizedTotal(), false)

	if s.CountedAmount != nil && s.Variance != nil {
		row("Counted amount", *s.CountedAmount, true)

		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(col1, 7, "VARIANCE", "", 0, "L", false, 0, "")
		pdf.CellFormat(col2, 7, "$"+model.FromMinorUnits(*s.Variance).StringFixed(2), "", 1, "R", false, 0, "")
	}

	if s.Note != "" {
		pdf.Ln(3)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.MultiCell(contentW, 4, "Opening notes: "+s.Note, "", "L", false)
	}
	if s.CloseNote != "" {
		pdf.Ln(1)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.MultiCell(contentW, 4, "Closing notes: "+s.CloseNote, "", "L", false)
	}

	if err := pdf.OutputFileAndClose(filePath); err != nil {
		return "", fmt.Errorf("pdf: write file: %w", err)
	}

	return filePath, nil
}
