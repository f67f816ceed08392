package service

import (
	"settlepos/internal/infra"
	"settlepos/internal/model"
)

// PDFArtifacts renders closing reports to the configured storage directory.
type PDFArtifacts struct {
	StoragePath string
}

func (p PDFArtifacts) GeneratePDF(s *model.CashSession) (string, error) {
	return infra.GenerateSessionReportPDF(s, p.StoragePath)
}
