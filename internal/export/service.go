package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/docproc/constants"
	"github.com/joseph-ayodele/docproc/internal/repository"
)

// Service produces XLSX bytes summarizing validated documents.
type Service struct {
	docs   repository.DocumentRepository
	logger *slog.Logger
}

func NewService(docs repository.DocumentRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{docs: docs, logger: logger}
}

// ExportValidatedXLSX returns an XLSX workbook with one row per validated
// document.
func (s *Service) ExportValidatedXLSX(ctx context.Context) ([]byte, error) {
	start := time.Now()

	docs, err := s.docs.ListByStatus(ctx, constants.StatusValidated)
	if err != nil {
		return nil, fmt.Errorf("query validated documents: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Invoices"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Document ID",
		"Original Name",
		"Invoice Number",
		"Date",
		"Amount",
		"Customer",
		"Customer Email",
		"Uploaded At",
		"Processed At",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, d := range docs {
		if d.Metadata == nil {
			continue
		}
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, d.ID)
		write(2, d.OriginalName)
		write(3, d.Metadata.InvoiceNumber)
		write(4, d.Metadata.Date)
		write(5, d.Metadata.Amount)
		write(6, d.Metadata.Customer.Name)
		write(7, d.Metadata.Customer.Email)
		if !d.Timestamps.UploadedAt.IsZero() {
			write(8, d.Timestamps.UploadedAt.Format(time.RFC3339))
		}
		if d.Timestamps.ProcessedAt != nil {
			write(9, d.Timestamps.ProcessedAt.Format(time.RFC3339))
		}
		row++
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	s.logger.Info("exported validated documents",
		"count", row-2, "duration", time.Since(start))
	return buf.Bytes(), nil
}
