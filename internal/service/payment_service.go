package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/exam-market-api/internal/models"
	appErrors "github.com/noah-isme/exam-market-api/pkg/errors"
	"github.com/noah-isme/exam-market-api/pkg/export"
)

type paymentLister interface {
	ListByUser(ctx context.Context, userID string, filter models.PaymentFilter) ([]models.Payment, int, error)
	ListAllByUser(ctx context.Context, userID string) ([]models.Payment, error)
}

// ExportFormat names a supported payment-history export format.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportFile is a rendered export ready to stream to the client.
type ExportFile struct {
	FileName    string
	ContentType string
	Content     []byte
}

// PaymentService serves payment-history reads and exports.
type PaymentService struct {
	payments paymentLister
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	logger   *zap.Logger
}

// NewPaymentService wires the payment read service.
func NewPaymentService(payments paymentLister, logger *zap.Logger) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		payments: payments,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		logger:   logger,
	}
}

// List returns a page of the user's payments.
func (s *PaymentService) List(ctx context.Context, userID string, filter models.PaymentFilter) ([]models.Payment, *models.Pagination, error) {
	if filter.Status != "" && filter.Status != models.PaymentStatusPaid && filter.Status != models.PaymentStatusCancelled {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported status filter: %s", filter.Status))
	}
	if filter.ItemType != "" && !filter.ItemType.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid item type filter")
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	payments, total, err := s.payments.ListByUser(ctx, userID, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list payments")
	}

	return payments, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Export renders the user's full payment history as CSV or PDF.
func (s *PaymentService) Export(ctx context.Context, userID string, format ExportFormat) (*ExportFile, error) {
	payments, err := s.payments.ListAllByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load payments")
	}

	dataset := paymentDataset(payments)
	stamp := time.Now().UTC().Format("20060102")

	switch format {
	case ExportFormatCSV:
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "render csv")
		}
		return &ExportFile{
			FileName:    fmt.Sprintf("payments_%s.csv", stamp),
			ContentType: "text/csv",
			Content:     content,
		}, nil
	case ExportFormatPDF:
		content, err := s.pdf.Render(dataset, "Payment History")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "render pdf")
		}
		return &ExportFile{
			FileName:    fmt.Sprintf("payments_%s.pdf", stamp),
			ContentType: "application/pdf",
			Content:     content,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format: %s", format))
	}
}

func paymentDataset(payments []models.Payment) export.Dataset {
	headers := []string{"Payment ID", "Item Type", "Item ID", "Amount", "Method", "Status", "Paid At", "Cancelled At"}
	rows := make([]map[string]string, 0, len(payments))
	for _, p := range payments {
		cancelledAt := ""
		if p.CancelledAt != nil {
			cancelledAt = p.CancelledAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, map[string]string{
			"Payment ID":   p.ID,
			"Item Type":    string(p.ItemType),
			"Item ID":      p.ItemID,
			"Amount":       p.Amount.String(),
			"Method":       p.PaymentMethod,
			"Status":       string(p.Status),
			"Paid At":      p.PaidAt.UTC().Format(time.RFC3339),
			"Cancelled At": cancelledAt,
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}
