package metadata

import (
	"regexp"
	"strconv"

	"github.com/joseph-ayodele/docproc/constants"
	"github.com/joseph-ayodele/docproc/internal/entity"
)

var (
	invoiceNumberRe = regexp.MustCompile(`INV-\d+`)
	customerRe      = regexp.MustCompile(`Customer:\s*(.*)`)
	amountRe        = regexp.MustCompile(`Total:\s*(\d+(\.\d+)?)`)
	dateRe          = regexp.MustCompile(`Date:\s*(\d{4}-\d{2}-\d{2})`)
)

// Extract pulls structured invoice fields out of OCR text. A field whose
// pattern is absent falls back to the configured default; absence is never an
// error. Extraction is deterministic: the same text always yields the same
// metadata.
func Extract(text string) entity.InvoiceMetadata {
	invoiceNumber := constants.DefaultInvoiceNumber
	if m := invoiceNumberRe.FindString(text); m != "" {
		invoiceNumber = m
	}

	customerName := constants.DefaultCustomerName
	if m := customerRe.FindStringSubmatch(text); m != nil && m[1] != "" {
		customerName = m[1]
	}

	amount := constants.DefaultInvoiceAmount
	if m := amountRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			amount = v
		}
	}

	date := constants.DefaultInvoiceDate
	if m := dateRe.FindStringSubmatch(text); m != nil {
		date = m[1]
	}

	return entity.InvoiceMetadata{
		InvoiceNumber: invoiceNumber,
		Date:          date,
		Amount:        amount,
		Customer:      entity.Customer{Name: customerName},
	}
}
