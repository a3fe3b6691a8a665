package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joseph-ayodele/docproc/constants"
)

func TestExtract_AllFieldsPresent(t *testing.T) {
	text := "Invoice: INV-123\nDate: 2025-07-03\nTotal: 100.50\nCustomer: ACME Corp"

	md := Extract(text)

	assert.Equal(t, "INV-123", md.InvoiceNumber)
	assert.Equal(t, "2025-07-03", md.Date)
	assert.Equal(t, 100.50, md.Amount)
	assert.Equal(t, "ACME Corp", md.Customer.Name)
	assert.Empty(t, md.Customer.Email)
}

func TestExtract_NoPatternsFallsBackToDefaults(t *testing.T) {
	md := Extract("completely unrelated text with no recognizable fields")

	assert.Equal(t, constants.DefaultInvoiceNumber, md.InvoiceNumber)
	assert.Equal(t, constants.DefaultInvoiceDate, md.Date)
	assert.Equal(t, constants.DefaultInvoiceAmount, md.Amount)
	assert.Equal(t, constants.DefaultCustomerName, md.Customer.Name)
}

func TestExtract_PartialFields(t *testing.T) {
	md := Extract("Reference INV-9001 issued.\nTotal: 42")

	assert.Equal(t, "INV-9001", md.InvoiceNumber)
	assert.Equal(t, 42.0, md.Amount)
	// Missing patterns substitute defaults, never errors.
	assert.Equal(t, constants.DefaultInvoiceDate, md.Date)
	assert.Equal(t, constants.DefaultCustomerName, md.Customer.Name)
}

func TestExtract_EmptyCustomerCaptureFallsBack(t *testing.T) {
	md := Extract("Total: 10.00\nCustomer:")

	assert.Equal(t, constants.DefaultCustomerName, md.Customer.Name)
}

func TestExtract_CustomerStopsAtLineEnd(t *testing.T) {
	md := Extract("Customer: Initech LLC\nDate: 2024-01-15")

	assert.Equal(t, "Initech LLC", md.Customer.Name)
	assert.Equal(t, "2024-01-15", md.Date)
}

func TestExtract_Deterministic(t *testing.T) {
	text := "Invoice: INV-555\nDate: 2025-02-01\nTotal: 19.99\nCustomer: Globex"

	first := Extract(text)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Extract(text))
	}
}
