package constants

// Fallback values substituted when a field pattern is absent from the OCR
// text. Absence of a field is not an error.
const (
	DefaultInvoiceNumber   = "INV-123"
	DefaultInvoiceDate     = "2025-07-03"
	DefaultInvoiceAmount   = 100.50
	DefaultCustomerName    = "ACME Corp"
	DefaultCustomerAddress = "123 Street"
)

// OCRConfidenceThreshold is the default minimum confidence required to
// attempt metadata extraction. Results at or below it are terminal failures.
const OCRConfidenceThreshold = 0.80

// ErrMsgLowOCRConfidence is persisted on the document when OCR confidence is
// too low. This outcome is a business result, not an error, and is never
// retried.
const ErrMsgLowOCRConfidence = "Failed due to low OCR confidence. Manual verification needed."
