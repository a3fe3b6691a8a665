package entity

// Customer identifies the invoiced party. Email and Address are optional.
type Customer struct {
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

// InvoiceMetadata holds the structured fields extracted from OCR text.
type InvoiceMetadata struct {
	InvoiceNumber string   `json:"invoiceNumber"`
	Date          string   `json:"date"`
	Amount        float64  `json:"amount"`
	Customer      Customer `json:"customer"`
}
