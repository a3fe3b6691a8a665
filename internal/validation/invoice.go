package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/docproc/internal/common"
	"github.com/joseph-ayodele/docproc/internal/entity"
)

// invoiceSchema mirrors the invoice record shape: required non-empty invoice
// number and customer name, non-negative amount, optional well-formed email.
// Date parseability is checked separately since acceptable layouts go beyond
// a single format.
const invoiceSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["invoiceNumber", "date", "amount", "customer"],
	"properties": {
		"invoiceNumber": {"type": "string", "minLength": 1},
		"date": {"type": "string", "minLength": 1},
		"amount": {"type": "number", "minimum": 0},
		"customer": {
			"type": "object",
			"required": ["name"],
			"properties": {
				"name": {"type": "string", "minLength": 1},
				"email": {"type": "string", "format": "email"}
			}
		}
	}
}`

// dateLayouts are the formats accepted for the extracted invoice date.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"01/02/2006",
	"January 2, 2006",
}

// InvoiceValidator validates extracted metadata against the invoice schema.
type InvoiceValidator struct {
	schema *jsonschema.Schema
}

// NewInvoiceValidator compiles the invoice schema once for reuse across jobs.
func NewInvoiceValidator() (*InvoiceValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat = true
	if err := c.AddResource("invoice.schema.json", strings.NewReader(invoiceSchema)); err != nil {
		return nil, common.WrapError(err, "add invoice schema")
	}
	schema, err := c.Compile("invoice.schema.json")
	if err != nil {
		return nil, common.WrapError(err, "compile invoice schema")
	}
	return &InvoiceValidator{schema: schema}, nil
}

// Validate checks md against the schema, returning a descriptive error on
// the first violation. Validation is deterministic for a given input.
func (v *InvoiceValidator) Validate(md entity.InvoiceMetadata) error {
	raw, err := json.Marshal(md)
	if err != nil {
		return common.WrapError(err, "encode metadata")
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return common.WrapError(err, "decode metadata")
	}
	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	if !parseableDate(md.Date) {
		return fmt.Errorf("%w: invalid date format: %q", common.ErrValidation, md.Date)
	}
	return nil
}

func parseableDate(s string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}
