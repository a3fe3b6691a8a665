package ocr

import (
	"context"
	"encoding/json"
	"time"

	"github.com/joseph-ayodele/docproc/constants"
	"github.com/joseph-ayodele/docproc/internal/entity"
)

// Result is the outcome of text recognition over a file's bytes.
type Result struct {
	Text       string
	Confidence float32
	Language   string
}

// Recognizer extracts text from raw document bytes. Implementations may take
// real I/O time; they must honor ctx cancellation.
type Recognizer interface {
	Recognize(ctx context.Context, data []byte) (Result, error)
}

// Simulator stands in for a real OCR engine. It sleeps for a configured
// latency to model the I/O wait of an external call, then returns a canned
// recognition of the default invoice.
type Simulator struct {
	latency    time.Duration
	confidence float32
}

type SimulatorOption func(*Simulator)

// WithLatency sets the simulated recognition latency.
func WithLatency(d time.Duration) SimulatorOption {
	return func(s *Simulator) {
		if d >= 0 {
			s.latency = d
		}
	}
}

// WithConfidence sets the confidence reported with every result.
func WithConfidence(c float32) SimulatorOption {
	return func(s *Simulator) {
		if c > 0 {
			s.confidence = c
		}
	}
}

func NewSimulator(opts ...SimulatorOption) *Simulator {
	s := &Simulator{
		latency:    500 * time.Millisecond,
		confidence: 0.98,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Simulator) Recognize(ctx context.Context, data []byte) (Result, error) {
	if s.latency > 0 {
		timer := time.NewTimer(s.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-timer.C:
		}
	}

	text, err := json.Marshal(entity.InvoiceMetadata{
		InvoiceNumber: constants.DefaultInvoiceNumber,
		Date:          constants.DefaultInvoiceDate,
		Amount:        constants.DefaultInvoiceAmount,
		Customer: entity.Customer{
			Name:    constants.DefaultCustomerName,
			Address: constants.DefaultCustomerAddress,
		},
	})
	if err != nil {
		return Result{}, err
	}

	return Result{
		Text:       string(text),
		Confidence: s.confidence,
		Language:   "en",
	}, nil
}
