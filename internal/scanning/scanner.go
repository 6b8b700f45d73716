package scanning

import (
	"context"
	"errors"
	"fmt"
)

// NotAvailable is written into any bill field the model could not determine
const NotAvailable = "N/A"

// BillData contains the fields extracted from a utility bill
type BillData struct {
	CustomerName         string `json:"Customer Name"`
	AccountNumber        string `json:"Account Number"`
	DueDate              string `json:"Due Date"` // free-form, not parsed
	TotalAmountDue       string `json:"Total Amount Due"`
	PayableWithinDueDate string `json:"Payable Within Due Date"`
	PayableAfterDueDate  string `json:"Payable After Due Date"`
}

// Scanner defines the interface for bill scanning operations
type Scanner interface {
	// ScanBill sends one image to the vision model and returns its raw text answer
	ScanBill(ctx context.Context, img *Image, apiKey string) (string, error)
	// RequiresKey reports whether ScanBill refuses to run without an API key
	RequiresKey() bool
	// Close closes the scanner and releases resources
	Close() error
}

// ErrMissingCredentials is returned when no API key was supplied to a scanner that needs one
var ErrMissingCredentials = errors.New("missing api key")

// TransportError describes a failed call to the inference service
type TransportError struct {
	Provider   string
	StatusCode int    // zero when no response was received
	Body       string // response body for non-2xx answers
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("calling %s API: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
