package bill

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/bill-tracker/internal/scanning"
)

// Record is one extracted bill
type Record struct {
	Filename string `json:"Filename"` // assigned from the input path, never by the model
	scanning.BillData
}

// Totals holds the three summed amount columns of a batch
type Totals struct {
	TotalAmountDue       decimal.Decimal `json:"total_amount_due"`
	PayableWithinDueDate decimal.Decimal `json:"payable_within_due_date"`
	PayableAfterDueDate  decimal.Decimal `json:"payable_after_due_date"`
}

// FailureKind classifies why a bill was dropped from a batch
type FailureKind string

const (
	FailureIO        FailureKind = "io"
	FailureTransport FailureKind = "transport"
	FailureMalformed FailureKind = "malformed_response"
)

// Failure describes one bill that could not be extracted
type Failure struct {
	Path     string      `json:"-"`
	Filename string      `json:"filename"`
	Kind     FailureKind `json:"kind"`
	Err      error       `json:"-"`
	Raw      string      `json:"raw,omitempty"` // model output for malformed responses
}

// Message returns the underlying error text
func (f *Failure) Message() string {
	if f.Err == nil {
		return ""
	}
	return f.Err.Error()
}

// Outcome is the result of processing one input file: a record or a failure
type Outcome struct {
	Record  *Record
	Failure *Failure
}

// OK reports whether the bill was extracted
func (o Outcome) OK() bool {
	return o.Record != nil
}

// BatchResult is everything a batch run produced
type BatchResult struct {
	Submitted  int
	Outcomes   []Outcome // one per input, in input order
	Records    []Record  // successful extractions, in input order
	Totals     Totals
	FinishedAt time.Time
}

// Extracted returns the number of successfully extracted bills
func (r *BatchResult) Extracted() int {
	return len(r.Records)
}

// Failures returns the failed outcomes in input order
func (r *BatchResult) Failures() []Failure {
	failures := make([]Failure, 0, len(r.Outcomes)-len(r.Records))
	for _, o := range r.Outcomes {
		if o.Failure != nil {
			failures = append(failures, *o.Failure)
		}
	}
	return failures
}
