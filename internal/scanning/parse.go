package scanning

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Keys of the JSON object the model is asked to return
const (
	KeyCustomerName         = "Customer Name"
	KeyAccountNumber        = "Account Number"
	KeyDueDate              = "Due Date"
	KeyTotalAmountDue       = "Total Amount Due"
	KeyPayableWithinDueDate = "Payable Within Due Date"
	KeyPayableAfterDueDate  = "Payable After Due Date"
)

// BillKeys lists the six schema keys in report order
var BillKeys = []string{
	KeyCustomerName,
	KeyAccountNumber,
	KeyDueDate,
	KeyTotalAmountDue,
	KeyPayableWithinDueDate,
	KeyPayableAfterDueDate,
}

// The answer must be a single object; known keys may hold any JSON value.
const billSchema = `{"type": "object"}`

var compiledBillSchema = jsonschema.MustCompileString("bill.json", billSchema)

// ErrMalformedResponse matches every error returned by ParseBill
var ErrMalformedResponse = errors.New("malformed model response")

// MalformedResponseError carries the raw model output for diagnostics
type MalformedResponseError struct {
	Raw    string
	Reason string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

func (e *MalformedResponseError) Is(target error) bool {
	return target == ErrMalformedResponse
}

// ParseBill extracts the bill fields from a model answer.
//
// The payload is the text between the first '{' and the last '}', inclusive, decoded strictly.
// Braces inside string values outside that object confuse the slicing; such answers fail to
// decode and are reported as malformed rather than guessed at.
func ParseBill(text string) (*BillData, error) {
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, &MalformedResponseError{Raw: text, Reason: "no JSON object found in response"}
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx < startIdx {
		return nil, &MalformedResponseError{Raw: text, Reason: "invalid JSON object in response"}
	}

	dec := json.NewDecoder(strings.NewReader(text[startIdx : endIdx+1]))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, &MalformedResponseError{Raw: text, Reason: "unmarshaling json", Err: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &MalformedResponseError{Raw: text, Reason: "unmarshaling json", Err: errors.New("trailing data after object")}
	}

	if err := compiledBillSchema.Validate(doc); err != nil {
		return nil, &MalformedResponseError{Raw: text, Reason: "validating bill fields", Err: err}
	}

	fields := doc.(map[string]any)
	return &BillData{
		CustomerName:         fieldValue(fields, KeyCustomerName),
		AccountNumber:        fieldValue(fields, KeyAccountNumber),
		DueDate:              fieldValue(fields, KeyDueDate),
		TotalAmountDue:       fieldValue(fields, KeyTotalAmountDue),
		PayableWithinDueDate: fieldValue(fields, KeyPayableWithinDueDate),
		PayableAfterDueDate:  fieldValue(fields, KeyPayableAfterDueDate),
	}, nil
}

// fieldValue returns the value for key verbatim, or NotAvailable when it is absent or null.
// Booleans, arrays and objects are kept as their JSON text.
func fieldValue(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case nil:
		return NotAvailable
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return NotAvailable
		}
		return string(b)
	}
}
