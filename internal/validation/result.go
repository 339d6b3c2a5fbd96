package validation

import (
	"errors"
	"fmt"
	"slices"
)

// Code names a business rule an order broke.
type Code string

const (
	CodeSaleInactive            Code = "SaleInactive"
	CodeSaleNotOngoing          Code = "SaleNotOngoing"
	CodeOrderNotPayable         Code = "OrderNotPayable"
	CodeSaleQuantityExceeded    Code = "SaleQuantityExceeded"
	CodeItemInactive            Code = "ItemInactive"
	CodeItemUserTypeNotAllowed  Code = "ItemUserTypeNotAllowed"
	CodeItemQuantityExceeded    Code = "ItemQuantityExceeded"
	CodeItemMaxPerUserExceeded  Code = "ItemMaxPerUserExceeded"
	CodeGroupQuantityExceeded   Code = "GroupQuantityExceeded"
	CodeGroupMaxPerUserExceeded Code = "GroupMaxPerUserExceeded"
)

// ErrValidationFailed is matched by every *ValidationError.
var ErrValidationFailed = errors.New("order validation failed")

type Violation struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// Result lists the violations in the order the checks ran.
type Result struct {
	IsValid bool        `json:"is_valid"`
	Errors  []Violation `json:"errors"`
}

// Messages returns the human readable reasons.
func (r Result) Messages() []string {
	out := make([]string, len(r.Errors))
	for i, v := range r.Errors {
		out[i] = v.Message
	}
	return out
}

// Codes returns the violated rules, in order.
func (r Result) Codes() []Code {
	out := make([]Code, len(r.Errors))
	for i, v := range r.Errors {
		out[i] = v.Code
	}
	return out
}

func (r Result) Has(code Code) bool {
	return slices.ContainsFunc(r.Errors, func(v Violation) bool { return v.Code == code })
}

// ValidationError carries the first violation when the caller asked to fail
// fast.
type ValidationError struct {
	Violation Violation
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Violation.Code, e.Violation.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}
