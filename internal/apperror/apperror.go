// Package apperror defines the request-level error taxonomy shared by the
// services and the HTTP layer.
package apperror

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
)

// Kind classifies an error for callers that need to react to it.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindRejected
	KindConflict
	KindUnauthorized
	KindForbidden
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindRejected:
		return "rejected"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindTransient:
		return "transient"
	}
	return "internal"
}

// Machine-readable error codes.
const (
	CodeValidation            = "VALIDATION_FAILED"
	CodeAddressNotFound       = "ADDRESS_NOT_FOUND"
	CodeVariantNotFound       = "VARIANT_NOT_FOUND"
	CodeProductInactive       = "PRODUCT_INACTIVE"
	CodeInsufficientStock     = "INSUFFICIENT_STOCK"
	CodeInvalidDiscount       = "INVALID_DISCOUNT"
	CodeInactiveDiscount      = "INACTIVE_DISCOUNT"
	CodeExpiredDiscount       = "EXPIRED_DISCOUNT"
	CodeDiscountMaxUses       = "DISCOUNT_MAX_USES_REACHED"
	CodeDiscountBelowMinimum  = "DISCOUNT_BELOW_MINIMUM"
	CodeDiscountNotFound      = "DISCOUNT_NOT_FOUND"
	CodeDiscountCodeExists    = "DISCOUNT_CODE_EXISTS"
	CodeOrderNotFound         = "ORDER_NOT_FOUND"
	CodeAlreadyCancelled      = "ALREADY_CANCELLED"
	CodeCannotCancelDelivered = "CANNOT_CANCEL_DELIVERED"
	CodeInvalidStatus         = "INVALID_STATUS"
	CodeShipmentNotFound      = "SHIPMENT_NOT_FOUND"
	CodeShipmentExists        = "SHIPMENT_EXISTS"
	CodeUsernameTaken         = "USERNAME_TAKEN"
	CodeEmailTaken            = "EMAIL_TAKEN"
	CodeInvalidCredentials    = "INVALID_CREDENTIALS"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeForbidden             = "FORBIDDEN"
	CodeTryAgain              = "TRY_AGAIN"
	CodeInternal              = "INTERNAL"
)

// Error is a classified, user-facing error.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
	Err     error
}

// New creates an Error.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, code, format string, args ...any) *Error {
	return New(kind, code, fmt.Sprintf(format, args...))
}

// Transient wraps an infrastructure failure the client may retry.
func Transient(err error) *Error {
	return &Error{
		Kind:    KindTransient,
		Code:    CodeTryAgain,
		Message: "temporary failure, please retry",
		Err:     err,
	}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// WithDetails returns a copy of e carrying details.
func (e *Error) WithDetails(details map[string]any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// Wrap returns a copy of e with cause attached.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

// CodeOf returns the code of err, or CodeInternal for unclassified errors.
func CodeOf(err error) string {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return CodeInternal
}

// FromValidation converts validator output into a VALIDATION_FAILED error
// whose details map each failing field, by namespace, to a message.
func FromValidation(err error) *Error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return New(KindValidation, CodeValidation, err.Error())
	}
	fields := make(map[string]any, len(verrs))
	for _, e := range verrs {
		fields[e.Namespace()] = fmt.Sprintf("Field '%s' failed on the '%s' tag", e.Field(), e.Tag())
	}
	return New(KindValidation, CodeValidation, "Validation failed").WithDetails(fields)
}
