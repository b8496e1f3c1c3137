package services

import "errors"

// UserError carries a message that is safe to show to the caller.
type UserError struct {
	Message string
}

func (e UserError) Error() string {
	return e.Message
}

var (
	ErrUnsupportedPaymentMethod = errors.New("unsupported payment method")
	ErrPaymentNotRetryable      = errors.New("payment cannot be retried")
	ErrPaymentNotVerifiable     = errors.New("payment transfer cannot be verified")
	ErrForbidden                = errors.New("insufficient permissions")
)
