// Package email provides email provider interface.
package email

import (
	"context"
	"errors"
)

var ErrNotConfigured = errors.New("email provider not configured")

type Provider interface {
	SendEmail(ctx context.Context, email *Email) (*SendResult, error)
	ValidateAPIKey(ctx context.Context) error
}

type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type SendResult struct {
	MessageID string
}

// DisabledProvider fails every send. It stands in when no API key is set so
// the failure is recorded on the order instead of silently dropped.
type DisabledProvider struct{}

func (DisabledProvider) SendEmail(context.Context, *Email) (*SendResult, error) {
	return nil, ErrNotConfigured
}

func (DisabledProvider) ValidateAPIKey(context.Context) error {
	return ErrNotConfigured
}
