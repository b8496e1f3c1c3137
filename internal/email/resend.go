// Package email provides Resend email provider.
package email

import (
	"context"
	"fmt"
	"net/http"

	resend "github.com/resend/resend-go/v3"
)

// ResendProvider implements the Provider interface for Resend.
type ResendProvider struct {
	from   string
	client *resend.Client
}

// NewResendProvider creates a new Resend provider. A nil httpClient uses the
// library default.
func NewResendProvider(apiKey, from string, httpClient *http.Client) *ResendProvider {
	client := resend.NewClient(apiKey)
	if httpClient != nil {
		client = resend.NewCustomClient(httpClient, apiKey)
	}
	return &ResendProvider{
		from:   from,
		client: client,
	}
}

// SendEmail sends an email via the Resend API.
func (r *ResendProvider) SendEmail(ctx context.Context, email *Email) (*SendResult, error) {
	if email == nil {
		return nil, fmt.Errorf("email is required")
	}
	if r.client == nil {
		return nil, fmt.Errorf("resend client not configured")
	}
	if email.To == "" {
		return nil, fmt.Errorf("email recipient is required")
	}

	params := &resend.SendEmailRequest{
		From:    r.from,
		To:      []string{email.To},
		Subject: email.Subject,
	}
	if email.HTML != "" {
		params.Html = email.HTML
	}
	if email.Text != "" {
		params.Text = email.Text
	}
	if params.Html == "" && params.Text == "" {
		return nil, fmt.Errorf("email body is empty")
	}

	sent, err := r.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to send email via resend: %w", err)
	}
	return &SendResult{MessageID: sent.Id}, nil
}

// ValidateAPIKey checks if the API key is valid.
func (r *ResendProvider) ValidateAPIKey(ctx context.Context) error {
	if r.client == nil {
		return fmt.Errorf("resend client not configured")
	}
	if _, err := r.client.ApiKeys.ListWithContext(ctx); err != nil {
		return fmt.Errorf("invalid API key: %w", err)
	}
	return nil
}
