// Package webhook verifies and canonicalizes inbound payment provider events.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
)

var ErrUnverifiedWebhook = errors.New("webhook signature could not be verified")

// SignatureHeaders are checked in order; the first non-empty one wins.
var SignatureHeaders = []string{
	"X-Kashier-Signature",
	"X-Payment-Signature",
	"X-Signature",
}

func SignatureFromHeader(header http.Header) string {
	for _, name := range SignatureHeaders {
		if value := strings.TrimSpace(header.Get(name)); value != "" {
			return value
		}
	}
	return ""
}

// Sign returns the hex HMAC-SHA256 of payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks signature against the raw payload. A missing secret never
// verifies.
func Verify(payload []byte, signature, secret string) error {
	if secret == "" {
		return errors.Join(ErrUnverifiedWebhook, errors.New("webhook secret is not configured"))
	}

	signature = strings.TrimSpace(signature)
	if len(signature) >= len("sha256=") && strings.EqualFold(signature[:len("sha256=")], "sha256=") {
		signature = signature[len("sha256="):]
	}
	if signature == "" {
		return errors.Join(ErrUnverifiedWebhook, errors.New("missing signature"))
	}

	provided, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil {
		return errors.Join(ErrUnverifiedWebhook, errors.New("signature is not hex encoded"))
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return ErrUnverifiedWebhook
	}
	return nil
}
