package webhook

import (
	"errors"
	"net/http"
	"strings"
	"testing"
)

func TestVerify(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"payment_status":"SUCCESS","merchant_reference":"order_01"}`)
	secret := "kashier-secret"
	valid := Sign(payload, secret)

	tests := []struct {
		name      string
		payload   []byte
		signature string
		secret    string
		wantErr   bool
	}{
		{name: "valid", payload: payload, signature: valid, secret: secret},
		{name: "valid with prefix", payload: payload, signature: "sha256=" + valid, secret: secret},
		{name: "upper case prefix and digest", payload: payload, signature: "SHA256=" + strings.ToUpper(valid), secret: secret},
		{name: "tampered payload", payload: []byte(`{"payment_status":"SUCCESS","merchant_reference":"order_02"}`), signature: valid, secret: secret, wantErr: true},
		{name: "wrong secret", payload: payload, signature: valid, secret: "other", wantErr: true},
		{name: "missing secret", payload: payload, signature: valid, secret: "", wantErr: true},
		{name: "missing signature", payload: payload, signature: "", secret: secret, wantErr: true},
		{name: "not hex", payload: payload, signature: "zz" + valid[2:], secret: secret, wantErr: true},
		{name: "truncated", payload: payload, signature: valid[:32], secret: secret, wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := Verify(tc.payload, tc.signature, tc.secret)
			if tc.wantErr {
				if !errors.Is(err, ErrUnverifiedWebhook) {
					t.Fatalf("expected ErrUnverifiedWebhook, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
		})
	}
}

func TestSignatureFromHeader(t *testing.T) {
	t.Parallel()

	header := http.Header{}
	header.Set("X-Signature", "third")
	header.Set("X-Payment-Signature", "second")
	if got := SignatureFromHeader(header); got != "second" {
		t.Fatalf("SignatureFromHeader() = %q, want second", got)
	}

	header.Set("X-Kashier-Signature", "first")
	if got := SignatureFromHeader(header); got != "first" {
		t.Fatalf("SignatureFromHeader() = %q, want first", got)
	}

	if got := SignatureFromHeader(http.Header{}); got != "" {
		t.Fatalf("SignatureFromHeader(empty) = %q", got)
	}
}
