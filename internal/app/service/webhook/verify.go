package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var (
	// ErrSecretNotConfigured means the signing secret is absent from the
	// environment. Checked per request so rotation needs no restart.
	ErrSecretNotConfigured = errors.New("webhook secret not configured")
	// ErrSignatureMissing means the creem-signature header was empty.
	ErrSignatureMissing = errors.New("missing webhook signature")
	// ErrSignatureInvalid means the header did not match the body HMAC.
	ErrSignatureInvalid = errors.New("invalid webhook signature")
)

// SignatureHeader is the HTTP header Creem sends the body HMAC in.
const SignatureHeader = "creem-signature"

// ComputeSignature returns hex(HMAC-SHA256(body)) under the given secret.
func ComputeSignature(rawBody []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the provider signature against the raw request body.
func VerifySignature(rawBody []byte, signature, secret string) error {
	if secret == "" {
		return ErrSecretNotConfigured
	}
	if signature == "" {
		return ErrSignatureMissing
	}
	expected := ComputeSignature(rawBody, secret)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureInvalid
	}
	return nil
}
