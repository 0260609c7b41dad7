// Package gateway implements the inbound webhook authentication contract of
// the payment gateway: every notification carries a hex-encoded HMAC-SHA512
// of the raw request body, keyed by a secret shared with the gateway, in a
// single signature header.
//
// Verification must run against the exact bytes received, before any JSON
// decoding: re-serialization can reorder keys or change whitespace and
// silently invalidate the signature.
package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
)

// SignatureVerifier authenticates a raw webhook body against the signature
// header supplied by the sender.
type SignatureVerifier interface {
	// Verify returns nil when the signature matches, ErrSignatureMismatch
	// when it does not. Any mismatch is reported uniformly; which byte
	// differed is never disclosed.
	Verify(payload []byte, signature string) error
}

// ErrSignatureMismatch is returned for any signature that does not validate,
// regardless of the cause (wrong secret, tampered body, malformed hex).
var ErrSignatureMismatch = errors.New("webhook signature mismatch")

// HMACVerifier implements SignatureVerifier using HMAC-SHA512 over the raw
// payload bytes, the scheme used by the payment gateway. The comparison is
// constant time via hmac.Equal.
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier creates a verifier keyed by the given shared secret.
// An empty secret is a configuration error: the processor must fail closed
// rather than accept unauthenticated events.
func NewHMACVerifier(secret string) (*HMACVerifier, error) {
	if secret == "" {
		return nil, errors.New("webhook secret must not be empty")
	}
	return &HMACVerifier{secret: []byte(secret)}, nil
}

// Verify implements SignatureVerifier.
func (v *HMACVerifier) Verify(payload []byte, signature string) error {
	provided, err := hex.DecodeString(signature)
	if err != nil {
		// Undecodable hex can never match; report it as a plain mismatch so
		// the response does not distinguish malformed from wrong signatures.
		return ErrSignatureMismatch
	}

	mac := hmac.New(sha512.New, v.secret)
	mac.Write(payload)
	expected := mac.Sum(nil)

	if !hmac.Equal(expected, provided) {
		return ErrSignatureMismatch
	}
	return nil
}

// Compile-time assertion that HMACVerifier satisfies SignatureVerifier.
var _ SignatureVerifier = (*HMACVerifier)(nil)
