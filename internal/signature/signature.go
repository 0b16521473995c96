// Package signature verifies inbound webhook payloads against a
// subscription's shared secret.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Header carries the inbound payload signature, formatted "sha256=<hex>".
const Header = "X-Webhook-Signature-256"

const scheme = "sha256"

var (
	// ErrMismatch means the signature did not match the body. Maps to 401.
	ErrMismatch = errors.New("signature mismatch")
	// ErrMalformed means the header was absent or not "sha256=<hex>". Maps to 400.
	ErrMalformed = errors.New("malformed signature header")
)

// Verify checks the HMAC-SHA256 signature of body against header.
//
// An empty secret means the subscription opted out of signing; verification
// is skipped and nil is returned regardless of the header. With a secret
// set, a missing or malformed header is ErrMalformed and a well-formed but
// wrong digest is ErrMismatch. The comparison is constant time.
func Verify(secret string, body []byte, header string) error {
	if secret == "" {
		return nil
	}
	if header == "" {
		return fmt.Errorf("%w: header missing", ErrMalformed)
	}

	method, digest, ok := strings.Cut(header, "=")
	if !ok {
		return fmt.Errorf("%w: expected %s=<hex>", ErrMalformed, scheme)
	}
	if !strings.EqualFold(method, scheme) {
		return fmt.Errorf("%w: unsupported method %q", ErrMalformed, method)
	}
	provided, err := hex.DecodeString(digest)
	if err != nil {
		return fmt.Errorf("%w: digest is not hex", ErrMalformed)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), provided) {
		return ErrMismatch
	}
	return nil
}

// Compute returns the prefixed hex signature for body, e.g. for clients
// signing an ingestion request.
func Compute(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return scheme + "=" + hex.EncodeToString(mac.Sum(nil))
}
