package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const signaturePrefix = "sha256="

// VerifySignature checks that body was produced by the holder of secret.
// LiveKit sends the signature as "sha256=<hex>"; a bare hex value is
// accepted too. Comparison is constant-time. An empty header or secret
// always fails; skipping verification when no secret is configured is the
// caller's explicit choice, not this function's.
func VerifySignature(body []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}

	expected := strings.TrimPrefix(signature, signaturePrefix)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	computed := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(computed), []byte(expected))
}
