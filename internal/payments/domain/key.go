package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// Claim key prefixes, one per entry point.
const (
	PrefixWebhook = "webhook"
	PrefixVerify  = "verify"
)

// ClaimKey derives the idempotency key for one logical external event:
// "{prefix}:{gateway}:{token}". The gateway-supplied event or transaction
// ID is preferred for semantic identity; when absent, a content hash of the
// raw body stands in, which treats byte-identical retries as the same event.
func ClaimKey(prefix, gateway, token string, body []byte) string {
	if token == "" {
		sum := sha256.Sum256(body)
		token = hex.EncodeToString(sum[:])
	}
	return prefix + ":" + gateway + ":" + token
}

// CacheKey namespaces a claim key for the result cache.
func CacheKey(claimKey string) string {
	return "idem:" + claimKey
}
