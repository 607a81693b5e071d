package domain

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Signature failure reasons, used verbatim as analytics tags.
const (
	ReasonMissingSecret    = "missing_secret"
	ReasonMissingSignature = "missing_signature"
	ReasonMissingTimestamp = "missing_timestamp"
	ReasonBadTimestamp     = "bad_timestamp"
	ReasonSkew             = "skew"
	ReasonMismatch         = "mismatch"
	ReasonBadPayload       = "bad_payload"
)

// earlySkewTolerance absorbs clock drift: timestamps up to 30 seconds in
// the future are still accepted.
const earlySkewTolerance = 30 * time.Second

// SignatureConfig parameterizes webhook authenticity checks.
type SignatureConfig struct {
	Secret          string
	SignatureHeader string
	TimestampHeader string
	MaxSkew         time.Duration
}

// VerifySignature checks that the request carries a fresh, valid
// HMAC-SHA256 over body||"|"||timestamp. It is a pure function of its
// inputs; the caller supplies the wall clock. The returned reason is empty
// on success and one of the Reason* constants otherwise.
func VerifySignature(cfg SignatureConfig, header http.Header, body []byte, now time.Time) (bool, string) {
	if cfg.Secret == "" {
		return false, ReasonMissingSecret
	}

	signature := lookupHeader(header, cfg.SignatureHeader)
	timestamp := lookupHeader(header, cfg.TimestampHeader)
	if signature == "" {
		return false, ReasonMissingSignature
	}
	if timestamp == "" {
		return false, ReasonMissingTimestamp
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false, ReasonBadTimestamp
	}

	// The window is asymmetric: a fixed 30s into the future, the configured
	// maximum into the past.
	diff := now.Unix() - ts
	if diff < -int64(earlySkewTolerance.Seconds()) || diff > int64(cfg.MaxSkew.Seconds()) {
		return false, ReasonSkew
	}

	mac := hmac.New(sha256.New, []byte(cfg.Secret))
	mac.Write(body)
	mac.Write([]byte("|"))
	mac.Write([]byte(timestamp))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return false, ReasonMismatch
	}

	return true, ""
}

// lookupHeader finds a header value case-insensitively, regardless of how
// the configured name or the stored keys are cased.
func lookupHeader(header http.Header, name string) string {
	if value := header.Get(name); value != "" {
		return value
	}
	for key, values := range header {
		if strings.EqualFold(key, name) && len(values) > 0 {
			return values[0]
		}
	}
	return ""
}
