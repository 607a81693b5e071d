package domain

import (
	"strconv"
	"strings"
	"time"
)

// successStatuses is the closed vocabulary of gateway statuses that count
// as a completed payment. Anything else silently skips success emission.
var successStatuses = map[string]struct{}{
	"confirmed": {},
	"completed": {},
	"success":   {},
	"paid":      {},
	"settled":   {},
}

// EventID extracts the gateway-supplied event identifier from a webhook
// payload: top-level "id"/"event_id" first, then the same fields nested
// under "data". Empty when the gateway omitted an ID.
func EventID(payload map[string]any) string {
	if id := asString(payload["id"]); id != "" {
		return id
	}
	if id := asString(payload["event_id"]); id != "" {
		return id
	}
	if data, ok := payload["data"].(map[string]any); ok {
		if id := asString(data["id"]); id != "" {
			return id
		}
		return asString(data["event_id"])
	}
	return ""
}

// TransactionID extracts the transaction identifier from a verify request
// body: "transaction_id", then "id", then "invoice_id".
func TransactionID(payload map[string]any) string {
	for _, field := range []string{"transaction_id", "id", "invoice_id"} {
		if id := asString(payload[field]); id != "" {
			return id
		}
	}
	return ""
}

// DeriveSuccess inspects a payload for a completed payment and, when found,
// builds the pay_success property bag: turnaround time in milliseconds,
// amount, currency, gateway, and source. It returns false when the status
// is outside the success vocabulary.
//
// Timestamps are read from the nested "data" object when present, falling
// back to the top level. A missing finish time defaults to now; a missing
// creation time defaults to the finish time, so TAT degrades to zero rather
// than blocking emission.
func DeriveSuccess(payload map[string]any, gateway, source string, now time.Time) (map[string]any, bool) {
	data := payload
	if nested, ok := payload["data"].(map[string]any); ok {
		data = nested
	}

	status := strings.ToLower(asString(firstValue(data["status"], payload["status"])))
	if _, ok := successStatuses[status]; !ok {
		return nil, false
	}

	created, createdOK := parseTimestamp(firstValue(data["created_at"], payload["created_at"], data["invoice_created_at"]))
	finished, finishedOK := parseTimestamp(firstValue(data["success_at"], data["confirmed_at"], data["paid_at"], payload["confirmed_at"]))
	if !finishedOK {
		finished = now
	}
	if !createdOK {
		created = finished
	}

	amount := firstValue(data["amount"], data["price"], data["total"])
	currency := firstValue(data["currency"], data["price_currency"], data["currency_code"])
	if nested, ok := amount.(map[string]any); ok {
		if c := firstValue(nested["currency"]); c != nil {
			currency = c
		}
		amount = firstValue(nested["value"], nested["amount"])
	}

	tatMS := finished.Sub(created).Milliseconds()
	if tatMS < 0 {
		tatMS = 0
	}

	return map[string]any{
		"tat_ms":   tatMS,
		"amount":   amount,
		"currency": currency,
		"gateway":  gateway,
		"source":   source,
	}, true
}

// parseTimestamp accepts epoch seconds (JSON numbers) and common ISO-8601
// string layouts, with naive datetimes treated as UTC.
func parseTimestamp(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case nil:
		return time.Time{}, false
	case float64:
		sec := int64(v)
		nsec := int64((v - float64(sec)) * float64(time.Second))
		return time.Unix(sec, nsec).UTC(), true
	case int:
		return time.Unix(int64(v), 0).UTC(), true
	case int64:
		return time.Unix(v, 0).UTC(), true
	case string:
		if v == "" {
			return time.Time{}, false
		}
		for _, layout := range []string{
			time.RFC3339Nano,
			time.RFC3339,
			"2006-01-02T15:04:05.999999999",
			"2006-01-02 15:04:05",
		} {
			if ts, err := time.Parse(layout, v); err == nil {
				return ts.UTC(), true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// firstValue returns the first non-nil, non-empty-string candidate.
func firstValue(candidates ...any) any {
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if s, ok := c.(string); ok && s == "" {
			continue
		}
		return c
	}
	return nil
}

// asString renders scalar JSON values the way they identify an event:
// strings as-is, numbers without a trailing ".0" when integral.
func asString(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case float64:
		if value == float64(int64(value)) {
			return strconv.FormatInt(int64(value), 10)
		}
		return strconv.FormatFloat(value, 'f', -1, 64)
	case int:
		return strconv.Itoa(value)
	case int64:
		return strconv.FormatInt(value, 10)
	default:
		return ""
	}
}
