package delivery

import "strings"

// Class is the retry classification of a single attempt outcome.
type Class int

const (
	// ClassSuccess: 2xx, the delivery is done.
	ClassSuccess Class = iota
	// ClassRetryable: transport errors, timeouts, 5xx, 429, 408.
	ClassRetryable
	// ClassPermanent: the target explicitly rejected the payload;
	// retrying will not help.
	ClassPermanent
)

// Classify maps an outbound attempt result to its retry class. err is the
// transport error from the HTTP client (nil when a response was received),
// status the HTTP status code (0 when err != nil).
func Classify(err error, status int) Class {
	if err != nil {
		return ClassRetryable
	}
	switch {
	case status >= 200 && status < 300:
		return ClassSuccess
	case status >= 500, status == 429, status == 408:
		return ClassRetryable
	default:
		return ClassPermanent
	}
}

// Reason labels a failed attempt for metrics.
func Reason(err error, status int) string {
	if err != nil {
		errLower := strings.ToLower(err.Error())
		if strings.Contains(errLower, "timeout") || strings.Contains(errLower, "deadline exceeded") {
			return "timeout"
		}
		if strings.Contains(errLower, "connection refused") {
			return "connection_refused"
		}
		if strings.Contains(errLower, "no such host") || strings.Contains(errLower, "dns") {
			return "dns_error"
		}
		return "network"
	}
	switch {
	case status >= 500:
		return "http_5xx"
	case status == 429:
		return "http_429"
	case status >= 400:
		return "http_4xx"
	default:
		return "other"
	}
}
