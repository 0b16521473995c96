package delivery

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestStatusValid(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		want   bool
	}{
		{name: "pending", status: StatusPending, want: true},
		{name: "processing", status: StatusProcessing, want: true},
		{name: "succeeded", status: StatusSucceeded, want: true},
		{name: "retrying", status: StatusRetrying, want: true},
		{name: "failed", status: StatusFailed, want: true},
		{name: "empty", status: Status(""), want: false},
		{name: "unknown", status: Status("dead"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	terminal := map[Status]bool{
		StatusPending:    false,
		StatusProcessing: false,
		StatusRetrying:   false,
		StatusSucceeded:  true,
		StatusFailed:     true,
	}
	for status, want := range terminal {
		if got := status.Terminal(); got != want {
			t.Errorf("Terminal(%s) = %v, want %v", status, got, want)
		}
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{name: "pending to processing", from: StatusPending, to: StatusProcessing, want: true},
		{name: "retrying to processing", from: StatusRetrying, to: StatusProcessing, want: true},
		{name: "processing to succeeded", from: StatusProcessing, to: StatusSucceeded, want: true},
		{name: "processing to retrying", from: StatusProcessing, to: StatusRetrying, want: true},
		{name: "processing to failed", from: StatusProcessing, to: StatusFailed, want: true},
		{name: "pending to succeeded skips claim", from: StatusPending, to: StatusSucceeded, want: false},
		{name: "pending to failed skips claim", from: StatusPending, to: StatusFailed, want: false},
		{name: "retrying to failed skips claim", from: StatusRetrying, to: StatusFailed, want: false},
		{name: "processing to pending", from: StatusProcessing, to: StatusPending, want: false},
		{name: "succeeded is terminal", from: StatusSucceeded, to: StatusProcessing, want: false},
		{name: "failed is terminal", from: StatusFailed, to: StatusRetrying, want: false},
		{name: "terminal to terminal", from: StatusSucceeded, to: StatusFailed, want: false},
		{name: "self transition", from: StatusProcessing, to: StatusProcessing, want: false},
		{name: "unknown from", from: Status("dead"), to: StatusProcessing, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		want   Class
	}{
		{name: "200 ok", status: 200, want: ClassSuccess},
		{name: "201 created", status: 201, want: ClassSuccess},
		{name: "204 no content", status: 204, want: ClassSuccess},
		{name: "500 server error", status: 500, want: ClassRetryable},
		{name: "502 bad gateway", status: 502, want: ClassRetryable},
		{name: "503 unavailable", status: 503, want: ClassRetryable},
		{name: "429 too many requests", status: 429, want: ClassRetryable},
		{name: "408 request timeout", status: 408, want: ClassRetryable},
		{name: "400 bad request", status: 400, want: ClassPermanent},
		{name: "401 unauthorized", status: 401, want: ClassPermanent},
		{name: "404 not found", status: 404, want: ClassPermanent},
		{name: "410 gone", status: 410, want: ClassPermanent},
		{name: "301 redirect not followed to success", status: 301, want: ClassPermanent},
		{name: "transport error", err: errors.New("connection refused"), want: ClassRetryable},
		{name: "timeout error", err: errors.New("context deadline exceeded"), want: ClassRetryable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err, tt.status); got != tt.want {
				t.Errorf("Classify(%v, %d) = %v, want %v", tt.err, tt.status, got, tt.want)
			}
		})
	}
}

func TestReason(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		want   string
	}{
		{name: "client timeout", err: errors.New("Client.Timeout exceeded while awaiting headers"), want: "timeout"},
		{name: "deadline exceeded", err: errors.New("context deadline exceeded"), want: "timeout"},
		{name: "connection refused", err: errors.New("dial tcp 127.0.0.1:9999: connect: connection refused"), want: "connection_refused"},
		{name: "dns failure", err: errors.New("dial tcp: lookup nohost.invalid: no such host"), want: "dns_error"},
		{name: "other network error", err: errors.New("EOF"), want: "network"},
		{name: "server error", status: 503, want: "http_5xx"},
		{name: "rate limited", status: 429, want: "http_429"},
		{name: "request timeout status", status: 408, want: "http_4xx"},
		{name: "no failure", status: 200, want: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Reason(tt.err, tt.status); got != tt.want {
				t.Errorf("Reason(%v, %d) = %q, want %q", tt.err, tt.status, got, tt.want)
			}
		})
	}
}

func TestTaskRoundTrip(t *testing.T) {
	task := Task{
		DeliveryID:     "d-1",
		SubscriptionID: "s-1",
		Attempt:        2,
		EnqueuedAt:     "2026-01-02T15:04:05Z",
		TraceHeaders:   map[string]string{"traceparent": "00-abc-def-01"},
	}

	raw, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("Marshal() unexpected error: %v", err)
	}

	var decoded Task
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal() unexpected error: %v", err)
	}
	if decoded.DeliveryID != task.DeliveryID || decoded.SubscriptionID != task.SubscriptionID {
		t.Errorf("round trip ids = %+v, want %+v", decoded, task)
	}
	if decoded.Attempt != task.Attempt {
		t.Errorf("round trip attempt = %d, want %d", decoded.Attempt, task.Attempt)
	}
	if decoded.TraceHeaders["traceparent"] != task.TraceHeaders["traceparent"] {
		t.Errorf("round trip trace headers = %v, want %v", decoded.TraceHeaders, task.TraceHeaders)
	}
}
