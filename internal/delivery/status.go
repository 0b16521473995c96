// Package delivery holds the delivery state machine, the queue task shape,
// and outcome classification shared by the gateway, workers and sweeper.
package delivery

// Status is the lifecycle state of a delivery.
type Status string

const (
	StatusPending    Status = "pending"    // created, not yet claimed
	StatusProcessing Status = "processing" // exclusively claimed by one worker
	StatusSucceeded  Status = "succeeded"  // terminal: 2xx from the target
	StatusRetrying   Status = "retrying"   // retryable failure, requeued
	StatusFailed     Status = "failed"     // terminal: permanent or exhausted
)

// transitions is the legal-transition table. Claims move pending|retrying
// into processing; a worker execution moves processing into exactly one of
// the remaining states. Terminal states have no successors.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusRetrying:   {StatusProcessing},
	StatusProcessing: {StatusSucceeded, StatusRetrying, StatusFailed},
	StatusSucceeded:  nil,
	StatusFailed:     nil,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no further attempts may occur.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// CanTransition reports whether from -> to is a legal state change.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
