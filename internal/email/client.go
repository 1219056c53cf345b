// Package email defines the transactional email gateway and provides a
// Resend-backed implementation plus the funnel's HTML templates.
//
// The gateway performs no deduplication — at-most-once delivery is the
// caller's responsibility, enforced through status guards in the store layer.
package email

import (
	"context"
	"errors"
	"fmt"
)

// Message is one rendered email ready for dispatch.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender is the interface all dispatch paths use. The concrete implementation
// is the Resend client; tests inject a stub that records calls.
type Sender interface {
	// Send delivers the message and returns the provider message id.
	// Failures are *DispatchError values: check IsPermanent to decide between
	// retry (leave pending) and terminal failure (mark failed).
	Send(ctx context.Context, m Message) (string, error)
}

// DispatchError is a failed send. Permanent means the provider rejected the
// message at the application level (bad address, invalid payload) and a retry
// with the same input can never succeed. Transient covers network failures,
// timeouts, and provider 5xx/429 responses.
type DispatchError struct {
	Permanent bool
	Err       error
}

func (e *DispatchError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("email: %s dispatch failure: %v", kind, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// IsPermanent reports whether err is a permanent dispatch failure. A non
// dispatch error (e.g. context cancellation) counts as transient.
func IsPermanent(err error) bool {
	var de *DispatchError
	return errors.As(err, &de) && de.Permanent
}
