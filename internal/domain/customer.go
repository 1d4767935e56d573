package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CustomerStatus enumerates lifecycle states for queue customers.
type CustomerStatus string

const (
	CustomerStatusWaiting CustomerStatus = "WAITING"
	CustomerStatusCalled  CustomerStatus = "CALLED"
	CustomerStatusServed  CustomerStatus = "SERVED"
	CustomerStatusNoShow  CustomerStatus = "NO_SHOW"
	CustomerStatusRemoved CustomerStatus = "REMOVED"
)

// IsTerminal reports whether no further transition is possible.
func (s CustomerStatus) IsTerminal() bool {
	return s == CustomerStatusServed || s == CustomerStatusNoShow || s == CustomerStatusRemoved
}

// QueueCustomer is a single customer's entry within a queue. It is owned
// exclusively by its Queue aggregate: entries are created through
// Queue.AddCustomer and mutated only through aggregate methods.
type QueueCustomer struct {
	ID           string
	Token        string
	Name         string
	JoinPosition int
	JoinedAt     time.Time
	Phone        *string
	PartySize    *int
	Notes        *string
	Status       CustomerStatus

	// CalledAt is set once, when the customer is called forward.
	CalledAt *time.Time

	// CompletedAt records the terminal transition time for both SERVED
	// and NO_SHOW; the status disambiguates which one happened.
	CompletedAt *time.Time

	PushSubscription    *string
	NearFrontNotifiedAt *time.Time
}

// CustomerDetails carries the optional attributes collected at join time.
type CustomerDetails struct {
	Phone     *string
	PartySize *int
	Notes     *string
}

// call transitions WAITING -> CALLED. The aggregate's selection logic only
// ever picks a waiting customer, so a wrong-state call here is a bug in the
// aggregate, not a caller mistake.
func (c *QueueCustomer) call(now time.Time) {
	if c.Status != CustomerStatusWaiting {
		panic(fmt.Sprintf("call invoked on customer %s in status %s", c.ID, c.Status))
	}
	c.Status = CustomerStatusCalled
	at := now
	c.CalledAt = &at
}

// serve transitions CALLED -> SERVED.
func (c *QueueCustomer) serve(now time.Time) error {
	if c.Status != CustomerStatusCalled {
		return &Error{Code: ErrCodeNotCalled, Message: "customer not in called state"}
	}
	c.Status = CustomerStatusServed
	at := now
	c.CompletedAt = &at
	return nil
}

// markNoShow transitions CALLED -> NO_SHOW.
func (c *QueueCustomer) markNoShow(now time.Time) error {
	if c.Status != CustomerStatusCalled {
		return &Error{Code: ErrCodeNotCalled, Message: "can only mark called customers as no-show"}
	}
	c.Status = CustomerStatusNoShow
	at := now
	c.CompletedAt = &at
	return nil
}

// remove transitions WAITING or CALLED -> REMOVED.
func (c *QueueCustomer) remove() error {
	if c.Status.IsTerminal() {
		return ErrAlreadyCompleted
	}
	c.Status = CustomerStatusRemoved
	return nil
}

// newAccessToken generates the opaque per-customer token embedded in the
// anonymous status link. Tokens are random, never reused, and unique for
// practical purposes.
func newAccessToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
