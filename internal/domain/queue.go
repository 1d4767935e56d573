package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxCustomerNameLength bounds the display name accepted at join time.
const MaxCustomerNameLength = 100

// Version is the aggregate's concurrency token. The aggregate carries it
// but never interprets it; the repository compares it on save to detect
// conflicting concurrent writes.
type Version int64

// PositionUpdate pairs a waiting customer with their current 1-based rank.
type PositionUpdate struct {
	CustomerID string
	Token      string
	Position   int
}

// Queue is the aggregate root owning every customer entry of one walk-in
// queue. All ticket mutations go through its methods; the customer
// collection is never handed out as a mutable reference.
//
// A Queue is not safe for concurrent mutation of a single in-memory
// instance. Concurrency safety comes from the optimistic version check at
// the persistence boundary plus the caller's load-mutate-save retry cycle.
type Queue struct {
	ID        string
	Name      string
	Slug      string
	IsActive  bool
	IsPaused  bool
	CreatedAt time.Time
	Settings  QueueSettings
	Version   Version

	customers []*QueueCustomer
}

// NewQueue creates an active, unpaused queue with default settings.
func NewQueue(name, slug string, createdAt time.Time) (*Queue, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	slug = normalizeSlug(slug)
	if slug == "" {
		return nil, ErrInvalidSlug
	}
	return &Queue{
		ID:        uuid.NewString(),
		Name:      name,
		Slug:      slug,
		IsActive:  true,
		CreatedAt: createdAt,
		Settings:  DefaultQueueSettings(),
		Version:   1,
	}, nil
}

// RestoreQueue rehydrates a persisted aggregate. The customers slice is
// owned by the queue after this call.
func RestoreQueue(id, name, slug string, active, paused bool, createdAt time.Time, settings QueueSettings, version Version, customers []*QueueCustomer) *Queue {
	return &Queue{
		ID:        id,
		Name:      name,
		Slug:      slug,
		IsActive:  active,
		IsPaused:  paused,
		CreatedAt: createdAt,
		Settings:  settings,
		Version:   version,
		customers: customers,
	}
}

// Customers returns the owned entries in join order. The returned slice is
// a copy; the entries themselves must be treated as read-only outside the
// domain package.
func (q *Queue) Customers() []*QueueCustomer {
	out := make([]*QueueCustomer, len(q.customers))
	copy(out, q.customers)
	return out
}

// AddCustomer validates and appends a new waiting customer. Validation
// order: name first, then active flag, then capacity. Join positions are
// strictly increasing from 1 and never reused.
func (q *Queue) AddCustomer(name string, joinedAt time.Time, details CustomerDetails) (*QueueCustomer, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > MaxCustomerNameLength {
		return nil, ErrInvalidName
	}
	if !q.IsActive {
		return nil, ErrQueueNotActive
	}
	if q.Settings.MaxQueueSize != nil && q.WaitingCount() >= *q.Settings.MaxQueueSize {
		return nil, ErrQueueFull
	}

	customer := &QueueCustomer{
		ID:           uuid.NewString(),
		Token:        newAccessToken(),
		Name:         name,
		JoinPosition: len(q.customers) + 1,
		JoinedAt:     joinedAt,
		Phone:        details.Phone,
		PartySize:    details.PartySize,
		Notes:        details.Notes,
		Status:       CustomerStatusWaiting,
	}
	q.customers = append(q.customers, customer)
	return customer, nil
}

// CallNext transitions the longest-waiting customer to CALLED and returns
// it. Selection is by earliest JoinedAt, ties broken by lowest
// JoinPosition, so the winner is deterministic even when two joins share a
// timestamp.
func (q *Queue) CallNext(now time.Time) (*QueueCustomer, error) {
	if !q.IsActive {
		return nil, ErrQueueNotActive
	}
	var next *QueueCustomer
	for _, c := range q.customers {
		if c.Status != CustomerStatusWaiting {
			continue
		}
		if next == nil || waitingBefore(c, next) {
			next = c
		}
	}
	if next == nil {
		return nil, ErrQueueEmpty
	}
	next.call(now)
	return next, nil
}

// MarkServed transitions a called customer to SERVED.
func (q *Queue) MarkServed(customerID string, now time.Time) error {
	c := q.customerByID(customerID)
	if c == nil {
		return ErrCustomerNotFound
	}
	return c.serve(now)
}

// MarkNoShow transitions a called customer to NO_SHOW. Used both by staff
// and by the background sweep.
func (q *Queue) MarkNoShow(customerID string, now time.Time) error {
	c := q.customerByID(customerID)
	if c == nil {
		return ErrCustomerNotFound
	}
	return c.markNoShow(now)
}

// RemoveCustomer transitions a non-terminal customer to REMOVED. Removal
// is a status transition, never a deletion; the entry stays in the
// collection and its join position is never reused.
func (q *Queue) RemoveCustomer(customerID string) error {
	c := q.customerByID(customerID)
	if c == nil {
		return ErrCustomerNotFound
	}
	return c.remove()
}

// CustomerPosition returns the customer's 1-based rank among waiting
// entries, or false if the customer is not currently waiting.
func (q *Queue) CustomerPosition(customerID string) (int, bool) {
	for i, c := range q.waitingSorted() {
		if c.ID == customerID {
			return i + 1, true
		}
	}
	return 0, false
}

// UpdatedPositions recomputes the full waiting ranking. Rankings are
// recomputed from scratch on every query; calls, no-shows, and removals
// can each shift every remaining member, and queues are small enough that
// incremental maintenance is not worth its complexity.
func (q *Queue) UpdatedPositions() []PositionUpdate {
	waiting := q.waitingSorted()
	updates := make([]PositionUpdate, 0, len(waiting))
	for i, c := range waiting {
		updates = append(updates, PositionUpdate{
			CustomerID: c.ID,
			Token:      c.Token,
			Position:   i + 1,
		})
	}
	return updates
}

// WaitingCount counts customers currently in WAITING.
func (q *Queue) WaitingCount() int {
	count := 0
	for _, c := range q.customers {
		if c.Status == CustomerStatusWaiting {
			count++
		}
	}
	return count
}

// ServedCount counts customers served at or after the given time. NO_SHOW
// completions do not count.
func (q *Queue) ServedCount(since time.Time) int {
	count := 0
	for _, c := range q.customers {
		if c.Status == CustomerStatusServed && c.CompletedAt != nil && !c.CompletedAt.Before(since) {
			count++
		}
	}
	return count
}

// CustomerByID returns the entry with the given id, or nil.
func (q *Queue) CustomerByID(id string) *QueueCustomer {
	return q.customerByID(id)
}

// CustomerByToken returns the entry holding the given access token, or nil.
func (q *Queue) CustomerByToken(token string) *QueueCustomer {
	for _, c := range q.customers {
		if c.Token == token {
			return c
		}
	}
	return nil
}

// NoShowEligible returns called customers whose call has outlived the
// queue's no-show timeout as of now.
func (q *Queue) NoShowEligible(now time.Time) []*QueueCustomer {
	var eligible []*QueueCustomer
	for _, c := range q.customers {
		if c.Status != CustomerStatusCalled || c.CalledAt == nil {
			continue
		}
		if now.Sub(*c.CalledAt) >= q.Settings.NoShowTimeout() {
			eligible = append(eligible, c)
		}
	}
	return eligible
}

// MarkNearFront flags waiting customers whose position has reached the
// configured threshold and who have not been alerted yet, returning the
// newly flagged entries. The flag is one-time per customer.
func (q *Queue) MarkNearFront(now time.Time) []*QueueCustomer {
	if q.Settings.NearFrontThreshold == nil {
		return nil
	}
	threshold := *q.Settings.NearFrontThreshold
	var flagged []*QueueCustomer
	for i, c := range q.waitingSorted() {
		if i+1 > threshold {
			break
		}
		if c.NearFrontNotifiedAt != nil {
			continue
		}
		at := now
		c.NearFrontNotifiedAt = &at
		flagged = append(flagged, c)
	}
	return flagged
}

// SetPushSubscription attaches a push-delivery payload to the customer
// holding the given access token.
func (q *Queue) SetPushSubscription(token, subscription string) error {
	c := q.CustomerByToken(token)
	if c == nil {
		return ErrCustomerNotFound
	}
	c.PushSubscription = &subscription
	return nil
}

// AcceptingJoins reports whether the join surface should admit new
// customers: the queue must be active, and a paused queue only admits when
// its settings allow it. AddCustomer itself checks only the active flag.
func (q *Queue) AcceptingJoins() bool {
	if !q.IsActive {
		return false
	}
	return !q.IsPaused || q.Settings.AllowJoinWhenPaused
}

// Activate re-enables the queue.
func (q *Queue) Activate() { q.IsActive = true }

// Deactivate disables joining and calling.
func (q *Queue) Deactivate() { q.IsActive = false }

// Pause marks the queue paused; existing customers keep their places.
func (q *Queue) Pause() { q.IsPaused = true }

// Resume clears the paused flag.
func (q *Queue) Resume() { q.IsPaused = false }

// Rename updates the display name.
func (q *Queue) Rename(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	q.Name = name
	return nil
}

// UpdateSlug replaces the URL slug, normalizing it to trimmed lower case.
func (q *Queue) UpdateSlug(slug string) error {
	slug = normalizeSlug(slug)
	if slug == "" {
		return ErrInvalidSlug
	}
	q.Slug = slug
	return nil
}

// UpdateSettings replaces the settings value wholesale.
func (q *Queue) UpdateSettings(settings QueueSettings) {
	q.Settings = settings.normalized()
}

func (q *Queue) customerByID(id string) *QueueCustomer {
	for _, c := range q.customers {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// waitingSorted returns waiting customers ordered by (JoinedAt,
// JoinPosition). This composite key is the single ranking rule used
// everywhere positions are computed.
func (q *Queue) waitingSorted() []*QueueCustomer {
	var waiting []*QueueCustomer
	for _, c := range q.customers {
		if c.Status == CustomerStatusWaiting {
			waiting = append(waiting, c)
		}
	}
	sort.Slice(waiting, func(i, j int) bool {
		return waitingBefore(waiting[i], waiting[j])
	})
	return waiting
}

func waitingBefore(a, b *QueueCustomer) bool {
	if !a.JoinedAt.Equal(b.JoinedAt) {
		return a.JoinedAt.Before(b.JoinedAt)
	}
	return a.JoinPosition < b.JoinPosition
}

func normalizeSlug(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}
