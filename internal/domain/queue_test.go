package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := NewQueue("Walk-ins", "walk-ins", t0)
	require.NoError(t, err)
	return q
}

func TestNewQueueNormalizesSlug(t *testing.T) {
	q, err := NewQueue("Front Desk", "  Front-Desk  ", t0)
	require.NoError(t, err)
	assert.Equal(t, "front-desk", q.Slug)
	assert.True(t, q.IsActive)
	assert.False(t, q.IsPaused)
	assert.Equal(t, Version(1), q.Version)

	_, err = NewQueue("", "x", t0)
	assert.ErrorIs(t, err, ErrInvalidName)
	_, err = NewQueue("x", "   ", t0)
	assert.ErrorIs(t, err, ErrInvalidSlug)
}

func TestAddCustomerAssignsIncreasingJoinPositions(t *testing.T) {
	q := newTestQueue(t)

	for i := 1; i <= 5; i++ {
		c, err := q.AddCustomer("Guest", t0.Add(time.Duration(i)*time.Minute), CustomerDetails{})
		require.NoError(t, err)
		assert.Equal(t, i, c.JoinPosition)
		assert.Equal(t, CustomerStatusWaiting, c.Status)
		assert.NotEmpty(t, c.Token)
		assert.NotEmpty(t, c.ID)
	}

	// removal must not free up a join position
	customers := q.Customers()
	require.NoError(t, q.RemoveCustomer(customers[2].ID))
	c, err := q.AddCustomer("Late", t0.Add(time.Hour), CustomerDetails{})
	require.NoError(t, err)
	assert.Equal(t, 6, c.JoinPosition)
}

func TestAddCustomerValidation(t *testing.T) {
	q := newTestQueue(t)

	_, err := q.AddCustomer("   ", t0, CustomerDetails{})
	assert.ErrorIs(t, err, ErrInvalidName)

	long := make([]byte, MaxCustomerNameLength+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = q.AddCustomer(string(long), t0, CustomerDetails{})
	assert.ErrorIs(t, err, ErrInvalidName)

	// exactly 100 characters is accepted
	c, err := q.AddCustomer(string(long[:MaxCustomerNameLength]), t0, CustomerDetails{})
	require.NoError(t, err)
	assert.Len(t, c.Name, MaxCustomerNameLength)

	// name is trimmed
	c, err = q.AddCustomer("  Alice  ", t0, CustomerDetails{})
	require.NoError(t, err)
	assert.Equal(t, "Alice", c.Name)
}

func TestAddCustomerValidationOrder(t *testing.T) {
	q := newTestQueue(t)
	q.Deactivate()

	// invalid name wins over inactive queue
	_, err := q.AddCustomer("", t0, CustomerDetails{})
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = q.AddCustomer("Alice", t0, CustomerDetails{})
	assert.ErrorIs(t, err, ErrQueueNotActive)
}

func TestAddCustomerCapacity(t *testing.T) {
	q := newTestQueue(t)
	limit := 2
	settings := q.Settings
	settings.MaxQueueSize = &limit
	q.UpdateSettings(settings)

	_, err := q.AddCustomer("Alice", t0, CustomerDetails{})
	require.NoError(t, err)
	// one below the limit still succeeds
	_, err = q.AddCustomer("Bob", t0.Add(time.Minute), CustomerDetails{})
	require.NoError(t, err)

	_, err = q.AddCustomer("Charlie", t0.Add(2*time.Minute), CustomerDetails{})
	assert.ErrorIs(t, err, ErrQueueFull)

	// calling someone frees a waiting slot
	_, err = q.CallNext(t0.Add(3 * time.Minute))
	require.NoError(t, err)
	_, err = q.AddCustomer("Charlie", t0.Add(4*time.Minute), CustomerDetails{})
	assert.NoError(t, err)
}

func TestPositionsFollowJoinOrder(t *testing.T) {
	q := newTestQueue(t)
	alice, err := q.AddCustomer("Alice", t0, CustomerDetails{})
	require.NoError(t, err)
	bob, err := q.AddCustomer("Bob", t0.Add(time.Minute), CustomerDetails{})
	require.NoError(t, err)

	pos, ok := q.CustomerPosition(alice.ID)
	require.True(t, ok)
	assert.Equal(t, 1, pos)
	pos, ok = q.CustomerPosition(bob.ID)
	require.True(t, ok)
	assert.Equal(t, 2, pos)

	called, err := q.CallNext(t0.Add(5 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, alice.ID, called.ID)
	assert.Equal(t, CustomerStatusCalled, called.Status)

	// Bob moves up, Alice no longer holds a position
	pos, ok = q.CustomerPosition(bob.ID)
	require.True(t, ok)
	assert.Equal(t, 1, pos)
	_, ok = q.CustomerPosition(alice.ID)
	assert.False(t, ok)
}

func TestCallNextTieBreaksOnJoinPosition(t *testing.T) {
	q := newTestQueue(t)
	first, err := q.AddCustomer("First", t0, CustomerDetails{})
	require.NoError(t, err)
	_, err = q.AddCustomer("Second", t0, CustomerDetails{})
	require.NoError(t, err)

	called, err := q.CallNext(t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, first.ID, called.ID)
}

func TestCallNextErrors(t *testing.T) {
	q := newTestQueue(t)
	_, err := q.CallNext(t0)
	assert.ErrorIs(t, err, ErrQueueEmpty)

	c, err := q.AddCustomer("Alice", t0, CustomerDetails{})
	require.NoError(t, err)
	_, err = q.CallNext(t0.Add(time.Minute))
	require.NoError(t, err)

	// all customers called: queue is empty again
	_, err = q.CallNext(t0.Add(2 * time.Minute))
	assert.ErrorIs(t, err, ErrQueueEmpty)

	require.NoError(t, q.MarkServed(c.ID, t0.Add(3*time.Minute)))

	q.Deactivate()
	_, err = q.CallNext(t0.Add(4 * time.Minute))
	assert.ErrorIs(t, err, ErrQueueNotActive)
}

func TestMarkServedRequiresCalledState(t *testing.T) {
	q := newTestQueue(t)
	alice, err := q.AddCustomer("Alice", t0, CustomerDetails{})
	require.NoError(t, err)

	err = q.MarkServed(alice.ID, t0.Add(time.Minute))
	assert.ErrorIs(t, err, ErrNotCalled)

	err = q.MarkServed("missing", t0.Add(time.Minute))
	assert.ErrorIs(t, err, ErrCustomerNotFound)

	_, err = q.CallNext(t0.Add(2 * time.Minute))
	require.NoError(t, err)
	require.NoError(t, q.MarkServed(alice.ID, t0.Add(3*time.Minute)))
	assert.Equal(t, CustomerStatusServed, alice.Status)
	require.NotNil(t, alice.CompletedAt)
	assert.Equal(t, t0.Add(3*time.Minute), *alice.CompletedAt)
}

func TestMarkNoShowRequiresCalledState(t *testing.T) {
	q := newTestQueue(t)
	alice, err := q.AddCustomer("Alice", t0, CustomerDetails{})
	require.NoError(t, err)

	err = q.MarkNoShow(alice.ID, t0.Add(time.Minute))
	assert.ErrorIs(t, err, ErrNotCalled)

	_, err = q.CallNext(t0.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, q.MarkNoShow(alice.ID, t0.Add(10*time.Minute)))
	assert.Equal(t, CustomerStatusNoShow, alice.Status)
	require.NotNil(t, alice.CompletedAt)
}

func TestRemoveCustomer(t *testing.T) {
	q := newTestQueue(t)
	alice, err := q.AddCustomer("Alice", t0, CustomerDetails{})
	require.NoError(t, err)

	assert.ErrorIs(t, q.RemoveCustomer("missing"), ErrCustomerNotFound)
	require.NoError(t, q.RemoveCustomer(alice.ID))
	assert.Equal(t, CustomerStatusRemoved, alice.Status)

	// terminal statuses reject further transitions
	assert.ErrorIs(t, q.RemoveCustomer(alice.ID), ErrAlreadyCompleted)
}

func TestRemoveAfterNoShowReportsAlreadyCompleted(t *testing.T) {
	q := newTestQueue(t)
	alice, err := q.AddCustomer("Alice", t0, CustomerDetails{})
	require.NoError(t, err)
	_, err = q.CallNext(t0.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, q.MarkNoShow(alice.ID, t0.Add(10*time.Minute)))

	assert.ErrorIs(t, q.RemoveCustomer(alice.ID), ErrAlreadyCompleted)
	assert.ErrorIs(t, q.MarkServed(alice.ID, t0.Add(11*time.Minute)), ErrNotCalled)
}

func TestUpdatedPositionsIsIdempotent(t *testing.T) {
	q := newTestQueue(t)
	for i := 0; i < 4; i++ {
		_, err := q.AddCustomer("Guest", t0.Add(time.Duration(i)*time.Minute), CustomerDetails{})
		require.NoError(t, err)
	}
	_, err := q.CallNext(t0.Add(time.Hour))
	require.NoError(t, err)

	first := q.UpdatedPositions()
	second := q.UpdatedPositions()
	assert.Equal(t, first, second)

	require.Len(t, first, 3)
	for i, update := range first {
		assert.Equal(t, i+1, update.Position)
	}
}

func TestPositionMatchesCountOfEarlierWaiting(t *testing.T) {
	q := newTestQueue(t)
	var ids []string
	for i := 0; i < 6; i++ {
		c, err := q.AddCustomer("Guest", t0.Add(time.Duration(i%3)*time.Minute), CustomerDetails{})
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}
	require.NoError(t, q.RemoveCustomer(ids[1]))

	for _, update := range q.UpdatedPositions() {
		target := q.CustomerByID(update.CustomerID)
		earlier := 0
		for _, other := range q.Customers() {
			if other.Status != CustomerStatusWaiting || other.ID == target.ID {
				continue
			}
			if waitingBefore(other, target) {
				earlier++
			}
		}
		assert.Equal(t, earlier+1, update.Position)
	}
}

func TestWaitingAndServedCounts(t *testing.T) {
	q := newTestQueue(t)
	alice, _ := q.AddCustomer("Alice", t0, CustomerDetails{})
	bob, _ := q.AddCustomer("Bob", t0.Add(time.Minute), CustomerDetails{})
	_, _ = q.AddCustomer("Cara", t0.Add(2*time.Minute), CustomerDetails{})
	assert.Equal(t, 3, q.WaitingCount())

	_, err := q.CallNext(t0.Add(3 * time.Minute))
	require.NoError(t, err)
	require.NoError(t, q.MarkServed(alice.ID, t0.Add(4*time.Minute)))
	_, err = q.CallNext(t0.Add(5 * time.Minute))
	require.NoError(t, err)
	require.NoError(t, q.MarkNoShow(bob.ID, t0.Add(15*time.Minute)))

	assert.Equal(t, 1, q.WaitingCount())

	// no-shows never count as served
	assert.Equal(t, 1, q.ServedCount(t0))
	assert.Equal(t, 1, q.ServedCount(t0.Add(4*time.Minute)))
	// served count is non-increasing as the threshold moves forward
	assert.Equal(t, 0, q.ServedCount(t0.Add(5*time.Minute)))
}

func TestNoShowEligible(t *testing.T) {
	q := newTestQueue(t)
	alice, _ := q.AddCustomer("Alice", t0, CustomerDetails{})
	_, _ = q.AddCustomer("Bob", t0.Add(time.Minute), CustomerDetails{})

	assert.Empty(t, q.NoShowEligible(t0.Add(time.Hour)))

	_, err := q.CallNext(t0.Add(2 * time.Minute))
	require.NoError(t, err)

	// default timeout is five minutes
	assert.Empty(t, q.NoShowEligible(t0.Add(6*time.Minute)))
	eligible := q.NoShowEligible(t0.Add(7 * time.Minute))
	require.Len(t, eligible, 1)
	assert.Equal(t, alice.ID, eligible[0].ID)
}

func TestMarkNearFrontFlagsOnce(t *testing.T) {
	q := newTestQueue(t)
	threshold := 2
	settings := q.Settings
	settings.NearFrontThreshold = &threshold
	q.UpdateSettings(settings)

	var ids []string
	for i := 0; i < 4; i++ {
		c, err := q.AddCustomer("Guest", t0.Add(time.Duration(i)*time.Minute), CustomerDetails{})
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}

	flagged := q.MarkNearFront(t0.Add(time.Hour))
	require.Len(t, flagged, 2)
	assert.Equal(t, ids[0], flagged[0].ID)
	assert.Equal(t, ids[1], flagged[1].ID)

	// already-flagged customers are not flagged again
	assert.Empty(t, q.MarkNearFront(t0.Add(2*time.Hour)))

	_, err := q.CallNext(t0.Add(3 * time.Hour))
	require.NoError(t, err)
	flagged = q.MarkNearFront(t0.Add(3 * time.Hour))
	require.Len(t, flagged, 1)
	assert.Equal(t, ids[2], flagged[0].ID)
}

func TestAcceptingJoins(t *testing.T) {
	q := newTestQueue(t)
	assert.True(t, q.AcceptingJoins())

	q.Pause()
	assert.False(t, q.AcceptingJoins())

	settings := q.Settings
	settings.AllowJoinWhenPaused = true
	q.UpdateSettings(settings)
	assert.True(t, q.AcceptingJoins())

	q.Deactivate()
	assert.False(t, q.AcceptingJoins())
}

func TestAdministrativeMutators(t *testing.T) {
	q := newTestQueue(t)

	assert.ErrorIs(t, q.Rename("  "), ErrInvalidName)
	require.NoError(t, q.Rename("  Counter A  "))
	assert.Equal(t, "Counter A", q.Name)

	assert.ErrorIs(t, q.UpdateSlug(""), ErrInvalidSlug)
	require.NoError(t, q.UpdateSlug(" Counter-A "))
	assert.Equal(t, "counter-a", q.Slug)

	q.UpdateSettings(QueueSettings{})
	assert.Equal(t, DefaultEstimatedServiceMinutes, q.Settings.EstimatedServiceMinutes)
	assert.Equal(t, DefaultNoShowTimeoutMinutes, q.Settings.NoShowTimeoutMinutes)
}

func TestSetPushSubscription(t *testing.T) {
	q := newTestQueue(t)
	alice, err := q.AddCustomer("Alice", t0, CustomerDetails{})
	require.NoError(t, err)

	assert.ErrorIs(t, q.SetPushSubscription("bogus", "payload"), ErrCustomerNotFound)
	require.NoError(t, q.SetPushSubscription(alice.Token, `{"endpoint":"https://push"}`))
	require.NotNil(t, alice.PushSubscription)
}

func TestCustomersReturnsCopyOfSlice(t *testing.T) {
	q := newTestQueue(t)
	_, err := q.AddCustomer("Alice", t0, CustomerDetails{})
	require.NoError(t, err)

	customers := q.Customers()
	customers[0] = nil
	require.NotNil(t, q.Customers()[0])
}

func TestCustomerLookupByToken(t *testing.T) {
	q := newTestQueue(t)
	alice, err := q.AddCustomer("Alice", t0, CustomerDetails{})
	require.NoError(t, err)

	assert.Equal(t, alice, q.CustomerByToken(alice.Token))
	assert.Nil(t, q.CustomerByToken("unknown"))
}

func TestDomainErrorMatchingByCode(t *testing.T) {
	err := &Error{Code: ErrCodeNotCalled, Message: "can only mark called customers as no-show"}
	assert.True(t, errors.Is(err, ErrNotCalled))
	assert.False(t, errors.Is(err, ErrQueueFull))
}
