package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	d := NewInMemoryDispatcher()

	var first, second []Event
	d.Subscribe(EventCustomerCalled, func(_ context.Context, e Event) error {
		first = append(first, e)
		return errors.New("handler failure")
	})
	d.Subscribe(EventCustomerCalled, func(_ context.Context, e Event) error {
		second = append(second, e)
		return nil
	})

	err := d.Publish(context.Background(), Event{ID: "e1", Type: EventCustomerCalled, QueueID: "q1"})
	require.NoError(t, err)

	// a failing handler does not block delivery to the rest
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, "e1", second[0].ID)
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	d := NewInMemoryDispatcher()
	err := d.Publish(context.Background(), Event{Type: EventQueueUpdated})
	assert.NoError(t, err)
}

func TestSubscribersAreTypeScoped(t *testing.T) {
	d := NewInMemoryDispatcher()

	var got []EventType
	d.Subscribe(EventCustomerJoined, func(_ context.Context, e Event) error {
		got = append(got, e.Type)
		return nil
	})

	require.NoError(t, d.Publish(context.Background(), Event{Type: EventCustomerCalled}))
	require.NoError(t, d.Publish(context.Background(), Event{Type: EventCustomerJoined}))

	assert.Equal(t, []EventType{EventCustomerJoined}, got)
}
