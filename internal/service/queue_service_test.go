package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qline/queue-service/internal/domain"
	"github.com/qline/queue-service/internal/events"
	"github.com/qline/queue-service/internal/repository"
)

var testNow = time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

// memoryQueueRepository mimics the conditional-save contract of the real
// repository: Load hands out an independent copy, Save succeeds only when
// the incoming version matches the stored one.
type memoryQueueRepository struct {
	mu            sync.Mutex
	byID          map[string]*domain.Queue
	failNextSaves int
	saveCalls     int
}

func newMemoryQueueRepository() *memoryQueueRepository {
	return &memoryQueueRepository{byID: make(map[string]*domain.Queue)}
}

func cloneQueue(q *domain.Queue) *domain.Queue {
	src := q.Customers()
	customers := make([]*domain.QueueCustomer, len(src))
	for i, c := range src {
		cc := *c
		customers[i] = &cc
	}
	return domain.RestoreQueue(q.ID, q.Name, q.Slug, q.IsActive, q.IsPaused, q.CreatedAt, q.Settings, q.Version, customers)
}

func (m *memoryQueueRepository) Create(_ context.Context, queue *domain.Queue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[queue.ID] = cloneQueue(queue)
	return nil
}

func (m *memoryQueueRepository) Load(_ context.Context, id string) (*domain.Queue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return cloneQueue(stored), nil
}

func (m *memoryQueueRepository) LoadBySlug(_ context.Context, slug string) (*domain.Queue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, stored := range m.byID {
		if stored.Slug == slug {
			return cloneQueue(stored), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memoryQueueRepository) Save(_ context.Context, queue *domain.Queue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	if m.failNextSaves > 0 {
		m.failNextSaves--
		return repository.ErrVersionConflict
	}
	stored, ok := m.byID[queue.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if stored.Version != queue.Version {
		return repository.ErrVersionConflict
	}
	next := cloneQueue(queue)
	next.Version++
	m.byID[queue.ID] = next
	queue.Version++
	return nil
}

func (m *memoryQueueRepository) ListActiveIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, stored := range m.byID {
		if stored.IsActive {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memoryQueueRepository) FindQueueIDByToken(_ context.Context, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, stored := range m.byID {
		if stored.CustomerByToken(token) != nil {
			return id, nil
		}
	}
	return "", pgx.ErrNoRows
}

// recordingDispatcher captures published events in order.
type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) types() []events.EventType {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]events.EventType, 0, len(d.events))
	for _, ev := range d.events {
		out = append(out, ev.Type)
	}
	return out
}

func (d *recordingDispatcher) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = nil
}

func newTestService(t *testing.T) (*QueueService, *memoryQueueRepository, *recordingDispatcher, *domain.Queue) {
	t.Helper()
	repo := newMemoryQueueRepository()
	dispatcher := &recordingDispatcher{}
	svc := NewQueueService(repo, dispatcher, zap.NewNop(), DefaultSaveAttempts)

	queue, err := svc.CreateQueue(context.Background(), "Walk-ins", "walk-ins", testNow)
	require.NoError(t, err)
	return svc, repo, dispatcher, queue
}

func TestJoinQueueAssignsPositionAndPublishes(t *testing.T) {
	svc, repo, dispatcher, queue := newTestService(t)
	ctx := context.Background()

	alice, pos, err := svc.JoinQueue(ctx, "walk-ins", testNow, JoinInput{Name: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
	assert.Equal(t, domain.CustomerStatusWaiting, alice.Status)

	_, pos, err = svc.JoinQueue(ctx, "walk-ins", testNow.Add(time.Minute), JoinInput{Name: "Bob"})
	require.NoError(t, err)
	assert.Equal(t, 2, pos)

	stored, err := repo.Load(ctx, queue.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Customers(), 2)
	// two joins, each bumping the version past the initial create
	assert.Equal(t, domain.Version(3), stored.Version)

	assert.Equal(t, []events.EventType{
		events.EventCustomerJoined, events.EventQueueUpdated,
		events.EventCustomerJoined, events.EventQueueUpdated,
	}, dispatcher.types())
}

func TestJoinQueuePausedPolicy(t *testing.T) {
	svc, _, _, queue := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Pause(ctx, queue.ID))
	_, _, err := svc.JoinQueue(ctx, "walk-ins", testNow, JoinInput{Name: "Alice"})
	assert.ErrorIs(t, err, domain.ErrQueuePaused)

	// a blank name is reported before the paused state
	_, _, err = svc.JoinQueue(ctx, "walk-ins", testNow, JoinInput{Name: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	settings := queue.Settings
	settings.AllowJoinWhenPaused = true
	require.NoError(t, svc.UpdateSettings(ctx, queue.ID, settings))
	_, _, err = svc.JoinQueue(ctx, "walk-ins", testNow, JoinInput{Name: "Alice"})
	assert.NoError(t, err)

	require.NoError(t, svc.Deactivate(ctx, queue.ID))
	_, _, err = svc.JoinQueue(ctx, "walk-ins", testNow, JoinInput{Name: "Bob"})
	assert.ErrorIs(t, err, domain.ErrQueueNotActive)
}

func TestCallNextAdvancesOldestFirst(t *testing.T) {
	svc, repo, dispatcher, queue := newTestService(t)
	ctx := context.Background()

	alice, _, err := svc.JoinQueue(ctx, "walk-ins", testNow, JoinInput{Name: "Alice"})
	require.NoError(t, err)
	bob, _, err := svc.JoinQueue(ctx, "walk-ins", testNow.Add(time.Minute), JoinInput{Name: "Bob"})
	require.NoError(t, err)
	dispatcher.reset()

	called, positions, err := svc.CallNext(ctx, queue.ID, testNow.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, alice.ID, called.ID)
	require.Len(t, positions, 1)
	assert.Equal(t, bob.ID, positions[0].CustomerID)
	assert.Equal(t, 1, positions[0].Position)

	assert.Equal(t, []events.EventType{
		events.EventCustomerCalled, events.EventPositionsChanged, events.EventQueueUpdated,
	}, dispatcher.types())

	called, positions, err = svc.CallNext(ctx, queue.ID, testNow.Add(3*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, bob.ID, called.ID)
	assert.Empty(t, positions)

	_, _, err = svc.CallNext(ctx, queue.ID, testNow.Add(4*time.Minute))
	assert.ErrorIs(t, err, domain.ErrQueueEmpty)

	stored, err := repo.Load(ctx, queue.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CustomerStatusCalled, stored.CustomerByID(alice.ID).Status)
	assert.Equal(t, domain.CustomerStatusCalled, stored.CustomerByID(bob.ID).Status)
}

func TestCallNextRetriesAfterVersionConflict(t *testing.T) {
	svc, repo, dispatcher, queue := newTestService(t)
	ctx := context.Background()

	alice, _, err := svc.JoinQueue(ctx, "walk-ins", testNow, JoinInput{Name: "Alice"})
	require.NoError(t, err)
	dispatcher.reset()

	repo.mu.Lock()
	repo.failNextSaves = 1
	repo.saveCalls = 0
	repo.mu.Unlock()

	called, _, err := svc.CallNext(ctx, queue.ID, testNow.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, alice.ID, called.ID)
	assert.Equal(t, 2, repo.saveCalls)

	// the conflicted attempt published nothing
	assert.Equal(t, []events.EventType{
		events.EventCustomerCalled, events.EventPositionsChanged, events.EventQueueUpdated,
	}, dispatcher.types())

	stored, err := repo.Load(ctx, queue.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CustomerStatusCalled, stored.CustomerByID(alice.ID).Status)
}

func TestConflictExhaustionLeavesStateUntouched(t *testing.T) {
	svc, repo, dispatcher, queue := newTestService(t)
	ctx := context.Background()

	alice, _, err := svc.JoinQueue(ctx, "walk-ins", testNow, JoinInput{Name: "Alice"})
	require.NoError(t, err)
	dispatcher.reset()

	repo.mu.Lock()
	repo.failNextSaves = DefaultSaveAttempts
	repo.mu.Unlock()

	_, _, err = svc.CallNext(ctx, queue.ID, testNow.Add(time.Minute))
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Empty(t, dispatcher.types())

	stored, err := repo.Load(ctx, queue.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CustomerStatusWaiting, stored.CustomerByID(alice.ID).Status)
}

func TestMarkServedAndNoShowPublishStatusChanges(t *testing.T) {
	svc, repo, dispatcher, queue := newTestService(t)
	ctx := context.Background()

	alice, _, err := svc.JoinQueue(ctx, "walk-ins", testNow, JoinInput{Name: "Alice"})
	require.NoError(t, err)
	bob, _, err := svc.JoinQueue(ctx, "walk-ins", testNow.Add(time.Minute), JoinInput{Name: "Bob"})
	require.NoError(t, err)

	_, _, err = svc.CallNext(ctx, queue.ID, testNow.Add(2*time.Minute))
	require.NoError(t, err)
	dispatcher.reset()

	require.NoError(t, svc.MarkServed(ctx, queue.ID, alice.ID, testNow.Add(3*time.Minute)))
	require.Len(t, dispatcher.events, 2)
	payload, ok := dispatcher.events[0].Payload.(events.CustomerStatusChangedPayload)
	require.True(t, ok)
	assert.Equal(t, domain.CustomerStatusCalled, payload.OldStatus)
	assert.Equal(t, domain.CustomerStatusServed, payload.NewStatus)

	// serving twice fails and publishes nothing further
	dispatcher.reset()
	assert.ErrorIs(t, svc.MarkServed(ctx, queue.ID, alice.ID, testNow.Add(4*time.Minute)), domain.ErrNotCalled)
	assert.Empty(t, dispatcher.types())

	_, _, err = svc.CallNext(ctx, queue.ID, testNow.Add(5*time.Minute))
	require.NoError(t, err)
	dispatcher.reset()

	require.NoError(t, svc.MarkNoShow(ctx, queue.ID, bob.ID, testNow.Add(15*time.Minute)))
	assert.Equal(t, []events.EventType{
		events.EventCustomerStatusChanged, events.EventPositionsChanged, events.EventQueueUpdated,
	}, dispatcher.types())

	stored, err := repo.Load(ctx, queue.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CustomerStatusNoShow, stored.CustomerByID(bob.ID).Status)
}

func TestRemoveCustomerReportsOldStatus(t *testing.T) {
	svc, _, dispatcher, queue := newTestService(t)
	ctx := context.Background()

	alice, _, err := svc.JoinQueue(ctx, "walk-ins", testNow, JoinInput{Name: "Alice"})
	require.NoError(t, err)
	dispatcher.reset()

	require.NoError(t, svc.RemoveCustomer(ctx, queue.ID, alice.ID, testNow.Add(time.Minute)))
	require.NotEmpty(t, dispatcher.events)
	payload, ok := dispatcher.events[0].Payload.(events.CustomerStatusChangedPayload)
	require.True(t, ok)
	assert.Equal(t, domain.CustomerStatusWaiting, payload.OldStatus)
	assert.Equal(t, domain.CustomerStatusRemoved, payload.NewStatus)

	assert.ErrorIs(t, svc.RemoveCustomer(ctx, queue.ID, alice.ID, testNow.Add(2*time.Minute)), domain.ErrAlreadyCompleted)
	assert.ErrorIs(t, svc.RemoveCustomer(ctx, queue.ID, "missing", testNow), domain.ErrCustomerNotFound)
}

func TestCustomerStatusView(t *testing.T) {
	svc, _, _, queue := newTestService(t)
	ctx := context.Background()

	minutes := 10
	welcome := "Welcome!"
	settings := queue.Settings
	settings.EstimatedServiceMinutes = minutes
	settings.WelcomeMessage = &welcome
	require.NoError(t, svc.UpdateSettings(ctx, queue.ID, settings))

	alice, _, err := svc.JoinQueue(ctx, "walk-ins", testNow, JoinInput{Name: "Alice"})
	require.NoError(t, err)
	bob, _, err := svc.JoinQueue(ctx, "walk-ins", testNow.Add(time.Minute), JoinInput{Name: "Bob"})
	require.NoError(t, err)

	view, err := svc.CustomerStatus(ctx, bob.Token)
	require.NoError(t, err)
	assert.Equal(t, 2, view.Position)
	assert.Equal(t, 20, view.EstimatedWaitMinutes)
	assert.Equal(t, queue.ID, view.QueueID)
	require.NotNil(t, view.WelcomeMessage)
	assert.Equal(t, welcome, *view.WelcomeMessage)

	_, _, err = svc.CallNext(ctx, queue.ID, testNow.Add(2*time.Minute))
	require.NoError(t, err)

	// a called customer no longer holds a position
	view, err = svc.CustomerStatus(ctx, alice.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.CustomerStatusCalled, view.Customer.Status)
	assert.Zero(t, view.Position)
	assert.Zero(t, view.EstimatedWaitMinutes)

	_, err = svc.CustomerStatus(ctx, "unknown-token")
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestRegisterPushSubscription(t *testing.T) {
	svc, repo, _, queue := newTestService(t)
	ctx := context.Background()

	alice, _, err := svc.JoinQueue(ctx, "walk-ins", testNow, JoinInput{Name: "Alice"})
	require.NoError(t, err)

	require.NoError(t, svc.RegisterPushSubscription(ctx, alice.Token, `{"endpoint":"https://push"}`))

	stored, err := repo.Load(ctx, queue.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.CustomerByID(alice.ID).PushSubscription)

	assert.ErrorIs(t, svc.RegisterPushSubscription(ctx, "bogus", "{}"), pgx.ErrNoRows)
}

func TestNearFrontAlertsFireOnce(t *testing.T) {
	svc, _, dispatcher, queue := newTestService(t)
	ctx := context.Background()

	threshold := 1
	settings := queue.Settings
	settings.NearFrontThreshold = &threshold
	require.NoError(t, svc.UpdateSettings(ctx, queue.ID, settings))
	dispatcher.reset()

	alice, _, err := svc.JoinQueue(ctx, "walk-ins", testNow, JoinInput{Name: "Alice"})
	require.NoError(t, err)
	bob, _, err := svc.JoinQueue(ctx, "walk-ins", testNow.Add(time.Minute), JoinInput{Name: "Bob"})
	require.NoError(t, err)

	var nearFront []events.CustomerNearFrontPayload
	for _, ev := range dispatcher.events {
		if ev.Type == events.EventCustomerNearFront {
			nearFront = append(nearFront, ev.Payload.(events.CustomerNearFrontPayload))
		}
	}
	require.Len(t, nearFront, 1)
	assert.Equal(t, alice.ID, nearFront[0].CustomerID)
	assert.Equal(t, 1, nearFront[0].Position)

	dispatcher.reset()
	_, _, err = svc.CallNext(ctx, queue.ID, testNow.Add(2*time.Minute))
	require.NoError(t, err)

	nearFront = nil
	for _, ev := range dispatcher.events {
		if ev.Type == events.EventCustomerNearFront {
			nearFront = append(nearFront, ev.Payload.(events.CustomerNearFrontPayload))
		}
	}
	require.Len(t, nearFront, 1)
	assert.Equal(t, bob.ID, nearFront[0].CustomerID)
}

func TestRenameAndSlugUpdate(t *testing.T) {
	svc, repo, _, queue := newTestService(t)
	ctx := context.Background()

	name := "Front Desk"
	slug := " Front-Desk "
	require.NoError(t, svc.Rename(ctx, queue.ID, &name, &slug))

	stored, err := repo.Load(ctx, queue.ID)
	require.NoError(t, err)
	assert.Equal(t, "Front Desk", stored.Name)
	assert.Equal(t, "front-desk", stored.Slug)

	bad := ""
	assert.ErrorIs(t, svc.Rename(ctx, queue.ID, &bad, nil), domain.ErrInvalidName)
}
