package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/qline/queue-service/internal/domain"
	"github.com/qline/queue-service/internal/events"
	"github.com/qline/queue-service/internal/repository"
)

// DefaultSaveAttempts bounds the load-mutate-save retry cycle. Conflicts
// are rare and transient, so there is no backoff between attempts.
const DefaultSaveAttempts = 3

// QueueService is the shell around the queue aggregate: every mutation
// runs as load -> one aggregate operation -> conditional save, retried
// from a fresh load on version conflict. Events are published only after
// a successful save.
type QueueService struct {
	queues       repository.QueueRepository
	dispatcher   events.Dispatcher
	logger       *zap.Logger
	saveAttempts int
}

// NewQueueService constructs the service.
func NewQueueService(queues repository.QueueRepository, dispatcher events.Dispatcher, logger *zap.Logger, saveAttempts int) *QueueService {
	if saveAttempts <= 0 {
		saveAttempts = DefaultSaveAttempts
	}
	return &QueueService{
		queues:       queues,
		dispatcher:   dispatcher,
		logger:       logger,
		saveAttempts: saveAttempts,
	}
}

// JoinInput describes the join-queue payload.
type JoinInput struct {
	Name      string
	Phone     *string
	PartySize *int
	Notes     *string
}

// CustomerStatusView is what the anonymous token link sees.
type CustomerStatusView struct {
	Customer             *domain.QueueCustomer
	QueueID              string
	QueueName            string
	Position             int
	EstimatedWaitMinutes int
	WelcomeMessage       *string
	CalledMessage        *string
}

// CreateQueue provisions a new queue.
func (s *QueueService) CreateQueue(ctx context.Context, name, slug string, now time.Time) (*domain.Queue, error) {
	queue, err := domain.NewQueue(name, slug, now)
	if err != nil {
		return nil, err
	}
	if err := s.queues.Create(ctx, queue); err != nil {
		return nil, err
	}
	return queue, nil
}

// JoinQueue adds a customer to the queue behind the given slug. A paused
// queue rejects joins here unless its settings allow them; the aggregate's
// own AddCustomer validation checks only the active flag.
func (s *QueueService) JoinQueue(ctx context.Context, slug string, joinedAt time.Time, input JoinInput) (*domain.QueueCustomer, int, error) {
	var (
		customer *domain.QueueCustomer
		position int
	)
	err := s.withQueue(ctx, s.bySlug(slug), func(q *domain.Queue) ([]events.Event, error) {
		// Keep the aggregate's validation order intact: a paused queue is
		// only reported once name and active checks would have passed.
		name := strings.TrimSpace(input.Name)
		if name != "" && len(name) <= domain.MaxCustomerNameLength && q.IsActive && !q.AcceptingJoins() {
			return nil, domain.ErrQueuePaused
		}
		added, err := q.AddCustomer(input.Name, joinedAt, domain.CustomerDetails{
			Phone:     input.Phone,
			PartySize: input.PartySize,
			Notes:     input.Notes,
		})
		if err != nil {
			return nil, err
		}
		customer = added
		position, _ = q.CustomerPosition(added.ID)

		evs := []events.Event{
			s.event(q.ID, events.EventCustomerJoined, events.CustomerJoinedPayload{
				CustomerID:     added.ID,
				Token:          added.Token,
				Name:           added.Name,
				Position:       position,
				WelcomeMessage: q.Settings.WelcomeMessage,
			}),
			s.event(q.ID, events.EventQueueUpdated, events.QueueUpdatedPayload{Kind: events.QueueUpdateCustomerJoined}),
		}
		evs = append(evs, s.nearFrontEvents(q, joinedAt)...)
		return evs, nil
	})
	if err != nil {
		return nil, 0, err
	}
	return customer, position, nil
}

// CallNext advances the queue: the longest-waiting customer transitions to
// CALLED and every remaining waiting customer gets a fresh position.
func (s *QueueService) CallNext(ctx context.Context, queueID string, now time.Time) (*domain.QueueCustomer, []domain.PositionUpdate, error) {
	var (
		called    *domain.QueueCustomer
		positions []domain.PositionUpdate
	)
	err := s.withQueue(ctx, s.byID(queueID), func(q *domain.Queue) ([]events.Event, error) {
		next, err := q.CallNext(now)
		if err != nil {
			return nil, err
		}
		called = next
		positions = q.UpdatedPositions()

		evs := []events.Event{
			s.event(q.ID, events.EventCustomerCalled, events.CustomerCalledPayload{
				CustomerID:    next.ID,
				Token:         next.Token,
				Name:          next.Name,
				CalledMessage: q.Settings.CalledMessage,
			}),
			s.event(q.ID, events.EventPositionsChanged, events.PositionsChangedPayload{Positions: positions}),
			s.event(q.ID, events.EventQueueUpdated, events.QueueUpdatedPayload{Kind: events.QueueUpdateCustomerCalled}),
		}
		evs = append(evs, s.nearFrontEvents(q, now)...)
		return evs, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return called, positions, nil
}

// MarkServed completes a called customer.
func (s *QueueService) MarkServed(ctx context.Context, queueID, customerID string, now time.Time) error {
	return s.withQueue(ctx, s.byID(queueID), func(q *domain.Queue) ([]events.Event, error) {
		if err := q.MarkServed(customerID, now); err != nil {
			return nil, err
		}
		c := q.CustomerByID(customerID)
		return []events.Event{
			s.event(q.ID, events.EventCustomerStatusChanged, events.CustomerStatusChangedPayload{
				CustomerID: c.ID,
				Token:      c.Token,
				OldStatus:  domain.CustomerStatusCalled,
				NewStatus:  domain.CustomerStatusServed,
			}),
			s.event(q.ID, events.EventQueueUpdated, events.QueueUpdatedPayload{Kind: events.QueueUpdateCustomerServed}),
		}, nil
	})
}

// MarkNoShow marks a called customer as a no-show. Used by staff and by
// the background sweep.
func (s *QueueService) MarkNoShow(ctx context.Context, queueID, customerID string, now time.Time) error {
	return s.withQueue(ctx, s.byID(queueID), func(q *domain.Queue) ([]events.Event, error) {
		if err := q.MarkNoShow(customerID, now); err != nil {
			return nil, err
		}
		c := q.CustomerByID(customerID)
		evs := []events.Event{
			s.event(q.ID, events.EventCustomerStatusChanged, events.CustomerStatusChangedPayload{
				CustomerID: c.ID,
				Token:      c.Token,
				OldStatus:  domain.CustomerStatusCalled,
				NewStatus:  domain.CustomerStatusNoShow,
			}),
			s.event(q.ID, events.EventPositionsChanged, events.PositionsChangedPayload{Positions: q.UpdatedPositions()}),
			s.event(q.ID, events.EventQueueUpdated, events.QueueUpdatedPayload{Kind: events.QueueUpdateCustomerNoShow}),
		}
		evs = append(evs, s.nearFrontEvents(q, now)...)
		return evs, nil
	})
}

// RemoveCustomer removes a non-terminal customer from the queue.
func (s *QueueService) RemoveCustomer(ctx context.Context, queueID, customerID string, now time.Time) error {
	return s.withQueue(ctx, s.byID(queueID), func(q *domain.Queue) ([]events.Event, error) {
		c := q.CustomerByID(customerID)
		if c == nil {
			return nil, domain.ErrCustomerNotFound
		}
		oldStatus := c.Status
		if err := q.RemoveCustomer(customerID); err != nil {
			return nil, err
		}
		evs := []events.Event{
			s.event(q.ID, events.EventCustomerStatusChanged, events.CustomerStatusChangedPayload{
				CustomerID: c.ID,
				Token:      c.Token,
				OldStatus:  oldStatus,
				NewStatus:  domain.CustomerStatusRemoved,
			}),
			s.event(q.ID, events.EventPositionsChanged, events.PositionsChangedPayload{Positions: q.UpdatedPositions()}),
			s.event(q.ID, events.EventQueueUpdated, events.QueueUpdatedPayload{Kind: events.QueueUpdateCustomerRemoved}),
		}
		evs = append(evs, s.nearFrontEvents(q, now)...)
		return evs, nil
	})
}

// RegisterPushSubscription attaches a push payload to the customer holding
// the token.
func (s *QueueService) RegisterPushSubscription(ctx context.Context, token, subscription string) error {
	queueID, err := s.queues.FindQueueIDByToken(ctx, token)
	if err != nil {
		return err
	}
	return s.withQueue(ctx, s.byID(queueID), func(q *domain.Queue) ([]events.Event, error) {
		if err := q.SetPushSubscription(token, subscription); err != nil {
			return nil, err
		}
		return nil, nil
	})
}

// Pause suspends calling; joins follow the queue's AllowJoinWhenPaused setting.
func (s *QueueService) Pause(ctx context.Context, queueID string) error {
	return s.updateQueue(ctx, queueID, events.QueueUpdatePaused, func(q *domain.Queue) error {
		q.Pause()
		return nil
	})
}

// Resume clears the paused flag.
func (s *QueueService) Resume(ctx context.Context, queueID string) error {
	return s.updateQueue(ctx, queueID, events.QueueUpdateResumed, func(q *domain.Queue) error {
		q.Resume()
		return nil
	})
}

// Activate re-enables the queue.
func (s *QueueService) Activate(ctx context.Context, queueID string) error {
	return s.updateQueue(ctx, queueID, events.QueueUpdateActivated, func(q *domain.Queue) error {
		q.Activate()
		return nil
	})
}

// Deactivate disables joining and calling.
func (s *QueueService) Deactivate(ctx context.Context, queueID string) error {
	return s.updateQueue(ctx, queueID, events.QueueUpdateDeactivated, func(q *domain.Queue) error {
		q.Deactivate()
		return nil
	})
}

// Rename updates the queue display name and optionally its slug.
func (s *QueueService) Rename(ctx context.Context, queueID string, name, slug *string) error {
	return s.updateQueue(ctx, queueID, events.QueueUpdateRenamed, func(q *domain.Queue) error {
		if name != nil {
			if err := q.Rename(*name); err != nil {
				return err
			}
		}
		if slug != nil {
			if err := q.UpdateSlug(*slug); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateSettings replaces the queue settings wholesale.
func (s *QueueService) UpdateSettings(ctx context.Context, queueID string, settings domain.QueueSettings) error {
	return s.updateQueue(ctx, queueID, events.QueueUpdateSettingsChanged, func(q *domain.Queue) error {
		q.UpdateSettings(settings)
		return nil
	})
}

// GetQueue loads the aggregate for read-only use.
func (s *QueueService) GetQueue(ctx context.Context, queueID string) (*domain.Queue, error) {
	return s.queues.Load(ctx, queueID)
}

// GetQueueBySlug loads the aggregate behind a public slug.
func (s *QueueService) GetQueueBySlug(ctx context.Context, slug string) (*domain.Queue, error) {
	return s.queues.LoadBySlug(ctx, slug)
}

// CustomerStatus resolves the anonymous token link to the customer's
// current state and live position.
func (s *QueueService) CustomerStatus(ctx context.Context, token string) (*CustomerStatusView, error) {
	queueID, err := s.queues.FindQueueIDByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	q, err := s.queues.Load(ctx, queueID)
	if err != nil {
		return nil, err
	}
	c := q.CustomerByToken(token)
	if c == nil {
		return nil, domain.ErrCustomerNotFound
	}

	view := &CustomerStatusView{
		Customer:       c,
		QueueID:        q.ID,
		QueueName:      q.Name,
		WelcomeMessage: q.Settings.WelcomeMessage,
		CalledMessage:  q.Settings.CalledMessage,
	}
	if pos, ok := q.CustomerPosition(c.ID); ok {
		view.Position = pos
		view.EstimatedWaitMinutes = pos * q.Settings.EstimatedServiceMinutes
	}
	return view, nil
}

// withQueue runs one mutation under the optimistic-concurrency protocol:
// load fresh, apply exactly one aggregate operation, save conditionally.
// A version conflict discards the stale copy and restarts from a fresh
// load; a stale in-memory aggregate is never patched or re-saved.
func (s *QueueService) withQueue(ctx context.Context, load func(context.Context) (*domain.Queue, error), mutate func(*domain.Queue) ([]events.Event, error)) error {
	for attempt := 1; attempt <= s.saveAttempts; attempt++ {
		queue, err := load(ctx)
		if err != nil {
			return err
		}
		evs, err := mutate(queue)
		if err != nil {
			return err
		}
		if err := s.queues.Save(ctx, queue); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				s.logger.Debug("queue save conflict, retrying from fresh load",
					zap.String("queue_id", queue.ID),
					zap.Int("attempt", attempt))
				continue
			}
			return err
		}
		s.publish(ctx, evs)
		return nil
	}
	return domain.ErrConflict
}

func (s *QueueService) updateQueue(ctx context.Context, queueID string, kind events.QueueUpdateKind, apply func(*domain.Queue) error) error {
	return s.withQueue(ctx, s.byID(queueID), func(q *domain.Queue) ([]events.Event, error) {
		if err := apply(q); err != nil {
			return nil, err
		}
		return []events.Event{
			s.event(q.ID, events.EventQueueUpdated, events.QueueUpdatedPayload{Kind: kind}),
		}, nil
	})
}

func (s *QueueService) byID(queueID string) func(context.Context) (*domain.Queue, error) {
	return func(ctx context.Context) (*domain.Queue, error) {
		return s.queues.Load(ctx, queueID)
	}
}

func (s *QueueService) bySlug(slug string) func(context.Context) (*domain.Queue, error) {
	return func(ctx context.Context) (*domain.Queue, error) {
		return s.queues.LoadBySlug(ctx, slug)
	}
}

// nearFrontEvents flags newly near-front customers and builds their
// one-time alert events. Runs inside the mutation so the flag persists in
// the same cycle.
func (s *QueueService) nearFrontEvents(q *domain.Queue, now time.Time) []events.Event {
	flagged := q.MarkNearFront(now)
	if len(flagged) == 0 {
		return nil
	}
	evs := make([]events.Event, 0, len(flagged))
	for _, c := range flagged {
		pos, _ := q.CustomerPosition(c.ID)
		evs = append(evs, s.event(q.ID, events.EventCustomerNearFront, events.CustomerNearFrontPayload{
			CustomerID: c.ID,
			Token:      c.Token,
			Position:   pos,
		}))
	}
	return evs
}

func (s *QueueService) event(queueID string, eventType events.EventType, payload interface{}) events.Event {
	return events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		QueueID:   queueID,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

func (s *QueueService) publish(ctx context.Context, evs []events.Event) {
	if s.dispatcher == nil {
		return
	}
	for _, ev := range evs {
		_ = s.dispatcher.Publish(ctx, ev)
	}
}
