package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/qline/queue-service/internal/config"
	"github.com/qline/queue-service/internal/events"
)

// NotificationService turns domain events into customer- and staff-facing
// notifications. Delivery is best-effort: failures are logged and never
// propagate back into the mutation that produced the event.
type NotificationService struct {
	dispatcher events.Dispatcher
	redis      *redis.Client
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service. The redis client may be nil;
// fan-out then degrades to logging only.
func NewNotificationService(dispatcher events.Dispatcher, redisClient *redis.Client, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		redis:      redisClient,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventCustomerJoined, n.handleQueueEvent)
	n.dispatcher.Subscribe(events.EventCustomerCalled, n.handleCustomerCalled)
	n.dispatcher.Subscribe(events.EventCustomerStatusChanged, n.handleQueueEvent)
	n.dispatcher.Subscribe(events.EventCustomerNearFront, n.handleCustomerNearFront)
	n.dispatcher.Subscribe(events.EventPositionsChanged, n.handleQueueEvent)
	n.dispatcher.Subscribe(events.EventQueueUpdated, n.handleQueueEvent)
}

func (n *NotificationService) handleCustomerCalled(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.CustomerCalledPayload)
	if ok {
		n.logger.Info("customer called",
			zap.String("queue_id", event.QueueID),
			zap.String("customer_id", payload.CustomerID))
		n.sendPushStub(payload.Token, "called", payload.CalledMessage)
	}
	return n.handleQueueEvent(ctx, event)
}

func (n *NotificationService) handleCustomerNearFront(ctx context.Context, event events.Event) error {
	if payload, ok := event.Payload.(events.CustomerNearFrontPayload); ok {
		n.logger.Info("customer near front",
			zap.String("queue_id", event.QueueID),
			zap.String("customer_id", payload.CustomerID),
			zap.Int("position", payload.Position))
		n.sendPushStub(payload.Token, "near_front", nil)
	}
	return n.handleQueueEvent(ctx, event)
}

// handleQueueEvent publishes the event on the queue's pub/sub channel so
// the real-time edge (WebSocket fan-out) can pick it up.
func (n *NotificationService) handleQueueEvent(ctx context.Context, event events.Event) error {
	if n.redis == nil {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		n.logger.Warn("marshal event for fan-out", zap.Error(err))
		return nil
	}
	channel := fmt.Sprintf("%s%s", n.cfg.ChannelPrefix, event.QueueID)
	if err := n.redis.Publish(ctx, channel, body).Err(); err != nil {
		n.logger.Warn("publish event to redis",
			zap.String("channel", channel),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
	return nil
}

func (n *NotificationService) sendPushStub(token, kind string, message *string) {
	if strings.TrimSpace(n.cfg.PushEndpoint) == "" {
		return
	}
	fields := []zap.Field{
		zap.String("endpoint", n.cfg.PushEndpoint),
		zap.String("token", token),
		zap.String("kind", kind),
	}
	if message != nil {
		fields = append(fields, zap.String("message", *message))
	}
	n.logger.Debug("sendPushStub", fields...)
}
