package events

import (
	"time"

	"github.com/qline/queue-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventCustomerJoined        EventType = "customer_joined"
	EventCustomerCalled        EventType = "customer_called"
	EventCustomerStatusChanged EventType = "customer_status_changed"
	EventCustomerNearFront     EventType = "customer_near_front"
	EventPositionsChanged      EventType = "positions_changed"
	EventQueueUpdated          EventType = "queue_updated"
)

// QueueUpdateKind labels what changed on a queue for dashboard refreshes.
type QueueUpdateKind string

const (
	QueueUpdateCustomerJoined  QueueUpdateKind = "customer_joined"
	QueueUpdateCustomerCalled  QueueUpdateKind = "customer_called"
	QueueUpdateCustomerServed  QueueUpdateKind = "customer_served"
	QueueUpdateCustomerNoShow  QueueUpdateKind = "customer_no_show"
	QueueUpdateCustomerRemoved QueueUpdateKind = "customer_removed"
	QueueUpdatePaused          QueueUpdateKind = "paused"
	QueueUpdateResumed         QueueUpdateKind = "resumed"
	QueueUpdateActivated       QueueUpdateKind = "activated"
	QueueUpdateDeactivated     QueueUpdateKind = "deactivated"
	QueueUpdateRenamed         QueueUpdateKind = "renamed"
	QueueUpdateSettingsChanged QueueUpdateKind = "settings_changed"
)

// Event represents a domain event emitted by services after a successful
// persist. Delivery downstream is best-effort.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	QueueID   string      `json:"queue_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// CustomerJoinedPayload payload.
type CustomerJoinedPayload struct {
	CustomerID     string  `json:"customer_id"`
	Token          string  `json:"token"`
	Name           string  `json:"name"`
	Position       int     `json:"position"`
	WelcomeMessage *string `json:"welcome_message,omitempty"`
}

// CustomerCalledPayload payload.
type CustomerCalledPayload struct {
	CustomerID    string  `json:"customer_id"`
	Token         string  `json:"token"`
	Name          string  `json:"name"`
	CalledMessage *string `json:"called_message,omitempty"`
}

// CustomerStatusChangedPayload payload.
type CustomerStatusChangedPayload struct {
	CustomerID string                `json:"customer_id"`
	Token      string                `json:"token"`
	OldStatus  domain.CustomerStatus `json:"old_status"`
	NewStatus  domain.CustomerStatus `json:"new_status"`
}

// CustomerNearFrontPayload payload.
type CustomerNearFrontPayload struct {
	CustomerID string `json:"customer_id"`
	Token      string `json:"token"`
	Position   int    `json:"position"`
}

// PositionsChangedPayload carries the full recomputed waiting ranking.
type PositionsChangedPayload struct {
	Positions []domain.PositionUpdate `json:"positions"`
}

// QueueUpdatedPayload payload.
type QueueUpdatedPayload struct {
	Kind QueueUpdateKind `json:"kind"`
}
