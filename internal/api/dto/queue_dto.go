package dto

import (
	"time"

	"github.com/qline/queue-service/internal/domain"
)

// JoinQueueRequest payload.
type JoinQueueRequest struct {
	Name      string  `json:"name"`
	Phone     *string `json:"phone"`
	PartySize *int    `json:"party_size"`
	Notes     *string `json:"notes"`
}

// JoinQueueResponse returns the anonymous access token and live position.
type JoinQueueResponse struct {
	CustomerID           string  `json:"customer_id"`
	Token                string  `json:"token"`
	Position             int     `json:"position"`
	EstimatedWaitMinutes int     `json:"estimated_wait_minutes"`
	WelcomeMessage       *string `json:"welcome_message,omitempty"`
}

// QueuePublicResponse is the unauthenticated queue view.
type QueuePublicResponse struct {
	Name                 string  `json:"name"`
	Slug                 string  `json:"slug"`
	IsActive             bool    `json:"is_active"`
	IsPaused             bool    `json:"is_paused"`
	AcceptingJoins       bool    `json:"accepting_joins"`
	WaitingCount         int     `json:"waiting_count"`
	EstimatedWaitMinutes int     `json:"estimated_wait_minutes"`
	WelcomeMessage       *string `json:"welcome_message,omitempty"`
}

// CustomerStatusResponse is what the token-bearing link sees.
type CustomerStatusResponse struct {
	QueueName            string                `json:"queue_name"`
	Status               domain.CustomerStatus `json:"status"`
	Position             *int                  `json:"position,omitempty"`
	EstimatedWaitMinutes *int                  `json:"estimated_wait_minutes,omitempty"`
	CalledAt             *time.Time            `json:"called_at,omitempty"`
	CalledMessage        *string               `json:"called_message,omitempty"`
}

// PushSubscriptionRequest payload.
type PushSubscriptionRequest struct {
	Subscription string `json:"subscription"`
}

// CreateQueueRequest payload.
type CreateQueueRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// UpdateQueueRequest renames a queue and/or changes its slug.
type UpdateQueueRequest struct {
	Name *string `json:"name"`
	Slug *string `json:"slug"`
}

// UpdateSettingsRequest replaces queue settings wholesale.
type UpdateSettingsRequest struct {
	MaxQueueSize            *int    `json:"max_queue_size"`
	EstimatedServiceMinutes int     `json:"estimated_service_minutes"`
	NoShowTimeoutMinutes    int     `json:"no_show_timeout_minutes"`
	AllowJoinWhenPaused     bool    `json:"allow_join_when_paused"`
	NearFrontThreshold      *int    `json:"near_front_threshold"`
	WelcomeMessage          *string `json:"welcome_message"`
	CalledMessage           *string `json:"called_message"`
}

// QueueSummary response for staff.
type QueueSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	IsActive  bool      `json:"is_active"`
	IsPaused  bool      `json:"is_paused"`
	CreatedAt time.Time `json:"created_at"`
}

// QueueDashboardResponse is the staff dashboard view.
type QueueDashboardResponse struct {
	QueueSummary
	Settings     SettingsResponse   `json:"settings"`
	WaitingCount int                `json:"waiting_count"`
	ServedToday  int                `json:"served_today"`
	Customers    []CustomerResponse `json:"customers"`
}

// SettingsResponse mirrors the queue settings value.
type SettingsResponse struct {
	MaxQueueSize            *int    `json:"max_queue_size"`
	EstimatedServiceMinutes int     `json:"estimated_service_minutes"`
	NoShowTimeoutMinutes    int     `json:"no_show_timeout_minutes"`
	AllowJoinWhenPaused     bool    `json:"allow_join_when_paused"`
	NearFrontThreshold      *int    `json:"near_front_threshold"`
	WelcomeMessage          *string `json:"welcome_message"`
	CalledMessage           *string `json:"called_message"`
}

// CustomerResponse is a staff-facing customer entry.
type CustomerResponse struct {
	ID           string                `json:"id"`
	Name         string                `json:"name"`
	JoinPosition int                   `json:"join_position"`
	JoinedAt     time.Time             `json:"joined_at"`
	Phone        *string               `json:"phone,omitempty"`
	PartySize    *int                  `json:"party_size,omitempty"`
	Notes        *string               `json:"notes,omitempty"`
	Status       domain.CustomerStatus `json:"status"`
	CalledAt     *time.Time            `json:"called_at,omitempty"`
	CompletedAt  *time.Time            `json:"completed_at,omitempty"`
	Position     *int                  `json:"position,omitempty"`
}

// CalledCustomerResponse returns the result of call-next.
type CalledCustomerResponse struct {
	Customer  CustomerResponse `json:"customer"`
	Positions []PositionEntry  `json:"positions"`
}

// PositionEntry pairs a customer with their fresh rank.
type PositionEntry struct {
	CustomerID string `json:"customer_id"`
	Position   int    `json:"position"`
}
