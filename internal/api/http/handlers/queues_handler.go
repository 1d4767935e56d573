package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/qline/queue-service/internal/api/dto"
	"github.com/qline/queue-service/internal/domain"
	"github.com/qline/queue-service/internal/service"
	apperrors "github.com/qline/queue-service/pkg/util"
)

// QueuesHandler manages the anonymous customer-facing endpoints.
type QueuesHandler struct {
	service *service.QueueService
}

// NewQueuesHandler constructs handler.
func NewQueuesHandler(queueService *service.QueueService) *QueuesHandler {
	return &QueuesHandler{service: queueService}
}

// GetQueue GET /queues/:slug.
func (h *QueuesHandler) GetQueue(c *fiber.Ctx) error {
	queue, err := h.service.GetQueueBySlug(c.Context(), c.Params("slug"))
	if err != nil {
		return err
	}
	waiting := queue.WaitingCount()
	return c.JSON(fiber.Map{"data": dto.QueuePublicResponse{
		Name:                 queue.Name,
		Slug:                 queue.Slug,
		IsActive:             queue.IsActive,
		IsPaused:             queue.IsPaused,
		AcceptingJoins:       queue.AcceptingJoins(),
		WaitingCount:         waiting,
		EstimatedWaitMinutes: waiting * queue.Settings.EstimatedServiceMinutes,
		WelcomeMessage:       queue.Settings.WelcomeMessage,
	}})
}

// Join POST /queues/:slug/join.
func (h *QueuesHandler) Join(c *fiber.Ctx) error {
	var req dto.JoinQueueRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	customer, position, err := h.service.JoinQueue(c.Context(), c.Params("slug"), time.Now(), service.JoinInput{
		Name:      req.Name,
		Phone:     req.Phone,
		PartySize: req.PartySize,
		Notes:     req.Notes,
	})
	if err != nil {
		return err
	}

	queue, err := h.service.GetQueueBySlug(c.Context(), c.Params("slug"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.JoinQueueResponse{
		CustomerID:           customer.ID,
		Token:                customer.Token,
		Position:             position,
		EstimatedWaitMinutes: position * queue.Settings.EstimatedServiceMinutes,
		WelcomeMessage:       queue.Settings.WelcomeMessage,
	}})
}

// MyStatus GET /my/:token.
func (h *QueuesHandler) MyStatus(c *fiber.Ctx) error {
	view, err := h.service.CustomerStatus(c.Context(), c.Params("token"))
	if err != nil {
		return err
	}

	resp := dto.CustomerStatusResponse{
		QueueName: view.QueueName,
		Status:    view.Customer.Status,
		CalledAt:  view.Customer.CalledAt,
	}
	if view.Customer.Status == domain.CustomerStatusWaiting {
		pos := view.Position
		wait := view.EstimatedWaitMinutes
		resp.Position = &pos
		resp.EstimatedWaitMinutes = &wait
	}
	if view.Customer.Status == domain.CustomerStatusCalled {
		resp.CalledMessage = view.CalledMessage
	}
	return c.JSON(fiber.Map{"data": resp})
}

// RegisterPush POST /my/:token/push.
func (h *QueuesHandler) RegisterPush(c *fiber.Ctx) error {
	var req dto.PushSubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Subscription) == "" {
		return apperrors.NewValidationError("subscription required", nil)
	}
	if err := h.service.RegisterPushSubscription(c.Context(), c.Params("token"), req.Subscription); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
