package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/qline/queue-service/internal/api/dto"
	"github.com/qline/queue-service/internal/domain"
	"github.com/qline/queue-service/internal/service"
	apperrors "github.com/qline/queue-service/pkg/util"
)

// StaffQueuesHandler exposes the staff dashboard queue operations.
type StaffQueuesHandler struct {
	service *service.QueueService
}

// NewStaffQueuesHandler constructs handler.
func NewStaffQueuesHandler(queueService *service.QueueService) *StaffQueuesHandler {
	return &StaffQueuesHandler{service: queueService}
}

// CreateQueue POST /staff/queues.
func (h *StaffQueuesHandler) CreateQueue(c *fiber.Ctx) error {
	var req dto.CreateQueueRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	queue, err := h.service.CreateQueue(c.Context(), req.Name, req.Slug, time.Now())
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": queueSummary(queue)})
}

// Dashboard GET /staff/queues/:id.
func (h *StaffQueuesHandler) Dashboard(c *fiber.Ctx) error {
	queue, err := h.service.GetQueue(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}

	startOfDay := time.Now().Truncate(24 * time.Hour)
	customers := queue.Customers()
	items := make([]dto.CustomerResponse, 0, len(customers))
	for _, customer := range customers {
		item := customerResponse(customer)
		if pos, ok := queue.CustomerPosition(customer.ID); ok {
			item.Position = &pos
		}
		items = append(items, item)
	}

	return c.JSON(fiber.Map{"data": dto.QueueDashboardResponse{
		QueueSummary: queueSummary(queue),
		Settings:     settingsResponse(queue.Settings),
		WaitingCount: queue.WaitingCount(),
		ServedToday:  queue.ServedCount(startOfDay),
		Customers:    items,
	}})
}

// CallNext POST /staff/queues/:id/call-next.
func (h *StaffQueuesHandler) CallNext(c *fiber.Ctx) error {
	called, positions, err := h.service.CallNext(c.Context(), c.Params("id"), time.Now())
	if err != nil {
		return err
	}
	entries := make([]dto.PositionEntry, 0, len(positions))
	for _, p := range positions {
		entries = append(entries, dto.PositionEntry{CustomerID: p.CustomerID, Position: p.Position})
	}
	return c.JSON(fiber.Map{"data": dto.CalledCustomerResponse{
		Customer:  customerResponse(called),
		Positions: entries,
	}})
}

// MarkServed POST /staff/queues/:id/customers/:customerId/served.
func (h *StaffQueuesHandler) MarkServed(c *fiber.Ctx) error {
	if err := h.service.MarkServed(c.Context(), c.Params("id"), c.Params("customerId"), time.Now()); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// MarkNoShow POST /staff/queues/:id/customers/:customerId/no-show.
func (h *StaffQueuesHandler) MarkNoShow(c *fiber.Ctx) error {
	if err := h.service.MarkNoShow(c.Context(), c.Params("id"), c.Params("customerId"), time.Now()); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// RemoveCustomer DELETE /staff/queues/:id/customers/:customerId.
func (h *StaffQueuesHandler) RemoveCustomer(c *fiber.Ctx) error {
	if err := h.service.RemoveCustomer(c.Context(), c.Params("id"), c.Params("customerId"), time.Now()); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Pause POST /staff/queues/:id/pause.
func (h *StaffQueuesHandler) Pause(c *fiber.Ctx) error {
	if err := h.service.Pause(c.Context(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Resume POST /staff/queues/:id/resume.
func (h *StaffQueuesHandler) Resume(c *fiber.Ctx) error {
	if err := h.service.Resume(c.Context(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Activate POST /staff/queues/:id/activate.
func (h *StaffQueuesHandler) Activate(c *fiber.Ctx) error {
	if err := h.service.Activate(c.Context(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Deactivate POST /staff/queues/:id/deactivate.
func (h *StaffQueuesHandler) Deactivate(c *fiber.Ctx) error {
	if err := h.service.Deactivate(c.Context(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// UpdateQueue PATCH /staff/queues/:id.
func (h *StaffQueuesHandler) UpdateQueue(c *fiber.Ctx) error {
	var req dto.UpdateQueueRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Name == nil && req.Slug == nil {
		return apperrors.NewValidationError("name or slug required", nil)
	}
	if err := h.service.Rename(c.Context(), c.Params("id"), req.Name, req.Slug); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// UpdateSettings PATCH /staff/queues/:id/settings.
func (h *StaffQueuesHandler) UpdateSettings(c *fiber.Ctx) error {
	var req dto.UpdateSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.MaxQueueSize != nil && *req.MaxQueueSize < 1 {
		return apperrors.NewValidationError("max_queue_size must be positive", nil)
	}
	if req.NearFrontThreshold != nil && *req.NearFrontThreshold < 1 {
		return apperrors.NewValidationError("near_front_threshold must be positive", nil)
	}

	settings := domain.QueueSettings{
		MaxQueueSize:            req.MaxQueueSize,
		EstimatedServiceMinutes: req.EstimatedServiceMinutes,
		NoShowTimeoutMinutes:    req.NoShowTimeoutMinutes,
		AllowJoinWhenPaused:     req.AllowJoinWhenPaused,
		NearFrontThreshold:      req.NearFrontThreshold,
		WelcomeMessage:          req.WelcomeMessage,
		CalledMessage:           req.CalledMessage,
	}
	if err := h.service.UpdateSettings(c.Context(), c.Params("id"), settings); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

func queueSummary(queue *domain.Queue) dto.QueueSummary {
	return dto.QueueSummary{
		ID:        queue.ID,
		Name:      queue.Name,
		Slug:      queue.Slug,
		IsActive:  queue.IsActive,
		IsPaused:  queue.IsPaused,
		CreatedAt: queue.CreatedAt,
	}
}

func settingsResponse(s domain.QueueSettings) dto.SettingsResponse {
	return dto.SettingsResponse{
		MaxQueueSize:            s.MaxQueueSize,
		EstimatedServiceMinutes: s.EstimatedServiceMinutes,
		NoShowTimeoutMinutes:    s.NoShowTimeoutMinutes,
		AllowJoinWhenPaused:     s.AllowJoinWhenPaused,
		NearFrontThreshold:      s.NearFrontThreshold,
		WelcomeMessage:          s.WelcomeMessage,
		CalledMessage:           s.CalledMessage,
	}
}

func customerResponse(c *domain.QueueCustomer) dto.CustomerResponse {
	return dto.CustomerResponse{
		ID:           c.ID,
		Name:         c.Name,
		JoinPosition: c.JoinPosition,
		JoinedAt:     c.JoinedAt,
		Phone:        c.Phone,
		PartySize:    c.PartySize,
		Notes:        c.Notes,
		Status:       c.Status,
		CalledAt:     c.CalledAt,
		CompletedAt:  c.CompletedAt,
	}
}
