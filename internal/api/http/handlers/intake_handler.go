package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/intake-pipeline/internal/broker"
	"github.com/spec-kit/intake-pipeline/internal/domain"
	apperrors "github.com/spec-kit/intake-pipeline/pkg/errorutil"
)

// IntakeHandler accepts ticket-creation requests that bypass the chat
// dialog. The request is published to the same create-ticket queue the
// dialog uses, so the intake worker handles both paths identically.
type IntakeHandler struct {
	publisher broker.Publisher
}

// NewIntakeHandler returns a new handler instance.
func NewIntakeHandler(publisher broker.Publisher) *IntakeHandler {
	return &IntakeHandler{publisher: publisher}
}

type intakeRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Sector      string `json:"sector"`
}

// Create validates and enqueues a ticket-creation request.
func (h *IntakeHandler) Create(c *fiber.Ctx) error {
	var req intakeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	if strings.TrimSpace(req.Title) == "" {
		return apperrors.NewValidationError("title is required", map[string]any{"field": "title"})
	}
	if strings.TrimSpace(req.Description) == "" {
		return apperrors.NewValidationError("description is required", map[string]any{"field": "description"})
	}

	message := domain.CreateTicketRequest{
		PhoneNumber: strings.TrimSpace(req.PhoneNumber),
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Category:    req.Category,
		Sector:      req.Sector,
	}
	if err := h.publisher.Publish(c.UserContext(), broker.QueueCreateTicket, message); err != nil {
		return err
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "queued"})
}
