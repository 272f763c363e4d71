package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/intake-pipeline/internal/channel"
	"github.com/spec-kit/intake-pipeline/internal/repository"
	apperrors "github.com/spec-kit/intake-pipeline/pkg/errorutil"
)

// GatewayHandler exposes operator actions on the chat connector and the
// recent alert feed.
type GatewayHandler struct {
	connector *channel.Connector
	alerts    repository.AlertRepository
}

// NewGatewayHandler returns a new handler instance.
func NewGatewayHandler(connector *channel.Connector, alerts repository.AlertRepository) *GatewayHandler {
	return &GatewayHandler{connector: connector, alerts: alerts}
}

type pairingRequest struct {
	Number string `json:"number"`
}

// RequestPairingCode asks the gateway for an out-of-band device-linking code.
func (h *GatewayHandler) RequestPairingCode(c *fiber.Ctx) error {
	var req pairingRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	number := strings.TrimSpace(req.Number)
	if number == "" {
		return apperrors.NewValidationError("number is required", map[string]any{"field": "number"})
	}

	code, err := h.connector.RequestPairingCode(c.UserContext(), number)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"code": code})
}

// Status reports the connector's connection state.
func (h *GatewayHandler) Status(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"state": h.connector.State()})
}

// RecentAlerts lists the latest persisted alerts.
func (h *GatewayHandler) RecentAlerts(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	alerts, err := h.alerts.ListRecent(c.UserContext(), limit)
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"alerts": alerts})
}
