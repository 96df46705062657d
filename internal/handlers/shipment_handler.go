package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"storefront/internal/middleware"
	"storefront/internal/services"
)

// ShipmentHandler handles HTTP requests for shipments. All routes are admin only.
type ShipmentHandler struct {
	service *services.ShipmentService
	logger  *zap.Logger
}

func NewShipmentHandler(service *services.ShipmentService, logger *zap.Logger) *ShipmentHandler {
	return &ShipmentHandler{service: service, logger: orNop(logger)}
}

func (h *ShipmentHandler) RegisterRoutes(router fiber.Router) {
	admin := middleware.AdminOnly()
	shipments := router.Group("/shipments")
	shipments.Post("/", admin, h.HandleCreate)
	shipments.Get("/", admin, h.HandleList)
	shipments.Get("/order/:orderId", admin, h.HandleGetByOrder)
	shipments.Get("/:id", admin, h.HandleGet)
	shipments.Patch("/:id", admin, h.HandleUpdate)
	shipments.Delete("/:id", admin, h.HandleDelete)
}

func (h *ShipmentHandler) HandleCreate(c *fiber.Ctx) error {
	var req services.CreateShipmentRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, h.logger, badBody(err))
	}
	shipment, err := h.service.Create(c.UserContext(), req)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(shipment)
}

func (h *ShipmentHandler) HandleList(c *fiber.Ctx) error {
	page, err := h.service.List(c.UserContext(), pageOf(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(page)
}

func (h *ShipmentHandler) HandleGet(c *fiber.Ctx) error {
	shipment, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(shipment)
}

func (h *ShipmentHandler) HandleGetByOrder(c *fiber.Ctx) error {
	shipment, err := h.service.GetByOrderID(c.UserContext(), c.Params("orderId"))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(shipment)
}

// HandleUpdate changes a shipment. SHIPPED and DELIVERED move the order too.
func (h *ShipmentHandler) HandleUpdate(c *fiber.Ctx) error {
	var req services.UpdateShipmentRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, h.logger, badBody(err))
	}
	shipment, err := h.service.Update(c.UserContext(), c.Params("id"), req)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(shipment)
}

func (h *ShipmentHandler) HandleDelete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), c.Params("id")); err != nil {
		return respondError(c, h.logger, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
