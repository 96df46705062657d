package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"storefront/internal/middleware"
	"storefront/internal/models"
	"storefront/internal/repositories"
	"storefront/internal/services"
)

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	service *services.OrderService
	logger  *zap.Logger
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(service *services.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		service: service,
		logger:  orNop(logger),
	}
}

// RegisterRoutes registers the order routes on an authenticated router.
func (h *OrderHandler) RegisterRoutes(router fiber.Router) {
	orderRoutes := router.Group("/orders")
	orderRoutes.Post("/", h.HandleCreateOrder)
	orderRoutes.Get("/", h.HandleGetOrders)
	orderRoutes.Get("/number/:orderNumber", h.HandleGetOrderByNumber)
	orderRoutes.Get("/:id", h.HandleGetOrderByID)
	orderRoutes.Post("/:id/cancel", h.HandleCancelOrder)
	orderRoutes.Patch("/:id/status", middleware.AdminOnly(), h.HandleUpdateOrderStatus)
}

func pageOf(c *fiber.Ctx) repositories.Pagination {
	return repositories.Pagination{
		Page:  c.QueryInt("page", 1),
		Limit: c.QueryInt("limit", repositories.DefaultPageSize),
	}
}

// HandleCreateOrder places an order for the authenticated user.
func (h *OrderHandler) HandleCreateOrder(c *fiber.Ctx) error {
	var req services.CreateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, h.logger, badBody(err))
	}

	order, err := h.service.CreateOrder(c.UserContext(), viewerOf(c).UserID, req)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(order)
}

// HandleGetOrders lists the caller's orders. Admins see every order and may
// filter by user_id.
func (h *OrderHandler) HandleGetOrders(c *fiber.Ctx) error {
	filter := repositories.OrderFilter{
		UserID: c.Query("user_id"),
		Status: models.OrderStatus(c.Query("status")),
	}
	page, err := h.service.ListOrders(c.UserContext(), viewerOf(c), filter, pageOf(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(page)
}

// HandleGetOrderByID retrieves a single order by its ID.
func (h *OrderHandler) HandleGetOrderByID(c *fiber.Ctx) error {
	order, err := h.service.GetOrder(c.UserContext(), viewerOf(c), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(order)
}

func (h *OrderHandler) HandleGetOrderByNumber(c *fiber.Ctx) error {
	order, err := h.service.GetOrderByNumber(c.UserContext(), viewerOf(c), c.Params("orderNumber"))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(order)
}

// HandleCancelOrder cancels one of the caller's orders and restores its stock.
func (h *OrderHandler) HandleCancelOrder(c *fiber.Ctx) error {
	order, err := h.service.CancelOrder(c.UserContext(), viewerOf(c).UserID, c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(order)
}

// HandleUpdateOrderStatus sets the status of an order. Admin only.
func (h *OrderHandler) HandleUpdateOrderStatus(c *fiber.Ctx) error {
	var req services.UpdateOrderStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, h.logger, badBody(err))
	}

	order, err := h.service.UpdateOrderStatus(c.UserContext(), c.Params("id"), req)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(order)
}
