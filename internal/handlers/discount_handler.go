package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/apperror"
	"storefront/internal/middleware"
	"storefront/internal/repositories"
	"storefront/internal/services"
)

// DiscountHandler handles HTTP requests for discount codes.
type DiscountHandler struct {
	service *services.DiscountService
	logger  *zap.Logger
}

func NewDiscountHandler(service *services.DiscountService, logger *zap.Logger) *DiscountHandler {
	return &DiscountHandler{service: service, logger: orNop(logger)}
}

// RegisterRoutes registers the discount routes on an authenticated router.
// Everything except validation is admin only.
func (h *DiscountHandler) RegisterRoutes(router fiber.Router) {
	admin := middleware.AdminOnly()
	discounts := router.Group("/discounts")
	discounts.Get("/validate/:code", h.HandleValidate)
	discounts.Post("/", admin, h.HandleCreate)
	discounts.Get("/", admin, h.HandleList)
	discounts.Get("/code/:code", admin, h.HandleGetByCode)
	discounts.Get("/:id", admin, h.HandleGetByID)
	discounts.Patch("/:id", admin, h.HandleUpdate)
	discounts.Delete("/:id", admin, h.HandleDelete)
}

func decimalQuery(c *fiber.Ctx, key string) (decimal.Decimal, error) {
	raw := c.Query(key)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return decimal.Zero, apperror.New(apperror.KindValidation, apperror.CodeValidation, "Validation failed").
			WithDetails(map[string]any{key: "must be a non-negative decimal"})
	}
	return d, nil
}

// HandleValidate answers whether a code applies to an order of the given
// size. A refused code is still a 200 response.
func (h *DiscountHandler) HandleValidate(c *fiber.Ctx) error {
	orderTotal, err := decimalQuery(c, "orderTotal")
	if err != nil {
		return respondError(c, h.logger, err)
	}
	shippingCost, err := decimalQuery(c, "shippingCost")
	if err != nil {
		return respondError(c, h.logger, err)
	}

	check, err := h.service.Validate(c.UserContext(), c.Params("code"), orderTotal, shippingCost)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(check)
}

func (h *DiscountHandler) HandleCreate(c *fiber.Ctx) error {
	var req services.CreateDiscountRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, h.logger, badBody(err))
	}
	d, err := h.service.Create(c.UserContext(), req)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(d)
}

func (h *DiscountHandler) HandleList(c *fiber.Ctx) error {
	filter := repositories.DiscountFilter{Search: c.Query("search")}
	if raw := c.Query("active"); raw != "" {
		active := c.QueryBool("active")
		filter.Active = &active
	}
	page, err := h.service.List(c.UserContext(), filter, pageOf(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(page)
}

func (h *DiscountHandler) HandleGetByCode(c *fiber.Ctx) error {
	d, err := h.service.GetByCode(c.UserContext(), c.Params("code"))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(d)
}

func (h *DiscountHandler) HandleGetByID(c *fiber.Ctx) error {
	d, err := h.service.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(d)
}

func (h *DiscountHandler) HandleUpdate(c *fiber.Ctx) error {
	var req services.UpdateDiscountRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, h.logger, badBody(err))
	}
	d, err := h.service.Update(c.UserContext(), c.Params("id"), req)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(d)
}

func (h *DiscountHandler) HandleDelete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), c.Params("id")); err != nil {
		return respondError(c, h.logger, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
