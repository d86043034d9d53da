package api

import (
	"errors"
	"math"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"storefront-service/internal/entity"
	"storefront-service/internal/service"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

type OrderHandler struct {
	orderService *service.OrderService
}

func NewOrderHandler(orderService *service.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

type createOrderRequest struct {
	Items           []service.OrderItemInput `json:"items"`
	ShippingAddress entity.Address           `json:"shipping_address"`
	PaymentMethod   string                   `json:"payment_method"`
	CouponDiscount  float64                  `json:"coupon_discount"`
}

// CreateOrder places an order for the authenticated user --> POST /orders
func (h *OrderHandler) CreateOrder(c echo.Context) error {
	claims := claimsFrom(c)
	if claims == nil {
		return c.JSON(401, map[string]string{"error": "unauthorized"})
	}

	req := createOrderRequest{}
	if err := c.Bind(&req); err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid request payload"})
	}

	result, err := h.orderService.CreateOrder(c.Request().Context(), service.CreateOrderInput{
		UserID:          claims.UserID,
		Items:           req.Items,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		CouponDiscount:  req.CouponDiscount,
		IdempotencyKey:  c.Request().Header.Get("Idempotent-Key"),
	})
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(201, result)
}

// GetOrder fetches one order --> GET /orders/:id
func (h *OrderHandler) GetOrder(c echo.Context) error {
	claims := claimsFrom(c)
	if claims == nil {
		return c.JSON(401, map[string]string{"error": "unauthorized"})
	}

	id, err := paramID(c)
	if err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid ID"})
	}

	order, err := h.orderService.GetOrder(c.Request().Context(), id, claims.UserID, claims.Role)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(200, order)
}

type orderListResponse struct {
	Orders      []*entity.Order `json:"orders"`
	Count       int             `json:"count"`
	Total       int             `json:"total"`
	Pages       int             `json:"pages"`
	CurrentPage int             `json:"current_page"`
}

// ListOrders lists the authenticated user's orders --> GET /orders
func (h *OrderHandler) ListOrders(c echo.Context) error {
	claims := claimsFrom(c)
	if claims == nil {
		return c.JSON(401, map[string]string{"error": "unauthorized"})
	}

	page, limit := queryPaging(c, 10)
	orders, total, err := h.orderService.ListUserOrders(
		c.Request().Context(), claims.UserID, c.QueryParam("status"), page, limit)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(200, orderListResponse{
		Orders:      orders,
		Count:       len(orders),
		Total:       total,
		Pages:       int(math.Ceil(float64(total) / float64(limit))),
		CurrentPage: page,
	})
}

// ListAllOrders is the admin view over every order --> GET /orders/admin/all
func (h *OrderHandler) ListAllOrders(c echo.Context) error {
	page, limit := queryPaging(c, 50)
	orders, total, err := h.orderService.ListAllOrders(c.Request().Context(), page, limit)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(200, orderListResponse{
		Orders:      orders,
		Count:       len(orders),
		Total:       total,
		Pages:       int(math.Ceil(float64(total) / float64(limit))),
		CurrentPage: page,
	})
}

type updateStatusRequest struct {
	DeliveryStatus string `json:"delivery_status"`
	TrackingNumber string `json:"tracking_number"`
	Notes          string `json:"notes"`
}

// UpdateStatus moves an order along its delivery lifecycle --> PUT /orders/:id/status
func (h *OrderHandler) UpdateStatus(c echo.Context) error {
	claims := claimsFrom(c)
	id, err := paramID(c)
	if err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid ID"})
	}

	req := updateStatusRequest{}
	if err := c.Bind(&req); err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid request payload"})
	}

	result, err := h.orderService.UpdateStatus(c.Request().Context(), service.UpdateStatusInput{
		OrderID:        id,
		ActorID:        claims.UserID,
		NewStatus:      req.DeliveryStatus,
		TrackingNumber: req.TrackingNumber,
		Notes:          req.Notes,
	})
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(200, result)
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

// CancelOrder cancels an order and restores its stock --> DELETE /orders/:id
func (h *OrderHandler) CancelOrder(c echo.Context) error {
	claims := claimsFrom(c)
	id, err := paramID(c)
	if err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid ID"})
	}

	req := cancelOrderRequest{}
	// The body is optional on cancel.
	_ = c.Bind(&req)

	result, err := h.orderService.CancelOrder(c.Request().Context(), id, claims.UserID, req.Reason)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(200, result)
}

// Stats returns the admin dashboard aggregates --> GET /orders/stats
func (h *OrderHandler) Stats(c echo.Context) error {
	from, err := queryDate(c, "start_date")
	if err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid start_date"})
	}
	to, err := queryDate(c, "end_date")
	if err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid end_date"})
	}

	stats, err := h.orderService.Stats(c.Request().Context(), from, to)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(200, stats)
}

// httpError maps service errors onto HTTP statuses. Business failures
// keep their precise message; infrastructure failures are logged in
// full and returned as a generic message.
func httpError(c echo.Context, err error) error {
	var (
		validation  *service.ValidationError
		unavailable *service.ProductUnavailableError
		stock       *service.InsufficientStockError
		transition  *service.InvalidTransitionError
	)

	switch {
	case errors.As(err, &validation),
		errors.As(err, &unavailable),
		errors.Is(err, service.ErrInvalidStatus):
		return c.JSON(400, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrForbidden):
		return c.JSON(403, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, service.ErrProductNotFound):
		return c.JSON(404, map[string]string{"error": err.Error()})
	case errors.As(err, &stock),
		errors.As(err, &transition),
		errors.Is(err, service.ErrOrderNumberConflict),
		errors.Is(err, service.ErrDuplicateRequest),
		errors.Is(err, service.ErrDuplicateSKU):
		return c.JSON(409, map[string]string{"error": err.Error()})
	default:
		logger.Error().Err(err).Str("path", c.Path()).Msg("Request failed")
		return c.JSON(500, map[string]string{"error": "internal server error"})
	}
}

func paramID(c echo.Context) (int64, error) {
	var id int64
	if err := echo.PathParamsBinder(c).Int64("id", &id).BindError(); err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func queryPaging(c echo.Context, defaultLimit int) (page, limit int) {
	page, limit = 1, defaultLimit
	echo.QueryParamsBinder(c).Int("page", &page).Int("limit", &limit)
	return page, limit
}

func queryDate(c echo.Context, name string) (*time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, errors.New("invalid date")
}
