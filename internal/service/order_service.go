package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"storefront-service/internal/entity"
	"storefront-service/internal/inventory"
	"storefront-service/internal/pricing"
	"storefront-service/internal/repository"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

const (
	estimatedDeliveryDays = 5
	idempotencyKeyTTL     = 24 * time.Hour
)

// OrderService coordinates the order lifecycle: the all-or-nothing
// checkout transaction, delivery status transitions, cancellation with
// stock rollback, and the admin stats view.
type OrderService struct {
	store       repository.Store
	kafkaWriter *kafka.Writer
	rdb         *redis.Client
}

// NewOrderService creates a new instance of OrderService. kafkaWriter
// and rdb may be nil, disabling event publishing and idempotency keys.
func NewOrderService(store repository.Store, kafkaWriter *kafka.Writer, rdb *redis.Client) *OrderService {
	return &OrderService{store: store, kafkaWriter: kafkaWriter, rdb: rdb}
}

type OrderItemInput struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type CreateOrderInput struct {
	UserID          int64
	Items           []OrderItemInput
	ShippingAddress entity.Address
	PaymentMethod   string
	CouponDiscount  float64
	IdempotencyKey  string
}

// CreateOrderResult is the caller-facing summary; it deliberately does
// not echo the full order document.
type CreateOrderResult struct {
	OrderID        int64     `json:"order_id"`
	OrderNumber    string    `json:"order_number"`
	Total          float64   `json:"total"`
	ItemCount      int       `json:"item_count"`
	DeliveryStatus string    `json:"delivery_status"`
	PaymentStatus  string    `json:"payment_status"`
	CreatedAt      time.Time `json:"created_at"`
}

// CreateOrder runs the checkout transaction: validate input, resolve
// and lock every product, check activity and stock in cart order, price
// the cart, persist the order, reserve stock per item, and write the
// audit entry. Any failure rolls the whole transaction back; no order
// row, stock change, or audit entry survives a partial run.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*CreateOrderResult, error) {
	if err := validateCreateOrder(in); err != nil {
		return nil, err
	}
	if err := s.claimIdempotencyKey(ctx, in.IdempotencyKey); err != nil {
		return nil, err
	}

	now := time.Now()
	order := &entity.Order{
		OrderNumber:     newOrderNumber(now),
		UserID:          in.UserID,
		ShippingAddress: in.ShippingAddress,
		PaymentMethod:   in.PaymentMethod,
		// Payment is simulated as immediately successful.
		PaymentStatus:  entity.PaymentCompleted,
		DeliveryStatus: entity.StatusPending,
		StatusHistory: []entity.StatusHistoryEntry{
			{Status: entity.StatusPending, Timestamp: now, Notes: "Order created successfully"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		available := make(map[int64]int, len(in.Items))
		var lines []pricing.LineItem

		for _, item := range in.Items {
			p, err := tx.ProductForUpdate(ctx, item.ProductID)
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("product %d: %w", item.ProductID, ErrProductNotFound)
			}
			if err != nil {
				return err
			}
			if !p.IsActive {
				return &ProductUnavailableError{ProductName: p.Name}
			}
			if avail := p.AvailableStock(); avail < item.Quantity {
				return &InsufficientStockError{ProductName: p.Name, Available: avail, Requested: item.Quantity}
			}
			available[p.ID] = p.AvailableStock()

			unit := p.SellingPrice()
			order.Items = append(order.Items, entity.OrderItem{
				ProductID:       p.ID,
				ProductName:     p.Name,
				Quantity:        item.Quantity,
				PriceAtPurchase: unit,
				Subtotal:        unit * float64(item.Quantity),
			})
			lines = append(lines, pricing.LineItem{UnitPrice: unit, Quantity: item.Quantity})
		}

		quote := pricing.Calculate(lines, in.CouponDiscount)
		order.Pricing = entity.Pricing{
			Subtotal:     quote.Subtotal,
			Tax:          quote.Tax,
			ShippingCost: quote.ShippingCost,
			Discount:     quote.Discount,
			Total:        quote.Total,
		}

		if err := tx.InsertOrder(ctx, order); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrOrderNumberConflict
			}
			return err
		}

		for _, it := range order.Items {
			if err := tx.ReserveStock(ctx, it.ProductID, it.Quantity); err != nil {
				if errors.Is(err, inventory.ErrInsufficientStock) {
					return &InsufficientStockError{
						ProductName: it.ProductName,
						Available:   available[it.ProductID],
						Requested:   it.Quantity,
					}
				}
				return err
			}
		}

		return tx.InsertAuditLog(ctx, &entity.AuditLog{
			ActorID:    in.UserID,
			Action:     entity.AuditActionCreate,
			EntityType: "Order",
			EntityID:   order.ID,
			EntityName: order.OrderNumber,
			Description: fmt.Sprintf("Order created with %d item(s), Total: $%.2f",
				len(order.Items), order.Pricing.Total),
			After: map[string]any{
				"order_number":    order.OrderNumber,
				"total":           order.Pricing.Total,
				"item_count":      len(order.Items),
				"delivery_status": order.DeliveryStatus,
			},
			Status:    entity.AuditStatusSuccess,
			Severity:  entity.AuditSeverityLow,
			CreatedAt: now,
		})
	})
	if err != nil {
		s.releaseIdempotencyKey(ctx, in.IdempotencyKey)
		logger.Warn().Err(err).Int64("user_id", in.UserID).Msg("Order creation aborted")
		return nil, err
	}

	s.publishOrderEvent(ctx, order, "created")
	s.invalidateProductCache(ctx, order.Items)

	return &CreateOrderResult{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		Total:          order.Pricing.Total,
		ItemCount:      len(order.Items),
		DeliveryStatus: order.DeliveryStatus,
		PaymentStatus:  order.PaymentStatus,
		CreatedAt:      order.CreatedAt,
	}, nil
}

type UpdateStatusInput struct {
	OrderID        int64
	ActorID        int64
	NewStatus      string
	TrackingNumber string
	Notes          string
}

type StatusUpdateResult struct {
	OrderID               int64      `json:"order_id"`
	OrderNumber           string     `json:"order_number"`
	DeliveryStatus        string     `json:"delivery_status"`
	TrackingNumber        string     `json:"tracking_number,omitempty"`
	EstimatedDeliveryDate *time.Time `json:"estimated_delivery_date,omitempty"`
}

// UpdateStatus moves an order through its delivery lifecycle. The
// status history is append-only; cancelled and returned are terminal,
// a delivered order can only be returned, and cancellation is not
// reachable from here because it has its own stock-restoring operation.
func (s *OrderService) UpdateStatus(ctx context.Context, in UpdateStatusInput) (*StatusUpdateResult, error) {
	if !entity.ValidDeliveryStatus(in.NewStatus) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, in.NewStatus)
	}

	var updated *entity.Order
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		o, err := tx.OrderForUpdate(ctx, in.OrderID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrOrderNotFound
		}
		if err != nil {
			return err
		}
		if err := checkTransition(o.DeliveryStatus, in.NewStatus); err != nil {
			return err
		}

		before := map[string]any{
			"delivery_status": o.DeliveryStatus,
			"tracking_number": o.TrackingNumber,
		}
		oldStatus := o.DeliveryStatus
		now := time.Now()

		o.DeliveryStatus = in.NewStatus
		if in.TrackingNumber != "" {
			o.TrackingNumber = in.TrackingNumber
		}
		switch in.NewStatus {
		case entity.StatusShipped:
			if o.EstimatedDeliveryDate == nil {
				eta := now.AddDate(0, 0, estimatedDeliveryDays)
				o.EstimatedDeliveryDate = &eta
			}
		case entity.StatusDelivered:
			o.ActualDeliveryDate = &now
		case entity.StatusReturned:
			o.ReturnDate = &now
			o.ReturnReason = in.Notes
		}
		o.UpdatedAt = now

		if err := tx.UpdateOrderStatus(ctx, o); err != nil {
			return err
		}
		if err := tx.AppendStatusHistory(ctx, o.ID, entity.StatusHistoryEntry{
			Status: in.NewStatus, Timestamp: now, Notes: in.Notes,
		}); err != nil {
			return err
		}

		if err := tx.InsertAuditLog(ctx, &entity.AuditLog{
			ActorID:     in.ActorID,
			Action:      entity.AuditActionUpdate,
			EntityType:  "Order",
			EntityID:    o.ID,
			EntityName:  o.OrderNumber,
			Description: fmt.Sprintf("Order status updated from %s to %s", oldStatus, in.NewStatus),
			Before:      before,
			After: map[string]any{
				"delivery_status": o.DeliveryStatus,
				"tracking_number": o.TrackingNumber,
			},
			Status:    entity.AuditStatusSuccess,
			Severity:  entity.AuditSeverityMedium,
			CreatedAt: now,
		}); err != nil {
			return err
		}

		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishOrderEvent(ctx, updated, "status_updated")

	return &StatusUpdateResult{
		OrderID:               updated.ID,
		OrderNumber:           updated.OrderNumber,
		DeliveryStatus:        updated.DeliveryStatus,
		TrackingNumber:        updated.TrackingNumber,
		EstimatedDeliveryDate: updated.EstimatedDeliveryDate,
	}, nil
}

type CancelResult struct {
	OrderID        int64  `json:"order_id"`
	OrderNumber    string `json:"order_number"`
	DeliveryStatus string `json:"delivery_status"`
}

// CancelOrder releases the stock held by every item and flips the order
// to cancelled in one transaction: either all stock is restored and the
// status changes, or neither happens.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, actorID int64, reason string) (*CancelResult, error) {
	var cancelled *entity.Order
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		o, err := tx.OrderForUpdate(ctx, orderID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrOrderNotFound
		}
		if err != nil {
			return err
		}
		switch o.DeliveryStatus {
		case entity.StatusDelivered, entity.StatusCancelled, entity.StatusReturned:
			return &InvalidTransitionError{From: o.DeliveryStatus, To: entity.StatusCancelled}
		}

		for _, it := range o.Items {
			if err := tx.ReleaseStock(ctx, it.ProductID, it.Quantity); err != nil {
				return err
			}
		}

		oldStatus := o.DeliveryStatus
		now := time.Now()
		notes := reason
		if notes == "" {
			notes = "Order cancelled by admin"
		}

		o.DeliveryStatus = entity.StatusCancelled
		o.UpdatedAt = now
		if err := tx.UpdateOrderStatus(ctx, o); err != nil {
			return err
		}
		if err := tx.AppendStatusHistory(ctx, o.ID, entity.StatusHistoryEntry{
			Status: entity.StatusCancelled, Timestamp: now, Notes: notes,
		}); err != nil {
			return err
		}

		if err := tx.InsertAuditLog(ctx, &entity.AuditLog{
			ActorID:    actorID,
			Action:     entity.AuditActionDelete,
			EntityType: "Order",
			EntityID:   o.ID,
			EntityName: o.OrderNumber,
			Description: fmt.Sprintf("Order cancelled. Previous status: %s. Reason: %s",
				oldStatus, notes),
			Before:    map[string]any{"delivery_status": oldStatus},
			After:     map[string]any{"delivery_status": entity.StatusCancelled},
			Status:    entity.AuditStatusSuccess,
			Severity:  entity.AuditSeverityHigh,
			CreatedAt: now,
		}); err != nil {
			return err
		}

		cancelled = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishOrderEvent(ctx, cancelled, "cancelled")
	s.invalidateProductCache(ctx, cancelled.Items)

	return &CancelResult{
		OrderID:        cancelled.ID,
		OrderNumber:    cancelled.OrderNumber,
		DeliveryStatus: cancelled.DeliveryStatus,
	}, nil
}

// GetOrder fetches an order, enforcing that customers only see their own.
func (s *OrderService) GetOrder(ctx context.Context, orderID, requesterID int64, role string) (*entity.Order, error) {
	o, err := s.store.GetOrderByID(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if role != "admin" && o.UserID != requesterID {
		return nil, ErrForbidden
	}
	return o, nil
}

// ListUserOrders returns the requesting user's orders, newest first,
// optionally filtered by delivery status.
func (s *OrderService) ListUserOrders(ctx context.Context, userID int64, status string, page, limit int) ([]*entity.Order, int, error) {
	if status != "" && !entity.ValidDeliveryStatus(status) {
		return nil, 0, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	page, limit = normalizePage(page, limit, 10)
	return s.store.ListOrdersByUser(ctx, userID, status, limit, (page-1)*limit)
}

// ListAllOrders is the admin view across all users.
func (s *OrderService) ListAllOrders(ctx context.Context, page, limit int) ([]*entity.Order, int, error) {
	page, limit = normalizePage(page, limit, 50)
	return s.store.ListOrders(ctx, limit, (page-1)*limit)
}

// Stats aggregates order counts and revenue, optionally within a date range.
func (s *OrderService) Stats(ctx context.Context, from, to *time.Time) (*entity.OrderStats, error) {
	return s.store.OrderStats(ctx, from, to)
}

func validateCreateOrder(in CreateOrderInput) error {
	if len(in.Items) == 0 {
		return validationErr("order must contain at least one item")
	}
	for _, item := range in.Items {
		if item.ProductID <= 0 {
			return validationErr("item product_id is required")
		}
		if item.Quantity < 1 {
			return validationErr("item quantity must be at least 1")
		}
	}
	addr := in.ShippingAddress
	if addr.Street == "" || addr.City == "" || addr.ZipCode == "" || addr.Country == "" {
		return validationErr("shipping address is required")
	}
	if in.PaymentMethod == "" {
		return validationErr("payment method is required")
	}
	if !entity.ValidPaymentMethod(in.PaymentMethod) {
		return validationErr("invalid payment method %q", in.PaymentMethod)
	}
	if in.CouponDiscount < 0 {
		return validationErr("coupon discount cannot be negative")
	}
	return nil
}

func checkTransition(from, to string) error {
	// Cancellation must go through CancelOrder so stock is restored.
	if to == entity.StatusCancelled {
		return &InvalidTransitionError{From: from, To: to}
	}
	switch from {
	case entity.StatusCancelled, entity.StatusReturned:
		return &InvalidTransitionError{From: from, To: to}
	case entity.StatusDelivered:
		if to != entity.StatusReturned {
			return &InvalidTransitionError{From: from, To: to}
		}
	}
	return nil
}

// newOrderNumber builds a time-based, collision-resistant order number.
// A duplicate slips through only as a unique-index violation, surfaced
// to the caller as a retryable conflict.
func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:9]
	return fmt.Sprintf("ORD-%d-%s", now.UnixMilli(), suffix)
}

func normalizePage(page, limit, defaultLimit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	return page, limit
}

func (s *OrderService) claimIdempotencyKey(ctx context.Context, key string) error {
	if s.rdb == nil || key == "" {
		return nil
	}
	ok, err := s.rdb.SetNX(ctx, "idempotent-key:"+key, "exists", idempotencyKeyTTL).Result()
	if err != nil {
		return fmt.Errorf("check idempotency key: %w", err)
	}
	if !ok {
		return ErrDuplicateRequest
	}
	return nil
}

// releaseIdempotencyKey frees the key after a failed creation so the
// client can retry with the same one.
func (s *OrderService) releaseIdempotencyKey(ctx context.Context, key string) {
	if s.rdb == nil || key == "" {
		return
	}
	if err := s.rdb.Del(ctx, "idempotent-key:"+key).Err(); err != nil {
		logger.Error().Err(err).Msg("Error releasing idempotency key")
	}
}

// publishOrderEvent emits a lifecycle event after commit. Failures are
// logged, not returned: the order is already durable.
func (s *OrderService) publishOrderEvent(ctx context.Context, order *entity.Order, event string) {
	if s.kafkaWriter == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"order_id":        order.ID,
		"order_number":    order.OrderNumber,
		"user_id":         order.UserID,
		"delivery_status": order.DeliveryStatus,
		"total":           order.Pricing.Total,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Error marshalling order event")
		return
	}

	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("order-%s-%d", event, order.ID)),
		Value: payload,
	}
	if err := s.kafkaWriter.WriteMessages(ctx, msg); err != nil {
		logger.Error().Err(err).Int64("order_id", order.ID).Msg("Error publishing order event")
	}
}

func (s *OrderService) invalidateProductCache(ctx context.Context, items []entity.OrderItem) {
	if s.rdb == nil {
		return
	}
	keys := make([]string, 0, len(items))
	for _, it := range items {
		keys = append(keys, fmt.Sprintf("product:%d", it.ProductID))
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		logger.Error().Err(err).Msg("Error invalidating product cache")
	}
}
