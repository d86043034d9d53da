package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-service/internal/entity"
	"storefront-service/internal/repository"
)

func setup(t *testing.T) (*OrderService, *repository.MemStore) {
	t.Helper()
	store := repository.NewMemStore()
	return NewOrderService(store, nil, nil), store
}

func seedProduct(store *repository.MemStore, name string, price float64, quantity, reserved int) *entity.Product {
	now := time.Now()
	return store.SeedProduct(&entity.Product{
		SKU:          strings.ToUpper(strings.ReplaceAll(name, " ", "-")),
		Name:         name,
		Description:  "a product used in tests",
		Category:     "Electronics",
		Price:        price,
		Quantity:     quantity,
		Reserved:     reserved,
		ReorderLevel: 5,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

func testAddress() entity.Address {
	return entity.Address{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Street:    "12 Analytical Way",
		City:      "London",
		ZipCode:   "N1 9GU",
		Country:   "UK",
	}
}

func orderInput(userID int64, items ...OrderItemInput) CreateOrderInput {
	return CreateOrderInput{
		UserID:          userID,
		Items:           items,
		ShippingAddress: testAddress(),
		PaymentMethod:   "credit_card",
	}
}

func TestCreateOrder(t *testing.T) {
	svc, store := setup(t)
	p := seedProduct(store, "Walnut Desk", 60, 10, 0)

	result, err := svc.CreateOrder(context.Background(), orderInput(7, OrderItemInput{ProductID: p.ID, Quantity: 2}))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(result.OrderNumber, "ORD-"))
	assert.Equal(t, 1, result.ItemCount)
	assert.Equal(t, entity.StatusPending, result.DeliveryStatus)
	assert.Equal(t, entity.PaymentCompleted, result.PaymentStatus)
	// 120 subtotal, 12 tax, free shipping above the threshold.
	assert.InDelta(t, 132, result.Total, 1e-9)

	order, err := store.GetOrderByID(context.Background(), result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), order.UserID)
	require.Len(t, order.Items, 1)
	assert.InDelta(t, 60, order.Items[0].PriceAtPurchase, 1e-9)
	require.Len(t, order.StatusHistory, 1)
	assert.Equal(t, entity.StatusPending, order.StatusHistory[0].Status)

	// Reservation holds 2 units without touching on-hand quantity.
	stocked, err := store.GetProductByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, stocked.Quantity)
	assert.Equal(t, 2, stocked.Reserved)
	assert.Equal(t, 8, stocked.AvailableStock())

	audits := store.AuditLogs()
	require.Len(t, audits, 1)
	assert.Equal(t, entity.AuditActionCreate, audits[0].Action)
	assert.Equal(t, entity.AuditSeverityLow, audits[0].Severity)
	assert.Equal(t, order.OrderNumber, audits[0].EntityName)
}

func TestCreateOrderUsesDiscountPrice(t *testing.T) {
	svc, store := setup(t)
	discounted := 40.0
	now := time.Now()
	p := store.SeedProduct(&entity.Product{
		SKU: "LAMP-1", Name: "Reading Lamp", Description: "a discounted lamp",
		Price: 50, DiscountPrice: &discounted, Quantity: 5, IsActive: true,
		CreatedAt: now, UpdatedAt: now,
	})

	result, err := svc.CreateOrder(context.Background(), orderInput(1, OrderItemInput{ProductID: p.ID, Quantity: 1}))
	require.NoError(t, err)

	order, err := store.GetOrderByID(context.Background(), result.OrderID)
	require.NoError(t, err)
	assert.InDelta(t, 40, order.Items[0].PriceAtPurchase, 1e-9)
	assert.InDelta(t, 40, order.Pricing.Subtotal, 1e-9)
}

func TestCreateOrderValidation(t *testing.T) {
	svc, store := setup(t)
	p := seedProduct(store, "Desk Chair", 80, 10, 0)

	tests := []struct {
		name string
		in   CreateOrderInput
	}{
		{"empty cart", orderInput(1)},
		{"zero quantity", orderInput(1, OrderItemInput{ProductID: p.ID, Quantity: 0})},
		{"missing product id", orderInput(1, OrderItemInput{Quantity: 1})},
		{
			"missing address",
			CreateOrderInput{UserID: 1, Items: []OrderItemInput{{ProductID: p.ID, Quantity: 1}}, PaymentMethod: "paypal"},
		},
		{
			"unknown payment method",
			CreateOrderInput{UserID: 1, Items: []OrderItemInput{{ProductID: p.ID, Quantity: 1}}, ShippingAddress: testAddress(), PaymentMethod: "barter"},
		},
		{
			"negative coupon",
			CreateOrderInput{UserID: 1, Items: []OrderItemInput{{ProductID: p.ID, Quantity: 1}}, ShippingAddress: testAddress(), PaymentMethod: "paypal", CouponDiscount: -5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateOrder(context.Background(), tt.in)
			var validation *ValidationError
			require.ErrorAs(t, err, &validation)
		})
	}

	// Nothing was persisted and no stock moved.
	_, total, err := store.ListOrders(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
	stocked, _ := store.GetProductByID(context.Background(), p.ID)
	assert.Equal(t, 10, stocked.Quantity)
}

func TestCreateOrderProductNotFound(t *testing.T) {
	svc, _ := setup(t)
	_, err := svc.CreateOrder(context.Background(), orderInput(1, OrderItemInput{ProductID: 42, Quantity: 1}))
	require.ErrorIs(t, err, ErrProductNotFound)
}

func TestCreateOrderInactiveProduct(t *testing.T) {
	svc, store := setup(t)
	now := time.Now()
	p := store.SeedProduct(&entity.Product{
		SKU: "KETTLE-1", Name: "Discontinued Kettle", Description: "no longer sold",
		Price: 30, Quantity: 10, IsActive: false, CreatedAt: now, UpdatedAt: now,
	})

	_, err := svc.CreateOrder(context.Background(), orderInput(1, OrderItemInput{ProductID: p.ID, Quantity: 1}))
	var unavailable *ProductUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "Discontinued Kettle", unavailable.ProductName)
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	svc, store := setup(t)
	// quantity=10, reserved=2: exactly 8 sellable.
	p := seedProduct(store, "Mechanical Keyboard", 90, 10, 2)

	_, err := svc.CreateOrder(context.Background(), orderInput(1, OrderItemInput{ProductID: p.ID, Quantity: 8}))
	require.NoError(t, err)

	stocked, _ := store.GetProductByID(context.Background(), p.ID)
	assert.Equal(t, 10, stocked.Quantity)
	assert.Equal(t, 10, stocked.Reserved)
	assert.Equal(t, 0, stocked.AvailableStock())

	_, err = svc.CreateOrder(context.Background(), orderInput(1, OrderItemInput{ProductID: p.ID, Quantity: 1}))
	var stock *InsufficientStockError
	require.ErrorAs(t, err, &stock)
	assert.Equal(t, "Mechanical Keyboard", stock.ProductName)
	assert.Equal(t, 0, stock.Available)
	assert.Equal(t, 1, stock.Requested)
}

func TestCreateOrderAtomicRollback(t *testing.T) {
	svc, store := setup(t)
	first := seedProduct(store, "Standing Desk", 200, 10, 0)
	second := seedProduct(store, "Desk Mat", 20, 1, 0)

	// The second item fails the stock check; nothing from the first
	// item may survive.
	_, err := svc.CreateOrder(context.Background(), orderInput(1,
		OrderItemInput{ProductID: first.ID, Quantity: 2},
		OrderItemInput{ProductID: second.ID, Quantity: 5},
	))
	var stock *InsufficientStockError
	require.ErrorAs(t, err, &stock)

	_, total, err := store.ListOrders(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)

	p, _ := store.GetProductByID(context.Background(), first.ID)
	assert.Equal(t, 10, p.Quantity)
	assert.Zero(t, p.Reserved)
	assert.Empty(t, store.AuditLogs())
}

func TestCreateOrderNoOversell(t *testing.T) {
	svc, store := setup(t)
	// 10 sellable units, 25 concurrent orders of 2 each: exactly 5 win.
	p := seedProduct(store, "Limited Edition Print", 150, 10, 0)

	const workers = 25
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			in := orderInput(int64(n+1), OrderItemInput{ProductID: p.ID, Quantity: 2})
			_, err := svc.CreateOrder(context.Background(), in)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	var succeeded, outOfStock int
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var stock *InsufficientStockError
		require.ErrorAs(t, err, &stock)
		outOfStock++
	}
	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 20, outOfStock)

	stocked, _ := store.GetProductByID(context.Background(), p.ID)
	assert.Equal(t, 0, stocked.AvailableStock())
	assert.Equal(t, 10, stocked.Reserved)
}

func TestCancelOrderRestoresStock(t *testing.T) {
	svc, store := setup(t)
	p := seedProduct(store, "Espresso Machine", 250, 12, 3)
	before, _ := store.GetProductByID(context.Background(), p.ID)

	result, err := svc.CreateOrder(context.Background(), orderInput(1, OrderItemInput{ProductID: p.ID, Quantity: 4}))
	require.NoError(t, err)

	during, _ := store.GetProductByID(context.Background(), p.ID)
	assert.Equal(t, before.AvailableStock()-4, during.AvailableStock())

	cancelled, err := svc.CancelOrder(context.Background(), result.OrderID, 99, "customer request")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCancelled, cancelled.DeliveryStatus)

	after, _ := store.GetProductByID(context.Background(), p.ID)
	assert.Equal(t, before.AvailableStock(), after.AvailableStock())
	assert.Equal(t, before.Quantity, after.Quantity)
	assert.Equal(t, before.Reserved, after.Reserved)

	order, _ := store.GetOrderByID(context.Background(), result.OrderID)
	require.Len(t, order.StatusHistory, 2)
	assert.Equal(t, entity.StatusCancelled, order.StatusHistory[1].Status)
	assert.Equal(t, "customer request", order.StatusHistory[1].Notes)

	audits := store.AuditLogs()
	require.Len(t, audits, 2)
	assert.Equal(t, entity.AuditSeverityHigh, audits[1].Severity)

	// Already cancelled: terminal.
	_, err = svc.CancelOrder(context.Background(), result.OrderID, 99, "")
	var transition *InvalidTransitionError
	require.ErrorAs(t, err, &transition)
}

func TestCancelDeliveredOrderRejected(t *testing.T) {
	svc, store := setup(t)
	p := seedProduct(store, "Bookshelf", 120, 10, 0)

	result, err := svc.CreateOrder(context.Background(), orderInput(1, OrderItemInput{ProductID: p.ID, Quantity: 3}))
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), UpdateStatusInput{
		OrderID: result.OrderID, ActorID: 99, NewStatus: entity.StatusDelivered,
	})
	require.NoError(t, err)

	_, err = svc.CancelOrder(context.Background(), result.OrderID, 99, "")
	var transition *InvalidTransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, entity.StatusDelivered, transition.From)

	// Stock untouched by the rejected cancellation.
	stocked, _ := store.GetProductByID(context.Background(), p.ID)
	assert.Equal(t, 3, stocked.Reserved)
	assert.Equal(t, 10, stocked.Quantity)
}

func TestUpdateStatus(t *testing.T) {
	svc, store := setup(t)
	p := seedProduct(store, "Record Player", 180, 10, 0)
	result, err := svc.CreateOrder(context.Background(), orderInput(1, OrderItemInput{ProductID: p.ID, Quantity: 1}))
	require.NoError(t, err)

	t.Run("unknown status rejected", func(t *testing.T) {
		_, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
			OrderID: result.OrderID, NewStatus: "teleported",
		})
		require.ErrorIs(t, err, ErrInvalidStatus)
	})

	t.Run("cancelled not reachable here", func(t *testing.T) {
		_, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
			OrderID: result.OrderID, NewStatus: entity.StatusCancelled,
		})
		var transition *InvalidTransitionError
		require.ErrorAs(t, err, &transition)
	})

	t.Run("shipped sets estimated delivery date", func(t *testing.T) {
		updated, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
			OrderID:        result.OrderID,
			ActorID:        99,
			NewStatus:      entity.StatusShipped,
			TrackingNumber: "TRK-123456",
			Notes:          "handed to carrier",
		})
		require.NoError(t, err)
		assert.Equal(t, entity.StatusShipped, updated.DeliveryStatus)
		assert.Equal(t, "TRK-123456", updated.TrackingNumber)
		require.NotNil(t, updated.EstimatedDeliveryDate)
		assert.WithinDuration(t, time.Now().AddDate(0, 0, 5), *updated.EstimatedDeliveryDate, time.Minute)
	})

	t.Run("estimated date not overwritten", func(t *testing.T) {
		first, _ := store.GetOrderByID(context.Background(), result.OrderID)
		_, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
			OrderID: result.OrderID, NewStatus: entity.StatusInTransit,
		})
		require.NoError(t, err)
		// Back to shipped: the original estimate stands.
		updated, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
			OrderID: result.OrderID, NewStatus: entity.StatusShipped,
		})
		require.NoError(t, err)
		assert.Equal(t, first.EstimatedDeliveryDate.Unix(), updated.EstimatedDeliveryDate.Unix())
	})

	t.Run("delivered stamps actual date and is near-terminal", func(t *testing.T) {
		_, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
			OrderID: result.OrderID, NewStatus: entity.StatusDelivered,
		})
		require.NoError(t, err)

		order, _ := store.GetOrderByID(context.Background(), result.OrderID)
		require.NotNil(t, order.ActualDeliveryDate)

		_, err = svc.UpdateStatus(context.Background(), UpdateStatusInput{
			OrderID: result.OrderID, NewStatus: entity.StatusProcessing,
		})
		var transition *InvalidTransitionError
		require.ErrorAs(t, err, &transition)
	})

	t.Run("delivered to returned, then terminal", func(t *testing.T) {
		updated, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
			OrderID: result.OrderID, NewStatus: entity.StatusReturned, Notes: "damaged in transit",
		})
		require.NoError(t, err)
		assert.Equal(t, entity.StatusReturned, updated.DeliveryStatus)

		order, _ := store.GetOrderByID(context.Background(), result.OrderID)
		require.NotNil(t, order.ReturnDate)
		assert.Equal(t, "damaged in transit", order.ReturnReason)

		_, err = svc.UpdateStatus(context.Background(), UpdateStatusInput{
			OrderID: result.OrderID, NewStatus: entity.StatusPending,
		})
		var transition *InvalidTransitionError
		require.ErrorAs(t, err, &transition)
	})

	t.Run("history is append-only", func(t *testing.T) {
		order, _ := store.GetOrderByID(context.Background(), result.OrderID)
		statuses := make([]string, len(order.StatusHistory))
		for i, h := range order.StatusHistory {
			statuses[i] = h.Status
		}
		assert.Equal(t, []string{
			entity.StatusPending, entity.StatusShipped, entity.StatusInTransit,
			entity.StatusShipped, entity.StatusDelivered, entity.StatusReturned,
		}, statuses)
	})
}

func TestUpdateStatusOrderNotFound(t *testing.T) {
	svc, _ := setup(t)
	_, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{OrderID: 404, NewStatus: entity.StatusShipped})
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestGetOrderOwnership(t *testing.T) {
	svc, store := setup(t)
	p := seedProduct(store, "Floor Lamp", 45, 10, 0)
	result, err := svc.CreateOrder(context.Background(), orderInput(7, OrderItemInput{ProductID: p.ID, Quantity: 1}))
	require.NoError(t, err)

	_, err = svc.GetOrder(context.Background(), result.OrderID, 7, "customer")
	require.NoError(t, err)

	_, err = svc.GetOrder(context.Background(), result.OrderID, 8, "customer")
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.GetOrder(context.Background(), result.OrderID, 8, "admin")
	require.NoError(t, err)

	_, err = svc.GetOrder(context.Background(), 404, 7, "customer")
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestOrderStats(t *testing.T) {
	svc, store := setup(t)
	p := seedProduct(store, "Coffee Grinder", 60, 100, 0)

	var orderIDs []int64
	for i := 0; i < 3; i++ {
		result, err := svc.CreateOrder(context.Background(), orderInput(int64(i+1), OrderItemInput{ProductID: p.ID, Quantity: 2}))
		require.NoError(t, err)
		orderIDs = append(orderIDs, result.OrderID)
	}
	_, err := svc.CancelOrder(context.Background(), orderIDs[0], 99, "")
	require.NoError(t, err)

	stats, err := svc.Stats(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalOrders)
	assert.InDelta(t, 3*132.0, stats.TotalRevenue, 1e-9)
	assert.InDelta(t, 132.0, stats.AverageOrderValue, 1e-9)
	assert.Contains(t, stats.ByStatus, entity.StatusCount{Status: entity.StatusPending, Count: 2})
	assert.Contains(t, stats.ByStatus, entity.StatusCount{Status: entity.StatusCancelled, Count: 1})
	assert.Contains(t, stats.ByPaymentStatus, entity.StatusCount{Status: entity.PaymentCompleted, Count: 3})

	// Reads are idempotent: no writes in between, identical results.
	again, err := svc.Stats(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, stats, again)
}

func TestListUserOrders(t *testing.T) {
	svc, store := setup(t)
	p := seedProduct(store, "Wool Blanket", 35, 100, 0)

	for i := 0; i < 4; i++ {
		_, err := svc.CreateOrder(context.Background(), orderInput(1, OrderItemInput{ProductID: p.ID, Quantity: 1}))
		require.NoError(t, err)
	}
	_, err := svc.CreateOrder(context.Background(), orderInput(2, OrderItemInput{ProductID: p.ID, Quantity: 1}))
	require.NoError(t, err)

	orders, total, err := svc.ListUserOrders(context.Background(), 1, "", 1, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, orders, 3)

	orders, total, err = svc.ListUserOrders(context.Background(), 1, entity.StatusShipped, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, orders)

	_, _, err = svc.ListUserOrders(context.Background(), 1, "bogus", 1, 10)
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestOrderNumberUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		n := newOrderNumber(time.Now())
		require.False(t, seen[n], "duplicate order number %s", n)
		seen[n] = true
	}
}

func TestPricingTotalIdentityOnOrder(t *testing.T) {
	svc, store := setup(t)
	p := seedProduct(store, "Ceramic Mug", 12.5, 50, 0)

	in := orderInput(1, OrderItemInput{ProductID: p.ID, Quantity: 3})
	in.CouponDiscount = 4
	_, err := svc.CreateOrder(context.Background(), in)
	require.NoError(t, err)

	order, err := store.GetOrderByID(context.Background(), 1)
	require.NoError(t, err)
	pr := order.Pricing
	assert.InDelta(t, pr.Subtotal+pr.Tax+pr.ShippingCost-pr.Discount, pr.Total, 1e-9)
}
