package entity

import "time"

// Delivery statuses an order moves through. The happy path is
// pending -> processing -> shipped -> in_transit -> out_for_delivery
// -> delivered; cancelled and returned are terminal side states.
const (
	StatusPending        = "pending"
	StatusProcessing     = "processing"
	StatusShipped        = "shipped"
	StatusInTransit      = "in_transit"
	StatusOutForDelivery = "out_for_delivery"
	StatusDelivered      = "delivered"
	StatusCancelled      = "cancelled"
	StatusReturned       = "returned"
)

const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
	PaymentRefunded  = "refunded"
)

var deliveryStatuses = map[string]bool{
	StatusPending:        true,
	StatusProcessing:     true,
	StatusShipped:        true,
	StatusInTransit:      true,
	StatusOutForDelivery: true,
	StatusDelivered:      true,
	StatusCancelled:      true,
	StatusReturned:       true,
}

var paymentMethods = map[string]bool{
	"credit_card": true,
	"debit_card":  true,
	"paypal":      true,
	"apple_pay":   true,
	"google_pay":  true,
}

// ValidDeliveryStatus reports whether s is one of the known delivery statuses.
func ValidDeliveryStatus(s string) bool { return deliveryStatuses[s] }

// ValidPaymentMethod reports whether m is an accepted payment method.
func ValidPaymentMethod(m string) bool { return paymentMethods[m] }

type Order struct {
	ID                    int64                `json:"id"`
	OrderNumber           string               `json:"order_number"`
	UserID                int64                `json:"user_id"`
	Items                 []OrderItem          `json:"items"`
	Pricing               Pricing              `json:"pricing"`
	ShippingAddress       Address              `json:"shipping_address"`
	PaymentMethod         string               `json:"payment_method"`
	PaymentStatus         string               `json:"payment_status"`
	DeliveryStatus        string               `json:"delivery_status"`
	TrackingNumber        string               `json:"tracking_number,omitempty"`
	EstimatedDeliveryDate *time.Time           `json:"estimated_delivery_date,omitempty"`
	ActualDeliveryDate    *time.Time           `json:"actual_delivery_date,omitempty"`
	ReturnReason          string               `json:"return_reason,omitempty"`
	ReturnDate            *time.Time           `json:"return_date,omitempty"`
	StatusHistory         []StatusHistoryEntry `json:"status_history"`
	CreatedAt             time.Time            `json:"created_at"`
	UpdatedAt             time.Time            `json:"updated_at"`
}

// OrderItem snapshots price at purchase time; it is immutable once
// the order is created.
type OrderItem struct {
	ID              int64   `json:"id"`
	ProductID       int64   `json:"product_id"`
	ProductName     string  `json:"product_name"`
	Quantity        int     `json:"quantity"`
	PriceAtPurchase float64 `json:"price_at_purchase"`
	Discount        float64 `json:"discount"`
	Subtotal        float64 `json:"subtotal"`
}

type Pricing struct {
	Subtotal     float64 `json:"subtotal"`
	Tax          float64 `json:"tax"`
	ShippingCost float64 `json:"shipping_cost"`
	Discount     float64 `json:"discount"`
	Total        float64 `json:"total"`
}

type Address struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Street    string `json:"street"`
	City      string `json:"city"`
	State     string `json:"state"`
	ZipCode   string `json:"zip_code"`
	Country   string `json:"country"`
	Phone     string `json:"phone"`
}

// StatusHistoryEntry is one line of the append-only delivery status log.
type StatusHistoryEntry struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Notes     string    `json:"notes"`
}

// OrderStats is the admin dashboard aggregate.
type OrderStats struct {
	TotalOrders       int           `json:"total_orders"`
	TotalRevenue      float64       `json:"total_revenue"`
	AverageOrderValue float64       `json:"average_order_value"`
	ByStatus          []StatusCount `json:"by_status"`
	ByPaymentStatus   []StatusCount `json:"by_payment_status"`
}

type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}
