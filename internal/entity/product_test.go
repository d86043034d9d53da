package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAvailableStock(t *testing.T) {
	p := Product{Quantity: 10, Reserved: 3}
	assert.Equal(t, 7, p.AvailableStock())

	// Fully reserved leaves nothing sellable.
	p.Reserved = 10
	assert.Equal(t, 0, p.AvailableStock())
}

func TestSellingPrice(t *testing.T) {
	p := Product{Price: 49.99}
	assert.InDelta(t, 49.99, p.SellingPrice(), 1e-9)

	discounted := 39.99
	p.DiscountPrice = &discounted
	assert.InDelta(t, 39.99, p.SellingPrice(), 1e-9)
}

func TestIsLowStock(t *testing.T) {
	p := Product{Quantity: 12, Reserved: 2, ReorderLevel: 10}
	assert.True(t, p.IsLowStock())

	p.Quantity = 13
	assert.False(t, p.IsLowStock())
}

func TestValidDeliveryStatus(t *testing.T) {
	for _, s := range []string{
		StatusPending, StatusProcessing, StatusShipped, StatusInTransit,
		StatusOutForDelivery, StatusDelivered, StatusCancelled, StatusReturned,
	} {
		assert.True(t, ValidDeliveryStatus(s), s)
	}
	assert.False(t, ValidDeliveryStatus("lost"))
	assert.False(t, ValidDeliveryStatus(""))
}

func TestValidPaymentMethod(t *testing.T) {
	assert.True(t, ValidPaymentMethod("credit_card"))
	assert.True(t, ValidPaymentMethod("apple_pay"))
	assert.False(t, ValidPaymentMethod("barter"))
}
