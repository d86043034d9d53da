package entity

import "time"

type Product struct {
	ID            int64      `json:"id"`
	SKU           string     `json:"sku"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	Category      string     `json:"category"`
	Price         float64    `json:"price"`
	DiscountPrice *float64   `json:"discount_price,omitempty"`
	Quantity      int        `json:"quantity"`
	Reserved      int        `json:"reserved"`
	ReorderLevel  int        `json:"reorder_level"`
	LastRestocked *time.Time `json:"last_restocked,omitempty"`
	IsActive      bool       `json:"is_active"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// AvailableStock is the sellable amount: on-hand quantity minus
// units already reserved by open orders.
func (p *Product) AvailableStock() int {
	return p.Quantity - p.Reserved
}

// SellingPrice returns the discount price when one is set, the list
// price otherwise.
func (p *Product) SellingPrice() float64 {
	if p.DiscountPrice != nil {
		return *p.DiscountPrice
	}
	return p.Price
}

// IsLowStock reports whether available stock has fallen to or below
// the reorder level.
func (p *Product) IsLowStock() bool {
	return p.AvailableStock() <= p.ReorderLevel
}

/*
MySQL schema for the products table:

CREATE TABLE products (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	sku VARCHAR(64) NOT NULL UNIQUE,
	name VARCHAR(255) NOT NULL,
	description TEXT NOT NULL,
	category VARCHAR(64) NOT NULL,
	price DOUBLE NOT NULL,
	discount_price DOUBLE NULL,
	quantity INT NOT NULL DEFAULT 0,
	reserved INT NOT NULL DEFAULT 0,
	reorder_level INT NOT NULL DEFAULT 10,
	last_restocked DATETIME NULL,
	is_active TINYINT(1) NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
*/
