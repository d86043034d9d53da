package repository

import (
	"context"
	"errors"
	"time"

	"storefront-service/internal/entity"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate key")
)

// Store is the persistence surface consumed by the service layer.
// Read methods run outside any transaction; everything that mutates
// state goes through WithinTx so a failure at any step rolls the whole
// operation back.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	GetOrderByID(ctx context.Context, id int64) (*entity.Order, error)
	ListOrdersByUser(ctx context.Context, userID int64, status string, limit, offset int) ([]*entity.Order, int, error)
	ListOrders(ctx context.Context, limit, offset int) ([]*entity.Order, int, error)
	OrderStats(ctx context.Context, from, to *time.Time) (*entity.OrderStats, error)

	GetProductByID(ctx context.Context, id int64) (*entity.Product, error)
	ListProducts(ctx context.Context, activeOnly bool) ([]*entity.Product, error)

	PurgeAuditLogs(ctx context.Context, olderThan time.Time) (int64, error)
}

// Tx is the set of operations available inside one transaction. Stock
// mutations are the ledger's conditional primitives; they fail rather
// than let reserved exceed quantity or go negative.
type Tx interface {
	ProductForUpdate(ctx context.Context, id int64) (*entity.Product, error)
	ReserveStock(ctx context.Context, productID int64, qty int) error
	ReleaseStock(ctx context.Context, productID int64, qty int) error
	RestockProduct(ctx context.Context, productID int64, qty int) error
	InsertProduct(ctx context.Context, p *entity.Product) error
	UpdateProduct(ctx context.Context, p *entity.Product) error

	InsertOrder(ctx context.Context, o *entity.Order) error
	OrderForUpdate(ctx context.Context, id int64) (*entity.Order, error)
	UpdateOrderStatus(ctx context.Context, o *entity.Order) error
	AppendStatusHistory(ctx context.Context, orderID int64, h entity.StatusHistoryEntry) error

	InsertAuditLog(ctx context.Context, a *entity.AuditLog) error
}
