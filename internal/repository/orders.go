package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront-service/internal/entity"
)

const orderColumns = `id, order_number, user_id, subtotal, tax, shipping_cost, discount, total,
	shipping_address, payment_method, payment_status, delivery_status, tracking_number,
	estimated_delivery_date, actual_delivery_date, return_reason, return_date, created_at, updated_at`

func (t *mysqlTx) InsertOrder(ctx context.Context, o *entity.Order) error {
	address, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshal shipping address: %w", err)
	}

	query := `
		INSERT INTO orders (order_number, user_id, subtotal, tax, shipping_cost, discount, total,
			shipping_address, payment_method, payment_status, delivery_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := t.tx.ExecContext(ctx, query,
		o.OrderNumber, o.UserID,
		o.Pricing.Subtotal, o.Pricing.Tax, o.Pricing.ShippingCost, o.Pricing.Discount, o.Pricing.Total,
		address, o.PaymentMethod, o.PaymentStatus, o.DeliveryStatus, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("order number %s: %w", o.OrderNumber, ErrDuplicate)
		}
		return fmt.Errorf("insert order: %w", err)
	}

	orderID, err := res.LastInsertId()
	if err != nil {
		return err
	}
	o.ID = orderID

	// Batch insert of the order items, like a cart would produce.
	itemQuery := `INSERT INTO order_items (order_id, product_id, product_name, quantity, price_at_purchase, discount, subtotal) VALUES `
	var values []any
	for _, it := range o.Items {
		itemQuery += "(?, ?, ?, ?, ?, ?, ?),"
		values = append(values, orderID, it.ProductID, it.ProductName, it.Quantity, it.PriceAtPurchase, it.Discount, it.Subtotal)
	}
	itemQuery = itemQuery[:len(itemQuery)-1]

	if _, err := t.tx.ExecContext(ctx, itemQuery, values...); err != nil {
		return fmt.Errorf("insert order items: %w", err)
	}

	for _, h := range o.StatusHistory {
		if err := t.AppendStatusHistory(ctx, orderID, h); err != nil {
			return err
		}
	}
	return nil
}

func (t *mysqlTx) OrderForUpdate(ctx context.Context, id int64) (*entity.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = ? FOR UPDATE`
	o, err := scanOrder(t.tx.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	o.Items, err = loadOrderItems(ctx, t.tx, id)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (t *mysqlTx) UpdateOrderStatus(ctx context.Context, o *entity.Order) error {
	query := `
		UPDATE orders
		SET delivery_status = ?, tracking_number = ?, estimated_delivery_date = ?,
			actual_delivery_date = ?, return_reason = ?, return_date = ?, updated_at = ?
		WHERE id = ?`
	_, err := t.tx.ExecContext(ctx, query,
		o.DeliveryStatus, nullString(o.TrackingNumber), o.EstimatedDeliveryDate,
		o.ActualDeliveryDate, nullString(o.ReturnReason), o.ReturnDate, o.UpdatedAt, o.ID)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}

func (t *mysqlTx) AppendStatusHistory(ctx context.Context, orderID int64, h entity.StatusHistoryEntry) error {
	query := `INSERT INTO order_status_history (order_id, status, notes, created_at) VALUES (?, ?, ?, ?)`
	if _, err := t.tx.ExecContext(ctx, query, orderID, h.Status, h.Notes, h.Timestamp); err != nil {
		return fmt.Errorf("append status history: %w", err)
	}
	return nil
}

func (s *MySQLStore) GetOrderByID(ctx context.Context, id int64) (*entity.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = ?`
	o, err := scanOrder(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}

	if o.Items, err = loadOrderItems(ctx, s.db, id); err != nil {
		return nil, err
	}

	historyQuery := `SELECT status, notes, created_at FROM order_status_history WHERE order_id = ? ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, historyQuery, id)
	if err != nil {
		return nil, fmt.Errorf("query status history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var h entity.StatusHistoryEntry
		if err := rows.Scan(&h.Status, &h.Notes, &h.Timestamp); err != nil {
			return nil, err
		}
		o.StatusHistory = append(o.StatusHistory, h)
	}
	return o, rows.Err()
}

func (s *MySQLStore) ListOrdersByUser(ctx context.Context, userID int64, status string, limit, offset int) ([]*entity.Order, int, error) {
	where := `WHERE user_id = ?`
	args := []any{userID}
	if status != "" {
		where += ` AND delivery_status = ?`
		args = append(args, status)
	}
	return s.listOrders(ctx, where, args, limit, offset)
}

func (s *MySQLStore) ListOrders(ctx context.Context, limit, offset int) ([]*entity.Order, int, error) {
	return s.listOrders(ctx, "", nil, limit, offset)
}

func (s *MySQLStore) listOrders(ctx context.Context, where string, args []any, limit, offset int) ([]*entity.Order, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM orders ` + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	query := `SELECT ` + orderColumns + ` FROM orders ` + where + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []*entity.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for _, o := range orders {
		if o.Items, err = loadOrderItems(ctx, s.db, o.ID); err != nil {
			return nil, 0, err
		}
	}
	return orders, total, nil
}

func (s *MySQLStore) OrderStats(ctx context.Context, from, to *time.Time) (*entity.OrderStats, error) {
	where := ""
	var args []any
	if from != nil && to != nil {
		where = `WHERE created_at BETWEEN ? AND ?`
		args = []any{*from, *to}
	}

	stats := &entity.OrderStats{}
	summary := `SELECT COUNT(*), COALESCE(SUM(total), 0), COALESCE(AVG(total), 0) FROM orders ` + where
	err := s.db.QueryRowContext(ctx, summary, args...).
		Scan(&stats.TotalOrders, &stats.TotalRevenue, &stats.AverageOrderValue)
	if err != nil {
		return nil, fmt.Errorf("query order stats: %w", err)
	}

	if stats.ByStatus, err = s.countBy(ctx, "delivery_status", where, args); err != nil {
		return nil, err
	}
	if stats.ByPaymentStatus, err = s.countBy(ctx, "payment_status", where, args); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *MySQLStore) countBy(ctx context.Context, column, where string, args []any) ([]entity.StatusCount, error) {
	query := `SELECT ` + column + `, COUNT(*) FROM orders ` + where + ` GROUP BY ` + column + ` ORDER BY COUNT(*) DESC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("group orders by %s: %w", column, err)
	}
	defer rows.Close()

	var counts []entity.StatusCount
	for rows.Next() {
		var c entity.StatusCount
		if err := rows.Scan(&c.Status, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*entity.Order, error) {
	o := &entity.Order{}
	var address []byte
	var tracking, returnReason sql.NullString
	err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID,
		&o.Pricing.Subtotal, &o.Pricing.Tax, &o.Pricing.ShippingCost, &o.Pricing.Discount, &o.Pricing.Total,
		&address, &o.PaymentMethod, &o.PaymentStatus, &o.DeliveryStatus, &tracking,
		&o.EstimatedDeliveryDate, &o.ActualDeliveryDate, &returnReason, &o.ReturnDate,
		&o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}

	if err := json.Unmarshal(address, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("unmarshal shipping address: %w", err)
	}
	o.TrackingNumber = tracking.String
	o.ReturnReason = returnReason.String
	return o, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadOrderItems(ctx context.Context, db queryer, orderID int64) ([]entity.OrderItem, error) {
	query := `SELECT id, product_id, product_name, quantity, price_at_purchase, discount, subtotal
		FROM order_items WHERE order_id = ? ORDER BY id`
	rows, err := db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	var items []entity.OrderItem
	for rows.Next() {
		var it entity.OrderItem
		if err := rows.Scan(&it.ID, &it.ProductID, &it.ProductName, &it.Quantity, &it.PriceAtPurchase, &it.Discount, &it.Subtotal); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
