// Package inventory holds the stock ledger. All stock mutations go
// through its conditional UPDATE primitives so that concurrent orders
// against the same product cannot oversell: the availability check and
// the reservation happen in one statement, guarded by the row predicate.
package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrOverRelease       = errors.New("release exceeds reserved stock")
	ErrProductNotFound   = errors.New("product not found")
)

// DBTX is satisfied by both *sql.DB and *sql.Tx. Ledger mutations are
// expected to run on the enclosing order transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Ledger struct{}

func NewLedger() *Ledger { return &Ledger{} }

// Available returns quantity - reserved for the product.
func (l *Ledger) Available(ctx context.Context, db DBTX, productID int64) (int, error) {
	var available int
	query := `SELECT quantity - reserved FROM products WHERE id = ?`
	err := db.QueryRowContext(ctx, query, productID).Scan(&available)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrProductNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("query available stock: %w", err)
	}
	return available, nil
}

// CheckAvailability reports whether qty units are currently sellable.
func (l *Ledger) CheckAvailability(ctx context.Context, db DBTX, productID int64, qty int) (bool, error) {
	available, err := l.Available(ctx, db, productID)
	if err != nil {
		return false, err
	}
	return available >= qty, nil
}

// Reserve places a hold on qty units: reserved rises, on-hand quantity
// is untouched, so reserved can never exceed quantity. The WHERE clause
// re-checks availability at the moment of the write, so a stale earlier
// read cannot cause an oversell. Zero rows affected means the stock was
// claimed by a competing transaction first.
func (l *Ledger) Reserve(ctx context.Context, db DBTX, productID int64, qty int) error {
	query := `
		UPDATE products
		SET reserved = reserved + ?, updated_at = NOW()
		WHERE id = ? AND quantity - reserved >= ?`
	res, err := db.ExecContext(ctx, query, qty, productID, qty)
	if err != nil {
		return fmt.Errorf("reserve stock for product %d: %w", productID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInsufficientStock
	}
	return nil
}

// Release drops a hold, making the units sellable again. The guard
// keeps reserved from going negative on an over-release.
func (l *Ledger) Release(ctx context.Context, db DBTX, productID int64, qty int) error {
	query := `
		UPDATE products
		SET reserved = reserved - ?, updated_at = NOW()
		WHERE id = ? AND reserved >= ?`
	res, err := db.ExecContext(ctx, query, qty, productID, qty)
	if err != nil {
		return fmt.Errorf("release stock for product %d: %w", productID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOverRelease
	}
	return nil
}

// Restock increases on-hand quantity and stamps last_restocked.
func (l *Ledger) Restock(ctx context.Context, db DBTX, productID int64, qty int) error {
	query := `
		UPDATE products
		SET quantity = quantity + ?, last_restocked = NOW(), updated_at = NOW()
		WHERE id = ?`
	res, err := db.ExecContext(ctx, query, qty, productID)
	if err != nil {
		return fmt.Errorf("restock product %d: %w", productID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrProductNotFound
	}
	return nil
}
