package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"storefront-service/internal/inventory"
)

// MySQLStore implements Store on a single MySQL database. The order
// workflow needs the stock check, the order insert, and the audit write
// to share one transaction, so everything lives on one connection pool.
type MySQLStore struct {
	db     *sql.DB
	ledger *inventory.Ledger
}

func NewMySQLStore(db *sql.DB, ledger *inventory.Ledger) *MySQLStore {
	return &MySQLStore{db: db, ledger: ledger}
}

// WithinTx runs fn inside a serializable transaction. The transaction
// is rolled back on error or panic and committed otherwise; there is no
// exit path that leaves it open.
func (s *MySQLStore) WithinTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(&mysqlTx{tx: tx, ledger: s.ledger}); err != nil {
		tx.Rollback()
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type mysqlTx struct {
	tx     *sql.Tx
	ledger *inventory.Ledger
}

func (t *mysqlTx) ReserveStock(ctx context.Context, productID int64, qty int) error {
	return t.ledger.Reserve(ctx, t.tx, productID, qty)
}

func (t *mysqlTx) ReleaseStock(ctx context.Context, productID int64, qty int) error {
	return t.ledger.Release(ctx, t.tx, productID, qty)
}

func (t *mysqlTx) RestockProduct(ctx context.Context, productID int64, qty int) error {
	return t.ledger.Restock(ctx, t.tx, productID, qty)
}

// isDuplicateKey reports whether err is a MySQL 1062 unique constraint
// violation, used to surface order-number and SKU collisions.
func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
