package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront-service/internal/entity"
)

const productColumns = `id, sku, name, description, category, price, discount_price,
	quantity, reserved, reorder_level, last_restocked, is_active, created_at, updated_at`

func (t *mysqlTx) ProductForUpdate(ctx context.Context, id int64) (*entity.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = ? FOR UPDATE`
	return scanProduct(t.tx.QueryRowContext(ctx, query, id))
}

func (t *mysqlTx) InsertProduct(ctx context.Context, p *entity.Product) error {
	query := `
		INSERT INTO products (sku, name, description, category, price, discount_price,
			quantity, reserved, reorder_level, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := t.tx.ExecContext(ctx, query, p.SKU, p.Name, p.Description, p.Category,
		p.Price, p.DiscountPrice, p.Quantity, p.Reserved, p.ReorderLevel, p.IsActive,
		p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("sku %s: %w", p.SKU, ErrDuplicate)
		}
		return fmt.Errorf("insert product: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}

// UpdateProduct writes descriptive fields only. Stock counters are owned
// by the ledger primitives and never touched here.
func (t *mysqlTx) UpdateProduct(ctx context.Context, p *entity.Product) error {
	query := `
		UPDATE products
		SET name = ?, description = ?, category = ?, price = ?, discount_price = ?,
			reorder_level = ?, is_active = ?, updated_at = ?
		WHERE id = ?`
	res, err := t.tx.ExecContext(ctx, query, p.Name, p.Description, p.Category, p.Price,
		p.DiscountPrice, p.ReorderLevel, p.IsActive, p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MySQLStore) GetProductByID(ctx context.Context, id int64) (*entity.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = ?`
	return scanProduct(s.db.QueryRowContext(ctx, query, id))
}

func (s *MySQLStore) ListProducts(ctx context.Context, activeOnly bool) ([]*entity.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []*entity.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func scanProduct(row rowScanner) (*entity.Product, error) {
	p := &entity.Product{}
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.Category, &p.Price,
		&p.DiscountPrice, &p.Quantity, &p.Reserved, &p.ReorderLevel, &p.LastRestocked,
		&p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan product: %w", err)
	}
	return p, nil
}
