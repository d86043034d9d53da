package migrations

import (
	"database/sql"
	"fmt"
	"time"
)

var tables = []struct {
	name  string
	query string
}{
	{
		name: "products",
		query: `
		CREATE TABLE IF NOT EXISTS products (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			sku VARCHAR(64) NOT NULL UNIQUE,
			name VARCHAR(255) NOT NULL,
			description TEXT NOT NULL,
			category VARCHAR(64) NOT NULL DEFAULT '',
			price DOUBLE NOT NULL,
			discount_price DOUBLE NULL,
			quantity INT NOT NULL DEFAULT 0,
			reserved INT NOT NULL DEFAULT 0,
			reorder_level INT NOT NULL DEFAULT 10,
			last_restocked DATETIME NULL,
			is_active TINYINT(1) NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			INDEX idx_products_active (is_active)
		);`,
	},
	{
		name: "orders",
		query: `
		CREATE TABLE IF NOT EXISTS orders (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			order_number VARCHAR(64) NOT NULL UNIQUE,
			user_id BIGINT NOT NULL,
			subtotal DOUBLE NOT NULL,
			tax DOUBLE NOT NULL,
			shipping_cost DOUBLE NOT NULL,
			discount DOUBLE NOT NULL DEFAULT 0,
			total DOUBLE NOT NULL,
			shipping_address JSON NOT NULL,
			payment_method VARCHAR(32) NOT NULL,
			payment_status VARCHAR(20) NOT NULL,
			delivery_status VARCHAR(20) NOT NULL,
			tracking_number VARCHAR(64) NULL,
			estimated_delivery_date DATETIME NULL,
			actual_delivery_date DATETIME NULL,
			return_reason VARCHAR(255) NULL,
			return_date DATETIME NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			INDEX idx_orders_user (user_id),
			INDEX idx_orders_delivery_status (delivery_status),
			INDEX idx_orders_created_at (created_at)
		);`,
	},
	{
		name: "order_items",
		query: `
		CREATE TABLE IF NOT EXISTS order_items (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			order_id BIGINT NOT NULL,
			product_id BIGINT NOT NULL,
			product_name VARCHAR(255) NOT NULL,
			quantity INT NOT NULL,
			price_at_purchase DOUBLE NOT NULL,
			discount DOUBLE NOT NULL DEFAULT 0,
			subtotal DOUBLE NOT NULL,
			FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE
		);`,
	},
	{
		name: "order_status_history",
		query: `
		CREATE TABLE IF NOT EXISTS order_status_history (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			order_id BIGINT NOT NULL,
			status VARCHAR(20) NOT NULL,
			notes VARCHAR(512) NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE,
			INDEX idx_history_order (order_id, created_at)
		);`,
	},
	{
		name: "audit_logs",
		query: `
		CREATE TABLE IF NOT EXISTS audit_logs (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			actor_id BIGINT NOT NULL,
			action VARCHAR(32) NOT NULL,
			entity_type VARCHAR(32) NOT NULL,
			entity_id BIGINT NOT NULL,
			entity_name VARCHAR(255) NOT NULL DEFAULT '',
			description TEXT NOT NULL,
			before_state JSON NULL,
			after_state JSON NULL,
			status VARCHAR(16) NOT NULL,
			severity VARCHAR(16) NOT NULL,
			created_at DATETIME NOT NULL,
			INDEX idx_audit_entity (entity_type, entity_id),
			INDEX idx_audit_created_at (created_at)
		);`,
	},
}

// AutoMigrate creates all tables if they do not exist, retrying each
// statement in case the database is still starting up.
func AutoMigrate(db *sql.DB, retries int) error {
	for _, table := range tables {
		var err error
		for i := 0; i <= retries; i++ {
			if _, err = db.Exec(table.query); err == nil {
				break
			}
			time.Sleep(1 * time.Second)
		}
		if err != nil {
			return fmt.Errorf("migrate %s table: %w", table.name, err)
		}
	}
	return nil
}
