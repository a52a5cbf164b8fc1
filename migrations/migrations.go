package migrations

import (
	"database/sql"
	"fmt"
	"time"
)

const productsTable = `
	CREATE TABLE IF NOT EXISTS products (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		category VARCHAR(100) NOT NULL DEFAULT '',
		description TEXT NOT NULL,
		price DOUBLE NOT NULL DEFAULT 0,
		base_price_per_kg DOUBLE NOT NULL DEFAULT 0,
		unit VARCHAR(10) NOT NULL,
		kg_step DOUBLE NOT NULL DEFAULT 0,
		min_quantity DOUBLE NOT NULL DEFAULT 0,
		max_quantity DOUBLE NOT NULL DEFAULT 0,
		price_tiers TEXT NOT NULL,
		in_stock BOOLEAN NOT NULL DEFAULT TRUE
	);
`

const cartLinesTable = `
	CREATE TABLE IF NOT EXISTS cart_lines (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		session_id VARCHAR(64) NOT NULL,
		product_id VARCHAR(64) NOT NULL,
		unit VARCHAR(10) NOT NULL,
		quantity DOUBLE NOT NULL,
		unit_price DOUBLE NOT NULL,
		total_price DOUBLE NOT NULL,
		UNIQUE KEY session_product_unit (session_id, product_id, unit)
	);
`

const ordersTable = `
	CREATE TABLE IF NOT EXISTS orders (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		order_ref VARCHAR(36) NOT NULL UNIQUE,
		session_id VARCHAR(64) NOT NULL,
		total DOUBLE NOT NULL,
		status VARCHAR(20) NOT NULL,
		idempotent_key VARCHAR(255) UNIQUE NOT NULL,
		created_at DATETIME NOT NULL,
		INDEX orders_session (session_id)
	);
`

const orderLinesTable = `
	CREATE TABLE IF NOT EXISTS order_lines (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		order_id BIGINT NOT NULL,
		product_id VARCHAR(64) NOT NULL,
		name VARCHAR(255) NOT NULL,
		quantity DOUBLE NOT NULL,
		unit VARCHAR(10) NOT NULL,
		unit_price DOUBLE NOT NULL,
		line_total DOUBLE NOT NULL,
		FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE
	);
`

// AutoMigrateProducts creates the products table on the primary database.
func AutoMigrateProducts(retries int, db *sql.DB) error {
	return createTable(productsTable, retries, db)
}

// AutoMigrateShards creates the cart and order tables on every shard.
func AutoMigrateShards(retries int, dbs ...*sql.DB) error {
	for _, query := range []string{cartLinesTable, ordersTable, orderLinesTable} {
		if err := createTable(query, retries, dbs...); err != nil {
			return err
		}
	}
	return nil
}

var retryDelay = 1 * time.Second

func createTable(query string, retries int, dbs ...*sql.DB) error {
	for i, db := range dbs {
		_, err := db.Exec(query)
		// Retry creating the table
		for attempt := 0; err != nil && attempt < retries; attempt++ {
			time.Sleep(retryDelay)
			_, err = db.Exec(query)
		}
		if err != nil {
			return fmt.Errorf("migrate shard %d: %w", i, err)
		}
	}
	return nil
}
