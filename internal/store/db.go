// Package store is the sqlite-backed reference-data adapter: it supplies
// dealer, country, product, tariff, route, and transaction rows to the
// scoring engine. It does not validate business rules.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the sqlite connection.
type DB struct {
	*sql.DB
}

// NewDB opens (creating if needed) the trade database under dataDir.
func NewDB(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "trade_optimizer.db")
	connStr := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	database := &DB{DB: db}
	if err := database.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Info("Trade database initialized", "path", dbPath)
	return database, nil
}

func (db *DB) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS countries (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			code TEXT NOT NULL UNIQUE,
			tariff_rate REAL NOT NULL DEFAULT 0,
			tax_rate REAL NOT NULL DEFAULT 0,
			currency_factor REAL NOT NULL DEFAULT 1.0
		)`,

		`CREATE TABLE IF NOT EXISTS products (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			category_id INTEGER NOT NULL,
			base_unit_cost REAL NOT NULL,
			weight_kg REAL NOT NULL DEFAULT 1.0
		)`,

		`CREATE TABLE IF NOT EXISTS dealers (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			country_id INTEGER NOT NULL,
			product_category_id INTEGER NOT NULL,
			cost_index REAL NOT NULL DEFAULT 50,
			quality_index REAL NOT NULL DEFAULT 50,
			delivery_index REAL NOT NULL DEFAULT 50,
			reliability_index REAL NOT NULL DEFAULT 50,
			capacity_index REAL NOT NULL DEFAULT 50,
			FOREIGN KEY (country_id) REFERENCES countries(id)
		)`,

		`CREATE TABLE IF NOT EXISTS tariffs (
			country_id INTEGER NOT NULL,
			product_category_id INTEGER NOT NULL,
			import_duty_rate REAL NOT NULL DEFAULT 0,
			export_duty_rate REAL NOT NULL DEFAULT 0,
			gst_rate REAL NOT NULL DEFAULT 0,
			PRIMARY KEY (country_id, product_category_id),
			FOREIGN KEY (country_id) REFERENCES countries(id)
		)`,

		`CREATE TABLE IF NOT EXISTS trade_routes (
			destination_country_id INTEGER NOT NULL,
			transport_mode TEXT NOT NULL,
			base_cost_per_kg REAL NOT NULL,
			transit_days REAL NOT NULL,
			delay_probability REAL NOT NULL DEFAULT 0.1,
			PRIMARY KEY (destination_country_id, transport_mode),
			FOREIGN KEY (destination_country_id) REFERENCES countries(id)
		)`,

		`CREATE TABLE IF NOT EXISTS transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			dealer_id INTEGER NOT NULL,
			product_id INTEGER NOT NULL,
			destination_country_id INTEGER NOT NULL,
			quantity INTEGER NOT NULL,
			transport_mode TEXT NOT NULL,
			profit_margin REAL,
			delivery_days REAL,
			order_date DATETIME NOT NULL,
			status TEXT NOT NULL DEFAULT 'completed',
			FOREIGN KEY (dealer_id) REFERENCES dealers(id),
			FOREIGN KEY (product_id) REFERENCES products(id),
			FOREIGN KEY (destination_country_id) REFERENCES countries(id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_transactions_country_mode
			ON transactions(destination_country_id, transport_mode)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_dealer
			ON transactions(dealer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_order_date
			ON transactions(order_date DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_dealers_category
			ON dealers(product_category_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}
	return nil
}
