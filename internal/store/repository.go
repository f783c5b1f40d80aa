package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/poweranger/trade-optimizer/internal/domain"
	"github.com/poweranger/trade-optimizer/internal/traderr"
)

// Repository implements the engine's read contract over sqlite, plus the
// write path for transaction ingestion.
type Repository struct {
	db *DB
	// onIngest fires after new transaction data lands, so the engine can
	// drop its cached model state.
	onIngest func()
}

// NewRepository creates a repository.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// SetIngestHook registers the callback fired after new data is written.
func (r *Repository) SetIngestHook(fn func()) {
	r.onIngest = fn
}

// Dealer loads one dealer with its transaction aggregates.
func (r *Repository) Dealer(id int64) (domain.Dealer, error) {
	var d domain.Dealer
	err := r.db.QueryRow(`
		SELECT d.id, d.name, d.country_id, d.product_category_id,
		       d.cost_index, d.quality_index, d.delivery_index,
		       d.reliability_index, d.capacity_index,
		       (SELECT COUNT(*) FROM transactions t WHERE t.dealer_id = d.id)
		FROM dealers d
		WHERE d.id = ?
	`, id).Scan(
		&d.ID, &d.Name, &d.CountryID, &d.ProductCategoryID,
		&d.CostIndex, &d.QualityIndex, &d.DeliveryIndex,
		&d.ReliabilityIndex, &d.CapacityIndex, &d.TransactionCount,
	)
	if err == sql.ErrNoRows {
		return domain.Dealer{}, traderr.NotFound("dealer", id)
	}
	if err != nil {
		return domain.Dealer{}, fmt.Errorf("failed to query dealer: %w", err)
	}

	markets, err := r.dealerMarkets(id)
	if err != nil {
		return domain.Dealer{}, err
	}
	d.Markets = markets
	return d, nil
}

// Dealers loads all dealers with aggregates.
func (r *Repository) Dealers() ([]domain.Dealer, error) {
	rows, err := r.db.Query(`
		SELECT d.id, d.name, d.country_id, d.product_category_id,
		       d.cost_index, d.quality_index, d.delivery_index,
		       d.reliability_index, d.capacity_index,
		       (SELECT COUNT(*) FROM transactions t WHERE t.dealer_id = d.id)
		FROM dealers d
		ORDER BY d.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query dealers: %w", err)
	}
	defer rows.Close()

	var dealers []domain.Dealer
	for rows.Next() {
		var d domain.Dealer
		if err := rows.Scan(
			&d.ID, &d.Name, &d.CountryID, &d.ProductCategoryID,
			&d.CostIndex, &d.QualityIndex, &d.DeliveryIndex,
			&d.ReliabilityIndex, &d.CapacityIndex, &d.TransactionCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan dealer: %w", err)
		}
		dealers = append(dealers, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate dealers: %w", err)
	}

	for i := range dealers {
		markets, err := r.dealerMarkets(dealers[i].ID)
		if err != nil {
			return nil, err
		}
		dealers[i].Markets = markets
	}
	return dealers, nil
}

func (r *Repository) dealerMarkets(dealerID int64) ([]int64, error) {
	rows, err := r.db.Query(`
		SELECT DISTINCT destination_country_id FROM transactions
		WHERE dealer_id = ?
		ORDER BY destination_country_id
	`, dealerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query dealer markets: %w", err)
	}
	defer rows.Close()

	var markets []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan market: %w", err)
		}
		markets = append(markets, id)
	}
	return markets, rows.Err()
}

// Product loads one product.
func (r *Repository) Product(id int64) (domain.Product, error) {
	var p domain.Product
	err := r.db.QueryRow(`
		SELECT id, name, category_id, base_unit_cost, weight_kg
		FROM products WHERE id = ?
	`, id).Scan(&p.ID, &p.Name, &p.CategoryID, &p.BaseUnitCost, &p.WeightKg)
	if err == sql.ErrNoRows {
		return domain.Product{}, traderr.NotFound("product", id)
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("failed to query product: %w", err)
	}
	return p, nil
}

// Products lists products, optionally narrowed to a category.
func (r *Repository) Products(categoryID int64) ([]domain.Product, error) {
	query := `SELECT id, name, category_id, base_unit_cost, weight_kg FROM products`
	args := []interface{}{}
	if categoryID != 0 {
		query += ` WHERE category_id = ?`
		args = append(args, categoryID)
	}
	query += ` ORDER BY id`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.CategoryID, &p.BaseUnitCost, &p.WeightKg); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// Country loads one country with its per-mode transit days.
func (r *Repository) Country(id int64) (domain.Country, error) {
	var c domain.Country
	err := r.db.QueryRow(`
		SELECT id, name, code, tariff_rate, tax_rate, currency_factor
		FROM countries WHERE id = ?
	`, id).Scan(&c.ID, &c.Name, &c.Code, &c.TariffRate, &c.TaxRate, &c.CurrencyFactor)
	if err == sql.ErrNoRows {
		return domain.Country{}, traderr.NotFound("country", id)
	}
	if err != nil {
		return domain.Country{}, fmt.Errorf("failed to query country: %w", err)
	}

	transit, err := r.transitDays(id)
	if err != nil {
		return domain.Country{}, err
	}
	c.TransitDays = transit
	return c, nil
}

// Countries lists all countries with transit days.
func (r *Repository) Countries() ([]domain.Country, error) {
	rows, err := r.db.Query(`
		SELECT id, name, code, tariff_rate, tax_rate, currency_factor
		FROM countries ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query countries: %w", err)
	}
	defer rows.Close()

	var countries []domain.Country
	for rows.Next() {
		var c domain.Country
		if err := rows.Scan(&c.ID, &c.Name, &c.Code, &c.TariffRate, &c.TaxRate, &c.CurrencyFactor); err != nil {
			return nil, fmt.Errorf("failed to scan country: %w", err)
		}
		countries = append(countries, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate countries: %w", err)
	}

	for i := range countries {
		transit, err := r.transitDays(countries[i].ID)
		if err != nil {
			return nil, err
		}
		countries[i].TransitDays = transit
	}
	return countries, nil
}

func (r *Repository) transitDays(countryID int64) (map[domain.TransportMode]float64, error) {
	rows, err := r.db.Query(`
		SELECT transport_mode, transit_days FROM trade_routes
		WHERE destination_country_id = ?
	`, countryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transit days: %w", err)
	}
	defer rows.Close()

	transit := make(map[domain.TransportMode]float64)
	for rows.Next() {
		var mode string
		var days float64
		if err := rows.Scan(&mode, &days); err != nil {
			return nil, fmt.Errorf("failed to scan transit days: %w", err)
		}
		transit[domain.TransportMode(mode)] = days
	}
	return transit, rows.Err()
}

// Tariff loads the tariff for a (country, category) pair. found is false
// when no row exists; the engine substitutes documented defaults.
func (r *Repository) Tariff(countryID, categoryID int64) (domain.Tariff, bool, error) {
	var t domain.Tariff
	err := r.db.QueryRow(`
		SELECT country_id, product_category_id, import_duty_rate, export_duty_rate, gst_rate
		FROM tariffs WHERE country_id = ? AND product_category_id = ?
	`, countryID, categoryID).Scan(
		&t.CountryID, &t.ProductCategoryID, &t.ImportDutyRate, &t.ExportDutyRate, &t.GSTRate,
	)
	if err == sql.ErrNoRows {
		return domain.Tariff{}, false, nil
	}
	if err != nil {
		return domain.Tariff{}, false, fmt.Errorf("failed to query tariff: %w", err)
	}
	return t, true, nil
}

// Tariffs lists every tariff row, ordered for stable output.
func (r *Repository) Tariffs() ([]domain.Tariff, error) {
	rows, err := r.db.Query(`
		SELECT country_id, product_category_id, import_duty_rate, export_duty_rate, gst_rate
		FROM tariffs ORDER BY country_id, product_category_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tariffs: %w", err)
	}
	defer rows.Close()

	var tariffs []domain.Tariff
	for rows.Next() {
		var t domain.Tariff
		if err := rows.Scan(&t.CountryID, &t.ProductCategoryID, &t.ImportDutyRate, &t.ExportDutyRate, &t.GSTRate); err != nil {
			return nil, fmt.Errorf("failed to scan tariff: %w", err)
		}
		tariffs = append(tariffs, t)
	}
	return tariffs, rows.Err()
}

// Route loads the trade route for a (country, mode) pair.
func (r *Repository) Route(countryID int64, mode domain.TransportMode) (domain.TradeRoute, bool, error) {
	var rt domain.TradeRoute
	var rawMode string
	err := r.db.QueryRow(`
		SELECT destination_country_id, transport_mode, base_cost_per_kg, transit_days, delay_probability
		FROM trade_routes WHERE destination_country_id = ? AND transport_mode = ?
	`, countryID, string(mode)).Scan(
		&rt.DestinationCountryID, &rawMode, &rt.BaseCostPerKg, &rt.TransitDays, &rt.DelayProbability,
	)
	if err == sql.ErrNoRows {
		return domain.TradeRoute{}, false, nil
	}
	if err != nil {
		return domain.TradeRoute{}, false, fmt.Errorf("failed to query route: %w", err)
	}
	rt.Mode = domain.TransportMode(rawMode)
	return rt, true, nil
}

// Transactions bulk-reads historical records, newest first, bounded by
// limit when positive.
func (r *Repository) Transactions(limit int) ([]domain.Transaction, error) {
	query := `
		SELECT id, dealer_id, product_id, destination_country_id, quantity,
		       transport_mode, profit_margin, delivery_days, order_date, status
		FROM transactions ORDER BY order_date DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		var mode string
		var margin, days sql.NullFloat64
		if err := rows.Scan(
			&tx.ID, &tx.DealerID, &tx.ProductID, &tx.DestinationCountryID,
			&tx.Quantity, &mode, &margin, &days, &tx.OrderDate, &tx.Status,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.Mode = domain.TransportMode(mode)
		if margin.Valid {
			v := margin.Float64
			tx.ProfitMargin = &v
		}
		if days.Valid {
			v := days.Float64
			tx.DeliveryDays = &v
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// DeliveryDays returns observed delivery days for a (country, mode) pair.
func (r *Repository) DeliveryDays(countryID int64, mode domain.TransportMode) ([]float64, error) {
	rows, err := r.db.Query(`
		SELECT delivery_days FROM transactions
		WHERE destination_country_id = ? AND transport_mode = ? AND delivery_days IS NOT NULL
	`, countryID, string(mode))
	if err != nil {
		return nil, fmt.Errorf("failed to query delivery days: %w", err)
	}
	defer rows.Close()

	var days []float64
	for rows.Next() {
		var d float64
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan delivery days: %w", err)
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// CountryIDs lists all country identifiers for the encoding tables.
func (r *Repository) CountryIDs() ([]int64, error) {
	return r.queryIDs(`SELECT id FROM countries ORDER BY id`)
}

// CategoryIDs lists all distinct product category identifiers.
func (r *Repository) CategoryIDs() ([]int64, error) {
	return r.queryIDs(`SELECT DISTINCT category_id FROM products ORDER BY category_id`)
}

// ProductCategories summarizes the catalog per category.
func (r *Repository) ProductCategories() ([]domain.ProductCategory, error) {
	rows, err := r.db.Query(`
		SELECT category_id, COUNT(*) FROM products
		GROUP BY category_id ORDER BY category_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query product categories: %w", err)
	}
	defer rows.Close()

	var cats []domain.ProductCategory
	for rows.Next() {
		var c domain.ProductCategory
		if err := rows.Scan(&c.ID, &c.ProductCount); err != nil {
			return nil, fmt.Errorf("failed to scan product category: %w", err)
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

func (r *Repository) queryIDs(query string) ([]int64, error) {
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InsertTransaction writes one historical record and fires the ingestion
// hook so the engine retrains on next use.
func (r *Repository) InsertTransaction(tx domain.Transaction) (int64, error) {
	var margin, days interface{}
	if tx.ProfitMargin != nil {
		margin = *tx.ProfitMargin
	}
	if tx.DeliveryDays != nil {
		days = *tx.DeliveryDays
	}
	orderDate := tx.OrderDate
	if orderDate.IsZero() {
		orderDate = time.Now().UTC()
	}
	status := tx.Status
	if status == "" {
		status = "completed"
	}

	res, err := r.db.Exec(`
		INSERT INTO transactions
			(dealer_id, product_id, destination_country_id, quantity,
			 transport_mode, profit_margin, delivery_days, order_date, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, tx.DealerID, tx.ProductID, tx.DestinationCountryID, tx.Quantity,
		string(tx.Mode), margin, days, orderDate, status)
	if err != nil {
		return 0, fmt.Errorf("failed to insert transaction: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted id: %w", err)
	}
	if r.onIngest != nil {
		r.onIngest()
	}
	return id, nil
}
