package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/poweranger/trade-optimizer/internal/domain"
)

// Loader seeds the database from CSV files. Each file is optional; a
// missing file skips that entity. Expected files under the seed dir:
// countries.csv, products.csv, dealers.csv, tariffs.csv, trade_routes.csv,
// transactions.csv.
type Loader struct {
	db *DB
}

func NewLoader(db *DB) *Loader {
	return &Loader{db: db}
}

// LoadDir seeds all entities found under dir. Reference data loads before
// transactions so foreign keys resolve.
func (l *Loader) LoadDir(dir string) error {
	steps := []struct {
		file string
		fn   func(string) (int, error)
	}{
		{"countries.csv", l.loadCountries},
		{"products.csv", l.loadProducts},
		{"dealers.csv", l.loadDealers},
		{"tariffs.csv", l.loadTariffs},
		{"trade_routes.csv", l.loadRoutes},
		{"transactions.csv", l.loadTransactions},
	}

	for _, step := range steps {
		path := filepath.Join(dir, step.file)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		n, err := step.fn(path)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", step.file, err)
		}
		slog.Info("Seed data loaded", "file", step.file, "rows", n)
	}
	return nil
}

func (l *Loader) loadCountries(path string) (int, error) {
	return l.loadCSV(path, 6, func(rec []string) error {
		id, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid country id %q: %w", rec[0], err)
		}
		tariff, tax, currency, err := parseFloats(rec[3], rec[4], rec[5])
		if err != nil {
			return err
		}
		_, err = l.db.Exec(`
			INSERT OR REPLACE INTO countries (id, name, code, tariff_rate, tax_rate, currency_factor)
			VALUES (?, ?, ?, ?, ?, ?)
		`, id, rec[1], rec[2], tariff, tax, currency)
		return err
	})
}

func (l *Loader) loadProducts(path string) (int, error) {
	return l.loadCSV(path, 5, func(rec []string) error {
		id, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid product id %q: %w", rec[0], err)
		}
		categoryID, err := strconv.ParseInt(rec[2], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid category id %q: %w", rec[2], err)
		}
		cost, weight, _, err := parseFloats(rec[3], rec[4], "0")
		if err != nil {
			return err
		}
		_, err = l.db.Exec(`
			INSERT OR REPLACE INTO products (id, name, category_id, base_unit_cost, weight_kg)
			VALUES (?, ?, ?, ?, ?)
		`, id, rec[1], categoryID, cost, weight)
		return err
	})
}

func (l *Loader) loadDealers(path string) (int, error) {
	return l.loadCSV(path, 9, func(rec []string) error {
		id, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid dealer id %q: %w", rec[0], err)
		}
		countryID, err := strconv.ParseInt(rec[2], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid country id %q: %w", rec[2], err)
		}
		categoryID, err := strconv.ParseInt(rec[3], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid category id %q: %w", rec[3], err)
		}
		indices := make([]float64, 5)
		for i := 0; i < 5; i++ {
			v, err := strconv.ParseFloat(rec[4+i], 64)
			if err != nil {
				return fmt.Errorf("invalid index %q: %w", rec[4+i], err)
			}
			indices[i] = v
		}
		d := domain.Dealer{
			ID: id, Name: rec[1], CountryID: countryID, ProductCategoryID: categoryID,
			CostIndex: indices[0], QualityIndex: indices[1], DeliveryIndex: indices[2],
			ReliabilityIndex: indices[3], CapacityIndex: indices[4],
		}
		if err := d.Validate(); err != nil {
			return err
		}
		_, err = l.db.Exec(`
			INSERT OR REPLACE INTO dealers
				(id, name, country_id, product_category_id,
				 cost_index, quality_index, delivery_index, reliability_index, capacity_index)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, d.ID, d.Name, d.CountryID, d.ProductCategoryID,
			d.CostIndex, d.QualityIndex, d.DeliveryIndex, d.ReliabilityIndex, d.CapacityIndex)
		return err
	})
}

func (l *Loader) loadTariffs(path string) (int, error) {
	return l.loadCSV(path, 5, func(rec []string) error {
		countryID, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid country id %q: %w", rec[0], err)
		}
		categoryID, err := strconv.ParseInt(rec[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid category id %q: %w", rec[1], err)
		}
		importDuty, exportDuty, gst, err := parseFloats(rec[2], rec[3], rec[4])
		if err != nil {
			return err
		}
		_, err = l.db.Exec(`
			INSERT OR REPLACE INTO tariffs
				(country_id, product_category_id, import_duty_rate, export_duty_rate, gst_rate)
			VALUES (?, ?, ?, ?, ?)
		`, countryID, categoryID, importDuty, exportDuty, gst)
		return err
	})
}

func (l *Loader) loadRoutes(path string) (int, error) {
	return l.loadCSV(path, 5, func(rec []string) error {
		countryID, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid country id %q: %w", rec[0], err)
		}
		mode, ok := domain.ParseTransportMode(rec[1])
		if !ok {
			return fmt.Errorf("invalid transport mode %q", rec[1])
		}
		cost, transit, delay, err := parseFloats(rec[2], rec[3], rec[4])
		if err != nil {
			return err
		}
		_, err = l.db.Exec(`
			INSERT OR REPLACE INTO trade_routes
				(destination_country_id, transport_mode, base_cost_per_kg, transit_days, delay_probability)
			VALUES (?, ?, ?, ?, ?)
		`, countryID, string(mode), cost, transit, delay)
		return err
	})
}

func (l *Loader) loadTransactions(path string) (int, error) {
	return l.loadCSV(path, 9, func(rec []string) error {
		dealerID, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid dealer id %q: %w", rec[0], err)
		}
		productID, err := strconv.ParseInt(rec[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid product id %q: %w", rec[1], err)
		}
		countryID, err := strconv.ParseInt(rec[2], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid country id %q: %w", rec[2], err)
		}
		quantity, err := strconv.Atoi(rec[3])
		if err != nil {
			return fmt.Errorf("invalid quantity %q: %w", rec[3], err)
		}
		mode, ok := domain.ParseTransportMode(rec[4])
		if !ok {
			return fmt.Errorf("invalid transport mode %q", rec[4])
		}

		// Empty profit or delivery cells stay NULL so the trainer can
		// exclude the record rather than learn a fake zero.
		var margin, days interface{}
		if rec[5] != "" {
			v, err := strconv.ParseFloat(rec[5], 64)
			if err != nil {
				return fmt.Errorf("invalid profit margin %q: %w", rec[5], err)
			}
			margin = v
		}
		if rec[6] != "" {
			v, err := strconv.ParseFloat(rec[6], 64)
			if err != nil {
				return fmt.Errorf("invalid delivery days %q: %w", rec[6], err)
			}
			days = v
		}

		orderDate, err := time.Parse("2006-01-02", rec[7])
		if err != nil {
			return fmt.Errorf("invalid order date %q: %w", rec[7], err)
		}
		status := rec[8]
		if status == "" {
			status = "completed"
		}

		_, err = l.db.Exec(`
			INSERT INTO transactions
				(dealer_id, product_id, destination_country_id, quantity,
				 transport_mode, profit_margin, delivery_days, order_date, status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, dealerID, productID, countryID, quantity, string(mode), margin, days, orderDate, status)
		return err
	})
}

// loadCSV streams records through insert, skipping the header row.
func (l *Loader) loadCSV(path string, minFields int, insert func([]string) error) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	count := 0
	header := true
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, fmt.Errorf("failed to read csv record: %w", err)
		}
		if header {
			header = false
			continue
		}
		if len(rec) < minFields {
			return count, fmt.Errorf("record %d: expected %d fields, got %d", count+1, minFields, len(rec))
		}
		if err := insert(rec); err != nil {
			return count, fmt.Errorf("record %d: %w", count+1, err)
		}
		count++
	}
	return count, nil
}

func parseFloats(a, b, c string) (float64, float64, float64, error) {
	va, err := strconv.ParseFloat(a, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid number %q: %w", a, err)
	}
	vb, err := strconv.ParseFloat(b, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid number %q: %w", b, err)
	}
	vc, err := strconv.ParseFloat(c, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid number %q: %w", c, err)
	}
	return va, vb, vc, nil
}
