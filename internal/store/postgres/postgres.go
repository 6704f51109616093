package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"gudangku/backend/internal/domain"
	"gudangku/backend/internal/store"
	"gudangku/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the tables on first run. Idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS units (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			abbreviation TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			qty NUMERIC NOT NULL DEFAULT 0,
			original_price NUMERIC NOT NULL DEFAULT 0,
			sale_price NUMERIC NOT NULL DEFAULT 0,
			unit_id TEXT REFERENCES units(id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS purchase_history (
			id TEXT PRIMARY KEY,
			product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
			qty NUMERIC NOT NULL,
			unit_cost NUMERIC NOT NULL DEFAULT 0,
			source TEXT NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS customers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			phone TEXT NOT NULL DEFAULT '',
			overpaid_amount NUMERIC NOT NULL DEFAULT 0,
			underpaid_amount NUMERIC NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS sales (
			id TEXT PRIMARY KEY,
			customer_id TEXT REFERENCES customers(id),
			customer_name TEXT NOT NULL DEFAULT '',
			total_amount NUMERIC NOT NULL,
			paid_amount NUMERIC NOT NULL,
			payment_status TEXT NOT NULL,
			sale_date TIMESTAMPTZ NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS sale_items (
			id TEXT PRIMARY KEY,
			sale_id TEXT NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
			product_id TEXT NOT NULL REFERENCES products(id),
			product_name TEXT NOT NULL,
			qty NUMERIC NOT NULL,
			unit_price NUMERIC NOT NULL,
			subtotal NUMERIC NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS app_users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			role TEXT NOT NULL,
			permissions JSONB NOT NULL DEFAULT '[]'::jsonb,
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS activity_logs (
			id TEXT PRIMARY KEY,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			table_name TEXT NOT NULL,
			record_id TEXT NOT NULL DEFAULT '',
			old_data TEXT NOT NULL DEFAULT '',
			new_data TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS system_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sales_sale_date ON sales (sale_date)`,
		`CREATE INDEX IF NOT EXISTS idx_sale_items_sale_id ON sale_items (sale_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sale_items_product_id ON sale_items (product_id)`,
		`CREATE INDEX IF NOT EXISTS idx_purchase_history_product_id ON purchase_history (product_id)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_logs_created_at ON activity_logs (created_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *Store) ListUnits(ctx context.Context) ([]domain.Unit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, abbreviation, created_at
		FROM units
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	units := make([]domain.Unit, 0, 16)
	for rows.Next() {
		var u domain.Unit
		if err := rows.Scan(&u.ID, &u.Name, &u.Abbreviation, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.CreatedAt = u.CreatedAt.UTC()
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return units, nil
}

func (s *Store) GetUnitByID(ctx context.Context, id string) (*domain.Unit, error) {
	var u domain.Unit
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, abbreviation, created_at
		FROM units
		WHERE id = $1
	`, id).Scan(&u.ID, &u.Name, &u.Abbreviation, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

func (s *Store) CreateUnit(ctx context.Context, unit domain.Unit) (*domain.Unit, error) {
	if strings.TrimSpace(unit.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if unit.ID == "" {
		unit.ID = xid.New("unit")
	}
	if unit.CreatedAt.IsZero() {
		unit.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO units (id, name, abbreviation, created_at)
		VALUES ($1,$2,$3,$4)
	`, unit.ID, unit.Name, unit.Abbreviation, unit.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	created := unit
	return &created, nil
}

func (s *Store) UpdateUnit(ctx context.Context, unit domain.Unit) (*domain.Unit, error) {
	if strings.TrimSpace(unit.Name) == "" {
		return nil, store.ErrInvalidInput
	}

	err := s.db.QueryRowContext(ctx, `
		UPDATE units
		SET name = $2, abbreviation = $3
		WHERE id = $1
		RETURNING created_at
	`, unit.ID, unit.Name, unit.Abbreviation).Scan(&unit.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	unit.CreatedAt = unit.CreatedAt.UTC()
	updated := unit
	return &updated, nil
}

func (s *Store) DeleteUnit(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM units WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, qty, original_price, sale_price, COALESCE(unit_id,''), created_at, updated_at
		FROM products
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	var unitID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, qty, original_price, sale_price, unit_id, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Qty, &p.OriginalPrice, &p.SalePrice, &unitID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if unitID.Valid {
		p.UnitID = unitID.String
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, qty, original_price, sale_price, unit_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, product.ID, product.Name, product.Qty, product.OriginalPrice, product.SalePrice,
		nullIfEmpty(product.UnitID), product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" {
		return nil, store.ErrInvalidInput
	}

	// Stock is deliberately not updatable here; it moves through sales
	// and restocks only.
	err := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, original_price = $3, sale_price = $4, unit_id = $5, updated_at = now()
		WHERE id = $1
		RETURNING qty, created_at, updated_at
	`, product.ID, product.Name, product.OriginalPrice, product.SalePrice,
		nullIfEmpty(product.UnitID)).Scan(&product.Qty, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	product.CreatedAt = product.CreatedAt.UTC()
	product.UpdatedAt = product.UpdatedAt.UTC()
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	var referenced bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM sale_items WHERE product_id = $1)
	`, id).Scan(&referenced)
	if err != nil {
		return err
	}
	if referenced {
		return store.ErrConflict
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) RestockProduct(ctx context.Context, entry domain.PurchaseEntry) (*domain.Product, *domain.PurchaseEntry, error) {
	if !entry.Qty.IsPositive() {
		return nil, nil, store.ErrInvalidInput
	}
	if entry.ID == "" {
		entry.ID = xid.New("pur")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Source == "" {
		entry.Source = domain.PurchaseSourceRestock
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var product domain.Product
	var unitID sql.NullString
	err = tx.QueryRowContext(ctx, `
		UPDATE products
		SET qty = qty + $2, updated_at = now()
		WHERE id = $1
		RETURNING id, name, qty, original_price, sale_price, unit_id, created_at, updated_at
	`, entry.ProductID, entry.Qty).Scan(&product.ID, &product.Name, &product.Qty,
		&product.OriginalPrice, &product.SalePrice, &unitID, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, store.ErrNotFound
		}
		return nil, nil, err
	}
	if unitID.Valid {
		product.UnitID = unitID.String
	}
	product.CreatedAt = product.CreatedAt.UTC()
	product.UpdatedAt = product.UpdatedAt.UTC()

	entry.ProductName = product.Name
	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchase_history (id, product_id, qty, unit_cost, source, note, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, entry.ID, entry.ProductID, entry.Qty, entry.UnitCost, entry.Source, entry.Note, entry.CreatedAt)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	createdEntry := entry
	return &product, &createdEntry, nil
}

func (s *Store) ListPurchases(ctx context.Context, productID string, limit int) ([]domain.PurchaseEntry, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ph.id, ph.product_id, p.name, ph.qty, ph.unit_cost, ph.source, ph.note, ph.created_at
		FROM purchase_history ph
		JOIN products p ON p.id = ph.product_id
		WHERE ($1 = '' OR ph.product_id = $1)
		ORDER BY ph.created_at DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.PurchaseEntry, 0, limit)
	for rows.Next() {
		var entry domain.PurchaseEntry
		if err := rows.Scan(&entry.ID, &entry.ProductID, &entry.ProductName, &entry.Qty,
			&entry.UnitCost, &entry.Source, &entry.Note, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, overpaid_amount, underpaid_amount, created_at
		FROM customers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.OverpaidAmount, &c.UnderpaidAmount, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, overpaid_amount, underpaid_amount, created_at
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Phone, &c.OverpaidAmount, &c.UnderpaidAmount, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	customer.OverpaidAmount = decimal.Zero
	customer.UnderpaidAmount = decimal.Zero

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, overpaid_amount, underpaid_amount, created_at)
		VALUES ($1,$2,$3,0,0,$4)
	`, customer.ID, customer.Name, customer.Phone, customer.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	created := customer
	return &created, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidInput
	}

	// Balances move only through sale create/delete.
	err := s.db.QueryRowContext(ctx, `
		UPDATE customers
		SET name = $2, phone = $3
		WHERE id = $1
		RETURNING overpaid_amount, underpaid_amount, created_at
	`, customer.ID, customer.Name, customer.Phone).Scan(
		&customer.OverpaidAmount, &customer.UnderpaidAmount, &customer.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	customer.CreatedAt = customer.CreatedAt.UTC()
	updated := customer
	return &updated, nil
}

func (s *Store) DeleteCustomer(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var customer domain.Customer
	if sale.CustomerID != "" {
		err = tx.QueryRowContext(ctx, `
			SELECT id, name, overpaid_amount, underpaid_amount
			FROM customers
			WHERE id = $1
			FOR UPDATE
		`, sale.CustomerID).Scan(&customer.ID, &customer.Name, &customer.OverpaidAmount, &customer.UnderpaidAmount)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
		sale.CustomerName = customer.Name
	}

	productIDs := uniqueProductIDs(sale.Items)
	productRows, err := tx.QueryContext(ctx, `
		SELECT id, name, qty, sale_price
		FROM products
		WHERE id = ANY($1)
		FOR UPDATE
	`, productIDs)
	if err != nil {
		return nil, err
	}
	productMap := make(map[string]domain.Product, len(productIDs))
	for productRows.Next() {
		var p domain.Product
		if err := productRows.Scan(&p.ID, &p.Name, &p.Qty, &p.SalePrice); err != nil {
			_ = productRows.Close()
			return nil, err
		}
		productMap[p.ID] = p
	}
	if err := productRows.Err(); err != nil {
		_ = productRows.Close()
		return nil, err
	}
	_ = productRows.Close()

	// Check every line before mutating anything so the response carries
	// the full out-of-stock list. Lines for the same product count
	// against the same stock.
	requested := make(map[string]decimal.Decimal, len(sale.Items))
	for _, item := range sale.Items {
		if !item.Qty.IsPositive() {
			return nil, store.ErrInvalidInput
		}
		if _, exists := productMap[item.ProductID]; !exists {
			return nil, store.ErrNotFound
		}
		requested[item.ProductID] = requested[item.ProductID].Add(item.Qty)
	}
	var outOfStock []domain.OutOfStockItem
	for _, productID := range productIDs {
		product := productMap[productID]
		if product.Qty.LessThan(requested[productID]) {
			outOfStock = append(outOfStock, domain.OutOfStockItem{
				ProductID:    product.ID,
				ProductName:  product.Name,
				AvailableQty: product.Qty,
				RequestedQty: requested[productID],
			})
		}
	}
	if len(outOfStock) > 0 {
		return nil, &store.StockError{Items: outOfStock}
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	now := time.Now().UTC()
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = now
	}
	if sale.SaleDate.IsZero() {
		sale.SaleDate = now
	}

	total := decimal.Zero
	items := make([]domain.SaleItem, 0, len(sale.Items))
	for _, item := range sale.Items {
		product := productMap[item.ProductID]

		_, err = tx.ExecContext(ctx, `
			UPDATE products
			SET qty = qty - $2, updated_at = now()
			WHERE id = $1
		`, product.ID, item.Qty)
		if err != nil {
			return nil, err
		}

		subtotal := product.SalePrice.Mul(item.Qty)
		total = total.Add(subtotal)
		items = append(items, domain.SaleItem{
			ID:          xid.New("item"),
			SaleID:      sale.ID,
			ProductID:   product.ID,
			ProductName: product.Name,
			Qty:         item.Qty,
			UnitPrice:   product.SalePrice,
			Subtotal:    subtotal,
		})
	}
	sale.Items = items
	sale.TotalAmount = total
	sale.PaymentStatus = domain.DerivePaymentStatus(total, sale.PaidAmount)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, customer_id, customer_name, total_amount, paid_amount, payment_status, sale_date, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, sale.ID, nullIfEmpty(sale.CustomerID), sale.CustomerName, sale.TotalAmount, sale.PaidAmount,
		sale.PaymentStatus, sale.SaleDate, sale.Notes, sale.CreatedAt)
	if err != nil {
		return nil, err
	}

	for _, item := range sale.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sale_items (id, sale_id, product_id, product_name, qty, unit_price, subtotal)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, item.ID, item.SaleID, item.ProductID, item.ProductName, item.Qty, item.UnitPrice, item.Subtotal)
		if err != nil {
			return nil, err
		}
	}

	if sale.CustomerID != "" {
		overpaid, underpaid := domain.ApplyPaymentDelta(
			customer.OverpaidAmount, customer.UnderpaidAmount, sale.PaidAmount, total)
		_, err = tx.ExecContext(ctx, `
			UPDATE customers
			SET overpaid_amount = $2, underpaid_amount = $3
			WHERE id = $1
		`, sale.CustomerID, overpaid, underpaid)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	sale, err := scanSale(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	items, err := querySaleItems(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	sale.Items = items
	return sale, nil
}

func (s *Store) ListSales(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(customer_id,''), customer_name, total_amount, paid_amount,
			payment_status, sale_date, notes, created_at
		FROM sales
		WHERE ($1::timestamptz IS NULL OR sale_date >= $1)
			AND ($2::timestamptz IS NULL OR sale_date < $2)
		ORDER BY sale_date DESC, id DESC
		LIMIT $3
	`, nullTimeValue(from), nullTimeValue(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	saleIDs := make([]string, 0, limit)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.CustomerID, &sale.CustomerName, &sale.TotalAmount,
			&sale.PaidAmount, &sale.PaymentStatus, &sale.SaleDate, &sale.Notes, &sale.CreatedAt); err != nil {
			return nil, err
		}
		sale.SaleDate = sale.SaleDate.UTC()
		sale.CreatedAt = sale.CreatedAt.UTC()
		sale.Items = []domain.SaleItem{}
		sales = append(sales, sale)
		saleIDs = append(saleIDs, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(saleIDs) == 0 {
		return sales, nil
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, product_id, product_name, qty, unit_price, subtotal
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY id
	`, saleIDs)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	itemsBySale := make(map[string][]domain.SaleItem, len(saleIDs))
	for itemRows.Next() {
		var item domain.SaleItem
		if err := itemRows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.ProductName,
			&item.Qty, &item.UnitPrice, &item.Subtotal); err != nil {
			return nil, err
		}
		itemsBySale[item.SaleID] = append(itemsBySale[item.SaleID], item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}
	for i := range sales {
		if items, ok := itemsBySale[sales[i].ID]; ok {
			sales[i].Items = items
		}
	}
	return sales, nil
}

func (s *Store) DeleteSale(ctx context.Context, id string) (*domain.Sale, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var sale domain.Sale
	err = tx.QueryRowContext(ctx, `
		SELECT id, COALESCE(customer_id,''), customer_name, total_amount, paid_amount,
			payment_status, sale_date, notes, created_at
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&sale.ID, &sale.CustomerID, &sale.CustomerName, &sale.TotalAmount,
		&sale.PaidAmount, &sale.PaymentStatus, &sale.SaleDate, &sale.Notes, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.SaleDate = sale.SaleDate.UTC()
	sale.CreatedAt = sale.CreatedAt.UTC()

	sale.Items, err = querySaleItems(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	for _, item := range sale.Items {
		_, err = tx.ExecContext(ctx, `
			UPDATE products
			SET qty = qty + $2, updated_at = now()
			WHERE id = $1
		`, item.ProductID, item.Qty)
		if err != nil {
			return nil, err
		}
	}

	if sale.CustomerID != "" {
		var customer domain.Customer
		err = tx.QueryRowContext(ctx, `
			SELECT overpaid_amount, underpaid_amount
			FROM customers
			WHERE id = $1
			FOR UPDATE
		`, sale.CustomerID).Scan(&customer.OverpaidAmount, &customer.UnderpaidAmount)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		if err == nil {
			overpaid, underpaid := domain.ReversePaymentDelta(
				customer.OverpaidAmount, customer.UnderpaidAmount, sale.PaidAmount, sale.TotalAmount)
			_, err = tx.ExecContext(ctx, `
				UPDATE customers
				SET overpaid_amount = $2, underpaid_amount = $3
				WHERE id = $1
			`, sale.CustomerID, overpaid, underpaid)
			if err != nil {
				return nil, err
			}
		}
	}

	// sale_items cascade.
	_, err = tx.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) GetDashboardSummary(ctx context.Context, from time.Time, to time.Time) (domain.DashboardSummary, error) {
	var summary domain.DashboardSummary

	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_amount),0), COUNT(*)::bigint
		FROM sales
		WHERE ($1::timestamptz IS NULL OR sale_date >= $1)
			AND ($2::timestamptz IS NULL OR sale_date < $2)
	`, nullTimeValue(from), nullTimeValue(to)).Scan(&summary.SalesTotal, &summary.SalesCount)
	if err != nil {
		return summary, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(qty * unit_cost),0)
		FROM purchase_history
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
			AND ($2::timestamptz IS NULL OR created_at < $2)
	`, nullTimeValue(from), nullTimeValue(to)).Scan(&summary.PurchasesTotal)
	if err != nil {
		return summary, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::bigint, COALESCE(SUM(overpaid_amount),0), COALESCE(SUM(underpaid_amount),0)
		FROM customers
	`).Scan(&summary.CustomerCount, &summary.OverpaidTotal, &summary.UnderpaidTotal)
	if err != nil {
		return summary, err
	}

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*)::bigint FROM products`).Scan(&summary.ProductCount)
	if err != nil {
		return summary, err
	}

	return summary, nil
}

func (s *Store) GetSalesTrend(ctx context.Context, from time.Time, to time.Time) ([]domain.TrendPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT to_char(date_trunc('day', sale_date AT TIME ZONE 'UTC'), 'YYYY-MM-DD'), COALESCE(SUM(total_amount),0)
		FROM sales
		WHERE ($1::timestamptz IS NULL OR sale_date >= $1)
			AND ($2::timestamptz IS NULL OR sale_date < $2)
		GROUP BY 1
		ORDER BY 1
	`, nullTimeValue(from), nullTimeValue(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := make([]domain.TrendPoint, 0, 32)
	for rows.Next() {
		var point domain.TrendPoint
		if err := rows.Scan(&point.Date, &point.Total); err != nil {
			return nil, err
		}
		points = append(points, point)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

func (s *Store) ListLowStockProducts(ctx context.Context, threshold decimal.Decimal) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, qty, original_price, sale_price, COALESCE(unit_id,''), created_at, updated_at
		FROM products
		WHERE qty < $1
		ORDER BY qty ASC
	`, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 16)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) CreateActivityLog(ctx context.Context, entry domain.ActivityLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("log")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_logs (id, actor, action, table_name, record_id, old_data, new_data, status, error_message, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, entry.ID, entry.Actor, entry.Action, entry.TableName, entry.RecordID,
		entry.OldData, entry.NewData, entry.Status, entry.ErrorMessage, entry.CreatedAt)
	return err
}

func (s *Store) ListActivityLogs(ctx context.Context, filter domain.ActivityLogFilter) (domain.ActivityLogPage, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 50
	}

	where := `
		WHERE ($1 = '' OR actor = $1)
			AND ($2 = '' OR table_name = $2)
			AND ($3 = '' OR action = $3)
			AND ($4 = '' OR status = $4)
			AND ($5::timestamptz IS NULL OR created_at >= $5)
			AND ($6::timestamptz IS NULL OR created_at < $6)
	`
	args := []any{filter.Username, filter.TableName, filter.Action, filter.Status,
		nullTimeValue(filter.From), nullTimeValue(filter.To)}

	result := domain.ActivityLogPage{Page: page, Limit: limit, Logs: []domain.ActivityLog{}}
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*)::int FROM activity_logs`+where, args...).Scan(&result.Total)
	if err != nil {
		return result, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor, action, table_name, record_id, old_data, new_data, status, error_message, created_at
		FROM activity_logs`+where+`
		ORDER BY created_at DESC, id DESC
		LIMIT $7 OFFSET $8
	`, append(args, limit, (page-1)*limit)...)
	if err != nil {
		return result, err
	}
	defer rows.Close()

	for rows.Next() {
		var entry domain.ActivityLog
		if err := rows.Scan(&entry.ID, &entry.Actor, &entry.Action, &entry.TableName, &entry.RecordID,
			&entry.OldData, &entry.NewData, &entry.Status, &entry.ErrorMessage, &entry.CreatedAt); err != nil {
			return result, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		result.Logs = append(result.Logs, entry)
	}
	if err := rows.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return nil, store.ErrInvalidInput
	}
	if user.ID == "" {
		user.ID = xid.New("user")
	}
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true

	perms, err := json.Marshal(permsOrEmpty(user.Permissions))
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO app_users (id, username, password, role, permissions, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())
	`, user.ID, user.Username, user.Password, user.Role, perms, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	created := user
	return &created, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, password, role, permissions, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		var perms []byte
		if err := rows.Scan(&user.ID, &user.Username, &user.Password, &user.Role, &perms, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(perms, &user.Permissions); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	var perms []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password, role, permissions, active, created_at
		FROM app_users
		WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username))).Scan(
		&user.ID, &user.Username, &user.Password, &user.Role, &perms, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(perms, &user.Permissions); err != nil {
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (s *Store) UpdateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" {
		return nil, store.ErrInvalidInput
	}

	perms, err := json.Marshal(permsOrEmpty(user.Permissions))
	if err != nil {
		return nil, err
	}
	err = s.db.QueryRowContext(ctx, `
		UPDATE app_users
		SET permissions = $2,
			active = $3,
			password = CASE WHEN $4 = '' THEN password ELSE $4 END,
			updated_at = now()
		WHERE username = $1
		RETURNING id, role, password, created_at
	`, user.Username, perms, user.Active, user.Password).Scan(
		&user.ID, &user.Role, &user.Password, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	updated := user
	return &updated, nil
}

func (s *Store) GetSystemConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM system_config WHERE key = $1
	`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", store.ErrNotFound
		}
		return "", err
	}
	return value, nil
}

func (s *Store) SetSystemConfig(ctx context.Context, key string, value string) error {
	if strings.TrimSpace(key) == "" {
		return store.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO system_config (key, value, updated_at)
		VALUES ($1,$2,now())
		ON CONFLICT (key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, key, value)
	return err
}

// browsableTables is the whitelist for the read-only database view. Table
// names are never interpolated from user input without passing this check.
var browsableTables = []string{
	"units", "products", "purchase_history", "customers",
	"sales", "sale_items", "app_users", "activity_logs", "system_config",
}

func isBrowsable(table string) bool {
	for _, t := range browsableTables {
		if t == table {
			return true
		}
	}
	return false
}

func (s *Store) ListTables(ctx context.Context) ([]domain.TableInfo, error) {
	tables := make([]domain.TableInfo, 0, len(browsableTables))
	for _, name := range browsableTables {
		var count int64
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*)::bigint FROM `+name).Scan(&count); err != nil {
			return nil, err
		}
		tables = append(tables, domain.TableInfo{Name: name, RowCount: count})
	}
	return tables, nil
}

func (s *Store) ReadTableRows(ctx context.Context, table string, limit int) ([]map[string]any, error) {
	if !isBrowsable(table) {
		return nil, store.ErrNotFound
	}
	if limit < 1 {
		limit = 100
	}

	query := `SELECT * FROM ` + table + ` ORDER BY 1 LIMIT $1`
	if table == "app_users" {
		// Never expose password hashes through the browser.
		query = `SELECT id, username, role, permissions, active, created_at FROM app_users ORDER BY 1 LIMIT $1`
	}

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := make([]map[string]any, 0, limit)
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			switch v := values[i].(type) {
			case []byte:
				row[col] = string(v)
			case time.Time:
				row[col] = v.UTC()
			default:
				row[col] = v
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	if err := row.Scan(&p.ID, &p.Name, &p.Qty, &p.OriginalPrice, &p.SalePrice,
		&p.UnitID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return p, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanSale(ctx context.Context, q querier, id string) (*domain.Sale, error) {
	var sale domain.Sale
	err := q.QueryRowContext(ctx, `
		SELECT id, COALESCE(customer_id,''), customer_name, total_amount, paid_amount,
			payment_status, sale_date, notes, created_at
		FROM sales
		WHERE id = $1
	`, id).Scan(&sale.ID, &sale.CustomerID, &sale.CustomerName, &sale.TotalAmount,
		&sale.PaidAmount, &sale.PaymentStatus, &sale.SaleDate, &sale.Notes, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.SaleDate = sale.SaleDate.UTC()
	sale.CreatedAt = sale.CreatedAt.UTC()
	return &sale, nil
}

func querySaleItems(ctx context.Context, q querier, saleID string) ([]domain.SaleItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, sale_id, product_id, product_name, qty, unit_price, subtotal
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0, 8)
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.ProductName,
			&item.Qty, &item.UnitPrice, &item.Subtotal); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func uniqueProductIDs(items []domain.SaleItem) []string {
	set := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item.ProductID == "" {
			continue
		}
		if _, ok := set[item.ProductID]; ok {
			continue
		}
		set[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}

func permsOrEmpty(perms []string) []string {
	if perms == nil {
		return []string{}
	}
	return perms
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTimeValue(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val
}
