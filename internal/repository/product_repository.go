package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/adityamehta/reservation-inventory/internal/model"
)

// ProductRepo provides data access to the products table.  Counter
// updates use an optimistic version check: the UPDATE is predicated on
// the version the caller read, so a stale write matches zero rows and is
// reported as ErrConcurrentModification instead of being applied.
type ProductRepo struct {
	db *sql.DB
}

// NewProductRepo returns a new ProductRepo bound to the provided database.
func NewProductRepo(db *sql.DB) *ProductRepo { return &ProductRepo{db: db} }

const productColumns = `id, sku, name, total, available, reserved, version, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (*model.Product, error) {
	var p model.Product
	var id string
	if err := row.Scan(&id, &p.SKU, &p.Name, &p.Total, &p.Available, &p.Reserved,
		&p.Version, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	p.ID = parsed
	return &p, nil
}

// Create inserts a new product row.  The caller supplies the counters;
// version starts at 0.  A duplicate SKU is reported as ErrDuplicate.
func (r *ProductRepo) Create(ctx context.Context, p *model.Product) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	const q = `INSERT INTO products (id, sku, name, total, available, reserved, version)
	           VALUES (?, ?, ?, ?, ?, ?, 0)`
	_, err := r.db.ExecContext(ctx, q, p.ID.String(), p.SKU, p.Name, p.Total, p.Available, p.Reserved)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return ErrDuplicate
		}
		return err
	}
	p.Version = 0
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	return nil
}

// GetBySKU returns the product with the given SKU, or ErrNotFound.
func (r *ProductRepo) GetBySKU(ctx context.Context, sku string) (*model.Product, error) {
	const q = `SELECT ` + productColumns + ` FROM products WHERE sku = ?`
	p, err := scanProduct(r.db.QueryRowContext(ctx, q, sku))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// GetBySKUs returns the product rows for the given SKUs.  SKUs that do
// not exist are simply absent from the result slice.
func (r *ProductRepo) GetBySKUs(ctx context.Context, skus []string) ([]*model.Product, error) {
	if len(skus) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(skus))
	placeholders = placeholders[:len(placeholders)-1]
	q := `SELECT ` + productColumns + ` FROM products WHERE sku IN (` + placeholders + `)`

	args := make([]any, len(skus))
	for i, s := range skus {
		args[i] = s
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []*model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// List returns every product row, ordered by SKU.
func (r *ProductRepo) List(ctx context.Context) ([]*model.Product, error) {
	const q = `SELECT ` + productColumns + ` FROM products ORDER BY sku`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []*model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// UpdateCounts writes the product's counters predicated on the version
// the caller read.  On success the in-memory Version is advanced to
// match the row.  If no row matched, either the row vanished
// (ErrNotFound) or another writer advanced the version first
// (ErrConcurrentModification); the write is never applied either way.
func (r *ProductRepo) UpdateCounts(ctx context.Context, p *model.Product) error {
	const q = `UPDATE products
	           SET total = ?, available = ?, reserved = ?, version = version + 1, updated_at = UTC_TIMESTAMP()
	           WHERE sku = ? AND version = ?`
	res, err := r.db.ExecContext(ctx, q, p.Total, p.Available, p.Reserved, p.SKU, p.Version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		if err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM products WHERE sku = ?)`, p.SKU).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConcurrentModification
	}
	p.Version++
	return nil
}
