package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/adityamehta/reservation-inventory/internal/model"
)

// CustomerRepo provides data access to the customers table.
type CustomerRepo struct {
	db *sql.DB
}

// NewCustomerRepo returns a new CustomerRepo bound to the provided database.
func NewCustomerRepo(db *sql.DB) *CustomerRepo { return &CustomerRepo{db: db} }

// Create inserts a new customer.  A duplicate email is reported as
// ErrDuplicate so handlers can answer 409.
func (r *CustomerRepo) Create(ctx context.Context, c *model.Customer) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	const q = `INSERT INTO customers (id, email, name, password_hash) VALUES (?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q, c.ID.String(), c.Email, c.Name, c.PasswordHash)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return ErrDuplicate
		}
		return err
	}
	c.CreatedAt = time.Now().UTC()
	return nil
}

// GetByID returns the customer with the given id, or ErrNotFound.
func (r *CustomerRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Customer, error) {
	const q = `SELECT id, email, name, password_hash, created_at FROM customers WHERE id = ?`
	return r.scan(r.db.QueryRowContext(ctx, q, id.String()))
}

// GetByEmail returns the customer with the given email, or ErrNotFound.
func (r *CustomerRepo) GetByEmail(ctx context.Context, email string) (*model.Customer, error) {
	const q = `SELECT id, email, name, password_hash, created_at FROM customers WHERE email = ?`
	return r.scan(r.db.QueryRowContext(ctx, q, email))
}

func (r *CustomerRepo) scan(row *sql.Row) (*model.Customer, error) {
	var c model.Customer
	var id string
	err := row.Scan(&id, &c.Email, &c.Name, &c.PasswordHash, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	c.ID = parsed
	return &c, nil
}
