package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/adityamehta/reservation-inventory/internal/model"
)

// ReservationRepo provides CRUD operations for reservations and their
// line items.  Lines live in the reservation_lines table and are written
// together with the reservation in one transaction.  Status changes go
// through Transition, which is predicated on the current status so that
// terminal states are sticky: once a reservation leaves PENDING no
// concurrent writer can move it again.  All timestamps are stored in UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// Create inserts the reservation and its lines within one transaction.
func (r *ReservationRepo) Create(ctx context.Context, res *model.Reservation) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const q = `INSERT INTO reservations (id, customer_id, status, created_at, expires_at)
	           VALUES (?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, q,
		res.ID.String(), res.CustomerID.String(), res.Status,
		res.CreatedAt.UTC(), res.ExpiresAt.UTC()); err != nil {
		return err
	}

	if len(res.Lines) > 0 {
		query := `INSERT INTO reservation_lines (reservation_id, sku, quantity, position) VALUES `
		args := make([]any, 0, len(res.Lines)*4)
		for i, l := range res.Lines {
			if i > 0 {
				query += ","
			}
			query += "(?, ?, ?, ?)"
			args = append(args, res.ID.String(), l.SKU, l.Quantity, i)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetByID loads a reservation together with its lines, or ErrNotFound.
func (r *ReservationRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Reservation, error) {
	const q = `SELECT id, customer_id, status, created_at, expires_at, confirmed_at, cancelled_at
	           FROM reservations WHERE id = ?`
	res, err := r.scanReservation(r.db.QueryRowContext(ctx, q, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := r.loadLines(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// ListByCustomer returns every reservation owned by the customer, newest
// first, with lines populated.
func (r *ReservationRepo) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]*model.Reservation, error) {
	const q = `SELECT id, customer_id, status, created_at, expires_at, confirmed_at, cancelled_at
	           FROM reservations WHERE customer_id = ? ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, customerID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Reservation
	for rows.Next() {
		res, err := r.scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, res := range out {
		if err := r.loadLines(ctx, res); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// FindExpiredPending returns up to limit PENDING reservations whose
// expires_at lies strictly before the given instant, oldest first, with
// lines populated.  The reaper drives this query.
func (r *ReservationRepo) FindExpiredPending(ctx context.Context, before time.Time, limit int) ([]*model.Reservation, error) {
	const q = `SELECT id, customer_id, status, created_at, expires_at, confirmed_at, cancelled_at
	           FROM reservations WHERE status = ? AND expires_at < ?
	           ORDER BY expires_at ASC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, model.StatusPending, before.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Reservation
	for rows.Next() {
		res, err := r.scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, res := range out {
		if err := r.loadLines(ctx, res); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Transition moves a reservation from PENDING to the given terminal
// status, stamping confirmed_at or cancelled_at as appropriate.  It
// reports whether this caller performed the transition: false means the
// reservation was no longer PENDING, so someone else transitioned it
// first and its inventory must not be touched again.
func (r *ReservationRepo) Transition(ctx context.Context, id uuid.UUID, to string, at time.Time) (bool, error) {
	var column string
	switch to {
	case model.StatusConfirmed:
		column = "confirmed_at"
	case model.StatusCancelled, model.StatusExpired:
		// EXPIRED reuses cancelled_at as its transition timestamp.
		column = "cancelled_at"
	default:
		return false, errors.New("repository: invalid target status " + to)
	}
	q := `UPDATE reservations SET status = ?, ` + column + ` = ? WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, q, to, at.UTC(), id.String(), model.StatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Delete removes the reservation and its lines.  Used when the creation
// path rolls back: a reservation whose lines could not all be reserved
// never existed as far as callers are concerned.
func (r *ReservationRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM reservation_lines WHERE reservation_id = ?`, id.String()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM reservations WHERE id = ?`, id.String()); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *ReservationRepo) scanReservation(row interface{ Scan(...any) error }) (*model.Reservation, error) {
	var res model.Reservation
	var id, customerID string
	var confirmedAt, cancelledAt sql.NullTime
	if err := row.Scan(&id, &customerID, &res.Status, &res.CreatedAt, &res.ExpiresAt,
		&confirmedAt, &cancelledAt); err != nil {
		return nil, err
	}
	parsedID, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	parsedCustomer, err := uuid.Parse(customerID)
	if err != nil {
		return nil, err
	}
	res.ID = parsedID
	res.CustomerID = parsedCustomer
	if confirmedAt.Valid {
		t := confirmedAt.Time
		res.ConfirmedAt = &t
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time
		res.CancelledAt = &t
	}
	return &res, nil
}

func (r *ReservationRepo) loadLines(ctx context.Context, res *model.Reservation) error {
	const q = `SELECT sku, quantity FROM reservation_lines
	           WHERE reservation_id = ? ORDER BY position ASC`
	rows, err := r.db.QueryContext(ctx, q, res.ID.String())
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var l model.ReservationLine
		if err := rows.Scan(&l.SKU, &l.Quantity); err != nil {
			return err
		}
		res.Lines = append(res.Lines, l)
	}
	return rows.Err()
}
