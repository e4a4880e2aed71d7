package model

import (
	"time"

	"github.com/google/uuid"
)

// Customer represents an account that can own reservations, as stored in
// the `customers` table.  The plain password is never stored; only its
// bcrypt hash.
//
// Fields:
//  ID           – primary key identifier (UUID).
//  Email        – unique email address.
//  Name         – display name.
//  PasswordHash – bcrypt hashed password.
//  CreatedAt    – timestamp of creation.
type Customer struct {
	ID           uuid.UUID // customers.id
	Email        string    // customers.email
	Name         string    // customers.name
	PasswordHash string    // customers.password_hash
	CreatedAt    time.Time // customers.created_at
}
