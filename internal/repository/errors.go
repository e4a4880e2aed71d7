// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// services and handlers to distinguish between different failure
// scenarios without depending on database/sql details.
package repository

import "errors"

// ErrNotFound is returned when a lookup matches no row. Handlers
// translate this into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrConcurrentModification is returned when an optimistic-concurrency
// write finds that another writer advanced the row's version between the
// caller's read and write. The stale write is never applied; the caller
// decides whether to retry the whole operation.
var ErrConcurrentModification = errors.New("concurrent modification")

// ErrDuplicate is returned when an insert violates a unique constraint,
// such as registering an email or SKU that already exists. Handlers
// translate this into an HTTP 409 response.
var ErrDuplicate = errors.New("duplicate")
