// Package idempotency deduplicates concurrent or repeated executions of a
// logical write so that exactly one execution happens per derived key and
// every caller observes the same stored response.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/adityamehta/reservation-inventory/internal/model"
)

// Key derives the deterministic fingerprint for a reservation request.
// Lines are sorted by SKU ascending before hashing so that requests
// differing only in item order produce the same key.  The digest choice
// only needs to be stable and collision-resistant; the key is rendered as
// a fixed-width lowercase hex string.
func Key(customerID string, lines []model.ReservationLine) string {
	sorted := make([]model.ReservationLine, len(lines))
	copy(sorted, lines)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SKU < sorted[j].SKU })

	var b strings.Builder
	b.WriteString(customerID)
	for _, l := range sorted {
		b.WriteByte(':')
		b.WriteString(l.SKU)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(l.Quantity))
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
