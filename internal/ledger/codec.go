// Package ledger keeps per-device client bookkeeping: how often each app was chosen for a
// lock (SelectionLedger) and which apps are hidden from the picker (VisibilityLedger).
// Both are persisted as JSON blobs through a BlobStore.
package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// AppIDCodec converts app ids to and from their persisted string form.
type AppIDCodec struct{}

// Encode returns the canonical lowercase form of id.
func (AppIDCodec) Encode(id uuid.UUID) string {
	return id.String()
}

// Decode parses a persisted id. The nil UUID is rejected.
func (AppIDCodec) Decode(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("ledger: invalid app id %q: %w", s, err)
	}
	if id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("ledger: invalid app id %q: nil uuid", s)
	}
	return id, nil
}
