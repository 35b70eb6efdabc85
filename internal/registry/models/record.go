package models

import (
	"time"

	id "datamarket/pkg/domain"
)

// Fee policy bounds. The platform fee is a percentage of each sale settled
// outside this service; the ledger only stores and bounds it.
const (
	DefaultFeePercentage = 5
	MaxFeePercentage     = 20
)

// Record is a registered dataset entry.
//
// Invariants:
//   - ID is assigned by the ledger, dense from 1, never reused
//   - Owner is set at registration and immutable (no transfer operation)
//   - ContentAddress is opaque and immutable; the ledger never interprets it
//   - Price is positive and set once at registration
//   - Active transitions true -> false only; there is no reactivation
//   - CreatedAt is the ledger sequence position at registration, immutable
//
// Metadata is an uninterpreted string. The presentation layer that produces
// and consumes it owns its structure; the ledger only stores it.
type Record struct {
	ID             id.RecordID  `json:"id"`
	Owner          id.AccountID `json:"owner"`
	ContentAddress string       `json:"content_address"`
	Price          uint64       `json:"price"`
	Metadata       string       `json:"metadata"`
	Active         bool         `json:"active"`
	CreatedAt      uint64       `json:"created_at"`
	RegisteredAt   time.Time    `json:"registered_at"`
}

// IsOwnedBy reports whether account is the record owner. Owners have implicit
// access without an explicit grant entry.
func (r *Record) IsOwnedBy(account id.AccountID) bool {
	return r.Owner == account
}

// ApplyDeactivation flips the record inactive. Deactivating an already
// inactive record is a no-op, preserving the one-way transition.
func (r *Record) ApplyDeactivation() {
	r.Active = false
}

// Clone returns an independent copy so store internals never escape.
func (r *Record) Clone() *Record {
	clone := *r
	return &clone
}

// Stats summarizes ledger-owned counters for the platform dashboard.
type Stats struct {
	TotalRecords  uint64 `json:"total_records"`
	ActiveRecords uint64 `json:"active_records"`
	TotalGrants   uint64 `json:"total_grants"`
}
