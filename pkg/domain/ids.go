// Package domain defines the identifier types shared across the registry.
//
// Distinct types for accounts and records let the compiler catch swapped
// arguments in store and service signatures.
package domain

import (
	"strconv"
	"strings"

	dErrors "datamarket/pkg/domain-errors"
)

// AccountID is the authenticated identity of a caller (a wallet principal).
// The registry treats it as opaque: compared for equality, never parsed.
type AccountID string

func (a AccountID) String() string { return string(a) }

func (a AccountID) IsZero() bool { return a == "" }

// ParseAccountID validates an account identifier at a trust boundary.
func ParseAccountID(raw string) (AccountID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "account id is required")
	}
	return AccountID(raw), nil
}

// RecordID identifies a registered dataset. IDs are assigned by the ledger,
// dense from 1, and never reused.
type RecordID uint64

func (r RecordID) String() string { return strconv.FormatUint(uint64(r), 10) }

func (r RecordID) IsZero() bool { return r == 0 }

// ParseRecordID parses a route or payload value into a RecordID.
// Zero is rejected: the ledger never assigns it.
func ParseRecordID(raw string) (RecordID, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || n == 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "record id must be a positive integer")
	}
	return RecordID(n), nil
}
