package models

import (
	"time"

	id "datamarket/pkg/domain"
)

// AuditAction names a committed ledger mutation in audit events.
type AuditAction string

const (
	ActionRecordRegistered  AuditAction = "record_registered"
	ActionMetadataUpdated   AuditAction = "metadata_updated"
	ActionAccessGranted     AuditAction = "access_granted"
	ActionRecordDeactivated AuditAction = "record_deactivated"
	ActionFeeChanged        AuditAction = "fee_changed"
)

// AuditEvent is emitted after a mutation commits. Emission is fail-open:
// a publish failure never rolls back or fails the mutation.
type AuditEvent struct {
	Action        AuditAction  `json:"action"`
	Timestamp     time.Time    `json:"timestamp"`
	Caller        id.AccountID `json:"caller"`
	RecordID      id.RecordID  `json:"record_id,omitempty"`
	Beneficiary   id.AccountID `json:"beneficiary,omitempty"`
	FeePercentage int          `json:"fee_percentage,omitempty"`
	RequestID     string       `json:"request_id,omitempty"`
}
