// internal/models/payment.go
package models

import (
	"strings"
	"time"
)

type ReferenceStatus string

const (
	ReferenceUnused  ReferenceStatus = "unused"
	ReferenceFlagged ReferenceStatus = "flagged"
	ReferenceUsed    ReferenceStatus = "used"
)

// PaymentReference is a ledger entry for one bank voucher code.
type PaymentReference struct {
	ID           int64           `json:"id"`
	Reference    string          `json:"reference"`
	Amount       int64           `json:"amount"` // minor units
	Status       ReferenceStatus `json:"status"`
	UsedByUserID *int64          `json:"usedByUserId,omitempty"`
	UsedAt       *time.Time      `json:"usedAt,omitempty"`
	Notes        string          `json:"notes,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// NormalizeReference is the canonical form voucher codes are stored and matched in.
func NormalizeReference(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
