package models

import (
	"time"

	"github.com/google/uuid"
)

// BillingUsage is the per-organization token total for one calendar day.
type BillingUsage struct {
	OrgID     uuid.UUID `json:"org_id" db:"org_id"`
	Date      time.Time `json:"date" db:"date"`
	Tokens    int64     `json:"tokens" db:"tokens"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the BillingUsage model
func (BillingUsage) TableName() string {
	return "billing_usage"
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
