package models

import (
	"time"

	"github.com/google/uuid"
)

// Free-plan limits. Credits and the scan counter reset lazily when a new
// billing period starts (see ledger.ResetIfNewBillingPeriod).
const (
	MonthlyCredits   = 500
	MonthlyScanLimit = 10
	ScanCost         = 100
	UnlockCost       = 1
)

type User struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	PasswordHash   string    `json:"-"`
	Credits        int       `json:"credits"`
	ScansThisMonth int       `json:"scans_this_month"`
	BillingStart   time.Time `json:"billing_start_date"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
