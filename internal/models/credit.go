package models

import (
	"time"

	"github.com/google/uuid"
)

// Credit event types. One row per balance movement; balance_after gives the
// reconciliation trail for stranded charges.
const (
	CreditEventScanCharge   = "scan_charge"
	CreditEventScanRefund   = "scan_refund"
	CreditEventUnlockCharge = "unlock_charge"
	CreditEventPeriodReset  = "period_reset"
)

type CreditEvent struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	MonitorID    *uuid.UUID `json:"monitor_id,omitempty"`
	EventType    string     `json:"event_type"`
	Amount       int        `json:"amount"`
	BalanceAfter int        `json:"balance_after"`
	CreatedAt    time.Time  `json:"created_at"`
}
