package models

import (
	"time"

	"github.com/google/uuid"
)

// Monitor status values. A monitor is "active" only while a scan is running;
// every terminal scan outcome returns it to "paused".
const (
	MonitorStatusPaused = "paused"
	MonitorStatusActive = "active"
)

// Terminal scan outcomes recorded on the monitor row.
const (
	ScanOutcomeSuccess     = "success"
	ScanOutcomeZeroResults = "zero_results"
	ScanOutcomeTimedOut    = "timed_out"
	ScanOutcomeFailed      = "failed"
)

// Zero-result diagnostic reasons. NO_DATA means the provider returned nothing
// at all; MARKET_SATURATED means every returned business was discarded as
// carrying no sales angle.
const (
	ZeroReasonNoData          = "NO_DATA"
	ZeroReasonMarketSaturated = "MARKET_SATURATED"
)

// MaxMonitorsPerUser caps how many (keyword, location) pairs one user may track.
const MaxMonitorsPerUser = 6

type Monitor struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	Keyword     string     `json:"keyword"`
	Location    string     `json:"location"`
	Status      string     `json:"status"`
	LastScanAt  *time.Time `json:"last_scan_at,omitempty"`
	LastOutcome *string    `json:"last_outcome,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
