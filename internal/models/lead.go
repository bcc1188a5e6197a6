package models

import (
	"time"

	"github.com/google/uuid"
)

// Sales-opportunity buckets, in classifier priority order.
const (
	BucketUnclaimed    = "Unclaimed Business"
	BucketNeedsWebsite = "Needs Website"
	BucketWebsitePitch = "Website Pitch"
	BucketReputation   = "Reputation Repair"
	BucketLowAuthority = "Low Authority"
)

// Lead is one row in the shared business dictionary, keyed by the provider's
// place ID. Many users may hold links onto the same lead.
type Lead struct {
	ID             uuid.UUID `json:"id"`
	PlaceID        string    `json:"place_id"`
	BusinessName   string    `json:"business_name"`
	Rating         float64   `json:"rating"`
	ReviewCount    int       `json:"review_count"`
	OneStarCount   int       `json:"one_star_count"`
	Website        *string   `json:"website,omitempty"`
	Phone          *string   `json:"phone,omitempty"`
	Email          *string   `json:"email,omitempty"`
	OwnerName      *string   `json:"owner_name,omitempty"`
	WebsiteBuilder *string   `json:"website_builder,omitempty"`
	HasPixel       bool      `json:"has_pixel"`
	Verified       bool      `json:"verified"`
	BucketCategory string    `json:"bucket_category"`
	BucketDetails  string    `json:"bucket_details"`
	BusinessStatus string    `json:"business_status"`
	CreatedAt      time.Time `json:"created_at"`
}

// UserLead is the per-user visibility/unlock link onto a shared Lead.
type UserLead struct {
	UserID     uuid.UUID `json:"user_id"`
	LeadID     uuid.UUID `json:"lead_id"`
	IsUnlocked bool      `json:"is_unlocked"`
	CreatedAt  time.Time `json:"created_at"`
}
