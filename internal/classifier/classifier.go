// Package classifier maps raw provider businesses into canonical leads and
// sales-opportunity buckets. Classify is a pure function; the decision tree is
// ordered, and each rule assumes every rule above it failed.
package classifier

import (
	"fmt"
	"strings"

	"github.com/leadpulse/backend/internal/models"
	"github.com/leadpulse/backend/internal/provider"
)

const (
	ratingThreshold = 4.5
	reviewThreshold = 50
)

// Low-investment site builders. A website generator matching any of these is
// a tech-debt signal worth pitching against.
var budgetBuilders = []string{"wix", "joomla", "squarespace", "weebly", "godaddy", "site123"}

// Generic inbox prefixes. An address whose local part is one of these is a
// shared mailbox, not a named contact.
var genericPrefixes = map[string]struct{}{
	"info": {}, "contact": {}, "support": {}, "admin": {}, "sales": {},
	"hello": {}, "office": {}, "team": {}, "inquiries": {},
}

// Classify turns one raw business into a Lead with its bucket assigned.
// Returns false when the record should be discarded: unusable input, or a
// business too healthy to carry any sales angle.
func Classify(raw provider.RawBusiness) (models.Lead, bool) {
	if raw.PlaceID == "" || raw.Name == "" || raw.BusinessStatus == "CLOSED_PERMANENTLY" {
		return models.Lead{}, false
	}

	lead := models.Lead{
		PlaceID:        raw.PlaceID,
		BusinessName:   raw.Name,
		Rating:         raw.Rating,
		ReviewCount:    raw.ReviewCount,
		OneStarCount:   raw.OneStarCount,
		Website:        optional(raw.Website),
		Phone:          optional(raw.Phone),
		Email:          optional(PickEmail(raw.Emails)),
		OwnerName:      optional(raw.OwnerName),
		WebsiteBuilder: optional(raw.WebsiteGenerator),
		HasPixel:       raw.HasPixel,
		Verified:       raw.Verified,
		BusinessStatus: businessStatus(raw.BusinessStatus),
	}

	switch {
	case !raw.Verified:
		lead.BucketCategory = models.BucketUnclaimed
		lead.BucketDetails = "Profile not claimed with the search provider."
	case raw.Website == "":
		lead.BucketCategory = models.BucketNeedsWebsite
		lead.BucketDetails = "No website found."
	case matchesBudgetBuilder(raw.WebsiteGenerator):
		lead.BucketCategory = models.BucketWebsitePitch
		lead.BucketDetails = fmt.Sprintf("Site built with %s.", raw.WebsiteGenerator)
	case !raw.HasPixel:
		lead.BucketCategory = models.BucketWebsitePitch
		lead.BucketDetails = "Site has no conversion tracking pixel."
	case raw.OneStarCount > 0:
		lead.BucketCategory = models.BucketReputation
		lead.BucketDetails = fmt.Sprintf("%d one-star reviews on record.", raw.OneStarCount)
	case raw.Rating > 0 && raw.Rating < ratingThreshold:
		lead.BucketCategory = models.BucketReputation
		lead.BucketDetails = fmt.Sprintf("Rating %.1f is below %.1f.", raw.Rating, ratingThreshold)
	case raw.ReviewCount < reviewThreshold:
		lead.BucketCategory = models.BucketLowAuthority
		lead.BucketDetails = fmt.Sprintf("Only %d reviews; reputation is fragile.", raw.ReviewCount)
	default:
		// Healthy business with no angle. Counted in scanned totals but never
		// surfaced as a lead.
		return models.Lead{}, false
	}

	return lead, true
}

// PickEmail prefers the first address with a non-generic local part, so a
// pitch lands with a named contact before a shared inbox. Falls back to the
// first address when all candidates are generic.
func PickEmail(emails []string) string {
	if len(emails) == 0 {
		return ""
	}
	for _, e := range emails {
		local, _, ok := strings.Cut(e, "@")
		if !ok {
			continue
		}
		if _, generic := genericPrefixes[strings.ToLower(local)]; !generic {
			return e
		}
	}
	return emails[0]
}

func matchesBudgetBuilder(generator string) bool {
	g := strings.ToLower(generator)
	if g == "" {
		return false
	}
	for _, b := range budgetBuilders {
		if strings.Contains(g, b) {
			return true
		}
	}
	return false
}

func businessStatus(s string) string {
	if s == "" {
		return "OPERATIONAL"
	}
	return s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
