package provider

import "github.com/tidwall/gjson"

// RawBusiness is one business record as returned by the search provider,
// flattened into the fields the classifier cares about.
type RawBusiness struct {
	PlaceID          string
	Name             string
	BusinessStatus   string
	Rating           float64
	ReviewCount      int
	OneStarCount     int
	Website          string
	WebsiteGenerator string
	HasPixel         bool
	Phone            string
	OwnerName        string
	Emails           []string
	Verified         bool
}

// parseBusiness extracts a RawBusiness from one provider result item. The
// provider's contact fields are loosely typed: emails arrive as plain strings,
// as {value: ...} objects, or as numbered email_N keys, so everything is read
// through gjson and normalized here.
func parseBusiness(item gjson.Result) RawBusiness {
	b := RawBusiness{
		PlaceID:          item.Get("place_id").String(),
		Name:             item.Get("name").String(),
		BusinessStatus:   item.Get("business_status").String(),
		Rating:           item.Get("rating").Float(),
		ReviewCount:      int(item.Get("reviews").Int()),
		OneStarCount:     int(item.Get("reviews_per_score_1").Int()),
		WebsiteGenerator: item.Get("website_generator").String(),
		Phone:            item.Get("phone").String(),
		Verified:         item.Get("verified").Bool(),
	}

	b.Website = firstString(item, "site", "website")

	// Missing pixel field counts as present: only an explicit false is a signal.
	pixel := item.Get("website_has_fb_pixel")
	b.HasPixel = !pixel.Exists() || pixel.Bool()

	b.OwnerName = firstString(item, "owner_name", "contact_name", "email_1_full_name")

	b.Emails = collectEmails(item)
	if b.OwnerName == "" {
		if name := item.Get("emails.0.full_name").String(); name != "" {
			b.OwnerName = name
		} else {
			b.OwnerName = item.Get("email_1_title").String()
		}
	}
	return b
}

// collectEmails gathers candidate addresses in provider order: numbered
// email_N keys first, then the emails array in either of its shapes.
func collectEmails(item gjson.Result) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(e string) {
		if e == "" {
			return
		}
		if _, dup := seen[e]; dup {
			return
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}

	for _, key := range []string{"email_1", "email_2", "email_3", "email"} {
		add(item.Get(key).String())
	}
	item.Get("emails").ForEach(func(_, entry gjson.Result) bool {
		if entry.IsObject() {
			add(entry.Get("value").String())
		} else {
			add(entry.String())
		}
		return true
	})
	return out
}

func firstString(item gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := item.Get(k).String(); v != "" {
			return v
		}
	}
	return ""
}
