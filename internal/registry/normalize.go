package registry

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"tg_domain_watch_bot/internal/domain"
)

type fieldKind int

const (
	fieldCreationDate fieldKind = iota
	fieldExpiryDate
	fieldState
	fieldContactPhone
	fieldContactEmail
	fieldRegistrar
)

// Canonical keys produced by Export. Each one classifies back to its own field.
const (
	KeyCreationDate = "creationDate"
	KeyExpiryDate   = "expiryDate"
	KeyState        = "state"
	KeyContactPhone = "contactPhone"
	KeyContactEmail = "contactEmail"
	KeyRegistrar    = "domainRegistrar"
)

type rule struct {
	kind  fieldKind
	match func(key string) bool
}

// rules are evaluated in order against the lower-cased key; the first match
// decides the field.
var rules = []rule{
	{kind: fieldCreationDate, match: containsAny("created", "creation")},
	{kind: fieldExpiryDate, match: containsAny("expir", "paid", "till", "registry", "expiry")},
	{kind: fieldState, match: containsAny("state")},
	{kind: fieldContactPhone, match: containsAll("contact", "phone")},
	{kind: fieldContactEmail, match: containsAll("contact", "email")},
	{kind: fieldRegistrar, match: containsAny("registrar")},
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006.01.02",
	"2006/01/02",
	"02.01.2006",
	"02-Jan-2006",
}

// Normalize converts a registry response into a fragment stamped with now.
// Keys that match no rule are dropped and unparseable dates leave the field
// absent; neither is an error.
func Normalize(resp Response, now time.Time) domain.Fragment {
	fragment := domain.Fragment{UpdatedDate: now.UTC()}

	for _, field := range resp {
		kind, ok := classify(field.Key)
		if !ok {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		switch kind {
		case fieldCreationDate:
			if parsed, ok := parseDate(value); ok {
				fragment.CreationDate = &parsed
			}
		case fieldExpiryDate:
			if parsed, ok := parseDate(value); ok {
				fragment.ExpiryDate = &parsed
			}
		case fieldState:
			fragment.State = &value
		case fieldContactPhone:
			fragment.ContactPhone = splitList(value)
		case fieldContactEmail:
			fragment.ContactEmail = &value
		case fieldRegistrar:
			fragment.Registrar = &value
		}
	}

	return fragment
}

// Export renders a stored record back into a response keyed by the canonical
// field names, so that Normalize(Export(d)) reproduces its fields.
func Export(d domain.Domain) Response {
	resp := Response{}

	if d.CreationDate != nil {
		resp = append(resp, Field{Key: KeyCreationDate, Value: d.CreationDate.UTC().Format(time.RFC3339Nano)})
	}
	if d.ExpiryDate != nil {
		resp = append(resp, Field{Key: KeyExpiryDate, Value: d.ExpiryDate.UTC().Format(time.RFC3339Nano)})
	}
	if d.State != "" {
		resp = append(resp, Field{Key: KeyState, Value: d.State})
	}
	if len(d.ContactPhone) > 0 {
		resp = append(resp, Field{Key: KeyContactPhone, Value: strings.Join(d.ContactPhone, ", ")})
	}
	if d.ContactEmail != "" {
		resp = append(resp, Field{Key: KeyContactEmail, Value: d.ContactEmail})
	}
	if d.Registrar != "" {
		resp = append(resp, Field{Key: KeyRegistrar, Value: d.Registrar})
	}

	return resp
}

func classify(key string) (fieldKind, bool) {
	lowered := strings.ToLower(key)
	for _, r := range rules {
		if r.match(lowered) {
			return r.kind, true
		}
	}
	return 0, false
}

func parseDate(value string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), true
		}
	}

	// dateparse reads bare numbers as years or unix timestamps; registry ids
	// under keys the expiry rule matches would otherwise become dates.
	if allDigits(value) {
		return time.Time{}, false
	}

	parsed, err := dateparse.ParseIn(value, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return parsed.UTC(), true
}

func allDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return value != ""
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func containsAny(needles ...string) func(string) bool {
	return func(key string) bool {
		for _, needle := range needles {
			if strings.Contains(key, needle) {
				return true
			}
		}
		return false
	}
}

func containsAll(needles ...string) func(string) bool {
	return func(key string) bool {
		for _, needle := range needles {
			if !strings.Contains(key, needle) {
				return false
			}
		}
		return true
	}
}
