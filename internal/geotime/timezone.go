// Package geotime resolves loose timezone input ("PST", "berlin", "nl")
// into IANA names that time.LoadLocation accepts.
package geotime

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/teranos/cadence/errors"
)

var cityTimezones = map[string]string{
	"amsterdam":     "Europe/Amsterdam",
	"berlin":        "Europe/Berlin",
	"munich":        "Europe/Berlin",
	"london":        "Europe/London",
	"dublin":        "Europe/Dublin",
	"paris":         "Europe/Paris",
	"madrid":        "Europe/Madrid",
	"rome":          "Europe/Rome",
	"stockholm":     "Europe/Stockholm",
	"new york":      "America/New_York",
	"boston":        "America/New_York",
	"chicago":       "America/Chicago",
	"denver":        "America/Denver",
	"los angeles":   "America/Los_Angeles",
	"san francisco": "America/Los_Angeles",
	"seattle":       "America/Los_Angeles",
	"toronto":       "America/Toronto",
	"mexico city":   "America/Mexico_City",
	"sao paulo":     "America/Sao_Paulo",
	"sydney":        "Australia/Sydney",
	"singapore":     "Asia/Singapore",
	"hong kong":     "Asia/Hong_Kong",
	"tokyo":         "Asia/Tokyo",
	"seoul":         "Asia/Seoul",
	"mumbai":        "Asia/Kolkata",
	"dubai":         "Asia/Dubai",
}

var countryCodeTimezones = map[string]string{
	"nl": "Europe/Amsterdam",
	"de": "Europe/Berlin",
	"fr": "Europe/Paris",
	"es": "Europe/Madrid",
	"it": "Europe/Rome",
	"gb": "Europe/London",
	"uk": "Europe/London",
	"ie": "Europe/Dublin",
	"us": "America/New_York",
	"ca": "America/Toronto",
	"mx": "America/Mexico_City",
	"br": "America/Sao_Paulo",
	"au": "Australia/Sydney",
	"jp": "Asia/Tokyo",
	"kr": "Asia/Seoul",
	"in": "Asia/Kolkata",
	"sg": "Asia/Singapore",
}

var abbreviationTimezones = map[string]string{
	"pst":  "America/Los_Angeles",
	"pdt":  "America/Los_Angeles",
	"est":  "America/New_York",
	"edt":  "America/New_York",
	"cst":  "America/Chicago",
	"cdt":  "America/Chicago",
	"mst":  "America/Denver",
	"mdt":  "America/Denver",
	"bst":  "Europe/London",
	"cet":  "Europe/Berlin",
	"cest": "Europe/Berlin",
	"ist":  "Asia/Kolkata",
	"jst":  "Asia/Tokyo",
	"aest": "Australia/Sydney",
}

// NormalizeTimezone resolves user input into a valid IANA timezone name.
// "UTC" and well-formed IANA names pass through unchanged.
func NormalizeTimezone(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", errors.New("timezone cannot be empty")
	}

	if IsValid(trimmed) && !needsCanonicalCase(trimmed) {
		return trimmed, nil
	}

	lower := strings.ToLower(trimmed)
	if tz, ok := abbreviationTimezones[lower]; ok {
		return tz, nil
	}
	if tz, ok := countryCodeTimezones[lower]; ok {
		return tz, nil
	}

	if candidate := sanitize(trimmed); IsValid(candidate) {
		return candidate, nil
	}

	if tz, ok := cityTimezones[lower]; ok {
		return tz, nil
	}
	for city, tz := range cityTimezones {
		if strings.Contains(lower, city) {
			return tz, nil
		}
	}

	return "", errors.Newf("unknown timezone: %s", input)
}

// DetectLocalTimezone returns the host timezone, or UTC when it cannot be determined.
func DetectLocalTimezone() string {
	if tz := os.Getenv("TZ"); tz != "" && IsValid(tz) {
		return tz
	}
	if name := time.Now().Location().String(); name != "" && name != "Local" && IsValid(name) {
		return name
	}
	if data, err := os.ReadFile("/etc/timezone"); err == nil {
		if tz := sanitize(string(data)); IsValid(tz) {
			return tz
		}
	}
	if resolved, err := filepath.EvalSymlinks("/etc/localtime"); err == nil {
		if idx := strings.Index(resolved, "zoneinfo/"); idx != -1 {
			if tz := resolved[idx+len("zoneinfo/"):]; IsValid(tz) {
				return tz
			}
		}
	}
	return "UTC"
}

// IsValid reports whether tz loads as a location.
func IsValid(tz string) bool {
	if tz == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

// ValidateTimezone ensures the timezone string maps to a valid IANA entry.
func ValidateTimezone(tz string) error {
	if !IsValid(tz) {
		return errors.Newf("invalid timezone: %s", tz)
	}
	return nil
}

func sanitize(tz string) string {
	trimmed := strings.Trim(strings.TrimSpace(tz), "\"'")
	trimmed = strings.ReplaceAll(trimmed, " ", "_")
	parts := strings.Split(trimmed, "/")
	for i, part := range parts {
		parts[i] = titleSegment(part)
	}
	return strings.Join(parts, "/")
}

// titleSegment capitalises each underscore-separated word except short
// connectives, so "port_of_spain" becomes "Port_of_Spain".
func titleSegment(s string) string {
	if strings.EqualFold(s, "utc") {
		return "UTC"
	}
	words := strings.Split(strings.ToLower(s), "_")
	for i, w := range words {
		if w == "" || (i > 0 && (w == "of" || w == "es" || w == "au")) {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, "_")
}

// needsCanonicalCase flags names such as "america/new_york" that load on
// case-insensitive filesystems but are not canonical.
func needsCanonicalCase(tz string) bool {
	if strings.ToLower(tz) == tz {
		return true
	}
	for _, part := range strings.Split(tz, "/") {
		if part != "" && part[0] >= 'a' && part[0] <= 'z' {
			return true
		}
	}
	return false
}
