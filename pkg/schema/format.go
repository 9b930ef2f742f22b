package schema

import (
	"net/url"
	"regexp"
	"strings"
	"time"
)

var isoDatePattern = regexp.MustCompile(
	`^\d{4}-\d{2}-\d{2}(T\d{2}:\d{2}:\d{2}(\.\d{1,9})?(Z|[+-]\d{2}:\d{2})?)?$`)

// IsEmail checks for a non-whitespace local part, an @, and a
// non-whitespace domain containing a dot
func IsEmail(s string) bool {
	at := strings.Index(s, "@")
	if at <= 0 || at == len(s)-1 {
		return false
	}
	local, domain := s[:at], s[at+1:]
	if strings.ContainsAny(local, " \t\n") || strings.ContainsAny(domain, " \t\n") {
		return false
	}
	dot := strings.Index(domain, ".")
	return dot > 0 && dot < len(domain)-1
}

// IsURL accepts anything parseable as an absolute URL
func IsURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != ""
}

// IsISODate checks the shape of an ISO-8601 date or datetime and then
// round-trips the calendar date, which rejects synthetically valid dates
// like 2023-02-30.
func IsISODate(s string) bool {
	if !isoDatePattern.MatchString(s) {
		return false
	}
	datePart := s
	if len(s) > 10 {
		datePart = s[:10]
	}
	t, err := time.Parse("2006-01-02", datePart)
	if err != nil {
		return false
	}
	return t.Format("2006-01-02") == datePart
}
