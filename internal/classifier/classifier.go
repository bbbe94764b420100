// Package classifier maps URLs to normalized hostnames and work/non-work
// verdicts. It is pure: no side effects, no I/O.
package classifier

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/studyfocus/focusmon/internal/domain"
)

// internalSchemes are browser-internal and extension schemes whose pages
// are never subject to classification.
var internalSchemes = map[string]struct{}{
	"chrome":           {},
	"chrome-extension": {},
	"chrome-untrusted": {},
	"devtools":         {},
	"edge":             {},
	"brave":            {},
	"about":            {},
	"moz-extension":    {},
	"view-source":      {},
	"file":             {},
	"data":             {},
	"blob":             {},
}

var domainPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]{0,61}[a-zA-Z0-9](?:\.[a-zA-Z0-9][a-zA-Z0-9-]{0,61}[a-zA-Z0-9])*$`)

// Normalize lowercases a hostname and strips the "www." prefix.
// Idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	host = strings.TrimSuffix(host, ".")
	host = strings.TrimPrefix(host, "www.")
	return host
}

// IsValidDomain reports whether a string looks like a plausible hostname.
// Used to reject malformed manual adds at the command boundary.
func IsValidDomain(domain string) bool {
	if len(domain) == 0 || len(domain) > 253 {
		return false
	}
	return domainPattern.MatchString(domain)
}

// Classify parses a URL and checks exact membership of its normalized
// hostname in the work-domain set. Unparseable URLs and internal schemes
// yield Internal=true with an empty Domain; callers must skip those
// entirely and never intercept them.
func Classify(rawURL string, domains *domain.WorkDomainSet) domain.Verdict {
	if rawURL == "" {
		return domain.Verdict{Internal: true}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return domain.Verdict{Internal: true}
	}

	if _, ok := internalSchemes[strings.ToLower(u.Scheme)]; ok {
		return domain.Verdict{Internal: true}
	}

	host := Normalize(u.Hostname())
	if host == "" {
		return domain.Verdict{Internal: true}
	}

	return domain.Verdict{
		Domain: host,
		IsWork: domains.Has(host),
	}
}
