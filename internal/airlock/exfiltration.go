package airlock

import (
	"fmt"
	"net"
	"regexp"
	"strings"
	"sync"
)

var (
	urlRegexOnce sync.Once
	urlRegex     *regexp.Regexp
	ipRegexOnce  sync.Once
	ipRegex      *regexp.Regexp
)

func getURLRegex() *regexp.Regexp {
	urlRegexOnce.Do(func() {
		urlRegex = regexp.MustCompile(`https?://([^/\s:'"]+)(:\d+)?(/[^\s'"]*)?`)
	})
	return urlRegex
}

func getIPRegex() *regexp.Regexp {
	ipRegexOnce.Do(func() {
		ipRegex = regexp.MustCompile(`^(\d{1,3}\.){3}\d{1,3}$`)
	})
	return ipRegex
}

// ExfiltrationShield implements the data-exfiltration protection layer
// (layer C): it harvests URLs from tool input, rejects raw IP literals, and
// enforces a domain allowlist.
type ExfiltrationShield struct {
	targetTools      []string
	allowedDomains   []string
	blockIPAddresses bool
}

// NewExfiltrationShield builds a shield from cfg. Allowed domains are
// lower-cased once at construction so Check can compare case-insensitively
// without repeated allocation.
func NewExfiltrationShield(cfg ExfiltrationConfig) *ExfiltrationShield {
	allowed := make([]string, len(cfg.AllowedDomains))
	for i, d := range cfg.AllowedDomains {
		allowed[i] = strings.ToLower(d)
	}
	return &ExfiltrationShield{
		targetTools:      cfg.TargetTools,
		allowedDomains:   allowed,
		blockIPAddresses: cfg.BlockIPAddresses,
	}
}

func (s *ExfiltrationShield) shouldInspect(toolName string) bool {
	for _, t := range s.targetTools {
		if t == toolName {
			return true
		}
	}
	return false
}

// isDomainAllowed reports whether domain matches the allowlist exactly or
// as a subdomain. An empty allowlist allows every domain.
func (s *ExfiltrationShield) isDomainAllowed(domain string) bool {
	domain = strings.ToLower(domain)
	if len(s.allowedDomains) == 0 {
		return true
	}
	for _, allowed := range s.allowedDomains {
		if domain == allowed || strings.HasSuffix(domain, "."+allowed) {
			return true
		}
	}
	return false
}

// isIPAddress reports whether host is a raw IP literal.
func isIPAddress(host string) bool {
	if net.ParseIP(host) != nil {
		return true
	}
	return getIPRegex().MatchString(host)
}

// extractURLs recursively harvests URLs from a JSON-like value: strings are
// scanned with the URL regex, arrays and objects are recursed into, and
// objects additionally special-case the url/endpoint/webhook/callback keys.
func extractURLs(value any) []string {
	var urls []string
	switch v := value.(type) {
	case string:
		for _, m := range getURLRegex().FindAllString(v, -1) {
			urls = append(urls, m)
		}
	case []any:
		for _, item := range v {
			urls = append(urls, extractURLs(item)...)
		}
	case map[string]any:
		for _, key := range []string{"url", "endpoint", "webhook", "callback"} {
			if s, ok := v[key].(string); ok {
				urls = append(urls, s)
			}
		}
		for _, item := range v {
			urls = append(urls, extractURLs(item)...)
		}
	}
	return urls
}

// extractDomain pulls the host (without scheme or port) out of a URL, or
// returns ok=false if url has no recognized http(s) scheme.
func extractDomain(url string) (string, bool) {
	rest, ok := strings.CutPrefix(url, "http://")
	if !ok {
		rest, ok = strings.CutPrefix(url, "https://")
	}
	if !ok {
		return "", false
	}
	host, _, _ := strings.Cut(rest, "/")
	if host == "" {
		return "", false
	}
	host, _, _ = strings.Cut(host, ":")
	if host == "" {
		return "", false
	}
	return host, true
}

// Check scans toolInput for unauthorized network destinations if toolName is
// a configured target. Raw IP literals are checked before the domain
// allowlist; the first violation found wins.
func (s *ExfiltrationShield) Check(toolName string, toolInput any) *Violation {
	if !s.shouldInspect(toolName) {
		return nil
	}

	for _, u := range extractURLs(toolInput) {
		domain, ok := extractDomain(u)
		if !ok {
			continue
		}

		if s.blockIPAddresses && isIPAddress(domain) {
			return &Violation{
				Type:      ViolationIPAddressUsed,
				RiskScore: 80,
				RiskLevel: RiskLevelFromScore(80),
				Details: fmt.Sprintf(
					"Direct IP address used instead of domain: %s. This could be an attempt to bypass DNS-based security controls.",
					domain),
				Trigger: "ip_address:" + domain,
			}
		}

		if !s.isDomainAllowed(domain) {
			return &Violation{
				Type:      ViolationExfiltrationAttempt,
				RiskScore: 85,
				RiskLevel: RiskCritical,
				Details: fmt.Sprintf(
					"Unauthorized network destination: %s. Add this domain to the allowed list if this is expected behavior.",
					domain),
				Trigger: "unauthorized_domain:" + domain,
			}
		}
	}

	return nil
}
