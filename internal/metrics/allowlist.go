package metrics

import (
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
)

// AllowList restricts metrics scraping to a set of source addresses.
// An empty list allows everyone.
type AllowList struct {
	prefixes []netip.Prefix
	logger   *slog.Logger
}

// NewAllowList parses a list of IPs and CIDR ranges. Entries that do
// not parse are logged and skipped rather than failing startup.
func NewAllowList(entries []string, logger *slog.Logger) *AllowList {
	a := &AllowList{logger: logger}

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				logger.Warn("invalid CIDR in allowed_ips", "cidr", entry, "error", err)
				continue
			}
			a.prefixes = append(a.prefixes, prefix.Masked())
			continue
		}

		ip, err := netip.ParseAddr(entry)
		if err != nil {
			logger.Warn("invalid IP in allowed_ips", "ip", entry, "error", err)
			continue
		}
		a.prefixes = append(a.prefixes, netip.PrefixFrom(ip, ip.BitLen()))
	}

	return a
}

// Enabled returns true when at least one entry parsed
func (a *AllowList) Enabled() bool {
	return len(a.prefixes) > 0
}

// Count returns the number of allowed networks
func (a *AllowList) Count() int {
	return len(a.prefixes)
}

// Allowed reports whether the remote address may scrape. addr is the
// host:port form of an http.Request RemoteAddr. Forwarding headers are
// ignored on purpose; the metrics port talks to scrapers directly.
func (a *AllowList) Allowed(addr string) bool {
	if !a.Enabled() {
		return true
	}

	ap, err := netip.ParseAddrPort(addr)
	if err != nil {
		return false
	}

	ip := ap.Addr().Unmap()
	for _, prefix := range a.prefixes {
		if prefix.Contains(ip) {
			return true
		}
	}
	return false
}

// Middleware rejects requests from addresses outside the allow-list
func (a *AllowList) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Allowed(r.RemoteAddr) {
			a.logger.Warn("metrics scrape denied", "remote_addr", r.RemoteAddr)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
