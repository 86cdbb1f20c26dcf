// Package safety implements the blocked-destination checks guarding link
// creation: a local blocklist, the third-party reputation oracle, and a
// redirect-following probe. The oracle and probe fail open so external
// outages never block link creation.
package safety

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/MagnunAVF/shortlinks/internal/logger"
)

// ListSource provides the stored parts of the blocklist: the phishing
// domain table and the role-granted blocked domains.
type ListSource interface {
	PhishingDomains(ctx context.Context) ([]string, error)
	RoleEntities(ctx context.Context, role string) ([]string, error)
}

// BlockedURLRole is the role whose granted entities are blocked domains.
const BlockedURLRole = "blocked_url"

type Blocklist struct {
	patterns []*regexp.Regexp
	source   ListSource
}

func NewBlocklist(patterns []string, source ListSource) (*Blocklist, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, re)
	}
	return &Blocklist{patterns: compiled, source: source}, nil
}

// IsBlocked checks a destination against the regex blacklist, the
// phishing table and the blocked_url role grants. Store errors are
// logged and treated as "no match" so a degraded store reads fail open.
func (b *Blocklist) IsBlocked(ctx context.Context, destination string) bool {
	for _, re := range b.patterns {
		if re.MatchString(destination) {
			return true
		}
	}

	host := hostOf(destination)
	if host == "" {
		return false
	}

	if domains, err := b.source.PhishingDomains(ctx); err != nil {
		logger.FromContext(ctx).Warn("phishing table read failed", "err", err)
	} else if matchesAny(host, domains) {
		return true
	}

	if domains, err := b.source.RoleEntities(ctx, BlockedURLRole); err != nil {
		logger.FromContext(ctx).Warn("blocked_url grants read failed", "err", err)
	} else if matchesAny(host, domains) {
		return true
	}

	return false
}

func hostOf(destination string) string {
	u, err := url.Parse(destination)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// matchesAny matches host against each domain by equality or subdomain
// suffix, so "evil.example" also catches "login.evil.example".
func matchesAny(host string, domains []string) bool {
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
