package safety

import (
	"context"
	"net/http"
	"time"

	"github.com/MagnunAVF/shortlinks/internal/logger"
)

// Probe follows a destination's redirect chain so a URL that bounces into
// a blocked domain is caught at creation time. Timeouts and network
// errors fail open: the destination is treated as reachable and clean.
type Probe struct {
	client *http.Client
}

func NewProbe(timeout time.Duration) *Probe {
	return &Probe{client: &http.Client{Timeout: timeout}}
}

// FinalDestination returns the URL at the end of the redirect chain, or
// "" when the probe could not complete.
func (p *Probe) FinalDestination(ctx context.Context, destination string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, destination, nil)
	if err != nil {
		return ""
	}

	resp, err := p.client.Do(req)
	if err != nil {
		logger.FromContext(ctx).Debug("reachability probe failed", "dest", destination, "err", err)
		return ""
	}
	defer resp.Body.Close()

	if resp.Request != nil && resp.Request.URL != nil {
		return resp.Request.URL.String()
	}
	return ""
}

// Guard bundles the blocklist and the probe into the single check the
// lifecycle manager consults before accepting a destination.
type Guard struct {
	list  *Blocklist
	probe *Probe
}

func NewGuard(list *Blocklist, probe *Probe) *Guard {
	return &Guard{list: list, probe: probe}
}

// Blocked is true when the destination, or anything it redirects to,
// matches a blocked-domain rule.
func (g *Guard) Blocked(ctx context.Context, destination string) bool {
	if g.list.IsBlocked(ctx, destination) {
		return true
	}
	if g.probe == nil {
		return false
	}
	final := g.probe.FinalDestination(ctx, destination)
	if final != "" && final != destination && g.list.IsBlocked(ctx, final) {
		return true
	}
	return false
}
