package safety

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/MagnunAVF/shortlinks/internal/logger"
)

// Oracle asks a third-party reputation API whether a destination looks
// malicious. Any transport or parse failure is answered with false:
// oracle unavailability must never block link creation.
type Oracle struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewOracle(endpoint, apiKey string, timeout time.Duration) *Oracle {
	return &Oracle{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

type oracleRequest struct {
	URL string `json:"url"`
}

type oracleResponse struct {
	Flagged bool `json:"flagged"`
}

// Flagged reports whether the reputation API flags the destination.
func (o *Oracle) Flagged(ctx context.Context, destination string) bool {
	if o.endpoint == "" {
		return false
	}

	body, err := json.Marshal(oracleRequest{URL: destination})
	if err != nil {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		logger.FromContext(ctx).Warn("reputation oracle unreachable", "err", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.FromContext(ctx).Warn("reputation oracle bad status", "status", resp.StatusCode)
		return false
	}

	var out oracleResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		logger.FromContext(ctx).Warn("reputation oracle bad payload", "err", err)
		return false
	}
	return out.Flagged
}
