// Package analytics computes rollups over the raw visit log: daily
// first-time-vs-total counts, geographic and browser breakdowns, and the
// service-wide traffic summary. All grouping runs over ordinary in-memory
// collections, not query-engine pipelines.
package analytics

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mileusna/useragent"

	"github.com/MagnunAVF/shortlinks/internal/models"
)

// UnknownCategory buckets visits whose user agent, referer, or location
// could not be classified.
const UnknownCategory = "Unknown"

type Store interface {
	GetLink(ctx context.Context, id uuid.UUID) (*models.Link, error)
	VisitsForLink(ctx context.Context, linkID uuid.UUID, alias string) ([]models.Visit, error)
	DailyTrafficBetween(ctx context.Context, from, to time.Time) ([]models.DailyTraffic, error)
}

type Engine struct {
	store Store
}

func NewEngine(st Store) *Engine {
	return &Engine{store: st}
}

type Overall struct {
	TotalVisits  int64 `json:"total_visits"`
	UniqueVisits int64 `json:"unique_visits"`
}

// OverallVisits reads the denormalized link counters for whole-link
// queries. Alias-scoped queries group the raw log by tracking id, since
// the counters only exist at link level.
func (e *Engine) OverallVisits(ctx context.Context, linkID uuid.UUID, alias string) (*Overall, error) {
	if alias == "" {
		link, err := e.store.GetLink(ctx, linkID)
		if err != nil {
			return nil, err
		}
		return &Overall{TotalVisits: link.Visits, UniqueVisits: link.UniqueVisits}, nil
	}

	visits, err := e.store.VisitsForLink(ctx, linkID, alias)
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	for _, v := range visits {
		seen[v.TrackingID] = struct{}{}
	}
	return &Overall{TotalVisits: int64(len(visits)), UniqueVisits: int64(len(seen))}, nil
}

type DailyBucket struct {
	Year            int   `json:"year"`
	Month           int   `json:"month"`
	Day             int   `json:"day"`
	FirstTimeVisits int64 `json:"first_time_visits"`
	AllVisits       int64 `json:"all_visits"`
}

// DailyVisits rolls the visit log up per calendar day, splitting visits
// from tracking ids seen for the first time on this link from repeats.
func (e *Engine) DailyVisits(ctx context.Context, linkID uuid.UUID, alias string) ([]DailyBucket, error) {
	visits, err := e.store.VisitsForLink(ctx, linkID, alias)
	if err != nil {
		return nil, err
	}
	return rollupDaily(visits), nil
}

type MonthlyBucket struct {
	Year            int   `json:"year"`
	Month           int   `json:"month"`
	FirstTimeVisits int64 `json:"first_time_visits"`
	AllVisits       int64 `json:"all_visits"`
}

// MonthlyVisits chunks the daily rollup into calendar months.
func (e *Engine) MonthlyVisits(ctx context.Context, linkID uuid.UUID, alias string) ([]MonthlyBucket, error) {
	daily, err := e.DailyVisits(ctx, linkID, alias)
	if err != nil {
		return nil, err
	}

	byMonth := map[[2]int]*MonthlyBucket{}
	var keys [][2]int
	for _, d := range daily {
		key := [2]int{d.Year, d.Month}
		b, ok := byMonth[key]
		if !ok {
			b = &MonthlyBucket{Year: d.Year, Month: d.Month}
			byMonth[key] = b
			keys = append(keys, key)
		}
		b.FirstTimeVisits += d.FirstTimeVisits
		b.AllVisits += d.AllVisits
	}

	// daily is already chronological, so keys are too.
	out := make([]MonthlyBucket, 0, len(keys))
	for _, key := range keys {
		out = append(out, *byMonth[key])
	}
	return out, nil
}

func rollupDaily(visits []models.Visit) []DailyBucket {
	// Group by tracking id, then find each group's earliest visit with a
	// single min-scan. Only that visit counts as first-time.
	byTracking := map[string][]int{}
	for i, v := range visits {
		byTracking[v.TrackingID] = append(byTracking[v.TrackingID], i)
	}

	firstTime := make([]bool, len(visits))
	for _, idxs := range byTracking {
		first := idxs[0]
		for _, i := range idxs[1:] {
			if visits[i].VisitedAt.Before(visits[first].VisitedAt) {
				first = i
			}
		}
		firstTime[first] = true
	}

	type dayKey struct{ y, m, d int }
	buckets := map[dayKey]*DailyBucket{}
	for i, v := range visits {
		y, m, d := v.VisitedAt.Date()
		key := dayKey{y, int(m), d}
		b, ok := buckets[key]
		if !ok {
			b = &DailyBucket{Year: y, Month: int(m), Day: d}
			buckets[key] = b
		}
		b.AllVisits++
		if firstTime[i] {
			b.FirstTimeVisits++
		}
	}

	out := make([]DailyBucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		if out[i].Month != out[j].Month {
			return out[i].Month < out[j].Month
		}
		return out[i].Day < out[j].Day
	})
	return out
}

type CodeCount struct {
	Code  string `json:"code"`
	Count int64  `json:"count"`
}

type GeoStats struct {
	Countries      []CodeCount `json:"countries"`
	USSubdivisions []CodeCount `json:"us_subdivisions"`
}

// GeoStats produces two parallel rollups: worldwide by country, and
// US-only by subdivision. Visits without a location are excluded, not
// bucketed as unknown. linkID may be uuid.Nil for site-wide stats.
func (e *Engine) GeoStats(ctx context.Context, linkID uuid.UUID, alias string) (*GeoStats, error) {
	visits, err := e.store.VisitsForLink(ctx, linkID, alias)
	if err != nil {
		return nil, err
	}

	countries := map[string]int64{}
	subdivisions := map[string]int64{}
	for _, v := range visits {
		if v.CountryCode != "" {
			countries[v.CountryCode]++
		}
		if v.CountryCode == "US" && v.SubdivisionCode != "" {
			subdivisions[v.SubdivisionCode]++
		}
	}

	return &GeoStats{
		Countries:      sortedCounts(countries),
		USSubdivisions: sortedCounts(subdivisions),
	}, nil
}

// BrowserStats counts visits per browser family.
func (e *Engine) BrowserStats(ctx context.Context, linkID uuid.UUID, alias string) ([]CodeCount, error) {
	visits, err := e.store.VisitsForLink(ctx, linkID, alias)
	if err != nil {
		return nil, err
	}

	counts := map[string]int64{}
	for _, v := range visits {
		counts[browserCategory(v.UserAgent)]++
	}
	return sortedCounts(counts), nil
}

// RefererStats counts visits per referring domain.
func (e *Engine) RefererStats(ctx context.Context, linkID uuid.UUID, alias string) ([]CodeCount, error) {
	visits, err := e.store.VisitsForLink(ctx, linkID, alias)
	if err != nil {
		return nil, err
	}

	counts := map[string]int64{}
	for _, v := range visits {
		counts[refererCategory(v.Referer)]++
	}
	return sortedCounts(counts), nil
}

// TrafficSummary reads the service-wide per-day rollup maintained by the
// analytics worker.
func (e *Engine) TrafficSummary(ctx context.Context, from, to time.Time) ([]models.DailyTraffic, error) {
	return e.store.DailyTrafficBetween(ctx, from, to)
}

func browserCategory(ua string) string {
	if ua == "" {
		return UnknownCategory
	}
	parsed := useragent.Parse(ua)
	if parsed.Name == "" {
		return UnknownCategory
	}
	return parsed.Name
}

func refererCategory(referer string) string {
	if referer == "" {
		return UnknownCategory
	}
	u, err := url.Parse(referer)
	if err != nil || u.Hostname() == "" {
		return UnknownCategory
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func sortedCounts(counts map[string]int64) []CodeCount {
	out := make([]CodeCount, 0, len(counts))
	for code, n := range counts {
		out = append(out, CodeCount{Code: code, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Code < out[j].Code
	})
	return out
}
