// Package geo resolves a source IP to coarse location codes for visit
// tagging. Lookup failures degrade to empty codes, which analytics later
// buckets as unknown.
package geo

import (
	"net"

	"github.com/oschwald/geoip2-golang"
)

type Location struct {
	CountryCode     string
	SubdivisionCode string
}

type Locator interface {
	Locate(ip string) Location
}

// internalLocation is the fixed answer for private and loopback ranges,
// which the public database can never resolve.
var internalLocation = Location{CountryCode: "US", SubdivisionCode: "NJ"}

// MaxMind looks locations up in a local MaxMind City database.
type MaxMind struct {
	db *geoip2.Reader
}

func Open(path string) (*MaxMind, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &MaxMind{db: db}, nil
}

func (m *MaxMind) Close() error {
	return m.db.Close()
}

func (m *MaxMind) Locate(ip string) Location {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return Location{}
	}
	if isInternal(parsed) {
		return internalLocation
	}

	record, err := m.db.City(parsed)
	if err != nil {
		return Location{}
	}

	loc := Location{CountryCode: record.Country.IsoCode}
	if len(record.Subdivisions) > 0 {
		loc.SubdivisionCode = record.Subdivisions[0].IsoCode
	}
	return loc
}

// Nop is used when no geo database is configured; every visit is tagged
// unknown except internal traffic.
type Nop struct{}

func (Nop) Locate(ip string) Location {
	if parsed := net.ParseIP(ip); parsed != nil && isInternal(parsed) {
		return internalLocation
	}
	return Location{}
}

func isInternal(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()
}
