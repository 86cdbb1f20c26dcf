package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNopLocatorInternalRanges(t *testing.T) {
	var loc Nop

	tests := []struct {
		ip       string
		internal bool
	}{
		{"127.0.0.1", true},
		{"10.1.2.3", true},
		{"192.168.0.44", true},
		{"172.16.9.1", true},
		{"8.8.8.8", false},
		{"not-an-ip", false},
		{"", false},
	}

	for _, tt := range tests {
		got := loc.Locate(tt.ip)
		if tt.internal {
			assert.Equal(t, internalLocation, got, tt.ip)
		} else {
			assert.Equal(t, Location{}, got, tt.ip)
		}
	}
}
