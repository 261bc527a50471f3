// Package geoip resolves client addresses to a country and region for
// analytics. It reads a MaxMind database and falls back to a JSON list of
// CIDR ranges, which is handy for local development.
package geoip

import (
	"encoding/json"
	"fmt"
	"net"
	"os"

	"github.com/oschwald/geoip2-golang"
)

// Location is the result of a lookup. Empty fields mean unknown.
type Location struct {
	Country string `json:"country,omitempty"`
	Region  string `json:"region,omitempty"`
	City    string `json:"city,omitempty"`
}

// GeoIP looks up client addresses. A nil *GeoIP is valid and resolves nothing.
type GeoIP struct {
	db     *geoip2.Reader
	ranges []cidrEntry
}

type cidrEntry struct {
	net *net.IPNet
	loc Location
}

// Open loads the database at path, trying MaxMind format first and then a
// JSON array of {"net","country","region","city"} objects.
func Open(path string) (*GeoIP, error) {
	reader, err := geoip2.Open(path)
	if err == nil {
		return &GeoIP{db: reader}, nil
	}

	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return nil, fmt.Errorf("open geoip db: %w", err)
	}
	var entries []struct {
		Net string `json:"net"`
		Location
	}
	if jerr := json.Unmarshal(data, &entries); jerr != nil {
		return nil, fmt.Errorf("open geoip db: %w", err)
	}
	g := &GeoIP{}
	for _, e := range entries {
		if _, n, perr := net.ParseCIDR(e.Net); perr == nil {
			g.ranges = append(g.ranges, cidrEntry{net: n, loc: e.Location})
		}
	}
	return g, nil
}

// Lookup resolves ip. Unknown or unparsable addresses yield an empty Location.
func (g *GeoIP) Lookup(ip string) Location {
	parsed := net.ParseIP(ip)
	if g == nil || parsed == nil {
		return Location{}
	}
	if g.db != nil {
		if rec, err := g.db.City(parsed); err == nil {
			loc := Location{Country: rec.Country.IsoCode, City: rec.City.Names["en"]}
			if len(rec.Subdivisions) > 0 {
				loc.Region = rec.Subdivisions[0].IsoCode
			}
			return loc
		}
	}
	for _, r := range g.ranges {
		if r.net.Contains(parsed) {
			return r.loc
		}
	}
	return Location{}
}

// Close releases the database.
func (g *GeoIP) Close() error {
	if g != nil && g.db != nil {
		return g.db.Close()
	}
	return nil
}
