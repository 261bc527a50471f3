package analytics

import (
	"net/http"

	"github.com/avct/uasurfer"

	"github.com/patrickwarner/civicreport/internal/geoip"
	"github.com/patrickwarner/civicreport/internal/ratelimit"
)

// ClientContext describes the device that submitted a request.
type ClientContext struct {
	DeviceType string `json:"device_type"`
	OS         string `json:"os"`
	Browser    string `json:"browser"`
	IsBot      bool   `json:"is_bot"`
	Country    string `json:"country"`
	Region     string `json:"region"`
}

// ClientFromUA parses a User-Agent string.
func ClientFromUA(ua string) ClientContext {
	u := uasurfer.Parse(ua)

	var device string
	switch u.DeviceType {
	case uasurfer.DeviceComputer:
		device = "desktop"
	case uasurfer.DevicePhone:
		device = "mobile"
	case uasurfer.DeviceTablet:
		device = "tablet"
	default:
		device = "other"
	}
	return ClientContext{
		DeviceType: device,
		OS:         u.OS.Name.StringTrimPrefix(),
		Browser:    u.Browser.Name.StringTrimPrefix(),
		IsBot:      u.IsBot(),
	}
}

// ClientFromRequest combines User-Agent parsing with a geoip lookup of the
// caller's address. g may be nil.
func ClientFromRequest(r *http.Request, g *geoip.GeoIP) ClientContext {
	c := ClientFromUA(r.UserAgent())
	loc := g.Lookup(ratelimit.ClientKey(r))
	c.Country = loc.Country
	c.Region = loc.Region
	return c
}
