// internal/requestinfo/requestinfo.go
//
// Per-request client metadata.
//
// Context
// -------
// The access log wants to know who is calling: browser family, device
// class, bot flag, and a best-effort geolocation of the client IP.
// This package parses the User-Agent header with uasurfer and, when a
// GeoLite2 database is configured, resolves the IP through
// geoip2-golang.  The result is attached to the request context by the
// Enrich middleware and consumed by logging only; no business logic
// reads it.
package requestinfo

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/avct/uasurfer"
	"github.com/oschwald/geoip2-golang"
)

// UA is the parsed User-Agent fingerprint.
type UA struct {
	Raw     string
	Browser string // "Chrome", "Firefox", ...
	Version string // "124.0.6367"
	OS      string // "macOS", "Windows", ...
	Device  string // "Desktop", "Phone", "Tablet", ...
	IsBot   bool
}

// Geo is the best-effort IP geolocation; fields stay empty when the
// database has no match or none is configured.
type Geo struct {
	IP         net.IP
	CountryISO string
	City       string
}

// Info is the metadata block stored in the request context.
type Info struct {
	UA        UA
	Geo       Geo
	Timestamp time.Time
}

// geoReader is the optional shared GeoLite2 handle; safe for concurrent
// reads.
var geoReader *geoip2.Reader

// InitGeo opens the GeoLite2 database.  Call once at startup; skipping
// it simply disables geolocation.
func InitGeo(dbPath string) error {
	r, err := geoip2.Open(dbPath)
	if err != nil {
		return err
	}
	geoReader = r
	return nil
}

type ctxKey struct{}

// FromContext returns the Info stored by Enrich, or nil.
func FromContext(ctx context.Context) *Info {
	v, _ := ctx.Value(ctxKey{}).(*Info)
	return v
}

// parseUA converts the raw header into a UA via uasurfer.
func parseUA(header string) UA {
	u := uasurfer.Parse(header)

	osName := strings.TrimPrefix(u.OS.Name.String(), "OS")
	if osName == "MacOSX" {
		osName = "macOS"
	}

	return UA{
		Raw:     header,
		Browser: strings.TrimPrefix(u.Browser.Name.String(), "Browser"),
		Version: versionString(u.Browser.Version),
		OS:      osName,
		Device:  deviceString(u.DeviceType),
		IsBot:   u.IsBot(),
	}
}

func versionString(v uasurfer.Version) string {
	out := strconv.Itoa(v.Major)
	if v.Minor != 0 || v.Patch != 0 {
		out += "." + strconv.Itoa(v.Minor)
	}
	if v.Patch != 0 {
		out += "." + strconv.Itoa(v.Patch)
	}
	return out
}

func deviceString(dt uasurfer.DeviceType) string {
	switch dt {
	case uasurfer.DeviceComputer:
		return "Desktop"
	case uasurfer.DevicePhone:
		return "Phone"
	case uasurfer.DeviceTablet:
		return "Tablet"
	case uasurfer.DeviceTV:
		return "TV"
	case uasurfer.DeviceConsole:
		return "Console"
	case uasurfer.DeviceWearable:
		return "Wearable"
	default:
		return "Unknown"
	}
}

// lookupGeo resolves ip through the shared reader, best-effort.
func lookupGeo(ip net.IP) Geo {
	if geoReader == nil || ip == nil {
		return Geo{IP: ip}
	}
	rec, err := geoReader.City(ip)
	if err != nil {
		return Geo{IP: ip}
	}
	return Geo{
		IP:         ip,
		CountryISO: rec.Country.IsoCode,
		City:       rec.City.Names["en"],
	}
}
