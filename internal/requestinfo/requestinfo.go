// internal/requestinfo/requestinfo.go
//
// Per-request client metadata for auth audit lines.
//
// Context
// -------
// Enrich parses the User-Agent, resolves the client IP, and optionally
// geolocates it, then stores a *RequestInfo in the request context.  The
// sign-in handlers and the route guard call Summary() so every "who tried
// to sign in" line names a browser, device, and address.
//
// Dependencies
//   - github.com/avct/uasurfer          (UA parsing)
//   - github.com/oschwald/geoip2-golang (MaxMind lookup, optional)
package requestinfo

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/avct/uasurfer"
	"github.com/oschwald/geoip2-golang"
)

//
// Types
//

// UA holds the parsed user-agent properties.
type UA struct {
	Browser  string // "Chrome", "Firefox", "Safari"
	Version  string // "124.0.6367", trailing ".0" trimmed
	OS       string // "macOS", "Windows", "Android"
	Device   string // "Desktop", "Phone", "Tablet"
	Platform string // "Mac", "Windows", "iPhone"
	IsBot    bool
	Lang     string // first Accept-Language tag
}

// Geo is best-effort; fields stay empty without a database match.
type Geo struct {
	IP         net.IP
	CountryISO string
	City       string
}

// RequestInfo is stored in the request context by Enrich.
type RequestInfo struct {
	UA   UA
	Geo  Geo
	Path string
	At   time.Time
}

//
// Geolocation
//

// geoReader is safe for concurrent reads.  Nil disables lookups.
var geoReader *geoip2.Reader

// InitGeo opens a GeoLite2-City database.  An empty path leaves
// geolocation disabled.
func InitGeo(dbPath string) error {
	if dbPath == "" {
		return nil
	}
	r, err := geoip2.Open(dbPath)
	if err != nil {
		return fmt.Errorf("requestinfo: open GeoLite2 DB: %w", err)
	}
	geoReader = r
	return nil
}

// CloseGeo releases the database opened by InitGeo.
func CloseGeo() {
	if geoReader != nil {
		_ = geoReader.Close()
		geoReader = nil
	}
}

func lookupGeo(ip net.IP) Geo {
	g := Geo{IP: ip}
	if geoReader == nil || ip == nil {
		return g
	}
	rec, err := geoReader.City(ip)
	if err != nil {
		return g
	}
	g.CountryISO = rec.Country.IsoCode
	g.City = rec.City.Names["en"]
	return g
}

//
// Context
//

type ctxKey struct{}

// WithInfo returns ctx carrying info.
func WithInfo(ctx context.Context, info *RequestInfo) context.Context {
	return context.WithValue(ctx, ctxKey{}, info)
}

// FromContext returns the value stored by Enrich, or nil.
func FromContext(ctx context.Context) *RequestInfo {
	v, _ := ctx.Value(ctxKey{}).(*RequestInfo)
	return v
}

// Summary renders "browser/os/device ip [country]" for log lines, or ""
// when Enrich has not run.
func Summary(ctx context.Context) string {
	info := FromContext(ctx)
	if info == nil {
		return ""
	}
	s := info.UA.Browser + "/" + info.UA.OS + "/" + info.UA.Device
	if info.UA.IsBot {
		s += " bot"
	}
	if info.Geo.IP != nil {
		s += " " + info.Geo.IP.String()
	}
	if info.Geo.CountryISO != "" {
		s += " [" + info.Geo.CountryISO + "]"
	}
	return s
}

//
// User-Agent
//

func parseUA(header, acceptLang string) UA {
	u := uasurfer.Parse(header)

	osName := strings.TrimPrefix(u.OS.Name.String(), "OS")
	if osName == "MacOSX" {
		osName = "macOS"
	}
	return UA{
		Browser:  strings.TrimPrefix(u.Browser.Name.String(), "Browser"),
		Version:  version(u.Browser.Version),
		OS:       osName,
		Device:   device(u.DeviceType),
		Platform: strings.TrimPrefix(u.OS.Platform.String(), "Platform"),
		IsBot:    u.IsBot(),
		Lang:     primaryLang(acceptLang),
	}
}

// version renders "major.minor.patch" without trailing zero components.
func version(v uasurfer.Version) string {
	parts := []string{strconv.Itoa(v.Major), strconv.Itoa(v.Minor), strconv.Itoa(v.Patch)}
	for len(parts) > 1 && parts[len(parts)-1] == "0" {
		parts = parts[:len(parts)-1]
	}
	return strings.Join(parts, ".")
}

func device(dt uasurfer.DeviceType) string {
	switch dt {
	case uasurfer.DeviceComputer:
		return "Desktop"
	case uasurfer.DevicePhone:
		return "Phone"
	case uasurfer.DeviceTablet:
		return "Tablet"
	case uasurfer.DeviceConsole:
		return "Console"
	case uasurfer.DeviceWearable:
		return "Wearable"
	case uasurfer.DeviceTV:
		return "TV"
	default:
		return "Unknown"
	}
}

// primaryLang returns the first language tag, lowercased, without q.
func primaryLang(al string) string {
	tag, _, _ := strings.Cut(al, ",")
	tag, _, _ = strings.Cut(tag, ";")
	return strings.ToLower(strings.TrimSpace(tag))
}
