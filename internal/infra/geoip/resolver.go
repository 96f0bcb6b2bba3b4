package geoip

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/oschwald/geoip2-golang"
)

// ErrUnavailable is returned when the resolver is not initialized.
var ErrUnavailable = errors.New("geoip resolver unavailable")

// Location is a best-effort placement of an IP address. Empty strings mean unknown.
type Location struct {
	Country   string
	Region    string
	City      string
	Timezone  string
	Latitude  *float64
	Longitude *float64
	ISP       string
}

// Provider resolves an IP address to a location.
type Provider interface {
	Lookup(ctx context.Context, ip string) (Location, error)
}

// CountryResolver resolves ISO country codes from IP addresses.
type CountryResolver interface {
	CountryCode(ip string) (string, error)
}

// Resolver answers lookups from local MaxMind GeoIP2 City and ASN databases.
type Resolver struct {
	city *geoip2.Reader
	asn  *geoip2.Reader
}

// NewResolver opens the databases at the given paths. When cityPath is empty, nil is returned.
// The ASN database is optional.
func NewResolver(cityPath, asnPath string) (*Resolver, error) {
	if strings.TrimSpace(cityPath) == "" {
		return nil, nil
	}
	city, err := geoip2.Open(cityPath)
	if err != nil {
		return nil, fmt.Errorf("geoip: open database: %w", err)
	}
	r := &Resolver{city: city}
	if strings.TrimSpace(asnPath) != "" {
		asn, err := geoip2.Open(asnPath)
		if err != nil {
			_ = city.Close()
			return nil, fmt.Errorf("geoip: open asn database: %w", err)
		}
		r.asn = asn
	}
	return r, nil
}

// Lookup returns the city-level location of ip.
func (r *Resolver) Lookup(_ context.Context, ip string) (Location, error) {
	if r == nil || r.city == nil {
		return Location{}, ErrUnavailable
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return Location{}, fmt.Errorf("geoip: invalid ip %q", ip)
	}
	record, err := r.city.City(parsed)
	if err != nil {
		return Location{}, fmt.Errorf("geoip: lookup city: %w", err)
	}
	loc := Location{
		Country:  englishName(record.Country.Names),
		City:     englishName(record.City.Names),
		Timezone: record.Location.TimeZone,
	}
	if len(record.Subdivisions) > 0 {
		loc.Region = englishName(record.Subdivisions[0].Names)
	}
	if record.Location.Latitude != 0 || record.Location.Longitude != 0 {
		lat, lon := record.Location.Latitude, record.Location.Longitude
		loc.Latitude = &lat
		loc.Longitude = &lon
	}
	if r.asn != nil {
		if asn, err := r.asn.ASN(parsed); err == nil {
			loc.ISP = asn.AutonomousSystemOrganization
		}
	}
	return loc, nil
}

// CountryCode returns the ISO country code for the provided IP.
func (r *Resolver) CountryCode(ip string) (string, error) {
	if r == nil || r.city == nil {
		return "", ErrUnavailable
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "", fmt.Errorf("geoip: invalid ip %q", ip)
	}
	record, err := r.city.Country(parsed)
	if err != nil {
		return "", fmt.Errorf("geoip: lookup country: %w", err)
	}
	if record == nil || record.Country.IsoCode == "" {
		return "", nil
	}
	return record.Country.IsoCode, nil
}

// Close closes the underlying database readers.
func (r *Resolver) Close() error {
	if r == nil || r.city == nil {
		return nil
	}
	err := r.city.Close()
	if r.asn != nil {
		err = errors.Join(err, r.asn.Close())
	}
	return err
}

func englishName(names map[string]string) string {
	if names == nil {
		return ""
	}
	return names["en"]
}
