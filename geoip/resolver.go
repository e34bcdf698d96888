package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"funnelpulse/api/models"
)

const (
	lookupTimeout = 8 * time.Second
	userAgent     = "Mozilla/5.0 (compatible; FunnelPulse-Analytics/1.0)"
)

// Resolver turns a visitor IP into a complete Geolocation descriptor.
// Resolve never fails: every path (cache hit, dev fallback, vendor chain,
// locale fallback, terminal unknown) yields a fully populated descriptor,
// so tracking code can never break on a lookup problem.
type Resolver struct {
	services []Service
	cache    Cache
	client   *http.Client
}

func NewResolver(cache Cache, services ...Service) *Resolver {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if len(services) == 0 {
		services = DefaultServices()
	}
	return &Resolver{
		services: services,
		cache:    cache,
		client:   &http.Client{Timeout: lookupTimeout},
	}
}

// Resolve looks up ip, consulting the cache first. acceptLanguage is the
// visitor's Accept-Language header, used only when every vendor fails.
func (r *Resolver) Resolve(ctx context.Context, ip, acceptLanguage string) models.Geolocation {
	if geo, ok := r.cache.Get(ctx, ip); ok {
		return geo
	}

	geo := r.lookup(ctx, ip, acceptLanguage)
	r.cache.Set(ctx, ip, geo)
	return geo
}

func (r *Resolver) lookup(ctx context.Context, ip, acceptLanguage string) models.Geolocation {
	// Local and private addresses never reach the vendors: keeps local
	// testing deterministic and avoids burning API quota.
	if isLocalAddr(ip) {
		return devGeolocation()
	}

	for _, svc := range r.services {
		geo, err := r.query(ctx, svc, ip)
		if err != nil {
			log.Printf("geoip: service %s failed for %s: %v", svc.Name, ip, err)
			continue
		}
		if !isComplete(geo) {
			log.Printf("geoip: service %s returned incomplete data for %s", svc.Name, ip)
			continue
		}
		return geo
	}

	if geo, ok := localeGeolocation(acceptLanguage); ok {
		return geo
	}

	return models.UnknownGeolocation()
}

func (r *Resolver) query(ctx context.Context, svc Service, ip string) (models.Geolocation, error) {
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, svc.URLFor(ip), nil)
	if err != nil {
		return models.Geolocation{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return models.Geolocation{}, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Geolocation{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var raw map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return models.Geolocation{}, fmt.Errorf("decode response: %w", err)
	}

	return svc.Map(raw), nil
}

// isComplete accepts a vendor result only when both the IP and the
// country name carry real data.
func isComplete(geo models.Geolocation) bool {
	return geo.IP != "" && geo.IP != "Unknown" &&
		geo.CountryName != "" && geo.CountryName != "Unknown"
}

func isLocalAddr(ip string) bool {
	if ip == "" || ip == "localhost" {
		return true
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	return parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified()
}

// devGeolocation is the fixed development descriptor.
func devGeolocation() models.Geolocation {
	return models.Geolocation{
		IP:          "127.0.0.1",
		CountryCode: "BR",
		CountryName: "Brazil",
		City:        "São Paulo",
		Region:      "São Paulo",
	}
}

// localeGeolocation derives a best-effort descriptor from an
// Accept-Language header like "en-GB,en;q=0.9".
func localeGeolocation(acceptLanguage string) (models.Geolocation, bool) {
	if acceptLanguage == "" {
		return models.Geolocation{}, false
	}

	first := strings.TrimSpace(strings.Split(acceptLanguage, ",")[0])
	first = strings.Split(first, ";")[0]

	code := "XX"
	if parts := strings.Split(first, "-"); len(parts) > 1 {
		code = strings.ToUpper(parts[len(parts)-1])
	}

	return models.Geolocation{
		IP:          fmt.Sprintf("Browser-%d", time.Now().UnixMilli()),
		CountryCode: code,
		CountryName: CountryNameFromCode(code),
		City:        "Browser Location",
		Region:      "Browser Region",
	}, true
}
