package handlers

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"songapi/internal/infra/geoip"
	"songapi/internal/middleware"
	"songapi/internal/telemetry"
)

const (
	unknown      = "Unknown"
	probeTimeout = 5 * time.Second
)

type geoView struct {
	Country   string   `json:"country"`
	Region    string   `json:"region"`
	City      string   `json:"city"`
	Timezone  string   `json:"timezone"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	ISP       string   `json:"isp"`
}

type geoFailure struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}

func newGeoView(loc geoip.Location) geoView {
	return geoView{
		Country:   orUnknown(loc.Country),
		Region:    orUnknown(loc.Region),
		City:      orUnknown(loc.City),
		Timezone:  orUnknown(loc.Timezone),
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		ISP:       orUnknown(loc.ISP),
	}
}

// Status reports process counters, the caller's location and host telemetry.
// Geo and host probes run concurrently; either may fail without failing the request.
func (a *App) Status(w http.ResponseWriter, r *http.Request) {
	start := a.now()
	ip := middleware.ClientIDFromContext(r.Context())
	if ip == "" {
		ip = middleware.ClientID(r)
	}
	if ip == "" {
		ip = "unknown"
	}

	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	var (
		geo    any = geoFailure{Error: true, Message: "Geo lookup failed"}
		system     = telemetry.SystemSnapshot{NetworkInterfaces: []telemetry.NetworkInterface{}}
	)
	var g errgroup.Group
	g.Go(func() error {
		if a.Geo == nil {
			return nil
		}
		loc, err := a.Geo.Lookup(ctx, ip)
		if err != nil {
			a.Logger.Debug().Err(err).Str("ip", ip).Msg("status: geo lookup")
			return nil
		}
		geo = newGeoView(loc)
		return nil
	})
	g.Go(func() error {
		if a.System == nil {
			return nil
		}
		snap, err := a.System.Collect(ctx)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("status: system snapshot incomplete")
		}
		system = snap
		return nil
	})
	_ = g.Wait()

	activeUsers := 0
	if a.Quota != nil {
		activeUsers = a.Quota.Len()
	}
	payload := map[string]any{
		"uptime_seconds": int64(a.now().Sub(a.StartedAt).Seconds()),
		"total_requests": a.Requests.Load(),
		"routes_loaded":  a.RoutesLoaded,
		"daily_limit":    a.DailyLimit,
		"active_users":   activeUsers,
		"current_date":   a.now().UTC().Format(time.RFC3339Nano),
		"api_latency_ms": a.now().Sub(start).Milliseconds(),
		"user": map[string]any{
			"ip":  ip,
			"geo": geo,
		},
		"system": system,
	}
	if a.QuotaStats != nil {
		payload["quota"] = a.QuotaStats.Total()
	}
	a.json(w, http.StatusOK, payload)
}
