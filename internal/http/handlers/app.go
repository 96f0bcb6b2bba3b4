package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"songapi/internal/domain"
	"songapi/internal/generation"
	"songapi/internal/infra"
	"songapi/internal/infra/geoip"
	"songapi/internal/quota"
	"songapi/internal/telemetry"
)

// Generator runs one lyric-to-audio workflow.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResult, error)
}

// SystemInfoProvider reports host telemetry.
type SystemInfoProvider interface {
	Collect(ctx context.Context) (telemetry.SystemSnapshot, error)
}

// App carries the collaborators shared by every handler.
type App struct {
	Creator    string
	DailyLimit int
	Generator  Generator
	Quota      *quota.Store
	QuotaStats *quota.MemoryStats
	Requests   *atomic.Int64
	System     SystemInfoProvider
	Geo        geoip.Provider
	History    domain.GenerationRepository
	Logger     *infra.Logger
	StartedAt  time.Time

	// RoutesLoaded is set by the router once every API route is registered.
	RoutesLoaded int

	now func() time.Time
}

// NewApp fills the optional collaborators of a.
func NewApp(a App) *App {
	if a.Logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		a.Logger = &l
	}
	if a.Requests == nil {
		a.Requests = new(atomic.Int64)
	}
	if a.StartedAt.IsZero() {
		a.StartedAt = time.Now()
	}
	if a.now == nil {
		a.now = time.Now
	}
	return &a
}

// Envelope returns payload with the operator identity added under "creator"
// unless the payload already names one. payload is not modified.
func Envelope(creator string, payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		out[k] = v
	}
	if _, ok := out["creator"]; !ok {
		out["creator"] = creator
	}
	return out
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	if m, ok := v.(map[string]any); ok {
		v = Envelope(a.Creator, m)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) fail(w http.ResponseWriter, code int, message string) {
	a.json(w, code, map[string]any{"status": false, "error": message})
}

// failGeneration maps workflow errors onto status codes. Bodies never carry
// internal detail beyond the upstream's own reason.
func (a *App) failGeneration(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		a.fail(w, http.StatusBadRequest, "Prompt is required")
	case errors.Is(err, domain.ErrOverloaded):
		a.fail(w, http.StatusServiceUnavailable, "Too many songs are being generated, try again shortly")
	case errors.Is(err, domain.ErrTimeout):
		a.fail(w, http.StatusInternalServerError, "Failed to create AI music: generation timed out")
	case errors.Is(err, domain.ErrUpstreamJob):
		a.fail(w, http.StatusInternalServerError, "Failed to create AI music: "+upstreamReason(err))
	case errors.Is(err, context.Canceled):
		// Client went away; nobody reads this body.
		a.fail(w, http.StatusInternalServerError, "request canceled")
	default:
		stage := "generation"
		if s, ok := generation.StageOf(err); ok {
			stage = string(s)
		}
		a.fail(w, http.StatusInternalServerError, "Failed to create AI music: "+stage+" service unavailable")
	}
}

// upstreamReason is the status word the upstream job reported, never the
// wrapped transport detail.
func upstreamReason(err error) string {
	var failure *domain.JobFailure
	if errors.As(err, &failure) && failure.Msg != "" {
		return failure.Msg
	}
	return "audio job was rejected"
}

// Overloaded answers requests turned away by the concurrency cap.
func (a *App) Overloaded(w http.ResponseWriter, r *http.Request) {
	a.failGeneration(w, domain.ErrOverloaded)
}

// NotFound is the JSON fallback for unknown API paths.
func (a *App) NotFound(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusNotFound, map[string]any{"status": false, "error": "Not found"})
}
