package httpapi

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"songapi/internal/http/handlers"
	"songapi/internal/middleware"
)

// Options wires the middleware stack around the handlers.
type Options struct {
	Logger             zerolog.Logger
	Quota              middleware.QuotaOptions
	MaxConcurrent      int
	AcquireTimeout     time.Duration
	CORSAllowedOrigins []string
	DefaultLocale      string
	CountryLookup      middleware.CountryLookup
	StaticDir          string
}

// unmetered paths never consume quota.
var unmetered = map[string]struct{}{
	"/metrics":    {},
	"/v1/healthz": {},
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	quotaOpts := opts.Quota
	if quotaOpts.Skip == nil {
		quotaOpts.Skip = func(req *http.Request) bool {
			_, ok := unmetered[req.URL.Path]
			return ok
		}
	}

	r.Use(
		middleware.RequestID,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.Metrics,
		middleware.CORS(opts.CORSAllowedOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
		middleware.DailyQuota(quotaOpts),
	)

	// Health
	r.Get("/v1/healthz", app.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Get("/status", app.Status)
	r.Get("/v1/generations/recent", app.RecentGenerations)

	r.Group(func(r chi.Router) {
		r.Use(middleware.ConcurrencyLimit(middleware.ConcurrencyOptions{
			Max:            opts.MaxConcurrent,
			AcquireTimeout: opts.AcquireTimeout,
			OnReject:       middleware.RefundQuota(quotaOpts, app.Overloaded),
		}))
		r.Get("/ai/sunoai", app.SunoAI)
		r.Post("/ai/sunoai", app.SunoAI)
	})

	app.RoutesLoaded = countRoutes(r)

	if opts.StaticDir != "" {
		r.Get("/*", staticHandler(opts.StaticDir, app.NotFound))
	}
	r.NotFound(app.NotFound)
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		_, _ = w.Write([]byte(`{"status":false,"error":"Method not allowed"}`))
	})

	return r
}

// countRoutes counts distinct route patterns; GET and POST on one path count once.
func countRoutes(r chi.Routes) int {
	seen := map[string]struct{}{}
	_ = chi.Walk(r, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		seen[route] = struct{}{}
		return nil
	})
	return len(seen)
}

// staticHandler serves files under dir and falls back to notFound for anything missing.
func staticHandler(dir string, notFound http.HandlerFunc) http.HandlerFunc {
	root := http.Dir(dir)
	files := http.FileServer(root)
	return func(w http.ResponseWriter, r *http.Request) {
		name := path.Clean("/" + r.URL.Path)
		if name == "/" {
			name = "/index.html"
		}
		info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(strings.TrimPrefix(name, "/"))))
		if err != nil || info.IsDir() {
			notFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	}
}
