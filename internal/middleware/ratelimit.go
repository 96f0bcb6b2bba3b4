package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"songapi/internal/infra"
	"songapi/internal/quota"
)

const rejectMessage = "Daily request limit reached"

// QuotaOptions configures DailyQuota. Stats, Total and Skip are optional.
type QuotaOptions struct {
	Store   *quota.Store
	Limit   int
	Creator string
	Stats   quota.StatsRecorder
	Total   *atomic.Int64
	Logger  *infra.Logger
	// Skip exempts requests such as metric scrapes from counting.
	Skip func(r *http.Request) bool
}

type quotaRejection struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Creator string `json:"creator"`
}

// DailyQuota admits at most Limit requests per client per UTC day.
func DailyQuota(opts QuotaOptions) func(http.Handler) http.Handler {
	limit := strconv.Itoa(opts.Limit)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ClientID(r)
			ctx := context.WithValue(r.Context(), clientIDKey, id)
			if opts.Skip != nil && opts.Skip(r) {
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			allowed, remaining := opts.Store.AdmitRemaining(id, opts.Limit)
			recordDecision(ctx, opts, r, id, allowed)
			if !allowed {
				quotaDecisions.WithLabelValues("denied").Inc()
				retry := opts.Store.UntilReset()
				w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
				w.Header().Set("X-RateLimit-Limit", limit)
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(quotaRejection{
					Status:  http.StatusTooManyRequests,
					Message: rejectMessage,
					Creator: opts.Creator,
				})
				return
			}

			quotaDecisions.WithLabelValues("allowed").Inc()
			if opts.Total != nil {
				opts.Total.Add(1)
			}
			w.Header().Set("X-RateLimit-Limit", limit)
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RefundQuota wraps a handler that turns a request away before doing any
// work, such as the concurrency cap. The unit DailyQuota consumed is returned
// and the request leaves the total count.
func RefundQuota(opts QuotaOptions, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if opts.Skip == nil || !opts.Skip(r) {
			if id := ClientIDFromContext(r.Context()); id != "" && opts.Store != nil {
				opts.Store.Refund(id)
				if opts.Total != nil {
					opts.Total.Add(-1)
				}
			}
		}
		next(w, r)
	}
}

func recordDecision(ctx context.Context, opts QuotaOptions, r *http.Request, id string, allowed bool) {
	if opts.Stats == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 250*time.Millisecond)
	defer cancel()
	err := opts.Stats.Record(ctx, quota.StatsEvent{
		ClientID: id,
		Allowed:  allowed,
		Method:   r.Method,
		Path:     r.URL.Path,
		At:       time.Now(),
	})
	if err != nil && opts.Logger != nil {
		opts.Logger.Debug().Err(err).Msg("quota: record stats")
	}
}

// ClientID returns the first parseable X-Forwarded-For entry, else the peer
// host, with IPv4-mapped IPv6 prefixes removed.
func ClientID(r *http.Request) string {
	return normalizeClientID(clientIPForRateLimit(r))
}

func normalizeClientID(ip string) string {
	ip = strings.TrimSpace(ip)
	if len(ip) > 7 && strings.EqualFold(ip[:7], "::ffff:") {
		return ip[7:]
	}
	return ip
}

func clientIPForRateLimit(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			ip := strings.TrimSpace(part)
			if ip == "" {
				continue
			}
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		if net.ParseIP(host) != nil {
			return host
		}
	} else if net.ParseIP(r.RemoteAddr) != nil {
		return r.RemoteAddr
	}

	return r.RemoteAddr
}

// ClientIDFromContext returns the id stored by DailyQuota.
func ClientIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(clientIDKey).(string); ok {
		return v
	}
	return ""
}
