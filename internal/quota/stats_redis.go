package quota

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStats mirrors admission decisions into Redis hashes so several
// operators can watch them. It does not share quota state between processes.
type RedisStats struct {
	rdb       redis.Cmdable
	prefix    string
	ttl       time.Duration
	trackKeys bool
}

type RedisStatsOption func(*RedisStats)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStats) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStats) { s.ttl = d }
}

// WithTrackClients keeps one hash per client id. Mind the cardinality.
func WithTrackClients(track bool) RedisStatsOption {
	return func(s *RedisStats) { s.trackKeys = track }
}

func NewRedisStats(rdb redis.Cmdable, opts ...RedisStatsOption) *RedisStats {
	s := &RedisStats{
		rdb:    rdb,
		prefix: "songapi:quota",
		ttl:    48 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStats) Record(ctx context.Context, ev StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	ops := s.operations(ev)
	pipe := s.rdb.Pipeline()
	for _, op := range ops {
		pipe.HIncrBy(ctx, op.key, op.field, 1)
		if op.expire && s.ttl > 0 {
			pipe.Expire(ctx, op.key, s.ttl)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

type hashIncr struct {
	key    string
	field  string
	expire bool
}

// operations lists the hash increments for ev; the total hash never expires.
func (s *RedisStats) operations(ev StatsEvent) []hashIncr {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}
	ops := []hashIncr{
		{key: s.prefix + ":total", field: field},
		{key: s.prefix + ":day:" + at.UTC().Format(dayLayout), field: field, expire: true},
	}
	if route := strings.TrimSpace(strings.TrimSpace(ev.Method) + " " + strings.TrimSpace(ev.Path)); route != "" {
		ops = append(ops, hashIncr{key: s.prefix + ":route", field: route + ":" + field})
	}
	if s.trackKeys {
		if id := strings.TrimSpace(ev.ClientID); id != "" {
			ops = append(ops, hashIncr{key: s.prefix + ":client:" + id, field: field, expire: true})
		}
	}
	return ops
}
