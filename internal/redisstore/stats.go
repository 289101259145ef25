package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/srikanta2006/smart-parking/internal/slots"
)

// StatsRecorder counts reservation outcomes in Redis hashes:
//
//	prefix:total                cumulative, never expires
//	prefix:minute:YYYYMMDDhhmm  per-minute bucket, expires after ttl
//	prefix:slot:<id>            per-slot counters, expires after ttl
type StatsRecorder struct {
	rdb *redis.Client

	prefix string
	ttl    time.Duration
}

type StatsOption func(*StatsRecorder)

func WithStatsPrefix(prefix string) StatsOption {
	return func(s *StatsRecorder) { s.prefix = strings.Trim(prefix, ":") }
}

func WithStatsTTL(d time.Duration) StatsOption {
	return func(s *StatsRecorder) { s.ttl = d }
}

func NewStatsRecorder(rdb *redis.Client, opts ...StatsOption) *StatsRecorder {
	s := &StatsRecorder{
		rdb:    rdb,
		prefix: "parking:stats",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *StatsRecorder) Record(ctx context.Context, ev slots.Event) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := string(ev.Outcome)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)

	bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
	pipe.HIncrBy(ctx, bucketKey, field, 1)

	slotKey := s.prefix + ":slot:" + strconv.Itoa(ev.SlotID)
	pipe.HIncrBy(ctx, slotKey, field, 1)

	if s.ttl > 0 {
		pipe.Expire(ctx, bucketKey, s.ttl)
		pipe.Expire(ctx, slotKey, s.ttl)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Totals returns the cumulative counters keyed by outcome.
func (s *StatsRecorder) Totals(ctx context.Context) (map[slots.Outcome]int64, error) {
	raw, err := s.rdb.HGetAll(ctx, s.prefix+":total").Result()
	if err != nil {
		return nil, err
	}
	out := make(map[slots.Outcome]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("redisstore: total %s: %w", k, err)
		}
		out[slots.Outcome(k)] = n
	}
	return out, nil
}
