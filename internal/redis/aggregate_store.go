package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"livex/internal/domain/widget"
	livex_errors "livex/pkg/errors"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Key patterns:
// - widget:{<id>} - hash with total, currency, created_at
// - widget:{<id>}:event:<event_id> - dedupe marker, EVENT_DEDUPE_TTL
// Both share the {<id>} hash tag so the script stays on one cluster slot.

// incrementScript applies one event to a widget total.
// KEYS: [1]=widget hash, [2]=dedupe key
// ARGV: [1]=delta, [2]=default currency, [3]=dedupe ttl seconds, [4]=now unix
// Returns {total, currency, applied}. HINCRBY raises on overflow before the
// dedupe marker is written, so a rejected event can be retried.
var incrementScript = goredis.NewScript(`
local applied = 0
if redis.call('EXISTS', KEYS[2]) == 0 then
	applied = 1
end
if redis.call('HSETNX', KEYS[1], 'currency', ARGV[2]) == 1 then
	redis.call('HSET', KEYS[1], 'created_at', ARGV[4])
end
local total
if applied == 1 then
	total = redis.call('HINCRBY', KEYS[1], 'total', ARGV[1])
	redis.call('SET', KEYS[2], '1', 'EX', tonumber(ARGV[3]))
else
	total = redis.call('HGET', KEYS[1], 'total') or '0'
end
return {tostring(total), redis.call('HGET', KEYS[1], 'currency'), applied}
`)

// createScript registers a widget unless it exists.
// KEYS: [1]=widget hash
// ARGV: [1]=currency, [2]=initial total, [3]=now unix
// Returns {total, currency, created}.
var createScript = goredis.NewScript(`
local currency = redis.call('HGET', KEYS[1], 'currency')
if currency then
	return {redis.call('HGET', KEYS[1], 'total') or '0', currency, 0}
end
redis.call('HSET', KEYS[1], 'currency', ARGV[1], 'total', ARGV[2], 'created_at', ARGV[3])
return {ARGV[2], ARGV[1], 1}
`)

type AggregateStoreConfig struct {
	DefaultCurrency string
	DedupeTTL       time.Duration
}

// AggregateStore keeps widget totals in Redis hashes.
type AggregateStore struct {
	client *goredis.Client
	config AggregateStoreConfig
	now    func() time.Time
}

func NewAggregateStore(client *goredis.Client, config AggregateStoreConfig) *AggregateStore {
	if config.DedupeTTL <= 0 {
		config.DedupeTTL = 24 * time.Hour
	}
	return &AggregateStore{client: client, config: config, now: time.Now}
}

func widgetKey(widgetID string) string {
	return fmt.Sprintf("widget:{%s}", widgetID)
}

func dedupeKey(widgetID string, eventID uuid.UUID) string {
	return fmt.Sprintf("widget:{%s}:event:%s", widgetID, eventID)
}

func (s *AggregateStore) Create(ctx context.Context, widgetID, currency string, initialCents int64) (widget.Aggregate, error) {
	res, err := createScript.Run(ctx, s.client, []string{widgetKey(widgetID)},
		currency,
		strconv.FormatInt(initialCents, 10),
		strconv.FormatInt(s.now().Unix(), 10),
	).Result()
	if err != nil {
		return widget.Aggregate{}, wrapRedisError("create widget", err)
	}
	agg, flag, err := parseScriptResult(widgetID, res)
	if err != nil {
		return widget.Aggregate{}, err
	}
	if flag == 0 && agg.Currency != currency {
		return agg, livex_errors.ErrConflict
	}
	return agg, nil
}

func (s *AggregateStore) Increment(ctx context.Context, widgetID string, eventID uuid.UUID, deltaCents int64) (widget.Aggregate, error) {
	res, err := incrementScript.Run(ctx, s.client,
		[]string{widgetKey(widgetID), dedupeKey(widgetID, eventID)},
		strconv.FormatInt(deltaCents, 10),
		s.config.DefaultCurrency,
		int64(s.config.DedupeTTL.Seconds()),
		strconv.FormatInt(s.now().Unix(), 10),
	).Result()
	if err != nil {
		return widget.Aggregate{}, wrapRedisError("increment widget", err)
	}
	agg, _, err := parseScriptResult(widgetID, res)
	return agg, err
}

func (s *AggregateStore) Read(ctx context.Context, widgetID string) (widget.Aggregate, error) {
	vals, err := s.client.HMGet(ctx, widgetKey(widgetID), "total", "currency").Result()
	if err != nil {
		return widget.Aggregate{}, wrapRedisError("read widget", err)
	}
	currency, ok := vals[1].(string)
	if !ok || currency == "" {
		return widget.Aggregate{}, livex_errors.ErrWidgetNotFound
	}
	var total int64
	if raw, ok := vals[0].(string); ok {
		if total, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return widget.Aggregate{}, fmt.Errorf("read widget %s: bad total %q: %w", widgetID, raw, err)
		}
	}
	return widget.Aggregate{WidgetID: widgetID, TotalCents: total, Currency: currency}, nil
}

// Ping checks if Redis is available
func (s *AggregateStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func parseScriptResult(widgetID string, res any) (widget.Aggregate, int64, error) {
	parts, ok := res.([]interface{})
	if !ok || len(parts) < 3 {
		return widget.Aggregate{}, 0, fmt.Errorf("unexpected script result %v", res)
	}
	rawTotal, _ := parts[0].(string)
	total, err := strconv.ParseInt(rawTotal, 10, 64)
	if err != nil {
		return widget.Aggregate{}, 0, fmt.Errorf("unexpected total %q: %w", rawTotal, err)
	}
	currency, _ := parts[1].(string)
	flag, _ := parts[2].(int64)
	return widget.Aggregate{WidgetID: widgetID, TotalCents: total, Currency: currency}, flag, nil
}

// wrapRedisError marks connection level failures as ErrServiceUnavailable so
// callers can tell them apart from an unknown widget.
func wrapRedisError(op string, err error) error {
	if errors.Is(err, livex_errors.ErrServiceUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var redisErr goredis.Error
	if errors.As(err, &redisErr) && strings.Contains(redisErr.Error(), "overflow") {
		return fmt.Errorf("%s: %w: %w", op, livex_errors.ErrTotalOverflow, err)
	}
	if errors.As(err, &redisErr) && !strings.HasPrefix(redisErr.Error(), "LOADING") {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, livex_errors.ErrServiceUnavailable, err)
}
