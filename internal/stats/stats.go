package stats

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/illegalcall/nutrition-navigator/internal/models"
)

// KeyTTL keeps a week of daily aggregates plus a day of slack.
const KeyTTL = 8 * 24 * time.Hour

const dateLayout = "2006-01-02"

// Date is the UTC calendar day aggregates are keyed by.
func Date(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

func entriesKey(date string) string { return "stats:entries:" + date }
func methodsKey(date string) string { return "stats:methods:" + date }
func activeKey(date string) string  { return "stats:active:" + date }
func seenKey(date string) string    { return "stats:seen:" + date }

// Daily is one day of aggregates.
type Daily struct {
	Date        string
	Entries     int
	ByMethod    map[string]int
	ActiveUsers int
	// Recorded is false when no event was aggregated for the day.
	Recorded bool
}

// Recorder maintains daily food log aggregates in Redis.
type Recorder struct {
	rdb *redis.Client
}

func NewRecorder(rdb *redis.Client) *Recorder {
	return &Recorder{rdb: rdb}
}

// Record adds one created food log to the aggregates of its day. Events already
// recorded are ignored, so redelivered messages are not counted twice.
func (r *Recorder) Record(ctx context.Context, ev models.FoodLogEvent) (bool, error) {
	if ev.ID == "" || ev.UserID == "" || !ev.EntryMethod.Valid() {
		return false, fmt.Errorf("incomplete food log event %q", ev.ID)
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	date := Date(ts)

	added, err := r.rdb.SAdd(ctx, seenKey(date), ev.ID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark event: %w", err)
	}
	if added == 0 {
		return false, nil
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, entriesKey(date))
		pipe.HIncrBy(ctx, methodsKey(date), string(ev.EntryMethod), 1)
		pipe.SAdd(ctx, activeKey(date), ev.UserID)
		for _, key := range []string{entriesKey(date), methodsKey(date), activeKey(date), seenKey(date)} {
			pipe.Expire(ctx, key, KeyTTL)
		}
		return nil
	})
	if err != nil {
		// Let a retry count it.
		r.rdb.SRem(ctx, seenKey(date), ev.ID)
		return false, fmt.Errorf("failed to update aggregates: %w", err)
	}
	return true, nil
}

// Day reads the aggregates of the day containing t.
func (r *Recorder) Day(ctx context.Context, t time.Time) (Daily, error) {
	date := Date(t)
	daily := Daily{Date: date, ByMethod: map[string]int{}}
	for _, m := range models.EntryMethods {
		daily.ByMethod[string(m)] = 0
	}

	var entries *redis.StringCmd
	var methods *redis.MapStringStringCmd
	var active *redis.IntCmd
	_, err := r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		entries = pipe.Get(ctx, entriesKey(date))
		methods = pipe.HGetAll(ctx, methodsKey(date))
		active = pipe.SCard(ctx, activeKey(date))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return Daily{}, fmt.Errorf("failed to read aggregates: %w", err)
	}

	n, err := entries.Int()
	switch {
	case errors.Is(err, redis.Nil):
		return daily, nil
	case err != nil:
		return Daily{}, fmt.Errorf("failed to read entry count: %w", err)
	}
	daily.Entries = n
	daily.Recorded = true

	for method, v := range methods.Val() {
		count, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		daily.ByMethod[method] = count
	}
	daily.ActiveUsers = int(active.Val())
	return daily, nil
}
