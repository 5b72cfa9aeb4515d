package clickcounter

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/snipfox/snipfox/internal/pkg/cache"
	"github.com/snipfox/snipfox/internal/pkg/database"
)

const clicksKey = "link:counters:clicks"

// Add increments the pending click counter for a link in Redis. Clicks are
// buffered here and flushed to the links table in batches so redirects never
// write to MySQL on the hot path.
func Add(linkID uint) error {
	ctx := context.Background()
	field := strconv.FormatUint(uint64(linkID), 10)
	return cache.GetClient().HIncrBy(ctx, clicksKey, field, 1).Err()
}

// Pending returns the buffered (not yet flushed) clicks for a link.
func Pending(linkID uint) int64 {
	ctx := context.Background()
	field := strconv.FormatUint(uint64(linkID), 10)
	n, err := cache.GetClient().HGet(ctx, clicksKey, field).Int64()
	if err != nil {
		return 0
	}
	return n
}

// Flush drains the click hash atomically and applies batched increments to
// the links table. Uses RENAME to a temporary key so in-flight increments
// land in the fresh hash instead of being lost.
func Flush() error {
	ctx := context.Background()
	rdb := cache.GetClient()

	tmpKey := fmt.Sprintf("%s:tmp:%d", clicksKey, time.Now().UnixNano())
	if err := rdb.Do(ctx, "RENAME", clicksKey, tmpKey).Err(); err != nil {
		// If key does not exist, nothing to flush
		if strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return nil
		}
		if err.Error() == "redis: nil" {
			return nil
		}
		return err
	}

	defer rdb.Del(ctx, tmpKey)

	data, err := rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	type pair struct {
		id  uint64
		inc int64
	}
	pairs := make([]pair, 0, len(data))
	for k, v := range data {
		id, perr := strconv.ParseUint(k, 10, 64)
		if perr != nil {
			continue
		}
		inc, ierr := strconv.ParseInt(v, 10, 64)
		if ierr != nil || inc == 0 {
			continue
		}
		pairs = append(pairs, pair{id: id, inc: inc})
	}
	if len(pairs) == 0 {
		return nil
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].id < pairs[j].id })

	// UPDATE links SET click_count = click_count + CASE id WHEN ? THEN ? ... END WHERE id IN (...)
	var builder strings.Builder
	args := make([]interface{}, 0, len(pairs)*3)
	builder.WriteString("UPDATE links SET click_count = click_count + CASE id ")
	for _, p := range pairs {
		builder.WriteString(" WHEN ? THEN ?")
		args = append(args, p.id, p.inc)
	}
	builder.WriteString(" END WHERE id IN (")
	for i, p := range pairs {
		if i > 0 {
			builder.WriteString(",")
		}
		builder.WriteString("?")
		args = append(args, p.id)
	}
	builder.WriteString(")")

	db := database.GetDB()
	return db.Exec(builder.String(), args...).Error
}
