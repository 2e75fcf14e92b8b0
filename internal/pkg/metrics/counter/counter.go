package counter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/pledgekit/PledgeKit/internal/pkg/cache"
	"github.com/pledgekit/PledgeKit/internal/pkg/database"
)

const (
	projectRaisedKey  = "project:counters:raised"
	projectBackersKey = "project:counters:backers"
)

// Recorder accumulates funding counters in Redis so dashboard aggregates do
// not turn every settled payment into a hot row update. FlushAll drains the
// pending deltas into the projects table.
type Recorder struct{}

// RecordContribution adds a settled contribution to the pending counters.
func (Recorder) RecordContribution(projectID uint, amountCents int64) {
	ctx := context.Background()
	field := strconv.FormatUint(uint64(projectID), 10)
	if err := cache.GetClient().HIncrBy(ctx, projectRaisedKey, field, amountCents).Err(); err != nil {
		log.Errorf("counter: raised increment for project %d failed: %v", projectID, err)
		return
	}
	if err := cache.GetClient().HIncrBy(ctx, projectBackersKey, field, 1).Err(); err != nil {
		log.Errorf("counter: backer increment for project %d failed: %v", projectID, err)
	}
}

// RecordRefund reverses a previously recorded contribution.
func (Recorder) RecordRefund(projectID uint, amountCents int64) {
	ctx := context.Background()
	field := strconv.FormatUint(uint64(projectID), 10)
	if err := cache.GetClient().HIncrBy(ctx, projectRaisedKey, field, -amountCents).Err(); err != nil {
		log.Errorf("counter: raised decrement for project %d failed: %v", projectID, err)
		return
	}
	if err := cache.GetClient().HIncrBy(ctx, projectBackersKey, field, -1).Err(); err != nil {
		log.Errorf("counter: backer decrement for project %d failed: %v", projectID, err)
	}
}

// FlushAll flushes pending raised and backer deltas to the database
func FlushAll() error {
	if err := flushHashToProjects(projectRaisedKey, "raised_cents"); err != nil {
		return err
	}
	return flushHashToProjects(projectBackersKey, "backer_count")
}

// flushHashToProjects drains a Redis hash atomically and applies batched
// increments to the projects table. Uses RENAME to a temporary key for atomic
// drain without losing in-flight increments.
func flushHashToProjects(redisKey, column string) error {
	ctx := context.Background()
	rdb := cache.GetClient()

	// Atomically move the hash to a temp key for draining
	tmpKey := fmt.Sprintf("%s:tmp:%d", redisKey, time.Now().UnixNano())
	if err := rdb.Do(ctx, "RENAME", redisKey, tmpKey).Err(); err != nil {
		// If key does not exist, nothing to flush
		if strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return nil
		}
		if err.Error() == "redis: nil" {
			return nil
		}
		return err
	}

	pending, err := rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		// Leave the tmp key in place; the next flush picks the hash up only
		// after this one is reconciled manually, but nothing is lost.
		return err
	}

	db := database.GetDB()
	applied := make(map[string]bool, len(pending))
	for field, raw := range pending {
		projectID, err := strconv.ParseUint(field, 10, 64)
		if err != nil {
			applied[field] = true
			continue
		}
		delta, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || delta == 0 {
			applied[field] = true
			continue
		}
		sql := fmt.Sprintf("UPDATE projects SET %s = %s + ? WHERE id = ?", column, column)
		if err := db.Exec(sql, delta, projectID).Error; err != nil {
			// Push the unapplied remainder back into the live hash so the
			// next flush retries it instead of losing the deltas.
			for f, d := range unappliedDeltas(pending, applied) {
				if mergeErr := rdb.HIncrBy(ctx, redisKey, f, d).Err(); mergeErr != nil {
					log.Errorf("counter: re-merge of %s field %s failed: %v", redisKey, f, mergeErr)
				}
			}
			rdb.Del(ctx, tmpKey)
			return err
		}
		applied[field] = true
	}

	rdb.Del(ctx, tmpKey)
	return nil
}

// unappliedDeltas returns the parseable, non-zero deltas from a drained hash
// that were not applied to the database.
func unappliedDeltas(pending map[string]string, applied map[string]bool) map[string]int64 {
	remainder := make(map[string]int64)
	for field, raw := range pending {
		if applied[field] {
			continue
		}
		if _, err := strconv.ParseUint(field, 10, 64); err != nil {
			continue
		}
		delta, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || delta == 0 {
			continue
		}
		remainder[field] = delta
	}
	return remainder
}
