package counter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/CartFox/internal/pkg/cache"
	"github.com/ManuelReschke/CartFox/internal/pkg/database"
)

const (
	webhookReceivedKey  = "webhook:counters:received"
	webhookDuplicateKey = "webhook:counters:duplicates"
	webhookRejectedKey  = "webhook:counters:rejected"
	webhookFulfilledKey = "webhook:counters:fulfilled"
	webhookFailedKey    = "webhook:counters:failed"
)

// AddWebhookReceived increments the pending received counter for a provider in Redis
func AddWebhookReceived(provider string) error {
	return incr(webhookReceivedKey, provider)
}

// AddWebhookDuplicate increments the pending duplicate counter for a provider in Redis
func AddWebhookDuplicate(provider string) error {
	return incr(webhookDuplicateKey, provider)
}

// AddWebhookRejected increments the pending rejected-signature counter for a provider in Redis
func AddWebhookRejected(provider string) error {
	return incr(webhookRejectedKey, provider)
}

// AddWebhookFulfilled increments the pending fulfilled counter for a provider in Redis
func AddWebhookFulfilled(provider string) error {
	return incr(webhookFulfilledKey, provider)
}

// AddWebhookFailed increments the pending failed counter for a provider in Redis
func AddWebhookFailed(provider string) error {
	return incr(webhookFailedKey, provider)
}

func incr(redisKey, provider string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, redisKey, provider, 1).Err()
}

// FlushAll flushes all pending webhook counters to the database
func FlushAll() error {
	columns := map[string]string{
		webhookReceivedKey:  "received",
		webhookDuplicateKey: "duplicates",
		webhookRejectedKey:  "rejected",
		webhookFulfilledKey: "fulfilled",
		webhookFailedKey:    "failed",
	}
	for redisKey, column := range columns {
		if err := flushHashToStats(redisKey, column); err != nil {
			return err
		}
	}
	return nil
}

// flushHashToStats drains a Redis hash atomically and applies batched
// increments to the webhook_stats table. Uses RENAME to a temporary key for
// atomic drain without losing in-flight increments.
func flushHashToStats(redisKey, column string) error {
	ctx := context.Background()
	rdb := cache.GetClient()

	tmpKey := fmt.Sprintf("%s:tmp:%d", redisKey, time.Now().UnixNano())
	if err := rdb.Do(ctx, "RENAME", redisKey, tmpKey).Err(); err != nil {
		// If key does not exist, nothing to flush
		if strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return nil
		}
		return err
	}

	entries, err := rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return rdb.Del(ctx, tmpKey).Err()
	}

	db := database.GetDB()
	for provider, raw := range entries {
		delta, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || delta == 0 {
			continue
		}
		stmt := fmt.Sprintf(
			"INSERT INTO webhook_stats (provider, %s, updated_at) VALUES (?, ?, NOW()) "+
				"ON DUPLICATE KEY UPDATE %s = %s + ?, updated_at = NOW()",
			column, column, column)
		if err := db.Exec(stmt, provider, delta, delta).Error; err != nil {
			// Put the delta back so it is retried on the next flush.
			_ = rdb.HIncrBy(ctx, redisKey, provider, delta).Err()
			_ = rdb.Del(ctx, tmpKey).Err()
			return err
		}
	}

	return rdb.Del(ctx, tmpKey).Err()
}
