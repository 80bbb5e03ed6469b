package jobqueue

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/CartFox/internal/pkg/cache"
	"github.com/ManuelReschke/CartFox/internal/pkg/env"
)

func resolveTestRedis(t *testing.T) (string, string) {
	t.Helper()

	hosts := []string{
		env.GetEnv("CACHE_HOST", ""),
		"cache",
		"localhost",
		"127.0.0.1",
	}
	ports := []string{
		env.GetEnv("CACHE_PORT", "6379"),
		"6379",
	}

	var lastErr error
	seen := make(map[string]struct{})
	for _, host := range hosts {
		if host == "" {
			continue
		}
		for _, port := range ports {
			addr := fmt.Sprintf("%s:%s", host, port)
			if _, ok := seen[addr]; ok {
				continue
			}
			seen[addr] = struct{}{}

			client := redis.NewClient(&redis.Options{Addr: addr})
			ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
			_, err := client.Ping(ctx).Result()
			cancel()
			_ = client.Close()
			if err == nil {
				return host, port
			}
			lastErr = err
		}
	}

	t.Skipf("Skipping Redis-dependent test: no reachable Redis endpoint (%v)", lastErr)
	return "", ""
}

func configureTestCache(host, port string) {
	if env.Env == nil {
		env.Env = map[string]string{}
	}

	env.Env["CACHE_HOST"] = host
	env.Env["CACHE_PORT"] = port

	_ = os.Setenv("CACHE_HOST", host)
	_ = os.Setenv("CACHE_PORT", port)

	cache.SetupCache()
}

func resetJobQueueRedis(t *testing.T) {
	t.Helper()

	ctx := context.Background()
	client := cache.GetClient()

	keys := []string{
		JobQueueKey,
		JobProcessingKey,
		JobRetryKey,
		JobDeadLetterKey,
		JobStatsKey,
	}

	iter := client.Scan(ctx, 0, JobKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		t.Fatalf("failed to scan redis keys: %v", err)
	}

	if err := client.Del(ctx, keys...).Err(); err != nil {
		t.Fatalf("failed to cleanup redis keys: %v", err)
	}
}
