package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/planmatter/heritage-cli/internal/heritage"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the result cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show result cache statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if cfg.Heritage.CacheDriver != "redis" {
			return eris.New("cache stats requires the redis cache driver; the memory cache lives inside each process")
		}

		client := redisClient()
		defer func() { _ = client.Close() }()

		entries, err := countCacheKeys(ctx, client)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(map[string]any{
			"driver":   "redis",
			"addr":     cfg.Redis.Addr,
			"entries":  entries,
			"ttl_secs": cfg.Heritage.CacheTTLSecs,
		}, "", "  ")
		if err != nil {
			return eris.Wrap(err, "cache stats: marshal")
		}
		fmt.Println(string(out))
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all cached classification results",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if cfg.Heritage.CacheDriver != "redis" {
			return eris.New("cache clear requires the redis cache driver")
		}

		client := redisClient()
		defer func() { _ = client.Close() }()

		deleted, err := deleteCacheKeys(ctx, client)
		if err != nil {
			return err
		}

		zap.L().Info("cache cleared", zap.Int("deleted", deleted))
		return nil
	},
}

func redisClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func countCacheKeys(ctx context.Context, client *redis.Client) (int, error) {
	var count int
	iter := client.Scan(ctx, 0, heritage.RedisKeyPrefix+"*", 500).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, eris.Wrap(err, "cache: scan keys")
	}
	return count, nil
}

func deleteCacheKeys(ctx context.Context, client *redis.Client) (int, error) {
	var deleted int
	iter := client.Scan(ctx, 0, heritage.RedisKeyPrefix+"*", 500).Iterator()
	for iter.Next(ctx) {
		if err := client.Del(ctx, iter.Val()).Err(); err != nil {
			return deleted, eris.Wrap(err, "cache: delete key")
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, eris.Wrap(err, "cache: scan keys")
	}
	return deleted, nil
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
