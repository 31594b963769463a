package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/gymrank/internal/config"
	"github.com/gymrank/internal/domain"
)

const eloKey = "gymrank:elo"

// EloBoard mirrors the stored per-user ELO scores into a Redis sorted set so
// the legacy elo_simple leaderboard is a single ZREVRANGE away. PostgreSQL
// stays the source of truth; the mirror is rebuilt at startup and repaired by
// the reconcile worker, so a lost write only causes temporary staleness.
type EloBoard struct {
	client *redis.Client
	logger *slog.Logger
}

// NewEloBoard creates a Redis-backed ELO mirror
func NewEloBoard(cfg *config.RedisConfig, logger *slog.Logger) (*EloBoard, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &EloBoard{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (b *EloBoard) Close() error {
	return b.client.Close()
}

// Ping checks the Redis connection
func (b *EloBoard) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// SetScore updates one user's mirrored ELO
func (b *EloBoard) SetScore(ctx context.Context, username string, elo float64) error {
	err := b.client.ZAdd(ctx, eloKey, redis.Z{
		Score:  elo,
		Member: username,
	}).Err()
	if err != nil {
		return fmt.Errorf("setting elo score: %w", err)
	}
	return nil
}

// Remove drops a user from the mirror
func (b *EloBoard) Remove(ctx context.Context, username string) error {
	if err := b.client.ZRem(ctx, eloKey, username).Err(); err != nil {
		return fmt.Errorf("removing elo score: %w", err)
	}
	return nil
}

// Rename moves a member to a new username, keeping its score. Missing old
// members are ignored so a rename racing a rebuild stays harmless.
func (b *EloBoard) Rename(ctx context.Context, oldName, newName string) error {
	score, err := b.client.ZScore(ctx, eloKey, oldName).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading elo score: %w", err)
	}

	pipe := b.client.TxPipeline()
	pipe.ZRem(ctx, eloKey, oldName)
	pipe.ZAdd(ctx, eloKey, redis.Z{Score: score, Member: newName})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("renaming elo member: %w", err)
	}
	return nil
}

// Top returns the highest-ELO members, best first
func (b *EloBoard) Top(ctx context.Context, n int) ([]domain.EloEntry, error) {
	results, err := b.client.ZRevRangeWithScores(ctx, eloKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading top elo: %w", err)
	}

	entries := make([]domain.EloEntry, 0, len(results))
	for _, z := range results {
		username, ok := z.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, domain.EloEntry{
			Username: username,
			Elo:      z.Score,
		})
	}
	return entries, nil
}

// RebuildFrom atomically replaces the whole mirror with the given scores
func (b *EloBoard) RebuildFrom(ctx context.Context, scores map[string]float64) error {
	pipe := b.client.TxPipeline()
	pipe.Del(ctx, eloKey)

	if len(scores) > 0 {
		members := make([]redis.Z, 0, len(scores))
		for username, elo := range scores {
			members = append(members, redis.Z{Score: elo, Member: username})
		}
		pipe.ZAdd(ctx, eloKey, members...)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rebuilding elo mirror: %w", err)
	}

	b.logger.Info("elo mirror rebuilt", "members", len(scores))
	return nil
}
