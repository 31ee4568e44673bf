package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// WalletEntry records why a wallet address was flagged as suspicious.
type WalletEntry struct {
	// Address is the flagged wallet address.
	Address string `json:"address"`
	// Rules lists the rule identifiers that implicated the wallet.
	Rules []string `json:"rules"`
	// BatchID identifies the batch in which the wallet was flagged.
	BatchID string `json:"batch_id"`
	// FlaggedAt is when the wallet was recorded.
	FlaggedAt time.Time `json:"flagged_at"`
}

// WalletRegistryStats holds hit/miss counters for the registry.
type WalletRegistryStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Adds   int64 `json:"adds"`
}

// WalletRegistry is the cross-batch suspicious-wallet store. Wallets
// implicated by one batch stay flagged for the configured TTL so later
// batches can annotate trades whose parties are already known offenders.
type WalletRegistry interface {
	// Mark records addresses flagged by a batch.
	Mark(ctx context.Context, entries []WalletEntry) error
	// IsFlagged checks whether an address is currently flagged.
	IsFlagged(ctx context.Context, address string) (bool, *WalletEntry)
	// Flagged returns every currently flagged address.
	Flagged(ctx context.Context) ([]WalletEntry, error)
	// GetStats returns the registry counters.
	GetStats() WalletRegistryStats
}

// RedisWalletRegistry implements WalletRegistry on Redis; entries expire via
// per-key TTL. Registry errors are logged and treated as misses so the
// detection pipeline never fails because the registry is unreachable.
type RedisWalletRegistry struct {
	client redis.Cmdable
	ttl    time.Duration
	prefix string
	logger *logrus.Logger

	mu    sync.Mutex
	stats WalletRegistryStats
}

// NewRedisWalletRegistry creates a Redis-backed suspicious-wallet registry.
func NewRedisWalletRegistry(client redis.Cmdable, ttl time.Duration, prefix string, logger *logrus.Logger) *RedisWalletRegistry {
	if prefix == "" {
		prefix = "wash_wallets:"
	}
	return &RedisWalletRegistry{
		client: client,
		ttl:    ttl,
		prefix: prefix,
		logger: logger,
	}
}

// Mark records addresses flagged by a batch. Re-flagging an address refreshes
// its TTL and replaces the evidence.
func (r *RedisWalletRegistry) Mark(ctx context.Context, entries []WalletEntry) error {
	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to serialize wallet entry for %s: %w", entry.Address, err)
		}
		if err := r.client.Set(ctx, r.prefix+entry.Address, data, r.ttl).Err(); err != nil {
			return fmt.Errorf("failed to store wallet entry for %s: %w", entry.Address, err)
		}
		r.mu.Lock()
		r.stats.Adds++
		r.mu.Unlock()
	}
	return nil
}

// IsFlagged checks whether an address is currently in the registry.
func (r *RedisWalletRegistry) IsFlagged(ctx context.Context, address string) (bool, *WalletEntry) {
	data, err := r.client.Get(ctx, r.prefix+address).Result()
	if err == redis.Nil {
		r.miss()
		return false, nil
	}
	if err != nil {
		r.logger.WithError(err).WithField("address", address).Warn("Wallet registry lookup failed")
		r.miss()
		return false, nil
	}

	var entry WalletEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		r.logger.WithError(err).WithField("address", address).Warn("Corrupt wallet registry entry")
		r.miss()
		return false, nil
	}

	r.mu.Lock()
	r.stats.Hits++
	r.mu.Unlock()
	return true, &entry
}

// Flagged returns every currently flagged wallet.
func (r *RedisWalletRegistry) Flagged(ctx context.Context) ([]WalletEntry, error) {
	keys, err := r.client.Keys(ctx, r.prefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list wallet registry keys: %w", err)
	}

	entries := make([]WalletEntry, 0, len(keys))
	for _, key := range keys {
		data, err := r.client.Get(ctx, key).Result()
		if err == redis.Nil {
			continue // expired between KEYS and GET
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read wallet registry key %s: %w", key, err)
		}
		var entry WalletEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			r.logger.WithError(err).WithField("key", key).Warn("Corrupt wallet registry entry")
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// GetStats returns the registry counters.
func (r *RedisWalletRegistry) GetStats() WalletRegistryStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *RedisWalletRegistry) miss() {
	r.mu.Lock()
	r.stats.Misses++
	r.mu.Unlock()
}
