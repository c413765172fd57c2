package mysql

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"fundsync/internal/domain"

	"github.com/redis/go-redis/v9"
)

const (
	ownerCacheVersionKey = "fundsync:owners:version"
	ownerCacheKeyPrefix  = "fundsync:owners:v"
	defaultCacheTTL      = 10 * time.Minute
)

type CacheConfig struct {
	Addr string
	TTL  time.Duration
}

// CachedStore layers a Redis read-through cache over ownership listings.
// Every write bumps a version key, which invalidates all cached listings at
// once. Only the ownership index is cached; campaign existence and amounts
// always come from the ledger.
type CachedStore struct {
	*Store
	cache *redis.Client
	ttl   time.Duration
}

func NewCachedStore(base *Store, cfg CacheConfig) (*CachedStore, error) {
	if base == nil {
		return nil, errors.New("base store is required")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return &CachedStore{Store: base}, nil
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultCacheTTL
	}
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &CachedStore{Store: base, cache: client, ttl: cfg.TTL}, nil
}

func (s *CachedStore) UpsertCampaign(ctx context.Context, record domain.CampaignRecord) error {
	if err := s.Store.UpsertCampaign(ctx, record); err != nil {
		return err
	}
	s.invalidateOwnerCache(ctx)
	return nil
}

func (s *CachedStore) SetRaisedAmount(ctx context.Context, campaignID uint64, amount uint64) error {
	if err := s.Store.SetRaisedAmount(ctx, campaignID, amount); err != nil {
		return err
	}
	s.invalidateOwnerCache(ctx)
	return nil
}

func (s *CachedStore) SetDeleted(ctx context.Context, campaignID uint64, deleted bool) error {
	if err := s.Store.SetDeleted(ctx, campaignID, deleted); err != nil {
		return err
	}
	s.invalidateOwnerCache(ctx)
	return nil
}

func (s *CachedStore) ListByOwner(ctx context.Context, ownerRef string) ([]domain.CampaignRecord, error) {
	if s.cache == nil {
		return s.Store.ListByOwner(ctx, ownerRef)
	}
	version, ok := s.cacheVersion(ctx)
	if !ok {
		return s.Store.ListByOwner(ctx, ownerRef)
	}
	key := ownerCacheKey(version, ownerRef)
	if cached, err := s.cache.Get(ctx, key).Result(); err == nil {
		var records []domain.CampaignRecord
		if err := json.Unmarshal([]byte(cached), &records); err == nil {
			return records, nil
		}
	}

	records, err := s.Store.ListByOwner(ctx, ownerRef)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return records, nil
	}
	_ = s.cache.Set(ctx, key, payload, s.ttl).Err()
	return records, nil
}

func (s *CachedStore) cacheVersion(ctx context.Context) (string, bool) {
	version, err := s.cache.Get(ctx, ownerCacheVersionKey).Result()
	if err == nil {
		return version, true
	}
	if errors.Is(err, redis.Nil) {
		return "0", true
	}
	return "", false
}

func (s *CachedStore) invalidateOwnerCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Incr(ctx, ownerCacheVersionKey).Err()
}

func ownerCacheKey(version, ownerRef string) string {
	var b strings.Builder
	b.Grow(64)
	b.WriteString(ownerCacheKeyPrefix)
	b.WriteString(version)
	b.WriteString(":owner=")
	b.WriteString(ownerRef)
	return b.String()
}
