package data

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/audioscribe/audioscribe/internal/core"
	"github.com/audioscribe/audioscribe/internal/domain/model"
)

// settingsCacheKeyPrefix namespaces settings entries in the shared cache.
const settingsCacheKeyPrefix = "audioscribe:settings:"

// CachedSettingsRepo wraps a SettingsRepository with a Redis read-through
// cache. Cache failures degrade to direct reads; settings lookups sit on the
// job submission path and must not depend on Redis availability.
type CachedSettingsRepo struct {
	inner  core.SettingsRepository
	cache  *RedisCacheRepo
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedSettingsRepo creates a read-through cache around inner.
func NewCachedSettingsRepo(inner core.SettingsRepository, cache *RedisCacheRepo, ttl time.Duration, logger *slog.Logger) *CachedSettingsRepo {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedSettingsRepo{
		inner:  inner,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// Get returns cached settings when fresh, otherwise reads through and
// repopulates the cache.
func (r *CachedSettingsRepo) Get(ctx context.Context, ownerID string) (*model.OwnerSettings, error) {
	key := settingsCacheKeyPrefix + ownerID

	if raw, err := r.cache.Get(ctx, key); err != nil {
		r.logWarn(ctx, "settings cache read failed", ownerID, err)
	} else if raw != nil {
		var s model.OwnerSettings
		if unmarshalErr := json.Unmarshal(raw, &s); unmarshalErr == nil {
			return &s, nil
		}
		// Corrupt entry: fall through to the source and overwrite.
	}

	settings, err := r.inner.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	if raw, marshalErr := json.Marshal(settings); marshalErr == nil {
		if setErr := r.cache.Set(ctx, key, raw, r.ttl); setErr != nil {
			r.logWarn(ctx, "settings cache write failed", ownerID, setErr)
		}
	}

	return settings, nil
}

// Upsert writes through to the source and invalidates the cached entry.
func (r *CachedSettingsRepo) Upsert(ctx context.Context, settings *model.OwnerSettings) (*model.OwnerSettings, error) {
	updated, err := r.inner.Upsert(ctx, settings)
	if err != nil {
		return nil, err
	}

	if _, delErr := r.cache.Delete(ctx, settingsCacheKeyPrefix+updated.OwnerID); delErr != nil {
		r.logWarn(ctx, "settings cache invalidation failed", updated.OwnerID, delErr)
	}

	return updated, nil
}

func (r *CachedSettingsRepo) logWarn(ctx context.Context, msg, ownerID string, err error) {
	if r.logger == nil {
		return
	}
	r.logger.WarnContext(ctx, msg, "owner_id", ownerID, "error", err)
}
