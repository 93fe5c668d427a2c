package cache

import (
	"time"

	"kzfm923/madealworker/logger"
)

const cooldownKeyPrefix = "cooldown:"

// Cooldown marks sources that stayed blocked through a whole run so the
// next run skips them until the block has had time to cool off.
type Cooldown struct {
	cache CacheService
	ttl   time.Duration
}

// NewCooldown wraps a cache with a cooldown policy
func NewCooldown(cache CacheService, ttl time.Duration) *Cooldown {
	if ttl == 0 {
		ttl = time.Hour
	}
	return &Cooldown{cache: cache, ttl: ttl}
}

// Mark puts a source into cooldown
func (c *Cooldown) Mark(source string) {
	err := c.cache.Set(cooldownKeyPrefix+source, []byte(time.Now().Format(time.RFC3339)), c.ttl)
	if err != nil {
		logger.ForSource(source).Warn().Err(err).Msg("Failed to record cooldown")
	}
}

// Active reports whether a source is still cooling off
func (c *Cooldown) Active(source string) bool {
	_, err := c.cache.Get(cooldownKeyPrefix + source)
	return err == nil
}

// Clear lifts a source's cooldown
func (c *Cooldown) Clear(source string) {
	if err := c.cache.Delete(cooldownKeyPrefix + source); err != nil {
		logger.ForSource(source).Warn().Err(err).Msg("Failed to clear cooldown")
	}
}
