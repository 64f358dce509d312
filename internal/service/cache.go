// cache.go — LRU-кэш пользователей с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/itm-space/backend-resources/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "br_user_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш пользователей.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "br_user_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша пользователей.",
	})
)

// UserCache — LRU-кэш собранных UserResponse по Keycloak ID.
// nil *UserCache — отключённый кэш: Get всегда промах, Set ничего не делает.
type UserCache struct {
	cache *expirable.LRU[string, model.UserResponse]
}

// NewUserCache создаёт кэш на maxSize записей с временем жизни ttl.
// maxSize <= 0 отключает кэш (возвращается nil).
func NewUserCache(maxSize int, ttl time.Duration) *UserCache {
	if maxSize <= 0 {
		return nil
	}
	return &UserCache{
		cache: expirable.NewLRU[string, model.UserResponse](maxSize, nil, ttl),
	}
}

// Get возвращает копию пользователя из кэша.
// Обновляет Prometheus-метрики hit/miss.
func (c *UserCache) Get(id string) (*model.UserResponse, bool) {
	if c == nil {
		return nil, false
	}
	val, ok := c.cache.Get(id)
	if !ok {
		cacheMissesTotal.Inc()
		return nil, false
	}
	cacheHitsTotal.Inc()
	return cloneUser(val), true
}

// Set добавляет или обновляет запись в кэше.
func (c *UserCache) Set(id string, user *model.UserResponse) {
	if c == nil || user == nil {
		return
	}
	c.cache.Add(id, *cloneUser(*user))
}

// Len возвращает количество записей в кэше.
func (c *UserCache) Len() int {
	if c == nil {
		return 0
	}
	return c.cache.Len()
}

func cloneUser(u model.UserResponse) *model.UserResponse {
	u.Roles = slices.Clone(u.Roles)
	u.Groups = slices.Clone(u.Groups)
	return &u
}
