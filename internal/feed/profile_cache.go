// Package feed denormalizes author profiles onto waves for rendering.
package feed

import (
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Profile is the slice of a user rendered next to a wave.
type Profile struct {
	Username     string `json:"username"`
	DisplayName  string `json:"displayName"`
	ProfileImage string `json:"profileImage"`
}

// ProfileCache is a session-lifetime cache of author profiles. It never
// evicts; Clear empties it when the session ends.
type ProfileCache struct {
	mu      sync.RWMutex
	entries map[uint]Profile
	group   singleflight.Group
}

func NewProfileCache() *ProfileCache {
	return &ProfileCache{entries: make(map[uint]Profile)}
}

func (c *ProfileCache) Get(userID uint) (Profile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.entries[userID]
	return p, ok
}

func (c *ProfileCache) Put(userID uint, p Profile) {
	c.mu.Lock()
	c.entries[userID] = p
	c.mu.Unlock()
}

func (c *ProfileCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *ProfileCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[uint]Profile)
	c.mu.Unlock()
}

// Load returns the cached profile or runs fetch once for all concurrent
// callers asking for the same id. A successful fetch is cached.
func (c *ProfileCache) Load(ctx context.Context, userID uint, fetch func(context.Context, uint) (Profile, error)) (Profile, error) {
	if p, ok := c.Get(userID); ok {
		return p, nil
	}
	v, err, _ := c.group.Do(strconv.FormatUint(uint64(userID), 10), func() (interface{}, error) {
		if p, ok := c.Get(userID); ok {
			return p, nil
		}
		p, err := fetch(ctx, userID)
		if err != nil {
			return Profile{}, err
		}
		c.Put(userID, p)
		return p, nil
	})
	if err != nil {
		return Profile{}, err
	}
	return v.(Profile), nil
}
