package capture

import (
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// userLookup is the part of *discordgo.Session the name cache needs.
type userLookup interface {
	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

// nameCache resolves Discord user and channel ids for log fields.
type nameCache struct {
	api userLookup
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	users    map[string]cacheEntry
	channels map[string]cacheEntry
}

type cacheEntry struct {
	val    string
	expiry time.Time
}

func newNameCache(api userLookup) *nameCache {
	return &nameCache{
		api:      api,
		ttl:      5 * time.Minute,
		now:      time.Now,
		users:    make(map[string]cacheEntry),
		channels: make(map[string]cacheEntry),
	}
}

func (c *nameCache) lookup(m map[string]cacheEntry, id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := m[id]; ok {
		if c.now().Before(e.expiry) {
			return e.val, true
		}
		delete(m, id)
	}
	return "", false
}

func (c *nameCache) store(m map[string]cacheEntry, id, val string) {
	c.mu.Lock()
	m[id] = cacheEntry{val: val, expiry: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// UserName returns the username for userID, or "" when unknown.
func (c *nameCache) UserName(userID string) string {
	if c.api == nil || userID == "" {
		return ""
	}
	if v, ok := c.lookup(c.users, userID); ok {
		return v
	}
	u, err := c.api.User(userID)
	if err != nil || u == nil {
		return ""
	}
	c.store(c.users, userID, u.Username)
	return u.Username
}

// ChannelName returns the channel name for channelID, or "" when unknown.
func (c *nameCache) ChannelName(channelID string) string {
	if c.api == nil || channelID == "" {
		return ""
	}
	if v, ok := c.lookup(c.channels, channelID); ok {
		return v
	}
	ch, err := c.api.Channel(channelID)
	if err != nil || ch == nil {
		return ""
	}
	c.store(c.channels, channelID, ch.Name)
	return ch.Name
}
