package voice

import (
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Resolver looks up display names, channels and voice states, preferring
// the gateway state cache over REST calls.
type Resolver struct {
	s  *discordgo.Session
	mu sync.Mutex
	// id -> (value, expiry)
	nameCache    map[string]cacheEntry
	channelCache map[string]cacheEntry
}

type cacheEntry struct {
	val    string
	expiry time.Time
}

func NewResolver(s *discordgo.Session) *Resolver {
	return &Resolver{
		s:            s,
		nameCache:    make(map[string]cacheEntry),
		channelCache: make(map[string]cacheEntry),
	}
}

// cacheTTL controls how long a cached lookup is valid.
var cacheTTL = 5 * time.Minute

func (d *Resolver) lookupCache(m map[string]cacheEntry, id string) (string, bool) {
	if id == "" {
		return "", false
	}
	if e, ok := m[id]; ok {
		if time.Now().Before(e.expiry) {
			return e.val, true
		}
		delete(m, id)
	}
	return "", false
}

func (d *Resolver) setCache(m map[string]cacheEntry, id, val string) {
	m[id] = cacheEntry{val: val, expiry: time.Now().Add(cacheTTL)}
}

// DisplayName returns the guild nickname, then the global display name,
// then the username. Unresolvable users fall back to their id.
func (d *Resolver) DisplayName(guildID, userID string) string {
	if d.s == nil || userID == "" {
		return userID
	}
	key := guildID + ":" + userID
	d.mu.Lock()
	if v, ok := d.lookupCache(d.nameCache, key); ok {
		d.mu.Unlock()
		return v
	}
	d.mu.Unlock()

	name := d.fetchName(guildID, userID)
	if name == "" {
		return userID
	}
	d.mu.Lock()
	d.setCache(d.nameCache, key, name)
	d.mu.Unlock()
	return name
}

func (d *Resolver) fetchName(guildID, userID string) string {
	var m *discordgo.Member
	if d.s.State != nil && guildID != "" {
		m, _ = d.s.State.Member(guildID, userID)
	}
	if m == nil && guildID != "" {
		m, _ = d.s.GuildMember(guildID, userID)
	}
	if m != nil {
		if m.Nick != "" {
			return m.Nick
		}
		if m.User != nil {
			return userName(m.User)
		}
	}
	if u, err := d.s.User(userID); err == nil && u != nil {
		return userName(u)
	}
	return ""
}

func userName(u *discordgo.User) string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// ChannelExists reports whether channelID resolves to a channel.
func (d *Resolver) ChannelExists(channelID string) bool {
	return d.ChannelName(channelID) != ""
}

func (d *Resolver) ChannelName(channelID string) string {
	if d.s == nil || channelID == "" {
		return ""
	}
	d.mu.Lock()
	if v, ok := d.lookupCache(d.channelCache, channelID); ok {
		d.mu.Unlock()
		return v
	}
	d.mu.Unlock()
	var c *discordgo.Channel
	if d.s.State != nil {
		c, _ = d.s.State.Channel(channelID)
	}
	if c == nil {
		c, _ = d.s.Channel(channelID)
	}
	if c == nil {
		return ""
	}
	name := c.Name
	if name == "" {
		name = c.ID
	}
	d.mu.Lock()
	d.setCache(d.channelCache, channelID, name)
	d.mu.Unlock()
	return name
}

// VoiceChannel returns the voice channel userID is connected to in guildID,
// or "" when they are not in voice. Voice states come from the gateway and
// are not cached here.
func (d *Resolver) VoiceChannel(guildID, userID string) string {
	if d.s == nil || d.s.State == nil {
		return ""
	}
	vs, err := d.s.State.VoiceState(guildID, userID)
	if err != nil || vs == nil {
		return ""
	}
	return vs.ChannelID
}
