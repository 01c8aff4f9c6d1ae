package voice

import (
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
)

func stateSession(t *testing.T) *discordgo.Session {
	t.Helper()
	st := discordgo.NewState()
	guild := &discordgo.Guild{
		ID:          "g",
		VoiceStates: []*discordgo.VoiceState{{GuildID: "g", UserID: "1", ChannelID: "v"}},
	}
	if err := st.GuildAdd(guild); err != nil {
		t.Fatalf("GuildAdd: %v", err)
	}
	members := []*discordgo.Member{
		{GuildID: "g", Nick: "Nicky", User: &discordgo.User{ID: "1", Username: "user1", GlobalName: "Global One"}},
		{GuildID: "g", User: &discordgo.User{ID: "2", Username: "user2", GlobalName: "Global Two"}},
		{GuildID: "g", User: &discordgo.User{ID: "3", Username: "user3"}},
	}
	for _, m := range members {
		if err := st.MemberAdd(m); err != nil {
			t.Fatalf("MemberAdd: %v", err)
		}
	}
	if err := st.ChannelAdd(&discordgo.Channel{ID: "c", GuildID: "g", Name: "general"}); err != nil {
		t.Fatalf("ChannelAdd: %v", err)
	}
	return &discordgo.Session{State: st}
}

func TestDisplayNamePrecedence(t *testing.T) {
	r := NewResolver(stateSession(t))
	cases := map[string]string{"1": "Nicky", "2": "Global Two", "3": "user3"}
	for id, want := range cases {
		if got := r.DisplayName("g", id); got != want {
			t.Fatalf("user %s: want %q got %q", id, want, got)
		}
	}
}

func TestDisplayNameIsCached(t *testing.T) {
	s := stateSession(t)
	r := NewResolver(s)
	_ = r.DisplayName("g", "1")
	if err := s.State.MemberRemove(&discordgo.Member{GuildID: "g", User: &discordgo.User{ID: "1"}}); err != nil {
		t.Fatalf("MemberRemove: %v", err)
	}
	if got := r.DisplayName("g", "1"); got != "Nicky" {
		t.Fatalf("expected cached name, got %q", got)
	}

	old := cacheTTL
	cacheTTL = -time.Second
	defer func() { cacheTTL = old }()
	r2 := NewResolver(stateSession(t))
	r2.mu.Lock()
	r2.setCache(r2.nameCache, "g:9", "stale")
	r2.mu.Unlock()
	r2.mu.Lock()
	_, ok := r2.lookupCache(r2.nameCache, "g:9")
	r2.mu.Unlock()
	if ok {
		t.Fatalf("expired entry should not be returned")
	}
}

func TestDisplayNameWithoutSession(t *testing.T) {
	r := NewResolver(nil)
	if got := r.DisplayName("g", "123"); got != "123" {
		t.Fatalf("expected id fallback, got %q", got)
	}
}

func TestChannelAndVoiceLookups(t *testing.T) {
	r := NewResolver(stateSession(t))
	if !r.ChannelExists("c") || r.ChannelName("c") != "general" {
		t.Fatalf("expected channel c to resolve")
	}
	if got := r.VoiceChannel("g", "1"); got != "v" {
		t.Fatalf("expected voice channel v, got %q", got)
	}
	if got := r.VoiceChannel("g", "2"); got != "" {
		t.Fatalf("user 2 is not in voice, got %q", got)
	}
}
