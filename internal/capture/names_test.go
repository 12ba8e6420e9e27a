package capture

import (
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
)

type countingLookup struct {
	userCalls int
}

func (c *countingLookup) User(id string, _ ...discordgo.RequestOption) (*discordgo.User, error) {
	c.userCalls++
	if id == "missing" {
		return nil, errors.New("unknown user")
	}
	return &discordgo.User{ID: id, Username: "alice"}, nil
}

func (c *countingLookup) Channel(id string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	return &discordgo.Channel{ID: id, Name: "standup"}, nil
}

func TestNameCacheExpires(t *testing.T) {
	api := &countingLookup{}
	c := newNameCache(api)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	if got := c.UserName("u1"); got != "alice" {
		t.Fatalf("want alice got %q", got)
	}
	_ = c.UserName("u1")
	if api.userCalls != 1 {
		t.Fatalf("cached lookup hit the api: %d calls", api.userCalls)
	}
	now = now.Add(6 * time.Minute)
	_ = c.UserName("u1")
	if api.userCalls != 2 {
		t.Fatalf("expired entry was not refreshed: %d calls", api.userCalls)
	}
	if got := c.UserName("missing"); got != "" {
		t.Fatalf("want empty name for unknown user got %q", got)
	}
	if got := c.ChannelName("c1"); got != "standup" {
		t.Fatalf("want standup got %q", got)
	}
}

func TestNameCacheNilAPI(t *testing.T) {
	c := newNameCache(nil)
	if c.UserName("u") != "" || c.ChannelName("c") != "" {
		t.Fatalf("nil api should resolve nothing")
	}
}
