//go:build !opus
// +build !opus

package capture

import (
	"context"
	"fmt"
)

// DiscordSource is unavailable in builds without libopus; Start always
// fails so callers fall back to a degraded warning.
type DiscordSource struct{}

func NewDiscordSource(token, guildID, channelID string, f Format) (*DiscordSource, error) {
	return &DiscordSource{}, nil
}

func (d *DiscordSource) Name() string { return "discord" }

func (d *DiscordSource) Start(ctx context.Context, sink Sink) error {
	return fmt.Errorf("%w: rebuild with -tags opus for discord capture", ErrUnsupported)
}

func (d *DiscordSource) Stop() error { return nil }
