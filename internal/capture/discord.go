//go:build opus
// +build opus

package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"github.com/hraban/opus"

	"github.com/meeting-copilot/internal/audio"
	"github.com/meeting-copilot/internal/logging"
)

const (
	discordSampleRate = 48000
	discordChannels   = 1
	// largest opus frame is 120ms
	opusMaxFrame = discordSampleRate * 120 / 1000
)

// DiscordSource joins a voice channel and captures every speaker into one
// mono stream. Each SSRC keeps its own decoder state.
type DiscordSource struct {
	Token     string
	GuildID   string
	ChannelID string

	format Format

	mu      sync.Mutex
	session *discordgo.Session
	vc      *discordgo.VoiceConnection
	names   *nameCache
	ssrcMap map[uint32]string
	done    chan struct{}
	stop    chan struct{}

	decodeErrs atomic.Int64
}

func NewDiscordSource(token, guildID, channelID string, f Format) (*DiscordSource, error) {
	if token == "" || guildID == "" || channelID == "" {
		return nil, errors.New("discord source: token, guild_id and channel_id are required")
	}
	return &DiscordSource{Token: token, GuildID: guildID, ChannelID: channelID, format: f, ssrcMap: make(map[uint32]string)}, nil
}

func (d *DiscordSource) Name() string { return "discord" }

func (d *DiscordSource) Start(ctx context.Context, sink Sink) error {
	if err := d.format.validate(); err != nil {
		return err
	}
	conv, err := newConverter(discordSampleRate, discordChannels, d.format)
	if err != nil {
		return fmt.Errorf("discord source: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session != nil {
		return ErrAlreadyStarted
	}
	dg, err := discordgo.New("Bot " + d.Token)
	if err != nil {
		return fmt.Errorf("discord source: new session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	if err := dg.Open(); err != nil {
		return fmt.Errorf("discord source: open session: %w", err)
	}
	vc, err := dg.ChannelVoiceJoin(d.GuildID, d.ChannelID, true, false)
	if err != nil {
		_ = dg.Close()
		return fmt.Errorf("discord source: voice join: %w", err)
	}
	d.session, d.vc = dg, vc
	d.names = newNameCache(dg)
	vc.AddHandler(func(_ *discordgo.VoiceConnection, su *discordgo.VoiceSpeakingUpdate) {
		d.mu.Lock()
		d.ssrcMap[uint32(su.SSRC)] = su.UserID
		d.mu.Unlock()
		logging.Debugw("discord speaking update", "user", d.names.UserName(su.UserID), "ssrc", su.SSRC, "speaking", su.Speaking)
	})
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.recvLoop(ctx, vc.OpusRecv, conv, sink)
	logging.Infow("capture started", append(logging.SourceFields("discord", d.format.SampleRate, d.format.Channels),
		"guild", d.GuildID, "channel", d.names.ChannelName(d.ChannelID))...)
	return nil
}

func (d *DiscordSource) recvLoop(ctx context.Context, packets <-chan *discordgo.Packet, conv *converter, sink Sink) {
	defer close(d.done)
	decoders := make(map[uint32]*opus.Decoder)
	pcm := make([]int16, opusMaxFrame)
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stop:
			sink.EndOfStream()
			return
		case pkt, ok := <-packets:
			if !ok {
				sink.EndOfStream()
				return
			}
			if pkt == nil || len(pkt.Opus) == 0 {
				continue
			}
			dec, ok := decoders[pkt.SSRC]
			if !ok {
				var err error
				dec, err = opus.NewDecoder(discordSampleRate, discordChannels)
				if err != nil {
					logging.Errorw("opus decoder init failed", "ssrc", pkt.SSRC, "err", err)
					continue
				}
				decoders[pkt.SSRC] = dec
			}
			n, err := dec.Decode(pkt.Opus, pcm)
			if err != nil {
				d.decodeErrs.Add(1)
				logging.Warnw("opus decode error", "ssrc", pkt.SSRC, "err", err)
				continue
			}
			out, err := conv.convert(audio.SamplesToBytes(pcm[:n]))
			if err != nil {
				logging.Warnw("discord audio conversion failed", "err", err)
				continue
			}
			sink.OnAudioFrame(out)
		}
	}
}

func (d *DiscordSource) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil {
		return nil
	}
	close(d.stop)
	<-d.done
	var errs []error
	if err := d.vc.Disconnect(); err != nil {
		errs = append(errs, fmt.Errorf("voice disconnect: %w", err))
	}
	if err := d.session.Close(); err != nil {
		errs = append(errs, fmt.Errorf("session close: %w", err))
	}
	d.session, d.vc = nil, nil
	logging.Infow("capture stopped", "source", "discord", "decode_errors", d.decodeErrs.Load())
	return errors.Join(errs...)
}
