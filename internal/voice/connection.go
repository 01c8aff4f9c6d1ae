package voice

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/discord-voice-wordtally/internal/logging"
	"github.com/discord-voice-wordtally/internal/session"
)

// Platform joins Discord voice channels for the session recorder.
type Platform struct {
	s          *discordgo.Session
	newDecoder DecoderFactory
	// ctx bounds the packet reader goroutines.
	ctx context.Context
}

var _ session.Platform = (*Platform)(nil)

func NewPlatform(ctx context.Context, s *discordgo.Session, f DecoderFactory) *Platform {
	if f == nil {
		f = NewOpusDecoder
	}
	return &Platform{s: s, newDecoder: f, ctx: ctx}
}

func (p *Platform) Join(ctx context.Context, guildID, channelID string) (session.Connection, error) {
	logging.Infow("joining voice channel", append(logging.GuildFields(guildID), logging.ChannelFields(channelID)...)...)
	vc, err := p.s.ChannelVoiceJoin(guildID, channelID, false, false)
	if err != nil {
		return nil, fmt.Errorf("voice join: %w", err)
	}
	if err := ctx.Err(); err != nil {
		_ = vc.Disconnect()
		return nil, err
	}
	conn := newConnection(vc, newCapture(p.newDecoder))
	vc.AddHandler(func(_ *discordgo.VoiceConnection, su *discordgo.VoiceSpeakingUpdate) {
		conn.cap.mapSSRC(uint32(su.SSRC), su.UserID)
	})
	conn.startReader(p.ctx, vc.OpusRecv)
	logging.Infow("joined voice channel", append(logging.GuildFields(guildID), logging.ChannelFields(channelID)...)...)
	return conn, nil
}

// Connection is a joined voice channel. A single reader drains OpusRecv for
// the connection's lifetime so discordgo's receiver never blocks.
type Connection struct {
	vc  *discordgo.VoiceConnection
	cap *capture

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ session.Connection = (*Connection)(nil)

func newConnection(vc *discordgo.VoiceConnection, c *capture) *Connection {
	return &Connection{vc: vc, cap: c, done: make(chan struct{})}
}

func (c *Connection) startReader(ctx context.Context, packets <-chan *discordgo.Packet) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			case pkt, ok := <-packets:
				if !ok {
					// The voice link is gone; hand over whatever was captured.
					if err := c.cap.stop(); err == nil {
						logging.Warnw("voice receive closed during capture")
					}
					return
				}
				if pkt == nil {
					continue
				}
				c.cap.handlePacket(pkt.SSRC, pkt.Opus)
			}
		}
	}()
}

func (c *Connection) StartCapture(onFinalize func([]session.UserAudio)) error {
	return c.cap.start(onFinalize)
}

func (c *Connection) StopCapture() error {
	return c.cap.stop()
}

func (c *Connection) Disconnect() error {
	c.closeOnce.Do(func() { close(c.done) })
	c.wg.Wait()
	if c.vc == nil {
		return nil
	}
	return c.vc.Disconnect()
}
