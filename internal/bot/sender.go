package bot

import (
	"github.com/bwmarrin/discordgo"

	"github.com/discord-voice-wordtally/internal/report"
)

// ChannelChecker reports whether a channel id resolves.
type ChannelChecker interface {
	ChannelExists(channelID string) bool
}

// DiscordSender posts plain text messages.
type DiscordSender struct {
	s        *discordgo.Session
	channels ChannelChecker
}

var _ report.Sender = (*DiscordSender)(nil)

func NewDiscordSender(s *discordgo.Session, channels ChannelChecker) *DiscordSender {
	return &DiscordSender{s: s, channels: channels}
}

func (d *DiscordSender) Send(channelID, text string) error {
	_, err := d.s.ChannelMessageSend(channelID, text)
	return err
}

func (d *DiscordSender) ChannelExists(channelID string) bool {
	return d.channels.ChannelExists(channelID)
}
