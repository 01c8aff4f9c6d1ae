package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/discord-voice-wordtally/internal/logging"
	"github.com/discord-voice-wordtally/internal/session"
)

const (
	CommandJoin    = "join"
	CommandLeave   = "leave"
	CommandHoliday = "holiday"
)

// Commands is the slash command set registered in the configured guild.
var Commands = []*discordgo.ApplicationCommand{
	{Name: CommandJoin, Description: "Join voice chat and start tracking words"},
	{Name: CommandLeave, Description: "Stop tracking and leave voice chat"},
	{Name: CommandHoliday, Description: "Toggle holiday (Christmas) mode"},
}

// VoiceLocator finds the voice channel a member is connected to.
type VoiceLocator interface {
	VoiceChannel(guildID, userID string) string
}

// Handler adapts Discord interactions to the controller.
type Handler struct {
	ctrl    *Controller
	voice   VoiceLocator
	guildID string
	ctx     context.Context
}

func NewHandler(ctx context.Context, ctrl *Controller, voice VoiceLocator, guildID string) *Handler {
	return &Handler{ctrl: ctrl, voice: voice, guildID: guildID, ctx: ctx}
}

// Register creates the guild commands. It needs an open session.
func (h *Handler) Register(s *discordgo.Session) error {
	if s.State == nil || s.State.User == nil {
		return errors.New("register commands: session not ready")
	}
	for _, cmd := range Commands {
		if _, err := s.ApplicationCommandCreate(s.State.User.ID, h.guildID, cmd); err != nil {
			return fmt.Errorf("register command %s: %w", cmd.Name, err)
		}
	}
	logging.Infow("registered slash commands", append(logging.GuildFields(h.guildID), "count", len(Commands))...)
	return nil
}

// invocation extracts caller details from an interaction.
func (h *Handler) invocation(i *discordgo.InteractionCreate) Invocation {
	inv := Invocation{GuildID: i.GuildID, TextChannelID: i.ChannelID}
	if i.Member != nil {
		inv.RoleIDs = i.Member.Roles
		if i.Member.User != nil {
			inv.UserID = i.Member.User.ID
		}
	} else if i.User != nil {
		inv.UserID = i.User.ID
	}
	if h.voice != nil && inv.GuildID != "" && inv.UserID != "" {
		inv.VoiceChannelID = h.voice.VoiceChannel(inv.GuildID, inv.UserID)
	}
	return inv
}

// Dispatch runs a command and returns the reply text and whether it should
// be visible only to the invoker.
func (h *Handler) Dispatch(name string, inv Invocation) (string, bool) {
	var (
		ack string
		err error
	)
	switch name {
	case CommandJoin:
		ack, err = h.ctrl.Join(h.ctx, inv)
	case CommandLeave:
		ack, err = h.ctrl.Leave(h.ctx, inv)
	case CommandHoliday:
		ack, err = h.ctrl.ToggleMode(inv)
	default:
		return "Unknown command.", true
	}
	if err == nil {
		return ack, false
	}

	fields := append(logging.UserFields(inv.UserID, ""), "command", name, "err", err)
	var authErr *AuthorizationError
	var preErr *session.PreconditionError
	switch {
	case errors.As(err, &authErr):
		logging.Infow("command denied", fields...)
		return authErr.Error(), true
	case errors.As(err, &preErr):
		logging.Debugw("command rejected", fields...)
		return preErr.Error(), true
	default:
		logging.Errorw("command failed", fields...)
		return "Something went wrong, please try again.", true
	}
}

// OnInteraction is the discordgo InteractionCreate handler.
func (h *Handler) OnInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	name := i.ApplicationCommandData().Name
	content, ephemeral := h.Dispatch(name, h.invocation(i))

	data := &discordgo.InteractionResponseData{Content: content}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		logging.Warnw("interaction respond failed", "command", name, "err", err)
	}
}
