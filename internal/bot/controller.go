// Package bot implements the join, leave and holiday commands and the
// pipeline that turns finished sessions into reports.
package bot

import (
	"context"
	"errors"

	"github.com/discord-voice-wordtally/internal/logging"
	"github.com/discord-voice-wordtally/internal/report"
	"github.com/discord-voice-wordtally/internal/session"
)

const (
	DisconnectedAck = "Disconnected."
	NotInVoiceAck   = "I am not in a voice channel."
)

// AuthorizationError rejects a command from a member without an allowed
// role.
type AuthorizationError struct{}

func (*AuthorizationError) Error() string { return "You don't have permission to use this command." }

var ErrUnauthorized error = &AuthorizationError{}

// Invocation describes who ran a command and from where.
type Invocation struct {
	UserID        string
	GuildID       string
	TextChannelID string
	// VoiceChannelID is empty when the user is not in voice.
	VoiceChannelID string
	RoleIDs        []string
}

// Recorder is the subset of *session.Recorder the controller drives.
type Recorder interface {
	Start(ctx context.Context, req session.StartRequest) (*session.Session, error)
	RequestStop(guildID string, disconnectAfter bool) (*session.Session, error)
	Disconnect(guildID string) (deferred bool, err error)
}

// Controller authorizes commands and applies them to the recorder and mode.
type Controller struct {
	rec   Recorder
	mode  *report.ModeState
	dest  *report.Destinations
	allow map[string]struct{}
}

func NewController(rec Recorder, mode *report.ModeState, dest *report.Destinations, allowedRoles []string) *Controller {
	allow := make(map[string]struct{}, len(allowedRoles))
	for _, r := range allowedRoles {
		allow[r] = struct{}{}
	}
	return &Controller{rec: rec, mode: mode, dest: dest, allow: allow}
}

// Authorized is true when no roles are configured or the member holds one
// of them.
func (c *Controller) Authorized(roleIDs []string) bool {
	if len(c.allow) == 0 {
		return true
	}
	for _, r := range roleIDs {
		if _, ok := c.allow[r]; ok {
			return true
		}
	}
	return false
}

// Join starts recording the invoker's voice channel.
func (c *Controller) Join(ctx context.Context, inv Invocation) (string, error) {
	if !c.Authorized(inv.RoleIDs) {
		return "", ErrUnauthorized
	}
	if inv.VoiceChannelID == "" {
		return "", session.ErrNotInVoice
	}
	c.dest.Remember(inv.TextChannelID)
	_, err := c.rec.Start(ctx, session.StartRequest{
		GuildID:        inv.GuildID,
		VoiceChannelID: inv.VoiceChannelID,
		TextChannelID:  inv.TextChannelID,
		UserID:         inv.UserID,
	})
	if err != nil {
		return "", err
	}
	return report.FramingFor(c.mode.Current()).JoinAck, nil
}

// Leave stops an active recording and disconnects once the report is out.
// Without a recording it disconnects an idle connection directly.
func (c *Controller) Leave(ctx context.Context, inv Invocation) (string, error) {
	if !c.Authorized(inv.RoleIDs) {
		return "", ErrUnauthorized
	}
	// The ack is chosen before stopping so it matches the mode the user saw.
	ack := report.FramingFor(c.mode.Current()).LeaveAck
	_, err := c.rec.RequestStop(inv.GuildID, true)
	if err == nil {
		return ack, nil
	}
	if !errors.Is(err, session.ErrNotRecording) {
		return "", err
	}
	switch deferred, err := c.rec.Disconnect(inv.GuildID); {
	case err == nil && deferred:
		// Leaves once the pending report is out.
		return ack, nil
	case err == nil:
		return DisconnectedAck, nil
	case errors.Is(err, session.ErrNotConnected):
		return NotInVoiceAck, nil
	default:
		logging.Warnw("leave: disconnect failed", append(logging.GuildFields(inv.GuildID), "err", err)...)
		return "", err
	}
}

// ToggleMode flips holiday mode. Running sessions pick up the new mode when
// they finalize.
func (c *Controller) ToggleMode(inv Invocation) (string, error) {
	if !c.Authorized(inv.RoleIDs) {
		return "", ErrUnauthorized
	}
	m := c.mode.Toggle()
	logging.Infow("mode toggled", append(logging.UserFields(inv.UserID, ""), "mode", m.String())...)
	return report.FramingFor(m).ToggleAck, nil
}
