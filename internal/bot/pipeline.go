package bot

import (
	"context"

	"github.com/discord-voice-wordtally/internal/logging"
	"github.com/discord-voice-wordtally/internal/report"
	"github.com/discord-voice-wordtally/internal/session"
	"github.com/discord-voice-wordtally/internal/words"
)

// Publisher sends an ordered message sequence without interleaving.
type Publisher interface {
	Publish(channelID string, msgs ...string) error
}

// Tally accumulates finished sessions into the daily leaderboard.
type Tally interface {
	Add(ctx context.Context, stats []words.UserStats)
}

// Pipeline reports finished sessions and feeds the daily tally.
type Pipeline struct {
	mode  *report.ModeState
	dest  *report.Destinations
	pub   Publisher
	tally Tally
}

var _ session.Sink = (*Pipeline)(nil)

func NewPipeline(mode *report.ModeState, dest *report.Destinations, pub Publisher, tally Tally) *Pipeline {
	return &Pipeline{mode: mode, dest: dest, pub: pub, tally: tally}
}

// SessionFinished publishes status, then the report or the no-audio line,
// then the flagged report if any, as one sequence. Framing follows the mode
// at this moment, not when the session started.
func (p *Pipeline) SessionFinished(ctx context.Context, res session.Result) {
	framing := report.FramingFor(p.mode.Current())
	channelID := p.dest.ForSession(res.Session.TextChannelID)

	msgs := []string{framing.Status}
	if !res.AnyAudio {
		msgs = append(msgs, framing.NoAudio)
	} else {
		main, flagged, hasFlagged := report.Build(res.Stats, framing.Header, framing.TopLabel)
		msgs = append(msgs, main)
		if hasFlagged {
			msgs = append(msgs, flagged)
		}
	}
	if err := p.pub.Publish(channelID, msgs...); err != nil {
		logging.WarnwCtx(ctx, "session report delivery incomplete", "channel.id", channelID, "err", err)
	} else {
		logging.InfowCtx(ctx, "session report sent", "channel.id", channelID, "messages", len(msgs))
	}
	p.tally.Add(ctx, res.Stats)
}
