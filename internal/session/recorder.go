// Package session runs the recording state machine for each guild's voice
// connection and turns captured audio into per-user word statistics.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/discord-voice-wordtally/internal/logging"
	"github.com/discord-voice-wordtally/internal/words"
)

type State int

const (
	Idle State = iota
	Recording
	Finalizing
)

func (s State) String() string {
	switch s {
	case Recording:
		return "recording"
	case Finalizing:
		return "finalizing"
	default:
		return "idle"
	}
}

// UserAudio is one user's captured PCM for a session.
type UserAudio struct {
	UserID string
	Audio  []byte
}

// ErrCaptureEnded is returned by StopCapture when the capture already ended
// on its own, e.g. because the voice link dropped. onFinalize has been or
// will be called for it.
var ErrCaptureEnded = errors.New("capture already ended")

// Connection is a live voice connection that can capture audio.
type Connection interface {
	// StartCapture begins buffering audio. onFinalize is called exactly once
	// per capture, after StopCapture or when the connection drops, with the
	// buffers in the order users were first heard.
	StartCapture(onFinalize func([]UserAudio)) error
	// StopCapture flushes the capture. It wraps ErrCaptureEnded when the
	// capture was already handed over.
	StopCapture() error
	Disconnect() error
}

// Platform joins voice channels.
type Platform interface {
	Join(ctx context.Context, guildID, channelID string) (Connection, error)
}

// NameResolver maps user ids to display names, falling back to the id.
type NameResolver interface {
	DisplayName(guildID, userID string) string
}

// Transcriber is satisfied by *transcribe.Adapter.
type Transcriber interface {
	Audible(audio []byte) bool
	Transcribe(ctx context.Context, audio []byte) (string, bool, error)
}

// Result is everything produced by finalizing one session.
type Result struct {
	Session Session
	Stats   []words.UserStats
	// AnyAudio is false when no user produced audio above the silence
	// threshold.
	AnyAudio bool
}

// Sink receives finished sessions. It runs before the connection is torn
// down and before the guild returns to Idle.
type Sink interface {
	SessionFinished(ctx context.Context, res Result)
}

// Session describes one recording interval.
type Session struct {
	ID             string    `json:"id"`
	GuildID        string    `json:"guild_id"`
	VoiceChannelID string    `json:"voice_channel_id"`
	TextChannelID  string    `json:"text_channel_id"`
	StartedBy      string    `json:"started_by"`
	StartedAt      time.Time `json:"started_at"`
	State          string    `json:"state"`

	disconnectAfter bool
}

// StartRequest carries what is known about the invoking user.
type StartRequest struct {
	GuildID        string
	VoiceChannelID string
	TextChannelID  string
	UserID         string
}

// guildState serializes transitions for one guild. Discord allows a single
// voice connection per guild, so this is also the per-channel session slot.
type guildState struct {
	mu      sync.Mutex
	state   State
	conn    Connection
	session *Session
}

type Recorder struct {
	platform Platform
	stt      Transcriber
	names    NameResolver
	sink     Sink
	flagged  words.FlaggedSet

	// ctx is the parent of finalize work, which outlives the command that
	// started it.
	ctx context.Context
	wg  sync.WaitGroup

	mu     sync.Mutex
	guilds map[string]*guildState
}

func NewRecorder(ctx context.Context, platform Platform, stt Transcriber, names NameResolver, sink Sink, flagged words.FlaggedSet) *Recorder {
	return &Recorder{
		platform: platform,
		stt:      stt,
		names:    names,
		sink:     sink,
		flagged:  flagged,
		ctx:      ctx,
		guilds:   make(map[string]*guildState),
	}
}

func (r *Recorder) guild(id string) *guildState {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.guilds[id]
	if !ok {
		g = &guildState{}
		r.guilds[id] = g
	}
	return g
}

// Start begins a session, joining voice first if the guild has no
// connection. An existing connection is reused.
func (r *Recorder) Start(ctx context.Context, req StartRequest) (*Session, error) {
	if req.VoiceChannelID == "" {
		return nil, ErrNotInVoice
	}
	g := r.guild(req.GuildID)
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case Recording:
		return nil, ErrAlreadyRecording
	case Finalizing:
		return nil, ErrBusy
	}

	if g.conn == nil {
		conn, err := r.platform.Join(ctx, req.GuildID, req.VoiceChannelID)
		if err != nil {
			return nil, fmt.Errorf("join voice channel %s: %w", req.VoiceChannelID, err)
		}
		g.conn = conn
	}

	sess := &Session{
		ID:             uuid.NewString(),
		GuildID:        req.GuildID,
		VoiceChannelID: req.VoiceChannelID,
		TextChannelID:  req.TextChannelID,
		StartedBy:      req.UserID,
		StartedAt:      time.Now().UTC(),
	}
	guildID, sessionID := sess.GuildID, sess.ID
	err := g.conn.StartCapture(func(audio []UserAudio) {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.finalize(guildID, sessionID, audio)
		}()
	})
	if err != nil {
		return nil, fmt.Errorf("start capture: %w", err)
	}
	g.state = Recording
	g.session = sess
	logging.Infow("recording started", append(logging.SessionFields(sess.ID, sess.GuildID),
		"channel.id", sess.VoiceChannelID, "user.id", req.UserID)...)
	out := *sess
	out.State = Recording.String()
	return &out, nil
}

// RequestStop moves a recording session to Finalizing and asks the
// connection to flush. disconnectAfter tears the connection down once the
// report is out.
func (r *Recorder) RequestStop(guildID string, disconnectAfter bool) (*Session, error) {
	g := r.guild(guildID)
	g.mu.Lock()
	if g.state != Recording {
		g.mu.Unlock()
		return nil, ErrNotRecording
	}
	g.state = Finalizing
	g.session.disconnectAfter = disconnectAfter
	conn := g.conn
	sess := *g.session
	g.mu.Unlock()

	logging.Infow("recording stop requested", append(logging.SessionFields(sess.ID, guildID),
		"disconnect_after", disconnectAfter)...)
	// StopCapture may deliver the finalize callback synchronously, so it is
	// called without holding g.mu.
	err := conn.StopCapture()
	if errors.Is(err, ErrCaptureEnded) {
		// Finalize is already in flight and picks up disconnectAfter.
		logging.Infow("capture already ended, finalize in flight", logging.SessionFields(sess.ID, guildID)...)
		err = nil
	}
	if err != nil {
		logging.Warnw("stop capture failed, abandoning session", append(logging.SessionFields(sess.ID, guildID), "err", err)...)
		g.mu.Lock()
		if g.session != nil && g.session.ID == sess.ID {
			g.state = Idle
			g.session = nil
		}
		g.mu.Unlock()
		return nil, fmt.Errorf("stop capture: %w", err)
	}
	sess.State = Finalizing.String()
	return &sess, nil
}

// Disconnect tears down an idle connection. While a session is finalizing
// the disconnect is deferred until the report is sent and deferred is true.
func (r *Recorder) Disconnect(guildID string) (deferred bool, err error) {
	g := r.guild(guildID)
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn == nil {
		return false, ErrNotConnected
	}
	switch g.state {
	case Recording:
		return false, ErrAlreadyRecording
	case Finalizing:
		g.session.disconnectAfter = true
		return true, nil
	}
	err = g.conn.Disconnect()
	g.conn = nil
	if err != nil {
		return false, fmt.Errorf("disconnect: %w", err)
	}
	logging.Infow("voice disconnected", logging.GuildFields(guildID)...)
	return false, nil
}

// finalize processes one session's audio. It runs at most once per session:
// a second delivery for the same or a stale session id is ignored.
func (r *Recorder) finalize(guildID, sessionID string, audio []UserAudio) {
	g := r.guild(guildID)
	g.mu.Lock()
	if g.session == nil || g.session.ID != sessionID {
		g.mu.Unlock()
		logging.Warnw("ignoring finalize for inactive session", logging.SessionFields(sessionID, guildID)...)
		return
	}
	// Capture can end without RequestStop when the connection drops.
	g.state = Finalizing
	sess := *g.session
	g.mu.Unlock()

	ctx := logging.WithFields(r.ctx, logging.SessionFields(sess.ID, guildID)...)
	logging.InfowCtx(ctx, "finalizing session", "users", len(audio))

	res := Result{Session: sess, Stats: make([]words.UserStats, 0, len(audio))}
	for _, ua := range audio {
		name := r.names.DisplayName(guildID, ua.UserID)
		if r.stt.Audible(ua.Audio) {
			res.AnyAudio = true
		}
		text, ok, err := r.stt.Transcribe(ctx, ua.Audio)
		if err != nil {
			logging.WarnwCtx(ctx, "transcription failed, reporting user as silent",
				append(logging.UserFields(ua.UserID, name), "err", err)...)
		}
		if !ok {
			text = ""
		}
		st := words.Analyze(text, r.flagged)
		logging.DebugwCtx(ctx, "user transcribed", append(logging.UserFields(ua.UserID, name),
			"bytes", len(ua.Audio), "words", st.TotalWords)...)
		res.Stats = append(res.Stats, words.UserStats{UserID: ua.UserID, Name: name, Stats: st})
	}

	r.sink.SessionFinished(ctx, res)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session != nil && g.session.disconnectAfter && g.conn != nil {
		if err := g.conn.Disconnect(); err != nil {
			logging.WarnwCtx(ctx, "disconnect after finalize failed", "err", err)
		}
		g.conn = nil
	}
	g.state = Idle
	g.session = nil
	logging.InfowCtx(ctx, "session finished", "any_audio", res.AnyAudio, "duration", time.Since(sess.StartedAt).String())
}

// State reports the guild's current state.
func (r *Recorder) State(guildID string) State {
	g := r.guild(guildID)
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Connected reports whether the guild has a voice connection.
func (r *Recorder) Connected(guildID string) bool {
	g := r.guild(guildID)
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.conn != nil
}

// Active lists sessions that are recording or finalizing, oldest first.
func (r *Recorder) Active() []Session {
	r.mu.Lock()
	guilds := make([]*guildState, 0, len(r.guilds))
	for _, g := range r.guilds {
		guilds = append(guilds, g)
	}
	r.mu.Unlock()

	var out []Session
	for _, g := range guilds {
		g.mu.Lock()
		if g.session != nil {
			s := *g.session
			s.State = g.state.String()
			out = append(out, s)
		}
		g.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Close waits for in-flight finalize work, up to ctx, then disconnects every
// voice connection.
func (r *Recorder) Close(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logging.Warnw("shutdown before finalize completed")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, g := range r.guilds {
		g.mu.Lock()
		if g.conn != nil {
			if err := g.conn.Disconnect(); err != nil {
				logging.Warnw("disconnect on shutdown failed", "guild.id", id, "err", err)
			}
			g.conn = nil
		}
		g.mu.Unlock()
	}
}
