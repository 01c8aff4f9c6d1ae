// Package mcp exposes a read-only view of the bot over the Model Context
// Protocol: the daily tally preview, active recordings and the current mode.
package mcp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/discord-voice-wordtally/internal/logging"
	"github.com/discord-voice-wordtally/internal/report"
	"github.com/discord-voice-wordtally/internal/session"
	"github.com/discord-voice-wordtally/internal/words"
)

const (
	ToolDailyTally = "daily_tally"
	ToolSessions   = "sessions"
	ToolMode       = "mode"
)

type TallySource interface {
	Preview() []words.UserStats
}

type SessionSource interface {
	Active() []session.Session
}

type ModeSource interface {
	Current() report.Mode
}

type UserTally struct {
	UserID     string            `json:"user_id"`
	Name       string            `json:"name"`
	TotalWords int               `json:"total_words"`
	TopWords   []words.WordCount `json:"top_words"`
	Flagged    []words.WordCount `json:"flagged"`
}

type TallyOutput struct {
	Users []UserTally `json:"users"`
}

type SessionInfo struct {
	ID             string `json:"id"`
	GuildID        string `json:"guild_id"`
	VoiceChannelID string `json:"voice_channel_id"`
	TextChannelID  string `json:"text_channel_id"`
	StartedBy      string `json:"started_by"`
	StartedAt      string `json:"started_at"`
	State          string `json:"state"`
}

type SessionsOutput struct {
	Sessions []SessionInfo `json:"sessions"`
}

type ModeOutput struct {
	Mode string `json:"mode"`
}

type noInput struct{}

// NewServer registers the introspection tools. None of them mutate state;
// daily_tally does not clear the tally.
func NewServer(version string, tally TallySource, sessions SessionSource, mode ModeSource) *sdk.Server {
	server := sdk.NewServer(&sdk.Implementation{Name: "wordtally", Version: version}, nil)

	sdk.AddTool(server, &sdk.Tool{
		Name:        ToolDailyTally,
		Description: "Preview today's word leaderboard without resetting it",
	}, func(ctx context.Context, req *sdk.CallToolRequest, _ noInput) (*sdk.CallToolResult, TallyOutput, error) {
		out := TallyOutput{Users: []UserTally{}}
		for _, st := range tally.Preview() {
			out.Users = append(out.Users, UserTally{
				UserID:     st.UserID,
				Name:       st.Name,
				TotalWords: st.TotalWords,
				TopWords:   nonNil(st.TopWords),
				Flagged:    nonNil(st.Flagged),
			})
		}
		return nil, out, nil
	})

	sdk.AddTool(server, &sdk.Tool{
		Name:        ToolSessions,
		Description: "List recordings that are in progress or being finalized",
	}, func(ctx context.Context, req *sdk.CallToolRequest, _ noInput) (*sdk.CallToolResult, SessionsOutput, error) {
		out := SessionsOutput{Sessions: []SessionInfo{}}
		for _, s := range sessions.Active() {
			out.Sessions = append(out.Sessions, SessionInfo{
				ID:             s.ID,
				GuildID:        s.GuildID,
				VoiceChannelID: s.VoiceChannelID,
				TextChannelID:  s.TextChannelID,
				StartedBy:      s.StartedBy,
				StartedAt:      s.StartedAt.Format(time.RFC3339),
				State:          s.State,
			})
		}
		return nil, out, nil
	})

	sdk.AddTool(server, &sdk.Tool{
		Name:        ToolMode,
		Description: "Report whether holiday mode is on",
	}, func(ctx context.Context, req *sdk.CallToolRequest, _ noInput) (*sdk.CallToolResult, ModeOutput, error) {
		return nil, ModeOutput{Mode: mode.Current().String()}, nil
	})

	return server
}

func nonNil(wc []words.WordCount) []words.WordCount {
	if wc == nil {
		return []words.WordCount{}
	}
	return wc
}

// Handler serves /health and bridges each websocket on /mcp/ws to server.
// Sessions end when ctx is cancelled or the peer goes away.
func Handler(ctx context.Context, server *sdk.Server) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	upgrader := websocket.Upgrader{}
	mux.HandleFunc("/mcp/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Warnw("mcp: websocket upgrade failed", "err", err)
			return
		}
		go func() {
			ss, err := server.Connect(ctx, NewWebSocketTransport(conn), nil)
			if err != nil {
				logging.Warnw("mcp: server connect failed", "err", err)
				_ = conn.Close()
				return
			}
			stop := context.AfterFunc(ctx, func() { _ = ss.Close() })
			defer stop()
			if err := ss.Wait(); err != nil {
				logging.Debugw("mcp: session ended", "err", err)
			}
		}()
	})
	return mux
}

// Serve listens on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logging.Infow("mcp: listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
