package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/discord-voice-wordtally/internal/bot"
	"github.com/discord-voice-wordtally/internal/config"
	"github.com/discord-voice-wordtally/internal/logging"
	"github.com/discord-voice-wordtally/internal/mcp"
	"github.com/discord-voice-wordtally/internal/report"
	"github.com/discord-voice-wordtally/internal/session"
	"github.com/discord-voice-wordtally/internal/store"
	"github.com/discord-voice-wordtally/internal/tally"
	"github.com/discord-voice-wordtally/internal/transcribe"
	"github.com/discord-voice-wordtally/internal/voice"
	"github.com/discord-voice-wordtally/internal/words"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	// Logging reads LOG_LEVEL, which may come from .env.
	logging.Init()
	defer logging.Sync()
	if err != nil {
		logging.FatalExitf("invalid configuration", "err", err)
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		logging.FatalExitf("discordgo.New failed", "err", err)
	}
	// Guilds + GuildVoiceStates are enough to locate members in voice and to
	// receive speaking updates. Nicknames fall back to REST lookups.
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	logging.Infow("using gateway intents", "intents", dg.Identify.Intents)

	resolver := voice.NewResolver(dg)
	flagged := words.NewFlaggedSet(cfg.FlaggedWords)
	mode := &report.ModeState{}
	dest := report.NewDestinations(cfg.SummaryChannelID, resolver.ChannelExists)
	pub := report.NewPublisher(bot.NewDiscordSender(dg, resolver))

	var tallyStore tally.Store
	var db *store.Store
	if cfg.TallyDBPath != "" {
		db, err = store.Open(cfg.TallyDBPath)
		if err != nil {
			logging.FatalExitf("open tally store failed", "path", cfg.TallyDBPath, "err", err)
		}
		tallyStore = db
	}
	agg := tally.New(flagged, dest, pub, tallyStore)
	if err := agg.Restore(rootCtx); err != nil {
		logging.Warnw("tally restore failed, starting empty", "err", err)
	}

	stt := &transcribe.Adapter{
		Engine: &transcribe.WhisperEngine{
			URL:      cfg.WhisperURL,
			Model:    cfg.WhisperModel,
			Language: cfg.Language,
			BeamSize: cfg.BeamSize,
			Client:   &http.Client{},
		},
		MinBytes: cfg.MinAudioBytes,
		Timeout:  cfg.STTTimeout,
	}

	platform := voice.NewPlatform(rootCtx, dg, nil)
	pipeline := bot.NewPipeline(mode, dest, pub, agg)
	rec := session.NewRecorder(rootCtx, platform, stt, resolver, pipeline, flagged)
	ctrl := bot.NewController(rec, mode, dest, cfg.ModRoleIDs)
	handler := bot.NewHandler(rootCtx, ctrl, resolver, cfg.GuildID)
	dg.AddHandler(handler.OnInteraction)

	logging.Infow("opening discord session")
	if err := dg.Open(); err != nil {
		logging.FatalExitf("discord session open failed", "err", err)
	}
	if err := handler.Register(dg); err != nil {
		logging.FatalExitf("slash command registration failed", "err", err)
	}

	var workers []chan struct{}
	spawn := func(fn func()) {
		done := make(chan struct{})
		workers = append(workers, done)
		go func() {
			defer close(done)
			fn()
		}()
	}

	schedule := tally.Schedule{Hour: cfg.LeaderboardHour, Minute: cfg.LeaderboardMinute, Location: cfg.LeaderboardLocation}
	spawn(func() { agg.Run(rootCtx, schedule) })

	if cfg.MCPListenAddr != "" {
		srv := mcp.NewServer(version, agg, rec, mode)
		spawn(func() {
			if err := mcp.Serve(rootCtx, cfg.MCPListenAddr, mcp.Handler(rootCtx, srv)); err != nil {
				logging.Errorw("mcp server stopped", "err", err)
			}
		})
	}

	logging.Infow("bot ready", "guild.id", cfg.GuildID, "version", version)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logging.Infow("shutdown signal received")

	rootCancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, w := range workers {
			<-w
		}
		closeCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
		rec.Close(closeCtx)
		cancel()
		if err := dg.Close(); err != nil {
			logging.Warnw("discord session close error", "err", err)
		}
		if db != nil {
			if err := db.Close(); err != nil {
				logging.Warnw("tally store close error", "err", err)
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logging.Warnw("shutdown timed out after 10s; forcing exit")
	}
}
