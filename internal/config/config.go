package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// DefaultFlaggedWords is used when FLAGGED_WORDS is unset.
var DefaultFlaggedWords = []string{
	"fuck", "fucking", "fucker", "fucked", "fucks", "motherfucker", "motherfucking",
	"shit", "shitting", "shitter", "bullshit",
	"ass", "asshole", "asses",
	"bitch", "bitches", "bitching",
	"bastard", "bastards",
	"damn", "goddamn", "crap",
	"dick", "dicks", "cock", "cocks", "pussy", "pussies", "cunt", "cunts",
	"piss", "pissed", "whore", "whores", "slut", "sluts", "twat", "twats",
	"nigger", "nigga", "faggot", "fag", "retard", "retarded",
	"spic", "kike", "chink", "gook", "wetback", "dyke", "tranny",
}

// Config holds everything the bot reads from the environment.
type Config struct {
	DiscordToken     string   `env:"DISCORD_BOT_TOKEN" validate:"required"`
	GuildID          string   `env:"GUILD_ID" validate:"required,numeric"`
	SummaryChannelID string   `env:"SUMMARY_CHANNEL_ID" validate:"omitempty,numeric"`
	ModRoleIDs       []string `env:"MOD_ROLE_IDS" validate:"dive,numeric"`
	FlaggedWords     []string `env:"FLAGGED_WORDS"`

	WhisperURL    string        `env:"WHISPER_URL" validate:"required,url"`
	WhisperModel  string        `env:"WHISPER_MODEL"`
	Language      string        `env:"STT_LANGUAGE"`
	BeamSize      int           `env:"STT_BEAM_SIZE" validate:"min=1,max=10"`
	STTTimeout    time.Duration `env:"STT_TIMEOUT" validate:"gt=0"`
	MinAudioBytes int           `env:"MIN_AUDIO_BYTES" validate:"min=0"`

	LeaderboardHour     int            `env:"LEADERBOARD_TIME" validate:"min=0,max=23"`
	LeaderboardMinute   int            `env:"LEADERBOARD_TIME" validate:"min=0,max=59"`
	LeaderboardLocation *time.Location `env:"LEADERBOARD_TZ" validate:"required"`

	TallyDBPath   string `env:"TALLY_DB_PATH"`
	MCPListenAddr string `env:"MCP_LISTEN_ADDR" validate:"omitempty,hostname_port"`
	LogLevel      string `env:"LOG_LEVEL" validate:"omitempty,oneof=debug info warn error"`
}

// Load reads an optional .env file, then the process environment, applies
// defaults and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment without touching
// .env files.
func FromEnv() (*Config, error) {
	cfg := &Config{
		DiscordToken:     strings.TrimSpace(os.Getenv("DISCORD_BOT_TOKEN")),
		GuildID:          strings.TrimSpace(os.Getenv("GUILD_ID")),
		SummaryChannelID: strings.TrimSpace(os.Getenv("SUMMARY_CHANNEL_ID")),
		ModRoleIDs:       splitList(os.Getenv("MOD_ROLE_IDS")),
		WhisperURL:       strings.TrimSpace(os.Getenv("WHISPER_URL")),
		WhisperModel:     envOrDefault("WHISPER_MODEL", "base.en"),
		Language:         envOrDefault("STT_LANGUAGE", "en"),
		TallyDBPath:      strings.TrimSpace(os.Getenv("TALLY_DB_PATH")),
		MCPListenAddr:    strings.TrimSpace(os.Getenv("MCP_LISTEN_ADDR")),
		LogLevel:         strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
	}

	var err error
	if cfg.BeamSize, err = envOrDefaultInt("STT_BEAM_SIZE", 5); err != nil {
		return nil, err
	}
	if cfg.MinAudioBytes, err = envOrDefaultInt("MIN_AUDIO_BYTES", 1000); err != nil {
		return nil, err
	}
	if cfg.STTTimeout, err = envDuration("STT_TIMEOUT", 2*time.Minute); err != nil {
		return nil, err
	}
	if cfg.LeaderboardHour, cfg.LeaderboardMinute, err = parseClock(envOrDefault("LEADERBOARD_TIME", "00:00")); err != nil {
		return nil, err
	}
	tz := envOrDefault("LEADERBOARD_TZ", "UTC")
	if cfg.LeaderboardLocation, err = time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("LEADERBOARD_TZ %q: %w", tz, err)
	}

	if raw, ok := os.LookupEnv("FLAGGED_WORDS"); ok {
		cfg.FlaggedWords = splitList(strings.ToLower(raw))
	} else {
		cfg.FlaggedWords = append([]string(nil), DefaultFlaggedWords...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report failures by environment key rather than Go field name.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := fld.Tag.Get("env"); name != "" {
			return name
		}
		return fld.Name
	})
	return v
}

// Validate checks the struct tags and flattens validator errors into one
// message naming each offending key.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("invalid config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", e.Field(), e.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func envOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// splitList splits a comma separated value, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseClock(v string) (int, int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, 0, fmt.Errorf("LEADERBOARD_TIME %q: want HH:MM", v)
	}
	return t.Hour(), t.Minute(), nil
}
