// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"telegram-casino-bot/internal/game/derby"
	"telegram-casino-bot/internal/game/heist"
	"telegram-casino-bot/internal/lobby"
)

// Config holds all application configuration.
type Config struct {
	Bot       BotConfig       `mapstructure:"bot"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Whitelist WhitelistConfig `mapstructure:"whitelist"`
	Daily     DailyConfig     `mapstructure:"daily"`
	Lobby     LobbyConfig     `mapstructure:"lobby"`
	Games     GamesConfig     `mapstructure:"games"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// BotConfig holds Telegram bot configuration.
type BotConfig struct {
	Token string `mapstructure:"token"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// AdminConfig holds admin user configuration.
type AdminConfig struct {
	IDs []int64 `mapstructure:"ids"`
}

// WhitelistConfig holds chat whitelist configuration.
type WhitelistConfig struct {
	Chats []int64 `mapstructure:"chats"`
}

// DailyConfig holds daily reward configuration.
type DailyConfig struct {
	Reward        int64 `mapstructure:"reward"`
	CooldownHours int   `mapstructure:"cooldown_hours"`
}

// LobbyConfig holds session orchestration settings shared by every game.
type LobbyConfig struct {
	MaxAge          time.Duration `mapstructure:"max_age"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	SimulateTimeout time.Duration `mapstructure:"simulate_timeout"`
	MaxExtension    time.Duration `mapstructure:"max_extension"`
	Retry           RetryConfig   `mapstructure:"retry"`
}

// RetryConfig bounds disbursement retries.
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

func (r RetryConfig) validate() error {
	if r.MaxAttempts < 1 {
		return fmt.Errorf("lobby.retry.max_attempts must be at least 1, got %d", r.MaxAttempts)
	}
	if r.InitialInterval <= 0 || r.MaxInterval < r.InitialInterval {
		return fmt.Errorf("lobby.retry intervals must satisfy 0 < initial_interval <= max_interval, got %s and %s",
			r.InitialInterval, r.MaxInterval)
	}
	return nil
}

// Policy converts the retry settings into the settlement engine's policy.
func (r RetryConfig) Policy() lobby.RetryPolicy {
	return lobby.RetryPolicy{
		MaxAttempts:     r.MaxAttempts,
		InitialInterval: r.InitialInterval,
		MaxInterval:     r.MaxInterval,
	}.Bounded()
}

// SessionConfig is the per-game lobby shape.
type SessionConfig struct {
	MinParticipants int           `mapstructure:"min_participants"`
	Capacity        int           `mapstructure:"capacity"`
	FormingWindow   time.Duration `mapstructure:"forming_window"`
	MinStake        int64         `mapstructure:"min_stake"`
	MaxStake        int64         `mapstructure:"max_stake"`
}

// Apply overlays the non-zero fields onto base.
func (s SessionConfig) Apply(base lobby.Config) lobby.Config {
	if s.MinParticipants > 0 {
		base.MinParticipants = s.MinParticipants
	}
	if s.Capacity > 0 {
		base.Capacity = s.Capacity
	}
	if s.FormingWindow > 0 {
		base.FormingWindow = s.FormingWindow
	}
	if s.MinStake > 0 {
		base.MinStake = s.MinStake
	}
	if s.MaxStake > 0 {
		base.MaxStake = s.MaxStake
	}
	return base
}

// GamesConfig holds game-specific configuration.
type GamesConfig struct {
	Derby DerbyConfig `mapstructure:"derby"`
	Heist HeistConfig `mapstructure:"heist"`
	SicBo SicBoConfig `mapstructure:"sicbo"`
}

// HorseConfig is one runner; odds are decimal strings such as "2.5".
type HorseConfig struct {
	Name string `mapstructure:"name"`
	Odds string `mapstructure:"odds"`
}

// DerbyConfig holds horse racing configuration.
type DerbyConfig struct {
	Horses      []HorseConfig `mapstructure:"horses"`
	TrackLength int           `mapstructure:"track_length"`
	MaxTicks    int           `mapstructure:"max_ticks"`
	Session     SessionConfig `mapstructure:"session"`
}

// HeistConfig holds heist configuration.
type HeistConfig struct {
	Odds           string        `mapstructure:"odds"`
	PerMemberBonus int           `mapstructure:"per_member_bonus"`
	MaxChance      int           `mapstructure:"max_chance"`
	Session        SessionConfig `mapstructure:"session"`
}

// SicBoConfig holds sic bo game configuration.
type SicBoConfig struct {
	Session SessionConfig `mapstructure:"session"`
}

// KafkaConfig configures the phase change event stream. Empty brokers disable it.
type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Enabled reports whether any broker is configured.
func (k *KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// RedisConfig configures the snapshot broadcaster. Empty addr disables it.
type RedisConfig struct {
	Addr          string `mapstructure:"addr"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

// Enabled reports whether a redis address is configured.
func (r *RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// MetricsConfig configures the prometheus endpoint. Empty addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// e.g. BOT_TOKEN, DATABASE_HOST, LOBBY_MAX_AGE
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - we can use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Lobby.Retry.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.token", "")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "casino")
	v.SetDefault("database.name", "casino")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	// Daily reward defaults
	v.SetDefault("daily.reward", 500)
	v.SetDefault("daily.cooldown_hours", 24)

	// Lobby defaults
	v.SetDefault("lobby.max_age", "10m")
	v.SetDefault("lobby.sweep_interval", "1m")
	v.SetDefault("lobby.simulate_timeout", "5s")
	v.SetDefault("lobby.max_extension", "2m")
	v.SetDefault("lobby.retry.max_attempts", 5)
	v.SetDefault("lobby.retry.initial_interval", "200ms")
	v.SetDefault("lobby.retry.max_interval", "5s")

	// Game defaults
	v.SetDefault("games.derby.track_length", derby.DefaultTrackLength)
	v.SetDefault("games.derby.max_ticks", derby.DefaultMaxTicks)
	v.SetDefault("games.heist.odds", "2.5")
	v.SetDefault("games.heist.per_member_bonus", 5)
	v.SetDefault("games.heist.max_chance", 95)

	// Event stream defaults
	v.SetDefault("kafka.topic", "lobby_phase_changes")
	v.SetDefault("kafka.write_timeout", "5s")
	v.SetDefault("redis.channel_prefix", "lobby")
}

// Derby builds the horse racing configuration, falling back to the stock field.
func (c *Config) Derby() (derby.Config, error) {
	dc := derby.Config{
		Horses:      derby.DefaultHorses(),
		TrackLength: c.Games.Derby.TrackLength,
		MaxTicks:    c.Games.Derby.MaxTicks,
		Lobby:       c.Games.Derby.Session.Apply(derby.DefaultLobby()),
	}
	if len(c.Games.Derby.Horses) == 0 {
		return dc, nil
	}
	dc.Horses = make([]derby.Horse, 0, len(c.Games.Derby.Horses))
	for _, h := range c.Games.Derby.Horses {
		odds, err := lobby.ParseOdds(h.Odds)
		if err != nil {
			return derby.Config{}, fmt.Errorf("horse %q: %w", h.Name, err)
		}
		dc.Horses = append(dc.Horses, derby.Horse{Name: h.Name, Odds: odds})
	}
	return dc, nil
}

// Heist builds the heist configuration on top of the stock stages.
func (c *Config) Heist() (heist.Config, error) {
	hc := heist.DefaultConfig()
	if c.Games.Heist.Odds != "" {
		odds, err := lobby.ParseOdds(c.Games.Heist.Odds)
		if err != nil {
			return heist.Config{}, fmt.Errorf("heist odds: %w", err)
		}
		hc.Odds = odds
	}
	if c.Games.Heist.PerMemberBonus > 0 {
		hc.PerMemberBonus = c.Games.Heist.PerMemberBonus
	}
	if c.Games.Heist.MaxChance > 0 {
		hc.MaxChance = c.Games.Heist.MaxChance
	}
	hc.Lobby = c.Games.Heist.Session.Apply(hc.Lobby)
	return hc, nil
}

// IsAdmin checks if a user ID is in the admin list.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Admin.IDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsChatAllowed checks if a chat ID is in the whitelist.
func (c *Config) IsChatAllowed(chatID int64) bool {
	// Empty whitelist means all chats are allowed
	if len(c.Whitelist.Chats) == 0 {
		return true
	}
	for _, id := range c.Whitelist.Chats {
		if id == chatID {
			return true
		}
	}
	return false
}
