// Package config provides Viper-based configuration loading for the game server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds process-wide settings.
type ServerConfig struct {
	// Name identifies this server instance in logs.
	Name string `mapstructure:"name"`
	// ShutdownTimeout bounds how long services get to stop.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	// Enabled turns on account and character persistence. When false every
	// login is a guest character.
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// TelnetConfig holds Telnet acceptor settings.
type TelnetConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// ReadTimeout is the per-read timeout for Telnet connections.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the per-write timeout for Telnet connections.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the "host:port" listen address.
func (t TelnetConfig) Addr() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// WebsocketConfig holds the browser transport settings.
type WebsocketConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	// Path is the HTTP path upgraded to a websocket.
	Path string `mapstructure:"path"`
	// ReadLimit caps the size of one inbound frame in bytes.
	ReadLimit int64 `mapstructure:"read_limit"`
	// PingInterval is how often idle connections are pinged.
	PingInterval time.Duration `mapstructure:"ping_interval"`
}

// Addr returns the "host:port" listen address.
func (w WebsocketConfig) Addr() string {
	return fmt.Sprintf("%s:%d", w.Host, w.Port)
}

// AdminConfig holds the gRPC admin listener settings.
type AdminConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// Addr returns the "host:port" listen address.
func (a AdminConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// SchedulerConfig tunes the event scheduler.
type SchedulerConfig struct {
	// Granularity is the resolution event due times are rounded up to.
	Granularity time.Duration `mapstructure:"granularity"`
	// MaxWait bounds how long the loop sleeps without re-checking the queue.
	MaxWait time.Duration `mapstructure:"max_wait"`
	// InitialCapacity sizes the event queue before its first growth.
	InitialCapacity int `mapstructure:"initial_capacity"`
}

// GameConfig holds world content locations and gameplay tunables.
type GameConfig struct {
	MapFile    string `mapstructure:"map_file"`
	CatalogDir string `mapstructure:"catalog_dir"`
	// ScriptDir holds scripted rules; empty disables scripting.
	ScriptDir string `mapstructure:"script_dir"`
	// ScriptInstructionLimit caps opcodes per rule invocation; 0 uses the default.
	ScriptInstructionLimit int `mapstructure:"script_instruction_limit"`
	ViewRange              int `mapstructure:"view_range"`
	HearingRange           int `mapstructure:"hearing_range"`
	SpeechCooldown time.Duration `mapstructure:"speech_cooldown"`
	ItemCooldown   time.Duration `mapstructure:"item_cooldown"`
	// SessionBuffer is the number of outbound lines buffered per player.
	SessionBuffer int `mapstructure:"session_buffer"`
	// StartHour is the time of day when the server starts, in [0, 23].
	StartHour int `mapstructure:"start_hour"`
	// HourLength is the real time one game hour lasts.
	HourLength time.Duration `mapstructure:"hour_length"`
}

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Telnet    TelnetConfig    `mapstructure:"telnet"`
	Websocket WebsocketConfig `mapstructure:"websocket"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Game      GameConfig      `mapstructure:"game"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string
	for _, check := range []func() []string{
		func() []string { return validateServer(c.Server) },
		func() []string { return validateDatabase(c.Database) },
		func() []string { return validatePort("telnet", c.Telnet.Port, true) },
		func() []string { return validateWebsocket(c.Websocket) },
		func() []string { return validatePort("admin", c.Admin.Port, c.Admin.Enabled) },
		func() []string { return validateLogging(c.Logging) },
		func() []string { return validateScheduler(c.Scheduler) },
		func() []string { return validateGame(c.Game) },
	} {
		errs = append(errs, check()...)
	}
	if c.Telnet.ReadTimeout < 0 || c.Telnet.WriteTimeout < 0 {
		errs = append(errs, "telnet timeouts must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) []string {
	var errs []string
	if s.Name == "" {
		errs = append(errs, "server.name must not be empty")
	}
	if s.ShutdownTimeout <= 0 {
		errs = append(errs, "server.shutdown_timeout must be > 0")
	}
	return errs
}

func validateDatabase(d DatabaseConfig) []string {
	if !d.Enabled {
		return nil
	}
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	errs = append(errs, validatePort("database", d.Port, true)...)
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 || d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must be within [0, max_conns]")
	}
	return errs
}

func validatePort(section string, port int, required bool) []string {
	if !required {
		return nil
	}
	if port < 1 || port > 65535 {
		return []string{fmt.Sprintf("%s.port must be 1-65535, got %d", section, port)}
	}
	return nil
}

func validateWebsocket(w WebsocketConfig) []string {
	if !w.Enabled {
		return nil
	}
	errs := validatePort("websocket", w.Port, true)
	if !strings.HasPrefix(w.Path, "/") {
		errs = append(errs, fmt.Sprintf("websocket.path must start with /, got %q", w.Path))
	}
	if w.ReadLimit < 1 {
		errs = append(errs, "websocket.read_limit must be >= 1")
	}
	if w.PingInterval <= 0 {
		errs = append(errs, "websocket.ping_interval must be > 0")
	}
	return errs
}

func validateLogging(l LoggingConfig) []string {
	var errs []string
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		errs = append(errs, fmt.Sprintf("logging.level must be one of [debug, info, warn, error], got %q", l.Level))
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		errs = append(errs, fmt.Sprintf("logging.format must be one of [json, console], got %q", l.Format))
	}
	return errs
}

func validateScheduler(s SchedulerConfig) []string {
	var errs []string
	if s.Granularity < time.Millisecond {
		errs = append(errs, fmt.Sprintf("scheduler.granularity must be >= 1ms, got %s", s.Granularity))
	}
	if s.MaxWait <= 0 {
		errs = append(errs, "scheduler.max_wait must be > 0")
	}
	if s.InitialCapacity < 1 {
		errs = append(errs, fmt.Sprintf("scheduler.initial_capacity must be >= 1, got %d", s.InitialCapacity))
	}
	return errs
}

func validateGame(g GameConfig) []string {
	var errs []string
	if g.MapFile == "" {
		errs = append(errs, "game.map_file must not be empty")
	}
	if g.CatalogDir == "" {
		errs = append(errs, "game.catalog_dir must not be empty")
	}
	if g.ScriptInstructionLimit < 0 {
		errs = append(errs, "game.script_instruction_limit must be >= 0")
	}
	if g.ViewRange < 1 || g.HearingRange < 1 {
		errs = append(errs, "game.view_range and game.hearing_range must be >= 1")
	}
	if g.SpeechCooldown < 0 || g.ItemCooldown < 0 {
		errs = append(errs, "game cooldowns must not be negative")
	}
	if g.SessionBuffer < 1 {
		errs = append(errs, "game.session_buffer must be >= 1")
	}
	if g.StartHour < 0 || g.StartHour > 23 {
		errs = append(errs, fmt.Sprintf("game.start_hour must be in [0, 23], got %d", g.StartHour))
	}
	if g.HourLength <= 0 {
		errs = append(errs, "game.hour_length must be > 0")
	}
	return errs
}

// Load reads configuration from the given file path, applies FIBULA_
// environment variable overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := NewViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromViper(v)
}

// NewViper returns a Viper instance with defaults and environment overrides
// applied but no config file.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("FIBULA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "fibula")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "fibula")
	v.SetDefault("database.password", "fibula")
	v.SetDefault("database.name", "fibula")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("telnet.host", "0.0.0.0")
	v.SetDefault("telnet.port", 7171)
	v.SetDefault("telnet.read_timeout", "15m")
	v.SetDefault("telnet.write_timeout", "30s")

	v.SetDefault("websocket.enabled", false)
	v.SetDefault("websocket.host", "0.0.0.0")
	v.SetDefault("websocket.port", 7172)
	v.SetDefault("websocket.path", "/ws")
	v.SetDefault("websocket.read_limit", 1024)
	v.SetDefault("websocket.ping_interval", "30s")

	v.SetDefault("admin.enabled", false)
	v.SetDefault("admin.host", "127.0.0.1")
	v.SetDefault("admin.port", 7173)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.granularity", "100ms")
	v.SetDefault("scheduler.max_wait", "1s")
	v.SetDefault("scheduler.initial_capacity", 64)

	v.SetDefault("game.map_file", "content/maps/fibula.yaml")
	v.SetDefault("game.catalog_dir", "content/catalog")
	v.SetDefault("game.script_dir", "content/scripts")
	v.SetDefault("game.script_instruction_limit", 0)
	v.SetDefault("game.view_range", 8)
	v.SetDefault("game.hearing_range", 6)
	v.SetDefault("game.speech_cooldown", "1s")
	v.SetDefault("game.item_cooldown", "1s")
	v.SetDefault("game.session_buffer", 64)
	v.SetDefault("game.start_hour", 8)
	v.SetDefault("game.hour_length", "2m")
}
