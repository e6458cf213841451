package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/wricardo/boardgame-relay/game/state"
)

var (
	ErrConfigNotFound = errors.New("configuration not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// EnvPrefix is prepended to every environment override, e.g. RELAY_SERVER_PORT
const EnvPrefix = "RELAY"

type Settings struct {
	Server    ServerSettings    `mapstructure:"server"`
	Rooms     RoomSettings      `mapstructure:"rooms"`
	Board     state.Setup       `mapstructure:"board"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Ngrok     NgrokSettings     `mapstructure:"ngrok"`
	Log       LogSettings       `mapstructure:"log"`
}

type ServerSettings struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	StaticDir      string        `mapstructure:"static_dir"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ReadLimit      int64         `mapstructure:"read_limit"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

type RoomSettings struct {
	CodeLength   int           `mapstructure:"code_length"`
	ForfeitGrace time.Duration `mapstructure:"forfeit_grace"`
	WinGrace     time.Duration `mapstructure:"win_grace"`
	ReapInterval time.Duration `mapstructure:"reap_interval"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// RateLimitSettings bounds inbound events per connection. A zero rate
// disables limiting.
type RateLimitSettings struct {
	EventsPerSecond float64 `mapstructure:"events_per_second"`
	Burst           int     `mapstructure:"burst"`
}

type NgrokSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	Domain  string `mapstructure:"domain"`
}

type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Addr returns host:port for the HTTP listener
func (s ServerSettings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func setDefaults(v *viper.Viper) {
	board := state.DefaultSetup()

	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.static_dir", "./static")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.read_limit", 64*1024)
	v.SetDefault("server.ping_period", "54s")
	v.SetDefault("server.send_buffer", 256)

	v.SetDefault("rooms.code_length", 5)
	v.SetDefault("rooms.forfeit_grace", "3s")
	v.SetDefault("rooms.win_grace", "30s")
	v.SetDefault("rooms.reap_interval", "1m")
	v.SetDefault("rooms.idle_timeout", "30m")

	v.SetDefault("board.board_size", board.BoardSize)
	v.SetDefault("board.values", board.Values)

	v.SetDefault("rate_limit.events_per_second", 20.0)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("ngrok.enabled", false)
	v.SetDefault("ngrok.domain", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads settings from path, or from relay.yaml in the working directory
// or ./config when path is empty. A missing default file is not an error; a
// missing explicit file is. RELAY_* environment variables override both.
func Load(path string) (*Settings, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	} else {
		v.SetConfigName("relay")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks that the settings can run a relay
func (s *Settings) Validate() error {
	var problems []string

	if s.Server.Port < 0 || s.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", s.Server.Port))
	}
	if s.Server.SendBuffer <= 0 {
		problems = append(problems, "server.send_buffer must be positive")
	}
	if s.Rooms.CodeLength < 4 || s.Rooms.CodeLength > 12 {
		problems = append(problems, "rooms.code_length must be between 4 and 12")
	}
	for name, d := range map[string]time.Duration{
		"rooms.forfeit_grace": s.Rooms.ForfeitGrace,
		"rooms.win_grace":     s.Rooms.WinGrace,
		"rooms.reap_interval": s.Rooms.ReapInterval,
		"rooms.idle_timeout":  s.Rooms.IdleTimeout,
	} {
		if d <= 0 {
			problems = append(problems, name+" must be positive")
		}
	}
	if err := s.Board.Validate(); err != nil {
		problems = append(problems, "board: "+err.Error())
	}
	if s.RateLimit.EventsPerSecond < 0 || s.RateLimit.Burst < 0 {
		problems = append(problems, "rate_limit values must not be negative")
	}
	switch s.Log.Format {
	case "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("log.format %q must be console or json", s.Log.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// LoadEnvFiles loads .env style files into the process environment without
// overriding variables that are already set. Missing files are skipped.
// It returns the files that were loaded.
func LoadEnvFiles(files ...string) ([]string, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}

	var loaded []string
	for _, f := range files {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return loaded, fmt.Errorf("loading %s: %w", f, err)
		}
		loaded = append(loaded, f)
	}
	return loaded, nil
}
