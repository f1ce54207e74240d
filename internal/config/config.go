package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode      string          `mapstructure:"mode"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Session   SessionConfig   `mapstructure:"session"`
	Room      RoomConfig      `mapstructure:"room"`
	Messaging MessagingConfig `mapstructure:"messaging"`
	Media     MediaConfig     `mapstructure:"media"`
	Control   ControlConfig   `mapstructure:"control"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Log       LogConfig       `mapstructure:"log"`
}

type BackendConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	AccessToken string        `mapstructure:"access_token"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type SessionConfig struct {
	AppID         string        `mapstructure:"app_id"`
	JoinTimeout   time.Duration `mapstructure:"join_timeout"`
	DeviceTimeout time.Duration `mapstructure:"device_timeout"`
	LeaveTimeout  time.Duration `mapstructure:"leave_timeout"`
}

type RoomConfig struct {
	StatusInterval      time.Duration `mapstructure:"status_interval"`
	RosterInterval      time.Duration `mapstructure:"roster_interval"`
	TickInterval        time.Duration `mapstructure:"tick_interval"`
	RosterDegradedAfter int           `mapstructure:"roster_degraded_after"`
}

// Side-channel transports.
const (
	TransportWS       = "ws"
	TransportRedis    = "redis"
	TransportLoopback = "loopback"
)

type MessagingConfig struct {
	Transport   string `mapstructure:"transport"`
	URL         string `mapstructure:"url"`
	RedisAddr   string `mapstructure:"redis_addr"`
	RedisPrefix string `mapstructure:"redis_prefix"`
}

type MediaConfig struct {
	SignalURL      string   `mapstructure:"signal_url"`
	ICEServers     []string `mapstructure:"ice_servers"`
	CameraFile     string   `mapstructure:"camera_file"`
	MicrophoneFile string   `mapstructure:"microphone_file"`
	ScreenDir      string   `mapstructure:"screen_dir"`
	Synthetic      bool     `mapstructure:"synthetic"`
}

type ControlConfig struct {
	Listen     string        `mapstructure:"listen"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
}

type RelayConfig struct {
	Listen          string        `mapstructure:"listen"`
	Secret          string        `mapstructure:"secret"`
	ReadLimit       int64         `mapstructure:"read_limit"`
	PingPeriod      time.Duration `mapstructure:"ping_period"`
	SendBuffer      int           `mapstructure:"send_buffer"`
	PublishLimit    int           `mapstructure:"publish_limit"`
	PublishInterval time.Duration `mapstructure:"publish_interval"`
	// Policy is "kick" or "drop" for subscribers that fall behind.
	Policy string `mapstructure:"policy"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")

	v.SetDefault("backend.base_url", "http://localhost:8080")
	v.SetDefault("backend.access_token", "")
	v.SetDefault("backend.timeout", "10s")

	v.SetDefault("session.app_id", "connectra")
	v.SetDefault("session.join_timeout", "15s")
	v.SetDefault("session.device_timeout", "10s")
	v.SetDefault("session.leave_timeout", "5s")

	v.SetDefault("room.status_interval", "10s")
	v.SetDefault("room.roster_interval", "5s")
	v.SetDefault("room.tick_interval", "1s")
	v.SetDefault("room.roster_degraded_after", 6)

	v.SetDefault("messaging.transport", TransportWS)
	v.SetDefault("messaging.url", "ws://localhost:8090/ws")
	v.SetDefault("messaging.redis_addr", "localhost:6379")
	v.SetDefault("messaging.redis_prefix", "connectra")

	v.SetDefault("media.signal_url", "ws://localhost:7000/ws")
	v.SetDefault("media.ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("media.camera_file", "")
	v.SetDefault("media.microphone_file", "")
	v.SetDefault("media.screen_dir", "")
	v.SetDefault("media.synthetic", false)

	v.SetDefault("control.listen", "127.0.0.1:8765")
	v.SetDefault("control.static_path", "")
	v.SetDefault("control.read_limit", 4096)
	v.SetDefault("control.ping_period", "54s")

	v.SetDefault("relay.listen", ":8090")
	v.SetDefault("relay.secret", "change-me")
	v.SetDefault("relay.read_limit", 32768)
	v.SetDefault("relay.ping_period", "54s")
	v.SetDefault("relay.send_buffer", 256)
	v.SetDefault("relay.publish_limit", 20)
	v.SetDefault("relay.publish_interval", "1s")
	v.SetDefault("relay.policy", "kick")

	v.SetDefault("log.level", "info")
}

// Load reads config/config.<CONFIG_ENV>.yaml, dev when unset.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile reads fileName over the defaults. A missing file is not an
// error. CONNECTRA_* variables override both, e.g. CONNECTRA_BACKEND_BASE_URL.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("CONNECTRA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config %s: %w", fileName, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("config loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Str("backend", cfg.Backend.BaseURL).
		Str("transport", cfg.Messaging.Transport).Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Messaging.Transport {
	case TransportWS, TransportRedis, TransportLoopback:
	default:
		return fmt.Errorf("messaging.transport %q: want ws, redis or loopback", c.Messaging.Transport)
	}
	switch c.Relay.Policy {
	case "kick", "drop":
	default:
		return fmt.Errorf("relay.policy %q: want kick or drop", c.Relay.Policy)
	}
	return nil
}
