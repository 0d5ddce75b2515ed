package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	LogLevel   string        `mapstructure:"log_level"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	SendBuffer int           `mapstructure:"send_buffer"`
	Secret     string        `mapstructure:"secret"`

	JWTSecret    string `mapstructure:"jwt_secret"`
	JWTAlgorithm string `mapstructure:"jwt_algorithm"`

	SQLitePath string `mapstructure:"sqlite_path"`
	RedisURL   string `mapstructure:"redis_url"`

	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Twilio   TwilioConfig   `mapstructure:"twilio"`
	Outbreak OutbreakConfig `mapstructure:"outbreak"`
	Chat     ChatConfig     `mapstructure:"chat"`

	ICEServers []ICEServer `mapstructure:"ice_servers"`
}

type MQTTConfig struct {
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type TwilioConfig struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	FromNumber string `mapstructure:"from_number"`
	BaseURL    string `mapstructure:"base_url"`
}

type OutbreakConfig struct {
	Threshold int           `mapstructure:"threshold"`
	RadiusKm  float64       `mapstructure:"radius_km"`
	Window    time.Duration `mapstructure:"window"`
	Retention time.Duration `mapstructure:"retention"`
	Workers   int           `mapstructure:"workers"`
}

type ChatConfig struct {
	Limit    int           `mapstructure:"limit"`
	Interval time.Duration `mapstructure:"interval"`
}

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

func Load() (*Config, error) {
	// .env is a development convenience; a missing file is fine.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("FARMPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("secret", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_algorithm", "HS256")
	v.SetDefault("sqlite_path", "farmpulse.db")
	v.SetDefault("redis_url", "")

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "farmpulse-relay")
	v.SetDefault("mqtt.topic_prefix", "farmpulse/push")

	v.SetDefault("smtp.host", "smtp.gmail.com")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.user", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "noreply@farmpulse.ai")

	v.SetDefault("twilio.account_sid", "")
	v.SetDefault("twilio.auth_token", "")
	v.SetDefault("twilio.from_number", "")
	v.SetDefault("twilio.base_url", "https://api.twilio.com")

	v.SetDefault("outbreak.threshold", 5)
	v.SetDefault("outbreak.radius_km", 50.0)
	v.SetDefault("outbreak.window", "168h")
	v.SetDefault("outbreak.retention", "336h")
	v.SetDefault("outbreak.workers", 8)

	v.SetDefault("chat.limit", 30)
	v.SetDefault("chat.interval", "1m")

	v.SetDefault("ice_servers", []map[string]any{
		{"urls": []string{"stun:stun.l.google.com:19302"}},
	})
}

func (c *Config) Validate() error {
	for _, s := range c.ICEServers {
		for _, raw := range s.URLs {
			if _, err := stun.ParseURI(raw); err != nil {
				return fmt.Errorf("ice server %q: %w", raw, err)
			}
		}
	}
	if c.Outbreak.Retention < c.Outbreak.Window {
		return fmt.Errorf("outbreak.retention (%s) shorter than outbreak.window (%s)", c.Outbreak.Retention, c.Outbreak.Window)
	}
	return nil
}

// WebRTCICEServers converts the configured list into the shape browsers
// pass to RTCPeerConnection.
func (c *Config) WebRTCICEServers() []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(c.ICEServers))
	for _, s := range c.ICEServers {
		srv := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			srv.Credential = s.Credential
		}
		out = append(out, srv)
	}
	return out
}
