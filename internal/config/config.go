package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// ErrConfiguration wraps every error returned by Load.
var ErrConfiguration = errors.New("configuration error")

// Config holds all configuration values for the chat client and the dev relay.
// Values come from defaults, an optional talkie.yaml, a .env file and TALKIE_* variables.
type Config struct {
	// APIBaseURL is the root of the chat REST API, e.g. http://localhost:8080
	APIBaseURL string `mapstructure:"api_base_url" validate:"required,url"`

	// RealtimeURL is the websocket endpoint, e.g. ws://localhost:8080/ws
	RealtimeURL string `mapstructure:"realtime_url" validate:"required,url"`

	// Token is the bearer credential presented to the API and the realtime handshake
	Token string `mapstructure:"token"`

	// UserID identifies the local user; their own events are treated as self
	UserID string `mapstructure:"user_id"`

	// UserName is shown to others in typing indicators
	UserName string `mapstructure:"user_name"`

	// WorkspaceID selects the workspace chat to open
	WorkspaceID string `mapstructure:"workspace_id"`

	PageSize          int           `mapstructure:"page_size" validate:"gte=1,lte=200"`
	SuppressionWindow time.Duration `mapstructure:"suppression_window" validate:"gt=0"`
	TypingIdle        time.Duration `mapstructure:"typing_idle" validate:"gt=0"`
	TypingTTL         time.Duration `mapstructure:"typing_ttl" validate:"gtfield=TypingIdle"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	ReconnectAttempts int           `mapstructure:"reconnect_attempts" validate:"gte=0"`
	ReconnectBackoff  time.Duration `mapstructure:"reconnect_backoff" validate:"gte=0"`

	// ServerPort is the port the dev relay listens on
	ServerPort string `mapstructure:"server_port" validate:"required,numeric"`

	// CORSOrigins is the allow-list for the relay's CORS middleware
	CORSOrigins []string `mapstructure:"cors_origins"`

	// RelayRetention is how long an idle conversation survives in the relay
	RelayRetention       time.Duration `mapstructure:"relay_retention" validate:"gt=0"`
	RelayCleanupInterval time.Duration `mapstructure:"relay_cleanup_interval" validate:"gt=0"`

	LogLevel  string `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`
	LogPretty bool   `mapstructure:"log_pretty"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_base_url", "http://localhost:8080")
	v.SetDefault("realtime_url", "ws://localhost:8080/ws")
	v.SetDefault("token", "")
	v.SetDefault("user_id", "")
	v.SetDefault("user_name", "")
	v.SetDefault("workspace_id", "")
	v.SetDefault("page_size", 30)
	v.SetDefault("suppression_window", 3*time.Second)
	v.SetDefault("typing_idle", 2*time.Second)
	v.SetDefault("typing_ttl", 5*time.Second)
	v.SetDefault("request_timeout", 15*time.Second)
	v.SetDefault("reconnect_attempts", 5)
	v.SetDefault("reconnect_backoff", 2*time.Second)
	v.SetDefault("server_port", "8080")
	v.SetDefault("cors_origins", []string{"http://localhost:5173", "http://localhost:3000"})
	v.SetDefault("relay_retention", 30*time.Minute)
	v.SetDefault("relay_cleanup_interval", time.Minute)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", true)
}

// Load reads configuration and validates it. v may carry bound command-line
// flags; nil means a fresh instance.
// A missing .env or talkie.yaml is not an error; we may be running with real
// environment variables only.
func Load(v *viper.Viper) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using environment variables")
	}
	if v == nil {
		v = viper.New()
	}
	return LoadFrom(v)
}

// LoadFrom builds a Config from the given viper instance. Flags bound by the
// caller take precedence over files and environment variables.
func LoadFrom(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetConfigName("talkie")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("TALKIE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: failed to read config file: %v", ErrConfiguration, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrConfiguration, err)
	}

	// CORS_ORIGINS may arrive as one comma-separated string
	cfg.CORSOrigins = splitOrigins(cfg.CORSOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	return validator.New(validator.WithRequiredStructEnabled()).Struct(c)
}

// RequireClient checks the fields the chat client cannot run without.
func (c *Config) RequireClient() error {
	var missing []string
	if c.Token == "" {
		missing = append(missing, "token")
	}
	if c.UserID == "" {
		missing = append(missing, "user_id")
	}
	if c.WorkspaceID == "" {
		missing = append(missing, "workspace_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrConfiguration, strings.Join(missing, ", "))
	}
	return nil
}

func splitOrigins(in []string) []string {
	var out []string
	for _, item := range in {
		for _, origin := range strings.Split(item, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				out = append(out, origin)
			}
		}
	}
	return out
}
