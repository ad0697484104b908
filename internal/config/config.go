package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "MEALMATCH"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultDatabasePath  = "mealmatch.db"
	defaultLogLevel      = "info"
	defaultTokenIssuer   = "mealmatch-identity"
	defaultTokenAudience = "mealmatch-api"
	defaultAcceptWindow  = 24 * time.Hour
	defaultThrottleRPS   = 10.0
	defaultThrottleBurst = 20
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress       string
	DatabasePath      string
	LogLevel          string
	AuthSigningSecret string
	AuthIssuer        string
	AuthAudience      string
	MatchAcceptWindow time.Duration
	HTTPThrottleRPS   float64
	HTTPThrottleBurst int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.throttle_rps", defaultThrottleRPS)
	configViper.SetDefault("http.throttle_burst", defaultThrottleBurst)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.issuer", defaultTokenIssuer)
	configViper.SetDefault("auth.audience", defaultTokenAudience)
	configViper.SetDefault("match.accept_window", defaultAcceptWindow)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:       configViper.GetString("http.address"),
		DatabasePath:      configViper.GetString("database.path"),
		LogLevel:          configViper.GetString("log.level"),
		AuthSigningSecret: configViper.GetString("auth.signing_secret"),
		AuthIssuer:        configViper.GetString("auth.issuer"),
		AuthAudience:      configViper.GetString("auth.audience"),
		MatchAcceptWindow: configViper.GetDuration("match.accept_window"),
		HTTPThrottleRPS:   configViper.GetFloat64("http.throttle_rps"),
		HTTPThrottleBurst: configViper.GetInt("http.throttle_burst"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.AuthSigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.MatchAcceptWindow <= 0 {
		return fmt.Errorf("match.accept_window must be positive")
	}
	if c.HTTPThrottleRPS <= 0 || c.HTTPThrottleBurst <= 0 {
		return fmt.Errorf("http throttle settings must be positive")
	}
	return nil
}
