package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime string
}

type AuthConfig struct {
	AccessSecret string
}

type LedgerConfig struct {
	RPCURL            string
	ChainID           int64
	AgentKey          string
	ConfirmTimeout    time.Duration
	ReconcileInterval time.Duration
}

type UploadConfig struct {
	Dir string
}

type Config struct {
	Environment string
	HTTP        HTTPConfig
	DB          DBConfig
	Auth        AuthConfig
	Ledger      LedgerConfig
	Upload      UploadConfig
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./deploy")
	v.AddConfigPath("./internal/config")
	v.AutomaticEnv()

	_ = v.ReadInConfig()

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		HTTP: HTTPConfig{
			Host: v.GetString("HTTP_HOST"),
			Port: v.GetInt("HTTP_PORT"),
		},
		DB: DBConfig{
			DSN:             v.GetString("DB_DSN"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetString("DB_CONN_MAX_LIFETIME"),
		},
		Auth: AuthConfig{
			AccessSecret: v.GetString("JWT_ACCESS_SECRET"),
		},
		Ledger: LedgerConfig{
			RPCURL:            v.GetString("LEDGER_RPC_URL"),
			ChainID:           v.GetInt64("LEDGER_CHAIN_ID"),
			AgentKey:          v.GetString("LEDGER_AGENT_KEY"),
			ConfirmTimeout:    v.GetDuration("LEDGER_CONFIRM_TIMEOUT"),
			ReconcileInterval: v.GetDuration("LEDGER_RECONCILE_INTERVAL"),
		},
		Upload: UploadConfig{
			Dir: v.GetString("UPLOAD_DIR"),
		},
	}

	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 7090
	}
	if cfg.Ledger.ChainID == 0 {
		cfg.Ledger.ChainID = 1337
	}
	// The confirmation wait is always bounded; zero means unset.
	if cfg.Ledger.ConfirmTimeout == 0 {
		cfg.Ledger.ConfirmTimeout = 2 * time.Minute
	}
	if cfg.Upload.Dir == "" {
		cfg.Upload.Dir = "./uploads"
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.DB.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if cfg.Auth.AccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.Ledger.RPCURL == "" {
		return fmt.Errorf("LEDGER_RPC_URL is required")
	}
	if cfg.Ledger.AgentKey == "" {
		return fmt.Errorf("LEDGER_AGENT_KEY is required")
	}
	return nil
}
