package config

import (
	"os"
	"time"

	"github.com/spf13/viper"
)

const (
	configFilePathENV = "CONFIG_FILE"
	baseURLENV        = "CC_BASE_URL"
	apiKeyENV         = "CC_API_KEY"
	identifierENV     = "CC_IDENTIFIER"
	passwordENV       = "CC_PASSWORD"
	databaseDSNENV    = "DATABASE_DSN"
	telegramTokenENV  = "TELEGRAM_TOKEN"
)

// CloseMode selects how a full close is executed when the signal asks for it.
// "delete" removes the deal by id; "counter_order" sends an offsetting market
// order sized to the whole position. The source alert platform never settled
// on one, so both stay configuration.
const (
	CloseModeDelete       = "delete"
	CloseModeCounterOrder = "counter_order"
)

type Broker struct {
	BaseURL    string
	APIKey     string
	Identifier string
	Password   string
	Timeout    time.Duration
	ForceOpen  bool
	CloseMode  string
}

type Telegram struct {
	Token  string
	ChatID int64
}

type Quotes struct {
	Enabled   bool
	StreamURL string
	PingEvery time.Duration
}

type Config struct {
	ListenAddr  string
	SymbolsFile string

	Broker   Broker
	Telegram Telegram
	Quotes   Quotes

	// Stop amendment thresholds: a proposed stop is material if the absolute
	// move exceeds StopAmendAbs (when nonzero) or the move relative to the
	// position's open price exceeds StopAmendMinPct percent (when nonzero).
	StopAmendAbs    float64
	StopAmendMinPct float64

	// Dedup store
	Retention time.Duration
	StorePath string
	DB        string

	Jaeger struct {
		Host string
		Port int
	}
}

func NewConfig() (*Config, error) {
	v := viper.New()

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local"
	}
	v.SetConfigName(configFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath("configs")
	v.AddConfigPath(".")

	v.SetDefault("listen_addr", ":8000")
	v.SetDefault("symbols_file", "")
	v.SetDefault("broker.base_url", "https://demo-api-capital.backend-capital.com")
	v.SetDefault("broker.timeout_sec", 10)
	v.SetDefault("broker.force_open", true)
	v.SetDefault("broker.close_mode", CloseModeDelete)
	v.SetDefault("stop_amend_abs", 0.0)
	v.SetDefault("stop_amend_min_pct", 0.1)
	v.SetDefault("retention_days", 2)
	v.SetDefault("store_path", "data/processed_signals.json")
	v.SetDefault("quotes.enabled", false)
	v.SetDefault("quotes.stream_url", "wss://api-streaming-capital.backend-capital.com/connect")
	v.SetDefault("quotes.ping_sec", 300)
	v.SetDefault("jaeger.host", "")
	v.SetDefault("jaeger.port", 6831)

	// Config file is optional; env + defaults are enough to run.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg := &Config{
		ListenAddr:  v.GetString("listen_addr"),
		SymbolsFile: v.GetString("symbols_file"),
		Broker: Broker{
			BaseURL:    v.GetString("broker.base_url"),
			APIKey:     v.GetString("broker.api_key"),
			Identifier: v.GetString("broker.identifier"),
			Password:   v.GetString("broker.password"),
			Timeout:    time.Duration(v.GetInt("broker.timeout_sec")) * time.Second,
			ForceOpen:  v.GetBool("broker.force_open"),
			CloseMode:  v.GetString("broker.close_mode"),
		},
		Telegram: Telegram{
			Token:  v.GetString("telegram.token"),
			ChatID: v.GetInt64("telegram.chat_id"),
		},
		Quotes: Quotes{
			Enabled:   v.GetBool("quotes.enabled"),
			StreamURL: v.GetString("quotes.stream_url"),
			PingEvery: time.Duration(v.GetInt("quotes.ping_sec")) * time.Second,
		},
		StopAmendAbs:    v.GetFloat64("stop_amend_abs"),
		StopAmendMinPct: v.GetFloat64("stop_amend_min_pct"),
		Retention:       time.Duration(v.GetInt("retention_days")) * 24 * time.Hour,
		StorePath:       v.GetString("store_path"),
		DB:              v.GetString("db_dsn"),
	}
	cfg.Jaeger.Host = v.GetString("jaeger.host")
	cfg.Jaeger.Port = v.GetInt("jaeger.port")

	// Secrets win from the environment.
	if s := os.Getenv(baseURLENV); s != "" {
		cfg.Broker.BaseURL = s
	}
	if s := os.Getenv(apiKeyENV); s != "" {
		cfg.Broker.APIKey = s
	}
	if s := os.Getenv(identifierENV); s != "" {
		cfg.Broker.Identifier = s
	}
	if s := os.Getenv(passwordENV); s != "" {
		cfg.Broker.Password = s
	}
	if s := os.Getenv(databaseDSNENV); s != "" {
		cfg.DB = s
	}
	if s := os.Getenv(telegramTokenENV); s != "" {
		cfg.Telegram.Token = s
	}

	return cfg, nil
}
