package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "coursepay/backend/libs/config"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config is loaded once at startup and treated as read-only afterwards.
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"SETTLEMENT_HTTP_PORT"`
	} `yaml:"http"`
	Store struct {
		Driver string `yaml:"driver" env:"SETTLEMENT_STORE_DRIVER"`
		// SeedFile is a YAML list of users and courses for the memory driver.
		SeedFile string `yaml:"seedFile" env:"SETTLEMENT_SEED_FILE"`
	} `yaml:"store"`
	Database struct {
		DSN          string `yaml:"dsn" env:"SETTLEMENT_POSTGRES_DSN"`
		MaxOpenConns int    `yaml:"maxOpenConns" env:"SETTLEMENT_POSTGRES_MAX_OPEN"`
	} `yaml:"database"`
	Redis struct {
		Addr              string `yaml:"addr" env:"SETTLEMENT_REDIS_ADDR"`
		Password          string `yaml:"password" env:"SETTLEMENT_REDIS_PASSWORD"`
		DB                int    `yaml:"db" env:"SETTLEMENT_REDIS_DB"`
		OrderTTLSeconds   int    `yaml:"orderTtlSeconds" env:"SETTLEMENT_ORDER_TTL"`
		CaptureTTLSeconds int    `yaml:"captureTtlSeconds" env:"SETTLEMENT_CAPTURE_TTL"`
	} `yaml:"redis"`
	JWT struct {
		Secret string `yaml:"secret" env:"SETTLEMENT_JWT_SECRET"`
	} `yaml:"jwt"`
	Internal struct {
		// Token guards /internal routes. Empty disables them.
		Token string `yaml:"token" env:"SETTLEMENT_INTERNAL_TOKEN"`
	} `yaml:"internal"`
	Gateway struct {
		BaseURL        string `yaml:"baseUrl" env:"GATEWAY_BASE_URL"`
		ClientID       string `yaml:"clientId" env:"GATEWAY_CLIENT_ID"`
		Secret         string `yaml:"secret" env:"GATEWAY_SECRET"`
		TimeoutSeconds int    `yaml:"timeoutSeconds" env:"GATEWAY_TIMEOUT"`
		CreateAttempts uint   `yaml:"createAttempts" env:"GATEWAY_CREATE_ATTEMPTS"`
		StatusAttempts uint   `yaml:"statusAttempts" env:"GATEWAY_STATUS_ATTEMPTS"`
	} `yaml:"gateway"`
	Pricing struct {
		SettlementCurrency string  `yaml:"settlementCurrency" env:"PRICING_SETTLEMENT_CURRENCY"`
		ListedCurrency     string  `yaml:"listedCurrency" env:"PRICING_LISTED_CURRENCY"`
		ExchangeRate       float64 `yaml:"exchangeRate" env:"PRICING_EXCHANGE_RATE"`
		FeeRate            float64 `yaml:"feeRate" env:"PRICING_FEE_RATE"`
		CommissionRate     float64 `yaml:"commissionRate" env:"PRICING_COMMISSION_RATE"`
	} `yaml:"pricing"`
	Email struct {
		BaseURL        string `yaml:"baseUrl" env:"EMAIL_BASE_URL"`
		ServiceID      string `yaml:"serviceId" env:"EMAIL_SERVICE_ID"`
		PublicKey      string `yaml:"publicKey" env:"EMAIL_PUBLIC_KEY"`
		AccessToken    string `yaml:"accessToken" env:"EMAIL_ACCESS_TOKEN"`
		TimeoutSeconds int    `yaml:"timeoutSeconds" env:"EMAIL_TIMEOUT"`
		Templates      struct {
			Payout         string `yaml:"payout" env:"EMAIL_TEMPLATE_PAYOUT"`
			CoursePurchase string `yaml:"coursePurchase" env:"EMAIL_TEMPLATE_COURSE_PURCHASE"`
			MonthlyReport  string `yaml:"monthlyReport" env:"EMAIL_TEMPLATE_MONTHLY_REPORT"`
			Welcome        string `yaml:"welcome" env:"EMAIL_TEMPLATE_WELCOME"`
			Test           string `yaml:"test" env:"EMAIL_TEMPLATE_TEST"`
		} `yaml:"templates"`
	} `yaml:"email"`
	Alerts struct {
		WriteTimeoutSeconds int `yaml:"writeTimeoutSeconds" env:"ALERTS_WRITE_TIMEOUT"`
		PingIntervalSeconds int `yaml:"pingIntervalSeconds" env:"ALERTS_PING_INTERVAL"`
	} `yaml:"alerts"`
}

// Default returns a config with every optional value filled in.
func Default() *Config {
	cfg := &Config{}
	cfg.HTTP.Port = "8090"
	cfg.Store.Driver = StoreDriverPostgres
	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.OrderTTLSeconds = 3 * 60 * 60
	cfg.Redis.CaptureTTLSeconds = 30 * 24 * 60 * 60
	cfg.Gateway.TimeoutSeconds = 10
	cfg.Gateway.CreateAttempts = 3
	cfg.Gateway.StatusAttempts = 4
	cfg.Pricing.SettlementCurrency = "USD"
	cfg.Pricing.ListedCurrency = "EGP"
	cfg.Pricing.ExchangeRate = 31
	cfg.Pricing.FeeRate = 0.034
	cfg.Pricing.CommissionRate = 0.10
	cfg.Email.BaseURL = "https://api.emailjs.com"
	cfg.Email.TimeoutSeconds = 10
	cfg.Alerts.WriteTimeoutSeconds = 10
	cfg.Alerts.PingIntervalSeconds = 30
	return cfg
}

// Load reads configuration from file/env on top of Default and validates it.
func Load() (*Config, error) {
	cfg := Default()
	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields. Gateway and email credentials are not
// required here: the adapters fail fast per call when they are missing.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreDriverPostgres:
		if strings.TrimSpace(c.Database.DSN) == "" {
			return errors.New("config: database dsn required")
		}
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return errors.New("config: redis addr required")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return errors.New("config: jwt secret required")
	}
	if c.Pricing.ExchangeRate <= 0 {
		return errors.New("config: exchange rate must be positive")
	}
	if c.Pricing.FeeRate < 0 || c.Pricing.FeeRate >= 1 {
		return errors.New("config: fee rate must be in [0, 1)")
	}
	if c.Pricing.CommissionRate < 0 || c.Pricing.CommissionRate >= 1 {
		return errors.New("config: commission rate must be in [0, 1)")
	}
	return nil
}

// HTTPAddress returns :port style address.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8090"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// GatewayTimeout bounds a single gateway call.
func (c *Config) GatewayTimeout() time.Duration {
	return seconds(c.Gateway.TimeoutSeconds, 10*time.Second)
}

// EmailTimeout bounds a single email provider call.
func (c *Config) EmailTimeout() time.Duration {
	return seconds(c.Email.TimeoutSeconds, 10*time.Second)
}

// OrderTTL is how long a pending order handle is kept.
func (c *Config) OrderTTL() time.Duration {
	return seconds(c.Redis.OrderTTLSeconds, 3*time.Hour)
}

// CaptureTTL is how long capture results are kept for replay.
func (c *Config) CaptureTTL() time.Duration {
	return seconds(c.Redis.CaptureTTLSeconds, 30*24*time.Hour)
}

// AlertWriteTimeout bounds a websocket write.
func (c *Config) AlertWriteTimeout() time.Duration {
	return seconds(c.Alerts.WriteTimeoutSeconds, 10*time.Second)
}

// AlertPingInterval is the websocket keepalive period.
func (c *Config) AlertPingInterval() time.Duration {
	return seconds(c.Alerts.PingIntervalSeconds, 30*time.Second)
}

func seconds(v int, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return time.Duration(v) * time.Second
}
