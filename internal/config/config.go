package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"development"`
	AppPort     string `env:"APP_PORT" envDefault:"8080"`
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
	JWTSecret   string `env:"SECRET_KEY"`
	// InternalKey lets trusted services use the internal rate limit tier.
	InternalKey string `env:"INTERNAL_SERVICE_KEY"`

	DBHost     string `env:"DB_HOST"`
	DBUser     string `env:"DB_USER"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`

	RedisAddr    string   `env:"REDIS_ADDR"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"payments.settled"`

	PhonePe  PhonePe  `envPrefix:"PHONEPE_"`
	Razorpay Razorpay `envPrefix:"RAZORPAY_"`
	Checkout Checkout
}

// PhonePe holds the redirect-style gateway credentials.
type PhonePe struct {
	MerchantID  string `env:"MERCHANT_ID"`
	SaltKey     string `env:"SALT_KEY"`
	SaltIndex   string `env:"SALT_INDEX" envDefault:"1"`
	APIURL      string `env:"API_URL" envDefault:"https://api-preprod.phonepe.com/apis/pg-sandbox"`
	RedirectURL string `env:"REDIRECT_URL"`
	CallbackURL string `env:"CALLBACK_URL"`
}

// Razorpay holds the embedded-checkout gateway credentials.
type Razorpay struct {
	KeyID     string `env:"KEY_ID"`
	KeySecret string `env:"KEY_SECRET"`
	APIURL    string `env:"API_URL" envDefault:"https://api.razorpay.com"`
	Currency  string `env:"CURRENCY" envDefault:"INR"`
}

type Checkout struct {
	ShippingFlatRate      decimal.Decimal `env:"SHIPPING_FLAT_RATE" envDefault:"50.00"`
	FreeShippingThreshold decimal.Decimal `env:"FREE_SHIPPING_THRESHOLD" envDefault:"999.00"`
	ReservationTTL        time.Duration   `env:"RESERVATION_TTL" envDefault:"15m"`
	ReservationSweep      time.Duration   `env:"RESERVATION_SWEEP_INTERVAL" envDefault:"1m"`
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.DBHost == "" {
		return nil, errors.New("environment variables not loaded properly: DB_HOST is empty")
	}

	return cfg, nil
}

func LoadConfig() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}

// StatusPageURL is where end users land after a gateway redirect.
func (c *Config) StatusPageURL() string {
	return c.FrontendURL + "/payment/status"
}
