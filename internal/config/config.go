// Package config loads gateway configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator"
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
)

// Config is the root configuration tree. Every field can be set through
// GATEWAY_-prefixed environment variables, with "__" separating levels
// (GATEWAY_DATABASE__HOST sets database.host).
type Config struct {
	Server      ServerConfig      `koanf:"server" validate:"required"`
	Logger      LoggerConfig      `koanf:"logger"`
	Database    DatabaseConfig    `koanf:"database" validate:"required"`
	Redis       RedisConfig       `koanf:"redis" validate:"required"`
	Kafka       KafkaConfig       `koanf:"kafka" validate:"required"`
	Auth        AuthConfig        `koanf:"auth" validate:"required"`
	Payment     PaymentConfig     `koanf:"payment"`
	Idempotency IdempotencyConfig `koanf:"idempotency"`
	Retry       RetryConfig       `koanf:"retry"`
	Circuit     CircuitConfig     `koanf:"circuit"`
	PSP         PSPConfig         `koanf:"psp" validate:"required"`
	Tokenizer   TokenizerConfig   `koanf:"tokenizer" validate:"required"`
	Fraud       FraudConfig       `koanf:"fraud" validate:"required"`
	ThreeDS     ThreeDSConfig     `koanf:"threeds" validate:"required"`
	Acquirer    AcquirerConfig    `koanf:"acquirer" validate:"required"`
	Webhook     WebhookConfig     `koanf:"webhook"`
	Settlement  SettlementConfig  `koanf:"settlement"`
	Worker      WorkerConfig      `koanf:"worker"`
}

type ServerConfig struct {
	Port            int           `koanf:"port" validate:"required,min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	RequestTimeout  time.Duration `koanf:"request_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RateLimitRPS    int           `koanf:"rate_limit_rps"`
}

type DatabaseConfig struct {
	Host     string `koanf:"host" validate:"required"`
	Port     int    `koanf:"port" validate:"required"`
	User     string `koanf:"user" validate:"required"`
	Password string `koanf:"password" validate:"required"`
	Name     string `koanf:"name" validate:"required"`
	SSLMode  string `koanf:"sslmode"`
	MaxConns int32  `koanf:"max_conns"`
	MinConns int32  `koanf:"min_conns"`
}

type RedisConfig struct {
	Addr         string        `koanf:"addr" validate:"required"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

type KafkaConfig struct {
	Brokers       string        `koanf:"brokers" validate:"required"`
	PaymentTopic  string        `koanf:"payment_topic" validate:"required"`
	DLQTopic      string        `koanf:"dlq_topic" validate:"required"`
	ConsumerGroup string        `koanf:"consumer_group" validate:"required"`
	DedupTTL      time.Duration `koanf:"dedup_ttl"`
}

// BrokerList splits the comma separated broker string.
func (k KafkaConfig) BrokerList() []string {
	parts := strings.Split(k.Brokers, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}

type AuthConfig struct {
	JWTSecret string `koanf:"jwt_secret" validate:"required,min=32"`
}

// PaymentConfig bounds what the gateway accepts before any collaborator is
// contacted.
type PaymentConfig struct {
	// Currencies is the comma separated ISO 4217 whitelist.
	Currencies     string `koanf:"currencies"`
	MinAmountMinor int64  `koanf:"min_amount_minor"`
	MaxAmountMinor int64  `koanf:"max_amount_minor"`
}

// CurrencySet expands the whitelist into a lookup set.
func (p PaymentConfig) CurrencySet() map[string]struct{} {
	set := make(map[string]struct{})
	for _, c := range strings.Split(p.Currencies, ",") {
		if c = strings.ToUpper(strings.TrimSpace(c)); c != "" {
			set[c] = struct{}{}
		}
	}
	return set
}

type IdempotencyConfig struct {
	TTL     time.Duration `koanf:"ttl"`
	LockTTL time.Duration `koanf:"lock_ttl"`
}

type RetryConfig struct {
	MaxAttempts int           `koanf:"max_attempts"`
	BaseDelay   time.Duration `koanf:"base_delay"`
	MaxDelay    time.Duration `koanf:"max_delay"`
}

type CircuitConfig struct {
	FailureThreshold int           `koanf:"failure_threshold"`
	Window           time.Duration `koanf:"window"`
	OpenTimeout      time.Duration `koanf:"open_timeout"`
	HalfOpenProbes   int           `koanf:"half_open_probes"`
}

// PSPConfig holds up to three PSPs in failover priority order. A block with
// an empty name is absent.
type PSPConfig struct {
	Primary   PSPProviderConfig `koanf:"primary" validate:"required"`
	Secondary PSPProviderConfig `koanf:"secondary"`
	Tertiary  PSPProviderConfig `koanf:"tertiary"`
}

type PSPProviderConfig struct {
	Name    string        `koanf:"name"`
	BaseURL string        `koanf:"base_url"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
}

// Ordered returns the configured providers in failover priority order.
func (p PSPConfig) Ordered() []PSPProviderConfig {
	ordered := make([]PSPProviderConfig, 0, 3)
	for _, c := range []PSPProviderConfig{p.Primary, p.Secondary, p.Tertiary} {
		if c.Name != "" {
			ordered = append(ordered, c)
		}
	}
	return ordered
}

type TokenizerConfig struct {
	BaseURL string        `koanf:"base_url" validate:"required"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
}

type FraudConfig struct {
	BaseURL string        `koanf:"base_url" validate:"required"`
	Timeout time.Duration `koanf:"timeout"`

	// ReviewThreshold and BlockThreshold cut the score into CLEAN, REVIEW
	// and BLOCK bands. ThreeDSThreshold forces step-up authentication even
	// when the scoring service did not ask for it.
	ReviewThreshold  float64 `koanf:"review_threshold"`
	BlockThreshold   float64 `koanf:"block_threshold"`
	ThreeDSThreshold float64 `koanf:"threeds_threshold"`

	VelocityLimit  int           `koanf:"velocity_limit"`
	VelocityWindow time.Duration `koanf:"velocity_window"`

	// Blocklist is a comma separated set of source IPs refused outright,
	// applied even when the scoring service is healthy.
	Blocklist string `koanf:"blocklist"`
}

// BlocklistIPs splits the comma separated blocklist.
func (f FraudConfig) BlocklistIPs() []string {
	parts := strings.Split(f.Blocklist, ",")
	ips := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ips = append(ips, p)
		}
	}
	return ips
}

type ThreeDSConfig struct {
	BaseURL        string        `koanf:"base_url" validate:"required"`
	Timeout        time.Duration `koanf:"timeout"`
	AmountMinMinor int64         `koanf:"amount_min_minor"`
}

type AcquirerConfig struct {
	BaseURL       string        `koanf:"base_url" validate:"required"`
	APIKey        string        `koanf:"api_key"`
	Timeout       time.Duration `koanf:"timeout"`
	FeeBasisPts   int64         `koanf:"fee_basis_pts"`
	FeeFixedMinor int64         `koanf:"fee_fixed_minor"`

	// ChargebackToken authenticates the acquirer's inbound chargeback
	// notifications. Empty disables the intake endpoints.
	ChargebackToken string `koanf:"chargeback_token"`
}

type WebhookConfig struct {
	MaxAttempts int           `koanf:"max_attempts"`
	Timeout     time.Duration `koanf:"timeout"`
	BaseDelay   time.Duration `koanf:"base_delay"`
}

type SettlementConfig struct {
	CutoffHourUTC int `koanf:"cutoff_hour_utc"`
}

type WorkerConfig struct {
	OutboxInterval       time.Duration `koanf:"outbox_interval"`
	CompensationInterval time.Duration `koanf:"compensation_interval"`
	WebhookInterval      time.Duration `koanf:"webhook_interval"`
	SettlementInterval   time.Duration `koanf:"settlement_interval"`
}

var defaults = map[string]interface{}{
	"server.port":             8080,
	"server.read_timeout":     "10s",
	"server.write_timeout":    "30s",
	"server.request_timeout":  "30s",
	"server.shutdown_timeout": "30s",
	"server.rate_limit_rps":   100,

	"logger.level":  "info",
	"logger.format": "json",

	"database.sslmode":   "disable",
	"database.max_conns": 20,
	"database.min_conns": 2,

	"redis.db":            0,
	"redis.dial_timeout":  "500ms",
	"redis.read_timeout":  "500ms",
	"redis.write_timeout": "500ms",

	"kafka.payment_topic":  "payments.events",
	"kafka.dlq_topic":      "payments.events.dlq",
	"kafka.consumer_group": "gateway",
	"kafka.dedup_ttl":      "72h",

	"payment.currencies":       "USD,EUR,GBP,JPY,CAD,AUD",
	"payment.min_amount_minor": 50,
	"payment.max_amount_minor": 100_000_000,

	"idempotency.ttl":      "24h",
	"idempotency.lock_ttl": "30s",

	"retry.max_attempts": 5,
	"retry.base_delay":   "1s",
	"retry.max_delay":    "60s",

	"circuit.failure_threshold": 5,
	"circuit.window":            "60s",
	"circuit.open_timeout":      "30s",
	"circuit.half_open_probes":  3,

	"psp.primary.timeout":   "5s",
	"psp.secondary.timeout": "5s",
	"psp.tertiary.timeout":  "5s",

	"tokenizer.timeout": "2s",

	"fraud.timeout":           "2s",
	"fraud.review_threshold":  0.50,
	"fraud.block_threshold":   0.75,
	"fraud.threeds_threshold": 0.75,
	"fraud.velocity_limit":    10,
	"fraud.velocity_window":   "1m",

	"threeds.timeout":          "2s",
	"threeds.amount_min_minor": 3000,

	"acquirer.timeout":         "30s",
	"acquirer.fee_basis_pts":   175,
	"acquirer.fee_fixed_minor": 30,

	"webhook.max_attempts": 10,
	"webhook.timeout":      "10s",
	"webhook.base_delay":   "1s",

	"settlement.cutoff_hour_utc": 0,

	"worker.outbox_interval":       "2s",
	"worker.compensation_interval": "10s",
	"worker.webhook_interval":      "5s",
	"worker.settlement_interval":   "1m",
}

// LoadConfig reads defaults, then overrides them with GATEWAY_-prefixed
// environment variables, and validates the result.
func LoadConfig() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("loading default config: %w", err)
	}

	if err := k.Load(env.Provider("GATEWAY_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "GATEWAY_")), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment config: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if len(cfg.PSP.Ordered()) == 0 {
		return nil, fmt.Errorf("validating config: at least one PSP must be configured")
	}

	return &cfg, nil
}
