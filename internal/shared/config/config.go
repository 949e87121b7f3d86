package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the full service configuration. Each section comes from its own
// YAML file in CONFIG_DIR; every key can be overridden by an env variable.
type Config struct {
	Database  DBConfig
	RabbitMQ  MQConfig
	Kafka     KafkaConfig
	WebSocket WSConfig
	Services  ServicesConfig
	JWT       JWTConfig
	Tracking  TrackingConfig
	Telemetry TelemetryConfig
	Log       LogConfig
}

type DBConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"gt=0,lt=65536"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode" validate:"oneof=disable allow prefer require verify-ca verify-full"`
	// Migrate applies the embedded dev migrations (local parcels table) at startup.
	Migrate bool `mapstructure:"migrate"`

	MaxConns        int           `mapstructure:"max_conns" validate:"gt=0"`
	MinConns        int           `mapstructure:"min_conns" validate:"gte=0,ltefield=MaxConns"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout" validate:"gt=0"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time" validate:"gte=0"`
	ApplicationName string        `mapstructure:"application_name"`
}

type MQConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"gt=0,lt=65536"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	VHost    string `mapstructure:"vhost"`
}

type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"` // comma-separated
	Topic   string `mapstructure:"topic" validate:"required"`
}

type WSConfig struct {
	Path           string        `mapstructure:"path" validate:"startswith=/"`
	SendBuffer     int           `mapstructure:"send_buffer" validate:"gt=0"`
	MaxMessageSize int64         `mapstructure:"max_message_size" validate:"gt=0"`
	PingInterval   time.Duration `mapstructure:"ping_interval" validate:"gt=0"`
	PongWait       time.Duration `mapstructure:"pong_wait" validate:"gtfield=PingInterval"`
	WriteWait      time.Duration `mapstructure:"write_wait" validate:"gt=0"`
}

type ServicesConfig struct {
	TrackingServicePort int `mapstructure:"tracking_service" validate:"gt=0,lt=65536"`
}

type JWTConfig struct {
	Secret        string `mapstructure:"secret" validate:"required_if=Required true"`
	ExpiryMinutes int    `mapstructure:"expiry_minutes" validate:"gt=0"`
	// Required makes /api/* demand a bearer token. WebSocket tokens are always optional.
	Required bool `mapstructure:"required"`
}

type TrackingConfig struct {
	ParcelSource            string        `mapstructure:"parcel_source" validate:"oneof=postgres file none"`
	ParcelFile              string        `mapstructure:"parcel_file" validate:"required_if=ParcelSource file"`
	ParcelLookupTimeout     time.Duration `mapstructure:"parcel_lookup_timeout" validate:"gt=0"`
	ParcelLookupConcurrency int           `mapstructure:"parcel_lookup_concurrency" validate:"gt=0"`
	MirrorBackend           string        `mapstructure:"mirror_backend" validate:"oneof=none amqp kafka"`
	MirrorBuffer            int           `mapstructure:"mirror_buffer" validate:"gt=0"`
	ConsumeReports          bool          `mapstructure:"consume_reports"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	Insecure     bool   `mapstructure:"insecure"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Dir   string `mapstructure:"dir"`
}

// setting binds one key to its env override and default.
type setting struct {
	key string
	env string
	def any
}

// Load reads CONFIG_DIR (default ./config) and validates the result.
func Load() (Config, error) {
	return LoadFrom(getEnv("CONFIG_DIR", "./config"))
}

func LoadFrom(dir string) (Config, error) {
	var cfg Config

	sections := []struct {
		file     string
		settings []setting
		out      any
	}{
		{"db.yaml", []setting{
			{"host", "DB_HOST", "localhost"},
			{"port", "DB_PORT", 5432},
			{"user", "DB_USER", "fastfare_user"},
			{"password", "DB_PASSWORD", "fastfare_pass"},
			{"database", "DB_NAME", "fastfare_db"},
			{"sslmode", "DB_SSLMODE", "disable"},
			{"migrate", "DB_MIGRATE", false},
			{"max_conns", "DB_MAX_CONNS", 10},
			{"min_conns", "DB_MIN_CONNS", 1},
			{"connect_timeout", "DB_CONNECT_TIMEOUT", 5 * time.Second},
			{"max_conn_idle_time", "DB_MAX_CONN_IDLE_TIME", 30 * time.Minute},
			{"application_name", "DB_APPLICATION_NAME", "fastfare-tracking"},
		}, &cfg.Database},
		{"mq.yaml", []setting{
			{"host", "RABBITMQ_HOST", "localhost"},
			{"port", "RABBITMQ_PORT", 5672},
			{"user", "RABBITMQ_USER", "guest"},
			{"password", "RABBITMQ_PASSWORD", "guest"},
			{"vhost", "RABBITMQ_VHOST", "/"},
		}, &cfg.RabbitMQ},
		{"kafka.yaml", []setting{
			{"brokers", "KAFKA_BROKERS", "localhost:9092"},
			{"topic", "KAFKA_POSITIONS_TOPIC", "driver-positions"},
		}, &cfg.Kafka},
		{"ws.yaml", []setting{
			{"path", "WS_PATH", "/ws"},
			{"send_buffer", "WS_SEND_BUFFER", 256},
			{"max_message_size", "WS_MAX_MESSAGE_SIZE", 8192},
			{"ping_interval", "WS_PING_INTERVAL", 30 * time.Second},
			{"pong_wait", "WS_PONG_WAIT", 60 * time.Second},
			{"write_wait", "WS_WRITE_WAIT", 10 * time.Second},
		}, &cfg.WebSocket},
		{"service.yaml", []setting{
			{"tracking_service", "TRACKING_SERVICE_PORT", 3002},
		}, &cfg.Services},
		{"tracking.yaml", []setting{
			{"parcel_source", "PARCEL_SOURCE", "none"},
			{"parcel_file", "PARCEL_FILE", ""},
			{"parcel_lookup_timeout", "PARCEL_LOOKUP_TIMEOUT", 2 * time.Second},
			{"parcel_lookup_concurrency", "PARCEL_LOOKUP_CONCURRENCY", 8},
			{"mirror_backend", "MIRROR_BACKEND", "none"},
			{"mirror_buffer", "MIRROR_BUFFER", 1024},
			{"consume_reports", "CONSUME_REPORTS", false},
		}, &cfg.Tracking},
	}

	for _, s := range sections {
		if err := loadFile(filepath.Join(dir, s.file), s.settings, s.out); err != nil {
			return Config{}, err
		}
	}

	// jwt.yaml keeps its values under a "jwt:" section.
	var jwtFile struct {
		JWT JWTConfig `mapstructure:"jwt"`
	}
	if err := loadFile(filepath.Join(dir, "jwt.yaml"), []setting{
		{"jwt.secret", "JWT_SECRET", "dev_secret"},
		{"jwt.expiry_minutes", "JWT_EXPIRY_MINUTES", 60},
		{"jwt.required", "JWT_REQUIRED", false},
	}, &jwtFile); err != nil {
		return Config{}, err
	}
	cfg.JWT = jwtFile.JWT

	cfg.Telemetry = TelemetryConfig{
		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		Insecure:     strings.EqualFold(getEnv("OTEL_EXPORTER_OTLP_INSECURE", ""), "true"),
	}
	cfg.Log = LogConfig{
		Level: getEnv("LOG_LEVEL", "INFO"),
		Dir:   getEnv("LOG_DIR", ""),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, settings []setting, out any) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	for _, s := range settings {
		v.SetDefault(s.key, s.def)
		if err := v.BindEnv(s.key, s.env); err != nil {
			return fmt.Errorf("bind %s: %w", s.env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}
	}

	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// DSN returns the Postgres connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// AMQPURL returns the RabbitMQ connection URL.
func (c MQConfig) AMQPURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d%s", c.User, c.Password, c.Host, c.Port, c.VHost)
}

// BrokerList splits the comma-separated broker addresses.
func (c KafkaConfig) BrokerList() []string {
	var out []string
	for _, p := range strings.Split(c.Brokers, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
