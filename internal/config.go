package internal

import (
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	LogLevel string `env:"LOG_LEVEL,default=INFO"`
	Host     string `env:"HOST,default=localhost"`
	Port     int    `env:"PORT,default=8080" validate:"gt=0"`

	JWTSecret     string        `env:"JWT_SECRET,required=true" validate:"min=32"`
	TokenDuration time.Duration `env:"TOKEN_DURATION,default=24h" validate:"gt=0"`
	// SystemSenders is a comma-separated list of user ids whose tokens carry
	// the system-send capability.
	SystemSenders string `env:"SYSTEM_SENDERS"`

	ConnectionTimeout time.Duration `env:"CONNECTION_TIMEOUT,default=90s" validate:"gt=0"`
	ReapInterval      time.Duration `env:"REAP_INTERVAL,default=30s" validate:"gt=0"`
	RetentionWindow   time.Duration `env:"RETENTION_WINDOW,default=24h" validate:"gt=0"`

	QueueCapacity int           `env:"QUEUE_CAPACITY,default=1024" validate:"gt=0"`
	BatchSize     int           `env:"BATCH_SIZE,default=32" validate:"gt=0"`
	PollInterval  time.Duration `env:"POLL_INTERVAL,default=250ms" validate:"gt=0"`
	MaxRetries    int           `env:"MAX_RETRIES,default=3" validate:"gte=0"`
	RetryBackoff  time.Duration `env:"RETRY_BACKOFF,default=2s" validate:"gte=0"`
	RateLimit     float64       `env:"RATE_LIMIT,default=200" validate:"gte=0"`
	RateBurst     int           `env:"RATE_BURST,default=50" validate:"gte=0"`

	BufferSize           int           `env:"BUFFER_SIZE,default=256" validate:"gt=0"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,default=2s" validate:"gt=0"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=10s" validate:"gt=0"`
	HeartbeatInterval    time.Duration `env:"HEARTBEAT_INTERVAL,default=5s" validate:"gt=0"`
	LowCapacityThreshold int           `env:"LOW_CAPACITY_THRESHOLD,default=16" validate:"gte=0"`
	CPUWarnThreshold     float64       `env:"CPU_WARN_THRESHOLD,default=85" validate:"gte=0"`

	WriteTimeout   time.Duration `env:"WRITE_TIMEOUT,default=5s" validate:"gt=0"`
	BadgerFilepath string        `env:"BADGER_FILEPATH,default=./data/history"`
}

var validate = validator.New()

func (c Config) Validate() error {
	return validate.Struct(c)
}
