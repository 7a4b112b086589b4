package configs

import (
	"fmt"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"
)

const (
	StorageBackendPostgres = "postgres"
	StorageBackendMemory   = "memory"

	QueueBackendRabbitMQ = "rabbitmq"
	QueueBackendLocal    = "local"

	MailBackendSMTP    = "smtp"
	MailBackendConsole = "console"
)

type Config struct {
	ServerPort             string `envconfig:"SERVER_PORT" default:"8080"`
	ServerTimeOutInSeconds int64  `envconfig:"SERVER_TIME_OUT_IN_SECONDS" default:"5"`
	WorkerTimeOutInSeconds int64  `envconfig:"WORKER_TIME_OUT_IN_SECONDS" default:"15"`
	LogLevel               string `envconfig:"LOG_LEVEL" default:"info"`
	StorageBackend         string `envconfig:"STORAGE_BACKEND" default:"postgres"`
	TaskLockTTLInSeconds   int64  `envconfig:"TASK_LOCK_TTL_IN_SECONDS" default:"10"`
	Database               DatabaseConfig
	RabbitMQ               RabbitMQConfig
	RedisConfig            RedisConfig
	Mail                   MailConfig
	Notification           NotificationConfig
	Sweep                  SweepConfig
}

type DatabaseConfig struct {
	Username     string `envconfig:"DB_USERNAME"`
	Password     string `envconfig:"DB_PASSWORD"`
	Host         string `envconfig:"DB_HOST"`
	Port         string `envconfig:"DB_PORT"`
	Database     string `envconfig:"DB_DATABASE"`
	DatabaseTest string `envconfig:"DB_DATABASE_TEST"`
	SSLMode      string `envconfig:"DB_SSL_MODE" default:"require"`
	PoolMaxConns int    `envconfig:"DB_POOL_MAX_CONNS" default:"4"`
}

type RabbitMQConfig struct {
	Username                   string `envconfig:"RABBIT_USERNAME"`
	Password                   string `envconfig:"RABBIT_PASSWORD"`
	Host                       string `envconfig:"RABBIT_HOST"`
	Port                       string `envconfig:"RABBIT_PORT"`
	NotificationsQueueName     string `envconfig:"NOTIFICATIONS_QUEUE_NAME" default:"task_notifications"`
	TestNotificationsQueueName string `envconfig:"TEST_NOTIFICATIONS_QUEUE_NAME" default:"task_notifications_test"`
}

type RedisConfig struct {
	Username string `envconfig:"REDIS_USERNAME"`
	Password string `envconfig:"REDIS_PASSWORD"`
	Host     string `envconfig:"REDIS_HOST"`
	Port     string `envconfig:"REDIS_PORT"`
	DBIndex  int32  `envconfig:"REDIS_DB_INDEX"`
}

type MailConfig struct {
	Backend      string `envconfig:"MAIL_BACKEND" default:"console"`
	SMTPHost     string `envconfig:"SMTP_HOST"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername string `envconfig:"SMTP_USERNAME"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	From         string `envconfig:"MAIL_FROM" default:"noreply@tmanager.local"`

	SMTPTimeOutInSeconds int64 `envconfig:"SMTP_TIME_OUT_IN_SECONDS" default:"30"`
}

type NotificationConfig struct {
	QueueBackend            string `envconfig:"NOTIFICATION_QUEUE_BACKEND" default:"rabbitmq"`
	LocalWorkers            int    `envconfig:"NOTIFICATION_LOCAL_WORKERS" default:"2"`
	LocalBuffer             int    `envconfig:"NOTIFICATION_LOCAL_BUFFER" default:"256"`
	MaxRetries              uint64 `envconfig:"NOTIFICATION_MAX_RETRIES" default:"3"`
	EnqueueTimeOutInSeconds int64  `envconfig:"NOTIFICATION_ENQUEUE_TIME_OUT_IN_SECONDS" default:"5"`
}

// SweepConfig holds the wall-clock time of the daily overdue sweep.
type SweepConfig struct {
	Hour     int    `envconfig:"SWEEP_HOUR" default:"9"`
	Minute   int    `envconfig:"SWEEP_MINUTE" default:"15"`
	Timezone string `envconfig:"SWEEP_TIMEZONE" default:"Asia/Almaty"`
}

// ToMigrationUri returns a string specifically for the migration package with the right prefix
func (d DatabaseConfig) ToMigrationUri() string {
	return fmt.Sprintf("pgx5://%s:%s@%s:%s/%s?sslmode=%s",
		d.Username,
		d.Password,
		d.Host,
		d.Port,
		d.Database,
		d.SSLMode,
	)
}

// ToTestMigrationUri returns a string specifically for the migration package with the right prefix for test database
func (d DatabaseConfig) ToTestMigrationUri() string {
	return fmt.Sprintf("pgx5://%s:%s@%s:%s/%s?sslmode=%s",
		d.Username,
		d.Password,
		d.Host,
		d.Port,
		d.DatabaseTest,
		d.SSLMode,
	)
}

// ToDbConnectionUri returns a connection URI to be used with the pgx package
func (d DatabaseConfig) ToDbConnectionUri() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s&pool_max_conns=%d",
		d.Username,
		d.Password,
		d.Host,
		d.Port,
		d.Database,
		d.SSLMode,
		d.PoolMaxConns,
	)
}

// ToRabbitConnectionUri returns a connection URI to be used with the rabbitmq/amqp091-go package
func (d RabbitMQConfig) ToRabbitConnectionUri() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/",
		d.Username,
		d.Password,
		d.Host,
		d.Port,
	)
}

// ToRedisConnectionUri returns a connection URI to be used with the redis/go-redis/v9 package
func (d RedisConfig) ToRedisConnectionUri() string {
	return fmt.Sprintf("redis://%s:%s@%s:%s/%d",
		d.Username,
		d.Password,
		d.Host,
		d.Port,
		d.DBIndex,
	)
}

// IsConfigured reports whether a redis host was provided; redis is optional for the server
func (d RedisConfig) IsConfigured() bool {
	return d.Host != ""
}

// SMTPAddr returns host:port of the SMTP relay
func (m MailConfig) SMTPAddr() string {
	return fmt.Sprintf("%s:%d", m.SMTPHost, m.SMTPPort)
}

func (m MailConfig) SMTPTimeout() time.Duration {
	return time.Duration(m.SMTPTimeOutInSeconds) * time.Second
}

func (n NotificationConfig) EnqueueTimeout() time.Duration {
	return time.Duration(n.EnqueueTimeOutInSeconds) * time.Second
}

// Location resolves the sweep timezone, falling back to UTC for unknown zones
func (s SweepConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		slog.Warn("Unknown sweep timezone, falling back to UTC", "timezone", s.Timezone, "error", err.Error())
		return time.UTC
	}

	return loc
}

func (c *Config) TaskLockTTL() time.Duration {
	return time.Duration(c.TaskLockTTLInSeconds) * time.Second
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// InitLogger installs the process-wide slog handler
func (c *Config) InitLogger() {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: c.SlogLevel()})
	slog.SetDefault(slog.New(h))
}

func InitConfig() *Config {
	err := godotenv.Load()

	if err != nil && !os.IsNotExist(err) {
		log.Fatalf("Unable to load .env %v", err)
	}

	var cfg Config
	err = envconfig.Process("", &cfg)
	if err != nil {
		log.Fatalf("Cannot load env: %v", err)
	}

	return &cfg
}
