package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/SunnyC0d3/booking-system-sub009/core/errors"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DenialPolicyFailOpen   = "fail_open"
	DenialPolicyFailClosed = "fail_closed"

	StorageDriverS3 = "s3"
	StorageDriverFS = "fs"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Queue     QueueConfig
	GoogleAPI GoogleAPIConfig
	Security  SecurityConfig
	Storage   StorageConfig
	Sync      SyncConfig
}

type ServerConfig struct {
	Host      string
	Port      int
	Env       string
	LogLevel  string
	AppOrigin string
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // minutes
	AutoMigrate     bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type QueueConfig struct {
	Concurrency       int
	ScheduledSyncCron string
	PurgeCron         string
}

type GoogleAPIConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	// APIEndpoint overrides the Calendar API base URL (tests, proxies).
	APIEndpoint string
	AuthURL     string
	TokenURL    string
	RevokeURL   string
}

type SecurityConfig struct {
	StateSecret     string
	EncryptionKey   string
	JWTSecret       string
	EnforceOriginIP bool
	DenialPolicy    string
}

type StorageConfig struct {
	Driver          string
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	LocalDir        string
}

type SyncConfig struct {
	DefaultFrequencyMinutes int
	BatchSize               int
	RetentionDays           int
	MaxErrorCount           int
	FeedTimeout             time.Duration
	FeedMaxAttempts         int
	MetadataTimeout         time.Duration
	StateTTL                time.Duration
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	envFile := strings.TrimSpace(os.Getenv("ENV_FILE"))
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Server: ServerConfig{
			Host:      v.GetString("server.host"),
			Port:      v.GetInt("server.port"),
			Env:       v.GetString("server.env"),
			LogLevel:  v.GetString("server.log_level"),
			AppOrigin: v.GetString("server.app_origin"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.name"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			AutoMigrate:     v.GetBool("database.auto_migrate"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Queue: QueueConfig{
			Concurrency:       v.GetInt("queue.concurrency"),
			ScheduledSyncCron: v.GetString("queue.scheduled_sync_cron"),
			PurgeCron:         v.GetString("queue.purge_cron"),
		},
		GoogleAPI: GoogleAPIConfig{
			ClientID:     v.GetString("google.client_id"),
			ClientSecret: v.GetString("google.client_secret"),
			RedirectURI:  v.GetString("google.redirect_uri"),
			APIEndpoint:  v.GetString("google.api_endpoint"),
			AuthURL:      v.GetString("google.auth_url"),
			TokenURL:     v.GetString("google.token_url"),
			RevokeURL:    v.GetString("google.revoke_url"),
		},
		Security: SecurityConfig{
			StateSecret:     v.GetString("security.state_secret"),
			EncryptionKey:   v.GetString("security.encryption_key"),
			JWTSecret:       v.GetString("security.jwt_secret"),
			EnforceOriginIP: v.GetBool("security.enforce_origin_ip"),
			DenialPolicy:    strings.ToLower(v.GetString("security.denial_policy")),
		},
		Storage: StorageConfig{
			Driver:          strings.ToLower(v.GetString("storage.driver")),
			Bucket:          v.GetString("storage.bucket"),
			Region:          v.GetString("storage.region"),
			Endpoint:        v.GetString("storage.endpoint"),
			AccessKeyID:     v.GetString("storage.access_key_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			LocalDir:        v.GetString("storage.local_dir"),
		},
		Sync: SyncConfig{
			DefaultFrequencyMinutes: v.GetInt("sync.default_frequency_minutes"),
			BatchSize:               v.GetInt("sync.batch_size"),
			RetentionDays:           v.GetInt("sync.retention_days"),
			MaxErrorCount:           v.GetInt("sync.max_error_count"),
			FeedTimeout:             time.Duration(v.GetInt("sync.feed_timeout_seconds")) * time.Second,
			FeedMaxAttempts:         v.GetInt("sync.feed_max_attempts"),
			MetadataTimeout:         time.Duration(v.GetInt("sync.metadata_timeout_seconds")) * time.Second,
			StateTTL:                time.Duration(v.GetInt("sync.state_ttl_minutes")) * time.Minute,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 7070)
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.app_origin", "booking.local")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "booking")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.scheduled_sync_cron", "@every 5m")
	v.SetDefault("queue.purge_cron", "@daily")

	v.SetDefault("security.denial_policy", DenialPolicyFailOpen)
	v.SetDefault("security.enforce_origin_ip", false)

	v.SetDefault("storage.driver", StorageDriverFS)
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.local_dir", "./storage")

	v.SetDefault("sync.default_frequency_minutes", 30)
	v.SetDefault("sync.batch_size", 50)
	v.SetDefault("sync.retention_days", 30)
	v.SetDefault("sync.max_error_count", 5)
	v.SetDefault("sync.feed_timeout_seconds", 30)
	v.SetDefault("sync.feed_max_attempts", 3)
	v.SetDefault("sync.metadata_timeout_seconds", 10)
	v.SetDefault("sync.state_ttl_minutes", 10)
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Security.StateSecret) == "" {
		missing = append(missing, "SECURITY_STATE_SECRET")
	}
	if strings.TrimSpace(c.Security.EncryptionKey) == "" {
		missing = append(missing, "SECURITY_ENCRYPTION_KEY")
	}
	if len(missing) > 0 {
		return errors.NewAppError(errors.ErrConfiguration,
			fmt.Sprintf("missing required settings: %s", strings.Join(missing, ", ")), nil)
	}

	switch c.Security.DenialPolicy {
	case DenialPolicyFailOpen, DenialPolicyFailClosed:
	default:
		return errors.NewAppError(errors.ErrConfiguration,
			fmt.Sprintf("unknown denial policy %q", c.Security.DenialPolicy), nil)
	}

	switch c.Storage.Driver {
	case StorageDriverFS:
	case StorageDriverS3:
		if c.Storage.Bucket == "" {
			return errors.NewAppError(errors.ErrConfiguration, "STORAGE_BUCKET is required for the s3 driver", nil)
		}
	default:
		return errors.NewAppError(errors.ErrConfiguration,
			fmt.Sprintf("unknown storage driver %q", c.Storage.Driver), nil)
	}
	return nil
}

// GoogleConfigured reports whether OAuth client credentials are present.
func (c *Config) GoogleConfigured() bool {
	return c.GoogleAPI.ClientID != "" && c.GoogleAPI.ClientSecret != "" && c.GoogleAPI.RedirectURI != ""
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}
