package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the basket daemon configuration.
type Config struct {
	Port      string
	DBPath    string
	LogLevel  string
	LogFormat string

	// Remote sync. An empty CloudURL runs the daemon guest-only.
	CloudURL   string
	CloudToken string

	// Cross-instance change notification. Empty keeps notifications in-process.
	RedisURL string

	RoutingURL      string
	ProximityMeters float64
	CooldownMinutes int

	SyncMaxAttempts int
	RefreshInterval time.Duration

	VAPIDPublicKey  string
	VAPIDPrivateKey string

	CaptureURL string

	// Encrypted snapshots of the local database to S3-compatible storage.
	BackupEndpoint   string
	BackupBucket     string
	BackupRegion     string
	BackupAccessKey  string
	BackupSecretKey  string
	BackupPrefix     string
	BackupPassphrase string
	BackupInterval   time.Duration
	BackupRetain     int
}

// CloudConfig holds the basket-cloud service configuration.
type CloudConfig struct {
	Port      string
	DBPath    string
	LogLevel  string
	LogFormat string
	Token     string
	RateLimit int
}

func Load() Config {
	return Config{
		Port:            getenv("BASKET_PORT", "8080"),
		DBPath:          getenv("BASKET_DB_PATH", "basket.db"),
		LogLevel:        getenv("BASKET_LOG_LEVEL", "info"),
		LogFormat:       getenv("BASKET_LOG_FORMAT", "text"),
		CloudURL:        getenv("BASKET_CLOUD_URL", ""),
		CloudToken:      getenv("BASKET_CLOUD_TOKEN", ""),
		RedisURL:        getenv("BASKET_REDIS_URL", ""),
		RoutingURL:      getenv("BASKET_ROUTING_URL", ""),
		ProximityMeters: getenvFloat("BASKET_PROXIMITY_METERS", 50),
		CooldownMinutes: getenvInt("BASKET_COOLDOWN_MINUTES", 30),
		SyncMaxAttempts: getenvInt("BASKET_SYNC_MAX_ATTEMPTS", 0),
		RefreshInterval: getenvDuration("BASKET_REFRESH_INTERVAL", 60*time.Second),
		VAPIDPublicKey:  getenv("BASKET_VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey: getenv("BASKET_VAPID_PRIVATE_KEY", ""),
		CaptureURL:      getenv("BASKET_CAPTURE_URL", ""),

		BackupEndpoint:   getenv("BASKET_BACKUP_ENDPOINT", ""),
		BackupBucket:     getenv("BASKET_BACKUP_BUCKET", ""),
		BackupRegion:     getenv("BASKET_BACKUP_REGION", "us-east-1"),
		BackupAccessKey:  getenv("BASKET_BACKUP_ACCESS_KEY", ""),
		BackupSecretKey:  getenv("BASKET_BACKUP_SECRET_KEY", ""),
		BackupPrefix:     getenv("BASKET_BACKUP_PREFIX", "basket"),
		BackupPassphrase: getenv("BASKET_BACKUP_PASSPHRASE", ""),
		BackupInterval:   getenvDuration("BASKET_BACKUP_INTERVAL", 24*time.Hour),
		BackupRetain:     getenvInt("BASKET_BACKUP_RETAIN", 7),
	}
}

func LoadCloud() CloudConfig {
	return CloudConfig{
		Port:      getenv("BASKET_CLOUD_PORT", "8090"),
		DBPath:    getenv("BASKET_CLOUD_DB_PATH", "basket-cloud.db"),
		LogLevel:  getenv("BASKET_LOG_LEVEL", "info"),
		LogFormat: getenv("BASKET_LOG_FORMAT", "text"),
		Token:     getenv("BASKET_CLOUD_TOKEN", ""),
		RateLimit: getenvInt("BASKET_CLOUD_RATE_LIMIT", 120),
	}
}

// SyncEnabled reports whether a remote collaborator is configured.
func (c Config) SyncEnabled() bool {
	return c.CloudURL != ""
}

// PushEnabled reports whether both VAPID keys are present.
func (c Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

// BackupEnabled reports whether bucket, credentials and passphrase are all set.
func (c Config) BackupEnabled() bool {
	return c.BackupBucket != "" && c.BackupAccessKey != "" && c.BackupSecretKey != "" && c.BackupPassphrase != ""
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// getenvDuration accepts Go duration strings ("90s") or bare seconds ("90").
func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
