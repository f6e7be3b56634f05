package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	Retention RetentionConfig
	Ingestion IngestionConfig
	Reconcile ReconcileConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	AllowedOrigins []string
	Development    bool
}

type SQLiteConfig struct {
	Path string
}

// RedisConfig enables the cross-process ingestion lock. When disabled the
// lock is held in-process only.
type RedisConfig struct {
	Enabled         bool
	Host            string
	Port            int
	Password        string
	DB              int
	LockTTLSeconds  int
	LockWaitSeconds int
}

type RetentionConfig struct {
	Keep int
}

type IngestionConfig struct {
	PrimarySheet       string
	SecondarySheet     string
	HeaderScanRows     int
	HardResetPrimary   bool
	HardResetSecondary bool
	MaxUploadBytes     int
}

type GroupConfig struct {
	Key         string
	Label       string
	Disciplines []string
}

type ReconcileConfig struct {
	PendingFormula    string
	MaxPageSize       int
	MaxUnmatchedLimit int
	Groups            []GroupConfig
}

type RateLimitConfig struct {
	UploadsPerMinute int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/recon")

	v.SetEnvPrefix("RECON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects settings the engines cannot run with.
func (c *Config) Validate() error {
	if c.Retention.Keep < 2 {
		return fmt.Errorf("retention.keep must be at least 2, got %d", c.Retention.Keep)
	}
	switch c.Reconcile.PendingFormula {
	case "universe", "closed":
	default:
		return fmt.Errorf("reconcile.pendingFormula must be \"universe\" or \"closed\", got %q", c.Reconcile.PendingFormula)
	}
	if c.Reconcile.MaxPageSize < 1 {
		return fmt.Errorf("reconcile.maxPageSize must be positive")
	}
	if c.Reconcile.MaxUnmatchedLimit < 1 {
		return fmt.Errorf("reconcile.maxUnmatchedLimit must be positive")
	}
	seen := make(map[string]bool)
	for _, g := range c.Reconcile.Groups {
		key := strings.ToLower(strings.TrimSpace(g.Key))
		if key == "" {
			return fmt.Errorf("reconcile.groups: group without key")
		}
		if seen[key] {
			return fmt.Errorf("reconcile.groups: duplicate key %q", g.Key)
		}
		seen[key] = true
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 60)
	v.SetDefault("server.writeTimeout", 300)
	v.SetDefault("server.bodyLimit", 64*1024*1024)
	v.SetDefault("server.allowedOrigins", []string{"http://localhost:5173", "http://127.0.0.1:5173"})
	v.SetDefault("server.development", false)

	v.SetDefault("sqlite.path", "./data/recon.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lockTTLSeconds", 300)
	v.SetDefault("redis.lockWaitSeconds", 30)

	v.SetDefault("retention.keep", 2)

	v.SetDefault("ingestion.primarySheet", "APSA")
	v.SetDefault("ingestion.secondarySheet", "Cargados ACONEX")
	v.SetDefault("ingestion.headerScanRows", 20)
	v.SetDefault("ingestion.hardResetPrimary", false)
	v.SetDefault("ingestion.hardResetSecondary", true)
	v.SetDefault("ingestion.maxUploadBytes", 50*1024*1024)

	v.SetDefault("reconcile.pendingFormula", "universe")
	v.SetDefault("reconcile.maxPageSize", 500)
	v.SetDefault("reconcile.maxUnmatchedLimit", 1000)
	v.SetDefault("reconcile.groups", DefaultGroups())

	v.SetDefault("rateLimit.uploadsPerMinute", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}

// DefaultGroups is the business partition of discipline codes 50-58.
func DefaultGroups() []GroupConfig {
	return []GroupConfig{
		{Key: "obra", Label: "Obra civil", Disciplines: []string{"50", "51", "52", "53", "54"}},
		{Key: "mecanico", Label: "Mecánico Pipping", Disciplines: []string{"55", "56"}},
		{Key: "ie", Label: "I&E", Disciplines: []string{"57", "58"}},
	}
}
