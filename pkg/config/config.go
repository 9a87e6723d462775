package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Port    int           `mapstructure:"port" default:"8000"`
	Mode    string        `mapstructure:"mode"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	Timezone        string        `mapstructure:"timezone"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	RetryAttempts   int           `mapstructure:"retry_attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JobsConfig controls the background scoring pipeline: queue lanes,
// dispatch delays and retry budgets per job family.
type JobsConfig struct {
	WorkerCount       int           `mapstructure:"worker_count"`
	SimilarityDelay   time.Duration `mapstructure:"similarity_delay"`
	TrendingDelay     time.Duration `mapstructure:"trending_delay"`
	CacheWarmDelay    time.Duration `mapstructure:"cache_warm_delay"`
	BatchWarmDelay    time.Duration `mapstructure:"batch_warm_delay"`
	InteractionTries  int           `mapstructure:"interaction_tries"`
	ScoringTries      int           `mapstructure:"scoring_tries"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff"`
	ProfileCacheTTL   time.Duration `mapstructure:"profile_cache_ttl"`
	RecommendationTTL time.Duration `mapstructure:"recommendation_ttl"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func LoadConfig(configPath string) (*Config, error) {
	var config Config

	// If CONFIG_FILE environment variable is set, use it
	if envConfigFile := os.Getenv("CONFIG_FILE"); envConfigFile != "" {
		configPath = envConfigFile
	}

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		dir := filepath.Dir(configPath)
		file := filepath.Base(configPath)
		ext := filepath.Ext(file)
		name := strings.TrimSuffix(file, ext)

		v.AddConfigPath(dir)
		v.SetConfigName(name)
	} else {
		// Fallback to default locations
		_, filename, _, _ := runtime.Caller(0)
		pkgConfigDir := filepath.Dir(filename)
		projectRoot := filepath.Join(pkgConfigDir, "..", "..")

		v.AddConfigPath(pkgConfigDir)
		v.AddConfigPath(projectRoot)
		v.AddConfigPath(filepath.Join(projectRoot, "pkg", "config"))
		v.SetConfigName("config")
	}

	setJobDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error loading config file: %v", err)
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	envVars := map[string]string{
		"database.host":     "DB_HOST",
		"database.port":     "DB_PORT",
		"database.user":     "DB_USER",
		"database.password": "DB_PASSWORD",
		"database.name":     "DB_NAME",
		"database.sslmode":  "DB_SSLMODE",
		"server.mode":       "SERVER_MODE",
		"server.port":       "SERVER_PORT",
		"server.timeout":    "SERVER_TIMEOUT",
		"redis.host":        "REDIS_HOST",
		"redis.port":        "REDIS_PORT",
		"redis.password":    "REDIS_PASSWORD",
		"redis.db":          "REDIS_DB",
		"jobs.worker_count": "JOBS_WORKER_COUNT",
		"logging.level":     "LOG_LEVEL",
		"logging.format":    "LOG_FORMAT",
	}

	for configKey, envVar := range envVars {
		if value := os.Getenv(envVar); value != "" {
			switch envVar {
			case "DB_PORT", "REDIS_PORT", "REDIS_DB", "SERVER_PORT", "JOBS_WORKER_COUNT":
				if intVal, err := strconv.Atoi(value); err == nil {
					v.Set(configKey, intVal)
				}
			case "SERVER_TIMEOUT":
				if d, err := time.ParseDuration(value); err == nil {
					v.Set(configKey, d)
				}
			default:
				v.Set(configKey, value)
			}
		}
	}

	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %v", err)
	}

	return &config, nil
}

// setJobDefaults applies the dispatch policy the pipeline assumes when the
// config file leaves the jobs section out.
func setJobDefaults(v *viper.Viper) {
	v.SetDefault("jobs.worker_count", 4)
	v.SetDefault("jobs.similarity_delay", time.Minute)
	v.SetDefault("jobs.trending_delay", 30*time.Second)
	v.SetDefault("jobs.cache_warm_delay", 5*time.Second)
	v.SetDefault("jobs.batch_warm_delay", 10*time.Second)
	v.SetDefault("jobs.interaction_tries", 3)
	v.SetDefault("jobs.scoring_tries", 2)
	v.SetDefault("jobs.retry_backoff", 15*time.Second)
	v.SetDefault("jobs.profile_cache_ttl", 10*time.Minute)
	v.SetDefault("jobs.recommendation_ttl", 10*time.Minute)
}
