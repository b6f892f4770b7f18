package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config struct is the top-level configuration structure.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RabbitMQ  RabbitMQConfig  `mapstructure:"rabbitmq"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Quizzes   QuizzesConfig   `mapstructure:"quizzes"`
	Client    ClientConfig    `mapstructure:"client"`
}

// ServerConfig holds server-related settings.
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	StartRateLimit int      `mapstructure:"start_rate_limit"` // attempts started per student per minute
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // postgres or sqlite
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Path     string `mapstructure:"path"` // sqlite file
}

// LoggingConfig holds settings for the logger.
type LoggingConfig struct {
	Directory  string `mapstructure:"directory"`
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// AuthConfig holds the shared secret used to verify bearer tokens.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// RedisConfig enables the quiz definition cache when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// RabbitMQConfig enables attempt events when URL is set.
type RabbitMQConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

// SchedulerConfig controls the server-side expiry sweeper.
type SchedulerConfig struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	ExpiryGrace   time.Duration `mapstructure:"expiry_grace"`
}

// QuizzesConfig points at the YAML file quizzes are seeded from.
type QuizzesConfig struct {
	SeedFile string `mapstructure:"seed_file"`
}

// ClientConfig holds settings for the terminal quiz client.
type ClientConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// setDefaults sets the default values for the configuration.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "5050")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.start_rate_limit", 5)

	// Database defaults
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "db")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "user")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.dbname", "quizrun-db")
	v.SetDefault("database.path", "quizrun.db")

	// Logging defaults
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.max_size", 10)   // 10 MB
	v.SetDefault("logging.max_backups", 3) // Keep 3 backups
	v.SetDefault("logging.max_age", 7)     // 7 days
	v.SetDefault("logging.compress", true) // Compress old logs

	// Keys without a default must still be known to viper so that
	// QUIZRUN_* variables reach Unmarshal.
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "quizrun")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 10*time.Minute)
	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.exchange", "quizrun.events")

	v.SetDefault("scheduler.sweep_interval", 30*time.Second)
	v.SetDefault("scheduler.expiry_grace", 15*time.Second)

	v.SetDefault("quizzes.seed_file", "config/quizzes.yaml")

	v.SetDefault("client.base_url", "http://localhost:5050")
	v.SetDefault("client.token", "")
	v.SetDefault("client.timeout", 10*time.Second)
}

// Load reads configuration from projectRoot/config/config.yaml, a .env file in
// projectRoot and QUIZRUN_* environment variables, in increasing priority.
func Load(projectRoot string) (*Config, *viper.Viper, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load(filepath.Join(projectRoot, ".env"))

	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(filepath.Join(projectRoot, "config"))
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("QUIZRUN") // e.g., QUIZRUN_SERVER_PORT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// It's okay if the file doesn't exist; defaults and env vars will be used.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return nil, nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	return &conf, v, nil
}

// Watch sets up hot-reloading of the config file. onChange receives the freshly
// decoded configuration; the original *Config is never mutated.
func Watch(v *viper.Viper, log *zap.Logger, onChange func(*Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Info("Configuration file changed, reloading.", zap.String("file", e.Name))
		var conf Config
		if err := v.Unmarshal(&conf); err != nil {
			log.Error("Error reloading configuration", zap.Error(err))
			return
		}
		onChange(&conf)
	})
	v.WatchConfig()
}
