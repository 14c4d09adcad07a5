package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type ServerCfg struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseCfg struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN builds the postgres connection string.
func (d DatabaseCfg) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode,
	)
}

type RedisCfg struct {
	URL string `mapstructure:"url"`
}

type RateLimitCfg struct {
	Enabled bool          `mapstructure:"enabled"`
	Limit   int           `mapstructure:"limit"`
	Window  time.Duration `mapstructure:"window"`
}

type JWTCfg struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type AuthCfg struct {
	BcryptCost           int  `mapstructure:"bcrypt_cost"`
	RequireVerifiedLogin bool `mapstructure:"require_verified_login"`
}

type OTPCfg struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type NotifierCfg struct {
	Driver string `mapstructure:"driver"`
}

type SMTPCfg struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	Company  string `mapstructure:"company"`
}

type KafkaCfg struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type CORSCfg struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

type Config struct {
	Env       string       `mapstructure:"env"`
	Server    ServerCfg    `mapstructure:"server"`
	Database  DatabaseCfg  `mapstructure:"database"`
	Redis     RedisCfg     `mapstructure:"redis"`
	RateLimit RateLimitCfg `mapstructure:"ratelimit"`
	JWT       JWTCfg       `mapstructure:"jwt"`
	Auth      AuthCfg      `mapstructure:"auth"`
	OTP       OTPCfg       `mapstructure:"otp"`
	Notifier  NotifierCfg  `mapstructure:"notifier"`
	SMTP      SMTPCfg      `mapstructure:"smtp"`
	Kafka     KafkaCfg     `mapstructure:"kafka"`
	CORS      CORSCfg      `mapstructure:"cors"`
}

// Development reports whether the service runs with developer defaults.
func (c *Config) Development() bool {
	return c.Env == "" || c.Env == "development"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "devforum")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("redis.url", "redis://redis:6379")

	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.limit", 10)
	v.SetDefault("ratelimit.window", time.Minute)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.ttl", 7*24*time.Hour)

	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("auth.require_verified_login", false)

	v.SetDefault("otp.ttl", 10*time.Minute)

	v.SetDefault("notifier.driver", "log")

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", "587")
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")
	v.SetDefault("smtp.company", "DevForum")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "notifications.otp")

	v.SetDefault("cors.allow_origins", []string{"*"})
}

// Load reads an optional .env file and then resolves every key from the
// environment (APP_SERVER_PORT, APP_JWT_SECRET, ...) over the defaults.
// envFiles are passed to godotenv; a missing file is not an error.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && len(envFiles) > 0 {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.JWT.Secret == "" {
		if !c.Development() {
			return fmt.Errorf("jwt.secret must be set outside development")
		}
		c.JWT.Secret = "dev-secret-change-me"
	}
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	switch c.Notifier.Driver {
	case "smtp", "kafka":
	case "log":
		if !c.Development() {
			return fmt.Errorf("notifier.driver log is only allowed in development")
		}
	default:
		return fmt.Errorf("unknown notifier.driver %q", c.Notifier.Driver)
	}
	if c.Auth.BcryptCost == 0 {
		c.Auth.BcryptCost = 10
	}
	return nil
}
