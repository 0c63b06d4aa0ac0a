package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. CHAT_AUTH_JWT_SECRET.
const EnvPrefix = "CHAT"

type GRPC struct {
	Addr        string        `yaml:"addr" envconfig:"addr"`
	CallTimeout time.Duration `yaml:"callTimeout" envconfig:"call_timeout"`
}

type HTTP struct {
	Addr            string        `yaml:"addr" envconfig:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout" envconfig:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout" envconfig:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout" envconfig:"idle_timeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout" envconfig:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" envconfig:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowedOrigins" envconfig:"allowed_origins"`
}

type Logging struct {
	Env       string `yaml:"env" envconfig:"env"`              // dev|stage|prod
	Service   string `yaml:"service" envconfig:"service"`      // event-chat
	Version   string `yaml:"version" envconfig:"version"`      // v0.1.0
	Backend   string `yaml:"backend" envconfig:"backend"`      // std|zap
	AddSource bool   `yaml:"addSource" envconfig:"add_source"` // false|true
	Debug     bool   `yaml:"debug" envconfig:"debug"`          // false|true
}

type Storage struct {
	Driver     string `yaml:"driver" envconfig:"driver"`          // postgres|badger
	BadgerPath string `yaml:"badgerPath" envconfig:"badger_path"` // пусто: in-memory
	SeedFile   string `yaml:"seedFile" envconfig:"seed_file"`     // только для badger
}

type Postgres struct {
	DSN             string        `yaml:"dsn" envconfig:"dsn"`
	MaxConns        int32         `yaml:"maxConns" envconfig:"max_conns"`
	MinConns        int32         `yaml:"minConns" envconfig:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"maxConnLifetime" envconfig:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"maxConnIdleTime" envconfig:"max_conn_idle_time"`
}

type Auth struct {
	JWTSecret string        `yaml:"jwtSecret" envconfig:"jwt_secret"`
	Issuer    string        `yaml:"issuer" envconfig:"issuer"`
	ClockSkew time.Duration `yaml:"clockSkew" envconfig:"clock_skew"`
}

type Chat struct {
	HistoryLimit     int           `yaml:"historyLimit" envconfig:"history_limit"`
	MaxContentLength int           `yaml:"maxContentLength" envconfig:"max_content_length"`
	SendBuffer       int           `yaml:"sendBuffer" envconfig:"send_buffer"`
	PingInterval     time.Duration `yaml:"pingInterval" envconfig:"ping_interval"`
	WriteTimeout     time.Duration `yaml:"writeTimeout" envconfig:"write_timeout"`
	ReadLimit        int64         `yaml:"readLimit" envconfig:"read_limit"`
}

type Config struct {
	HTTP     HTTP     `yaml:"http" envconfig:"http"`
	GRPC     GRPC     `yaml:"grpc" envconfig:"grpc"`
	Logging  Logging  `yaml:"logging" envconfig:"logging"`
	Storage  Storage  `yaml:"storage" envconfig:"storage"`
	Postgres Postgres `yaml:"postgres" envconfig:"postgres"`
	Auth     Auth     `yaml:"auth" envconfig:"auth"`
	Chat     Chat     `yaml:"chat" envconfig:"chat"`
}

// LoadConfig: .env (если есть) -> YAML из CONFIG_PATH -> переменные CHAT_* -> дефолты.
// A missing YAML file is fine unless CONFIG_PATH names it explicitly.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	path, explicit := os.LookupEnv("CONFIG_PATH")
	if !explicit || path == "" {
		path = "./config/config.yaml"
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.setDefaults()

	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.GRPC.Addr == "" {
		return errors.New("grpc.addr is required")
	}
	switch c.Storage.Driver {
	case "postgres":
		if c.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required")
		}
	case "badger":
	default:
		return fmt.Errorf("storage.driver %q: want postgres or badger", c.Storage.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwtSecret is required")
	}
	if c.Chat.HistoryLimit < 1 || c.Chat.HistoryLimit > 1000 {
		return fmt.Errorf("chat.historyLimit %d out of range [1, 1000]", c.Chat.HistoryLimit)
	}
	if c.Chat.MaxContentLength < 1 {
		return errors.New("chat.maxContentLength must be positive")
	}
	return nil
}

// установка дефолтов, если значения не указаны
func (c *Config) setDefaults() {
	if c.Logging.Service == "" {
		c.Logging.Service = "event-chat"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "postgres"
	}

	c.HTTP.ReadTimeout = durationOr(c.HTTP.ReadTimeout, 10*time.Second)
	c.HTTP.WriteTimeout = durationOr(c.HTTP.WriteTimeout, 15*time.Second)
	c.HTTP.IdleTimeout = durationOr(c.HTTP.IdleTimeout, 60*time.Second)
	c.HTTP.RequestTimeout = durationOr(c.HTTP.RequestTimeout, 30*time.Second)
	c.HTTP.ShutdownTimeout = durationOr(c.HTTP.ShutdownTimeout, 10*time.Second)
	c.GRPC.CallTimeout = durationOr(c.GRPC.CallTimeout, 10*time.Second)

	if c.Chat.HistoryLimit == 0 {
		c.Chat.HistoryLimit = 100
	}
	if c.Chat.MaxContentLength == 0 {
		c.Chat.MaxContentLength = 4000
	}
	if c.Chat.SendBuffer <= 0 {
		c.Chat.SendBuffer = 64
	}
	if c.Chat.ReadLimit <= 0 {
		c.Chat.ReadLimit = 64 << 10
	}
	c.Chat.PingInterval = durationOr(c.Chat.PingInterval, 15*time.Second)
	c.Chat.WriteTimeout = durationOr(c.Chat.WriteTimeout, 5*time.Second)
}

func durationOr(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
