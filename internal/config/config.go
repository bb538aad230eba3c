package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/elid/devicesim/internal/devicesim/types"
)

type Config struct {
	Env string `yaml:"env"` // "dev" | "prod"

	HTTP     HTTPConfig     `yaml:"http"`
	GRPC     GRPCConfig     `yaml:"grpc"`
	Database DatabaseConfig `yaml:"database"`
	Workers  WorkersConfig  `yaml:"workers"`
	Logging  LoggingConfig  `yaml:"logging"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Seed     SeedConfig     `yaml:"seed"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// GRPCConfig configures the health service. An empty Addr disables it.
type GRPCConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	Path        string        `yaml:"path"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

type WorkersConfig struct {
	MinDelay    time.Duration `yaml:"min_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	StopGrace   time.Duration `yaml:"stop_grace"`
	SinkTimeout time.Duration `yaml:"sink_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // trace|debug|info|warn|error
	Format string `yaml:"format"` // json|console
}

type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig delays are in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"` // seconds
}

// SeedConfig lists devices inserted at startup in the dev environment.
type SeedConfig struct {
	Devices []SeedDevice `yaml:"devices"`
}

type SeedDevice struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	Type      string `yaml:"type"`
	IPAddress string `yaml:"ip_address"`
	Active    bool   `yaml:"active"`
}

// Default returns the configuration used when no file or env overrides are
// present.
func Default() *Config {
	return &Config{
		Env: "dev",
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		GRPC: GRPCConfig{Addr: ":9090"},
		Database: DatabaseConfig{
			Path:        "./data/devicesim.db",
			BusyTimeout: 5 * time.Second,
		},
		Workers: WorkersConfig{
			MinDelay:    2 * time.Second,
			MaxDelay:    10 * time.Second,
			StopGrace:   3 * time.Second,
			SinkTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "devicesim",
			},
			QoS:         1,
			TopicPrefix: "devicesim",
			Reconnect:   MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 60},
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Bucket:        "devicesim",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Seed: SeedConfig{Devices: []SeedDevice{
			{ID: "acc-lobby-01", Name: "Lobby Door", Type: "access_controller", IPAddress: "192.168.10.11", Active: true},
			{ID: "face-lobby-01", Name: "Lobby Face Reader", Type: "face_reader", IPAddress: "192.168.10.21"},
			{ID: "anpr-gate-01", Name: "Car Park Gate", Type: "anpr", IPAddress: "192.168.10.31", Active: true},
		}},
	}
}

// Load builds the configuration in layers: defaults, then the YAML file at
// path (skipped when path is empty), then DEVICESIM_* environment variables.
// A .env file in the working directory is loaded first without overriding
// variables already set.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "reading config file")
		}
		// Keys absent from the file keep their defaults; present keys win
		// even when they hold a zero value.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "parsing config file")
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating config")
	}
	return cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "stat .env")
	}
	return errors.Wrap(godotenv.Load(path), "loading .env")
}

func applyEnvOverrides(cfg *Config) {
	env := strings.ToLower(getenvDefault("DEVICESIM_ENV", cfg.Env))
	if env != "dev" && env != "prod" {
		// fail-soft: treat unknown as dev
		env = "dev"
	}
	cfg.Env = env

	cfg.HTTP.Addr = getenvDefault("DEVICESIM_HTTP_ADDR", cfg.HTTP.Addr)
	if v, ok := os.LookupEnv("DEVICESIM_GRPC_ADDR"); ok {
		cfg.GRPC.Addr = strings.TrimSpace(v)
	}
	// "off" reads better than an empty string in YAML and env files.
	if strings.EqualFold(cfg.GRPC.Addr, "off") {
		cfg.GRPC.Addr = ""
	}

	cfg.Database.Path = getenvDefault("DEVICESIM_DB_PATH", cfg.Database.Path)

	cfg.Workers.MinDelay = getenvDuration("DEVICESIM_WORKER_MIN_DELAY", cfg.Workers.MinDelay)
	cfg.Workers.MaxDelay = getenvDuration("DEVICESIM_WORKER_MAX_DELAY", cfg.Workers.MaxDelay)
	cfg.Workers.StopGrace = getenvDuration("DEVICESIM_WORKER_STOP_GRACE", cfg.Workers.StopGrace)
	cfg.Workers.SinkTimeout = getenvDuration("DEVICESIM_WORKER_SINK_TIMEOUT", cfg.Workers.SinkTimeout)

	cfg.Logging.Level = getenvDefault("DEVICESIM_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getenvDefault("DEVICESIM_LOG_FORMAT", cfg.Logging.Format)

	cfg.MQTT.Enabled = getenvBool("DEVICESIM_MQTT_ENABLED", cfg.MQTT.Enabled)
	cfg.MQTT.Broker.Host = getenvDefault("DEVICESIM_MQTT_HOST", cfg.MQTT.Broker.Host)
	cfg.MQTT.Broker.Port = getenvInt("DEVICESIM_MQTT_PORT", cfg.MQTT.Broker.Port)
	cfg.MQTT.Auth.Username = getenvDefault("DEVICESIM_MQTT_USERNAME", cfg.MQTT.Auth.Username)
	cfg.MQTT.Auth.Password = getenvDefault("DEVICESIM_MQTT_PASSWORD", cfg.MQTT.Auth.Password)

	cfg.InfluxDB.Enabled = getenvBool("DEVICESIM_INFLUXDB_ENABLED", cfg.InfluxDB.Enabled)
	cfg.InfluxDB.URL = getenvDefault("DEVICESIM_INFLUXDB_URL", cfg.InfluxDB.URL)
	cfg.InfluxDB.Token = getenvDefault("DEVICESIM_INFLUXDB_TOKEN", cfg.InfluxDB.Token)
	cfg.InfluxDB.Org = getenvDefault("DEVICESIM_INFLUXDB_ORG", cfg.InfluxDB.Org)
	cfg.InfluxDB.Bucket = getenvDefault("DEVICESIM_INFLUXDB_BUCKET", cfg.InfluxDB.Bucket)

	if ids := splitCSV(os.Getenv("DEVICESIM_SEED_ACTIVE")); ids != nil {
		active := make(map[string]bool, len(ids))
		for _, id := range ids {
			active[id] = true
		}
		for i := range cfg.Seed.Devices {
			cfg.Seed.Devices[i].Active = active[cfg.Seed.Devices[i].ID]
		}
	}
}

// Validate reports the first setting that would stop the server from
// starting.
func (c *Config) Validate() error {
	if c.Env != "dev" && c.Env != "prod" {
		return errors.Errorf("env must be dev or prod, got %q", c.Env)
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return errors.New("http.addr is required")
	}
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}

	w := c.Workers
	if w.MinDelay <= 0 || w.MaxDelay <= 0 {
		return errors.New("workers.min_delay and workers.max_delay must be positive")
	}
	if w.MaxDelay < w.MinDelay {
		return errors.Errorf("workers.max_delay (%s) is below workers.min_delay (%s)", w.MaxDelay, w.MinDelay)
	}
	if w.StopGrace <= 0 || w.SinkTimeout <= 0 {
		return errors.New("workers.stop_grace and workers.sink_timeout must be positive")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return errors.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" || c.MQTT.Broker.Port <= 0 {
			return errors.New("mqtt.broker.host and mqtt.broker.port are required when mqtt is enabled")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			return errors.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
		}
	}
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "") {
		return errors.New("influxdb.url, influxdb.org and influxdb.bucket are required when influxdb is enabled")
	}

	for _, d := range c.Seed.Devices {
		if _, ok := types.ParseDeviceType(d.Type); !ok {
			return errors.Errorf("seed device %q: unknown type %q", d.ID, d.Type)
		}
	}
	return nil
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func getenvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
