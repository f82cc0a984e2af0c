package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers.
const (
	StoreSQLite = "sqlite"
	StoreFile   = "file"
	StoreMemory = "memory"
)

// Catch-up strategies.
const (
	CatchUpLocal  = "local"
	CatchUpRemote = "remote"
)

const (
	minMonitorCadence = 500 * time.Millisecond
	maxMonitorCadence = time.Second
)

const envPrefix = "WATER_TIMER"

// Config is the full application configuration.
type Config struct {
	Port     string         `mapstructure:"port"`
	Log      LogConfig      `mapstructure:"log"`
	DB       DBConfig       `mapstructure:"db"`
	Store    StoreConfig    `mapstructure:"store"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	CatchUp  CatchUpConfig  `mapstructure:"catch_up"`
	TimeSync TimeSyncConfig `mapstructure:"timesync"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Auth     AuthConfig     `mapstructure:"auth"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Influx   InfluxConfig   `mapstructure:"influx"`
	Valve    ValveConfig    `mapstructure:"valve"`
	HTTP     HTTPConfig     `mapstructure:"http"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console | json
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

// StoreConfig selects where the schedule keys live.
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // sqlite | file | memory
	Path   string `mapstructure:"path"`   // file driver only
}

type ScheduleConfig struct {
	DefaultIntervalDays  int           `mapstructure:"default_interval_days"`
	DefaultIntervalHours int           `mapstructure:"default_interval_hours"`
	DefaultDurationMS    int64         `mapstructure:"default_duration_ms"`
	Tick                 time.Duration `mapstructure:"tick"`
}

type CatchUpConfig struct {
	Strategy        string `mapstructure:"strategy"` // local | remote
	MaxRemoteSteps  int    `mapstructure:"max_remote_steps"`
	MaxFailedCycles int    `mapstructure:"max_failed_cycles"`
}

type TimeSyncConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	BaseURL       string        `mapstructure:"base_url"`
	TimeZone      string        `mapstructure:"time_zone"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Retries       int           `mapstructure:"retries"`
	Resync        string        `mapstructure:"resync"` // cron spec, e.g. "@every 1h"
	BeforeCatchUp bool          `mapstructure:"before_catch_up"`
	RatePerSec    float64       `mapstructure:"rate_per_sec"`
	BreakerFails  int           `mapstructure:"breaker_fails"`
	BreakerOpen   time.Duration `mapstructure:"breaker_open"`
}

type MonitorConfig struct {
	Cadence time.Duration `mapstructure:"cadence"`
}

type AuthConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	SigningKey string        `mapstructure:"signing_key"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Topic    string `mapstructure:"topic"`
	QoS      byte   `mapstructure:"qos"`
}

type InfluxConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Token   string `mapstructure:"token"`
	Org     string `mapstructure:"org"`
	Bucket  string `mapstructure:"bucket"`
}

type ValveConfig struct {
	Name string `mapstructure:"name"`
}

type HTTPConfig struct {
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("db.path", "water_timer.db")
	v.SetDefault("store.driver", StoreSQLite)
	v.SetDefault("store.path", "water_timer.schedule.json")

	v.SetDefault("schedule.default_interval_days", 1)
	v.SetDefault("schedule.default_interval_hours", 0)
	v.SetDefault("schedule.default_duration_ms", 5000)
	v.SetDefault("schedule.tick", time.Second)

	v.SetDefault("catch_up.strategy", CatchUpLocal)
	v.SetDefault("catch_up.max_remote_steps", 48)
	v.SetDefault("catch_up.max_failed_cycles", 5)

	v.SetDefault("timesync.enabled", true)
	v.SetDefault("timesync.base_url", "https://timeapi.io")
	v.SetDefault("timesync.time_zone", "UTC")
	v.SetDefault("timesync.timeout", 5*time.Second)
	v.SetDefault("timesync.retries", 2)
	v.SetDefault("timesync.resync", "@every 1h")
	v.SetDefault("timesync.before_catch_up", false)
	v.SetDefault("timesync.rate_per_sec", 2.0)
	v.SetDefault("timesync.breaker_fails", 3)
	v.SetDefault("timesync.breaker_open", 30*time.Second)

	v.SetDefault("monitor.cadence", 500*time.Millisecond)

	v.SetDefault("auth.enabled", true)
	v.SetDefault("auth.signing_key", "change-me")
	v.SetDefault("auth.token_ttl", time.Hour)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "water-timer")
	v.SetDefault("mqtt.topic", "water_timer/events")
	v.SetDefault("mqtt.qos", 1)

	v.SetDefault("influx.enabled", false)
	v.SetDefault("influx.url", "http://localhost:8086")
	v.SetDefault("influx.org", "org")
	v.SetDefault("influx.bucket", "watering")

	v.SetDefault("valve.name", "hose")

	v.SetDefault("http.read_header_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
}

// Load reads the config file (configs/config.yml unless path is set),
// applies WATER_TIMER_* environment overrides and validates the result.
// A missing config file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("configs") // configs/config.yml
		v.SetConfigName("config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	switch c.Log.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}

	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	switch c.Store.Driver {
	case StoreSQLite, StoreFile, StoreMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver == StoreFile && strings.TrimSpace(c.Store.Path) == "" {
		return errors.New("store.path is required for the file driver")
	}

	c.CatchUp.Strategy = strings.ToLower(strings.TrimSpace(c.CatchUp.Strategy))
	switch c.CatchUp.Strategy {
	case CatchUpLocal, CatchUpRemote:
	default:
		return fmt.Errorf("unknown catch_up strategy %q", c.CatchUp.Strategy)
	}
	if c.CatchUp.Strategy == CatchUpRemote && !c.TimeSync.Enabled {
		return errors.New("catch_up.strategy=remote requires timesync.enabled")
	}
	if c.CatchUp.MaxRemoteSteps <= 0 {
		c.CatchUp.MaxRemoteSteps = 1
	}

	if c.Schedule.Tick <= 0 {
		c.Schedule.Tick = time.Second
	}
	if c.Monitor.Cadence < minMonitorCadence {
		c.Monitor.Cadence = minMonitorCadence
	}
	if c.Monitor.Cadence > maxMonitorCadence {
		c.Monitor.Cadence = maxMonitorCadence
	}
	if c.DB.Path == "" {
		c.DB.Path = "water_timer.db"
	}
	return nil
}
