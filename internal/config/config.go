// Package config resolves API credentials, database parameters and run
// settings from a JSON or YAML file with environment overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nadmax/tracksync/internal/repository"
	"github.com/nadmax/tracksync/internal/trackingtime"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "connections.json"

const (
	DefaultInterval         = time.Hour
	DefaultRequestTimeout   = 30 * time.Second
	DefaultMinFetchInterval = time.Minute
	DefaultSSLMode          = "disable"

	// Covers the database work of a cycle on top of its fetch budget.
	lockMargin = 5 * time.Minute
)

// ConfigError lists every problem found while resolving the configuration.
type ConfigError struct {
	Path     string
	Problems []string
	Err      error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration (%s): %s", e.Path, strings.Join(e.Problems, "; "))
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

type Config struct {
	Credentials Credentials    `json:"time_tracking_creds" yaml:"time_tracking_creds"`
	DB          DatabaseConfig `json:"db" yaml:"db"`
	Schedule    ScheduleConfig `json:"schedule" yaml:"schedule"`
	API         APIConfig      `json:"api" yaml:"api"`
	MetricsAddr string         `json:"metrics_addr" yaml:"metrics_addr"`
	RedisAddr   string         `json:"redis_addr" yaml:"redis_addr"`
	Notify      NotifyConfig   `json:"notify" yaml:"notify"`
}

type Credentials struct {
	Login    string `json:"login" yaml:"login"`
	Password string `json:"password" yaml:"password"`
}

type DatabaseConfig struct {
	Driver    string `json:"driver" yaml:"driver"`
	Name      string `json:"db_name" yaml:"db_name"`
	TableName string `json:"table_name" yaml:"table_name"`
	User      string `json:"user" yaml:"user"`
	Password  string `json:"password" yaml:"password"`
	Host      string `json:"host" yaml:"host"`
	Port      Port   `json:"port" yaml:"port"`
	SSLMode   string `json:"sslmode" yaml:"sslmode"`
}

type ScheduleConfig struct {
	Interval         Duration `json:"interval" yaml:"interval"`
	RequestTimeout   Duration `json:"request_timeout" yaml:"request_timeout"`
	MinFetchInterval Duration `json:"min_fetch_interval" yaml:"min_fetch_interval"`
}

type APIConfig struct {
	URL string `json:"url" yaml:"url"`
}

type NotifyConfig struct {
	APIKey      string `json:"api_key" yaml:"api_key"`
	FromName    string `json:"from_name" yaml:"from_name"`
	FromAddress string `json:"from_address" yaml:"from_address"`
	To          string `json:"to" yaml:"to"`
}

// Port holds a TCP port written either as a string or as a number.
type Port string

func (p *Port) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = Port(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("port must be a string or a number, got %s", data)
	}
	*p = Port(n.String())
	return nil
}

func (p *Port) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("port must be a string or a number (line %d)", value.Line)
	}
	*p = Port(value.Value)
	return nil
}

// Duration accepts Go duration strings ("90s", "1h") or a number of seconds.
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return d.parse(s)
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("duration must be a string or a number of seconds, got %s", data)
	}
	return d.parse(n.String())
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a string or a number of seconds (line %d)", value.Line)
	}
	return d.parse(value.Value)
}

func (d *Duration) parse(s string) error {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		*d = Duration(secs * float64(time.Second))
		return nil
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func Default() *Config {
	return &Config{
		DB: DatabaseConfig{
			Driver:  repository.DriverPostgres,
			SSLMode: DefaultSSLMode,
		},
		Schedule: ScheduleConfig{
			Interval:         Duration(DefaultInterval),
			RequestTimeout:   Duration(DefaultRequestTimeout),
			MinFetchInterval: Duration(DefaultMinFetchInterval),
		},
		API: APIConfig{
			URL: trackingtime.DefaultTasksURL,
		},
	}
}

// Load reads the file at path, applies environment overrides and validates
// the result. A missing file is not an error by itself: the configuration
// may come entirely from the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	var notes []string

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		notes = append(notes, fmt.Sprintf("config file %s not found, using environment only", path))
	case err != nil:
		return nil, &ConfigError{Path: path, Problems: []string{"failed to read config file"}, Err: err}
	default:
		if err := decode(path, data, cfg); err != nil {
			return nil, &ConfigError{Path: path, Problems: []string{err.Error()}, Err: err}
		}
	}

	if cfg.DB.Driver == "" {
		cfg.DB.Driver = repository.DriverPostgres
	}

	problems := cfg.applyEnv()
	problems = append(problems, cfg.Validate()...)
	if len(problems) > 0 {
		return nil, &ConfigError{Path: path, Problems: append(notes, problems...)}
	}

	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse JSON: %w", err)
		}
	}
	return nil
}

func (c *Config) applyEnv() []string {
	var problems []string

	c.Credentials.Login = getEnvOrDefault("TRACKINGTIME_LOGIN", c.Credentials.Login)
	c.Credentials.Password = getEnvOrDefault("TRACKINGTIME_PASSWORD", c.Credentials.Password)

	c.DB.Name = getEnvOrDefault("DB_NAME", c.DB.Name)
	c.DB.TableName = getEnvOrDefault("DB_TABLE", c.DB.TableName)
	c.DB.User = getEnvOrDefault("DB_USER", c.DB.User)
	c.DB.Password = getEnvOrDefault("DB_PASSWORD", c.DB.Password)
	c.DB.Host = getEnvOrDefault("DB_HOST", c.DB.Host)
	c.DB.Port = Port(getEnvOrDefault("DB_PORT", string(c.DB.Port)))

	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		if err := c.Schedule.Interval.parse(v); err != nil {
			problems = append(problems, fmt.Sprintf("POLL_INTERVAL: %v", err))
		}
	}

	c.MetricsAddr = getEnvOrDefault("METRICS_ADDR", c.MetricsAddr)
	c.RedisAddr = getEnvOrDefault("REDIS_ADDR", c.RedisAddr)

	c.Notify.APIKey = getEnvOrDefault("EMAIL_API_KEY", c.Notify.APIKey)
	c.Notify.FromName = getEnvOrDefault("FROM_NAME", c.Notify.FromName)
	c.Notify.FromAddress = getEnvOrDefault("FROM_ADDRESS", c.Notify.FromAddress)
	c.Notify.To = getEnvOrDefault("ALERT_EMAIL", c.Notify.To)

	return problems
}

// Validate returns every problem found, or nil when the configuration is usable.
func (c *Config) Validate() []string {
	var problems []string
	require := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			problems = append(problems, field+" is required")
		}
	}

	require("time_tracking_creds.login", c.Credentials.Login)
	require("time_tracking_creds.password", c.Credentials.Password)
	require("db.db_name", c.DB.Name)
	require("db.table_name", c.DB.TableName)

	if c.DB.TableName != "" {
		if err := repository.ValidateTableName(c.DB.TableName); err != nil {
			problems = append(problems, "db.table_name: "+err.Error())
		}
	}

	switch c.DB.Driver {
	case repository.DriverPostgres:
		require("db.user", c.DB.User)
		require("db.password", c.DB.Password)
		require("db.host", c.DB.Host)
		require("db.port", string(c.DB.Port))
		if c.DB.Port != "" {
			if n, err := strconv.Atoi(string(c.DB.Port)); err != nil || n < 1 || n > 65535 {
				problems = append(problems, fmt.Sprintf("db.port: %q is not a valid port", c.DB.Port))
			}
		}
	case repository.DriverSQLite:
	default:
		problems = append(problems, fmt.Sprintf("db.driver: unsupported driver %q", c.DB.Driver))
	}

	if c.Schedule.Interval <= 0 {
		problems = append(problems, "schedule.interval must be positive")
	}
	if c.Schedule.RequestTimeout < 0 {
		problems = append(problems, "schedule.request_timeout must not be negative")
	}
	if c.Schedule.MinFetchInterval < 0 {
		problems = append(problems, "schedule.min_fetch_interval must not be negative")
	}
	if c.RedisAddr != "" && c.Schedule.RequestTimeout == 0 {
		problems = append(problems, "schedule.request_timeout must be bounded when redis_addr is set")
	}

	if u, err := url.Parse(c.API.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		problems = append(problems, fmt.Sprintf("api.url: %q is not an absolute http(s) URL", c.API.URL))
	}

	if c.Notify.APIKey != "" {
		require("notify.from_address", c.Notify.FromAddress)
		require("notify.to", c.Notify.To)
	}

	return problems
}

// LockTTL is how long a cycle may hold the Redis lock: one limiter wait,
// one request and a margin for the database work.
func (c *Config) LockTTL() time.Duration {
	return c.Schedule.MinFetchInterval.Std() + c.Schedule.RequestTimeout.Std() + lockMargin
}

// DSN returns the connection string for the configured driver. For sqlite
// the database name is the file path.
func (c *Config) DSN() string {
	if c.DB.Driver == repository.DriverSQLite {
		return c.DB.Name
	}

	sslmode := c.DB.SSLMode
	if sslmode == "" {
		sslmode = DefaultSSLMode
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DB.User, c.DB.Password),
		Host:     net.JoinHostPort(c.DB.Host, string(c.DB.Port)),
		Path:     "/" + c.DB.Name,
		RawQuery: url.Values{"sslmode": []string{sslmode}}.Encode(),
	}
	return u.String()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
