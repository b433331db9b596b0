package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server ServerConfig `yaml:"server"`
	Robot  RobotConfig  `yaml:"robot"`
	Panel  PanelConfig  `yaml:"panel"`
	Stream StreamConfig `yaml:"stream"`

	// ConfigPath is the path to the config file (not serialized)
	ConfigPath string `yaml:"-"`
}

// ServerConfig represents the gateway HTTP server configuration
type ServerConfig struct {
	Port            int      `yaml:"port"`
	Host            string   `yaml:"host"`
	CORSOrigins     []string `yaml:"cors_origins"`
	OpenBrowser     bool     `yaml:"open_browser"`
	LogCapacity     int      `yaml:"log_capacity"`
	HistoryCapacity int      `yaml:"history_capacity"`
}

// RobotConfig describes how the gateway reaches the robot
type RobotConfig struct {
	Address         string        `yaml:"address"`
	Port            int           `yaml:"port"`
	Protocol        string        `yaml:"protocol"` // "udp" or "tcp"
	BufferSize      int           `yaml:"buffer_size"`
	ResponseTimeout time.Duration `yaml:"response_timeout"`
	RequestAck      bool          `yaml:"request_ack"`
	AutoConnect     bool          `yaml:"auto_connect"`
}

// PanelConfig configures the operator panel clients (CLI and TUI)
type PanelConfig struct {
	BaseURL        string        `yaml:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	ToastDuration  time.Duration `yaml:"toast_duration"`
	ResponsePolicy string        `yaml:"response_policy"` // "last-resolved" or "latest-issued"
}

// StreamConfig configures the live telemetry subscription
type StreamConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Endpoint          string        `yaml:"endpoint"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	MaxReconnectDelay time.Duration `yaml:"max_reconnect_delay"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	PollInterval      time.Duration `yaml:"poll_interval"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			CORSOrigins:     []string{"*"},
			LogCapacity:     500,
			HistoryCapacity: 50,
		},
		Robot: RobotConfig{
			Address:         "127.0.0.1",
			Port:            5000,
			Protocol:        "udp",
			BufferSize:      1024,
			ResponseTimeout: 2 * time.Second,
			RequestAck:      true,
		},
		Panel: PanelConfig{
			BaseURL:        "http://localhost:8080",
			RequestTimeout: 10 * time.Second,
			ToastDuration:  3 * time.Second,
			ResponsePolicy: "last-resolved",
		},
		Stream: StreamConfig{
			Endpoint:          "ws://localhost:8080/ws/telemetry",
			ReconnectDelay:    1 * time.Second,
			MaxReconnectDelay: 30 * time.Second,
			PingInterval:      30 * time.Second,
			PollInterval:      0,
		},
	}
}

// Load loads configuration from the config file
func Load() (*Config, error) {
	// Try to find config file in common locations
	configPaths := []string{
		"config.yaml",
		"configs/config.yaml",
		"/etc/robotpanel/config.yaml",
	}

	var data []byte
	var err error
	var loadedPath string

	for _, path := range configPaths {
		data, err = os.ReadFile(path)
		if err == nil {
			loadedPath = path
			break
		}
	}

	if err != nil {
		return nil, err
	}

	return parse(data, loadedPath)
}

// LoadFile loads configuration from an explicit path
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parse(data, path)
}

func parse(data []byte, path string) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.ConfigPath = path
	return cfg, nil
}

// Resolve loads the config file (explicit path first, then the search
// path, then defaults), applies .env and ROBOTPANEL_* overrides and
// validates the result.
func Resolve(path string) (*Config, error) {
	var cfg *Config
	var err error
	if path != "" {
		cfg, err = LoadFile(path)
		if err != nil {
			return nil, err
		}
	} else {
		cfg, err = Load()
		if err != nil {
			log.Printf("Warning: Could not load config file: %v", err)
			log.Println("Using default configuration")
			cfg = Default()
			cfg.ConfigPath = "config.yaml"
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: Could not read .env: %v", err)
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides file values with ROBOTPANEL_* variables
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv("ROBOTPANEL_" + key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v := getenv("ROBOTPANEL_" + key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ROBOTPANEL_%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("SERVER_HOST", &c.Server.Host)
	if err := num("SERVER_PORT", &c.Server.Port); err != nil {
		return err
	}
	str("ROBOT_ADDRESS", &c.Robot.Address)
	if err := num("ROBOT_PORT", &c.Robot.Port); err != nil {
		return err
	}
	str("ROBOT_PROTOCOL", &c.Robot.Protocol)
	str("PANEL_BASE_URL", &c.Panel.BaseURL)
	str("PANEL_POLICY", &c.Panel.ResponsePolicy)
	str("STREAM_ENDPOINT", &c.Stream.Endpoint)
	return nil
}

// Validate normalizes and checks the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", c.Server.Port)
	}
	if c.Robot.Port < 1 || c.Robot.Port > 65535 {
		return fmt.Errorf("robot port out of range: %d", c.Robot.Port)
	}

	c.Robot.Protocol = strings.ToLower(c.Robot.Protocol)
	if c.Robot.Protocol != "udp" && c.Robot.Protocol != "tcp" {
		return fmt.Errorf("robot protocol must be udp or tcp, got %q", c.Robot.Protocol)
	}
	if c.Robot.BufferSize <= 0 {
		return errors.New("robot buffer size must be positive")
	}
	if c.Robot.ResponseTimeout <= 0 {
		return errors.New("robot response timeout must be positive")
	}
	if c.Panel.ToastDuration <= 0 {
		return errors.New("panel toast duration must be positive")
	}

	switch c.Panel.ResponsePolicy {
	case "", "last-resolved":
		c.Panel.ResponsePolicy = "last-resolved"
	case "latest-issued":
	default:
		return fmt.Errorf("unknown response policy %q", c.Panel.ResponsePolicy)
	}

	if c.Server.LogCapacity <= 0 {
		c.Server.LogCapacity = 500
	}
	if c.Server.HistoryCapacity <= 0 {
		c.Server.HistoryCapacity = 50
	}
	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
