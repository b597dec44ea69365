package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Printer  PrinterConfig  `yaml:"printer"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite or postgres
	DSN    string `yaml:"dsn"`
}

// PrinterConfig selects the delivery path once per process: mock for
// development, agent_push for printers reachable from the server,
// agent_poll for printers behind NAT that pull jobs instead.
type PrinterConfig struct {
	Mode           string        `yaml:"mode"` // mock, agent_push, agent_poll
	MockOutputPath string        `yaml:"mock_output_path"`
	AgentURL       string        `yaml:"agent_url"`
	AgentToken     string        `yaml:"agent_token"`
	SendTimeout    time.Duration `yaml:"send_timeout"`
}

type AuthConfig struct {
	// AdminPasswordHash is a bcrypt hash of the operator password.
	AdminPasswordHash string `yaml:"admin_password_hash"`
	JWTSecret         string `yaml:"jwt_secret"`
	// AgentTokens maps each polling agent's bearer token to exactly one
	// organization id.
	AgentTokens map[string]string `yaml:"agent_tokens"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

const (
	PrinterModeMock      = "mock"
	PrinterModeAgentPush = "agent_push"
	PrinterModeAgentPoll = "agent_poll"
)

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "./data/printspool.db",
		},
		Printer: PrinterConfig{
			Mode:        PrinterModeMock,
			SendTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func Load(configPath string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PRINTSPOOL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PRINTSPOOL_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("PRINTSPOOL_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("PRINTSPOOL_PRINTER_MODE"); v != "" {
		cfg.Printer.Mode = v
	}
	if v := os.Getenv("PRINTSPOOL_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("PRINTSPOOL_ADMIN_PASSWORD_HASH"); v != "" {
		cfg.Auth.AdminPasswordHash = v
	}
	if v := os.Getenv("PRINTSPOOL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("invalid database driver: %s (valid: sqlite, postgres)", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}

	switch c.Printer.Mode {
	case PrinterModeMock, PrinterModeAgentPoll:
	case PrinterModeAgentPush:
		if c.Printer.AgentURL == "" {
			return fmt.Errorf("printer agent_url is required in agent_push mode")
		}
	default:
		return fmt.Errorf("invalid printer mode: %s (valid: mock, agent_push, agent_poll)", c.Printer.Mode)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth jwt_secret is required")
	}
	if c.Auth.AdminPasswordHash == "" {
		return fmt.Errorf("auth admin_password_hash is required")
	}
	for token, org := range c.Auth.AgentTokens {
		if token == "" || org == "" {
			return fmt.Errorf("agent tokens must map a non-empty token to a non-empty organization id")
		}
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}
