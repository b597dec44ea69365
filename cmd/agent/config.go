package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Printer PrinterConfig `yaml:"printer"`
	State   StateConfig   `yaml:"state"`
}

type ServerConfig struct {
	URL          string        `yaml:"url"`
	Token        string        `yaml:"token"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
}

type PrinterConfig struct {
	Command  string   `yaml:"command"`
	Args     []string `yaml:"args"`
	SpoolDir string   `yaml:"spool_dir"`
}

type StateConfig struct {
	Path string `yaml:"path"`
}

func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			PollInterval: 2 * time.Second,
			Timeout:      15 * time.Second,
		},
		Printer: PrinterConfig{
			Command: "lp",
		},
		State: StateConfig{
			Path: "./state/printed.json",
		},
	}
}

func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server url is required")
	}
	if c.Server.Token == "" {
		return fmt.Errorf("server token is required")
	}
	if c.Server.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.Printer.Command == "" {
		return fmt.Errorf("printer command is required")
	}
	if c.State.Path == "" {
		return fmt.Errorf("state path is required")
	}
	return nil
}
