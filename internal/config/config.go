// Package config loads service configuration from an optional YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreFile   = "file"
)

type Config struct {
	Port     int            `yaml:"port" json:"port"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	Upload   UploadConfig   `yaml:"upload" json:"upload"`
	Sessions SessionConfig  `yaml:"sessions" json:"sessions"`
	EventBus EventBusConfig `yaml:"event_bus" json:"event_bus"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn" json:"dsn"`
}

type StorageConfig struct {
	DataDir       string `yaml:"data_dir" json:"data_dir"`
	FormStore     string `yaml:"form_store" json:"form_store"`         // "sqlite" or "memory"
	WorkflowStore string `yaml:"workflow_store" json:"workflow_store"` // "file" or "memory"
}

type UploadConfig struct {
	Dir     string `yaml:"dir" json:"dir"`
	MaxMB   int64  `yaml:"max_mb" json:"max_mb"`
	BaseURL string `yaml:"base_url" json:"base_url"`
}

type SessionConfig struct {
	IdleTimeout   Duration `yaml:"idle_timeout" json:"idle_timeout"`
	MaxAge        Duration `yaml:"max_age" json:"max_age"`
	SweepInterval Duration `yaml:"sweep_interval" json:"sweep_interval"`
}

type EventBusConfig struct {
	Buffer int `yaml:"buffer" json:"buffer"`
}

// Duration is a time.Duration written as a Go duration string in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: bad duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ApplyDefaults fills unset values.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.Database.DSN == "" {
		c.Database.DSN = "file:formdesigner.db?_pragma=foreign_keys(1)"
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Storage.FormStore == "" {
		c.Storage.FormStore = StoreSQLite
	}
	if c.Storage.WorkflowStore == "" {
		c.Storage.WorkflowStore = StoreFile
	}
	if c.Upload.Dir == "" {
		c.Upload.Dir = c.Storage.DataDir + "/uploads"
	}
	if c.Upload.MaxMB <= 0 {
		c.Upload.MaxMB = 16
	}
	if c.Upload.BaseURL == "" {
		c.Upload.BaseURL = "/files"
	}
	if c.Sessions.IdleTimeout == 0 {
		c.Sessions.IdleTimeout = Duration(30 * time.Minute)
	}
	if c.Sessions.MaxAge == 0 {
		c.Sessions.MaxAge = Duration(24 * time.Hour)
	}
	if c.Sessions.SweepInterval == 0 {
		c.Sessions.SweepInterval = Duration(time.Minute)
	}
	if c.EventBus.Buffer <= 0 {
		c.EventBus.Buffer = 256
	}
}

// Validate reports unsupported backend names.
func (c *Config) Validate() error {
	switch c.Storage.FormStore {
	case StoreSQLite, StoreMemory:
	default:
		return fmt.Errorf("config: unknown form_store %q", c.Storage.FormStore)
	}
	switch c.Storage.WorkflowStore {
	case StoreFile, StoreMemory:
	default:
		return fmt.Errorf("config: unknown workflow_store %q", c.Storage.WorkflowStore)
	}
	return nil
}

// WorkflowFile is the JSON file backing the file workflow store.
func (c *Config) WorkflowFile() string {
	return c.Storage.DataDir + "/workflows.json"
}

// MaxUploadBytes is the upload ceiling in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.Upload.MaxMB << 20
}

// Load reads path (if non-empty and present), then applies environment
// overrides and defaults.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(b, &c); err != nil {
				return nil, fmt.Errorf("config: parsing %s: %w", path, err)
			}
		}
	}
	c.applyEnv(os.Getenv)
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if p := getenv("PORT"); p != "" {
		if v, err := strconv.Atoi(p); err == nil {
			c.Port = v
		}
	}
	if v := getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}
	if v := getenv("DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := getenv("UPLOAD_DIR"); v != "" {
		c.Upload.Dir = v
	}
	if v := getenv("MAX_UPLOAD_MB"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Upload.MaxMB = n
		}
	}
	if v := getenv("FORM_STORE"); v != "" {
		c.Storage.FormStore = v
	}
	if v := getenv("WORKFLOW_STORE"); v != "" {
		c.Storage.WorkflowStore = v
	}
}
