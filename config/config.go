// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DeployPolicy names which proof-request family an instance of the
// service accepts at the payload gate.
type DeployPolicy string

const (
	PolicyRegister   DeployPolicy = "register"
	PolicyDSC        DeployPolicy = "dsc"
	PolicyDisclose   DeployPolicy = "disclose"
	PolicyCherrypick DeployPolicy = "cherrypick"
)

// Config represents the main configuration structure
type Config struct {
	Environment string          `yaml:"environment" json:"environment"`
	ListenAddr  string          `yaml:"listen_addr" json:"listen_addr"`
	MetricsAddr string          `yaml:"metrics_addr" json:"metrics_addr"`
	Store       StoreConfig     `yaml:"store" json:"store"`
	DeployPolicy DeployPolicy   `yaml:"deploy_policy" json:"deploy_policy"`
	Circuits    []string        `yaml:"circuits" json:"circuits"`
	Attestor    AttestorConfig  `yaml:"attestor" json:"attestor"`
	Entropy     EntropyConfig   `yaml:"entropy" json:"entropy"`
	Queue       QueueConfig     `yaml:"queue" json:"queue"`
	Logging     *LoggingConfig  `yaml:"logging" json:"logging"`
	Metrics     *MetricsConfig  `yaml:"metrics" json:"metrics"`
	Health      *HealthConfig   `yaml:"health" json:"health"`
}

// StoreConfig configures the bounded session store.
type StoreConfig struct {
	Capacity int           `yaml:"capacity" json:"capacity"`
	TTL      time.Duration `yaml:"ttl" json:"ttl"`
}

// AttestorConfig selects how attestation documents are produced.
type AttestorConfig struct {
	Mode       string `yaml:"mode" json:"mode"` // enclave, mock
	SocketPath string `yaml:"socket_path" json:"socket_path"`
}

// EntropyConfig selects the randomness backend.
type EntropyConfig struct {
	Mode       string `yaml:"mode" json:"mode"` // enclave, mock
	DevicePath string `yaml:"device_path" json:"device_path"`
}

// QueueConfig configures the downstream dispatch queue.
type QueueConfig struct {
	Capacity     int           `yaml:"capacity" json:"capacity"`
	SendTimeout  time.Duration `yaml:"send_timeout" json:"send_timeout"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

// MetricsConfig represents metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
	Path    string `yaml:"path" json:"path"`
}

// HealthConfig represents health check configuration
type HealthConfig struct {
	Enabled bool     `yaml:"enabled" json:"enabled"`
	Path    string   `yaml:"path" json:"path"`
	Checks  []string `yaml:"checks" json:"checks"`
}

// LoadFromFile loads configuration from a file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file (tried YAML and JSON): %w", err)
		}
	}

	setDefaults(cfg)

	return cfg, nil
}

// SaveToFile saves configuration to a file
func SaveToFile(cfg *Config, path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setDefaults sets default values for configuration
func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8443"
	}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = ":9090"
	}

	if cfg.Store.Capacity == 0 {
		cfg.Store.Capacity = 1000
	}
	if cfg.Store.TTL == 0 {
		cfg.Store.TTL = 5 * time.Minute
	}

	if cfg.DeployPolicy == "" {
		cfg.DeployPolicy = PolicyDisclose
	}

	if cfg.Attestor.Mode == "" {
		cfg.Attestor.Mode = "mock"
	}
	if cfg.Attestor.SocketPath == "" {
		cfg.Attestor.SocketPath = "/run/container_launcher/teeserver.sock"
	}

	if cfg.Entropy.Mode == "" {
		cfg.Entropy.Mode = "mock"
	}
	if cfg.Entropy.DevicePath == "" {
		cfg.Entropy.DevicePath = "/dev/nsm"
	}

	if cfg.Queue.Capacity == 0 {
		cfg.Queue.Capacity = 256
	}
	if cfg.Queue.SendTimeout == 0 {
		cfg.Queue.SendTimeout = 2 * time.Second
	}

	if cfg.Logging != nil {
		if cfg.Logging.Level == "" {
			cfg.Logging.Level = "info"
		}
		if cfg.Logging.Format == "" {
			cfg.Logging.Format = "json"
		}
		if cfg.Logging.Output == "" {
			cfg.Logging.Output = "stdout"
		}
	}
}
