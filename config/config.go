// Copyright 2025 The ATP Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads server configuration from defaults, an optional YAML
// file and ATP_-prefixed environment variables, in that order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the root server configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Agent     AgentConfig     `koanf:"agent"`
	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Addr returns the listen address in host:port form.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AgentConfig describes the agent as advertised on its card.
type AgentConfig struct {
	Name         string `koanf:"name"`
	Description  string `koanf:"description"`
	Organization string `koanf:"organization"`
	URL          string `koanf:"url"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

// TelemetryConfig toggles tracing and metrics.
type TelemetryConfig struct {
	TracesEnabled  bool   `koanf:"traces_enabled"`
	MetricsEnabled bool   `koanf:"metrics_enabled"`
	MetricsPath    string `koanf:"metrics_path"`
}

// Load reads configuration. An empty path skips the file layer. Environment
// variables override the file (ATP_SERVER_PORT -> server.port).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	k.Set("server.host", "0.0.0.0")
	k.Set("server.port", 8080)
	k.Set("server.read_timeout", "30s")
	k.Set("server.shutdown_timeout", "10s")

	k.Set("agent.name", "atp-agent")
	k.Set("agent.description", "Agent Task Protocol server")

	k.Set("log.level", "info")
	k.Set("log.format", "text")

	k.Set("telemetry.traces_enabled", false)
	k.Set("telemetry.metrics_enabled", true)
	k.Set("telemetry.metrics_path", "/metrics")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("ATP_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "ATP_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
