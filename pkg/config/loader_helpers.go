package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// loadAndMerge loads a YAML file and merges the fields it actually sets
// into cfg.
func loadAndMerge(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	// A second decode into a raw map distinguishes "set to the zero value"
	// from "absent", which matters for booleans and zero durations.
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	mergeConfigs(cfg, &override, raw)
	return nil
}

// mergeConfigs merges override into base, field by field.
func mergeConfigs(base, override *Config, raw map[string]any) {
	if override == nil {
		return
	}

	if override.Server.Bind != "" {
		base.Server.Bind = override.Server.Bind
	}
	if override.Server.AuthToken != "" {
		base.Server.AuthToken = override.Server.AuthToken
	}
	if override.Server.JWTSecret != "" {
		base.Server.JWTSecret = override.Server.JWTSecret
	}
	if len(override.Server.CORSOrigins) > 0 {
		base.Server.CORSOrigins = override.Server.CORSOrigins
	}
	if fieldSet(raw, "server", "public_metrics") {
		base.Server.PublicMetrics = override.Server.PublicMetrics
	}
	if fieldSet(raw, "server", "shutdown_grace") {
		base.Server.ShutdownGrace = override.Server.ShutdownGrace
	}

	if override.Parser.BaseURL != "" {
		base.Parser.BaseURL = override.Parser.BaseURL
	}
	if override.Parser.APIKey != "" {
		base.Parser.APIKey = override.Parser.APIKey
	}
	if override.Parser.Model != "" {
		base.Parser.Model = override.Parser.Model
	}
	if override.Parser.Timeout != 0 {
		base.Parser.Timeout = override.Parser.Timeout
	}
	if override.Parser.RequestsPerSecond != 0 {
		base.Parser.RequestsPerSecond = override.Parser.RequestsPerSecond
	}
	if override.Parser.Burst != 0 {
		base.Parser.Burst = override.Parser.Burst
	}
	if override.Parser.MaxContextTokens != 0 {
		base.Parser.MaxContextTokens = override.Parser.MaxContextTokens
	}

	if fieldSet(raw, "images", "enabled") {
		base.Images.Enabled = override.Images.Enabled
	}
	if override.Images.BaseURL != "" {
		base.Images.BaseURL = override.Images.BaseURL
	}
	if override.Images.APIKey != "" {
		base.Images.APIKey = override.Images.APIKey
	}
	if override.Images.Model != "" {
		base.Images.Model = override.Images.Model
	}
	if override.Images.Size != "" {
		base.Images.Size = override.Images.Size
	}
	if override.Images.Timeout != 0 {
		base.Images.Timeout = override.Images.Timeout
	}

	if override.Storage.Path != "" {
		base.Storage.Path = override.Storage.Path
	}

	if override.Logging.Dir != "" {
		base.Logging.Dir = override.Logging.Dir
	}
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if fieldSet(raw, "logging", "echo_stderr") {
		base.Logging.EchoStderr = override.Logging.EchoStderr
	}

	if override.Flags.Path != "" {
		base.Flags.Path = override.Flags.Path
	}
	if override.Flags.PollInterval != 0 {
		base.Flags.PollInterval = override.Flags.PollInterval
	}
	if override.Flags.Debounce != 0 {
		base.Flags.Debounce = override.Flags.Debounce
	}

	if override.Bus.Driver != "" {
		base.Bus.Driver = override.Bus.Driver
	}
	if override.Bus.URL != "" {
		base.Bus.URL = override.Bus.URL
	}

	if len(override.Permissions.Grants) > 0 {
		if base.Permissions.Grants == nil {
			base.Permissions.Grants = make(map[string][]string, len(override.Permissions.Grants))
		}
		for permission, roles := range override.Permissions.Grants {
			base.Permissions.Grants[permission] = roles
		}
	}

	if fieldSet(raw, "tracing", "enabled") {
		base.Tracing.Enabled = override.Tracing.Enabled
	}
}

// fieldSet reports whether the raw YAML document set a value at path.
func fieldSet(raw map[string]any, path ...string) bool {
	if len(path) == 0 || raw == nil {
		return false
	}
	current := any(raw)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return false
		}
		val, ok := m[key]
		if !ok {
			return false
		}
		current = val
	}
	return true
}
