// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package config loads producer configuration from YAML files.
package config

import (
	"crypto/tls"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/absmach/rocketmq/producer"
)

// Config holds all configuration for a producer process.
type Config struct {
	NameServer NameServerConfig `yaml:"name_server"`
	Producer   ProducerConfig   `yaml:"producer"`
	ACL        ACLConfig        `yaml:"acl"`
	TLS        TLSConfig        `yaml:"tls"`
	Log        LogConfig        `yaml:"log"`
}

// NameServerConfig holds name-server discovery settings.
type NameServerConfig struct {
	// Static `host:port` list. Takes precedence over the domain.
	Addresses []string `yaml:"addresses"`

	// HTTP discovery URL queried when no static list is given.
	Domain string `yaml:"domain"`
}

// ProducerConfig holds sending behavior settings.
type ProducerConfig struct {
	Group        string `yaml:"group"`
	Namespace    string `yaml:"namespace"`
	InstanceName string `yaml:"instance_name"`

	// Queue selection: round_robin, hash, random or manual.
	Selector string `yaml:"selector"`

	SendTimeout    time.Duration `yaml:"send_timeout"`
	Retries        int           `yaml:"retries"`
	MaxMessageSize int           `yaml:"max_message_size"`
	CompressOver   int           `yaml:"compress_over"`
	CompressLevel  int           `yaml:"compress_level"`

	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	RouteRefreshInterval time.Duration `yaml:"route_refresh_interval"`
	BrokerCooldown       time.Duration `yaml:"broker_cooldown"`
}

// ACLConfig holds request-signing credentials.
type ACLConfig struct {
	AccessKey     string `yaml:"access_key"`
	SecretKey     string `yaml:"secret_key"`
	SecurityToken string `yaml:"security_token"`
}

// TLSConfig holds broker connection TLS settings.
type TLSConfig struct {
	Enabled            bool   `yaml:"enabled"`
	ServerName         string `yaml:"server_name"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		NameServer: NameServerConfig{},
		Producer: ProducerConfig{
			Group:                producer.DefaultGroupName,
			Selector:             "round_robin",
			SendTimeout:          producer.DefaultSendTimeout,
			Retries:              producer.DefaultRetries,
			MaxMessageSize:       producer.DefaultMaxMessageSize,
			CompressOver:         producer.DefaultCompressOver,
			CompressLevel:        producer.DefaultCompressLevel,
			HeartbeatInterval:    producer.DefaultHeartbeatInterval,
			RouteRefreshInterval: producer.DefaultRouteRefreshInterval,
			BrokerCooldown:       producer.DefaultBrokerCooldown,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file. An empty filename returns
// the defaults; a missing file is an error.
func Load(filename string) (*Config, error) {
	if filename == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Producer.Group == "" {
		return fmt.Errorf("producer.group cannot be empty")
	}
	if c.Producer.Retries < 0 {
		return fmt.Errorf("producer.retries cannot be negative")
	}
	if c.Producer.MaxMessageSize < 1024 {
		return fmt.Errorf("producer.max_message_size must be at least 1KB")
	}

	validSelectors := map[string]bool{"round_robin": true, "hash": true, "random": true, "manual": true}
	if !validSelectors[c.Producer.Selector] {
		return fmt.Errorf("producer.selector must be one of: round_robin, hash, random, manual")
	}

	if c.ACL.AccessKey != "" && c.ACL.SecretKey == "" {
		return fmt.Errorf("acl.secret_key required when acl.access_key is set")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("log.format must be one of: text, json")
	}

	return nil
}

// ProducerOptions translates the configuration into producer options.
func (c *Config) ProducerOptions() *producer.Options {
	opts := producer.NewOptions().
		SetGroupName(c.Producer.Group).
		SetNamespace(c.Producer.Namespace).
		SetInstanceName(c.Producer.InstanceName).
		SetNameServers(c.NameServer.Addresses...).
		SetSendTimeout(c.Producer.SendTimeout).
		SetRetries(c.Producer.Retries).
		SetMaxMessageSize(c.Producer.MaxMessageSize).
		SetCompressOver(c.Producer.CompressOver).
		SetCompressLevel(c.Producer.CompressLevel).
		SetHeartbeatInterval(c.Producer.HeartbeatInterval).
		SetRouteRefreshInterval(c.Producer.RouteRefreshInterval).
		SetBrokerCooldown(c.Producer.BrokerCooldown)

	if c.NameServer.Domain != "" {
		opts.SetNameServerDomain(c.NameServer.Domain)
	}
	if c.ACL.AccessKey != "" {
		opts.SetCredentials(c.ACL.AccessKey, c.ACL.SecretKey, c.ACL.SecurityToken)
	}
	if c.TLS.Enabled {
		opts.SetTLSConfig(&tls.Config{
			ServerName:         c.TLS.ServerName,
			InsecureSkipVerify: c.TLS.InsecureSkipVerify,
		})
	}

	switch c.Producer.Selector {
	case "hash":
		opts.SetSelector(producer.NewHashSelector())
	case "random":
		opts.SetSelector(producer.NewRandomSelector(time.Now().UnixNano()))
	case "manual":
		opts.SetSelector(producer.NewManualSelector())
	default:
		opts.SetSelector(producer.NewRoundRobinSelector())
	}

	return opts
}
