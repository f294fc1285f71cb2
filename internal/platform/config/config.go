// Package config reads service settings from the environment. AppConfig holds
// what every service shares; services embed it and add their own keys with
// the helpers in env.go.
package config

import (
	"errors"
	"fmt"
	"strings"
)

const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

type HTTPConfig struct {
	Addr string
}

type AppConfig struct {
	ServiceName string
	LogLevel    string
	Env         string
	HTTP        HTTPConfig
}

// IsProduction reports whether APP_ENV selects production mode, in which
// in-memory fallbacks are refused.
func (c AppConfig) IsProduction() bool { return c.Env == EnvProduction }

// Load reads SERVICE_NAME (required), LOG_LEVEL, APP_ENV and HTTP_ADDR.
// APP_ENV is case-insensitive and must name a known environment.
func Load() (AppConfig, error) {
	cfg := AppConfig{
		ServiceName: String("SERVICE_NAME", ""),
		LogLevel:    strings.ToLower(String("LOG_LEVEL", "info")),
		Env:         strings.ToLower(String("APP_ENV", EnvDevelopment)),
		HTTP:        HTTPConfig{Addr: String("HTTP_ADDR", ":8080")},
	}
	if cfg.ServiceName == "" {
		return AppConfig{}, errors.New("SERVICE_NAME is required")
	}
	switch cfg.Env {
	case EnvDevelopment, EnvTest, EnvStaging, EnvProduction:
	default:
		return AppConfig{}, fmt.Errorf("APP_ENV %q is not one of development, test, staging, production", cfg.Env)
	}
	return cfg, nil
}
