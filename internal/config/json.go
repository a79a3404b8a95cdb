package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// jsonConfig is the on-disk shape. Pointer fields distinguish "absent" from
// zero so a partial file only overrides what it names.
type jsonConfig struct {
	GRPCAddr     *string `json:"grpc_addr"`
	MetricsAddr  *string `json:"metrics_addr"`
	DatabaseDSN  *string `json:"database_dsn"`
	Store        *string `json:"store"`
	NotifyBuffer *int    `json:"notify_buffer"`
	Dev          *bool   `json:"dev"`
	TLSCert      *string `json:"tls_cert"`
	TLSKey       *string `json:"tls_key"`

	AccessTokenTTLMinutes  *int    `json:"access_token_ttl_minutes"`
	RefreshTokenTTLDays    *int    `json:"refresh_token_ttl_days"`
	MaxFailedLoginAttempts *int    `json:"max_failed_login_attempts"`
	LockoutWindowMinutes   *int    `json:"lockout_window_minutes"`
	SigningSecret          *string `json:"signing_secret"`
	SigningAlgorithm       *string `json:"signing_algorithm"`
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// loadJSON overlays the values present in the file at path.
func (c *Config) loadJSON(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var j jsonConfig
	if err := json.Unmarshal(raw, &j); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	set(&c.GRPCAddr, j.GRPCAddr)
	set(&c.MetricsAddr, j.MetricsAddr)
	set(&c.DatabaseDSN, j.DatabaseDSN)
	set(&c.Store, j.Store)
	set(&c.NotifyBuffer, j.NotifyBuffer)
	set(&c.Dev, j.Dev)
	set(&c.TLSCert, j.TLSCert)
	set(&c.TLSKey, j.TLSKey)
	set(&c.AccessTokenTTLMinutes, j.AccessTokenTTLMinutes)
	set(&c.RefreshTokenTTLDays, j.RefreshTokenTTLDays)
	set(&c.MaxFailedLoginAttempts, j.MaxFailedLoginAttempts)
	set(&c.LockoutWindowMinutes, j.LockoutWindowMinutes)
	set(&c.SigningSecret, j.SigningSecret)
	set(&c.SigningAlgorithm, j.SigningAlgorithm)
	return nil
}
