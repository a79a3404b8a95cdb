package config

import (
	"flag"
	"io"
	"strings"
)

// configPath finds the value of -c / -config without parsing other flags.
func configPath(args []string) string {
	for i := 0; i < len(args); i++ {
		name := strings.TrimLeft(args[i], "-")
		if !strings.HasPrefix(args[i], "-") {
			continue
		}
		if k, v, ok := strings.Cut(name, "="); ok {
			if k == "c" || k == "config" {
				return v
			}
			continue
		}
		if (name == "c" || name == "config") && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// parseFlags overlays command-line flags.
//
//	-c string        JSON config file
//	-a string        gRPC listen address
//	-m string        metrics listen address ("" disables)
//	-d string        PostgreSQL DSN
//	-store string    postgres | memory
//	-s string        signing secret
//	-alg string      HS256 | HS384 | HS512
//	-access-ttl int  access token lifetime, minutes
//	-refresh-ttl int refresh token lifetime, days
//	-max-fails int   failed logins before lockout
//	-lockout int     lockout window, minutes
//	-notify-buffer   notification queue size
//	-tls-cert string TLS certificate (PEM)
//	-tls-key string  TLS private key (PEM)
//	-dev             development logging
func (c *Config) parseFlags(args []string) error {
	fs := flag.NewFlagSet("gatekeeper", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var ignored string
	fs.StringVar(&ignored, "c", "", "JSON config file")
	fs.StringVar(&ignored, "config", "", "JSON config file")

	fs.StringVar(&c.GRPCAddr, "a", c.GRPCAddr, "gRPC listen address")
	fs.StringVar(&c.MetricsAddr, "m", c.MetricsAddr, "metrics listen address")
	fs.StringVar(&c.DatabaseDSN, "d", c.DatabaseDSN, "PostgreSQL DSN")
	fs.StringVar(&c.Store, "store", c.Store, "account store: postgres | memory")
	fs.StringVar(&c.SigningSecret, "s", c.SigningSecret, "token signing secret")
	fs.StringVar(&c.SigningAlgorithm, "alg", c.SigningAlgorithm, "token signing algorithm")
	fs.IntVar(&c.AccessTokenTTLMinutes, "access-ttl", c.AccessTokenTTLMinutes, "access token TTL (minutes)")
	fs.IntVar(&c.RefreshTokenTTLDays, "refresh-ttl", c.RefreshTokenTTLDays, "refresh token TTL (days)")
	fs.IntVar(&c.MaxFailedLoginAttempts, "max-fails", c.MaxFailedLoginAttempts, "failed logins before lockout")
	fs.IntVar(&c.LockoutWindowMinutes, "lockout", c.LockoutWindowMinutes, "lockout window (minutes)")
	fs.IntVar(&c.NotifyBuffer, "notify-buffer", c.NotifyBuffer, "notification queue size")
	fs.StringVar(&c.TLSCert, "tls-cert", c.TLSCert, "TLS certificate (PEM)")
	fs.StringVar(&c.TLSKey, "tls-key", c.TLSKey, "TLS private key (PEM)")
	fs.BoolVar(&c.Dev, "dev", c.Dev, "development logging")

	return fs.Parse(args)
}
