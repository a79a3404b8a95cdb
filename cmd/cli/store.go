package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token,omitempty"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at,omitempty"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "gatekeeper")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "gatekeeper")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func readTokens() (tokenFile, error) {
	var tf tokenFile
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return tf, err
	}
	err = json.Unmarshal(b, &tf)
	return tf, err
}

func saveTokens(tf tokenFile) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(tokenPath(), b, 0o600)
}

// updateAccess replaces the access token and keeps the stored refresh token.
func updateAccess(tok string, exp time.Time) error {
	tf, err := readTokens()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	tf.AccessToken, tf.AccessExpiresAt = tok, exp
	return saveTokens(tf)
}

func loadAccess() (string, error) {
	tf, err := readTokens()
	if err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.AccessExpiresAt) {
		return "", errors.New("no valid token (login or refresh required)")
	}
	return tf.AccessToken, nil
}

func loadRefresh() (string, error) {
	tf, err := readTokens()
	if err != nil {
		return "", err
	}
	if tf.RefreshToken == "" || time.Now().After(tf.RefreshExpiresAt) {
		return "", errors.New("no valid refresh token (login required)")
	}
	return tf.RefreshToken, nil
}

func clearTokens() error {
	err := os.Remove(tokenPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
