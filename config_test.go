package main

import (
	"testing"
	"time"
)

func validTestConfig() *Config {
	return &Config{
		port:         8080,
		minPlayers:   2,
		gracePeriod:  2 * time.Minute,
		voteDuration: 30 * time.Second,
	}
}

func TestConfigValidate(t *testing.T) {
	if err := validTestConfig().validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cfg := validTestConfig()
	cfg.tlsCert = "cert.pem"
	if err := cfg.validate(); err == nil {
		t.Fatalf("tls cert without key accepted")
	}
	cfg.tlsKey = "key.pem"
	if err := cfg.validate(); err != nil {
		t.Fatalf("complete tls pair rejected: %v", err)
	}

	cfg = validTestConfig()
	cfg.port = 0
	if err := cfg.validate(); err == nil {
		t.Fatalf("port 0 accepted")
	}
	cfg.port = 70000
	if err := cfg.validate(); err == nil {
		t.Fatalf("port 70000 accepted")
	}

	cfg = validTestConfig()
	cfg.minPlayers = 0
	if err := cfg.validate(); err == nil {
		t.Fatalf("zero minimum player count accepted")
	}

	cfg = validTestConfig()
	cfg.gracePeriod = 0
	if err := cfg.validate(); err == nil {
		t.Fatalf("zero grace period accepted")
	}

	cfg = validTestConfig()
	cfg.roundTimer = true
	cfg.voteDuration = 0
	if err := cfg.validate(); err == nil {
		t.Fatalf("round timer with zero vote duration accepted")
	}
}

func TestConfigScheme(t *testing.T) {
	cfg := validTestConfig()
	if cfg.scheme() != "http" {
		t.Fatalf("scheme = %q without tls, want http", cfg.scheme())
	}

	cfg.tlsCert = "cert.pem"
	cfg.tlsKey = "key.pem"
	if cfg.scheme() != "https" {
		t.Fatalf("scheme = %q with tls, want https", cfg.scheme())
	}
}
