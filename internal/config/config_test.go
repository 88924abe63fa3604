package config

import (
	"testing"
	"time"
)

// TestLoad_Defaults checks the zero-input configuration.
func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerURL != DefaultServerURL {
		t.Errorf("ServerURL = %q, want %q", cfg.ServerURL, DefaultServerURL)
	}
	if cfg.ListenAddr != DefaultListenAddr {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, DefaultListenAddr)
	}
	if cfg.STUNServer != DefaultSTUN {
		t.Errorf("STUNServer = %q, want %q", cfg.STUNServer, DefaultSTUN)
	}
	if cfg.ConnectTimeout != DefaultConnectTimeout {
		t.Errorf("ConnectTimeout = %v, want %v", cfg.ConnectTimeout, DefaultConnectTimeout)
	}
	if got := cfg.GetTURNServers(); got != nil {
		t.Errorf("GetTURNServers() = %v, want nil when unconfigured", got)
	}
}

// TestLoad_FlagBeatsEnv checks the precedence order.
func TestLoad_FlagBeatsEnv(t *testing.T) {
	t.Setenv("PEERBEAM_SERVER", "ws://from-env/ws")
	t.Setenv("PEERBEAM_STUN", "stun:from-env:3478")

	cfg, err := Load(Options{ServerURL: "ws://from-flag/ws"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerURL != "ws://from-flag/ws" {
		t.Errorf("ServerURL = %q, want flag value", cfg.ServerURL)
	}
	if cfg.STUNServer != "stun:from-env:3478" {
		t.Errorf("STUNServer = %q, want env value", cfg.STUNServer)
	}
}

// TestLoad_ConnectTimeoutFromEnv checks duration parsing and its failure.
func TestLoad_ConnectTimeoutFromEnv(t *testing.T) {
	t.Setenv("PEERBEAM_CONNECT_TIMEOUT", "3s")
	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ConnectTimeout != 3*time.Second {
		t.Errorf("ConnectTimeout = %v, want 3s", cfg.ConnectTimeout)
	}

	t.Setenv("PEERBEAM_CONNECT_TIMEOUT", "soon")
	if _, err := Load(Options{}); err == nil {
		t.Error("Load() with bad timeout succeeded, want error")
	}
}

// TestGetTURNServers checks the URL fan-out for a configured relay.
func TestGetTURNServers(t *testing.T) {
	cfg := &Config{TURNServer: "turn:relay.example.com"}
	got := cfg.GetTURNServers()
	if len(got) != 3 {
		t.Fatalf("len(GetTURNServers()) = %d, want 3", len(got))
	}
	if got[0] != "turn:relay.example.com:3478?transport=udp" {
		t.Errorf("first TURN URL = %q", got[0])
	}
}
