package config

import (
	"fmt"
	"os"
	"time"
)

// Default configuration values
const (
	DefaultServerURL  = "ws://localhost:8080/ws"
	DefaultListenAddr = ":8080"
	DefaultSTUN       = "stun:stun.l.google.com:19302"

	DefaultConnectTimeout = 10 * time.Second
)

// Config holds application configuration
type Config struct {
	// ServerURL is the relay websocket endpoint
	ServerURL string

	// ListenAddr is where the relay binds when serving
	ListenAddr string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string

	// ConnectTimeout bounds the wait for the rendezvous path
	ConnectTimeout time.Duration
}

// Options for loading config with CLI flag overrides
type Options struct {
	ServerURL      string
	ListenAddr     string
	STUNServer     string
	TURNServer     string
	TURNUser       string
	TURNPass       string
	ConnectTimeout time.Duration
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	serverURL := opts.ServerURL
	if serverURL == "" {
		serverURL = os.Getenv("PEERBEAM_SERVER")
	}
	if serverURL == "" {
		serverURL = DefaultServerURL
	}

	listenAddr := opts.ListenAddr
	if listenAddr == "" {
		listenAddr = os.Getenv("PEERBEAM_LISTEN")
	}
	if listenAddr == "" {
		listenAddr = DefaultListenAddr
	}

	stunServer := opts.STUNServer
	if stunServer == "" {
		stunServer = os.Getenv("PEERBEAM_STUN")
	}
	if stunServer == "" {
		stunServer = DefaultSTUN
	}

	// TURN is optional and off unless configured somewhere.
	turnServer := opts.TURNServer
	if turnServer == "" {
		turnServer = os.Getenv("PEERBEAM_TURN")
	}

	turnUser := opts.TURNUser
	if turnUser == "" {
		turnUser = os.Getenv("PEERBEAM_TURN_USER")
	}

	turnPass := opts.TURNPass
	if turnPass == "" {
		turnPass = os.Getenv("PEERBEAM_TURN_PASS")
	}

	connectTimeout := opts.ConnectTimeout
	if connectTimeout == 0 {
		if v := os.Getenv("PEERBEAM_CONNECT_TIMEOUT"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("invalid PEERBEAM_CONNECT_TIMEOUT: %w", err)
			}
			connectTimeout = d
		}
	}
	if connectTimeout == 0 {
		connectTimeout = DefaultConnectTimeout
	}

	return &Config{
		ServerURL:      serverURL,
		ListenAddr:     listenAddr,
		STUNServer:     stunServer,
		TURNServer:     turnServer,
		TURNUser:       turnUser,
		TURNPass:       turnPass,
		ConnectTimeout: connectTimeout,
	}, nil
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
		fmt.Sprintf("turns:%s:5349?transport=tcp", c.TURNServer),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}
