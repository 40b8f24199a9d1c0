package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ChattingLord/roomlink/internal/protocol"
	"github.com/ChattingLord/roomlink/internal/utils"
	pion "github.com/pion/webrtc/v4"
)

// Default configuration values
const (
	DefaultDomain            = "localhost:8080"
	DefaultSTUN              = "stun:stun.l.google.com:19302"
	DefaultCodec             = protocol.CodecJSON
	DefaultReconnectAttempts = 5
	DefaultReconnectDelay    = time.Second
	DefaultListenPort        = "8080"

	// MaxFileSize caps a single chat attachment.
	MaxFileSize = 10 * 1024 * 1024
)

// Config holds application configuration
type Config struct {
	// Domain is the relay host[:port]
	Domain string

	// Insecure selects ws:// and http:// instead of wss:// and https://
	Insecure bool

	// RelayURL is the websocket endpoint constructed from Domain
	RelayURL string

	// HTTPURL is the relay's plain HTTP base URL
	HTTPURL string

	// ICE helpers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool

	// Codec is the signaling frame codec name
	Codec string

	ReconnectAttempts int
	ReconnectDelay    time.Duration

	MaxFileSize int64

	// ListenPort is used by the relay role
	ListenPort string
}

// Options carries CLI flag overrides. Zero values fall through to the
// environment, then to defaults.
type Options struct {
	Domain            string
	Insecure          bool
	STUNServer        string
	TURNServer        string
	TURNUser          string
	TURNPass          string
	ForceRelay        bool
	Codec             string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	ListenPort        string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options)
// 2. Environment variables
// 3. Hardcoded defaults
func Load(opts Options) (*Config, error) {
	cfg := &Config{
		Domain:     pick(opts.Domain, "DOMAIN", DefaultDomain),
		STUNServer: pick(opts.STUNServer, "STUN_SERVER", DefaultSTUN),
		TURNServer: pick(opts.TURNServer, "TURN_SERVER", ""),
		TURNUser:   pick(opts.TURNUser, "TURN_USERNAME", ""),
		TURNPass:   pick(opts.TURNPass, "TURN_PASSWORD", ""),
		Codec:      pick(opts.Codec, "SIGNAL_CODEC", DefaultCodec),
		ListenPort: pick(opts.ListenPort, "HTTP_PORT", DefaultListenPort),

		Insecure:   opts.Insecure || envBool("INSECURE"),
		ForceRelay: opts.ForceRelay || envBool("FORCE_RELAY"),

		ReconnectAttempts: opts.ReconnectAttempts,
		ReconnectDelay:    opts.ReconnectDelay,
		MaxFileSize:       MaxFileSize,
	}

	if cfg.ReconnectAttempts == 0 {
		n, err := envInt("RECONNECT_ATTEMPTS", DefaultReconnectAttempts)
		if err != nil {
			return nil, err
		}
		cfg.ReconnectAttempts = n
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}

	if _, err := protocol.CodecByName(cfg.Codec); err != nil {
		return nil, err
	}

	if cfg.ForceRelay && cfg.TURNServer == "" {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}

	wsScheme, httpScheme := "wss", "https"
	if cfg.Insecure {
		wsScheme, httpScheme = "ws", "http"
	}
	cfg.RelayURL = fmt.Sprintf("%s://%s/ws", wsScheme, cfg.Domain)
	cfg.HTTPURL = fmt.Sprintf("%s://%s", httpScheme, cfg.Domain)

	return cfg, nil
}

// GetRoomLink returns the shareable URL for a room ID
func (c *Config) GetRoomLink(roomID string) string {
	return fmt.Sprintf("%s/r/%s", c.HTTPURL, roomID)
}

// ICEServers returns the STUN helper plus the credentialed TURN helper when
// one is configured.
func (c *Config) ICEServers() []pion.ICEServer {
	servers := []pion.ICEServer{{URLs: []string{c.STUNServer}}}
	if c.TURNServer != "" {
		servers = append(servers, pion.ICEServer{
			URLs:       []string{c.TURNServer},
			Username:   c.TURNUser,
			Credential: c.TURNPass,
		})
	}
	return servers
}

// ICETransportPolicy restricts candidates to relayed ones when forced or
// when the host looks like it sits behind a VPN or CGNAT.
func (c *Config) ICETransportPolicy() pion.ICETransportPolicy {
	if c.TURNServer != "" && (c.ForceRelay || utils.ShouldForceRelay()) {
		return pion.ICETransportPolicyRelay
	}
	return pion.ICETransportPolicyAll
}

// PeerConfiguration is the pion configuration for every mesh connection.
func (c *Config) PeerConfiguration() pion.Configuration {
	return pion.Configuration{
		ICEServers:         c.ICEServers(),
		ICETransportPolicy: c.ICETransportPolicy(),
	}
}

func pick(flag, env, def string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return def
}

func envBool(name string) bool {
	v, err := strconv.ParseBool(os.Getenv(name))
	return err == nil && v
}

func envInt(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return n, nil
}
