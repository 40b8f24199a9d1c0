package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ChattingLord/roomlink/internal/config"
	"github.com/ChattingLord/roomlink/internal/dns"
	"github.com/ChattingLord/roomlink/internal/logging"
	"github.com/ChattingLord/roomlink/internal/protocol"
	"github.com/ChattingLord/roomlink/internal/session"
	"github.com/ChattingLord/roomlink/internal/signaling"
	"github.com/ChattingLord/roomlink/internal/ui"
	"github.com/spf13/cobra"
)

const requestTimeout = 10 * time.Second

// relayFlags are the connection flags shared by every client command.
type relayFlags struct {
	domain   string
	insecure bool
	stun     string
	turn     string
	turnUser string
	turnPass string
	relay    bool
	codec    string
}

func (f *relayFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.domain, "domain", "", "Relay host[:port]")
	cmd.Flags().BoolVar(&f.insecure, "insecure", false, "Use ws:// and http:// instead of TLS")
	cmd.Flags().StringVarP(&f.stun, "stun", "s", "", "Custom STUN server")
	cmd.Flags().StringVarP(&f.turn, "turn", "t", "", "Custom TURN server")
	cmd.Flags().StringVar(&f.turnUser, "turn-user", "", "TURN username")
	cmd.Flags().StringVar(&f.turnPass, "turn-pass", "", "TURN password")
	cmd.Flags().BoolVarP(&f.relay, "relay", "r", false, "Force relayed media paths")
	cmd.Flags().StringVar(&f.codec, "codec", "", "Signaling codec (json or msgpack)")
}

func (f *relayFlags) load() (*config.Config, error) {
	cfg, err := config.Load(config.Options{
		Domain:     f.domain,
		Insecure:   f.insecure,
		STUNServer: f.stun,
		TURNServer: f.turn,
		TURNUser:   f.turnUser,
		TURNPass:   f.turnPass,
		ForceRelay: f.relay,
		Codec:      f.codec,
	})
	if err != nil {
		return nil, session.NewError("load config", err)
	}
	return cfg, nil
}

// dialRelay opens a fresh signaling connection for each session.
func dialRelay(cfg *config.Config, resolver *dns.Resolver) (session.DialFunc, error) {
	codec, err := protocol.CodecByName(cfg.Codec)
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context) (session.Transport, error) {
		client, err := signaling.Dial(ctx, cfg.RelayURL, signaling.Options{
			Codec:             codec,
			ReconnectAttempts: cfg.ReconnectAttempts,
			ReconnectDelay:    cfg.ReconnectDelay,
			Resolver:          resolver,
			Logger:            logging.Component("signaling"),
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	}, nil
}

// getJSON fetches a relay HTTP endpoint into v.
func getJSON(ctx context.Context, cfg *config.Config, resolver *dns.Resolver, path string, v any) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.HTTPURL+path, nil)
	if err != nil {
		return err
	}

	client := &http.Client{Transport: &http.Transport{DialContext: resolver.DialContext}}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Message string `json:"message"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		if body.Message != "" {
			return fmt.Errorf("relay: %s", body.Message)
		}
		return fmt.Errorf("relay: %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// newRoomID asks the relay for a memorable room ID.
func newRoomID(ctx context.Context, cfg *config.Config, resolver *dns.Resolver) (string, error) {
	var body struct {
		RoomID string `json:"roomId"`
	}
	if err := getJSON(ctx, cfg, resolver, "/rooms/new", &body); err != nil {
		return "", session.NewError("create room", err)
	}
	return body.RoomID, nil
}

func parseRoomInput(input string) (string, error) {
	if input == "" {
		return "", fmt.Errorf("room ID cannot be empty")
	}

	if strings.Contains(input, "://") || strings.Contains(input, "/r/") {
		roomID, err := extractRoomIDFromURL(input)
		if err != nil {
			return "", err
		}
		ui.PrintSuccessf("Extracted room ID: %s", roomID)
		return roomID, nil
	}

	return input, nil
}

func extractRoomIDFromURL(urlStr string) (string, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", session.NewError("parse URL", err)
	}

	path := strings.TrimSuffix(parsedURL.Path, "/")
	parts := strings.Split(path, "/")

	for i, part := range parts {
		if part == "r" && i+1 < len(parts) && parts[i+1] != "" {
			return parts[i+1], nil
		}
	}

	return "", fmt.Errorf("could not extract room ID from URL: %s", urlStr)
}
