package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ChattingLord/roomlink/internal/chat"
	"github.com/ChattingLord/roomlink/internal/dns"
	"github.com/ChattingLord/roomlink/internal/logging"
	"github.com/ChattingLord/roomlink/internal/mesh"
	"github.com/ChattingLord/roomlink/internal/presence"
	"github.com/ChattingLord/roomlink/internal/session"
	"github.com/ChattingLord/roomlink/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

const enterTimeout = 15 * time.Second

var (
	joinFlags     relayFlags
	flagName      string
	flagVideoFile string
	flagAudioFile string
)

var joinCmd = &cobra.Command{
	Use:     "join [room-id|url]",
	Aliases: []string{"j"},
	Short:   "Join a room, or open a new one",
	Long: `Join a room to chat, share files, and connect audio/video with everyone in it.
Without a room ID a new room is created and its link printed for sharing.

Examples:
  roomlink join --name "Ada Lovelace"
  roomlink join brave-amber-falcon-river --name Ada
  roomlink join https://rooms.example.com/r/brave-amber-falcon-river --name Ada
  roomlink join brave-amber-falcon-river --name Ada --video-file clip.ivf`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var room string
		if len(args) == 1 {
			var err error
			if room, err = parseRoomInput(args[0]); err != nil {
				return err
			}
		}
		return joinRoom(cmd.Context(), room)
	},
}

func joinRoom(ctx context.Context, room string) error {
	identity, err := localIdentity(flagName)
	if err != nil {
		return err
	}

	cfg, err := joinFlags.load()
	if err != nil {
		return err
	}
	resolver := dns.NewResolver()

	fmt.Println()
	spin := ui.NewConnectionSpinner("Connecting to relay...")
	spin.Start()

	if room == "" {
		spin.UpdateMessage("Creating a room...")
		if room, err = newRoomID(ctx, cfg, resolver); err != nil {
			spin.Error("Could not create a room")
			return err
		}
		spin.UpdateMessage("Connecting to relay...")
	}

	dial, err := dialRelay(cfg, resolver)
	if err != nil {
		spin.Stop()
		return err
	}

	bridge := ui.NewBridge()
	sess := session.New(session.Options{
		Dial:        dial,
		Factory:     &mesh.PionFactory{Config: cfg.PeerConfiguration()},
		Observer:    bridge,
		MaxFileSize: cfg.MaxFileSize,
		Logger:      logging.Component("session"),
	})

	enterCtx, cancel := context.WithTimeout(ctx, enterTimeout)
	err = sess.Enter(enterCtx, room, identity)
	cancel()
	if err != nil {
		spin.Error("Could not join the room")
		return err
	}
	spin.Success(fmt.Sprintf("Joined as %s", presence.DisplayName(identity)))
	defer sess.Leave()

	fmt.Println(ui.NewRoomInfo(room, cfg.GetRoomLink(room)).View())

	mediaCtx, stopMedia := context.WithCancel(ctx)
	defer stopMedia()
	startMediaSources(mediaCtx, sess.Media())

	started := time.Now()
	final, err := runChat(ctx, sess, bridge, cfg.GetRoomLink(room))
	if err != nil {
		return err
	}

	if err := sess.Leave(); err != nil {
		ui.PrintWarning(fmt.Sprintf("Left %s without a clean goodbye: %v", room, err))
	}

	fmt.Println()
	ui.RenderSessionSummary(ui.SessionSummary{
		RoomID:       room,
		Duration:     time.Since(started),
		Messages:     countChat(final),
		Participants: len(final.Participants()),
	})

	if err := final.Err(); err != nil {
		return session.NewError("room session", err)
	}
	return nil
}

// runChat hands the terminal to the chat view until the user leaves or the
// session ends.
func runChat(ctx context.Context, sess *session.Session, bridge *ui.Bridge, link string) (ui.ChatModel, error) {
	snap, err := sess.Snapshot()
	if err != nil {
		return ui.ChatModel{}, err
	}

	program := tea.NewProgram(ui.NewChatModel(sess, snap, link), tea.WithAltScreen(), tea.WithContext(ctx))
	go bridge.Run(program)
	defer bridge.Stop()

	final, err := program.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return ui.ChatModel{}, fmt.Errorf("chat UI: %w", err)
	}

	model, ok := final.(ui.ChatModel)
	if !ok {
		return ui.ChatModel{}, nil
	}
	return model, nil
}

// startMediaSources streams the optional capture files into the shared local
// tracks. Playback runs whether or not the track is enabled; disabled tracks
// drop samples.
func startMediaSources(ctx context.Context, media *mesh.LocalMedia) {
	log := logging.Component("media")

	if flagVideoFile != "" {
		go func() {
			if err := mesh.PlayIVF(ctx, flagVideoFile, media); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("video source stopped", slog.String("file", flagVideoFile), slog.Any("error", err))
			}
		}()
	}
	if flagAudioFile != "" {
		go func() {
			if err := mesh.PlayOgg(ctx, flagAudioFile, media); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("audio source stopped", slog.String("file", flagAudioFile), slog.Any("error", err))
			}
		}()
	}
}

// localIdentity derives the room identifier from a display name, falling
// back to the login name.
func localIdentity(name string) (string, error) {
	if name == "" {
		name = os.Getenv("USER")
	}
	identity := presence.IdentityFromName(name)
	if identity == "" {
		return "", errors.New("a display name is required (use --name)")
	}
	return identity, nil
}

func countChat(m ui.ChatModel) int {
	n := 0
	for _, msg := range m.Messages() {
		if msg.Kind != chat.KindSystem {
			n++
		}
	}
	return n
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinFlags.register(joinCmd)
	joinCmd.Flags().StringVarP(&flagName, "name", "n", "", "Display name shown to the room")
	joinCmd.Flags().StringVar(&flagVideoFile, "video-file", "", "VP8 IVF file to stream as local video")
	joinCmd.Flags().StringVar(&flagAudioFile, "audio-file", "", "Opus Ogg file to stream as local audio")
}
