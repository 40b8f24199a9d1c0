package cmd

import (
	"github.com/ChattingLord/roomlink/internal/dns"
	"github.com/ChattingLord/roomlink/internal/session"
	"github.com/ChattingLord/roomlink/internal/ui"
	"github.com/spf13/cobra"
)

var roomFlags relayFlags

var roomCmd = &cobra.Command{
	Use:   "room <room-id|url>",
	Short: "Show who is in a live room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		room, err := parseRoomInput(args[0])
		if err != nil {
			return err
		}

		cfg, err := roomFlags.load()
		if err != nil {
			return err
		}

		var info struct {
			RoomID string   `json:"roomId"`
			Users  []string `json:"users"`
		}
		if err := getJSON(cmd.Context(), cfg, dns.NewResolver(), "/rooms/"+room, &info); err != nil {
			return session.NewError("look up room", err)
		}

		ui.RenderRoomSummary(ui.RoomSummary{RoomID: info.RoomID, Users: info.Users})
		return nil
	},
}

func init() {
	rootCmd.AddCommand(roomCmd)
	roomFlags.register(roomCmd)
}
