package cmd

import (
	"fmt"

	"github.com/ChattingLord/roomlink/internal/dns"
	"github.com/ChattingLord/roomlink/internal/ui"
	"github.com/spf13/cobra"
)

var newFlags relayFlags

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a room and print its link",
	Long: `Ask the relay for a fresh memorable room ID and print the link to share.
The room comes to life when its first member joins.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := newFlags.load()
		if err != nil {
			return err
		}

		room, err := newRoomID(cmd.Context(), cfg, dns.NewResolver())
		if err != nil {
			return err
		}

		fmt.Println()
		fmt.Println(ui.NewRoomInfo(room, cfg.GetRoomLink(room)).View())
		ui.PrintInfof("Join with: roomlink join %s --name <your name>", room)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(newCmd)
	newFlags.register(newCmd)
}
