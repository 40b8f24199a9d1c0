package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ChattingLord/roomlink/internal/ui"
	"github.com/ChattingLord/roomlink/internal/version"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "roomlink",
	Short: "Chat rooms with a full mesh of direct audio/video links",
	Long: `roomlink joins short-lived rooms where everyone can chat, share files, and
connect audio/video directly to every other member over WebRTC. A small relay
coordinates membership and signaling; media never passes through it.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintErrorf("Error: %v", err)
		stop()
		os.Exit(1)
	}
}
