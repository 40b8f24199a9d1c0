package cmd

import (
	"github.com/ChattingLord/roomlink/internal/config"
	"github.com/ChattingLord/roomlink/internal/relay"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var flagRelayPort string

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the relay service",
	Long: `Run the relay that rooms coordinate through. It tracks membership, rebroadcasts
chat, and forwards signaling between members. Media never passes through it.

Environment:
  HTTP_PORT    port to listen on (default 8080)
  LOG_LEVEL    debug, info, warn or error (default info); logs are JSON on stdout`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(config.Options{ListenPort: flagRelayPort})
		if err != nil {
			return err
		}

		app := fx.New(
			fx.Supply(cfg),
			relay.LoggerModule,
			relay.Module,
			fx.NopLogger,
		)
		app.Run()
		return app.Err()
	},
}

func init() {
	rootCmd.AddCommand(relayCmd)
	relayCmd.Flags().StringVarP(&flagRelayPort, "port", "p", "", "Port to listen on")
}
