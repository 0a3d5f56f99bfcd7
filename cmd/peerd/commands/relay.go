package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/nostrpay/peerd/src/relay"
	"github.com/spf13/cobra"
)

// NewRelayCmd returns the command running a development relay over WAMP
func NewRelayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "relay",
		Short:   "Run a development relay",
		PreRunE: loadConfig,
		RunE:    runRelay,
	}
	AddRelayFlags(cmd)
	return cmd
}

// AddRelayFlags adds flags to the Relay command
func AddRelayFlags(cmd *cobra.Command) {
	cmd.Flags().String("datadir", _config.Peerd.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.Peerd.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("wamp-realm", _config.Peerd.WampRealm, "WAMP realm")
	cmd.Flags().StringP("relay-listen", "l", _config.RelayListen, "Listen IP:Port for the relay")
	cmd.Flags().String("relay-cert", _config.RelayCert, "TLS certificate file")
	cmd.Flags().String("relay-key", _config.RelayKey, "TLS key file")
}

func runRelay(cmd *cobra.Command, args []string) error {
	logger := _config.Peerd.Logger().WithField("component", "relay")

	server, err := relay.NewWampServer(
		_config.RelayListen,
		_config.Peerd.WampRealm,
		_config.RelayCert,
		_config.RelayKey,
		logger,
	)
	if err != nil {
		return err
	}

	if err := server.Listen(); err != nil {
		return err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		server.Shutdown()
	}()

	logger.WithField("url", server.URL()).Info("Relay listening")

	return server.Run()
}
