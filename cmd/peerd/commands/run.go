package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/nostrpay/peerd/src/config"
	"github.com/nostrpay/peerd/src/peerd"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRunCmd returns the command that starts a peerd agent
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run agent",
		PreRunE: loadConfig,
		RunE:    runPeerd,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runPeerd(cmd *cobra.Command, args []string) error {
	engine := peerd.NewPeerd(&_config.Peerd)

	if err := engine.Init(); err != nil {
		_config.Peerd.Logger().WithError(err).Error("Cannot initialize engine")
		return err
	}

	watchConfig(engine)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return engine.Run(ctx)
}

// watchConfig reloads the credit settings when the config file changes.
func watchConfig(engine *peerd.Peerd) {
	if viper.ConfigFileUsed() == "" {
		return
	}

	logger := _config.Peerd.Logger()

	viper.OnConfigChange(func(e fsnotify.Event) {
		logger.WithField("file", e.Name).Info("Config file changed")

		conf := NewDefaultCLIConfig()
		if err := viper.Unmarshal(conf); err != nil {
			logger.WithError(err).Error("Reading config file")
			return
		}

		if err := conf.Peerd.Validate(); err != nil {
			logger.WithError(err).Error("Ignoring invalid config file")
			return
		}

		if err := engine.Reload(&conf.Peerd); err != nil {
			logger.WithError(err).Error("Reloading config")
		}
	})

	viper.WatchConfig()
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

// AddConfigFlags adds the flags shared by every command talking to relays
func AddConfigFlags(cmd *cobra.Command) {
	cmd.Flags().String("datadir", _config.Peerd.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.Peerd.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.Peerd.LogFile, "Also write logs to this file, as JSON")

	// Relays
	cmd.Flags().StringSliceP("relays", "r", _config.Peerd.Relays, "Default relay URLs (wss://, wamp://)")
	cmd.Flags().String("wamp-realm", _config.Peerd.WampRealm, "Realm joined on WAMP relays")
	cmd.Flags().DurationP("timeout", "t", _config.Peerd.RequestTimeout, "Payment setup request timeout")
	cmd.Flags().Bool("verify", _config.Peerd.VerifySignatures, "Ignore records with an invalid signature")

	// Credit
	cmd.Flags().Bool("trust-credit", _config.Peerd.TrustCredit, "Derive credit limits from the follow graph")
	cmd.Flags().String("flat-credit", _config.Peerd.FlatCredit, "Credit limit of followed peers without trust-credit")
	cmd.Flags().String("credit-followed", _config.Peerd.CreditFollowed, "Base credit of followed identities")
	cmd.Flags().String("credit-unfollowed", _config.Peerd.CreditUnfollowed, "Base credit of other identities")
	cmd.Flags().String("mutual-bonus", _config.Peerd.MutualFollowerBonus, "Credit bonus per mutual follow")
	cmd.Flags().String("max-mutual-bonus", _config.Peerd.MaxMutualFollowerBonus, "Cap on the mutual follow bonus")
	cmd.Flags().String("max-credit", _config.Peerd.MaxCreditLimit, "Cap on any credit limit")
}

// AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {
	AddConfigFlags(cmd)

	// Advertisement
	cmd.Flags().String("ilp-address", _config.Peerd.ILPAddress, "ILP address of the agent")
	cmd.Flags().String("btp-endpoint", _config.Peerd.BTPEndpoint, "BTP endpoint peers connect to")
	cmd.Flags().String("asset-code", _config.Peerd.AssetCode, "Code of the settlement asset")
	cmd.Flags().Int("asset-scale", _config.Peerd.AssetScale, "Scale of the settlement asset")
	cmd.Flags().Bool("respond", _config.Peerd.Respond, "Answer payment setup requests")
	cmd.Flags().Duration("bootstrap-pacing", _config.Peerd.BootstrapPacing, "Minimum interval between two seeds")

	// Connector
	cmd.Flags().String("connector-url", _config.Peerd.ConnectorURL, "Base URL of the connector admin API")
	cmd.Flags().String("connector-secret", _config.Peerd.ConnectorSecret, "Secret used to sign connector tokens")

	// Service
	cmd.Flags().Bool("no-service", _config.Peerd.NoService, "Disable HTTP service")
	cmd.Flags().StringP("service-listen", "s", _config.Peerd.ServiceAddr, "Listen IP:Port for HTTP service")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	_config.Peerd.Logger().WithFields(logrus.Fields{
		"peerd.DataDir":          _config.Peerd.DataDir,
		"peerd.LogLevel":         _config.Peerd.LogLevel,
		"peerd.Relays":           _config.Peerd.Relays,
		"peerd.RequestTimeout":   _config.Peerd.RequestTimeout,
		"peerd.VerifySignatures": _config.Peerd.VerifySignatures,
		"peerd.ILPAddress":       _config.Peerd.ILPAddress,
		"peerd.BTPEndpoint":      _config.Peerd.BTPEndpoint,
		"peerd.Respond":          _config.Peerd.Respond,
		"peerd.TrustCredit":      _config.Peerd.TrustCredit,
		"peerd.ConnectorURL":     _config.Peerd.ConnectorURL,
		"peerd.ServiceAddr":      _config.Peerd.ServiceAddr,
		"peerd.NoService":        _config.Peerd.NoService,
	}).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/peerd.toml (.json, .yaml also work)
	viper.SetConfigName(config.DefaultConfigName)
	viper.AddConfigPath(_config.Peerd.DataDir)

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Peerd.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Peerd.Logger().Debugf("No config file found in: %s", _config.Peerd.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
