package commands

import (
	"github.com/nostrpay/peerd/src/config"
)

// CLIConfig contains the configuration of the peerd commands
type CLIConfig struct {
	Peerd       config.Config `mapstructure:",squash"`
	RelayListen string        `mapstructure:"relay-listen"`
	RelayCert   string        `mapstructure:"relay-cert"`
	RelayKey    string        `mapstructure:"relay-key"`
}

// NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Peerd:       *config.NewDefaultConfig(),
		RelayListen: config.DefaultRelayAddr,
	}
}
