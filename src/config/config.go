package config

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nostrpay/peerd/src/bootstrap"
	"github.com/nostrpay/peerd/src/common"
	"github.com/nostrpay/peerd/src/correlator"
	"github.com/nostrpay/peerd/src/discovery"
	"github.com/nostrpay/peerd/src/graph"
	"github.com/nostrpay/peerd/src/record"
	"github.com/nostrpay/peerd/src/relay"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the agent's
	// private key.
	DefaultKeyfile = "priv_key"

	// DefaultConfigName is the base name of the optional configuration file,
	// without extension.
	DefaultConfigName = "peerd"
)

// Default configuration values.
const (
	DefaultLogLevel         = "info"
	DefaultServiceAddr      = "127.0.0.1:8032"
	DefaultRelayAddr        = "127.0.0.1:8033"
	DefaultRequestTimeout   = correlator.DefaultTimeout
	DefaultBootstrapPacing  = bootstrap.DefaultPacing
	DefaultWampRealm        = relay.DefaultWampRealm
	DefaultVerifySignatures = true
	DefaultRespond          = true
	DefaultTrustCredit      = false
	DefaultAssetScale       = 9
)

// DefaultRelays are used when no relay is configured.
var DefaultRelays = []string{"wss://relay.damus.io", "wss://nos.lol"}

var validate = validator.New()

// Config contains all the configuration properties of a peerd agent.
type Config struct {
	// DataDir is the top-level directory containing the key, the seed list and
	// the optional configuration file.
	DataDir string `mapstructure:"datadir" validate:"required"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log" validate:"oneof=debug info warn error fatal panic"`

	// LogFile, when set, receives a copy of every log entry.
	LogFile string `mapstructure:"log-file"`

	// Relays are the relays used for queries, publications and
	// subscriptions unless a seed or peer advertises its own.
	Relays []string `mapstructure:"relays" validate:"min=1,dive,url"`

	// WampRealm is the realm joined on wamp:// relays.
	WampRealm string `mapstructure:"wamp-realm"`

	// RequestTimeout bounds payment setup exchanges, both for direct requests
	// and while bootstrapping.
	RequestTimeout time.Duration `mapstructure:"timeout" validate:"gt=0"`

	// BootstrapPacing is the minimum interval between two seeds.
	BootstrapPacing time.Duration `mapstructure:"bootstrap-pacing" validate:"gte=0"`

	// VerifySignatures excludes records with a bad id or signature.
	VerifySignatures bool `mapstructure:"verify"`

	// ILPAddress and BTPEndpoint make up the advertisement of the agent. No
	// advertisement is published when either is empty.
	ILPAddress  string `mapstructure:"ilp-address"`
	BTPEndpoint string `mapstructure:"btp-endpoint"`

	// AssetCode and AssetScale describe the asset the agent settles in.
	AssetCode  string `mapstructure:"asset-code"`
	AssetScale int    `mapstructure:"asset-scale" validate:"gte=0,lte=255"`

	// Respond enables answering payment setup requests.
	Respond bool `mapstructure:"respond"`

	// TrustCredit derives credit limits from the follow graph instead of
	// granting FlatCredit to every followed peer.
	TrustCredit bool `mapstructure:"trust-credit"`

	// Credit settings, as decimal integers of arbitrary size.
	FlatCredit             string `mapstructure:"flat-credit" validate:"numeric"`
	CreditFollowed         string `mapstructure:"credit-followed" validate:"numeric"`
	CreditUnfollowed       string `mapstructure:"credit-unfollowed" validate:"numeric"`
	MutualFollowerBonus    string `mapstructure:"mutual-bonus" validate:"numeric"`
	MaxMutualFollowerBonus string `mapstructure:"max-mutual-bonus" validate:"numeric"`
	MaxCreditLimit         string `mapstructure:"max-credit" validate:"numeric"`

	// NoService disables the HTTP status service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the HTTP status service.
	ServiceAddr string `mapstructure:"service-listen"`

	// ConnectorURL is the base URL of the payment connector admin API. Peers
	// and routes are only kept in memory when it is empty.
	ConnectorURL string `mapstructure:"connector-url" validate:"omitempty,url"`

	// ConnectorSecret signs the tokens presented to the connector.
	ConnectorSecret string `mapstructure:"connector-secret"`

	// Key is the private key of the agent.
	Key *ecdsa.PrivateKey `mapstructure:"-" validate:"-"`

	// Inmem, when set, resolves inmem:// relays. Used in tests.
	Inmem *relay.InmemNetwork `mapstructure:"-" validate:"-"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	trust := graph.DefaultTrustConfig()

	config := &Config{
		DataDir:                DefaultDataDir(),
		LogLevel:               DefaultLogLevel,
		Relays:                 append([]string{}, DefaultRelays...),
		WampRealm:              DefaultWampRealm,
		RequestTimeout:         DefaultRequestTimeout,
		BootstrapPacing:        DefaultBootstrapPacing,
		VerifySignatures:       DefaultVerifySignatures,
		AssetScale:             DefaultAssetScale,
		Respond:                DefaultRespond,
		TrustCredit:            DefaultTrustCredit,
		FlatCredit:             big.NewInt(discovery.DefaultCreditLimit).String(),
		CreditFollowed:         trust.BaseCreditForFollowed.String(),
		CreditUnfollowed:       trust.BaseCreditForUnfollowed.String(),
		MutualFollowerBonus:    trust.MutualFollowerBonus.String(),
		MaxMutualFollowerBonus: trust.MaxMutualBonus.String(),
		MaxCreditLimit:         trust.MaxCreditLimit.String(),
		ServiceAddr:            DefaultServiceAddr,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level peerd directory.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if (c.ILPAddress == "") != (c.BTPEndpoint == "") {
		return fmt.Errorf("ilp-address and btp-endpoint must be set together")
	}
	return nil
}

func parseCredit(name string, value string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%s: invalid credit value %q", name, value)
	}
	return v, nil
}

// TrustConfig returns the parameters of the trust computation.
func (c *Config) TrustConfig() (graph.TrustConfig, error) {
	var conf graph.TrustConfig
	var err error

	fields := []struct {
		name  string
		value string
		dst   **big.Int
	}{
		{"credit-followed", c.CreditFollowed, &conf.BaseCreditForFollowed},
		{"credit-unfollowed", c.CreditUnfollowed, &conf.BaseCreditForUnfollowed},
		{"mutual-bonus", c.MutualFollowerBonus, &conf.MutualFollowerBonus},
		{"max-mutual-bonus", c.MaxMutualFollowerBonus, &conf.MaxMutualBonus},
		{"max-credit", c.MaxCreditLimit, &conf.MaxCreditLimit},
	}
	for _, f := range fields {
		if *f.dst, err = parseCredit(f.name, f.value); err != nil {
			return graph.TrustConfig{}, err
		}
	}

	return conf, nil
}

// FlatCreditLimit returns the credit granted to followed peers when
// TrustCredit is off.
func (c *Config) FlatCreditLimit() (*big.Int, error) {
	return parseCredit("flat-credit", c.FlatCredit)
}

// Advertisement returns the advertisement of the agent, or nil if the agent
// does not advertise itself.
func (c *Config) Advertisement() *record.PeerAdvertisement {
	if c.ILPAddress == "" || c.BTPEndpoint == "" {
		return nil
	}
	adv := &record.PeerAdvertisement{
		ILPAddress:  c.ILPAddress,
		BTPEndpoint: c.BTPEndpoint,
		Relays:      relay.NormalizeURLs(c.Relays),
	}
	if c.AssetCode != "" {
		adv.Assets = []record.Asset{{Code: c.AssetCode, Scale: c.AssetScale}}
	}
	return adv
}

// Logger returns a formatted logrus Entry, with prefix set to "peerd". When
// LogFile is set, entries are also written there.
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogFile != "" {
			c.logger.AddHook(lfshook.NewHook(
				lfshook.PathMap{
					logrus.DebugLevel: c.LogFile,
					logrus.InfoLevel:  c.LogFile,
					logrus.WarnLevel:  c.LogFile,
					logrus.ErrorLevel: c.LogFile,
					logrus.FatalLevel: c.LogFile,
					logrus.PanicLevel: c.LogFile,
				},
				&logrus.JSONFormatter{},
			))
		}
	}
	return c.logger.WithField("prefix", "peerd")
}

// DefaultDataDir return the default directory name for top-level peerd config
// based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Peerd")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Peerd")
		} else {
			return filepath.Join(home, ".peerd")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
