package commands

import (
	"context"
	"encoding/json"
	"os"

	"github.com/nostrpay/peerd/src/crypto/keys"
	"github.com/nostrpay/peerd/src/peerd"
	"github.com/spf13/cobra"
)

// NewDiscoverCmd returns the command printing the peers the agent would
// configure
func NewDiscoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "discover",
		Short:   "Discover the advertised peers among followed identities",
		PreRunE: loadConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, engine *peerd.Peerd) (interface{}, error) {
				return engine.Discovery.GetPeerConfigs(ctx, engine.PubKey(), nil)
			})
		},
	}
	AddConfigFlags(cmd)
	return cmd
}

// NewTrustCmd returns the command computing the trust placed in an identity
func NewTrustCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "trust [pubkey]",
		Short:   "Compute the trust score of an identity",
		Args:    cobra.ExactArgs(1),
		PreRunE: loadConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, err := keys.NormalizePublicKeyHex(args[0])
			if err != nil {
				return err
			}
			return withEngine(func(ctx context.Context, engine *peerd.Peerd) (interface{}, error) {
				return engine.Trust(ctx, subject)
			})
		},
	}
	AddConfigFlags(cmd)
	return cmd
}

// NewFollowersCmd returns the command listing the followers of an identity
func NewFollowersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "followers [pubkey]",
		Short:   "List the identities following an identity, the agent by default",
		Args:    cobra.MaximumNArgs(1),
		PreRunE: loadConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			var identity string
			if len(args) == 1 {
				var err error
				if identity, err = keys.NormalizePublicKeyHex(args[0]); err != nil {
					return err
				}
			}
			return withEngine(func(ctx context.Context, engine *peerd.Peerd) (interface{}, error) {
				if identity == "" {
					identity = engine.PubKey()
				}
				return engine.Followers(ctx, identity)
			})
		},
	}
	AddConfigFlags(cmd)
	return cmd
}

// withEngine initialises an agent that neither serves nor responds, runs fn
// and prints its result as JSON.
func withEngine(fn func(ctx context.Context, engine *peerd.Peerd) (interface{}, error)) error {
	_config.Peerd.NoService = true
	_config.Peerd.Respond = false

	engine := peerd.NewPeerd(&_config.Peerd)
	if err := engine.Init(); err != nil {
		return err
	}
	defer engine.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), _config.Peerd.RequestTimeout)
	defer cancel()

	res, err := fn(ctx, engine)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
