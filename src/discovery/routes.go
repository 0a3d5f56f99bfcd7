package discovery

import (
	"context"

	"github.com/nostrpay/peerd/src/connector"
	"github.com/sirupsen/logrus"
)

// SyncRoutes registers every peer with the connector and routes its ILP
// address through it. Peers with a zero credit limit are skipped. Failures do
// not stop the sync; the number of peers registered and the last error are
// returned.
func SyncRoutes(ctx context.Context, router connector.Router, configs []PeerConfig, logger *logrus.Entry) (int, error) {
	var lastErr error
	synced := 0

	for _, pc := range configs {
		if pc.CreditLimit == nil || pc.CreditLimit.Sign() <= 0 {
			continue
		}

		entry := logger.WithFields(logrus.Fields{
			"peer":        pc.ID,
			"ilp_address": pc.ILPAddress,
		})

		if err := router.AddPeer(ctx, pc.ID, pc.BTPEndpoint, pc.AuthToken); err != nil {
			entry.WithError(err).Warn("Registering peer failed")
			lastErr = err
			continue
		}

		if err := router.AddRoute(ctx, pc.ILPAddress, pc.ID, pc.Priority); err != nil {
			entry.WithError(err).Warn("Adding route failed")
			lastErr = err
			continue
		}

		synced++
	}

	return synced, lastErr
}
