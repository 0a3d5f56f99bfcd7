package relay

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// DialerConfig carries the settings of the network backends.
type DialerConfig struct {
	WampRealm   string
	CallTimeout time.Duration
	Inmem       *InmemNetwork
}

// NewDialer returns a Dialer choosing the backend from the URL scheme.
func NewDialer(conf DialerConfig, logger *logrus.Entry) Dialer {
	return func(ctx context.Context, url string) (Endpoint, error) {
		switch {
		case strings.HasPrefix(url, "ws://"), strings.HasPrefix(url, "wss://"):
			return DialNostr(ctx, url, logger)
		case strings.HasPrefix(url, "wamp://"), strings.HasPrefix(url, "wamps://"):
			return DialWamp(ctx, url, conf.WampRealm, conf.CallTimeout, logger)
		case strings.HasPrefix(url, "inmem://"):
			if conf.Inmem == nil {
				return nil, fmt.Errorf("no in-memory network for %s", url)
			}
			return conf.Inmem.Dial(ctx, url)
		}
		return nil, fmt.Errorf("unsupported relay scheme: %s", url)
	}
}
