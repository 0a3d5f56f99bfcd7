package relay

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/nostrpay/peerd/src/common"
	"github.com/nostrpay/peerd/src/metrics"
	"github.com/nostrpay/peerd/src/record"
	"github.com/sirupsen/logrus"
)

// Pool keeps one connection per relay URL and fans operations out over sets
// of relays. Operations take an explicit URL list; a nil list means the
// pool's default relays.
type Pool struct {
	sync.Mutex
	defaults  []string
	endpoints map[string]Endpoint
	dial      Dialer
	metrics   *metrics.Metrics
	logger    *logrus.Entry
}

// NewPool creates a Pool. Connections are opened lazily through dial.
func NewPool(defaults []string, dial Dialer, m *metrics.Metrics, logger *logrus.Entry) *Pool {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	return &Pool{
		defaults:  NormalizeURLs(defaults),
		endpoints: make(map[string]Endpoint),
		dial:      dial,
		metrics:   m,
		logger:    logger.WithField("component", "relay-pool"),
	}
}

// Defaults returns the default relay URLs.
func (p *Pool) Defaults() []string {
	res := make([]string, len(p.defaults))
	copy(res, p.defaults)
	return res
}

func (p *Pool) targets(urls []string) []string {
	if urls == nil {
		return p.defaults
	}
	return NormalizeURLs(urls)
}

// endpoint returns the connection to url, dialing it if necessary. A failed
// dial is not cached.
func (p *Pool) endpoint(ctx context.Context, url string) (Endpoint, error) {
	p.Lock()
	ep, ok := p.endpoints[url]
	p.Unlock()
	if ok {
		return ep, nil
	}

	ep, err := p.dial(ctx, url)
	if err != nil {
		return nil, err
	}

	p.Lock()
	defer p.Unlock()
	if existing, ok := p.endpoints[url]; ok {
		ep.Close()
		return existing, nil
	}
	p.endpoints[url] = ep
	return ep, nil
}

// drop forgets a connection that failed so the next operation redials.
func (p *Pool) drop(url string, ep Endpoint) {
	p.Lock()
	defer p.Unlock()
	if p.endpoints[url] == ep {
		delete(p.endpoints, url)
		ep.Close()
	}
}

// QueryAll asks every relay for the records matching filter and returns the
// union, without duplicates. Relays that cannot be reached or fail the query
// contribute nothing. It only fails when there is no relay to ask.
func (p *Pool) QueryAll(ctx context.Context, urls []string, filter record.Filter) ([]*record.Record, error) {
	targets := p.targets(urls)
	if len(targets) == 0 {
		return nil, common.Errorf("relay", common.TransportFailure, "", "no relay to query")
	}

	type result struct {
		url     string
		records []*record.Record
		err     error
	}

	resCh := make(chan result, len(targets))
	for _, url := range targets {
		go func(url string) {
			ep, err := p.endpoint(ctx, url)
			if err != nil {
				resCh <- result{url: url, err: err}
				return
			}
			records, err := ep.Query(ctx, filter)
			if err != nil && ctx.Err() == nil {
				p.drop(url, ep)
			}
			resCh <- result{url: url, records: records, err: err}
		}(url)
	}

	seen := make(map[string]struct{})
	var all []*record.Record
	for range targets {
		res := <-resCh
		if res.err != nil {
			p.metrics.QueryFailed(res.url)
			p.logger.WithError(res.err).WithField("relay", res.url).Debug("Query failed")
			continue
		}
		for _, rec := range res.records {
			if rec == nil {
				continue
			}
			if _, ok := seen[rec.ID]; ok {
				continue
			}
			seen[rec.ID] = struct{}{}
			all = append(all, rec)
		}
	}

	return all, nil
}

// PublishAny offers rec to every relay concurrently and returns as soon as one
// of them accepts it. The remaining attempts carry on in the background. If
// every relay fails, the error is a TransportFailure.
func (p *Pool) PublishAny(ctx context.Context, urls []string, rec *record.Record) error {
	targets := p.targets(urls)
	if len(targets) == 0 {
		return common.Errorf("relay", common.TransportFailure, rec.ID, "no relay to publish to")
	}

	errCh := make(chan error, len(targets))
	for _, url := range targets {
		go func(url string) {
			ep, err := p.endpoint(ctx, url)
			if err == nil {
				err = ep.Publish(ctx, rec)
				if err != nil && ctx.Err() == nil {
					p.drop(url, ep)
				}
			}
			if err != nil {
				p.metrics.PublishFailed(url)
				p.logger.WithError(err).WithField("relay", url).Debug("Publish failed")
				err = fmt.Errorf("%s: %v", url, err)
			}
			errCh <- err
		}(url)
	}

	var failures []string
	for range targets {
		err := <-errCh
		if err == nil {
			return nil
		}
		failures = append(failures, err.Error())
	}

	return common.Errorf("relay", common.TransportFailure, rec.ID,
		"all %d relays failed: %s", len(targets), strings.Join(failures, "; "))
}

// Subscribe opens filter on every relay and merges the streams into h,
// suppressing records delivered by more than one relay. Relays that cannot be
// subscribed to are skipped; it fails only if none could be.
func (p *Pool) Subscribe(ctx context.Context, urls []string, filter record.Filter, h Handler) (Subscription, error) {
	targets := p.targets(urls)
	if len(targets) == 0 {
		return nil, common.Errorf("relay", common.TransportFailure, "", "no relay to subscribe to")
	}

	fan := newFanInSubscription(h)

	var wg sync.WaitGroup
	var l sync.Mutex
	opened := 0
	var lastErr error

	for _, url := range targets {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			ep, err := p.endpoint(ctx, url)
			if err == nil {
				var sub Subscription
				sub, err = ep.Subscribe(ctx, record.Filters{filter}, fan.deliver)
				if err == nil {
					fan.add(sub)
					l.Lock()
					opened++
					l.Unlock()
					return
				}
				p.drop(url, ep)
			}
			p.logger.WithError(err).WithField("relay", url).Debug("Subscribe failed")
			l.Lock()
			lastErr = err
			l.Unlock()
		}(url)
	}
	wg.Wait()

	if opened == 0 {
		return nil, common.NewError("relay", common.TransportFailure, "", lastErr)
	}

	return fan, nil
}

// Close closes every connection.
func (p *Pool) Close() {
	p.Lock()
	defer p.Unlock()
	for url, ep := range p.endpoints {
		if err := ep.Close(); err != nil {
			p.logger.WithError(err).WithField("relay", url).Debug("Close")
		}
		delete(p.endpoints, url)
	}
}

// NormalizeURLs trims, drops empty entries and removes duplicates while
// keeping the original order.
func NormalizeURLs(urls []string) []string {
	res := []string{}
	seen := make(map[string]struct{})
	for _, u := range urls {
		u = strings.TrimRight(strings.TrimSpace(u), "/")
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		res = append(res, u)
	}
	return res
}
