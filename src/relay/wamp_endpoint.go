package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gammazero/nexus/v3/client"
	"github.com/gammazero/nexus/v3/wamp"
	"github.com/nostrpay/peerd/src/record"
	"github.com/sirupsen/logrus"
)

// WampEndpoint is a connection to a WAMP relay. It holds a single topic
// subscription and dispatches pushed records to its local subscriptions by
// matching their filters.
type WampEndpoint struct {
	url    string
	client *client.Client
	logger *logrus.Entry

	l       sync.Mutex
	subs    map[int]*inmemSub
	nextSub int
	joined  bool
}

// DialWamp connects to the WAMP relay at url. wamp:// and wamps:// URLs map to
// ws:// and wss:// respectively.
func DialWamp(ctx context.Context, url string, realm string, callTimeout time.Duration, logger *logrus.Entry) (*WampEndpoint, error) {
	if realm == "" {
		realm = DefaultWampRealm
	}

	logger = logger.WithField("relay", url)

	cfg := client.Config{
		Realm:           realm,
		ResponseTimeout: callTimeout,
		Logger:          logger,
	}

	cli, err := client.ConnectNet(ctx, wampRouterURL(url), cfg)
	if err != nil {
		return nil, err
	}

	return newWampEndpoint(url, cli, logger), nil
}

func newWampEndpoint(url string, cli *client.Client, logger *logrus.Entry) *WampEndpoint {
	return &WampEndpoint{
		url:    url,
		client: cli,
		logger: logger,
		subs:   make(map[int]*inmemSub),
	}
}

func wampRouterURL(url string) string {
	switch {
	case strings.HasPrefix(url, "wamps://"):
		return "wss://" + strings.TrimPrefix(url, "wamps://")
	case strings.HasPrefix(url, "wamp://"):
		return "ws://" + strings.TrimPrefix(url, "wamp://")
	}
	return url
}

func (e *WampEndpoint) URL() string {
	return e.url
}

func (e *WampEndpoint) Query(ctx context.Context, filter record.Filter) ([]*record.Record, error) {
	raw, err := json.Marshal(filter)
	if err != nil {
		return nil, err
	}

	result, err := e.client.Call(ctx, WampProcQuery, nil, wamp.List{string(raw)}, nil, nil)
	if err != nil {
		return nil, err
	}

	res := make([]*record.Record, 0, len(result.Arguments))
	for i, arg := range result.Arguments {
		rec, err := decodeWampRecord(arg)
		if err != nil {
			e.logger.WithError(err).Debugf("Skipping query result %d", i)
			continue
		}
		res = append(res, rec)
	}

	return res, nil
}

func (e *WampEndpoint) Publish(ctx context.Context, rec *record.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = e.client.Call(ctx, WampProcPublish, nil, wamp.List{string(raw)}, nil, nil)
	return err
}

func (e *WampEndpoint) Subscribe(ctx context.Context, filters record.Filters, h Handler) (Subscription, error) {
	e.l.Lock()
	defer e.l.Unlock()

	if !e.joined {
		if err := e.client.Subscribe(WampTopic, e.onRecord, nil); err != nil {
			return nil, err
		}
		e.joined = true
	}

	id := e.nextSub
	e.nextSub++
	e.subs[id] = &inmemSub{filters: filters, handler: h}

	return newCancelFunc(func() {
		e.l.Lock()
		defer e.l.Unlock()
		delete(e.subs, id)
	}), nil
}

func (e *WampEndpoint) onRecord(event *wamp.Event) {
	if len(event.Arguments) != 1 {
		return
	}
	rec, err := decodeWampRecord(event.Arguments[0])
	if err != nil {
		e.logger.WithError(err).Debug("Skipping pushed record")
		return
	}

	e.l.Lock()
	var handlers []Handler
	for _, s := range e.subs {
		if s.filters.Match(rec) {
			handlers = append(handlers, s.handler)
		}
	}
	e.l.Unlock()

	for _, h := range handlers {
		h(rec)
	}
}

func (e *WampEndpoint) Close() error {
	e.l.Lock()
	joined := e.joined
	e.joined = false
	e.l.Unlock()

	if joined {
		e.client.Unsubscribe(WampTopic)
	}
	return e.client.Close()
}

func decodeWampRecord(arg interface{}) (*record.Record, error) {
	raw, ok := wamp.AsString(arg)
	if !ok {
		return nil, fmt.Errorf("argument is not a string")
	}
	rec := &record.Record{}
	if err := json.Unmarshal([]byte(raw), rec); err != nil {
		return nil, err
	}
	return rec, nil
}
