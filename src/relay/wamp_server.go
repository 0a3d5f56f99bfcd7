package relay

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gammazero/nexus/v3/client"
	"github.com/gammazero/nexus/v3/router"
	"github.com/gammazero/nexus/v3/wamp"
	"github.com/nostrpay/peerd/src/crypto/keys"
	"github.com/nostrpay/peerd/src/record"
	"github.com/nostrpay/peerd/src/resolver"
	"github.com/sirupsen/logrus"
)

// WampServer is a development relay reachable over WAMP. It verifies the
// records it is given, keeps only the latest version of replaceable records,
// answers queries and pushes every accepted record to the relay topic.
type WampServer struct {
	address    string
	realm      string
	router     router.Router
	httpServer *http.Server
	listener   net.Listener
	local      *client.Client
	certFile   string
	keyFile    string
	logger     *logrus.Entry

	l       sync.RWMutex
	records []*record.Record
}

// NewWampServer instantiates a WampServer which can be run at address. TLS is
// used when both certFile and keyFile are set.
func NewWampServer(address string,
	realm string,
	certFile string,
	keyFile string,
	logger *logrus.Entry) (*WampServer, error) {

	if realm == "" {
		realm = DefaultWampRealm
	}

	routerConfig := &router.Config{
		RealmConfigs: []*router.RealmConfig{
			{
				URI:           wamp.URI(realm),
				AnonymousAuth: true,
			},
		},
	}

	nxr, err := router.NewRouter(routerConfig, logger)
	if err != nil {
		return nil, err
	}

	wss := router.NewWebsocketServer(nxr)

	httpServer := &http.Server{
		Handler: wss,
		Addr:    address,
	}

	if certFile != "" && keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			nxr.Close()
			return nil, fmt.Errorf("error loading X509 key pair: %s", err)
		}
		httpServer.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	}

	res := &WampServer{
		address:    address,
		realm:      realm,
		router:     nxr,
		httpServer: httpServer,
		certFile:   certFile,
		keyFile:    keyFile,
		logger:     logger,
	}

	if err := res.registerProcedures(); err != nil {
		nxr.Close()
		return nil, err
	}

	return res, nil
}

func (s *WampServer) registerProcedures() error {
	local, err := client.ConnectLocal(s.router, client.Config{
		Realm:  s.realm,
		Logger: s.logger,
	})
	if err != nil {
		return err
	}

	if err := local.Register(WampProcPublish, s.publishHandler, nil); err != nil {
		local.Close()
		return err
	}
	if err := local.Register(WampProcQuery, s.queryHandler, nil); err != nil {
		local.Close()
		return err
	}

	s.local = local
	return nil
}

// Listen binds the server address. It is called by Run if needed, and lets
// callers learn the actual address when listening on port 0.
func (s *WampServer) Listen() error {
	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	s.listener = ln
	s.address = ln.Addr().String()
	return nil
}

// Run serves websocket connections until Shutdown is called.
func (s *WampServer) Run() error {
	if err := s.Listen(); err != nil {
		return err
	}

	var err error
	if s.httpServer.TLSConfig != nil {
		// certificates are already loaded in the TLSConfig
		err = s.httpServer.ServeTLS(s.listener, "", "")
	} else {
		err = s.httpServer.Serve(s.listener)
	}
	if err != nil && err != http.ErrServerClosed {
		s.logger.WithError(err).Error("Run")
		return err
	}
	return nil
}

// Shutdown stops the websocket server and the WAMP router.
func (s *WampServer) Shutdown() {
	defer s.router.Close()

	if s.local != nil {
		s.local.Close()
	}

	if err := s.httpServer.Shutdown(context.Background()); err != nil {
		s.logger.WithError(err).Error("Shutting down http server")
	}
}

// Addr returns the address of the server.
func (s *WampServer) Addr() string {
	return s.address
}

// URL returns the relay URL clients should dial.
func (s *WampServer) URL() string {
	if s.httpServer.TLSConfig != nil {
		return "wamps://" + s.address
	}
	return "wamp://" + s.address
}

// Len returns the number of records held.
func (s *WampServer) Len() int {
	s.l.RLock()
	defer s.l.RUnlock()
	return len(s.records)
}

// store adds rec, replacing the older version of a replaceable record. It
// returns false if rec is a duplicate or superseded.
func (s *WampServer) store(rec *record.Record) bool {
	s.l.Lock()
	defer s.l.Unlock()

	replaceable := record.IsReplaceable(rec.Kind)
	for i, r := range s.records {
		if r.ID == rec.ID {
			return false
		}
		if replaceable && resolver.KeyOf(r) == resolver.KeyOf(rec) {
			if !resolver.Supersedes(rec, r) {
				return false
			}
			s.records[i] = rec
			return true
		}
	}
	s.records = append(s.records, rec)
	return true
}

func (s *WampServer) publishHandler(ctx context.Context, inv *wamp.Invocation) client.InvokeResult {
	if len(inv.Arguments) != 1 {
		return rejected(fmt.Sprintf("Invocation should contain 1 argument, not %d", len(inv.Arguments)))
	}

	rec, err := decodeWampRecord(inv.Arguments[0])
	if err != nil {
		return rejected(fmt.Sprintf("Error parsing record: %v", err))
	}

	if !keys.Verify(rec) {
		return rejected("Invalid id or signature")
	}

	if s.store(rec) {
		s.logger.WithFields(logrus.Fields{
			"id":     rec.ID,
			"kind":   rec.Kind,
			"author": rec.PubKey,
		}).Debug("Accepted record")

		if err := s.local.Publish(WampTopic, nil, wamp.List{inv.Arguments[0]}, nil); err != nil {
			s.logger.WithError(err).Error("Publishing record")
		}
	}

	return client.InvokeResult{}
}

func (s *WampServer) queryHandler(ctx context.Context, inv *wamp.Invocation) client.InvokeResult {
	if len(inv.Arguments) != 1 {
		return rejected(fmt.Sprintf("Invocation should contain 1 argument, not %d", len(inv.Arguments)))
	}

	raw, ok := wamp.AsString(inv.Arguments[0])
	if !ok {
		return rejected("Error reading filter argument")
	}

	var filter record.Filter
	if err := json.Unmarshal([]byte(raw), &filter); err != nil {
		return rejected(fmt.Sprintf("Error parsing filter: %v", err))
	}

	s.l.RLock()
	var matches []*record.Record
	for _, rec := range s.records {
		if filter.Matches(rec) {
			matches = append(matches, rec)
		}
	}
	s.l.RUnlock()

	if filter.Limit > 0 && len(matches) > filter.Limit {
		matches = matches[len(matches)-filter.Limit:]
	}

	args := make(wamp.List, 0, len(matches))
	for _, rec := range matches {
		raw, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		args = append(args, string(raw))
	}

	return client.InvokeResult{Args: args}
}

func rejected(msg string) client.InvokeResult {
	return client.InvokeResult{
		Err:  ErrWampRejected,
		Args: wamp.List{msg},
	}
}
