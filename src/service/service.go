package service

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nostrpay/peerd/src/common"
	"github.com/nostrpay/peerd/src/crypto/keys"
	"github.com/nostrpay/peerd/src/discovery"
	"github.com/nostrpay/peerd/src/graph"
	"github.com/nostrpay/peerd/src/version"
	"github.com/sirupsen/logrus"
)

// Agent is what the service exposes over HTTP.
type Agent interface {
	PubKey() string
	Peers() []discovery.PeerConfig
	Trust(ctx context.Context, subject string) (*graph.TrustScore, error)
	Followers(ctx context.Context, identity string) ([]string, error)
	Invalidate(identity string)
}

// Info is returned by GET /info.
type Info struct {
	PubKey  string `json:"pubkey"`
	Version string `json:"version"`
}

// Service is the read-mostly HTTP API of a running agent.
type Service struct {
	sync.Mutex

	bindAddress string
	agent       Agent
	router      chi.Router
	server      *http.Server
	logger      *logrus.Entry
}

// NewService creates a Service. metrics, when not nil, is mounted on /metrics.
func NewService(bindAddress string, agent Agent, metrics http.Handler, logger *logrus.Entry) *Service {
	service := &Service{
		bindAddress: bindAddress,
		agent:       agent,
		logger:      logger,
	}

	service.registerHandlers(metrics)

	return service
}

func (s *Service) registerHandlers(metrics http.Handler) {
	s.logger.Debug("Registering peerd API handlers")

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/info", s.GetInfo)
	r.Get("/peers", s.GetPeers)
	r.Get("/trust/{pubkey}", s.GetTrust)
	r.Get("/followers/{pubkey}", s.GetFollowers)
	r.Post("/invalidate/{pubkey}", s.PostInvalidate)

	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	s.router = r
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

// Handler returns the root handler of the API.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Serve listens on the bind address. It blocks until Shutdown is called.
func (s *Service) Serve() {
	s.Lock()
	s.server = &http.Server{Addr: s.bindAddress, Handler: s.router}
	server := s.server
	s.Unlock()

	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving peerd API")

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Error(err)
	}
}

// Shutdown stops a server started with Serve.
func (s *Service) Shutdown(ctx context.Context) error {
	s.Lock()
	server := s.server
	s.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// GetInfo ...
func (s *Service) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, Info{
		PubKey:  s.agent.PubKey(),
		Version: version.Version,
	})
}

// GetPeers returns the peer configurations produced by the last discovery.
func (s *Service) GetPeers(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.agent.Peers())
}

// GetTrust ...
func (s *Service) GetTrust(w http.ResponseWriter, r *http.Request) {
	subject, ok := s.pubkeyParam(w, r)
	if !ok {
		return
	}

	score, err := s.agent.Trust(r.Context(), subject)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, score)
}

// GetFollowers ...
func (s *Service) GetFollowers(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.pubkeyParam(w, r)
	if !ok {
		return
	}

	followers, err := s.agent.Followers(r.Context(), identity)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, followers)
}

// PostInvalidate drops the cached follow list and trust scores of an identity.
func (s *Service) PostInvalidate(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.pubkeyParam(w, r)
	if !ok {
		return
	}

	s.agent.Invalidate(identity)

	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) pubkeyParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	pubkey := chi.URLParam(r, "pubkey")
	if err := keys.ValidatePublicKeyHex(pubkey); err != nil {
		s.writeError(w, err)
		return "", false
	}
	return pubkey, true
}

func (s *Service) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Encoding response")
	}
}

func (s *Service) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case common.Is(err, common.InvalidIdentity):
		status = http.StatusBadRequest
	case common.Is(err, common.NotFound):
		status = http.StatusNotFound
	case common.Is(err, common.TransportFailure):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		s.logger.WithError(err).Error("Serving request")
	}

	http.Error(w, err.Error(), status)
}
