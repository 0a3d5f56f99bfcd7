package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nostrpay/peerd/src/common"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

const (
	tokenLifetime  = time.Minute
	defaultTimeout = 5 * time.Second
)

// AdminConfig holds the settings of an AdminClient.
type AdminConfig struct {
	// URL is the base URL of the connector admin API.
	URL string

	// Secret signs the bearer tokens. Requests are unauthenticated when it is
	// empty.
	Secret string

	// Subject identifies peerd in the tokens.
	Subject string

	Timeout time.Duration
}

// AdminClient implements Router over the connector's HTTP admin API. Calls go
// through a circuit breaker.
type AdminClient struct {
	conf    AdminConfig
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *logrus.Entry
}

type addPeerRequest struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	AuthToken string `json:"authToken,omitempty"`
}

type addRouteRequest struct {
	Prefix   string `json:"prefix"`
	NextHop  string `json:"nextHop"`
	Priority int    `json:"priority"`
}

// NewAdminClient creates an AdminClient.
func NewAdminClient(conf AdminConfig, logger *logrus.Entry) *AdminClient {
	if conf.Timeout <= 0 {
		conf.Timeout = defaultTimeout
	}
	if conf.Subject == "" {
		conf.Subject = "peerd"
	}
	conf.URL = strings.TrimRight(conf.URL, "/")

	logger = logger.WithField("component", "connector")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "connector-admin",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"from": from.String(),
				"to":   to.String(),
			}).Warn("Connector circuit breaker changed state")
		},
	})

	return &AdminClient{
		conf:    conf,
		http:    &http.Client{Timeout: conf.Timeout},
		breaker: breaker,
		logger:  logger,
	}
}

// AddPeer implements Router.
func (c *AdminClient) AddPeer(ctx context.Context, id string, endpoint string, authToken string) error {
	return c.post(ctx, "/peers", addPeerRequest{ID: id, URL: endpoint, AuthToken: authToken})
}

// AddRoute implements Router.
func (c *AdminClient) AddRoute(ctx context.Context, prefix string, nextHop string, priority int) error {
	return c.post(ctx, "/routes", addRouteRequest{Prefix: prefix, NextHop: nextHop, Priority: priority})
}

// State returns the state of the circuit breaker.
func (c *AdminClient) State() gobreaker.State {
	return c.breaker.State()
}

func (c *AdminClient) token() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   c.conf.Subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.conf.Secret))
}

func (c *AdminClient) post(ctx context.Context, path string, body interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.do(ctx, path, body)
	})
	if err != nil {
		return common.NewError("connector", common.TransportFailure, path, err)
	}
	return nil
}

func (c *AdminClient) do(ctx context.Context, path string, body interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, c.conf.URL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")

	if c.conf.Secret != "" {
		token, err := c.token()
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	c.logger.WithField("path", path).Debug("Connector updated")
	return nil
}
