// Package client provides the XOG session client: login, logout and the
// single "run one call" primitive every migration is built on.
package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/xog-migrate/pkg/logging"
	"github.com/Sternrassler/xog-migrate/pkg/xog"
	"github.com/beevik/etree"
	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for XOG calls.
var (
	xogCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xog_calls_total",
		Help: "Total XOG calls by client and outcome",
	}, []string{"client", "outcome"})

	xogCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "xog_call_duration_seconds",
		Help:    "XOG call duration in seconds by client",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"client"})

	xogErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xog_errors_total",
		Help: "Total XOG call errors by class",
	}, []string{"class"})
)

// Header and cookie that carry the session ID outside the envelope.
const (
	HeaderAuthToken = "Authtoken"
	CookieSessionID = "sessionId"
)

// Client owns one authenticated connection to one XOG endpoint.
type Client struct {
	http   *resty.Client
	config Config
	logger zerolog.Logger

	mu        sync.RWMutex
	sessionID string
}

// Config holds the client configuration.
type Config struct {
	// Name identifies the endpoint in logs and metrics, e.g. "source".
	Name string

	// BaseURL is the scheme and host of the PPM instance.
	BaseURL string

	// XOGPath is the XOG servlet path.
	XOGPath string

	// APIPath is the REST API root, reachable with the same session.
	APIPath string

	// Timeout bounds every HTTP exchange. Zero disables it.
	Timeout time.Duration

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// SessionID starts the client authenticated with an existing session.
	SessionID string
}

// DefaultConfig returns the standard PPM paths for baseURL.
func DefaultConfig(name, baseURL string) Config {
	return Config{
		Name:    name,
		BaseURL: baseURL,
		XOGPath: "/niku/xog",
		APIPath: "/ppm/rest/",
		Timeout: 5 * time.Minute,
	}
}

// New creates a new XOG client. No network activity happens until the first call.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.Name == "" {
		cfg.Name = cfg.BaseURL
	}
	if cfg.XOGPath == "" {
		cfg.XOGPath = "/niku/xog"
	}
	if cfg.APIPath == "" {
		cfg.APIPath = "/ppm/rest/"
	}

	logger := logging.NewLogger(logging.ComponentClient).With().
		Str("client", cfg.Name).
		Logger()

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetLogger(restyLogger{logger: logger})
	if cfg.InsecureSkipVerify {
		httpClient.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec
	}

	return &Client{
		http:      httpClient,
		config:    cfg,
		logger:    logger,
		sessionID: cfg.SessionID,
	}, nil
}

// Name returns the configured endpoint name.
func (c *Client) Name() string {
	return c.config.Name
}

// SessionID returns the current session token, or "" when unauthenticated.
func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// Authenticated reports whether the client holds a session token.
func (c *Client) Authenticated() bool {
	return c.SessionID() != ""
}

func (c *Client) setSession(id string) {
	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
}

// Login authenticates with username and password and stores the session ID.
//
// A protocol failure is reported as *AuthError so callers can tell rejected
// credentials apart from a bad request. Any failure leaves the client
// unauthenticated.
func (c *Client) Login(ctx context.Context, username, password string) error {
	resp, err := c.Call(ctx, xog.LoginElement(username, password))
	if err != nil {
		c.setSession("")

		var protocolErr *xog.ProtocolError
		if errors.As(err, &protocolErr) {
			c.logger.Warn().Str("user", username).Msg("XOG login rejected")
			return &AuthError{Doc: protocolErr.Doc, Err: err}
		}
		return err
	}

	el := resp.Doc.Root().FindElement(".//SessionID")
	if el == nil || strings.TrimSpace(el.Text()) == "" {
		c.setSession("")
		c.logger.Warn().Str("user", username).Msg("XOG login response has no session ID")
		return &AuthError{Doc: resp.Doc}
	}

	c.setSession(strings.TrimSpace(el.Text()))
	c.logger.Info().Str("user", username).Msg("Logged in")

	return nil
}

// Logout ends the server-side session. It is a no-op when unauthenticated.
// Failures are returned, not swallowed; on success the client can log in again.
func (c *Client) Logout(ctx context.Context) error {
	if !c.Authenticated() {
		return nil
	}

	if _, err := c.Call(ctx, xog.LogoutElement()); err != nil {
		return fmt.Errorf("logout %s: %w", c.config.Name, err)
	}

	c.setSession("")
	c.logger.Info().Msg("Logged out")

	return nil
}

// Call wraps body in an envelope carrying the current credentials, posts it,
// and classifies the response.
//
// HTTP failures are returned as *TransportError before classification runs.
// Protocol failures are returned as *xog.ProtocolError or *xog.FailureError.
func (c *Client) Call(ctx context.Context, body *etree.Element) (*xog.Response, error) {
	token := c.SessionID()

	var cred xog.Credential
	if token != "" {
		cred = xog.SessionToken(token)
	}

	data, err := xog.Encode(xog.Wrap(body, cred))
	if err != nil {
		return nil, err
	}

	startTime := time.Now()
	defer func() {
		xogCallDuration.WithLabelValues(c.config.Name).Observe(time.Since(startTime).Seconds())
	}()

	req := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", xog.ContentType).
		SetBody(data)
	if token != "" {
		req.SetHeader(HeaderAuthToken, token).
			SetCookie(&http.Cookie{Name: CookieSessionID, Value: token})
	}

	c.logger.Debug().
		Str("request", body.Tag).
		Int("bytes", len(data)).
		Msg("Executing XOG call")

	resp, err := req.Post(c.config.XOGPath)
	if err != nil {
		return nil, c.fail(&TransportError{
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		})
	}

	if resp.IsError() {
		return nil, c.fail(&TransportError{
			StatusCode: resp.StatusCode(),
			ErrorClass: classifyStatus(resp.StatusCode()),
			Message:    resp.Status(),
		})
	}

	result, err := xog.ClassifyBytes(resp.Body())
	if err != nil {
		return nil, c.fail(err)
	}

	xogCallsTotal.WithLabelValues(c.config.Name, "ok").Inc()
	return result, nil
}

// fail records metrics and logs for a failed call and returns err unchanged.
func (c *Client) fail(err error) error {
	class := classOf(err)
	xogErrorsTotal.WithLabelValues(string(class)).Inc()
	xogCallsTotal.WithLabelValues(c.config.Name, string(class)).Inc()

	c.logger.Warn().
		Err(err).
		Str("error_class", string(class)).
		Msg("XOG call failed")

	return err
}

// REST performs a REST API call authenticated with the XOG session and
// returns the raw response body, e.g. client.REST(ctx, http.MethodGet, "projects").
func (c *Client) REST(ctx context.Context, method, resource string) ([]byte, error) {
	req := c.http.R().SetContext(ctx)
	if token := c.SessionID(); token != "" {
		req.SetHeader(HeaderAuthToken, token).
			SetCookie(&http.Cookie{Name: CookieSessionID, Value: token})
	}

	url := "/" + strings.Trim(c.config.APIPath, "/") + "/" + strings.TrimLeft(resource, "/")
	resp, err := req.Execute(method, url)
	if err != nil {
		return nil, c.fail(&TransportError{
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		})
	}
	if resp.IsError() {
		return nil, c.fail(&TransportError{
			StatusCode: resp.StatusCode(),
			ErrorClass: classifyStatus(resp.StatusCode()),
			Message:    resp.Status(),
		})
	}

	return resp.Body(), nil
}

// Close logs out and then releases the transport. The transport is released
// even when logout fails; the logout error is returned.
func (c *Client) Close(ctx context.Context) error {
	defer c.http.GetClient().CloseIdleConnections()
	return c.Logout(ctx)
}

// CloseTimeout bounds the logout WithSession performs on the way out.
const CloseTimeout = 30 * time.Second

// WithSession logs in, runs fn and closes the client. A failure of fn and a
// failure of the closing logout are both reported. The logout runs even if
// ctx has been cancelled.
func WithSession(ctx context.Context, c *Client, username, password string, fn func(*Client) error) (err error) {
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), CloseTimeout)
		defer cancel()
		err = errors.Join(err, c.Close(closeCtx))
	}()

	if err := c.Login(ctx, username, password); err != nil {
		return err
	}
	return fn(c)
}

// restyLogger routes resty's internal messages to zerolog.
type restyLogger struct {
	logger zerolog.Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error().Msgf(strings.TrimSpace(format), v...)
}

func (l restyLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn().Msgf(strings.TrimSpace(format), v...)
}

func (l restyLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug().Msgf(strings.TrimSpace(format), v...)
}
