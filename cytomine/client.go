// Copyright 2019 Cytomine.
// This software is released under an MIT/X11 open source license.

package cytomine

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

// Client is a connected Cytomine client.  It owns the HTTP session
// and the signing credentials, and performs every entity, collection,
// upload, and dump operation.
type Client struct {
	session *session
	logger  *logrus.Logger
	clock   clock.Clock

	uploadHost  string
	currentUser *CurrentUser
}

type clientConfig struct {
	logger      *logrus.Logger
	level       logrus.Level
	clock       clock.Clock
	useCache    bool
	uploadHost  string
	waitTimeout time.Duration
	retryDelay  time.Duration
}

// Option configures Connect.
type Option func(*clientConfig)

// WithLogger replaces the default logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(c *clientConfig) { c.logger = logger }
}

// WithLogLevel sets the verbosity of the default logger.
func WithLogLevel(level logrus.Level) Option {
	return func(c *clientConfig) { c.level = level }
}

// WithCache enables the in-memory HTTP response cache for idempotent
// GETs.
func WithCache() Option {
	return func(c *clientConfig) { c.useCache = true }
}

// WithClock substitutes the time source.  Only test code should need
// this.
func WithClock(clk clock.Clock) Option {
	return func(c *clientConfig) { c.clock = clk }
}

// WithUploadHost points image uploads at a dedicated upload server.
// It defaults to the API host.
func WithUploadHost(host string) Option {
	return func(c *clientConfig) { c.uploadHost = strings.TrimSuffix(host, "/") }
}

// WithReadiness tunes how long Connect polls the server before
// giving up, and the delay between polls.
func WithReadiness(timeout, retryDelay time.Duration) Option {
	return func(c *clientConfig) {
		c.waitTimeout = timeout
		c.retryDelay = retryDelay
	}
}

// parseHost splits a host argument into bare host and protocol.  A
// missing scheme means http; a trailing slash is dropped.
func parseHost(host string) (string, string, error) {
	protocol := "http"
	switch {
	case strings.HasPrefix(host, "http://"):
		host = strings.TrimPrefix(host, "http://")
	case strings.HasPrefix(host, "https://"):
		host = strings.TrimPrefix(host, "https://")
		protocol = "https"
	}
	host = strings.TrimSuffix(host, "/")
	if host == "" {
		return "", "", fmt.Errorf("empty Cytomine host")
	}
	return host, protocol, nil
}

// Connect builds a client for the server at host, waits for the
// server to accept connections, and fetches the current user.  The
// connected client becomes the process-wide instance returned by
// CurrentClient.
func Connect(host, publicKey, privateKey string, opts ...Option) (*Client, error) {
	cfg := clientConfig{
		level:       logrus.InfoLevel,
		clock:       clock.New(),
		waitTimeout: 2 * time.Minute,
		retryDelay:  time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logrus.New()
		cfg.logger.SetLevel(cfg.level)
	}

	bareHost, protocol, err := parseHost(host)
	if err != nil {
		return nil, err
	}

	c := &Client{
		session:    newSession(bareHost, protocol, publicKey, privateKey, cfg.logger, cfg.clock, cfg.useCache),
		logger:     cfg.logger,
		clock:      cfg.clock,
		uploadHost: cfg.uploadHost,
	}
	if c.uploadHost == "" {
		c.uploadHost = fmt.Sprintf("%s://%s", protocol, bareHost)
	}

	if !c.session.waitToAcceptConnection(cfg.waitTimeout, cfg.retryDelay) {
		return nil, fmt.Errorf("cytomine server %s://%s did not accept connections within %v",
			protocol, bareHost, cfg.waitTimeout)
	}
	if _, err := c.FetchCurrentUser(); err != nil {
		return nil, err
	}

	setCurrentClient(c)
	return c, nil
}

var (
	instanceMu sync.RWMutex
	instance   *Client
)

func setCurrentClient(c *Client) {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	instance = c
}

// CurrentClient returns the most recently connected client, or nil
// when Connect has not succeeded yet.  It exists for short scripts;
// anything larger should pass the *Client around explicitly.
func CurrentClient() *Client {
	instanceMu.RLock()
	defer instanceMu.RUnlock()
	return instance
}

// WithCredentials derives a client bound to another key pair on the
// same server, sharing the logger and clock.  The receiver is left
// untouched, and the process-wide instance is not changed; job
// drivers use this to route job-owned requests through the job
// identity.
func (c *Client) WithCredentials(publicKey, privateKey string) (*Client, error) {
	derived := &Client{
		session: newSession(c.session.host, c.session.protocol, publicKey, privateKey,
			c.logger, c.clock, false),
		logger:     c.logger,
		clock:      c.clock,
		uploadHost: c.uploadHost,
	}
	if _, err := derived.FetchCurrentUser(); err != nil {
		return nil, err
	}
	return derived, nil
}

// Host returns the bare server host.
func (c *Client) Host() string { return c.session.host }

// PublicKey returns the public key the session signs with.
func (c *Client) PublicKey() string { return c.session.publicKey }

// Logger returns the client's logger.
func (c *Client) Logger() *logrus.Logger { return c.logger }

// IsAlive reports whether the server answers its ping endpoint.
func (c *Client) IsAlive() bool { return c.session.isAlive() }

// FetchCurrentUser retrieves the identity owning the session
// credentials.
func (c *Client) FetchCurrentUser() (*CurrentUser, error) {
	user := &CurrentUser{}
	if err := c.Fetch(user); err != nil {
		return nil, err
	}
	c.currentUser = user
	return user, nil
}

// CurrentUser returns the user fetched at connection (or after the
// last admin-session toggle).
func (c *Client) CurrentUser() *CurrentUser { return c.currentUser }

// OpenAdminSession elevates the session to admin privileges
// server-side.  On success the current user is refetched so its
// byNow flags reflect the new role.
func (c *Client) OpenAdminSession() bool {
	if err := c.session.get("session/admin/open.json", nil, nil); err != nil {
		c.logger.WithField("err", err).Error("Could not open admin session")
		return false
	}
	_, err := c.FetchCurrentUser()
	return err == nil
}

// CloseAdminSession drops admin privileges.
func (c *Client) CloseAdminSession() bool {
	if err := c.session.get("session/admin/close.json", nil, nil); err != nil {
		c.logger.WithField("err", err).Error("Could not close admin session")
		return false
	}
	_, err := c.FetchCurrentUser()
	return err == nil
}
