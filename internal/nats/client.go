// Package nats dials the NATS server the partition results are published
// to and hands out its JetStream context.
package nats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Config describes the connection. Credentials are tried in the order
// CredsFile, Token, Username.
type Config struct {
	// URL may list several servers separated by commas
	URL  string
	Name string

	// MaxReconnects of -1 reconnects forever
	MaxReconnects int
	ReconnectWait time.Duration
	DialTimeout   time.Duration
	// DrainTimeout bounds Close
	DrainTimeout time.Duration

	CredsFile string
	Token     string
	Username  string
	Password  string
}

// DefaultConfig returns the reconnect and timeout settings of the CLI
func DefaultConfig(url string) Config {
	return Config{
		URL:           url,
		Name:          "datacleaner",
		MaxReconnects: 10,
		ReconnectWait: 2 * time.Second,
		DialTimeout:   5 * time.Second,
		DrainTimeout:  30 * time.Second,
	}
}

func (c Config) auth() nats.Option {
	switch {
	case c.CredsFile != "":
		return nats.UserCredentials(c.CredsFile)
	case c.Token != "":
		return nats.Token(c.Token)
	case c.Username != "":
		return nats.UserInfo(c.Username, c.Password)
	}
	return nil
}

func (c Config) natsOptions(logger *zap.Logger) []nats.Option {
	opts := []nats.Option{
		nats.Name(c.Name),
		nats.MaxReconnects(c.MaxReconnects),
		nats.ReconnectWait(c.ReconnectWait),
		nats.Timeout(c.DialTimeout),
		nats.DrainTimeout(c.DrainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS connection lost", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection restored", zap.String("server", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			fields := []zap.Field{zap.Error(err)}
			if sub != nil {
				fields = append(fields, zap.String("subject", sub.Subject))
			}
			logger.Error("NATS async error", fields...)
		}),
	}
	if auth := c.auth(); auth != nil {
		opts = append(opts, auth)
	}
	return opts
}

// Client is a connection with its JetStream context
type Client struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	logger *zap.Logger
}

// Dial connects to cfg.URL. When ctx is done before the server answers,
// Dial returns and the late connection is closed.
func Dial(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("NATS URL is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	type dialed struct {
		conn *nats.Conn
		err  error
	}
	done := make(chan dialed, 1)
	go func() {
		conn, err := nats.Connect(cfg.URL, cfg.natsOptions(logger)...)
		done <- dialed{conn, err}
	}()

	var conn *nats.Conn
	select {
	case <-ctx.Done():
		go func() {
			if d := <-done; d.conn != nil {
				d.conn.Close()
			}
		}()
		return nil, fmt.Errorf("dial %s: %w", cfg.URL, ctx.Err())
	case d := <-done:
		if d.err != nil {
			return nil, fmt.Errorf("dial %s: %w", cfg.URL, d.err)
		}
		conn = d.conn
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("JetStream unavailable on %s: %w", conn.ConnectedUrl(), err)
	}
	logger.Info("Connected to NATS",
		zap.String("server", conn.ConnectedUrl()),
		zap.String("client", cfg.Name))
	return &Client{conn: conn, js: js, logger: logger}, nil
}

// JetStream returns the JetStream context of the connection
func (c *Client) JetStream() nats.JetStreamContext {
	return c.js
}

// Connected reports whether the connection is currently up
func (c *Client) Connected() bool {
	return c != nil && c.conn.IsConnected()
}

// Close drains the connection so that pending publishes are flushed,
// falling back to a hard close when draining fails
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	stats := c.conn.Stats()
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	c.logger.Debug("NATS connection drained",
		zap.Uint64("messages_out", stats.OutMsgs),
		zap.Uint64("reconnects", stats.Reconnects))
	return nil
}
