// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package remoting

import (
	"crypto/tls"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/absmach/rocketmq/protocol"
)

// Default client timeouts.
const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultWriteTimeout   = 5 * time.Second
	DefaultIdleTimeout    = 5 * time.Minute
)

// Config configures the remoting client.
type Config struct {
	// Credentials enable ACL signing of every outgoing request when set.
	Credentials *Credentials

	// TLS enables TLS on new connections when set.
	TLS *tls.Config

	ConnectTimeout time.Duration
	WriteTimeout   time.Duration

	// IdleTimeout is the age after which an unused connection is
	// proactively closed by the janitor.
	IdleTimeout time.Duration

	// HeaderCodec selects the header serialization for outgoing frames.
	// Defaults to the JSON codec.
	HeaderCodec protocol.HeaderCodec
}

func (cfg *Config) withDefaults() {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.HeaderCodec == nil {
		cfg.HeaderCodec = protocol.JSONHeaderCodec{}
	}
}

// Client is the connection pool: one live connection per remote address,
// established lazily, reused across requests, evicted on failure or idle
// age. All methods are safe for concurrent use.
type Client struct {
	cfg Config

	mu    sync.RWMutex
	conns map[string]*Conn

	// dials collapses concurrent connection attempts to one address into
	// a single socket.
	dials singleflight.Group

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewClient creates a connection pool with the given configuration.
func NewClient(cfg Config) *Client {
	cfg.withDefaults()
	c := &Client{
		cfg:    cfg,
		conns:  make(map[string]*Conn),
		stopCh: make(chan struct{}),
	}
	go c.reapIdle()
	return c
}

// Invoke signs the command, sends it to addr and waits for the correlated
// response.
func (c *Client) Invoke(addr string, cmd *protocol.RemotingCommand, timeout time.Duration) (*protocol.RemotingCommand, error) {
	conn, err := c.getOrConnect(addr)
	if err != nil {
		return nil, err
	}
	return conn.SendSync(sign(cmd, c.cfg.Credentials), timeout)
}

// InvokeOneway signs the command and sends it without awaiting any
// acknowledgment.
func (c *Client) InvokeOneway(addr string, cmd *protocol.RemotingCommand) error {
	conn, err := c.getOrConnect(addr)
	if err != nil {
		return err
	}
	return conn.SendOneway(sign(cmd, c.cfg.Credentials))
}

// getOrConnect returns the live connection for addr, dialing one when none
// exists. Concurrent callers for one address share a single dial.
func (c *Client) getOrConnect(addr string) (*Conn, error) {
	if c.stopped() {
		return nil, ErrShutdown
	}

	c.mu.RLock()
	conn, ok := c.conns[addr]
	c.mu.RUnlock()
	if ok && !conn.Closed() {
		return conn, nil
	}

	v, err, _ := c.dials.Do(addr, func() (any, error) {
		c.mu.RLock()
		existing, ok := c.conns[addr]
		c.mu.RUnlock()
		if ok && !existing.Closed() {
			return existing, nil
		}

		fresh, err := dialConn(addr, connConfig{
			tlsConfig:      c.cfg.TLS,
			connectTimeout: c.cfg.ConnectTimeout,
			writeTimeout:   c.cfg.WriteTimeout,
			codec:          c.cfg.HeaderCodec,
		}, c.evict)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.conns[addr] = fresh
		c.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Conn), nil
}

// evict drops a closed connection from the pool so the next caller dials a
// fresh one.
func (c *Client) evict(conn *Conn) {
	c.mu.Lock()
	if current, ok := c.conns[conn.addr]; ok && current == conn {
		delete(c.conns, conn.addr)
	}
	c.mu.Unlock()
}

// Remove closes and evicts the connection for addr, after an observed
// failure.
func (c *Client) Remove(addr string) {
	c.mu.Lock()
	conn, ok := c.conns[addr]
	if ok {
		delete(c.conns, addr)
	}
	c.mu.Unlock()

	if ok {
		conn.Close()
	}
}

// Shutdown closes every pooled connection and stops the janitor. The
// client is unusable afterwards.
func (c *Client) Shutdown() {
	c.stopOnce.Do(func() { close(c.stopCh) })

	c.mu.Lock()
	conns := c.conns
	c.conns = make(map[string]*Conn)
	c.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}

func (c *Client) stopped() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

// reapIdle periodically closes connections that have been unused beyond
// the idle timeout.
func (c *Client) reapIdle() {
	interval := c.cfg.IdleTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-c.cfg.IdleTimeout)
			c.mu.RLock()
			var idle []*Conn
			for _, conn := range c.conns {
				if conn.idleSince().Before(cutoff) {
					idle = append(idle, conn)
				}
			}
			c.mu.RUnlock()

			for _, conn := range idle {
				slog.Debug("closing idle connection", "addr", conn.addr)
				conn.Close()
			}
		}
	}
}
