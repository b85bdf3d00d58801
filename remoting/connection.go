// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package remoting provides the transport layer of the client: connections
// multiplexing many requests over one socket with opaque-id correlation, a
// connection pool keyed by remote address, and ACL request signing.
package remoting

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/absmach/rocketmq/protocol"
)

// connConfig carries the per-connection knobs the pool hands down.
type connConfig struct {
	tlsConfig      *tls.Config
	connectTimeout time.Duration
	writeTimeout   time.Duration
	codec          protocol.HeaderCodec
}

// Conn owns exactly one socket to one remote address. One goroutine owns
// the read half and dispatches decoded responses to waiters; writers share
// the write half under a mutex. A Conn is unusable after Close and must be
// replaced through the pool.
type Conn struct {
	addr    string
	conn    net.Conn
	codec   protocol.HeaderCodec
	pending *pendingStore

	writeMu      sync.Mutex
	writeTimeout time.Duration

	closeOnce sync.Once
	closedCh  chan struct{}
	doneCh    chan struct{}
	closeErr  error

	lastUsed atomic.Int64

	onClose func(*Conn)
}

func dialConn(addr string, cfg connConfig, onClose func(*Conn)) (*Conn, error) {
	dialer := &net.Dialer{Timeout: cfg.connectTimeout}

	var nc net.Conn
	var err error
	if cfg.tlsConfig != nil {
		nc, err = tls.DialWithDialer(dialer, "tcp", addr, cfg.tlsConfig)
	} else {
		nc, err = dialer.Dial("tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return newConn(addr, nc, cfg, onClose), nil
}

func newConn(addr string, nc net.Conn, cfg connConfig, onClose func(*Conn)) *Conn {
	c := &Conn{
		addr:         addr,
		conn:         nc,
		codec:        cfg.codec,
		pending:      newPendingStore(),
		writeTimeout: cfg.writeTimeout,
		closedCh:     make(chan struct{}),
		doneCh:       make(chan struct{}),
		onClose:      onClose,
	}
	c.touch()
	go c.readLoop()
	return c
}

// Addr returns the remote address this connection serves.
func (c *Conn) Addr() string { return c.addr }

// SendSync writes the command and suspends the caller until the correlated
// response arrives, the timeout elapses, or the connection closes.
func (c *Conn) SendSync(cmd *protocol.RemotingCommand, timeout time.Duration) (*protocol.RemotingCommand, error) {
	if c.Closed() {
		return nil, ErrConnClosed
	}

	op, err := c.pending.add()
	if err != nil {
		return nil, err
	}
	cmd.Opaque = op.opaque

	if err := c.writeFrame(cmd); err != nil {
		c.pending.remove(op.opaque)
		c.close(err)
		return nil, fmt.Errorf("%w: %v", ErrConnClosed, err)
	}

	resp, err := op.wait(timeout)
	if err == ErrTimeout {
		// Detach so a late response is discarded, never delivered to a
		// completed caller.
		c.pending.remove(op.opaque)
	}
	return resp, err
}

// SendOneway writes the command without registering a waiter. It returns
// once the write completed locally; delivery is unconfirmed by design.
func (c *Conn) SendOneway(cmd *protocol.RemotingCommand) error {
	if c.Closed() {
		return ErrConnClosed
	}

	cmd.Opaque = c.pending.reserve()
	cmd.MarkOneway()

	if err := c.writeFrame(cmd); err != nil {
		c.close(err)
		return fmt.Errorf("%w: %v", ErrConnClosed, err)
	}
	return nil
}

func (c *Conn) writeFrame(cmd *protocol.RemotingCommand) error {
	frame, err := protocol.EncodeFrame(cmd, c.codec)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	if _, err := c.conn.Write(frame); err != nil {
		return err
	}
	c.touch()
	return nil
}

// readLoop owns the socket's read half: it feeds arriving bytes into the
// frame decoder and wakes the waiter matching each response's opaque id.
func (c *Conn) readLoop() {
	defer close(c.doneCh)

	dec := protocol.NewDecoder()
	buf := make([]byte, 16*1024)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.touch()
			if _, werr := dec.Write(buf[:n]); werr != nil {
				c.close(werr)
				return
			}
			for {
				cmd, derr := dec.Decode()
				if derr != nil {
					// Malformed frame: the stream is unrecoverable.
					slog.Error("closing connection on protocol error",
						"addr", c.addr, "error", derr)
					c.close(derr)
					return
				}
				if cmd == nil {
					break
				}
				c.dispatch(cmd)
			}
		}
		if err != nil {
			c.close(err)
			return
		}
	}
}

func (c *Conn) dispatch(cmd *protocol.RemotingCommand) {
	if cmd.IsResponse() {
		if !c.pending.complete(cmd.Opaque, cmd) {
			slog.Debug("dropping uncorrelated response",
				"addr", c.addr, "opaque", cmd.Opaque, "code", cmd.Code)
		}
		return
	}
	// Broker-initiated requests (e.g. consumer rebalance notifications)
	// have no handler in a producer-only client.
	slog.Debug("dropping unsolicited request", "addr", c.addr, "code", cmd.Code)
}

// Close tears the connection down, failing every outstanding waiter with
// ErrConnClosed.
func (c *Conn) Close() error {
	c.close(nil)
	return nil
}

func (c *Conn) close(cause error) {
	c.closeOnce.Do(func() {
		c.closeErr = cause
		close(c.closedCh)
		c.conn.Close()
		c.pending.clear(ErrConnClosed)
		if c.onClose != nil {
			c.onClose(c)
		}
	})
}

// Closed reports whether the connection has been torn down.
func (c *Conn) Closed() bool {
	select {
	case <-c.closedCh:
		return true
	default:
		return false
	}
}

func (c *Conn) touch() {
	c.lastUsed.Store(time.Now().UnixNano())
}

func (c *Conn) idleSince() time.Time {
	return time.Unix(0, c.lastUsed.Load())
}
