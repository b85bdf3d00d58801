// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package remoting

import (
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absmach/rocketmq/protocol"
)

// fakeServer is a minimal remoting endpoint listening on loopback.
type fakeServer struct {
	ln      net.Listener
	accepts atomic.Int32
	handler func(*protocol.RemotingCommand) *protocol.RemotingCommand
}

func startFakeServer(t *testing.T, handler func(*protocol.RemotingCommand) *protocol.RemotingCommand) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &fakeServer{ln: ln, handler: handler}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			s.accepts.Add(1)
			go servePeer(conn, s.handler)
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *fakeServer) addr() string { return s.ln.Addr().String() }

func TestClientReusesConnection(t *testing.T) {
	srv := startFakeServer(t, respondSuccess)
	client := NewClient(Config{})
	defer client.Shutdown()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Invoke(srv.addr(), protocol.NewCommand(protocol.Heartbeat, nil, nil), time.Second)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), srv.accepts.Load(), "one socket per address")
}

func TestClientRemoveForcesRedial(t *testing.T) {
	srv := startFakeServer(t, respondSuccess)
	client := NewClient(Config{})
	defer client.Shutdown()

	_, err := client.Invoke(srv.addr(), protocol.NewCommand(protocol.Heartbeat, nil, nil), time.Second)
	require.NoError(t, err)

	client.Remove(srv.addr())

	_, err = client.Invoke(srv.addr(), protocol.NewCommand(protocol.Heartbeat, nil, nil), time.Second)
	require.NoError(t, err)
	assert.Equal(t, int32(2), srv.accepts.Load())
}

func TestClientEvictsClosedConnection(t *testing.T) {
	srv := startFakeServer(t, respondSuccess)
	client := NewClient(Config{})
	defer client.Shutdown()

	conn, err := client.getOrConnect(srv.addr())
	require.NoError(t, err)
	conn.Close()

	require.Eventually(t, func() bool {
		client.mu.RLock()
		defer client.mu.RUnlock()
		_, ok := client.conns[srv.addr()]
		return !ok
	}, time.Second, 5*time.Millisecond, "closed connection evicted from pool")

	_, err = client.Invoke(srv.addr(), protocol.NewCommand(protocol.Heartbeat, nil, nil), time.Second)
	require.NoError(t, err)
}

func TestClientDialFailure(t *testing.T) {
	// A listener closed before any dial leaves a port nothing accepts on.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	dead := ln.Addr().String()
	ln.Close()

	client := NewClient(Config{ConnectTimeout: 200 * time.Millisecond})
	defer client.Shutdown()

	_, err = client.Invoke(dead, protocol.NewCommand(protocol.Heartbeat, nil, nil), time.Second)
	assert.Error(t, err)
}

func TestClientShutdown(t *testing.T) {
	srv := startFakeServer(t, respondSuccess)
	client := NewClient(Config{})

	_, err := client.Invoke(srv.addr(), protocol.NewCommand(protocol.Heartbeat, nil, nil), time.Second)
	require.NoError(t, err)

	client.Shutdown()

	_, err = client.Invoke(srv.addr(), protocol.NewCommand(protocol.Heartbeat, nil, nil), time.Second)
	assert.ErrorIs(t, err, ErrShutdown)
}

func TestClientSignsWhenConfigured(t *testing.T) {
	seen := make(chan map[string]string, 1)
	srv := startFakeServer(t, func(req *protocol.RemotingCommand) *protocol.RemotingCommand {
		seen <- req.ExtFields
		return respondSuccess(req)
	})

	client := NewClient(Config{Credentials: &Credentials{AccessKey: "AK", SecretKey: "SK"}})
	defer client.Shutdown()

	cmd := protocol.NewCommand(protocol.SendMessage, map[string]string{"topic": "T1"}, []byte("x"))
	_, err := client.Invoke(srv.addr(), cmd, time.Second)
	require.NoError(t, err)

	fields := <-seen
	assert.Equal(t, "AK", fields[accessKeyField])
	assert.NotEmpty(t, fields[signatureField])
	assert.NotContains(t, cmd.ExtFields, signatureField, "caller's command not mutated")
}
