// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package producer

import (
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/absmach/rocketmq/protocol"
)

// fakeBroker speaks the frame protocol and dispatches requests to
// per-code handlers. It doubles as a fake name server when given a
// GetRouteInfoByTopic handler.
type fakeBroker struct {
	t  *testing.T
	ln net.Listener
	wg sync.WaitGroup

	mu       sync.Mutex
	handlers map[int16]func(req *protocol.RemotingCommand) *protocol.RemotingCommand
	requests []*protocol.RemotingCommand
}

func startFakeBroker(t *testing.T) *fakeBroker {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	b := &fakeBroker{
		t:        t,
		ln:       ln,
		handlers: make(map[int16]func(req *protocol.RemotingCommand) *protocol.RemotingCommand),
	}
	b.wg.Add(1)
	go b.acceptLoop()
	t.Cleanup(func() {
		ln.Close()
		b.wg.Wait()
	})
	return b
}

func (b *fakeBroker) addr() string { return b.ln.Addr().String() }

func (b *fakeBroker) handle(code int16, fn func(req *protocol.RemotingCommand) *protocol.RemotingCommand) {
	b.mu.Lock()
	b.handlers[code] = fn
	b.mu.Unlock()
}

func (b *fakeBroker) received(code int16) []*protocol.RemotingCommand {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*protocol.RemotingCommand
	for _, req := range b.requests {
		if req.Code == code {
			out = append(out, req)
		}
	}
	return out
}

func (b *fakeBroker) acceptLoop() {
	defer b.wg.Done()
	for {
		conn, err := b.ln.Accept()
		if err != nil {
			return
		}
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.serve(conn)
		}()
	}
}

func (b *fakeBroker) serve(conn net.Conn) {
	defer conn.Close()
	dec := &protocol.Decoder{}
	buf := make([]byte, 16*1024)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		if _, err := dec.Write(buf[:n]); err != nil {
			return
		}
		for {
			req, err := dec.Decode()
			if err != nil {
				return
			}
			if req == nil {
				break
			}
			b.mu.Lock()
			b.requests = append(b.requests, req)
			handler := b.handlers[req.Code]
			b.mu.Unlock()

			if handler == nil || req.IsOneway() {
				if handler != nil {
					handler(req)
				}
				continue
			}
			resp := handler(req)
			if resp == nil {
				continue
			}
			resp.Opaque = req.Opaque
			resp.MarkResponse()
			frame, err := protocol.EncodeFrame(resp, protocol.JSONHeaderCodec{})
			if err != nil {
				return
			}
			if _, err := conn.Write(frame); err != nil {
				return
			}
		}
	}
}

// serveRoute makes the broker answer route queries with a single-broker
// route whose master address points back at itself.
func (b *fakeBroker) serveRoute(brokerName string, writeQueues int32) {
	b.serveRouteTo(map[string]string{brokerName: b.addr()}, writeQueues)
}

// serveRouteTo answers route queries with one queue data and one broker
// data per named broker.
func (b *fakeBroker) serveRouteTo(brokers map[string]string, writeQueues int32) {
	b.handle(protocol.GetRouteInfoByTopic, func(req *protocol.RemotingCommand) *protocol.RemotingCommand {
		route := protocol.TopicRouteData{}
		for name, addr := range brokers {
			route.QueueDatas = append(route.QueueDatas, &protocol.QueueData{
				BrokerName:     name,
				ReadQueueNums:  writeQueues,
				WriteQueueNums: writeQueues,
				Perm:           protocol.PermRead | protocol.PermWrite,
			})
			route.BrokerDatas = append(route.BrokerDatas, &protocol.BrokerData{
				Cluster:     "DefaultCluster",
				BrokerName:  name,
				BrokerAddrs: map[int64]string{protocol.MasterBrokerID: addr},
			})
		}
		body, err := json.Marshal(route)
		require.NoError(b.t, err)
		return protocol.NewCommand(protocol.ResponseSuccess, nil, body)
	})
}

// ackSends makes the broker acknowledge every send with Success.
func (b *fakeBroker) ackSends() {
	ack := func(req *protocol.RemotingCommand) *protocol.RemotingCommand {
		resp := protocol.NewCommand(protocol.ResponseSuccess, nil, nil)
		resp.ExtFields = map[string]string{
			"msgId":       "0A0000010000",
			"queueId":     req.ExtField("queueId"),
			"queueOffset": "42",
		}
		return resp
	}
	b.handle(protocol.SendMessage, ack)
	b.handle(protocol.SendBatchMessage, ack)
}

func startTestProducer(t *testing.T, opts *Options) *Producer {
	t.Helper()
	p, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, p.Start())
	t.Cleanup(p.Shutdown)
	return p
}

func testOptions(nameServer string) *Options {
	return NewOptions().
		SetGroupName("PID_test").
		SetNameServers(nameServer).
		SetSendTimeout(2 * time.Second).
		SetHeartbeatInterval(0).
		SetRouteRefreshInterval(0)
}
