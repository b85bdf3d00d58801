// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package namesrv

import (
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absmach/rocketmq/protocol"
	"github.com/absmach/rocketmq/remoting"
)

// fakeNameServer accepts frame-protocol connections and answers every
// request through handler.
type fakeNameServer struct {
	t        *testing.T
	ln       net.Listener
	handler  func(req *protocol.RemotingCommand) *protocol.RemotingCommand
	wg       sync.WaitGroup
	mu       sync.Mutex
	requests []*protocol.RemotingCommand
}

func startFakeNameServer(t *testing.T, handler func(req *protocol.RemotingCommand) *protocol.RemotingCommand) *fakeNameServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &fakeNameServer{t: t, ln: ln, handler: handler}
	s.wg.Add(1)
	go s.acceptLoop()
	t.Cleanup(func() {
		ln.Close()
		s.wg.Wait()
	})
	return s
}

func (s *fakeNameServer) addr() string { return s.ln.Addr().String() }

func (s *fakeNameServer) seen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *fakeNameServer) request(i int) *protocol.RemotingCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[i]
}

func (s *fakeNameServer) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serve(conn)
		}()
	}
}

func (s *fakeNameServer) serve(conn net.Conn) {
	defer conn.Close()
	dec := &protocol.Decoder{}
	buf := make([]byte, 4096)
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
			s.mu.Lock()
			s.requests = append(s.requests, req)
			s.mu.Unlock()

			resp := s.handler(req)
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

func routeHandler(t *testing.T, brokerAddr string) func(req *protocol.RemotingCommand) *protocol.RemotingCommand {
	return func(req *protocol.RemotingCommand) *protocol.RemotingCommand {
		require.Equal(t, protocol.GetRouteInfoByTopic, req.Code)
		route := protocol.TopicRouteData{
			QueueDatas: []*protocol.QueueData{{
				BrokerName:     "broker-a",
				ReadQueueNums:  4,
				WriteQueueNums: 4,
				Perm:           protocol.PermRead | protocol.PermWrite,
			}},
			BrokerDatas: []*protocol.BrokerData{{
				Cluster:     "DefaultCluster",
				BrokerName:  "broker-a",
				BrokerAddrs: map[int64]string{protocol.MasterBrokerID: brokerAddr},
			}},
		}
		body, err := json.Marshal(route)
		require.NoError(t, err)
		return protocol.NewCommand(protocol.ResponseSuccess, nil, body)
	}
}

func newTestClient(t *testing.T) *remoting.Client {
	t.Helper()
	c := remoting.NewClient(remoting.Config{
		ConnectTimeout: time.Second,
		WriteTimeout:   time.Second,
	})
	t.Cleanup(c.Shutdown)
	return c
}

func TestFetchTopicRoute(t *testing.T) {
	srv := startFakeNameServer(t, routeHandler(t, "10.0.0.1:10911"))
	client := newTestClient(t)

	ns, err := New(NewStaticResolver([]string{srv.addr()}), client, time.Second)
	require.NoError(t, err)

	route, err := ns.FetchTopicRoute("T1")
	require.NoError(t, err)
	require.Len(t, route.QueueDatas, 1)
	assert.Equal(t, "broker-a", route.QueueDatas[0].BrokerName)
	addr, _ := route.BrokerAddr("broker-a")
	assert.Equal(t, "10.0.0.1:10911", addr)

	assert.Equal(t, "T1", srv.request(0).ExtField("topic"))
}

func TestFetchTopicRouteFailover(t *testing.T) {
	// ns1 is a closed port; ns2 answers.
	dead, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	deadAddr := dead.Addr().String()
	dead.Close()

	srv := startFakeNameServer(t, routeHandler(t, "10.0.0.1:10911"))
	client := newTestClient(t)

	ns, err := New(NewStaticResolver([]string{deadAddr, srv.addr()}), client, time.Second)
	require.NoError(t, err)

	route, err := ns.FetchTopicRoute("T1")
	require.NoError(t, err)
	assert.Equal(t, "broker-a", route.BrokerDatas[0].BrokerName)

	// The answering server is sticky: the next fetch goes straight to it.
	_, err = ns.FetchTopicRoute("T1")
	require.NoError(t, err)
	assert.Equal(t, 2, srv.seen())
}

func TestFetchTopicRouteNotFound(t *testing.T) {
	srv := startFakeNameServer(t, func(req *protocol.RemotingCommand) *protocol.RemotingCommand {
		resp := protocol.NewCommand(protocol.ResponseTopicNotExist, nil, nil)
		resp.Remark = "no route info of this topic"
		return resp
	})
	client := newTestClient(t)

	ns, err := New(NewStaticResolver([]string{srv.addr()}), client, time.Second)
	require.NoError(t, err)

	_, err = ns.FetchTopicRoute("missing")
	assert.ErrorIs(t, err, ErrTopicNotFound)
}

func TestFetchTopicRouteNotFoundShortCircuits(t *testing.T) {
	first := startFakeNameServer(t, func(req *protocol.RemotingCommand) *protocol.RemotingCommand {
		return protocol.NewCommand(protocol.ResponseTopicNotExist, nil, nil)
	})
	second := startFakeNameServer(t, routeHandler(t, "10.0.0.1:10911"))
	client := newTestClient(t)

	ns, err := New(NewStaticResolver([]string{first.addr(), second.addr()}), client, time.Second)
	require.NoError(t, err)

	_, err = ns.FetchTopicRoute("missing")
	assert.ErrorIs(t, err, ErrTopicNotFound)
	assert.Equal(t, 0, second.seen(), "a definitive not-found must not fail over")
}

func TestFetchTopicRouteAllDown(t *testing.T) {
	dead, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	deadAddr := dead.Addr().String()
	dead.Close()

	client := newTestClient(t)
	ns, err := New(NewStaticResolver([]string{deadAddr}), client, time.Second)
	require.NoError(t, err)

	_, err = ns.FetchTopicRoute("T1")
	assert.ErrorIs(t, err, ErrNoAvailableNameServer)
}

func TestFetchTopicRouteNoServers(t *testing.T) {
	client := newTestClient(t)
	ns, err := New(NewStaticResolver(nil), client, time.Second)
	require.NoError(t, err)

	_, err = ns.FetchTopicRoute("T1")
	assert.ErrorIs(t, err, ErrNoNameServers)
}

func TestUpdateKeepsOldListOnFailure(t *testing.T) {
	client := newTestClient(t)
	ns, err := New(NewStaticResolver([]string{"ns1:9876"}), client, time.Second)
	require.NoError(t, err)

	ns.resolver = NewStaticResolver(nil)
	ns.Update()
	assert.Equal(t, []string{"ns1:9876"}, ns.Addrs())

	ns.resolver = NewStaticResolver([]string{"ns2:9876", "ns3:9876"})
	ns.Update()
	assert.Equal(t, []string{"ns2:9876", "ns3:9876"}, ns.Addrs())
}
