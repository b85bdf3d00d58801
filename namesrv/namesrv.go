// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package namesrv

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/absmach/rocketmq/protocol"
	"github.com/absmach/rocketmq/remoting"
)

// DefaultQueryTimeout bounds one route query against one name server.
const DefaultQueryTimeout = 3 * time.Second

// NameServers queries an ordered list of name servers for topic routes.
// Queries round-robin across the list starting from the last server that
// answered, advancing on failure; a full unsuccessful cycle yields
// ErrNoAvailableNameServer.
type NameServers struct {
	resolver Resolver
	client   *remoting.Client
	timeout  time.Duration

	mu    sync.Mutex
	addrs []string
	index int
}

// New resolves the initial address list and returns a name-server client
// sending queries through the given connection pool.
func New(resolver Resolver, client *remoting.Client, timeout time.Duration) (*NameServers, error) {
	addrs, err := resolver.Resolve()
	if err != nil {
		return nil, fmt.Errorf("resolve name servers (%s): %w", resolver.Description(), err)
	}
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &NameServers{
		resolver: resolver,
		client:   client,
		timeout:  timeout,
		addrs:    addrs,
	}, nil
}

// Addrs returns a snapshot of the current address list.
func (n *NameServers) Addrs() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.addrs...)
}

// Update re-resolves the address list, keeping the old list when
// resolution fails or comes back empty.
func (n *NameServers) Update() {
	addrs, err := n.resolver.Resolve()
	if err != nil || len(addrs) == 0 {
		slog.Debug("name server re-resolution yielded nothing",
			"resolver", n.resolver.Description(), "error", err)
		return
	}
	n.mu.Lock()
	n.addrs = addrs
	if n.index >= len(addrs) {
		n.index = 0
	}
	n.mu.Unlock()
}

// FetchTopicRoute asks the name servers for the route of one topic. The
// server that answers becomes the starting point for future queries.
// TopicNotExist is a definitive answer and short-circuits the failover.
func (n *NameServers) FetchTopicRoute(topic string) (*protocol.TopicRouteData, error) {
	n.mu.Lock()
	addrs := n.addrs
	start := n.index
	n.mu.Unlock()

	if len(addrs) == 0 {
		return nil, ErrNoNameServers
	}

	var lastErr error
	for i := 0; i < len(addrs); i++ {
		idx := (start + i) % len(addrs)
		addr := addrs[idx]

		route, err := n.queryOne(addr, topic)
		if err == nil {
			n.mu.Lock()
			n.index = idx
			n.mu.Unlock()
			return route, nil
		}
		if errors.Is(err, ErrTopicNotFound) {
			return nil, err
		}
		slog.Debug("name server query failed, trying next",
			"addr", addr, "topic", topic, "error", err)
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrNoAvailableNameServer, lastErr)
}

func (n *NameServers) queryOne(addr, topic string) (*protocol.TopicRouteData, error) {
	cmd := protocol.NewRequest(
		protocol.GetRouteInfoByTopic,
		protocol.GetRouteInfoRequestHeader{Topic: topic},
		nil,
	)
	resp, err := n.client.Invoke(addr, cmd, n.timeout)
	if err != nil {
		return nil, err
	}

	switch resp.Code {
	case protocol.ResponseSuccess:
		return protocol.ParseTopicRouteData(resp.Body)
	case protocol.ResponseTopicNotExist:
		return nil, fmt.Errorf("%w: %s", ErrTopicNotFound, topic)
	default:
		return nil, &protocol.ResponseError{Code: resp.Code, Remark: resp.Remark}
	}
}
