// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package namesrv

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/absmach/rocketmq/protocol"
)

// RouteCache keeps the last known route per topic and refreshes entries
// through the name servers. Concurrent refreshes for the same topic are
// collapsed into a single query.
type RouteCache struct {
	ns *NameServers

	mu      sync.RWMutex
	routes  map[string]*protocol.TopicRouteData
	brokers map[string]string

	flight singleflight.Group
}

// NewRouteCache returns an empty cache backed by the given name servers.
func NewRouteCache(ns *NameServers) *RouteCache {
	return &RouteCache{
		ns:      ns,
		routes:  make(map[string]*protocol.TopicRouteData),
		brokers: make(map[string]string),
	}
}

// Resolve returns the route for a topic, fetching it when absent or when
// force is set. When a refresh fails but an earlier route is cached, the
// cached route is returned with stale set so callers can decide whether
// to trust it.
func (c *RouteCache) Resolve(topic string, force bool) (route *protocol.TopicRouteData, stale bool, err error) {
	if !force {
		c.mu.RLock()
		route = c.routes[topic]
		c.mu.RUnlock()
		if route != nil {
			return route, false, nil
		}
	}

	fresh, fetchErr := c.refresh(topic)
	if fetchErr == nil {
		return fresh, false, nil
	}

	c.mu.RLock()
	route = c.routes[topic]
	c.mu.RUnlock()
	if route != nil {
		return route, true, nil
	}
	return nil, false, fetchErr
}

func (c *RouteCache) refresh(topic string) (*protocol.TopicRouteData, error) {
	v, err, _ := c.flight.Do(topic, func() (any, error) {
		route, err := c.ns.FetchTopicRoute(topic)
		if err != nil {
			return nil, err
		}
		c.store(topic, route)
		return route, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*protocol.TopicRouteData), nil
}

func (c *RouteCache) store(topic string, route *protocol.TopicRouteData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routes[topic] = route
	for _, bd := range route.BrokerDatas {
		if addr := bd.SelectAddr(); addr != "" {
			c.brokers[bd.BrokerName] = addr
		}
	}
}

// FindBrokerAddr returns the last known master (or replica) address of a
// broker, from any cached route.
func (c *RouteCache) FindBrokerAddr(brokerName string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	addr, ok := c.brokers[brokerName]
	return addr, ok
}

// BrokerAddrs returns the last known address of every broker seen in any
// cached route.
func (c *RouteCache) BrokerAddrs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	addrs := make([]string, 0, len(c.brokers))
	for _, addr := range c.brokers {
		addrs = append(addrs, addr)
	}
	return addrs
}

// Topics lists the topics with a cached route.
func (c *RouteCache) Topics() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	topics := make([]string, 0, len(c.routes))
	for t := range c.routes {
		topics = append(topics, t)
	}
	return topics
}

// Drop removes a topic route from the cache.
func (c *RouteCache) Drop(topic string) {
	c.mu.Lock()
	delete(c.routes, topic)
	c.mu.Unlock()
}
