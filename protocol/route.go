// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
)

// Permission bits on a queue.
type Permission int32

const (
	PermInherit  Permission = 1 << 0
	PermWrite    Permission = 1 << 1
	PermRead     Permission = 1 << 2
	PermPriority Permission = 1 << 3
)

func (p Permission) Readable() bool  { return p&PermRead == PermRead }
func (p Permission) Writeable() bool { return p&PermWrite == PermWrite }
func (p Permission) Inherited() bool { return p&PermInherit == PermInherit }

func (p Permission) String() string {
	s := []byte("---")
	if p.Readable() {
		s[0] = 'R'
	}
	if p.Writeable() {
		s[1] = 'W'
	}
	if p.Inherited() {
		s[2] = 'X'
	}
	return string(s)
}

// MasterBrokerID is the broker id of the master replica.
const MasterBrokerID int64 = 0

// QueueData describes the queues one broker hosts for a topic.
type QueueData struct {
	BrokerName     string     `json:"brokerName"`
	ReadQueueNums  int32      `json:"readQueueNums"`
	WriteQueueNums int32      `json:"writeQueueNums"`
	Perm           Permission `json:"perm"`
	TopicSyncFlag  int32      `json:"topicSyncFlag"`
}

// BrokerData maps one broker name to the addresses of its replicas.
type BrokerData struct {
	Cluster     string           `json:"cluster"`
	BrokerName  string           `json:"brokerName"`
	BrokerAddrs map[int64]string `json:"brokerAddrs"`
}

// SelectAddr returns the master address when registered, otherwise a
// replica picked at random.
func (b *BrokerData) SelectAddr() string {
	if addr, ok := b.BrokerAddrs[MasterBrokerID]; ok {
		return addr
	}
	if len(b.BrokerAddrs) == 0 {
		return ""
	}
	addrs := make([]string, 0, len(b.BrokerAddrs))
	for _, addr := range b.BrokerAddrs {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	return addrs[rand.Intn(len(addrs))]
}

// TopicRouteData is the cluster's answer to a route query: which brokers
// host the topic and how many queues each one serves. Instances are
// immutable once parsed; the route cache replaces whole snapshots.
type TopicRouteData struct {
	OrderTopicConf    string              `json:"orderTopicConf"`
	QueueDatas        []*QueueData        `json:"queueDatas"`
	BrokerDatas       []*BrokerData       `json:"brokerDatas"`
	FilterServerTable map[string][]string `json:"filterServerTable"`
}

// ParseTopicRouteData decodes the JSON body of a GetRouteInfoByTopic
// response.
func ParseTopicRouteData(body []byte) (*TopicRouteData, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty route body", ErrMalformedFrame)
	}
	route := &TopicRouteData{}
	if err := json.Unmarshal(body, route); err != nil {
		return nil, fmt.Errorf("decode route data: %w", err)
	}
	return route, nil
}

// BrokerAddr returns the preferred address of the named broker, if present
// in this snapshot.
func (r *TopicRouteData) BrokerAddr(brokerName string) (string, bool) {
	for _, bd := range r.BrokerDatas {
		if bd.BrokerName == brokerName {
			if addr := bd.SelectAddr(); addr != "" {
				return addr, true
			}
			return "", false
		}
	}
	return "", false
}
