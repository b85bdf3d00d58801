// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package producer

import (
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/absmach/rocketmq/internal/hashring"
	"github.com/absmach/rocketmq/message"
)

// QueueSelector picks the destination queue for one message out of the
// writeable queues of its topic. Callers guarantee queues is non-empty.
type QueueSelector interface {
	Select(msg *message.Message, queues []message.MessageQueue) message.MessageQueue
}

// RoundRobinSelector spreads messages evenly across queues in arrival
// order. It is the default strategy.
type RoundRobinSelector struct {
	counter atomic.Uint64
}

func NewRoundRobinSelector() *RoundRobinSelector { return &RoundRobinSelector{} }

func (s *RoundRobinSelector) Select(_ *message.Message, queues []message.MessageQueue) message.MessageQueue {
	i := s.counter.Add(1) - 1
	return queues[i%uint64(len(queues))]
}

// HashSelector pins messages with the same sharding key to the same
// queue, preserving per-key ordering. Messages without a sharding key
// fall back to round robin.
type HashSelector struct {
	fallback RoundRobinSelector

	mu    sync.Mutex
	rings map[int]*hashring.Ring
}

func NewHashSelector() *HashSelector {
	return &HashSelector{rings: make(map[int]*hashring.Ring)}
}

func (s *HashSelector) Select(msg *message.Message, queues []message.MessageQueue) message.MessageQueue {
	key := msg.ShardingKey()
	if key == "" {
		return s.fallback.Select(msg, queues)
	}
	return queues[s.ring(len(queues)).Get(key)]
}

func (s *HashSelector) ring(size int) *hashring.Ring {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rings[size]
	if !ok {
		r = hashring.New(size, 0)
		s.rings[size] = r
	}
	return r
}

// RandomSelector picks a uniformly random queue per message.
type RandomSelector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandomSelector(seed int64) *RandomSelector {
	return &RandomSelector{rng: rand.New(rand.NewSource(seed))}
}

func (s *RandomSelector) Select(_ *message.Message, queues []message.MessageQueue) message.MessageQueue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return queues[s.rng.Intn(len(queues))]
}

// ManualSelector honors the queue pinned on the message itself and falls
// back to round robin when none is set or the pinned queue is gone.
type ManualSelector struct {
	fallback RoundRobinSelector
}

func NewManualSelector() *ManualSelector { return &ManualSelector{} }

func (s *ManualSelector) Select(msg *message.Message, queues []message.MessageQueue) message.MessageQueue {
	if msg.Queue != nil {
		for _, q := range queues {
			if q == *msg.Queue {
				return q
			}
		}
	}
	return s.fallback.Select(msg, queues)
}
