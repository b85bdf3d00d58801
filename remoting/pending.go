// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package remoting

import (
	"sync"
	"time"

	"github.com/absmach/rocketmq/protocol"
)

// pendingOp is one in-flight request waiting for its correlated response.
type pendingOp struct {
	opaque  int32
	done    chan struct{}
	resp    *protocol.RemotingCommand
	err     error
	created time.Time
}

// wait blocks until the read loop delivers the response, the connection
// fails the operation, or the timeout elapses.
func (op *pendingOp) wait(timeout time.Duration) (*protocol.RemotingCommand, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-op.done:
		return op.resp, op.err
	case <-timer.C:
		return nil, ErrTimeout
	}
}

// pendingStore is the per-connection correlation table: opaque id to
// waiter. Callers insert and remove around each request; the read loop
// completes entries as responses arrive. Both sides synchronize on the
// same mutex.
type pendingStore struct {
	mu         sync.Mutex
	pending    map[int32]*pendingOp
	nextOpaque int32
}

func newPendingStore() *pendingStore {
	return &pendingStore{
		pending:    make(map[int32]*pendingOp),
		nextOpaque: 1,
	}
}

// add registers a waiter under a fresh opaque id. Ids increase
// monotonically, wrap within the positive int32 range to keep the sign bit
// clear, and skip ids still held by in-flight requests.
func (ps *pendingStore) add() (*pendingOp, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	start := ps.nextOpaque
	for {
		opaque := ps.nextOpaque
		ps.nextOpaque++
		if ps.nextOpaque < 1 {
			ps.nextOpaque = 1
		}

		if _, inFlight := ps.pending[opaque]; !inFlight {
			op := &pendingOp{
				opaque:  opaque,
				done:    make(chan struct{}),
				created: time.Now(),
			}
			ps.pending[opaque] = op
			return op, nil
		}

		if ps.nextOpaque == start {
			return nil, ErrOpaqueExhausted
		}
	}
}

// reserve hands out an opaque id without registering a waiter, for oneway
// requests that expect no response.
func (ps *pendingStore) reserve() int32 {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	opaque := ps.nextOpaque
	ps.nextOpaque++
	if ps.nextOpaque < 1 {
		ps.nextOpaque = 1
	}
	return opaque
}

// complete delivers a response to the matching waiter. It reports false
// when no waiter is registered, which happens for late responses whose
// caller already timed out.
func (ps *pendingStore) complete(opaque int32, resp *protocol.RemotingCommand) bool {
	ps.mu.Lock()
	op, ok := ps.pending[opaque]
	if ok {
		delete(ps.pending, opaque)
	}
	ps.mu.Unlock()

	if !ok {
		return false
	}
	op.resp = resp
	close(op.done)
	return true
}

// remove drops a waiter without completing it, after a timeout. A response
// arriving later finds no entry and is discarded.
func (ps *pendingStore) remove(opaque int32) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	delete(ps.pending, opaque)
}

// clear fails every outstanding waiter, on connection loss or shutdown.
func (ps *pendingStore) clear(err error) {
	ps.mu.Lock()
	pending := ps.pending
	ps.pending = make(map[int32]*pendingOp)
	ps.mu.Unlock()

	for _, op := range pending {
		op.err = err
		close(op.done)
	}
}

func (ps *pendingStore) count() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return len(ps.pending)
}
