// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package producer

import (
	"fmt"
	"sync"
	"time"

	"github.com/absmach/rocketmq/message"
	"github.com/absmach/rocketmq/remoting"
)

// SendStatus classifies a successful (or degraded) broker acknowledgment.
type SendStatus int

const (
	// SendOK means the broker stored and replicated the message normally.
	SendOK SendStatus = iota
	// SendFlushDiskTimeout means the message is stored but the synchronous
	// disk flush timed out.
	SendFlushDiskTimeout
	// SendFlushSlaveTimeout means the message is stored but replication to
	// the slave timed out.
	SendFlushSlaveTimeout
	// SendSlaveNotAvailable means the message is stored but no slave was
	// reachable.
	SendSlaveNotAvailable
)

func (s SendStatus) String() string {
	switch s {
	case SendOK:
		return "SEND_OK"
	case SendFlushDiskTimeout:
		return "FLUSH_DISK_TIMEOUT"
	case SendFlushSlaveTimeout:
		return "FLUSH_SLAVE_TIMEOUT"
	case SendSlaveNotAvailable:
		return "SLAVE_NOT_AVAILABLE"
	default:
		return fmt.Sprintf("SendStatus(%d)", int(s))
	}
}

// SendResult is the broker's acknowledgment of one send.
type SendResult struct {
	Status        SendStatus
	MsgID         string
	OffsetMsgID   string
	MessageQueue  message.MessageQueue
	QueueOffset   int64
	TransactionID string
	RegionID      string
	TraceOn       bool
}

func (r *SendResult) String() string {
	return fmt.Sprintf("SendResult[status=%s, msgID=%s, queue=%s, offset=%d]",
		r.Status, r.MsgID, r.MessageQueue.String(), r.QueueOffset)
}

// SendFuture is the pending outcome of an asynchronous send.
type SendFuture struct {
	done      chan struct{}
	cancelled chan struct{}
	once      sync.Once
	result    *SendResult
	err       error
}

func newSendFuture() *SendFuture {
	return &SendFuture{
		done:      make(chan struct{}),
		cancelled: make(chan struct{}),
	}
}

func (f *SendFuture) complete(result *SendResult, err error) {
	f.result = result
	f.err = err
	close(f.done)
}

// Cancel detaches waiters from the future. The send itself is not
// aborted; its eventual outcome is discarded.
func (f *SendFuture) Cancel() {
	f.once.Do(func() { close(f.cancelled) })
}

// Done is closed once the send completes.
func (f *SendFuture) Done() <-chan struct{} { return f.done }

// Get blocks until the send completes or the timeout elapses. A settled
// outcome wins over a cancellation.
func (f *SendFuture) Get(timeout time.Duration) (*SendResult, error) {
	select {
	case <-f.done:
		return f.result, f.err
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-f.done:
		return f.result, f.err
	case <-f.cancelled:
		return nil, ErrCancelled
	case <-timer.C:
		return nil, remoting.ErrTimeout
	}
}
