// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package producer

import (
	"errors"
	"fmt"
)

var (
	// ErrNotStarted indicates a send on a producer that was never started.
	ErrNotStarted = errors.New("producer not started")
	// ErrShutdown indicates a send on a producer that was shut down.
	ErrShutdown = errors.New("producer shut down")
	// ErrNoRoute indicates no writeable queue could be found for a topic.
	ErrNoRoute = errors.New("no route for topic")
	// ErrMessageTooLarge indicates a message body over the configured limit.
	ErrMessageTooLarge = errors.New("message exceeds maximum size")
	// ErrEmptyTopic indicates a message without a topic.
	ErrEmptyTopic = errors.New("message topic is empty")
	// ErrCancelled indicates a wait on a cancelled send future.
	ErrCancelled = errors.New("send future cancelled")
)

// errNoBrokerAddr marks a route that named a broker the cache has no
// address for. Unlike ErrNoRoute it is transient: a retry can pick a
// different broker or a refreshed route can fill the address in.
var errNoBrokerAddr = errors.New("no address for broker")

// SendError wraps the last failure of an exhausted retry sequence.
type SendError struct {
	Topic    string
	Attempts int
	Last     error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to %s failed after %d attempts: %v", e.Topic, e.Attempts, e.Last)
}

func (e *SendError) Unwrap() error { return e.Last }
