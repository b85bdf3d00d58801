// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package remoting

import "errors"

// Remoting errors.
var (
	// ErrConnClosed is delivered to every waiter when the transport is
	// lost; the pool evicts the connection and a retry may reconnect.
	ErrConnClosed = errors.New("connection closed")

	// ErrTimeout means no response arrived within the caller's deadline.
	// The waiter is removed, so a late response is discarded.
	ErrTimeout = errors.New("request timed out")

	// ErrShutdown is returned once the client has been shut down.
	ErrShutdown = errors.New("remoting client has been shut down")

	// ErrOpaqueExhausted means every correlation id is held by an
	// in-flight request, which indicates a stuck peer.
	ErrOpaqueExhausted = errors.New("no free correlation id")
)
