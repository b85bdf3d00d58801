// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package namesrv

import "errors"

// Name-server errors.
var (
	// ErrNoNameServers means resolution produced an empty address list.
	ErrNoNameServers = errors.New("no name server addresses configured")

	// ErrNoAvailableNameServer means every configured name server was
	// tried once and none answered successfully.
	ErrNoAvailableNameServer = errors.New("no name server available")

	// ErrTopicNotFound means the cluster has no route for the topic.
	ErrTopicNotFound = errors.New("topic not found")
)
