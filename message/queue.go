// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package message

import "fmt"

// MessageQueue identifies one ordered partition of a topic on one broker.
type MessageQueue struct {
	Topic      string
	BrokerName string
	QueueID    int32
}

func (q MessageQueue) String() string {
	return fmt.Sprintf("%s@%s#%d", q.Topic, q.BrokerName, q.QueueID)
}
