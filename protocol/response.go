// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package protocol

import "fmt"

// Response codes returned by brokers and name servers.
const (
	ResponseSuccess              int16 = 0
	ResponseSystemError          int16 = 1
	ResponseSystemBusy           int16 = 2
	ResponseFlushDiskTimeout     int16 = 10
	ResponseSlaveNotAvailable    int16 = 11
	ResponseFlushSlaveTimeout    int16 = 12
	ResponseNoPermission         int16 = 16
	ResponseTopicNotExist        int16 = 17
	ResponsePullNotFound         int16 = 19
	ResponsePullRetryImmediately int16 = 20
	ResponsePullOffsetMoved      int16 = 21
)

// ResponseError is a non-success status returned by the remote side. It is
// a protocol-level outcome, not a transport failure: callers decide by code
// whether it is retryable.
type ResponseError struct {
	Code   int16
	Remark string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("remote returned code %d: %s", e.Code, e.Remark)
}

// Retryable reports whether the status indicates transient overload.
func (e *ResponseError) Retryable() bool {
	return e.Code == ResponseSystemError || e.Code == ResponseSystemBusy
}
