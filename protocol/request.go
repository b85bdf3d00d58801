// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package protocol

import "strconv"

// Request codes understood by brokers and name servers.
const (
	SendMessage              int16 = 10
	PullMessage              int16 = 11
	QueryConsumerOffset      int16 = 14
	UpdateConsumerOffset     int16 = 15
	SearchOffsetByTimestamp  int16 = 29
	GetMaxOffset             int16 = 30
	Heartbeat                int16 = 34
	ConsumerSendMsgBack      int16 = 36
	EndTransaction           int16 = 37
	GetConsumerListByGroup   int16 = 38
	CheckTransactionState    int16 = 39
	NotifyConsumerIdsChanged int16 = 40
	LockBatchMQ              int16 = 41
	UnlockBatchMQ            int16 = 42
	GetRouteInfoByTopic      int16 = 105
	ResetConsumerOffset      int16 = 220
	GetConsumerRunningInfo   int16 = 307
	ConsumeMessageDirectly   int16 = 309
	SendBatchMessage         int16 = 320
)

// CustomHeader is a typed request header that flattens into the command's
// ext fields.
type CustomHeader interface {
	Encode() map[string]string
}

// SendMessageRequestHeader carries the per-send metadata of a SendMessage
// or SendBatchMessage request. Field names follow the broker's JSON schema.
type SendMessageRequestHeader struct {
	ProducerGroup         string
	Topic                 string
	DefaultTopic          string
	DefaultTopicQueueNums int32
	QueueID               int32
	SysFlag               int32
	BornTimestamp         int64
	Flag                  int32
	Properties            string
	ReconsumeTimes        int32
	UnitMode              bool
	MaxReconsumeTimes     int32
	Batch                 bool
}

func (h SendMessageRequestHeader) Encode() map[string]string {
	return map[string]string{
		"producerGroup":         h.ProducerGroup,
		"topic":                 h.Topic,
		"defaultTopic":          h.DefaultTopic,
		"defaultTopicQueueNums": strconv.FormatInt(int64(h.DefaultTopicQueueNums), 10),
		"queueId":               strconv.FormatInt(int64(h.QueueID), 10),
		"sysFlag":               strconv.FormatInt(int64(h.SysFlag), 10),
		"bornTimestamp":         strconv.FormatInt(h.BornTimestamp, 10),
		"flag":                  strconv.FormatInt(int64(h.Flag), 10),
		"properties":            h.Properties,
		"reconsumeTimes":        strconv.FormatInt(int64(h.ReconsumeTimes), 10),
		"unitMode":              strconv.FormatBool(h.UnitMode),
		"maxReconsumeTimes":     strconv.FormatInt(int64(h.MaxReconsumeTimes), 10),
		"batch":                 strconv.FormatBool(h.Batch),
	}
}

// GetRouteInfoRequestHeader asks a name server for the route of one topic.
type GetRouteInfoRequestHeader struct {
	Topic string
}

func (h GetRouteInfoRequestHeader) Encode() map[string]string {
	return map[string]string{"topic": h.Topic}
}
