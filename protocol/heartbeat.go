// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package protocol

// ProducerData identifies one producer group in a heartbeat.
type ProducerData struct {
	GroupName string `json:"groupName"`
}

// ConsumerData identifies one consumer group in a heartbeat. Producers send
// an empty set; the field is part of the wire schema regardless.
type ConsumerData struct {
	GroupName        string `json:"groupName"`
	ConsumerType     string `json:"consumerType"`
	MessageModel     string `json:"messageModel"`
	ConsumeFromWhere string `json:"consumeFromWhere"`
	UnitMode         bool   `json:"unitMode"`
}

// HeartbeatData is the JSON body of a Heartbeat request, registering this
// client instance with a broker.
type HeartbeatData struct {
	ClientID        string         `json:"clientID"`
	ProducerDataSet []ProducerData `json:"producerDataSet"`
	ConsumerDataSet []ConsumerData `json:"consumerDataSet"`
}
