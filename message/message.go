// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package message defines the messages a producer publishes and the queue
// coordinates they are routed to.
package message

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Property keys attached to messages, as brokers and consumers expect them.
const (
	PropertyKeys                string = "KEYS"
	PropertyTags                string = "TAGS"
	PropertyWaitStoreMsgOK      string = "WAIT"
	PropertyDelayTimeLevel      string = "DELAY"
	PropertyRetryTopic          string = "RETRY_TOPIC"
	PropertyRealTopic           string = "REAL_TOPIC"
	PropertyRealQueueID         string = "REAL_QID"
	PropertyTransactionPrepared string = "TRAN_MSG"
	PropertyProducerGroup       string = "PGROUP"
	PropertyMsgRegion           string = "MSG_REGION"
	PropertyTraceSwitch         string = "TRACE_ON"
	PropertyUniqueKey           string = "UNIQ_KEY"
	PropertyShardingKey         string = "SHARDING_KEY"
	PropertyMaxReconsumeTimes   string = "MAX_RECONSUME_TIMES"

	// KeySeparator joins multiple business keys inside PropertyKeys.
	KeySeparator string = " "
)

// Property wire separators used when flattening the property map into the
// send request header.
const (
	nameValueSeparator = '\x01'
	propertySeparator  = '\x02'
)

// Message system flags.
const (
	SysFlagCompressed          int32 = 1 << 0
	SysFlagMultiTags           int32 = 1 << 1
	SysFlagTransactionPrepared int32 = 1 << 2
)

// Batch encoding errors.
var (
	ErrEmptyBatch  = errors.New("batch message is empty")
	ErrMixedTopics = errors.New("batch messages must share one topic")
)

// Message is one unit of application data bound for a topic. Build it with
// NewMessage and the With* helpers before handing it to a producer; the
// producer treats it as read-only apart from assigning the unique key once.
type Message struct {
	Topic      string
	Flag       int32
	Properties map[string]string
	Body       []byte

	// Batch marks a pre-encoded batch body produced by EncodeBatch.
	Batch bool

	// Queue pins the destination when the manual selector is in use.
	Queue *MessageQueue
}

// NewMessage creates a message for a topic.
func NewMessage(topic string, body []byte) *Message {
	return &Message{
		Topic:      topic,
		Body:       body,
		Properties: map[string]string{PropertyWaitStoreMsgOK: "true"},
	}
}

// WithTags sets the message tag used for server-side filtering.
func (m *Message) WithTags(tags string) *Message {
	m.Properties[PropertyTags] = tags
	return m
}

// WithKeys sets the business keys used for message lookup.
func (m *Message) WithKeys(keys ...string) *Message {
	m.Properties[PropertyKeys] = strings.Join(keys, KeySeparator)
	return m
}

// WithShardingKey sets the routing key consulted by the hash queue
// selector; messages sharing a key land on the same queue.
func (m *Message) WithShardingKey(key string) *Message {
	m.Properties[PropertyShardingKey] = key
	return m
}

// WithProperty sets an arbitrary user property.
func (m *Message) WithProperty(key, value string) *Message {
	m.Properties[key] = value
	return m
}

// WithDelayTimeLevel sets the broker-side delay level.
func (m *Message) WithDelayTimeLevel(level int) *Message {
	m.Properties[PropertyDelayTimeLevel] = fmt.Sprintf("%d", level)
	return m
}

// Tags returns the message tag, if set.
func (m *Message) Tags() string { return m.Properties[PropertyTags] }

// ShardingKey returns the routing key, if set.
func (m *Message) ShardingKey() string { return m.Properties[PropertyShardingKey] }

// UniqueKey returns the client-assigned message id, if assigned.
func (m *Message) UniqueKey() string { return m.Properties[PropertyUniqueKey] }

// EnsureUniqueKey assigns the client-side message id if the message does
// not carry one yet, and returns it. The id survives retries so every
// attempt of one message is deduplicable server-side.
func (m *Message) EnsureUniqueKey() string {
	if key := m.Properties[PropertyUniqueKey]; key != "" {
		return key
	}
	key := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	m.Properties[PropertyUniqueKey] = key
	return key
}

// DumpProperties flattens the property map into the reference wire form:
// key\x01value\x02 per pair.
func (m *Message) DumpProperties() string {
	if len(m.Properties) == 0 {
		return ""
	}
	var b strings.Builder
	for k, v := range m.Properties {
		b.WriteString(k)
		b.WriteByte(nameValueSeparator)
		b.WriteString(v)
		b.WriteByte(propertySeparator)
	}
	return b.String()
}

// ParseProperties reverses DumpProperties.
func ParseProperties(s string) map[string]string {
	props := make(map[string]string)
	for _, pair := range strings.Split(s, string(propertySeparator)) {
		if pair == "" {
			continue
		}
		if k, v, ok := strings.Cut(pair, string(nameValueSeparator)); ok {
			props[k] = v
		}
	}
	return props
}

// batchMagic is the per-message magic code inside a batch body.
const batchMagic int32 = 0

// EncodeBatch packs messages into a single batch message. All messages must
// share one topic. The batch body layout per message is
//
//	totalSize i32 | magic i32 | bodyCRC i32 | flag i32
//	bodyLen i32 | body | propertiesLen i16 | properties
func EncodeBatch(msgs []*Message) (*Message, error) {
	if len(msgs) == 0 {
		return nil, ErrEmptyBatch
	}
	topic := msgs[0].Topic
	for _, m := range msgs[1:] {
		if m.Topic != topic {
			return nil, fmt.Errorf("%w: %q and %q", ErrMixedTopics, topic, m.Topic)
		}
	}

	var body []byte
	for _, m := range msgs {
		m.EnsureUniqueKey()
		props := m.DumpProperties()
		total := 4 + 4 + 4 + 4 + 4 + len(m.Body) + 2 + len(props)

		body = binary.BigEndian.AppendUint32(body, uint32(total))
		body = binary.BigEndian.AppendUint32(body, uint32(batchMagic))
		body = binary.BigEndian.AppendUint32(body, 0) // body CRC, unchecked by brokers
		body = binary.BigEndian.AppendUint32(body, uint32(m.Flag))
		body = binary.BigEndian.AppendUint32(body, uint32(len(m.Body)))
		body = append(body, m.Body...)
		body = binary.BigEndian.AppendUint16(body, uint16(len(props)))
		body = append(body, props...)
	}

	batch := NewMessage(topic, body)
	batch.Batch = true
	return batch, nil
}
