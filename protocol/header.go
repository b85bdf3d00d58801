// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// Header serialization markers, carried in the top byte of the header
// descriptor word.
const (
	MarkerJSON     byte = 0
	MarkerRocketMQ byte = 1
)

// HeaderCodec serializes the command header (everything but the body).
// Implementations dispatch on the serialization marker byte.
type HeaderCodec interface {
	Marker() byte
	Encode(c *RemotingCommand) ([]byte, error)
	Decode(data []byte, c *RemotingCommand) error
}

func codecForMarker(marker byte) (HeaderCodec, error) {
	switch marker {
	case MarkerJSON:
		return JSONHeaderCodec{}, nil
	case MarkerRocketMQ:
		return RocketMQHeaderCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown header codec %#x", ErrMalformedFrame, marker)
	}
}

// jsonHeader mirrors the reference remoting header schema. Field names must
// match unmodified brokers and name servers byte for byte.
type jsonHeader struct {
	Code      int16             `json:"code"`
	Language  LanguageCode      `json:"language"`
	Version   int16             `json:"version"`
	Opaque    int32             `json:"opaque"`
	Flag      int32             `json:"flag"`
	Remark    string            `json:"remark"`
	ExtFields map[string]string `json:"extFields"`
}

// JSONHeaderCodec is the dynamic JSON header serialization (marker 0).
type JSONHeaderCodec struct{}

func (JSONHeaderCodec) Marker() byte { return MarkerJSON }

func (JSONHeaderCodec) Encode(c *RemotingCommand) ([]byte, error) {
	return json.Marshal(jsonHeader{
		Code:      c.Code,
		Language:  c.Language,
		Version:   c.Version,
		Opaque:    c.Opaque,
		Flag:      c.Flag,
		Remark:    c.Remark,
		ExtFields: c.ExtFields,
	})
}

func (JSONHeaderCodec) Decode(data []byte, c *RemotingCommand) error {
	var h jsonHeader
	if err := json.Unmarshal(data, &h); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	c.Code = h.Code
	c.Language = h.Language
	c.Version = h.Version
	c.Opaque = h.Opaque
	c.Flag = h.Flag
	c.Remark = h.Remark
	c.ExtFields = h.ExtFields
	return nil
}

// RocketMQHeaderCodec is the compact binary header serialization (marker 1):
//
//	code i16 | language u8 | version i16 | opaque i32 | flag i32
//	remark: i32 length + bytes
//	extFields: i32 section length, then { u16 key length, key,
//	                                      i32 value length, value }*
//
// All integers big-endian.
type RocketMQHeaderCodec struct{}

func (RocketMQHeaderCodec) Marker() byte { return MarkerRocketMQ }

func (RocketMQHeaderCodec) Encode(c *RemotingCommand) ([]byte, error) {
	extLen := 0
	for k, v := range c.ExtFields {
		extLen += 2 + len(k) + 4 + len(v)
	}
	buf := make([]byte, 0, 2+1+2+4+4+4+len(c.Remark)+4+extLen)

	buf = binary.BigEndian.AppendUint16(buf, uint16(c.Code))
	buf = append(buf, byte(c.Language))
	buf = binary.BigEndian.AppendUint16(buf, uint16(c.Version))
	buf = binary.BigEndian.AppendUint32(buf, uint32(c.Opaque))
	buf = binary.BigEndian.AppendUint32(buf, uint32(c.Flag))

	buf = binary.BigEndian.AppendUint32(buf, uint32(len(c.Remark)))
	buf = append(buf, c.Remark...)

	buf = binary.BigEndian.AppendUint32(buf, uint32(extLen))
	for k, v := range c.ExtFields {
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(k)))
		buf = append(buf, k...)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(v)))
		buf = append(buf, v...)
	}
	return buf, nil
}

func (RocketMQHeaderCodec) Decode(data []byte, c *RemotingCommand) error {
	r := binReader{data: data}

	c.Code = int16(r.uint16())
	c.Language = LanguageCode(r.byte())
	c.Version = int16(r.uint16())
	c.Opaque = int32(r.uint32())
	c.Flag = int32(r.uint32())

	remarkLen := int(int32(r.uint32()))
	c.Remark = string(r.bytes(remarkLen))

	extLen := int(int32(r.uint32()))
	if r.err == nil && extLen != len(r.data)-r.off {
		return fmt.Errorf("%w: ext fields length mismatch", ErrMalformedFrame)
	}
	if extLen > 0 {
		c.ExtFields = make(map[string]string)
		for r.err == nil && r.off < len(r.data) {
			key := string(r.bytes(int(r.uint16())))
			val := string(r.bytes(int(int32(r.uint32()))))
			if r.err == nil {
				c.ExtFields[key] = val
			}
		}
	}
	if r.err != nil {
		return fmt.Errorf("%w: truncated binary header", ErrMalformedFrame)
	}
	return nil
}

// binReader is a bounds-checked big-endian cursor. The first out-of-range
// read latches err; subsequent reads return zero values.
type binReader struct {
	data []byte
	off  int
	err  error
}

func (r *binReader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = ErrMalformedFrame
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *binReader) byte() byte {
	b := r.bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *binReader) uint16() uint16 {
	b := r.bytes(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *binReader) uint32() uint32 {
	b := r.bytes(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}
