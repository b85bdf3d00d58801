// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Frame layout constants. The on-wire frame is
//
//	[4] total length L (excludes these 4 bytes)
//	[4] header descriptor: top byte = serialization marker,
//	    lower 3 bytes = header length H
//	[H] header
//	[L-4-H] body
const (
	lengthFieldSize = 4
	headerDescSize  = 4
	maxHeaderLen    = 0xFFFFFF
	maxFrameLen     = 32 * 1024 * 1024
)

// Frame codec errors.
var (
	// ErrMalformedFrame marks a frame the peer encoded incorrectly. It is
	// fatal to the connection carrying it.
	ErrMalformedFrame = errors.New("malformed remoting frame")

	// ErrHeaderTooLarge is returned when an encoded header exceeds the
	// 24-bit length field.
	ErrHeaderTooLarge = errors.New("remoting header exceeds 0xFFFFFF bytes")
)

// EncodeFrame serializes a command into a single wire frame using the given
// header codec.
func EncodeFrame(c *RemotingCommand, codec HeaderCodec) ([]byte, error) {
	header, err := codec.Encode(c)
	if err != nil {
		return nil, err
	}
	if len(header) > maxHeaderLen {
		return nil, ErrHeaderTooLarge
	}

	length := headerDescSize + len(header) + len(c.Body)
	buf := make([]byte, 0, lengthFieldSize+length)
	buf = binary.BigEndian.AppendUint32(buf, uint32(length))
	buf = binary.BigEndian.AppendUint32(buf, uint32(codec.Marker())<<24|uint32(len(header)))
	buf = append(buf, header...)
	buf = append(buf, c.Body...)
	return buf, nil
}

// Decoder incrementally decodes a remoting byte stream. Frames may arrive
// fragmented across socket reads: feed bytes with Write, then call Decode
// until it reports that more data is needed. Residual bytes stay buffered
// for the next frame.
type Decoder struct {
	buf bytes.Buffer
}

// NewDecoder returns an empty stream decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Write appends raw bytes from the transport to the decode buffer.
func (d *Decoder) Write(p []byte) (int, error) {
	return d.buf.Write(p)
}

// Buffered returns the number of undecoded bytes currently held.
func (d *Decoder) Buffered() int {
	return d.buf.Len()
}

// Decode extracts the next complete command. It returns (nil, nil) when the
// buffer does not yet hold a whole frame. A non-nil error means the stream
// is corrupt and the connection must be dropped; the decoder state is
// unspecified afterwards.
func (d *Decoder) Decode() (*RemotingCommand, error) {
	data := d.buf.Bytes()
	if len(data) < lengthFieldSize {
		return nil, nil
	}

	length := int(int32(binary.BigEndian.Uint32(data)))
	if length < headerDescSize || length > maxFrameLen {
		return nil, fmt.Errorf("%w: frame length %d", ErrMalformedFrame, length)
	}
	if len(data) < lengthFieldSize+length {
		return nil, nil
	}

	desc := binary.BigEndian.Uint32(data[lengthFieldSize:])
	marker := byte(desc >> 24)
	headerLen := int(desc & maxHeaderLen)
	if headerDescSize+headerLen > length {
		return nil, fmt.Errorf("%w: header length %d exceeds frame", ErrMalformedFrame, headerLen)
	}

	headerStart := lengthFieldSize + headerDescSize
	header := data[headerStart : headerStart+headerLen]
	bodyLen := length - headerDescSize - headerLen

	codec, err := codecForMarker(marker)
	if err != nil {
		return nil, err
	}

	cmd := &RemotingCommand{}
	if err := codec.Decode(header, cmd); err != nil {
		return nil, err
	}
	if bodyLen > 0 {
		cmd.Body = make([]byte, bodyLen)
		copy(cmd.Body, data[headerStart+headerLen:])
	}

	d.buf.Next(lengthFieldSize + length)
	return cmd, nil
}
