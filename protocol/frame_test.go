// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCommand() *RemotingCommand {
	cmd := NewCommand(SendMessage, map[string]string{
		"messageId": "123",
		"offset":    "456",
	}, []byte("Hello World"))
	cmd.Opaque = 1
	cmd.Remark = "remark"
	return cmd
}

func TestFrameRoundTripJSON(t *testing.T) {
	cmd := sampleCommand()

	frame, err := EncodeFrame(cmd, JSONHeaderCodec{})
	require.NoError(t, err)

	dec := NewDecoder()
	_, err = dec.Write(frame)
	require.NoError(t, err)

	got, err := dec.Decode()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, cmd, got)
	assert.Zero(t, dec.Buffered())
}

func TestFrameRoundTripRocketMQ(t *testing.T) {
	cmd := sampleCommand()

	frame, err := EncodeFrame(cmd, RocketMQHeaderCodec{})
	require.NoError(t, err)

	dec := NewDecoder()
	_, err = dec.Write(frame)
	require.NoError(t, err)

	got, err := dec.Decode()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, cmd, got)
}

// Splitting the encoded frame at every byte boundary must decode to the
// same command as decoding it whole.
func TestFrameFragmentation(t *testing.T) {
	cmd := sampleCommand()
	frame, err := EncodeFrame(cmd, JSONHeaderCodec{})
	require.NoError(t, err)

	for split := 0; split <= len(frame); split++ {
		dec := NewDecoder()

		_, err := dec.Write(frame[:split])
		require.NoError(t, err)
		got, err := dec.Decode()
		require.NoError(t, err)
		if split < len(frame) {
			require.Nil(t, got, "split %d: decoded before full frame buffered", split)
		}

		_, err = dec.Write(frame[split:])
		require.NoError(t, err)
		if got == nil {
			got, err = dec.Decode()
			require.NoError(t, err)
		}
		require.NotNil(t, got, "split %d", split)
		assert.Equal(t, cmd, got, "split %d", split)
	}
}

func TestFrameResidualBytes(t *testing.T) {
	first := sampleCommand()
	second := NewCommand(Heartbeat, nil, nil)
	second.Opaque = 2

	f1, err := EncodeFrame(first, JSONHeaderCodec{})
	require.NoError(t, err)
	f2, err := EncodeFrame(second, JSONHeaderCodec{})
	require.NoError(t, err)

	dec := NewDecoder()
	_, err = dec.Write(append(f1, f2...))
	require.NoError(t, err)

	got1, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, first, got1)

	got2, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, second, got2)

	got3, err := dec.Decode()
	require.NoError(t, err)
	assert.Nil(t, got3)
}

func TestEncodeHeaderTooLarge(t *testing.T) {
	cmd := NewCommand(SendMessage, map[string]string{
		"huge": string(make([]byte, maxHeaderLen+1)),
	}, nil)

	_, err := EncodeFrame(cmd, JSONHeaderCodec{})
	assert.ErrorIs(t, err, ErrHeaderTooLarge)
}

func TestDecodeUnknownMarker(t *testing.T) {
	cmd := sampleCommand()
	frame, err := EncodeFrame(cmd, JSONHeaderCodec{})
	require.NoError(t, err)

	frame[4] = 0x7f // header descriptor top byte

	dec := NewDecoder()
	_, err = dec.Write(frame)
	require.NoError(t, err)
	_, err = dec.Decode()
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestDecodeBogusLength(t *testing.T) {
	var frame [8]byte
	binary.BigEndian.PutUint32(frame[:], 2) // below header descriptor size

	dec := NewDecoder()
	_, err := dec.Write(frame[:])
	require.NoError(t, err)
	_, err = dec.Decode()
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

// The codec must not validate command codes; unknown codes pass through.
func TestDecodeUnknownCode(t *testing.T) {
	cmd := NewCommand(9999, nil, nil)
	frame, err := EncodeFrame(cmd, JSONHeaderCodec{})
	require.NoError(t, err)

	dec := NewDecoder()
	_, err = dec.Write(frame)
	require.NoError(t, err)
	got, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, int16(9999), got.Code)
}

func TestResponseAndOnewayFlags(t *testing.T) {
	cmd := NewCommand(SendMessage, nil, nil)
	assert.False(t, cmd.IsResponse())
	assert.False(t, cmd.IsOneway())

	cmd.MarkResponse()
	assert.True(t, cmd.IsResponse())

	cmd.MarkOneway()
	assert.True(t, cmd.IsOneway())
	assert.True(t, cmd.IsResponse())
}
