// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package producer

import (
	"bytes"
	"fmt"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zlib"
)

// Compressor shrinks message bodies that exceed the compression threshold.
type Compressor interface {
	Compress(body []byte) ([]byte, error)
}

// ZlibCompressor is the wire-compatible default: brokers and consumers
// expect zlib-compressed bodies when the compressed sys flag is set.
// A zero Level means DefaultCompressLevel; zlib's "no compression" level
// would defeat the size guard that decides whether to set the flag.
type ZlibCompressor struct {
	Level int
}

func (c ZlibCompressor) Compress(body []byte) ([]byte, error) {
	level := c.Level
	if level == 0 || level < zlib.HuffmanOnly || level > zlib.BestCompression {
		level = DefaultCompressLevel
	}
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("zlib writer: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		w.Close()
		return nil, fmt.Errorf("zlib compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("zlib flush: %w", err)
	}
	return buf.Bytes(), nil
}

// SnappyCompressor trades ratio for speed. Use it only when every
// consumer of the topic understands snappy bodies.
type SnappyCompressor struct{}

func (SnappyCompressor) Compress(body []byte) ([]byte, error) {
	return snappy.Encode(nil, body), nil
}
