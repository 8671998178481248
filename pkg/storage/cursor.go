// Copyright 2025 Alexander Alten (novatechflow), NovaTechflow (novatechflow.com).
// This project is supported and financed by Scalytics, Inc. (www.scalytics.io).
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import "encoding/binary"

// cursor is a forward-only big-endian reader over on-disk bytes. Every read
// is bounds checked and failures name the field being decoded.
type cursor struct {
	buf []byte
	pos int
}

func newCursor(b []byte) *cursor {
	return &cursor{buf: b}
}

func (c *cursor) remaining() int {
	return len(c.buf) - c.pos
}

func (c *cursor) take(n int, field string) ([]byte, error) {
	if n < 0 {
		return nil, decodeErrorf(field, "negative length %d", n)
	}
	if c.remaining() < n {
		return nil, decodeErrorf(field, "extends past buffer end (need %d have %d)", n, c.remaining())
	}
	start := c.pos
	c.pos += n
	return c.buf[start:c.pos], nil
}

func (c *cursor) int8(field string) (int8, error) {
	b, err := c.take(1, field)
	if err != nil {
		return 0, err
	}
	return int8(b[0]), nil
}

func (c *cursor) uint8(field string) (uint8, error) {
	b, err := c.take(1, field)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *cursor) int16(field string) (int16, error) {
	b, err := c.take(2, field)
	if err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(b)), nil
}

func (c *cursor) int32(field string) (int32, error) {
	b, err := c.take(4, field)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

func (c *cursor) uint32(field string) (uint32, error) {
	b, err := c.take(4, field)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (c *cursor) int64(field string) (int64, error) {
	b, err := c.take(8, field)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

func (c *cursor) uuid(field string) (TopicID, error) {
	b, err := c.take(16, field)
	if err != nil {
		return TopicID{}, err
	}
	var id TopicID
	copy(id[:], b)
	return id, nil
}

func (c *cursor) uvarint(field string) (uint64, error) {
	v, n := binary.Uvarint(c.buf[c.pos:])
	if n == 0 {
		return 0, decodeErrorf(field, "varint extends past buffer end")
	}
	if n < 0 {
		return 0, decodeErrorf(field, "varint overflows 64 bits")
	}
	c.pos += n
	return v, nil
}

// varint reads a zigzag encoded signed varint.
func (c *cursor) varint(field string) (int64, error) {
	v, n := binary.Varint(c.buf[c.pos:])
	if n == 0 {
		return 0, decodeErrorf(field, "varint extends past buffer end")
	}
	if n < 0 {
		return 0, decodeErrorf(field, "varint overflows 64 bits")
	}
	c.pos += n
	return v, nil
}

// compactCount reads a compact array or string length stored as n+1. A stored
// zero is rejected since none of the on-disk fields we read are nullable.
func (c *cursor) compactCount(field string) (int, error) {
	v, err := c.uvarint(field)
	if err != nil {
		return 0, err
	}
	if v == 0 {
		return 0, decodeErrorf(field, "invalid length -1")
	}
	if v-1 > uint64(c.remaining()) {
		return 0, decodeErrorf(field, "length %d extends past buffer end", v-1)
	}
	return int(v - 1), nil
}

func (c *cursor) int32Array(field string) ([]int32, error) {
	n, err := c.compactCount(field)
	if err != nil {
		return nil, err
	}
	if n*4 > c.remaining() {
		return nil, decodeErrorf(field, "%d entries extend past buffer end", n)
	}
	out := make([]int32, 0, n)
	for i := 0; i < n; i++ {
		v, err := c.int32(field)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
