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

package protocol

import (
	"encoding/binary"
	"fmt"
)

type byteReader struct {
	buf []byte
	pos int
}

func newByteReader(b []byte) *byteReader {
	return &byteReader{buf: b}
}

func (r *byteReader) remaining() int {
	return len(r.buf) - r.pos
}

func (r *byteReader) read(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrInvalidLength, n)
	}
	if r.remaining() < n {
		return nil, fmt.Errorf("%w: need %d have %d", ErrBufferUnderflow, n, r.remaining())
	}
	start := r.pos
	r.pos += n
	return r.buf[start:r.pos], nil
}

func (r *byteReader) skip(n int) error {
	_, err := r.read(n)
	return err
}

func (r *byteReader) Int8() (int8, error) {
	b, err := r.read(1)
	if err != nil {
		return 0, err
	}
	return int8(b[0]), nil
}

func (r *byteReader) Uint8() (uint8, error) {
	b, err := r.read(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *byteReader) Int16() (int16, error) {
	b, err := r.read(2)
	if err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(b)), nil
}

func (r *byteReader) Int32() (int32, error) {
	b, err := r.read(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

func (r *byteReader) Int64() (int64, error) {
	b, err := r.read(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

// UUID reads a 16 byte big-endian topic id.
func (r *byteReader) UUID() ([16]byte, error) {
	b, err := r.read(16)
	if err != nil {
		return [16]byte{}, err
	}
	var id [16]byte
	copy(id[:], b)
	return id, nil
}

func (r *byteReader) String() (string, error) {
	l, err := r.Int16()
	if err != nil {
		return "", err
	}
	if l < 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidStringLength, l)
	}
	b, err := r.read(int(l))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *byteReader) NullableString() (*string, error) {
	l, err := r.Int16()
	if err != nil {
		return nil, err
	}
	if l == -1 {
		return nil, nil
	}
	if l < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStringLength, l)
	}
	b, err := r.read(int(l))
	if err != nil {
		return nil, err
	}
	str := string(b)
	return &str, nil
}

// CompactString decodes a compact string. A stored length of zero is the
// compact null and decodes as the empty string.
func (r *byteReader) CompactString() (string, error) {
	length, err := r.compactLength()
	if err != nil {
		return "", err
	}
	if length < 0 {
		return "", nil
	}
	b, err := r.read(length)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *byteReader) CompactNullableString() (*string, error) {
	length, err := r.compactLength()
	if err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, nil
	}
	b, err := r.read(length)
	if err != nil {
		return nil, err
	}
	str := string(b)
	return &str, nil
}

func (r *byteReader) CompactBytes() ([]byte, error) {
	length, err := r.compactLength()
	if err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, nil
	}
	return r.read(length)
}

// UVarint reads an unsigned base-128 varint, least significant group first.
func (r *byteReader) UVarint() (uint64, error) {
	val, n := binary.Uvarint(r.buf[r.pos:])
	if n == 0 {
		return 0, fmt.Errorf("%w: truncated varint", ErrBufferUnderflow)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: varint overflows 64 bits", ErrInvalidLength)
	}
	r.pos += n
	return val, nil
}

// Varint reads a zigzag encoded signed varint.
func (r *byteReader) Varint() (int64, error) {
	val, n := binary.Varint(r.buf[r.pos:])
	if n == 0 {
		return 0, fmt.Errorf("%w: truncated varint", ErrBufferUnderflow)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: varint overflows 64 bits", ErrInvalidLength)
	}
	r.pos += n
	return val, nil
}

// CompactArrayLen returns the element count of a compact array, or -1 for null.
func (r *byteReader) CompactArrayLen() (int32, error) {
	val, err := r.UVarint()
	if err != nil {
		return 0, err
	}
	if val == 0 {
		return -1, nil
	}
	if val-1 > uint64(r.remaining()) {
		return 0, fmt.Errorf("%w: %d elements with %d bytes left", ErrInvalidArrayLength, val-1, r.remaining())
	}
	return int32(val - 1), nil
}

func (r *byteReader) SkipTaggedFields() error {
	count, err := r.UVarint()
	if err != nil {
		return err
	}
	for i := uint64(0); i < count; i++ {
		if _, err := r.UVarint(); err != nil {
			return err
		}
		size, err := r.UVarint()
		if err != nil {
			return err
		}
		if size > uint64(r.remaining()) {
			return fmt.Errorf("%w: tagged field of %d bytes", ErrBufferUnderflow, size)
		}
		if err := r.skip(int(size)); err != nil {
			return err
		}
	}
	return nil
}

func (r *byteReader) compactLength() (int, error) {
	val, err := r.UVarint()
	if err != nil {
		return 0, err
	}
	if val == 0 {
		return -1, nil
	}
	if val-1 > uint64(r.remaining()) {
		return 0, fmt.Errorf("%w: %d bytes with %d left", ErrInvalidStringLength, val-1, r.remaining())
	}
	return int(val - 1), nil
}

// byteWriter appends big-endian fields to a growable buffer. Writers created
// with newFrameWriter reserve the leading 4-byte message size which Frame
// patches once every field has been written.
type byteWriter struct {
	buf    []byte
	framed bool
}

func newByteWriter(capacity int) *byteWriter {
	return &byteWriter{buf: make([]byte, 0, capacity)}
}

func newFrameWriter(capacity int) *byteWriter {
	w := &byteWriter{buf: make([]byte, 0, capacity+4), framed: true}
	w.skip(4)
	return w
}

func (w *byteWriter) write(b []byte) {
	w.buf = append(w.buf, b...)
}

// skip reserves n zero bytes.
func (w *byteWriter) skip(n int) {
	for i := 0; i < n; i++ {
		w.buf = append(w.buf, 0)
	}
}

func (w *byteWriter) Int8(v int8) {
	w.buf = append(w.buf, byte(v))
}

func (w *byteWriter) Uint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *byteWriter) Bool(v bool) {
	if v {
		w.Uint8(1)
	} else {
		w.Uint8(0)
	}
}

func (w *byteWriter) Int16(v int16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(v))
}

func (w *byteWriter) Int32(v int32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v))
}

func (w *byteWriter) Int64(v int64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, uint64(v))
}

func (w *byteWriter) UUID(id [16]byte) {
	w.write(id[:])
}

func (w *byteWriter) String(v string) {
	if len(v) > 0x7fff {
		panic("string too long")
	}
	w.Int16(int16(len(v)))
	w.write([]byte(v))
}

func (w *byteWriter) NullableString(v *string) {
	if v == nil {
		w.Int16(-1)
		return
	}
	w.String(*v)
}

func (w *byteWriter) CompactString(v string) {
	w.compactLength(len(v))
	w.write([]byte(v))
}

func (w *byteWriter) CompactNullableString(v *string) {
	if v == nil {
		w.compactLength(-1)
		return
	}
	w.CompactString(*v)
}

func (w *byteWriter) CompactBytes(b []byte) {
	if b == nil {
		w.compactLength(-1)
		return
	}
	w.compactLength(len(b))
	w.write(b)
}

func (w *byteWriter) BytesWithLength(b []byte) {
	if b == nil {
		w.Int32(-1)
		return
	}
	w.Int32(int32(len(b)))
	w.write(b)
}

func (w *byteWriter) UVarint(v uint64) {
	w.buf = binary.AppendUvarint(w.buf, v)
}

// Varint writes v zigzag encoded.
func (w *byteWriter) Varint(v int64) {
	w.buf = binary.AppendVarint(w.buf, v)
}

func (w *byteWriter) CompactArrayLen(length int) {
	w.compactLength(length)
}

func (w *byteWriter) WriteTaggedFields(count int) {
	w.UVarint(uint64(count))
}

func (w *byteWriter) compactLength(length int) {
	if length < 0 {
		w.UVarint(0)
		return
	}
	w.UVarint(uint64(length) + 1)
}

// Len reports the number of bytes written so far, including a reserved size.
func (w *byteWriter) Len() int {
	return len(w.buf)
}

func (w *byteWriter) Bytes() []byte {
	return w.buf
}

// Frame patches the reserved size with the number of bytes that follow it
// and returns the complete message.
func (w *byteWriter) Frame() []byte {
	if !w.framed {
		panic("Frame called on a writer without a reserved size")
	}
	binary.BigEndian.PutUint32(w.buf[0:4], uint32(len(w.buf)-4))
	return w.buf
}
