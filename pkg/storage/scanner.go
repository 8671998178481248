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

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// maxBatchSize bounds a single batch read from a segment.
const maxBatchSize = 64 << 20

// BatchScanner splits a segment stream into raw record batches without
// decoding them.
type BatchScanner struct {
	r      *bufio.Reader
	offset int64
	err    error
}

func NewBatchScanner(r io.Reader) *BatchScanner {
	return &BatchScanner{r: bufio.NewReaderSize(r, 64<<10)}
}

// Next returns the next complete batch. It returns io.EOF at a clean batch
// boundary and ErrTruncatedBatch when the stream ends inside a batch.
func (s *BatchScanner) Next() (RecordBatchBytes, error) {
	if s.err != nil {
		return nil, s.err
	}
	prefix, err := s.r.Peek(batchPrefixSize)
	if err != nil {
		if errors.Is(err, io.EOF) {
			if len(prefix) == 0 {
				return nil, s.fail(io.EOF)
			}
			return nil, s.fail(fmt.Errorf("%w: %d byte prefix at offset %d", ErrTruncatedBatch, len(prefix), s.offset))
		}
		return nil, s.fail(err)
	}
	batchLen := int32(binary.BigEndian.Uint32(prefix[8:12]))
	if batchLen < recordBatchHeaderMinSize-batchPrefixSize || batchLen > maxBatchSize {
		return nil, s.fail(decodeErrorf("batch_length", "%d at offset %d", batchLen, s.offset))
	}
	batch := make([]byte, batchPrefixSize+int(batchLen))
	if n, err := io.ReadFull(s.r, batch); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, s.fail(fmt.Errorf("%w: have %d of %d bytes at offset %d", ErrTruncatedBatch, n, len(batch), s.offset))
		}
		return nil, s.fail(err)
	}
	s.offset += int64(len(batch))
	return batch, nil
}

// batchOffsetsSize covers the batch header through the last offset delta.
const batchOffsetsSize = 27

// Skip advances past the next batch and returns its base and last offsets
// without copying it. Errors match Next.
func (s *BatchScanner) Skip() (int64, int64, error) {
	if s.err != nil {
		return 0, 0, s.err
	}
	head, err := s.r.Peek(batchOffsetsSize)
	if err != nil {
		if errors.Is(err, io.EOF) {
			if len(head) == 0 {
				return 0, 0, s.fail(io.EOF)
			}
			return 0, 0, s.fail(fmt.Errorf("%w: %d byte header at offset %d", ErrTruncatedBatch, len(head), s.offset))
		}
		return 0, 0, s.fail(err)
	}
	batchLen := int32(binary.BigEndian.Uint32(head[8:12]))
	if batchLen < recordBatchHeaderMinSize-batchPrefixSize || batchLen > maxBatchSize {
		return 0, 0, s.fail(decodeErrorf("batch_length", "%d at offset %d", batchLen, s.offset))
	}
	base := int64(binary.BigEndian.Uint64(head[0:8]))
	last := base + int64(int32(binary.BigEndian.Uint32(head[23:27])))
	size := batchPrefixSize + int(batchLen)
	if n, err := s.r.Discard(size); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, 0, s.fail(fmt.Errorf("%w: have %d of %d bytes at offset %d", ErrTruncatedBatch, n, size, s.offset))
		}
		return 0, 0, s.fail(err)
	}
	s.offset += int64(size)
	return base, last, nil
}

// Offset is the file position of the next batch.
func (s *BatchScanner) Offset() int64 {
	return s.offset
}

func (s *BatchScanner) fail(err error) error {
	s.err = err
	return err
}

// ScanAll reads every complete batch. A truncated tail is dropped and reported
// alongside the batches that preceded it.
func (s *BatchScanner) ScanAll() ([]RecordBatchBytes, error) {
	var out []RecordBatchBytes
	for {
		batch, err := s.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, batch)
	}
}
