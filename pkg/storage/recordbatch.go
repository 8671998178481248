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
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

const (
	// batchPrefixSize covers base offset and batch length; batch length counts
	// the bytes after it.
	batchPrefixSize          = 12
	recordBatchHeaderMinSize = 61
	batchCRCOffset           = 17
	batchAttributesOffset    = 21
	recordBatchMagic         = 2

	attrCompressionMask = 0x07
	attrTransactional   = 0x10
	attrControl         = 0x20
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// BatchHeader is the fixed 61-byte prefix of a v2 record batch.
type BatchHeader struct {
	BaseOffset           int64
	BatchLength          int32
	PartitionLeaderEpoch int32
	Magic                int8
	CRC                  uint32
	Attributes           int16
	LastOffsetDelta      int32
	BaseTimestamp        int64
	MaxTimestamp         int64
	ProducerID           int64
	ProducerEpoch        int16
	BaseSequence         int32
	RecordsCount         int32
}

// Size is the number of bytes the batch occupies on disk.
func (h BatchHeader) Size() int {
	return batchPrefixSize + int(h.BatchLength)
}

// LastOffset is the offset of the final record in the batch.
func (h BatchHeader) LastOffset() int64 {
	return h.BaseOffset + int64(h.LastOffsetDelta)
}

func (h BatchHeader) Compression() int {
	return int(h.Attributes & attrCompressionMask)
}

func (h BatchHeader) IsControl() bool {
	return h.Attributes&attrControl != 0
}

func (h BatchHeader) IsTransactional() bool {
	return h.Attributes&attrTransactional != 0
}

// RecordHeader is a single record header entry.
type RecordHeader struct {
	Key   string
	Value []byte
}

// Record is one decoded record. A nil Key or Value means the field was absent.
type Record struct {
	Attributes     int8
	TimestampDelta int64
	OffsetDelta    int32
	Key            []byte
	Value          []byte
	Headers        []RecordHeader
}

// RecordBatch is a fully decoded v2 record batch.
type RecordBatch struct {
	BatchHeader
	Records []Record
}

// ReadBatchHeader decodes the fixed header of the batch that starts data.
func ReadBatchHeader(data []byte) (BatchHeader, error) {
	c := newCursor(data)
	var h BatchHeader
	var err error
	if h.BaseOffset, err = c.int64("base_offset"); err != nil {
		return h, err
	}
	if h.BatchLength, err = c.int32("batch_length"); err != nil {
		return h, err
	}
	if h.BatchLength < recordBatchHeaderMinSize-batchPrefixSize {
		return h, decodeErrorf("batch_length", "%d is smaller than the batch header", h.BatchLength)
	}
	if h.PartitionLeaderEpoch, err = c.int32("partition_leader_epoch"); err != nil {
		return h, err
	}
	if h.Magic, err = c.int8("magic"); err != nil {
		return h, err
	}
	if h.Magic != recordBatchMagic {
		return h, decodeErrorf("magic", "unsupported magic %d", h.Magic)
	}
	if h.CRC, err = c.uint32("crc"); err != nil {
		return h, err
	}
	if h.Attributes, err = c.int16("attributes"); err != nil {
		return h, err
	}
	if h.LastOffsetDelta, err = c.int32("last_offset_delta"); err != nil {
		return h, err
	}
	if h.BaseTimestamp, err = c.int64("base_timestamp"); err != nil {
		return h, err
	}
	if h.MaxTimestamp, err = c.int64("max_timestamp"); err != nil {
		return h, err
	}
	if h.ProducerID, err = c.int64("producer_id"); err != nil {
		return h, err
	}
	if h.ProducerEpoch, err = c.int16("producer_epoch"); err != nil {
		return h, err
	}
	if h.BaseSequence, err = c.int32("base_sequence"); err != nil {
		return h, err
	}
	if h.RecordsCount, err = c.int32("records_count"); err != nil {
		return h, err
	}
	return h, nil
}

// VerifyBatchCRC checks the CRC-32C stored in the batch against the bytes
// from attributes through the end of the batch.
func VerifyBatchCRC(data RecordBatchBytes) error {
	if len(data) < recordBatchHeaderMinSize {
		return fmt.Errorf("%w: %d bytes", ErrTruncatedBatch, len(data))
	}
	size := batchPrefixSize + int(int32(binary.BigEndian.Uint32(data[8:12])))
	if size < recordBatchHeaderMinSize || size > len(data) {
		return fmt.Errorf("%w: batch of %d bytes in %d", ErrTruncatedBatch, size, len(data))
	}
	stored := binary.BigEndian.Uint32(data[batchCRCOffset : batchCRCOffset+4])
	computed := crc32.Checksum(data[batchAttributesOffset:size], crcTable)
	if stored != computed {
		return fmt.Errorf("%w: crc %08x, computed %08x", ErrCorruptBatch, stored, computed)
	}
	return nil
}

// DecodeRecordBatch decodes the header and every record of one batch.
// Compressed batches are decompressed first when the codec is supported.
func DecodeRecordBatch(data RecordBatchBytes) (*RecordBatch, error) {
	h, err := ReadBatchHeader(data)
	if err != nil {
		return nil, err
	}
	if h.Size() > len(data) {
		return nil, fmt.Errorf("%w: need %d bytes have %d", ErrTruncatedBatch, h.Size(), len(data))
	}
	if h.RecordsCount < 0 {
		return nil, decodeErrorf("records_count", "negative count %d", h.RecordsCount)
	}
	payload := data[recordBatchHeaderMinSize:h.Size()]
	if codec := h.Compression(); codec != compressionNone {
		if payload, err = decompress(codec, payload); err != nil {
			return nil, err
		}
	}
	// Every record needs at least seven bytes.
	if int(h.RecordsCount) > len(payload) {
		return nil, decodeErrorf("records_count", "%d records in %d bytes", h.RecordsCount, len(payload))
	}
	c := newCursor(payload)
	batch := &RecordBatch{BatchHeader: h, Records: make([]Record, 0, h.RecordsCount)}
	for i := int32(0); i < h.RecordsCount; i++ {
		rec, err := decodeRecord(c)
		if err != nil {
			return nil, err
		}
		batch.Records = append(batch.Records, rec)
	}
	return batch, nil
}

func decodeRecord(c *cursor) (Record, error) {
	var rec Record
	length, err := c.varint("record.length")
	if err != nil {
		return rec, err
	}
	if length <= 0 || length > int64(c.remaining()) {
		return rec, decodeErrorf("record.length", "%d with %d bytes left", length, c.remaining())
	}
	body, _ := c.take(int(length), "record")
	rc := newCursor(body)
	if rec.Attributes, err = rc.int8("record.attributes"); err != nil {
		return rec, err
	}
	if rec.TimestampDelta, err = rc.varint("record.timestamp_delta"); err != nil {
		return rec, err
	}
	offsetDelta, err := rc.varint("record.offset_delta")
	if err != nil {
		return rec, err
	}
	rec.OffsetDelta = int32(offsetDelta)
	if rec.Key, err = readVarBytes(rc, "record.key"); err != nil {
		return rec, err
	}
	if rec.Value, err = readVarBytes(rc, "record.value"); err != nil {
		return rec, err
	}
	headerCount, err := rc.varint("record.headers")
	if err != nil {
		return rec, err
	}
	if headerCount < 0 || headerCount > int64(rc.remaining()) {
		return rec, decodeErrorf("record.headers", "invalid count %d", headerCount)
	}
	for i := int64(0); i < headerCount; i++ {
		key, err := readVarBytes(rc, "record.header.key")
		if err != nil {
			return rec, err
		}
		value, err := readVarBytes(rc, "record.header.value")
		if err != nil {
			return rec, err
		}
		rec.Headers = append(rec.Headers, RecordHeader{Key: string(key), Value: value})
	}
	return rec, nil
}

// readVarBytes reads a zigzag length followed by that many bytes. A negative
// length is an absent field.
func readVarBytes(c *cursor, field string) ([]byte, error) {
	n, err := c.varint(field)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, nil
	}
	if n > int64(c.remaining()) {
		return nil, decodeErrorf(field, "length %d extends past buffer end", n)
	}
	return c.take(int(n), field)
}

// EncodeRecordBatch serializes a v2 batch, compressing the records with the
// codec named in Attributes. Batch length, records count, last offset delta
// and CRC are computed from the records.
func EncodeRecordBatch(batch RecordBatch) (RecordBatchBytes, error) {
	var body []byte
	for _, rec := range batch.Records {
		body = appendRecord(body, rec)
	}
	body, err := compress(int(batch.Attributes&attrCompressionMask), body)
	if err != nil {
		return nil, err
	}
	out := make([]byte, recordBatchHeaderMinSize, recordBatchHeaderMinSize+len(body))
	lastOffsetDelta := batch.LastOffsetDelta
	if n := len(batch.Records); n > 0 {
		lastOffsetDelta = batch.Records[n-1].OffsetDelta
	}
	binary.BigEndian.PutUint64(out[0:8], uint64(batch.BaseOffset))
	binary.BigEndian.PutUint32(out[8:12], uint32(recordBatchHeaderMinSize-batchPrefixSize+len(body)))
	binary.BigEndian.PutUint32(out[12:16], uint32(batch.PartitionLeaderEpoch))
	out[16] = recordBatchMagic
	binary.BigEndian.PutUint16(out[21:23], uint16(batch.Attributes))
	binary.BigEndian.PutUint32(out[23:27], uint32(lastOffsetDelta))
	binary.BigEndian.PutUint64(out[27:35], uint64(batch.BaseTimestamp))
	binary.BigEndian.PutUint64(out[35:43], uint64(batch.MaxTimestamp))
	binary.BigEndian.PutUint64(out[43:51], uint64(batch.ProducerID))
	binary.BigEndian.PutUint16(out[51:53], uint16(batch.ProducerEpoch))
	binary.BigEndian.PutUint32(out[53:57], uint32(batch.BaseSequence))
	binary.BigEndian.PutUint32(out[57:61], uint32(len(batch.Records)))
	out = append(out, body...)
	crc := crc32.Checksum(out[batchAttributesOffset:], crcTable)
	binary.BigEndian.PutUint32(out[batchCRCOffset:batchCRCOffset+4], crc)
	return out, nil
}

func appendRecord(dst []byte, rec Record) []byte {
	var body []byte
	body = append(body, byte(rec.Attributes))
	body = binary.AppendVarint(body, rec.TimestampDelta)
	body = binary.AppendVarint(body, int64(rec.OffsetDelta))
	body = appendVarBytes(body, rec.Key)
	body = appendVarBytes(body, rec.Value)
	body = binary.AppendVarint(body, int64(len(rec.Headers)))
	for _, h := range rec.Headers {
		body = appendVarBytes(body, []byte(h.Key))
		body = appendVarBytes(body, h.Value)
	}
	dst = binary.AppendVarint(dst, int64(len(body)))
	return append(dst, body...)
}

func appendVarBytes(dst, b []byte) []byte {
	if b == nil {
		return binary.AppendVarint(dst, -1)
	}
	dst = binary.AppendVarint(dst, int64(len(b)))
	return append(dst, b...)
}

// CountRecordBatchMessages sums the record counts encoded in a record set.
// A trailing partial batch is ignored.
func CountRecordBatchMessages(recordSet []byte) int {
	total := 0
	offset := 0
	for offset+recordBatchHeaderMinSize <= len(recordSet) {
		batchLen := int(int32(binary.BigEndian.Uint32(recordSet[offset+8 : offset+12])))
		frameLen := batchPrefixSize + batchLen
		if batchLen <= 0 || offset+frameLen > len(recordSet) {
			break
		}
		total += int(binary.BigEndian.Uint32(recordSet[offset+57 : offset+61]))
		offset += frameLen
	}
	return total
}
