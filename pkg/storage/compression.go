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
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

const (
	compressionNone   = 0
	compressionGzip   = 1
	compressionSnappy = 2
	compressionLZ4    = 3
	compressionZstd   = 4
)

// ParseCodec maps a codec name to its batch attribute bits.
func ParseCodec(name string) (int16, error) {
	switch name {
	case "", "none":
		return compressionNone, nil
	case "gzip":
		return compressionGzip, nil
	case "snappy":
		return compressionSnappy, nil
	case "lz4":
		return compressionLZ4, nil
	case "zstd":
		return compressionZstd, nil
	default:
		return 0, fmt.Errorf("unsupported compression codec %q", name)
	}
}

// maxDecompressedBatch bounds the size a single compressed batch may expand to.
const maxDecompressedBatch = 64 << 20

var xerialHeader = []byte{0x82, 'S', 'N', 'A', 'P', 'P', 'Y', 0}

var zstdDecoder *zstd.Decoder

func init() {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0), zstd.WithDecoderMaxMemory(maxDecompressedBatch))
	if err != nil {
		panic(fmt.Sprintf("storage: create zstd decoder: %v", err))
	}
	zstdDecoder = dec
}

// readLimited drains a decompressing reader, failing once it expands past
// maxDecompressedBatch.
func readLimited(r io.Reader, field string) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, maxDecompressedBatch+1))
	if err != nil {
		return nil, decodeErrorf(field, "%v", err)
	}
	if len(out) > maxDecompressedBatch {
		return nil, decodeErrorf(field, "expands past %d bytes", maxDecompressedBatch)
	}
	return out, nil
}

func decompress(codec int, payload []byte) ([]byte, error) {
	switch codec {
	case compressionGzip:
		zr, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, decodeErrorf("records.gzip", "%v", err)
		}
		defer zr.Close()
		return readLimited(zr, "records.gzip")
	case compressionSnappy:
		return decodeSnappy(payload)
	case compressionZstd:
		out, err := zstdDecoder.DecodeAll(payload, nil)
		if err != nil {
			return nil, decodeErrorf("records.zstd", "%v", err)
		}
		return out, nil
	case compressionLZ4:
		// Kafka batches carry LZ4 frames.
		return readLimited(lz4.NewReader(bytes.NewReader(payload)), "records.lz4")
	default:
		return nil, decodeErrorf("attributes", "unknown compression codec %d", codec)
	}
}

// decodeSnappy accepts both raw snappy blocks and the xerial framing the JVM
// producer writes.
func decodeSnappy(payload []byte) ([]byte, error) {
	if !bytes.HasPrefix(payload, xerialHeader) {
		return decodeSnappyBlock(payload)
	}
	// header, version, compatible version
	c := newCursor(payload[len(xerialHeader):])
	if _, err := c.take(8, "records.snappy.version"); err != nil {
		return nil, err
	}
	var out []byte
	for c.remaining() > 0 {
		n, err := c.int32("records.snappy.chunk_length")
		if err != nil {
			return nil, err
		}
		if n < 0 || int(n) > c.remaining() {
			return nil, decodeErrorf("records.snappy.chunk_length", "%d with %d bytes left", n, c.remaining())
		}
		chunk, _ := c.take(int(n), "records.snappy.chunk")
		block, err := decodeSnappyBlock(chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, block...)
		if len(out) > maxDecompressedBatch {
			return nil, decodeErrorf("records.snappy", "expands past %d bytes", maxDecompressedBatch)
		}
	}
	return out, nil
}

func decodeSnappyBlock(block []byte) ([]byte, error) {
	n, err := snappy.DecodedLen(block)
	if err != nil {
		return nil, decodeErrorf("records.snappy", "%v", err)
	}
	if n > maxDecompressedBatch {
		return nil, decodeErrorf("records.snappy", "expands to %d bytes", n)
	}
	// s2 decodes every snappy block.
	out, err := s2.Decode(nil, block)
	if err != nil {
		return nil, decodeErrorf("records.snappy", "%v", err)
	}
	return out, nil
}

// compress is the inverse of decompress for the codecs the seeding tool writes.
func compress(codec int, raw []byte) ([]byte, error) {
	switch codec {
	case compressionNone:
		return raw, nil
	case compressionGzip:
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(raw); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case compressionSnappy:
		return snappy.Encode(nil, raw), nil
	case compressionLZ4:
		var buf bytes.Buffer
		zw := lz4.NewWriter(&buf)
		if _, err := zw.Write(raw); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case compressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(raw, nil), nil
	default:
		return nil, decodeErrorf("attributes", "cannot encode compression codec %d", codec)
	}
}
