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
	"errors"
	"fmt"
)

var (
	// ErrDecode matches every *DecodeError.
	ErrDecode = errors.New("decode error")
	// ErrTruncatedBatch reports a segment that ends inside a record batch.
	ErrTruncatedBatch = errors.New("truncated record batch")
	// ErrCorruptBatch reports a record batch whose CRC does not match its contents.
	ErrCorruptBatch = errors.New("corrupt record batch")
	// ErrSegmentNotFound is returned by segment sources for missing segments.
	ErrSegmentNotFound = errors.New("segment not found")
	// ErrInvalidPath reports a topic name that cannot be mapped to a segment.
	ErrInvalidPath = errors.New("invalid path")
)

// DecodeError identifies the field that could not be decoded from on-disk bytes.
type DecodeError struct {
	Field  string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %s", e.Field, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return ErrDecode
}

func decodeErrorf(field, format string, args ...any) error {
	return &DecodeError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
