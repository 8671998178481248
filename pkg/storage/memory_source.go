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
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// MemorySource keeps segments in memory for tests and local development.
type MemorySource struct {
	mu       sync.Mutex
	segments map[string][]byte
}

func NewMemorySource() *MemorySource {
	return &MemorySource{segments: make(map[string][]byte)}
}

func (m *MemorySource) OpenSegment(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.segments[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSegmentNotFound, key)
	}
	return io.NopCloser(bytes.NewReader(append([]byte(nil), data...))), nil
}

func (m *MemorySource) WriteSegment(ctx context.Context, key string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.segments[key] = append([]byte(nil), body...)
	return nil
}

// AppendSegment adds bytes to the end of a segment, creating it if needed.
func (m *MemorySource) AppendSegment(key string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.segments[key] = append(m.segments[key], body...)
}

func (m *MemorySource) ListSegments(ctx context.Context, prefix string) ([]SegmentObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SegmentObject, 0, len(m.segments))
	for key, data := range m.segments {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		out = append(out, SegmentObject{Key: key, Size: int64(len(data))})
	}
	sortSegments(out)
	return out, nil
}
