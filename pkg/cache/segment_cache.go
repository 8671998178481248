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

package cache

import (
	"container/list"
	"sync"
)

// SegmentCache is a byte-bounded LRU of whole segment objects. Each entry
// carries the version tag it was fetched with so a reader can revalidate it
// against the store before use.
type SegmentCache struct {
	mu       sync.Mutex
	capacity int
	size     int
	ll       *list.List
	items    map[string]*list.Element
}

// Entry is one cached segment.
type Entry struct {
	Key  string
	ETag string
	Data []byte
}

// NewSegmentCache creates a cache holding at most capacityBytes of data.
func NewSegmentCache(capacityBytes int) *SegmentCache {
	if capacityBytes <= 0 {
		capacityBytes = 1
	}
	return &SegmentCache{
		capacity: capacityBytes,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
}

// Get returns the entry for key and marks it recently used. Data must not
// be modified by the caller.
func (c *SegmentCache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[key]
	if !ok {
		return Entry{}, false
	}
	c.ll.MoveToFront(elem)
	return *elem.Value.(*Entry), true
}

// Put stores data under key, replacing any older version. Objects larger than
// the whole cache are not kept.
func (c *SegmentCache) Put(key, etag string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(key)
	if len(data) > c.capacity {
		return
	}
	entry := &Entry{Key: key, ETag: etag, Data: append([]byte(nil), data...)}
	c.items[key] = c.ll.PushFront(entry)
	c.size += len(entry.Data)
	for c.size > c.capacity && c.ll.Len() > 0 {
		c.removeLocked(c.ll.Back().Value.(*Entry).Key)
	}
}

// Remove drops key if present.
func (c *SegmentCache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(key)
}

func (c *SegmentCache) removeLocked(key string) {
	elem, ok := c.items[key]
	if !ok {
		return
	}
	c.size -= len(elem.Value.(*Entry).Data)
	c.ll.Remove(elem)
	delete(c.items, key)
}

// Size is the number of cached bytes.
func (c *SegmentCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}
