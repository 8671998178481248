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
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SegmentSource opens segment files by slash-separated key, for example
// "__cluster_metadata-0/00000000000000000000.log". Missing segments return an
// error matching ErrSegmentNotFound.
type SegmentSource interface {
	OpenSegment(ctx context.Context, key string) (io.ReadCloser, error)
}

// SegmentWriter stores whole segment files. Only the seeding tool writes.
type SegmentWriter interface {
	WriteSegment(ctx context.Context, key string, body []byte) error
}

// SegmentLister enumerates stored segments under a key prefix.
type SegmentLister interface {
	ListSegments(ctx context.Context, prefix string) ([]SegmentObject, error)
}

// SegmentStore is a source that can also be written and listed. Every
// source in this package implements it.
type SegmentStore interface {
	SegmentSource
	SegmentWriter
	SegmentLister
}

// SegmentObject describes one stored segment.
type SegmentObject struct {
	Key  string `yaml:"key"`
	Size int64  `yaml:"size"`
}

// FileSource reads segments from a local log directory.
type FileSource struct {
	Resolver PathResolver
}

func NewFileSource(base string) *FileSource {
	return &FileSource{Resolver: PathResolver{Base: base}}
}

func (s *FileSource) OpenSegment(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Resolver.Resolve(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSegmentNotFound, key)
		}
		return nil, fmt.Errorf("open segment %s: %w", key, err)
	}
	return f, nil
}

func (s *FileSource) WriteSegment(ctx context.Context, key string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := s.Resolver.Resolve(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create segment dir: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("write segment %s: %w", key, err)
	}
	return nil
}

func (s *FileSource) ListSegments(ctx context.Context, prefix string) ([]SegmentObject, error) {
	base := s.Resolver.base()
	out := make([]SegmentObject, 0)
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == base {
				return fs.SkipAll
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".log") {
			return nil
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, SegmentObject{Key: key, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list segments in %s: %w", base, err)
	}
	sortSegments(out)
	return out, nil
}

func sortSegments(objs []SegmentObject) {
	sort.Slice(objs, func(i, j int) bool { return objs[i].Key < objs[j].Key })
}
