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
	"fmt"
	"path"
	"path/filepath"
	"strconv"
)

const (
	// ClusterMetadataTopic is the internal topic holding the KRaft metadata log.
	ClusterMetadataTopic = "__cluster_metadata"
	// DefaultLogDir matches the default log.dirs of a combined KRaft node.
	DefaultLogDir = "/tmp/kraft-combined-logs"

	firstSegmentName = "00000000000000000000.log"
	maxTopicNameLen  = 249
)

// ClusterMetadataSegment is the source key of the metadata log segment.
func ClusterMetadataSegment() string {
	return path.Join(partitionDir(ClusterMetadataTopic, 0), firstSegmentName)
}

// PartitionSegment returns the source key of a partition's first segment.
func PartitionSegment(topic string, partition int32) (string, error) {
	if err := ValidateTopicName(topic); err != nil {
		return "", err
	}
	if partition < 0 {
		return "", fmt.Errorf("%w: partition %d", ErrInvalidPath, partition)
	}
	return path.Join(partitionDir(topic, partition), firstSegmentName), nil
}

func partitionDir(topic string, partition int32) string {
	return topic + "-" + strconv.FormatInt(int64(partition), 10)
}

// ValidateTopicName rejects names that are not legal Kafka topic names. Legal
// names cannot escape the log directory.
func ValidateTopicName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("%w: topic name %q", ErrInvalidPath, name)
	}
	if len(name) > maxTopicNameLen {
		return fmt.Errorf("%w: topic name longer than %d characters", ErrInvalidPath, maxTopicNameLen)
	}
	for i := 0; i < len(name); i++ {
		ch := name[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		case ch == '.', ch == '_', ch == '-':
		default:
			return fmt.Errorf("%w: topic name %q contains %q", ErrInvalidPath, name, ch)
		}
	}
	return nil
}

// PathResolver maps segment keys onto a local log directory.
type PathResolver struct {
	Base string
}

func (r PathResolver) base() string {
	if r.Base == "" {
		return DefaultLogDir
	}
	return r.Base
}

// Resolve joins a slash-separated segment key onto the base directory.
func (r PathResolver) Resolve(key string) string {
	return filepath.Join(r.base(), filepath.FromSlash(key))
}

func (r PathResolver) ClusterMetadataPath() string {
	return r.Resolve(ClusterMetadataSegment())
}

func (r PathResolver) PartitionLogPath(topic string, partition int32) (string, error) {
	key, err := PartitionSegment(topic, partition)
	if err != nil {
		return "", err
	}
	return r.Resolve(key), nil
}
