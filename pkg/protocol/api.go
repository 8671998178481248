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

// API keys handled by the broker.
const (
	APIKeyFetch                   int16 = 1
	APIKeyApiVersion              int16 = 18
	APIKeyDescribeTopicPartitions int16 = 75
)

// ApiVersion describes the supported version range for an API.
type ApiVersion struct {
	APIKey     int16
	MinVersion int16
	MaxVersion int16
}

// Supported version ranges.
const (
	ApiVersionsMinVersion int16 = 0
	ApiVersionsMaxVersion int16 = 4

	DescribeTopicPartitionsMinVersion int16 = 0
	DescribeTopicPartitionsMaxVersion int16 = 0

	FetchMinVersion int16 = 4
	FetchMaxVersion int16 = 16
)

// SupportedAPIs lists every API advertised in ApiVersions responses.
func SupportedAPIs() []ApiVersion {
	return []ApiVersion{
		{APIKey: APIKeyApiVersion, MinVersion: ApiVersionsMinVersion, MaxVersion: ApiVersionsMaxVersion},
		{APIKey: APIKeyDescribeTopicPartitions, MinVersion: DescribeTopicPartitionsMinVersion, MaxVersion: DescribeTopicPartitionsMaxVersion},
		{APIKey: APIKeyFetch, MinVersion: FetchMinVersion, MaxVersion: FetchMaxVersion},
	}
}

// IsVersionSupported reports whether version falls inside the advertised range for apiKey.
func IsVersionSupported(apiKey, version int16) bool {
	for _, v := range SupportedAPIs() {
		if v.APIKey == apiKey {
			return version >= v.MinVersion && version <= v.MaxVersion
		}
	}
	return false
}
