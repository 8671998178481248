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

import "errors"

// Kafka error codes returned in-band.
const (
	NONE                       int16 = 0
	UNKNOWN_SERVER_ERROR       int16 = -1
	OFFSET_OUT_OF_RANGE        int16 = 1
	CORRUPT_MESSAGE            int16 = 2
	UNKNOWN_TOPIC_OR_PARTITION int16 = 3
	UNSUPPORTED_VERSION        int16 = 35
	INVALID_REQUEST            int16 = 42
	UNKNOWN_TOPIC_ID           int16 = 100
)

// Parse failures. Any of these is fatal to the connection that sent the frame.
var (
	ErrMessageTooShort     = errors.New("message too short")
	ErrBufferUnderflow     = errors.New("buffer underflow")
	ErrInvalidLength       = errors.New("invalid length")
	ErrInvalidArrayLength  = errors.New("invalid array length")
	ErrInvalidStringLength = errors.New("invalid string length")
	ErrUnknownAPIKey       = errors.New("unknown api key")
)
