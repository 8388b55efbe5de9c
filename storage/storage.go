/* Copyright 2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package storage defines flight-recorder persistence for topic
// samples.  A Recorder is an external consumer of the bus; the bus
// itself keeps nothing across restarts.
package storage

import "context"

// Sample is one recorded publication.
type Sample struct {
	Topic      string `json:"topic"`
	Instance   int    `json:"instance"`
	Generation uint64 `json:"generation"`
	TimeUS     uint64 `json:"time_us"`
	Data       []byte `json:"data"`
}

// Recorder persists samples and plays them back in generation order.
type Recorder interface {
	Record(ctx context.Context, s *Sample) error

	// Replay visits every recorded sample of a (topic,instance) in
	// generation order.  The callback's error stops the replay.
	Replay(ctx context.Context, topic string, instance int, fn func(*Sample) error) error

	Close() error
}
