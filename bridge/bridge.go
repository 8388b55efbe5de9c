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

// Package bridge defines the contract between the bus and a remote
// transport.  A Channel carries advertises and samples outward; a
// Handler receives what arrives from other hosts.  Concrete
// transports live in the subpackages mqttchan and wschan.
package bridge

import "context"

// Handler is what a channel calls when traffic arrives from the
// remote side.  The bus implements it.
type Handler interface {
	// RemoteTopic records that a topic was advertised (or
	// unadvertised) somewhere else.
	RemoteTopic(name string, advertise bool)

	// AddSubscription notes that a remote host wants this topic's
	// samples, at most rateHz per second (0 means unthrottled).
	AddSubscription(name string, rateHz int)

	// RemoveSubscription is the inverse of AddSubscription.
	RemoveSubscription(name string)

	// ReceivedSample injects a sample published on another host.
	ReceivedSample(name string, payload []byte) error
}

// Channel is one remote transport.  Start begins delivery to the
// handler and returns once the channel is live; Stop tears it down.
type Channel interface {
	Start(ctx context.Context, h Handler) error

	// SendAdvertise announces a local advertise (or, with advertise
	// false, an unadvertise) to the remote side.
	SendAdvertise(name string, priority int, advertise bool) error

	// SendSubscription asks the remote side to forward a topic's
	// samples here (or to stop, with subscribe false).
	SendSubscription(name string, rateHz int, subscribe bool) error

	// SendSample forwards one locally published sample.
	SendSample(name string, instance int, data []byte) error

	Stop() error
}
