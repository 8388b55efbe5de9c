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

// Package bus is the user-facing facade: advertise, subscribe,
// publish, copy, and the handle-level queries, with publisher-rules
// enforcement and optional remote-bridge integration.
//
// A process builds one Bus at startup and threads it through its
// publishers and subscribers.
package bus

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/Comcast/orb/bridge"
	"github.com/Comcast/orb/core"
	"github.com/Comcast/orb/device"
	"github.com/Comcast/orb/rules"
	"github.com/Comcast/orb/util"
)

// Bus converts advertise/subscribe/publish calls into node
// operations.  The zero value is not usable; call New.
type Bus struct {
	module string
	policy *rules.Policy

	shim   *device.Shim
	master *device.Master

	mu           sync.Mutex
	channel      bridge.Channel
	remoteTopics map[string]bool

	// sentinel is handed out when the rules deny an advertise.
	// Publishing on it silently succeeds.
	sentinel *core.Advertiser
}

// New builds a bus for a program.  The module name is what the
// publisher rules match against; policy may be nil (allow
// everything), and clk may be nil (wall clock).
func New(module string, policy *rules.Policy, clk clock.Clock) *Bus {
	if clk == nil {
		clk = clock.New()
	}
	b := &Bus{
		module:       module,
		policy:       policy,
		master:       device.NewMaster(clk),
		remoteTopics: make(map[string]bool),
		sentinel:     new(core.Advertiser),
	}
	b.master.OnCreate = func(n *core.Node) {
		n.SetUplink(b.sendSample)
	}
	b.shim = device.NewShim(b.master)
	return b
}

// Shim exposes the file-like surface for callers that want to drive
// handles directly.
func (b *Bus) Shim() *device.Shim { return b.shim }

// Advertise claims the single-instance slot of a topic and publishes
// the initial sample.  A second advertiser succeeds and shares the
// node.
func (b *Bus) Advertise(meta *core.Meta, initial []byte, priority int) (*core.Advertiser, error) {
	return b.AdvertiseMulti(meta, initial, nil, priority, 0)
}

// AdvertiseMulti claims an instance of a topic.  With instance
// non-nil, the first free instance is chosen and written back.  The
// initial sample is required and published before return.
func (b *Bus) AdvertiseMulti(meta *core.Meta, initial []byte, instance *int, priority, queueSize int) (*core.Advertiser, error) {
	if meta == nil {
		return nil, core.Invalid
	}
	if !b.policy.Allows(b.module, meta.Name) {
		util.Logf("bus.AdvertiseMulti %s denied by rules for %s", meta.Name, b.module)
		return b.sentinel, nil
	}
	if initial == nil {
		return nil, core.Invalid
	}

	h, err := b.shim.Open(device.MasterPath, false)
	if err != nil {
		return nil, err
	}
	ad := &device.Advertisement{Meta: meta, Instance: instance, Priority: priority}
	err = b.shim.Control(h, device.IoctlAdvertise, ad)
	b.shim.Close(h)
	if err != nil && err != core.Exists {
		return nil, err
	}

	inst := 0
	if instance != nil {
		inst = *instance
	}

	nh, err := b.shim.Open(device.NodePath(meta.Name, inst), true)
	if err != nil {
		return nil, err
	}
	if queueSize > 1 {
		if err := b.shim.Control(nh, device.IoctlSetQueueSize, queueSize); err != nil {
			// Legacy behavior: the node keeps its old depth.
			util.Logf("bus.AdvertiseMulti %s: set queue size %d: %v", meta.Name, queueSize, err)
		}
	}
	var adv *core.Advertiser
	err = b.shim.Control(nh, device.IoctlGetAdvertiser, &adv)
	b.shim.Close(nh)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	ch := b.channel
	b.mu.Unlock()
	if ch != nil {
		if err := ch.SendAdvertise(meta.Name, priority, true); err != nil {
			util.Logf("bus.AdvertiseMulti %s: send advertise: %v", meta.Name, err)
		}
	}

	if err := adv.Publish(initial); err != nil {
		return nil, err
	}
	return adv, nil
}

// Unadvertise releases the advertiser slot.  On a rule-denied
// sentinel it is a no-op.
func (b *Bus) Unadvertise(adv *core.Advertiser) error {
	if adv == nil {
		return core.Invalid
	}
	if adv == b.sentinel || adv.Node() == nil {
		return nil
	}
	adv.Node().Unadvertise()

	b.mu.Lock()
	ch := b.channel
	b.mu.Unlock()
	if ch != nil {
		name := adv.Node().Meta().Name
		if err := ch.SendAdvertise(name, adv.Node().Priority(), false); err != nil {
			util.Logf("bus.Unadvertise %s: %v", name, err)
		}
	}
	return nil
}

// Publish writes one sample through an advertiser handle.  The
// rule-denied sentinel accepts and drops anything.
func (b *Bus) Publish(adv *core.Advertiser, data []byte) error {
	if adv == nil {
		return core.Invalid
	}
	return adv.Publish(data)
}

// Subscribe opens a read handle on instance 0 of a topic, creating
// the node if the publisher has not arrived yet.
func (b *Bus) Subscribe(meta *core.Meta) (int, error) {
	return b.SubscribeMulti(meta, 0)
}

// SubscribeMulti opens a read handle on a specific instance.
func (b *Bus) SubscribeMulti(meta *core.Meta, instance int) (int, error) {
	if _, err := b.master.Ensure(meta, instance); err != nil {
		return 0, err
	}
	return b.shim.Open(device.NodePath(meta.Name, instance), false)
}

// Unsubscribe closes a subscriber handle.
func (b *Bus) Unsubscribe(h int) error {
	return b.shim.Close(h)
}

// Copy reads the oldest unseen sample into buf, which must be
// exactly meta.Size bytes.  A short read surfaces as ShortIO.
func (b *Bus) Copy(meta *core.Meta, h int, buf []byte) error {
	n, err := b.shim.Read(h, buf)
	if err != nil {
		return err
	}
	if n != meta.Size {
		return core.ShortIO
	}
	return nil
}

// Check reports whether a handle has unseen data, without consuming
// it.
func (b *Bus) Check(h int) (bool, error) {
	var updated bool
	err := b.shim.Control(h, device.IoctlUpdated, &updated)
	return updated, err
}

// Stat returns the time of the latest publish in microseconds, zero
// when nothing was published.
func (b *Bus) Stat(h int) (uint64, error) {
	var us uint64
	err := b.shim.Control(h, device.IoctlLastUpdate, &us)
	return us, err
}

// Priority returns the priority fixed by the first advertiser.
func (b *Bus) Priority(h int) (int, error) {
	var prio int
	err := b.shim.Control(h, device.IoctlGetPriority, &prio)
	return prio, err
}

// SetInterval throttles a handle to at most one sample per the given
// number of milliseconds.
func (b *Bus) SetInterval(h int, ms int) error {
	if ms < 0 {
		return core.Invalid
	}
	return b.shim.Control(h, device.IoctlSetInterval, uint32(ms)*1000)
}

// GetInterval returns the handle's throttle in milliseconds.
func (b *Bus) GetInterval(h int) (int, error) {
	var us uint32
	if err := b.shim.Control(h, device.IoctlGetInterval, &us); err != nil {
		return 0, err
	}
	return int(us / 1000), nil
}

// Poll registers or removes a waiter on a subscriber handle.  The
// caller blocks on the waiter's channel.
func (b *Bus) Poll(h int, w *core.Waiter, setup bool) error {
	return b.shim.Poll(h, w, setup)
}

// Exists reports whether an instance of a topic is advertised and
// published.  For instance 0 a topic known only from remote
// advertises counts, but only when there is no local node.
func (b *Bus) Exists(meta *core.Meta, instance int) bool {
	if meta == nil {
		return false
	}
	if _, have := b.master.Node(meta.Name, instance); have {
		return b.master.Exists(meta.Name, instance)
	}
	if instance != 0 {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remoteTopics[meta.Name]
}

// AttachChannel starts a remote transport and begins forwarding
// local advertises and publishes through it.
func (b *Bus) AttachChannel(ctx context.Context, ch bridge.Channel) error {
	if err := ch.Start(ctx, b); err != nil {
		return err
	}
	b.mu.Lock()
	b.channel = ch
	b.mu.Unlock()
	return nil
}

// DetachChannel stops the transport, if any.
func (b *Bus) DetachChannel() error {
	b.mu.Lock()
	ch := b.channel
	b.channel = nil
	b.mu.Unlock()
	if ch == nil {
		return nil
	}
	return ch.Stop()
}

// SubscribeRemote subscribes locally and asks remote peers to start
// forwarding the topic.  Without an attached channel it is just
// Subscribe.
func (b *Bus) SubscribeRemote(meta *core.Meta, rateHz int) (int, error) {
	h, err := b.Subscribe(meta)
	if err != nil {
		return 0, err
	}
	b.mu.Lock()
	ch := b.channel
	b.mu.Unlock()
	if ch != nil {
		if err := ch.SendSubscription(meta.Name, rateHz, true); err != nil {
			util.Logf("bus.SubscribeRemote %s: %v", meta.Name, err)
		}
	}
	return h, nil
}

// UnsubscribeRemote drops the local subscription and retracts the
// forwarding request.
func (b *Bus) UnsubscribeRemote(meta *core.Meta, h int) error {
	b.mu.Lock()
	ch := b.channel
	b.mu.Unlock()
	if ch != nil {
		if err := ch.SendSubscription(meta.Name, 0, false); err != nil {
			util.Logf("bus.UnsubscribeRemote %s: %v", meta.Name, err)
		}
	}
	return b.Unsubscribe(h)
}

func (b *Bus) sendSample(name string, instance int, data []byte) {
	b.mu.Lock()
	ch := b.channel
	b.mu.Unlock()
	if ch == nil {
		return
	}
	if err := ch.SendSample(name, instance, data); err != nil {
		util.Logf("bus.sendSample %s/%d: %v", name, instance, err)
	}
}

// RemoteTopic records a topic advertised (or unadvertised) on another
// host.
func (b *Bus) RemoteTopic(name string, advertise bool) {
	b.mu.Lock()
	if advertise {
		b.remoteTopics[name] = true
	} else {
		delete(b.remoteTopics, name)
	}
	b.mu.Unlock()

	if advertise {
		if n, have := b.master.Node(name, 0); have {
			n.MarkRemotePublisher()
		}
	}
}

// AddSubscription starts forwarding a topic's publishes to the
// remote side.  Unknown topics are ignored.
func (b *Bus) AddSubscription(name string, rateHz int) {
	n, have := b.master.Node(name, 0)
	if !have {
		util.Logf("bus.AddSubscription %s: no local node", name)
		return
	}
	n.AddRemoteSubscriber()
}

// RemoveSubscription stops forwarding a topic.
func (b *Bus) RemoveSubscription(name string) {
	n, have := b.master.Node(name, 0)
	if !have {
		return
	}
	n.RemoveRemoteSubscriber()
}

// ReceivedSample injects a sample that was published on another
// host.  The payload must match the local node's sample size.
func (b *Bus) ReceivedSample(name string, payload []byte) error {
	n, have := b.master.Node(name, 0)
	if !have {
		return core.NotFound
	}
	return n.PublishRemote(payload)
}

// Walk visits every local node in path order.
func (b *Bus) Walk(fn func(path string, n *core.Node)) {
	b.master.Walk(fn)
}
