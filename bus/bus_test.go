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

package bus

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/benbjohnson/clock"

	"github.com/Comcast/orb/bridge"
	"github.com/Comcast/orb/core"
	"github.com/Comcast/orb/rules"
)

func newBus() *Bus {
	return New("test", nil, clock.NewMock())
}

func TestSinglePublisherSingleSubscriber(t *testing.T) {
	b := newBus()
	meta := &core.Meta{Name: "tick", Size: 4}

	adv, err := b.Advertise(meta, []byte{0, 0, 0, 1}, core.PriorityDefault)
	if err != nil {
		t.Fatal(err)
	}

	s, err := b.Subscribe(meta)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Unsubscribe(s)

	buf := make([]byte, 4)
	if err := b.Copy(meta, s, buf); err != core.NoData {
		t.Fatalf("fresh subscriber should see NoData, got %v", err)
	}

	if err := b.Publish(adv, []byte{0, 0, 0, 2}); err != nil {
		t.Fatal(err)
	}
	if err := b.Copy(meta, s, buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, []byte{0, 0, 0, 2}) {
		t.Fatal(buf)
	}
	if err := b.Copy(meta, s, buf); err != core.NoData {
		t.Fatalf("expected NoData, got %v", err)
	}
}

func TestSlowSubscriberQueue(t *testing.T) {
	b := newBus()
	meta := &core.Meta{Name: "imu", Size: 1}

	adv, err := b.AdvertiseMulti(meta, []byte{0x10}, nil, core.PriorityDefault, 3)
	if err != nil {
		t.Fatal(err)
	}

	s, err := b.Subscribe(meta)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Unsubscribe(s)

	for _, v := range []byte{0x11, 0x12, 0x13, 0x14} {
		if err := b.Publish(adv, []byte{v}); err != nil {
			t.Fatal(err)
		}
	}

	buf := make([]byte, 1)
	for _, want := range []byte{0x12, 0x13, 0x14} {
		if err := b.Copy(meta, s, buf); err != nil {
			t.Fatal(err)
		}
		if buf[0] != want {
			t.Fatalf("expected %#x, got %#x", want, buf[0])
		}
	}
	if err := b.Copy(meta, s, buf); err != core.NoData {
		t.Fatalf("expected NoData, got %v", err)
	}
}

func TestQueueLock(t *testing.T) {
	b := newBus()
	meta := &core.Meta{Name: "cmd", Size: 1}

	adv, err := b.AdvertiseMulti(meta, []byte{0}, nil, core.PriorityDefault, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Publish(adv, []byte{1}); err != nil {
		t.Fatal(err)
	}

	// A second advertise asking for a bigger queue is logged and
	// ignored, and still succeeds.
	adv2, err := b.AdvertiseMulti(meta, []byte{2}, nil, core.PriorityDefault, 8)
	if err != nil {
		t.Fatal(err)
	}
	if adv2 == nil {
		t.Fatal("expected a working handle")
	}
	if n := adv2.Node(); n.QueueSize() != 2 {
		t.Fatalf("queue depth should stay 2, got %d", n.QueueSize())
	}
}

func TestPollWakeup(t *testing.T) {
	b := newBus()
	meta := &core.Meta{Name: "att", Size: 4}

	adv, err := b.Advertise(meta, []byte{1, 2, 3, 4}, core.PriorityDefault)
	if err != nil {
		t.Fatal(err)
	}

	s, err := b.Subscribe(meta)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Unsubscribe(s)

	w := core.NewWaiter(core.Readable)
	if err := b.Poll(s, w, true); err != nil {
		t.Fatal(err)
	}
	defer b.Poll(s, w, false)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.Publish(adv, []byte{5, 6, 7, 8})
	}()

	<-w.C
	wg.Wait()

	buf := make([]byte, 4)
	if err := b.Copy(meta, s, buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, []byte{5, 6, 7, 8}) {
		t.Fatal(buf)
	}
}

func TestMultiInstanceAllocation(t *testing.T) {
	b := newBus()
	meta := &core.Meta{Name: "gps", Size: 4}

	for want := 0; want < 3; want++ {
		var instance int
		if _, err := b.AdvertiseMulti(meta, []byte{0, 0, 0, 0}, &instance, core.PriorityDefault, 0); err != nil {
			t.Fatal(err)
		}
		if instance != want {
			t.Fatalf("expected instance %d, got %d", want, instance)
		}
	}
}

func TestRuleDenied(t *testing.T) {
	policy, err := rules.Parse(strings.NewReader("module: X\nrestrict_topics: t\n"))
	if err != nil {
		t.Fatal(err)
	}
	b := New("X", policy, clock.NewMock())
	meta := &core.Meta{Name: "t", Size: 4}

	adv, err := b.Advertise(meta, []byte{1, 2, 3, 4}, core.PriorityDefault)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Publish(adv, []byte{5, 6, 7, 8}); err != nil {
		t.Fatal("publish on the sentinel must silently succeed")
	}
	if err := b.Unadvertise(adv); err != nil {
		t.Fatal(err)
	}

	s, err := b.Subscribe(meta)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Unsubscribe(s)
	buf := make([]byte, 4)
	if err := b.Copy(meta, s, buf); err != core.NoData {
		t.Fatalf("nothing was published, got %v", err)
	}
	if b.Exists(meta, 0) {
		t.Fatal("denied topic should not exist")
	}
}

func TestRuleAllowsOtherModule(t *testing.T) {
	policy, err := rules.Parse(strings.NewReader("module: X\nrestrict_topics: t\n"))
	if err != nil {
		t.Fatal(err)
	}
	b := New("Y", policy, clock.NewMock())
	meta := &core.Meta{Name: "t", Size: 4}

	adv, err := b.Advertise(meta, []byte{1, 2, 3, 4}, core.PriorityDefault)
	if err != nil {
		t.Fatal(err)
	}
	if adv.Node() == nil {
		t.Fatal("expected a real handle")
	}
	if !b.Exists(meta, 0) {
		t.Fatal("expected topic to exist")
	}
}

func TestAdvertiseNeedsInitialData(t *testing.T) {
	b := newBus()
	meta := &core.Meta{Name: "att", Size: 4}
	if _, err := b.Advertise(meta, nil, core.PriorityDefault); err != core.Invalid {
		t.Fatalf("expected Invalid, got %v", err)
	}
}

func TestIntervalMillis(t *testing.T) {
	b := newBus()
	meta := &core.Meta{Name: "att", Size: 4}
	if _, err := b.Advertise(meta, []byte{0, 0, 0, 0}, core.PriorityDefault); err != nil {
		t.Fatal(err)
	}
	s, err := b.Subscribe(meta)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Unsubscribe(s)

	if err := b.SetInterval(s, 50); err != nil {
		t.Fatal(err)
	}
	ms, err := b.GetInterval(s)
	if err != nil {
		t.Fatal(err)
	}
	if ms != 50 {
		t.Fatalf("expected 50ms, got %d", ms)
	}
}

func TestStatAndPriority(t *testing.T) {
	clk := clock.NewMock()
	b := New("test", nil, clk)
	meta := &core.Meta{Name: "att", Size: 4}

	if _, err := b.AdvertiseMulti(meta, []byte{0, 0, 0, 0}, nil, core.PriorityHigh, 0); err != nil {
		t.Fatal(err)
	}
	s, err := b.Subscribe(meta)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Unsubscribe(s)

	us, err := b.Stat(s)
	if err != nil {
		t.Fatal(err)
	}
	if want := uint64(clk.Now().UnixNano() / 1000); us != want {
		t.Fatalf("expected %d, got %d", want, us)
	}
	prio, err := b.Priority(s)
	if err != nil {
		t.Fatal(err)
	}
	if prio != core.PriorityHigh {
		t.Fatalf("expected %d, got %d", core.PriorityHigh, prio)
	}
}

func TestSubscribeBeforeAdvertise(t *testing.T) {
	b := newBus()
	meta := &core.Meta{Name: "att", Size: 4}

	s, err := b.Subscribe(meta)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Unsubscribe(s)

	adv, err := b.Advertise(meta, []byte{1, 2, 3, 4}, core.PriorityDefault)
	if err != nil {
		t.Fatal(err)
	}
	_ = adv

	buf := make([]byte, 4)
	if err := b.Copy(meta, s, buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, []byte{1, 2, 3, 4}) {
		t.Fatal(buf)
	}
}

// fakeChannel records bridge traffic for inspection.
type fakeChannel struct {
	mu         sync.Mutex
	handler    bridge.Handler
	advertises []string
	subs       []string
	samples    [][]byte
	stopped    bool
}

func (c *fakeChannel) Start(ctx context.Context, h bridge.Handler) error {
	c.handler = h
	return nil
}

func (c *fakeChannel) SendAdvertise(name string, priority int, advertise bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advertises = append(c.advertises, name)
	return nil
}

func (c *fakeChannel) SendSubscription(name string, rateHz int, subscribe bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if subscribe {
		c.subs = append(c.subs, name)
	} else {
		c.subs = append(c.subs, "-"+name)
	}
	return nil
}

func (c *fakeChannel) SendSample(name string, instance int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = append(c.samples, append([]byte(nil), data...))
	return nil
}

func (c *fakeChannel) Stop() error {
	c.stopped = true
	return nil
}

func TestBridgeForwarding(t *testing.T) {
	b := newBus()
	ch := &fakeChannel{}
	if err := b.AttachChannel(context.Background(), ch); err != nil {
		t.Fatal(err)
	}
	defer b.DetachChannel()

	meta := &core.Meta{Name: "att", Size: 4}
	adv, err := b.Advertise(meta, []byte{1, 2, 3, 4}, core.PriorityDefault)
	if err != nil {
		t.Fatal(err)
	}
	if len(ch.advertises) != 1 || ch.advertises[0] != "att" {
		t.Fatalf("expected advertise forwarded, got %v", ch.advertises)
	}

	// No remote subscriber yet, publishes stay local.
	if err := b.Publish(adv, []byte{5, 6, 7, 8}); err != nil {
		t.Fatal(err)
	}
	if len(ch.samples) != 0 {
		t.Fatal("no remote subscribers, nothing should forward")
	}

	ch.handler.AddSubscription("att", 0)
	if err := b.Publish(adv, []byte{9, 9, 9, 9}); err != nil {
		t.Fatal(err)
	}
	if len(ch.samples) != 1 {
		t.Fatalf("expected 1 forwarded sample, got %d", len(ch.samples))
	}

	ch.handler.RemoveSubscription("att")
	if err := b.Publish(adv, []byte{8, 8, 8, 8}); err != nil {
		t.Fatal(err)
	}
	if len(ch.samples) != 1 {
		t.Fatal("forwarding should have stopped")
	}
}

func TestBridgeInjection(t *testing.T) {
	b := newBus()
	ch := &fakeChannel{}
	if err := b.AttachChannel(context.Background(), ch); err != nil {
		t.Fatal(err)
	}
	defer b.DetachChannel()

	meta := &core.Meta{Name: "att", Size: 4}
	if err := ch.handler.ReceivedSample("att", []byte{1, 2, 3, 4}); err != core.NotFound {
		t.Fatalf("expected NotFound before any node, got %v", err)
	}

	s, err := b.Subscribe(meta)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Unsubscribe(s)

	if err := ch.handler.ReceivedSample("att", []byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 4)
	if err := b.Copy(meta, s, buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, []byte{1, 2, 3, 4}) {
		t.Fatal(buf)
	}

	// Injected samples never echo back out.
	ch.handler.AddSubscription("att", 0)
	if err := ch.handler.ReceivedSample("att", []byte{4, 3, 2, 1}); err != nil {
		t.Fatal(err)
	}
	if len(ch.samples) != 0 {
		t.Fatal("remote sample echoed back")
	}
}

func TestSubscribeRemote(t *testing.T) {
	b := newBus()
	ch := &fakeChannel{}
	if err := b.AttachChannel(context.Background(), ch); err != nil {
		t.Fatal(err)
	}
	defer b.DetachChannel()

	meta := &core.Meta{Name: "wind", Size: 4}
	h, err := b.SubscribeRemote(meta, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(ch.subs) != 1 || ch.subs[0] != "wind" {
		t.Fatalf("expected subscription request, got %v", ch.subs)
	}

	// The subscription created the node, so injection works now.
	if err := ch.handler.ReceivedSample("wind", []byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 4)
	if err := b.Copy(meta, h, buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, []byte{1, 2, 3, 4}) {
		t.Fatal(buf)
	}

	if err := b.UnsubscribeRemote(meta, h); err != nil {
		t.Fatal(err)
	}
	if len(ch.subs) != 2 || ch.subs[1] != "-wind" {
		t.Fatalf("expected retraction, got %v", ch.subs)
	}
}

func TestRemoteTopicExists(t *testing.T) {
	b := newBus()
	ch := &fakeChannel{}
	if err := b.AttachChannel(context.Background(), ch); err != nil {
		t.Fatal(err)
	}
	defer b.DetachChannel()

	meta := &core.Meta{Name: "wind", Size: 4}
	if b.Exists(meta, 0) {
		t.Fatal("nothing known yet")
	}
	ch.handler.RemoteTopic("wind", true)
	if !b.Exists(meta, 0) {
		t.Fatal("remote advertise should make the topic exist")
	}
	ch.handler.RemoteTopic("wind", false)
	if b.Exists(meta, 0) {
		t.Fatal("remote unadvertise should remove it")
	}
}
