package core

import (
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
)

// Node is one (topic,instance) pair: a ring of published samples plus
// the subscriptions reading from it.
//
// The ring holds queueSize slots of meta.Size bytes each.  The slot
// for generation g is buf[(g-1)%queueSize]; generation 0 means
// nothing has been published.
type Node struct {
	meta     *Meta
	instance int
	devID    DeviceID

	mu sync.Mutex

	// generation is written under mu and read with atomic loads so
	// Updated can run without taking the lock.
	generation uint64

	queueSize   int
	buf         []byte
	queueLocked bool

	advertised bool
	priority   int
	pubTimeUS  uint64

	openCount int
	subs      []*Subscription
	pollers   pollSet

	clk clock.Clock

	// Remote bridge state.  remoteSubs counts subscribers on other
	// hosts; uplink, when set, receives every local publish.
	remoteSubs      int
	uplink          func(name string, instance int, data []byte)
	remotePublisher bool

	// OpenFirst runs when the open count goes 0 to 1, CloseLast when
	// it returns to 0.  Both run outside the node lock.
	OpenFirst func()
	CloseLast func()
}

// Subscription is one reader's cursor into a node's ring.
type Subscription struct {
	node *Node

	// lastSeen is the highest generation this reader has copied, or,
	// before its first copy, the generation current at open.
	lastSeen uint64

	// intervalUS throttles delivery; zero means every sample.
	// lastDeliveredUS is the latest publish time at the last copy;
	// delivered reports whether any copy has happened yet.
	intervalUS      uint32
	lastDeliveredUS uint64
	delivered       bool

	// lost counts samples overwritten before this reader saw them.
	lost uint64

	slot int
}

// Advertiser is the token a successful advertise returns.  Publish
// goes through it so the node can verify the caller still holds the
// Meta it advertised with.
type Advertiser struct {
	node *Node
	meta *Meta
}

// NewNode builds a node for one instance of a topic.  The clock is
// used for publication timestamps and interval throttling; pass
// clock.New() outside tests.
func NewNode(meta *Meta, instance, priority int, clk clock.Clock) *Node {
	if clk == nil {
		clk = clock.New()
	}
	qs := meta.queueSize()
	return &Node{
		meta:      meta,
		instance:  instance,
		priority:  priority,
		devID:     MakeDeviceID(BusVirtual, 0, instance, 0),
		queueSize: qs,
		buf:       make([]byte, qs*meta.Size),
		clk:       clk,
	}
}

// Meta returns the topic metadata the node was created with.
func (n *Node) Meta() *Meta { return n.meta }

// Instance returns the node's instance number.
func (n *Node) Instance() int { return n.instance }

// DeviceID returns the node's packed device identity.
func (n *Node) DeviceID() DeviceID { return n.devID }

func (n *Node) nowUS() uint64 {
	return uint64(n.clk.Now().UnixNano() / 1000)
}

// Open registers a reader (or an advertiser's bookkeeping handle) and
// returns its subscription.  A fresh reader starts at the current
// generation, so it sees only samples published after the open.
func (n *Node) Open(advertiser bool) *Subscription {
	n.mu.Lock()
	sub := &Subscription{
		node:     n,
		lastSeen: n.generation,
		slot:     -1,
	}
	if !advertiser {
		for i, have := range n.subs {
			if have == nil {
				n.subs[i] = sub
				sub.slot = i
				break
			}
		}
		if sub.slot < 0 {
			sub.slot = len(n.subs)
			n.subs = append(n.subs, sub)
		}
	}
	n.openCount++
	first := n.openCount == 1
	n.mu.Unlock()

	if first && n.OpenFirst != nil {
		n.OpenFirst()
	}
	return sub
}

// Close drops a subscription.  When the open count returns to zero
// the CloseLast hook runs.
func (n *Node) Close(sub *Subscription) {
	n.mu.Lock()
	if sub != nil && sub.slot >= 0 && sub.slot < len(n.subs) && n.subs[sub.slot] == sub {
		n.subs[sub.slot] = nil
	}
	n.openCount--
	last := n.openCount == 0
	n.mu.Unlock()

	if last && n.CloseLast != nil {
		n.CloseLast()
	}
}

// OpenCount reports how many handles the node has open.
func (n *Node) OpenCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.openCount
}

// Advertise marks the node advertised and returns the publish token.
// A second advertiser gets Exists; callers that allow multiple
// publishers treat that as success by reusing the same token path.
func (n *Node) Advertise(meta *Meta) (*Advertiser, error) {
	if meta != n.meta {
		return nil, Invalid
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	adv := &Advertiser{node: n, meta: meta}
	if n.advertised {
		return adv, Exists
	}
	n.advertised = true
	return adv, nil
}

// Publisher returns a publish token for a node that is already
// advertised, without claiming the advertiser slot.  Unadvertised
// nodes refuse with Permission.
func (n *Node) Publisher() (*Advertiser, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.advertised {
		return nil, Permission
	}
	return &Advertiser{node: n, meta: n.meta}, nil
}

// Unadvertise clears the advertised mark so the instance slot can be
// claimed again.
func (n *Node) Unadvertise() {
	n.mu.Lock()
	n.advertised = false
	n.mu.Unlock()
}

// Advertised reports whether the node currently has an advertiser.
func (n *Node) Advertised() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.advertised
}

// Priority returns the priority the first advertiser fixed.
func (n *Node) Priority() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.priority
}

// Publish verifies the token and writes one sample.
func (a *Advertiser) Publish(data []byte) error {
	if a.node == nil {
		// Sentinel token from a denied advertise; drop silently.
		return nil
	}
	if a.meta != a.node.meta {
		return Invalid
	}
	return a.node.publish(data, true)
}

// Node returns the node behind the token, nil for a sentinel.
func (a *Advertiser) Node() *Node { return a.node }

// PublishRemote injects a sample that arrived from another host.  It
// is not forwarded back out the uplink.
func (n *Node) PublishRemote(data []byte) error {
	return n.publish(data, false)
}

func (n *Node) publish(data []byte, local bool) error {
	if len(data) != n.meta.Size {
		return Invalid
	}

	n.mu.Lock()
	n.queueLocked = true
	gen := n.generation + 1
	slot := int((gen - 1) % uint64(n.queueSize))
	copy(n.buf[slot*n.meta.Size:(slot+1)*n.meta.Size], data)
	atomic.StoreUint64(&n.generation, gen)
	n.pubTimeUS = n.nowUS()
	forward := local && n.remoteSubs > 0 && n.uplink != nil
	uplink := n.uplink
	n.pollers.notifyAll(Readable)
	n.mu.Unlock()

	if forward {
		uplink(n.meta.Name, n.instance, data)
	}
	return nil
}

// Copy reads the oldest unseen sample into out.  With nothing unseen,
// or while the reader's interval has not passed since its last copy,
// it returns NoData.  A reader that fell behind is advanced to the
// oldest sample still in the ring and its lost count grows by the
// number skipped.
func (n *Node) Copy(sub *Subscription, out []byte) error {
	if len(out) != n.meta.Size {
		return Invalid
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	head := n.generation
	next := sub.lastSeen + 1
	if next > head {
		return NoData
	}
	if iv := atomic.LoadUint32(&sub.intervalUS); iv > 0 && sub.delivered && n.pubTimeUS < sub.lastDeliveredUS+uint64(iv) {
		return NoData
	}
	if oldest := head + 1 - uint64(n.queueSize); head >= uint64(n.queueSize) && next < oldest {
		sub.lost += oldest - next
		next = oldest
	}

	slot := int((next - 1) % uint64(n.queueSize))
	copy(out, n.buf[slot*n.meta.Size:(slot+1)*n.meta.Size])
	sub.lastSeen = next
	sub.lastDeliveredUS = n.pubTimeUS
	sub.delivered = true
	return nil
}

// Updated reports whether the reader has unseen data, honoring its
// interval.  It does not consume anything.
func (n *Node) Updated(sub *Subscription) bool {
	head := atomic.LoadUint64(&n.generation)
	if sub.lastSeen >= head {
		return false
	}
	iv := atomic.LoadUint32(&sub.intervalUS)
	if iv == 0 {
		return true
	}
	n.mu.Lock()
	due := !sub.delivered || n.pubTimeUS >= sub.lastDeliveredUS+uint64(iv)
	n.mu.Unlock()
	return due
}

// Lost returns how many samples the reader missed to overwrites.
func (n *Node) Lost(sub *Subscription) uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return sub.lost
}

// SetInterval sets the reader's minimum delivery spacing in
// microseconds.
func (n *Node) SetInterval(sub *Subscription, us uint32) {
	atomic.StoreUint32(&sub.intervalUS, us)
}

// Interval returns the reader's spacing in microseconds.
func (n *Node) Interval(sub *Subscription) uint32 {
	return atomic.LoadUint32(&sub.intervalUS)
}

// SetQueueSize resizes the ring.  It fails with AlreadyStarted once
// the first publish has locked the queue, and clamps the depth to
// MaxQueueSize.
func (n *Node) SetQueueSize(size int) error {
	if size < 1 {
		size = 1
	}
	if size > MaxQueueSize {
		size = MaxQueueSize
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.queueLocked {
		return AlreadyStarted
	}
	if size == n.queueSize {
		return nil
	}
	n.queueSize = size
	n.buf = make([]byte, size*n.meta.Size)
	return nil
}

// QueueSize returns the current ring depth.
func (n *Node) QueueSize() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.queueSize
}

// Published reports whether anything has ever been published.
func (n *Node) Published() bool {
	return atomic.LoadUint64(&n.generation) > 0
}

// Generation returns the head generation.
func (n *Node) Generation() uint64 {
	return atomic.LoadUint64(&n.generation)
}

// LastUpdate returns the timestamp of the latest publish in
// microseconds, zero before the first publish.
func (n *Node) LastUpdate() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pubTimeUS
}

// Poll registers (setup=true) or removes (setup=false) a waiter.  On
// setup, if the reader already has unseen data the waiter fires
// immediately, so the caller never misses a sample published between
// check and register.
func (n *Node) Poll(sub *Subscription, w *Waiter, setup bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !setup {
		n.pollers.remove(w)
		return
	}
	n.pollers.store(w)
	if sub != nil && sub.lastSeen < n.generation {
		w.post(Readable)
	}
}

// SetUplink installs the callback local publishes are forwarded to
// while remote subscribers exist.
func (n *Node) SetUplink(fn func(name string, instance int, data []byte)) {
	n.mu.Lock()
	n.uplink = fn
	n.mu.Unlock()
}

// AddRemoteSubscriber notes a subscriber on another host.
func (n *Node) AddRemoteSubscriber() {
	n.mu.Lock()
	n.remoteSubs++
	n.mu.Unlock()
}

// RemoveRemoteSubscriber drops one remote subscriber.
func (n *Node) RemoveRemoteSubscriber() {
	n.mu.Lock()
	if n.remoteSubs > 0 {
		n.remoteSubs--
	}
	n.mu.Unlock()
}

// RemoteSubscribers returns the remote subscriber count.
func (n *Node) RemoteSubscribers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.remoteSubs
}

// MarkRemotePublisher records that this node mirrors a topic
// advertised on another host.
func (n *Node) MarkRemotePublisher() {
	n.mu.Lock()
	n.remotePublisher = true
	n.mu.Unlock()
}

// RemotePublisher reports whether the advertiser lives elsewhere.
func (n *Node) RemotePublisher() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.remotePublisher
}
