package core

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestPollWake(t *testing.T) {
	m := testMeta(0)
	n := NewNode(m, 0, PriorityDefault, clock.NewMock())
	adv, _ := n.Advertise(m)

	sub := n.Open(false)
	defer n.Close(sub)

	w := NewWaiter(Readable)
	n.Poll(sub, w, true)
	defer n.Poll(sub, w, false)

	select {
	case <-w.C:
		t.Fatal("nothing published, should not wake")
	case <-time.After(10 * time.Millisecond):
	}

	if err := adv.Publish(sample(1)); err != nil {
		t.Fatal(err)
	}

	select {
	case <-w.C:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for wake")
	}
	if w.Events()&Readable == 0 {
		t.Fatal("expected Readable")
	}
}

func TestPollImmediateWhenPending(t *testing.T) {
	m := testMeta(0)
	n := NewNode(m, 0, PriorityDefault, clock.NewMock())
	adv, _ := n.Advertise(m)

	sub := n.Open(false)
	defer n.Close(sub)

	if err := adv.Publish(sample(1)); err != nil {
		t.Fatal(err)
	}

	w := NewWaiter(Readable)
	n.Poll(sub, w, true)
	defer n.Poll(sub, w, false)

	select {
	case <-w.C:
	default:
		t.Fatal("pending data should wake at setup")
	}
}

func TestWaiterClearAndReuse(t *testing.T) {
	m := testMeta(4)
	n := NewNode(m, 0, PriorityDefault, clock.NewMock())
	adv, _ := n.Advertise(m)

	sub := n.Open(false)
	defer n.Close(sub)

	w := NewWaiter(Readable)
	n.Poll(sub, w, true)
	defer n.Poll(sub, w, false)

	if err := adv.Publish(sample(1)); err != nil {
		t.Fatal(err)
	}
	<-w.C
	w.Clear()
	if w.Events() != 0 {
		t.Fatal("expected cleared events")
	}

	if err := adv.Publish(sample(2)); err != nil {
		t.Fatal(err)
	}
	select {
	case <-w.C:
	case <-time.After(time.Second):
		t.Fatal("timed out on second wake")
	}
}

func TestPollRemove(t *testing.T) {
	m := testMeta(0)
	n := NewNode(m, 0, PriorityDefault, clock.NewMock())
	adv, _ := n.Advertise(m)

	sub := n.Open(false)
	defer n.Close(sub)

	w := NewWaiter(Readable)
	n.Poll(sub, w, true)
	n.Poll(sub, w, false)

	if err := adv.Publish(sample(1)); err != nil {
		t.Fatal(err)
	}
	select {
	case <-w.C:
		t.Fatal("removed waiter should not wake")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestPollSetHoles(t *testing.T) {
	var p pollSet
	a := NewWaiter(Readable)
	b := NewWaiter(Readable)
	c := NewWaiter(Readable)
	p.store(a)
	p.store(b)
	p.remove(a)
	p.store(c)
	if len(p.waiters) != 2 {
		t.Fatalf("expected hole reuse, have %d slots", len(p.waiters))
	}
	p.notifyAll(Readable)
	if b.Events() == 0 || c.Events() == 0 {
		t.Fatal("stored waiters should fire")
	}
	if a.Events() != 0 {
		t.Fatal("removed waiter should not fire")
	}
}
