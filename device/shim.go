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

package device

import (
	"errors"
	"sync"

	"github.com/Comcast/orb/core"
)

// ErrBadHandle indicates an operation on a closed or unknown handle.
var ErrBadHandle = errors.New("bad handle")

// Ioctl is a control command on an open handle.
type Ioctl uint32

const (
	// IoctlUpdated: arg *bool, true when unseen data is pending.
	IoctlUpdated Ioctl = iota + 1

	// IoctlLastUpdate: arg *uint64, latest publish time in µs.
	IoctlLastUpdate

	// IoctlSetInterval: arg uint32, minimum delivery spacing in µs.
	IoctlSetInterval

	// IoctlGetInterval: arg *uint32, spacing in µs.
	IoctlGetInterval

	// IoctlGetPriority: arg *int.
	IoctlGetPriority

	// IoctlSetQueueSize: arg int.  Fails with EBUSY once publishing
	// has started.
	IoctlSetQueueSize

	// IoctlIsPublished: arg *bool.
	IoctlIsPublished

	// IoctlGetAdvertiser: arg **core.Advertiser.  Requires a write
	// handle; the token stays valid after the handle closes.
	IoctlGetAdvertiser

	// IoctlAdvertise: master handle only; arg *Advertisement.
	IoctlAdvertise
)

// Advertisement is the argument block for IoctlAdvertise.  Instance,
// when non-nil, selects multi-instance allocation and receives the
// chosen number.  Advertiser receives the publish token.
type Advertisement struct {
	Meta     *core.Meta
	Instance *int
	Priority int

	Advertiser *core.Advertiser
}

type file struct {
	master bool
	node   *core.Node
	sub    *core.Subscription
	write  bool
}

// Shim is the handle table.  Handles are small ints local to the
// shim, starting at 1.
type Shim struct {
	mu     sync.Mutex
	master *Master
	files  map[int]*file
	next   int
}

// NewShim builds a handle table over a master.
func NewShim(master *Master) *Shim {
	return &Shim{
		master: master,
		files:  make(map[int]*file),
		next:   1,
	}
}

// Master returns the registry behind the shim.
func (s *Shim) Master() *Master { return s.master }

func (s *Shim) install(f *file) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.next
	s.next++
	s.files[h] = f
	return h
}

func (s *Shim) lookup(h int) (*file, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, have := s.files[h]
	if !have {
		return nil, ErrBadHandle
	}
	return f, nil
}

// Open opens a path.  The master path accepts only control ioctls.
// A node path must already exist; write=true asks for publish
// permission, which requires the node be advertised.
func (s *Shim) Open(path string, write bool) (int, error) {
	if path == MasterPath {
		return s.install(&file{master: true}), nil
	}

	name, instance, ok := SplitPath(path)
	if !ok {
		return 0, core.Invalid
	}
	n, have := s.master.Node(name, instance)
	if !have {
		return 0, core.NotFound
	}
	if write && !n.Advertised() {
		return 0, core.Permission
	}
	sub := n.Open(write)
	return s.install(&file{node: n, sub: sub, write: write}), nil
}

// Close releases a handle.
func (s *Shim) Close(h int) error {
	s.mu.Lock()
	f, have := s.files[h]
	delete(s.files, h)
	s.mu.Unlock()
	if !have {
		return ErrBadHandle
	}
	if f.node != nil {
		f.node.Close(f.sub)
	}
	return nil
}

// Read copies the oldest unseen sample into out and returns the
// sample size.  Nothing unseen reads as NoData.
func (s *Shim) Read(h int, out []byte) (int, error) {
	f, err := s.lookup(h)
	if err != nil {
		return 0, err
	}
	if f.master {
		return 0, core.Invalid
	}
	if err := f.node.Copy(f.sub, out); err != nil {
		return 0, err
	}
	return f.node.Meta().Size, nil
}

// Write publishes one sample and returns the sample size.  Read-only
// handles fail with Permission.
func (s *Shim) Write(h int, data []byte) (int, error) {
	f, err := s.lookup(h)
	if err != nil {
		return 0, err
	}
	if f.master {
		return 0, core.Invalid
	}
	if !f.write {
		return 0, core.Permission
	}
	adv, err := f.node.Publisher()
	if err != nil {
		return 0, err
	}
	if err := adv.Publish(data); err != nil {
		return 0, err
	}
	return f.node.Meta().Size, nil
}

// Control issues an ioctl on a handle.  The arg type depends on the
// command; a wrong type fails with Invalid.
func (s *Shim) Control(h int, cmd Ioctl, arg interface{}) error {
	f, err := s.lookup(h)
	if err != nil {
		return err
	}

	if f.master {
		if cmd != IoctlAdvertise {
			return core.Invalid
		}
		ad, ok := arg.(*Advertisement)
		if !ok || ad == nil {
			return core.Invalid
		}
		adv, err := s.master.Advertise(ad.Meta, ad.Instance, ad.Priority)
		ad.Advertiser = adv
		return err
	}

	switch cmd {
	case IoctlUpdated:
		p, ok := arg.(*bool)
		if !ok {
			return core.Invalid
		}
		*p = f.node.Updated(f.sub)
	case IoctlLastUpdate:
		p, ok := arg.(*uint64)
		if !ok {
			return core.Invalid
		}
		*p = f.node.LastUpdate()
	case IoctlSetInterval:
		us, ok := arg.(uint32)
		if !ok {
			return core.Invalid
		}
		f.node.SetInterval(f.sub, us)
	case IoctlGetInterval:
		p, ok := arg.(*uint32)
		if !ok {
			return core.Invalid
		}
		*p = f.node.Interval(f.sub)
	case IoctlGetPriority:
		p, ok := arg.(*int)
		if !ok {
			return core.Invalid
		}
		*p = f.node.Priority()
	case IoctlSetQueueSize:
		size, ok := arg.(int)
		if !ok {
			return core.Invalid
		}
		return f.node.SetQueueSize(size)
	case IoctlIsPublished:
		p, ok := arg.(*bool)
		if !ok {
			return core.Invalid
		}
		*p = f.node.Published()
	case IoctlGetAdvertiser:
		p, ok := arg.(**core.Advertiser)
		if !ok {
			return core.Invalid
		}
		if !f.write {
			return core.Permission
		}
		adv, err := f.node.Publisher()
		if err != nil {
			return err
		}
		*p = adv
	default:
		return core.Invalid
	}
	return nil
}

// Poll registers (setup=true) or removes (setup=false) a waiter on a
// node handle.  The caller blocks on the waiter's channel.
func (s *Shim) Poll(h int, w *core.Waiter, setup bool) error {
	f, err := s.lookup(h)
	if err != nil {
		return err
	}
	if f.master {
		return core.Invalid
	}
	f.node.Poll(f.sub, w, setup)
	return nil
}
