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
	"sort"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/Comcast/orb/core"
)

// Master owns the path-to-node map and hands out instance numbers.
// Nodes, once created, live for the life of the master.
type Master struct {
	mu    sync.Mutex
	nodes map[string]*core.Node
	clk   clock.Clock

	// OnCreate, when set, runs for every node the master builds,
	// before the node is visible.  The bridge uses it to install
	// uplinks.
	OnCreate func(*core.Node)
}

// NewMaster builds an empty registry.  Pass nil to use the wall
// clock.
func NewMaster(clk clock.Clock) *Master {
	if clk == nil {
		clk = clock.New()
	}
	return &Master{
		nodes: make(map[string]*core.Node),
		clk:   clk,
	}
}

func (m *Master) create(meta *core.Meta, instance, priority int) *core.Node {
	n := core.NewNode(meta, instance, priority, m.clk)
	if m.OnCreate != nil {
		m.OnCreate(n)
	}
	m.nodes[NodePath(meta.Name, instance)] = n
	return n
}

// Advertise creates (or finds) a node and claims its advertiser slot.
//
// With instance nil, the topic is single-instance: the node at
// instance 0 is used, and a second advertiser gets the token plus
// Exists.  With instance non-nil, the master scans from 0 for the
// first instance that is missing or unadvertised, claims it, and
// writes the number back through the pointer; with every slot claimed
// it fails with NoMem.
func (m *Master) Advertise(meta *core.Meta, instance *int, priority int) (*core.Advertiser, error) {
	if meta == nil || meta.Name == "" || meta.Size < 1 {
		return nil, core.Invalid
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if instance == nil {
		n, have := m.nodes[NodePath(meta.Name, 0)]
		if !have {
			n = m.create(meta, 0, priority)
		}
		return n.Advertise(meta)
	}

	for i := 0; i < core.MaxInstances; i++ {
		n, have := m.nodes[NodePath(meta.Name, i)]
		if !have {
			n = m.create(meta, i, priority)
		} else if n.Advertised() {
			continue
		}
		adv, err := n.Advertise(meta)
		if err != nil {
			return nil, err
		}
		*instance = i
		return adv, nil
	}
	return nil, core.NoMem
}

// Ensure returns the node at an exact (topic,instance), creating an
// unadvertised one if needed.  Subscribers use this so a subscription
// can precede the advertiser.
func (m *Master) Ensure(meta *core.Meta, instance int) (*core.Node, error) {
	if meta == nil || meta.Name == "" || meta.Size < 1 {
		return nil, core.Invalid
	}
	if instance < 0 || core.MaxInstances <= instance {
		return nil, core.Invalid
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n, have := m.nodes[NodePath(meta.Name, instance)]
	if !have {
		n = m.create(meta, instance, core.PriorityDefault)
	}
	return n, nil
}

// Node looks up an existing node.
func (m *Master) Node(name string, instance int) (*core.Node, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, have := m.nodes[NodePath(name, instance)]
	return n, have
}

// Exists reports whether a (topic,instance) has been advertised and
// published.
func (m *Master) Exists(name string, instance int) bool {
	n, have := m.Node(name, instance)
	return have && n.Advertised() && n.Published()
}

// Walk visits every node in path order.
func (m *Master) Walk(fn func(path string, n *core.Node)) {
	m.mu.Lock()
	paths := make([]string, 0, len(m.nodes))
	for p := range m.nodes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	nodes := make([]*core.Node, len(paths))
	for i, p := range paths {
		nodes[i] = m.nodes[p]
	}
	m.mu.Unlock()

	for i, p := range paths {
		fn(p, nodes[i])
	}
}
