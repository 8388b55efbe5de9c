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

// Package tools renders topic registries: YAML files that declare a
// system's topics and which modules publish and subscribe to them.
// The renderers (Graphviz, Mermaid, HTML) document bus wiring; they
// do not touch a live bus.
package tools

import (
	"fmt"
	"io/ioutil"

	"gopkg.in/yaml.v2"

	"github.com/Comcast/orb/core"
)

// Topic is one registry entry: the topic metadata plus the modules
// wired to it.
type Topic struct {
	core.Meta `yaml:",inline"`

	Doc string `yaml:"doc,omitempty" json:"doc,omitempty"`

	Publishers  []string `yaml:"publishers,omitempty" json:"publishers,omitempty"`
	Subscribers []string `yaml:"subscribers,omitempty" json:"subscribers,omitempty"`
}

// Registry is a declared set of topics and their wiring.
type Registry struct {
	Name string `yaml:"name" json:"name"`

	// Doc is Markdown.
	Doc string `yaml:"doc,omitempty" json:"doc,omitempty"`

	Topics []*Topic `yaml:"topics" json:"topics"`
}

// ParseRegistry unmarshals a YAML registry.
func ParseRegistry(bs []byte) (*Registry, error) {
	var r Registry
	if err := yaml.Unmarshal(bs, &r); err != nil {
		return nil, err
	}
	for _, t := range r.Topics {
		if t.Name == "" {
			return nil, fmt.Errorf("registry %s: topic with no name", r.Name)
		}
	}
	return &r, nil
}

// LoadRegistry reads and parses a YAML registry file.
func LoadRegistry(filename string) (*Registry, error) {
	bs, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseRegistry(bs)
}
