/* Copyright 2018 Comcast Cable Communications Management, LLC
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

package tools

import (
	"fmt"
	"sort"
)

// RegistryAnalysis reports structural problems in a registry.
type RegistryAnalysis struct {
	registry *Registry

	Errors     []string
	TopicCount int
	PubEdges   int
	SubEdges   int

	// Orphans have neither publishers nor subscribers.
	Orphans []string

	// Unpublished have subscribers but no publisher.
	Unpublished []string

	// Unread have publishers but no subscriber.
	Unread []string

	// Duplicates are topic names declared more than once.
	Duplicates []string

	Modules []string
}

// Analyze checks a registry's wiring.
func Analyze(r *Registry) (*RegistryAnalysis, error) {
	a := RegistryAnalysis{
		registry:   r,
		TopicCount: len(r.Topics),
		Errors:     make([]string, 0, 8),
	}

	seen := make(map[string]bool)
	orphans := make(map[string]bool)
	unpublished := make(map[string]bool)
	unread := make(map[string]bool)
	duplicates := make(map[string]bool)
	modules := make(map[string]bool)

	for _, t := range r.Topics {
		if seen[t.Name] {
			duplicates[t.Name] = true
		}
		seen[t.Name] = true

		if t.Size <= 0 {
			a.Errors = append(a.Errors,
				fmt.Sprintf("topic %s: size %d", t.Name, t.Size))
		}

		a.PubEdges += len(t.Publishers)
		a.SubEdges += len(t.Subscribers)

		for _, m := range t.Publishers {
			modules[m] = true
		}
		for _, m := range t.Subscribers {
			modules[m] = true
		}

		switch {
		case len(t.Publishers) == 0 && len(t.Subscribers) == 0:
			orphans[t.Name] = true
		case len(t.Publishers) == 0:
			unpublished[t.Name] = true
		case len(t.Subscribers) == 0:
			unread[t.Name] = true
		}
	}

	a.Orphans = keysToStringSlice(orphans)
	a.Unpublished = keysToStringSlice(unpublished)
	a.Unread = keysToStringSlice(unread)
	a.Duplicates = keysToStringSlice(duplicates)
	a.Modules = keysToStringSlice(modules)

	return &a, nil
}

func keysToStringSlice(m map[string]bool) []string {
	var list []string
	for key := range m {
		list = append(list, key)
	}
	sort.Strings(list)
	return list
}
