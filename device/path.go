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
	"strconv"
	"strings"
)

// Prefix is the root of the bus namespace.
const Prefix = "/obj"

// MasterPath is where the node-creating master device lives.
const MasterPath = Prefix + "/_orb_master"

// NodePath builds the path for a (topic,instance) pair.  Instance 0
// has no suffix; instance 1 and up append the number.
func NodePath(name string, instance int) string {
	if instance < 1 {
		return Prefix + "/" + name
	}
	return Prefix + "/" + name + strconv.Itoa(instance)
}

// SplitPath recovers the topic name and instance from a node path.
// It returns ok=false for paths outside the namespace or with a
// malformed suffix.
func SplitPath(path string) (name string, instance int, ok bool) {
	if !strings.HasPrefix(path, Prefix+"/") {
		return "", 0, false
	}
	rest := path[len(Prefix)+1:]
	if rest == "" {
		return "", 0, false
	}
	i := len(rest)
	for i > 0 && rest[i-1] >= '0' && rest[i-1] <= '9' {
		i--
	}
	if i == len(rest) {
		return rest, 0, true
	}
	if i == 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(rest[i:])
	if err != nil || n < 1 {
		return "", 0, false
	}
	return rest[:i], n, true
}
