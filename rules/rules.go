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

// Package rules parses publisher-rules files and answers whether a
// given program may advertise a given topic.
//
// The file format is line-oriented: '#' starts a comment, blank
// lines are skipped, and the directives are
//
//	module: <name>
//	restrict_topics: a, b, c
//	ignore_others: true|false
//
// With ignore_others false (the default), the named module is denied
// the listed topics and everyone else is unaffected.  With it true,
// the named module may advertise only the listed topics and everyone
// else may advertise anything except them.
package rules

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Policy is a parsed rules file.  It is built once and read-only
// afterward.
type Policy struct {
	Module       string
	Topics       []string
	IgnoreOthers bool

	topics map[string]bool
}

// Parse reads a rules file.  A file without a module directive or
// without a topic list is rejected.
func Parse(r io.Reader) (*Policy, error) {
	p := &Policy{topics: make(map[string]bool)}

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		switch {
		case strings.HasPrefix(text, "module:"):
			p.Module = strings.TrimSpace(strings.TrimPrefix(text, "module:"))
		case strings.HasPrefix(text, "restrict_topics:"):
			list := strings.TrimPrefix(text, "restrict_topics:")
			for _, topic := range strings.Split(list, ",") {
				topic = strings.TrimSpace(topic)
				if topic == "" {
					continue
				}
				if !p.topics[topic] {
					p.topics[topic] = true
					p.Topics = append(p.Topics, topic)
				}
			}
		case strings.HasPrefix(text, "ignore_others:"):
			val := strings.TrimSpace(strings.TrimPrefix(text, "ignore_others:"))
			switch val {
			case "true":
				p.IgnoreOthers = true
			case "false":
				p.IgnoreOthers = false
			default:
				return nil, fmt.Errorf("rules line %d: bad ignore_others value %q", line, val)
			}
		default:
			return nil, fmt.Errorf("rules line %d: unknown directive %q", line, text)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if p.Module == "" {
		return nil, fmt.Errorf("rules: no module directive")
	}
	if len(p.Topics) == 0 {
		return nil, fmt.Errorf("rules: no restrict_topics directive")
	}
	return p, nil
}

// ParseFile reads a rules file from disk.
func ParseFile(path string) (*Policy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Allows reports whether the given program may advertise the given
// topic.
func (p *Policy) Allows(module, topic string) bool {
	if p == nil {
		return true
	}
	listed := p.topics[topic]
	if p.IgnoreOthers {
		if module == p.Module {
			return listed
		}
		return !listed
	}
	if module == p.Module {
		return !listed
	}
	return true
}
