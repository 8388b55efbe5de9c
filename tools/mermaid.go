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
	"io"
)

type MermaidOpts struct {
	// ShowSizes will result in topic labels that include the
	// payload size and queue depth.
	ShowSizes bool `json:"showSizes"`

	// TopicFill is the fill color for topic nodes.
	TopicFill string `json:"topicFill,omitempty"`
}

// Mermaid makes a Mermaid (https://mermaidjs.github.io/) input file
// for the given registry.
func Mermaid(r *Registry, w io.WriteCloser, opts *MermaidOpts) error {

	if opts == nil {
		opts = &MermaidOpts{
			ShowSizes: true,
			TopicFill: "#bcf2db",
		}
	}

	fmt.Fprintf(w, "graph LR\n")

	nids := make(map[string]string)
	num := 0

	module := func(name string) string {
		if nid, already := nids[name]; already {
			return nid
		}
		num++
		nid := fmt.Sprintf("n%d", num)
		nids[name] = nid
		fmt.Fprintf(w, "  %s[\"%s\"]\n", nid, name)
		return nid
	}

	for i, t := range r.Topics {
		tid := fmt.Sprintf("t%d", i)
		label := t.Name
		if opts.ShowSizes {
			label = fmt.Sprintf("%s<br/>%d B", t.Name, t.Size)
			if 1 < t.QueueSize {
				label += fmt.Sprintf(" q=%d", t.QueueSize)
			}
		}
		fmt.Fprintf(w, "  %s(\"%s\")\n", tid, label)
		if opts.TopicFill != "" {
			fmt.Fprintf(w, "  style %s fill:%s\n", tid, opts.TopicFill)
		}

		for _, m := range t.Publishers {
			fmt.Fprintf(w, "  %s --> %s\n", module(m), tid)
		}
		for _, m := range t.Subscribers {
			fmt.Fprintf(w, "  %s --> %s\n", tid, module(m))
		}
	}

	fmt.Fprintf(w, "\n")

	return w.Close()
}
