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
	"strings"
	"testing"
)

func TestMermaid(t *testing.T) {
	r := testRegistry(t)

	var out closingBuffer
	if err := Mermaid(r, &out, nil); err != nil {
		t.Fatal(err)
	}

	s := out.String()
	if !strings.Contains(s, "graph LR") {
		t.Fatal("no graph header")
	}
	if !strings.Contains(s, "gps<br/>16 B q=4") {
		t.Fatalf("no gps label in %s", s)
	}
	if !strings.Contains(s, "-->") {
		t.Fatal("no edges")
	}
}

func TestMermaidPlainLabels(t *testing.T) {
	r := testRegistry(t)

	var out closingBuffer
	if err := Mermaid(r, &out, &MermaidOpts{}); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out.String(), "16 B") {
		t.Fatal("sizes shown without ShowSizes")
	}
}
