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

package wschan

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

type record struct {
	added   []string
	removed []string
	samples map[string][]byte
}

func (r *record) RemoteTopic(name string, advertise bool) {
	if advertise {
		r.added = append(r.added, name)
	} else {
		r.removed = append(r.removed, name)
	}
}

func (r *record) AddSubscription(name string, rateHz int) {
	r.added = append(r.added, "sub:"+name)
}

func (r *record) RemoveSubscription(name string) {
	r.removed = append(r.removed, "sub:"+name)
}

func (r *record) ReceivedSample(name string, payload []byte) error {
	if r.samples == nil {
		r.samples = make(map[string][]byte)
	}
	r.samples[name] = append([]byte(nil), payload...)
	return nil
}

func TestDispatch(t *testing.T) {
	h := &record{}
	c := NewChan(Config{Listen: ":0"})
	c.handler = h

	c.dispatch(frame{Kind: "adv", Name: "att", Priority: 75, Advertise: true})
	if len(h.added) != 1 || h.added[0] != "att" {
		t.Fatal(h.added)
	}
	c.dispatch(frame{Kind: "adv", Name: "att", Advertise: false})
	if len(h.removed) != 1 || h.removed[0] != "att" {
		t.Fatal(h.removed)
	}
	c.dispatch(frame{Kind: "sub", Name: "att", RateHz: 5, Subscribe: true})
	if h.added[1] != "sub:att" {
		t.Fatal(h.added)
	}
	c.dispatch(frame{Kind: "sub", Name: "att", Subscribe: false})
	if h.removed[1] != "sub:att" {
		t.Fatal(h.removed)
	}
	c.dispatch(frame{Kind: "data", Name: "att", Payload: []byte{1, 2, 3, 4}})
	if !bytes.Equal(h.samples["att"], []byte{1, 2, 3, 4}) {
		t.Fatal(h.samples)
	}
	c.dispatch(frame{Kind: "bogus"})
}

func TestFrameRoundTrip(t *testing.T) {
	f := frame{Kind: "data", Name: "gps", Instance: 2, Payload: []byte{0, 1, 255}}
	js, err := json.Marshal(&f)
	if err != nil {
		t.Fatal(err)
	}
	var got frame
	if err := json.Unmarshal(js, &got); err != nil {
		t.Fatal(err)
	}
	if got.Kind != "data" || got.Name != "gps" || got.Instance != 2 || !bytes.Equal(got.Payload, f.Payload) {
		t.Fatalf("%#v", got)
	}
}

func TestSendWithoutConnection(t *testing.T) {
	c := NewChan(Config{URL: "ws://localhost:0/orb"})
	if err := c.SendSample("att", 0, []byte{1}); err == nil {
		t.Fatal("expected error with no connection")
	}
}

func TestStartNeedsRole(t *testing.T) {
	c := NewChan(Config{})
	if err := c.Start(context.Background(), &record{}); err == nil {
		t.Fatal("expected error with no role")
	}
}
