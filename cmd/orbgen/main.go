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

// Package main is a test traffic generator.  A YAML spec declares
// topics and schedules; each schedule publishes its payload when it
// fires.
//
//	orbgen -s traffic.yaml -h tcp://localhost -push
//
// An example spec:
//
//	module: gen
//	entries:
//	  - id: gps-tick
//	    topic: gps
//	    size: 16
//	    every: 100ms
//	    payload: '{"lat":1,"lon":2}'
//	  - id: minutely
//	    topic: heartbeat
//	    size: 4
//	    cron: "* * * * *"
package main

import (
	"context"
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jsccast/yaml"

	"github.com/Comcast/orb/bridge/mqttchan"
	"github.com/Comcast/orb/bus"
	"github.com/Comcast/orb/core"
	"github.com/Comcast/orb/sched"
	"github.com/Comcast/orb/util"
	. "github.com/Comcast/orb/util/testutil"
)

// Entry is one scheduled publication.  Exactly one of Every, At, or
// Cron should be set.
type Entry struct {
	Id        string `yaml:"id"`
	Topic     string `yaml:"topic"`
	Size      int    `yaml:"size"`
	QueueSize int    `yaml:"queue_size,omitempty"`
	Priority  int    `yaml:"priority,omitempty"`

	Every string `yaml:"every,omitempty"`
	At    string `yaml:"at,omitempty"`
	Cron  string `yaml:"cron,omitempty"`

	Payload interface{} `yaml:"payload,omitempty"`
}

// Spec is the generator's YAML input.
type Spec struct {
	Module  string   `yaml:"module"`
	Entries []*Entry `yaml:"entries"`
}

// payloadBytes renders a payload at the topic's sample size.  JSON
// payloads are canonicalized; other strings are used as given.  Short
// payloads are zero-padded.
func payloadBytes(x interface{}, size int) ([]byte, error) {
	var bs []byte
	switch v := x.(type) {
	case nil:
	case string:
		if parsed := Dwimjs(v); v != parsed {
			bs = []byte(JS(parsed))
		} else {
			bs = []byte(v)
		}
	default:
		bs = []byte(JS(v))
	}
	if size < len(bs) {
		return nil, fmt.Errorf("payload is %d bytes but the topic is %d", len(bs), size)
	}
	out := make([]byte, size)
	copy(out, bs)
	return out, nil
}

type publication struct {
	adv  *core.Advertiser
	data []byte
}

func main() {

	var (
		specFile = flag.String("s", "", "Traffic spec filename (YAML)")

		broker   = flag.String("h", "", "Optional broker hostname")
		clientId = flag.String("i", "orbgen", "Client id")
		port     = flag.Int("p", 1883, "Broker port")
		prefix   = flag.String("prefix", "orb", "Bridge topic prefix")
		push     = flag.Bool("push", false, "Forward generated samples to the broker unconditionally")

		verbose = flag.Bool("v", false, "Verbosity")
	)

	flag.Parse()

	util.Logging = *verbose

	if *specFile == "" {
		log.Fatal("spec (-s) is required")
	}
	src, err := ioutil.ReadFile(*specFile)
	if err != nil {
		log.Fatal(err)
	}
	var spec Spec
	if err := yaml.Unmarshal(src, &spec); err != nil {
		log.Fatalf("spec %s: %v", *specFile, err)
	}
	if spec.Module == "" {
		spec.Module = *clientId
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := clock.New()
	b := bus.New(spec.Module, nil, clk)

	if *broker != "" {
		ch := mqttchan.NewChan(mqttchan.Config{
			Broker:   fmt.Sprintf("%s:%d", *broker, *port),
			ClientID: *clientId,
			Prefix:   *prefix,
		})
		if err := b.AttachChannel(ctx, ch); err != nil {
			log.Fatal(err)
		}
		defer b.DetachChannel()
	}

	s := sched.NewScheduler(func(ctx context.Context, e *sched.Entry) {
		p, is := e.Msg.(*publication)
		if !is {
			return
		}
		if err := b.Publish(p.adv, p.data); err != nil {
			log.Printf("publish %s: %v", e.Id, err)
			return
		}
		util.Logf("orbgen fired %s", e.Id)
	}, clk)

	metas := make(map[string]*core.Meta)
	advs := make(map[string]*core.Advertiser)

	for _, e := range spec.Entries {
		if e.Id == "" || e.Topic == "" || e.Size <= 0 {
			log.Fatalf("entry needs id, topic, and size: %#v", e)
		}

		meta, have := metas[e.Topic]
		if !have {
			meta = &core.Meta{
				Name:      e.Topic,
				Size:      e.Size,
				QueueSize: e.QueueSize,
			}
			metas[e.Topic] = meta
		}

		data, err := payloadBytes(e.Payload, meta.Size)
		if err != nil {
			log.Fatalf("entry %s: %v", e.Id, err)
		}

		adv, have := advs[e.Topic]
		if !have {
			priority := e.Priority
			if priority == 0 {
				priority = core.PriorityDefault
			}
			if adv, err = b.Advertise(meta, data, priority); err != nil {
				log.Fatalf("advertise %s: %v", e.Topic, err)
			}
			advs[e.Topic] = adv
			if *push {
				b.AddSubscription(e.Topic, 0)
			}
		}

		msg := &publication{adv: adv, data: data}

		switch {
		case e.Every != "":
			d, err := time.ParseDuration(e.Every)
			if err != nil {
				log.Fatalf("entry %s: %v", e.Id, err)
			}
			err = s.AddEvery(ctx, e.Id, msg, d)
			if err != nil {
				log.Fatalf("entry %s: %v", e.Id, err)
			}
		case e.At != "":
			at, err := time.Parse(time.RFC3339, e.At)
			if err != nil {
				log.Fatalf("entry %s: %v", e.Id, err)
			}
			if err = s.AddAt(ctx, e.Id, msg, at); err != nil {
				log.Fatalf("entry %s: %v", e.Id, err)
			}
		case e.Cron != "":
			if err := s.AddCron(ctx, e.Id, msg, e.Cron); err != nil {
				log.Fatalf("entry %s: %v", e.Id, err)
			}
		default:
			log.Fatalf("entry %s has no schedule", e.Id)
		}
	}

	log.Printf("orbgen %s running %d entries on %d topics",
		spec.Module, len(spec.Entries), len(metas))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}
