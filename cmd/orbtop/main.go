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

// Package main is a live topic monitor.  It shows publish rates and
// generations for the topics it carries, optionally selected by an
// ECMAScript predicate over each row:
//
//	orbtop -t gps:16:4,imu:32 -h tcp://localhost \
//	    -filter '_.rate > 5 || _.name == "gps"'
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/Comcast/orb/bridge/mqttchan"
	"github.com/Comcast/orb/bus"
	"github.com/Comcast/orb/core"
	"github.com/Comcast/orb/filter"
	"github.com/Comcast/orb/util"
)

func parseTopicSpec(spec string) (*core.Meta, error) {
	parts := strings.Split(spec, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return nil, fmt.Errorf("bad topic spec '%s'", spec)
	}
	size, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("bad size in '%s': %v", spec, err)
	}
	m := &core.Meta{Name: parts[0], Size: size}
	if len(parts) == 3 {
		if m.QueueSize, err = strconv.Atoi(parts[2]); err != nil {
			return nil, fmt.Errorf("bad queue in '%s': %v", spec, err)
		}
	}
	return m, nil
}

func main() {

	var (
		topics   = flag.String("t", "", "Topic spec(s): name:size[:queue],...")
		interval = flag.Duration("interval", time.Second, "Refresh interval")
		count    = flag.Int("n", 0, "Number of refreshes (0 means forever)")
		src      = flag.String("filter", "", "Optional row predicate (row bound to _)")
		clear    = flag.Bool("clear", true, "Clear the screen between refreshes")

		broker   = flag.String("h", "", "Optional broker hostname for bridged topics")
		clientId = flag.String("i", "orbtop", "Client id")
		port     = flag.Int("p", 1883, "Broker port")
		prefix   = flag.String("prefix", "orb", "Bridge topic prefix")

		verbose = flag.Bool("v", false, "Verbosity")
	)

	flag.Parse()

	util.Logging = *verbose

	var f *filter.Filter
	if *src != "" {
		var err error
		if f, err = filter.Compile(*src); err != nil {
			log.Fatalf("filter: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := bus.New(*clientId, nil, clock.New())

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

	if *topics != "" {
		for _, spec := range strings.Split(*topics, ",") {
			meta, err := parseTopicSpec(spec)
			if err != nil {
				log.Fatal(err)
			}
			if _, err := b.SubscribeRemote(meta, 0); err != nil {
				log.Fatalf("subscribe %s: %v", meta.Name, err)
			}
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	prev := make(map[string]uint64)
	last := time.Now()

	for i := 0; *count == 0 || i < *count; i++ {
		select {
		case <-sig:
			return
		case <-ticker.C:
		}

		now := time.Now()
		dt := now.Sub(last).Seconds()
		last = now

		if *clear {
			fmt.Print("\033[2J\033[H")
		}
		fmt.Printf("%-24s %4s %6s %6s %10s %4s %7s\n",
			"TOPIC", "INST", "SIZE", "QUEUE", "GEN", "PRI", "RATE")

		b.Walk(func(path string, n *core.Node) {
			gen := n.Generation()
			rate := float64(gen-prev[path]) / dt
			prev[path] = gen

			if f != nil {
				row := map[string]interface{}{
					"name":       n.Meta().Name,
					"instance":   n.Instance(),
					"size":       n.Meta().Size,
					"queue":      n.QueueSize(),
					"generation": gen,
					"priority":   n.Priority(),
					"rate":       rate,
					"remote":     n.RemotePublisher(),
				}
				match, err := f.Match(ctx, row)
				if err != nil {
					util.Logf("orbtop filter %s: %v", path, err)
					return
				}
				if !match {
					return
				}
			}

			fmt.Printf("%-24s %4d %6d %6d %10d %4d %7.1f\n",
				n.Meta().Name, n.Instance(), n.Meta().Size,
				n.QueueSize(), gen, n.Priority(), rate)
		})
	}
}
