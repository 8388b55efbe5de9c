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

// Package main is a flight recorder: it subscribes to topics, polls
// for new samples, and records them in a bolt file.  It can also
// replay what it recorded.
//
//	orbrec -db flight.db -t gps:16:4,imu:32
//	orbrec -db flight.db -replay gps
//	orbrec -db flight.db -list
package main

import (
	"context"
	"encoding/json"
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
	"github.com/Comcast/orb/storage"
	"github.com/Comcast/orb/storage/boltrec"
	"github.com/Comcast/orb/util"
)

// parseTopicSpec parses "name:size[:queue]".
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
		dbFile = flag.String("db", "orb.db", "Recording filename")
		topics = flag.String("t", "", "Topic spec(s): name:size[:queue],...")
		poll   = flag.Duration("poll", 100*time.Millisecond, "Poll interval")

		replay = flag.String("replay", "", "Replay a recorded topic (name[/instance]) and exit")
		list   = flag.Bool("list", false, "List recorded topics and exit")

		broker   = flag.String("h", "", "Optional broker hostname for bridged topics")
		clientId = flag.String("i", "orbrec", "Client id")
		port     = flag.Int("p", 1883, "Broker port")
		prefix   = flag.String("prefix", "orb", "Bridge topic prefix")

		verbose = flag.Bool("v", false, "Verbosity")
	)

	flag.Parse()

	util.Logging = *verbose

	rec, err := boltrec.NewRecorder(*dbFile)
	if err != nil {
		log.Fatal(err)
	}
	rec.Debug = *verbose
	if err := rec.Open(); err != nil {
		log.Fatal(err)
	}
	defer rec.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *list {
		names, err := rec.Topics()
		if err != nil {
			log.Fatal(err)
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return
	}

	if *replay != "" {
		name, instance := *replay, 0
		if i := strings.LastIndex(name, "/"); 0 < i {
			if instance, err = strconv.Atoi(name[i+1:]); err != nil {
				log.Fatalf("bad replay target '%s'", *replay)
			}
			name = name[:i]
		}
		err := rec.Replay(ctx, name, instance, func(s *storage.Sample) error {
			js, err := json.Marshal(s)
			if err != nil {
				return err
			}
			fmt.Println(string(js))
			return nil
		})
		if err != nil {
			log.Fatal(err)
		}
		return
	}

	if *topics == "" {
		log.Fatal("nothing to record (-t)")
	}

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

	type tracked struct {
		meta *core.Meta
		h    int
		buf  []byte
		seq  uint64
	}

	var watch []*tracked
	for _, spec := range strings.Split(*topics, ",") {
		meta, err := parseTopicSpec(spec)
		if err != nil {
			log.Fatal(err)
		}
		h, err := b.SubscribeRemote(meta, 0)
		if err != nil {
			log.Fatalf("subscribe %s: %v", meta.Name, err)
		}
		watch = append(watch, &tracked{
			meta: meta,
			h:    h,
			buf:  make([]byte, meta.Size),
		})
	}

	log.Printf("orbrec recording %d topics to %s", len(watch), *dbFile)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(*poll)
	defer ticker.Stop()

	for {
		select {
		case <-sig:
			return
		case <-ticker.C:
		}
		for _, w := range watch {
			for {
				updated, err := b.Check(w.h)
				if err != nil {
					log.Fatalf("check %s: %v", w.meta.Name, err)
				}
				if !updated {
					break
				}
				if err := b.Copy(w.meta, w.h, w.buf); err != nil {
					log.Fatalf("copy %s: %v", w.meta.Name, err)
				}
				ts, err := b.Stat(w.h)
				if err != nil {
					log.Fatalf("stat %s: %v", w.meta.Name, err)
				}
				w.seq++
				s := &storage.Sample{
					Topic:      w.meta.Name,
					Instance:   0,
					Generation: w.seq,
					TimeUS:     ts,
					Data:       append([]byte(nil), w.buf...),
				}
				if err := rec.Record(ctx, s); err != nil {
					log.Fatalf("record %s: %v", w.meta.Name, err)
				}
			}
		}
	}
}
