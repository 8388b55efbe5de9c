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

// Package main is a bus daemon that bridges local topics to an MQTT
// broker.
//
// The command line args follow those for mosquitto_sub.
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
	"github.com/Comcast/orb/rules"
	"github.com/Comcast/orb/util"
)

// TopicConfig declares one topic the daemon should carry.
type TopicConfig struct {
	Name      string `yaml:"name"`
	Size      int    `yaml:"size"`
	QueueSize int    `yaml:"queue_size,omitempty"`

	// RateHz limits the forwarding request sent to remote peers.
	// Zero means unlimited.
	RateHz int `yaml:"rate_hz,omitempty"`
}

// Config is the daemon's YAML configuration.
type Config struct {
	Module string        `yaml:"module"`
	Topics []TopicConfig `yaml:"topics"`
}

func main() {

	var (
		// Follow mosquitto_sub command line args.

		broker    = flag.String("h", "tcp://localhost", "Broker hostname")
		clientId  = flag.String("i", "", "Client id (required)")
		port      = flag.Int("p", 1883, "Broker port")
		keepAlive = flag.Int("k", 600, "Keep-alive in seconds")
		userName  = flag.String("u", "", "Username")
		password  = flag.String("P", "", "Password")
		qos       = flag.Int("q", 0, "QoS")
		quiesce   = flag.Int("quiesce", 100, "Disconnection quiescence (in milliseconds)")

		prefix     = flag.String("prefix", "orb", "Bridge topic prefix")
		configFile = flag.String("c", "", "Topics config filename (YAML)")
		rulesFile  = flag.String("rules", "", "Optional publisher rules filename")
		verbose    = flag.Bool("v", false, "Verbosity")
	)

	flag.Parse()

	util.Logging = *verbose

	if *clientId == "" {
		log.Fatal("client id (-i) is required")
	}
	if *configFile == "" {
		log.Fatal("config (-c) is required")
	}

	bs, err := ioutil.ReadFile(*configFile)
	if err != nil {
		log.Fatal(err)
	}
	var cfg Config
	if err := yaml.Unmarshal(bs, &cfg); err != nil {
		log.Fatalf("config %s: %v", *configFile, err)
	}
	if cfg.Module == "" {
		cfg.Module = *clientId
	}

	var policy *rules.Policy
	if *rulesFile != "" {
		if policy, err = rules.ParseFile(*rulesFile); err != nil {
			log.Fatalf("rules %s: %v", *rulesFile, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := bus.New(cfg.Module, policy, clock.New())

	ch := mqttchan.NewChan(mqttchan.Config{
		Broker:    fmt.Sprintf("%s:%d", *broker, *port),
		ClientID:  *clientId,
		Prefix:    *prefix,
		QoS:       byte(*qos),
		Quiesce:   uint(*quiesce),
		Username:  *userName,
		Password:  *password,
		KeepAlive: time.Duration(*keepAlive) * time.Second,
	})

	if err := b.AttachChannel(ctx, ch); err != nil {
		log.Fatal(err)
	}

	for _, t := range cfg.Topics {
		meta := &core.Meta{
			Name:      t.Name,
			Size:      t.Size,
			QueueSize: t.QueueSize,
		}
		if _, err := b.SubscribeRemote(meta, t.RateHz); err != nil {
			log.Fatalf("topic %s: %v", t.Name, err)
		}
		util.Logf("orbmq carrying %s (%d bytes)", t.Name, t.Size)
	}

	log.Printf("orbmq %s bridging %d topics via %s", cfg.Module, len(cfg.Topics), *broker)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	if err := b.DetachChannel(); err != nil {
		log.Printf("detach: %v", err)
	}
}
