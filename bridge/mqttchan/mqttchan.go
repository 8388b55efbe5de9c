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

// Package mqttchan carries bus traffic over an MQTT broker.
//
// The wire layout under the configured prefix:
//
//	<prefix>/adv/<src>/<name>             JSON advertise record
//	<prefix>/sub/<src>/<name>             JSON subscription record
//	<prefix>/data/<src>/<name>/<instance> raw sample bytes
//
// where <src> is the sender's client id.  A channel ignores its own
// traffic, so two processes sharing a broker see each other and not
// themselves.
package mqttchan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Comcast/orb/bridge"
	"github.com/Comcast/orb/util"
)

// Config says how to reach the broker.
type Config struct {
	// Broker is the broker URL, like "tcp://localhost:1883".
	Broker string

	// ClientID identifies this process; it must differ between the
	// two ends.
	ClientID string

	// Prefix is the topic namespace.  Empty means "orb".
	Prefix string

	// QoS for everything we publish.
	QoS byte

	// Quiesce is the disconnection quiescence in milliseconds.
	Quiesce uint

	Username  string
	Password  string
	KeepAlive time.Duration
}

// Chan is a bridge.Channel over MQTT.
type Chan struct {
	cfg     Config
	client  mqtt.Client
	handler bridge.Handler
}

// NewChan builds an unstarted channel.
func NewChan(cfg Config) *Chan {
	if cfg.Prefix == "" {
		cfg.Prefix = "orb"
	}
	if cfg.Quiesce == 0 {
		cfg.Quiesce = 100
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 600 * time.Second
	}
	return &Chan{cfg: cfg}
}

type advRecord struct {
	Priority  int  `json:"priority"`
	Advertise bool `json:"advertise"`
}

type subRecord struct {
	RateHz    int  `json:"rate_hz"`
	Subscribe bool `json:"subscribe"`
}

// Start connects and subscribes to the peer namespaces.
func (c *Chan) Start(ctx context.Context, h bridge.Handler) error {
	if c.cfg.ClientID == "" {
		return errors.New("mqttchan: no client id")
	}
	c.handler = h

	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.cfg.Broker)
	opts.SetClientID(c.cfg.ClientID)
	opts.SetKeepAlive(c.cfg.KeepAlive)
	opts.SetPingTimeout(10 * time.Second)
	opts.Username = c.cfg.Username
	opts.Password = c.cfg.Password
	opts.AutoReconnect = true
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		util.Logf("mqttchan connection lost: %v", err)
	}
	opts.DefaultPublishHandler = func(client mqtt.Client, msg mqtt.Message) {
		c.dispatch(msg.Topic(), msg.Payload())
	}

	c.client = mqtt.NewClient(opts)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}

	for _, filter := range []string{
		c.cfg.Prefix + "/adv/#",
		c.cfg.Prefix + "/sub/#",
		c.cfg.Prefix + "/data/#",
	} {
		if token := c.client.Subscribe(filter, c.cfg.QoS, nil); token.Wait() && token.Error() != nil {
			return token.Error()
		}
	}
	return nil
}

func (c *Chan) dispatch(topic string, payload []byte) {
	kind, src, name, instance, ok := splitTopic(c.cfg.Prefix, topic)
	if !ok {
		util.Logf("mqttchan ignoring %s", topic)
		return
	}
	if src == c.cfg.ClientID {
		return
	}
	switch kind {
	case "adv":
		var rec advRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			util.Logf("mqttchan bad advertise on %s: %v", topic, err)
			return
		}
		c.handler.RemoteTopic(name, rec.Advertise)
	case "sub":
		var rec subRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			util.Logf("mqttchan bad subscription on %s: %v", topic, err)
			return
		}
		if rec.Subscribe {
			c.handler.AddSubscription(name, rec.RateHz)
		} else {
			c.handler.RemoveSubscription(name)
		}
	case "data":
		_ = instance
		if err := c.handler.ReceivedSample(name, payload); err != nil {
			util.Logf("mqttchan sample %s: %v", name, err)
		}
	}
}

func (c *Chan) publish(topic string, payload []byte) error {
	if c.client == nil {
		return errors.New("mqttchan: not started")
	}
	token := c.client.Publish(topic, c.cfg.QoS, false, payload)
	token.Wait()
	return token.Error()
}

// SendAdvertise announces a local advertise or unadvertise.
func (c *Chan) SendAdvertise(name string, priority int, advertise bool) error {
	js, err := json.Marshal(advRecord{Priority: priority, Advertise: advertise})
	if err != nil {
		return err
	}
	return c.publish(joinTopic(c.cfg.Prefix, "adv", c.cfg.ClientID, name, -1), js)
}

// SendSubscription asks the peer to forward (or stop forwarding) a
// topic.
func (c *Chan) SendSubscription(name string, rateHz int, subscribe bool) error {
	js, err := json.Marshal(subRecord{RateHz: rateHz, Subscribe: subscribe})
	if err != nil {
		return err
	}
	return c.publish(joinTopic(c.cfg.Prefix, "sub", c.cfg.ClientID, name, -1), js)
}

// SendSample forwards one local sample.
func (c *Chan) SendSample(name string, instance int, data []byte) error {
	return c.publish(joinTopic(c.cfg.Prefix, "data", c.cfg.ClientID, name, instance), data)
}

// Stop disconnects from the broker.
func (c *Chan) Stop() error {
	if c.client != nil {
		c.client.Disconnect(c.cfg.Quiesce)
	}
	return nil
}

func joinTopic(prefix, kind, src, name string, instance int) string {
	if instance < 0 {
		return fmt.Sprintf("%s/%s/%s/%s", prefix, kind, src, name)
	}
	return fmt.Sprintf("%s/%s/%s/%s/%d", prefix, kind, src, name, instance)
}

func splitTopic(prefix, topic string) (kind, src, name string, instance int, ok bool) {
	if !strings.HasPrefix(topic, prefix+"/") {
		return "", "", "", 0, false
	}
	parts := strings.Split(topic[len(prefix)+1:], "/")
	if len(parts) < 3 {
		return "", "", "", 0, false
	}
	kind, src, name = parts[0], parts[1], parts[2]
	switch kind {
	case "adv", "sub":
		if len(parts) != 3 {
			return "", "", "", 0, false
		}
		return kind, src, name, 0, true
	case "data":
		if len(parts) != 4 {
			return "", "", "", 0, false
		}
		n, err := strconv.Atoi(parts[3])
		if err != nil || n < 0 {
			return "", "", "", 0, false
		}
		return kind, src, name, n, true
	}
	return "", "", "", 0, false
}
