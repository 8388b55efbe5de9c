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

// Package wschan carries bus traffic over WebSockets, as JSON text
// frames.  One end dials (URL set) and the other listens (Listen
// set); both ends speak the same frame format, so a channel works in
// either role.
package wschan

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"sync"

	"github.com/gorilla/websocket"
	"golang.org/x/net/publicsuffix"

	"github.com/Comcast/orb/bridge"
	"github.com/Comcast/orb/util"
)

// Config picks the channel's role.  Exactly one of URL and Listen
// should be set.
type Config struct {
	// URL is the peer to dial, like "ws://host:8124/orb".
	URL string

	// Listen is the address to serve on, like ":8124".
	Listen string

	// Path is the server endpoint.  Empty means "/orb".
	Path string
}

type frame struct {
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	Priority  int    `json:"priority,omitempty"`
	Advertise bool   `json:"advertise,omitempty"`
	RateHz    int    `json:"rate_hz,omitempty"`
	Subscribe bool   `json:"subscribe,omitempty"`
	Instance  int    `json:"instance,omitempty"`
	Payload   []byte `json:"payload,omitempty"`
}

// Chan is a bridge.Channel over WebSockets.
type Chan struct {
	cfg     Config
	handler bridge.Handler

	mu    sync.Mutex
	conns map[*websocket.Conn]bool
	srv   *http.Server
}

// NewChan builds an unstarted channel.
func NewChan(cfg Config) *Chan {
	if cfg.Path == "" {
		cfg.Path = "/orb"
	}
	return &Chan{
		cfg:   cfg,
		conns: make(map[*websocket.Conn]bool),
	}
}

// Start either dials the peer or begins serving, per the config.
func (c *Chan) Start(ctx context.Context, h bridge.Handler) error {
	c.handler = h

	switch {
	case c.cfg.URL != "":
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return err
		}
		dialer := websocket.Dialer{Jar: jar}
		conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
		if err != nil {
			return err
		}
		c.add(conn)
		go c.readLoop(ctx, conn)
		return nil

	case c.cfg.Listen != "":
		var upgrader = websocket.Upgrader{} // use default options
		mux := http.NewServeMux()
		mux.HandleFunc(c.cfg.Path, func(w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				util.Logf("wschan upgrade: %v", err)
				return
			}
			c.add(conn)
			go c.readLoop(ctx, conn)
		})
		c.srv = &http.Server{Addr: c.cfg.Listen, Handler: mux}
		go func() {
			if err := c.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				util.Logf("wschan serve: %v", err)
			}
		}()
		return nil
	}
	return errors.New("wschan: neither URL nor Listen set")
}

func (c *Chan) add(conn *websocket.Conn) {
	c.mu.Lock()
	c.conns[conn] = true
	c.mu.Unlock()
}

func (c *Chan) drop(conn *websocket.Conn) {
	c.mu.Lock()
	delete(c.conns, conn)
	c.mu.Unlock()
	conn.Close()
}

func (c *Chan) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer c.drop(conn)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, bs, err := conn.ReadMessage()
		if err != nil {
			util.Logf("wschan read: %v", err)
			return
		}
		if len(bs) == 0 {
			continue
		}
		var f frame
		if err := json.Unmarshal(bs, &f); err != nil {
			util.Logf("wschan bad frame %s: %v", bs, err)
			continue
		}
		c.dispatch(f)
	}
}

func (c *Chan) dispatch(f frame) {
	switch f.Kind {
	case "adv":
		c.handler.RemoteTopic(f.Name, f.Advertise)
	case "sub":
		if f.Subscribe {
			c.handler.AddSubscription(f.Name, f.RateHz)
		} else {
			c.handler.RemoveSubscription(f.Name)
		}
	case "data":
		if err := c.handler.ReceivedSample(f.Name, f.Payload); err != nil {
			util.Logf("wschan sample %s: %v", f.Name, err)
		}
	default:
		util.Logf("wschan ignoring frame kind %q", f.Kind)
	}
}

// send marshals a frame and writes it to every live connection.
func (c *Chan) send(f frame) error {
	js, err := json.Marshal(&f)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.conns) == 0 {
		return errors.New("wschan: no connection")
	}
	for conn := range c.conns {
		if err := conn.WriteMessage(websocket.TextMessage, js); err != nil {
			util.Logf("wschan write: %v", err)
			delete(c.conns, conn)
			conn.Close()
		}
	}
	return nil
}

// SendAdvertise announces a local advertise or unadvertise.
func (c *Chan) SendAdvertise(name string, priority int, advertise bool) error {
	return c.send(frame{Kind: "adv", Name: name, Priority: priority, Advertise: advertise})
}

// SendSubscription asks the peer to forward (or stop forwarding) a
// topic.
func (c *Chan) SendSubscription(name string, rateHz int, subscribe bool) error {
	return c.send(frame{Kind: "sub", Name: name, RateHz: rateHz, Subscribe: subscribe})
}

// SendSample forwards one local sample.
func (c *Chan) SendSample(name string, instance int, data []byte) error {
	return c.send(frame{Kind: "data", Name: name, Instance: instance, Payload: data})
}

// Stop closes every connection and, in server mode, the listener.
func (c *Chan) Stop() error {
	c.mu.Lock()
	for conn := range c.conns {
		conn.Close()
		delete(c.conns, conn)
	}
	srv := c.srv
	c.mu.Unlock()
	if srv != nil {
		return srv.Close()
	}
	return nil
}
