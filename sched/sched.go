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

// Package sched fires scheduled publications: one-shot entries at an
// absolute time, repeating entries at a fixed period, and cron
// entries.  Test-signal generators and replay tools drive a bus
// through a Scheduler.
package sched

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorhill/cronexpr"
)

// Entry represents one pending schedule.
type Entry struct {
	Id  string
	Msg interface{}

	// Exactly one of At, Every, and Cron should be set.
	At    time.Time
	Every time.Duration
	Cron  string

	Ctl chan bool `json:"-"`

	expr  *cronexpr.Expression
	sched *Scheduler
	timer *clock.Timer
}

// Scheduler represents pending entries.
type Scheduler struct {
	Map     map[string]*Entry
	Emitter func(context.Context, *Entry) `json:"-"`

	sync.Mutex

	clk clock.Clock
}

// NewScheduler creates a Scheduler with the given function that the
// Entries will use to emit their messages.  Pass nil for the wall
// clock.
func NewScheduler(emitter func(context.Context, *Entry), clk clock.Clock) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	return &Scheduler{
		Map:     make(map[string]*Entry, 8),
		Emitter: emitter,
		clk:     clk,
	}
}

func (s *Scheduler) add(ctx context.Context, e *Entry) error {
	if _, have := s.Map[e.Id]; have {
		return fmt.Errorf("entry '%s' already exists", e.Id)
	}

	d, repeat, err := e.next(s.clk.Now())
	if err != nil {
		return err
	}

	s.Map[e.Id] = e
	e.sched = s
	e.timer = s.clk.Timer(d)

	go e.run(ctx, repeat)

	return nil
}

// AddAt schedules a one-shot entry.
func (s *Scheduler) AddAt(ctx context.Context, id string, msg interface{}, at time.Time) error {
	s.Lock()
	defer s.Unlock()
	return s.add(ctx, &Entry{
		Id:  id,
		Msg: msg,
		At:  at,
		Ctl: make(chan bool),
	})
}

// AddEvery schedules a repeating entry with a fixed period.
func (s *Scheduler) AddEvery(ctx context.Context, id string, msg interface{}, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("entry '%s': period %v isn't positive", id, d)
	}
	s.Lock()
	defer s.Unlock()
	return s.add(ctx, &Entry{
		Id:    id,
		Msg:   msg,
		Every: d,
		Ctl:   make(chan bool),
	})
}

// AddCron schedules a repeating entry driven by a cron expression.
func (s *Scheduler) AddCron(ctx context.Context, id string, msg interface{}, expr string) error {
	c, err := cronexpr.Parse(expr)
	if err != nil {
		return err
	}
	s.Lock()
	defer s.Unlock()
	return s.add(ctx, &Entry{
		Id:   id,
		Msg:  msg,
		Cron: expr,
		Ctl:  make(chan bool),
		expr: c,
	})
}

// next computes the delay to the entry's next firing.
func (e *Entry) next(now time.Time) (time.Duration, bool, error) {
	switch {
	case e.expr != nil:
		at := e.expr.Next(now)
		if at.IsZero() {
			return 0, false, fmt.Errorf("entry '%s': cron '%s' never fires", e.Id, e.Cron)
		}
		return at.Sub(now), true, nil
	case e.Every > 0:
		return e.Every, true, nil
	default:
		return e.At.Sub(now), false, nil
	}
}

// run waits for the entry's time, emits, and either reschedules or
// retires the entry.
func (e *Entry) run(ctx context.Context, repeat bool) {
	for {
		select {
		case <-e.timer.C:
			if repeat {
				d, _, err := e.next(e.sched.clk.Now())
				if err == nil {
					e.timer = e.sched.clk.Timer(d)
				} else {
					repeat = false
				}
			}
			e.sched.Emitter(ctx, e)
			if repeat {
				continue
			}
			e.sched.Lock()
			delete(e.sched.Map, e.Id)
			e.sched.Unlock()
			return
		case <-e.Ctl:
			e.timer.Stop()
			return
		case <-ctx.Done():
			e.timer.Stop()
			return
		}
	}
}

// Cancel attempts to cancel the entry with the given id.
func (s *Scheduler) Cancel(id string) error {
	s.Lock()
	defer s.Unlock()

	e, have := s.Map[id]
	if !have {
		return fmt.Errorf("entry '%s' doesn't exist", id)
	}
	delete(s.Map, id)
	close(e.Ctl)
	return nil
}

// Pending returns the ids of the entries still scheduled.
func (s *Scheduler) Pending() []string {
	s.Lock()
	defer s.Unlock()
	ids := make([]string, 0, len(s.Map))
	for id := range s.Map {
		ids = append(ids, id)
	}
	return ids
}
