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

// Package filter evaluates ECMAScript predicates over topic records.
// Monitoring tools use a Filter to select which topics to show, e.g.
//
//	_.name == "gps" && _.rate > 5
//
// The record is bound to "_".
package filter

import (
	"context"
	"errors"
	"time"

	"github.com/dop251/goja"
)

var (
	// InterruptedMessage is the string value of Interrupted.
	InterruptedMessage = "RuntimeError: timeout"

	// Interrupted is returned by Match if the evaluation is
	// interrupted.
	Interrupted = errors.New(InterruptedMessage)

	// DefaultTimeout bounds an evaluation when the caller's context
	// has no deadline.
	DefaultTimeout = time.Second
)

// Filter is a compiled predicate.
type Filter struct {
	src  string
	prog *goja.Program
}

// Compile parses and compiles the predicate source.
func Compile(src string) (*Filter, error) {
	prog, err := goja.Compile("", src, true)
	if err != nil {
		return nil, err
	}
	return &Filter{src: src, prog: prog}, nil
}

// Src returns the predicate source.
func (f *Filter) Src() string { return f.src }

// Match evaluates the predicate with the record bound to "_" and
// returns the result's truthiness.  A runaway predicate is
// interrupted when the context is done or the default timeout
// passes.
func (f *Filter) Match(ctx context.Context, record map[string]interface{}) (bool, error) {
	o := goja.New()
	o.Set("_", record)

	if _, have := ctx.Deadline(); !have {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	ictx, cancel := context.WithCancel(ctx)
	go func() {
		<-ictx.Done()
		// If Match calls cancel() after RunProgram returns, we'll
		// never see this InterruptedMessage, which is the behavior
		// we want.  In that case, we weren't actually interrupted.
		o.Interrupt(InterruptedMessage)
	}()

	v, err := o.RunProgram(f.prog)
	cancel()

	if err != nil {
		if _, is := err.(*goja.InterruptedError); is {
			return false, Interrupted
		}
		return false, err
	}
	return v.ToBoolean(), nil
}
