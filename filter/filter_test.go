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

package filter

import (
	"context"
	"testing"
	"time"
)

func TestMatch(t *testing.T) {
	f, err := Compile(`_.name == "gps" && _.rate > 5`)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()

	got, err := f.Match(ctx, map[string]interface{}{"name": "gps", "rate": 10})
	if err != nil {
		t.Fatal(err)
	}
	if !got {
		t.Fatal("expected match")
	}

	got, err = f.Match(ctx, map[string]interface{}{"name": "gps", "rate": 1})
	if err != nil {
		t.Fatal(err)
	}
	if got {
		t.Fatal("expected no match")
	}
}

func TestTruthiness(t *testing.T) {
	f, err := Compile(`_.generation`)
	if err != nil {
		t.Fatal(err)
	}
	got, err := f.Match(context.Background(), map[string]interface{}{"generation": 3})
	if err != nil {
		t.Fatal(err)
	}
	if !got {
		t.Fatal("nonzero should be truthy")
	}
}

func TestCompileError(t *testing.T) {
	if _, err := Compile(`this is not javascript`); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestInterrupt(t *testing.T) {
	f, err := Compile(`while (true) {}`)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := f.Match(ctx, nil); err != Interrupted {
		t.Fatalf("expected Interrupted, got %v", err)
	}
}
