// Copyright 2026 The Keelson Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package clock

import (
	"testing"
	"time"
)

func TestRealAfterFuncFires(t *testing.T) {
	fired := make(chan struct{})
	Real().AfterFunc(time.Millisecond, func() { close(fired) })
	select {
	case <-fired:
	case <-time.After(10 * time.Second):
		t.Fatalf("timer did not fire")
	}
}

func TestRealStopPreventsFiring(t *testing.T) {
	timer := Real().AfterFunc(time.Hour, func() {
		t.Errorf("stopped timer fired")
	})
	if !timer.Stop() {
		t.Fatalf("Stop on a pending timer returned false")
	}
}

func TestRealNow(t *testing.T) {
	before := time.Now()
	now := Real().Now()
	after := time.Now()
	if now.Before(before) || now.After(after) {
		t.Errorf("Real().Now() = %v, want between %v and %v", now, before, after)
	}
}
