// Copyright 2025 The Keelson Authors.
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

package log

import (
	"time"
)

// TestLogger is implemented by testing.T and testing.B.
type TestLogger interface {
	Logf(format string, v ...any)
}

// TestEmitter may be used for wrapping tests.
type TestEmitter struct {
	TestLogger
}

// Emit implements Emitter.Emit.
func (t TestEmitter) Emit(_ int, _ Level, _ time.Time, format string, v ...any) {
	t.Logf(format, v...)
}

// TestLog returns a logger which logs to the provided TestLogger.
func TestLog(t TestLogger) Logger {
	return &BasicLogger{
		Level:   Debug,
		Emitter: TestEmitter{t},
	}
}
