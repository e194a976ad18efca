// Copyright 2025 The Cockroach Authors
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
//
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestVar(t *testing.T) {
	r := require.New(t)

	var zero Var[int]
	v, _ := zero.Get()
	r.Equal(0, v)

	x := VarOf("a")
	v2, changed := x.Get()
	r.Equal("a", v2)

	go func() {
		time.Sleep(10 * time.Millisecond)
		x.Set("b")
	}()

	select {
	case <-changed:
	case <-time.After(10 * time.Second):
		r.Fail("timed out waiting for change")
	}
	v2, changed = x.Get()
	r.Equal("b", v2)

	// The new channel only fires on the next Set.
	select {
	case <-changed:
		r.Fail("spurious change notification")
	default:
	}
}
