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

package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEpoch(t *testing.T) {
	r := require.New(t)

	e := Start()
	at := e.Time(250 * time.Millisecond)
	r.Equal(250*time.Millisecond, at.Sub(e.Time(0)))

	time.Sleep(time.Millisecond)
	r.GreaterOrEqual(e.Since(), time.Millisecond)
}
