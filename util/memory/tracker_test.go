// Copyright 2022 CascadeDB, Inc.
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

package memory

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConsume(t *testing.T) {
	tracker := NewTracker(1, -1)
	require.Equal(t, int64(0), tracker.BytesConsumed())

	tracker.Consume(100)
	require.Equal(t, int64(100), tracker.BytesConsumed())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Consume(10)
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Consume(-10)
		}()
	}
	wg.Wait()
	require.Equal(t, int64(100), tracker.BytesConsumed())
	require.GreaterOrEqual(t, tracker.MaxConsumed(), int64(100))
}

func TestAttachToAndDetach(t *testing.T) {
	parent := NewTracker(1, -1)
	child := NewTracker(2, -1)
	child.Consume(100)

	child.AttachTo(parent)
	require.Equal(t, int64(100), parent.BytesConsumed())

	child.Consume(50)
	require.Equal(t, int64(150), parent.BytesConsumed())
	require.Equal(t, int64(150), child.BytesConsumed())

	child.Detach()
	require.Equal(t, int64(0), parent.BytesConsumed())
	require.Equal(t, int64(150), child.BytesConsumed())

	// Re-attaching to a new parent moves the consumption over.
	newParent := NewTracker(3, -1)
	child.AttachTo(parent)
	child.AttachTo(newParent)
	require.Equal(t, int64(0), parent.BytesConsumed())
	require.Equal(t, int64(150), newParent.BytesConsumed())
	require.Same(t, child, newParent.SearchTrackerWithoutLock(2))
}

func TestReplaceBytesUsed(t *testing.T) {
	parent := NewTracker(1, -1)
	child := NewTracker(2, -1)
	child.AttachTo(parent)

	child.Consume(100)
	child.ReplaceBytesUsed(30)
	require.Equal(t, int64(30), child.BytesConsumed())
	require.Equal(t, int64(30), parent.BytesConsumed())
}

type mockAction struct {
	BaseOOMAction
	priority int64
	called   int
}

func (a *mockAction) Action(*Tracker) {
	a.called++
	if fallback := a.GetFallback(); fallback != nil {
		fallback.Action(nil)
	}
}

func (a *mockAction) GetPriority() int64 {
	return a.priority
}

func TestActionOnExceed(t *testing.T) {
	tracker := NewTracker(1, 100)
	action := &mockAction{priority: DefSpillPriority}
	tracker.SetActionOnExceed(action)

	tracker.Consume(99)
	require.Equal(t, 0, action.called)
	tracker.Consume(2)
	require.Equal(t, 1, action.called)
	require.True(t, tracker.CheckExceed())
}

func TestFallbackPriorityOrder(t *testing.T) {
	tracker := NewTracker(1, 100)
	low := &mockAction{priority: DefLogPriority}
	high := &mockAction{priority: DefSpillPriority}
	tracker.SetActionOnExceed(low)
	tracker.FallbackOldAndSetNewAction(high)

	// The higher priority action runs first, the lower one is its fallback.
	tracker.Consume(200)
	require.Equal(t, 1, high.called)
	require.Equal(t, 1, low.called)

	// Finished fallbacks are skipped.
	low.SetFinished()
	require.Nil(t, high.GetFallback())
}

func TestFormatBytes(t *testing.T) {
	require.Equal(t, "0 Bytes", FormatBytes(0))
	require.Equal(t, "1024 Bytes", FormatBytes(1024))
	require.Equal(t, "1.00 KB", FormatBytes(1<<10+1))
	require.Equal(t, "1.50 MB", FormatBytes(3<<19))
	require.Equal(t, "1.00 GB", FormatBytes(1<<30+1))
}
