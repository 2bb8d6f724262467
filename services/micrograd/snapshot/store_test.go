// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/Kodylow/nn-zero-to-hero/services/micrograd/engine"
	"github.com/Kodylow/nn-zero-to-hero/services/micrograd/storage/badger"
	dgbadger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := badger.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db, nil)
}

// testView exports (a * b) after a backward pass.
func testView(t *testing.T) *engine.View {
	t.Helper()
	ctx := context.Background()
	g := engine.NewGraph()
	a := g.Leaf("a", 2)
	b := g.Leaf("b", -3)
	c, err := g.Mul(a, b)
	require.NoError(t, err)
	require.NoError(t, g.Backward(ctx, c))
	view, err := g.Export(ctx, c)
	require.NoError(t, err)
	return view
}

func TestStore_PutGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	view := testView(t)
	require.NoError(t, store.Put(ctx, &Snapshot{RunID: "run1", Step: 3, Loss: 0.25, View: view}))

	got, err := store.Get(ctx, "run1", 3)
	require.NoError(t, err)
	assert.Equal(t, "run1", got.RunID)
	assert.Equal(t, 3, got.Step)
	assert.Equal(t, 0.25, got.Loss)
	assert.True(t, fixed.Equal(got.CreatedAt))
	assert.Equal(t, view, got.View)
}

func TestStore_PutReplaces(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	view := testView(t)

	require.NoError(t, store.Put(ctx, &Snapshot{RunID: "r", Step: 0, Loss: 1, View: view}))
	require.NoError(t, store.Put(ctx, &Snapshot{RunID: "r", Step: 0, Loss: 2, View: view}))

	got, err := store.Get(ctx, "r", 0)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got.Loss)
}

func TestStore_GetNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), "missing", 0)
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestStore_InvalidInput(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	view := testView(t)

	tests := []struct {
		name string
		snap *Snapshot
		want error
	}{
		{"nil snapshot", nil, ErrInvalidSnapshot},
		{"nil view", &Snapshot{RunID: "r", Step: 0}, ErrInvalidSnapshot},
		{"negative step", &Snapshot{RunID: "r", Step: -1, View: view}, ErrInvalidSnapshot},
		{"empty run", &Snapshot{RunID: "", Step: 0, View: view}, ErrInvalidRunID},
		{"slash in run", &Snapshot{RunID: "a/b", Step: 0, View: view}, ErrInvalidRunID},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, store.Put(ctx, tc.snap), tc.want)
		})
	}

	_, err := store.Get(ctx, "", 0)
	assert.ErrorIs(t, err, ErrInvalidRunID)
	_, err = store.List(ctx, "x/y")
	assert.ErrorIs(t, err, ErrInvalidRunID)
}

func TestStore_ListInStepOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	view := testView(t)

	for _, step := range []int{20, 5, 100, 0} {
		require.NoError(t, store.Put(ctx, &Snapshot{RunID: "run", Step: step, Loss: float64(step), View: view}))
	}
	// Another run whose id shares a prefix must not leak into the listing.
	require.NoError(t, store.Put(ctx, &Snapshot{RunID: "run-2", Step: 1, View: view}))

	list, err := store.List(ctx, "run")
	require.NoError(t, err)
	require.Len(t, list, 4)

	steps := make([]int, len(list))
	for i, s := range list {
		steps[i] = s.Step
		assert.Equal(t, 3, s.Nodes)
		assert.Equal(t, 2, s.Edges)
	}
	assert.Equal(t, []int{0, 5, 20, 100}, steps)

	empty, err := store.List(ctx, "nothing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStore_Runs(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	view := testView(t)

	runs, err := store.Runs(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)

	for _, run := range []string{"b", "a", "b", "a-1"} {
		for step := 0; step < 2; step++ {
			require.NoError(t, store.Put(ctx, &Snapshot{RunID: run, Step: step, View: view}))
		}
	}

	runs, err = store.Runs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a-1", "a", "b"}, runs)
}

func TestStore_DeleteRun(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	view := testView(t)

	for step := 0; step < 3; step++ {
		require.NoError(t, store.Put(ctx, &Snapshot{RunID: "gone", Step: step, View: view}))
	}
	require.NoError(t, store.Put(ctx, &Snapshot{RunID: "kept", Step: 0, View: view}))

	n, err := store.DeleteRun(ctx, "gone")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	runs, err := store.Runs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"kept"}, runs)
}

func TestStore_DeleteRun_MoreKeysThanOneTransaction(t *testing.T) {
	if testing.Short() {
		t.Skip("writes 150k keys")
	}
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Put(ctx, &Snapshot{RunID: "kept", Step: 0, View: testView(t)}))

	const total = 150_000
	const batch = 10_000
	for start := 0; start < total; start += batch {
		err := store.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
			for step := start; step < start+batch; step++ {
				if err := txn.Set(stepKey("big", step), []byte("{}")); err != nil {
					return err
				}
			}
			return nil
		})
		require.NoError(t, err)
	}

	n, err := store.DeleteRun(ctx, "big")
	require.NoError(t, err)
	assert.Equal(t, total, n)

	summaries, err := store.List(ctx, "big")
	require.NoError(t, err)
	assert.Empty(t, summaries)

	runs, err := store.Runs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"kept"}, runs)
}

func TestStore_CancelledContext(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Put(ctx, &Snapshot{RunID: "r", View: testView(t)})
	assert.ErrorIs(t, err, context.Canceled)
}
