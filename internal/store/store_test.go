// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	badgerStore, err := OpenBadger(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = badgerStore.Close() })
	return map[string]Store{
		"badger": badgerStore,
		"memory": NewMemory(),
	}
}

func TestExecutionLifecycle(t *testing.T) {
	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := &ExecutionRecord{
				SessionID:   "sess-1",
				ExecutionID: "exec-1",
				ASTName:     "login",
				Mode:        "sequential",
				Status:      "running",
				ItemCount:   3,
				StartedAt:   time.Now().UTC().Truncate(time.Millisecond),
			}
			require.NoError(t, st.PutExecution(ctx, rec))

			completed := time.Now().UTC()
			updated, err := st.UpdateExecution(ctx, "sess-1", "exec-1", func(r *ExecutionRecord) {
				r.Status = "success"
				r.SuccessCount = 3
				r.CompletedAt = &completed
			})
			require.NoError(t, err)
			assert.Equal(t, "success", updated.Status)
			assert.Equal(t, 3, updated.SuccessCount)
			require.NotNil(t, updated.CompletedAt)

			execs, err := st.ListExecutions(ctx, "sess-1")
			require.NoError(t, err)
			require.Len(t, execs, 1)
			assert.Equal(t, "success", execs[0].Status)
			assert.Equal(t, "login", execs[0].ASTName)
		})
	}
}

func TestUpdateExecutionNotFound(t *testing.T) {
	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := st.UpdateExecution(context.Background(), "nope", "nope", func(*ExecutionRecord) {})
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestPutExecutionIsIdempotentUpsert(t *testing.T) {
	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := &ExecutionRecord{SessionID: "s", ExecutionID: "e", Status: "running", StartedAt: time.Now().UTC()}
			require.NoError(t, st.PutExecution(ctx, rec))
			require.NoError(t, st.PutExecution(ctx, rec))

			execs, err := st.ListExecutions(ctx, "s")
			require.NoError(t, err)
			assert.Len(t, execs, 1)
		})
	}
}

func TestItemResults(t *testing.T) {
	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i, id := range []string{"POL0000001", "POL0000002"} {
				rec := &ItemResultRecord{
					ExecutionID: "exec-1",
					ItemID:      id,
					Status:      "success",
					DurationMS:  int64(100 * (i + 1)),
					Data:        map[string]any{"policyNumber": id},
					RecordedAt:  time.Now().UTC().Add(time.Duration(i) * time.Millisecond),
				}
				require.NoError(t, st.PutItemResult(ctx, rec))
			}
			// Retried write for the same key must not duplicate.
			require.NoError(t, st.PutItemResult(ctx, &ItemResultRecord{
				ExecutionID: "exec-1", ItemID: "POL0000001", Status: "success", RecordedAt: time.Now().UTC(),
			}))

			items, err := st.ListItemResults(ctx, "exec-1")
			require.NoError(t, err)
			assert.Len(t, items, 2)

			other, err := st.ListItemResults(ctx, "exec-2")
			require.NoError(t, err)
			assert.Empty(t, other)
		})
	}
}
