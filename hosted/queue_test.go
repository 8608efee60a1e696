// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package hosted

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aumos-ai/wba-identity/did"
	"github.com/aumos-ai/wba-identity/types"
)

func newQueue(t *testing.T) (*FileQueue, string) {
	t.Helper()
	base := t.TempDir()
	q, err := NewFileQueue(QueueOptions{BaseDir: base, Host: "Host.Example", Port: 8800})
	require.NoError(t, err)
	return q, filepath.Join(base, "host.example_8800")
}

func pendingRecord(submitted time.Time) *Request {
	return &Request{
		RequestID:    uuid.NewString(),
		RequesterDID: "did:wba:example.com:wba:user:abc123",
		DIDDocument:  &did.Document{},
		SubmitTime:   submitted,
		Status:       types.StatusPending,
	}
}

// copyRecord simulates a transition interrupted after the new copy was written.
func copyRecord(t *testing.T, dir string, from, to types.RequestStatus, id string) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, string(from), id+".json"))
	require.NoError(t, err)
	var req Request
	require.NoError(t, json.Unmarshal(data, &req))
	req.Status = to
	data, err = json.Marshal(&req)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, string(to), id+".json"), data, 0o600))
}

func TestFileQueueLayout(t *testing.T) {
	q, dir := newQueue(t)
	for _, status := range types.AllStatuses {
		assert.DirExists(t, filepath.Join(dir, string(status)))
	}

	req := pendingRecord(time.Now().UTC())
	require.NoError(t, q.Create(context.Background(), req))
	info, err := os.Stat(filepath.Join(dir, "pending", req.RequestID+".json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := q.Get(context.Background(), req.RequestID)
	require.NoError(t, err)
	assert.Equal(t, req.RequesterDID, got.RequesterDID)
	assert.Equal(t, types.StatusPending, got.Status)

	var rejected *types.ErrRequestRejected
	require.ErrorAs(t, q.Create(context.Background(), req), &rejected)
}

func TestFileQueueListOrdersBySubmitTime(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var want []string
	for _, offset := range []int{3, 1, 2} {
		req := pendingRecord(base.Add(time.Duration(offset) * time.Minute))
		require.NoError(t, q.Create(ctx, req))
		want = append(want, req.RequestID)
	}
	want = []string{want[1], want[2], want[0]}

	list, err := q.List(ctx, types.StatusPending)
	require.NoError(t, err)
	var got []string
	for _, r := range list {
		got = append(got, r.RequestID)
	}
	assert.Equal(t, want, got)

	empty, err := q.List(ctx, types.StatusCompleted)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = q.List(ctx, types.RequestStatus("archived"))
	require.Error(t, err)
}

func TestFileQueueRejectsForeignIDs(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()
	for _, id := range []string{"", "../../etc/passwd", "not-a-uuid", "6F1C3F0E-9A4B-5D2E-8C71-2B9E0D4A7F15"} {
		_, err := q.Get(ctx, id)
		var nf *types.ErrQueueRecordNotFound
		assert.ErrorAs(t, err, &nf, id)
	}
	bad := pendingRecord(time.Now())
	bad.RequestID = "../escape"
	var rejected *types.ErrRequestRejected
	require.ErrorAs(t, q.Create(ctx, bad), &rejected)
}

func TestFileQueueTransition(t *testing.T) {
	q, dir := newQueue(t)
	ctx := context.Background()
	req := pendingRecord(time.Now().UTC())
	require.NoError(t, q.Create(ctx, req))

	var illegal *types.ErrIllegalTransition
	_, err := q.Transition(ctx, req.RequestID, types.StatusPending, types.StatusCompleted, nil)
	require.ErrorAs(t, err, &illegal)
	_, err = q.Transition(ctx, req.RequestID, types.StatusProcessing, types.StatusCompleted, nil)
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, types.StatusPending, illegal.From)

	moved, err := q.Transition(ctx, req.RequestID, types.StatusPending, types.StatusProcessing, func(r *Request) {
		r.Message = "picked up"
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusProcessing, moved.Status)
	assert.NoFileExists(t, filepath.Join(dir, "pending", req.RequestID+".json"))
	assert.FileExists(t, filepath.Join(dir, "processing", req.RequestID+".json"))

	got, err := q.Get(ctx, req.RequestID)
	require.NoError(t, err)
	assert.Equal(t, "picked up", got.Message)

	_, err = q.Transition(ctx, uuid.NewString(), types.StatusPending, types.StatusProcessing, nil)
	var nf *types.ErrQueueRecordNotFound
	require.ErrorAs(t, err, &nf)
}

func TestFileQueueLookupPrefersMostAdvancedCopy(t *testing.T) {
	q, dir := newQueue(t)
	ctx := context.Background()
	req := pendingRecord(time.Now().UTC())
	require.NoError(t, q.Create(ctx, req))
	copyRecord(t, dir, types.StatusPending, types.StatusProcessing, req.RequestID)

	got, err := q.Get(ctx, req.RequestID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusProcessing, got.Status)
	assert.NoFileExists(t, filepath.Join(dir, "pending", req.RequestID+".json"))

	// The repaired record continues through the state machine.
	_, err = q.Transition(ctx, req.RequestID, types.StatusProcessing, types.StatusFailed, nil)
	require.NoError(t, err)
}

func TestFileQueueRecover(t *testing.T) {
	q, dir := newQueue(t)
	ctx := context.Background()

	a := pendingRecord(time.Now().UTC())
	b := pendingRecord(time.Now().UTC())
	clean := pendingRecord(time.Now().UTC())
	for _, r := range []*Request{a, b, clean} {
		require.NoError(t, q.Create(ctx, r))
	}
	copyRecord(t, dir, types.StatusPending, types.StatusProcessing, a.RequestID)
	copyRecord(t, dir, types.StatusPending, types.StatusProcessing, b.RequestID)
	copyRecord(t, dir, types.StatusProcessing, types.StatusCompleted, b.RequestID)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pending", ".tmp-leftover"), []byte("x"), 0o600))

	n, err := q.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.FileExists(t, filepath.Join(dir, "processing", a.RequestID+".json"))
	assert.NoFileExists(t, filepath.Join(dir, "pending", a.RequestID+".json"))
	assert.FileExists(t, filepath.Join(dir, "completed", b.RequestID+".json"))
	assert.NoFileExists(t, filepath.Join(dir, "processing", b.RequestID+".json"))
	assert.NoFileExists(t, filepath.Join(dir, "pending", b.RequestID+".json"))

	pending, err := q.List(ctx, types.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, clean.RequestID, pending[0].RequestID)

	n, err = q.Recover(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCanTransition(t *testing.T) {
	allowed := map[[2]types.RequestStatus]bool{
		{types.StatusPending, types.StatusProcessing}:   true,
		{types.StatusProcessing, types.StatusCompleted}: true,
		{types.StatusProcessing, types.StatusFailed}:    true,
	}
	for _, from := range types.AllStatuses {
		for _, to := range types.AllStatuses {
			assert.Equal(t, allowed[[2]types.RequestStatus{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}
