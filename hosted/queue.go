// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package hosted

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"github.com/aumos-ai/wba-identity/types"
)

const (
	recordExt  = ".json"
	recordMode = 0o600
	dirMode    = 0o700
)

// legalTransitions lists every status change the queue accepts.
var legalTransitions = map[types.RequestStatus][]types.RequestStatus{
	types.StatusPending:    {types.StatusProcessing},
	types.StatusProcessing: {types.StatusCompleted, types.StatusFailed},
}

// CanTransition reports whether a request may move from one status to another.
func CanTransition(from, to types.RequestStatus) bool {
	for _, s := range legalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// QueueOptions configures a FileQueue.
type QueueOptions struct {
	// BaseDir holds one directory per hosting domain. Required.
	BaseDir string
	// Host and Port name the hosting domain. Required.
	Host   string
	Port   int
	Logger *slog.Logger
}

// FileQueue stores hosted-DID requests as one JSON file per request:
//
//	<base>/<domain>/{pending,processing,completed,failed}/<request_id>.json
//
// The directory a record sits in is its status. Records are written whole
// through a temp file and rename. A transition writes the record into the
// new directory and then removes the old file; if a crash leaves a record in
// two directories, the most advanced status wins (see Recover).
//
// A FileQueue assumes it is the only writer for its domain.
type FileQueue struct {
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*recordLock
}

type recordLock struct {
	sync.Mutex
	refs int
}

// NewFileQueue creates the partition directories for the domain.
func NewFileQueue(opts QueueOptions) (*FileQueue, error) {
	if opts.BaseDir == "" || opts.Host == "" {
		return nil, fmt.Errorf("hosted: QueueOptions.BaseDir and Host must not be empty")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	q := &FileQueue{
		dir:    filepath.Join(opts.BaseDir, domainDir(opts.Host, opts.Port)),
		logger: logger,
		locks:  make(map[string]*recordLock),
	}
	for _, status := range types.AllStatuses {
		if err := os.MkdirAll(q.partition(status), dirMode); err != nil {
			return nil, &types.ErrStorageIO{Op: "create queue partition", Err: err}
		}
	}
	return q, nil
}

func domainDir(host string, port int) string {
	host = strings.ToLower(host)
	if port == 0 || port == 80 || port == 443 {
		return host
	}
	return host + "_" + strconv.Itoa(port)
}

func (q *FileQueue) partition(status types.RequestStatus) string {
	return filepath.Join(q.dir, string(status))
}

func (q *FileQueue) path(status types.RequestStatus, id string) string {
	return filepath.Join(q.partition(status), id+recordExt)
}

// lock serializes operations on one request ID within this process.
func (q *FileQueue) lock(id string) func() {
	q.mu.Lock()
	l, ok := q.locks[id]
	if !ok {
		l = &recordLock{}
		q.locks[id] = l
	}
	l.refs++
	q.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		q.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(q.locks, id)
		}
		q.mu.Unlock()
	}
}

// validID rejects anything that is not a canonical UUID, which also keeps
// IDs from escaping the partition directories.
func validID(id string) bool {
	u, err := uuid.Parse(id)
	return err == nil && u.String() == id
}

// Create writes a new record into the partition named by its status.
func (q *FileQueue) Create(_ context.Context, req *Request) error {
	if req == nil || !validID(req.RequestID) || !req.Status.Valid() {
		return &types.ErrRequestRejected{Reason: "invalid queue record"}
	}
	unlock := q.lock(req.RequestID)
	defer unlock()

	if _, err := q.locate(req.RequestID); err == nil {
		return &types.ErrRequestRejected{Reason: "request ID already exists"}
	} else if !isNotFound(err) {
		return err
	}
	return q.write(req)
}

// Get returns the record for id from whichever partition holds it.
func (q *FileQueue) Get(_ context.Context, id string) (*Request, error) {
	if !validID(id) {
		return nil, &types.ErrQueueRecordNotFound{ID: id}
	}
	unlock := q.lock(id)
	defer unlock()
	return q.locate(id)
}

// Transition moves the record for id from one status to another. The record
// must currently be in from, and the change must be a legal one. mutate, if
// non-nil, edits the record before it is written to the new partition.
func (q *FileQueue) Transition(_ context.Context, id string, from, to types.RequestStatus, mutate func(*Request)) (*Request, error) {
	if !validID(id) {
		return nil, &types.ErrQueueRecordNotFound{ID: id}
	}
	if !CanTransition(from, to) {
		return nil, &types.ErrIllegalTransition{ID: id, From: from, To: to}
	}
	unlock := q.lock(id)
	defer unlock()

	req, err := q.locate(id)
	if err != nil {
		return nil, err
	}
	if req.Status != from {
		return nil, &types.ErrIllegalTransition{ID: id, From: req.Status, To: to}
	}

	req.Status = to
	if mutate != nil {
		mutate(req)
	}
	if err := q.write(req); err != nil {
		return nil, err
	}
	if err := os.Remove(q.path(from, id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		// The new copy is already durable and outranks the old one.
		q.logger.Warn("stale queue record left behind", "request_id", id, "status", from, "err", err)
	}
	return req, nil
}

// List returns every record in status, oldest submission first.
func (q *FileQueue) List(_ context.Context, status types.RequestStatus) ([]*Request, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("hosted: unknown status %q", status)
	}
	ids, err := q.ids(status)
	if err != nil {
		return nil, err
	}
	out := make([]*Request, 0, len(ids))
	for _, id := range ids {
		req, err := q.read(status, id)
		if err != nil {
			if isNotFound(err) {
				// Moved by a concurrent transition.
				continue
			}
			return nil, err
		}
		out = append(out, req)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmitTime.Before(out[j].SubmitTime) })
	return out, nil
}

// Recover scans every partition and removes the stale copies of records that
// appear in more than one, keeping the most advanced status. It returns the
// number of records repaired.
func (q *FileQueue) Recover(_ context.Context) (int, error) {
	seen := make(map[string]int)
	for _, status := range types.AllStatuses {
		ids, err := q.ids(status)
		if err != nil {
			return 0, err
		}
		for _, id := range ids {
			seen[id]++
		}
	}

	repaired := 0
	for id, n := range seen {
		if n < 2 {
			continue
		}
		unlock := q.lock(id)
		_, err := q.locate(id)
		unlock()
		if err != nil && !isNotFound(err) {
			return repaired, err
		}
		repaired++
	}
	if repaired > 0 {
		q.logger.Info("recovered queue records", "count", repaired)
	}
	return repaired, nil
}

// locate finds id in the partitions. When several copies exist the most
// advanced one is kept and the others are deleted. Callers hold the ID lock.
func (q *FileQueue) locate(id string) (*Request, error) {
	var found []types.RequestStatus
	for _, status := range types.AllStatuses {
		_, err := os.Stat(q.path(status, id))
		switch {
		case err == nil:
			found = append(found, status)
		case !errors.Is(err, fs.ErrNotExist):
			return nil, &types.ErrStorageIO{Op: "stat queue record", Err: err}
		}
	}
	if len(found) == 0 {
		return nil, &types.ErrQueueRecordNotFound{ID: id}
	}

	best := found[0]
	for _, status := range found[1:] {
		if status.Rank() > best.Rank() {
			best = status
		}
	}
	for _, status := range found {
		if status == best {
			continue
		}
		if err := os.Remove(q.path(status, id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, &types.ErrStorageIO{Op: "remove stale queue record", Err: err}
		}
		q.logger.Warn("removed stale queue record", "request_id", id, "stale", status, "kept", best)
	}

	req, err := q.read(best, id)
	if err != nil {
		return nil, err
	}
	// The directory is authoritative over the status field.
	req.Status = best
	return req, nil
}

func (q *FileQueue) read(status types.RequestStatus, id string) (*Request, error) {
	data, err := os.ReadFile(q.path(status, id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &types.ErrQueueRecordNotFound{ID: id}
	}
	if err != nil {
		return nil, &types.ErrStorageIO{Op: "read queue record", Err: err}
	}
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, &types.ErrStorageIO{Op: "decode queue record", Err: err}
	}
	return &req, nil
}

func (q *FileQueue) write(req *Request) error {
	data, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return fmt.Errorf("hosted: encode request: %w", err)
	}
	if err := renameio.WriteFile(q.path(req.Status, req.RequestID), data, recordMode); err != nil {
		return &types.ErrStorageIO{Op: "write queue record", Err: err}
	}
	return nil
}

// ids lists the request IDs stored in a partition. Leftover temp files and
// foreign names are skipped.
func (q *FileQueue) ids(status types.RequestStatus) ([]string, error) {
	entries, err := os.ReadDir(q.partition(status))
	if err != nil {
		return nil, &types.ErrStorageIO{Op: "list queue partition", Err: err}
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, recordExt) {
			continue
		}
		if id := strings.TrimSuffix(name, recordExt); validID(id) {
			out = append(out, id)
		}
	}
	return out, nil
}

func isNotFound(err error) bool {
	var nf *types.ErrQueueRecordNotFound
	return errors.As(err, &nf)
}

func now() time.Time { return time.Now().UTC() }
