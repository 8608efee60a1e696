// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package hosted

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/aumos-ai/wba-identity/did"
	"github.com/aumos-ai/wba-identity/types"
)

const (
	resultPrefix = "result:"
	indexPrefix  = "req:"
)

// resultNamespace seeds the name-based result IDs.
var resultNamespace = uuid.MustParse("6f1c3f0e-9a4b-5d2e-8c71-2b9e0d4a7f15")

// ResultID returns the result ID for a request. It is stable, so publishing
// the same request twice yields the same result.
func ResultID(requestID string) string {
	return uuid.NewSHA1(resultNamespace, []byte(requestID)).String()
}

// ResultStore keeps hosted-DID results in LevelDB. Unacknowledged results are
// indexed by requester; acknowledging a result drops it from the index in the
// same write batch that flips its flag.
//
//	result:<result_id>            -> Result JSON
//	req:<requester DID>:<result_id> -> (empty)
type ResultStore struct {
	db *leveldb.DB
	mu sync.Mutex
}

// OpenResultStore opens or creates the database at path.
func OpenResultStore(path string) (*ResultStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, &types.ErrStorageIO{Op: "open result store", Err: err}
	}
	return &ResultStore{db: db}, nil
}

// Close releases the database.
func (s *ResultStore) Close() error {
	return s.db.Close()
}

// Put stores r and indexes it for its requester unless it is acknowledged.
// If a result with the same ID exists it is returned unchanged.
func (s *ResultStore) Put(r *Result) (*Result, error) {
	if r == nil || r.ResultID == "" || r.RequesterDID == "" {
		return nil, fmt.Errorf("hosted: result needs an ID and a requester")
	}
	requester, err := indexDID(r.RequesterDID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, err := s.get(r.ResultID); err == nil {
		return existing, nil
	} else if !isNotFound(err) {
		return nil, err
	}

	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("hosted: encode result: %w", err)
	}
	batch := new(leveldb.Batch)
	batch.Put(resultKey(r.ResultID), data)
	if !r.Acknowledged {
		batch.Put(indexKey(requester, r.ResultID), nil)
	}
	if err := s.db.Write(batch, nil); err != nil {
		return nil, &types.ErrStorageIO{Op: "write result", Err: err}
	}
	return r, nil
}

// Get returns the result with the given ID.
func (s *ResultStore) Get(resultID string) (*Result, error) {
	return s.get(resultID)
}

func (s *ResultStore) get(resultID string) (*Result, error) {
	data, err := s.db.Get(resultKey(resultID), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, &types.ErrQueueRecordNotFound{ID: resultID}
	}
	if err != nil {
		return nil, &types.ErrStorageIO{Op: "read result", Err: err}
	}
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, &types.ErrStorageIO{Op: "decode result", Err: err}
	}
	return &r, nil
}

// Pending returns the unacknowledged results for requester, oldest first.
func (s *ResultStore) Pending(requesterDID string) ([]*Result, error) {
	requester, err := indexDID(requesterDID)
	if err != nil {
		return nil, err
	}
	prefix := indexKey(requester, "")
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	var ids []string
	for iter.Next() {
		ids = append(ids, string(iter.Key()[len(prefix):]))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return nil, &types.ErrStorageIO{Op: "scan result index", Err: err}
	}

	out := make([]*Result, 0, len(ids))
	for _, id := range ids {
		r, err := s.get(id)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		if !r.Acknowledged {
			out = append(out, r)
		}
	}
	sortResults(out)
	return out, nil
}

// Acknowledge marks a result delivered. Acknowledging twice is not an error.
func (s *ResultStore) Acknowledge(resultID string) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.get(resultID)
	if err != nil {
		return nil, err
	}
	if r.Acknowledged {
		return r, nil
	}
	requester, err := indexDID(r.RequesterDID)
	if err != nil {
		return nil, err
	}
	at := now()
	r.Acknowledged = true
	r.AcknowledgedAt = &at
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("hosted: encode result: %w", err)
	}

	batch := new(leveldb.Batch)
	batch.Put(resultKey(resultID), data)
	batch.Delete(indexKey(requester, resultID))
	if err := s.db.Write(batch, nil); err != nil {
		return nil, &types.ErrStorageIO{Op: "acknowledge result", Err: err}
	}
	return r, nil
}

func resultKey(id string) []byte {
	return []byte(resultPrefix + id)
}

func indexKey(requester, id string) []byte {
	return []byte(indexPrefix + requester + ":" + id)
}

// indexDID normalizes did:wba requesters so equivalent spellings share an
// index prefix.
func indexDID(id string) (string, error) {
	n, err := did.Normalize(id)
	if err != nil {
		return "", err
	}
	return n, nil
}

func sortResults(rs []*Result) {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].CreatedAt.Before(rs[j].CreatedAt) })
}
