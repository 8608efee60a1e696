// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package identity

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aumos-ai/wba-identity/did"
	"github.com/aumos-ai/wba-identity/types"
)

// Registry holds the identities known to this process, keyed by normalized
// DID. There is one Registry per Manager; nothing is kept in package state.
// Registry also satisfies Resolver for the identities it holds.
type Registry struct {
	mu    sync.RWMutex
	byDID map[string]*AgentIdentity
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byDID: make(map[string]*AgentIdentity)}
}

// Register adds or replaces an identity.
func (r *Registry) Register(a *AgentIdentity) error {
	if a == nil || a.Document == nil {
		return fmt.Errorf("registry: identity and its document must not be nil")
	}
	key := registryKey(a.DID)
	r.mu.Lock()
	r.byDID[key] = a
	r.mu.Unlock()
	return nil
}

// Lookup returns the identity registered for id.
func (r *Registry) Lookup(id string) (*AgentIdentity, bool) {
	r.mu.RLock()
	a, ok := r.byDID[registryKey(id)]
	r.mu.RUnlock()
	return a, ok
}

// Resolve returns a copy of the registered identity's DID document.
func (r *Registry) Resolve(_ context.Context, id string) (*did.Document, error) {
	a, ok := r.Lookup(id)
	if !ok {
		return nil, &types.ErrUnknownDID{DID: id}
	}
	return a.Document.Clone(), nil
}

// DIDs lists registered DIDs in sorted order.
func (r *Registry) DIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byDID))
	for k := range r.byDID {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func registryKey(id string) string {
	if n, err := did.Normalize(id); err == nil {
		return n
	}
	return id
}
