// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package keys

import (
	"context"
	"crypto"
	"fmt"
	"sort"
	"sync"

	"github.com/aumos-ai/wba-identity/types"
)

// KeyPair is a private key together with its derived public key and ID.
// KeyID is the RFC 7638 thumbprint of the public JWK, so the same key always
// gets the same ID wherever it is loaded.
type KeyPair struct {
	KeyID      string
	Type       types.KeyType
	PublicKey  crypto.PublicKey
	PrivateKey crypto.PrivateKey
}

// NewKeyPair wraps priv, deriving its public key, type and thumbprint ID.
func NewKeyPair(priv crypto.PrivateKey) (*KeyPair, error) {
	pub, err := PublicKey(priv)
	if err != nil {
		return nil, err
	}
	keyType, err := TypeOf(pub)
	if err != nil {
		return nil, err
	}
	jwk, err := PublicKeyToJWK(pub)
	if err != nil {
		return nil, err
	}
	id, err := Thumbprint(jwk)
	if err != nil {
		return nil, err
	}
	return &KeyPair{KeyID: id, Type: keyType, PublicKey: pub, PrivateKey: priv}, nil
}

// KeyManager generates, stores and signs with key pairs.
type KeyManager interface {
	Generate(ctx context.Context, keyType types.KeyType) (*KeyPair, error)
	Store(ctx context.Context, kp *KeyPair) error
	Load(ctx context.Context, keyID string) (*KeyPair, error)
	List(ctx context.Context) ([]string, error)
	Sign(ctx context.Context, keyID string, message []byte) ([]byte, error)
}

// InMemoryKeyStore is a thread-safe, in-process KeyManager implementation.
// Key material exists only for the lifetime of the process.
type InMemoryKeyStore struct {
	mu   sync.RWMutex
	keys map[string]*KeyPair
}

// NewInMemoryKeyStore constructs an empty InMemoryKeyStore.
func NewInMemoryKeyStore() *InMemoryKeyStore {
	return &InMemoryKeyStore{
		keys: make(map[string]*KeyPair),
	}
}

// Generate creates a fresh key pair of the given type, stores it, and returns it.
func (s *InMemoryKeyStore) Generate(ctx context.Context, keyType types.KeyType) (*KeyPair, error) {
	priv, err := Generate(keyType)
	if err != nil {
		return nil, err
	}
	kp, err := NewKeyPair(priv)
	if err != nil {
		return nil, err
	}
	if err := s.Store(ctx, kp); err != nil {
		return nil, err
	}
	return kp, nil
}

// Store saves an externally provided key pair.
func (s *InMemoryKeyStore) Store(_ context.Context, kp *KeyPair) error {
	if kp == nil {
		return fmt.Errorf("keys: cannot store nil KeyPair")
	}
	if kp.KeyID == "" {
		return fmt.Errorf("keys: KeyPair.KeyID must not be empty")
	}

	s.mu.Lock()
	s.keys[kp.KeyID] = kp
	s.mu.Unlock()
	return nil
}

// Load retrieves a key pair by ID.
func (s *InMemoryKeyStore) Load(_ context.Context, keyID string) (*KeyPair, error) {
	s.mu.RLock()
	kp, ok := s.keys[keyID]
	s.mu.RUnlock()

	if !ok {
		return nil, &types.ErrKeyNotFound{KeyID: keyID}
	}
	return kp, nil
}

// List returns all key IDs currently held in the store, sorted.
func (s *InMemoryKeyStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.keys))
	for id := range s.keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Sign produces a signature over message using the key identified by keyID.
func (s *InMemoryKeyStore) Sign(ctx context.Context, keyID string, message []byte) ([]byte, error) {
	kp, err := s.Load(ctx, keyID)
	if err != nil {
		return nil, fmt.Errorf("keys: sign: %w", err)
	}
	if kp.PrivateKey == nil {
		return nil, &types.ErrKeyUnavailable{Purpose: "signing with " + keyID}
	}
	return Sign(kp.PrivateKey, message)
}
