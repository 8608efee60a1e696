// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package identity

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"github.com/google/renameio/v2"

	"github.com/aumos-ai/wba-identity/did"
	"github.com/aumos-ai/wba-identity/keys"
	"github.com/aumos-ai/wba-identity/types"
)

const (
	identityFile = "identity.json"
	documentFile = "did_document.json"

	privateFileMode = 0o600
	publicFileMode  = 0o644
	dirMode         = 0o700
)

var keyIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// FileStore persists identities and their private keys under a root directory:
//
//	<root>/identities/<encoded DID>/identity.json
//	<root>/identities/<encoded DID>/did_document.json
//	<root>/keys/<key ID>.jwk.json
//
// Every file is written whole through a temp file and rename. Private key
// files are created with mode 0600. FileStore implements IdentityStore and
// Keys exposes the key directory as a keys.KeyManager. RSA keys cannot be
// stored because they have no private JWK form here.
type FileStore struct {
	root string
	mu   sync.Mutex
}

// NewFileStore creates the directory layout under root.
func NewFileStore(root string) (*FileStore, error) {
	for _, dir := range []string{filepath.Join(root, "identities"), filepath.Join(root, "keys")} {
		if err := os.MkdirAll(dir, dirMode); err != nil {
			return nil, &types.ErrStorageIO{Op: "create identity store", Err: err}
		}
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) identityDir(id string) string {
	return filepath.Join(s.root, "identities", base64.RawURLEncoding.EncodeToString([]byte(registryKey(id))))
}

func (s *FileStore) keyPath(keyID string) (string, error) {
	if !keyIDPattern.MatchString(keyID) {
		return "", &types.ErrKeyNotFound{KeyID: keyID}
	}
	return filepath.Join(s.root, "keys", keyID+".jwk.json"), nil
}

// Put writes the identity record and its DID document.
func (s *FileStore) Put(_ context.Context, identity *AgentIdentity) error {
	if identity == nil || identity.Document == nil {
		return fmt.Errorf("identity store: identity and its document must not be nil")
	}
	record, err := json.MarshalIndent(identity, "", "  ")
	if err != nil {
		return fmt.Errorf("identity store: encode identity: %w", err)
	}
	document, err := json.MarshalIndent(identity.Document, "", "  ")
	if err != nil {
		return fmt.Errorf("identity store: encode document: %w", err)
	}

	dir := s.identityDir(identity.DID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return &types.ErrStorageIO{Op: "create identity directory", Err: err}
	}
	if err := renameio.WriteFile(filepath.Join(dir, documentFile), document, publicFileMode); err != nil {
		return &types.ErrStorageIO{Op: "write DID document", Err: err}
	}
	// The record may carry the key agreement secret.
	if err := renameio.WriteFile(filepath.Join(dir, identityFile), record, privateFileMode); err != nil {
		return &types.ErrStorageIO{Op: "write identity", Err: err}
	}
	return nil
}

// Get reads an identity and its DID document.
func (s *FileStore) Get(_ context.Context, id string) (*AgentIdentity, error) {
	return s.readIdentity(s.identityDir(id), id)
}

func (s *FileStore) readIdentity(dir, id string) (*AgentIdentity, error) {
	record, err := os.ReadFile(filepath.Join(dir, identityFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &types.ErrUnknownDID{DID: id}
	}
	if err != nil {
		return nil, &types.ErrStorageIO{Op: "read identity", Err: err}
	}
	var a AgentIdentity
	if err := json.Unmarshal(record, &a); err != nil {
		return nil, &types.ErrStorageIO{Op: "decode identity", Err: err}
	}
	document, err := os.ReadFile(filepath.Join(dir, documentFile))
	if err != nil {
		return nil, &types.ErrStorageIO{Op: "read DID document", Err: err}
	}
	doc, err := did.ParseDocument(document)
	if err != nil {
		return nil, &types.ErrStorageIO{Op: "decode DID document", Err: err}
	}
	a.Document = doc
	return &a, nil
}

// List returns every stored identity sorted by DID.
func (s *FileStore) List(_ context.Context) ([]*AgentIdentity, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "identities"))
	if err != nil {
		return nil, &types.ErrStorageIO{Op: "list identities", Err: err}
	}
	out := make([]*AgentIdentity, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		a, err := s.readIdentity(filepath.Join(s.root, "identities", e.Name()), e.Name())
		if err != nil {
			var unknown *types.ErrUnknownDID
			if errors.As(err, &unknown) {
				// Directory created by an interrupted Put.
				continue
			}
			return nil, err
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DID < out[j].DID })
	return out, nil
}

// Generate creates a key pair, persists it and returns it.
func (s *FileStore) Generate(ctx context.Context, keyType types.KeyType) (*keys.KeyPair, error) {
	priv, err := keys.Generate(keyType)
	if err != nil {
		return nil, err
	}
	kp, err := keys.NewKeyPair(priv)
	if err != nil {
		return nil, err
	}
	if err := s.Store(ctx, kp); err != nil {
		return nil, err
	}
	return kp, nil
}

// Store persists kp as a private JWK.
func (s *FileStore) Store(_ context.Context, kp *keys.KeyPair) error {
	if kp == nil || kp.PrivateKey == nil {
		return fmt.Errorf("keys: cannot store a KeyPair without a private key")
	}
	path, err := s.keyPath(kp.KeyID)
	if err != nil {
		return err
	}
	jwk, err := keys.PrivateKeyToJWK(kp.PrivateKey)
	if err != nil {
		return err
	}
	data, err := json.Marshal(jwk)
	if err != nil {
		return fmt.Errorf("keys: encode jwk: %w", err)
	}
	if err := renameio.WriteFile(path, data, privateFileMode); err != nil {
		return &types.ErrStorageIO{Op: "write private key", Err: err}
	}
	return nil
}

// Load reads a key pair by ID.
func (s *FileStore) Load(_ context.Context, keyID string) (*keys.KeyPair, error) {
	path, err := s.keyPath(keyID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &types.ErrKeyNotFound{KeyID: keyID}
	}
	if err != nil {
		return nil, &types.ErrStorageIO{Op: "read private key", Err: err}
	}
	var jwk did.JWK
	if err := json.Unmarshal(data, &jwk); err != nil {
		return nil, &types.ErrStorageIO{Op: "decode private key", Err: err}
	}
	priv, err := keys.PrivateKeyFromJWK(&jwk)
	if err != nil {
		return nil, &types.ErrStorageIO{Op: "decode private key", Err: err}
	}
	kp, err := keys.NewKeyPair(priv)
	if err != nil {
		return nil, err
	}
	if kp.KeyID != keyID {
		return nil, &types.ErrStorageIO{Op: "verify private key", Err: fmt.Errorf("thumbprint mismatch")}
	}
	return kp, nil
}

// listKeys returns the IDs of every stored key, sorted.
func (s *FileStore) listKeys() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "keys"))
	if err != nil {
		return nil, &types.ErrStorageIO{Op: "list keys", Err: err}
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		const suffix = ".jwk.json"
		if e.IsDir() || len(name) <= len(suffix) || name[len(name)-len(suffix):] != suffix {
			continue
		}
		ids = append(ids, name[:len(name)-len(suffix)])
	}
	sort.Strings(ids)
	return ids, nil
}

// Sign signs message with the stored key keyID.
func (s *FileStore) Sign(ctx context.Context, keyID string, message []byte) ([]byte, error) {
	kp, err := s.Load(ctx, keyID)
	if err != nil {
		return nil, fmt.Errorf("keys: sign: %w", err)
	}
	return keys.Sign(kp.PrivateKey, message)
}

// Keys adapts the store to keys.KeyManager; the two List methods differ.
func (s *FileStore) Keys() keys.KeyManager {
	return fileKeyManager{s}
}

type fileKeyManager struct{ s *FileStore }

func (f fileKeyManager) Generate(ctx context.Context, keyType types.KeyType) (*keys.KeyPair, error) {
	return f.s.Generate(ctx, keyType)
}

func (f fileKeyManager) Store(ctx context.Context, kp *keys.KeyPair) error {
	return f.s.Store(ctx, kp)
}

func (f fileKeyManager) Load(ctx context.Context, keyID string) (*keys.KeyPair, error) {
	return f.s.Load(ctx, keyID)
}

func (f fileKeyManager) List(context.Context) ([]string, error) {
	return f.s.listKeys()
}

func (f fileKeyManager) Sign(ctx context.Context, keyID string, message []byte) ([]byte, error) {
	return f.s.Sign(ctx, keyID, message)
}
