// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

// Package identity manages did:wba agent identities: creating and persisting
// them, resolving DID documents, adopting identities provisioned by a hosting
// service, and issuing or verifying DID authorization credentials.
package identity

import (
	"context"
	"crypto"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/curve25519"

	"github.com/aumos-ai/wba-identity/did"
	"github.com/aumos-ai/wba-identity/keys"
	"github.com/aumos-ai/wba-identity/types"
)

// KeyAgreementFragment names the X25519 verification method of a generated document.
const KeyAgreementFragment = "key-2"

// DefaultSubjectTypes are the subject types CreateIdentity accepts when the
// manager is not configured otherwise.
var DefaultSubjectTypes = []string{"user", "agent", "hostuser"}

// AgentIdentity is a DID controlled by this process together with the
// document it publishes and the key that signs for it.
type AgentIdentity struct {
	// DID is the identity's did:wba identifier.
	DID string `json:"did"`
	// Document is the published DID document. File stores persist it separately.
	Document *did.Document `json:"-"`
	// ActiveKeyID is the KeyManager key ID (JWK thumbprint) of the signing key.
	ActiveKeyID string `json:"activeKeyId"`
	// KeyFragment is the verification method fragment of the signing key, e.g. "key-1".
	KeyFragment string `json:"keyFragment"`
	// KeyAgreementKey is the X25519 private scalar, when the document publishes one.
	KeyAgreementKey []byte `json:"keyAgreementKey,omitempty"`
	// HostedBy is the hosting service (host[:port]) for adopted identities.
	HostedBy string `json:"hostedBy,omitempty"`
	// CreatedAt is the UTC time the identity was created or adopted.
	CreatedAt time.Time `json:"createdAt"`
}

// VerificationMethodID returns the full ID of the signing verification method.
func (a *AgentIdentity) VerificationMethodID() string {
	return a.DID + "#" + a.KeyFragment
}

// IdentityStore persists AgentIdentity records. Identities are never deleted.
type IdentityStore interface {
	Put(ctx context.Context, identity *AgentIdentity) error
	Get(ctx context.Context, did string) (*AgentIdentity, error)
	List(ctx context.Context) ([]*AgentIdentity, error)
}

// InMemoryStore is a thread-safe, in-process IdentityStore. Suitable for tests
// and short-lived deployments.
type InMemoryStore struct {
	mu         sync.RWMutex
	identities map[string]*AgentIdentity
}

// NewInMemoryStore returns an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{identities: make(map[string]*AgentIdentity)}
}

func (s *InMemoryStore) Put(_ context.Context, identity *AgentIdentity) error {
	if identity == nil {
		return fmt.Errorf("identity store: cannot store nil AgentIdentity")
	}
	s.mu.Lock()
	s.identities[registryKey(identity.DID)] = identity
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*AgentIdentity, error) {
	s.mu.RLock()
	a, ok := s.identities[registryKey(id)]
	s.mu.RUnlock()
	if !ok {
		return nil, &types.ErrUnknownDID{DID: id}
	}
	return a, nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*AgentIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*AgentIdentity, 0, len(s.identities))
	for _, a := range s.identities {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DID < out[j].DID })
	return out, nil
}

// CreateOptions carries parameters for Manager.CreateIdentity.
type CreateOptions struct {
	// Host is the domain that serves the DID document. Required.
	Host string
	// Port is the serving port; 0, 80 and 443 mean the scheme default.
	Port int
	// SubjectType is the subject-type segment, e.g. "user". Defaults to "user".
	SubjectType string
	// SubjectID is the subject-id segment. Defaults to a random UUID.
	SubjectID string
	// KeyType selects the signing key. Defaults to secp256k1.
	KeyType types.KeyType
	// Services are published in the document as-is.
	Services []did.Service
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// Store is used to persist AgentIdentity records. Required.
	Store IdentityStore
	// KeyManager is used to generate and store key pairs. If nil, an
	// InMemoryKeyStore is used.
	KeyManager keys.KeyManager
	// Registry receives every created, loaded or adopted identity. If nil, a
	// fresh Registry is used.
	Registry *Registry
	// SubjectTypes restricts the subject types CreateIdentity accepts.
	// Defaults to DefaultSubjectTypes.
	SubjectTypes []string
	Logger       *slog.Logger
}

// Manager is the primary service object. All exported methods are safe for
// concurrent use from multiple goroutines.
type Manager struct {
	store        IdentityStore
	keyManager   keys.KeyManager
	registry     *Registry
	subjectTypes map[string]bool
	logger       *slog.Logger
}

// NewManager constructs a Manager from the provided options.
func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("identity: ManagerOptions.Store must not be nil")
	}
	km := opts.KeyManager
	if km == nil {
		km = keys.NewInMemoryKeyStore()
	}
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}
	subjects := opts.SubjectTypes
	if len(subjects) == 0 {
		subjects = DefaultSubjectTypes
	}
	allowed := make(map[string]bool, len(subjects))
	for _, s := range subjects {
		allowed[s] = true
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:        opts.Store,
		keyManager:   km,
		registry:     reg,
		subjectTypes: allowed,
		logger:       logger,
	}, nil
}

// CreateIdentity generates a signing key and an X25519 key agreement key,
// derives a did:wba DID, builds its document, persists it, and returns it.
func (m *Manager) CreateIdentity(ctx context.Context, opts CreateOptions) (*AgentIdentity, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("identity: CreateOptions.Host must not be empty")
	}
	subjectType := opts.SubjectType
	if subjectType == "" {
		subjectType = "user"
	}
	if !m.subjectTypes[subjectType] {
		return nil, &types.ErrRequestRejected{Reason: fmt.Sprintf("subject type %q is not creatable", subjectType)}
	}
	subjectID := opts.SubjectID
	if subjectID == "" {
		subjectID = uuid.NewString()
	}
	id := did.Format(opts.Host, opts.Port, subjectType, subjectID)
	if _, err := did.Parse(id); err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}

	keyType := opts.KeyType
	if keyType == "" {
		keyType = types.KeyTypeSecp256k1
	}
	kp, err := m.keyManager.Generate(ctx, keyType)
	if err != nil {
		return nil, fmt.Errorf("identity: generate key pair: %w", err)
	}

	agreementPriv, agreementPub, err := generateX25519()
	if err != nil {
		return nil, fmt.Errorf("identity: generate key agreement key: %w", err)
	}

	doc, err := BuildDocument(id, kp.PublicKey, agreementPub)
	if err != nil {
		return nil, fmt.Errorf("identity: build document: %w", err)
	}
	doc.Service = append(doc.Service, opts.Services...)

	agent := &AgentIdentity{
		DID:             id,
		Document:        doc,
		ActiveKeyID:     kp.KeyID,
		KeyFragment:     did.DefaultKeyFragment,
		KeyAgreementKey: agreementPriv,
		CreatedAt:       time.Now().UTC(),
	}
	if err := m.store.Put(ctx, agent); err != nil {
		return nil, fmt.Errorf("identity: persist AgentIdentity: %w", err)
	}
	if err := m.registry.Register(agent); err != nil {
		return nil, err
	}

	m.logger.Info("created identity", "did", id, "key_type", keyType)
	return agent, nil
}

// BuildDocument returns the DID document for id publishing pub as the
// signing method (key-1) and, when agreementPub is non-empty, an X25519 key
// agreement method (key-2). An empty id produces relative method IDs
// ("#key-1") for documents whose DID is assigned later.
func BuildDocument(id string, pub crypto.PublicKey, agreementPub []byte) (*did.Document, error) {
	jwk, err := keys.PublicKeyToJWK(pub)
	if err != nil {
		return nil, err
	}
	vmType := keys.VerificationMethodType(pub)
	suite := did.ContextJWS2020
	if vmType == types.VerificationMethodSecp256k1 {
		suite = did.ContextSecp256k12019
	}

	signing := did.VerificationMethod{
		ID:           id + "#" + did.DefaultKeyFragment,
		Type:         string(vmType),
		Controller:   id,
		PublicKeyJWK: jwk,
	}
	doc := &did.Document{
		Context:            []string{did.ContextDIDV1, suite},
		ID:                 id,
		VerificationMethod: []did.VerificationMethod{signing},
		Authentication:     []string{signing.ID},
		AssertionMethod:    []string{signing.ID},
	}

	if len(agreementPub) > 0 {
		mb, err := did.EncodeMultibaseKey(types.KeyTypeX25519, agreementPub)
		if err != nil {
			return nil, err
		}
		agreement := did.VerificationMethod{
			ID:                 id + "#" + KeyAgreementFragment,
			Type:               string(types.VerificationMethodX25519),
			Controller:         id,
			PublicKeyMultibase: mb,
		}
		doc.Context = append(doc.Context, did.ContextX255192019)
		doc.VerificationMethod = append(doc.VerificationMethod, agreement)
		doc.KeyAgreement = []string{agreement.ID}
	}
	return doc, nil
}

func generateX25519() (priv, pub []byte, err error) {
	priv = make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(priv); err != nil {
		return nil, nil, err
	}
	pub, err = curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, nil, err
	}
	return priv, pub, nil
}

// Identity looks up an AgentIdentity by DID, consulting the registry before
// the store. Identities loaded from the store are registered.
func (m *Manager) Identity(ctx context.Context, id string) (*AgentIdentity, error) {
	if a, ok := m.registry.Lookup(id); ok {
		return a, nil
	}
	a, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("identity: load %s: %w", id, err)
	}
	if err := m.registry.Register(a); err != nil {
		return nil, err
	}
	return a, nil
}

// LoadAll registers every identity in the store. Call once at startup.
func (m *Manager) LoadAll(ctx context.Context) (int, error) {
	all, err := m.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("identity: list: %w", err)
	}
	for _, a := range all {
		if err := m.registry.Register(a); err != nil {
			return 0, err
		}
	}
	return len(all), nil
}

// Signer returns a signer for the identity's active key.
func (m *Manager) Signer(ctx context.Context, id string) (*DocumentSigner, error) {
	a, err := m.Identity(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := m.keyManager.Load(ctx, a.ActiveKeyID); err != nil {
		return nil, fmt.Errorf("identity: signer for %s: %w", id, err)
	}
	return &DocumentSigner{did: a.DID, fragment: a.KeyFragment, keyID: a.ActiveKeyID, km: m.keyManager}, nil
}

// IssueCredential issues a DID authorization credential for a managed identity.
func (m *Manager) IssueCredential(ctx context.Context, id, nonce string, ttl time.Duration) (*VerifiableCredential, error) {
	a, err := m.Identity(ctx, id)
	if err != nil {
		return nil, err
	}
	kp, err := m.keyManager.Load(ctx, a.ActiveKeyID)
	if err != nil {
		return nil, fmt.Errorf("identity: credential for %s: %w", id, err)
	}
	return IssueCredential(a.Document, kp.PrivateKey, nonce, ttl)
}

// PrepareHostedRequest generates a signing key and returns the document a
// hosting service should publish for it. The document has no DID yet; the
// host assigns one when it processes the request. The key is kept in the
// KeyManager so AdoptHostedDocument can pair it with the hosted document.
func (m *Manager) PrepareHostedRequest(ctx context.Context, keyType types.KeyType) (*did.Document, error) {
	if keyType == "" {
		keyType = types.KeyTypeSecp256k1
	}
	kp, err := m.keyManager.Generate(ctx, keyType)
	if err != nil {
		return nil, fmt.Errorf("identity: generate key pair: %w", err)
	}
	doc, err := BuildDocument("", kp.PublicKey, nil)
	if err != nil {
		return nil, fmt.Errorf("identity: build document: %w", err)
	}
	m.logger.Debug("prepared hosted DID request", "key_id", kp.KeyID)
	return doc, nil
}

// AdoptHostedDocument records a document published by a hosting service as a
// local identity. The document's first verification method must carry a key
// this manager holds. Adopting the same document again is a no-op.
func (m *Manager) AdoptHostedDocument(ctx context.Context, doc *did.Document, source string) (*AgentIdentity, error) {
	if doc == nil || doc.ID == "" {
		return nil, fmt.Errorf("identity: hosted document has no id")
	}
	if _, err := did.Parse(doc.ID); err != nil {
		return nil, fmt.Errorf("identity: hosted document: %w", err)
	}
	vm, ok := doc.FirstVerificationMethod()
	if !ok {
		return nil, &types.ErrNoVerificationMethod{DID: doc.ID}
	}
	pub, err := keys.PublicKeyFromVerificationMethod(vm)
	if err != nil {
		return nil, fmt.Errorf("identity: hosted document: %w", err)
	}
	jwk, err := keys.PublicKeyToJWK(pub)
	if err != nil {
		return nil, fmt.Errorf("identity: hosted document: %w", err)
	}
	keyID, err := keys.Thumbprint(jwk)
	if err != nil {
		return nil, fmt.Errorf("identity: hosted document: %w", err)
	}
	if _, err := m.keyManager.Load(ctx, keyID); err != nil {
		return nil, fmt.Errorf("identity: adopt %s: %w", doc.ID, err)
	}

	existing, err := m.store.Get(ctx, doc.ID)
	switch {
	case err == nil && existing.ActiveKeyID == keyID:
		if existing.Document == nil {
			existing.Document = doc.Clone()
		}
		if err := m.registry.Register(existing); err != nil {
			return nil, err
		}
		return existing, nil
	case err != nil && !isUnknownDID(err):
		return nil, fmt.Errorf("identity: adopt %s: %w", doc.ID, err)
	}

	agent := &AgentIdentity{
		DID:         doc.ID,
		Document:    doc.Clone(),
		ActiveKeyID: keyID,
		KeyFragment: did.Fragment(vm.ID),
		HostedBy:    source,
		CreatedAt:   time.Now().UTC(),
	}
	if err := m.store.Put(ctx, agent); err != nil {
		return nil, fmt.Errorf("identity: persist AgentIdentity: %w", err)
	}
	if err := m.registry.Register(agent); err != nil {
		return nil, err
	}
	m.logger.Info("adopted hosted identity", "did", doc.ID, "source", source)
	return agent, nil
}

func isUnknownDID(err error) bool {
	var unknown *types.ErrUnknownDID
	return errors.As(err, &unknown)
}

// KeyManager returns the underlying KeyManager for direct key operations.
func (m *Manager) KeyManager() keys.KeyManager {
	return m.keyManager
}

// Store returns the underlying IdentityStore.
func (m *Manager) Store() IdentityStore {
	return m.store
}

// Registry returns the registry of identities known to this manager.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// DocumentSigner signs on behalf of a managed identity with its active key.
type DocumentSigner struct {
	did      string
	fragment string
	keyID    string
	km       keys.KeyManager
}

// DID returns the identity the signer acts for.
func (s *DocumentSigner) DID() string { return s.did }

// KeyID returns the verification method fragment of the signing key.
func (s *DocumentSigner) KeyID() string { return s.fragment }

// Sign signs message with the identity's active key.
func (s *DocumentSigner) Sign(ctx context.Context, message []byte) ([]byte, error) {
	return s.km.Sign(ctx, s.keyID, message)
}
