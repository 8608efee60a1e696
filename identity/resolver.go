// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bluele/gcache"

	"github.com/aumos-ai/wba-identity/did"
	"github.com/aumos-ai/wba-identity/keys"
	"github.com/aumos-ai/wba-identity/types"
)

// Resolver maps a DID to its current DID document.
type Resolver interface {
	Resolve(ctx context.Context, did string) (*did.Document, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, did string) (*did.Document, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, d string) (*did.Document, error) {
	return f(ctx, d)
}

// ResolverOptions configures a DIDResolver.
type ResolverOptions struct {
	// HTTPClient is used for did:wba resolution. Defaults to a client with a 10s timeout.
	HTTPClient *http.Client
	// MaxResponseBytes caps the size of a fetched DID Document (default 1 MiB).
	MaxResponseBytes int64
	// Scheme is the URL scheme used to fetch documents. Defaults to "https".
	Scheme string
	// CacheTTL is how long resolved documents are reused (default 15m).
	// A negative value disables caching.
	CacheTTL time.Duration
	// CacheSize bounds the number of cached documents (default 1024).
	CacheSize int
	// Local is consulted before the cache and the network, typically a
	// *Registry. Its documents are never cached.
	Local Resolver
	Logger *slog.Logger
}

// DIDResolver resolves DID Documents for did:wba and did:key methods.
// For did:key, resolution is entirely local (no network call).
// For did:wba, the document is fetched over HTTP(S) from the location encoded
// in the identifier.
type DIDResolver struct {
	httpClient       *http.Client
	maxResponseBytes int64
	scheme           string
	cache            gcache.Cache
	local            Resolver
	logger           *slog.Logger
}

// NewDIDResolver constructs a DIDResolver with the provided options.
func NewDIDResolver(opts ResolverOptions) *DIDResolver {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	maxBytes := opts.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = 1 << 20 // 1 MiB
	}
	scheme := opts.Scheme
	if scheme == "" {
		scheme = "https"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &DIDResolver{
		httpClient:       client,
		maxResponseBytes: maxBytes,
		scheme:           scheme,
		local:            opts.Local,
		logger:           logger,
	}

	ttl := opts.CacheTTL
	if ttl == 0 {
		ttl = 15 * time.Minute
	}
	if ttl > 0 {
		size := opts.CacheSize
		if size <= 0 {
			size = 1024
		}
		r.cache = gcache.New(size).LRU().Expiration(ttl).Build()
	}
	return r
}

// Resolve returns the DID Document for the given DID.
func (r *DIDResolver) Resolve(ctx context.Context, id string) (*did.Document, error) {
	key := id
	if did.IsWBA(id) {
		// Normalize so escaped and legacy forms share a cache entry.
		key, _ = did.Normalize(id)
	}

	// Local documents are never cached so registry updates show immediately.
	if r.local != nil {
		doc, err := r.local.Resolve(ctx, key)
		if err == nil {
			return doc, nil
		}
		var unknown *types.ErrUnknownDID
		if !errors.As(err, &unknown) {
			return nil, err
		}
	}

	if r.cache != nil {
		if cached, err := r.cache.Get(key); err == nil {
			return cached.(*did.Document).Clone(), nil
		}
	}

	doc, err := r.resolve(ctx, id, key)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		_ = r.cache.Set(key, doc.Clone())
	}
	return doc, nil
}

// Invalidate drops a cached document, forcing the next Resolve to refetch it.
func (r *DIDResolver) Invalidate(id string) {
	if r.cache == nil {
		return
	}
	if n, err := did.Normalize(id); err == nil {
		id = n
	}
	r.cache.Remove(id)
}

func (r *DIDResolver) resolve(ctx context.Context, id, normalized string) (*did.Document, error) {
	if len(id) > 8 && id[:8] == "did:key:" {
		return resolveKey(id)
	}

	parsed, err := did.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("resolver: %w", err)
	}
	if parsed.Method != did.MethodWBA {
		return nil, &types.ErrUnsupportedDIDMethod{Method: parsed.Method}
	}
	return r.resolveWBA(ctx, normalized, parsed)
}

// resolveKey synthesizes a DID Document from the public key encoded in a did:key.
func resolveKey(id string) (*did.Document, error) {
	keyType, raw, err := did.ParseKeyDID(id)
	if err != nil {
		return nil, fmt.Errorf("resolver: %w", err)
	}
	encoded := id[len("did:key:"):]
	vm := did.VerificationMethod{
		ID:         id + "#" + encoded,
		Controller: id,
	}
	switch keyType {
	case types.KeyTypeSecp256k1:
		vm.Type = string(types.VerificationMethodSecp256k1)
		pub, err := keys.PublicKeyFromVerificationMethod(&did.VerificationMethod{ID: vm.ID, PublicKeyMultibase: encoded})
		if err != nil {
			return nil, fmt.Errorf("resolver: %w", err)
		}
		jwk, err := keys.PublicKeyToJWK(pub)
		if err != nil {
			return nil, fmt.Errorf("resolver: %w", err)
		}
		vm.PublicKeyJWK = jwk
	case types.KeyTypeEd25519:
		vm.Type = string(types.VerificationMethodEd25519)
		vm.PublicKeyMultibase = encoded
	default:
		return nil, &types.ErrDIDResolutionFailed{DID: id, Reason: fmt.Sprintf("%s keys cannot authenticate (%d bytes)", keyType, len(raw))}
	}
	return &did.Document{
		Context:            []string{did.ContextDIDV1},
		ID:                 id,
		VerificationMethod: []did.VerificationMethod{vm},
		Authentication:     []string{vm.ID},
		AssertionMethod:    []string{vm.ID},
	}, nil
}

// resolveWBA fetches the DID Document from the location encoded in a did:wba.
// did:wba:example.com%3A8800:wba:user:alice => https://example.com:8800/wba/user/alice/did.json
func (r *DIDResolver) resolveWBA(ctx context.Context, id string, parsed did.WBA) (*did.Document, error) {
	url := parsed.DocumentURL(r.scheme)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &types.ErrDIDResolutionFailed{DID: id, Reason: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, &types.ErrDIDResolutionFailed{DID: id, Reason: fmt.Sprintf("HTTP fetch: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil, &types.ErrUnknownDID{DID: id}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &types.ErrDIDResolutionFailed{DID: id, Reason: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, r.maxResponseBytes))
	if err != nil {
		return nil, &types.ErrDIDResolutionFailed{DID: id, Reason: fmt.Sprintf("read body: %v", err)}
	}

	var doc did.Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &types.ErrDIDResolutionFailed{DID: id, Reason: fmt.Sprintf("parse JSON: %v", err)}
	}

	docID := doc.ID
	if n, err := did.Normalize(doc.ID); err == nil {
		docID = n
	}
	if docID != id {
		return nil, &types.ErrDIDResolutionFailed{DID: id, Reason: "document ID does not match requested DID"}
	}

	r.logger.Debug("resolved DID document", "did", id)
	return &doc, nil
}

// ExtractPublicKey returns the signing key of the verification method named
// by keyID (full ID or fragment) in doc.
func ExtractPublicKey(doc *did.Document, keyID string) (any, error) {
	vm, ok := doc.VerificationMethodByID(keyID)
	if !ok {
		return nil, &types.ErrUnknownKey{DID: doc.ID, KeyID: keyID}
	}
	pub, err := keys.PublicKeyFromVerificationMethod(vm)
	if err != nil {
		return nil, &types.ErrUnknownKey{DID: doc.ID, KeyID: keyID}
	}
	return pub, nil
}
