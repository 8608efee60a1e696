// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package identity

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aumos-ai/wba-identity/did"
	"github.com/aumos-ai/wba-identity/keys"
	"github.com/aumos-ai/wba-identity/types"
)

// documentServer serves DID documents at their did:wba paths.
type documentServer struct {
	*httptest.Server
	host string
	port int
	docs map[string]*did.Document
	hits atomic.Int32
}

func newDocumentServer(t *testing.T) *documentServer {
	t.Helper()
	ds := &documentServer{docs: make(map[string]*did.Document)}
	ds.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ds.hits.Add(1)
		doc, ok := ds.docs[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(ds.Close)

	host, port, err := net.SplitHostPort(ds.Listener.Addr().String())
	require.NoError(t, err)
	ds.host = host
	ds.port, err = strconv.Atoi(port)
	require.NoError(t, err)
	return ds
}

func (ds *documentServer) publish(t *testing.T, subjectID string) *did.Document {
	t.Helper()
	priv, err := keys.Generate(types.KeyTypeSecp256k1)
	require.NoError(t, err)
	pub, err := keys.PublicKey(priv)
	require.NoError(t, err)
	id := did.Format(ds.host, ds.port, "user", subjectID)
	doc, err := BuildDocument(id, pub, nil)
	require.NoError(t, err)
	ds.docs["/wba/user/"+subjectID+"/did.json"] = doc
	return doc
}

func TestResolveWBAOverHTTP(t *testing.T) {
	ds := newDocumentServer(t)
	doc := ds.publish(t, "alice")

	r := NewDIDResolver(ResolverOptions{Scheme: "http"})
	got, err := r.Resolve(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)
	require.Len(t, got.VerificationMethod, 1)

	// Legacy colon form resolves to the same cached document.
	legacy := "did:wba:" + ds.host + ":" + strconv.Itoa(ds.port) + ":wba:user:alice"
	_, err = r.Resolve(context.Background(), legacy)
	require.NoError(t, err)
	assert.Equal(t, int32(1), ds.hits.Load())

	r.Invalidate(doc.ID)
	_, err = r.Resolve(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(2), ds.hits.Load())
}

func TestResolveCacheReturnsCopies(t *testing.T) {
	ds := newDocumentServer(t)
	doc := ds.publish(t, "alice")

	r := NewDIDResolver(ResolverOptions{Scheme: "http", CacheTTL: time.Minute})
	first, err := r.Resolve(context.Background(), doc.ID)
	require.NoError(t, err)
	first.VerificationMethod = nil

	second, err := r.Resolve(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Len(t, second.VerificationMethod, 1)
}

func TestResolveUnknownAndMismatched(t *testing.T) {
	ds := newDocumentServer(t)
	doc := ds.publish(t, "alice")
	// Served under bob's path but claims to be alice.
	ds.docs["/wba/user/bob/did.json"] = doc

	r := NewDIDResolver(ResolverOptions{Scheme: "http", CacheTTL: -1})

	_, err := r.Resolve(context.Background(), did.Format(ds.host, ds.port, "user", "nobody"))
	var unknown *types.ErrUnknownDID
	require.ErrorAs(t, err, &unknown)

	_, err = r.Resolve(context.Background(), did.Format(ds.host, ds.port, "user", "bob"))
	var failed *types.ErrDIDResolutionFailed
	require.ErrorAs(t, err, &failed)

	_, err = r.Resolve(context.Background(), "did:web:example.com")
	require.Error(t, err)
}

func TestResolveLocalRegistryFirst(t *testing.T) {
	ctx := context.Background()
	m, err := NewManager(ManagerOptions{Store: NewInMemoryStore()})
	require.NoError(t, err)
	agent, err := m.CreateIdentity(ctx, CreateOptions{Host: "unreachable.invalid", SubjectID: "alice"})
	require.NoError(t, err)

	r := NewDIDResolver(ResolverOptions{Local: m.Registry()})
	doc, err := r.Resolve(ctx, agent.DID)
	require.NoError(t, err)
	assert.Equal(t, agent.DID, doc.ID)
}

func TestResolveLocalUpdatesAreNotCached(t *testing.T) {
	ctx := context.Background()
	m, err := NewManager(ManagerOptions{Store: NewInMemoryStore()})
	require.NoError(t, err)
	agent, err := m.CreateIdentity(ctx, CreateOptions{Host: "unreachable.invalid", SubjectID: "bob"})
	require.NoError(t, err)

	r := NewDIDResolver(ResolverOptions{Local: m.Registry(), CacheTTL: time.Hour})
	doc, err := r.Resolve(ctx, agent.DID)
	require.NoError(t, err)
	assert.Empty(t, doc.Service)

	updated := *agent
	updated.Document = agent.Document.Clone()
	updated.Document.Service = []did.Service{{ID: agent.DID + "#inbox", Type: "Inbox", ServiceEndpoint: "https://unreachable.invalid/inbox"}}
	require.NoError(t, m.Registry().Register(&updated))

	doc, err = r.Resolve(ctx, agent.DID)
	require.NoError(t, err)
	require.Len(t, doc.Service, 1)
	assert.Equal(t, "Inbox", doc.Service[0].Type)
}

func TestResolveKeyDID(t *testing.T) {
	priv, err := keys.Generate(types.KeyTypeSecp256k1)
	require.NoError(t, err)
	pub, err := keys.PublicKey(priv)
	require.NoError(t, err)
	id, err := did.KeyDID(types.KeyTypeSecp256k1, pub.(*secp256k1.PublicKey).SerializeCompressed())
	require.NoError(t, err)

	r := NewDIDResolver(ResolverOptions{})
	doc, err := r.Resolve(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, doc.ID)

	vm, ok := doc.FirstVerificationMethod()
	require.True(t, ok)
	got, err := ExtractPublicKey(doc, vm.ID)
	require.NoError(t, err)

	sig, err := keys.Sign(priv, []byte("m"))
	require.NoError(t, err)
	assert.True(t, keys.Verify(got, []byte("m"), sig))

	_, err = ExtractPublicKey(doc, "#missing")
	var unknownKey *types.ErrUnknownKey
	require.ErrorAs(t, err, &unknownKey)
}
